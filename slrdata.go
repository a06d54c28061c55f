// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package slrdata stores hypergraphs on disk: a universe of elements and
// any number of named relations, each a list of fixed-arity tuples of
// element ids with an optional incidence index mapping every element to
// the tuples that contain it.
//
// A dataset is a directory holding one main file (main.slrdata) and one
// relation file per relation (<name>.slrrel).  All files are memory
// mapped and grow in place; a dataset has a single writer.
package slrdata

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bpowers/slrdata/format"
	"github.com/bpowers/slrdata/mainfile"
	"github.com/bpowers/slrdata/relfile"
)

const (
	// MainFileName is the name of the main file inside a dataset directory.
	MainFileName = "main.slrdata"
	// RelationExt is the extension of relation files.
	RelationExt = ".slrrel"
)

var errBadName = errors.New("relation names must be non-empty and can't contain path separators")

// Option configures a Dataset.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets an optional logger for the dataset and its files to use
// for progress updates.  If not provided, no logging output will be
// produced.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

func newOptions(opts []Option) options {
	var o options
	o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Dataset is an open dataset directory.
type Dataset struct {
	dir       string
	readonly  bool
	main      *mainfile.File
	relations map[string]*relfile.File
	logger    *slog.Logger
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%q: %w", name, errBadName)
	}
	return nil
}

// RelationPath returns the path of the relation file for name in dir.
func RelationPath(dir, name string) string {
	return filepath.Join(dir, name+RelationExt)
}

func mkdir(dir string) error {
	if err := os.Mkdir(dir, 0755); errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("os.Mkdir(%s): %w", dir, format.ErrAlreadyExists)
	} else if err != nil {
		return fmt.Errorf("os.Mkdir(%s): %w", dir, err)
	}
	return nil
}

// Create creates a new dataset directory at dir with an empty main file.
// dir must not exist.
func Create(dir string, opts ...Option) (*Dataset, error) {
	o := newOptions(opts)
	if err := mkdir(dir); err != nil {
		return nil, err
	}
	main, err := mainfile.Create(filepath.Join(dir, MainFileName), mainfile.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	return &Dataset{
		dir:       dir,
		main:      main,
		relations: make(map[string]*relfile.File),
		logger:    o.logger,
	}, nil
}

// Open opens the dataset at dir, validating the main file and every
// relation file in it.
func Open(dir string, readonly bool, opts ...Option) (*Dataset, error) {
	o := newOptions(opts)
	main, err := mainfile.Open(filepath.Join(dir, MainFileName), readonly, mainfile.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	d := &Dataset{
		dir:       dir,
		readonly:  readonly,
		main:      main,
		relations: make(map[string]*relfile.File),
		logger:    o.logger,
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*"+RelationExt))
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("filepath.Glob: %w", err)
	}
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), RelationExt)
		rel, err := relfile.Open(path, readonly, relfile.WithLogger(o.logger))
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.relations[name] = rel
	}
	if uint64(len(d.relations)) != main.RelationCount() {
		d.logger.Warn("relation files don't match the catalog",
			"dir", dir,
			"files", len(d.relations),
			"catalog", main.RelationCount())
	}

	// a crash during compaction leaves the sibling behind; it blocks
	// further compactions of that relation until removed
	stale, _ := filepath.Glob(filepath.Join(dir, "*"+RelationExt+relfile.CompactSuffix))
	for _, path := range stale {
		d.logger.Warn("found leftover compaction output", "path", path)
	}
	return d, nil
}

func (d *Dataset) Dir() string {
	return d.dir
}

func (d *Dataset) ReadOnly() bool {
	return d.readonly
}

// Main returns the dataset's main file.
func (d *Dataset) Main() *mainfile.File {
	return d.main
}

// AddElement adds an element to the universe and returns its id.
func (d *Dataset) AddElement() (uint64, error) {
	return d.main.AddElement("")
}

// AddElements adds n elements and returns the id of the first.
func (d *Dataset) AddElements(n uint64) (first uint64, err error) {
	first = d.main.ElementCount()
	for i := uint64(0); i < n; i++ {
		if _, err := d.main.AddElement(""); err != nil {
			return first, err
		}
	}
	return first, nil
}

// ElementCount is the number of elements in the universe.
func (d *Dataset) ElementCount() uint64 {
	return d.main.ElementCount()
}

// CreateRelation creates an empty relation and records it in the main
// file's catalog.
func (d *Dataset) CreateRelation(name string) (*relfile.File, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if _, ok := d.relations[name]; ok {
		return nil, fmt.Errorf("relation %q: %w", name, format.ErrAlreadyExists)
	}
	rel, err := relfile.Create(RelationPath(d.dir, name), relfile.WithLogger(d.logger))
	if err != nil {
		return nil, err
	}
	if _, err := d.main.AddRelation(); err != nil {
		_ = rel.Close()
		_ = os.Remove(rel.Path())
		return nil, err
	}
	d.relations[name] = rel
	return rel, nil
}

// Relation returns the open relation called name.
func (d *Dataset) Relation(name string) (*relfile.File, error) {
	rel, ok := d.relations[name]
	if !ok {
		return nil, fmt.Errorf("relation %q: %w", name, format.ErrNotFound)
	}
	return rel, nil
}

// RelationNames returns the names of every relation, sorted.
func (d *Dataset) RelationNames() []string {
	names := make([]string, 0, len(d.relations))
	for name := range d.relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Index builds the incidence lists of a relation over the current
// element universe.
func (d *Dataset) Index(name string, normDegree, maxDegree uint64) error {
	rel, err := d.Relation(name)
	if err != nil {
		return err
	}
	return rel.AddIncidenceLists(d.main, normDegree, maxDegree)
}

// Compact drops the slack from a relation's incidence lists.
func (d *Dataset) Compact(name string) error {
	rel, err := d.Relation(name)
	if err != nil {
		return err
	}
	return rel.Compact()
}

// Verify checks every relation's structure, and that no relation refers
// to elements outside the universe.
func (d *Dataset) Verify() error {
	n := d.main.ElementCount()
	for _, name := range d.RelationNames() {
		rel := d.relations[name]
		if err := rel.Verify(); err != nil {
			return fmt.Errorf("relation %q: %w", name, err)
		}
		if rel.ElementCount() > n {
			return fmt.Errorf("relation %q: %w: indexed for %d elements but the universe has %d", name, format.ErrCorrupt, rel.ElementCount(), n)
		}
		it := rel.Tuples()
		for item, ok := it.Next(); ok; item, ok = it.Next() {
			for _, e := range item.Elements {
				if e >= n {
					return fmt.Errorf("relation %q: %w: tuple %d contains element %d but the universe has %d", name, format.ErrCorrupt, item.Index, e, n)
				}
			}
		}
		if err := it.Err(); err != nil {
			return fmt.Errorf("relation %q: %w", name, err)
		}
	}
	return nil
}

// Sync flushes every file to disk.
func (d *Dataset) Sync() error {
	errs := []error{d.main.Sync()}
	for _, name := range d.RelationNames() {
		errs = append(errs, d.relations[name].Sync())
	}
	return errors.Join(errs...)
}

// Close closes every file in the dataset.
func (d *Dataset) Close() error {
	errs := []error{d.main.Close()}
	for _, rel := range d.relations {
		errs = append(errs, rel.Close())
	}
	return errors.Join(errs...)
}
