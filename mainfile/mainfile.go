// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mainfile stores the element universe of a dataset.
//
// A main file holds two lists: the element list, whose entry i is the id
// of element i, and the relation list, a catalog of relation ids.  Ids are
// dense, 0-based and never reused.  Element labels are reserved in the
// format but not stored.
package mainfile

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/bpowers/slrdata/format"
	"github.com/bpowers/slrdata/internal/mmap"
	"github.com/bpowers/slrdata/internal/ondisk"
)

// Option configures a File.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets an optional logger.  If not provided, no logging
// output will be produced.
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

// File is an open main file.
type File struct {
	r         *mmap.Region
	elements  mmap.List
	relations mmap.List
	logger    *slog.Logger
}

func newFile(r *mmap.Region, o options) *File {
	return &File{
		r:         r,
		elements:  mmap.List{R: r, OffsetField: format.MainElementListOff, EntrySize: ondisk.W48},
		relations: mmap.List{R: r, OffsetField: format.MainRelationsOff, EntrySize: ondisk.W48},
		logger:    o.logger,
	}
}

// Create creates a main file with no elements and no relations.
func Create(path string, opts ...Option) (*File, error) {
	o := newOptions(opts)
	r, err := mmap.Create(path, format.NewHeader(format.Main).Bytes())
	if err != nil {
		return nil, err
	}
	return newFile(r, o), nil
}

// CreateWithCounts creates a main file with elements elements and
// relations relation ids, sized and written in one shot.
func CreateWithCounts(path string, elements, relations uint64, opts ...Option) (*File, error) {
	o := newOptions(opts)
	if !ondisk.Fits48(elements*ondisk.W48) || !ondisk.Fits48(relations*ondisk.W48) {
		return nil, fmt.Errorf("mainfile.CreateWithCounts(%d, %d): %w", elements, relations, format.ErrValueTooLarge)
	}

	elementsOff := uint64(format.MainHeaderSize)
	relationsOff := elementsOff + format.ListHeaderSize + elements*ondisk.W48
	size := relationsOff + format.ListHeaderSize + relations*ondisk.W48

	h := format.NewHeader(format.Main)
	h.Size = size
	h.List0 = elementsOff
	h.List1 = relationsOff

	buf := make([]byte, size)
	if err := h.MarshalTo(buf); err != nil {
		return nil, err
	}
	writeIDList(buf[elementsOff:], elements)
	writeIDList(buf[relationsOff:], relations)

	r, err := mmap.Create(path, buf)
	if err != nil {
		return nil, err
	}
	o.logger.Info("created main file", "path", path, "elements", elements, "relations", relations, "size", size)
	return newFile(r, o), nil
}

// writeIDList writes a list of ids 0..n-1 to b.
func writeIDList(b []byte, n uint64) {
	ondisk.PutUint48(b, n*ondisk.W48)
	ondisk.PutUint48(b[ondisk.W48:], n)
	for i := uint64(0); i < n; i++ {
		ondisk.PutUint48(b[format.ListHeaderSize+i*ondisk.W48:], i)
	}
}

// Open opens an existing main file and checks its lists are in bounds.
func Open(path string, readonly bool, opts ...Option) (*File, error) {
	o := newOptions(opts)
	r, err := mmap.Open(path, readonly, format.Main)
	if err != nil {
		return nil, err
	}
	f := newFile(r, o)
	for _, l := range []mmap.List{f.elements, f.relations} {
		if _, err := l.Count(); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("mainfile.Open(%s): %w", path, err)
		}
	}
	return f, nil
}

func appendID(l mmap.List) (uint64, error) {
	id, err := l.Count()
	if err != nil {
		return 0, err
	}
	if !ondisk.Fits48(id) {
		return 0, format.ErrValueTooLarge
	}
	var entry [ondisk.W48]byte
	ondisk.PutUint48(entry[:], id)
	return l.Append(entry[:])
}

// AddElement appends a new element and returns its id, which is the
// number of elements that existed before the call.  label is currently
// ignored.
func (f *File) AddElement(label string) (uint64, error) {
	_ = label
	id, err := appendID(f.elements)
	if err != nil {
		return 0, fmt.Errorf("AddElement(%s): %w", f.r.Path(), err)
	}
	return id, nil
}

// AddRelation appends a new relation id to the catalog.
func (f *File) AddRelation() (uint64, error) {
	id, err := appendID(f.relations)
	if err != nil {
		return 0, fmt.Errorf("AddRelation(%s): %w", f.r.Path(), err)
	}
	return id, nil
}

// ElementCount is the number of elements in the universe.
func (f *File) ElementCount() uint64 {
	n, _ := f.elements.Count()
	return n
}

// RelationCount is the number of relations in the catalog.
func (f *File) RelationCount() uint64 {
	n, _ := f.relations.Count()
	return n
}

// Element returns the id stored for element i.
func (f *File) Element(i uint64) (uint64, error) {
	b, err := f.elements.Entry(i)
	if err != nil {
		return 0, err
	}
	return ondisk.Uint48(b), nil
}

// RelationID returns the id stored in catalog slot i.
func (f *File) RelationID(i uint64) (uint64, error) {
	b, err := f.relations.Entry(i)
	if err != nil {
		return 0, err
	}
	return ondisk.Uint48(b), nil
}

func (f *File) Size() uint64 {
	return f.r.Size()
}

func (f *File) Path() string {
	return f.r.Path()
}

func (f *File) ReadOnly() bool {
	return f.r.ReadOnly()
}

// Sync flushes pending writes to disk.
func (f *File) Sync() error {
	return f.r.Sync()
}

func (f *File) Close() error {
	return f.r.Close()
}
