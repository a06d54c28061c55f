// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package slrdata

import (
	"fmt"
	"path/filepath"

	"github.com/bpowers/slrdata/mainfile"
	"github.com/bpowers/slrdata/relfile"
)

// Description is the full contents of a dataset, for Build.
type Description struct {
	Elements  uint64
	Relations []RelationDescription
}

// RelationDescription is a relation's name, arity and tuples.
type RelationDescription struct {
	Name   string
	Arity  uint64
	Tuples [][]uint64
}

// Build creates a dataset at dir holding desc in one pass: every file is
// sized exactly and every relation is indexed with no slack, as if it had
// just been compacted.  dir must not exist.
func Build(dir string, desc Description, opts ...Option) (*Dataset, error) {
	o := newOptions(opts)
	seen := make(map[string]bool, len(desc.Relations))
	for _, rd := range desc.Relations {
		if err := checkName(rd.Name); err != nil {
			return nil, err
		}
		if seen[rd.Name] {
			return nil, fmt.Errorf("Build: relation %q listed twice", rd.Name)
		}
		seen[rd.Name] = true
	}

	if err := mkdir(dir); err != nil {
		return nil, err
	}
	main, err := mainfile.CreateWithCounts(filepath.Join(dir, MainFileName), desc.Elements, uint64(len(desc.Relations)), mainfile.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	d := &Dataset{
		dir:       dir,
		main:      main,
		relations: make(map[string]*relfile.File, len(desc.Relations)),
		logger:    o.logger,
	}
	for _, rd := range desc.Relations {
		rel, err := relfile.CreateDense(RelationPath(dir, rd.Name), rd.Arity, rd.Tuples, desc.Elements, relfile.WithLogger(o.logger))
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("Build: relation %q: %w", rd.Name, err)
		}
		d.relations[rd.Name] = rel
	}
	return d, nil
}
