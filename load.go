// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package slrdata

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/bpowers/slrdata/format"
	"github.com/bpowers/slrdata/internal/bytesutil"
)

// IndexOptions are the incidence list parameters used when tuples are
// added to an already-indexed relation.
type IndexOptions struct {
	NormDegree uint64
	MaxDegree  uint64
}

// emptyTuple is the text form of a tuple with no elements.
const emptyTuple = "()"

// LoadTuples reads tuples from r, one per line with element ids
// separated by commas ("0,4,2"), and appends them to the relation called
// name.  A tuple with no elements is written "()".  Blank lines and lines
// starting with '#' are skipped.  If the
// relation is indexed, idx must be non-nil and each tuple is added to
// the incidence lists as it is loaded.  It returns the number of tuples
// added; on error, tuples before the failing line remain.
func (d *Dataset) LoadTuples(name string, r io.Reader, idx *IndexOptions) (uint64, error) {
	rel, err := d.Relation(name)
	if err != nil {
		return 0, err
	}
	n := d.main.ElementCount()

	var added, lineNo uint64
	var tuple []uint64
	s := bufio.NewScanner(r)
	for s.Scan() {
		lineNo++
		line := bytes.TrimSpace(s.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if string(line) == emptyTuple {
			tuple = tuple[:0]
		} else if tuple, err = bytesutil.AppendIDs(tuple[:0], line, ','); err != nil {
			return added, fmt.Errorf("LoadTuples(%s): line %d: %w", name, lineNo, err)
		}
		for _, e := range tuple {
			if e >= n {
				return added, fmt.Errorf("LoadTuples(%s): line %d: %w: element %d (universe has %d)", name, lineNo, format.ErrIndexOutOfRange, e, n)
			}
		}
		if rel.Indexed() && idx != nil {
			_, err = rel.AddIndexedTuple(tuple, idx.NormDegree, idx.MaxDegree)
		} else {
			_, err = rel.AddTuple(tuple)
		}
		if err != nil {
			return added, fmt.Errorf("LoadTuples(%s): line %d: %w", name, lineNo, err)
		}
		added++
	}
	if err := s.Err(); err != nil {
		return added, fmt.Errorf("bufio.Scanner: %w", err)
	}
	d.logger.Info("loaded tuples", "relation", name, "tuples", added, "lines", lineNo)
	return added, nil
}

// WriteTuples writes every tuple of the relation called name to w in the
// form LoadTuples reads.
func (d *Dataset) WriteTuples(name string, w io.Writer) error {
	rel, err := d.Relation(name)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	var line []byte
	it := rel.Tuples()
	for item, ok := it.Next(); ok; item, ok = it.Next() {
		line = line[:0]
		if len(item.Elements) == 0 {
			line = append(line, emptyTuple...)
		}
		for i, e := range item.Elements {
			if i > 0 {
				line = append(line, ',')
			}
			line = strconv.AppendUint(line, e, 10)
		}
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	return bw.Flush()
}
