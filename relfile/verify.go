// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package relfile

import (
	"fmt"

	"github.com/bpowers/slrdata/format"
	"github.com/bpowers/slrdata/internal/bitset"
)

// Verify walks the whole relation and checks that the incidence index
// agrees with the tuple list: every entry of e's list names a tuple
// containing e, no tuple appears twice in one list, and every (tuple,
// element) membership is recorded.  Unindexed relations only have their
// tuple list checked.
func (f *File) Verify() error {
	tupleCount := f.TupleCount()
	if _, err := f.tupleList().Count(); err != nil {
		return fmt.Errorf("Verify(%s): %w", f.r.Path(), err)
	}
	if !f.Indexed() {
		return nil
	}

	n := f.ElementCount()
	var memberships uint64
	var tuple, elems []uint64
	var err error
	for i := uint64(0); i < tupleCount; i++ {
		if tuple, err = f.AppendTuple(tuple[:0], i); err != nil {
			return fmt.Errorf("Verify(%s): %w", f.r.Path(), err)
		}
		elems = distinct(elems, tuple)
		for _, e := range elems {
			if e >= n {
				return fmt.Errorf("Verify(%s): %w: tuple %d contains element %d outside the index (%d elements)", f.r.Path(), format.ErrCorrupt, i, e, n)
			}
		}
		memberships += uint64(len(elems))
	}

	seen := bitset.New(tupleCount)
	var degrees uint64
	for e := uint64(0); e < n; e++ {
		indexes, err := f.IncidentTupleIndexes(e)
		if err != nil {
			return fmt.Errorf("Verify(%s): %w", f.r.Path(), err)
		}
		for _, t := range indexes {
			if t >= tupleCount {
				return fmt.Errorf("Verify(%s): %w: element %d lists tuple %d of %d", f.r.Path(), format.ErrCorrupt, e, t, tupleCount)
			}
			if seen.IsSet(t) {
				return fmt.Errorf("Verify(%s): %w: element %d lists tuple %d twice", f.r.Path(), format.ErrCorrupt, e, t)
			}
			seen.Set(t)
			if tuple, err = f.AppendTuple(tuple[:0], t); err != nil {
				return fmt.Errorf("Verify(%s): %w", f.r.Path(), err)
			}
			if !contains(tuple, e) {
				return fmt.Errorf("Verify(%s): %w: element %d lists tuple %d %v which doesn't contain it", f.r.Path(), format.ErrCorrupt, e, t, tuple)
			}
		}
		for _, t := range indexes {
			seen.Clear(t)
		}
		degrees += uint64(len(indexes))
	}

	// no duplicates and no strays, so equal totals means nothing is missing
	if degrees != memberships {
		return fmt.Errorf("Verify(%s): %w: incidence lists hold %d entries for %d tuple memberships", f.r.Path(), format.ErrCorrupt, degrees, memberships)
	}
	return nil
}

func contains(tuple []uint64, e uint64) bool {
	for _, x := range tuple {
		if x == e {
			return true
		}
	}
	return false
}
