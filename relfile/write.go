// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package relfile

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bpowers/slrdata/format"
	"github.com/bpowers/slrdata/internal/ondisk"
	"github.com/bpowers/slrdata/internal/zero"
)

func (f *File) checkWritable() error {
	if f.r.ReadOnly() {
		return fmt.Errorf("%s: %w", f.r.Path(), format.ErrReadOnly)
	}
	return nil
}

// AddTuple appends tuple to the relation and returns its index.  The
// first tuple fixes the relation's arity.  Tuples can't be added this
// way once the relation is indexed, as the incidence lists would go
// stale; use AddIndexedTuple.
func (f *File) AddTuple(tuple []uint64) (uint64, error) {
	if err := f.checkWritable(); err != nil {
		return 0, err
	}
	if f.Indexed() {
		return 0, fmt.Errorf("AddTuple(%s): %w", f.r.Path(), format.ErrAlreadyIndexed)
	}
	return f.appendTuple(tuple)
}

func (f *File) appendTuple(tuple []uint64) (uint64, error) {
	arity := uint64(len(tuple))
	for _, e := range tuple {
		if !ondisk.Fits48(e) {
			return 0, fmt.Errorf("element %d: %w", e, format.ErrValueTooLarge)
		}
	}
	if f.tupleList().Offset() == 0 {
		if !ondisk.Fits48(arity * ondisk.W48) {
			return 0, fmt.Errorf("arity %d: %w", arity, format.ErrValueTooLarge)
		}
		ondisk.PutUint48(f.r.Data()[format.RelationArityOff:], arity)
	} else if arity != f.Arity() {
		return 0, fmt.Errorf("%w: tuple has %d elements, relation has arity %d", format.ErrArityMismatch, arity, f.Arity())
	}

	entrySize := arity * ondisk.W48
	if uint64(cap(f.scratch)) < entrySize {
		f.scratch = make([]byte, entrySize)
	}
	entry := f.scratch[:entrySize]
	for i, e := range tuple {
		ondisk.PutUint48(entry[i*ondisk.W48:], e)
	}
	return f.tupleList().Append(entry)
}

// distinct returns the elements of tuple with repeats removed, in order
// of first appearance, reusing dst.  Arities are small, so this is
// quadratic on purpose.
func distinct(dst, tuple []uint64) []uint64 {
	dst = dst[:0]
outer:
	for _, e := range tuple {
		for _, seen := range dst {
			if seen == e {
				continue outer
			}
		}
		dst = append(dst, e)
	}
	return dst
}

func checkDegrees(normDegree, maxDegree uint64) error {
	if normDegree == 0 {
		return errors.New("normDegree must be at least 1")
	}
	if !ondisk.Fits48(normDegree*ondisk.W48) || !ondisk.Fits48(maxDegree) {
		return fmt.Errorf("normDegree %d / maxDegree %d: %w", normDegree, maxDegree, format.ErrValueTooLarge)
	}
	return nil
}

// addIncidence records that tuple t contains element e, moving e's
// incidence list to the end of the file with normDegree more entries of
// room if it is full.  It reports whether the list was moved.
func (f *File) addIncidence(e, t, normDegree, maxDegree uint64) (relocated bool, err error) {
	listOff, capBytes, degree, err := f.incidence(e)
	if err != nil {
		return false, err
	}
	if degree+1 > maxDegree {
		return false, fmt.Errorf("%w: element %d would have degree %d (max %d)", format.ErrCapacityExceeded, e, degree+1, maxDegree)
	}

	if (degree+1)*ondisk.W48 > capBytes {
		newCap := capBytes + normDegree*ondisk.W48
		if !ondisk.Fits48(newCap) {
			return false, fmt.Errorf("incidence list of element %d: %w", e, format.ErrValueTooLarge)
		}
		newOff, err := f.r.Grow(format.ListHeaderSize + newCap)
		if err != nil {
			return false, err
		}
		data := f.r.Data()
		used := format.ListHeaderSize + degree*ondisk.W48
		copy(data[newOff:newOff+used], data[listOff:listOff+used])
		zero.Bytes(data[newOff+used : newOff+format.ListHeaderSize+newCap])
		if err := listHeader(data, newOff).Set(0, newCap); err != nil {
			return false, err
		}
		slots, err := f.slots()
		if err != nil {
			return false, err
		}
		if err := slots.Set(e, newOff); err != nil {
			return false, err
		}
		listOff, capBytes = newOff, newCap
		relocated = true
	}

	data := f.r.Data()
	entries := ondisk.NewU48Slice(data, capBytes/ondisk.W48, listOff+format.ListHeaderSize)
	if err := entries.Set(degree, t); err != nil {
		return relocated, err
	}
	return relocated, listHeader(data, listOff).Set(1, degree+1)
}

// indexSize is the number of bytes an element index over n elements
// needs, with every incidence list listSize bytes long.
func indexSize(n, listSize uint64) (uint64, error) {
	if n > ondisk.Max48/ondisk.W64 {
		return 0, format.ErrValueTooLarge
	}
	hi, lists := bits.Mul64(n, listSize)
	total, carry := bits.Add64(format.ListHeaderSize+n*ondisk.W64, lists, 0)
	if hi != 0 || carry != 0 {
		return 0, format.ErrValueTooLarge
	}
	return total, nil
}

// AddIncidenceLists builds the incidence index over every tuple in the
// relation, for an element universe of elements.ElementCount() elements.
// Each list starts with room for normDegree entries and grows by
// normDegree entries each time it is relocated.  If any element's degree
// would exceed maxDegree the build stops with ErrCapacityExceeded; the
// file is left indexed but incomplete, and there is no rollback.
func (f *File) AddIncidenceLists(elements ElementCounter, normDegree, maxDegree uint64) error {
	if err := f.checkWritable(); err != nil {
		return err
	}
	if f.Indexed() {
		return fmt.Errorf("AddIncidenceLists(%s): %w", f.r.Path(), format.ErrAlreadyIndexed)
	}
	if err := checkDegrees(normDegree, maxDegree); err != nil {
		return fmt.Errorf("AddIncidenceLists(%s): %w", f.r.Path(), err)
	}

	start := time.Now()
	n := elements.ElementCount()
	tupleCount := f.TupleCount()
	listSize := format.ListHeaderSize + normDegree*ondisk.W48
	growBy, err := indexSize(n, listSize)
	if err != nil {
		return fmt.Errorf("AddIncidenceLists(%s): %d elements with room for %d: %w", f.r.Path(), n, normDegree, err)
	}

	// every tuple must only reference elements in the universe; check
	// before touching the file
	var tuple, elems []uint64
	for i := uint64(0); i < tupleCount; i++ {
		if tuple, err = f.AppendTuple(tuple[:0], i); err != nil {
			return err
		}
		for _, e := range tuple {
			if e >= n {
				return fmt.Errorf("%w: tuple %d contains element %d but there are %d elements", format.ErrIndexOutOfRange, i, e, n)
			}
		}
	}

	idxOff, err := f.r.Grow(growBy)
	if err != nil {
		return err
	}
	data := f.r.Data()
	zero.Bytes(data[idxOff:])
	h := listHeader(data, idxOff)
	if err := errors.Join(h.Set(0, n*ondisk.W64), h.Set(1, n)); err != nil {
		return err
	}
	slots := ondisk.NewU64Slice(data, n, idxOff+format.ListHeaderSize)
	listsOff := idxOff + format.ListHeaderSize + n*ondisk.W64
	for e := uint64(0); e < n; e++ {
		listOff := listsOff + e*listSize
		if err := slots.Set(e, listOff); err != nil {
			return err
		}
		if err := listHeader(data, listOff).Set(0, normDegree*ondisk.W48); err != nil {
			return err
		}
	}
	f.setHeader(format.RelationElementIdxOff, idxOff)

	relocations := 0
	for i := uint64(0); i < tupleCount; i++ {
		if tuple, err = f.AppendTuple(tuple[:0], i); err != nil {
			return err
		}
		elems = distinct(elems, tuple)
		for _, e := range elems {
			relocated, err := f.addIncidence(e, i, normDegree, maxDegree)
			if err != nil {
				return fmt.Errorf("AddIncidenceLists(%s): tuple %d: %w", f.r.Path(), i, err)
			}
			if relocated {
				relocations++
			}
		}
	}

	f.logger.Info("built incidence lists",
		"path", f.r.Path(),
		"elements", n,
		"tuples", tupleCount,
		"relocations", relocations,
		"size", humanize.Bytes(f.r.Size()),
		"duration", time.Since(start))
	return nil
}

// AddIndexedTuple appends tuple to an indexed relation and adds it to
// the incidence list of each element it contains, growing lists the same
// way AddIncidenceLists does.  Degrees are checked against maxDegree
// before anything is written.
func (f *File) AddIndexedTuple(tuple []uint64, normDegree, maxDegree uint64) (uint64, error) {
	if err := f.checkWritable(); err != nil {
		return 0, err
	}
	if !f.Indexed() {
		return 0, fmt.Errorf("AddIndexedTuple(%s): %w", f.r.Path(), format.ErrNotIndexed)
	}
	if err := checkDegrees(normDegree, maxDegree); err != nil {
		return 0, fmt.Errorf("AddIndexedTuple(%s): %w", f.r.Path(), err)
	}

	elems := distinct(make([]uint64, 0, len(tuple)), tuple)
	for _, e := range elems {
		degree, err := f.Degree(e)
		if err != nil {
			return 0, fmt.Errorf("AddIndexedTuple(%s): %w", f.r.Path(), err)
		}
		if degree+1 > maxDegree {
			return 0, fmt.Errorf("AddIndexedTuple(%s): %w: element %d would have degree %d (max %d)", f.r.Path(), format.ErrCapacityExceeded, e, degree+1, maxDegree)
		}
	}

	t, err := f.appendTuple(tuple)
	if err != nil {
		return 0, fmt.Errorf("AddIndexedTuple(%s): %w", f.r.Path(), err)
	}
	for _, e := range elems {
		if _, err := f.addIncidence(e, t, normDegree, maxDegree); err != nil {
			return 0, fmt.Errorf("AddIndexedTuple(%s): %w", f.r.Path(), err)
		}
	}
	return t, nil
}
