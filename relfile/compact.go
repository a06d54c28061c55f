// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package relfile

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgryski/go-farm"
	"github.com/dustin/go-humanize"

	"github.com/bpowers/slrdata/format"
	"github.com/bpowers/slrdata/internal/mmap"
	"github.com/bpowers/slrdata/internal/ondisk"
)

// CompactSuffix is appended to a relation file's path to name the
// sibling file Compact builds.
const CompactSuffix = ".compact"

// denseLayout places the tuple list, element index and incidence lists of
// a relation file back to back, with no room to spare.
type denseLayout struct {
	arity      uint64
	tupleCount uint64
	degrees    []uint64

	tupleOff uint64
	indexOff uint64
	listOffs []uint64
	size     uint64
}

func planDense(arity, tupleCount uint64, degrees []uint64, indexed bool) (*denseLayout, error) {
	l := &denseLayout{
		arity:      arity,
		tupleCount: tupleCount,
		degrees:    degrees,
	}
	tupleBytes := tupleCount * arity * ondisk.W48
	if arity != 0 && (tupleBytes/arity/ondisk.W48 != tupleCount || !ondisk.Fits48(tupleBytes)) {
		return nil, fmt.Errorf("%d tuples of arity %d: %w", tupleCount, arity, format.ErrValueTooLarge)
	}

	off := uint64(format.RelationHeaderSize)
	if tupleCount > 0 {
		l.tupleOff = off
		off += format.ListHeaderSize + tupleBytes
	}
	if indexed {
		n := uint64(len(degrees))
		if !ondisk.Fits48(n * ondisk.W64) {
			return nil, fmt.Errorf("%d elements: %w", n, format.ErrValueTooLarge)
		}
		l.indexOff = off
		off += format.ListHeaderSize + n*ondisk.W64
		l.listOffs = make([]uint64, n)
		for e, degree := range degrees {
			l.listOffs[e] = off
			off += format.ListHeaderSize + degree*ondisk.W48
		}
	}
	l.size = off
	return l, nil
}

// write sizes r to fit the layout and fills it in.  tuples must write
// the tuple payload into the slice it is given, and entries the tuple
// indexes of element e's incidence list into the view it is given.
func (l *denseLayout) write(r *mmap.Region, tuples func(dst []byte) error, entries func(e uint64, dst *ondisk.U48Slice) error) error {
	if err := r.Resize(l.size); err != nil {
		return err
	}
	data := r.Data()
	ondisk.PutUint48(data[format.RelationArityOff:], l.arity)
	ondisk.PutUint64(data[format.RelationTupleListOff:], l.tupleOff)
	ondisk.PutUint64(data[format.RelationElementIdxOff:], l.indexOff)

	if l.tupleOff != 0 {
		tupleBytes := l.tupleCount * l.arity * ondisk.W48
		h := listHeader(data, l.tupleOff)
		if err := errors.Join(h.Set(0, tupleBytes), h.Set(1, l.tupleCount)); err != nil {
			return err
		}
		payload, err := r.Slice(l.tupleOff+format.ListHeaderSize, tupleBytes)
		if err != nil {
			return err
		}
		if err := tuples(payload); err != nil {
			return err
		}
	}

	if l.indexOff != 0 {
		n := uint64(len(l.listOffs))
		h := listHeader(data, l.indexOff)
		if err := errors.Join(h.Set(0, n*ondisk.W64), h.Set(1, n)); err != nil {
			return err
		}
		slots := ondisk.NewU64Slice(data, n, l.indexOff+format.ListHeaderSize)
		for e, listOff := range l.listOffs {
			degree := l.degrees[e]
			if err := slots.Set(uint64(e), listOff); err != nil {
				return err
			}
			h := listHeader(data, listOff)
			if err := errors.Join(h.Set(0, degree*ondisk.W48), h.Set(1, degree)); err != nil {
				return err
			}
			if err := entries(uint64(e), ondisk.NewU48Slice(data, degree, listOff+format.ListHeaderSize)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Compact rewrites the relation so that every incidence list holds
// exactly its degree entries, dropping the space left behind by
// relocated lists.  The new file is built next to the old one (at
// path+CompactSuffix) and renamed over it; f refers to the new file
// afterwards.  A leftover sibling from an earlier failed compaction
// makes Compact fail with ErrAlreadyExists.
//
// If Compact fails after the old file has been closed, f is unusable and
// should be reopened.
func (f *File) Compact() error {
	if err := f.checkWritable(); err != nil {
		return err
	}
	start := time.Now()
	path := f.r.Path()
	tmpPath := path + CompactSuffix

	payload, err := f.tupleList().Payload()
	if err != nil {
		return fmt.Errorf("Compact(%s): %w", path, err)
	}
	var degrees []uint64
	if f.Indexed() {
		degrees = make([]uint64, f.ElementCount())
		for e := range degrees {
			if degrees[e], err = f.Degree(uint64(e)); err != nil {
				return fmt.Errorf("Compact(%s): %w", path, err)
			}
		}
	}
	layout, err := planDense(f.Arity(), f.TupleCount(), degrees, f.Indexed())
	if err != nil {
		return fmt.Errorf("Compact(%s): %w", path, err)
	}

	h := format.NewHeader(format.Relation)
	dst, err := mmap.Create(tmpPath, h.Bytes())
	if err != nil {
		return fmt.Errorf("Compact(%s): %w", path, err)
	}
	renamed := false
	defer func() {
		if !renamed {
			_ = dst.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	err = layout.write(dst,
		func(b []byte) error {
			copy(b, payload)
			return nil
		},
		func(e uint64, dst *ondisk.U48Slice) error {
			listOff, _, degree, err := f.incidence(e)
			if err != nil {
				return err
			}
			src := ondisk.NewU48Slice(f.r.Data(), degree, listOff+format.ListHeaderSize)
			for i := uint64(0); i < degree; i++ {
				t, err := src.Get(i)
				if err != nil {
					return err
				}
				if err := dst.Set(i, t); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return fmt.Errorf("Compact(%s): %w", path, err)
	}

	if layout.tupleOff != 0 {
		copied := dst.Data()[layout.tupleOff+format.ListHeaderSize:][:len(payload)]
		if expected, actual := farm.Fingerprint64(payload), farm.Fingerprint64(copied); expected != actual {
			return fmt.Errorf("Compact(%s): tuple list fingerprint mismatch (%x != %x)", path, expected, actual)
		}
	}

	if err := dst.Sync(); err != nil {
		return fmt.Errorf("Compact(%s): %w", path, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("Compact(%s): %w", path, err)
	}

	oldSize := f.r.Size()
	if err := f.r.Close(); err != nil {
		return fmt.Errorf("Compact(%s): %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("os.Rename: %w", err)
	}
	renamed = true

	r, err := mmap.Open(path, false, format.Relation)
	if err != nil {
		return fmt.Errorf("Compact(%s): reopen: %w", path, err)
	}
	f.r = r

	f.logger.Info("compacted relation",
		"path", path,
		"before", humanize.Bytes(oldSize),
		"after", humanize.Bytes(r.Size()),
		"duration", time.Since(start))
	return nil
}

// CreateDense builds a relation file at path holding tuples, indexed for
// an element universe of elementCount elements, in one shot: every
// incidence list is sized exactly to its degree, as if Compact had just
// run.
func CreateDense(path string, arity uint64, tuples [][]uint64, elementCount uint64, opts ...Option) (*File, error) {
	o := newOptions(opts)
	if !ondisk.Fits48(uint64(len(tuples))) {
		return nil, fmt.Errorf("CreateDense(%s): %d tuples: %w", path, len(tuples), format.ErrValueTooLarge)
	}

	lists := make([][]uint64, elementCount)
	var elems []uint64
	for i, tuple := range tuples {
		if uint64(len(tuple)) != arity {
			return nil, fmt.Errorf("CreateDense(%s): %w: tuple %d has %d elements, expected %d", path, format.ErrArityMismatch, i, len(tuple), arity)
		}
		for _, e := range tuple {
			if e >= elementCount {
				return nil, fmt.Errorf("CreateDense(%s): %w: tuple %d contains element %d but there are %d elements", path, format.ErrIndexOutOfRange, i, e, elementCount)
			}
		}
		elems = distinct(elems, tuple)
		for _, e := range elems {
			lists[e] = append(lists[e], uint64(i))
		}
	}
	degrees := make([]uint64, elementCount)
	for e := range lists {
		degrees[e] = uint64(len(lists[e]))
	}

	layout, err := planDense(arity, uint64(len(tuples)), degrees, true)
	if err != nil {
		return nil, fmt.Errorf("CreateDense(%s): %w", path, err)
	}
	r, err := mmap.Create(path, format.NewHeader(format.Relation).Bytes())
	if err != nil {
		return nil, err
	}
	err = layout.write(r,
		func(b []byte) error {
			payload := ondisk.NewU48Slice(b, uint64(len(tuples))*arity, 0)
			for i, tuple := range tuples {
				for j, e := range tuple {
					if err := payload.Set(uint64(i)*arity+uint64(j), e); err != nil {
						return err
					}
				}
			}
			return nil
		},
		func(e uint64, dst *ondisk.U48Slice) error {
			for i, t := range lists[e] {
				if err := dst.Set(uint64(i), t); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		_ = r.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("CreateDense(%s): %w", path, err)
	}
	o.logger.Info("created relation",
		"path", path,
		"arity", arity,
		"tuples", len(tuples),
		"elements", elementCount,
		"size", humanize.Bytes(r.Size()))
	return &File{r: r, logger: o.logger}, nil
}
