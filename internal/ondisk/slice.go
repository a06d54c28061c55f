// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package ondisk

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds is returned when a view's entry lies outside its arena.
	ErrOutOfBounds = errors.New("offset beyond end of file -- corrupted")
	// ErrTooLarge is returned when a value doesn't fit its field.
	ErrTooLarge = errors.New("value does not fit in a 48-bit field")
)

// field returns the i-th width-byte entry of the view of n entries at
// off in b.  Offsets come from disk, so nothing here may overflow.
func field(b []byte, n, off, width, i uint64) ([]byte, error) {
	if i >= n {
		return nil, fmt.Errorf("%w: entry %d of %d", ErrOutOfBounds, i, n)
	}
	size := uint64(len(b))
	if off > size || i >= (size-off)/width {
		return nil, fmt.Errorf("%w: entry %d at offset %d beyond arena (%d bytes)", ErrOutOfBounds, i, off, size)
	}
	start := off + width*i
	return b[start : start+width : start+width], nil
}

// U48Slice is a view of n packed 48-bit integers starting at byte
// offset off of an arena (usually an mmap'd file).  Views are cheap and
// must be rebuilt after the arena is remapped.
type U48Slice struct {
	b   []byte
	len uint64 // length in number of elements
	off uint64 // offset in bytes of the start of this slice
}

func NewU48Slice(arena []byte, len, off uint64) *U48Slice {
	return &U48Slice{
		b:   arena,
		len: len,
		off: off,
	}
}

func (s *U48Slice) Len() uint64 {
	return s.len
}

func (s *U48Slice) Set(i, value uint64) error {
	if !Fits48(value) {
		return fmt.Errorf("%w: %d", ErrTooLarge, value)
	}
	buf, err := field(s.b, s.len, s.off, W48, i)
	if err != nil {
		return err
	}
	PutUint48(buf, value)
	return nil
}

func (s *U48Slice) Get(i uint64) (uint64, error) {
	buf, err := field(s.b, s.len, s.off, W48, i)
	if err != nil {
		return 0, err
	}
	return Uint48(buf), nil
}

// AppendTo appends entries [i, i+n) to dst.
func (s *U48Slice) AppendTo(dst []uint64, i, n uint64) ([]uint64, error) {
	if n == 0 {
		return dst, nil
	}
	if i+n > s.len || i+n < i {
		return dst, fmt.Errorf("%w: range [%d, %d) of %d entries", ErrOutOfBounds, i, i+n, s.len)
	}
	// the last entry being in bounds implies the rest are
	if _, err := field(s.b, s.len, s.off, W48, i+n-1); err != nil {
		return dst, err
	}
	for j := i; j < i+n; j++ {
		start := s.off + W48*j
		dst = append(dst, Uint48(s.b[start:start+W48]))
	}
	return dst, nil
}

// U64Slice is a view of n 64-bit integers, like U48Slice.
type U64Slice struct {
	b   []byte
	len uint64 // length in number of elements
	off uint64 // offset in bytes of the start of this slice
}

func NewU64Slice(arena []byte, len, off uint64) *U64Slice {
	return &U64Slice{
		b:   arena,
		len: len,
		off: off,
	}
}

func (s *U64Slice) Len() uint64 {
	return s.len
}

func (s *U64Slice) Set(i, value uint64) error {
	buf, err := field(s.b, s.len, s.off, W64, i)
	if err != nil {
		return err
	}
	PutUint64(buf, value)
	return nil
}

func (s *U64Slice) Get(i uint64) (uint64, error) {
	buf, err := field(s.b, s.len, s.off, W64, i)
	if err != nil {
		return 0, err
	}
	return Uint64(buf), nil
}
