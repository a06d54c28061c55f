// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package mmap

import (
	"fmt"

	"github.com/bpowers/slrdata/format"
	"github.com/bpowers/slrdata/internal/ondisk"
)

// List is an append-only list of fixed-size entries living in a Region,
// found through an 8-byte offset stored at OffsetField in the header.  On
// disk it is a 48-bit byte length, a 48-bit count and the packed entries.
//
// Appends extend the file.  A list that is not the last thing in the
// file is first moved to the tail; the bytes it leaves behind are dead.
type List struct {
	R           *Region
	OffsetField uint64
	EntrySize   uint64
}

// Offset is the list's position in the file, 0 if it doesn't exist yet.
func (l List) Offset() uint64 {
	return ondisk.Uint64(l.R.Data()[l.OffsetField:])
}

func (l List) header() (off, byteLen, count uint64, err error) {
	off = l.Offset()
	if off == 0 {
		return 0, 0, 0, nil
	}
	b, err := l.R.Slice(off, format.ListHeaderSize)
	if err != nil {
		return 0, 0, 0, err
	}
	byteLen = ondisk.Uint48(b)
	count = ondisk.Uint48(b[ondisk.W48:])
	if byteLen != count*l.EntrySize {
		return 0, 0, 0, fmt.Errorf("%w: list at %d has byte length %d for %d entries of %d bytes", format.ErrCorrupt, off, byteLen, count, l.EntrySize)
	}
	if _, err := l.R.Slice(off+format.ListHeaderSize, byteLen); err != nil {
		return 0, 0, 0, err
	}
	return off, byteLen, count, nil
}

// Count is the number of entries in the list (0 if it doesn't exist).
func (l List) Count() (uint64, error) {
	_, _, count, err := l.header()
	return count, err
}

// Entry returns the bytes of entry i.  The slice is invalidated by any
// later append.
func (l List) Entry(i uint64) ([]byte, error) {
	off, _, count, err := l.header()
	if err != nil {
		return nil, err
	}
	if i >= count {
		return nil, fmt.Errorf("%w: entry %d of %d", format.ErrIndexOutOfRange, i, count)
	}
	return l.R.Slice(off+format.ListHeaderSize+i*l.EntrySize, l.EntrySize)
}

// Payload returns all entries as one slice.
func (l List) Payload() ([]byte, error) {
	off, byteLen, _, err := l.header()
	if err != nil || off == 0 {
		return nil, err
	}
	return l.R.Slice(off+format.ListHeaderSize, byteLen)
}

// Append adds entry (len(entry) must be EntrySize) to the end of the list,
// creating the list if needed, and returns the new entry's index.
func (l List) Append(entry []byte) (uint64, error) {
	if uint64(len(entry)) != l.EntrySize {
		return 0, fmt.Errorf("entry is %d bytes, list holds %d-byte entries", len(entry), l.EntrySize)
	}
	off, byteLen, count, err := l.header()
	if err != nil {
		return 0, err
	}
	if !ondisk.Fits48(count+1) || !ondisk.Fits48(byteLen+l.EntrySize) {
		return 0, fmt.Errorf("list of %d entries: %w", count, format.ErrValueTooLarge)
	}

	switch {
	case off == 0:
		if off, err = l.R.Grow(format.ListHeaderSize + l.EntrySize); err != nil {
			return 0, err
		}
		ondisk.PutUint64(l.R.Data()[l.OffsetField:], off)
	case off+format.ListHeaderSize+byteLen != l.R.Size():
		newOff, err := l.R.Grow(format.ListHeaderSize + byteLen + l.EntrySize)
		if err != nil {
			return 0, err
		}
		data := l.R.Data()
		copy(data[newOff:newOff+format.ListHeaderSize+byteLen], data[off:off+format.ListHeaderSize+byteLen])
		ondisk.PutUint64(data[l.OffsetField:], newOff)
		off = newOff
	default:
		if _, err := l.R.Grow(l.EntrySize); err != nil {
			return 0, err
		}
	}

	data := l.R.Data()
	ondisk.PutUint48(data[off:], byteLen+l.EntrySize)
	ondisk.PutUint48(data[off+ondisk.W48:], count+1)
	copy(data[off+format.ListHeaderSize+byteLen:], entry)
	return count, nil
}
