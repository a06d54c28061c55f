// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bitset

// Bitset is an in-memory bitmap that is conceptually similar to []bool, but more memory efficient.
// Offsets at or past the length are ignored by Set and Clear and read as unset.
type Bitset struct {
	bits   []uint64
	length uint64
}

func getOffsets(off uint64) (sliceOff uint64, bitOff uint64) {
	return off / 64, off % 64
}

// Set sets the bit at position `off` to 1.
func (b *Bitset) Set(off uint64) {
	if off >= b.length {
		return
	}
	sliceOff, bitOff := getOffsets(off)
	b.bits[sliceOff] |= 1 << bitOff
}

// Clear sets the bit at position `off` to 0.
func (b *Bitset) Clear(off uint64) {
	if off >= b.length {
		return
	}
	sliceOff, bitOff := getOffsets(off)
	b.bits[sliceOff] &^= 1 << bitOff
}

// IsSet returns true if the bit at position `off` is 1.
func (b *Bitset) IsSet(off uint64) bool {
	if off >= b.length {
		return false
	}
	sliceOff, bitOff := getOffsets(off)
	return b.bits[sliceOff]&(1<<bitOff) != 0
}

// Len is the number of bits in the set.
func (b *Bitset) Len() uint64 {
	return b.length
}

// New returns a new in-memory bitset where you can set, clear and test for individual bits.
func New(length uint64) *Bitset {
	return &Bitset{
		bits:   make([]uint64, (length+63)/64),
		length: length,
	}
}
