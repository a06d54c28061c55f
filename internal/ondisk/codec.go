// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package ondisk reads and writes the packed little-endian integer
// fields slrdata files are made of.  Fields are not aligned.
package ondisk

const (
	// W48 is the width of counts, ids, list byte-lengths and tuple payload.
	W48 = 6
	// W64 is the width of absolute offsets, file sizes and versions.
	W64 = 8

	// Max48 is the largest value a W48 field can hold.
	Max48 = (1 << 48) - 1
)

// PutUint writes the low width*8 bits of v into dst as little-endian.
// Higher bits are dropped without error; callers that care check Fits48
// first.  dst must be at least width bytes long.
func PutUint(width int, dst []byte, v uint64) {
	_ = dst[width-1]
	for i := 0; i < width; i++ {
		dst[i] = byte(v >> (8 * i))
	}
}

// Uint reads a width-byte little-endian unsigned integer from src.
func Uint(width int, src []byte) uint64 {
	_ = src[width-1]
	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(src[i]) << (8 * i)
	}
	return v
}

// PutUint48 is PutUint(W48, dst, v).
func PutUint48(dst []byte, v uint64) {
	PutUint(W48, dst, v)
}

// Uint48 is Uint(W48, src).
func Uint48(src []byte) uint64 {
	return Uint(W48, src)
}

// PutUint64 is PutUint(W64, dst, v).
func PutUint64(dst []byte, v uint64) {
	PutUint(W64, dst, v)
}

// Uint64 is Uint(W64, src).
func Uint64(src []byte) uint64 {
	return Uint(W64, src)
}

// Fits48 reports whether v can be stored in a W48 field without truncation.
func Fits48(v uint64) bool {
	return v <= Max48
}
