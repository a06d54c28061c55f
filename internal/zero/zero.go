// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package zero provides functions to zero slices of specific types.
package zero

// Bytes zeroes b.  Newly grown parts of a file are zeroed with this
// before use so reserved-but-unused space has deterministic contents.
func Bytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
