// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package zero

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytes(t *testing.T) {
	for _, input := range [][]byte{
		{},
		{'a', 'b', 'c'},
		make([]byte, 4096),
	} {
		for i := range input {
			input[i] = byte(i + 1)
		}
		initialLen := len(input)
		initialCap := cap(input)
		// slices are zero'd by default
		expected := make([]byte, len(input))
		Bytes(input)
		require.Equal(t, expected, input)
		// len and cap should be unchanged
		require.Equal(t, initialLen, len(input))
		require.Equal(t, initialCap, cap(input))
	}
}

func TestBytes_Subslice(t *testing.T) {
	b := []byte("slrdata!")
	Bytes(b[3:7])
	require.Equal(t, []byte{'s', 'l', 'r', 0, 0, 0, 0, '!'}, b)
}
