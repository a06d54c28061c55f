// Copyright 2021 The bit Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bitset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitset(t *testing.T) {
	b := New(128)

	require.Equal(t, 2, len(b.bits))
	require.Equal(t, uint64(128), b.Len())

	// should do nothing
	b.Set(132)

	zero := []uint64{0, 0}
	require.Equal(t, zero, b.bits)

	require.False(t, b.IsSet(7))
	b.Set(7)
	require.True(t, b.IsSet(7))
	b.Set(64)
	require.True(t, b.IsSet(64))
	b.Clear(7)
	require.False(t, b.IsSet(7))
	require.True(t, b.IsSet(64))
	b.Clear(64)
	require.Equal(t, zero, b.bits)

	for i := uint64(0); i < 128; i++ {
		b.Set(i)
	}

	full := []uint64{^uint64(0), ^uint64(0)}
	require.Equal(t, full, b.bits)

	// should do nothing
	b.Clear(137)
	require.Equal(t, full, b.bits)
	require.False(t, b.IsSet(137))
}

func TestBitset_OddLength(t *testing.T) {
	b := New(65)
	require.Equal(t, 2, len(b.bits))
	b.Set(64)
	require.True(t, b.IsSet(64))
	b.Set(65)
	require.False(t, b.IsSet(65))

	empty := New(0)
	require.Zero(t, len(empty.bits))
	empty.Set(0)
	require.False(t, empty.IsSet(0))
}
