// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package relfile

import (
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpowers/slrdata/format"
	"github.com/bpowers/slrdata/internal/ondisk"
)

// universe is an ElementCounter with a fixed number of elements.
type universe uint64

func (u universe) ElementCount() uint64 {
	return uint64(u)
}

func newTestRelation(t *testing.T) (*File, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "R.slrrel")
	f, err := Create(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = f.Close()
	})
	return f, path
}

// checkSize asserts the file's size, its header and its length on disk agree.
func checkSize(t *testing.T, f *File) {
	t.Helper()
	stats, err := os.Stat(f.Path())
	require.NoError(t, err)
	require.Equal(t, uint64(stats.Size()), f.Size())
	require.Equal(t, f.Size(), ondisk.Uint64(f.r.Data()[format.SizeOffset(format.Relation):]))
}

func randomTuples(seed int64, count, arity, elements int) [][]uint64 {
	rng := rand.New(rand.NewSource(seed))
	tuples := make([][]uint64, count)
	for i := range tuples {
		tuples[i] = make([]uint64, arity)
		for j := range tuples[i] {
			tuples[i][j] = uint64(rng.Intn(elements))
		}
	}
	return tuples
}

// expectedIncidence computes, in memory, which tuples contain each element.
func expectedIncidence(tuples [][]uint64, elements int) (lists [][]uint64, maxDegree uint64) {
	lists = make([][]uint64, elements)
	for i, tuple := range tuples {
		for _, e := range distinct(nil, tuple) {
			lists[e] = append(lists[e], uint64(i))
		}
	}
	for _, l := range lists {
		if uint64(len(l)) > maxDegree {
			maxDegree = uint64(len(l))
		}
	}
	return lists, maxDegree
}

func sorted(s []uint64) []uint64 {
	s = append([]uint64(nil), s...)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	return s
}

// checkIncidence asserts that, for every element, the tuples reachable
// through its incidence list are exactly the tuples containing it.
func checkIncidence(t *testing.T, f *File, tuples [][]uint64, lists [][]uint64) {
	t.Helper()
	require.Equal(t, uint64(len(tuples)), f.TupleCount())
	for i, expected := range tuples {
		actual, err := f.Tuple(uint64(i))
		require.NoError(t, err)
		require.Equal(t, expected, actual)
	}
	require.Equal(t, uint64(len(lists)), f.ElementCount())
	for e, expected := range lists {
		degree, err := f.Degree(uint64(e))
		require.NoError(t, err)
		require.Equal(t, uint64(len(expected)), degree, "element %d", e)

		var actual []uint64
		for i := uint64(0); i < degree; i++ {
			idx, err := f.IncidentTupleIndex(uint64(e), i)
			require.NoError(t, err)
			tuple, err := f.IncidentTuple(uint64(e), i)
			require.NoError(t, err)
			require.Equal(t, tuples[idx], tuple)
			require.Contains(t, tuple, uint64(e))
			actual = append(actual, idx)
		}
		require.Equal(t, sorted(expected), sorted(actual), "element %d", e)

		_, err = f.IncidentTuple(uint64(e), degree)
		require.ErrorIs(t, err, format.ErrIndexOutOfRange)
	}
	require.NoError(t, f.Verify())
}

func TestScenario_Triangle(t *testing.T) {
	f, path := newTestRelation(t)
	require.Zero(t, f.Arity())
	require.Zero(t, f.TupleCount())
	require.False(t, f.Indexed())

	for i, tuple := range [][]uint64{{0, 1}, {1, 2}, {0, 2}} {
		idx, err := f.AddTuple(tuple)
		require.NoError(t, err)
		require.Equal(t, uint64(i), idx)
		checkSize(t, f)
	}
	require.Equal(t, uint64(2), f.Arity())
	// the first tuple list starts right after the header
	require.Equal(t, uint64(format.RelationHeaderSize), f.tupleList().Offset())
	require.Equal(t, uint64(format.RelationHeaderSize+format.ListHeaderSize+3*2*6), f.Size())

	require.NoError(t, f.AddIncidenceLists(universe(3), 2, 4))
	checkSize(t, f)
	require.True(t, f.Indexed())

	for e := uint64(0); e < 3; e++ {
		degree, err := f.Degree(e)
		require.NoError(t, err)
		require.Equal(t, uint64(2), degree)
	}
	tuple, err := f.IncidentTuple(0, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1}, tuple)
	tuple, err = f.IncidentTuple(0, 1)
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 2}, tuple)
	_, err = f.IncidentTuple(0, 2)
	require.ErrorIs(t, err, format.ErrIndexOutOfRange)

	// survives a close and reopen
	require.NoError(t, f.Close())
	f, err = Open(path, true)
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()
	checkIncidence(t, f, [][]uint64{{0, 1}, {1, 2}, {0, 2}}, [][]uint64{{0, 2}, {0, 1}, {1, 2}})
}

func TestAddTuple_Errors(t *testing.T) {
	f, path := newTestRelation(t)

	_, err := f.AddTuple([]uint64{1, 2, 3})
	require.NoError(t, err)
	_, err = f.AddTuple([]uint64{1, 2})
	require.ErrorIs(t, err, format.ErrArityMismatch)
	_, err = f.AddTuple([]uint64{1, 2, ondisk.Max48 + 1})
	require.ErrorIs(t, err, format.ErrValueTooLarge)
	require.Equal(t, uint64(1), f.TupleCount())

	_, err = f.Tuple(1)
	require.ErrorIs(t, err, format.ErrIndexOutOfRange)
	_, err = f.Degree(0)
	require.ErrorIs(t, err, format.ErrNotIndexed)
	_, err = f.AddIndexedTuple([]uint64{1, 2, 3}, 1, 10)
	require.ErrorIs(t, err, format.ErrNotIndexed)

	// the universe must cover every element used
	err = f.AddIncidenceLists(universe(3), 2, 10)
	require.ErrorIs(t, err, format.ErrIndexOutOfRange)
	require.False(t, f.Indexed())

	err = f.AddIncidenceLists(universe(4), 0, 10)
	require.Error(t, err)

	require.NoError(t, f.AddIncidenceLists(universe(4), 2, 10))
	err = f.AddIncidenceLists(universe(4), 2, 10)
	require.ErrorIs(t, err, format.ErrAlreadyIndexed)
	_, err = f.AddTuple([]uint64{1, 2, 3})
	require.ErrorIs(t, err, format.ErrAlreadyIndexed)
	_, err = f.Degree(4)
	require.ErrorIs(t, err, format.ErrIndexOutOfRange)

	require.NoError(t, f.Close())
	f, err = Open(path, true)
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()
	_, err = f.AddIndexedTuple([]uint64{1, 2, 3}, 1, 10)
	require.ErrorIs(t, err, format.ErrReadOnly)
	require.ErrorIs(t, f.Compact(), format.ErrReadOnly)
}

func TestAddTuple_ZeroArity(t *testing.T) {
	f, _ := newTestRelation(t)
	for i := uint64(0); i < 3; i++ {
		idx, err := f.AddTuple(nil)
		require.NoError(t, err)
		require.Equal(t, i, idx)
	}
	require.Equal(t, uint64(3), f.TupleCount())
	tuple, err := f.Tuple(2)
	require.NoError(t, err)
	require.Empty(t, tuple)
	require.NoError(t, f.AddIncidenceLists(universe(2), 1, 1))
	require.NoError(t, f.Verify())
}

func TestAddIncidenceLists_Relocation(t *testing.T) {
	const elements = 20
	tuples := randomTuples(1, 500, 3, elements)
	lists, maxDegree := expectedIncidence(tuples, elements)

	f, _ := newTestRelation(t)
	for _, tuple := range tuples {
		_, err := f.AddTuple(tuple)
		require.NoError(t, err)
	}
	sizeBefore := f.Size()

	// a normDegree of 4 forces plenty of relocations
	require.NoError(t, f.AddIncidenceLists(universe(elements), 4, maxDegree))
	checkSize(t, f)
	checkIncidence(t, f, tuples, lists)

	var live uint64
	for e := uint64(0); e < elements; e++ {
		degree, err := f.Degree(e)
		require.NoError(t, err)
		capacity, err := f.Capacity(e)
		require.NoError(t, err)
		require.GreaterOrEqual(t, capacity, degree)
		// capacity only ever grows in steps of normDegree
		require.Zero(t, capacity%4)
		live += format.ListHeaderSize + capacity*ondisk.W48
	}
	// relocated lists leave dead space behind
	require.Greater(t, f.Size()-sizeBefore, format.ListHeaderSize+elements*ondisk.W64+live)
}

func TestAddIncidenceLists_DegreeBound(t *testing.T) {
	const elements = 10
	tuples := randomTuples(2, 200, 4, elements)
	_, maxDegree := expectedIncidence(tuples, elements)

	for _, tc := range []struct {
		maxDegree uint64
		fails     bool
	}{
		{maxDegree - 1, true},
		{maxDegree, false},
		{maxDegree + 10, false},
	} {
		f, _ := newTestRelation(t)
		for _, tuple := range tuples {
			_, err := f.AddTuple(tuple)
			require.NoError(t, err)
		}
		err := f.AddIncidenceLists(universe(elements), 3, tc.maxDegree)
		if tc.fails {
			require.ErrorIs(t, err, format.ErrCapacityExceeded, "maxDegree %d", tc.maxDegree)
		} else {
			require.NoError(t, err, "maxDegree %d", tc.maxDegree)
			require.NoError(t, f.Verify())
		}
	}
}

func TestAddIncidenceLists_IndexTooLarge(t *testing.T) {
	f, _ := newTestRelation(t)
	_, err := f.AddTuple([]uint64{0})
	require.NoError(t, err)
	size := f.Size()

	for _, tc := range []struct {
		elements   uint64
		normDegree uint64
	}{
		// n*listSize wraps around to a small number
		{1 << 18, 1<<45 - 2},
		{1 << 60, 1},
		{ondisk.Max48/ondisk.W64 + 1, 1},
	} {
		err := f.AddIncidenceLists(universe(tc.elements), tc.normDegree, 10)
		require.ErrorIs(t, err, format.ErrValueTooLarge, "%d elements, normDegree %d", tc.elements, tc.normDegree)
		require.False(t, f.Indexed())
		require.Equal(t, size, f.Size())
		checkSize(t, f)
	}
	require.NoError(t, f.AddIncidenceLists(universe(1), 1, 10))
	require.NoError(t, f.Verify())
}

func TestAddIndexedTuple(t *testing.T) {
	const elements = 8
	tuples := randomTuples(3, 100, 2, elements)
	// repeated elements in one tuple are only indexed once
	tuples = append(tuples, []uint64{5, 5})

	f, _ := newTestRelation(t)
	for _, tuple := range tuples[:10] {
		_, err := f.AddTuple(tuple)
		require.NoError(t, err)
	}
	require.NoError(t, f.AddIncidenceLists(universe(elements), 2, 1000))
	for i, tuple := range tuples[10:] {
		idx, err := f.AddIndexedTuple(tuple, 2, 1000)
		require.NoError(t, err)
		require.Equal(t, uint64(10+i), idx)
		checkSize(t, f)
	}
	lists, _ := expectedIncidence(tuples, elements)
	checkIncidence(t, f, tuples, lists)

	degree, err := f.Degree(5)
	require.NoError(t, err)
	last, err := f.IncidentTuple(5, degree-1)
	require.NoError(t, err)
	require.Equal(t, []uint64{5, 5}, last)

	// nothing is written when the degree check fails
	count := f.TupleCount()
	_, err = f.AddIndexedTuple([]uint64{5, 1}, 2, degree)
	require.ErrorIs(t, err, format.ErrCapacityExceeded)
	require.Equal(t, count, f.TupleCount())

	_, err = f.AddIndexedTuple([]uint64{elements, 1}, 2, 1000)
	require.ErrorIs(t, err, format.ErrIndexOutOfRange)
	require.Equal(t, count, f.TupleCount())
	require.NoError(t, f.Verify())
}

func TestCompact(t *testing.T) {
	const elements = 30
	tuples := randomTuples(4, 1000, 3, elements)
	lists, maxDegree := expectedIncidence(tuples, elements)

	f, path := newTestRelation(t)
	for _, tuple := range tuples {
		_, err := f.AddTuple(tuple)
		require.NoError(t, err)
	}
	require.NoError(t, f.AddIncidenceLists(universe(elements), 5, maxDegree))
	fingerprint, err := f.Fingerprint()
	require.NoError(t, err)
	before := f.Size()

	require.NoError(t, f.Compact())
	checkSize(t, f)
	require.Less(t, f.Size(), before)
	_, err = os.Stat(path + CompactSuffix)
	require.True(t, os.IsNotExist(err))

	checkIncidence(t, f, tuples, lists)
	after, err := f.Fingerprint()
	require.NoError(t, err)
	require.Equal(t, fingerprint, after)

	var expectedSize uint64 = format.RelationHeaderSize + format.ListHeaderSize + uint64(len(tuples))*3*ondisk.W48 +
		format.ListHeaderSize + elements*ondisk.W64
	for e := uint64(0); e < elements; e++ {
		degree, err := f.Degree(e)
		require.NoError(t, err)
		capacity, err := f.Capacity(e)
		require.NoError(t, err)
		require.Equal(t, degree, capacity, "element %d has slack", e)
		expectedSize += format.ListHeaderSize + degree*ondisk.W48
	}
	require.Equal(t, expectedSize, f.Size())

	// compacting a compacted file changes nothing
	require.NoError(t, f.Compact())
	require.Equal(t, expectedSize, f.Size())

	// the compacted file keeps growing like any other
	_, err = f.AddIndexedTuple([]uint64{0, 1, 2}, 5, maxDegree+1)
	require.NoError(t, err)
	tuples = append(tuples, []uint64{0, 1, 2})
	lists, _ = expectedIncidence(tuples, elements)
	checkIncidence(t, f, tuples, lists)

	require.NoError(t, f.Close())
	f, err = Open(path, false)
	require.NoError(t, err)
	checkIncidence(t, f, tuples, lists)

	// a stale sibling from an interrupted compaction is not overwritten
	require.NoError(t, os.WriteFile(path+CompactSuffix, []byte("stale"), 0644))
	require.ErrorIs(t, f.Compact(), format.ErrAlreadyExists)
	checkIncidence(t, f, tuples, lists)
	require.NoError(t, f.Close())
}

func TestCompact_Unindexed(t *testing.T) {
	f, _ := newTestRelation(t)
	require.NoError(t, f.Compact())
	require.Equal(t, uint64(format.RelationHeaderSize), f.Size())

	tuples := randomTuples(5, 50, 2, 5)
	for _, tuple := range tuples {
		_, err := f.AddTuple(tuple)
		require.NoError(t, err)
	}
	require.NoError(t, f.Compact())
	require.False(t, f.Indexed())
	require.Equal(t, uint64(2), f.Arity())
	for i, expected := range tuples {
		actual, err := f.Tuple(uint64(i))
		require.NoError(t, err)
		require.Equal(t, expected, actual)
	}
}

func TestCreateDense(t *testing.T) {
	const elements = 12
	tuples := randomTuples(6, 300, 3, elements)
	lists, maxDegree := expectedIncidence(tuples, elements)
	dir := t.TempDir()

	dense, err := CreateDense(filepath.Join(dir, "dense.slrrel"), 3, tuples, elements)
	require.NoError(t, err)
	defer func() {
		_ = dense.Close()
	}()
	checkSize(t, dense)
	checkIncidence(t, dense, tuples, lists)

	// built incrementally and compacted, the file is byte-for-byte the same
	f, err := Create(filepath.Join(dir, "incremental.slrrel"))
	require.NoError(t, err)
	defer func() {
		_ = f.Close()
	}()
	for _, tuple := range tuples {
		_, err := f.AddTuple(tuple)
		require.NoError(t, err)
	}
	require.NoError(t, f.AddIncidenceLists(universe(elements), 1, maxDegree))
	require.NoError(t, f.Compact())
	require.Equal(t, dense.r.Data(), f.r.Data())

	_, err = CreateDense(filepath.Join(dir, "bad-arity.slrrel"), 2, tuples, elements)
	require.ErrorIs(t, err, format.ErrArityMismatch)
	_, err = CreateDense(filepath.Join(dir, "bad-element.slrrel"), 3, tuples, elements-1)
	require.ErrorIs(t, err, format.ErrIndexOutOfRange)
	_, err = CreateDense(filepath.Join(dir, "dense.slrrel"), 3, tuples, elements)
	require.ErrorIs(t, err, format.ErrAlreadyExists)
}

func TestTuples_Iter(t *testing.T) {
	tuples := randomTuples(7, 25, 4, 9)
	f, _ := newTestRelation(t)
	for _, tuple := range tuples {
		_, err := f.AddTuple(tuple)
		require.NoError(t, err)
	}

	i := 0
	it := f.Tuples()
	for item, ok := it.Next(); ok; item, ok = it.Next() {
		assert.Equal(t, uint64(i), item.Index)
		assert.Equal(t, tuples[i], item.Elements)
		i++
	}
	require.NoError(t, it.Err())
	require.Equal(t, len(tuples), i)
}

func TestVerify_DetectsCorruption(t *testing.T) {
	f, _ := newTestRelation(t)
	for _, tuple := range [][]uint64{{0, 1}, {1, 2}, {0, 2}} {
		_, err := f.AddTuple(tuple)
		require.NoError(t, err)
	}
	require.NoError(t, f.AddIncidenceLists(universe(3), 2, 4))
	require.NoError(t, f.Verify())

	listOff, _, _, err := f.incidence(0)
	require.NoError(t, err)
	entry := f.r.Data()[listOff+format.ListHeaderSize:]

	// element 0's first entry now names (1,2), which doesn't contain 0
	ondisk.PutUint48(entry, 1)
	require.ErrorIs(t, f.Verify(), format.ErrCorrupt)

	// a duplicate entry
	ondisk.PutUint48(entry, 2)
	require.ErrorIs(t, f.Verify(), format.ErrCorrupt)

	// an entry past the end of the tuple list
	ondisk.PutUint48(entry, 3)
	require.ErrorIs(t, f.Verify(), format.ErrCorrupt)

	// restored
	ondisk.PutUint48(entry, 0)
	require.NoError(t, f.Verify())

	// a dropped entry
	ondisk.PutUint48(f.r.Data()[listOff+ondisk.W48:], 1)
	require.ErrorIs(t, f.Verify(), format.ErrCorrupt)
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.slrrel"), true)
	require.ErrorIs(t, err, format.ErrNotFound)

	bad := filepath.Join(dir, "bad.slrrel")
	h := format.NewHeader(format.Relation).Bytes()
	copy(h, "SLRDATA")
	require.NoError(t, os.WriteFile(bad, h, 0644))
	_, err = Open(bad, true)
	require.ErrorIs(t, err, format.ErrBadMagic)

	// a main file isn't a relation file
	mainHeader := format.NewHeader(format.Main)
	mainHeader.Size = 64
	b := append(mainHeader.Bytes(), make([]byte, 24)...)
	path := filepath.Join(dir, "main.slrdata")
	require.NoError(t, os.WriteFile(path, b, 0644))
	_, err = Open(path, true)
	require.ErrorIs(t, err, format.ErrBadMagic)

	// the tuple list offset points outside the file
	h = format.NewHeader(format.Relation).Bytes()
	ondisk.PutUint64(h[format.RelationTupleListOff:], 4096)
	ondisk.PutUint48(h[format.RelationArityOff:], 2)
	path = filepath.Join(dir, "dangling.slrrel")
	require.NoError(t, os.WriteFile(path, h, 0644))
	_, err = Open(path, true)
	require.ErrorIs(t, err, format.ErrCorrupt)

	empty := filepath.Join(dir, "empty.slrrel")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = Open(empty, true)
	require.ErrorIs(t, err, format.ErrTooSmall)
}
