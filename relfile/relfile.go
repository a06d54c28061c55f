// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package relfile

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/dgryski/go-farm"

	"github.com/bpowers/slrdata/format"
	"github.com/bpowers/slrdata/internal/mmap"
	"github.com/bpowers/slrdata/internal/ondisk"
)

// Option configures a File.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets an optional logger for index builds and compaction.
// If not provided, no logging output will be produced.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

func newOptions(opts []Option) options {
	var o options
	o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ElementCounter reports the size of the element universe; it is
// usually a *mainfile.File.
type ElementCounter interface {
	ElementCount() uint64
}

// File is an open relation file.
type File struct {
	r       *mmap.Region
	logger  *slog.Logger
	scratch []byte
}

// Create creates an empty relation file at path.  Its arity is set by
// the first tuple added.
func Create(path string, opts ...Option) (*File, error) {
	o := newOptions(opts)
	r, err := mmap.Create(path, format.NewHeader(format.Relation).Bytes())
	if err != nil {
		return nil, err
	}
	return &File{r: r, logger: o.logger}, nil
}

// Open opens an existing relation file, checking that its tuple list and
// element index lie inside the file.
func Open(path string, readonly bool, opts ...Option) (*File, error) {
	o := newOptions(opts)
	r, err := mmap.Open(path, readonly, format.Relation)
	if err != nil {
		return nil, err
	}
	f := &File{r: r, logger: o.logger}
	if err := f.checkStructure(); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("relfile.Open(%s): %w", path, err)
	}
	return f, nil
}

func (f *File) checkStructure() error {
	if !ondisk.Fits48(f.Arity() * ondisk.W48) {
		return fmt.Errorf("%w: arity %d", format.ErrCorrupt, f.Arity())
	}
	if _, err := f.tupleList().Count(); err != nil {
		return err
	}
	_, _, err := f.index()
	return err
}

func (f *File) header(off uint64) uint64 {
	return ondisk.Uint64(f.r.Data()[off:])
}

func (f *File) setHeader(off, v uint64) {
	ondisk.PutUint64(f.r.Data()[off:], v)
}

// Arity is the number of elements in every tuple, 0 before the first
// tuple is added.
func (f *File) Arity() uint64 {
	return ondisk.Uint48(f.r.Data()[format.RelationArityOff:])
}

func (f *File) tupleList() mmap.List {
	return mmap.List{
		R:           f.r,
		OffsetField: format.RelationTupleListOff,
		EntrySize:   f.Arity() * ondisk.W48,
	}
}

// TupleCount is the number of tuples in the relation.
func (f *File) TupleCount() uint64 {
	n, _ := f.tupleList().Count()
	return n
}

// index returns the element index's offset (0 if the relation has not
// been indexed) and the number of elements it covers.
func (f *File) index() (off, count uint64, err error) {
	off = f.header(format.RelationElementIdxOff)
	if off == 0 {
		return 0, 0, nil
	}
	b, err := f.r.Slice(off, format.ListHeaderSize)
	if err != nil {
		return 0, 0, err
	}
	byteLen := ondisk.Uint48(b)
	count = ondisk.Uint48(b[ondisk.W48:])
	if byteLen != count*ondisk.W64 {
		return 0, 0, fmt.Errorf("%w: element index has byte length %d for %d elements", format.ErrCorrupt, byteLen, count)
	}
	if _, err := f.r.Slice(off+format.ListHeaderSize, byteLen); err != nil {
		return 0, 0, err
	}
	return off, count, nil
}

// Indexed reports whether incidence lists have been built.
func (f *File) Indexed() bool {
	return f.header(format.RelationElementIdxOff) != 0
}

// ElementCount is the number of elements covered by the incidence
// index, 0 if the relation has not been indexed.
func (f *File) ElementCount() uint64 {
	_, n, _ := f.index()
	return n
}

// listHeader is a view of a list's byte length and count.
func listHeader(data []byte, off uint64) *ondisk.U48Slice {
	return ondisk.NewU48Slice(data, 2, off)
}

// slots is a view of the element index's incidence list offsets, nil if
// the relation has not been indexed.
func (f *File) slots() (*ondisk.U64Slice, error) {
	off, n, err := f.index()
	if err != nil || off == 0 {
		return nil, err
	}
	return ondisk.NewU64Slice(f.r.Data(), n, off+format.ListHeaderSize), nil
}

// incidence locates the incidence list of element e: the offset of the
// list, its reserved capacity in bytes and its degree.
func (f *File) incidence(e uint64) (listOff, capBytes, degree uint64, err error) {
	slots, err := f.slots()
	if err != nil {
		return 0, 0, 0, err
	}
	if slots == nil {
		return 0, 0, 0, format.ErrNotIndexed
	}
	if e >= slots.Len() {
		return 0, 0, 0, fmt.Errorf("%w: element %d (relation covers %d)", format.ErrIndexOutOfRange, e, slots.Len())
	}
	if listOff, err = slots.Get(e); err != nil {
		return 0, 0, 0, err
	}
	h := listHeader(f.r.Data(), listOff)
	if capBytes, err = h.Get(0); err != nil {
		return 0, 0, 0, err
	}
	if degree, err = h.Get(1); err != nil {
		return 0, 0, 0, err
	}
	if degree*ondisk.W48 > capBytes {
		return 0, 0, 0, fmt.Errorf("%w: element %d has degree %d but room for %d", format.ErrCorrupt, e, degree, capBytes/ondisk.W48)
	}
	if _, err := f.r.Slice(listOff+format.ListHeaderSize, capBytes); err != nil {
		return 0, 0, 0, err
	}
	return listOff, capBytes, degree, nil
}

// Degree is the number of tuples containing element e.
func (f *File) Degree(e uint64) (uint64, error) {
	_, _, degree, err := f.incidence(e)
	return degree, err
}

// Capacity is the number of entries reserved for element e's incidence
// list.  It is never less than Degree(e).
func (f *File) Capacity(e uint64) (uint64, error) {
	_, capBytes, _, err := f.incidence(e)
	return capBytes / ondisk.W48, err
}

// AppendTuple appends the element ids of tuple i to dst.
func (f *File) AppendTuple(dst []uint64, i uint64) ([]uint64, error) {
	l := f.tupleList()
	count, err := l.Count()
	if err != nil {
		return dst, err
	}
	if i >= count {
		return dst, fmt.Errorf("%w: tuple %d of %d", format.ErrIndexOutOfRange, i, count)
	}
	return ondisk.NewU48Slice(f.r.Data(), f.Arity(), l.Offset()+format.ListHeaderSize+i*l.EntrySize).AppendTo(dst, 0, f.Arity())
}

// Tuple returns the element ids of tuple i.
func (f *File) Tuple(i uint64) ([]uint64, error) {
	return f.AppendTuple(make([]uint64, 0, f.Arity()), i)
}

// IncidentTupleIndex returns the index of the i-th tuple containing e,
// in the order the tuples were indexed.
func (f *File) IncidentTupleIndex(e, i uint64) (uint64, error) {
	listOff, _, degree, err := f.incidence(e)
	if err != nil {
		return 0, err
	}
	if i >= degree {
		return 0, fmt.Errorf("%w: incident tuple %d of element %d (degree %d)", format.ErrIndexOutOfRange, i, e, degree)
	}
	return ondisk.NewU48Slice(f.r.Data(), degree, listOff+format.ListHeaderSize).Get(i)
}

// IncidentTuple returns the i-th tuple containing e.
func (f *File) IncidentTuple(e, i uint64) ([]uint64, error) {
	t, err := f.IncidentTupleIndex(e, i)
	if err != nil {
		return nil, err
	}
	return f.Tuple(t)
}

// IncidentTupleIndexes returns the indexes of every tuple containing e.
func (f *File) IncidentTupleIndexes(e uint64) ([]uint64, error) {
	listOff, _, degree, err := f.incidence(e)
	if err != nil {
		return nil, err
	}
	return ondisk.NewU48Slice(f.r.Data(), degree, listOff+format.ListHeaderSize).AppendTo(make([]uint64, 0, degree), 0, degree)
}

// Fingerprint hashes the tuple list payload.  It is unchanged by
// indexing and compaction.
func (f *File) Fingerprint() (uint64, error) {
	payload, err := f.tupleList().Payload()
	if err != nil {
		return 0, err
	}
	return farm.Fingerprint64(payload), nil
}

// TupleItem is a tuple and its position in the relation.
type TupleItem struct {
	Index    uint64
	Elements []uint64
}

// TupleIter iterates over the tuples of a relation in insertion order.
type TupleIter struct {
	f   *File
	off uint64
	err error
}

// Tuples returns an iterator over all tuples.
func (f *File) Tuples() *TupleIter {
	return &TupleIter{f: f}
}

// Next returns the next tuple, or false once every tuple has been seen
// or an error occurred (see Err).
func (it *TupleIter) Next() (TupleItem, bool) {
	if it.err != nil || it.off >= it.f.TupleCount() {
		return TupleItem{}, false
	}
	elements, err := it.f.Tuple(it.off)
	if err != nil {
		it.err = err
		return TupleItem{}, false
	}
	item := TupleItem{Index: it.off, Elements: elements}
	it.off++
	return item, true
}

// Err returns the error that stopped iteration, if any.
func (it *TupleIter) Err() error {
	return it.err
}

func (f *File) Size() uint64 {
	return f.r.Size()
}

func (f *File) Path() string {
	return f.r.Path()
}

func (f *File) ReadOnly() bool {
	return f.r.ReadOnly()
}

// Sync flushes pending writes to disk.
func (f *File) Sync() error {
	return f.r.Sync()
}

func (f *File) Close() error {
	return f.r.Close()
}
