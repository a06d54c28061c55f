// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mmap provides Region, a file mapped into memory that can be
// grown (or shrunk) in place by unmapping, truncating and remapping it.
//
// A Region is owned by a single writer.  Nothing guards against two
// processes mapping the same file for writing; doing so is undefined.
package mmap

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/bpowers/slrdata/format"
	"github.com/bpowers/slrdata/internal/ondisk"
)

// Region is a read-only or read-write mapping of an entire slrdata file.
// The slice returned by Data is invalidated by Resize and Close, so
// callers hold offsets into the region, never slices.
type Region struct {
	f        *os.File
	data     []byte
	kind     format.Kind
	readonly bool
	path     string
	isClosed atomic.Bool
}

// Create creates a new file at path containing exactly header (which may
// include more than the header itself, e.g. a whole file built in
// memory) and maps it read-write.  The size field is set to len(header).
func Create(path string, header []byte) (*Region, error) {
	kind := format.KindOf(header)
	if err := format.Validate(header, kind); err != nil {
		return nil, fmt.Errorf("mmap.Create(%s): %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("mmap.Create(%s): %w", path, format.ErrAlreadyExists)
	} else if err != nil {
		return nil, fmt.Errorf("os.OpenFile(%s): %w", path, err)
	}

	if n, err := f.Write(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("f.Write: %w", err)
	} else if n != len(header) {
		_ = f.Close()
		return nil, fmt.Errorf("f.Write: short write of %d (wanted %d)", n, len(header))
	}

	r := &Region{
		f:    f,
		kind: kind,
		path: path,
	}
	if err := r.mapFile(uint64(len(header))); err != nil {
		_ = f.Close()
		return nil, err
	}
	r.putSize()

	return r, nil
}

// Open maps an existing file of the given kind.  The header is read and
// validated before anything is mapped, and the mapping covers exactly
// the size recorded in the header.
func Open(path string, readonly bool, kind format.Kind) (*Region, error) {
	flag := os.O_RDWR
	if readonly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("os.OpenFile(%s): %w", path, err)
	}

	r, err := open(f, readonly, kind)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap.Open(%s): %w", path, err)
	}
	return r, nil
}

func open(f *os.File, readonly bool, kind format.Kind) (*Region, error) {
	stats, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	minSize := format.MinHeaderSize(kind)
	if stats.Size() < int64(minSize) {
		return nil, fmt.Errorf("%w: %d < %d", format.ErrTooSmall, stats.Size(), minSize)
	}

	header := make([]byte, minSize)
	if n, err := f.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("f.ReadAt: %w", err)
	} else if n != minSize {
		return nil, fmt.Errorf("short read of %d header bytes", n)
	}
	// validate against the requested kind, then decode
	if err := format.Validate(header, kind); err != nil {
		return nil, err
	}
	var h format.Header
	if err := h.UnmarshalBytes(header); err != nil {
		return nil, err
	}

	size := h.Size
	if size > uint64(stats.Size()) {
		return nil, fmt.Errorf("%w: header records %d bytes but file has %d", format.ErrTooSmall, size, stats.Size())
	}
	if size < uint64(minSize) {
		return nil, fmt.Errorf("%w: header records size %d", format.ErrCorrupt, size)
	}

	r := &Region{
		f:        f,
		kind:     kind,
		readonly: readonly,
		path:     f.Name(),
	}
	if err := r.mapFile(size); err != nil {
		return nil, err
	}
	if readonly {
		if err := unix.Madvise(r.data, unix.MADV_RANDOM); err != nil {
			_ = unix.Munmap(r.data)
			return nil, fmt.Errorf("madvise: %w", err)
		}
	}
	return r, nil
}

func (r *Region) mapFile(size uint64) error {
	prot := unix.PROT_READ
	if !r.readonly {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(r.f.Fd()), 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap(%s, %d): %w", r.path, size, err)
	}
	r.data = data
	return nil
}

func (r *Region) putSize() {
	ondisk.PutUint64(r.data[format.SizeOffset(r.kind):], uint64(len(r.data)))
}

// Resize changes the length of the file and its mapping to newSize and
// records the new size in the header.  New bytes are not initialized.
func (r *Region) Resize(newSize uint64) error {
	if r.readonly {
		return fmt.Errorf("resize %s: %w", r.path, format.ErrReadOnly)
	}
	if newSize < uint64(format.MinHeaderSize(r.kind)) {
		return fmt.Errorf("resize %s: %d smaller than header", r.path, newSize)
	}
	if newSize > math.MaxInt {
		return fmt.Errorf("resize %s to %d: %w", r.path, newSize, format.ErrValueTooLarge)
	}
	oldSize := r.Size()

	if err := unix.Munmap(r.data); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	r.data = nil

	if err := r.f.Truncate(int64(newSize)); err != nil {
		// put the old mapping back so the region stays usable
		if mapErr := r.mapFile(oldSize); mapErr != nil {
			return errors.Join(fmt.Errorf("f.Truncate(%d): %w", newSize, err), mapErr)
		}
		return fmt.Errorf("f.Truncate(%d): %w", newSize, err)
	}
	if err := r.mapFile(newSize); err != nil {
		return err
	}
	r.putSize()

	return nil
}

// Grow extends the region by n bytes and returns the offset of the first
// new byte (the old size).
func (r *Region) Grow(n uint64) (off uint64, err error) {
	off = r.Size()
	if n > math.MaxUint64-off {
		return 0, fmt.Errorf("grow %s by %d: %w", r.path, n, format.ErrValueTooLarge)
	}
	if err := r.Resize(off + n); err != nil {
		return 0, err
	}
	return off, nil
}

// Slice returns the n bytes at off, or ErrCorrupt if they are not all
// inside the region.  The result is only valid until the next Resize.
func (r *Region) Slice(off, n uint64) ([]byte, error) {
	size := r.Size()
	if off > size || n > size-off {
		return nil, fmt.Errorf("%w: [%d, %d+%d) outside %s (%d bytes)", format.ErrCorrupt, off, off, n, r.path, size)
	}
	return r.data[off : off+n : off+n], nil
}

func (r *Region) Data() []byte {
	return r.data
}

func (r *Region) Size() uint64 {
	return uint64(len(r.data))
}

func (r *Region) Kind() format.Kind {
	return r.kind
}

func (r *Region) ReadOnly() bool {
	return r.readonly
}

func (r *Region) Path() string {
	return r.path
}

// Sync flushes the mapping to the underlying file.
func (r *Region) Sync() error {
	if r.readonly {
		return nil
	}
	if err := unix.Msync(r.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync(%s): %w", r.path, err)
	}
	return nil
}

// Close unmaps the region and closes the file.  Closing twice is a no-op.
func (r *Region) Close() error {
	if r.isClosed.Swap(true) {
		return nil
	}
	var errs []error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			errs = append(errs, fmt.Errorf("munmap: %w", err))
		}
		r.data = nil
	}
	if err := r.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("f.Close: %w", err))
	}
	return errors.Join(errs...)
}
