// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package format

import (
	"errors"
	"io/fs"

	"github.com/bpowers/slrdata/internal/ondisk"
)

// Errors returned (wrapped) by the slrdata packages.  Use errors.Is to
// test for them.  OS-level failures are wrapped unchanged.
var (
	ErrAlreadyExists = errors.New("file already exists")
	ErrNotFound      = fs.ErrNotExist
	ErrTooSmall      = errors.New("file too small")
	ErrBadMagic      = errors.New("bad magic number -- not an slrdata file or corrupted")
	ErrBadVersion    = errors.New("unsupported format version")
	ErrCorrupt       = ondisk.ErrOutOfBounds

	ErrCapacityExceeded = errors.New("degree exceeds max degree")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrValueTooLarge    = ondisk.ErrTooLarge
	ErrReadOnly         = errors.New("file opened read-only")
	ErrArityMismatch    = errors.New("tuple arity does not match relation arity")
	ErrNotIndexed       = errors.New("relation has no incidence lists")
	ErrAlreadyIndexed   = errors.New("relation already has incidence lists")
)
