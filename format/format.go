// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package format describes the slrdata on-disk headers.
//
// Every slrdata file starts with a header recognized by a magic prefix.
// There are two kinds of file: the main file, which holds the element
// list and the relation catalog, and relation files, which hold the
// tuples of a single relation plus its incidence index.
//
// Main file header (40 bytes):
//
//	 0    1    2    3    4    5    6    7
//	+----+----+----+----+----+----+----+----+
//	| 's'  'l'  'r'  'd'  'a'  't'  'a'| 0  |
//	+----+----+----+----+----+----+----+----+
//	| format version (1)                    |
//	+----+----+----+----+----+----+----+----+
//	| file size                             |
//	+----+----+----+----+----+----+----+----+
//	| element list offset                   |
//	+----+----+----+----+----+----+----+----+
//	| relation list offset                  |
//	+----+----+----+----+----+----+----+----+
//
// Relation file header (54 bytes):
//
//	+----+----+----+----+----+----+----+----+
//	| "slrdatarelation\x00"                 |
//	|                                       |
//	+----+----+----+----+----+----+----+----+
//	| format version (1)                    |
//	+----+----+----+----+----+----+----+----+
//	| file size                             |
//	+----+----+----+----+----+----+----+----+
//	| tuple list offset                     |
//	+----+----+----+----+----+----+----+----+
//	| element index offset                  |
//	+----+----+----+----+----+----+----+----+
//	| arity                       |
//	+----+----+----+----+----+----+
//
// All integers are little-endian and packed.  An offset of 0 means the
// list has not been created yet.  Lists are a 12-byte list header
// (48-bit byte length, 48-bit entry count) followed by the entries:
//
//	elementList:   byteLen | count | id(6) * count
//	relationList:  byteLen | count | id(6) * count
//	tupleList:     byteLen | count | (elementID(6) * arity) * count
//	elementIndex:  byteLen | count | incidenceListOffset(8) * count
//	incidenceList: byteLen | degree | tupleIndex(6) * degree
//
// For incidence lists byteLen is the reserved capacity, which can exceed
// degree*6.
package format

import (
	"bytes"
	"fmt"

	"github.com/bpowers/slrdata/internal/ondisk"
)

// Kind identifies which of the two slrdata file types a header belongs to.
type Kind int

const (
	Main Kind = iota
	Relation
)

func (k Kind) String() string {
	switch k {
	case Main:
		return "main"
	case Relation:
		return "relation"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

const (
	Version = 1

	magic         = "slrdata"
	relationMagic = "relation"

	// ListHeaderSize is the byte length + count prefix of every list.
	ListHeaderSize = 2 * ondisk.W48

	// main file header
	mainVersionOff     = 8
	mainSizeOff        = 16
	MainElementListOff = 24
	MainRelationsOff   = 32
	MainHeaderSize     = 40

	// relation file header
	relVersionOff         = 16
	relSizeOff            = 24
	RelationTupleListOff  = 32
	RelationElementIdxOff = 40
	RelationArityOff      = 48
	RelationHeaderSize    = RelationArityOff + ondisk.W48
)

// KindOf reports the kind of file b is the header of, by looking for the
// "relation" fragment following the common magic prefix.  It does not
// validate the header.
func KindOf(b []byte) Kind {
	if len(b) >= len(magic)+len(relationMagic) &&
		bytes.Equal(b[len(magic):len(magic)+len(relationMagic)], []byte(relationMagic)) {
		return Relation
	}
	return Main
}

// MinHeaderSize is the smallest a file of the given kind can be.
func MinHeaderSize(k Kind) int {
	if k == Relation {
		return RelationHeaderSize
	}
	return MainHeaderSize
}

// SizeOffset is where the file size is stored in a header of kind k.
func SizeOffset(k Kind) int {
	if k == Relation {
		return relSizeOff
	}
	return mainSizeOff
}

// VersionOffset is where the format version is stored in a header of kind k.
func VersionOffset(k Kind) int {
	if k == Relation {
		return relVersionOff
	}
	return mainVersionOff
}

// Validate checks that b starts with a header of kind want.
func Validate(b []byte, want Kind) error {
	if len(b) < MinHeaderSize(want) {
		return fmt.Errorf("%w: %d < %d", ErrTooSmall, len(b), MinHeaderSize(want))
	}
	if !bytes.Equal(b[:len(magic)], []byte(magic)) {
		return fmt.Errorf("%w (%q)", ErrBadMagic, b[:len(magic)])
	}
	if got := KindOf(b); got != want {
		return fmt.Errorf("%w: expected %s file, found %s file", ErrBadMagic, want, got)
	}
	if v := ondisk.Uint64(b[VersionOffset(want):]); v != Version {
		return fmt.Errorf("%w: this version of slrdata can only read v%d files; found v%d", ErrBadVersion, Version, v)
	}
	return nil
}

// Header is the decoded form of either header kind.  For main files
// List0 and List1 are the element and relation list offsets; for
// relation files they are the tuple list and element index offsets.
type Header struct {
	Kind    Kind
	Version uint64
	Size    uint64
	List0   uint64
	List1   uint64
	Arity   uint64
}

// NewHeader returns a header for an empty file of kind k.
func NewHeader(k Kind) *Header {
	return &Header{
		Kind:    k,
		Version: Version,
		Size:    uint64(MinHeaderSize(k)),
	}
}

func (h *Header) UnmarshalBytes(b []byte) error {
	if err := Validate(b, KindOf(b)); err != nil {
		return err
	}
	h.Kind = KindOf(b)
	h.Version = ondisk.Uint64(b[VersionOffset(h.Kind):])
	h.Size = ondisk.Uint64(b[SizeOffset(h.Kind):])
	if h.Kind == Relation {
		h.List0 = ondisk.Uint64(b[RelationTupleListOff:])
		h.List1 = ondisk.Uint64(b[RelationElementIdxOff:])
		h.Arity = ondisk.Uint48(b[RelationArityOff:])
	} else {
		h.List0 = ondisk.Uint64(b[MainElementListOff:])
		h.List1 = ondisk.Uint64(b[MainRelationsOff:])
		h.Arity = 0
	}
	return nil
}

// MarshalTo encodes h into the first MinHeaderSize(h.Kind) bytes of b.
func (h *Header) MarshalTo(b []byte) error {
	if len(b) < MinHeaderSize(h.Kind) {
		return fmt.Errorf("buffer too short for %s header: %d < %d", h.Kind, len(b), MinHeaderSize(h.Kind))
	}
	b = b[:MinHeaderSize(h.Kind)]
	for i := range b {
		b[i] = 0
	}
	copy(b, magic)
	if h.Kind == Relation {
		copy(b[len(magic):], relationMagic)
	}
	ondisk.PutUint64(b[VersionOffset(h.Kind):], h.Version)
	ondisk.PutUint64(b[SizeOffset(h.Kind):], h.Size)
	if h.Kind == Relation {
		ondisk.PutUint64(b[RelationTupleListOff:], h.List0)
		ondisk.PutUint64(b[RelationElementIdxOff:], h.List1)
		ondisk.PutUint48(b[RelationArityOff:], h.Arity)
	} else {
		ondisk.PutUint64(b[MainElementListOff:], h.List0)
		ondisk.PutUint64(b[MainRelationsOff:], h.List1)
	}
	return nil
}

// Bytes returns the encoded header.
func (h *Header) Bytes() []byte {
	b := make([]byte, MinHeaderSize(h.Kind))
	_ = h.MarshalTo(b)
	return b
}
