// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package bytesutil parses the text form of tuples without allocating.
package bytesutil

import (
	"bytes"
	"errors"
	"fmt"
	"math"
)

var (
	errEmptyID  = errors.New("empty element id")
	errBadDigit = errors.New("element id is not a decimal number")
	errOverflow = errors.New("element id overflows uint64")
)

// ParseUint parses a non-empty run of decimal digits.
func ParseUint(s []byte) (uint64, error) {
	if len(s) == 0 {
		return 0, errEmptyID
	}
	var n uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%q: %w", s, errBadDigit)
		}
		d := uint64(c - '0')
		if n > (math.MaxUint64-d)/10 {
			return 0, fmt.Errorf("%q: %w", s, errOverflow)
		}
		n = n*10 + d
	}
	return n, nil
}

// AppendIDs parses a sep-separated list of element ids, like "3,1,4",
// appending them to dst.  Space around each id is ignored.  An empty
// (or all-space) line is a tuple of no elements.
func AppendIDs(dst []uint64, line []byte, sep byte) ([]uint64, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return dst, nil
	}
	for {
		field, rest, found := Cut(line, sep)
		id, err := ParseUint(bytes.TrimSpace(field))
		if err != nil {
			return dst, err
		}
		dst = append(dst, id)
		if !found {
			return dst, nil
		}
		line = rest
	}
}

// Cut is bytes.Cut for a single-byte separator.
func Cut(s []byte, sep byte) (before, after []byte, found bool) {
	if i := bytes.IndexByte(s, sep); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, nil, false
}
