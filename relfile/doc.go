// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package relfile stores one relation: an append-only list of
// fixed-arity tuples of element ids, plus an incidence index answering
// "which tuples contain element e" in O(degree(e)).
//
// A relation file generally looks like:
//
//	┌────────────────────────┐
//	│ header                 │
//	├────────────────────────┤
//	│ tuple list             │
//	├────────────────────────┤
//	│ element index          │  one 8-byte offset per element
//	├────────────────────────┤
//	│ incidence list, e=0    │  reserved capacity, degree, tuple indexes
//	│ incidence list, e=1    │
//	│ ...                    │
//	├────────────────────────┤
//	│ relocated lists,       │
//	│ dead space             │
//	└────────────────────────┘
//
// Incidence lists are allocated with room for normDegree entries.  When
// a list fills up it is copied to the end of the file with room for
// normDegree more, and the element index is pointed at the copy; the old
// bytes are left behind.  Compact rewrites the file with every list sized
// exactly to its degree.
//
// Files are used by a single writer; nothing here is safe for
// concurrent use.
package relfile
