// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "bytes"

// Compare returns -1, 0, or +1 depending on whether a is 'less than', 'equal
// to' or 'greater than' b.
type Compare func(a, b []byte) int

// Comparer defines a total ordering over a set of keys.
type Comparer struct {
	Compare Compare

	// Equal returns true if a and b are equivalent.
	Equal func(a, b []byte) bool

	// Name is the name of the comparer. It is recorded in every table.
	Name string
}

// DefaultComparer is the default comparer. It uses bytes.Compare to compare
// keys. MVCC-encoded keys (see internal/mvcc) order correctly under it for
// distinct user keys.
var DefaultComparer = &Comparer{
	Compare: bytes.Compare,
	Equal:   bytes.Equal,
	Name:    "leveldb.BytewiseComparator",
}
