// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

// InternalIterator iterates over internal keys in InternalCompare order. The
// key and value returned at a position are only valid until the iterator is
// moved.
type InternalIterator interface {
	// SeekGE moves the iterator to the first entry whose user key is >= key.
	SeekGE(key []byte)
	// First moves the iterator to the first entry.
	First()
	// Next moves the iterator to the next entry.
	Next()
	// Valid returns true if the iterator is positioned at an entry.
	Valid() bool
	Key() InternalKey
	Value() []byte
	// Error returns any accumulated error.
	Error() error
	// Close releases the iterator and returns any accumulated error.
	Close() error
}
