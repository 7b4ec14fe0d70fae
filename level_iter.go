// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package propdb

import (
	"sort"

	"github.com/khushmanvar/propdb/internal/base"
	"github.com/khushmanvar/propdb/internal/manifest"
)

// tableIterOpener returns an iterator over the point keys of a table.
type tableIterOpener func(f *manifest.FileMetadata) (base.InternalIterator, error)

// levelIter provides a concatenated view of the tables in a level. The
// tables must be sorted and must not overlap, which holds for every level
// but L0. Tables are opened one at a time as the iterator reaches them.
type levelIter struct {
	cmp     base.Compare
	files   []*manifest.FileMetadata
	newIter tableIterOpener
	iter    base.InternalIterator
	index   int
	err     error
}

var _ base.InternalIterator = (*levelIter)(nil)

func newLevelIter(cmp base.Compare, files []*manifest.FileMetadata, newIter tableIterOpener) *levelIter {
	return &levelIter{
		cmp:     cmp,
		files:   files,
		newIter: newIter,
		index:   -1,
	}
}

// findFile returns the index of the first file whose largest key is >= key.
func (l *levelIter) findFile(key []byte) int {
	return sort.Search(len(l.files), func(i int) bool {
		return l.cmp(key, l.files[i].Largest.UserKey) <= 0
	})
}

// loadFile closes the current table and opens the table at index. It
// returns false past the last table or on error.
func (l *levelIter) loadFile(index int) bool {
	if l.iter != nil {
		if err := l.iter.Close(); err != nil && l.err == nil {
			l.err = err
		}
		l.iter = nil
	}
	l.index = index
	if l.err != nil || index >= len(l.files) {
		return false
	}
	iter, err := l.newIter(l.files[index])
	if err != nil {
		l.err = err
		return false
	}
	l.iter = iter
	return true
}

// skipEmpty moves on to the following tables until one has an entry.
func (l *levelIter) skipEmpty() {
	for l.iter != nil && !l.iter.Valid() {
		if err := l.iter.Error(); err != nil {
			l.err = err
			return
		}
		if !l.loadFile(l.index + 1) {
			return
		}
		l.iter.First()
	}
}

func (l *levelIter) SeekGE(key []byte) {
	l.err = nil
	if !l.loadFile(l.findFile(key)) {
		return
	}
	l.iter.SeekGE(key)
	l.skipEmpty()
}

func (l *levelIter) First() {
	l.err = nil
	if !l.loadFile(0) {
		return
	}
	l.iter.First()
	l.skipEmpty()
}

func (l *levelIter) Next() {
	if l.iter == nil {
		return
	}
	l.iter.Next()
	l.skipEmpty()
}

func (l *levelIter) Valid() bool {
	return l.err == nil && l.iter != nil && l.iter.Valid()
}

func (l *levelIter) Key() base.InternalKey {
	return l.iter.Key()
}

func (l *levelIter) Value() []byte {
	return l.iter.Value()
}

func (l *levelIter) Error() error {
	return l.err
}

func (l *levelIter) Close() error {
	if l.iter != nil {
		if err := l.iter.Close(); err != nil && l.err == nil {
			l.err = err
		}
		l.iter = nil
	}
	return l.err
}
