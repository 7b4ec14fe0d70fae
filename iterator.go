// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package propdb

import (
	"github.com/khushmanvar/propdb/internal/base"
	"github.com/khushmanvar/propdb/internal/keyspan"
	"github.com/khushmanvar/propdb/internal/manifest"
	"github.com/khushmanvar/propdb/internal/mvcc"
	"github.com/khushmanvar/propdb/tableprops"
)

// IterOptions contains options for creating an iterator.
type IterOptions struct {
	// LowerBound specifies the smallest key that the iterator will return. If
	// the iterator is seeked to a key smaller than LowerBound, it will be
	// positioned at the first key >= LowerBound. The default value is nil.
	LowerBound []byte
	// UpperBound specifies the exclusive upper bound of the keys the
	// iterator will return. The default value is nil.
	UpperBound []byte

	// MinTimestamp and MaxTimestamp make the iterator time-bound: tables
	// whose recorded time bounds lie outside [MinTimestamp, MaxTimestamp]
	// are not read. Tables without time bounds are always read. An empty
	// MaxTimestamp leaves the range unbounded above; leaving both empty
	// reads every table.
	//
	// A time-bound iterator may still return versions outside the range
	// from the tables it reads, so callers filter by timestamp. Range
	// deletions held by skipped tables are not applied.
	MinTimestamp mvcc.Timestamp
	MaxTimestamp mvcc.Timestamp
}

func (o *IterOptions) timeBound() bool {
	return !o.MinTimestamp.IsEmpty() || !o.MaxTimestamp.IsEmpty()
}

// Iterator iterates over a DB's key/value pairs in key order. It observes the
// DB as of its creation.
//
// An iterator must be closed after use, and before the DB is closed, but it
// is not necessary to read an iterator until exhaustion. An iterator is not
// goroutine-safe, but it is safe to use multiple iterators concurrently, with
// each in its own goroutine.
type Iterator struct {
	d         *DB
	cmp       base.Compare
	opts      IterOptions
	iter      base.InternalIterator
	rangeDels []keyspan.Span
	pinned    []uint64
	key       []byte
	value     []byte
	valid     bool
	err       error
}

// NewIter returns an unpositioned iterator over the DB. The tables it reads
// are retained until the iterator is closed, even if a compaction replaces
// them.
func (d *DB) NewIter(o *IterOptions) *Iterator {
	it := &Iterator{d: d, cmp: d.cmp}
	if o != nil {
		it.opts = *o
	}
	filter := tableprops.TimeBoundFilter{Min: it.opts.MinTimestamp, Max: it.opts.MaxTimestamp}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		it.err = ErrClosed
		return it
	}

	iters := []base.InternalIterator{d.mem.newIter()}
	it.rangeDels = append(it.rangeDels, d.mem.rangeDels...)

	v := d.versions.current
	for level := range v.Files {
		var files []*manifest.FileMetadata
		for _, f := range v.Files[level] {
			if it.opts.timeBound() && !filter.MayContain(f.Properties) {
				d.metrics.TablesPrunedByTime.Inc()
				continue
			}
			t, err := d.tableCache.get(f.FileNum)
			if err != nil {
				it.err = err
				break
			}
			d.pin(f.FileNum)
			it.pinned = append(it.pinned, f.FileNum)
			it.rangeDels = append(it.rangeDels, t.rangeDels...)
			files = append(files, f)
			if level == 0 {
				iters = append(iters, t.reader.NewIter())
			}
		}
		if it.err != nil {
			break
		}
		if level > 0 && len(files) > 0 {
			iters = append(iters, newLevelIter(d.cmp, files, d.newTableIter))
		}
	}
	it.iter = newMergingIter(d.cmp, iters...)
	return it
}

// findNextEntry positions the iterator at the newest visible version of the
// first user key at or after the underlying iterator's position.
func (i *Iterator) findNextEntry() {
	i.valid = false
	for i.iter.Valid() {
		k := i.iter.Key()
		if i.opts.UpperBound != nil && i.cmp(k.UserKey, i.opts.UpperBound) >= 0 {
			break
		}
		if k.Kind() != base.InternalKeyKindDelete &&
			k.SeqNum() >= keyspan.CoveringSeqNum(i.cmp, i.rangeDels, k.UserKey) {
			i.key = append(i.key[:0], k.UserKey...)
			i.value = append(i.value[:0], i.iter.Value()...)
			i.valid = true
			return
		}
		i.key = append(i.key[:0], k.UserKey...)
		i.skipUserKey()
	}
	i.err = i.iter.Error()
}

// skipUserKey advances the underlying iterator past the versions of i.key.
func (i *Iterator) skipUserKey() {
	for i.iter.Valid() && i.cmp(i.iter.Key().UserKey, i.key) == 0 {
		i.iter.Next()
	}
}

// SeekGE moves the iterator to the first key/value pair whose key is greater
// than or equal to the given key.
func (i *Iterator) SeekGE(key []byte) {
	if i.err != nil {
		return
	}
	if lower := i.opts.LowerBound; lower != nil && i.cmp(key, lower) < 0 {
		key = lower
	}
	i.iter.SeekGE(key)
	i.findNextEntry()
}

// First moves the iterator to the first key/value pair.
func (i *Iterator) First() {
	if i.err != nil {
		return
	}
	if i.opts.LowerBound != nil {
		i.iter.SeekGE(i.opts.LowerBound)
	} else {
		i.iter.First()
	}
	i.findNextEntry()
}

// Next moves the iterator to the next key/value pair.
func (i *Iterator) Next() {
	if !i.valid {
		return
	}
	i.skipUserKey()
	i.findNextEntry()
}

// Valid returns true if the iterator is positioned at a valid key/value pair.
func (i *Iterator) Valid() bool {
	return i.valid && i.err == nil
}

// Key returns the key of the current key/value pair. It is only valid until
// the next call to a positioning method.
func (i *Iterator) Key() []byte {
	return i.key
}

// Value returns the value of the current key/value pair. It is only valid
// until the next call to a positioning method.
func (i *Iterator) Value() []byte {
	return i.value
}

// Error returns any accumulated error.
func (i *Iterator) Error() error {
	return i.err
}

// Close closes the iterator and returns any accumulated error. Tables that
// became obsolete while the iterator was open are deleted.
func (i *Iterator) Close() error {
	err := i.err
	if i.iter != nil {
		if cerr := i.iter.Close(); err == nil {
			err = cerr
		}
		i.iter = nil
	}
	if len(i.pinned) > 0 {
		i.d.mu.Lock()
		i.d.unpin(i.pinned)
		i.d.mu.Unlock()
		i.pinned = nil
	}
	i.valid = false
	return err
}
