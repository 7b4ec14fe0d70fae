// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package propdb

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/khushmanvar/propdb/internal/base"
	"github.com/khushmanvar/propdb/internal/keyspan"
	"github.com/khushmanvar/propdb/sstable"
	"github.com/zhangyunhao116/skipmap"
)

// memEntry is the newest version of a user key in the memtable.
type memEntry struct {
	seqNum uint64
	kind   base.InternalKeyKind
	value  []byte
}

// memTable is an in-memory table of key-value pairs. Only the newest version
// of each user key is retained: there are no snapshots that could observe an
// older one. Range deletions are kept beside the point keys and are flushed
// with them.
type memTable struct {
	cmp       base.Compare
	skl       *skipmap.FuncMap[[]byte, memEntry]
	rangeDels []keyspan.Span
	size      int
}

func newMemTable(cmp base.Compare) *memTable {
	return &memTable{
		cmp: cmp,
		skl: skipmap.NewFunc[[]byte, memEntry](func(a, b []byte) bool {
			return cmp(a, b) < 0
		}),
	}
}

// apply adds the records of the batch to the memtable, assigning sequence
// numbers starting at seqNum.
func (m *memTable) apply(b *Batch, seqNum uint64) error {
	r := b.reader()
	for {
		kind, key, value, ok, err := r.next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		key = append([]byte(nil), key...)
		value = append([]byte(nil), value...)
		switch kind {
		case base.InternalKeyKindRangeDelete:
			m.rangeDels = append(m.rangeDels, keyspan.Span{Start: key, End: value, SeqNum: seqNum})
		default:
			m.skl.Store(key, memEntry{seqNum: seqNum, kind: kind, value: value})
		}
		m.size += len(key) + len(value) + base.InternalTrailerLen
		seqNum++
	}
	return nil
}

// get returns the newest entry for key and the largest sequence number of
// the range deletions covering it.
func (m *memTable) get(key []byte) (e memEntry, found bool, rangeDelSeqNum uint64) {
	e, found = m.skl.Load(key)
	return e, found, keyspan.CoveringSeqNum(m.cmp, m.rangeDels, key)
}

func (m *memTable) empty() bool {
	return m.skl.Len() == 0 && len(m.rangeDels) == 0
}

// writeTo adds the contents of the memtable to w in key order.
func (m *memTable) writeTo(w *sstable.Writer) error {
	var err error
	m.skl.Range(func(key []byte, e memEntry) bool {
		err = w.Add(base.MakeInternalKey(key, e.seqNum, e.kind), e.value)
		return err == nil
	})
	if err != nil {
		return errors.Wrap(err, "propdb: flushing memtable")
	}
	spans := append([]keyspan.Span(nil), m.rangeDels...)
	keyspan.Sort(m.cmp, spans)
	for _, s := range spans {
		if err := w.DeleteRange(s.Start, s.End, s.SeqNum); err != nil {
			return errors.Wrap(err, "propdb: flushing memtable")
		}
	}
	return nil
}

// newIter returns an iterator over the entries the memtable holds now. Later
// writes to the memtable are not observed.
func (m *memTable) newIter() *memIter {
	it := &memIter{cmp: m.cmp}
	m.skl.Range(func(key []byte, e memEntry) bool {
		it.keys = append(it.keys, base.MakeInternalKey(key, e.seqNum, e.kind))
		it.values = append(it.values, e.value)
		return true
	})
	it.pos = len(it.keys)
	return it
}

// memIter iterates over a copy of the memtable's entries. Keys and values
// are shared with the memtable, which never modifies them after insertion.
type memIter struct {
	cmp    base.Compare
	keys   []base.InternalKey
	values [][]byte
	pos    int
}

var _ base.InternalIterator = (*memIter)(nil)

func (i *memIter) SeekGE(key []byte) {
	i.pos = sort.Search(len(i.keys), func(j int) bool {
		return i.cmp(i.keys[j].UserKey, key) >= 0
	})
}

func (i *memIter) First() {
	i.pos = 0
}

func (i *memIter) Next() {
	if i.pos < len(i.keys) {
		i.pos++
	}
}

func (i *memIter) Valid() bool {
	return i.pos < len(i.keys)
}

func (i *memIter) Key() base.InternalKey {
	return i.keys[i.pos]
}

func (i *memIter) Value() []byte {
	return i.values[i.pos]
}

func (i *memIter) Error() error {
	return nil
}

func (i *memIter) Close() error {
	i.keys, i.values = nil, nil
	return nil
}
