// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package propdb

import (
	"container/heap"

	"github.com/khushmanvar/propdb/internal/base"
)

// mergingIter provides a merged view of multiple iterators from different
// tables. Entries are returned in InternalCompare order, so the versions of
// a user key are returned newest first.
type mergingIter struct {
	cmp   base.Compare
	iters []base.InternalIterator
	heap  mergingIterHeap
	err   error
}

var _ base.InternalIterator = (*mergingIter)(nil)

func newMergingIter(cmp base.Compare, iters ...base.InternalIterator) *mergingIter {
	m := &mergingIter{cmp: cmp, iters: iters}
	m.heap.cmp = cmp
	m.heap.items = make([]mergingIterItem, 0, len(iters))
	return m
}

func (m *mergingIter) init() {
	m.heap.items = m.heap.items[:0]
	for _, it := range m.iters {
		if it.Valid() {
			m.heap.items = append(m.heap.items, mergingIterItem{iter: it})
		} else if err := it.Error(); err != nil && m.err == nil {
			m.err = err
		}
	}
	heap.Init(&m.heap)
}

func (m *mergingIter) SeekGE(key []byte) {
	for _, it := range m.iters {
		it.SeekGE(key)
	}
	m.init()
}

func (m *mergingIter) First() {
	for _, it := range m.iters {
		it.First()
	}
	m.init()
}

func (m *mergingIter) Next() {
	if len(m.heap.items) == 0 {
		return
	}
	it := m.heap.items[0].iter
	it.Next()
	if it.Valid() {
		heap.Fix(&m.heap, 0)
		return
	}
	if err := it.Error(); err != nil && m.err == nil {
		m.err = err
	}
	heap.Pop(&m.heap)
}

func (m *mergingIter) Valid() bool {
	return m.err == nil && len(m.heap.items) > 0
}

func (m *mergingIter) Key() base.InternalKey {
	return m.heap.items[0].iter.Key()
}

func (m *mergingIter) Value() []byte {
	return m.heap.items[0].iter.Value()
}

func (m *mergingIter) Error() error {
	return m.err
}

func (m *mergingIter) Close() error {
	for _, it := range m.iters {
		if err := it.Close(); err != nil && m.err == nil {
			m.err = err
		}
	}
	m.iters = nil
	m.heap.items = nil
	return m.err
}

type mergingIterItem struct {
	iter base.InternalIterator
}

type mergingIterHeap struct {
	cmp   base.Compare
	items []mergingIterItem
}

func (h *mergingIterHeap) Len() int {
	return len(h.items)
}

func (h *mergingIterHeap) Less(i, j int) bool {
	return base.InternalCompare(h.cmp, h.items[i].iter.Key(), h.items[j].iter.Key()) < 0
}

func (h *mergingIterHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *mergingIterHeap) Push(x interface{}) {
	h.items = append(h.items, x.(mergingIterItem))
}

func (h *mergingIterHeap) Pop() interface{} {
	n := len(h.items)
	x := h.items[n-1]
	h.items = h.items[:n-1]
	return x
}
