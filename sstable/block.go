// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/khushmanvar/propdb/internal/base"
)

// blockWriter builds a block of prefix-compressed entries:
//
//	<shared><unshared><value_len><unshared key bytes><value>
//
// followed by the restart point offsets and their count, each a little
// endian uint32. Entries at restart points store their full key.
type blockWriter struct {
	restartInterval int
	buf             []byte
	restarts        []uint32
	nEntries        int
	curKey          []byte
}

func (w *blockWriter) add(key, value []byte) {
	shared := 0
	if w.nEntries%w.restartInterval == 0 {
		w.restarts = append(w.restarts, uint32(len(w.buf)))
	} else {
		shared = sharedPrefixLen(w.curKey, key)
	}

	w.buf = binary.AppendUvarint(w.buf, uint64(shared))
	w.buf = binary.AppendUvarint(w.buf, uint64(len(key)-shared))
	w.buf = binary.AppendUvarint(w.buf, uint64(len(value)))
	w.buf = append(w.buf, key[shared:]...)
	w.buf = append(w.buf, value...)
	w.curKey = append(w.curKey[:0], key...)
	w.nEntries++
}

func (w *blockWriter) size() int {
	return len(w.buf) + 4*(len(w.restarts)+1)
}

func (w *blockWriter) empty() bool {
	return w.nEntries == 0
}

// lastKey returns the most recently added key. It is valid until the next
// call to add or reset.
func (w *blockWriter) lastKey() []byte {
	return w.curKey
}

func (w *blockWriter) finish() []byte {
	if len(w.restarts) == 0 {
		w.restarts = append(w.restarts, 0)
	}
	for _, r := range w.restarts {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, r)
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(w.restarts)))
	return w.buf
}

func (w *blockWriter) reset() {
	w.buf = w.buf[:0]
	w.restarts = w.restarts[:0]
	w.nEntries = 0
	w.curKey = w.curKey[:0]
}

func sharedPrefixLen(a, b []byte) int {
	i, n := 0, len(a)
	if n > len(b) {
		n = len(b)
	}
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// block is a decoded block: its entries and restart points.
type block struct {
	data     []byte
	restarts []uint32
}

func parseBlock(b []byte) (block, error) {
	if len(b) < 4 {
		return block{}, base.CorruptionErrorf("propdb/table: block of %d bytes is too short", len(b))
	}
	numRestarts := int(binary.LittleEndian.Uint32(b[len(b)-4:]))
	restartsStart := len(b) - 4 - 4*numRestarts
	if numRestarts == 0 || restartsStart < 0 {
		return block{}, base.CorruptionErrorf("propdb/table: invalid restart count %d", numRestarts)
	}
	restarts := make([]uint32, numRestarts)
	for i := range restarts {
		restarts[i] = binary.LittleEndian.Uint32(b[restartsStart+4*i:])
		if int(restarts[i]) > restartsStart {
			return block{}, base.CorruptionErrorf("propdb/table: restart offset %d out of range", restarts[i])
		}
	}
	return block{data: b[:restartsStart], restarts: restarts}, nil
}

// blockIter is a forward iterator over the entries of a block. Keys are
// compared with cmp, which sees the keys exactly as they were added.
type blockIter struct {
	cmp        base.Compare
	blk        block
	offset     int
	nextOffset int
	key        []byte
	value      []byte
	valid      bool
	err        error
}

func newBlockIter(cmp base.Compare, blk block) *blockIter {
	return &blockIter{cmp: cmp, blk: blk}
}

// decodeEntry decodes the entry at offset, whose predecessor's key is in
// i.key. It returns the offset of the following entry.
func (i *blockIter) decodeEntry(offset int) (next int, ok bool) {
	data := i.blk.data
	shared, n := binary.Uvarint(data[offset:])
	if n <= 0 {
		return 0, false
	}
	offset += n
	unshared, n := binary.Uvarint(data[offset:])
	if n <= 0 {
		return 0, false
	}
	offset += n
	valueLen, n := binary.Uvarint(data[offset:])
	if n <= 0 {
		return 0, false
	}
	offset += n
	if shared > uint64(len(i.key)) || unshared+valueLen > uint64(len(data)-offset) {
		return 0, false
	}
	i.key = append(i.key[:shared], data[offset:offset+int(unshared)]...)
	offset += int(unshared)
	i.value = data[offset : offset+int(valueLen)]
	return offset + int(valueLen), true
}

func (i *blockIter) loadAt(offset int) bool {
	if offset >= len(i.blk.data) {
		i.valid = false
		return false
	}
	next, ok := i.decodeEntry(offset)
	if !ok {
		i.err = base.CorruptionErrorf("propdb/table: corrupt block entry at offset %d", offset)
		i.valid = false
		return false
	}
	i.offset, i.nextOffset, i.valid = offset, next, true
	return true
}

func (i *blockIter) First() bool {
	i.key = i.key[:0]
	return i.loadAt(0)
}

func (i *blockIter) Next() bool {
	if !i.valid {
		return false
	}
	return i.loadAt(i.nextOffset)
}

// SeekGE positions the iterator at the first entry whose key is >= target.
func (i *blockIter) SeekGE(target []byte) bool {
	// Find the last restart point whose key is < target and scan forward
	// from it.
	idx := sort.Search(len(i.blk.restarts), func(j int) bool {
		i.key = i.key[:0]
		if !i.loadAt(int(i.blk.restarts[j])) {
			return true
		}
		return i.cmp(i.key, target) >= 0
	})
	if i.err != nil {
		return false
	}
	if idx > 0 {
		idx--
	}
	i.key = i.key[:0]
	for ok := i.loadAt(int(i.blk.restarts[idx])); ok; ok = i.Next() {
		if i.cmp(i.key, target) >= 0 {
			return true
		}
	}
	return false
}

func (i *blockIter) Valid() bool { return i.valid }
func (i *blockIter) Key() []byte { return i.key }
func (i *blockIter) Value() []byte { return i.value }
func (i *blockIter) Error() error { return i.err }

// internalKeyCompare returns a comparison over encoded internal keys.
func internalKeyCompare(userCmp base.Compare) base.Compare {
	return func(a, b []byte) int {
		ak, aok := base.ParseInternalKey(a)
		bk, bok := base.ParseInternalKey(b)
		if !aok || !bok {
			return bytes.Compare(a, b)
		}
		return base.InternalCompare(userCmp, ak, bk)
	}
}
