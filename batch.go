// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package propdb

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/khushmanvar/propdb/internal/base"
)

const batchHeaderLen = 12

var errBatchTooLarge = errors.New("propdb: batch too large: >= 4 GB")

// Batch is a sequence of Sets, Deletes and DeleteRanges that are applied
// atomically.
type Batch struct {
	// data is the encoded batch. It consists of a 12-byte header followed by
	// a sequence of records.
	//
	// The header is:
	//   - an 8-byte sequence number, assigned when the batch is applied
	//   - a 4-byte count of the number of records in the batch
	//
	// Each record has a 1-byte kind tag followed by 1 or 2 length-prefixed
	// strings (varstring):
	//   - Set:         <kind><varstring key><varstring value>
	//   - Delete:      <kind><varstring key>
	//   - DeleteRange: <kind><varstring start><varstring end>
	//
	// A varstring is a uvarint followed by that many bytes.
	data []byte
	err  error
}

var batchPool = sync.Pool{
	New: func() interface{} {
		return &Batch{}
	},
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

func newPooledBatch() *Batch {
	return batchPool.Get().(*Batch)
}

func (b *Batch) release() {
	b.Reset()
	batchPool.Put(b)
}

// Set adds an action to the batch that sets the key to map to the value.
func (b *Batch) Set(key, value []byte) error {
	b.append(base.InternalKeyKindSet, key, value, true)
	return b.err
}

// Delete adds an action to the batch that deletes the key.
func (b *Batch) Delete(key []byte) error {
	b.append(base.InternalKeyKindDelete, key, nil, false)
	return b.err
}

// DeleteRange adds an action to the batch that deletes the keys in
// [start, end). An empty range is rejected when the batch is applied.
func (b *Batch) DeleteRange(start, end []byte) error {
	b.append(base.InternalKeyKindRangeDelete, start, end, true)
	return b.err
}

func (b *Batch) append(kind base.InternalKeyKind, key, value []byte, hasValue bool) {
	if b.err != nil {
		return
	}
	if len(b.data) == 0 {
		b.data = make([]byte, batchHeaderLen, batchHeaderLen+len(key)+len(value)+2*binary.MaxVarintLen32+1)
	}
	count := b.Count()
	if count == 1<<32-1 || uint64(len(b.data))+uint64(len(key))+uint64(len(value)) >= 1<<32 {
		b.err = errBatchTooLarge
		return
	}
	binary.LittleEndian.PutUint32(b.data[8:12], count+1)
	b.data = append(b.data, byte(kind))
	b.data = appendVarstring(b.data, key)
	if hasValue {
		b.data = appendVarstring(b.data, value)
	}
}

// Count returns the number of records in the batch.
func (b *Batch) Count() uint32 {
	if len(b.data) < batchHeaderLen {
		return 0
	}
	return binary.LittleEndian.Uint32(b.data[8:12])
}

// Empty returns true if the batch is empty.
func (b *Batch) Empty() bool {
	return b.Count() == 0
}

// Reset resets the batch so that it can be reused.
func (b *Batch) Reset() {
	b.data = b.data[:0]
	b.err = nil
}

// SeqNum returns the sequence number assigned to the first record of the
// batch when it was applied, or 0 if it has not been applied.
func (b *Batch) SeqNum() uint64 {
	if len(b.data) < batchHeaderLen {
		return 0
	}
	return binary.LittleEndian.Uint64(b.data[:8])
}

func (b *Batch) setSeqNum(seqNum uint64) {
	binary.LittleEndian.PutUint64(b.data[:8], seqNum)
}

func (b *Batch) reader() batchReader {
	if len(b.data) < batchHeaderLen {
		return nil
	}
	return batchReader(b.data[batchHeaderLen:])
}

func appendVarstring(dst []byte, s []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

func decodeVarstring(data []byte) (s, rest []byte, ok bool) {
	l, n := binary.Uvarint(data)
	if n <= 0 || l > uint64(len(data)-n) {
		return nil, nil, false
	}
	end := n + int(l)
	return data[n:end], data[end:], true
}

// batchReader iterates over the records of an encoded batch.
type batchReader []byte

// next returns the next record. ok is false at the end of the batch; err is
// set if the batch is malformed.
func (r *batchReader) next() (kind base.InternalKeyKind, key, value []byte, ok bool, err error) {
	if len(*r) == 0 {
		return 0, nil, nil, false, nil
	}
	kind = base.InternalKeyKind((*r)[0])
	rest := (*r)[1:]
	key, rest, ok = decodeVarstring(rest)
	if !ok {
		return 0, nil, nil, false, base.CorruptionErrorf("propdb: truncated batch record")
	}
	switch kind {
	case base.InternalKeyKindSet, base.InternalKeyKindRangeDelete:
		value, rest, ok = decodeVarstring(rest)
		if !ok {
			return 0, nil, nil, false, base.CorruptionErrorf("propdb: truncated batch record")
		}
	case base.InternalKeyKindDelete:
	default:
		return 0, nil, nil, false, base.CorruptionErrorf("propdb: invalid batch record kind %s", kind)
	}
	*r = rest
	return kind, key, value, true, nil
}
