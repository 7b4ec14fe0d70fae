// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/khushmanvar/propdb/internal/base"
	"github.com/khushmanvar/propdb/internal/keyspan"
)

// ReadableFile is the subset of a file a Reader needs.
type ReadableFile interface {
	io.ReaderAt
	io.Closer
}

// ReaderOptions configure a Reader.
type ReaderOptions struct {
	// Comparer must match the comparer the table was written with.
	Comparer *base.Comparer
	// Logger reports damaged properties blocks.
	Logger base.Logger
}

// Reader reads a table.
type Reader struct {
	file        ReadableFile
	size        int64
	cmp         base.Compare
	logger      base.Logger
	index       block
	rangeDelBH  BlockHandle
	hasRangeDel bool
	props       TableProperties
	propsErr    error
}

// NewReader opens the table stored in f, which is size bytes long. The
// reader takes ownership of f.
//
// A missing or damaged properties block does not fail the open: the table is
// readable and every property lookup reports the property as absent. The
// damage is available from PropertiesError.
func NewReader(f ReadableFile, size int64, o ReaderOptions) (*Reader, error) {
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	r := &Reader{
		file:   f,
		size:   size,
		cmp:    o.Comparer.Compare,
		logger: o.Logger,
	}
	if err := r.init(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) init() error {
	metaindexBH, indexBH, err := ReadFooter(r.file, r.size)
	if err != nil {
		return err
	}

	index, err := r.readBlock(indexBH)
	if err != nil {
		return errors.Wrap(err, "propdb/table: reading index block")
	}
	r.index = index

	metaindex, err := r.readBlock(metaindexBH)
	if err != nil {
		return errors.Wrap(err, "propdb/table: reading metaindex block")
	}
	var propsBH BlockHandle
	var hasProps bool
	it := newBlockIter(bytes.Compare, metaindex)
	for ok := it.First(); ok; ok = it.Next() {
		bh, n := decodeBlockHandle(it.Value())
		if n == 0 {
			return base.CorruptionErrorf("propdb/table: invalid block handle for meta block %q", it.Key())
		}
		switch string(it.Key()) {
		case metaPropertiesName:
			propsBH, hasProps = bh, true
		case metaRangeDelName:
			r.rangeDelBH, r.hasRangeDel = bh, true
		}
	}
	if err := it.Error(); err != nil {
		return err
	}

	if hasProps {
		r.loadProperties(propsBH)
	}
	return nil
}

func (r *Reader) loadProperties(bh BlockHandle) {
	b, err := r.readRawBlock(bh)
	if err != nil {
		r.propsErr = err
		r.logger.Errorf("propdb/table: ignoring unreadable properties block: %v", err)
		return
	}
	props, err := DecodeProperties(b)
	if err != nil {
		// Keep the entries preceding the damage; the rest read as absent.
		r.propsErr = err
		r.logger.Errorf("propdb/table: properties block is damaged after %d entries: %v", len(props), err)
	}
	r.props.load(props)
}

// Properties returns the table's properties. It is never nil.
func (r *Reader) Properties() *TableProperties {
	return &r.props
}

// PropertiesError returns the error encountered decoding the properties
// block, if any.
func (r *Reader) PropertiesError() error {
	return r.propsErr
}

// RangeDeletions returns the range deletion tombstones stored in the table in
// the order they were added.
func (r *Reader) RangeDeletions() ([]keyspan.Span, error) {
	if !r.hasRangeDel {
		return nil, nil
	}
	blk, err := r.readBlock(r.rangeDelBH)
	if err != nil {
		return nil, errors.Wrap(err, "propdb/table: reading range deletion block")
	}
	var spans []keyspan.Span
	it := newBlockIter(internalKeyCompare(r.cmp), blk)
	for ok := it.First(); ok; ok = it.Next() {
		k, valid := base.ParseInternalKey(it.Key())
		if !valid || k.Kind() != base.InternalKeyKindRangeDelete {
			return nil, base.CorruptionErrorf("propdb/table: invalid range deletion key %x", it.Key())
		}
		spans = append(spans, keyspan.Span{
			Start:  append([]byte(nil), k.UserKey...),
			End:    append([]byte(nil), it.Value()...),
			SeqNum: k.SeqNum(),
		})
	}
	return spans, it.Error()
}

// Bounds returns the smallest and largest internal keys of the table. The
// bounds of range deletions are included; the end of a tombstone is exclusive
// and is reported with the largest sequence number so that it sorts before
// any point key with the same user key. Both keys are zero for an empty
// table.
func (r *Reader) Bounds() (smallest, largest base.InternalKey, err error) {
	var hasBounds bool
	it := r.NewIter()
	it.First()
	if it.Valid() {
		smallest = it.Key().Clone()
		hasBounds = true
	}
	if err := it.Close(); err != nil {
		return base.InternalKey{}, base.InternalKey{}, err
	}
	if hasBounds {
		// The index holds the last key of every data block.
		index := newBlockIter(internalKeyCompare(r.cmp), r.index)
		for ok := index.First(); ok; ok = index.Next() {
			k, valid := base.ParseInternalKey(index.Key())
			if !valid {
				return base.InternalKey{}, base.InternalKey{}, base.CorruptionErrorf("propdb/table: invalid index key %x", index.Key())
			}
			largest = k.Clone()
		}
		if err := index.Error(); err != nil {
			return base.InternalKey{}, base.InternalKey{}, err
		}
	}

	spans, err := r.RangeDeletions()
	if err != nil {
		return base.InternalKey{}, base.InternalKey{}, err
	}
	for _, s := range spans {
		start := s.StartKey()
		end := base.MakeInternalKey(s.End, base.InternalKeySeqNumMax, base.InternalKeyKindRangeDelete)
		if !hasBounds || base.InternalCompare(r.cmp, start, smallest) < 0 {
			smallest = start.Clone()
		}
		if !hasBounds || base.InternalCompare(r.cmp, end, largest) > 0 {
			largest = end.Clone()
		}
		hasBounds = true
	}
	return smallest, largest, nil
}

// NewIter returns an iterator over the point keys of the table.
func (r *Reader) NewIter() base.InternalIterator {
	return &tableIter{
		r:     r,
		cmp:   internalKeyCompare(r.cmp),
		index: newBlockIter(internalKeyCompare(r.cmp), r.index),
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// readRawBlock reads and verifies the block at bh and returns its
// decompressed contents.
func (r *Reader) readRawBlock(bh BlockHandle) ([]byte, error) {
	if bh.Length > uint64(r.size) || bh.Offset+bh.Length+blockTrailerLen > uint64(r.size) {
		return nil, base.CorruptionErrorf("propdb/table: block handle [%d, %d) out of range", bh.Offset, bh.Offset+bh.Length)
	}
	b := make([]byte, bh.Length+blockTrailerLen)
	if _, err := r.file.ReadAt(b, int64(bh.Offset)); err != nil {
		return nil, errors.Wrap(err, "propdb/table: reading block")
	}
	blockType := b[bh.Length]
	if want := binary.LittleEndian.Uint32(b[bh.Length+1:]); checksum(b[:bh.Length], blockType) != want {
		return nil, base.CorruptionErrorf("propdb/table: block at offset %d has bad checksum", bh.Offset)
	}
	b = b[:bh.Length]
	switch blockType {
	case noCompressionBlockType:
		return b, nil
	case snappyCompressionBlockType:
		decoded, err := snappy.Decode(nil, b)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "propdb/table: decompressing block"), base.ErrCorruption)
		}
		return decoded, nil
	}
	return nil, base.CorruptionErrorf("propdb/table: unknown block type %d", blockType)
}

func (r *Reader) readBlock(bh BlockHandle) (block, error) {
	b, err := r.readRawBlock(bh)
	if err != nil {
		return block{}, err
	}
	return parseBlock(b)
}

// tableIter iterates over the point keys of a table, loading one data block
// at a time.
type tableIter struct {
	r     *Reader
	cmp   base.Compare
	index *blockIter
	data  *blockIter
	key   base.InternalKey
	err   error
}

var _ base.InternalIterator = (*tableIter)(nil)

// loadBlock loads the data block the index iterator points at.
func (i *tableIter) loadBlock() bool {
	i.data = nil
	if !i.index.Valid() {
		i.err = i.index.Error()
		return false
	}
	bh, n := decodeBlockHandle(i.index.Value())
	if n == 0 {
		i.err = base.CorruptionErrorf("propdb/table: invalid data block handle")
		return false
	}
	blk, err := i.r.readBlock(bh)
	if err != nil {
		i.err = err
		return false
	}
	i.data = newBlockIter(i.cmp, blk)
	return true
}

// skipEmpty advances past exhausted data blocks.
func (i *tableIter) skipEmpty(positioned bool) {
	for !positioned {
		if i.data != nil && i.data.Error() != nil {
			i.err = i.data.Error()
			return
		}
		if !i.index.Next() || !i.loadBlock() {
			i.data = nil
			if i.err == nil {
				i.err = i.index.Error()
			}
			return
		}
		positioned = i.data.First()
	}
	i.key, _ = base.ParseInternalKey(i.data.Key())
}

func (i *tableIter) First() {
	i.err = nil
	if !i.index.First() || !i.loadBlock() {
		i.data = nil
		if i.err == nil {
			i.err = i.index.Error()
		}
		return
	}
	i.skipEmpty(i.data.First())
}

func (i *tableIter) SeekGE(key []byte) {
	i.err = nil
	target := base.MakeInternalKey(key, base.InternalKeySeqNumMax, base.InternalKeyKindMax).Encode(nil)
	if !i.index.SeekGE(target) || !i.loadBlock() {
		i.data = nil
		if i.err == nil {
			i.err = i.index.Error()
		}
		return
	}
	i.skipEmpty(i.data.SeekGE(target))
}

func (i *tableIter) Next() {
	if i.data == nil {
		return
	}
	i.skipEmpty(i.data.Next())
}

func (i *tableIter) Valid() bool {
	return i.err == nil && i.data != nil && i.data.Valid()
}

func (i *tableIter) Key() base.InternalKey {
	return i.key
}

func (i *tableIter) Value() []byte {
	return i.data.Value()
}

func (i *tableIter) Error() error {
	return i.err
}

func (i *tableIter) Close() error {
	i.data = nil
	return i.err
}
