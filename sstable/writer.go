// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"bufio"
	"encoding/binary"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/khushmanvar/propdb/internal/base"
)

// WriterOptions configure a Writer.
type WriterOptions struct {
	// BlockSize is the target uncompressed size of data blocks.
	BlockSize int
	// BlockRestartInterval is the number of keys between restart points.
	BlockRestartInterval int
	// Compression is the data block compression.
	Compression Compression
	// Comparer orders the keys added to the table.
	Comparer *base.Comparer
	// TablePropertyCollectors create the collectors that observe the table.
	// One collector of each kind is created per Writer.
	TablePropertyCollectors []TablePropertyCollectorFactory
	// Logger reports property name conflicts.
	Logger base.Logger
}

func (o WriterOptions) ensureDefaults() WriterOptions {
	if o.BlockSize <= 0 {
		o.BlockSize = 4096
	}
	if o.BlockRestartInterval <= 0 {
		o.BlockRestartInterval = 16
	}
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	return o
}

// WriterMetadata describes a table once it has been written.
type WriterMetadata struct {
	Size           uint64
	Smallest       base.InternalKey
	Largest        base.InternalKey
	SmallestSeqNum uint64
	LargestSeqNum  uint64
	Properties     TableProperties
}

// Writer is a table writer. Point keys are added with Add in strictly
// increasing internal key order; range deletions are added with DeleteRange
// in increasing start key order. Every configured collector observes each
// entry before Close writes the collected properties.
type Writer struct {
	w      io.Writer
	buf    *bufio.Writer
	offset uint64
	err    error
	opts   WriterOptions
	cmp    base.Compare

	block    blockWriter
	index    blockWriter
	rangeDel blockWriter
	props    TableProperties

	collectors []TablePropertyCollector

	meta            WriterMetadata
	hasPointKeys    bool
	hasRangeDels    bool
	lastPointKey    base.InternalKey
	lastRangeStart  []byte
	rangeSmallest   base.InternalKey
	rangeLargestEnd []byte
	keyBuf          []byte
	compressedBuf   []byte
	closed          bool
}

// NewWriter returns a Writer that writes a table to w. If w implements
// Sync or Close they are called by Writer.Close.
func NewWriter(w io.Writer, o WriterOptions) *Writer {
	o = o.ensureDefaults()
	tw := &Writer{
		w:    w,
		buf:  bufio.NewWriter(w),
		opts: o,
		cmp:  o.Comparer.Compare,
	}
	tw.block.restartInterval = o.BlockRestartInterval
	tw.index.restartInterval = 1
	tw.rangeDel.restartInterval = 1
	tw.props.ComparerName = o.Comparer.Name
	tw.props.CompressionName = o.Compression.String()

	names := make([]string, 0, len(o.TablePropertyCollectors))
	tw.collectors = make([]TablePropertyCollector, 0, len(o.TablePropertyCollectors))
	for _, f := range o.TablePropertyCollectors {
		c := f.NewCollector()
		tw.collectors = append(tw.collectors, c)
		names = append(names, c.Name())
	}
	tw.props.PropertyCollectorNames = "[" + strings.Join(names, ",") + "]"
	return tw
}

// Add adds a point key and value to the table.
func (w *Writer) Add(key base.InternalKey, value []byte) error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return errors.New("propdb/table: writer is closed")
	}
	switch key.Kind() {
	case base.InternalKeyKindSet, base.InternalKeyKindDelete:
	case base.InternalKeyKindRangeDelete:
		return errors.New("propdb/table: range deletions must be added with DeleteRange")
	default:
		return errors.Errorf("propdb/table: invalid key kind %s", key.Kind())
	}
	if w.hasPointKeys && base.InternalCompare(w.cmp, w.lastPointKey, key) >= 0 {
		w.err = errors.Errorf("propdb/table: keys must be added in strictly increasing order: %s, %s",
			w.lastPointKey, key)
		return w.err
	}

	if !w.hasPointKeys {
		w.meta.Smallest = key.Clone()
	}
	w.hasPointKeys = true
	w.lastPointKey.UserKey = append(w.lastPointKey.UserKey[:0], key.UserKey...)
	w.lastPointKey.Trailer = key.Trailer
	w.updateSeqNums(key.SeqNum())

	w.props.NumEntries++
	if key.Kind() == base.InternalKeyKindDelete {
		w.props.NumDeletions++
	}
	w.props.RawKeySize += uint64(key.Size())
	w.props.RawValueSize += uint64(len(value))

	for _, c := range w.collectors {
		c.Add(key, value)
	}

	w.keyBuf = key.Encode(w.keyBuf[:0])
	w.block.add(w.keyBuf, value)
	if w.block.size() >= w.opts.BlockSize {
		w.finishDataBlock()
	}
	return w.err
}

// DeleteRange adds a range deletion tombstone deleting the keys in
// [start, end) written before seqNum.
func (w *Writer) DeleteRange(start, end []byte, seqNum uint64) error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return errors.New("propdb/table: writer is closed")
	}
	if w.cmp(start, end) >= 0 {
		return errors.Errorf("propdb/table: invalid range deletion [%q, %q)", start, end)
	}
	if w.hasRangeDels && w.cmp(w.lastRangeStart, start) > 0 {
		w.err = errors.Errorf("propdb/table: range deletions must be added in increasing start key order: %q, %q",
			w.lastRangeStart, start)
		return w.err
	}
	k := base.MakeInternalKey(start, seqNum, base.InternalKeyKindRangeDelete)
	if !w.hasRangeDels || base.InternalCompare(w.cmp, k, w.rangeSmallest) < 0 {
		w.rangeSmallest = k.Clone()
	}
	if !w.hasRangeDels || w.cmp(end, w.rangeLargestEnd) > 0 {
		w.rangeLargestEnd = append(w.rangeLargestEnd[:0], end...)
	}
	w.hasRangeDels = true
	w.lastRangeStart = append(w.lastRangeStart[:0], start...)
	w.updateSeqNums(seqNum)

	w.props.NumRangeDeletions++
	w.props.RawKeySize += uint64(len(start) + base.InternalTrailerLen)
	w.props.RawValueSize += uint64(len(end))

	for _, c := range w.collectors {
		c.AddRangeDeletion(start, end)
	}

	w.keyBuf = k.Encode(w.keyBuf[:0])
	w.rangeDel.add(w.keyBuf, end)
	return nil
}

func (w *Writer) updateSeqNums(seqNum uint64) {
	if w.props.NumEntries == 0 && w.props.NumRangeDeletions == 0 {
		w.meta.SmallestSeqNum, w.meta.LargestSeqNum = seqNum, seqNum
		return
	}
	if seqNum < w.meta.SmallestSeqNum {
		w.meta.SmallestSeqNum = seqNum
	}
	if seqNum > w.meta.LargestSeqNum {
		w.meta.LargestSeqNum = seqNum
	}
}

// EstimatedSize returns the number of bytes written so far plus the size of
// the pending data block.
func (w *Writer) EstimatedSize() uint64 {
	return w.offset + uint64(w.block.size())
}

// Close finishes writing the table, writes the collected properties and
// closes the underlying file.
func (w *Writer) Close() (err error) {
	defer func() {
		if closer, ok := w.w.(io.Closer); ok && !w.closed {
			if cerr := closer.Close(); err == nil {
				err = cerr
			}
		}
		w.closed = true
		if w.err == nil {
			w.err = err
		}
	}()
	if w.err != nil {
		return w.err
	}

	w.finishDataBlock()
	if w.err != nil {
		return w.err
	}

	var rangeDelBH BlockHandle
	if w.hasRangeDels {
		if rangeDelBH, err = w.writeBlock(w.rangeDel.finish(), NoCompression); err != nil {
			return err
		}
	}

	propsBH, err := w.writeBlock(EncodeProperties(nil, w.collectProperties()), NoCompression)
	if err != nil {
		return err
	}

	// The metaindex block is sorted by name.
	metaindex := blockWriter{restartInterval: 1}
	metaindex.add([]byte(metaPropertiesName), propsBH.append(nil))
	if w.hasRangeDels {
		metaindex.add([]byte(metaRangeDelName), rangeDelBH.append(nil))
	}
	metaindexBH, err := w.writeBlock(metaindex.finish(), NoCompression)
	if err != nil {
		return err
	}

	indexBH, err := w.writeBlock(w.index.finish(), w.opts.Compression)
	if err != nil {
		return err
	}

	var footer [FooterSize]byte
	n := metaindexBH.Encode(footer[:])
	indexBH.Encode(footer[n:])
	binary.LittleEndian.PutUint64(footer[FooterSize-8:], TableMagic)
	if _, err := w.buf.Write(footer[:]); err != nil {
		return errors.Wrap(err, "propdb/table: writing footer")
	}
	w.offset += FooterSize

	if err := w.buf.Flush(); err != nil {
		return errors.Wrap(err, "propdb/table: flushing")
	}
	if s, ok := w.w.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return errors.Wrap(err, "propdb/table: syncing")
		}
	}

	w.meta.Size = w.offset
	w.meta.Properties = w.props
	w.setBounds()
	return nil
}

// collectProperties finishes every collector and merges their output with
// the built-in properties. The first property written under a name wins.
func (w *Writer) collectProperties() []Property {
	w.props.SmallestSeqNum = w.meta.SmallestSeqNum
	w.props.LargestSeqNum = w.meta.LargestSeqNum
	props := w.props.builtin()
	seen := make(map[string]struct{}, len(props))
	for _, p := range props {
		seen[p.Name] = struct{}{}
	}
	for _, c := range w.collectors {
		for _, p := range c.Finish() {
			if _, ok := seen[p.Name]; ok {
				w.opts.Logger.Errorf("propdb/table: collector %s emitted duplicate property %q; ignoring", c.Name(), p.Name)
				continue
			}
			seen[p.Name] = struct{}{}
			props = append(props, Property{Name: p.Name, Value: append([]byte(nil), p.Value...)})
		}
	}
	sortProperties(props)
	w.props.load(props)
	return props
}

func (w *Writer) setBounds() {
	if w.hasPointKeys {
		w.meta.Largest = w.lastPointKey.Clone()
	}
	if !w.hasRangeDels {
		return
	}
	if !w.hasPointKeys || base.InternalCompare(w.cmp, w.rangeSmallest, w.meta.Smallest) < 0 {
		w.meta.Smallest = w.rangeSmallest.Clone()
	}
	// The end key is exclusive, which the sentinel sequence number expresses:
	// it sorts before any point key with the same user key.
	end := base.MakeInternalKey(w.rangeLargestEnd, base.InternalKeySeqNumMax, base.InternalKeyKindRangeDelete)
	if !w.hasPointKeys || base.InternalCompare(w.cmp, end, w.meta.Largest) > 0 {
		w.meta.Largest = end.Clone()
	}
}

// Metadata returns the metadata of the written table. It is only valid after
// Close returns successfully.
func (w *Writer) Metadata() (*WriterMetadata, error) {
	if !w.closed || w.err != nil {
		return nil, errors.New("propdb/table: writer is not closed")
	}
	return &w.meta, nil
}

func (w *Writer) finishDataBlock() {
	if w.block.empty() {
		return
	}
	bh, err := w.writeBlock(w.block.finish(), w.opts.Compression)
	if err != nil {
		w.err = err
		return
	}
	w.index.add(w.block.lastKey(), bh.append(nil))
	w.block.reset()
}

func (w *Writer) writeBlock(b []byte, compression Compression) (BlockHandle, error) {
	blockType := noCompressionBlockType
	if compression == SnappyCompression {
		w.compressedBuf = snappy.Encode(w.compressedBuf[:cap(w.compressedBuf)], b)
		if len(w.compressedBuf) < len(b)-len(b)/8 {
			blockType = snappyCompressionBlockType
			b = w.compressedBuf
		}
	}

	var trailer [blockTrailerLen]byte
	trailer[0] = blockType
	binary.LittleEndian.PutUint32(trailer[1:], checksum(b, blockType))

	bh := BlockHandle{Offset: w.offset, Length: uint64(len(b))}
	if _, err := w.buf.Write(b); err != nil {
		return BlockHandle{}, errors.Wrap(err, "propdb/table: writing block")
	}
	if _, err := w.buf.Write(trailer[:]); err != nil {
		return BlockHandle{}, errors.Wrap(err, "propdb/table: writing block trailer")
	}
	w.offset += bh.Length + blockTrailerLen
	return bh, nil
}
