// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

// The table file format looks like:
//
//	<start_of_file>
//	[data block 0]
//	...
//	[data block N-1]
//	[range deletion block] (optional)
//	[properties block]
//	[metaindex block]
//	[index block]
//	[footer]
//	<end_of_file>
//
// Each block is followed by a 5 byte trailer: a 1 byte compression type and a
// 4 byte CRC-32C of the stored block contents and type byte. The properties
// block is never compressed so that tools can read it without a codec.

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/khushmanvar/propdb/internal/base"
)

// TableMagic is the magic number for table files.
const TableMagic = 0x70726f7064620a01

// FooterSize is the size of the table footer: two varint encoded block
// handles padded to 40 bytes followed by the 8 byte magic number.
const FooterSize = 48

const blockTrailerLen = 5

// Names of the entries in the metaindex block.
const (
	metaPropertiesName = "propdb.table.properties"
	metaRangeDelName   = "propdb.table.range_deletions"
)

// Compression is the per-block compression algorithm to use.
type Compression int

// The available compression types.
const (
	NoCompression Compression = iota
	SnappyCompression
)

func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "NoCompression"
	case SnappyCompression:
		return "Snappy"
	}
	return "Unknown"
}

// ParseCompression parses the name produced by Compression.String, ignoring
// case for the common spellings.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none", "NoCompression":
		return NoCompression, nil
	case "snappy", "Snappy":
		return SnappyCompression, nil
	}
	return NoCompression, errors.Errorf("unknown compression %q", s)
}

const (
	noCompressionBlockType     byte = 0
	snappyCompressionBlockType byte = 1
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ErrNotAnSSTable is returned if the file is not a table file.
var ErrNotAnSSTable = errors.New("propdb/table: not an sstable")

// BlockHandle is the location of a block.
type BlockHandle struct {
	Offset uint64
	Length uint64
}

// Encode encodes a BlockHandle into buf, which must be at least
// 2*binary.MaxVarintLen64 bytes, and returns the number of bytes written.
func (h BlockHandle) Encode(buf []byte) int {
	n := binary.PutUvarint(buf, h.Offset)
	n += binary.PutUvarint(buf[n:], h.Length)
	return n
}

func (h BlockHandle) append(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, h.Offset)
	return binary.AppendUvarint(dst, h.Length)
}

// decodeBlockHandle decodes a BlockHandle, returning the number of bytes
// consumed or 0 if buf does not hold a valid handle.
func decodeBlockHandle(buf []byte) (BlockHandle, int) {
	offset, n1 := binary.Uvarint(buf)
	if n1 <= 0 {
		return BlockHandle{}, 0
	}
	length, n2 := binary.Uvarint(buf[n1:])
	if n2 <= 0 {
		return BlockHandle{}, 0
	}
	return BlockHandle{Offset: offset, Length: length}, n1 + n2
}

// ReadFooter reads the footer of the table of the given size.
func ReadFooter(r io.ReaderAt, size int64) (metaindexBH, indexBH BlockHandle, err error) {
	var footer [FooterSize]byte
	if size < FooterSize {
		return BlockHandle{}, BlockHandle{}, ErrNotAnSSTable
	}
	if _, err := r.ReadAt(footer[:], size-FooterSize); err != nil {
		return BlockHandle{}, BlockHandle{}, errors.Wrap(err, "propdb/table: reading footer")
	}
	if magic := binary.LittleEndian.Uint64(footer[FooterSize-8:]); magic != TableMagic {
		return BlockHandle{}, BlockHandle{}, ErrNotAnSSTable
	}
	metaindexBH, n := decodeBlockHandle(footer[:])
	if n == 0 {
		return BlockHandle{}, BlockHandle{}, base.CorruptionErrorf("propdb/table: invalid metaindex handle in footer")
	}
	indexBH, m := decodeBlockHandle(footer[n:])
	if m == 0 {
		return BlockHandle{}, BlockHandle{}, base.CorruptionErrorf("propdb/table: invalid index handle in footer")
	}
	return metaindexBH, indexBH, nil
}

func checksum(b []byte, blockType byte) uint32 {
	h := crc32.New(crcTable)
	h.Write(b)
	h.Write([]byte{blockType})
	return h.Sum32()
}
