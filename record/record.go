// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package record reads and writes sequences of records. Each record is a
// stream of bytes that completes before the next record starts.
//
// The stream is divided into 32 KiB blocks. A record is stored as one or
// more chunks, each with a 7-byte header, and a chunk never crosses a block
// boundary. The header holds a CRC32C checksum over the chunk type and
// payload (4 bytes), the payload length (2 bytes) and the chunk type (1
// byte). When fewer than 7 bytes remain in a block, they are zero padding.
//
// The database manifest is written in this format.
package record

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/cockroachdb/errors"
)

const (
	// BlockSize is the size of a block.
	BlockSize = 32 * 1024
	// HeaderSize is the size of a chunk header.
	HeaderSize = 7
)

// Chunk types.
const (
	// Full is a chunk holding a whole record.
	Full uint8 = 1
	// First is the first chunk of a record spanning several blocks.
	First uint8 = 2
	// Middle is an interior chunk of a record.
	Middle uint8 = 3
	// Last is the final chunk of a record.
	Last uint8 = 4
)

// ErrCorrupt is returned when a chunk fails its checksum or the chunk
// sequence is malformed.
var ErrCorrupt = errors.New("propdb/record: corrupt log")

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func checksum(kind uint8, payload []byte) uint32 {
	c := crc32.Update(0, crcTable, []byte{kind})
	return crc32.Update(c, crcTable, payload)
}

// Reader reads records from a log written by a LogWriter.
//
// A log whose final record was cut short, as happens when the process
// exits while appending, yields io.ErrUnexpectedEOF from Next after every
// complete record has been returned.
type Reader struct {
	r   io.Reader
	buf [BlockSize]byte
	// buf[off:n] holds the unread part of the current block.
	off, n int
	// last is set once a short block has been read: no block follows it.
	last bool
	err  error
}

// NewReader returns a reader for the log held by r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// nextChunk returns the next chunk. The payload aliases the reader's
// buffer.
func (r *Reader) nextChunk() (kind uint8, payload []byte, err error) {
	for {
		if r.n-r.off < HeaderSize {
			if r.last {
				if r.n == r.off {
					return 0, nil, io.EOF
				}
				return 0, nil, io.ErrUnexpectedEOF
			}
			n, err := io.ReadFull(r.r, r.buf[:])
			switch {
			case err == io.ErrUnexpectedEOF:
				r.last = true
			case err == io.EOF:
				r.last = true
				n = 0
			case err != nil:
				return 0, nil, err
			}
			r.off, r.n = 0, n
			continue
		}

		h := r.buf[r.off : r.off+HeaderSize]
		sum := binary.LittleEndian.Uint32(h[0:4])
		length := int(binary.LittleEndian.Uint16(h[4:6]))
		kind = h[6]
		start := r.off + HeaderSize
		if start+length > r.n {
			if r.last {
				return 0, nil, io.ErrUnexpectedEOF
			}
			return 0, nil, ErrCorrupt
		}
		payload = r.buf[start : start+length]
		if kind < Full || kind > Last || checksum(kind, payload) != sum {
			return 0, nil, ErrCorrupt
		}
		r.off = start + length
		return kind, payload, nil
	}
}

// Next returns a reader for the next record. It returns io.EOF when there
// are no more records. The returned reader is valid until the next call to
// Next.
func (r *Reader) Next() (io.Reader, error) {
	if r.err != nil {
		return nil, r.err
	}
	var rec []byte
	inRecord := false
	for {
		kind, payload, err := r.nextChunk()
		if err != nil {
			if err == io.EOF && inRecord {
				err = io.ErrUnexpectedEOF
			}
			r.err = err
			return nil, err
		}
		switch kind {
		case Full, First:
			if inRecord {
				r.err = ErrCorrupt
				return nil, r.err
			}
			if kind == Full {
				return bytes.NewReader(payload), nil
			}
			rec = append(rec[:0], payload...)
			inRecord = true
		case Middle, Last:
			if !inRecord {
				r.err = ErrCorrupt
				return nil, r.err
			}
			rec = append(rec, payload...)
			if kind == Last {
				return bytes.NewReader(rec), nil
			}
		}
	}
}
