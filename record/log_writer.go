// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"encoding/binary"
	"io"
)

// syncer is implemented by writers backed by stable storage.
type syncer interface {
	Sync() error
}

// LogWriter appends records to a log. It is not safe for concurrent use.
type LogWriter struct {
	w io.Writer
	// blockOffset is the number of bytes written to the current block.
	blockOffset int
	buf         []byte
	err         error
}

// NewLogWriter returns a writer that appends records to w, which must be
// positioned at a block boundary.
func NewLogWriter(w io.Writer) *LogWriter {
	return &LogWriter{w: w}
}

// WriteRecord writes p as a single record. The record is passed to the
// underlying writer before WriteRecord returns; use Sync to make it
// durable.
func (lw *LogWriter) WriteRecord(p []byte) error {
	if lw.err != nil {
		return lw.err
	}
	lw.buf = lw.buf[:0]
	first := true
	for {
		space := BlockSize - lw.blockOffset
		if space < HeaderSize {
			lw.buf = append(lw.buf, make([]byte, space)...)
			lw.blockOffset = 0
			continue
		}

		n := len(p)
		if n > space-HeaderSize {
			n = space - HeaderSize
		}
		done := n == len(p)
		var kind uint8
		switch {
		case first && done:
			kind = Full
		case first:
			kind = First
		case done:
			kind = Last
		default:
			kind = Middle
		}

		var header [HeaderSize]byte
		binary.LittleEndian.PutUint32(header[0:4], checksum(kind, p[:n]))
		binary.LittleEndian.PutUint16(header[4:6], uint16(n))
		header[6] = kind
		lw.buf = append(lw.buf, header[:]...)
		lw.buf = append(lw.buf, p[:n]...)
		lw.blockOffset += HeaderSize + n
		p = p[n:]
		first = false
		if done {
			break
		}
	}
	if _, err := lw.w.Write(lw.buf); err != nil {
		lw.err = err
		return err
	}
	return nil
}

// Sync syncs the underlying writer if it supports syncing.
func (lw *LogWriter) Sync() error {
	if lw.err != nil {
		return lw.err
	}
	if s, ok := lw.w.(syncer); ok {
		if err := s.Sync(); err != nil {
			lw.err = err
			return err
		}
	}
	return nil
}
