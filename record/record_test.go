// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeRecords(t *testing.T, records ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewLogWriter(&buf)
	for _, r := range records {
		require.NoError(t, w.WriteRecord(r))
	}
	require.NoError(t, w.Sync())
	return buf.Bytes()
}

func readRecords(t *testing.T, log []byte) ([][]byte, error) {
	t.Helper()
	r := NewReader(bytes.NewReader(log))
	var records [][]byte
	for {
		rr, err := r.Next()
		if err != nil {
			if err == io.EOF {
				err = nil
			}
			return records, err
		}
		b, err := io.ReadAll(rr)
		require.NoError(t, err)
		records = append(records, b)
	}
}

func TestRoundTrip(t *testing.T) {
	testCases := []struct {
		name    string
		records [][]byte
	}{
		{"empty log", nil},
		{"empty record", [][]byte{{}}},
		{"small records", [][]byte{[]byte("a"), []byte("bc"), []byte("def")}},
		{"spans blocks", [][]byte{bytes.Repeat([]byte("x"), 3*BlockSize+17), []byte("tail")}},
		// Leaves fewer than HeaderSize bytes in the first block, which the
		// next record pads.
		{"padding", [][]byte{bytes.Repeat([]byte("p"), BlockSize-HeaderSize-3), []byte("next")}},
		// Fills the first block exactly.
		{"exact block", [][]byte{bytes.Repeat([]byte("e"), BlockSize-HeaderSize), []byte("next")}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := readRecords(t, writeRecords(t, tc.records...))
			require.NoError(t, err)
			require.Equal(t, len(tc.records), len(got))
			for i := range tc.records {
				require.Equal(t, tc.records[i], got[i])
			}
		})
	}
}

func TestTornTail(t *testing.T) {
	records := [][]byte{[]byte("one"), []byte(strings.Repeat("two", 20000))}
	log := writeRecords(t, records...)
	n := len(writeRecords(t, records[0]))

	for _, cut := range []int{n + 3, n + HeaderSize + 10, BlockSize + 5, len(log) - 1} {
		got, err := readRecords(t, log[:cut])
		require.ErrorIs(t, err, io.ErrUnexpectedEOF, "cut at %d", cut)
		require.Equal(t, records[:1], got, "cut at %d", cut)
	}
}

func TestCorruptChunk(t *testing.T) {
	log := writeRecords(t, []byte("one"), []byte("two"))
	log[len(log)-1] ^= 0xff
	got, err := readRecords(t, log)
	require.ErrorIs(t, err, ErrCorrupt)
	require.Equal(t, [][]byte{[]byte("one")}, got)

	// A Last chunk without a preceding First chunk.
	var buf bytes.Buffer
	w := NewLogWriter(&buf)
	require.NoError(t, w.WriteRecord([]byte("x")))
	b := buf.Bytes()
	b[6] = Last
	sum := checksum(Last, b[HeaderSize:])
	b[0], b[1], b[2], b[3] = byte(sum), byte(sum>>8), byte(sum>>16), byte(sum>>24)
	_, err = readRecords(t, b)
	require.ErrorIs(t, err, ErrCorrupt)
}
