// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package mvcc implements the key encoding used for multi-version keys. A
// versioned key is laid out as
//
//	<user key> 0x00 <wall time: 8 bytes BE> [<logical: 4 bytes BE>] <len>
//
// where <len> is the length of the timestamp plus one (9 or 13). An
// unversioned key is <user key> 0x00, so its final byte is zero. Metadata and
// lock keys are written unversioned.
package mvcc

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	sentinel = 0x00

	wallTimeLen         = 8
	wallAndLogicalLen   = 12
	wallLogicalSynthLen = 13
)

// Timestamp is an MVCC timestamp: a wall clock reading in nanoseconds and a
// logical counter that orders events sharing a wall time.
type Timestamp struct {
	WallTime int64
	Logical  int32
}

// IsEmpty returns true if both components are zero.
func (t Timestamp) IsEmpty() bool {
	return t == Timestamp{}
}

// Compare orders timestamps by wall time, then by logical counter.
func (t Timestamp) Compare(o Timestamp) int {
	switch {
	case t.WallTime < o.WallTime:
		return -1
	case t.WallTime > o.WallTime:
		return 1
	case t.Logical < o.Logical:
		return -1
	case t.Logical > o.Logical:
		return 1
	}
	return 0
}

// Less returns true if t orders strictly before o.
func (t Timestamp) Less(o Timestamp) bool {
	return t.Compare(o) < 0
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d,%d", t.WallTime, t.Logical)
}

// ParseTimestamp parses the "wall[,logical]" form produced by String.
func ParseTimestamp(s string) (Timestamp, error) {
	wallStr, logicalStr, hasLogical := strings.Cut(strings.TrimSpace(s), ",")
	wall, err := strconv.ParseInt(wallStr, 10, 64)
	if err != nil {
		return Timestamp{}, errors.Wrapf(err, "parsing wall time of %q", s)
	}
	ts := Timestamp{WallTime: wall}
	if hasLogical {
		logical, err := strconv.ParseInt(logicalStr, 10, 32)
		if err != nil {
			return Timestamp{}, errors.Wrapf(err, "parsing logical counter of %q", s)
		}
		ts.Logical = int32(logical)
	}
	return ts, nil
}

// EncodedTimestampLen returns the number of bytes EncodeTimestamp appends.
func EncodedTimestampLen(ts Timestamp) int {
	if ts.Logical != 0 {
		return wallAndLogicalLen
	}
	return wallTimeLen
}

// EncodeTimestamp appends the fixed-width encoding of ts to dst. The logical
// counter is omitted when zero.
func EncodeTimestamp(dst []byte, ts Timestamp) []byte {
	dst = binary.BigEndian.AppendUint64(dst, uint64(ts.WallTime))
	if ts.Logical != 0 {
		dst = binary.BigEndian.AppendUint32(dst, uint32(ts.Logical))
	}
	return dst
}

// DecodeTimestamp decodes a timestamp produced by EncodeTimestamp. A trailing
// synthetic flag byte, written by older versions, is accepted and ignored.
func DecodeTimestamp(b []byte) (Timestamp, error) {
	switch len(b) {
	case wallTimeLen:
		return Timestamp{WallTime: int64(binary.BigEndian.Uint64(b))}, nil
	case wallAndLogicalLen, wallLogicalSynthLen:
		return Timestamp{
			WallTime: int64(binary.BigEndian.Uint64(b)),
			Logical:  int32(binary.BigEndian.Uint32(b[wallTimeLen:])),
		}, nil
	}
	return Timestamp{}, errors.Errorf("invalid encoded mvcc timestamp length %d: %x", len(b), b)
}

// EncodeKey appends the MVCC encoding of key at ts to dst. An empty ts
// produces an unversioned key.
func EncodeKey(dst, key []byte, ts Timestamp) []byte {
	dst = append(dst, key...)
	dst = append(dst, sentinel)
	if ts.IsEmpty() {
		return dst
	}
	n := len(dst)
	dst = EncodeTimestamp(dst, ts)
	return append(dst, byte(len(dst)-n+1))
}

// DecodeKey splits an encoded key into its user key and timestamp. ok is false
// when the key carries no timestamp or does not follow the encoding; callers
// treat that as a normal outcome.
func DecodeKey(b []byte) (key []byte, ts Timestamp, ok bool) {
	if len(b) == 0 {
		return nil, Timestamp{}, false
	}
	versionLen := int(b[len(b)-1])
	if versionLen == 0 {
		return b[:len(b)-1], Timestamp{}, false
	}
	prefixEnd := len(b) - 1 - versionLen
	if prefixEnd < 0 || b[prefixEnd] != sentinel {
		return nil, Timestamp{}, false
	}
	ts, err := DecodeTimestamp(b[prefixEnd+1 : len(b)-1])
	if err != nil {
		return nil, Timestamp{}, false
	}
	return b[:prefixEnd], ts, true
}
