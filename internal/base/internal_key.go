// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"encoding/binary"
	"fmt"
)

// InternalKeyKind enumerates the kind of key: a deletion tombstone, a set
// value or a range deletion tombstone.
type InternalKeyKind uint8

// These constants are part of the file format and should not be changed.
const (
	InternalKeyKindDelete      InternalKeyKind = 0
	InternalKeyKindSet         InternalKeyKind = 1
	InternalKeyKindRangeDelete InternalKeyKind = 15

	// InternalKeyKindMax is the largest valid kind. Seeking with it as the
	// trailer positions before every entry with the same user key and
	// sequence number.
	InternalKeyKindMax InternalKeyKind = 15

	// InternalKeyKindInvalid is returned for malformed trailers.
	InternalKeyKindInvalid InternalKeyKind = 255
)

// InternalKeySeqNumMax is the largest valid sequence number.
const InternalKeySeqNumMax = uint64(1<<56 - 1)

// InternalTrailerLen is the number of bytes used to encode the trailer.
const InternalTrailerLen = 8

// String returns a string representation of the key kind.
func (k InternalKeyKind) String() string {
	switch k {
	case InternalKeyKindDelete:
		return "DEL"
	case InternalKeyKindSet:
		return "SET"
	case InternalKeyKindRangeDelete:
		return "RANGEDEL"
	}
	return fmt.Sprintf("UNKNOWN:%d", uint8(k))
}

// InternalKey is a key used internally by the database. The trailer packs a
// 56-bit sequence number with an 8-bit kind.
type InternalKey struct {
	UserKey []byte
	Trailer uint64
}

// MakeInternalKey creates an internal key from a user key, sequence number, and
// kind.
func MakeInternalKey(userKey []byte, seqNum uint64, kind InternalKeyKind) InternalKey {
	return InternalKey{
		UserKey: userKey,
		Trailer: (seqNum << 8) | uint64(kind),
	}
}

// Kind returns the kind of the internal key.
func (k InternalKey) Kind() InternalKeyKind {
	return InternalKeyKind(k.Trailer & 0xff)
}

// SeqNum returns the sequence number of the internal key.
func (k InternalKey) SeqNum() uint64 {
	return k.Trailer >> 8
}

// Size returns the encoded size of the key.
func (k InternalKey) Size() int {
	return len(k.UserKey) + InternalTrailerLen
}

// Clone returns a copy of the key that does not alias the receiver's memory.
func (k InternalKey) Clone() InternalKey {
	if k.UserKey == nil {
		return k
	}
	return InternalKey{
		UserKey: append([]byte(nil), k.UserKey...),
		Trailer: k.Trailer,
	}
}

// String implements fmt.Stringer.
func (k InternalKey) String() string {
	return fmt.Sprintf("%q#%d,%s", k.UserKey, k.SeqNum(), k.Kind())
}

// ParseInternalKey parses an internal key from a byte slice. The returned key
// aliases b.
func ParseInternalKey(b []byte) (InternalKey, bool) {
	if len(b) < InternalTrailerLen {
		return InternalKey{}, false
	}
	n := len(b) - InternalTrailerLen
	return InternalKey{
		UserKey: b[:n:n],
		Trailer: binary.LittleEndian.Uint64(b[n:]),
	}, true
}

// Encode appends the encoded internal key to dst.
func (k InternalKey) Encode(dst []byte) []byte {
	dst = append(dst, k.UserKey...)
	var buf [InternalTrailerLen]byte
	binary.LittleEndian.PutUint64(buf[:], k.Trailer)
	return append(dst, buf[:]...)
}

// InternalCompare compares two internal keys using the specified comparison
// function. User keys sort ascending; for equal user keys, higher sequence
// numbers (newer entries) sort first.
func InternalCompare(userCmp Compare, a, b InternalKey) int {
	if x := userCmp(a.UserKey, b.UserKey); x != 0 {
		return x
	}
	if a.Trailer > b.Trailer {
		return -1
	}
	if a.Trailer < b.Trailer {
		return 1
	}
	return 0
}
