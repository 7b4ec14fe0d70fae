// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestInternalKeyEncodeParse(t *testing.T) {
	k := MakeInternalKey([]byte("foo"), 42, InternalKeyKindSet)
	require.Equal(t, uint64(42), k.SeqNum())
	require.Equal(t, InternalKeyKindSet, k.Kind())

	enc := k.Encode(nil)
	require.Len(t, enc, k.Size())
	got, ok := ParseInternalKey(enc)
	require.True(t, ok)
	require.Equal(t, k.UserKey, got.UserKey)
	require.Equal(t, k.Trailer, got.Trailer)

	_, ok = ParseInternalKey([]byte("short"))
	require.False(t, ok)
}

func TestInternalCompare(t *testing.T) {
	a1 := MakeInternalKey([]byte("a"), 1, InternalKeyKindSet)
	a2 := MakeInternalKey([]byte("a"), 2, InternalKeyKindSet)
	b1 := MakeInternalKey([]byte("b"), 1, InternalKeyKindSet)
	require.Equal(t, -1, InternalCompare(bytes.Compare, a2, a1))
	require.Equal(t, -1, InternalCompare(bytes.Compare, a1, b1))
	require.Equal(t, 0, InternalCompare(bytes.Compare, b1, b1))
}

func TestCorruptionErrorf(t *testing.T) {
	err := CorruptionErrorf("bad block %d", 3)
	require.True(t, IsCorruptionError(err))
	require.True(t, IsCorruptionError(errors.Wrap(err, "reading table")))
	require.False(t, IsCorruptionError(ErrNotFound))
}
