// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package propdb

import (
	"testing"

	"github.com/khushmanvar/propdb/internal/base"
	"github.com/stretchr/testify/require"
)

func TestBatch(t *testing.T) {
	type record struct {
		kind       base.InternalKeyKind
		key, value string
	}
	want := []record{
		{base.InternalKeyKindSet, "roses", "red"},
		{base.InternalKeyKindSet, "violets", "blue"},
		{base.InternalKeyKindDelete, "roses", ""},
		{base.InternalKeyKindSet, "", ""},
		{base.InternalKeyKindRangeDelete, "a", "z"},
	}

	b := NewBatch()
	require.True(t, b.Empty())
	for _, r := range want {
		switch r.kind {
		case base.InternalKeyKindSet:
			require.NoError(t, b.Set([]byte(r.key), []byte(r.value)))
		case base.InternalKeyKindDelete:
			require.NoError(t, b.Delete([]byte(r.key)))
		case base.InternalKeyKindRangeDelete:
			require.NoError(t, b.DeleteRange([]byte(r.key), []byte(r.value)))
		}
	}
	require.Equal(t, uint32(len(want)), b.Count())
	require.Zero(t, b.SeqNum())

	var got []record
	r := b.reader()
	for {
		kind, key, value, ok, err := r.next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, record{kind, string(key), string(value)})
	}
	require.Equal(t, want, got)

	b.setSeqNum(42)
	require.Equal(t, uint64(42), b.SeqNum())

	b.Reset()
	require.True(t, b.Empty())
	require.Zero(t, b.SeqNum())
}

func TestBatchCorrupt(t *testing.T) {
	b := NewBatch()
	require.NoError(t, b.Set([]byte("key"), []byte("value")))
	b.data = b.data[:len(b.data)-2]

	r := b.reader()
	_, _, _, ok, err := r.next()
	require.False(t, ok)
	require.True(t, base.IsCorruptionError(err))

	b.Reset()
	require.NoError(t, b.Delete([]byte("key")))
	b.data[batchHeaderLen] = 0x7f
	r = b.reader()
	_, _, _, _, err = r.next()
	require.True(t, base.IsCorruptionError(err))
}

func TestBatchReuseAfterApply(t *testing.T) {
	d := openDB(t, t.TempDir(), nil)
	defer d.Close()

	b := NewBatch()
	require.NoError(t, b.Set([]byte("a"), []byte("1")))
	require.NoError(t, d.Apply(b))
	b.Reset()
	require.NoError(t, b.Set([]byte("a"), []byte("2")))
	require.NoError(t, d.Apply(b))
	require.Equal(t, uint64(2), b.SeqNum())
	requireGet(t, d, "a", "2")

	// An empty batch is a no-op.
	require.NoError(t, d.Apply(NewBatch()))
}
