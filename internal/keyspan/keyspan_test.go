// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package keyspan

import (
	"bytes"
	"testing"

	"github.com/khushmanvar/propdb/internal/base"
	"github.com/stretchr/testify/require"
)

func TestSort(t *testing.T) {
	spans := []Span{
		{Start: []byte("c"), End: []byte("d"), SeqNum: 1},
		{Start: []byte("a"), End: []byte("z"), SeqNum: 2},
		{Start: []byte("c"), End: []byte("e"), SeqNum: 9},
	}
	Sort(bytes.Compare, spans)
	require.Equal(t, "a", string(spans[0].Start))
	require.Equal(t, uint64(9), spans[1].SeqNum)
	require.Equal(t, uint64(1), spans[2].SeqNum)
}

func TestCovers(t *testing.T) {
	s := Span{Start: []byte("b"), End: []byte("d"), SeqNum: 10}
	require.True(t, s.Valid(bytes.Compare))
	require.True(t, s.Covers(bytes.Compare, base.MakeInternalKey([]byte("b"), 3, base.InternalKeyKindSet)))
	require.True(t, s.Covers(bytes.Compare, base.MakeInternalKey([]byte("c"), 9, base.InternalKeyKindSet)))
	// End is exclusive.
	require.False(t, s.Covers(bytes.Compare, base.MakeInternalKey([]byte("d"), 3, base.InternalKeyKindSet)))
	// Newer keys survive the tombstone.
	require.False(t, s.Covers(bytes.Compare, base.MakeInternalKey([]byte("c"), 11, base.InternalKeyKindSet)))

	require.True(t, Covered(bytes.Compare, []Span{s}, base.MakeInternalKey([]byte("c"), 1, base.InternalKeyKindDelete)))
	require.False(t, Covered(bytes.Compare, nil, base.MakeInternalKey([]byte("c"), 1, base.InternalKeyKindDelete)))
}
