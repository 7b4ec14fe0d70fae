// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tableprops

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/khushmanvar/propdb/internal/base"
	"github.com/khushmanvar/propdb/internal/mvcc"
	"github.com/khushmanvar/propdb/sstable"
	"github.com/stretchr/testify/require"
)

func versioned(key string, wall int64, logical int32) base.InternalKey {
	k := mvcc.EncodeKey(nil, []byte(key), mvcc.Timestamp{WallTime: wall, Logical: logical})
	return base.MakeInternalKey(k, 1, base.InternalKeyKindSet)
}

func raw(key string) base.InternalKey {
	return base.MakeInternalKey([]byte(key), 1, base.InternalKeyKindSet)
}

// props turns collector output into a Getter.
func props(ps []sstable.Property) Getter {
	return RawBlock(sstable.EncodeProperties(nil, ps))
}

func TestTimeBoundCollector(t *testing.T) {
	c := TimeBoundCollectorFactory{}.NewCollector()
	require.Equal(t, TimeBoundCollectorName, c.Name())

	c.Add(raw("lock-key"), nil)
	c.Add(versioned("a", 5, 0), []byte("v"))
	c.Add(versioned("b", 2, 0), nil)
	c.Add(base.MakeInternalKey([]byte{'x', 0x07}, 1, base.InternalKeyKindSet), nil)
	c.Add(versioned("c", 9, 0), nil)
	c.AddRangeDeletion([]byte("a"), []byte("z"))
	c.Add(versioned("d", 2, 0), nil)
	c.Add(raw(""), nil)

	first := c.Finish()
	minTS, maxTS, ok := TimeBounds(props(first))
	require.True(t, ok)
	require.Equal(t, mvcc.Timestamp{WallTime: 2}, minTS)
	require.Equal(t, mvcc.Timestamp{WallTime: 9}, maxTS)

	require.Equal(t, first, c.Finish())
}

func TestTimeBoundCollectorLogical(t *testing.T) {
	c := &TimeBoundCollector{}
	c.Add(versioned("a", 10, 3), nil)
	c.Add(versioned("a", 10, 1), nil)
	c.Add(versioned("b", 10, 0), nil)
	c.Add(versioned("b", 10, 7), nil)
	minTS, maxTS, ok := TimeBounds(props(c.Finish()))
	require.True(t, ok)
	require.Equal(t, mvcc.Timestamp{WallTime: 10}, minTS)
	require.Equal(t, mvcc.Timestamp{WallTime: 10, Logical: 7}, maxTS)
}

func TestTimeBoundCollectorRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 50; iter++ {
		c := &TimeBoundCollector{}
		var want []mvcc.Timestamp
		for i, n := 0, rng.Intn(20); i < n; i++ {
			if rng.Intn(3) == 0 {
				c.Add(raw("meta"), nil)
				continue
			}
			ts := mvcc.Timestamp{WallTime: rng.Int63n(100) + 1, Logical: rng.Int31n(3)}
			want = append(want, ts)
			c.Add(versioned("k", ts.WallTime, ts.Logical), nil)
		}
		minTS, maxTS, ok := TimeBounds(props(c.Finish()))
		if len(want) == 0 {
			require.False(t, ok)
			continue
		}
		require.True(t, ok)
		wantMin, wantMax := want[0], want[0]
		for _, ts := range want[1:] {
			if ts.Less(wantMin) {
				wantMin = ts
			}
			if wantMax.Less(ts) {
				wantMax = ts
			}
		}
		require.Equal(t, wantMin, minTS)
		require.Equal(t, wantMax, maxTS)
	}
}

func TestCollectorsWithoutEvents(t *testing.T) {
	tb := TimeBoundCollectorFactory{}.NewCollector().Finish()
	require.Len(t, tb, 2)
	for _, p := range tb {
		require.Empty(t, p.Value)
	}
	_, _, ok := TimeBounds(props(tb))
	require.False(t, ok)

	dr := DeleteRangeCollectorFactory{}.NewCollector().Finish()
	require.Equal(t, []sstable.Property{{Name: DeleteRangeProperty, Value: []byte{0}}}, dr)
	require.False(t, HasRangeDeletion(props(dr)))
}

func TestDeleteRangeCollector(t *testing.T) {
	c := DeleteRangeCollectorFactory{}.NewCollector()
	require.Equal(t, DeleteRangeCollectorName, c.Name())
	tb := TimeBoundCollectorFactory{}.NewCollector()
	for i := 0; i < 100; i++ {
		k := versioned("k", int64(i+1), 0)
		c.Add(k, nil)
		tb.Add(k, nil)
		if i == 40 {
			c.AddRangeDeletion([]byte("m"), []byte("n"))
			tb.AddRangeDeletion([]byte("m"), []byte("n"))
		}
	}
	first := c.Finish()
	require.True(t, HasRangeDeletion(props(first)))
	require.Equal(t, first, c.Finish())

	minTS, maxTS, ok := TimeBounds(props(tb.Finish()))
	require.True(t, ok)
	require.Equal(t, int64(1), minTS.WallTime)
	require.Equal(t, int64(100), maxTS.WallTime)

	// The number and extents of tombstones do not matter.
	c.AddRangeDeletion([]byte("a"), []byte("b"))
	c.AddRangeDeletion([]byte("a"), []byte("zzz"))
	require.Equal(t, first, c.Finish())
}

func TestMissingOrMalformedProperties(t *testing.T) {
	block := sstable.EncodeProperties(nil, []sstable.Property{
		{Name: sstable.PropNumEntries, Value: []byte{3}},
	})
	require.False(t, HasRangeDeletion(RawBlock(block)))
	_, _, ok := TimeBounds(RawBlock(block))
	require.False(t, ok)

	var nilProps *sstable.TableProperties
	require.False(t, HasRangeDeletion(nilProps))

	for _, v := range [][]byte{nil, {2}, {1, 1}} {
		require.False(t, HasRangeDeletion(props([]sstable.Property{{Name: DeleteRangeProperty, Value: v}})))
	}

	ts := func(wall int64) []byte { return mvcc.EncodeTimestamp(nil, mvcc.Timestamp{WallTime: wall}) }
	for _, ps := range [][]sstable.Property{
		{{Name: TimeBoundMinProperty, Value: ts(1)}},
		{{Name: TimeBoundMinProperty, Value: ts(1)}, {Name: TimeBoundMaxProperty, Value: []byte{1, 2, 3}}},
		{{Name: TimeBoundMinProperty, Value: ts(5)}, {Name: TimeBoundMaxProperty, Value: ts(1)}},
		{{Name: TimeBoundMinProperty, Value: nil}, {Name: TimeBoundMaxProperty, Value: ts(1)}},
	} {
		_, _, ok := TimeBounds(props(ps))
		require.False(t, ok)
	}

	// A truncated block still serves the entries before the damage.
	good := sstable.EncodeProperties(nil, []sstable.Property{
		{Name: DeleteRangeProperty, Value: []byte{1}},
		{Name: TimeBoundMaxProperty, Value: ts(9)},
	})
	truncated := RawBlock(good[:len(good)-2])
	require.True(t, HasRangeDeletion(truncated))
	_, _, ok = TimeBounds(truncated)
	require.False(t, ok)
}

func TestTimeBoundFilter(t *testing.T) {
	ts := func(wall int64) mvcc.Timestamp { return mvcc.Timestamp{WallTime: wall} }
	table := props([]sstable.Property{
		{Name: TimeBoundMinProperty, Value: mvcc.EncodeTimestamp(nil, ts(10))},
		{Name: TimeBoundMaxProperty, Value: mvcc.EncodeTimestamp(nil, ts(20))},
	})
	unknown := props(nil)

	testCases := []struct {
		min, max mvcc.Timestamp
		want     bool
	}{
		{ts(1), ts(9), false},
		{ts(1), ts(10), true},
		{ts(15), ts(16), true},
		{ts(20), ts(30), true},
		{ts(21), ts(30), false},
		{ts(21), mvcc.Timestamp{}, false},
		{ts(5), mvcc.Timestamp{}, true},
		{mvcc.Timestamp{WallTime: 20, Logical: 1}, ts(30), false},
	}
	for _, tc := range testCases {
		f := TimeBoundFilter{Min: tc.min, Max: tc.max}
		require.Equal(t, tc.want, f.MayContain(table), "[%s, %s]", tc.min, tc.max)
		require.True(t, f.MayContain(unknown))
	}
}

// TestTableRoundTrip writes tables through the sstable writer with the
// default collectors and reads the properties back from disk.
func TestTableRoundTrip(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, fn func(w *sstable.Writer)) *sstable.Reader {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		require.NoError(t, err)
		w := sstable.NewWriter(f, sstable.WriterOptions{TablePropertyCollectors: DefaultCollectors()})
		fn(w)
		require.NoError(t, w.Close())

		f2, err := os.Open(path)
		require.NoError(t, err)
		st, err := f2.Stat()
		require.NoError(t, err)
		r, err := sstable.NewReader(f2, st.Size(), sstable.ReaderOptions{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = r.Close() })
		return r
	}

	r := write("000001.sst", func(w *sstable.Writer) {
		require.NoError(t, w.Add(raw("a-meta"), nil))
		require.NoError(t, w.Add(versioned("b", 3, 2), []byte("1")))
		require.NoError(t, w.Add(versioned("b", 7, 0), []byte("2")))
		require.NoError(t, w.DeleteRange([]byte("c"), []byte("d"), 9))
		require.NoError(t, w.Add(versioned("e", 5, 0), []byte("3")))
	})
	require.Equal(t, []string{TimeBoundCollectorName, DeleteRangeCollectorName}, r.Properties().CollectorNames())
	s := Summarize(r.Properties())
	require.Equal(t, Summary{
		HasTimeBounds:    true,
		MinTimestamp:     mvcc.Timestamp{WallTime: 3, Logical: 2},
		MaxTimestamp:     mvcc.Timestamp{WallTime: 7},
		HasRangeDeletion: true,
	}, s)

	r = write("000002.sst", func(w *sstable.Writer) {
		require.NoError(t, w.Add(raw("plain"), []byte("x")))
	})
	require.Equal(t, Summary{}, Summarize(r.Properties()))
	v, ok := r.Properties().Get(DeleteRangeProperty)
	require.True(t, ok)
	require.Equal(t, []byte{0}, v)
}
