// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/khushmanvar/propdb/internal/base"
	"github.com/stretchr/testify/require"
)

type recordingCollector struct {
	name      string
	adds      []string
	rangeDels []string
	finishes  int
}

func (c *recordingCollector) Add(key base.InternalKey, value []byte) {
	c.adds = append(c.adds, string(key.UserKey))
}

func (c *recordingCollector) AddRangeDeletion(start, end []byte) {
	c.rangeDels = append(c.rangeDels, fmt.Sprintf("%s-%s", start, end))
}

func (c *recordingCollector) Finish() []Property {
	c.finishes++
	return []Property{
		{Name: "test." + c.name + ".adds", Value: binary.AppendUvarint(nil, uint64(len(c.adds)))},
		{Name: "test." + c.name + ".range-dels", Value: binary.AppendUvarint(nil, uint64(len(c.rangeDels)))},
	}
}

func (c *recordingCollector) Name() string {
	return c.name
}

type recordingFactory struct {
	name    string
	created []*recordingCollector
}

func (f *recordingFactory) Name() string {
	return f.name
}

func (f *recordingFactory) NewCollector() TablePropertyCollector {
	c := &recordingCollector{name: f.name}
	f.created = append(f.created, c)
	return c
}

func writeTable(t *testing.T, o WriterOptions, fn func(w *Writer)) (*Reader, *WriterMetadata, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "000001.sst")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := NewWriter(f, o)
	fn(w)
	require.NoError(t, w.Close())
	meta, err := w.Metadata()
	require.NoError(t, err)
	return openTable(t, path), meta, path
}

func openTable(t *testing.T, path string) *Reader {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	st, err := f.Stat()
	require.NoError(t, err)
	r, err := NewReader(f, st.Size(), ReaderOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func setKey(k string, seq uint64) base.InternalKey {
	return base.MakeInternalKey([]byte(k), seq, base.InternalKeyKindSet)
}

func TestWriterRunsCollectors(t *testing.T) {
	a := &recordingFactory{name: "a"}
	b := &recordingFactory{name: "b"}
	r, _, _ := writeTable(t, WriterOptions{TablePropertyCollectors: []TablePropertyCollectorFactory{a, b}}, func(w *Writer) {
		require.NoError(t, w.Add(setKey("apple", 3), []byte("1")))
		require.NoError(t, w.Add(setKey("banana", 2), []byte("2")))
		require.NoError(t, w.DeleteRange([]byte("c"), []byte("d"), 4))
		require.NoError(t, w.Add(setKey("cherry", 1), []byte("3")))
		require.NoError(t, w.DeleteRange([]byte("e"), []byte("f"), 5))
	})

	for _, f := range []*recordingFactory{a, b} {
		require.Len(t, f.created, 1)
		c := f.created[0]
		require.Equal(t, []string{"apple", "banana", "cherry"}, c.adds)
		require.Equal(t, []string{"c-d", "e-f"}, c.rangeDels)
		require.Equal(t, 1, c.finishes)
	}

	props := r.Properties()
	require.NoError(t, r.PropertiesError())
	require.Equal(t, uint64(3), props.NumEntries)
	require.Equal(t, uint64(2), props.NumRangeDeletions)
	require.Equal(t, []string{"a", "b"}, props.CollectorNames())
	v, ok := props.Get("test.a.adds")
	require.True(t, ok)
	require.Equal(t, []byte{3}, v)
	v, ok = props.Get("test.b.range-dels")
	require.True(t, ok)
	require.Equal(t, []byte{2}, v)
}

func TestWriterDuplicatePropertyFirstWins(t *testing.T) {
	first := &recordingFactory{name: "dup"}
	second := &recordingFactory{name: "dup"}
	r, _, _ := writeTable(t, WriterOptions{TablePropertyCollectors: []TablePropertyCollectorFactory{first, second}}, func(w *Writer) {
		require.NoError(t, w.Add(setKey("a", 1), nil))
	})
	var n int
	for _, p := range r.Properties().All() {
		if p.Name == "test.dup.adds" {
			n++
		}
	}
	require.Equal(t, 1, n)
}

func TestWriterReaderRoundTrip(t *testing.T) {
	for _, compression := range []Compression{NoCompression, SnappyCompression} {
		t.Run(compression.String(), func(t *testing.T) {
			const n = 1000
			r, meta, _ := writeTable(t, WriterOptions{BlockSize: 256, Compression: compression}, func(w *Writer) {
				for i := 0; i < n; i++ {
					key := fmt.Sprintf("key%05d", i)
					require.NoError(t, w.Add(setKey(key, uint64(i+1)), []byte(fmt.Sprintf("value-%d", i))))
				}
			})
			require.Equal(t, "key00000", string(meta.Smallest.UserKey))
			require.Equal(t, "key00999", string(meta.Largest.UserKey))
			require.Equal(t, uint64(1), meta.SmallestSeqNum)
			require.Equal(t, uint64(n), meta.LargestSeqNum)
			require.Equal(t, compression.String(), r.Properties().CompressionName)
			smallest, largest, err := r.Bounds()
			require.NoError(t, err)
			require.Equal(t, meta.Smallest, smallest)
			require.Equal(t, meta.Largest, largest)

			it := r.NewIter()
			var i int
			for it.First(); it.Valid(); it.Next() {
				require.Equal(t, fmt.Sprintf("key%05d", i), string(it.Key().UserKey))
				require.Equal(t, fmt.Sprintf("value-%d", i), string(it.Value()))
				i++
			}
			require.NoError(t, it.Error())
			require.Equal(t, n, i)

			it.SeekGE([]byte("key00500"))
			require.True(t, it.Valid())
			require.Equal(t, "key00500", string(it.Key().UserKey))

			it.SeekGE([]byte("key00500x"))
			require.True(t, it.Valid())
			require.Equal(t, "key00501", string(it.Key().UserKey))

			it.SeekGE([]byte("zzz"))
			require.False(t, it.Valid())
			require.NoError(t, it.Close())
		})
	}
}

func TestWriterRangeDeletions(t *testing.T) {
	r, meta, _ := writeTable(t, WriterOptions{}, func(w *Writer) {
		require.NoError(t, w.DeleteRange([]byte("a"), []byte("m"), 7))
		require.NoError(t, w.Add(setKey("b", 3), []byte("x")))
		require.NoError(t, w.DeleteRange([]byte("c"), []byte("z"), 9))
	})
	spans, err := r.RangeDeletions()
	require.NoError(t, err)
	require.Len(t, spans, 2)
	require.Equal(t, "a", string(spans[0].Start))
	require.Equal(t, "m", string(spans[0].End))
	require.Equal(t, uint64(7), spans[0].SeqNum)
	require.Equal(t, "z", string(spans[1].End))

	require.Equal(t, "a", string(meta.Smallest.UserKey))
	require.Equal(t, base.InternalKeyKindRangeDelete, meta.Smallest.Kind())
	require.Equal(t, "z", string(meta.Largest.UserKey))
	require.Equal(t, uint64(3), meta.SmallestSeqNum)
	require.Equal(t, uint64(9), meta.LargestSeqNum)

	smallest, largest, err := r.Bounds()
	require.NoError(t, err)
	require.Equal(t, meta.Smallest, smallest)
	require.Equal(t, meta.Largest, largest)
	require.Equal(t, uint64(3), r.Properties().SmallestSeqNum)
	require.Equal(t, uint64(9), r.Properties().LargestSeqNum)
}

func TestWriterErrors(t *testing.T) {
	w := NewWriter(&bytes.Buffer{}, WriterOptions{})
	require.NoError(t, w.Add(setKey("b", 1), nil))
	require.Error(t, w.Add(base.MakeInternalKey([]byte("c"), 1, base.InternalKeyKindRangeDelete), nil))
	require.Error(t, w.DeleteRange([]byte("z"), []byte("a"), 1))
	require.Error(t, w.Add(setKey("a", 1), nil))
	// The ordering violation is sticky.
	require.Error(t, w.Close())
	_, err := w.Metadata()
	require.Error(t, err)

	w = NewWriter(&bytes.Buffer{}, WriterOptions{})
	require.NoError(t, w.DeleteRange([]byte("m"), []byte("n"), 1))
	require.Error(t, w.DeleteRange([]byte("a"), []byte("b"), 2))
}

func TestEmptyTable(t *testing.T) {
	f := &recordingFactory{name: "rec"}
	r, _, _ := writeTable(t, WriterOptions{TablePropertyCollectors: []TablePropertyCollectorFactory{f}}, func(*Writer) {})
	require.Equal(t, 1, f.created[0].finishes)
	v, ok := r.Properties().Get("test.rec.adds")
	require.True(t, ok)
	require.Equal(t, []byte{0}, v)

	it := r.NewIter()
	it.First()
	require.False(t, it.Valid())
	require.NoError(t, it.Error())
	spans, err := r.RangeDeletions()
	require.NoError(t, err)
	require.Empty(t, spans)
}

func TestDamagedPropertiesBlockReadsAsAbsent(t *testing.T) {
	f := &recordingFactory{name: "rec"}
	_, _, path := writeTable(t, WriterOptions{TablePropertyCollectors: []TablePropertyCollectorFactory{f}}, func(w *Writer) {
		require.NoError(t, w.Add(setKey("a", 1), []byte("v")))
	})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	i := bytes.Index(data, []byte(PropNumEntries))
	require.Positive(t, i)
	data[i] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))

	r := openTable(t, path)
	require.Error(t, r.PropertiesError())
	_, ok := r.Properties().Get("test.rec.adds")
	require.False(t, ok)
	require.Zero(t, r.Properties().NumEntries)

	// The data blocks are unaffected.
	it := r.NewIter()
	it.First()
	require.True(t, it.Valid())
	require.Equal(t, "a", string(it.Key().UserKey))
}

func TestNotAnSSTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{1}, 100), 0644))
	f, err := os.Open(path)
	require.NoError(t, err)
	_, err = NewReader(f, 100, ReaderOptions{})
	require.ErrorIs(t, err, ErrNotAnSSTable)
}
