// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khushmanvar/propdb"
	"github.com/khushmanvar/propdb/internal/manifest"
	"github.com/khushmanvar/propdb/internal/mvcc"
	"github.com/khushmanvar/propdb/sstable"
	"github.com/khushmanvar/propdb/tableprops"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// newTestDB writes two tables: one with versions at wall times 10 and 20,
// and one holding a range deletion with a version at wall time 30.
func newTestDB(t *testing.T) (*propdb.DB, *prometheus.Registry, string) {
	t.Helper()
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	d, err := propdb.Open(dir, &propdb.Options{
		MetricsRegisterer:           reg,
		DisableAutomaticCompactions: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	for _, w := range []int64{10, 20} {
		key := mvcc.EncodeKey(nil, []byte("a"), mvcc.Timestamp{WallTime: w})
		require.NoError(t, d.Set(key, []byte("v")))
	}
	require.NoError(t, d.Flush())
	require.NoError(t, d.DeleteRange([]byte("x"), []byte("y")))
	require.NoError(t, d.Set(mvcc.EncodeKey(nil, []byte("b"), mvcc.Timestamp{WallTime: 30}), []byte("v")))
	require.NoError(t, d.Flush())
	return d, reg, dir
}

func get(t *testing.T, h http.Handler, path string) (int, []byte) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, body
}

func TestServer(t *testing.T) {
	d, reg, _ := newTestDB(t)
	s := &server{db: d, gather: reg, logger: slog.Default()}
	h := s.router()

	code, body := get(t, h, "/tables")
	require.Equal(t, http.StatusOK, code)
	var tables []tableJSON
	require.NoError(t, json.Unmarshal(body, &tables))
	require.Len(t, tables, 2)
	require.Equal(t, "10,0", tables[0].MinTimestamp)
	require.Equal(t, "20,0", tables[0].MaxTimestamp)
	require.False(t, tables[0].HasRangeDeletion)
	require.True(t, tables[1].HasRangeDeletion)
	require.True(t, tables[1].MarkedForCompaction)

	code, body = get(t, h, "/tables?min=25")
	require.Equal(t, http.StatusOK, code)
	tables = nil
	require.NoError(t, json.Unmarshal(body, &tables))
	require.Len(t, tables, 1)
	require.Equal(t, "30,0", tables[0].MinTimestamp)

	code, _ = get(t, h, "/tables?min=bogus")
	require.Equal(t, http.StatusBadRequest, code)

	code, body = get(t, h, fmt.Sprintf("/tables/%d/properties", tables[0].FileNum))
	require.Equal(t, http.StatusOK, code)
	var props map[string]string
	require.NoError(t, json.Unmarshal(body, &props))
	require.Equal(t, "true", props[tableprops.DeleteRangeProperty])
	require.Equal(t, "30,0", props[tableprops.TimeBoundMinProperty])
	require.Equal(t, "1", props[sstable.PropNumRangeDeletions])

	code, _ = get(t, h, "/tables/999/properties")
	require.Equal(t, http.StatusNotFound, code)
	code, _ = get(t, h, "/tables/abc/properties")
	require.Equal(t, http.StatusBadRequest, code)

	code, body = get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), "propdb_flushes_total 2")
	require.Contains(t, string(body), "propdb_tables_pruned_by_time_total 1")
}

func TestPrintTableProperties(t *testing.T) {
	d, _, dir := newTestDB(t)
	tables := d.Tables()
	path := filepath.Join(dir, manifest.TableFilename(tables[0].FileNum))

	var buf bytes.Buffer
	require.NoError(t, printTableProperties(&buf, path))
	out := buf.String()
	require.Contains(t, out, "propdb.ts.min: 10,0\n")
	require.Contains(t, out, "propdb.ts.max: 20,0\n")
	require.Contains(t, out, "propdb.range_del: false\n")
	require.Contains(t, out, "propdb.num.entries: 2\n")
	require.True(t, strings.HasSuffix(out, "time bounds: [10,0, 20,0]\nrange deletions: false\n"))

	require.Error(t, printTableProperties(&buf, filepath.Join(dir, "missing.sst")))
}

func TestPrintTables(t *testing.T) {
	d, _, _ := newTestDB(t)
	var buf bytes.Buffer
	printTables(&buf, d.TablesForTimeRange(mvcc.Timestamp{WallTime: 15}, mvcc.Timestamp{WallTime: 15}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "time=[10,0, 20,0] range-del=false marked=false")
}

func TestDescribeProperty(t *testing.T) {
	testCases := []struct {
		name  string
		value []byte
		want  string
	}{
		{tableprops.TimeBoundMinProperty, nil, "unbounded"},
		{tableprops.TimeBoundMaxProperty, mvcc.EncodeTimestamp(nil, mvcc.Timestamp{WallTime: 5, Logical: 2}), "5,2"},
		{tableprops.TimeBoundMaxProperty, []byte{1, 2, 3}, "0x010203"},
		{tableprops.DeleteRangeProperty, []byte{1}, "true"},
		{tableprops.DeleteRangeProperty, []byte{7}, "0x07"},
		{sstable.PropNumEntries, []byte{0x96, 0x01}, "150"},
		{sstable.PropCompression, []byte("Snappy"), "Snappy"},
		{"custom", nil, `""`},
		{"custom", []byte{0xff}, "0xff"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, describeProperty(tc.name, tc.value))
		})
	}
}

func TestOpenDirRequiresExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing")
	_, err := openDir(missing, &propdb.Options{})
	require.Error(t, err)
	_, err = os.Stat(missing)
	require.True(t, os.IsNotExist(err))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = openDir(file, &propdb.Options{})
	require.Error(t, err)

	d, err := openDir(dir, &propdb.Options{})
	require.NoError(t, err)
	require.NoError(t, d.Close())
}
