// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package propdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/khushmanvar/propdb/sstable"
	"github.com/khushmanvar/propdb/tableprops"
	"github.com/stretchr/testify/require"
)

func collectorNames(factories []sstable.TablePropertyCollectorFactory) []string {
	var names []string
	for _, f := range factories {
		names = append(names, f.Name())
	}
	return names
}

func TestOptionsDefaults(t *testing.T) {
	o := (*Options)(nil).EnsureDefaults()
	require.NotNil(t, o.Comparer)
	require.NotNil(t, o.FS)
	require.NotNil(t, o.Logger)
	require.NotNil(t, o.MetricsRegisterer)
	require.Equal(t, 4<<20, o.MemTableSize)
	require.Equal(t, 4, o.L0CompactionThreshold)
	require.Equal(t, []string{tableprops.TimeBoundCollectorName, tableprops.DeleteRangeCollectorName},
		collectorNames(o.TablePropertyCollectors))
	require.Equal(t, int64(2<<20), o.Levels[0].TargetFileSize)
	require.Equal(t, int64(4<<20), o.Levels[1].TargetFileSize)
	require.Equal(t, 4096, o.Levels[numLevels-1].BlockSize)
	require.NoError(t, o.Validate())
}

func TestOptionsClone(t *testing.T) {
	factories := tableprops.DefaultCollectors()
	o := &Options{TablePropertyCollectors: factories}
	c := o.Clone()
	factories[0] = nil
	require.NotNil(t, c.TablePropertyCollectors[0])
	require.NoError(t, c.EnsureDefaults().Validate())

	empty := (&Options{TablePropertyCollectors: []sstable.TablePropertyCollectorFactory{}}).Clone()
	require.NotNil(t, empty.TablePropertyCollectors)
	require.Empty(t, empty.EnsureDefaults().TablePropertyCollectors)
}

func TestOptionsValidate(t *testing.T) {
	testCases := []struct {
		name       string
		collectors []sstable.TablePropertyCollectorFactory
		errMsg     string
	}{
		{
			name: "duplicate",
			collectors: []sstable.TablePropertyCollectorFactory{
				tableprops.TimeBoundCollectorFactory{}, tableprops.TimeBoundCollectorFactory{},
			},
			errMsg: "duplicate table property collector",
		},
		{
			name:       "nil",
			collectors: []sstable.TablePropertyCollectorFactory{nil},
			errMsg:     "is nil",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			o := (&Options{TablePropertyCollectors: tc.collectors}).EnsureDefaults()
			err := o.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errMsg)

			_, err = Open(t.TempDir(), o)
			require.Error(t, err)
		})
	}

	o := (&Options{}).EnsureDefaults()
	o.Levels[3].Compression = sstable.Compression(9)
	require.Error(t, o.Validate())
}

func TestParseOptions(t *testing.T) {
	o, err := ParseOptions([]byte(`
mem_table_size: 1024
l0_compaction_threshold: 8
lbase_max_bytes: 1048576
block_size: 512
compression: snappy
target_file_size: 4096
collectors:
  - DeleteRangeCollector
disable_automatic_compactions: true
`))
	require.NoError(t, err)
	require.Equal(t, 1024, o.MemTableSize)
	require.Equal(t, 8, o.L0CompactionThreshold)
	require.Equal(t, int64(1<<20), o.LBaseMaxBytes)
	require.True(t, o.DisableAutomaticCompactions)
	require.Equal(t, []string{tableprops.DeleteRangeCollectorName}, collectorNames(o.TablePropertyCollectors))

	o.EnsureDefaults()
	require.NoError(t, o.Validate())
	for i := range o.Levels {
		require.Equal(t, 512, o.Levels[i].BlockSize)
		require.Equal(t, sstable.SnappyCompression, o.Levels[i].Compression)
	}
	require.Equal(t, int64(4096), o.Levels[0].TargetFileSize)
	require.Equal(t, int64(8192), o.Levels[1].TargetFileSize)

	o, err = ParseOptions([]byte("mem_table_size: 1024\n"))
	require.NoError(t, err)
	require.Nil(t, o.TablePropertyCollectors)

	o, err = ParseOptions([]byte("collectors: []\n"))
	require.NoError(t, err)
	require.NotNil(t, o.TablePropertyCollectors)
	require.Empty(t, o.TablePropertyCollectors)

	_, err = ParseOptions([]byte("collectors: [NoSuchCollector]\n"))
	require.Error(t, err)
	_, err = ParseOptions([]byte("compression: zstd\n"))
	require.Error(t, err)
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	require.NoError(t, os.WriteFile(path, []byte("l0_compaction_threshold: 2\n"), 0644))
	o, err := LoadOptions(path)
	require.NoError(t, err)
	require.Equal(t, 2, o.L0CompactionThreshold)

	_, err = LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
