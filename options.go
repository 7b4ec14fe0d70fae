// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package propdb

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-yaml"
	"github.com/khushmanvar/propdb/internal/base"
	"github.com/khushmanvar/propdb/internal/manifest"
	"github.com/khushmanvar/propdb/sstable"
	"github.com/khushmanvar/propdb/tableprops"
	"github.com/khushmanvar/propdb/vfs"
	"github.com/prometheus/client_golang/prometheus"
)

// Comparer defines a total ordering over the space of []byte keys.
type Comparer = base.Comparer

// Logger defines an interface for writing log messages.
type Logger = base.Logger

// DefaultLogger logs through the process-wide slog logger.
type DefaultLogger = base.DefaultLogger

// ErrNotFound is returned by Get when the key is not present.
var ErrNotFound = base.ErrNotFound

// ErrClosed is returned by operations on a closed DB.
var ErrClosed = base.ErrClosed

const numLevels = manifest.NumLevels

// Options provide a way to control the behavior of a DB.
type Options struct {
	// Comparer defines the order of keys. It must match the comparer the
	// tables in the directory were written with.
	Comparer *Comparer

	// EventListener provides hooks for listening to significant DB events.
	EventListener EventListener

	// FS provides an interface to the filesystem.
	FS vfs.FS

	// Logger is used for flush and compaction messages and for reporting
	// damaged table properties.
	Logger Logger

	// MemTableSize is the size in bytes at which the memtable is flushed to
	// a level 0 table.
	MemTableSize int

	// L0CompactionThreshold is the number of L0 files that triggers a
	// compaction into L1.
	L0CompactionThreshold int

	// LBaseMaxBytes is the max total size of L1 files. Each level below is
	// allowed ten times the size of the level above it.
	LBaseMaxBytes int64

	// Levels is the configuration for each level of the LSM.
	Levels [numLevels]LevelOptions

	// TablePropertyCollectors are the factories of the collectors run over
	// every table the DB writes. The list is copied by Open and never
	// changes for the lifetime of the DB. If nil, the collectors of package
	// tableprops are used; a non-nil empty slice disables collection.
	TablePropertyCollectors []sstable.TablePropertyCollectorFactory

	// MetricsRegisterer registers the DB's prometheus metrics. If nil, the
	// metrics are registered with a private registry.
	MetricsRegisterer prometheus.Registerer

	// DisableAutomaticCompactions prevents flushes from scheduling
	// compactions. Compact still runs them.
	DisableAutomaticCompactions bool
}

// LevelOptions holds options for a single level of the LSM.
type LevelOptions struct {
	// BlockRestartInterval is the number of keys between restart points.
	BlockRestartInterval int
	// BlockSize is the target uncompressed size of data blocks.
	BlockSize int
	// Compression is the data block compression.
	Compression sstable.Compression
	// TargetFileSize is the target size of tables written to this level.
	TargetFileSize int64
}

// EnsureDefaults ensures that the default values for all options are set if
// a valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.Logger == nil {
		o.Logger = DefaultLogger{}
	}
	if o.MemTableSize <= 0 {
		o.MemTableSize = 4 << 20 // 4 MB
	}
	if o.L0CompactionThreshold <= 0 {
		o.L0CompactionThreshold = 4
	}
	if o.LBaseMaxBytes <= 0 {
		o.LBaseMaxBytes = 64 << 20 // 64 MB
	}
	if o.TablePropertyCollectors == nil {
		o.TablePropertyCollectors = tableprops.DefaultCollectors()
	}
	if o.MetricsRegisterer == nil {
		o.MetricsRegisterer = prometheus.NewRegistry()
	}
	for i := range o.Levels {
		l := &o.Levels[i]
		if l.BlockRestartInterval <= 0 {
			l.BlockRestartInterval = 16
		}
		if l.BlockSize <= 0 {
			l.BlockSize = 4096
		}
		if l.TargetFileSize <= 0 {
			if i == 0 {
				l.TargetFileSize = 2 << 20 // 2 MB
			} else {
				l.TargetFileSize = o.Levels[i-1].TargetFileSize * 2
			}
		}
	}
	return o
}

// Clone creates a shallow copy of the options. The collector list is copied
// so that later changes to the caller's slice are not observed.
func (o *Options) Clone() *Options {
	n := &Options{}
	if o != nil {
		*n = *o
		if o.TablePropertyCollectors != nil {
			n.TablePropertyCollectors = make([]sstable.TablePropertyCollectorFactory, len(o.TablePropertyCollectors))
			copy(n.TablePropertyCollectors, o.TablePropertyCollectors)
		}
	}
	return n
}

// Validate verifies that the options are mutually consistent.
func (o *Options) Validate() error {
	seen := make(map[string]bool, len(o.TablePropertyCollectors))
	for i, f := range o.TablePropertyCollectors {
		if f == nil {
			return errors.Errorf("propdb: table property collector %d is nil", i)
		}
		name := f.Name()
		if name == "" {
			return errors.Errorf("propdb: table property collector %d has no name", i)
		}
		if seen[name] {
			return errors.Errorf("propdb: duplicate table property collector %q", name)
		}
		seen[name] = true
	}
	for i := range o.Levels {
		if c := o.Levels[i].Compression; c != sstable.NoCompression && c != sstable.SnappyCompression {
			return errors.Errorf("propdb: invalid compression %d for L%d", c, i)
		}
	}
	return nil
}

func (o *Options) writerOptions(level int) sstable.WriterOptions {
	l := o.Levels[level]
	return sstable.WriterOptions{
		BlockSize:               l.BlockSize,
		BlockRestartInterval:    l.BlockRestartInterval,
		Compression:             l.Compression,
		Comparer:                o.Comparer,
		TablePropertyCollectors: o.TablePropertyCollectors,
		Logger:                  o.Logger,
	}
}

// optionsFile is the YAML representation of Options.
type optionsFile struct {
	MemTableSize          int      `yaml:"mem_table_size"`
	L0CompactionThreshold int      `yaml:"l0_compaction_threshold"`
	LBaseMaxBytes         int64    `yaml:"lbase_max_bytes"`
	BlockSize             int      `yaml:"block_size"`
	BlockRestartInterval  int      `yaml:"block_restart_interval"`
	Compression           string   `yaml:"compression"`
	TargetFileSize        int64    `yaml:"target_file_size"`
	Collectors            []string `yaml:"collectors"`
	DisableCompactions    bool     `yaml:"disable_automatic_compactions"`
}

// ParseOptions parses options from YAML. Collectors are named by the names of
// the collectors in package tableprops; when the collectors key is absent
// the defaults apply.
func ParseOptions(data []byte) (*Options, error) {
	var f optionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "propdb: parsing options")
	}
	compression, err := sstable.ParseCompression(f.Compression)
	if err != nil {
		return nil, errors.Wrap(err, "propdb: parsing options")
	}
	o := &Options{
		MemTableSize:                f.MemTableSize,
		L0CompactionThreshold:       f.L0CompactionThreshold,
		LBaseMaxBytes:               f.LBaseMaxBytes,
		DisableAutomaticCompactions: f.DisableCompactions,
	}
	for i := range o.Levels {
		o.Levels[i].BlockSize = f.BlockSize
		o.Levels[i].BlockRestartInterval = f.BlockRestartInterval
		o.Levels[i].Compression = compression
	}
	o.Levels[0].TargetFileSize = f.TargetFileSize
	if f.Collectors != nil {
		o.TablePropertyCollectors = []sstable.TablePropertyCollectorFactory{}
		for _, name := range f.Collectors {
			factory, ok := tableprops.LookupCollector(name)
			if !ok {
				return nil, errors.Errorf("propdb: unknown table property collector %q", name)
			}
			o.TablePropertyCollectors = append(o.TablePropertyCollectors, factory)
		}
	}
	return o, nil
}

// LoadOptions reads options from a YAML file.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "propdb: reading options file %s", path)
	}
	return ParseOptions(data)
}

// EventListener contains a set of functions that will be invoked when various
// significant DB events occur. Nil functions are not called.
type EventListener struct {
	// TableCreated is invoked after a table has been written by a flush or
	// a compaction.
	TableCreated func(TableInfo)
	// FlushEnd is invoked after a flush has completed.
	FlushEnd func(FlushInfo)
	// CompactionEnd is invoked after a compaction has completed.
	CompactionEnd func(CompactionInfo)
}

// FlushInfo contains the info for a flush event.
type FlushInfo struct {
	// JobID is the ID of the flush job.
	JobID int
	// Output is the table written by the flush.
	Output TableInfo
	// Err is the error that occurred during the flush, if any.
	Err error
}

// CompactionInfo contains the info for a compaction event.
type CompactionInfo struct {
	// JobID is the ID of the compaction job.
	JobID int
	// Reason is the reason for the compaction.
	Reason string
	// Input contains the input levels of the compaction.
	Input []LevelInfo
	// Output contains the output level and the tables it received.
	Output LevelInfo
	// Tables are the tables written by the compaction.
	Tables []TableInfo
	// Err is the error that occurred during the compaction, if any.
	Err error
}

// LevelInfo contains info pertaining to a particular level.
type LevelInfo struct {
	// Level is the level number.
	Level int
	// NumFiles is the number of files of the level taking part in the event.
	NumFiles int
	// Size is the total size of those files.
	Size uint64
}
