// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package tableprops implements the table property collectors used by
// propdb and the readers that interpret their output.
//
// Two collectors are provided. The time-bound collector records the smallest
// and largest MVCC timestamp of the keys in a table so that scans restricted
// to a time range can skip tables that cannot contain matching versions. The
// delete-range collector records whether a table holds any range deletion
// tombstone so that the compaction picker can reclaim the deleted space
// early.
//
// Readers never fail: a property that is missing or cannot be decoded yields
// the value that leaves the table eligible for everything ("unbounded" time
// bounds, no range deletions).
package tableprops

import (
	"github.com/khushmanvar/propdb/internal/mvcc"
	"github.com/khushmanvar/propdb/sstable"
)

// Names of the properties written by the collectors in this package.
const (
	TimeBoundMinProperty = "propdb.ts.min"
	TimeBoundMaxProperty = "propdb.ts.max"
	DeleteRangeProperty  = "propdb.range_del"
)

// Getter looks up a property by name. It is implemented by
// *sstable.TableProperties and RawBlock.
type Getter interface {
	Get(name string) ([]byte, bool)
}

var _ Getter = (*sstable.TableProperties)(nil)

// RawBlock is an encoded properties block. Lookups scan the block without
// decoding the entries they pass over.
type RawBlock []byte

// Get implements Getter.
func (b RawBlock) Get(name string) ([]byte, bool) {
	return sstable.LookupProperty(b, name)
}

// DefaultCollectors returns factories for every collector in this package.
func DefaultCollectors() []sstable.TablePropertyCollectorFactory {
	return []sstable.TablePropertyCollectorFactory{
		TimeBoundCollectorFactory{},
		DeleteRangeCollectorFactory{},
	}
}

// LookupCollector returns the factory of the collector with the given name.
func LookupCollector(name string) (sstable.TablePropertyCollectorFactory, bool) {
	for _, f := range DefaultCollectors() {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

// Summary is the decoded output of the collectors for one table.
type Summary struct {
	// HasTimeBounds is false if the table's time bounds are unknown, in which
	// case MinTimestamp and MaxTimestamp are zero.
	HasTimeBounds    bool
	MinTimestamp     mvcc.Timestamp
	MaxTimestamp     mvcc.Timestamp
	HasRangeDeletion bool
}

// Summarize decodes the properties written by this package's collectors.
func Summarize(p Getter) Summary {
	var s Summary
	s.MinTimestamp, s.MaxTimestamp, s.HasTimeBounds = TimeBounds(p)
	s.HasRangeDeletion = HasRangeDeletion(p)
	return s
}
