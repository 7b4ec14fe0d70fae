// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tableprops

import (
	"github.com/khushmanvar/propdb/internal/base"
	"github.com/khushmanvar/propdb/internal/mvcc"
	"github.com/khushmanvar/propdb/sstable"
)

// TimeBoundCollectorName is the name of the time-bound collector.
const TimeBoundCollectorName = "TimeBoundCollector"

// TimeBoundCollector tracks the smallest and largest MVCC timestamp of the
// point keys added to a table. Keys that do not carry a timestamp, and keys
// that fail to decode, are ignored.
//
// Finish emits TimeBoundMinProperty and TimeBoundMaxProperty holding
// mvcc.EncodeTimestamp encodings. If no key carried a timestamp both values
// are empty, which readers treat as unbounded.
type TimeBoundCollector struct {
	min, max mvcc.Timestamp
	set      bool
}

var _ sstable.TablePropertyCollector = (*TimeBoundCollector)(nil)

// Add implements sstable.TablePropertyCollector.
func (c *TimeBoundCollector) Add(key base.InternalKey, _ []byte) {
	_, ts, ok := mvcc.DecodeKey(key.UserKey)
	if !ok {
		return
	}
	if !c.set {
		c.min, c.max, c.set = ts, ts, true
		return
	}
	if ts.Less(c.min) {
		c.min = ts
	}
	if c.max.Less(ts) {
		c.max = ts
	}
}

// AddRangeDeletion implements sstable.TablePropertyCollector. Range
// deletions carry no timestamp of their own.
func (c *TimeBoundCollector) AddRangeDeletion(start, end []byte) {}

// Finish implements sstable.TablePropertyCollector.
func (c *TimeBoundCollector) Finish() []sstable.Property {
	var minBuf, maxBuf []byte
	if c.set {
		minBuf = mvcc.EncodeTimestamp(nil, c.min)
		maxBuf = mvcc.EncodeTimestamp(nil, c.max)
	}
	return []sstable.Property{
		{Name: TimeBoundMinProperty, Value: minBuf},
		{Name: TimeBoundMaxProperty, Value: maxBuf},
	}
}

// Name implements sstable.TablePropertyCollector.
func (c *TimeBoundCollector) Name() string {
	return TimeBoundCollectorName
}

// TimeBoundCollectorFactory creates TimeBoundCollectors.
type TimeBoundCollectorFactory struct{}

var _ sstable.TablePropertyCollectorFactory = TimeBoundCollectorFactory{}

// Name implements sstable.TablePropertyCollectorFactory.
func (TimeBoundCollectorFactory) Name() string {
	return TimeBoundCollectorName
}

// NewCollector implements sstable.TablePropertyCollectorFactory.
func (TimeBoundCollectorFactory) NewCollector() sstable.TablePropertyCollector {
	return &TimeBoundCollector{}
}

// TimeBounds returns the timestamp bounds recorded for a table. ok is false
// if the bounds are unknown: the properties are missing, empty or malformed,
// or describe an inverted range.
func TimeBounds(p Getter) (minTS, maxTS mvcc.Timestamp, ok bool) {
	minBuf, ok1 := p.Get(TimeBoundMinProperty)
	maxBuf, ok2 := p.Get(TimeBoundMaxProperty)
	if !ok1 || !ok2 || len(minBuf) == 0 || len(maxBuf) == 0 {
		return mvcc.Timestamp{}, mvcc.Timestamp{}, false
	}
	minTS, err := mvcc.DecodeTimestamp(minBuf)
	if err != nil {
		return mvcc.Timestamp{}, mvcc.Timestamp{}, false
	}
	maxTS, err = mvcc.DecodeTimestamp(maxBuf)
	if err != nil || maxTS.Less(minTS) {
		return mvcc.Timestamp{}, mvcc.Timestamp{}, false
	}
	return minTS, maxTS, true
}

// TimeBoundFilter selects the tables that may contain versions with
// timestamps in [Min, Max]. An empty Max leaves the range unbounded above.
type TimeBoundFilter struct {
	Min mvcc.Timestamp
	Max mvcc.Timestamp
}

// MayContain reports whether the table described by p may contain a version
// in the filter's range. Tables with unknown bounds always may.
func (f TimeBoundFilter) MayContain(p Getter) bool {
	minTS, maxTS, ok := TimeBounds(p)
	if !ok {
		return true
	}
	if maxTS.Less(f.Min) {
		return false
	}
	if !f.Max.IsEmpty() && f.Max.Less(minTS) {
		return false
	}
	return true
}
