// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tableprops

import (
	"github.com/khushmanvar/propdb/internal/base"
	"github.com/khushmanvar/propdb/sstable"
)

// DeleteRangeCollectorName is the name of the delete-range collector.
const DeleteRangeCollectorName = "DeleteRangeCollector"

// DeleteRangeCollector records whether a table contains at least one range
// deletion tombstone. Finish emits DeleteRangeProperty as a single byte, 1 if
// a tombstone was added and 0 otherwise.
type DeleteRangeCollector struct {
	hasRangeDeletion bool
}

var _ sstable.TablePropertyCollector = (*DeleteRangeCollector)(nil)

// Add implements sstable.TablePropertyCollector.
func (c *DeleteRangeCollector) Add(key base.InternalKey, value []byte) {}

// AddRangeDeletion implements sstable.TablePropertyCollector.
func (c *DeleteRangeCollector) AddRangeDeletion(start, end []byte) {
	c.hasRangeDeletion = true
}

// Finish implements sstable.TablePropertyCollector.
func (c *DeleteRangeCollector) Finish() []sstable.Property {
	v := byte(0)
	if c.hasRangeDeletion {
		v = 1
	}
	return []sstable.Property{{Name: DeleteRangeProperty, Value: []byte{v}}}
}

// Name implements sstable.TablePropertyCollector.
func (c *DeleteRangeCollector) Name() string {
	return DeleteRangeCollectorName
}

// DeleteRangeCollectorFactory creates DeleteRangeCollectors.
type DeleteRangeCollectorFactory struct{}

var _ sstable.TablePropertyCollectorFactory = DeleteRangeCollectorFactory{}

// Name implements sstable.TablePropertyCollectorFactory.
func (DeleteRangeCollectorFactory) Name() string {
	return DeleteRangeCollectorName
}

// NewCollector implements sstable.TablePropertyCollectorFactory.
func (DeleteRangeCollectorFactory) NewCollector() sstable.TablePropertyCollector {
	return &DeleteRangeCollector{}
}

// HasRangeDeletion reports whether the table described by p recorded a range
// deletion. A missing or malformed property reads as false.
func HasRangeDeletion(p Getter) bool {
	v, ok := p.Get(DeleteRangeProperty)
	return ok && len(v) == 1 && v[0] == 1
}
