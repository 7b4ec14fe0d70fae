// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import "github.com/khushmanvar/propdb/internal/base"

// TablePropertyCollector observes the entries of a single table as it is
// written and summarizes them into properties stored in the table's
// properties block.
//
// A collector is owned by one Writer. Its methods are called from a single
// goroutine, in the order the writer receives entries: Add in increasing
// internal key order, AddRangeDeletion in increasing start key order, and
// Finish once after all entries. Collectors must not retain the slices passed
// to them, must not perform I/O, and must keep O(1) state. None of the
// methods may fail the table write: input a collector cannot interpret is
// ignored.
type TablePropertyCollector interface {
	// Add is called with each point key and value added to the table.
	Add(key base.InternalKey, value []byte)

	// AddRangeDeletion is called with each range deletion tombstone
	// [start, end) added to the table.
	AddRangeDeletion(start, end []byte)

	// Finish returns the properties summarizing everything observed. It is
	// called once, but must return identical properties if called again.
	Finish() []Property

	// Name returns the name of the collector, recorded in the table's
	// PropPropertyCollectors property.
	Name() string
}

// TablePropertyCollectorFactory manufactures a fresh collector for every table
// that is written. Factories are stateless and shared by concurrent table
// writes.
type TablePropertyCollectorFactory interface {
	// Name returns the name of the collectors the factory creates.
	Name() string

	// NewCollector returns a new, zero-initialized collector.
	NewCollector() TablePropertyCollector
}
