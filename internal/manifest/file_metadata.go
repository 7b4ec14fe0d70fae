// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"fmt"

	"github.com/khushmanvar/propdb/internal/base"
	"github.com/khushmanvar/propdb/sstable"
)

// FileMetadata holds the metadata for an on-disk table.
type FileMetadata struct {
	// FileNum is the file number.
	FileNum uint64
	// Size is the size of the file, in bytes.
	Size uint64
	// Smallest and Largest are the inclusive bounds for the internal keys
	// stored in the table.
	Smallest base.InternalKey
	Largest  base.InternalKey
	// SmallestSeqNum and LargestSeqNum are the inclusive bounds for the
	// sequence numbers of the entries stored in the table.
	SmallestSeqNum uint64
	LargestSeqNum  uint64
	// Properties are the table's decoded properties. They are never nil for
	// a table in a Version.
	Properties *sstable.TableProperties
	// MarkedForCompaction is set when the table holds range deletions whose
	// space should be reclaimed ahead of size-based compactions.
	MarkedForCompaction bool
}

// Filename returns the name of the table file within the database
// directory.
func (m *FileMetadata) Filename() string {
	return TableFilename(m.FileNum)
}

func (m *FileMetadata) String() string {
	return fmt.Sprintf("%06d:[%s-%s]", m.FileNum, m.Smallest, m.Largest)
}

// Overlaps returns true if the user key range of the table intersects
// [start, end], both inclusive.
func (m *FileMetadata) Overlaps(cmp base.Compare, start, end []byte) bool {
	return cmp(m.Largest.UserKey, start) >= 0 && cmp(m.Smallest.UserKey, end) <= 0
}

// TableFilename returns the name of the table with the given file number.
func TableFilename(fileNum uint64) string {
	return fmt.Sprintf("%06d.sst", fileNum)
}

// ParseTableFilename parses a name produced by TableFilename.
func ParseTableFilename(name string) (fileNum uint64, ok bool) {
	if len(name) < len(".sst")+1 || name[len(name)-4:] != ".sst" {
		return 0, false
	}
	for _, c := range name[:len(name)-4] {
		if c < '0' || c > '9' {
			return 0, false
		}
		fileNum = fileNum*10 + uint64(c-'0')
	}
	return fileNum, true
}
