// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"encoding/binary"
	"sort"

	"github.com/khushmanvar/propdb/internal/base"
)

// Tags for the fields of an encoded VersionEdit. They are part of the
// manifest format and should not be changed.
const (
	tagComparator     = 1
	tagNextFileNumber = 2
	tagLastSequence   = 3
	tagDeletedFile    = 4
	tagNewFile        = 5
)

// NewFileEntry holds the state for a new file or one moved from a different
// level.
type NewFileEntry struct {
	Level int
	Meta  *FileMetadata
}

// DeletedFileEntry holds the state for a file deletion from a level.
type DeletedFileEntry struct {
	Level   int
	FileNum uint64
}

// VersionEdit holds the state for an edit to a Version along with other
// on-disk state.
type VersionEdit struct {
	// ComparerName is the name of the comparer the tables are ordered by, or
	// empty if unchanged.
	ComparerName string
	// NextFileNumber is the next file number to use, or 0 if unchanged.
	NextFileNumber uint64
	// LastSeqNum is the last sequence number in use, or 0 if unchanged.
	LastSeqNum   uint64
	DeletedFiles map[DeletedFileEntry]bool
	NewFiles     []NewFileEntry
}

// DeleteFile records the removal of a file from a level.
func (ve *VersionEdit) DeleteFile(level int, fileNum uint64) {
	if ve.DeletedFiles == nil {
		ve.DeletedFiles = make(map[DeletedFileEntry]bool)
	}
	ve.DeletedFiles[DeletedFileEntry{Level: level, FileNum: fileNum}] = true
}

// AddFile records the addition of a file to a level.
func (ve *VersionEdit) AddFile(level int, meta *FileMetadata) {
	ve.NewFiles = append(ve.NewFiles, NewFileEntry{Level: level, Meta: meta})
}

// Encode appends the encoding of the edit to b. A new file is encoded with
// its level, file number, size, key bounds and sequence number bounds; its
// properties are read back from the table itself.
func (ve *VersionEdit) Encode(b []byte) []byte {
	if ve.ComparerName != "" {
		b = encodeUvarint(b, tagComparator)
		b = encodeBytes(b, []byte(ve.ComparerName))
	}
	if ve.NextFileNumber != 0 {
		b = encodeUvarint(b, tagNextFileNumber)
		b = encodeUvarint(b, ve.NextFileNumber)
	}
	if ve.LastSeqNum != 0 {
		b = encodeUvarint(b, tagLastSequence)
		b = encodeUvarint(b, ve.LastSeqNum)
	}
	deleted := make([]DeletedFileEntry, 0, len(ve.DeletedFiles))
	for e := range ve.DeletedFiles {
		deleted = append(deleted, e)
	}
	sort.Slice(deleted, func(i, j int) bool {
		if deleted[i].Level != deleted[j].Level {
			return deleted[i].Level < deleted[j].Level
		}
		return deleted[i].FileNum < deleted[j].FileNum
	})
	for _, e := range deleted {
		b = encodeUvarint(b, tagDeletedFile)
		b = encodeUvarint(b, uint64(e.Level))
		b = encodeUvarint(b, e.FileNum)
	}
	for _, nf := range ve.NewFiles {
		m := nf.Meta
		b = encodeUvarint(b, tagNewFile)
		b = encodeUvarint(b, uint64(nf.Level))
		b = encodeUvarint(b, m.FileNum)
		b = encodeUvarint(b, m.Size)
		b = encodeBytes(b, m.Smallest.Encode(nil))
		b = encodeBytes(b, m.Largest.Encode(nil))
		b = encodeUvarint(b, m.SmallestSeqNum)
		b = encodeUvarint(b, m.LargestSeqNum)
	}
	return b
}

// Decode decodes an edit produced by Encode. The decoded file metadata
// does not alias b and has no properties.
func (ve *VersionEdit) Decode(b []byte) error {
	d := decoder{b: b}
	for len(d.b) > 0 && d.err == nil {
		switch tag := d.uvarint(); tag {
		case tagComparator:
			ve.ComparerName = string(d.bytes())
		case tagNextFileNumber:
			ve.NextFileNumber = d.uvarint()
		case tagLastSequence:
			ve.LastSeqNum = d.uvarint()
		case tagDeletedFile:
			level := d.level()
			fileNum := d.uvarint()
			if d.err == nil {
				ve.DeleteFile(level, fileNum)
			}
		case tagNewFile:
			level := d.level()
			m := &FileMetadata{}
			m.FileNum = d.uvarint()
			m.Size = d.uvarint()
			m.Smallest = d.internalKey()
			m.Largest = d.internalKey()
			m.SmallestSeqNum = d.uvarint()
			m.LargestSeqNum = d.uvarint()
			if d.err == nil {
				ve.AddFile(level, m)
			}
		default:
			if d.err == nil {
				d.err = base.CorruptionErrorf("propdb: unknown version edit tag %d", tag)
			}
		}
	}
	return d.err
}

func encodeUvarint(b []byte, x uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], x)
	return append(b, buf[:n]...)
}

func encodeBytes(b, s []byte) []byte {
	b = encodeUvarint(b, uint64(len(s)))
	return append(b, s...)
}

// decoder reads the fields of an encoded VersionEdit. The first failure is
// kept in err and later reads return zero values.
type decoder struct {
	b   []byte
	err error
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	x, n := binary.Uvarint(d.b)
	if n <= 0 {
		d.err = base.CorruptionErrorf("propdb: truncated version edit")
		return 0
	}
	d.b = d.b[n:]
	return x
}

func (d *decoder) bytes() []byte {
	n := d.uvarint()
	if d.err != nil {
		return nil
	}
	if n > uint64(len(d.b)) {
		d.err = base.CorruptionErrorf("propdb: truncated version edit")
		return nil
	}
	s := append([]byte(nil), d.b[:n]...)
	d.b = d.b[n:]
	return s
}

func (d *decoder) level() int {
	level := d.uvarint()
	if d.err == nil && level >= NumLevels {
		d.err = base.CorruptionErrorf("propdb: invalid level %d in version edit", level)
	}
	return int(level)
}

func (d *decoder) internalKey() base.InternalKey {
	b := d.bytes()
	if d.err != nil {
		return base.InternalKey{}
	}
	k, ok := base.ParseInternalKey(b)
	if !ok {
		d.err = base.CorruptionErrorf("propdb: invalid key in version edit")
	}
	return k
}
