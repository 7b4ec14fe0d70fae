// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/khushmanvar/propdb/internal/base"
)

// NumLevels is the number of levels a Version contains.
const NumLevels = 7

// Version is a collection of file metadata for on-disk tables at various
// levels. Versions are immutable: an edit produces a new Version.
//
// Files in level 0 may overlap and are ordered by their largest sequence
// number. Files in other levels are ordered by smallest key and do not
// overlap.
type Version struct {
	Files [NumLevels][]*FileMetadata
}

// Apply returns the version produced by applying ve to v. A nil v is the
// empty version.
func (v *Version) Apply(cmp base.Compare, ve *VersionEdit) (*Version, error) {
	nv := &Version{}
	for level := range nv.Files {
		var files []*FileMetadata
		if v != nil {
			files = v.Files[level]
		}
		for _, f := range files {
			if ve.DeletedFiles[DeletedFileEntry{Level: level, FileNum: f.FileNum}] {
				continue
			}
			nv.Files[level] = append(nv.Files[level], f)
		}
	}
	for _, nf := range ve.NewFiles {
		if nf.Level < 0 || nf.Level >= NumLevels {
			return nil, errors.Errorf("propdb: invalid level %d for table %s", nf.Level, nf.Meta)
		}
		nv.Files[nf.Level] = append(nv.Files[nf.Level], nf.Meta)
	}

	sort.Slice(nv.Files[0], func(i, j int) bool {
		a, b := nv.Files[0][i], nv.Files[0][j]
		if a.LargestSeqNum != b.LargestSeqNum {
			return a.LargestSeqNum < b.LargestSeqNum
		}
		return a.FileNum < b.FileNum
	})
	for level := 1; level < NumLevels; level++ {
		files := nv.Files[level]
		sort.Slice(files, func(i, j int) bool {
			return base.InternalCompare(cmp, files[i].Smallest, files[j].Smallest) < 0
		})
	}
	if err := nv.CheckOrdering(cmp); err != nil {
		return nil, err
	}
	return nv, nil
}

// CheckOrdering checks that the files in levels 1 and above do not overlap.
func (v *Version) CheckOrdering(cmp base.Compare) error {
	for level := 1; level < NumLevels; level++ {
		files := v.Files[level]
		for i := 1; i < len(files); i++ {
			prev, f := files[i-1], files[i]
			if base.InternalCompare(cmp, prev.Largest, f.Smallest) >= 0 {
				return errors.Errorf("propdb: L%d tables %s and %s overlap", level, prev, f)
			}
		}
	}
	return nil
}

// Overlaps returns the files in the level whose user key range intersects
// [start, end], both inclusive.
func (v *Version) Overlaps(level int, cmp base.Compare, start, end []byte) []*FileMetadata {
	var res []*FileMetadata
	for _, f := range v.Files[level] {
		if f.Overlaps(cmp, start, end) {
			res = append(res, f)
		}
	}
	return res
}

// LevelSize returns the total size of the files in the level.
func (v *Version) LevelSize(level int) uint64 {
	var size uint64
	for _, f := range v.Files[level] {
		size += f.Size
	}
	return size
}

// NumFiles returns the number of files in the version.
func (v *Version) NumFiles() int {
	var n int
	for level := range v.Files {
		n += len(v.Files[level])
	}
	return n
}

// KeyRange returns the smallest and largest user keys of the given files.
func KeyRange(cmp base.Compare, files ...[]*FileMetadata) (smallest, largest []byte) {
	first := true
	for _, level := range files {
		for _, f := range level {
			if first || cmp(f.Smallest.UserKey, smallest) < 0 {
				smallest = f.Smallest.UserKey
			}
			if first || cmp(f.Largest.UserKey, largest) > 0 {
				largest = f.Largest.UserKey
			}
			first = false
		}
	}
	return smallest, largest
}
