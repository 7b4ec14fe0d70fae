// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package propdb

import (
	"github.com/khushmanvar/propdb/internal/manifest"
)

// Compaction reasons, used in logs, events and metrics.
const (
	compactionReasonMarked    = "marked-for-compaction"
	compactionReasonL0        = "l0-file-count"
	compactionReasonLevelSize = "level-size"
	compactionReasonManual    = "manual"
)

// compactionPicker selects the next compaction for a version.
type compactionPicker struct {
	opts *Options
	v    *manifest.Version
}

// levelMaxBytes returns the size above which a level is compacted into the
// next one.
func (p *compactionPicker) levelMaxBytes(level int) uint64 {
	maxBytes := uint64(p.opts.LBaseMaxBytes)
	for i := 1; i < level; i++ {
		maxBytes *= 10
	}
	return maxBytes
}

// pick returns the compaction to run next, or nil if none is needed.
//
// Tables marked for compaction come first: they hold range deletions, and
// moving them down until no older data lies beneath lets the compaction drop
// both the tombstones and the keys they delete. Then L0 is compacted by file
// count and the other levels by size.
func (p *compactionPicker) pick() *compaction {
	for level := 0; level < numLevels-1; level++ {
		for _, f := range p.v.Files[level] {
			if f.MarkedForCompaction {
				return p.compactionFor(level, f, compactionReasonMarked)
			}
		}
	}

	if len(p.v.Files[0]) >= p.opts.L0CompactionThreshold {
		return p.compactionFor(0, nil, compactionReasonL0)
	}

	for level := 1; level < numLevels-1; level++ {
		if p.v.LevelSize(level) <= p.levelMaxBytes(level) {
			continue
		}
		// Pick the file that overlaps with the fewest files in the next
		// level to keep the compaction small.
		var best *manifest.FileMetadata
		bestOverlap := -1
		for _, f := range p.v.Files[level] {
			overlap := len(p.v.Overlaps(level+1, p.opts.Comparer.Compare, f.Smallest.UserKey, f.Largest.UserKey))
			if bestOverlap < 0 || overlap < bestOverlap {
				best, bestOverlap = f, overlap
			}
		}
		return p.compactionFor(level, best, compactionReasonLevelSize)
	}
	return nil
}

// compactionFor builds a compaction of f at level into the next level. For
// L0 every L0 file is included, since L0 files may overlap.
func (p *compactionPicker) compactionFor(level int, f *manifest.FileMetadata, reason string) *compaction {
	c := &compaction{
		level:       level,
		outputLevel: level + 1,
		reason:      reason,
	}
	if level == 0 {
		c.inputs[0] = append([]*manifest.FileMetadata(nil), p.v.Files[0]...)
	} else {
		c.inputs[0] = []*manifest.FileMetadata{f}
	}
	c.setupInputs(p.opts.Comparer.Compare, p.v)
	return c
}
