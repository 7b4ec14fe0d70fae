// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package propdb

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/khushmanvar/propdb/internal/base"
	"github.com/khushmanvar/propdb/internal/keyspan"
	"github.com/khushmanvar/propdb/internal/manifest"
	"github.com/khushmanvar/propdb/sstable"
)

// compaction is a table compaction from one level to the next, starting from
// a given version.
type compaction struct {
	level       int
	outputLevel int
	reason      string

	// inputs are the tables to be compacted: inputs[0] from level, and
	// inputs[1] from outputLevel.
	inputs [2][]*manifest.FileMetadata

	// smallest and largest are the user key bounds of the inputs.
	smallest []byte
	largest  []byte

	// bottommost is true if no level below outputLevel holds keys within the
	// bounds of the inputs. A bottommost compaction drops point deletions and
	// range deletions, since there is nothing left for them to delete.
	bottommost bool
}

// setupInputs adds the overlapping tables of the output level and computes
// the bounds of the compaction.
func (c *compaction) setupInputs(cmp base.Compare, v *manifest.Version) {
	c.smallest, c.largest = manifest.KeyRange(cmp, c.inputs[0])
	c.inputs[1] = v.Overlaps(c.outputLevel, cmp, c.smallest, c.largest)
	c.smallest, c.largest = manifest.KeyRange(cmp, c.inputs[0], c.inputs[1])
	c.bottommost = true
	for level := c.outputLevel + 1; level < numLevels; level++ {
		if len(v.Overlaps(level, cmp, c.smallest, c.largest)) > 0 {
			c.bottommost = false
			break
		}
	}
}

func (c *compaction) String() string {
	var buf strings.Builder
	for i := range c.inputs {
		fmt.Fprintf(&buf, "L%d [", c.level+i)
		for j, f := range c.inputs[i] {
			if j > 0 {
				buf.WriteString(" ")
			}
			fmt.Fprintf(&buf, "%06d", f.FileNum)
		}
		buf.WriteString("] ")
	}
	fmt.Fprintf(&buf, "-> L%d", c.outputLevel)
	return buf.String()
}

func levelInfo(level int, files []*manifest.FileMetadata) LevelInfo {
	info := LevelInfo{Level: level, NumFiles: len(files)}
	for _, f := range files {
		info.Size += f.Size
	}
	return info
}

// compact runs c and installs its result. d.mu must be held.
func (d *DB) compact(c *compaction) error {
	jobID := d.newJobID()
	info := CompactionInfo{
		JobID:  jobID,
		Reason: c.reason,
		Input: []LevelInfo{
			levelInfo(c.level, c.inputs[0]),
			levelInfo(c.outputLevel, c.inputs[1]),
		},
	}

	ve, outputs, err := d.runCompaction(c)
	if err == nil {
		if err = d.versions.logAndApply(ve); err != nil {
			d.removeTables(outputs)
		}
	}
	if err == nil {
		for i := range c.inputs {
			d.removeTables(c.inputs[i])
		}
		d.metrics.Compactions.WithLabelValues(c.reason).Inc()
		info.Output = levelInfo(c.outputLevel, outputs)
		for _, f := range outputs {
			info.Tables = append(info.Tables, makeTableInfo(c.outputLevel, f))
		}
		d.opts.Logger.Infof("[JOB %d] compacted (%s) %s: %d tables written", jobID, c.reason, c, len(outputs))
	} else {
		d.opts.Logger.Errorf("[JOB %d] compaction (%s) %s failed: %v", jobID, c.reason, c, err)
	}
	info.Err = err
	if fn := d.opts.EventListener.CompactionEnd; fn != nil {
		fn(info)
	}
	return err
}

// runCompaction merges the inputs of c into new tables at the output level
// and returns the edit that replaces the inputs with them.
//
// Only the newest version of each user key is kept. Keys deleted by a range
// deletion among the inputs are dropped. Range deletions are carried into
// the output unless the compaction is bottommost.
func (d *DB) runCompaction(c *compaction) (_ *manifest.VersionEdit, _ []*manifest.FileMetadata, retErr error) {
	// L0 tables may overlap and are merged individually. The tables of any
	// other level are read in sequence.
	var iters []base.InternalIterator
	var rangeDels []keyspan.Span
	for i := range c.inputs {
		level := c.level + i
		for _, f := range c.inputs[i] {
			t, err := d.tableCache.get(f.FileNum)
			if err != nil {
				for _, it := range iters {
					_ = it.Close()
				}
				return nil, nil, err
			}
			rangeDels = append(rangeDels, t.rangeDels...)
			if level == 0 {
				iters = append(iters, t.reader.NewIter())
			}
		}
		if level > 0 && len(c.inputs[i]) > 0 {
			iters = append(iters, newLevelIter(d.cmp, c.inputs[i], d.newTableIter))
		}
	}
	keyspan.Sort(d.cmp, rangeDels)
	iter := newMergingIter(d.cmp, iters...)

	var w *sstable.Writer
	var fileNum uint64
	var outputs []*manifest.FileMetadata
	defer func() {
		if retErr == nil {
			return
		}
		if w != nil {
			_ = w.Close()
			_ = d.opts.FS.Remove(d.tablePath(fileNum))
		}
		d.removeTables(outputs)
	}()

	finishOutput := func() error {
		meta, err := d.finishTable(fileNum, w)
		w = nil
		if err != nil {
			_ = d.opts.FS.Remove(d.tablePath(fileNum))
			return err
		}
		outputs = append(outputs, meta)
		return nil
	}
	newOutput := func() error {
		fileNum = d.versions.getNextFileNum()
		var err error
		w, err = d.createTable(fileNum, c.outputLevel)
		return err
	}

	// Range deletions are not fragmented across output tables, so a
	// compaction that carries them writes a single table.
	keepRangeDels := !c.bottommost && len(rangeDels) > 0
	targetSize := uint64(d.opts.Levels[c.outputLevel].TargetFileSize)

	var prevUserKey []byte
	hasPrev := false
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if hasPrev && d.cmp(key.UserKey, prevUserKey) == 0 {
			continue
		}
		prevUserKey = append(prevUserKey[:0], key.UserKey...)
		hasPrev = true

		if keyspan.Covered(d.cmp, rangeDels, key) {
			continue
		}
		if key.Kind() == base.InternalKeyKindDelete && c.bottommost {
			continue
		}
		if w == nil {
			if err := newOutput(); err != nil {
				_ = iter.Close()
				return nil, nil, err
			}
		}
		if err := w.Add(key, iter.Value()); err != nil {
			_ = iter.Close()
			return nil, nil, err
		}
		if !keepRangeDels && w.EstimatedSize() >= targetSize {
			if err := finishOutput(); err != nil {
				_ = iter.Close()
				return nil, nil, err
			}
		}
	}
	if err := iter.Close(); err != nil {
		return nil, nil, errors.Wrapf(err, "propdb: compacting %s", c)
	}

	if keepRangeDels {
		if w == nil {
			if err := newOutput(); err != nil {
				return nil, nil, err
			}
		}
		for _, s := range rangeDels {
			if err := w.DeleteRange(s.Start, s.End, s.SeqNum); err != nil {
				return nil, nil, err
			}
		}
	}
	if w != nil {
		if err := finishOutput(); err != nil {
			return nil, nil, err
		}
	}

	ve := &manifest.VersionEdit{}
	for i := range c.inputs {
		for _, f := range c.inputs[i] {
			ve.DeleteFile(c.level+i, f.FileNum)
		}
	}
	for _, f := range outputs {
		ve.AddFile(c.outputLevel, f)
	}
	return ve, outputs, nil
}

// maybeCompact runs compactions until the picker finds nothing to do.
// d.mu must be held.
func (d *DB) maybeCompact() error {
	for {
		p := compactionPicker{opts: d.opts, v: d.versions.current}
		c := p.pick()
		if c == nil {
			return nil
		}
		if err := d.compact(c); err != nil {
			return err
		}
	}
}

// compactAll compacts every level into the next until all data resides in
// the last level. d.mu must be held.
func (d *DB) compactAll() error {
	for level := 0; level < numLevels-1; level++ {
		v := d.versions.current
		if len(v.Files[level]) == 0 {
			continue
		}
		c := &compaction{
			level:       level,
			outputLevel: level + 1,
			reason:      compactionReasonManual,
		}
		c.inputs[0] = append([]*manifest.FileMetadata(nil), v.Files[level]...)
		c.setupInputs(d.cmp, v)
		if err := d.compact(c); err != nil {
			return err
		}
	}
	return nil
}
