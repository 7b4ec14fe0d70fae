// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package propdb

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/khushmanvar/propdb/internal/base"
	"github.com/khushmanvar/propdb/internal/manifest"
	"github.com/khushmanvar/propdb/record"
	"github.com/khushmanvar/propdb/sstable"
	"github.com/khushmanvar/propdb/tableprops"
	"github.com/khushmanvar/propdb/vfs"
)

// TableInfo describes a live table.
type TableInfo struct {
	FileNum        uint64
	Level          int
	Size           uint64
	Smallest       base.InternalKey
	Largest        base.InternalKey
	SmallestSeqNum uint64
	LargestSeqNum  uint64
	// MarkedForCompaction is set for tables whose range deletions are
	// reclaimed ahead of size-based compactions.
	MarkedForCompaction bool
	// Summary holds the decoded output of the time-bound and delete-range
	// collectors.
	Summary    tableprops.Summary
	Properties *sstable.TableProperties
}

func makeTableInfo(level int, f *manifest.FileMetadata) TableInfo {
	return TableInfo{
		FileNum:             f.FileNum,
		Level:               level,
		Size:                f.Size,
		Smallest:            f.Smallest,
		Largest:             f.Largest,
		SmallestSeqNum:      f.SmallestSeqNum,
		LargestSeqNum:       f.LargestSeqNum,
		MarkedForCompaction: f.MarkedForCompaction,
		Summary:             tableprops.Summarize(f.Properties),
		Properties:          f.Properties,
	}
}

const manifestFilename = "MANIFEST"

// versionSet holds the current version along with the file number and
// sequence number counters. It is protected by DB.mu.
//
// Every change to the current version is appended to the MANIFEST as an
// encoded VersionEdit before it is installed. On Open the MANIFEST is
// replayed to restore the levels of the tables, and then rewritten as a
// single edit describing the recovered version.
type versionSet struct {
	dirname      string
	fs           vfs.FS
	cmp          base.Compare
	comparerName string
	logger       base.Logger
	metrics      *Metrics

	current     *manifest.Version
	nextFileNum uint64
	lastSeqNum  uint64

	manifestFile vfs.File
	manifest     *record.LogWriter
}

func newVersionSet(dirname string, opts *Options, metrics *Metrics) *versionSet {
	return &versionSet{
		dirname:      dirname,
		fs:           opts.FS,
		cmp:          opts.Comparer.Compare,
		comparerName: opts.Comparer.Name,
		logger:       opts.Logger,
		metrics:      metrics,
		current:      &manifest.Version{},
		nextFileNum:  1,
	}
}

func (vs *versionSet) getNextFileNum() uint64 {
	n := vs.nextFileNum
	vs.nextFileNum++
	return n
}

func (vs *versionSet) manifestPath() string {
	return vs.fs.PathJoin(vs.dirname, manifestFilename)
}

// logAndApply appends ve to the MANIFEST and installs the version produced
// by applying it to the current version. The current version is unchanged
// if the edit cannot be applied or persisted.
func (vs *versionSet) logAndApply(ve *manifest.VersionEdit) error {
	nv, err := vs.current.Apply(vs.cmp, ve)
	if err != nil {
		return err
	}
	if ve.NextFileNumber < vs.nextFileNum {
		ve.NextFileNumber = vs.nextFileNum
	}
	if ve.LastSeqNum < vs.lastSeqNum {
		ve.LastSeqNum = vs.lastSeqNum
	}
	if err := vs.manifest.WriteRecord(ve.Encode(nil)); err != nil {
		return errors.Wrap(err, "propdb: writing manifest")
	}
	if err := vs.manifest.Sync(); err != nil {
		return errors.Wrap(err, "propdb: syncing manifest")
	}
	vs.nextFileNum = ve.NextFileNumber
	vs.lastSeqNum = ve.LastSeqNum
	vs.current = nv
	vs.metrics.updateLevels(nv)
	return nil
}

// load recovers the version of the tables in the directory.
//
// Tables listed in the MANIFEST keep their levels. Tables missing from it
// were written by a flush or compaction that did not complete: those the
// MANIFEST records as deleted are removed, and the others are registered
// in L0 with bounds and sequence numbers read from the tables. A directory
// without a MANIFEST has all of its tables registered in L0.
func (vs *versionSet) load(d *DB) error {
	replayed, deleted, err := vs.replay()
	if err != nil {
		return err
	}

	ve := &manifest.VersionEdit{NextFileNumber: vs.nextFileNum, LastSeqNum: vs.lastSeqNum}
	listed := make(map[uint64]bool)
	if replayed != nil {
		for level := range replayed.Files {
			for _, f := range replayed.Files[level] {
				t, err := d.tableCache.get(f.FileNum)
				if err != nil {
					return errors.Wrapf(err, "propdb: opening table %06d listed in manifest", f.FileNum)
				}
				f.Properties = t.reader.Properties()
				if t.reader.PropertiesError() != nil {
					d.metrics.PropertyErrors.Inc()
				}
				d.observeProperties(f)
				ve.AddFile(level, f)
				listed[f.FileNum] = true
			}
		}
	}

	names, err := vs.fs.List(vs.dirname)
	if err != nil {
		return errors.Wrapf(err, "propdb: listing %s", vs.dirname)
	}
	for _, name := range names {
		fileNum, ok := manifest.ParseTableFilename(name)
		if !ok || listed[fileNum] {
			continue
		}
		if fileNum >= ve.NextFileNumber {
			ve.NextFileNumber = fileNum + 1
		}
		if deleted[fileNum] {
			vs.logger.Infof("removing obsolete table %06d", fileNum)
			if err := vs.fs.Remove(vs.fs.PathJoin(vs.dirname, name)); err != nil {
				return errors.Wrapf(err, "propdb: removing obsolete table %06d", fileNum)
			}
			continue
		}
		t, err := d.tableCache.get(fileNum)
		if err != nil && replayed != nil && isUnreadableTable(err) {
			// The write of the table never completed.
			vs.logger.Errorf("removing unreadable table %06d: %v", fileNum, err)
			if rerr := vs.fs.Remove(vs.fs.PathJoin(vs.dirname, name)); rerr != nil {
				return errors.CombineErrors(err, rerr)
			}
			continue
		} else if err != nil {
			return err
		}
		meta, err := d.newFileMetadata(t)
		if err != nil {
			return err
		}
		if replayed != nil {
			vs.logger.Infof("table %06d is not in the manifest; registering it in L0", fileNum)
		}
		ve.AddFile(0, meta)
		if meta.LargestSeqNum > ve.LastSeqNum {
			ve.LastSeqNum = meta.LargestSeqNum
		}
	}

	nv, err := (*manifest.Version)(nil).Apply(vs.cmp, ve)
	if err != nil {
		return err
	}
	vs.current = nv
	vs.nextFileNum = ve.NextFileNumber
	vs.lastSeqNum = ve.LastSeqNum
	vs.metrics.updateLevels(nv)
	return vs.writeSnapshot()
}

func isUnreadableTable(err error) bool {
	return base.IsCorruptionError(err) || errors.Is(err, sstable.ErrNotAnSSTable)
}

// replay applies the edits recorded in the MANIFEST. It returns a nil
// version if there is no MANIFEST, and the file numbers of every table an
// edit deleted.
func (vs *versionSet) replay() (*manifest.Version, map[uint64]bool, error) {
	f, err := vs.fs.Open(vs.manifestPath())
	if os.IsNotExist(err) {
		return nil, nil, nil
	} else if err != nil {
		return nil, nil, errors.Wrap(err, "propdb: opening manifest")
	}
	defer f.Close()

	v := &manifest.Version{}
	deleted := make(map[uint64]bool)
	r := record.NewReader(f)
	for {
		rr, err := r.Next()
		if err == io.EOF {
			break
		} else if err == io.ErrUnexpectedEOF {
			vs.logger.Infof("manifest ends with a partial edit; ignoring it")
			break
		} else if err != nil {
			return nil, nil, base.CorruptionErrorf("propdb: reading manifest: %v", err)
		}
		b, err := io.ReadAll(rr)
		if err != nil {
			return nil, nil, err
		}
		var ve manifest.VersionEdit
		if err := ve.Decode(b); err != nil {
			return nil, nil, err
		}
		if ve.ComparerName != "" && ve.ComparerName != vs.comparerName {
			return nil, nil, errors.Errorf("propdb: manifest comparer %q does not match %q",
				ve.ComparerName, vs.comparerName)
		}
		for e := range ve.DeletedFiles {
			deleted[e.FileNum] = true
		}
		if v, err = v.Apply(vs.cmp, &ve); err != nil {
			return nil, nil, base.CorruptionErrorf("propdb: replaying manifest: %v", err)
		}
		if ve.NextFileNumber > vs.nextFileNum {
			vs.nextFileNum = ve.NextFileNumber
		}
		if ve.LastSeqNum > vs.lastSeqNum {
			vs.lastSeqNum = ve.LastSeqNum
		}
	}
	return v, deleted, nil
}

// writeSnapshot replaces the MANIFEST with one holding a single edit that
// describes the current version, and keeps it open for appending.
func (vs *versionSet) writeSnapshot() error {
	ve := &manifest.VersionEdit{
		ComparerName:   vs.comparerName,
		NextFileNumber: vs.nextFileNum,
		LastSeqNum:     vs.lastSeqNum,
	}
	for level := range vs.current.Files {
		for _, f := range vs.current.Files[level] {
			ve.AddFile(level, f)
		}
	}

	tmp := vs.manifestPath() + ".tmp"
	f, err := vs.fs.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "propdb: creating manifest")
	}
	w := record.NewLogWriter(f)
	err = w.WriteRecord(ve.Encode(nil))
	if err == nil {
		err = w.Sync()
	}
	if err == nil {
		err = vs.fs.Rename(tmp, vs.manifestPath())
	}
	if err != nil {
		_ = f.Close()
		_ = vs.fs.Remove(tmp)
		return errors.Wrap(err, "propdb: writing manifest")
	}
	if err := vs.close(); err != nil {
		vs.logger.Errorf("closing previous manifest: %v", err)
	}
	vs.manifestFile, vs.manifest = f, w
	return nil
}

func (vs *versionSet) close() error {
	if vs.manifestFile == nil {
		return nil
	}
	err := vs.manifestFile.Close()
	vs.manifestFile, vs.manifest = nil, nil
	return err
}

// newFileMetadata builds the metadata of an existing table from its bounds
// and properties.
func (d *DB) newFileMetadata(t *cachedTable) (*manifest.FileMetadata, error) {
	smallest, largest, err := t.reader.Bounds()
	if err != nil {
		return nil, errors.Wrapf(err, "propdb: reading bounds of table %06d", t.fileNum)
	}
	props := t.reader.Properties()
	smallestSeqNum, largestSeqNum := props.SmallestSeqNum, props.LargestSeqNum
	if err := t.reader.PropertiesError(); err != nil {
		d.metrics.PropertyErrors.Inc()
		if smallestSeqNum, largestSeqNum, err = scanSeqNums(t); err != nil {
			return nil, err
		}
	}
	st, err := d.opts.FS.Stat(d.opts.FS.PathJoin(d.dirname, manifest.TableFilename(t.fileNum)))
	if err != nil {
		return nil, err
	}
	meta := &manifest.FileMetadata{
		FileNum:        t.fileNum,
		Size:           uint64(st.Size()),
		Smallest:       smallest,
		Largest:        largest,
		SmallestSeqNum: smallestSeqNum,
		LargestSeqNum:  largestSeqNum,
		Properties:     props,
	}
	d.observeProperties(meta)
	return meta, nil
}

// observeProperties derives the table's compaction marking from its
// properties and records them in the metrics.
func (d *DB) observeProperties(meta *manifest.FileMetadata) {
	if tableprops.HasRangeDeletion(meta.Properties) {
		meta.MarkedForCompaction = true
		d.metrics.RangeDelTables.Inc()
	}
	if _, _, ok := tableprops.TimeBounds(meta.Properties); !ok {
		d.metrics.UnboundedTables.Inc()
	}
}

// scanSeqNums computes the sequence number bounds of a table whose
// properties cannot be trusted by reading all of its entries.
func scanSeqNums(t *cachedTable) (smallest, largest uint64, err error) {
	first := true
	observe := func(seqNum uint64) {
		if first || seqNum < smallest {
			smallest = seqNum
		}
		if first || seqNum > largest {
			largest = seqNum
		}
		first = false
	}
	it := t.reader.NewIter()
	for it.First(); it.Valid(); it.Next() {
		observe(it.Key().SeqNum())
	}
	if err := it.Close(); err != nil {
		return 0, 0, errors.Wrapf(err, "propdb: scanning table %06d", t.fileNum)
	}
	for _, s := range t.rangeDels {
		observe(s.SeqNum)
	}
	return smallest, largest, nil
}
