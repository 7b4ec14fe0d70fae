// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package propdb is a log-structured merge tree key/value store whose tables
// carry collected properties: the MVCC time bounds of their keys and whether
// they hold range deletions. The properties are consulted to skip tables
// during time-bounded scans and to prioritize the compaction of deleted
// space.
package propdb

import (
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/khushmanvar/propdb/internal/base"
	"github.com/khushmanvar/propdb/internal/keyspan"
	"github.com/khushmanvar/propdb/internal/manifest"
	"github.com/khushmanvar/propdb/internal/mvcc"
	"github.com/khushmanvar/propdb/sstable"
	"github.com/khushmanvar/propdb/tableprops"
)

const lockFilename = "LOCK"

// DB provides a concurrent, persistent ordered key/value store.
//
// Writes are buffered in a memtable that is flushed to a level 0 table once
// it reaches Options.MemTableSize, and when the DB is closed. There is no
// write-ahead log: writes that have not been flushed are lost if the process
// exits without calling Close.
//
// DB is safe for concurrent use. Operations are serialized; a write that
// fills the memtable performs the flush, and any compactions it triggers,
// before returning.
type DB struct {
	dirname string
	opts    *Options
	cmp     base.Compare

	fileLock   io.Closer
	tableCache *tableCache
	metrics    *Metrics

	mu       sync.Mutex
	mem      *memTable
	versions *versionSet
	jobID    int
	closed   bool
	// pinned counts the open iterators reading each table. Obsolete tables
	// are deleted once they are no longer pinned.
	pinned   map[uint64]int
	obsolete map[uint64]bool
}

// Open opens a DB whose files live in the given directory. The directory is
// created if it does not exist. Tables already in the directory are restored
// to the levels recorded in its MANIFEST.
//
// The DB's metrics are registered with Options.MetricsRegisterer until the DB
// is closed.
func Open(dirname string, opts *Options) (_ *DB, retErr error) {
	opts = opts.Clone().EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := opts.FS.MkdirAll(dirname, 0755); err != nil {
		return nil, errors.Wrapf(err, "propdb: creating %s", dirname)
	}
	fileLock, err := opts.FS.Lock(opts.FS.PathJoin(dirname, lockFilename))
	if err != nil {
		return nil, errors.Wrapf(err, "propdb: locking %s", dirname)
	}
	metrics := NewMetrics()
	if err := metrics.register(opts.MetricsRegisterer); err != nil {
		_ = fileLock.Close()
		return nil, err
	}

	d := &DB{
		dirname:  dirname,
		opts:     opts,
		cmp:      opts.Comparer.Compare,
		fileLock: fileLock,
		metrics:  metrics,
		pinned:   make(map[uint64]int),
		obsolete: make(map[uint64]bool),
	}
	d.mem = newMemTable(d.cmp)
	d.versions = newVersionSet(dirname, opts, d.metrics)
	d.tableCache = newTableCache(dirname, opts.FS, sstable.ReaderOptions{
		Comparer: opts.Comparer,
		Logger:   opts.Logger,
	})
	defer func() {
		if retErr != nil {
			_ = d.versions.close()
			_ = d.tableCache.close()
			d.metrics.unregister(opts.MetricsRegisterer)
			_ = d.fileLock.Close()
		}
	}()

	if err := d.versions.load(d); err != nil {
		return nil, err
	}
	d.opts.Logger.Infof("opened %s: %d tables, last sequence number %d",
		dirname, d.versions.current.NumFiles(), d.versions.lastSeqNum)
	return d, nil
}

// Set sets the value for the given key. It overwrites any previous value
// for that key.
func (d *DB) Set(key, value []byte) error {
	b := newPooledBatch()
	defer b.release()
	_ = b.Set(key, value)
	return d.Apply(b)
}

// Delete deletes the value for the given key.
func (d *DB) Delete(key []byte) error {
	b := newPooledBatch()
	defer b.release()
	_ = b.Delete(key)
	return d.Apply(b)
}

// DeleteRange deletes all of the keys in [start, end).
func (d *DB) DeleteRange(start, end []byte) error {
	b := newPooledBatch()
	defer b.release()
	_ = b.DeleteRange(start, end)
	return d.Apply(b)
}

// Apply applies the operations contained in the batch to the DB atomically.
// The batch may be reused once Apply returns.
func (d *DB) Apply(b *Batch) error {
	if b.err != nil {
		return b.err
	}
	if b.Empty() {
		return nil
	}
	r := b.reader()
	for {
		kind, key, value, ok, err := r.next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if kind == base.InternalKeyKindRangeDelete && d.cmp(key, value) >= 0 {
			return errors.Errorf("propdb: invalid range deletion [%q, %q)", key, value)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	seqNum := d.versions.lastSeqNum + 1
	b.setSeqNum(seqNum)
	if err := d.mem.apply(b, seqNum); err != nil {
		return err
	}
	d.versions.lastSeqNum += uint64(b.Count())
	if d.mem.size >= d.opts.MemTableSize {
		return d.flush()
	}
	return nil
}

// Get returns the value for the given key. It returns ErrNotFound if the DB
// does not contain the key. The returned slice is owned by the caller.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}

	// Every source that may hold the key is consulted. The visible entry is
	// the one with the largest sequence number, unless a range deletion with
	// a larger sequence number covers the key.
	best, found, rangeDelSeqNum := d.mem.get(key)
	v := d.versions.current
	for level := range v.Files {
		for _, f := range v.Files[level] {
			if !f.Overlaps(d.cmp, key, key) {
				continue
			}
			t, err := d.tableCache.get(f.FileNum)
			if err != nil {
				return nil, err
			}
			if s := keyspan.CoveringSeqNum(d.cmp, t.rangeDels, key); s > rangeDelSeqNum {
				rangeDelSeqNum = s
			}
			it := t.reader.NewIter()
			it.SeekGE(key)
			if it.Valid() && d.cmp(it.Key().UserKey, key) == 0 {
				if k := it.Key(); !found || k.SeqNum() > best.seqNum {
					best = memEntry{seqNum: k.SeqNum(), kind: k.Kind(), value: append([]byte(nil), it.Value()...)}
					found = true
				}
			}
			if err := it.Close(); err != nil {
				return nil, err
			}
		}
	}
	if !found || best.kind == base.InternalKeyKindDelete || best.seqNum < rangeDelSeqNum {
		return nil, ErrNotFound
	}
	return append([]byte(nil), best.value...), nil
}

// Flush flushes the memtable to a level 0 table.
func (d *DB) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return d.flush()
}

// Compact flushes the memtable and compacts every level into the next until
// all tables reside in the last level. Range deletions and the keys they
// delete are dropped in the process.
func (d *DB) Compact() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := d.flushMemTable(); err != nil {
		return err
	}
	return d.compactAll()
}

// Tables returns a description of every live table, ordered by level.
func (d *DB) Tables() []TableInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.versions.current
	var tables []TableInfo
	for level := range v.Files {
		for _, f := range v.Files[level] {
			tables = append(tables, makeTableInfo(level, f))
		}
	}
	return tables
}

// TableProperties returns the properties of the live table with the given
// file number.
func (d *DB) TableProperties(fileNum uint64) (*sstable.TableProperties, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.versions.current
	for level := range v.Files {
		for _, f := range v.Files[level] {
			if f.FileNum == fileNum {
				return f.Properties, nil
			}
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "propdb: table %06d", fileNum)
}

// TablesForTimeRange returns the live tables that may contain versions with
// timestamps in [min, max]. Tables whose recorded time bounds fall outside
// the range are skipped without being read; tables without time bounds are
// always returned. An empty max leaves the range unbounded above.
func (d *DB) TablesForTimeRange(minTS, maxTS mvcc.Timestamp) []TableInfo {
	filter := tableprops.TimeBoundFilter{Min: minTS, Max: maxTS}
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.versions.current
	var tables []TableInfo
	for level := range v.Files {
		for _, f := range v.Files[level] {
			if !filter.MayContain(f.Properties) {
				d.metrics.TablesPrunedByTime.Inc()
				continue
			}
			tables = append(tables, makeTableInfo(level, f))
		}
	}
	return tables
}

// Metrics returns the DB's metrics.
func (d *DB) Metrics() *Metrics {
	return d.metrics
}

// Close flushes the memtable and closes the DB. Iterators must be closed
// first. The DB's metrics are unregistered.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	err := d.flush()
	d.closed = true
	for fileNum := range d.obsolete {
		d.removeTable(fileNum)
	}
	d.obsolete = make(map[uint64]bool)
	err = errors.CombineErrors(err, d.versions.close())
	err = errors.CombineErrors(err, d.tableCache.close())
	d.metrics.unregister(d.opts.MetricsRegisterer)
	return errors.CombineErrors(err, d.fileLock.Close())
}

func (d *DB) newJobID() int {
	d.jobID++
	return d.jobID
}

// flush flushes the memtable and runs the compactions the new table makes
// necessary. d.mu must be held.
func (d *DB) flush() error {
	if err := d.flushMemTable(); err != nil {
		return err
	}
	if d.opts.DisableAutomaticCompactions {
		return nil
	}
	return d.maybeCompact()
}

// flushMemTable writes the memtable to a level 0 table and replaces it with
// an empty one. d.mu must be held.
func (d *DB) flushMemTable() error {
	if d.mem.empty() {
		return nil
	}
	jobID := d.newJobID()
	fileNum := d.versions.getNextFileNum()
	info := FlushInfo{JobID: jobID}

	meta, err := d.writeTable(fileNum, 0, d.mem.writeTo)
	if err == nil {
		ve := &manifest.VersionEdit{}
		ve.AddFile(0, meta)
		if err = d.versions.logAndApply(ve); err != nil {
			d.removeTables([]*manifest.FileMetadata{meta})
		}
	}
	if err == nil {
		d.mem = newMemTable(d.cmp)
		d.metrics.Flushes.Inc()
		info.Output = makeTableInfo(0, meta)
		d.opts.Logger.Infof("[JOB %d] flushed table %06d (%d bytes)", jobID, meta.FileNum, meta.Size)
	} else {
		d.opts.Logger.Errorf("[JOB %d] flush failed: %v", jobID, err)
	}
	info.Err = err
	if fn := d.opts.EventListener.FlushEnd; fn != nil {
		fn(info)
	}
	return err
}

// newTableIter returns an iterator over the point keys of a live table.
func (d *DB) newTableIter(f *manifest.FileMetadata) (base.InternalIterator, error) {
	t, err := d.tableCache.get(f.FileNum)
	if err != nil {
		return nil, err
	}
	return t.reader.NewIter(), nil
}

func (d *DB) tablePath(fileNum uint64) string {
	return d.opts.FS.PathJoin(d.dirname, manifest.TableFilename(fileNum))
}

// writeTable writes a table at the given level with the contents added by
// fn.
func (d *DB) writeTable(fileNum uint64, level int, fn func(w *sstable.Writer) error) (*manifest.FileMetadata, error) {
	w, err := d.createTable(fileNum, level)
	if err != nil {
		return nil, err
	}
	if err := fn(w); err != nil {
		_ = w.Close()
		_ = d.opts.FS.Remove(d.tablePath(fileNum))
		return nil, err
	}
	meta, err := d.finishTable(fileNum, w)
	if err != nil {
		_ = d.opts.FS.Remove(d.tablePath(fileNum))
		return nil, err
	}
	return meta, nil
}

// createTable creates a table file and returns a writer for it that runs
// the configured property collectors.
func (d *DB) createTable(fileNum uint64, level int) (*sstable.Writer, error) {
	f, err := d.opts.FS.Create(d.tablePath(fileNum))
	if err != nil {
		return nil, errors.Wrapf(err, "propdb: creating table %06d", fileNum)
	}
	return sstable.NewWriter(f, d.opts.writerOptions(level)), nil
}

// finishTable closes the writer and returns the metadata of the table.
func (d *DB) finishTable(fileNum uint64, w *sstable.Writer) (*manifest.FileMetadata, error) {
	if err := w.Close(); err != nil {
		return nil, errors.Wrapf(err, "propdb: writing table %06d", fileNum)
	}
	wm, err := w.Metadata()
	if err != nil {
		return nil, err
	}
	props := wm.Properties
	meta := &manifest.FileMetadata{
		FileNum:        fileNum,
		Size:           wm.Size,
		Smallest:       wm.Smallest,
		Largest:        wm.Largest,
		SmallestSeqNum: wm.SmallestSeqNum,
		LargestSeqNum:  wm.LargestSeqNum,
		Properties:     &props,
	}
	d.observeProperties(meta)
	d.metrics.TablesWritten.Inc()
	if fn := d.opts.EventListener.TableCreated; fn != nil {
		fn(makeTableInfo(-1, meta))
	}
	return meta, nil
}

// removeTables closes and deletes obsolete tables. Tables pinned by an open
// iterator are deleted when the last such iterator is closed. d.mu must be
// held.
func (d *DB) removeTables(files []*manifest.FileMetadata) {
	for _, f := range files {
		if d.pinned[f.FileNum] > 0 {
			d.obsolete[f.FileNum] = true
			continue
		}
		d.removeTable(f.FileNum)
	}
}

// removeTable closes and deletes a table. Failures are logged.
func (d *DB) removeTable(fileNum uint64) {
	if err := d.tableCache.evict(fileNum); err != nil {
		d.opts.Logger.Errorf("closing table %06d: %v", fileNum, err)
	}
	if err := d.opts.FS.Remove(d.tablePath(fileNum)); err != nil {
		d.opts.Logger.Errorf("removing table %06d: %v", fileNum, err)
	}
}

func (d *DB) pin(fileNum uint64) {
	d.pinned[fileNum]++
}

// unpin releases tables pinned by an iterator and deletes those that became
// obsolete meanwhile. d.mu must be held.
func (d *DB) unpin(fileNums []uint64) {
	for _, fileNum := range fileNums {
		if d.pinned[fileNum]--; d.pinned[fileNum] > 0 {
			continue
		}
		delete(d.pinned, fileNum)
		if d.obsolete[fileNum] {
			delete(d.obsolete, fileNum)
			d.removeTable(fileNum)
		}
	}
}
