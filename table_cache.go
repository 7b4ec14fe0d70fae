// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package propdb

import (
	"github.com/cockroachdb/errors"
	"github.com/khushmanvar/propdb/internal/keyspan"
	"github.com/khushmanvar/propdb/internal/manifest"
	"github.com/khushmanvar/propdb/sstable"
	"github.com/khushmanvar/propdb/vfs"
	"github.com/puzpuzpuz/xsync/v3"
)

// cachedTable is an open table along with its range deletions, which are
// consulted on every lookup.
type cachedTable struct {
	fileNum   uint64
	reader    *sstable.Reader
	rangeDels []keyspan.Span
}

// tableCache holds the open tables of a DB keyed by file number.
type tableCache struct {
	dirname string
	fs      vfs.FS
	opts    sstable.ReaderOptions
	tables  *xsync.MapOf[uint64, *cachedTable]
}

func newTableCache(dirname string, fs vfs.FS, opts sstable.ReaderOptions) *tableCache {
	return &tableCache{
		dirname: dirname,
		fs:      fs,
		opts:    opts,
		tables:  xsync.NewMapOf[uint64, *cachedTable](),
	}
}

// get returns the open table with the given file number, opening it if
// necessary.
func (c *tableCache) get(fileNum uint64) (*cachedTable, error) {
	if t, ok := c.tables.Load(fileNum); ok {
		return t, nil
	}
	t, err := c.open(fileNum)
	if err != nil {
		return nil, err
	}
	actual, loaded := c.tables.LoadOrStore(fileNum, t)
	if loaded {
		// Lost a race with a concurrent open of the same table.
		_ = t.reader.Close()
	}
	return actual, nil
}

func (c *tableCache) open(fileNum uint64) (*cachedTable, error) {
	path := c.fs.PathJoin(c.dirname, manifest.TableFilename(fileNum))
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "propdb: opening table %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "propdb: opening table %s", path)
	}
	r, err := sstable.NewReader(f, st.Size(), c.opts)
	if err != nil {
		return nil, errors.Wrapf(err, "propdb: opening table %s", path)
	}
	rangeDels, err := r.RangeDeletions()
	if err != nil {
		_ = r.Close()
		return nil, errors.Wrapf(err, "propdb: opening table %s", path)
	}
	return &cachedTable{fileNum: fileNum, reader: r, rangeDels: rangeDels}, nil
}

// evict closes the table with the given file number if it is open.
func (c *tableCache) evict(fileNum uint64) error {
	if t, ok := c.tables.LoadAndDelete(fileNum); ok {
		return t.reader.Close()
	}
	return nil
}

// close closes every open table.
func (c *tableCache) close() error {
	var err error
	c.tables.Range(func(fileNum uint64, t *cachedTable) bool {
		err = errors.CombineErrors(err, t.reader.Close())
		return true
	})
	c.tables.Clear()
	return err
}
