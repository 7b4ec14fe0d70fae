// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultFS(t *testing.T) {
	dir := t.TempDir()
	fs := Default

	sub := fs.PathJoin(dir, "a", "b")
	require.NoError(t, fs.MkdirAll(sub, 0755))

	f, err := fs.Create(fs.PathJoin(sub, "2"))
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	require.NoError(t, fs.Rename(fs.PathJoin(sub, "2"), fs.PathJoin(sub, "1")))
	f, err = fs.Create(fs.PathJoin(sub, "3"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	names, err := fs.List(sub)
	require.NoError(t, err)
	require.Equal(t, []string{"1", "3"}, names)

	st, err := fs.Stat(fs.PathJoin(sub, "1"))
	require.NoError(t, err)
	require.Equal(t, int64(5), st.Size())

	f, err = fs.Open(fs.PathJoin(sub, "1"))
	require.NoError(t, err)
	buf := make([]byte, 3)
	_, err = f.ReadAt(buf, 2)
	require.NoError(t, err)
	require.Equal(t, "llo", string(buf))
	require.NoError(t, f.Close())

	require.NoError(t, fs.Remove(fs.PathJoin(sub, "3")))
	names, err = fs.List(sub)
	require.NoError(t, err)
	require.Equal(t, []string{"1"}, names)
}

func TestLock(t *testing.T) {
	fs := Default
	name := fs.PathJoin(t.TempDir(), "LOCK")

	l, err := fs.Lock(name)
	require.NoError(t, err)
	_, err = fs.Lock(name)
	require.Error(t, err)

	require.NoError(t, l.Close())
	l, err = fs.Lock(name)
	require.NoError(t, err)
	require.NoError(t, l.Close())
}
