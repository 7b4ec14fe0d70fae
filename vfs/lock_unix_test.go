// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package vfs

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockIgnoresLeftoverFile(t *testing.T) {
	fs := Default
	name := fs.PathJoin(t.TempDir(), "LOCK")

	// A lock file left behind by a process that exited without releasing it.
	require.NoError(t, os.WriteFile(name, nil, 0644))

	l, err := fs.Lock(name)
	require.NoError(t, err)
	_, err = fs.Lock(name)
	require.Error(t, err)
	require.NoError(t, l.Close())
}
