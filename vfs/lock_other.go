// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd)

package vfs

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

// lockFile creates the named file exclusively. The file is removed when the
// lock is released; one left behind by a crashed process must be removed by
// hand.
func lockFile(name string) (io.Closer, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.Newf("vfs: %s is locked by another process", name)
		}
		return nil, err
	}
	return &lockCloser{f: f}, nil
}

// lockCloser removes the lock file when closed.
type lockCloser struct {
	f *os.File
}

func (l *lockCloser) Close() error {
	name := l.f.Name()
	err := l.f.Close()
	if rerr := os.Remove(name); err == nil {
		err = rerr
	}
	return err
}
