// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"fmt"
	"log/slog"
)

// Logger defines an interface for writing log messages.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DefaultLogger logs through the process-wide slog logger.
type DefaultLogger struct{}

var _ Logger = DefaultLogger{}

// Infof implements the Logger.Infof interface.
func (DefaultLogger) Infof(format string, args ...interface{}) {
	slog.Info(fmt.Sprintf(format, args...))
}

// Errorf implements the Logger.Errorf interface.
func (DefaultLogger) Errorf(format string, args ...interface{}) {
	slog.Error(fmt.Sprintf(format, args...))
}

// SlogLogger adapts a *slog.Logger with bound attributes to Logger.
type SlogLogger struct {
	L *slog.Logger
}

// Infof implements the Logger.Infof interface.
func (l SlogLogger) Infof(format string, args ...interface{}) {
	l.L.Info(fmt.Sprintf(format, args...))
}

// Errorf implements the Logger.Errorf interface.
func (l SlogLogger) Errorf(format string, args ...interface{}) {
	l.L.Error(fmt.Sprintf(format, args...))
}
