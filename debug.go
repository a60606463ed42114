// go-pn53x
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-pn53x.
//
// go-pn53x is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-pn53x is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-pn53x; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package pn53x

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// debugEnabled controls whether debug output reaches the console.
var debugEnabled atomic.Bool

var logger atomic.Pointer[zerolog.Logger]

func init() {
	if os.Getenv("PN53X_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled.Store(true)
	}
	SetLogger(zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05.000",
	}).With().Timestamp().Str("module", "pn53x").Logger())
}

// SetLogger replaces the console logger. Applications that already run a
// zerolog logger should pass it here so chip traffic lands in their log.
func SetLogger(l zerolog.Logger) {
	logger.Store(&l)
}

// Logger returns the current console logger.
func Logger() *zerolog.Logger {
	return logger.Load()
}

// Debugf logs a debug message.
// Always written to the session log (if initialized); printed to the
// console only when debug mode is enabled.
func Debugf(format string, args ...any) {
	emit(zerolog.DebugLevel, fmt.Sprintf(format, args...))
}

// Debugln logs a debug message built like fmt.Sprintln.
func Debugln(args ...any) {
	msg := fmt.Sprintln(args...)
	emit(zerolog.DebugLevel, msg[:len(msg)-1])
}

// Warnf logs a warning. Warnings reach the console regardless of the debug
// flag.
func Warnf(format string, args ...any) {
	emit(zerolog.WarnLevel, fmt.Sprintf(format, args...))
}

func emit(level zerolog.Level, msg string) {
	if sl := sessionLogger(); sl != nil {
		sl.WithLevel(level).Msg(msg)
	}
	if level >= zerolog.WarnLevel || debugEnabled.Load() {
		logger.Load().WithLevel(level).Msg(msg)
	}
}

// SetDebugEnabled allows programmatic control of debug logging
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether console debug output is on.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// newWriterLogger builds a JSON logger over w.
func newWriterLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
