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
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-pn53x/internal/syncutil"
	"github.com/rs/zerolog"
)

// Session log state
var (
	sessionMu   syncutil.Mutex
	sessionFile *os.File
	sessionPath string
	sessionLog  *zerolog.Logger
)

func sessionLogger() *zerolog.Logger {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	return sessionLog
}

// InitSessionLog creates a JSON session log in the current directory that
// records every debug message regardless of the debug flag. Returns the
// file path for display to the user.
func InitSessionLog() (string, error) {
	filename := fmt.Sprintf("pn53x_%s.log", time.Now().Format("20060102_150405"))

	f, err := os.Create(filename) //nolint:gosec // filename is constructed internally, not user input
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	l := newWriterLogger(f)
	writeSessionHeader(&l)

	sessionMu.Lock()
	sessionFile = f
	sessionPath = filename
	sessionLog = &l
	sessionMu.Unlock()

	return filename, nil
}

// CloseSessionLog closes the current session log file.
func CloseSessionLog() error {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if sessionFile == nil {
		return nil
	}

	sessionLog.Info().Msg("session ended")
	err := sessionFile.Close()
	sessionFile = nil
	sessionPath = ""
	sessionLog = nil
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the current session log file path.
func GetSessionLogPath() string {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	return sessionPath
}

func writeSessionHeader(l *zerolog.Logger) {
	ev := l.Info().
		Int("pid", os.Getpid()).
		Str("os", runtime.GOOS+"/"+runtime.GOARCH).
		Str("go", runtime.Version()).
		Str("cmdline", strings.Join(os.Args, " "))
	if exe, err := os.Executable(); err == nil {
		ev = ev.Str("executable", exe)
	}
	ev.Msg("PN53x debug session started")
}
