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

package testing

import (
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures a JitteryConn.
type JitterConfig struct {
	MaxLatency       time.Duration
	StallDuration    time.Duration
	FragmentMinBytes int
	StallAfterBytes  int
	Seed             uint64
	FragmentReads    bool
	// USBBoundary splits reads at 64 byte boundaries like USB-serial
	// bridges do.
	USBBoundary bool
}

// DefaultJitterConfig fragments reads down to single bytes with up to 20ms
// latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:       20 * time.Millisecond,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryConn wraps a connection and delivers reads late and in pieces,
// the way FTDI and CH340 bridges do. Writes pass through untouched.
type JitteryConn struct {
	backend  io.ReadWriter
	rng      *rand.Rand
	buf      []byte
	config   JitterConfig
	returned int
	stalled  bool
}

// NewJitteryConn wraps backend.
func NewJitteryConn(backend io.ReadWriter, config JitterConfig) *JitteryConn {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // test jitter
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &JitteryConn{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0x5A5A5A5A)), //nolint:gosec // test jitter
	}
}

// Write implements io.Writer.
func (j *JitteryConn) Write(p []byte) (int, error) {
	return j.backend.Write(p) //nolint:wrapcheck // pass-through
}

// Read implements io.Reader.
func (j *JitteryConn) Read(p []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		time.Sleep(time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)))
	}

	if len(j.buf) == 0 {
		tmp := make([]byte, 1024)
		n, err := j.backend.Read(tmp)
		if err != nil || n == 0 {
			return 0, err //nolint:wrapcheck // pass-through
		}
		j.buf = append(j.buf, tmp[:n]...)
	}

	n := min(len(j.buf), len(p))
	if j.config.StallAfterBytes > 0 && !j.stalled {
		if j.returned >= j.config.StallAfterBytes {
			j.stalled = true
			time.Sleep(j.config.StallDuration)
		} else {
			n = min(n, j.config.StallAfterBytes-j.returned)
		}
	}
	if j.config.USBBoundary {
		n = min(n, 64-j.returned%64)
	}
	if j.config.FragmentReads && n > j.config.FragmentMinBytes {
		n = j.config.FragmentMinBytes + j.rng.IntN(n-j.config.FragmentMinBytes+1)
	}

	copy(p, j.buf[:n])
	j.buf = j.buf[n:]
	j.returned += n
	return n, nil
}

// Reset drops buffered bytes and re-arms the stall.
func (j *JitteryConn) Reset() {
	j.buf = j.buf[:0]
	j.returned = 0
	j.stalled = false
}
