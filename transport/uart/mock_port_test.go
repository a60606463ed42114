// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package uart

import (
	"errors"
	"io"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

var errPortClosed = errors.New("port is closed")

// mockPort implements serial.Port over a wire simulator. Read honours the
// read timeout the way a real port does.
type mockPort struct {
	backend     io.ReadWriter
	written     atomic.Int64
	readTimeout time.Duration
	closed      atomic.Bool
}

func newMockPort(backend io.ReadWriter) *mockPort {
	return &mockPort{backend: backend, readTimeout: 50 * time.Millisecond}
}

func (*mockPort) SetMode(*serial.Mode) error { return nil }

func (m *mockPort) Read(p []byte) (int, error) {
	if m.closed.Load() {
		return 0, errPortClosed
	}
	deadline := time.Now().Add(m.readTimeout)
	for {
		n, err := m.backend.Read(p)
		if n > 0 || err != nil || !time.Now().Before(deadline) {
			return n, err
		}
		time.Sleep(time.Millisecond)
	}
}

func (m *mockPort) Write(p []byte) (int, error) {
	if m.closed.Load() {
		return 0, errPortClosed
	}
	m.written.Add(int64(len(p)))
	return m.backend.Write(p)
}

func (*mockPort) Drain() error { return nil }

// ResetInputBuffer drops whatever the chip already sent.
func (m *mockPort) ResetInputBuffer() error {
	buf := make([]byte, 64)
	for {
		n, err := m.backend.Read(buf)
		if n == 0 || err != nil {
			return nil
		}
	}
}

func (*mockPort) ResetOutputBuffer() error { return nil }
func (*mockPort) SetDTR(bool) error { return nil }
func (*mockPort) SetRTS(bool) error { return nil }

func (*mockPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

func (m *mockPort) SetReadTimeout(t time.Duration) error {
	m.readTimeout = t
	return nil
}

func (m *mockPort) Close() error {
	m.closed.Store(true)
	return nil
}

func (*mockPort) Break(time.Duration) error { return nil }
