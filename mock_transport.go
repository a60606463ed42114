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
	"time"

	"github.com/ZaparooProject/go-pn53x/internal/syncutil"
)

// MockTransport is a scriptable Transport for tests. Responses are keyed by
// opcode and written as [response code, data...]. Queued responses are
// consumed in order before anything else; after them a silent command gets
// no reply, then the sticky response set with SetResponse applies, and
// without either a plain success reply is produced.
type MockTransport struct {
	readyAt   time.Time
	readErr   error
	abortCh   chan struct{}
	queued    map[byte][][]byte
	sticky    map[byte][]byte
	errorMap  map[byte]error
	silent    map[byte]bool
	callCount map[byte]int
	written   [][]byte
	pending   []byte
	delay     time.Duration
	aborts    int
	cancels   int
	mu        syncutil.Mutex
	closed    bool
	// regs feeds default ReadRegister replies; see SetRegister.
	regs map[uint16][]byte
	// regStatus prefixes default ReadRegister replies with a status byte,
	// as PN533 does.
	regStatus bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		abortCh:   make(chan struct{}, 1),
		queued:    make(map[byte][][]byte),
		sticky:    make(map[byte][]byte),
		errorMap:  make(map[byte]error),
		silent:    make(map[byte]bool),
		callCount: make(map[byte]int),
		regs:      make(map[uint16][]byte),
	}
}

// SetResponse sets the reply returned every time cmd is written.
func (m *MockTransport) SetResponse(cmd byte, response []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sticky[cmd] = append([]byte(nil), response...)
}

// QueueResponse appends one-shot replies for cmd.
func (m *MockTransport) QueueResponse(cmd byte, responses ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range responses {
		m.queued[cmd] = append(m.queued[cmd], append([]byte(nil), r...))
	}
}

// SetError makes writes of cmd fail with err.
func (m *MockTransport) SetError(cmd byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMap[cmd] = err
}

// ClearError removes an error set with SetError.
func (m *MockTransport) ClearError(cmd byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errorMap, cmd)
}

// SetSilent makes the chip never answer cmd.
func (m *MockTransport) SetSilent(cmd byte, silent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.silent[cmd] = silent
}

// SetRegisterStatus makes default ReadRegister replies carry the PN533
// status byte.
func (m *MockTransport) SetRegisterStatus(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regStatus = on
}

// SetRegister scripts the values ReadRegister returns for addr. Each read
// consumes one value; the last one repeats.
func (m *MockTransport) SetRegister(addr uint16, values ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[addr] = append([]byte(nil), values...)
}

// SetDelay delays every reply by d after the command is written.
func (m *MockTransport) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetReadError makes every Read fail with err.
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// GetCallCount returns how many times cmd was written.
func (m *MockTransport) GetCallCount(cmd byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount[cmd]
}

// Written returns a copy of every frame written so far.
func (m *MockTransport) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	for i, w := range m.written {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// LastCommand returns the last frame written with opcode cmd, or nil.
func (m *MockTransport) LastCommand(cmd byte) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.written) - 1; i >= 0; i-- {
		if m.written[i][0] == cmd {
			return append([]byte(nil), m.written[i]...)
		}
	}
	return nil
}

// Commands returns the opcodes written so far, in order.
func (m *MockTransport) Commands() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, 0, len(m.written))
	for _, w := range m.written {
		out = append(out, w[0])
	}
	return out
}

// AbortCount returns how many times Abort was called.
func (m *MockTransport) AbortCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborts
}

// CancelCount returns how many times CancelCommand was called.
func (m *MockTransport) CancelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}

// Reset clears all scripted behaviour and history.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = make(map[byte][][]byte)
	m.sticky = make(map[byte][]byte)
	m.errorMap = make(map[byte]error)
	m.silent = make(map[byte]bool)
	m.callCount = make(map[byte]int)
	m.regs = make(map[uint16][]byte)
	m.written = nil
	m.pending = nil
	m.readErr = nil
	m.delay = 0
}

// Write records the frame and prepares the scripted reply.
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, NewClosedError("write", "mock")
	}
	if len(p) == 0 {
		return 0, NewDataTooLargeError("write", "mock")
	}
	cmd := p[0]
	m.written = append(m.written, append([]byte(nil), p...))
	m.callCount[cmd]++
	if err := m.errorMap[cmd]; err != nil {
		return 0, err
	}

	m.pending = nil
	if q := m.queued[cmd]; len(q) > 0 {
		m.pending, m.queued[cmd] = q[0], q[1:]
	} else if m.silent[cmd] {
		return len(p), nil
	} else if r, ok := m.sticky[cmd]; ok {
		m.pending = append([]byte(nil), r...)
	} else {
		m.pending = m.defaultReply(p)
	}
	m.readyAt = time.Now().Add(m.delay)
	return len(p), nil
}

func (m *MockTransport) defaultReply(p []byte) []byte {
	cmd := p[0]
	switch cmd {
	case cmdReadRegister:
		r := []byte{cmd + 1}
		if m.regStatus {
			r = append(r, 0x00)
		}
		for i := 1; i+1 < len(p); i += 2 {
			r = append(r, m.nextRegister(uint16(p[i])<<8|uint16(p[i+1])))
		}
		return r
	case cmdInDataExchange, cmdInCommunicateThru, cmdInDeselect, cmdInRelease,
		cmdInSelect, cmdPowerDown, cmdTgGetData, cmdTgSetData,
		cmdTgGetInitiatorCmd, cmdTgResponseToInit:
		return []byte{cmd + 1, 0x00}
	}
	return []byte{cmd + 1}
}

func (m *MockTransport) nextRegister(addr uint16) byte {
	vals := m.regs[addr]
	switch len(vals) {
	case 0:
		return 0
	case 1:
		return vals[0]
	}
	m.regs[addr] = vals[1:]
	return vals[0]
}

// Read returns the pending reply once its delay has elapsed, or (0, nil)
// after timeout. Abort wakes a blocked Read.
func (m *MockTransport) Read(p []byte, timeout time.Duration) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, NewClosedError("read", "mock")
	}
	if m.readErr != nil {
		err := m.readErr
		m.mu.Unlock()
		return 0, err
	}
	pending := m.pending
	wait := timeout
	if pending != nil {
		if d := time.Until(m.readyAt); d <= timeout {
			wait = max(d, 0)
		} else {
			pending = nil
		}
	}
	abort := m.abortCh
	m.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-abort:
			return 0, nil
		}
	}
	if pending == nil {
		return 0, nil
	}

	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
	return copy(p, pending), nil
}

// Abort wakes a blocked Read.
func (m *MockTransport) Abort() error {
	m.mu.Lock()
	m.aborts++
	m.mu.Unlock()
	select {
	case m.abortCh <- struct{}{}:
	default:
	}
	return nil
}

// CancelCommand drops the pending reply, like an ACK frame would.
func (m *MockTransport) CancelCommand() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
	m.pending = nil
	return nil
}

// Close closes the mock transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Type returns the transport type
func (*MockTransport) Type() TransportType {
	return TransportMock
}
