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

package pn53x

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TraceDirection tells frames sent to the chip from frames it returned.
type TraceDirection string

// Trace directions.
const (
	TraceTX TraceDirection = "TX"
	TraceRX TraceDirection = "RX"
)

// TraceEntry is one frame seen on the wire.
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

func (e TraceEntry) String() string {
	s := fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05.000"), e.Direction, formatHexBytes(e.Data))
	if e.Note != "" {
		s += " (" + e.Note + ")"
	}
	return s
}

// TraceableError carries the wire trace of the command that failed.
//
//	if te := pn53x.GetTrace(err); te != nil {
//	    log.Print(te.FormatTrace())
//	}
type TraceableError struct {
	Err       error
	Transport string
	Port      string
	Trace     []TraceEntry
}

func (e *TraceableError) Error() string { return e.Err.Error() }

func (e *TraceableError) Unwrap() error { return e.Err }

// FormatTrace renders the trace one frame per line, ">" for frames sent
// and "<" for frames received.
func (e *TraceableError) FormatTrace() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s:%s] ", e.Transport, e.Port)
	if len(e.Trace) == 0 {
		sb.WriteString("(no trace data)")
		return sb.String()
	}
	fmt.Fprintf(&sb, "Wire trace (%d entries):\n", len(e.Trace))
	for _, entry := range e.Trace {
		arrow := ">"
		if entry.Direction == TraceRX {
			arrow = "<"
		}
		sb.WriteString("  " + arrow + " " + formatHexBytes(entry.Data))
		if entry.Note != "" {
			sb.WriteString(" (" + entry.Note + ")")
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// GetTrace returns the trace attached to err, or nil.
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}

const maxTraceHexBytes = 32

func formatHexBytes(data []byte) string {
	switch {
	case len(data) == 0:
		return "(empty)"
	case len(data) > maxTraceHexBytes:
		return fmt.Sprintf("% X ... (%d bytes total)", data[:maxTraceHexBytes], len(data))
	default:
		return fmt.Sprintf("% X", data)
	}
}

// TraceBuffer keeps the last frames of the current command. It is not safe
// for concurrent use; the device serializes commands.
type TraceBuffer struct {
	transport string
	port      string
	ring      []TraceEntry
	next      int
	wrapped   bool
}

// NewTraceBuffer returns a buffer that remembers the last size frames.
func NewTraceBuffer(transport, port string, size int) *TraceBuffer {
	if size <= 0 {
		size = 16
	}
	return &TraceBuffer{transport: transport, port: port, ring: make([]TraceEntry, size)}
}

// RecordTX records a frame written to the chip.
func (tb *TraceBuffer) RecordTX(data []byte, note string) { tb.add(TraceTX, data, note) }

// RecordRX records a frame read from the chip.
func (tb *TraceBuffer) RecordRX(data []byte, note string) { tb.add(TraceRX, data, note) }

// RecordTimeout records a read that returned nothing.
func (tb *TraceBuffer) RecordTimeout(note string) { tb.add(TraceRX, nil, "TIMEOUT: "+note) }

func (tb *TraceBuffer) add(dir TraceDirection, data []byte, note string) {
	tb.ring[tb.next] = TraceEntry{
		Timestamp: time.Now(),
		Direction: dir,
		Note:      note,
		Data:      append([]byte(nil), data...),
	}
	tb.next++
	if tb.next == len(tb.ring) {
		tb.next = 0
		tb.wrapped = true
	}
}

// Entries returns the recorded frames, oldest first.
func (tb *TraceBuffer) Entries() []TraceEntry {
	if !tb.wrapped {
		return append([]TraceEntry(nil), tb.ring[:tb.next]...)
	}
	out := make([]TraceEntry, 0, len(tb.ring))
	out = append(out, tb.ring[tb.next:]...)
	return append(out, tb.ring[:tb.next]...)
}

// WrapError attaches the recorded frames to err. A nil err stays nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{
		Err:       err,
		Transport: tb.transport,
		Port:      tb.port,
		Trace:     tb.Entries(),
	}
}

// Clear forgets every recorded frame.
func (tb *TraceBuffer) Clear() {
	clear(tb.ring)
	tb.next = 0
	tb.wrapped = false
}
