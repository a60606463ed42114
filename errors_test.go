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
	"io"
	"syscall"
	"testing"

	"github.com/ZaparooProject/go-pn53x/pkg/iso14443"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesKindSentinel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sentinel error
		kind     Kind
		code     int
	}{
		{kind: KindIO, sentinel: ErrIO, code: -1},
		{kind: KindInvalidArgument, sentinel: ErrInvalidArgument, code: -2},
		{kind: KindUnsupported, sentinel: ErrUnsupported, code: -3},
		{kind: KindTimeout, sentinel: ErrTimeout, code: -6},
		{kind: KindAborted, sentinel: ErrAborted, code: -7},
		{kind: KindInternal, sentinel: ErrInternal, code: -80},
		{kind: KindProtocol, sentinel: ErrProtocol, code: -90},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			t.Parallel()
			err := fmt.Errorf("wrapped: %w", errorf(tt.kind, "op", "detail"))
			require.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, tt.code, tt.kind.Code())
			for _, other := range tests {
				if other.kind != tt.kind {
					assert.NotErrorIs(t, err, other.sentinel)
				}
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "InListPassiveTarget: short reply", errorf(KindProtocol, "InListPassiveTarget", "short reply").Error())
	assert.Equal(t, "abort: operation aborted", newError(KindAborted, "abort", nil).Error())
	assert.Equal(t, "timeout", (&Error{Kind: KindTimeout}).Error())
}

func TestRefinedSentinels(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("%w: %s", ErrUnsupportedProperty, Property(99))
	require.ErrorIs(t, err, ErrUnsupportedProperty)
	require.ErrorIs(t, err, ErrUnsupported)
	assert.NotErrorIs(t, err, ErrUnsupportedTargetKind)
	assert.Equal(t, KindUnsupported, KindOf(err))

	require.ErrorIs(t, ErrUnsupportedTargetKind, ErrUnsupported)
}

func TestKindOfForeignErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want Kind
	}{
		{name: "buffer too small", err: iso14443.ErrBufferTooSmall, want: KindInvalidArgument},
		{name: "bad UID length", err: iso14443.ErrInvalidUIDLength, want: KindInvalidArgument},
		{name: "malformed ATS", err: iso14443.ErrMalformedATS, want: KindProtocol},
		{name: "EOF", err: io.EOF, want: KindIO},
		{name: "transport timeout", err: NewNoACKError("write", "/dev/ttyUSB0"), want: KindTimeout},
		{name: "transport read", err: NewTransportReadError("read", "/dev/ttyUSB0"), want: KindIO},
		{name: "chip status", err: &ChipStatusError{Command: "InDataExchange", Status: 0x01}, want: KindTimeout},
		{name: "unknown", err: errors.New("boom"), want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestChipStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sentinel error
		status   byte
	}{
		{status: 0x01, sentinel: ErrTimeout},
		{status: 0x02, sentinel: ErrProtocol},
		{status: 0x10, sentinel: ErrInvalidArgument},
		{status: 0x27, sentinel: ErrInvalidArgument},
		{status: 0x12, sentinel: ErrUnsupported},
		{status: 0x81, sentinel: ErrUnsupported},
		{status: 0x0D, sentinel: ErrIO},
		{status: 0x2B, sentinel: ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("0x%02X", tt.status), func(t *testing.T) {
			t.Parallel()
			err := error(&ChipStatusError{Command: "InDataExchange", Status: tt.status})
			require.ErrorIs(t, err, tt.sentinel)
		})
	}

	err := &ChipStatusError{Command: "InDataExchange", Status: 0x14}
	assert.Equal(t, "InDataExchange: chip status 0x14 (authentication error)", err.Error())
	assert.Contains(t, (&ChipStatusError{Status: 0x7E}).Error(), "unknown error")
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "timeout", err: errorf(KindTimeout, "op", "late"), want: true},
		{name: "io", err: errorf(KindIO, "op", "read"), want: true},
		{name: "protocol", err: errorf(KindProtocol, "op", "bad"), want: false},
		{name: "aborted", err: newError(KindAborted, "op", nil), want: false},
		{name: "transient transport", err: NewNACKReceivedError("read", "port"), want: true},
		{name: "permanent transport", err: NewDataTooLargeError("write", "port"), want: false},
		{name: "device gone", err: newError(KindIO, "read", syscall.ENODEV), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	assert.False(t, IsFatal(nil))
	assert.True(t, IsFatal(NewClosedError("write", "port")))
	assert.True(t, IsFatal(fmt.Errorf("read: %w", syscall.EIO)))
	assert.False(t, IsFatal(NewFrameCorruptedError("read", "port")))
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	err := NewTransportWriteError("write", "/dev/ttyUSB0")
	assert.Equal(t, "write /dev/ttyUSB0: transport write failed", err.Error())
	require.ErrorIs(t, err, ErrTransportWrite)
	assert.True(t, err.Retryable)

	noPort := NewTransportError("read", "", ErrInvalidResponse, ErrorTypePermanent)
	assert.Equal(t, "read: invalid response format", noPort.Error())
	assert.False(t, noPort.Retryable)
}

func TestTraceBuffer(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("uart", "/dev/ttyUSB0", 2)
	tb.RecordTX([]byte{0x4A, 0x01, 0x00}, "InListPassiveTarget")
	tb.RecordRX([]byte{0x4B, 0x00}, "")
	tb.RecordTimeout("InListPassiveTarget")

	require.NoError(t, tb.WrapError(nil))
	err := tb.WrapError(errorf(KindTimeout, "InListPassiveTarget", "no response"))
	te := GetTrace(fmt.Errorf("outer: %w", err))
	require.NotNil(t, te)
	require.Len(t, te.Trace, 2)
	assert.Equal(t, TraceRX, te.Trace[0].Direction)
	assert.Equal(t, "TIMEOUT: InListPassiveTarget", te.Trace[1].Note)
	require.ErrorIs(t, err, ErrTimeout)

	out := te.FormatTrace()
	assert.Contains(t, out, "[uart:/dev/ttyUSB0] Wire trace (2 entries)")
	assert.Contains(t, out, "< 4B 00")

	tb.Clear()
	assert.Contains(t, tb.WrapError(errors.New("x")).(*TraceableError).FormatTrace(), "no trace data")
	assert.Nil(t, GetTrace(errors.New("plain")))
}

func TestFormatHexBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "(empty)", formatHexBytes(nil))
	assert.Equal(t, "D4 02", formatHexBytes([]byte{0xD4, 0x02}))
	long := make([]byte, 40)
	assert.Contains(t, formatHexBytes(long), "(40 bytes total)")
}

func TestTraceBufferKeepsNewestFrames(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("i2c", "/dev/i2c-1", 3)
	for i := range 5 {
		tb.RecordTX([]byte{byte(i)}, "")
	}
	entries := tb.Entries()
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, []byte{byte(i + 2)}, e.Data)
	}
	assert.Contains(t, entries[0].String(), "TX: 02")
}
