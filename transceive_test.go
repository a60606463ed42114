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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//nolint:paralleltest // wall clock bounds
func TestTransceiveTimeout(t *testing.T) {
	device, mock := createMockDeviceWithTransport(t, ChipPN532)
	mock.SetSilent(cmdGetGeneralStatus, true)

	start := time.Now()
	_, err := device.transceive(context.Background(), buildGetGeneralStatus(), 50*time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 60*time.Millisecond)
	assert.Equal(t, 1, mock.CancelCount())

	trace := GetTrace(err)
	require.NotNil(t, trace)
	assert.Contains(t, trace.FormatTrace(), "TIMEOUT")
}

//nolint:paralleltest // wall clock bounds
func TestAbortCommandInterruptsTransceive(t *testing.T) {
	device, mock := createMockDeviceWithTransport(t, ChipPN532)
	mock.SetSilent(cmdInListPassiveTarget, true)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = device.AbortCommand()
	}()

	f, err := BuildSelectCommand(modA, 1, nil)
	require.NoError(t, err)
	start := time.Now()
	_, err = device.transceive(context.Background(), f, 500*time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrAborted)
	assert.Less(t, elapsed, 10*time.Millisecond+device.config.PollInterval+20*time.Millisecond)
	assert.Equal(t, 1, mock.AbortCount())
	assert.Equal(t, 1, mock.CancelCount())
}

func TestTransceiveContext(t *testing.T) {
	t.Parallel()

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()
		device, mock := createMockDeviceWithTransport(t, ChipPN532)
		mock.SetSilent(cmdGetGeneralStatus, true)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := device.transceive(ctx, buildGetGeneralStatus(), NoTimeout)
		require.ErrorIs(t, err, ErrAborted)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("deadline", func(t *testing.T) {
		t.Parallel()
		device, mock := createMockDeviceWithTransport(t, ChipPN532)
		mock.SetSilent(cmdGetGeneralStatus, true)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		_, err := device.transceive(ctx, buildGetGeneralStatus(), NoTimeout)
		require.ErrorIs(t, err, ErrTimeout)
	})
}

func TestTransceiveErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		setup   func(m *MockTransport)
		wantErr error
		name    string
	}{
		{
			name:    "error frame",
			setup:   func(m *MockTransport) { m.SetResponse(cmdGetGeneralStatus, []byte{responseError}) },
			wantErr: ErrProtocol,
		},
		{
			name:    "wrong response code",
			setup:   func(m *MockTransport) { m.SetResponse(cmdGetGeneralStatus, []byte{0x41, 0x00}) },
			wantErr: ErrProtocol,
		},
		{
			name:    "write failure",
			setup:   func(m *MockTransport) { m.SetError(cmdGetGeneralStatus, errors.New("unplugged")) },
			wantErr: ErrIO,
		},
		{
			name:    "read failure",
			setup:   func(m *MockTransport) { m.SetReadError(NewFrameCorruptedError("read", "mock")) },
			wantErr: ErrIO,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			device, mock := createMockDeviceWithTransport(t, ChipPN532)
			tt.setup(mock)
			_, err := device.transceive(context.Background(), buildGetGeneralStatus(), 0)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTransceiveRejectsOversizedFrame(t *testing.T) {
	t.Parallel()

	device, mock := createMockDeviceWithTransport(t, ChipPN532)
	f := make(Frame, maxNormalFrame+1)
	f[0] = cmdInDataExchange
	_, err := device.transceive(context.Background(), f, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, mock.GetCallCount(cmdInDataExchange))
}

func TestTransceiveClearsRegisterCache(t *testing.T) {
	t.Parallel()

	device, _ := createMockDeviceWithTransport(t, ChipPN532)
	device.chip.registers[regCIUTxMode] = 0x80

	_, err := device.transceive(context.Background(), buildGetGeneralStatus(), 0)
	require.NoError(t, err)
	assert.Contains(t, device.chip.registers, regCIUTxMode)

	_, err = device.transceive(context.Background(), buildInRelease(0), 0)
	require.NoError(t, err)
	assert.Empty(t, device.chip.registers)
}

func TestExchangeStatus(t *testing.T) {
	t.Parallel()

	device, mock := createMockDeviceWithTransport(t, ChipPN532)
	mock.SetResponse(cmdInRelease, []byte{cmdInRelease + 1, 0x27})

	_, err := device.exchange(context.Background(), buildInRelease(0), 0)
	var cs *ChipStatusError
	require.ErrorAs(t, err, &cs)
	assert.Equal(t, byte(0x27), cs.Status)
	require.ErrorIs(t, err, ErrInvalidArgument)

	mock.SetResponse(cmdInRelease, []byte{cmdInRelease + 1})
	_, err = device.exchange(context.Background(), buildInRelease(0), 0)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestTransceiveBytes(t *testing.T) {
	t.Parallel()

	t.Run("chained data exchange", func(t *testing.T) {
		t.Parallel()
		device, mock := createMockDeviceWithTransport(t, ChipPN532)
		mock.QueueResponse(cmdInDataExchange,
			[]byte{cmdInDataExchange + 1, statusMoreInformation, 0x01, 0x02},
			[]byte{cmdInDataExchange + 1, 0x00, 0x03},
		)

		rx, err := device.TransceiveBytes(context.Background(), []byte{0x60}, 0)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x02, 0x03}, rx)
		assert.Equal(t, 2, mock.GetCallCount(cmdInDataExchange))
		assert.Equal(t, []byte{cmdInDataExchange, 0x01}, mock.LastCommand(cmdInDataExchange))
	})

	t.Run("raw when easy framing is off", func(t *testing.T) {
		t.Parallel()
		device, mock := createMockDeviceWithTransport(t, ChipPN532)
		require.NoError(t, device.SetPropertyBool(context.Background(), EasyFraming, false))
		mock.SetResponse(cmdInCommunicateThru, thruReply(0xAA, 0xBB))

		rx, err := device.TransceiveBytes(context.Background(), []byte{0x30, 0x00}, 0)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xAA, 0xBB}, rx)
		assert.Equal(t, []byte{cmdInCommunicateThru, 0x30, 0x00}, mock.LastCommand(cmdInCommunicateThru))
		assert.Zero(t, mock.GetCallCount(cmdInDataExchange))
	})

	t.Run("RF timeout", func(t *testing.T) {
		t.Parallel()
		device, mock := createMockDeviceWithTransport(t, ChipPN532)
		mock.SetResponse(cmdInDataExchange, []byte{cmdInDataExchange + 1, 0x01})
		_, err := device.TransceiveBytes(context.Background(), []byte{0x60}, 0)
		require.ErrorIs(t, err, ErrTimeout)
	})
}

func TestTransceiveBytesRepliesAreCopies(t *testing.T) {
	t.Parallel()

	device, mock := createMockDeviceWithTransport(t, ChipPN532)
	require.NoError(t, device.SetPropertyBool(context.Background(), EasyFraming, false))
	mock.QueueResponse(cmdInCommunicateThru, thruReply(0xAA, 0xBB), thruReply(0xCC, 0xDD))

	first, err := device.TransceiveBytes(context.Background(), []byte{0x30, 0x00}, 0)
	require.NoError(t, err)
	second, err := device.TransceiveBytes(context.Background(), []byte{0x30, 0x04}, 0)
	require.NoError(t, err)

	assert.Equal(t, []byte{0xAA, 0xBB}, first)
	assert.Equal(t, []byte{0xCC, 0xDD}, second)
}

func TestAbortCommandWhileIdle(t *testing.T) {
	t.Parallel()

	device, mock := createMockDeviceWithTransport(t, ChipPN532)
	mock.SetResponse(cmdGetGeneralStatus, []byte{cmdGetGeneralStatus + 1, 0x00, 0x01, 0x00})
	require.NoError(t, device.AbortCommand())
	assert.Equal(t, 1, mock.AbortCount())

	// nothing was running, so the next operation is unaffected
	status, err := device.GetGeneralStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.FieldPresent)
}

func TestAbortPendingInsideOperation(t *testing.T) {
	t.Parallel()

	device, mock := createMockDeviceWithTransport(t, ChipPN532)
	end := device.begin()
	require.NoError(t, device.AbortCommand())

	_, err := device.transceive(context.Background(), buildGetGeneralStatus(), 0)
	require.ErrorIs(t, err, ErrAborted)
	assert.Zero(t, mock.GetCallCount(cmdGetGeneralStatus))

	// consumed by the command that saw it
	_, err = device.transceive(context.Background(), buildGetGeneralStatus(), 0)
	require.NoError(t, err)
	end()
}
