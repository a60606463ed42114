// Copyright 2025 The Zaparoo Project Contributors.
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
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDeviceConfig(t *testing.T) {
	t.Parallel()
	config := DefaultDeviceConfig()
	require.NotNil(t, config)

	assert.Equal(t, time.Second, config.Timeout)
	assert.Equal(t, 10*time.Millisecond, config.PollInterval)
	assert.Equal(t, ChipUnknown, config.ChipType)
	assert.Equal(t, DefaultPassiveActivationRetries, config.MaxRetries)
	require.NotNil(t, config.RetryConfig)
	assert.Equal(t, 3, config.RetryConfig.MaxAttempts)
}

func TestDefaultRetryConfig(t *testing.T) {
	t.Parallel()
	config := DefaultRetryConfig()
	require.NotNil(t, config)

	tests := []struct {
		got      any
		expected any
		name     string
	}{
		{config.MaxAttempts, 3, "MaxAttempts"},
		{config.InitialBackoff, 10 * time.Millisecond, "InitialBackoff"},
		{config.MaxBackoff, 1 * time.Second, "MaxBackoff"},
		{config.BackoffMultiplier, 2.0, "BackoffMultiplier"},
		{config.Jitter, 0.1, "Jitter"},
		{config.RetryTimeout, 5 * time.Second, "RetryTimeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.got)
		})
	}
}

func TestOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		check   func(t *testing.T, d *Device)
		opt     Option
		name    string
		wantErr bool
	}{
		{
			name: "timeout",
			opt:  WithTimeout(250 * time.Millisecond),
			check: func(t *testing.T, d *Device) {
				t.Helper()
				assert.Equal(t, 250*time.Millisecond, d.chip.TimeoutCommand)
			},
		},
		{
			name: "no timeout",
			opt:  WithTimeout(NoTimeout),
			check: func(t *testing.T, d *Device) {
				t.Helper()
				assert.Equal(t, NoTimeout, d.chip.TimeoutCommand)
			},
		},
		{name: "zero timeout", opt: WithTimeout(0), wantErr: true},
		{name: "zero poll interval", opt: WithPollInterval(0), wantErr: true},
		{
			name: "poll interval",
			opt:  WithPollInterval(2 * time.Millisecond),
			check: func(t *testing.T, d *Device) {
				t.Helper()
				assert.Equal(t, 2*time.Millisecond, d.config.PollInterval)
			},
		},
		{
			name: "chip type",
			opt:  WithChipType(ChipPN533),
			check: func(t *testing.T, d *Device) {
				t.Helper()
				assert.Equal(t, ChipPN533, d.chip.Type)
			},
		},
		{
			name: "max retries",
			opt:  WithMaxRetries(0x05),
			check: func(t *testing.T, d *Device) {
				t.Helper()
				assert.Equal(t, byte(0x05), d.config.MaxRetries)
			},
		},
		{name: "nil retry config", opt: WithRetryConfig(nil), wantErr: true},
		{
			name: "retry config",
			opt:  WithRetryConfig(&RetryConfig{MaxAttempts: 7}),
			check: func(t *testing.T, d *Device) {
				t.Helper()
				assert.Equal(t, 7, d.config.RetryConfig.MaxAttempts)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, err := New(NewMockTransport(), tt.opt)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			tt.check(t, d)
		})
	}
}

//nolint:paralleltest // replaces the package logger
func TestWithLogger(t *testing.T) {
	prev := Logger()
	defer SetLogger(*prev)

	l := zerolog.Nop()
	_, err := New(NewMockTransport(), WithLogger(l))
	require.NoError(t, err)
	assert.Equal(t, zerolog.Disabled, Logger().GetLevel())
}

func TestTransportType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		tt   TransportType
		str  string
	}{
		{"UART", TransportUART, "uart"},
		{"I2C", TransportI2C, "i2c"},
		{"SPI", TransportSPI, "spi"},
		{"USB", TransportUSB, "usb"},
		{"PCSC", TransportPCSC, "pcsc"},
		{"Mock", TransportMock, "mock"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, test.str, string(test.tt))
		})
	}
}

type capableTransport struct {
	*MockTransport
	caps map[TransportCapability]bool
}

func (c capableTransport) HasCapability(capability TransportCapability) bool {
	return c.caps[capability]
}

func TestTransportCapability(t *testing.T) {
	t.Parallel()

	plain := NewMockTransport()
	assert.False(t, hasCapability(plain, CapabilityExtendedFrames))

	ext := capableTransport{MockTransport: NewMockTransport(), caps: map[TransportCapability]bool{
		CapabilityExtendedFrames: true,
	}}
	assert.True(t, hasCapability(ext, CapabilityExtendedFrames))
	assert.False(t, hasCapability(ext, CapabilityNoTargetMode))
}
