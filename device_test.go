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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNilTransport(t *testing.T) {
	t.Parallel()
	_, err := New(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestInitProbesFirmware(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetResponse(cmdGetFirmwareVersion, pn532Firmware)
	device, err := New(mock)
	require.NoError(t, err)

	require.NoError(t, device.Init(context.Background()))
	assert.Equal(t, ChipPN532, device.Chip().Type)
	require.NotNil(t, device.Chip().Firmware)
	assert.Equal(t, "1.6", device.Chip().Firmware.Version)
	assert.True(t, device.Chip().Firmware.SupportIso14443b)

	assert.Equal(t, 1, mock.GetCallCount(cmdSamConfiguration))
	assert.Equal(t, []byte{cmdSamConfiguration, byte(SAMModeNormal), 0x14, 0x01},
		mock.LastCommand(cmdSamConfiguration))
	assert.Equal(t, []byte{cmdSetParameters, paramAutoATRRes | paramAutoRATS},
		mock.LastCommand(cmdSetParameters))

	fw, err := device.FirmwareVersion(context.Background())
	require.NoError(t, err)
	assert.Same(t, device.Chip().Firmware, fw)
	assert.Equal(t, 1, mock.GetCallCount(cmdGetFirmwareVersion))
}

func TestInitForcedChipSkipsProbe(t *testing.T) {
	t.Parallel()

	device, mock := createMockDeviceWithTransport(t, ChipPN533)
	assert.Equal(t, ChipPN533, device.Chip().Type)
	assert.Zero(t, mock.GetCallCount(cmdGetFirmwareVersion))
	assert.Zero(t, mock.GetCallCount(cmdSamConfiguration))

	err := device.SAMConfiguration(context.Background(), SAMModeNormal, 0, 0)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestInitFirmwareFailure(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetResponse(cmdGetFirmwareVersion, []byte{responseError})
	device, err := New(mock)
	require.NoError(t, err)

	err = device.Init(context.Background())
	require.ErrorIs(t, err, ErrProtocol)
}

type chipTypedTransport struct {
	*MockTransport
}

func (chipTypedTransport) ChipType() ChipType { return ChipRCS360 }

func TestChipTyperHint(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetResponse(cmdGetFirmwareVersion, []byte{cmdGetFirmwareVersion + 1, 0x33, 0x01, 0x30, 0x07})
	device, err := New(chipTypedTransport{mock})
	require.NoError(t, err)
	require.NoError(t, device.Init(context.Background()))
	assert.Equal(t, ChipRCS360, device.Chip().Type)
	assert.Empty(t, device.SupportedModulations(ModeTarget))
}

func TestParseFirmware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     []byte
		hint     ChipType
		wantChip ChipType
		version  string
		wantErr  error
	}{
		{name: "PN531", data: []byte{0x04, 0x02}, wantChip: ChipPN531, version: "4.2"},
		{name: "PN532", data: []byte{0x32, 0x01, 0x06, 0x07}, wantChip: ChipPN532, version: "1.6"},
		{name: "PN533", data: []byte{0x33, 0x02, 0x07, 0x07}, wantChip: ChipPN533, version: "2.7"},
		{name: "RC-S360 hint", data: []byte{0x33, 0x01, 0x30, 0x07}, hint: ChipRCS360, wantChip: ChipRCS360, version: "1.48"},
		{name: "unknown IC", data: []byte{0x40, 0x01, 0x00, 0x00}, wantErr: ErrUnsupported},
		{name: "short", data: []byte{0x32}, wantErr: ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fw, chip, err := parseFirmware(tt.data, tt.hint)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantChip, chip)
			assert.Equal(t, tt.version, fw.Version)
		})
	}
}

func TestInitiatorInit(t *testing.T) {
	t.Parallel()

	device, mock := createMockDeviceWithTransport(t, ChipPN532)
	require.NoError(t, device.InitiatorInit(context.Background()))

	// field off then on, then MaxRetries for infinite select
	var rf [][]byte
	for _, w := range mock.Written() {
		if w[0] == cmdRFConfiguration {
			rf = append(rf, w)
		}
	}
	require.GreaterOrEqual(t, len(rf), 3)
	assert.Equal(t, []byte{cmdRFConfiguration, rfItemField, 0x00}, rf[0])
	assert.Equal(t, []byte{cmdRFConfiguration, rfItemField, 0x01}, rf[1])
	assert.Equal(t, []byte{cmdRFConfiguration, rfItemMaxRetries, 0xFF, 0x01, 0xFF}, rf[2])

	on, err := device.GetPropertyBool(InfiniteSelect)
	require.NoError(t, err)
	assert.True(t, on)
}

func TestGetGeneralStatus(t *testing.T) {
	t.Parallel()

	device, mock := createMockDeviceWithTransport(t, ChipPN532)
	mock.SetResponse(cmdGetGeneralStatus, []byte{cmdGetGeneralStatus + 1, 0x00, 0x01, 0x01, 0x01, 0x00, 0x00, 0x00})

	st, err := device.GetGeneralStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(0), st.LastError)
	assert.True(t, st.FieldPresent)
	assert.Equal(t, byte(1), st.Targets)

	mock.SetResponse(cmdGetGeneralStatus, []byte{cmdGetGeneralStatus + 1, 0x00})
	_, err = device.GetGeneralStatus(context.Background())
	require.ErrorIs(t, err, ErrProtocol)
}

func TestSetPassiveActivationRetries(t *testing.T) {
	t.Parallel()

	device, mock := createMockDeviceWithTransport(t, ChipPN532)
	require.NoError(t, device.SetPassiveActivationRetries(context.Background(), 0x05))
	assert.Equal(t, []byte{cmdRFConfiguration, rfItemMaxRetries, 0xFF, 0x01, 0x05},
		mock.LastCommand(cmdRFConfiguration))
}

func TestIdleAndClose(t *testing.T) {
	t.Parallel()

	device, mock := createMockDeviceWithTransport(t, ChipPN532)
	require.NoError(t, device.Idle(context.Background()))
	assert.Equal(t, []byte{cmdInRelease, 0x00}, mock.LastCommand(cmdInRelease))
	assert.Equal(t, []byte{cmdRFConfiguration, rfItemField, 0x00}, mock.LastCommand(cmdRFConfiguration))
	// mock transport has no wake-up source, so no power down
	assert.Zero(t, mock.GetCallCount(cmdPowerDown))

	require.NoError(t, device.Close())
	_, err := mock.Write([]byte{cmdGetFirmwareVersion})
	require.Error(t, err)
}

func TestPowerDownRequiresPN532(t *testing.T) {
	t.Parallel()

	device, mock := createMockDeviceWithTransport(t, ChipPN533)
	err := device.PowerDown(context.Background(), WakeupHSU, false)
	require.ErrorIs(t, err, ErrUnsupported)
	assert.Zero(t, mock.GetCallCount(cmdPowerDown))

	device, mock = createMockDeviceWithTransport(t, ChipPN532)
	require.NoError(t, device.PowerDown(context.Background(), WakeupHSU, true))
	assert.Equal(t, []byte{cmdPowerDown, WakeupHSU, 0x01}, mock.LastCommand(cmdPowerDown))
}

func TestIdleReportsReleaseFailure(t *testing.T) {
	t.Parallel()

	device, mock := createMockDeviceWithTransport(t, ChipPN532)
	mock.SetError(cmdInRelease, errors.New("wire cut"))
	err := device.Idle(context.Background())
	require.ErrorIs(t, err, ErrIO)
}
