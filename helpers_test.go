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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pn532Firmware is a GetFirmwareVersion reply of a PN532 v1.6.
var pn532Firmware = []byte{cmdGetFirmwareVersion + 1, 0x32, 0x01, 0x06, 0x07}

// createMockDeviceWithTransport returns an initialised device of the given
// chip type on a fresh MockTransport.
func createMockDeviceWithTransport(t *testing.T, chip ChipType, opts ...Option) (*Device, *MockTransport) {
	t.Helper()
	mock := NewMockTransport()
	if chip == ChipPN533 {
		mock.SetRegisterStatus(true)
	}
	opts = append([]Option{WithChipType(chip), WithPollInterval(time.Millisecond)}, opts...)
	device, err := New(mock, opts...)
	require.NoError(t, err)
	require.NoError(t, device.Init(context.Background()))
	return device, mock
}

// listReply wraps target records into an InListPassiveTarget reply.
func listReply(records ...[]byte) []byte {
	out := []byte{cmdInListPassiveTarget + 1, byte(len(records))}
	for i, r := range records {
		out = append(out, byte(i+1))
		out = append(out, r...)
	}
	return out
}

func thruReply(data ...byte) []byte {
	return append([]byte{cmdInCommunicateThru + 1, 0x00}, data...)
}

func thruTimeout() []byte {
	return []byte{cmdInCommunicateThru + 1, 0x01}
}
