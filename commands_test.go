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

	"github.com/stretchr/testify/assert"
)

func TestCommandNames(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cmd  byte
	}{
		{"Diagnose", 0x00},
		{"GetFirmwareVersion", 0x02},
		{"GetGeneralStatus", 0x04},
		{"ReadRegister", 0x06},
		{"WriteRegister", 0x08},
		{"SetParameters", 0x12},
		{"SAMConfiguration", 0x14},
		{"PowerDown", 0x16},
		{"RFConfiguration", 0x32},
		{"InDataExchange", 0x40},
		{"InCommunicateThru", 0x42},
		{"InDeselect", 0x44},
		{"InListPassiveTarget", 0x4A},
		{"InATR", 0x50},
		{"InRelease", 0x52},
		{"InSelect", 0x54},
		{"InJumpForDEP", 0x56},
		{"InAutoPoll", 0x60},
		{"TgGetData", 0x86},
		{"TgInitAsTarget", 0x8C},
		{"TgSetData", 0x8E},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.name, CommandName(tt.cmd))
		})
	}

	assert.Equal(t, "Unknown", CommandName(0xFE))
}

func TestCommandCodesAreEven(t *testing.T) {
	t.Parallel()
	// Responses use cmd+1, so a command code must never collide with the
	// response of another one.
	seen := make(map[byte]string)
	for code, name := range commandNames {
		assert.Zero(t, code&0x01, "%s has an odd code", name)
		if existing, ok := seen[code]; ok {
			t.Errorf("duplicate command code 0x%02X: %s and %s", code, name, existing)
		}
		seen[code] = name
	}
	assert.NotContains(t, seen, byte(responseError-1))
}

func TestPowerDownWakeupFlags(t *testing.T) {
	t.Parallel()
	flags := []struct {
		name     string
		flag     byte
		expected byte
	}{
		{"WakeupHSU", WakeupHSU, 0x01},
		{"WakeupSPI", WakeupSPI, 0x02},
		{"WakeupI2C", WakeupI2C, 0x04},
		{"WakeupGPIOP32", WakeupGPIOP32, 0x08},
		{"WakeupGPIOP34", WakeupGPIOP34, 0x10},
		{"WakeupRF", WakeupRF, 0x20},
		{"WakeupINT1", WakeupINT1, 0x80},
	}

	var all byte
	for _, tt := range flags {
		assert.Equal(t, tt.expected, tt.flag, tt.name)
		assert.Zero(t, all&tt.flag, "%s overlaps another flag", tt.name)
		all |= tt.flag
	}
	assert.Equal(t, byte(0x25), WakeupHSU|WakeupI2C|WakeupRF)
}
