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

package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPathIgnored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		ignore []string
		want   bool
	}{
		{name: "nothing ignored", path: "/dev/ttyUSB0", want: false},
		{name: "empty path", path: "", ignore: []string{"/dev/ttyUSB0"}, want: false},
		{name: "tty", path: "/dev/ttyUSB0", ignore: []string{"/dev/ttyUSB0"}, want: true},
		{name: "com port", path: "COM2", ignore: []string{"COM2"}, want: true},
		{name: "upper case entry", path: "/dev/ttyUSB0", ignore: []string{"/DEV/TTYUSB0"}, want: true},
		{name: "lower case com port", path: "com2", ignore: []string{"COM2"}, want: true},
		{name: "other tty", path: "/dev/ttyUSB1", ignore: []string{"/dev/ttyUSB0"}, want: false},
		{name: "one of several", path: "/dev/ttyACM1", ignore: []string{"COM3", "/dev/ttyACM1"}, want: true},
		{name: "none of several", path: "/dev/ttyACM2", ignore: []string{"COM3", "/dev/ttyACM1"}, want: false},
		{name: "i2c address", path: "/dev/i2c-1:0x24", ignore: []string{"/dev/i2c-1:0x24"}, want: true},
		{name: "other i2c address", path: "/dev/i2c-1:0x24", ignore: []string{"/dev/i2c-1:0x48"}, want: false},
		{name: "spidev", path: "/dev/spidev0.0", ignore: []string{"/dev/spidev0.0"}, want: true},
		{name: "unclean path", path: "/dev/../dev/ttyUSB0", ignore: []string{"/dev/ttyUSB0"}, want: true},
		{name: "glob", path: "/dev/ttyS3", ignore: []string{"/dev/ttyS*"}, want: true},
		{name: "glob miss", path: "/dev/ttyUSB0", ignore: []string{"/dev/ttyS*"}, want: false},
		{name: "blank entries", path: "/dev/ttyUSB0", ignore: []string{"", "/dev/ttyUSB0"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsPathIgnored(tt.path, tt.ignore))
		})
	}
}

func TestDefaultOptionsIgnoreNothing(t *testing.T) {
	t.Parallel()

	assert.Empty(t, DefaultOptions().IgnorePaths)
}
