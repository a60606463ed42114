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

//go:build linux

package spi

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// devGlob is replaced in tests.
var devGlob = "/dev/spidev*"

// listPorts returns the spidev nodes this process may open.
func listPorts() ([]string, error) {
	matches, err := filepath.Glob(devGlob)
	if err != nil {
		return nil, err
	}
	var ports []string
	for _, m := range matches {
		if unix.Access(m, unix.R_OK|unix.W_OK) == nil {
			ports = append(ports, m)
		}
	}
	return ports, nil
}
