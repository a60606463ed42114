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

// Package probe asks a freshly opened transport whether a PN53x is
// listening on the other side.
package probe

import (
	"context"
	"time"

	"github.com/ZaparooProject/go-pn53x"
	"github.com/ZaparooProject/go-pn53x/detection"
)

// Timeout bounds a single probe.
const Timeout = 2 * time.Second

// commandTimeout is short so that a silent port fails fast.
const commandTimeout = 500 * time.Millisecond

// Run makes one attempt to talk to the chip behind t and closes t.
// Safe mode asks for the firmware version; Full mode also runs Init.
// Passive mode never touches the device and reports false.
//
// Probing is never retried: unknown devices on a shared bus must not be
// hammered with PN53x frames.
func Run(ctx context.Context, t pn53x.Transport, mode detection.Mode) (*pn53x.FirmwareVersion, bool) {
	defer func() { _ = t.Close() }()
	if mode == detection.Passive {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	dev, err := pn53x.New(t, pn53x.WithTimeout(commandTimeout))
	if err != nil {
		return nil, false
	}
	fw, err := dev.FirmwareVersion(ctx)
	if err != nil {
		pn53x.Debugf("probe %s: %v", t.Type(), err)
		return nil, false
	}
	if mode == detection.Full {
		if err := dev.Init(ctx); err != nil {
			pn53x.Debugf("probe %s: init: %v", t.Type(), err)
			return nil, false
		}
	}
	return fw, true
}

// Describe records the firmware in a device's metadata.
func Describe(info *detection.DeviceInfo, fw *pn53x.FirmwareVersion) {
	if fw == nil {
		return
	}
	if info.Metadata == nil {
		info.Metadata = make(map[string]string)
	}
	info.Metadata["firmware"] = fw.Version
	info.Confidence = detection.High
}
