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

// Package i2c finds PN532 boards on I2C buses.
package i2c

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ZaparooProject/go-pn53x"
	"github.com/ZaparooProject/go-pn53x/detection"
	"github.com/ZaparooProject/go-pn53x/detection/internal/probe"
	"github.com/ZaparooProject/go-pn53x/transport/i2c"
)

// detector scans I2C buses for a PN532 address.
type detector struct{}

// New returns the i2c detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport reports "i2c".
func (*detector) Transport() string {
	return "i2c"
}

// Detect looks for a PN532 at its fixed address on every usable bus.
// Passive mode reports each bus with low confidence since nothing is sent.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	buses, err := listBuses()
	if err != nil {
		return nil, err
	}

	var devices []detection.DeviceInfo
	for _, bus := range buses {
		if ctx.Err() != nil {
			break
		}
		if detection.IsPathIgnored(bus, opts.IgnorePaths) {
			continue
		}
		device := detection.DeviceInfo{
			Transport: "i2c",
			Path:      bus,
			Name:      fmt.Sprintf("PN532 on %s", filepath.Base(bus)),
			ConnString: detection.BuildConnString(i2c.DriverName,
				detection.Param{Key: "bus", Value: bus},
				detection.Param{Key: "addr", Value: fmt.Sprintf("0x%02x", i2c.DefaultAddr)}),
			Confidence: detection.Low,
			Metadata:   map[string]string{"addr": fmt.Sprintf("0x%02x", i2c.DefaultAddr)},
		}
		if opts.Mode != detection.Passive {
			fw, ok := probeBusFn(ctx, bus, opts.Mode)
			if !ok {
				continue
			}
			probe.Describe(&device, fw)
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// probeBusFn is replaced in tests.
var probeBusFn = probeBus

func probeBus(ctx context.Context, bus string, mode detection.Mode) (*pn53x.FirmwareVersion, bool) {
	t, err := i2c.New(i2c.DefaultConfig(bus))
	if err != nil {
		return nil, false
	}
	return probe.Run(ctx, t, mode)
}
