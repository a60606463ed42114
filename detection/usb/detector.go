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

// Package usb finds PN531, PN533 and RC-S360 readers by their USB
// descriptors.
package usb

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-pn53x"
	"github.com/ZaparooProject/go-pn53x/detection"
	"github.com/ZaparooProject/go-pn53x/detection/internal/probe"
	"github.com/ZaparooProject/go-pn53x/transport/usb"
	"github.com/google/gousb"
)

// detector looks for native USB PN533 style readers.
type detector struct{}

// New returns the usb detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport reports "usb".
func (*detector) Transport() string {
	return "usb"
}

// listDescriptors is replaced in tests.
var listDescriptors = func() ([]gousb.DeviceDesc, error) {
	ctx := gousb.NewContext()
	defer func() { _ = ctx.Close() }()

	var descs []gousb.DeviceDesc
	// Nothing is opened; the callback only records descriptors.
	_, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if _, ok := usb.LookupModel(desc.Vendor, desc.Product); ok {
			descs = append(descs, *desc)
		}
		return false
	})
	return descs, err
}

// Detect matches bus descriptors against the known reader models. A
// descriptor match identifies the chip, so a reader that fails the probe
// (held by another process, say) is still reported with medium confidence.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	descs, err := listDescriptors()
	if err != nil && len(descs) == 0 {
		return nil, fmt.Errorf("enumerate USB devices: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, desc := range descs {
		if ctx.Err() != nil {
			break
		}
		model, _ := usb.LookupModel(desc.Vendor, desc.Product)
		vidpid := fmt.Sprintf("%04X:%04X", uint16(desc.Vendor), uint16(desc.Product))
		if detection.IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		path := fmt.Sprintf("usb:%03d:%03d", desc.Bus, desc.Address)
		if detection.IsPathIgnored(path, opts.IgnorePaths) {
			continue
		}

		device := detection.DeviceInfo{
			Transport: "usb",
			Path:      path,
			Name:      model.Name,
			ConnString: detection.BuildConnString(usb.DriverName,
				detection.Param{Key: "bus", Value: fmt.Sprint(desc.Bus)},
				detection.Param{Key: "addr", Value: fmt.Sprint(desc.Address)}),
			Confidence: detection.Medium,
			Metadata: map[string]string{
				"vidpid": vidpid,
				"chip":   model.Chip.String(),
			},
		}
		if opts.Mode != detection.Passive {
			if fw, ok := probeFn(ctx, desc, opts.Mode); ok {
				probe.Describe(&device, fw)
			}
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// probeFn is replaced in tests.
var probeFn = probeDevice

func probeDevice(ctx context.Context, desc gousb.DeviceDesc, mode detection.Mode) (*pn53x.FirmwareVersion, bool) {
	config := usb.DefaultConfig()
	config.Bus, config.Addr = desc.Bus, desc.Address
	t, err := usb.New(config)
	if err != nil {
		return nil, false
	}
	return probe.Run(ctx, t, mode)
}
