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

// Package pcsc finds ACR122 readers through the PC/SC service.
package pcsc

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-pn53x"
	"github.com/ZaparooProject/go-pn53x/detection"
	"github.com/ZaparooProject/go-pn53x/detection/internal/probe"
	"github.com/ZaparooProject/go-pn53x/transport/pcsc"
	"github.com/ebfe/scard"
)

// detector lists readers known to the PC/SC service.
type detector struct{}

// New returns the pcsc detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport reports "pcsc".
func (*detector) Transport() string {
	return "pcsc"
}

// listReaders is replaced in tests.
var listReaders = func() ([]string, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish PC/SC context: %w", err)
	}
	defer func() { _ = ctx.Release() }()

	readers, err := ctx.ListReaders()
	if errors.Is(err, scard.ErrNoReadersAvailable) {
		return nil, nil
	}
	return readers, err
}

// Detect reports the ACR122 readers PC/SC knows about.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	readers, err := listReaders()
	if err != nil {
		return nil, err
	}

	var devices []detection.DeviceInfo
	for _, r := range readers {
		if ctx.Err() != nil {
			break
		}
		if !pcsc.IsACR122(r) || detection.IsPathIgnored(r, opts.IgnorePaths) {
			continue
		}
		device := detection.DeviceInfo{
			Transport:  "pcsc",
			Path:       r,
			Name:       r,
			ConnString: detection.BuildConnString(pcsc.DriverName, detection.Param{Key: "reader", Value: r}),
			Confidence: detection.Medium,
			Metadata:   map[string]string{"chip": pn53x.ChipPN532.String()},
		}
		if opts.Mode != detection.Passive {
			fw, ok := probeFn(ctx, r, opts.Mode)
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

// probeFn is replaced in tests.
var probeFn = probeReader

func probeReader(ctx context.Context, reader string, mode detection.Mode) (*pn53x.FirmwareVersion, bool) {
	t, err := pcsc.New(reader)
	if err != nil {
		return nil, false
	}
	return probe.Run(ctx, t, mode)
}
