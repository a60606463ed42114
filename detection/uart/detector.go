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

// Package uart finds PN532 boards behind serial ports and USB-serial
// bridges.
package uart

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-pn53x"
	"github.com/ZaparooProject/go-pn53x/detection"
	"github.com/ZaparooProject/go-pn53x/detection/internal/probe"
	"github.com/ZaparooProject/go-pn53x/transport/uart"
)

// detector walks the serial ports reported by the OS.
type detector struct{}

// New returns the serial port detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport reports "uart".
func (*detector) Transport() string {
	return "uart"
}

// Detect searches for PN532 boards on serial ports
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := getSerialPorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports = d.filterPorts(ports, opts)
	var devices []detection.DeviceInfo
	for i := range ports {
		select {
		case <-ctx.Done():
			return devices, nil
		default:
		}
		if device, ok := d.processPort(ctx, &ports[i], opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// filterPorts drops blocked and ignored ports in place.
func (*detector) filterPorts(ports []serialPort, opts *detection.Options) []serialPort {
	kept := ports[:0]
	for _, port := range ports {
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		if !port.USB && opts.Mode != detection.Full && !isOnboardUART(port.Name) {
			continue
		}
		kept = append(kept, port)
	}
	return kept
}

// Onboard UARTs that PN532 hats are commonly wired to.
var onboardPrefixes = []string{"ttyAMA", "ttyS0", "serial0", "ttyTHS"}

func isOnboardUART(name string) bool {
	for _, p := range onboardPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// processPort decides whether port carries a PN532 and how sure we are.
func (*detector) processPort(ctx context.Context, port *serialPort,
	opts *detection.Options,
) (detection.DeviceInfo, bool) {
	likely := isLikelyReader(port)
	if opts.Mode == detection.Passive {
		if !likely {
			return detection.DeviceInfo{}, false
		}
		return createDeviceInfo(port, detection.Medium), true
	}

	fw, ok := probeDeviceFn(ctx, port.Path, opts.Mode)
	if !ok {
		// A bridge chip alone says nothing about what is wired to it.
		return detection.DeviceInfo{}, false
	}
	device := createDeviceInfo(port, detection.High)
	probe.Describe(&device, fw)
	return device, true
}

// createDeviceInfo describes port as a candidate reader.
func createDeviceInfo(port *serialPort, confidence detection.Confidence) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Path,
		Name:       port.Name,
		ConnString: detection.BuildConnString(uart.DriverName, detection.Param{Key: "port", Value: port.Path}),
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}
	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	return device
}

// USB-serial bridges found on PN532 breakout boards.
var knownBridges = []string{
	"067B:2303", // Prolific PL2303
	"0403:6001", // FTDI FT232
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
}

// isLikelyReader checks if a serial port is likely to carry a PN532.
func isLikelyReader(port *serialPort) bool {
	upper := strings.ToUpper(port.VIDPID)
	for _, known := range knownBridges {
		if upper == known {
			return true
		}
	}

	product := strings.ToLower(port.Product)
	for _, keyword := range []string{"pn532", "nfc", "rfid", "13.56"} {
		if strings.Contains(product, keyword) {
			return true
		}
	}
	return isOnboardUART(port.Name)
}

// probeDeviceFn is replaced in tests.
var probeDeviceFn = probeDevice

// probeDevice opens path once and asks the chip for its firmware.
func probeDevice(ctx context.Context, path string, mode detection.Mode) (*pn53x.FirmwareVersion, bool) {
	t, err := uart.New(uart.DefaultConfig(path))
	if err != nil {
		return nil, false
	}
	return probe.Run(ctx, t, mode)
}
