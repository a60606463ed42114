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

// Package spi finds PN532 boards on SPI ports.
package spi

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZaparooProject/go-pn53x"
	"github.com/ZaparooProject/go-pn53x/detection"
	"github.com/ZaparooProject/go-pn53x/detection/internal/probe"
	"github.com/ZaparooProject/go-pn53x/transport/spi"
	"periph.io/x/conn/v3/physic"
)

// Config names an SPI port known to carry a PN532.
type Config struct {
	Metadata map[string]string `json:"metadata,omitempty"`
	// Device path (e.g., "/dev/spidev0.0")
	Device string `json:"device"`
	Name   string `json:"name,omitempty"`
	// Speed in Hz; zero keeps the transport default
	Speed int64 `json:"speed,omitempty"`
}

// Environment variables that name a single SPI reader.
const (
	EnvDevice = "PN53X_SPI_DEVICE"
	EnvSpeed  = "PN53X_SPI_SPEED"
)

// detector looks for readers on spidev ports.
type detector struct{}

// New returns the spi detector.
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport reports "spi".
func (*detector) Transport() string {
	return "spi"
}

// configPaths are searched in order; the first readable file wins.
func configPaths() []string {
	paths := []string{"pn53x-spi.json", ".pn53x-spi.json"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "pn53x", "spi.json"))
	}
	return append(paths, "/etc/pn53x/spi.json")
}

// gatherConfigs collects SPI configurations from the config file, the
// environment and the device nodes present, without duplicates.
func gatherConfigs() []Config {
	var configs []Config
	configs = append(configs, loadConfigFile(configPaths())...)
	if c, ok := loadEnvConfig(); ok {
		configs = append(configs, c)
	}
	if nodes, err := listPorts(); err == nil {
		for _, n := range nodes {
			configs = append(configs, Config{Device: n})
		}
	}
	return deduplicateConfigs(configs)
}

// loadConfigFile accepts either a JSON array of configs or a single one.
func loadConfigFile(paths []string) []Config {
	for _, path := range paths {
		data, err := os.ReadFile(path) // #nosec G304 -- fixed search list
		if err != nil {
			continue
		}
		var configs []Config
		if err := json.Unmarshal(data, &configs); err == nil {
			return configs
		}
		var config Config
		if err := json.Unmarshal(data, &config); err == nil && config.Device != "" {
			return []Config{config}
		}
		pn53x.Warnf("ignoring malformed SPI config %s", path)
	}
	return nil
}

func loadEnvConfig() (Config, bool) {
	device := os.Getenv(EnvDevice)
	if device == "" {
		return Config{}, false
	}
	c := Config{Device: device, Name: "SPI device from environment"}
	if s := os.Getenv(EnvSpeed); s != "" {
		if _, err := fmt.Sscanf(s, "%d", &c.Speed); err != nil {
			pn53x.Warnf("ignoring %s=%q", EnvSpeed, s)
		}
	}
	return c, true
}

func deduplicateConfigs(configs []Config) []Config {
	seen := make(map[string]bool, len(configs))
	var unique []Config
	for _, c := range configs {
		if c.Device == "" || seen[c.Device] {
			continue
		}
		seen[c.Device] = true
		unique = append(unique, c)
	}
	return unique
}

func createDeviceInfo(config Config) detection.DeviceInfo {
	params := []detection.Param{{Key: "port", Value: config.Device}}
	if config.Speed > 0 {
		params = append(params, detection.Param{Key: "speed", Value: fmt.Sprint(config.Speed)})
	}
	device := detection.DeviceInfo{
		Transport:  "spi",
		Path:       config.Device,
		Name:       config.Name,
		ConnString: detection.BuildConnString(spi.DriverName, params...),
		Confidence: detection.Low,
		Metadata:   make(map[string]string, len(config.Metadata)),
	}
	for k, v := range config.Metadata {
		device.Metadata[k] = v
	}
	if device.Name == "" {
		device.Name = fmt.Sprintf("SPI device %s", filepath.Base(config.Device))
	}
	return device
}

// Detect reports configured and present SPI ports. Outside Passive mode
// only ports whose chip answers are kept.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	var devices []detection.DeviceInfo
	for _, config := range gatherConfigs() {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		if detection.IsPathIgnored(config.Device, opts.IgnorePaths) {
			continue
		}
		device := createDeviceInfo(config)
		if opts.Mode != detection.Passive {
			fw, ok := probePortFn(ctx, config, opts.Mode)
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

// probePortFn is replaced in tests.
var probePortFn = probePort

func probePort(ctx context.Context, config Config, mode detection.Mode) (*pn53x.FirmwareVersion, bool) {
	sc := spi.DefaultConfig(config.Device)
	if config.Speed > 0 {
		sc.Frequency = physic.Frequency(config.Speed) * physic.Hertz
	}
	t, err := spi.New(sc)
	if err != nil {
		return nil, false
	}
	return probe.Run(ctx, t, mode)
}
