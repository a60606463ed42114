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
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/ZaparooProject/go-pn53x/internal/syncutil"
)

// Mode represents the level of invasiveness for device detection
type Mode int

const (
	// Passive mode only checks device descriptors without any communication
	Passive Mode = iota
	// Safe mode performs minimal probing with GetFirmwareVersion
	Safe
	// Full mode performs complete verification including SAM connection test
	Full
)

// Confidence represents the confidence level of device detection
type Confidence int

const (
	// Low confidence: the device might be a PN53x (e.g. I2C ACK only)
	Low Confidence = iota
	// Medium confidence: descriptors match a known reader
	Medium
	// High confidence: the chip answered a firmware probe
	High
)

// DeviceInfo represents a detected PN53x device
type DeviceInfo struct {
	// Additional metadata (e.g., VID:PID for USB devices)
	Metadata map[string]string
	// Transport type: "uart", "i2c", "spi", "usb", "pcsc"
	Transport string
	// ConnString opens the device with pn53x.Open
	ConnString string
	// Connection path (e.g., "/dev/ttyUSB0", "/dev/i2c-1", "usb:001:004")
	Path string
	// Human-readable device name
	Name string
	// Detection confidence level
	Confidence Confidence
}

var confidenceNames = [...]string{Low: "low", Medium: "medium", High: "high"}

func (c Confidence) String() string {
	if c < 0 || int(c) >= len(confidenceNames) {
		return "unknown"
	}
	return confidenceNames[c]
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, d.Confidence)
}

// Options configures the detection behavior
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["1234:5678", "ABCD:EF01"])
	Blocklist []string
	// Device paths to explicitly ignore (e.g., ["/dev/ttyUSB0", "COM2"])
	IgnorePaths []string
	// Which transports to check (empty = all)
	Transports []string
	// Cache TTL duration
	CacheTTL time.Duration
	// Maximum time to wait for detection
	Timeout time.Duration
	// Detection invasiveness level
	Mode Mode
	// Enable result caching
	EnableCache bool
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		Mode:        Safe,
		Timeout:     5 * time.Second,
		Blocklist:   DefaultBlocklist(),
		EnableCache: true,
		CacheTTL:    30 * time.Second,
	}
}

// Detector interface for transport-specific device detection
type Detector interface {
	// Detect searches for devices using the given options
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	// Transport returns the transport type this detector handles
	Transport() string
}

// Errors
var (
	// ErrNoDevicesFound indicates no PN53x devices were detected
	ErrNoDevicesFound = errors.New("no PN53x devices found")
	// ErrDetectionTimeout indicates detection timed out
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrUnsupportedPlatform indicates the platform doesn't support this detection method
	ErrUnsupportedPlatform = errors.New("platform not supported")
)

var (
	registryMu syncutil.RWMutex
	registry   []Detector
)

// RegisterDetector adds a detector. Bus packages call it from init.
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, d)
}

// getDetectors returns the registered detectors for transports, or all of
// them when transports is empty.
func getDetectors(transports []string) []Detector {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if len(transports) == 0 {
		return slices.Clone(registry)
	}
	var out []Detector
	for _, d := range registry {
		if slices.Contains(transports, d.Transport()) {
			out = append(out, d)
		}
	}
	return out
}

type detectionResult struct {
	err       error
	transport string
	devices   []DeviceInfo
}

// DetectAll runs the selected detectors concurrently and merges what they
// find. Detector failures are only reported, joined, when no device was
// found. Devices found before opts.Timeout are returned even if a slower
// detector is still running.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		def := DefaultOptions()
		opts = &def
	}
	detectors := getDetectors(opts.Transports)
	if len(detectors) == 0 {
		return nil, errors.New("no detectors available for specified transports")
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	results := make(chan detectionResult, len(detectors))
	for _, d := range detectors {
		go func() {
			results <- runSingleDetector(ctx, d, opts)
		}()
	}

	var found []DeviceInfo
	var errs []error
	pending := len(detectors)
	for pending > 0 && ctx.Err() == nil {
		select {
		case res := <-results:
			pending--
			if res.err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", res.transport, res.err))
				continue
			}
			found = append(found, res.devices...)
		case <-ctx.Done():
		}
	}

	switch {
	case len(found) > 0:
		return found, nil
	case ctx.Err() != nil:
		return nil, ErrDetectionTimeout
	case len(errs) > 0:
		return nil, errors.Join(errs...)
	}
	return nil, ErrNoDevicesFound
}

// runSingleDetector runs one detector, serving and refreshing the cache
// when enabled. An empty result evicts the transport so a reader that was
// unplugged is not offered again until the TTL runs out.
func runSingleDetector(ctx context.Context, detector Detector, opts *Options) detectionResult {
	transport := detector.Transport()
	if opts.EnableCache {
		if cached, ok := getCached(transport, opts.Mode, opts.CacheTTL); ok {
			return detectionResult{transport: transport, devices: filterDevices(cached, opts)}
		}
	}

	devices, err := detector.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		return detectionResult{transport: transport, err: err}
	}
	if opts.EnableCache {
		if len(devices) > 0 {
			setCached(transport, opts.Mode, devices)
		} else {
			clearCacheForTransport(transport)
		}
	}
	return detectionResult{transport: transport, devices: devices}
}

// filterDevices drops ignored paths and blocklisted ids from cached
// results, which did not go through Detect.
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}

	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := device.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}

// Scan returns the connection strings of the devices found with
// DefaultOptions.
func Scan(ctx context.Context) ([]string, error) {
	opts := DefaultOptions()
	return ScanWith(ctx, &opts)
}

// ScanWith returns the connection strings of every device DetectAll finds,
// most confident first. Devices without a connection string are skipped.
func ScanWith(ctx context.Context, opts *Options) ([]string, error) {
	devices, err := DetectAll(ctx, opts)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Confidence > devices[j].Confidence
	})
	seen := make(map[string]bool, len(devices))
	var out []string
	for _, d := range devices {
		if d.ConnString == "" || seen[d.ConnString] {
			continue
		}
		seen[d.ConnString] = true
		out = append(out, d.ConnString)
	}
	if len(out) == 0 {
		return nil, ErrNoDevicesFound
	}
	return out, nil
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	clearCache()
}

// ClearDetectionCacheForTransport removes cached results for a specific transport
func ClearDetectionCacheForTransport(transport string) {
	clearCacheForTransport(transport)
}
