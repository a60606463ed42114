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

package pn53x

import (
	"context"
	"fmt"
	"sort"

	"github.com/ZaparooProject/go-pn53x/detection"
	"github.com/ZaparooProject/go-pn53x/internal/syncutil"
)

// OpenFunc opens the transport a connection string describes.
type OpenFunc func(ctx context.Context, cs detection.ConnString) (Transport, error)

var (
	driversMu syncutil.RWMutex
	drivers   = make(map[string]OpenFunc)
)

// RegisterDriver makes a transport available to Open under name.
// Transport packages call it from init.
func RegisterDriver(name string, open OpenFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[name]; dup {
		panic("pn53x: driver registered twice: " + name)
	}
	drivers[name] = open
}

// Drivers lists the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// connectRetryConfig is used by Open when no WithRetryConfig option is
// given.
func connectRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       DefaultConnectionRetries,
		InitialBackoff:    ConnectionInitialBackoff,
		MaxBackoff:        ConnectionMaxBackoff,
		BackoffMultiplier: ConnectionBackoffMultiplier,
		Jitter:            ConnectionJitter,
		RetryTimeout:      ConnectionRetryTimeout,
	}
}

// Open opens and initialises the device named by connstring, for example
// "pn532_uart:port=/dev/ttyUSB0:speed=115200". Opening and the first chip
// exchange are retried on transient errors.
func Open(ctx context.Context, connstring string, opts ...Option) (*Device, error) {
	cs, err := detection.ParseConnString(connstring)
	if err != nil {
		return nil, newError(KindInvalidArgument, "open", err)
	}
	driversMu.RLock()
	open, ok := drivers[cs.Driver]
	driversMu.RUnlock()
	if !ok {
		return nil, newError(KindInvalidArgument, "open", fmt.Errorf("%w: %s", ErrUnknownDriver, cs.Driver))
	}

	probe := &Device{config: DefaultDeviceConfig()}
	probe.config.RetryConfig = connectRetryConfig()
	for _, opt := range opts {
		if err := opt(probe); err != nil {
			return nil, err
		}
	}

	var device *Device
	err = RetryWithConfig(ctx, probe.config.RetryConfig, func() error {
		t, err := open(ctx, cs)
		if err != nil {
			return err
		}
		d, err := New(t, opts...)
		if err != nil {
			_ = t.Close()
			return err
		}
		if err := d.Init(ctx); err != nil {
			Debugf("open %s: init failed: %v", cs.Driver, err)
			_ = t.Close()
			return err
		}
		device = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	Debugf("opened %s (%s)", connstring, device.chip.Type)
	return device, nil
}
