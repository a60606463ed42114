// go-pn53x
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-pn53x.
//
// go-pn53x is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-pn53x is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-pn53x; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package detection

import (
	"maps"
	"slices"
	"time"

	"github.com/ZaparooProject/go-pn53x/internal/syncutil"
)

// Results are cached per transport and mode: a passive listing must not
// answer a later Safe or Full scan.
type cacheKey struct {
	transport string
	mode      Mode
}

type cacheEntry struct {
	stored  time.Time
	devices []DeviceInfo
}

type resultCache struct {
	entries map[cacheKey]cacheEntry
	mu      syncutil.RWMutex
}

var cache = &resultCache{entries: make(map[cacheKey]cacheEntry)}

// getCached returns a copy of the devices stored for transport and mode
// unless they are older than ttl.
func getCached(transport string, mode Mode, ttl time.Duration) ([]DeviceInfo, bool) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	e, ok := cache.entries[cacheKey{transport, mode}]
	if !ok || time.Since(e.stored) > ttl {
		return nil, false
	}
	return cloneDevices(e.devices), true
}

func setCached(transport string, mode Mode, devices []DeviceInfo) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.entries[cacheKey{transport, mode}] = cacheEntry{stored: time.Now(), devices: cloneDevices(devices)}
}

func clearCache() {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	clear(cache.entries)
}

// clearCacheForTransport drops the entries of every mode for transport.
func clearCacheForTransport(transport string) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	for k := range cache.entries {
		if k.transport == transport {
			delete(cache.entries, k)
		}
	}
}

// cloneDevices copies the slice and each Metadata map.
func cloneDevices(devices []DeviceInfo) []DeviceInfo {
	out := slices.Clone(devices)
	for i := range out {
		out[i].Metadata = maps.Clone(out[i].Metadata)
	}
	return out
}
