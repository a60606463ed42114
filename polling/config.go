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

package polling

import (
	"time"

	"github.com/ZaparooProject/go-pn53x"
)

// SleepRecoveryConfig configures recovery after the host slept. A gap
// between two polls much longer than the poll interval means the reader
// may have lost power or its USB connection in the meantime.
type SleepRecoveryConfig struct {
	// TimeDiscontinuityThreshold is how far past the poll interval a gap
	// must be to count as a sleep.
	TimeDiscontinuityThreshold time.Duration
	// RecoveryBackoff is the delay between recovery attempts.
	RecoveryBackoff time.Duration
	// MaxRecoveryAttempts before the session gives up.
	MaxRecoveryAttempts int
	Enabled             bool
}

// DefaultSleepRecoveryConfig returns sensible defaults for sleep recovery
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        3,
		RecoveryBackoff:            500 * time.Millisecond,
	}
}

// DetectSleep reports whether elapsed exceeds pollInterval by more than
// the threshold.
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, pollInterval time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	return elapsed > pollInterval+cfg.TimeDiscontinuityThreshold
}

// Config holds polling configuration options
type Config struct {
	// Modulations polled for a new target, in order.
	Modulations []pn53x.Modulation
	// PollInterval is the pause between two cycles.
	PollInterval time.Duration
	// PresenceInterval is the pause between two presence checks while a
	// target is in the field.
	PresenceInterval time.Duration
	// MaxErrors is how many consecutive failed cycles trigger recovery.
	MaxErrors int
	// PollCount and Period are handed to PollTarget: each cycle polls
	// every modulation PollCount times for Period x 150 ms.
	PollCount byte
	Period    byte
	// SleepRecovery configures recovery after host sleep/wake cycles
	SleepRecovery SleepRecoveryConfig
}

// DefaultConfig polls ISO14443A and both FeliCa rates for about a second
// per cycle.
func DefaultConfig() *Config {
	return &Config{
		Modulations: []pn53x.Modulation{
			{Type: pn53x.ISO14443A, BaudRate: pn53x.Baud106},
			{Type: pn53x.FeliCa, BaudRate: pn53x.Baud212},
			{Type: pn53x.FeliCa, BaudRate: pn53x.Baud424},
		},
		PollInterval:     250 * time.Millisecond,
		PresenceInterval: 200 * time.Millisecond,
		MaxErrors:        3,
		PollCount:        1,
		Period:           2,
		SleepRecovery:    DefaultSleepRecoveryConfig(),
	}
}
