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
	"time"

	"github.com/rs/zerolog"
)

// Option is a functional option for configuring a Device
type Option func(*Device) error

// WithTimeout sets the default chip command timeout
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout == 0 || timeout < NoTimeout {
			return errorf(KindInvalidArgument, "option", "timeout %s", timeout)
		}
		d.config.Timeout = timeout
		return nil
	}
}

// WithPollInterval bounds each transport read while a command is pending.
// Shorter intervals make aborts and timeouts more precise.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Device) error {
		if interval <= 0 {
			return errorf(KindInvalidArgument, "option", "poll interval %s", interval)
		}
		d.config.PollInterval = interval
		return nil
	}
}

// WithChipType skips firmware probing and assumes the given chip.
func WithChipType(t ChipType) Option {
	return func(d *Device) error {
		d.config.ChipType = t
		return nil
	}
}

// WithMaxRetries sets MxRtyPassiveActivation used when infinite select is off
func WithMaxRetries(n byte) Option {
	return func(d *Device) error {
		d.config.MaxRetries = n
		return nil
	}
}

// WithTimerCorrection sets the cycles added to timed exchange
// measurements for this reader.
func WithTimerCorrection(cycles uint32) Option {
	return func(d *Device) error {
		d.config.TimerCorrection = cycles
		return nil
	}
}

// WithRetryConfig sets the retry policy used by Open
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		if config == nil {
			return errorf(KindInvalidArgument, "option", "nil retry config")
		}
		d.config.RetryConfig = config
		return nil
	}
}

// WithLogger routes package logging through l.
func WithLogger(l zerolog.Logger) Option {
	return func(*Device) error {
		SetLogger(l)
		return nil
	}
}
