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

import "time"

// Open retries the first handshake with these settings.
const (
	DefaultConnectionRetries    = 3
	ConnectionInitialBackoff    = 100 * time.Millisecond
	ConnectionMaxBackoff        = 500 * time.Millisecond
	ConnectionBackoffMultiplier = 2.0
	ConnectionJitter            = 0.1
	ConnectionRetryTimeout      = 10 * time.Second
)

// DefaultPassiveActivationRetries is MxRtyPassiveActivation while infinite
// select is off. Each retry takes roughly 100ms on a PN532.
const DefaultPassiveActivationRetries byte = 0x02

const (
	// TransportACKRetries is the number of writes a byte-bus transport
	// makes before giving up on an ACK.
	TransportACKRetries = 3
	// TransportWakeupRetries is the number of attempts to wake a PN532
	// from power down.
	TransportWakeupRetries = 3
	// TransportACKTimeout bounds the wait for an ACK frame.
	TransportACKTimeout = 500 * time.Millisecond
)

// Pauses after each HSU wakeup preamble. A PN532 in deep power down
// needs the longest one.
const (
	UARTWakeupDelay1 = 10 * time.Millisecond
	UARTWakeupDelay2 = 50 * time.Millisecond
	UARTWakeupDelay3 = 100 * time.Millisecond
)

const (
	// TransportACKDelay1 is the pause before the first command resend on
	// I2C and SPI.
	TransportACKDelay1 = 5 * time.Millisecond
	// TransportACKDelay2 is the pause before the second resend.
	TransportACKDelay2 = 10 * time.Millisecond
	// TransportACKDelay3 is the pause before the last resend.
	TransportACKDelay3 = 20 * time.Millisecond
	// TransportReadyPoll is the interval between ready checks on buses
	// without a data-available signal.
	TransportReadyPoll = 2 * time.Millisecond
)
