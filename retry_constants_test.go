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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConnectRetryConfig(t *testing.T) {
	t.Parallel()

	c := connectRetryConfig()
	assert.Equal(t, DefaultConnectionRetries, c.MaxAttempts)
	assert.Equal(t, ConnectionInitialBackoff, c.InitialBackoff)
	assert.Greater(t, ConnectionMaxBackoff, ConnectionInitialBackoff)
	assert.Greater(t, c.RetryTimeout, time.Duration(c.MaxAttempts)*c.MaxBackoff)
	assert.InDelta(t, ConnectionJitter, c.Jitter, 0)
}

func TestPassiveActivationRetries(t *testing.T) {
	t.Parallel()

	// 0xFF means retry forever.
	assert.NotEqual(t, byte(0xFF), DefaultPassiveActivationRetries)
	assert.Equal(t, byte(0x02), DefaultPassiveActivationRetries)
}

func TestWakeupDelaysAreProgressive(t *testing.T) {
	t.Parallel()

	assert.Less(t, UARTWakeupDelay1, UARTWakeupDelay2)
	assert.Less(t, UARTWakeupDelay2, UARTWakeupDelay3)
	assert.GreaterOrEqual(t, TransportWakeupRetries, 2)
	assert.GreaterOrEqual(t, TransportACKRetries, 2)
	assert.Greater(t, TransportACKTimeout, UARTWakeupDelay3)
}
