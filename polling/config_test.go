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
	"testing"
	"time"

	"github.com/ZaparooProject/go-pn53x"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, []pn53x.Modulation{
		{Type: pn53x.ISO14443A, BaudRate: pn53x.Baud106},
		{Type: pn53x.FeliCa, BaudRate: pn53x.Baud212},
		{Type: pn53x.FeliCa, BaudRate: pn53x.Baud424},
	}, cfg.Modulations)
	assert.Equal(t, byte(1), cfg.PollCount)
	assert.Equal(t, byte(2), cfg.Period)
	assert.True(t, cfg.SleepRecovery.Enabled)
}

func TestDetectSleep(t *testing.T) {
	t.Parallel()

	cfg := DefaultSleepRecoveryConfig()
	tests := []struct {
		name     string
		elapsed  time.Duration
		interval time.Duration
		want     bool
	}{
		{name: "normal cycle", elapsed: 260 * time.Millisecond, interval: 250 * time.Millisecond},
		{name: "slow cycle", elapsed: 2 * time.Second, interval: 250 * time.Millisecond},
		{name: "suspend", elapsed: 30 * time.Second, interval: 250 * time.Millisecond, want: true},
		{name: "long interval", elapsed: 3 * time.Second, interval: 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.DetectSleep(tt.elapsed, tt.interval), tt.name)
	}

	cfg.Enabled = false
	assert.False(t, cfg.DetectSleep(time.Hour, time.Millisecond))
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "present", StatePresent.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "recovering", StateRecovering.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "State(9)", State(9).String())
}
