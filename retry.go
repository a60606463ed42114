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
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig describes how Open, PollDEPTarget and callers retry an
// operation. The engine itself never retries a chip command.
type RetryConfig struct {
	// Retryable selects the errors worth another attempt. Nil means
	// IsRetryable: timeouts and transient I/O.
	Retryable func(error) bool
	// MaxAttempts counts the first call; 0 or 1 means a single attempt.
	MaxAttempts int
	// InitialBackoff is the pause after the first failure.
	InitialBackoff time.Duration
	// MaxBackoff caps the pause.
	MaxBackoff time.Duration
	// BackoffMultiplier grows the pause after each failure.
	BackoffMultiplier float64
	// Jitter spreads each pause by up to +/- this fraction.
	Jitter float64
	// RetryTimeout bounds all attempts together; 0 means no bound.
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns the policy used when none is given.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      5 * time.Second,
	}
}

// RetryableFunc is one attempt of a retried operation.
type RetryableFunc func() error

// RetryWithConfig calls retryFunc until it succeeds, fails with an error
// the config does not retry, runs out of attempts or ctx ends. The error of
// the last attempt is returned; cancellation before the first attempt
// yields an Aborted or Timeout error.
func RetryWithConfig(ctx context.Context, config *RetryConfig, retryFunc RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}
	retryable := config.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return contextError("retry", err)
		}
		err := retryFunc()
		if err == nil || !retryable(err) || attempt+1 >= config.MaxAttempts {
			return err
		}
		Debugf("attempt %d/%d failed: %v", attempt+1, config.MaxAttempts, err)

		timer := time.NewTimer(config.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// backoff returns the jittered pause after the given failed attempt
// (0-based).
func (c *RetryConfig) backoff(attempt int) time.Duration {
	mult := c.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(c.InitialBackoff) * math.Pow(mult, float64(attempt))
	if c.MaxBackoff > 0 && d > float64(c.MaxBackoff) {
		d = float64(c.MaxBackoff)
	}
	if c.Jitter > 0 {
		d += d * c.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(max(d, 0))
}
