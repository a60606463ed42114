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
	"context"
	"errors"
	"time"

	"github.com/ZaparooProject/go-pn53x"
)

// Recoverer brings a reader back after a sleep or a run of failures. It
// returns the device to keep polling with, which may be a new handle.
type Recoverer interface {
	Recover(ctx context.Context, dev *pn53x.Device) (*pn53x.Device, error)
}

// ReopenFunc opens a fresh handle on the same reader.
type ReopenFunc func(ctx context.Context) (*pn53x.Device, error)

// ReopenConnString returns a ReopenFunc that calls pn53x.Open.
func ReopenConnString(connstring string, opts ...pn53x.Option) ReopenFunc {
	return func(ctx context.Context) (*pn53x.Device, error) {
		return pn53x.Open(ctx, connstring, opts...)
	}
}

// DefaultRecoverer tries a soft reset of the existing handle first and
// falls back to reopening the reader when a ReopenFunc is set.
type DefaultRecoverer struct {
	reopen      ReopenFunc
	backoff     time.Duration
	maxAttempts int
}

var errNoDevice = errors.New("no device to recover")

// NewDefaultRecoverer creates a recoverer. With a nil reopen only the soft
// reset is attempted.
func NewDefaultRecoverer(reopen ReopenFunc, backoff time.Duration, maxAttempts int) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{reopen: reopen, backoff: backoff, maxAttempts: maxAttempts}
}

// Recover implements Recoverer.
func (r *DefaultRecoverer) Recover(ctx context.Context, dev *pn53x.Device) (*pn53x.Device, error) {
	lastErr := errNoDevice
	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		if dev != nil {
			err := softReset(ctx, dev)
			if err == nil {
				return dev, nil
			}
			pn53x.Debugf("recovery attempt %d: soft reset: %v", attempt+1, err)
			lastErr = err
			if r.reopen == nil {
				continue
			}
			_ = dev.Close()
			dev = nil
		}
		if r.reopen == nil {
			break
		}

		fresh, err := r.reopen(ctx)
		if err == nil {
			err = fresh.InitiatorInit(ctx)
			if err == nil {
				return fresh, nil
			}
			_ = fresh.Close()
		}
		pn53x.Debugf("recovery attempt %d: reopen: %v", attempt+1, err)
		lastErr = err
	}
	return nil, lastErr
}

func softReset(ctx context.Context, dev *pn53x.Device) error {
	if err := dev.Init(ctx); err != nil {
		return err
	}
	return dev.InitiatorInit(ctx)
}
