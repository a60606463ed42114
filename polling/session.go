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
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-pn53x"
	"github.com/ZaparooProject/go-pn53x/internal/syncutil"
)

var (
	// ErrSessionClosed is returned by Start and Pause once Close was called.
	ErrSessionClosed = errors.New("session closed")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrNotRunning is returned by Pause when the loop is not running.
	ErrNotRunning = errors.New("session not running")
)

// abortInterval paces AbortCommand while Pause waits for the loop.
const abortInterval = 10 * time.Millisecond

// Session watches one reader for targets entering and leaving the field.
// Callbacks run on the polling goroutine and may use the device.
type Session struct {
	recoverer        Recoverer
	config           *Config
	onTargetDetected func(*pn53x.Target) error
	onTargetRemoved  func(*pn53x.Target)
	device           *pn53x.Device
	cancel           context.CancelFunc
	pauseReq         chan chan struct{}
	resumeChan       chan struct{}
	closing          chan struct{}
	done             chan struct{}
	state            TargetState
	mu               syncutil.RWMutex
	started          atomic.Bool
	closed           atomic.Bool
	// ready is owned by the loop: the device is set up as an initiator.
	ready bool
}

// NewSession creates a session on device. A nil config means
// DefaultConfig.
func NewSession(device *pn53x.Device, config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	sr := config.SleepRecovery
	return &Session{
		device:     device,
		config:     config,
		recoverer:  NewDefaultRecoverer(nil, sr.RecoveryBackoff, sr.MaxRecoveryAttempts),
		pauseReq:   make(chan chan struct{}),
		resumeChan: make(chan struct{}, 1),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
		state:      TargetState{State: StateIdle},
	}
}

// SetRecoverer replaces the soft-reset-only default recoverer.
func (s *Session) SetRecoverer(r Recoverer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recoverer = r
}

// SetOnTargetDetected sets the callback run when a target enters the field.
// An error is logged; the target stays tracked.
func (s *Session) SetOnTargetDetected(callback func(*pn53x.Target) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTargetDetected = callback
}

// SetOnTargetRemoved sets the callback run when the tracked target leaves.
func (s *Session) SetOnTargetRemoved(callback func(*pn53x.Target)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTargetRemoved = callback
}

// GetState returns a snapshot of the session state.
func (s *Session) GetState() TargetState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// GetDevice returns the device in use. Recovery may replace the handle
// the session was created with.
func (s *Session) GetDevice() *pn53x.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device
}

// Start runs the polling loop until ctx is done or Close is called. It
// returns nil after Close, ctx.Err() on cancellation and the recovery
// error when the reader could not be brought back. A session starts once.
func (s *Session) Start(ctx context.Context) error {
	select {
	case <-s.closing:
		return ErrSessionClosed
	default:
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	select {
	case <-s.closing:
		cancel()
	default:
	}

	err := s.loop(ctx)
	s.setState(StateClosed, nil)
	select {
	case <-s.closing:
		return nil
	default:
	}
	return err
}

func (s *Session) loop(ctx context.Context) error {
	errCount := 0
	last := time.Now()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.handlePauseRequest(ctx) {
			last = time.Now()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		interval := s.interval()
		if s.config.SleepRecovery.DetectSleep(time.Since(last), interval) {
			pn53x.Debugf("polling: %s since last cycle, recovering reader", time.Since(last).Round(time.Millisecond))
			if err := s.recover(ctx); err != nil {
				return err
			}
			errCount = 0
		}

		err := s.cycle(ctx)
		switch {
		case err == nil:
			errCount = 0
		case ctx.Err() != nil:
			continue
		case pn53x.KindOf(err) == pn53x.KindAborted:
			last = time.Now()
			continue
		default:
			errCount++
			pn53x.Debugf("polling: cycle %d failed: %v", errCount, err)
			if pn53x.IsFatal(err) || errCount >= s.config.MaxErrors {
				if err := s.recover(ctx); err != nil {
					return err
				}
				errCount = 0
			}
		}

		last = time.Now()
		parked, err := s.wait(ctx, s.interval())
		if err != nil {
			return err
		}
		if parked {
			last = time.Now()
		}
	}
}

// wait sleeps between cycles, parking the loop if a pause arrives.
func (s *Session) wait(ctx context.Context, d time.Duration) (bool, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case ack := <-s.pauseReq:
		s.park(ctx, ack)
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

func (s *Session) handlePauseRequest(ctx context.Context) bool {
	select {
	case ack := <-s.pauseReq:
		s.park(ctx, ack)
		return true
	default:
		return false
	}
}

// park acknowledges a pause and blocks until Resume or cancellation.
func (s *Session) park(ctx context.Context, ack chan struct{}) {
	select {
	case <-s.resumeChan:
	default:
	}
	prev := s.GetState().State
	s.setState(StatePaused, nil)
	close(ack)

	select {
	case <-ctx.Done():
	case <-s.resumeChan:
	}
	s.mu.Lock()
	s.state.State = prev
	s.mu.Unlock()
}

func (s *Session) interval() time.Duration {
	if s.GetState().Target != nil {
		return s.config.PresenceInterval
	}
	return s.config.PollInterval
}

// cycle polls for a new target or checks the tracked one.
func (s *Session) cycle(ctx context.Context) error {
	dev := s.GetDevice()
	if !s.ready {
		if err := dev.InitiatorInit(ctx); err != nil {
			return err
		}
		s.ready = true
	}
	tracked := s.GetState().Target
	if tracked == nil {
		t, err := dev.PollTarget(ctx, s.config.Modulations, s.config.PollCount, s.config.Period)
		if err != nil || t == nil {
			return err
		}
		s.targetDetected(t)
		return nil
	}

	err := dev.TargetIsPresent(ctx, tracked)
	switch {
	case err == nil:
		s.mu.Lock()
		s.state.LastSeen = time.Now()
		s.mu.Unlock()
		return nil
	case ctx.Err() != nil:
		return err
	}
	switch pn53x.KindOf(err) {
	case pn53x.KindProtocol, pn53x.KindTimeout:
		s.targetRemoved()
		return nil
	}
	return err
}

func (s *Session) targetDetected(t *pn53x.Target) {
	now := time.Now()
	s.mu.Lock()
	s.state = TargetState{Target: t, Since: now, LastSeen: now, State: StatePresent}
	cb := s.onTargetDetected
	s.mu.Unlock()

	pn53x.Debugf("polling: target detected: %s", t)
	if cb == nil {
		return
	}
	if err := safeCall(func() error { return cb(t) }); err != nil {
		pn53x.Warnf("polling: target detected callback: %v", err)
	}
}

func (s *Session) targetRemoved() {
	s.mu.Lock()
	t := s.state.Target
	s.state = TargetState{State: StateIdle, Since: time.Now()}
	cb := s.onTargetRemoved
	s.mu.Unlock()

	if t == nil {
		return
	}
	pn53x.Debugf("polling: target removed: %s", t)
	if cb == nil {
		return
	}
	if err := safeCall(func() error { cb(t); return nil }); err != nil {
		pn53x.Warnf("polling: target removed callback: %v", err)
	}
}

// recover drops the tracked target and hands the reader to the recoverer.
func (s *Session) recover(ctx context.Context) error {
	s.targetRemoved()
	s.setState(StateRecovering, nil)

	s.mu.RLock()
	r := s.recoverer
	dev := s.device
	s.mu.RUnlock()

	s.ready = false
	fresh, err := r.Recover(ctx, dev)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case pn53x.KindOf(err) == pn53x.KindAborted:
		s.setState(StateIdle, nil)
		return nil
	case err != nil:
		return fmt.Errorf("recover reader: %w", err)
	}
	s.ready = true
	s.mu.Lock()
	s.device = fresh
	s.state = TargetState{State: StateIdle, Since: time.Now()}
	s.mu.Unlock()
	return nil
}

func (s *Session) setState(st State, t *pn53x.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.State = st
	if st != StatePaused {
		s.state.Target = t
	}
}

// Pause stops polling and returns once the loop is parked, leaving the
// device to the caller until Resume. A command in flight is aborted.
func (s *Session) Pause(ctx context.Context) error {
	if !s.started.Load() {
		return ErrNotRunning
	}
	ack := make(chan struct{})
	ticker := time.NewTicker(abortInterval)
	defer ticker.Stop()

	_ = s.GetDevice().AbortCommand()
	for {
		select {
		case s.pauseReq <- ack:
			select {
			case <-ack:
				return nil
			case <-s.done:
				return ErrSessionClosed
			}
		case <-ticker.C:
			_ = s.GetDevice().AbortCommand()
		case <-s.done:
			return ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Resume restarts a paused loop. It is a no-op otherwise.
func (s *Session) Resume() {
	select {
	case s.resumeChan <- struct{}{}:
	default:
	}
}

// WithPaused pauses the session, runs fn with the device and resumes.
func (s *Session) WithPaused(ctx context.Context, fn func(*pn53x.Device) error) error {
	if err := s.Pause(ctx); err != nil {
		return err
	}
	defer s.Resume()
	return fn(s.GetDevice())
}

// Close stops the loop and waits for it to exit. The device stays open.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.closing)

	s.mu.RLock()
	cancel := s.cancel
	dev := s.device
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	if !s.started.Load() {
		s.setState(StateClosed, nil)
		return nil
	}
	if dev != nil {
		_ = dev.AbortCommand()
	}
	<-s.done
	return nil
}

// safeCall runs a callback, turning a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	return fn()
}
