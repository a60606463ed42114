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

// Package link runs the PN53x frame protocol over buses where the host
// polls the chip's ready flag before reading (I2C and SPI).
package link

import (
	"errors"
	"time"

	"github.com/ZaparooProject/go-pn53x"
	"github.com/ZaparooProject/go-pn53x/internal/frame"
	"github.com/ZaparooProject/go-pn53x/internal/syncutil"
)

// Bus moves raw bytes to and from the chip. Each call is one bus
// transaction.
type Bus interface {
	// Send writes one frame.
	Send(p []byte) error
	// Ready reports whether the chip has a frame waiting.
	Ready() (bool, error)
	// Receive fills p with the waiting frame, stripped of any bus status
	// byte.
	Receive(p []byte) error
}

// Config tunes the framer.
type Config struct {
	Name       string
	ACKTimeout time.Duration
	PollEvery  time.Duration
	Extended   bool
}

// DefaultConfig returns the timings used by the PN532 buses.
func DefaultConfig(name string) Config {
	return Config{
		Name:       name,
		ACKTimeout: pn53x.TransportACKTimeout,
		PollEvery:  pn53x.TransportReadyPoll,
	}
}

// Framer implements the Write/Read/Abort half of pn53x.Transport on a Bus.
type Framer struct {
	bus    Bus
	abort  chan struct{}
	config Config
	mu     syncutil.Mutex
	closed bool
}

// New returns a framer on bus. Zero config fields take their defaults.
func New(bus Bus, config Config) *Framer {
	def := DefaultConfig(config.Name)
	if config.ACKTimeout <= 0 {
		config.ACKTimeout = def.ACKTimeout
	}
	if config.PollEvery <= 0 {
		config.PollEvery = def.PollEvery
	}
	return &Framer{bus: bus, config: config, abort: make(chan struct{}, 1)}
}

var resendDelays = []time.Duration{
	pn53x.TransportACKDelay1,
	pn53x.TransportACKDelay2,
	pn53x.TransportACKDelay3,
}

// Write frames p and sends it until the chip acknowledges it.
func (f *Framer) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, pn53x.NewClosedError("write", f.config.Name)
	}
	out, err := frame.Command(p, f.config.Extended)
	if err != nil || len(p) == 0 {
		return 0, pn53x.NewDataTooLargeError("write", f.config.Name)
	}
	select {
	case <-f.abort:
	default:
	}

	var lastErr error
	for attempt := range pn53x.TransportACKRetries {
		if attempt > 0 {
			pn53x.Debugf("%s: resend after %v", f.config.Name, lastErr)
			time.Sleep(resendDelays[min(attempt-1, len(resendDelays)-1)])
		}
		if err := f.bus.Send(out); err != nil {
			return 0, pn53x.NewTransportError("write", f.config.Name, err, pn53x.ErrorTypeTransient)
		}
		lastErr = f.waitACK()
		if lastErr == nil {
			return len(p), nil
		}
		if !errors.Is(lastErr, pn53x.ErrNoACK) && !errors.Is(lastErr, pn53x.ErrNACKReceived) {
			return 0, lastErr
		}
	}
	return 0, lastErr
}

func (f *Framer) waitACK() error {
	buf := frame.GetBuffer(len(frame.AckFrame))
	defer frame.PutBuffer(buf)

	deadline := time.Now().Add(f.config.ACKTimeout)
	for {
		ready, err := f.waitReady(deadline, nil)
		if err != nil {
			return err
		}
		if !ready {
			return pn53x.NewNoACKError("ack", f.config.Name)
		}
		if err := f.bus.Receive(buf); err != nil {
			return pn53x.NewTransportError("ack", f.config.Name, err, pn53x.ErrorTypeTransient)
		}
		fr, _, err := frame.Parse(buf)
		switch {
		case err != nil:
			pn53x.Debugf("%s: expected ACK, got % X", f.config.Name, buf)
		case fr.Kind == frame.KindACK:
			return nil
		case fr.Kind == frame.KindNACK:
			return pn53x.NewNACKReceivedError("ack", f.config.Name)
		}
	}
}

// waitReady polls the ready flag until it is set, deadline passes or abort
// fires.
func (f *Framer) waitReady(deadline time.Time, abort <-chan struct{}) (bool, error) {
	for {
		ready, err := f.bus.Ready()
		if err != nil {
			return false, pn53x.NewTransportError("status", f.config.Name, err, pn53x.ErrorTypeTransient)
		}
		if ready {
			return true, nil
		}
		wait := min(f.config.PollEvery, time.Until(deadline))
		if wait <= 0 {
			return false, nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-abort:
			timer.Stop()
			return false, nil
		case <-timer.C:
		}
	}
}

// Read waits up to timeout for a response frame. Damaged frames are
// answered with a NACK.
func (f *Framer) Read(p []byte, timeout time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, pn53x.NewClosedError("read", f.config.Name)
	}
	buf := frame.GetFrameBuffer()
	defer frame.PutBuffer(buf)

	deadline := time.Now().Add(timeout)
	for {
		ready, err := f.waitReady(deadline, f.abort)
		if err != nil || !ready {
			return 0, err
		}
		if err := f.bus.Receive(buf); err != nil {
			return 0, pn53x.NewTransportError("read", f.config.Name, err, pn53x.ErrorTypeTransient)
		}
		fr, _, err := frame.Parse(buf)
		if err != nil {
			pn53x.Debugf("%s: bad frame (%v), sending NACK", f.config.Name, err)
			if err := f.bus.Send(frame.NackFrame); err != nil {
				return 0, pn53x.NewTransportError("read", f.config.Name, err, pn53x.ErrorTypeTransient)
			}
			continue
		}
		if fr.Kind == frame.KindACK || fr.Kind == frame.KindNACK {
			continue
		}
		body, err := fr.Body()
		if err != nil {
			return 0, pn53x.NewTransportError("read", f.config.Name, err, pn53x.ErrorTypeTransient)
		}
		if len(body) > len(p) {
			return 0, pn53x.NewDataTooLargeError("read", f.config.Name)
		}
		return copy(p, body), nil
	}
}

// Abort wakes a blocked Read.
func (f *Framer) Abort() error {
	select {
	case f.abort <- struct{}{}:
	default:
	}
	return nil
}

// CancelCommand sends an ACK frame so the chip drops its command.
func (f *Framer) CancelCommand() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return pn53x.NewClosedError("cancel", f.config.Name)
	}
	if err := f.bus.Send(frame.AckFrame); err != nil {
		return pn53x.NewTransportError("cancel", f.config.Name, err, pn53x.ErrorTypeTransient)
	}
	return nil
}

// Shutdown marks the framer closed. It reports false when it already was.
func (f *Framer) Shutdown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.closed = true
	return true
}
