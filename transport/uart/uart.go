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

// Package uart drives a PN532 over its high speed UART (HSU) interface.
package uart

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/go-pn53x"
	"github.com/ZaparooProject/go-pn53x/detection"
	"github.com/ZaparooProject/go-pn53x/internal/frame"
	"github.com/ZaparooProject/go-pn53x/internal/syncutil"
	"go.bug.st/serial"
)

// DriverName is the connection string driver served by this package.
const DriverName = "pn532_uart"

// DefaultBaudRate is the HSU speed the PN532 starts at.
const DefaultBaudRate = 115200

const cmdPowerDown = 0x16

// The chip leaves power down on 0x55 followed by enough idle bytes to
// cover its oscillator start-up.
var wakeupPreamble = []byte{
	0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// Config selects the serial port and its timing.
type Config struct {
	Port     string
	BaudRate int
	// ACKTimeout bounds the wait for the chip to acknowledge a command.
	ACKTimeout time.Duration
	// ReadSlice is the port read timeout. Read observes Abort between slices.
	ReadSlice time.Duration
}

// DefaultConfig returns the settings for a PN532 at its power-on speed.
func DefaultConfig(port string) Config {
	return Config{
		Port:       port,
		BaudRate:   DefaultBaudRate,
		ACKTimeout: pn53x.TransportACKTimeout,
		ReadSlice:  readSlice(),
	}
}

// readSlice returns the platform port read timeout. Windows serial drivers
// need the longer slice to deliver a full ACK in one read.
func readSlice() time.Duration {
	if runtime.GOOS == "windows" {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// Transport implements pn53x.Transport over a serial port.
type Transport struct {
	port   serial.Port
	abort  chan struct{}
	config Config
	dec    frame.Decoder
	last   []byte
	mu     syncutil.Mutex
	asleep bool
	closed bool
}

func init() {
	pn53x.RegisterDriver(DriverName, open)
}

func open(_ context.Context, cs detection.ConnString) (pn53x.Transport, error) {
	port, ok := cs.Get("port")
	if !ok || port == "" {
		return nil, fmt.Errorf("%s: missing port parameter", DriverName)
	}
	config := DefaultConfig(port)
	if s, ok := cs.Get("speed"); ok {
		speed, err := strconv.Atoi(s)
		if err != nil || speed <= 0 {
			return nil, fmt.Errorf("%s: invalid speed %q", DriverName, s)
		}
		config.BaudRate = speed
	}
	return New(config)
}

// New opens the serial port described by config.
func New(config Config) (*Transport, error) {
	port, err := serial.Open(config.Port, &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		if isMissingPort(err) {
			return nil, fmt.Errorf("open UART port %s: %w: %w", config.Port, pn53x.ErrDeviceNotFound, err)
		}
		return nil, fmt.Errorf("open UART port %s: %w", config.Port, err)
	}
	t, err := NewWithPort(port, config)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewWithPort wraps an already open port. The chip is assumed asleep, so
// the first command is preceded by a wakeup preamble.
func NewWithPort(port serial.Port, config Config) (*Transport, error) {
	def := DefaultConfig(config.Port)
	if config.ACKTimeout <= 0 {
		config.ACKTimeout = def.ACKTimeout
	}
	if config.ReadSlice <= 0 {
		config.ReadSlice = def.ReadSlice
	}
	if config.BaudRate <= 0 {
		config.BaudRate = def.BaudRate
	}
	if err := port.SetReadTimeout(config.ReadSlice); err != nil {
		return nil, fmt.Errorf("set UART read timeout: %w", err)
	}
	return &Transport{
		port:   port,
		config: config,
		abort:  make(chan struct{}, 1),
		asleep: true,
	}, nil
}

func isMissingPort(err error) bool {
	var perr *serial.PortError
	return errors.As(err, &perr) && perr.Code() == serial.PortNotFound
}

// Write frames p, sends it and waits for the chip's ACK. A NACK or a
// missing ACK resends the frame, waking the chip first in case it dozed
// off.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, pn53x.NewClosedError("write", t.config.Port)
	}
	if len(p) == 0 {
		return 0, pn53x.NewTransportError("write", t.config.Port, pn53x.ErrInvalidResponse, pn53x.ErrorTypePermanent)
	}
	out, err := frame.Command(p, false)
	if err != nil {
		return 0, pn53x.NewDataTooLargeError("write", t.config.Port)
	}
	t.last = out
	t.drainAbort()

	var lastErr error
	for attempt := range pn53x.TransportACKRetries {
		if attempt > 0 {
			pn53x.Debugf("uart %s: resend after %v", t.config.Port, lastErr)
			time.Sleep(wakeupDelay(attempt))
			t.asleep = true
		}
		if err := t.send(out); err != nil {
			return 0, err
		}
		lastErr = t.waitACK()
		if lastErr == nil {
			t.asleep = p[0] == cmdPowerDown
			return len(p), nil
		}
		if !errors.Is(lastErr, pn53x.ErrNoACK) && !errors.Is(lastErr, pn53x.ErrNACKReceived) {
			return 0, lastErr
		}
	}
	return 0, lastErr
}

func wakeupDelay(attempt int) time.Duration {
	switch attempt {
	case 1:
		return pn53x.UARTWakeupDelay1
	case 2:
		return pn53x.UARTWakeupDelay2
	default:
		return pn53x.UARTWakeupDelay3
	}
}

// send writes out after flushing stale input, preceded by the wakeup
// preamble when the chip may be asleep.
func (t *Transport) send(out []byte) error {
	if err := t.port.ResetInputBuffer(); err != nil {
		return pn53x.NewTransportError("write", t.config.Port, err, pn53x.ErrorTypeTransient)
	}
	t.dec.Reset()
	if t.asleep {
		if err := t.writeAll(wakeupPreamble); err != nil {
			return err
		}
		t.asleep = false
	}
	if err := t.writeAll(out); err != nil {
		return err
	}
	if runtime.GOOS == "windows" {
		time.Sleep(15 * time.Millisecond)
	}
	return nil
}

func (t *Transport) writeAll(b []byte) error {
	n, err := t.port.Write(b)
	if err != nil {
		return pn53x.NewTransportError("write", t.config.Port, err, pn53x.ErrorTypeTransient)
	}
	if n != len(b) {
		return pn53x.NewTransportWriteError("write", t.config.Port)
	}
	return t.drainWithRetry()
}

// drainWithRetry waits for the output buffer to empty, retrying when a
// signal interrupts the call.
func (t *Transport) drainWithRetry() error {
	const maxRetries = 3
	delay := 2 * time.Millisecond
	var err error
	for range maxRetries {
		if err = t.port.Drain(); err == nil || !isInterruptedSystemCall(err) {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	if err != nil {
		return pn53x.NewTransportError("drain", t.config.Port, err, pn53x.ErrorTypeTransient)
	}
	return nil
}

func isInterruptedSystemCall(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "interrupted system call") || strings.Contains(s, "eintr")
}

// waitACK reads until an ACK or NACK arrives. Information frames seen
// first are stale replies and get dropped.
func (t *Transport) waitACK() error {
	deadline := time.Now().Add(t.config.ACKTimeout)
	for {
		f, err := t.next(deadline)
		switch {
		case errors.Is(err, frame.ErrChecksum), errors.Is(err, frame.ErrMalformed):
			continue
		case err != nil:
			return err
		case f == nil:
			return pn53x.NewNoACKError("ack", t.config.Port)
		case f.Kind == frame.KindACK:
			return nil
		case f.Kind == frame.KindNACK:
			return pn53x.NewNACKReceivedError("ack", t.config.Port)
		default:
			pn53x.Debugf("uart %s: dropping %s frame before ACK", t.config.Port, f.Kind)
		}
	}
}

var errAborted = errors.New("aborted")

// next returns the next frame from the port, or nil once deadline passes
// or Abort is called.
func (t *Transport) next(deadline time.Time) (*frame.Frame, error) {
	buf := frame.GetFrameBuffer()
	defer frame.PutBuffer(buf)

	for {
		f, err := t.dec.Next()
		if err == nil {
			return &f, nil
		}
		if !errors.Is(err, frame.ErrIncomplete) {
			return nil, err
		}
		select {
		case <-t.abort:
			return nil, errAborted
		default:
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		n, err := t.port.Read(buf)
		if err != nil {
			if isInterruptedSystemCall(err) {
				continue
			}
			return nil, pn53x.NewTransportError("read", t.config.Port, err, pn53x.ErrorTypeTransient)
		}
		_, _ = t.dec.Write(buf[:n])
	}
}

// Read waits up to timeout for the chip's response frame and copies its
// response code and data into p. A damaged frame is answered with a NACK
// so the chip sends it again.
func (t *Transport) Read(p []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, pn53x.NewClosedError("read", t.config.Port)
	}
	deadline := time.Now().Add(timeout)
	for {
		f, err := t.next(deadline)
		switch {
		case errors.Is(err, errAborted), err == nil && f == nil:
			return 0, nil
		case errors.Is(err, frame.ErrChecksum), errors.Is(err, frame.ErrMalformed):
			pn53x.Debugf("uart %s: %v, sending NACK", t.config.Port, err)
			if err := t.writeAll(frame.NackFrame); err != nil {
				return 0, err
			}
			continue
		case err != nil:
			return 0, err
		case f.Kind == frame.KindACK, f.Kind == frame.KindNACK:
			continue
		}
		body, err := f.Body()
		if err != nil {
			return 0, pn53x.NewTransportError("read", t.config.Port, err, pn53x.ErrorTypeTransient)
		}
		if len(body) > len(p) {
			return 0, pn53x.NewDataTooLargeError("read", t.config.Port)
		}
		return copy(p, body), nil
	}
}

// Abort wakes a blocked Read.
func (t *Transport) Abort() error {
	select {
	case t.abort <- struct{}{}:
	default:
	}
	return nil
}

func (t *Transport) drainAbort() {
	select {
	case <-t.abort:
	default:
	}
}

// CancelCommand sends an ACK frame, which makes the chip drop the command
// it is running.
func (t *Transport) CancelCommand() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return pn53x.NewClosedError("cancel", t.config.Port)
	}
	t.dec.Reset()
	return t.writeAll(frame.AckFrame)
}

// Close closes the serial port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("close UART port %s: %w", t.config.Port, err)
	}
	return nil
}

// Type returns pn53x.TransportUART.
func (*Transport) Type() pn53x.TransportType {
	return pn53x.TransportUART
}

// Port returns the serial port name.
func (t *Transport) Port() string {
	return t.config.Port
}

var (
	_ pn53x.Transport        = (*Transport)(nil)
	_ pn53x.CommandCanceller = (*Transport)(nil)
)
