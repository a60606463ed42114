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

// Package pcsc drives the PN532 inside an ACS ACR122 through PC/SC escape
// commands using ebfe/scard.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-pn53x"
	"github.com/ZaparooProject/go-pn53x/detection"
	"github.com/ZaparooProject/go-pn53x/internal/frame"
	"github.com/ZaparooProject/go-pn53x/internal/syncutil"
	"github.com/ebfe/scard"
)

// DriverName is the connection string driver served by this package.
const DriverName = "acr122_pcsc"

// escapeControlCode is IOCTL_CCID_ESCAPE, the control code the ACR122
// expects for pseudo-APDUs when no card is connected.
var escapeControlCode = scard.CtlCode(3500)

// Pseudo-APDU headers.
var (
	directTransmit  = []byte{0xFF, 0x00, 0x00, 0x00}
	getFirmwareAPDU = []byte{0xFF, 0x00, 0x48, 0x00, 0x00}
)

var (
	// ErrReaderNotFound is returned when no ACR122 is attached.
	ErrReaderNotFound = errors.New("no ACR122 reader found")
	// ErrBadStatus is returned when a pseudo-APDU does not end in 90 00.
	ErrBadStatus = errors.New("reader returned an error status")
)

// readerNames lists the substrings PC/SC uses for ACR122 based readers.
var readerNames = []string{"ACR122", "ACR 38U-CCID", "Touchatag"}

// IsACR122 reports whether a PC/SC reader name belongs to an ACR122.
func IsACR122(reader string) bool {
	for _, s := range readerNames {
		if strings.Contains(reader, s) {
			return true
		}
	}
	return false
}

// controller is the part of *scard.Card the transport uses.
type controller interface {
	Control(ioctl uint32, in []byte) ([]byte, error)
	Disconnect(d scard.Disposition) error
}

type result struct {
	err  error
	data []byte
}

// Transport implements pn53x.Transport over PC/SC. Each command is one
// SCardControl call run in the background so Read can time out and be
// aborted while the reader works.
type Transport struct {
	card    controller
	release func() error
	pending chan result
	abort   chan struct{}
	reader  string
	mu      syncutil.Mutex
	closed  bool
}

func init() {
	pn53x.RegisterDriver(DriverName, open)
}

func open(_ context.Context, cs detection.ConnString) (pn53x.Transport, error) {
	return New(cs.GetDefault("reader", ""))
}

// New connects to reader, or to the first ACR122 when reader is empty.
func New(reader string) (*Transport, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establish PC/SC context: %w", err)
	}
	if reader == "" {
		reader, err = firstACR122(ctx)
		if err != nil {
			_ = ctx.Release()
			return nil, err
		}
	}
	card, err := ctx.Connect(reader, scard.ShareDirect, scard.ProtocolUndefined)
	if err != nil {
		_ = ctx.Release()
		if errors.Is(err, scard.ErrUnknownReader) || errors.Is(err, scard.ErrReaderUnavailable) {
			return nil, fmt.Errorf("connect to %q: %w: %w", reader, pn53x.ErrDeviceNotFound, err)
		}
		return nil, fmt.Errorf("connect to %q: %w", reader, err)
	}
	t := NewWithCard(card, reader)
	t.release = ctx.Release
	return t, nil
}

func firstACR122(ctx *scard.Context) (string, error) {
	readers, err := ctx.ListReaders()
	if err != nil && !errors.Is(err, scard.ErrNoReadersAvailable) {
		return "", fmt.Errorf("list PC/SC readers: %w", err)
	}
	for _, r := range readers {
		if IsACR122(r) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %w", pn53x.ErrDeviceNotFound, ErrReaderNotFound)
}

// NewWithCard runs the transport over a card handle opened in direct mode.
func NewWithCard(card controller, reader string) *Transport {
	return &Transport{card: card, reader: reader, abort: make(chan struct{}, 1)}
}

// Write wraps p in a direct transmit pseudo-APDU and starts it.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, pn53x.NewClosedError("write", t.reader)
	}
	if len(p) == 0 || len(p)+1 > frame.MaxNormalLen {
		return 0, pn53x.NewDataTooLargeError("write", t.reader)
	}
	t.settle()
	select {
	case <-t.abort:
	default:
	}

	apdu := make([]byte, 0, len(directTransmit)+2+len(p))
	apdu = append(apdu, directTransmit...)
	apdu = append(apdu, byte(len(p)+1), frame.HostToChip)
	apdu = append(apdu, p...)

	done := make(chan result, 1)
	t.pending = done
	go func() {
		data, err := t.card.Control(escapeControlCode, apdu)
		done <- result{data: data, err: err}
	}()
	return len(p), nil
}

// settle waits for a command abandoned by an aborted Read; the reader
// handles one call at a time.
func (t *Transport) settle() {
	if t.pending == nil {
		return
	}
	<-t.pending
	t.pending = nil
}

// Read waits up to timeout for the running command's response.
func (t *Transport) Read(p []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, pn53x.NewClosedError("read", t.reader)
	}
	if t.pending == nil {
		return 0, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var r result
	select {
	case r = <-t.pending:
		t.pending = nil
	case <-timer.C:
		return 0, nil
	case <-t.abort:
		return 0, nil
	}
	if r.err != nil {
		return 0, pn53x.NewTransportError("read", t.reader, r.err, pn53x.ErrorTypeTransient)
	}
	body, err := unwrapResponse(r.data)
	if err != nil {
		return 0, pn53x.NewTransportError("read", t.reader, err, pn53x.ErrorTypeTransient)
	}
	if len(body) > len(p) {
		return 0, pn53x.NewDataTooLargeError("read", t.reader)
	}
	return copy(p, body), nil
}

// unwrapResponse strips the status word and the D5 direction byte. A
// failed escape (63 00) is reported like a chip error frame.
func unwrapResponse(resp []byte) ([]byte, error) {
	if len(resp) < 2 {
		return nil, fmt.Errorf("%w: short response % X", ErrBadStatus, resp)
	}
	sw := resp[len(resp)-2:]
	data := resp[:len(resp)-2]
	switch {
	case sw[0] == 0x63 && sw[1] == 0x00:
		return []byte{frame.ErrorTFI}, nil
	case sw[0] != 0x90 || sw[1] != 0x00:
		return nil, fmt.Errorf("%w: % X", ErrBadStatus, sw)
	case len(data) < 2 || data[0] != frame.ChipToHost:
		return nil, fmt.Errorf("%w: % X", pn53x.ErrInvalidResponse, data)
	}
	return data[1:], nil
}

// Abort wakes a blocked Read. The reader still finishes the command.
func (t *Transport) Abort() error {
	select {
	case t.abort <- struct{}{}:
	default:
	}
	return nil
}

// FirmwareString returns the reader's own firmware identification, such
// as "ACR122U207".
func (t *Transport) FirmwareString() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return "", pn53x.NewClosedError("firmware", t.reader)
	}
	t.settle()
	resp, err := t.card.Control(escapeControlCode, getFirmwareAPDU)
	if err != nil {
		return "", fmt.Errorf("read ACR122 firmware: %w", err)
	}
	if n := len(resp); n >= 2 && resp[n-2] == 0x90 && resp[n-1] == 0x00 {
		resp = resp[:n-2]
	}
	return string(resp), nil
}

// Close disconnects from the reader.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.card.Disconnect(scard.LeaveCard)
	if t.release != nil {
		err = errors.Join(err, t.release())
	}
	if err != nil {
		return fmt.Errorf("close %s: %w", t.reader, err)
	}
	return nil
}

// Type returns pn53x.TransportPCSC.
func (*Transport) Type() pn53x.TransportType {
	return pn53x.TransportPCSC
}

// ChipType returns pn53x.ChipPN532.
func (*Transport) ChipType() pn53x.ChipType {
	return pn53x.ChipPN532
}

// HasCapability reports that the firmware blocks target mode.
func (*Transport) HasCapability(c pn53x.TransportCapability) bool {
	return c == pn53x.CapabilityNoTargetMode
}

// Reader returns the PC/SC reader name.
func (t *Transport) Reader() string {
	return t.reader
}

var (
	_ pn53x.Transport                  = (*Transport)(nil)
	_ pn53x.ChipTyper                  = (*Transport)(nil)
	_ pn53x.TransportCapabilityChecker = (*Transport)(nil)
)
