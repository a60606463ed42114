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

// Package spi drives a PN532 over SPI using periph.io.
package spi

import (
	"context"
	"fmt"
	"math/bits"
	"strconv"
	"time"

	"github.com/ZaparooProject/go-pn53x"
	"github.com/ZaparooProject/go-pn53x/detection"
	"github.com/ZaparooProject/go-pn53x/internal/frame"
	"github.com/ZaparooProject/go-pn53x/internal/link"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// DriverName is the connection string driver served by this package.
const DriverName = "pn532_spi"

// DefaultFrequency is a clock every PN532 board handles; the chip allows
// up to 5 MHz.
const DefaultFrequency = 1 * physic.MegaHertz

// Operation bytes sent first in every transaction.
const (
	opDataWrite  = 0x01
	opStatusRead = 0x02
	opDataRead   = 0x03

	statusReady = 0x01
)

// Config selects the SPI port.
type Config struct {
	// Port is an spireg name such as "/dev/spidev0.0". Empty picks the
	// first port.
	Port      string
	Frequency physic.Frequency
}

// DefaultConfig returns the settings for a PN532 on port.
func DefaultConfig(port string) Config {
	return Config{Port: port, Frequency: DefaultFrequency}
}

// Transport implements pn53x.Transport over SPI.
type Transport struct {
	*link.Framer
	port spi.PortCloser
	name string
}

func init() {
	pn53x.RegisterDriver(DriverName, open)
}

func open(_ context.Context, cs detection.ConnString) (pn53x.Transport, error) {
	config := DefaultConfig(cs.GetDefault("port", ""))
	if s, ok := cs.Get("speed"); ok {
		hz, err := strconv.ParseUint(s, 10, 32)
		if err != nil || hz == 0 {
			return nil, fmt.Errorf("%s: invalid speed %q", DriverName, s)
		}
		config.Frequency = physic.Frequency(hz) * physic.Hertz
	}
	return New(config)
}

// New opens the SPI port described by config and wakes the chip.
func New(config Config) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialize periph host: %w", err)
	}
	port, err := spireg.Open(config.Port)
	if err != nil {
		return nil, fmt.Errorf("open SPI port %q: %w: %w", config.Port, pn53x.ErrDeviceNotFound, err)
	}
	// The PN532 shifts LSB first; the mode stays MSB first and bytes are
	// bit-reversed in software since few controllers support LSB mode.
	c, err := port.Connect(config.Frequency, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("connect SPI port %s: %w", port, err)
	}
	t := NewWithConn(c, port.String())
	t.port = port
	t.wakeup(c)
	return t, nil
}

// NewWithConn runs the transport over an existing connection to the chip.
func NewWithConn(c spi.Conn, name string) *Transport {
	return &Transport{
		Framer: link.New(&spiBus{c: c}, link.DefaultConfig(name)),
		name:   name,
	}
}

// wakeup toggles chip select with a dummy byte. The chip needs about a
// millisecond before it answers afterwards.
func (t *Transport) wakeup(c spi.Conn) {
	for attempt := range pn53x.TransportWakeupRetries {
		time.Sleep(time.Millisecond)
		err := c.Tx([]byte{0x00}, nil)
		time.Sleep(time.Millisecond)
		if err == nil {
			return
		}
		pn53x.Debugf("spi %s: wakeup attempt %d: %v", t.name, attempt+1, err)
	}
}

// Close releases the port.
func (t *Transport) Close() error {
	if !t.Shutdown() || t.port == nil {
		return nil
	}
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("close SPI port %s: %w", t.name, err)
	}
	return nil
}

// Type returns pn53x.TransportSPI.
func (*Transport) Type() pn53x.TransportType {
	return pn53x.TransportSPI
}

// spiBus speaks the PN532 SPI protocol: each transaction starts with an
// operation byte and every byte travels LSB first.
type spiBus struct {
	c spi.Conn
}

func reverse(dst, src []byte) {
	for i, b := range src {
		dst[i] = bits.Reverse8(b)
	}
}

// tx runs op with n payload bytes each way and returns what the chip
// clocked out after the operation byte.
func (b *spiBus) tx(op byte, w []byte, n int) ([]byte, error) {
	out := frame.GetBuffer(n + 1)
	in := frame.GetBuffer(n + 1)
	defer frame.PutBuffer(out)
	out[0] = bits.Reverse8(op)
	reverse(out[1:], w)
	if err := b.c.Tx(out, in); err != nil {
		frame.PutBuffer(in)
		return nil, fmt.Errorf("SPI transaction 0x%02x: %w", op, err)
	}
	reverse(in[1:], in[1:])
	return in, nil
}

func (b *spiBus) Send(p []byte) error {
	in, err := b.tx(opDataWrite, p, len(p))
	if err != nil {
		return err
	}
	frame.PutBuffer(in)
	return nil
}

func (b *spiBus) Ready() (bool, error) {
	in, err := b.tx(opStatusRead, nil, 1)
	if err != nil {
		return false, err
	}
	defer frame.PutBuffer(in)
	return in[1]&statusReady != 0, nil
}

func (b *spiBus) Receive(p []byte) error {
	in, err := b.tx(opDataRead, nil, len(p))
	if err != nil {
		return err
	}
	defer frame.PutBuffer(in)
	copy(p, in[1:])
	return nil
}

var (
	_ pn53x.Transport        = (*Transport)(nil)
	_ pn53x.CommandCanceller = (*Transport)(nil)
)
