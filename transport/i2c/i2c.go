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

// Package i2c drives a PN532 over I2C using periph.io.
package i2c

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ZaparooProject/go-pn53x"
	"github.com/ZaparooProject/go-pn53x/detection"
	"github.com/ZaparooProject/go-pn53x/internal/frame"
	"github.com/ZaparooProject/go-pn53x/internal/link"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// DriverName is the connection string driver served by this package.
const DriverName = "pn532_i2c"

const (
	// DefaultAddr is the PN532's 7-bit address. The datasheet quotes 0x48,
	// the 8-bit write address.
	DefaultAddr uint16 = 0x24

	// DefaultFrequency is the fastest clock the PN532 accepts.
	DefaultFrequency = 400 * physic.KiloHertz

	statusReady = 0x01
)

var errNotReady = errors.New("PN532 not ready")

// Config selects the bus and device address.
type Config struct {
	// Bus is an i2creg name such as "/dev/i2c-1" or "1". Empty picks the
	// first bus.
	Bus       string
	Addr      uint16
	Frequency physic.Frequency
}

// DefaultConfig returns the settings for a PN532 on bus.
func DefaultConfig(bus string) Config {
	return Config{Bus: bus, Addr: DefaultAddr, Frequency: DefaultFrequency}
}

// Transport implements pn53x.Transport over I2C.
type Transport struct {
	*link.Framer
	bus  i2c.BusCloser
	name string
}

func init() {
	pn53x.RegisterDriver(DriverName, open)
}

func open(_ context.Context, cs detection.ConnString) (pn53x.Transport, error) {
	config := DefaultConfig(cs.GetDefault("bus", ""))
	if s, ok := cs.Get("addr"); ok {
		addr, err := strconv.ParseUint(s, 0, 7)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid addr %q: %w", DriverName, s, err)
		}
		config.Addr = uint16(addr)
	}
	return New(config)
}

// New opens the I2C bus described by config.
func New(config Config) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initialize periph host: %w", err)
	}
	bus, err := i2creg.Open(config.Bus)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w: %w", config.Bus, pn53x.ErrDeviceNotFound, err)
	}
	if config.Frequency > 0 {
		if err := bus.SetSpeed(config.Frequency); err != nil {
			pn53x.Debugf("i2c %s: keeping default speed: %v", bus, err)
		}
	}
	t := NewWithConn(&i2c.Dev{Addr: config.Addr, Bus: bus}, fmt.Sprintf("%s@0x%02x", bus, config.Addr))
	t.bus = bus
	return t, nil
}

// NewWithConn runs the transport over an existing connection to the chip.
func NewWithConn(c conn.Conn, name string) *Transport {
	return &Transport{
		Framer: link.New(&i2cBus{c: c}, link.DefaultConfig(name)),
		name:   name,
	}
}

// Close releases the bus.
func (t *Transport) Close() error {
	if !t.Shutdown() || t.bus == nil {
		return nil
	}
	if err := t.bus.Close(); err != nil {
		return fmt.Errorf("close I2C bus %s: %w", t.name, err)
	}
	return nil
}

// Type returns pn53x.TransportI2C.
func (*Transport) Type() pn53x.TransportType {
	return pn53x.TransportI2C
}

// i2cBus speaks the PN532 I2C protocol: every read transaction starts with
// a status byte whose bit 0 says whether a frame follows. A read always
// restarts at the beginning of the chip's output, so a frame must be read
// in one transaction.
type i2cBus struct {
	c conn.Conn
}

func (b *i2cBus) Send(p []byte) error {
	if err := b.c.Tx(p, nil); err != nil {
		return fmt.Errorf("I2C write: %w", err)
	}
	return nil
}

func (b *i2cBus) Ready() (bool, error) {
	var status [1]byte
	if err := b.c.Tx(nil, status[:]); err != nil {
		return false, fmt.Errorf("I2C status read: %w", err)
	}
	return status[0]&statusReady != 0, nil
}

func (b *i2cBus) Receive(p []byte) error {
	buf := frame.GetBuffer(len(p) + 1)
	defer frame.PutBuffer(buf)
	if err := b.c.Tx(nil, buf); err != nil {
		return fmt.Errorf("I2C read: %w", err)
	}
	if buf[0]&statusReady == 0 {
		return errNotReady
	}
	copy(p, buf[1:])
	return nil
}

var (
	_ pn53x.Transport        = (*Transport)(nil)
	_ pn53x.CommandCanceller = (*Transport)(nil)
)
