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

package pn53x

import "time"

// Transport is the byte pipe between the core and a reader. Chip commands
// travel as opcode + payload; implementations add and strip the direction
// byte (D4/D5) and whatever framing their bus needs.
//
// Read returns the next complete response as [response code, data...]. It
// returns (0, nil) when nothing arrived within timeout. Abort must be safe
// to call from another goroutine while Read is blocked and wakes it early.
type Transport interface {
	Write(p []byte) (int, error)
	Read(p []byte, timeout time.Duration) (int, error)
	Abort() error
	Close() error
	Type() TransportType
}

// CommandCanceller is implemented by transports able to stop the command
// the chip is currently executing (byte buses do it with an ACK frame).
type CommandCanceller interface {
	CancelCommand() error
}

// TransportType names the bus a Transport drives.
type TransportType string

// Transport types.
const (
	TransportUART TransportType = "uart" // PN532 HSU
	TransportI2C  TransportType = "i2c"
	TransportSPI  TransportType = "spi"
	TransportUSB  TransportType = "usb"  // PN531, PN533, RC-S360 bulk endpoints
	TransportPCSC TransportType = "pcsc" // ACR122 escape commands
	TransportMock TransportType = "mock"
)

// TransportCapability is a deviation from the plain PN53x command set.
type TransportCapability string

const (
	// CapabilityExtendedFrames indicates the transport can carry PN533
	// extended information frames (payloads above 254 bytes).
	CapabilityExtendedFrames TransportCapability = "extended_frames"

	// CapabilityNoTargetMode indicates the reader firmware blocks
	// TgInitAsTarget (ACR122 escape channel).
	CapabilityNoTargetMode TransportCapability = "no_target_mode"
)

// TransportCapabilityChecker is implemented by transports that deviate from
// the plain PN53x command set.
type TransportCapabilityChecker interface {
	HasCapability(capability TransportCapability) bool
}

func hasCapability(t Transport, c TransportCapability) bool {
	if checker, ok := t.(TransportCapabilityChecker); ok {
		return checker.HasCapability(c)
	}
	return false
}

// Frame lengths, excluding the direction byte.
const (
	maxNormalFrame   = 254
	maxExtendedFrame = 264
)
