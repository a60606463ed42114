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

import (
	"context"
	"sync/atomic"
	"time"
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// RetryConfig configures retries around Open and chip probing
	RetryConfig *RetryConfig
	// Timeout is the default chip command timeout
	Timeout time.Duration
	// PollInterval bounds each transport read while waiting for a reply
	PollInterval time.Duration
	// ChipType skips firmware probing when set
	ChipType ChipType
	// MaxRetries is MxRtyPassiveActivation used while infinite select is off
	MaxRetries byte
	// TimerCorrection is added to every cycle count measured by the timed
	// exchanges; it depends on the reader's board design.
	TimerCorrection uint32
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig:  DefaultRetryConfig(),
		Timeout:      defaultCommandTimeout,
		PollInterval: defaultPollInterval,
		MaxRetries:   DefaultPassiveActivationRetries,
	}
}

// ChipTyper is implemented by transports that know which chip they carry
// before talking to it (USB product IDs).
type ChipTyper interface {
	ChipType() ChipType
}

// Device is a handle on one PN53x chip.
//
// Thread Safety: Device is NOT thread-safe. All methods must be called from
// a single goroutine, except AbortCommand which may be called from any
// goroutine to interrupt the command in progress.
type Device struct {
	transport Transport
	config    *DeviceConfig
	chip      *ChipContext
	trace     *TraceBuffer
	current   *Target
	abort     atomic.Bool
	// depth counts the public operations in progress; see begin.
	depth int
}

// New creates a device on top of transport. Call Init before use.
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, errorf(KindInvalidArgument, "new", "nil transport")
	}
	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
	}
	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	hint := device.config.ChipType
	if ct, ok := transport.(ChipTyper); ok && hint == ChipUnknown {
		hint = ct.ChipType()
	}
	device.chip = newChipContext(hint)
	device.chip.TimeoutCommand = device.config.Timeout
	device.trace = NewTraceBuffer(string(transport.Type()), "", 16)
	return device, nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// Chip returns the chip context.
func (d *Device) Chip() *ChipContext {
	return d.chip
}

// Init probes the chip and puts it in a known state.
func (d *Device) Init(ctx context.Context) error {
	defer d.begin()()
	d.chip.reset()
	d.current = nil

	if d.config.ChipType == ChipUnknown {
		if _, err := d.probeFirmware(ctx); err != nil {
			return err
		}
	} else {
		d.chip.setType(d.config.ChipType)
	}
	Debugf("chip %s ready on %s transport", d.chip.Type, d.transport.Type())

	if d.chip.Type == ChipPN532 {
		if err := d.SAMConfiguration(ctx, SAMModeNormal, 0x14, 0x01); err != nil {
			return err
		}
	}
	if err := d.setParameters(ctx, paramAutoATRRes|paramAutoRATS); err != nil {
		return err
	}
	d.chip.bools[HandleCRC] = true
	d.chip.bools[HandleParity] = true
	d.chip.bools[EasyFraming] = true
	d.chip.bools[AutoISO14443_4] = true
	return nil
}

func (d *Device) probeFirmware(ctx context.Context) (*FirmwareVersion, error) {
	data, err := d.transceive(ctx, buildGetFirmwareVersion(), 0)
	if err != nil {
		return nil, err
	}
	fw, t, err := parseFirmware(data, d.chip.Type)
	if err != nil {
		return nil, err
	}
	d.chip.Firmware = fw
	d.chip.setType(t)
	return fw, nil
}

// FirmwareVersion returns the chip firmware, probing it when Init did not.
func (d *Device) FirmwareVersion(ctx context.Context) (*FirmwareVersion, error) {
	defer d.begin()()
	if d.chip.Firmware != nil {
		return d.chip.Firmware, nil
	}
	return d.probeFirmware(ctx)
}

// SupportedModulations lists the modulation types the chip handles in mode.
func (d *Device) SupportedModulations(mode Mode) []ModulationType {
	return d.chip.Modulations(mode)
}

// SupportedBaudRates lists the rates the chip handles for mt in mode.
func (d *Device) SupportedBaudRates(mode Mode, mt ModulationType) ([]BaudRate, error) {
	return d.chip.BaudRates(mode, mt)
}

// InitiatorInit configures the chip as a reader: field cycled, infinite
// select, automatic ISO14443-4 activation, type A framing at 106 kbps.
func (d *Device) InitiatorInit(ctx context.Context) error {
	defer d.begin()()
	if err := d.SetPropertyBool(ctx, ActivateField, false); err != nil {
		return err
	}
	steps := []struct {
		p Property
		v bool
	}{
		{ActivateField, true},
		{InfiniteSelect, true},
		{AutoISO14443_4, true},
		{ForceISO14443A, true},
		{ForceSpeed106, true},
		{AcceptInvalidFrames, false},
		{AcceptMultipleFrames, false},
	}
	for _, s := range steps {
		if err := d.SetPropertyBool(ctx, s.p, s.v); err != nil {
			return err
		}
	}
	d.chip.mode = ModeInitiator
	d.current = nil
	return nil
}

// Idle releases every target, turns the field off in initiator mode and
// puts a PN532 into power down.
func (d *Device) Idle(ctx context.Context) error {
	defer d.begin()()
	if _, err := d.exchange(ctx, buildInRelease(0), 0); err != nil {
		return err
	}
	d.current = nil
	if d.chip.mode == ModeInitiator {
		if err := d.SetPropertyBool(ctx, ActivateField, false); err != nil {
			return err
		}
	}
	if d.chip.Type != ChipPN532 {
		return nil
	}
	var wakeup byte
	switch d.transport.Type() {
	case TransportUART:
		wakeup = WakeupHSU
	case TransportI2C:
		wakeup = WakeupI2C
	case TransportSPI:
		wakeup = WakeupSPI
	default:
		return nil
	}
	return d.PowerDown(ctx, wakeup, false)
}

// SAMConfiguration selects the PN532 SAM data flow.
func (d *Device) SAMConfiguration(ctx context.Context, mode SAMMode, timeout, irq byte) error {
	defer d.begin()()
	if d.chip.Type != ChipPN532 {
		return errorf(KindUnsupported, "SAMConfiguration", "%s has no SAM interface", d.chip.Type)
	}
	_, err := d.transceive(ctx, buildSAMConfiguration(mode, timeout, irq), 0)
	return err
}

// PowerDown puts a PN532 into power down mode.
func (d *Device) PowerDown(ctx context.Context, wakeup byte, irq bool) error {
	defer d.begin()()
	if d.chip.Type != ChipPN532 {
		return errorf(KindUnsupported, "PowerDown", "%s", d.chip.Type)
	}
	if _, err := d.exchange(ctx, buildPowerDown(wakeup, irq), 0); err != nil {
		return err
	}
	d.chip.registers = make(map[uint16]byte)
	return nil
}

// GetGeneralStatus reads the chip status and target count.
func (d *Device) GetGeneralStatus(ctx context.Context) (*GeneralStatus, error) {
	defer d.begin()()
	data, err := d.transceive(ctx, buildGetGeneralStatus(), 0)
	if err != nil {
		return nil, err
	}
	r := newReader("GetGeneralStatus", data)
	head, err := r.take(3)
	if err != nil {
		return nil, err
	}
	return &GeneralStatus{LastError: head[0], FieldPresent: head[1] != 0, Targets: head[2]}, nil
}

// SetPassiveActivationRetries sets MxRtyPassiveActivation. 0xFF retries
// forever; a finite value keeps a PN532 from locking up with no tag around.
func (d *Device) SetPassiveActivationRetries(ctx context.Context, maxRetries byte) error {
	defer d.begin()()
	d.config.MaxRetries = maxRetries
	_, err := d.transceive(ctx, buildMaxRetries(0xFF, 0x01, maxRetries), 0)
	return err
}

// Close idles the chip and closes the transport.
func (d *Device) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.Idle(ctx); err != nil {
		Debugf("idle before close: %v", err)
	}
	if err := d.transport.Close(); err != nil {
		return newError(KindIO, "close", err)
	}
	return nil
}
