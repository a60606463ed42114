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
	"fmt"
	"time"
)

// Property is a tunable chip behaviour.
type Property int

// Properties.
const (
	TimeoutCommand Property = iota + 1
	TimeoutATR
	TimeoutCom
	HandleCRC
	HandleParity
	ActivateField
	ActivateCrypto1
	InfiniteSelect
	AcceptInvalidFrames
	AcceptMultipleFrames
	AutoISO14443_4
	EasyFraming
	ForceISO14443A
	ForceISO14443B
	ForceSpeed106
)

var propertyNames = map[Property]string{
	TimeoutCommand:       "TimeoutCommand",
	TimeoutATR:           "TimeoutATR",
	TimeoutCom:           "TimeoutCom",
	HandleCRC:            "HandleCRC",
	HandleParity:         "HandleParity",
	ActivateField:        "ActivateField",
	ActivateCrypto1:      "ActivateCrypto1",
	InfiniteSelect:       "InfiniteSelect",
	AcceptInvalidFrames:  "AcceptInvalidFrames",
	AcceptMultipleFrames: "AcceptMultipleFrames",
	AutoISO14443_4:       "AutoISO14443_4",
	EasyFraming:          "EasyFraming",
	ForceISO14443A:       "ForceISO14443A",
	ForceISO14443B:       "ForceISO14443B",
	ForceSpeed106:        "ForceSpeed106",
}

func (p Property) String() string {
	if s, ok := propertyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Property(%d)", int(p))
}

type propertyHandler struct {
	setBool func(ctx context.Context, d *Device, v bool) error
	setInt  func(ctx context.Context, d *Device, v int) error
	getInt  func(d *Device) int
}

var propertyTable map[Property]propertyHandler

func init() {
	propertyTable = map[Property]propertyHandler{
		TimeoutCommand: {setInt: setTimeoutCommand, getInt: func(d *Device) int {
			return durationToMillis(d.chip.TimeoutCommand)
		}},
		TimeoutATR: {setInt: setTimeoutATR, getInt: func(d *Device) int {
			return durationToMillis(d.chip.TimeoutATR)
		}},
		TimeoutCom: {setInt: setTimeoutCom, getInt: func(d *Device) int {
			return durationToMillis(d.chip.TimeoutCom)
		}},
		HandleCRC:            {setBool: setHandleCRC},
		HandleParity:         {setBool: setHandleParity},
		ActivateField:        {setBool: setActivateField},
		ActivateCrypto1:      {setBool: setActivateCrypto1},
		InfiniteSelect:       {setBool: setInfiniteSelect},
		AcceptInvalidFrames:  {setBool: registerFlag(regCIURxMode, symRxNoError)},
		AcceptMultipleFrames: {setBool: registerFlag(regCIURxMode, symRxMultiple)},
		AutoISO14443_4:       {setBool: setAutoISO14443_4},
		EasyFraming:          {setBool: func(context.Context, *Device, bool) error { return nil }},
		ForceISO14443A:       {setBool: setForceISO14443A},
		ForceISO14443B:       {setBool: setForceISO14443B},
		ForceSpeed106:        {setBool: setForceSpeed106},
	}
}

// cachedProperties are skipped when already in the requested state. The
// others drive chip state that commands such as InListPassiveTarget change
// behind our back, so they are always written.
var cachedProperties = map[Property]bool{
	HandleCRC:            true,
	HandleParity:         true,
	ActivateCrypto1:      true,
	AcceptInvalidFrames:  true,
	AcceptMultipleFrames: true,
	AutoISO14443_4:       true,
	EasyFraming:          true,
}

// SetPropertyBool sets a boolean property. Writes are skipped when the
// chip is already known to be in the requested state.
func (d *Device) SetPropertyBool(ctx context.Context, p Property, v bool) error {
	defer d.begin()()
	h, ok := propertyTable[p]
	if !ok || h.setBool == nil {
		return fmt.Errorf("%w: %s is not a boolean property", ErrUnsupportedProperty, p)
	}
	if cur, known := d.chip.bools[p]; known && cur == v && cachedProperties[p] {
		return nil
	}
	if err := h.setBool(ctx, d, v); err != nil {
		return err
	}
	d.chip.bools[p] = v
	Debugf("property %s = %t", p, v)
	return nil
}

// GetPropertyBool returns the last value set for a boolean property.
func (d *Device) GetPropertyBool(p Property) (bool, error) {
	h, ok := propertyTable[p]
	if !ok || h.setBool == nil {
		return false, fmt.Errorf("%w: %s is not a boolean property", ErrUnsupportedProperty, p)
	}
	return d.chip.bools[p], nil
}

// SetPropertyInt sets an integer property. Timeouts are in milliseconds;
// a TimeoutCommand of 0 waits forever.
func (d *Device) SetPropertyInt(ctx context.Context, p Property, v int) error {
	defer d.begin()()
	h, ok := propertyTable[p]
	if !ok || h.setInt == nil {
		return fmt.Errorf("%w: %s is not an integer property", ErrUnsupportedProperty, p)
	}
	if v < 0 {
		return errorf(KindInvalidArgument, p.String(), "negative value %d", v)
	}
	return h.setInt(ctx, d, v)
}

// GetPropertyInt returns an integer property.
func (d *Device) GetPropertyInt(p Property) (int, error) {
	h, ok := propertyTable[p]
	if !ok || h.getInt == nil {
		return 0, fmt.Errorf("%w: %s is not an integer property", ErrUnsupportedProperty, p)
	}
	return h.getInt(d), nil
}

func durationToMillis(t time.Duration) int {
	if t < 0 {
		return 0
	}
	return int(t / time.Millisecond)
}

func setTimeoutCommand(_ context.Context, d *Device, ms int) error {
	if ms == 0 {
		d.chip.TimeoutCommand = NoTimeout
		return nil
	}
	d.chip.TimeoutCommand = time.Duration(ms) * time.Millisecond
	return nil
}

func setTimeoutATR(ctx context.Context, d *Device, ms int) error {
	d.chip.TimeoutATR = time.Duration(ms) * time.Millisecond
	return d.writeRFTimings(ctx)
}

func setTimeoutCom(ctx context.Context, d *Device, ms int) error {
	d.chip.TimeoutCom = time.Duration(ms) * time.Millisecond
	return d.writeRFTimings(ctx)
}

func (d *Device) writeRFTimings(ctx context.Context) error {
	f := buildRFTimings(rfTimeoutCode(d.chip.TimeoutATR), rfTimeoutCode(d.chip.TimeoutCom))
	_, err := d.transceive(ctx, f, 0)
	return err
}

// rfTimeoutCode converts a duration to the smallest RFConfiguration
// timeout code covering it: 0x00 disables the timeout, 0x01..0x10 are
// 100µs * 2^(n-1), capped at 3.28s.
func rfTimeoutCode(t time.Duration) byte {
	if t <= 0 {
		return 0
	}
	code := byte(0x01)
	for step := 100 * time.Microsecond; step < t && code < 0x10; step *= 2 {
		code++
	}
	return code
}

func setHandleCRC(ctx context.Context, d *Device, v bool) error {
	var bit byte
	if v {
		bit = symTxCRCEnable
	}
	if err := d.writeRegisterMasked(ctx, regCIUTxMode, symTxCRCEnable, bit); err != nil {
		return err
	}
	return d.writeRegisterMasked(ctx, regCIURxMode, symRxCRCEnable, bit)
}

func setHandleParity(ctx context.Context, d *Device, v bool) error {
	var bit byte
	if !v {
		bit = symParityDisable
	}
	return d.writeRegisterMasked(ctx, regCIUManualRCV, symParityDisable, bit)
}

func setActivateField(ctx context.Context, d *Device, v bool) error {
	_, err := d.transceive(ctx, buildRFField(v), 0)
	return err
}

func setActivateCrypto1(ctx context.Context, d *Device, v bool) error {
	var bit byte
	if v {
		bit = symMFCrypto1On
	}
	return d.writeRegisterMasked(ctx, regCIUStatus2, symMFCrypto1On, bit)
}

func setInfiniteSelect(ctx context.Context, d *Device, v bool) error {
	f := buildMaxRetries(0x00, 0x01, d.config.MaxRetries)
	if v {
		f = buildMaxRetries(0xFF, 0x01, 0xFF)
	}
	_, err := d.transceive(ctx, f, 0)
	return err
}

func registerFlag(reg uint16, mask byte) func(context.Context, *Device, bool) error {
	return func(ctx context.Context, d *Device, v bool) error {
		var bit byte
		if v {
			bit = mask
		}
		return d.writeRegisterMasked(ctx, reg, mask, bit)
	}
}

func setAutoISO14443_4(ctx context.Context, d *Device, v bool) error {
	params := d.chip.params
	if !d.chip.paramsKnown {
		params = paramAutoATRRes | paramAutoRATS
	}
	if v {
		params |= paramAutoRATS
	} else {
		params &^= paramAutoRATS
	}
	return d.setParameters(ctx, params)
}

func setForceISO14443A(ctx context.Context, d *Device, v bool) error {
	if !v {
		return nil
	}
	if err := d.writeRegisterMasked(ctx, regCIUTxMode, symFraming, framingISO14443A); err != nil {
		return err
	}
	if err := d.writeRegisterMasked(ctx, regCIURxMode, symFraming, framingISO14443A); err != nil {
		return err
	}
	return d.writeRegisterMasked(ctx, regCIUTxAuto, symForce100ASK, symForce100ASK)
}

func setForceISO14443B(ctx context.Context, d *Device, v bool) error {
	if !v {
		return nil
	}
	if err := d.writeRegisterMasked(ctx, regCIUTxMode, symFraming, framingISO14443B); err != nil {
		return err
	}
	return d.writeRegisterMasked(ctx, regCIURxMode, symFraming, framingISO14443B)
}

func setForceSpeed106(ctx context.Context, d *Device, v bool) error {
	if !v {
		return nil
	}
	if err := d.writeRegisterMasked(ctx, regCIUTxMode, symTxSpeed, 0x00); err != nil {
		return err
	}
	return d.writeRegisterMasked(ctx, regCIURxMode, symRxSpeed, 0x00)
}

func (d *Device) setParameters(ctx context.Context, params byte) error {
	if d.chip.paramsKnown && d.chip.params == params {
		return nil
	}
	if _, err := d.transceive(ctx, buildSetParameters(params), 0); err != nil {
		return err
	}
	d.chip.params = params
	d.chip.paramsKnown = true
	return nil
}

// readRegisters reads CIU/SFR registers and refreshes the cache.
func (d *Device) readRegisters(ctx context.Context, addrs ...uint16) ([]byte, error) {
	f, err := buildReadRegister(addrs...)
	if err != nil {
		return nil, err
	}
	data, err := d.transceive(ctx, f, 0)
	if err != nil {
		return nil, err
	}
	if d.chip.Type == ChipPN533 {
		// PN533 prefixes the register values with a status byte.
		if len(data) == 0 {
			return nil, errorf(KindProtocol, "ReadRegister", "missing status byte")
		}
		if data[0] != 0 {
			return nil, &ChipStatusError{Command: "ReadRegister", Status: data[0] & 0x3F}
		}
		data = data[1:]
	}
	if len(data) != len(addrs) {
		return nil, errorf(KindProtocol, "ReadRegister", "%d values for %d registers", len(data), len(addrs))
	}
	for i, a := range addrs {
		d.chip.registers[a] = data[i]
	}
	return append([]byte(nil), data...), nil
}

// writeRegisterMasked replaces the masked bits of a register, skipping the
// write when the cached value already matches.
func (d *Device) writeRegisterMasked(ctx context.Context, addr uint16, mask, value byte) error {
	cur, ok := d.chip.registers[addr]
	if !ok {
		vals, err := d.readRegisters(ctx, addr)
		if err != nil {
			return err
		}
		cur = vals[0]
	}
	next := cur&^mask | value&mask
	if next == cur {
		return nil
	}
	f, err := buildWriteRegister(registerWrite{addr: addr, value: next})
	if err != nil {
		return err
	}
	if _, err := d.transceive(ctx, f, 0); err != nil {
		delete(d.chip.registers, addr)
		return err
	}
	d.chip.registers[addr] = next
	return nil
}

// writeRegisters writes unconditionally; used for volatile CIU registers
// such as Command and FIFOLevel.
func (d *Device) writeRegisters(ctx context.Context, writes ...registerWrite) error {
	f, err := buildWriteRegister(writes...)
	if err != nil {
		return err
	}
	if _, err := d.transceive(ctx, f, 0); err != nil {
		for _, w := range writes {
			delete(d.chip.registers, w.addr)
		}
		return err
	}
	for _, w := range writes {
		d.chip.registers[w.addr] = w.value
	}
	return nil
}
