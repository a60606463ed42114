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
	"fmt"
	"time"
)

// ChipType identifies a member of the PN53x family.
type ChipType int

// Chip types.
const (
	ChipUnknown ChipType = iota
	ChipPN531
	ChipPN532
	ChipPN533
	ChipRCS360
)

func (c ChipType) String() string {
	switch c {
	case ChipPN531:
		return "PN531"
	case ChipPN532:
		return "PN532"
	case ChipPN533:
		return "PN533"
	case ChipRCS360:
		return "RC-S360"
	default:
		return "unknown"
	}
}

// FirmwareVersion contains the GetFirmwareVersion reply
type FirmwareVersion struct {
	Version          string
	IC               byte
	Ver              byte
	Rev              byte
	Support          byte
	SupportIso14443a bool
	SupportIso14443b bool
	SupportIso18092  bool
}

// GeneralStatus contains the GetGeneralStatus reply
type GeneralStatus struct {
	LastError    byte
	FieldPresent bool
	Targets      byte
}

type rateTable map[ModulationType][]BaudRate

var (
	initiatorPN531 = rateTable{
		ISO14443A: {Baud106},
		FeliCa:    {Baud212, Baud424},
		DEP:       {Baud106, Baud212, Baud424},
	}
	initiatorPN532 = rateTable{
		ISO14443A:       {Baud106},
		FeliCa:          {Baud212, Baud424},
		ISO14443B:       {Baud106},
		ISO14443BI:      {Baud106},
		ISO14443B2SR:    {Baud106},
		ISO14443B2CT:    {Baud106},
		ISO14443BICLASS: {Baud106},
		Jewel:           {Baud106},
		Barcode:         {Baud106},
		DEP:             {Baud106, Baud212, Baud424},
	}
	initiatorPN533 = rateTable{
		ISO14443A:       {Baud106},
		FeliCa:          {Baud212, Baud424},
		ISO14443B:       {Baud106, Baud212, Baud424, Baud847},
		ISO14443BI:      {Baud106},
		ISO14443B2SR:    {Baud106},
		ISO14443B2CT:    {Baud106},
		ISO14443BICLASS: {Baud106},
		Jewel:           {Baud106},
		Barcode:         {Baud106},
		DEP:             {Baud106, Baud212, Baud424},
	}
	initiatorRCS360 = rateTable{
		ISO14443A: {Baud106},
		FeliCa:    {Baud212, Baud424},
		ISO14443B: {Baud106, Baud212, Baud424, Baud847},
		Jewel:     {Baud106},
		DEP:       {Baud106, Baud212, Baud424},
	}
	targetPN531 = rateTable{
		ISO14443A: {Baud106},
		DEP:       {Baud106, Baud212, Baud424},
	}
	targetDefault = rateTable{
		ISO14443A: {Baud106},
		FeliCa:    {Baud212, Baud424},
		DEP:       {Baud106, Baud212, Baud424},
	}
)

// modulationOrder is the order capabilities are reported in.
var modulationOrder = []ModulationType{
	ISO14443A, FeliCa, ISO14443B, ISO14443BI, ISO14443B2SR, ISO14443B2CT,
	ISO14443BICLASS, Jewel, Barcode, DEP,
}

// ChipContext is the per-device chip state. It is owned by a Device and not
// safe for concurrent use.
type ChipContext struct {
	initiator rateTable
	target    rateTable
	Firmware  *FirmwareVersion
	bools     map[Property]bool
	registers map[uint16]byte
	pending   []byte
	// TimeoutCommand bounds every chip command; TimeoutATR and TimeoutCom
	// are RF timeouts programmed into the chip.
	TimeoutCommand time.Duration
	TimeoutATR     time.Duration
	TimeoutCom     time.Duration
	Type           ChipType
	mode           Mode
	LastStatus     byte
	params         byte
	paramsKnown    bool
	// txBits mirrors BitFraming.TxLastBits as last set by the driver.
	txBits byte
	// timerPrescaler is the CIU timer prescaler of the last timed exchange.
	timerPrescaler uint16
	rx             [maxExtendedFrame + 2]byte
}

func newChipContext(t ChipType) *ChipContext {
	c := &ChipContext{
		bools:          make(map[Property]bool),
		registers:      make(map[uint16]byte),
		TimeoutCommand: defaultCommandTimeout,
		TimeoutATR:     103 * time.Millisecond,
		TimeoutCom:     52 * time.Millisecond,
	}
	c.setType(t)
	return c
}

func (c *ChipContext) setType(t ChipType) {
	c.Type = t
	switch t {
	case ChipPN531:
		c.initiator, c.target = initiatorPN531, targetPN531
	case ChipPN533:
		c.initiator, c.target = initiatorPN533, targetDefault
	case ChipRCS360:
		c.initiator, c.target = initiatorRCS360, rateTable{}
	default:
		c.initiator, c.target = initiatorPN532, targetDefault
	}
}

func (c *ChipContext) table(mode Mode) rateTable {
	if mode == ModeTarget {
		return c.target
	}
	return c.initiator
}

// Supports reports whether the chip handles m in the given mode.
func (c *ChipContext) Supports(mode Mode, m Modulation) error {
	rates, ok := c.table(mode)[m.Type]
	if !ok {
		return errorf(KindUnsupported, "capability", "%s does not support %s as %s", c.Type, m.Type, mode)
	}
	for _, r := range rates {
		if r == m.BaudRate {
			return nil
		}
	}
	return errorf(KindUnsupported, "capability", "%s does not support %s at %s as %s", c.Type, m.Type, m.BaudRate, mode)
}

// Modulations lists the supported modulation types for mode.
func (c *ChipContext) Modulations(mode Mode) []ModulationType {
	t := c.table(mode)
	out := make([]ModulationType, 0, len(t))
	for _, m := range modulationOrder {
		if _, ok := t[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// BaudRates lists the supported rates of mt for mode.
func (c *ChipContext) BaudRates(mode Mode, mt ModulationType) ([]BaudRate, error) {
	rates, ok := c.table(mode)[mt]
	if !ok {
		return nil, errorf(KindUnsupported, "capability", "%s does not support %s as %s", c.Type, mt, mode)
	}
	return append([]BaudRate(nil), rates...), nil
}

// rxBuffer returns the receive scratch buffer.
func (c *ChipContext) rxBuffer() []byte {
	return c.rx[:]
}

// reset drops cached chip state after the chip lost it (power cycle,
// firmware reset).
func (c *ChipContext) reset() {
	clear(c.bools)
	clear(c.registers)
	c.pending = nil
	c.paramsKnown = false
	c.LastStatus = 0
}

// parseFirmware decodes a GetFirmwareVersion reply (without response code).
// PN531 answers with two bytes, PN532/PN533 with IC, Ver, Rev, Support.
func parseFirmware(data []byte, hint ChipType) (*FirmwareVersion, ChipType, error) {
	switch {
	case len(data) == 2:
		return &FirmwareVersion{
			Version:          fmt.Sprintf("%d.%d", data[0], data[1]),
			Ver:              data[0],
			Rev:              data[1],
			SupportIso14443a: true,
			SupportIso18092:  true,
		}, ChipPN531, nil
	case len(data) >= 4:
		fw := &FirmwareVersion{
			IC:               data[0],
			Ver:              data[1],
			Rev:              data[2],
			Support:          data[3],
			Version:          fmt.Sprintf("%d.%d", data[1], data[2]),
			SupportIso14443a: data[3]&0x01 != 0,
			SupportIso14443b: data[3]&0x02 != 0,
			SupportIso18092:  data[3]&0x04 != 0,
		}
		switch data[0] {
		case 0x32:
			return fw, ChipPN532, nil
		case 0x33:
			if hint == ChipRCS360 {
				return fw, ChipRCS360, nil
			}
			return fw, ChipPN533, nil
		default:
			return fw, ChipUnknown, errorf(KindUnsupported, "GetFirmwareVersion", "unknown IC 0x%02X", data[0])
		}
	default:
		return nil, ChipUnknown, errorf(KindProtocol, "GetFirmwareVersion", "unexpected reply length %d", len(data))
	}
}
