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

import "fmt"

// ModulationType identifies an RF protocol family.
type ModulationType int

// Modulation types.
const (
	ISO14443A ModulationType = iota + 1
	Jewel
	ISO14443B
	ISO14443BI      // B' (Calypso)
	ISO14443B2SR    // ST SRx
	ISO14443B2CT    // ASK CTx
	ISO14443BICLASS // HID iCLASS (Picopass)
	FeliCa
	DEP
	Barcode // Thinfilm NFC Barcode
)

var modulationTypeNames = map[ModulationType]string{
	ISO14443A:       "ISO/IEC 14443A",
	Jewel:           "Innovision Jewel",
	ISO14443B:       "ISO/IEC 14443-4B",
	ISO14443BI:      "ISO/IEC 14443-4B'",
	ISO14443B2SR:    "ISO/IEC 14443-2B ST SRx",
	ISO14443B2CT:    "ISO/IEC 14443-2B ASK CTx",
	ISO14443BICLASS: "ISO/IEC 14443-2B-3B iClass (Picopass)",
	FeliCa:          "FeliCa",
	DEP:             "D.E.P.",
	Barcode:         "Thinfilm NFC Barcode",
}

func (t ModulationType) String() string {
	if s, ok := modulationTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ModulationType(%d)", int(t))
}

// BaudRate is an RF bit rate.
type BaudRate int

// Baud rates.
const (
	BaudUndefined BaudRate = iota
	Baud106
	Baud212
	Baud424
	Baud847
)

func (b BaudRate) String() string {
	switch b {
	case BaudUndefined:
		return "undefined baud rate"
	case Baud106:
		return "106 kbps"
	case Baud212:
		return "212 kbps"
	case Baud424:
		return "424 kbps"
	case Baud847:
		return "847 kbps"
	default:
		return fmt.Sprintf("BaudRate(%d)", int(b))
	}
}

// Kbps returns the numeric rate, or 0 when undefined.
func (b BaudRate) Kbps() int {
	switch b {
	case Baud106:
		return 106
	case Baud212:
		return 212
	case Baud424:
		return 424
	case Baud847:
		return 847
	default:
		return 0
	}
}

// Modulation pairs a protocol family with a bit rate.
type Modulation struct {
	Type     ModulationType
	BaudRate BaudRate
}

func (m Modulation) String() string {
	return fmt.Sprintf("%s (%s)", m.Type, m.BaudRate)
}

// DEPMode is the DEP communication mode.
type DEPMode int

// DEP modes.
const (
	DEPUndefined DEPMode = iota
	DEPPassive
	DEPActive
)

func (m DEPMode) String() string {
	switch m {
	case DEPPassive:
		return "passive"
	case DEPActive:
		return "active"
	default:
		return "undefined"
	}
}

// Mode selects the initiator or target side of the chip.
type Mode int

// Device modes.
const (
	ModeInitiator Mode = iota
	ModeTarget
)

func (m Mode) String() string {
	if m == ModeTarget {
		return "target"
	}
	return "initiator"
}
