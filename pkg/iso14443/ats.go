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

package iso14443

import (
	"fmt"
	"time"
)

// ATS format byte (T0) and interface byte fields.
const (
	T0TA1Present byte = 0x10
	T0TB1Present byte = 0x20
	T0TC1Present byte = 0x40
	T0FSCIMask   byte = 0x0F

	TA1SameBitRate byte = 0x80
	TA1DS8         byte = 0x40
	TA1DS4         byte = 0x20
	TA1DS2         byte = 0x10
	TA1ErrorBit    byte = 0x08
	TA1DR8         byte = 0x04
	TA1DR4         byte = 0x02
	TA1DR2         byte = 0x01

	TC1NADSupported byte = 0x01
	TC1CIDSupported byte = 0x02

	// MaxATSLen is the largest ATS a PICC may send, TL byte excluded.
	MaxATSLen = 254

	defaultFWI = 4
	rfuIndex   = 15
	carrierHz  = 13_560_000
	etuBase    = 256 * 16
)

// fscTable maps FSCI to the maximum frame size a PICC accepts.
var fscTable = [...]int{16, 24, 32, 40, 48, 64, 96, 128, 256}

// FSC returns the frame size for an FSCI value. RFU values map to 256.
func FSC(fsci byte) int {
	if int(fsci) < len(fscTable) {
		return fscTable[fsci]
	}
	return fscTable[len(fscTable)-1]
}

// FrameWaitingTime returns FWT for a frame waiting integer.
func FrameWaitingTime(fwi byte) time.Duration {
	if fwi >= rfuIndex {
		fwi = defaultFWI
	}
	return ticks(etuBase << fwi)
}

// StartupFrameGuardTime returns SFGT for a start-up frame guard integer.
// Zero and RFU values mean no guard time is needed.
func StartupFrameGuardTime(sfgi byte) time.Duration {
	if sfgi == 0 || sfgi >= rfuIndex {
		return 0
	}
	return ticks(etuBase << sfgi)
}

func ticks(n int) time.Duration {
	return time.Duration(int64(n) * int64(time.Second) / carrierHz)
}

// ATS is a decoded Answer To Select.
type ATS struct {
	Historical []byte
	FWT        time.Duration
	SFGT       time.Duration
	FSC        int
	T0         byte
	TA1        byte
	TB1        byte
	TC1        byte
	FSCI       byte
	FWI        byte
	SFGI       byte
	HasTA1     bool
	HasTB1     bool
	HasTC1     bool
}

// SameBitRate reports whether the PICC requires the same divisor in both
// directions.
func (a *ATS) SameBitRate() bool { return a.HasTA1 && a.TA1&TA1SameBitRate != 0 }

// NADSupported reports whether the PICC accepts a node address.
func (a *ATS) NADSupported() bool { return a.HasTC1 && a.TC1&TC1NADSupported != 0 }

// CIDSupported reports whether the PICC accepts a card identifier.
func (a *ATS) CIDSupported() bool { return a.HasTC1 && a.TC1&TC1CIDSupported != 0 }

// PICCToPCDRates returns the supported PICC to PCD bit rates in kbps
// beyond 106.
func (a *ATS) PICCToPCDRates() []int {
	return rates(a.HasTA1, a.TA1, TA1DS2, TA1DS4, TA1DS8)
}

// PCDToPICCRates returns the supported PCD to PICC bit rates in kbps
// beyond 106.
func (a *ATS) PCDToPICCRates() []int {
	return rates(a.HasTA1, a.TA1, TA1DR2, TA1DR4, TA1DR8)
}

func rates(present bool, ta1, b2, b4, b8 byte) []int {
	if !present {
		return nil
	}
	var out []int
	for _, r := range []struct {
		bit  byte
		kbps int
	}{{b2, 212}, {b4, 424}, {b8, 847}} {
		if ta1&r.bit != 0 {
			out = append(out, r.kbps)
		}
	}
	return out
}

// interfaceBytes returns how many of TA1, TB1 and TC1 T0 announces.
func interfaceBytes(t0 byte) int {
	n := 0
	for _, bit := range []byte{T0TA1Present, T0TB1Present, T0TC1Present} {
		if t0&bit != 0 {
			n++
		}
	}
	return n
}

// LocateHistoricalBytes returns the historical bytes of an ATS given
// without its TL byte. ok is false when the ATS is empty or too short to
// hold the interface bytes T0 announces.
func LocateHistoricalBytes(ats []byte) (hist []byte, ok bool) {
	if len(ats) == 0 || len(ats) > MaxATSLen {
		return nil, false
	}
	offset := 1 + interfaceBytes(ats[0])
	if offset > len(ats) {
		return nil, false
	}
	return ats[offset:], true
}

// ParseATS decodes an ATS given without its TL byte.
func ParseATS(ats []byte) (ATS, error) {
	hist, ok := LocateHistoricalBytes(ats)
	if !ok {
		return ATS{}, fmt.Errorf("%w: %d bytes", ErrMalformedATS, len(ats))
	}

	a := ATS{
		T0:         ats[0],
		FSCI:       ats[0] & T0FSCIMask,
		FWI:        defaultFWI,
		Historical: hist,
	}
	a.FSC = FSC(a.FSCI)

	pos := 1
	if a.T0&T0TA1Present != 0 {
		a.HasTA1, a.TA1 = true, ats[pos]
		pos++
	}
	if a.T0&T0TB1Present != 0 {
		a.HasTB1, a.TB1 = true, ats[pos]
		a.FWI = a.TB1 >> 4
		a.SFGI = a.TB1 & 0x0F
		pos++
	}
	if a.T0&T0TC1Present != 0 {
		a.HasTC1, a.TC1 = true, ats[pos]
	}
	a.FWT = FrameWaitingTime(a.FWI)
	a.SFGT = StartupFrameGuardTime(a.SFGI)
	return a, nil
}

// SplitATSFrame splits an ATS as received on the wire (TL first) into the
// ATS body. The TL byte counts itself.
func SplitATSFrame(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: missing TL", ErrMalformedATS)
	}
	tl := int(frame[0])
	if tl == 0 || tl > len(frame) {
		return nil, fmt.Errorf("%w: TL %d with %d bytes", ErrMalformedATS, tl, len(frame))
	}
	return frame[1:tl], nil
}
