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
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-pn53x/pkg/iso14443"
)

type selectionState int

const (
	stateIdle selectionState = iota
	stateBuilding
	stateAwaitingResponse
	stateDecoding
	stateSelected
	stateFailed
)

func (s selectionState) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateBuilding:
		return "Building"
	case stateAwaitingResponse:
		return "AwaitingResponse"
	case stateDecoding:
		return "Decoding"
	case stateSelected:
		return "Selected"
	case stateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("selectionState(%d)", int(s))
	}
}

// selection tracks one SelectPassiveTarget call.
type selection struct {
	initiatorData []byte
	m             Modulation
	timeout       time.Duration
	maxTargets    int
	state         selectionState
}

func (s *selection) to(next selectionState, step string) {
	Debugf("select %s [%s]: %s -> %s", s.m.Type, step, s.state, next)
	s.state = next
}

// selectHandler runs the modulation-specific exchange and returns the
// targets found, empty when none answered.
type selectHandler func(ctx context.Context, d *Device, s *selection) ([]Target, error)

var selectHandlers map[ModulationType]selectHandler

func init() {
	selectHandlers = map[ModulationType]selectHandler{
		ISO14443A:       selectInList,
		ISO14443B:       selectInList,
		FeliCa:          selectInList,
		Jewel:           selectInList,
		ISO14443BI:      selectISO14443BI,
		ISO14443B2SR:    selectISO14443B2SR,
		ISO14443B2CT:    selectISO14443B2CT,
		ISO14443BICLASS: selectISO14443BiClass,
		Barcode:         selectBarcode,
	}
}

// defaultInitiatorData returns what the chip is sent when the caller
// passes no initiator data.
func defaultInitiatorData(m ModulationType) []byte {
	switch m {
	case ISO14443B:
		return []byte{0x00} // AFI: all families
	case ISO14443BI:
		return []byte{0x01, 0x0B, 0x3F, 0x80} // APGEN
	case ISO14443B2SR:
		return []byte{0x00}
	case FeliCa:
		return []byte{0x00, 0xFF, 0xFF, 0x01, 0x00} // polling, any system code, request system code
	default:
		return nil
	}
}

// SelectPassiveTarget selects up to maxTargets passive targets of
// modulation m. initiatorData is modulation specific: a UID for
// ISO14443A, AFI for ISO14443B, a polling request for FeliCa. Empty
// initiator data selects the modulation default.
//
// It returns an empty slice when no target answered.
func (d *Device) SelectPassiveTarget(
	ctx context.Context, m Modulation, maxTargets int, initiatorData []byte, timeout time.Duration,
) ([]Target, error) {
	defer d.begin()()
	const op = "SelectPassiveTarget"
	if maxTargets < 1 || maxTargets > 2 {
		return nil, errorf(KindInvalidArgument, op, "max targets %d not in [1,2]", maxTargets)
	}
	if len(initiatorData) > maxInitiatorData {
		return nil, errorf(KindInvalidArgument, op, "%d bytes of initiator data, at most %d allowed",
			len(initiatorData), maxInitiatorData)
	}
	if err := d.chip.Supports(ModeInitiator, m); err != nil {
		return nil, err
	}
	h, ok := selectHandlers[m.Type]
	if !ok {
		return nil, errorf(KindUnsupported, op, "%s is not selected passively", m.Type)
	}

	s := &selection{m: m, maxTargets: maxTargets, timeout: timeout}
	switch {
	case len(initiatorData) == 0:
		s.initiatorData = defaultInitiatorData(m.Type)
		if s.initiatorData != nil {
			Debugf("select %s: no initiator data, using % X", m.Type, s.initiatorData)
		}
	case m.Type == ISO14443A:
		cascaded, _, err := iso14443.CascadeUID(initiatorData)
		if err != nil {
			return nil, newError(KindInvalidArgument, op, err)
		}
		s.initiatorData = cascaded
	default:
		s.initiatorData = initiatorData
	}

	d.chip.pending = nil
	targets, err := h(ctx, d, s)
	d.chip.pending = nil
	if err != nil {
		s.to(stateFailed, err.Error())
		return nil, err
	}
	if len(targets) > maxTargets {
		targets = targets[:maxTargets]
	}
	if len(targets) == 0 {
		s.to(stateIdle, "no target")
		return targets, nil
	}
	s.to(stateSelected, fmt.Sprintf("%d target(s)", len(targets)))
	d.chip.mode = ModeInitiator
	d.current = &targets[0]
	return targets, nil
}

// step runs one Building -> AwaitingResponse -> Decoding round trip.
func (d *Device) step(ctx context.Context, s *selection, name string, build func() (Frame, error)) ([]byte, error) {
	s.to(stateBuilding, name)
	f, err := build()
	if err != nil {
		return nil, err
	}
	s.to(stateAwaitingResponse, name)
	data, err := d.transceive(ctx, f, s.timeout)
	if err != nil {
		return nil, err
	}
	s.to(stateDecoding, name)
	return data, nil
}

// thru sends raw bytes to the RF side with InCommunicateThru and returns a
// copy of the reply. A chip timeout status means nothing answered and is
// reported as (nil, nil).
func (d *Device) thru(ctx context.Context, s *selection, name string, payload []byte) ([]byte, error) {
	if err := d.setTxBits(ctx, 0); err != nil {
		return nil, err
	}
	data, err := d.step(ctx, s, name, func() (Frame, error) {
		return buildInCommunicateThru(payload)
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errorf(KindProtocol, name, "missing status byte")
	}
	d.chip.LastStatus = data[0]
	status := data[0] & 0x3F
	switch {
	case status == 0x01:
		return nil, nil
	case status != 0:
		return nil, &ChipStatusError{Command: name, Status: status}
	}
	return bytes.Clone(data[1:]), nil
}

// prepareManualB puts the CIU in ISO14443B 106 kbps framing for the
// families InListPassiveTarget does not know about.
func (d *Device) prepareManualB(ctx context.Context, crc bool) error {
	steps := []struct {
		p Property
		v bool
	}{
		{ForceISO14443B, true},
		{ForceSpeed106, true},
		{HandleCRC, crc},
		{EasyFraming, false},
	}
	for _, st := range steps {
		if err := d.SetPropertyBool(ctx, st.p, st.v); err != nil {
			return err
		}
	}
	return nil
}
