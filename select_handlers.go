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
)

// selectInList covers every family the chip enumerates itself.
func selectInList(ctx context.Context, d *Device, s *selection) ([]Target, error) {
	data, err := d.step(ctx, s, "InListPassiveTarget", func() (Frame, error) {
		return BuildSelectCommand(s.m, s.maxTargets, s.initiatorData)
	})
	if err != nil {
		return nil, err
	}
	return parseListResponse(d.chip.Type, s.m, data)
}

// decodeManual runs the family decoder over bytes collected by a manual
// selection and wraps the result in a Target.
func decodeManual(d *Device, s *selection, raw []byte) ([]Target, error) {
	info, _, err := ParseTargetResponse(d.chip.Type, s.m, raw)
	if err != nil {
		return nil, err
	}
	return []Target{{Info: info, Modulation: s.m}}, nil
}

// lostDuring reports a tag that answered the first step of a manual
// selection and then went silent. It counts as no target, like silence on
// the first step.
func lostDuring(s *selection, step string) ([]Target, error) {
	Debugf("select %s: no answer to %s, tag left the field", s.m.Type, step)
	return nil, nil
}

// selectISO14443BI selects a B' (Calypso) card: APGEN then ATTRIB.
func selectISO14443BI(ctx context.Context, d *Device, s *selection) ([]Target, error) {
	if err := d.prepareManualB(ctx, true); err != nil {
		return nil, err
	}
	repgen, err := d.thru(ctx, s, "APGEN", s.initiatorData)
	if err != nil || repgen == nil {
		return nil, err
	}
	if len(repgen) < 6 {
		return nil, errorf(KindProtocol, "APGEN", "REPGEN of %d bytes", len(repgen))
	}
	// Keep REPGEN for the decoder; ATTRIB reuses its first six bytes.
	d.chip.pending = append(d.chip.pending[:0], repgen...)
	var attrib [6]byte
	copy(attrib[:], d.chip.pending)
	attrib[1] = 0x0F
	if _, err := d.thru(ctx, s, "ATTRIB", attrib[:]); err != nil {
		return nil, err
	}
	return decodeManual(d, s, d.chip.pending)
}

// selectISO14443B2SR selects an ST SRx tag: INITIATE, SELECT, GET_UID.
func selectISO14443B2SR(ctx context.Context, d *Device, s *selection) ([]Target, error) {
	if err := d.prepareManualB(ctx, true); err != nil {
		return nil, err
	}
	initiate := append([]byte{0x06}, s.initiatorData...)
	id, err := d.thru(ctx, s, "INITIATE", initiate)
	if err != nil || id == nil {
		return nil, err
	}
	if len(id) != 1 {
		return nil, errorf(KindProtocol, "INITIATE", "chip ID of %d bytes", len(id))
	}
	echo, err := d.thru(ctx, s, "SELECT", []byte{0x0E, id[0]})
	if err != nil {
		return nil, err
	}
	if echo == nil {
		return lostDuring(s, "SELECT")
	}
	if len(echo) != 1 || echo[0] != id[0] {
		return nil, errorf(KindProtocol, "SELECT", "chip ID 0x%02X not echoed", id[0])
	}
	uid, err := d.thru(ctx, s, "GET_UID", []byte{0x0B})
	if err != nil {
		return nil, err
	}
	if uid == nil {
		return lostDuring(s, "GET_UID")
	}
	if len(uid) != 8 {
		return nil, errorf(KindProtocol, "GET_UID", "UID of %d bytes", len(uid))
	}
	return decodeManual(d, s, uid)
}

// selectISO14443B2CT selects an ASK CTx tag: REQT, then the two UID halves.
func selectISO14443B2CT(ctx context.Context, d *Device, s *selection) ([]Target, error) {
	if err := d.prepareManualB(ctx, true); err != nil {
		return nil, err
	}
	codes, err := d.thru(ctx, s, "REQT", []byte{0x10})
	if err != nil || codes == nil {
		return nil, err
	}
	if len(codes) != 2 {
		return nil, errorf(KindProtocol, "REQT", "%d code bytes", len(codes))
	}
	msb, err := d.thru(ctx, s, "READ UID MSB", []byte{0xC4})
	if err != nil {
		return nil, err
	}
	if msb == nil {
		return lostDuring(s, "READ UID MSB")
	}
	lsb, err := d.thru(ctx, s, "READ UID LSB", []byte{0xC5})
	if err != nil {
		return nil, err
	}
	if lsb == nil {
		return lostDuring(s, "READ UID LSB")
	}
	if len(msb) != 2 || len(lsb) != 2 {
		return nil, errorf(KindProtocol, "READ", "UID halves of %d and %d bytes", len(msb), len(lsb))
	}
	raw := make([]byte, 0, 6)
	raw = append(raw, lsb...)
	raw = append(raw, codes...)
	raw = append(raw, msb...)
	return decodeManual(d, s, raw)
}

// selectISO14443BiClass selects a Picopass/iCLASS card: ACTALL,
// IDENTIFY, SELECT.
func selectISO14443BiClass(ctx context.Context, d *Device, s *selection) ([]Target, error) {
	if err := d.prepareManualB(ctx, false); err != nil {
		return nil, err
	}
	if sof, err := d.thru(ctx, s, "ACTALL", []byte{0x0A}); err != nil || sof == nil {
		return nil, err
	}
	serial, err := d.thru(ctx, s, "IDENTIFY", []byte{0x0C})
	if err != nil {
		return nil, err
	}
	if serial == nil {
		return lostDuring(s, "IDENTIFY")
	}
	if len(serial) < 8 {
		return nil, errorf(KindProtocol, "IDENTIFY", "anticollision serial of %d bytes", len(serial))
	}
	var sel [9]byte
	sel[0] = 0x81
	copy(sel[1:], serial[:8])
	csn, err := d.thru(ctx, s, "SELECT", sel[:])
	if err != nil {
		return nil, err
	}
	if csn == nil {
		return lostDuring(s, "SELECT")
	}
	if len(csn) < 8 {
		return nil, errorf(KindProtocol, "SELECT", "CSN of %d bytes", len(csn))
	}
	return decodeManual(d, s, csn[:8])
}
