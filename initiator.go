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
	"errors"
	"time"
)

const (
	// depPollPeriod is the length of one InJumpForDEP attempt while polling.
	depPollPeriod = 300 * time.Millisecond
	// autoPollUnit is the InAutoPoll period unit.
	autoPollUnit = 150 * time.Millisecond
	// PollForever asks PollTarget to poll until a target shows up.
	PollForever byte = 0xFF
)

// singleShot lists the families that ignore InDeselect, so listing them
// stops after the first target.
var singleShot = map[ModulationType]bool{
	FeliCa:       true,
	Jewel:        true,
	Barcode:      true,
	ISO14443BI:   true,
	ISO14443B2SR: true,
	ISO14443B2CT: true,
}

// withInfiniteSelect runs fn with InfiniteSelect set to v and restores the
// previous setting afterwards.
func (d *Device) withInfiniteSelect(ctx context.Context, v bool, fn func() error) error {
	prev := d.chip.bools[InfiniteSelect]
	if err := d.SetPropertyBool(ctx, InfiniteSelect, v); err != nil {
		return err
	}
	err := fn()
	if prev != v {
		if rerr := d.SetPropertyBool(ctx, InfiniteSelect, prev); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// ListPassiveTargets selects and deselects targets of modulation m until
// maxTargets distinct targets were found or nothing new answers.
func (d *Device) ListPassiveTargets(ctx context.Context, m Modulation, maxTargets int) ([]Target, error) {
	defer d.begin()()
	if maxTargets < 1 {
		return nil, errorf(KindInvalidArgument, "ListPassiveTargets", "max targets %d", maxTargets)
	}
	if err := d.chip.Supports(ModeInitiator, m); err != nil {
		return nil, err
	}
	var found []Target
	err := d.withInfiniteSelect(ctx, false, func() error {
		for len(found) < maxTargets {
			targets, err := d.SelectPassiveTarget(ctx, m, 1, nil, 0)
			if errors.Is(err, ErrTimeout) {
				return nil
			}
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				return nil
			}
			t := targets[0]
			for i := range found {
				if sameTarget(&found[i], &t) {
					Debugf("list %s: target seen twice, stopping", m)
					return nil
				}
			}
			found = append(found, t)
			if len(found) == maxTargets {
				return nil
			}
			if err := d.Deselect(ctx); err != nil {
				return err
			}
			if singleShot[m.Type] {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Deselect deselects the current target, keeping it in the chip's list.
func (d *Device) Deselect(ctx context.Context) error {
	defer d.begin()()
	f := buildInDeselect(0)
	if d.chip.Type == ChipRCS360 {
		f = buildInRelease(0)
	}
	d.current = nil
	_, err := d.exchange(ctx, f, 0)
	return err
}

// Current returns the selected target, nil when none is.
func (d *Device) Current() *Target {
	return d.current
}

var errTargetReleased = errors.New("target released")

// TargetIsPresent checks that t (or the current target when t is nil) is
// still in the field. A target that left, or is not the selected one,
// yields a Protocol error wrapping "target released".
func (d *Device) TargetIsPresent(ctx context.Context, t *Target) error {
	defer d.begin()()
	const op = "TargetIsPresent"
	if d.current == nil || (t != nil && !sameTarget(d.current, t)) {
		return newError(KindProtocol, op, errTargetReleased)
	}
	cur := *d.current
	if d.chip.Type != ChipPN531 && attentionCapable(&cur) {
		data, err := d.transceive(ctx, Frame{cmdDiagnose, 0x06}, 0)
		if err != nil {
			return err
		}
		if len(data) != 1 || data[0] != 0x00 {
			d.current = nil
			return newError(KindProtocol, op, errTargetReleased)
		}
		return nil
	}

	var uid []byte
	if a, ok := cur.Info.(*ISO14443AInfo); ok {
		uid = a.UID
	}
	var targets []Target
	err := d.withInfiniteSelect(ctx, false, func() error {
		var err error
		targets, err = d.SelectPassiveTarget(ctx, cur.Modulation, 1, uid, 0)
		return err
	})
	if err != nil && !errors.Is(err, ErrTimeout) {
		return err
	}
	if len(targets) == 0 || !sameTarget(&cur, &targets[0]) {
		d.current = nil
		return newError(KindProtocol, op, errTargetReleased)
	}
	return nil
}

// attentionCapable reports whether the chip's attention test (Diagnose)
// can probe t: ISO14443-4 cards and DEP peers.
func attentionCapable(t *Target) bool {
	switch info := t.Info.(type) {
	case *ISO14443AInfo:
		return info.SAK&0x20 != 0
	case *ISO14443BInfo, *DEPInfo:
		return true
	}
	return false
}

// JumpForDEP activates a DEP peer in the given mode and baud rate,
// offering generalBytes in ATR_REQ.
func (d *Device) JumpForDEP(
	ctx context.Context, mode DEPMode, baud BaudRate, generalBytes []byte, timeout time.Duration,
) (*Target, error) {
	defer d.begin()()
	const op = "JumpForDEP"
	if mode != DEPPassive && mode != DEPActive {
		return nil, errorf(KindInvalidArgument, op, "DEP mode %s", mode)
	}
	if len(generalBytes) > maxGeneralBytes {
		return nil, errorf(KindInvalidArgument, op, "%d general bytes, at most %d allowed",
			len(generalBytes), maxGeneralBytes)
	}
	m := Modulation{Type: DEP, BaudRate: baud}
	if err := d.chip.Supports(ModeInitiator, m); err != nil {
		return nil, err
	}
	if len(generalBytes) == 0 {
		Debugf("%s: no general bytes", op)
	}
	var passive []byte
	if mode == DEPPassive && baud != Baud106 {
		passive = depPassiveInitiatorData
	}
	f, err := buildJumpForDEP(mode, baud, passive, nil, generalBytes)
	if err != nil {
		return nil, err
	}
	data, err := d.exchange(ctx, f, timeout)
	if err != nil {
		return nil, err
	}
	r := newReader(op, data)
	tg, err := r.byte()
	if err != nil {
		return nil, err
	}
	info, err := decodeDEP(r, d.chip.Type)
	if err != nil {
		return nil, err
	}
	dep, _ := info.(*DEPInfo)
	dep.Mode = mode
	t := &Target{Info: dep, Modulation: m, Number: tg}
	d.chip.mode = ModeInitiator
	d.current = t
	return t, nil
}

// PollDEPTarget repeats JumpForDEP in short periods until a peer answers
// or timeout elapses. It returns (nil, nil) when nobody answered.
func (d *Device) PollDEPTarget(
	ctx context.Context, mode DEPMode, baud BaudRate, generalBytes []byte, timeout time.Duration,
) (*Target, error) {
	defer d.begin()()
	attempts := int(timeout / depPollPeriod)
	if attempts < 1 {
		attempts = 1
	}
	cfg := &RetryConfig{
		MaxAttempts: attempts,
		Retryable:   func(err error) bool { return errors.Is(err, ErrTimeout) },
	}

	var t *Target
	err := d.withInfiniteSelect(ctx, true, func() error {
		return RetryWithConfig(ctx, cfg, func() error {
			var err error
			t, err = d.JumpForDEP(ctx, mode, baud, generalBytes, depPollPeriod)
			return err
		})
	})
	if errors.Is(err, ErrTimeout) {
		return nil, nil
	}
	return t, err
}

// pollType maps a modulation to its InAutoPoll target type.
func pollType(m Modulation) (byte, bool) {
	switch {
	case m.Type == ISO14443A && m.BaudRate == Baud106:
		return pttGeneric106, true
	case m.Type == FeliCa && m.BaudRate == Baud212:
		return pttFeliCa212, true
	case m.Type == FeliCa && m.BaudRate == Baud424:
		return pttFeliCa424, true
	case m.Type == ISO14443B && m.BaudRate == Baud106:
		return pttISO14443B106, true
	case m.Type == Jewel && m.BaudRate == Baud106:
		return pttJewel106, true
	case m.Type == DEP && m.BaudRate == Baud106:
		return pttDEPPassive106, true
	case m.Type == DEP && m.BaudRate == Baud212:
		return pttDEPPassive212, true
	case m.Type == DEP && m.BaudRate == Baud424:
		return pttDEPPassive424, true
	}
	return 0, false
}

// pollModulation maps an InAutoPoll target type back to a modulation.
func pollModulation(ptt byte) (Modulation, bool) {
	switch ptt {
	case pttGeneric106, pttMifare, pttISO14443A4106:
		return Modulation{Type: ISO14443A, BaudRate: Baud106}, true
	case pttFeliCa212, pttGeneric212:
		return Modulation{Type: FeliCa, BaudRate: Baud212}, true
	case pttFeliCa424, pttGeneric424:
		return Modulation{Type: FeliCa, BaudRate: Baud424}, true
	case pttISO14443B106, pttISO14443B4106:
		return Modulation{Type: ISO14443B, BaudRate: Baud106}, true
	case pttJewel106:
		return Modulation{Type: Jewel, BaudRate: Baud106}, true
	case pttDEPPassive106, pttDEPActive106:
		return Modulation{Type: DEP, BaudRate: Baud106}, true
	case pttDEPPassive212, pttDEPActive212:
		return Modulation{Type: DEP, BaudRate: Baud212}, true
	case pttDEPPassive424, pttDEPActive424:
		return Modulation{Type: DEP, BaudRate: Baud424}, true
	}
	return Modulation{}, false
}

// PollTarget polls for any of mods, pollNr rounds (PollForever for no
// limit) of period x 150 ms per modulation. PN532 does this on chip with
// InAutoPoll; other chips loop SelectPassiveTarget. It returns (nil, nil)
// when nothing answered.
func (d *Device) PollTarget(ctx context.Context, mods []Modulation, pollNr, period byte) (*Target, error) {
	defer d.begin()()
	const op = "PollTarget"
	if len(mods) == 0 || len(mods) > 15 {
		return nil, errorf(KindInvalidArgument, op, "%d modulations, want 1-15", len(mods))
	}
	if pollNr == 0 || period < 1 || period > 15 {
		return nil, errorf(KindInvalidArgument, op, "poll count %d, period %d", pollNr, period)
	}
	for _, m := range mods {
		if err := d.chip.Supports(ModeInitiator, m); err != nil {
			return nil, err
		}
	}
	if d.chip.Type == ChipPN532 {
		return d.autoPoll(ctx, mods, pollNr, period)
	}

	var hit *Target
	err := d.withInfiniteSelect(ctx, false, func() error {
		window := time.Duration(period) * autoPollUnit
		for round := 0; pollNr == PollForever || round < int(pollNr); round++ {
			for _, m := range mods {
				targets, err := d.SelectPassiveTarget(ctx, m, 1, nil, window)
				if errors.Is(err, ErrTimeout) {
					continue
				}
				if err != nil {
					return err
				}
				if len(targets) > 0 {
					hit = &targets[0]
					return nil
				}
			}
		}
		return nil
	})
	return hit, err
}

func (d *Device) autoPoll(ctx context.Context, mods []Modulation, pollNr, period byte) (*Target, error) {
	const op = "InAutoPoll"
	types := make([]byte, 0, len(mods))
	for _, m := range mods {
		ptt, ok := pollType(m)
		if !ok {
			return nil, errorf(KindUnsupported, op, "%s cannot be auto-polled", m)
		}
		types = append(types, ptt)
	}
	f, err := buildInAutoPoll(pollNr, period, types)
	if err != nil {
		return nil, err
	}
	timeout := NoTimeout
	if pollNr != PollForever {
		timeout = time.Duration(pollNr)*time.Duration(len(mods))*time.Duration(period)*autoPollUnit +
			d.chip.TimeoutCommand
	}
	data, err := d.transceive(ctx, f, timeout)
	if err != nil {
		return nil, err
	}

	r := newReader(op, data)
	nb, err := r.byte()
	if err != nil || nb == 0 {
		return nil, err
	}
	head, err := r.take(2) // type, length
	if err != nil {
		return nil, err
	}
	body, err := r.take(int(head[1]))
	if err != nil {
		return nil, err
	}
	m, ok := pollModulation(head[0])
	if !ok {
		return nil, errorf(KindProtocol, op, "unknown target type 0x%02X", head[0])
	}
	if len(body) == 0 {
		return nil, errorf(KindProtocol, op, "empty target data")
	}
	info, _, err := ParseTargetResponse(d.chip.Type, m, body[1:])
	if err != nil {
		return nil, err
	}
	if dep, ok := info.(*DEPInfo); ok {
		dep.Mode = DEPPassive
		if head[0]&0x80 != 0 {
			dep.Mode = DEPActive
		}
	}
	t := &Target{Info: info, Modulation: m, Number: body[0]}
	d.chip.mode = ModeInitiator
	d.current = t
	return t, nil
}
