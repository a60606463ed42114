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

// TargetFlags adjust target-mode emulation.
type TargetFlags uint8

const (
	// TargetAutoATRRes lets the chip answer ATR_REQ on its own (DEP).
	TargetAutoATRRes TargetFlags = 1 << iota
	// TargetPICC14443_4 emulates an ISO14443-4 PICC (ISO14443A).
	TargetPICC14443_4
)

// allowedFlags lists the flags each emulated kind accepts.
var allowedFlags = map[ModulationType]TargetFlags{
	ISO14443A: TargetPICC14443_4,
	FeliCa:    0,
	DEP:       TargetAutoATRRes,
}

// TargetModeConfig is the TgInitAsTarget parameter set. Build it with
// SetupTargetMode and adjust fields before calling InitAsTarget.
type TargetModeConfig struct {
	UID          []byte
	GeneralBytes []byte
	Historical   []byte
	Kind         ModulationType
	NFCID3       [10]byte
	NFCID2       [8]byte
	PAD          [8]byte
	NFCID1       [3]byte
	SensRes      [2]byte
	SystemCode   [2]byte
	SelRes       byte
	Flags        TargetFlags
}

func (c *TargetModeConfig) modeByte() byte {
	switch {
	case c.Kind == DEP:
		return tgModeDEPOnly
	case c.Flags&TargetPICC14443_4 != 0:
		return tgModePICCOnly
	default:
		return tgModePassiveOnly
	}
}

// parameters returns the SetParameters bits the configuration needs on
// top of base.
func (c *TargetModeConfig) parameters(base byte) byte {
	p := base &^ (paramAutoATRRes | paramISO14443_4)
	if c.Flags&TargetAutoATRRes != 0 {
		p |= paramAutoATRRes
	}
	if c.Flags&TargetPICC14443_4 != 0 {
		p |= paramISO14443_4
	}
	return p
}

// SetupTargetMode builds a target-mode configuration emulating kind with
// the given identifier: a 4 or 7 byte UID for ISO14443A, an 8 byte IDm
// for FeliCa, a 10 byte NFCID3 for DEP.
//
// The chip only emulates single size ISO14443A UIDs and always answers
// with 0x08 as the first byte. Only uid[1:4] reaches it: a 7 byte UID
// sets the double size bit in SENS_RES but bytes 4 to 6 are dropped, and
// cfg.UID keeps the full value for the caller's reference.
func SetupTargetMode(kind ModulationType, uid []byte, flags TargetFlags) (TargetModeConfig, error) {
	const op = "SetupTargetMode"
	allowed, ok := allowedFlags[kind]
	if !ok {
		return TargetModeConfig{}, fmt.Errorf("%s: %w: %s", op, ErrUnsupportedTargetKind, kind)
	}
	if flags&^allowed != 0 {
		return TargetModeConfig{}, errorf(KindInvalidArgument, op, "flags 0x%02X not valid for %s", byte(flags), kind)
	}
	cfg := TargetModeConfig{
		Kind:       kind,
		UID:        append([]byte(nil), uid...),
		Flags:      flags,
		SystemCode: [2]byte{0xFF, 0xFF},
	}

	switch kind {
	case ISO14443A:
		// SENS_RES goes out low byte first: ATQA 00 04 is written 04 00.
		switch len(uid) {
		case 4:
			cfg.SensRes = [2]byte{0x04, 0x00}
		case 7:
			cfg.SensRes = [2]byte{0x44, 0x00}
		default:
			return TargetModeConfig{}, errorf(KindInvalidArgument, op, "ISO14443A UID of %d bytes", len(uid))
		}
		// The chip forces the first UID byte to 0x08.
		copy(cfg.NFCID1[:], uid[1:4])
		if uid[0] != 0x08 || len(uid) > 4 {
			Debugf("%s: chip will present UID 08 % X, not % X", op, cfg.NFCID1[:], uid)
		}
		if flags&TargetPICC14443_4 != 0 {
			cfg.SelRes = 0x20
		}
	case FeliCa:
		if len(uid) != 8 {
			return TargetModeConfig{}, errorf(KindInvalidArgument, op, "FeliCa IDm of %d bytes", len(uid))
		}
		copy(cfg.NFCID2[:], uid)
	case DEP:
		if len(uid) != 10 {
			return TargetModeConfig{}, errorf(KindInvalidArgument, op, "NFCID3 of %d bytes", len(uid))
		}
		copy(cfg.NFCID3[:], uid)
		cfg.SensRes = [2]byte{0x04, 0x00}
		cfg.SelRes = 0x40
		copy(cfg.NFCID1[:], uid[:3])
		cfg.NFCID2 = [8]byte{0x01, 0xFE}
		copy(cfg.NFCID2[2:], uid[:6])
	}
	return cfg, nil
}

// InitAsTarget configures the chip as a target and waits for an external
// initiator to activate it. timeout may be NoTimeout.
func (d *Device) InitAsTarget(
	ctx context.Context, cfg *TargetModeConfig, timeout time.Duration,
) (*ActivationDescriptor, error) {
	defer d.begin()()
	const op = "InitAsTarget"
	if cfg == nil {
		return nil, errorf(KindInvalidArgument, op, "nil configuration")
	}
	if len(cfg.GeneralBytes) > maxGeneralBytes || len(cfg.Historical) > maxHistorical {
		return nil, errorf(KindInvalidArgument, op, "%d general bytes, %d historical bytes",
			len(cfg.GeneralBytes), len(cfg.Historical))
	}
	if hasCapability(d.transport, CapabilityNoTargetMode) {
		return nil, errorf(KindUnsupported, op, "%s transport cannot run target mode", d.transport.Type())
	}
	if _, err := d.chip.BaudRates(ModeTarget, cfg.Kind); err != nil {
		return nil, err
	}

	steps := []struct {
		p Property
		v bool
	}{
		{AcceptInvalidFrames, false},
		{AcceptMultipleFrames, false},
		{HandleCRC, true},
		{HandleParity, true},
		{AutoISO14443_4, true},
		{EasyFraming, true},
		{ActivateCrypto1, false},
		{ActivateField, false},
	}
	for _, s := range steps {
		if err := d.SetPropertyBool(ctx, s.p, s.v); err != nil {
			return nil, err
		}
	}
	if err := d.setParameters(ctx, cfg.parameters(d.chip.params)); err != nil {
		return nil, err
	}

	f, err := buildTgInitAsTarget(cfg, d.chip.Type)
	if err != nil {
		return nil, err
	}
	d.current = nil
	data, err := d.transceive(ctx, f, timeout)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errorf(KindProtocol, op, "missing activation mode")
	}
	act, err := DecodeActivationMode(data[0])
	if err != nil {
		return nil, err
	}
	act.InitiatorCommand = append([]byte(nil), data[1:]...)
	d.chip.mode = ModeTarget
	Debugf("%s: activated as %s (DEP %v, PICC %v)", op, act.Modulation, act.DEP, act.PICC)
	return &act, nil
}

func (d *Device) requireTarget(op string) error {
	if d.chip.mode != ModeTarget {
		return errorf(KindInvalidArgument, op, "device is not in target mode")
	}
	return nil
}

// TargetReceiveBytes returns the next frame sent by the initiator.
func (d *Device) TargetReceiveBytes(ctx context.Context, timeout time.Duration) ([]byte, error) {
	defer d.begin()()
	if err := d.requireTarget("TargetReceiveBytes"); err != nil {
		return nil, err
	}
	return d.exchange(ctx, buildTgGetData(), timeout)
}

// TargetSendBytes answers the initiator.
func (d *Device) TargetSendBytes(ctx context.Context, tx []byte, timeout time.Duration) error {
	defer d.begin()()
	if err := d.requireTarget("TargetSendBytes"); err != nil {
		return err
	}
	f, err := buildTgSetData(tx)
	if err != nil {
		return err
	}
	_, err = d.exchange(ctx, f, timeout)
	return err
}
