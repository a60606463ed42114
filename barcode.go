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
	"time"

	"github.com/ZaparooProject/go-pn53x/pkg/iso14443"
)

const (
	barcodeBits = 128
	// barcodeWindow is how long the FIFO is watched when the caller gives
	// no timeout. Thinfilm tags repeat their frame while powered.
	barcodeWindow = 100 * time.Millisecond
)

// selectBarcode reads a Thinfilm NFC Barcode. The tag talks first once
// the field comes up, so there is nothing to send: the CIU is put in
// receive mode and the FIFO is drained by register reads.
func selectBarcode(ctx context.Context, d *Device, s *selection) ([]Target, error) {
	const op = "barcode"
	s.to(stateBuilding, op)
	steps := []struct {
		p Property
		v bool
	}{
		{ActivateField, false},
		{ForceISO14443A, true},
		{ForceSpeed106, true},
		{HandleCRC, false},
		{HandleParity, false},
	}
	for _, st := range steps {
		if err := d.SetPropertyBool(ctx, st.p, st.v); err != nil {
			return nil, err
		}
	}
	if err := d.writeRegisterMasked(ctx, regCIUTxAuto, symForce100ASK, 0x00); err != nil {
		return nil, err
	}
	if err := d.SetPropertyBool(ctx, ActivateField, true); err != nil {
		return nil, err
	}
	err := d.writeRegisters(ctx,
		registerWrite{addr: regCIUCommand, value: ciuCommandIdle},
		registerWrite{addr: regCIUFIFOLevel, value: symFlushBuffer},
		registerWrite{addr: regCIUCommand, value: ciuCommandReceive},
	)
	if err != nil {
		return nil, err
	}

	s.to(stateAwaitingResponse, op)
	frame, err := d.drainBarcodeFIFO(ctx, s.timeout)
	// Leave the CIU idle whatever happened.
	idleErr := d.writeRegisters(ctx, registerWrite{addr: regCIUCommand, value: ciuCommandIdle})
	if err != nil {
		return nil, err
	}
	if idleErr != nil {
		return nil, idleErr
	}
	if frame == nil {
		return nil, nil
	}

	s.to(stateDecoding, op)
	if !iso14443.CheckCRCA(frame) {
		return nil, errorf(KindProtocol, op, "CRC mismatch in % X", frame)
	}
	return decodeManual(d, s, frame)
}

// drainBarcodeFIFO waits for a full barcode frame in the CIU FIFO and
// returns it, or nil when the window closes without one. AbortCommand
// ends the wait within one poll interval.
func (d *Device) drainBarcodeFIFO(ctx context.Context, timeout time.Duration) ([]byte, error) {
	const op = "barcode"
	if timeout <= 0 {
		timeout = barcodeWindow
	}
	deadline := time.Now().Add(timeout)
	need := barcodeBits / 8
	for {
		lvl, err := d.readRegisters(ctx, regCIUFIFOLevel)
		if err != nil {
			return nil, err
		}
		if int(lvl[0]&symFIFOLevel) >= need {
			break
		}
		if time.Now().After(deadline) {
			Debugf("barcode: %d bytes in FIFO when the window closed", lvl[0]&symFIFOLevel)
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, contextError(op, ctx.Err())
		case <-time.After(d.config.PollInterval):
		}
		if d.aborted() {
			return nil, newError(KindAborted, op, nil)
		}
	}

	addrs := make([]uint16, need+1)
	for i := range need {
		addrs[i] = regCIUFIFOData
	}
	addrs[need] = regCIUControl
	vals, err := d.readRegisters(ctx, addrs...)
	if err != nil {
		return nil, err
	}
	frame := vals[:need]
	bits := len(frame) * 8
	if last := vals[need] & symRxLastBits; last != 0 {
		bits = (len(frame)-1)*8 + int(last)
	}
	if bits != barcodeBits {
		return nil, errorf(KindProtocol, op, "received %d bits, want %d", bits, barcodeBits)
	}
	return frame, nil
}
