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
	"time"
)

// BitFrame is a raw ISO14443A frame whose last byte may be partial. Bits
// counts the valid bits of Data, least significant bit first. Parity holds
// one parity bit per byte in bit 0; it is only sent and returned while
// HandleParity is off.
type BitFrame struct {
	Data   []byte
	Parity []byte
	Bits   int
}

func (f BitFrame) validate(op string, manualParity bool) error {
	if f.Bits <= 0 || f.Bits > len(f.Data)*8 {
		return errorf(KindInvalidArgument, op, "%d bits in %d bytes", f.Bits, len(f.Data))
	}
	if manualParity && f.Bits > 8 && len(f.Parity) < f.Bits/8 {
		return errorf(KindInvalidArgument, op, "%d parity bits for %d bits", len(f.Parity), f.Bits)
	}
	return nil
}

// wrapParity interleaves a parity bit after every full data byte. Frames
// of one byte or less go out unchanged.
func wrapParity(data []byte, bits int, parity []byte) ([]byte, int) {
	if bits <= 8 {
		return bytes.Clone(data[:1]), bits
	}
	n := bits + bits/8
	out := make([]byte, (n+7)/8)
	pos := 0
	put := func(b byte) {
		out[pos/8] |= (b & 1) << (pos % 8)
		pos++
	}
	for i := range bits {
		put(data[i/8] >> (i % 8))
		if i%8 == 7 {
			put(parity[i/8])
		}
	}
	return out, n
}

// unwrapParity strips the parity bits wrapParity adds, returning the data,
// its bit count and one parity bit per data byte.
func unwrapParity(frame []byte, bits int) ([]byte, int, []byte) {
	if bits <= 8 {
		return bytes.Clone(frame[:1]), bits, nil
	}
	withParity := bits / 9
	n := bits - withParity
	data := make([]byte, (n+7)/8)
	parity := make([]byte, len(data))
	pos := 0
	get := func() byte {
		b := frame[pos/8] >> (pos % 8) & 1
		pos++
		return b
	}
	for i := range n {
		data[i/8] |= get() << (i % 8)
		if i%8 == 7 && i/8 < withParity {
			parity[i/8] = get()
		}
	}
	return data, n, parity
}

// setTxBits sets how many bits of the last byte the CIU sends; 0 sends
// it whole.
func (d *Device) setTxBits(ctx context.Context, bits byte) error {
	if d.chip.txBits == bits {
		return nil
	}
	if err := d.writeRegisterMasked(ctx, regCIUBitFraming, symTxLastBits, bits); err != nil {
		return err
	}
	d.chip.txBits = bits
	return nil
}

// prepareBits turns tx into the bytes handed to the chip and programs the
// last byte's bit count.
func (d *Device) prepareBits(ctx context.Context, op string, tx BitFrame) ([]byte, error) {
	manual := !d.chip.bools[HandleParity]
	if err := tx.validate(op, manual); err != nil {
		return nil, err
	}
	data, bits := tx.Data[:(tx.Bits+7)/8], tx.Bits
	if manual {
		data, bits = wrapParity(tx.Data, tx.Bits, tx.Parity)
	}
	if err := d.setTxBits(ctx, byte(bits%8)); err != nil {
		return nil, err
	}
	return data, nil
}

// receivedBits completes a reply of raw bytes with the bit count the CIU
// latched for its last byte, and strips parity when it is ours to handle.
func (d *Device) receivedBits(ctx context.Context, raw []byte) (BitFrame, error) {
	if len(raw) == 0 {
		return BitFrame{}, nil
	}
	vals, err := d.readRegisters(ctx, regCIUControl)
	if err != nil {
		return BitFrame{}, err
	}
	bits := rxBitCount(len(raw), vals[0]&symRxLastBits)
	if d.chip.bools[HandleParity] {
		return BitFrame{Data: raw, Bits: bits}, nil
	}
	data, n, parity := unwrapParity(raw, bits)
	return BitFrame{Data: data, Bits: n, Parity: parity}, nil
}

// rxBitCount is the length in bits of n received bytes whose last byte
// holds lastBits valid bits (0 for a full byte).
func rxBitCount(n int, lastBits byte) int {
	if n == 0 {
		return 0
	}
	if lastBits == 0 {
		return n * 8
	}
	return (n-1)*8 + int(lastBits)
}

// TransceiveBits sends a raw bit frame to the target and returns its
// answer. Only the modulation is left to the chip: with HandleParity off
// the caller supplies every parity bit, and HandleCRC should usually be off
// too. A chip timeout is returned as a Timeout error.
func (d *Device) TransceiveBits(ctx context.Context, tx BitFrame, timeout time.Duration) (BitFrame, error) {
	defer d.begin()()
	const op = "TransceiveBits"
	if d.chip.bools[EasyFraming] {
		return BitFrame{}, errorf(KindInvalidArgument, op, "easy framing is on")
	}
	data, err := d.prepareBits(ctx, op, tx)
	if err != nil {
		return BitFrame{}, err
	}
	f, err := buildInCommunicateThru(data)
	if err != nil {
		return BitFrame{}, err
	}
	rx, err := d.exchange(ctx, f, timeout)
	if err != nil {
		return BitFrame{}, err
	}
	return d.receivedBits(ctx, rx)
}

// TargetSendBits answers the initiator with a raw bit frame while the
// device is in target mode.
func (d *Device) TargetSendBits(ctx context.Context, tx BitFrame, timeout time.Duration) error {
	defer d.begin()()
	const op = "TargetSendBits"
	if err := d.requireTarget(op); err != nil {
		return err
	}
	data, err := d.prepareBits(ctx, op, tx)
	if err != nil {
		return err
	}
	f, err := buildTgResponseToInitiator(data)
	if err != nil {
		return err
	}
	_, err = d.exchange(ctx, f, timeout)
	return err
}

// TargetReceiveBits returns the next raw frame from the initiator as it
// sits in the CIU FIFO, without framing checks.
func (d *Device) TargetReceiveBits(ctx context.Context, timeout time.Duration) (BitFrame, error) {
	defer d.begin()()
	if err := d.requireTarget("TargetReceiveBits"); err != nil {
		return BitFrame{}, err
	}
	rx, err := d.exchange(ctx, buildTgGetInitiatorCommand(), timeout)
	if err != nil {
		return BitFrame{}, err
	}
	return d.receivedBits(ctx, rx)
}
