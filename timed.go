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
	"math"
	"math/bits"

	"github.com/ZaparooProject/go-pn53x/pkg/iso14443"
)

// CyclesSaturated is reported when the CIU timer ran out before the target
// answered.
const CyclesSaturated uint32 = math.MaxUint32

const maxTimerPrescaler = 0x0FFF

// TransceiveBytesTimed sends tx to the target by driving the CIU directly
// and reports, in 13.56 MHz carrier cycles, how long the target took to
// start answering. maxCycles sizes the timer: 0 keeps full precision and
// counts up to 65535 cycles (about 4.8 ms); larger values trade precision
// for range.
//
// EasyFraming must be off and HandleParity on. While the timer runs only
// register commands reach the chip.
func (d *Device) TransceiveBytesTimed(ctx context.Context, tx []byte, maxCycles uint32) ([]byte, uint32, error) {
	defer d.begin()()
	const op = "TransceiveBytesTimed"
	if err := d.checkTimed(op, len(tx), false); err != nil {
		return nil, 0, err
	}
	// The timer stops on the last bit sent, which is the CRC when the chip
	// appends one.
	last := tx[len(tx)-1]
	if d.chip.bools[HandleCRC] {
		vals, err := d.readRegisters(ctx, regCIUTxMode)
		if err != nil {
			return nil, 0, err
		}
		var framed []byte
		if vals[0]&symFraming == framingISO14443B {
			framed = iso14443.AppendCRCB(bytes.Clone(tx))
		} else {
			framed = iso14443.AppendCRCA(bytes.Clone(tx))
		}
		last = framed[len(framed)-1]
	}

	if err := d.startTimer(ctx, maxCycles); err != nil {
		return nil, 0, err
	}
	if err := d.fifoTransceive(ctx, tx, 0); err != nil {
		return nil, 0, err
	}
	rx, _, err := d.fifoCollect(ctx, op)
	if err != nil {
		return nil, 0, err
	}
	cycles, err := d.timerCycles(ctx, last)
	if err != nil {
		return nil, 0, err
	}
	return rx, cycles, nil
}

// TransceiveBitsTimed is TransceiveBytesTimed for raw bit frames. HandleCRC
// must be off as well, and parity is always left to the chip.
func (d *Device) TransceiveBitsTimed(ctx context.Context, tx BitFrame, maxCycles uint32) (BitFrame, uint32, error) {
	defer d.begin()()
	const op = "TransceiveBitsTimed"
	if err := tx.validate(op, false); err != nil {
		return BitFrame{}, 0, err
	}
	n := (tx.Bits + 7) / 8
	if err := d.checkTimed(op, n, true); err != nil {
		return BitFrame{}, 0, err
	}

	if err := d.startTimer(ctx, maxCycles); err != nil {
		return BitFrame{}, 0, err
	}
	if err := d.fifoTransceive(ctx, tx.Data[:n], byte(tx.Bits%8)); err != nil {
		return BitFrame{}, 0, err
	}
	rx, lastBits, err := d.fifoCollect(ctx, op)
	if err != nil {
		return BitFrame{}, 0, err
	}
	cycles, err := d.timerCycles(ctx, tx.Data[n-1])
	if err != nil {
		return BitFrame{}, 0, err
	}
	return BitFrame{Data: rx, Bits: rxBitCount(len(rx), lastBits)}, cycles, nil
}

func (d *Device) checkTimed(op string, n int, noCRC bool) error {
	switch {
	case n == 0 || n > ciuFIFOSize:
		return errorf(KindInvalidArgument, op, "%d bytes, want 1-%d", n, ciuFIFOSize)
	case !d.chip.bools[HandleParity]:
		return errorf(KindInvalidArgument, op, "parity must be handled by the chip")
	case d.chip.bools[EasyFraming]:
		return errorf(KindInvalidArgument, op, "easy framing is on")
	case noCRC && d.chip.bools[HandleCRC]:
		return errorf(KindInvalidArgument, op, "CRC must be handled by the caller")
	}
	return nil
}

// startTimer loads the CIU timer so it counts down from 0xFFFF with the
// smallest prescaler that covers maxCycles.
func (d *Device) startTimer(ctx context.Context, maxCycles uint32) error {
	var prescaler uint32
	if maxCycles > 0xFFFF {
		prescaler = min((maxCycles/0xFFFF-1)/2, maxTimerPrescaler)
	}
	d.chip.timerPrescaler = uint16(prescaler)
	if err := d.writeRegisterMasked(ctx, regCIUTMode, symTPrescalerHi, byte(prescaler>>8)); err != nil {
		return err
	}
	return d.writeRegisters(ctx,
		registerWrite{addr: regCIUTPrescaler, value: byte(prescaler)},
		registerWrite{addr: regCIUTReloadHi, value: 0xFF},
		registerWrite{addr: regCIUTReloadLo, value: 0xFF},
	)
}

// fifoTransceive loads data into the FIFO and starts a Transceive with
// lastBits valid bits in the final byte.
func (d *Device) fifoTransceive(ctx context.Context, data []byte, lastBits byte) error {
	writes := make([]registerWrite, 0, len(data)+4)
	writes = append(writes,
		registerWrite{addr: regCIUCommand, value: ciuCommandIdle},
		registerWrite{addr: regCIUFIFOLevel, value: symFlushBuffer},
	)
	for _, b := range data {
		writes = append(writes, registerWrite{addr: regCIUFIFOData, value: b})
	}
	writes = append(writes,
		registerWrite{addr: regCIUCommand, value: ciuCommandTransceive},
		registerWrite{addr: regCIUBitFraming, value: symStartSend | lastBits&symTxLastBits},
	)
	err := d.writeRegisters(ctx, writes...)
	// StartSend clears itself; reread BitFraming before the next masked write.
	delete(d.chip.registers, regCIUBitFraming)
	if err != nil {
		return err
	}
	d.chip.txBits = lastBits & symTxLastBits
	return nil
}

// fifoCollect waits a bounded number of polls for the answer to reach the
// FIFO, then drains it. It also returns the valid bit count of the last
// byte.
func (d *Device) fifoCollect(ctx context.Context, op string) ([]byte, byte, error) {
	var level byte
	polls := 3 * (int(d.chip.timerPrescaler)*2 + 1)
	for range polls {
		vals, err := d.readRegisters(ctx, regCIUFIFOLevel)
		if err != nil {
			return nil, 0, err
		}
		if level = vals[0] & symFIFOLevel; level > 0 {
			break
		}
	}
	if level == 0 {
		return nil, 0, errorf(KindTimeout, op, "no answer in the FIFO")
	}

	var rx []byte
	var control byte
	for level > 0 {
		addrs := make([]uint16, 0, int(level)+2)
		for range level {
			addrs = append(addrs, regCIUFIFOData)
		}
		addrs = append(addrs, regCIUFIFOLevel, regCIUControl)
		vals, err := d.readRegisters(ctx, addrs...)
		if err != nil {
			return nil, 0, err
		}
		rx = append(rx, vals[:level]...)
		control = vals[level+1]
		level = vals[level] & symFIFOLevel
	}
	return rx, control & symRxLastBits, nil
}

// timerCycles converts the CIU timer into carrier cycles between the end
// of the frame sent and the start of the answer. last is the final byte
// on air; its parity bit shifts the end of the frame.
func (d *Device) timerCycles(ctx context.Context, last byte) (uint32, error) {
	vals, err := d.readRegisters(ctx, regCIUTCounterHi, regCIUTCounterLo)
	if err != nil {
		return 0, err
	}
	counter := uint16(vals[0])<<8 | uint16(vals[1])
	if counter == 0 {
		return CyclesSaturated, nil
	}
	cycles := uint32(0xFFFF-counter)*(uint32(d.chip.timerPrescaler)*2+1) + 1
	// The timer stops once a few bits of the answer are in: two on PN531,
	// five on later chips.
	detect := uint32(5 * 128)
	if d.chip.Type == ChipPN531 {
		detect = 2 * 128
	}
	cycles -= min(cycles, detect)
	// A last parity bit of 1 ends the frame 64 cycles early.
	if bits.OnesCount8(last)%2 == 0 {
		cycles += 64
	}
	return cycles + d.config.TimerCorrection, nil
}
