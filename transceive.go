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
	"errors"
	"time"
)

// NoTimeout makes a transceive wait until data arrives or it is aborted.
const NoTimeout time.Duration = -1

const (
	defaultCommandTimeout = 1 * time.Second
	defaultPollInterval   = 10 * time.Millisecond
)

// transceive writes f and waits for the matching response. It returns the
// response data without the response code; the slice aliases the chip's
// receive buffer and is only valid until the next transceive.
//
// A zero timeout uses the chip's command timeout; NoTimeout waits until a
// response arrives, ctx is done or AbortCommand is called.
func (d *Device) transceive(ctx context.Context, f Frame, timeout time.Duration) ([]byte, error) {
	op := CommandName(f.Opcode())
	if len(f) == 0 {
		return nil, errorf(KindInvalidArgument, "transceive", "empty frame")
	}
	limit := maxNormalFrame
	if hasCapability(d.transport, CapabilityExtendedFrames) {
		limit = maxExtendedFrame
	}
	if len(f) > limit {
		return nil, errorf(KindInvalidArgument, op, "frame of %d bytes exceeds %d", len(f), limit)
	}

	if timeout == 0 {
		timeout = d.chip.TimeoutCommand
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	defer d.begin()()
	d.trace.Clear()
	if d.aborted() {
		return nil, d.trace.WrapError(newError(KindAborted, op, nil))
	}

	Debugf("TX %s: % X", op, []byte(f))
	d.trace.RecordTX(f, op)
	if _, err := d.transport.Write(f); err != nil {
		return nil, d.trace.WrapError(newError(KindIO, op, err))
	}
	if !keepsRegisters[f.Opcode()] {
		clear(d.chip.registers)
	}

	buf := d.chip.rxBuffer()
	for {
		if d.aborted() {
			d.cancelCommand()
			return nil, d.trace.WrapError(newError(KindAborted, op, nil))
		}
		select {
		case <-ctx.Done():
			d.cancelCommand()
			return nil, d.trace.WrapError(contextError(op, ctx.Err()))
		default:
		}

		wait := d.config.PollInterval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				d.cancelCommand()
				d.trace.RecordTimeout(op)
				return nil, d.trace.WrapError(errorf(KindTimeout, op, "no response within %s", timeout))
			}
			wait = min(wait, remaining)
		}

		n, err := d.transport.Read(buf, wait)
		if err != nil {
			return nil, d.trace.WrapError(newError(KindIO, op, err))
		}
		if n == 0 {
			continue
		}
		d.trace.RecordRX(buf[:n], op)
		Debugf("RX %s: % X", op, buf[:n])
		data, err := validateResponse(f.Opcode(), buf[:n])
		if err != nil {
			return nil, d.trace.WrapError(err)
		}
		return data, nil
	}
}

// begin marks the start of a public operation and returns its end. The
// outermost operation forgets aborts issued while the device was idle;
// nested operations and the commands they send keep a pending abort, so
// one that lands between two commands stops the next.
func (d *Device) begin() func() {
	if d.depth == 0 {
		d.abort.Store(false)
	}
	d.depth++
	return func() { d.depth-- }
}

// aborted consumes a pending abort.
func (d *Device) aborted() bool {
	return d.abort.CompareAndSwap(true, false)
}

// contextError maps a finished context to Timeout (deadline) or Aborted.
func contextError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, op, err)
	}
	return newError(KindAborted, op, err)
}

// keepsRegisters lists the commands that leave the CIU configuration alone,
// so cached register values stay valid across them.
var keepsRegisters = map[byte]bool{
	cmdGetFirmwareVersion: true,
	cmdGetGeneralStatus:   true,
	cmdReadRegister:       true,
	cmdWriteRegister:      true,
	cmdSetParameters:      true,
	cmdInDataExchange:     true,
	cmdInCommunicateThru:  true,
	cmdTgGetData:          true,
	cmdTgSetData:          true,
	cmdTgGetInitiatorCmd:  true,
	cmdTgResponseToInit:   true,
}

func validateResponse(cmd byte, resp []byte) ([]byte, error) {
	op := CommandName(cmd)
	switch {
	case len(resp) == 0:
		return nil, errorf(KindProtocol, op, "empty response")
	case resp[0] == responseError:
		return nil, errorf(KindProtocol, op, "chip returned an error frame")
	case resp[0] != cmd+1:
		return nil, errorf(KindProtocol, op, "response code 0x%02X, want 0x%02X", resp[0], cmd+1)
	}
	return resp[1:], nil
}

// cancelCommand asks the transport to stop the chip's current command.
func (d *Device) cancelCommand() {
	c, ok := d.transport.(CommandCanceller)
	if !ok {
		return
	}
	if err := c.CancelCommand(); err != nil {
		Debugf("cancel command: %v", err)
	}
}

// exchange runs a command whose response starts with a status byte and
// returns a copy of the data after it.
func (d *Device) exchange(ctx context.Context, f Frame, timeout time.Duration) ([]byte, error) {
	data, err := d.transceive(ctx, f, timeout)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errorf(KindProtocol, CommandName(f.Opcode()), "missing status byte")
	}
	d.chip.LastStatus = data[0]
	if status := data[0] & 0x3F; status != 0 {
		return nil, &ChipStatusError{Command: CommandName(f.Opcode()), Status: status}
	}
	return bytes.Clone(data[1:]), nil
}

// AbortCommand interrupts the command currently waiting for the chip. It
// may be called from any goroutine and is a no-op when nothing is running.
func (d *Device) AbortCommand() error {
	d.abort.Store(true)
	if err := d.transport.Abort(); err != nil {
		return newError(KindIO, "abort", err)
	}
	return nil
}

// TransceiveBytes sends tx to the selected target and returns its reply.
// With easy framing on the chip handles the ISO14443-4 / DEP exchange
// (InDataExchange); otherwise the bytes go out raw (InCommunicateThru).
func (d *Device) TransceiveBytes(ctx context.Context, tx []byte, timeout time.Duration) ([]byte, error) {
	defer d.begin()()
	if d.chip.bools[EasyFraming] {
		return d.dataExchange(ctx, tx, timeout)
	}
	f, err := buildInCommunicateThru(tx)
	if err != nil {
		return nil, err
	}
	if err := d.setTxBits(ctx, 0); err != nil {
		return nil, err
	}
	return d.exchange(ctx, f, timeout)
}

const statusMoreInformation = 0x40

func (d *Device) dataExchange(ctx context.Context, tx []byte, timeout time.Duration) ([]byte, error) {
	f, err := buildInDataExchange(d.targetNumber(), tx)
	if err != nil {
		return nil, err
	}
	rx, err := d.exchange(ctx, f, timeout)
	if err != nil {
		return nil, err
	}
	for d.chip.LastStatus&statusMoreInformation != 0 {
		data, err := d.exchange(ctx, buildInDataExchangeContinue(d.targetNumber()), timeout)
		if err != nil {
			return nil, err
		}
		rx = append(rx, data...)
	}
	return rx, nil
}

func buildInDataExchangeContinue(tg byte) Frame {
	return Frame{cmdInDataExchange, tg}
}

func (d *Device) targetNumber() byte {
	if d.current != nil && d.current.Number != 0 {
		return d.current.Number
	}
	return 1
}
