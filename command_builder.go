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

// Frame is a chip command: opcode followed by its payload. It carries no
// direction byte and no checksum; transports add those.
type Frame []byte

// Opcode returns the command code, or 0 for an empty frame.
func (f Frame) Opcode() byte {
	if len(f) == 0 {
		return 0
	}
	return f[0]
}

const (
	maxInitiatorData = 12
	maxGeneralBytes  = 48
	maxHistorical    = 48
	maxRegisterOps   = (maxNormalFrame - 1) / 3
)

// frameWriter builds a frame into a fixed buffer and remembers overflow
// instead of growing.
type frameWriter struct {
	buf      [maxExtendedFrame]byte
	n        int
	overflow bool
}

func newFrameWriter(op byte) *frameWriter {
	w := &frameWriter{}
	w.buf[0] = op
	w.n = 1
	return w
}

func (w *frameWriter) put(b ...byte) *frameWriter {
	if w.n+len(b) > len(w.buf) {
		w.overflow = true
		return w
	}
	w.n += copy(w.buf[w.n:], b)
	return w
}

func (w *frameWriter) frame() (Frame, error) {
	if w.overflow {
		return nil, errorf(KindInvalidArgument, CommandName(w.buf[0]),
			"payload exceeds %d bytes", len(w.buf)-1)
	}
	return Frame(w.buf[:w.n]), nil
}

// BuildSelectCommand builds the InListPassiveTarget frame for m.
func BuildSelectCommand(m Modulation, maxTargets int, initiatorData []byte) (Frame, error) {
	const op = "InListPassiveTarget"
	if maxTargets < 1 || maxTargets > 2 {
		return nil, errorf(KindInvalidArgument, op, "max targets %d not in [1,2]", maxTargets)
	}
	if len(initiatorData) > maxInitiatorData {
		return nil, errorf(KindInvalidArgument, op, "%d bytes of initiator data, at most %d allowed",
			len(initiatorData), maxInitiatorData)
	}
	brTy, err := brTyFor(m)
	if err != nil {
		return nil, err
	}

	var buf [3 + maxInitiatorData]byte
	buf[0] = cmdInListPassiveTarget
	buf[1] = byte(maxTargets)
	buf[2] = brTy
	n := 3 + copy(buf[3:], initiatorData)
	return Frame(buf[:n]), nil
}

func brTyFor(m Modulation) (byte, error) {
	switch {
	case m.Type == ISO14443A && m.BaudRate == Baud106:
		return brTyISO14443A106, nil
	case m.Type == FeliCa && m.BaudRate == Baud212:
		return brTyFeliCa212, nil
	case m.Type == FeliCa && m.BaudRate == Baud424:
		return brTyFeliCa424, nil
	case m.Type == ISO14443B && m.BaudRate == Baud106:
		return brTyISO14443B106, nil
	case m.Type == ISO14443B && m.BaudRate == Baud212:
		return brTyISO14443B212, nil
	case m.Type == ISO14443B && m.BaudRate == Baud424:
		return brTyISO14443B424, nil
	case m.Type == ISO14443B && m.BaudRate == Baud847:
		return brTyISO14443B847, nil
	case m.Type == Jewel && m.BaudRate == Baud106:
		return brTyJewel106, nil
	}
	return 0, errorf(KindUnsupported, "InListPassiveTarget", "no BrTy for %s", m)
}

func depBaudCode(b BaudRate) (byte, error) {
	switch b {
	case Baud106:
		return 0x00, nil
	case Baud212:
		return 0x01, nil
	case Baud424:
		return 0x02, nil
	}
	return 0, errorf(KindInvalidArgument, "InJumpForDEP", "%s not valid for DEP", b)
}

// depPassiveInitiatorData is sent for passive DEP above 106 kbps; it is a
// FeliCa polling request.
var depPassiveInitiatorData = []byte{0x00, 0xFF, 0xFF, 0x00, 0x0F}

func buildJumpForDEP(mode DEPMode, baud BaudRate, passiveData, nfcid3, gi []byte) (Frame, error) {
	const op = "InJumpForDEP"
	br, err := depBaudCode(baud)
	if err != nil {
		return nil, err
	}
	var act byte
	switch mode {
	case DEPActive:
		act = 0x01
	case DEPPassive:
	default:
		return nil, errorf(KindInvalidArgument, op, "DEP mode %s", mode)
	}
	if len(nfcid3) != 0 && len(nfcid3) != 10 {
		return nil, errorf(KindInvalidArgument, op, "NFCID3 must be 10 bytes, got %d", len(nfcid3))
	}
	if len(gi) > maxGeneralBytes {
		return nil, errorf(KindInvalidArgument, op, "%d general bytes, at most %d allowed", len(gi), maxGeneralBytes)
	}
	if len(passiveData) > 5 {
		return nil, errorf(KindInvalidArgument, op, "%d bytes of passive initiator data", len(passiveData))
	}

	var next byte
	if mode == DEPPassive && len(passiveData) > 0 {
		next |= 0x01
	}
	if len(nfcid3) > 0 {
		next |= 0x02
	}
	if len(gi) > 0 {
		next |= 0x04
	}
	w := newFrameWriter(cmdInJumpForDEP).put(act, br, next)
	if next&0x01 != 0 {
		w.put(passiveData...)
	}
	return w.put(nfcid3...).put(gi...).frame()
}

func buildTgInitAsTarget(cfg *TargetModeConfig, chip ChipType) (Frame, error) {
	w := newFrameWriter(cmdTgInitAsTarget).put(cfg.modeByte())
	w.put(cfg.SensRes[:]...).put(cfg.NFCID1[:]...).put(cfg.SelRes)
	w.put(cfg.NFCID2[:]...).put(cfg.PAD[:]...).put(cfg.SystemCode[:]...)
	w.put(cfg.NFCID3[:]...)
	if chip == ChipPN531 {
		// PN531 takes the general bytes without a length prefix and has no
		// historical bytes.
		return w.put(cfg.GeneralBytes...).frame()
	}
	w.put(byte(len(cfg.GeneralBytes))).put(cfg.GeneralBytes...)
	w.put(byte(len(cfg.Historical))).put(cfg.Historical...)
	return w.frame()
}

func buildRFField(on bool) Frame {
	var v byte
	if on {
		v = 0x01
	}
	return Frame{cmdRFConfiguration, rfItemField, v}
}

func buildRFTimings(atr, com byte) Frame {
	return Frame{cmdRFConfiguration, rfItemTimings, 0x00, atr, com}
}

func buildMaxRtyCOM(n byte) Frame {
	return Frame{cmdRFConfiguration, rfItemMaxRtyCOM, n}
}

func buildMaxRetries(atr, psl, passive byte) Frame {
	return Frame{cmdRFConfiguration, rfItemMaxRetries, atr, psl, passive}
}

func buildReadRegister(addrs ...uint16) (Frame, error) {
	if len(addrs) == 0 || len(addrs) > maxRegisterOps {
		return nil, errorf(KindInvalidArgument, "ReadRegister", "%d registers", len(addrs))
	}
	w := newFrameWriter(cmdReadRegister)
	for _, a := range addrs {
		w.put(byte(a>>8), byte(a))
	}
	return w.frame()
}

type registerWrite struct {
	addr  uint16
	value byte
}

func buildWriteRegister(writes ...registerWrite) (Frame, error) {
	if len(writes) == 0 || len(writes) > maxRegisterOps {
		return nil, errorf(KindInvalidArgument, "WriteRegister", "%d registers", len(writes))
	}
	w := newFrameWriter(cmdWriteRegister)
	for _, rw := range writes {
		w.put(byte(rw.addr>>8), byte(rw.addr), rw.value)
	}
	return w.frame()
}

func buildSetParameters(flags byte) Frame {
	return Frame{cmdSetParameters, flags}
}

func buildInCommunicateThru(data []byte) (Frame, error) {
	return newFrameWriter(cmdInCommunicateThru).put(data...).frame()
}

func buildInDataExchange(tg byte, data []byte) (Frame, error) {
	return newFrameWriter(cmdInDataExchange).put(tg).put(data...).frame()
}

func buildInDeselect(tg byte) Frame {
	return Frame{cmdInDeselect, tg}
}

func buildInRelease(tg byte) Frame {
	return Frame{cmdInRelease, tg}
}

func buildInSelect(tg byte) Frame {
	return Frame{cmdInSelect, tg}
}

func buildInAutoPoll(pollNr, period byte, types []byte) (Frame, error) {
	if len(types) == 0 || len(types) > 15 {
		return nil, errorf(KindInvalidArgument, "InAutoPoll", "%d target types, want 1-15", len(types))
	}
	if period < 1 || period > 15 {
		return nil, errorf(KindInvalidArgument, "InAutoPoll", "period %d not in [1,15]", period)
	}
	return newFrameWriter(cmdInAutoPoll).put(pollNr, period).put(types...).frame()
}

func buildTgGetData() Frame {
	return Frame{cmdTgGetData}
}

func buildTgSetData(data []byte) (Frame, error) {
	return newFrameWriter(cmdTgSetData).put(data...).frame()
}

func buildTgGetInitiatorCommand() Frame {
	return Frame{cmdTgGetInitiatorCmd}
}

func buildTgResponseToInitiator(data []byte) (Frame, error) {
	return newFrameWriter(cmdTgResponseToInit).put(data...).frame()
}

func buildGetFirmwareVersion() Frame {
	return Frame{cmdGetFirmwareVersion}
}

func buildGetGeneralStatus() Frame {
	return Frame{cmdGetGeneralStatus}
}

func buildSAMConfiguration(mode SAMMode, timeout, irq byte) Frame {
	return Frame{cmdSamConfiguration, byte(mode), timeout, irq}
}

func buildPowerDown(wakeup byte, irq bool) Frame {
	if irq {
		return Frame{cmdPowerDown, wakeup, 0x01}
	}
	return Frame{cmdPowerDown, wakeup}
}
