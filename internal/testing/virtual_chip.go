// go-pn53x
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-pn53x.
//
// go-pn53x is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-pn53x is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-pn53x; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package testing provides a wire-level PN53x simulator and connection
// wrappers for transport tests.
package testing

import (
	"bytes"
	"errors"

	"github.com/ZaparooProject/go-pn53x/internal/frame"
	"github.com/ZaparooProject/go-pn53x/internal/syncutil"
)

// Model selects the firmware the simulator reports.
type Model int

const (
	ModelPN532 Model = iota
	ModelPN531
	ModelPN533
)

const (
	cmdDiagnose            = 0x00
	cmdGetFirmwareVersion  = 0x02
	cmdGetGeneralStatus    = 0x04
	cmdReadRegister        = 0x06
	cmdWriteRegister       = 0x08
	cmdSetParameters       = 0x12
	cmdSAMConfiguration    = 0x14
	cmdPowerDown           = 0x16
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInCommunicateThru   = 0x42
	cmdInDeselect          = 0x44
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
	cmdInSelect            = 0x54
)

// Chip status codes.
const (
	statusOK       = 0x00
	statusTimeout  = 0x01
	statusInvalid  = 0x27
	diagAttention  = 0x06
	rfItemField    = 0x01
	sakISO14443_4  = 0x20
	brTyISO14443A  = 0x00
	maxListTargets = 2
)

// VirtualTarget is an ISO/IEC 14443A card in the simulated field.
type VirtualTarget struct {
	// Exchange answers InDataExchange and InCommunicateThru payloads. Nil
	// echoes the payload.
	Exchange func(data []byte) []byte
	UID      []byte
	ATS      []byte // without TL, sent when SAK announces ISO14443-4
	ATQA     [2]byte
	SAK      byte
}

// State is the observable simulator state.
type State struct {
	Parameters    byte
	Selected      int // 0 when no target is selected
	FieldOn       bool
	SAMConfigured bool
	PoweredDown   bool
}

// VirtualChip simulates a PN53x at the frame level. It implements
// io.ReadWriter: the host writes frames and reads ACKs and responses.
// Read never blocks and returns 0 when nothing is pending.
type VirtualChip struct {
	registers map[uint16]byte
	held      map[byte]bool
	tx        bytes.Buffer
	dec       frame.Decoder
	last      []byte
	targets   []*VirtualTarget
	commands  []byte
	mu        syncutil.Mutex
	state     State
	aborts    int
	nacks     int
	model     Model
	badDCS    bool
	dropACK   bool
}

// NewVirtualChip returns a powered-up simulator with an empty field.
func NewVirtualChip(model Model) *VirtualChip {
	return &VirtualChip{
		model:     model,
		registers: make(map[uint16]byte),
		held:      make(map[byte]bool),
	}
}

// Write implements io.Writer.
func (v *VirtualChip) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, _ = v.dec.Write(p)
	for {
		f, err := v.dec.Next()
		if errors.Is(err, frame.ErrIncomplete) {
			return len(p), nil
		}
		if err != nil {
			v.tx.Write(frame.NackFrame)
			continue
		}
		v.handle(f)
	}
}

// Read implements io.Reader.
func (v *VirtualChip) Read(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.tx.Len() == 0 {
		return 0, nil
	}
	n, _ := v.tx.Read(p)
	return n, nil
}

// Pending reports whether bytes wait to be read, like the I2C ready bit.
func (v *VirtualChip) Pending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tx.Len() > 0
}

// AddTarget puts a card into the field.
func (v *VirtualChip) AddTarget(t *VirtualTarget) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.targets = append(v.targets, t)
}

// ClearTargets empties the field.
func (v *VirtualChip) ClearTargets() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.targets = nil
	v.state.Selected = 0
}

// SetRegister presets a register value.
func (v *VirtualChip) SetRegister(addr uint16, value byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.registers[addr] = value
}

// Register returns a register value.
func (v *VirtualChip) Register(addr uint16) byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registers[addr]
}

// Hold makes the chip acknowledge cmd but never answer it, like a command
// waiting for a card. A host ACK aborts it.
func (v *VirtualChip) Hold(cmd byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.held[cmd] = true
}

// CorruptNextResponse flips the checksum of the next response frame.
func (v *VirtualChip) CorruptNextResponse() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.badDCS = true
}

// DropNextACK suppresses the ACK of the next command.
func (v *VirtualChip) DropNextACK() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropACK = true
}

// State returns a snapshot of the simulator state.
func (v *VirtualChip) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Commands returns the opcodes received so far.
func (v *VirtualChip) Commands() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.commands...)
}

// Aborts counts ACK frames sent by the host.
func (v *VirtualChip) Aborts() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.aborts
}

// Nacks counts NACK frames sent by the host.
func (v *VirtualChip) Nacks() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.nacks
}

func (v *VirtualChip) handle(f frame.Frame) {
	switch f.Kind {
	case frame.KindACK:
		v.aborts++
		return
	case frame.KindNACK:
		v.nacks++
		v.tx.Write(v.last)
		return
	case frame.KindError:
		return
	case frame.KindInfo:
	}
	if f.TFI != frame.HostToChip || len(f.Data) == 0 {
		v.respond(frame.ErrorFrame)
		return
	}

	v.state.PoweredDown = false
	cmd, params := f.Data[0], f.Data[1:]
	v.commands = append(v.commands, cmd)
	if v.dropACK {
		v.dropACK = false
	} else {
		v.tx.Write(frame.AckFrame)
	}
	if v.held[cmd] {
		return
	}

	data, ok := v.execute(cmd, params)
	if !ok {
		v.respond(frame.ErrorFrame)
		return
	}
	out, err := frame.Append(nil, frame.ChipToHost, append([]byte{cmd + 1}, data...), v.model == ModelPN533)
	if err != nil {
		v.respond(frame.ErrorFrame)
		return
	}
	v.last = out
	if v.badDCS {
		v.badDCS = false
		out = bytes.Clone(out)
		out[len(out)-2] ^= 0xFF
	}
	v.tx.Write(out)
}

func (v *VirtualChip) respond(out []byte) {
	v.last = out
	v.tx.Write(out)
}

func (v *VirtualChip) execute(cmd byte, params []byte) ([]byte, bool) {
	switch cmd {
	case cmdGetFirmwareVersion:
		return v.firmware(), true
	case cmdGetGeneralStatus:
		field := byte(0)
		if v.state.FieldOn {
			field = 1
		}
		nb := byte(0)
		if v.state.Selected != 0 {
			nb = 1
		}
		return []byte{statusOK, field, nb, 0x00}, true
	case cmdSAMConfiguration:
		if v.model != ModelPN532 || len(params) < 1 {
			return nil, false
		}
		v.state.SAMConfigured = true
		return nil, true
	case cmdSetParameters:
		if len(params) != 1 {
			return nil, false
		}
		v.state.Parameters = params[0]
		return nil, true
	case cmdRFConfiguration:
		if len(params) < 1 {
			return nil, false
		}
		if params[0] == rfItemField && len(params) > 1 {
			v.state.FieldOn = params[1]&0x01 != 0
		}
		return nil, true
	case cmdReadRegister:
		return v.readRegisters(params)
	case cmdWriteRegister:
		if len(params)%3 != 0 {
			return nil, false
		}
		for i := 0; i < len(params); i += 3 {
			v.registers[uint16(params[i])<<8|uint16(params[i+1])] = params[i+2]
		}
		return nil, true
	case cmdInListPassiveTarget:
		return v.listTargets(params)
	case cmdInDataExchange, cmdInCommunicateThru:
		return v.exchange(cmd, params), true
	case cmdInRelease, cmdInDeselect:
		v.state.Selected = 0
		return []byte{statusOK}, true
	case cmdInSelect:
		if len(params) != 1 || int(params[0]) > len(v.targets) || params[0] == 0 {
			return []byte{statusInvalid}, true
		}
		v.state.Selected = int(params[0])
		return []byte{statusOK}, true
	case cmdDiagnose:
		if len(params) > 0 && params[0] == diagAttention {
			if v.state.Selected == 0 {
				return []byte{statusTimeout}, true
			}
			return []byte{statusOK}, true
		}
		return params, true
	case cmdPowerDown:
		if v.model != ModelPN532 {
			return nil, false
		}
		v.state.PoweredDown = true
		v.state.FieldOn = false
		return []byte{statusOK}, true
	default:
		return nil, false
	}
}

func (v *VirtualChip) firmware() []byte {
	switch v.model {
	case ModelPN531:
		return []byte{0x04, 0x02}
	case ModelPN533:
		return []byte{0x33, 0x02, 0x07, 0x07}
	default:
		return []byte{0x32, 0x01, 0x06, 0x07}
	}
}

func (v *VirtualChip) readRegisters(params []byte) ([]byte, bool) {
	if len(params) == 0 || len(params)%2 != 0 {
		return nil, false
	}
	var out []byte
	if v.model == ModelPN533 {
		out = append(out, statusOK)
	}
	for i := 0; i < len(params); i += 2 {
		out = append(out, v.registers[uint16(params[i])<<8|uint16(params[i+1])])
	}
	return out, true
}

func (v *VirtualChip) listTargets(params []byte) ([]byte, bool) {
	if len(params) < 2 || params[0] == 0 || params[0] > maxListTargets {
		return nil, false
	}
	v.state.FieldOn = true
	if params[1] != brTyISO14443A {
		return []byte{0x00}, true
	}

	out := []byte{0x00}
	for i, t := range v.targets {
		if int(out[0]) == int(params[0]) {
			break
		}
		out[0]++
		atqa := t.ATQA
		if v.model == ModelPN531 {
			atqa[0], atqa[1] = atqa[1], atqa[0]
		}
		out = append(out, byte(i+1), atqa[0], atqa[1], t.SAK, byte(len(t.UID)))
		out = append(out, t.UID...)
		if t.SAK&sakISO14443_4 != 0 && len(t.ATS) > 0 {
			out = append(out, byte(len(t.ATS)+1))
			out = append(out, t.ATS...)
		}
		if out[0] == 1 {
			v.state.Selected = i + 1
		}
	}
	return out, true
}

func (v *VirtualChip) exchange(cmd byte, params []byte) []byte {
	if v.state.Selected == 0 {
		return []byte{statusTimeout}
	}
	data := params
	if cmd == cmdInDataExchange {
		if len(params) < 1 {
			return []byte{statusInvalid}
		}
		data = params[1:]
	}
	t := v.targets[v.state.Selected-1]
	reply := data
	if t.Exchange != nil {
		reply = t.Exchange(data)
	}
	return append([]byte{statusOK}, reply...)
}
