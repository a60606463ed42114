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
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-pn53x/pkg/iso14443"
)

// Target is a selected tag, card or peer.
type Target struct {
	Info       TargetInfo
	Modulation Modulation
	// Number is the chip's logical target number (Tg), 0 when the target
	// was selected without InListPassiveTarget.
	Number byte
}

// TargetInfo holds the modulation-specific identification of a target.
// Exactly one of the *Info types in this package implements it.
type TargetInfo interface {
	describe(sb *strings.Builder)
	isTargetInfo()
}

// String renders the target the way nfc-list prints it.
func (t *Target) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "%s (%s) target:\n", t.Modulation.Type, t.Modulation.BaudRate)
	if t.Info != nil {
		t.Info.describe(&sb)
	}
	return sb.String()
}

func line(sb *strings.Builder, label string, data []byte) {
	_, _ = fmt.Fprintf(sb, "%18s: % X\n", label, data)
}

// ISO14443AInfo identifies an ISO/IEC 14443 type A target.
type ISO14443AInfo struct {
	UID          []byte
	ATS          []byte // without the TL byte
	ATQA         [2]byte
	CascadeLevel iso14443.CascadeLevel
	SAK          byte
}

func (*ISO14443AInfo) isTargetInfo() {}

// ParsedATS decodes the answer to select.
func (a *ISO14443AInfo) ParsedATS() (iso14443.ATS, error) {
	return iso14443.ParseATS(a.ATS)
}

func (a *ISO14443AInfo) describe(sb *strings.Builder) {
	line(sb, "ATQA (SENS_RES)", a.ATQA[:])
	_, _ = fmt.Fprintf(sb, "%18s: % X\n", "UID (NFCID"+cascadeDigit(a.UID)+")", a.UID)
	line(sb, "SAK (SEL_RES)", []byte{a.SAK})
	if len(a.ATS) > 0 {
		line(sb, "ATS", a.ATS)
		if ats, err := a.ParsedATS(); err == nil {
			describeATS(sb, &ats)
		}
	}
	if names := iso14443.Fingerprint(a.ATQA, a.SAK); len(names) > 0 {
		sb.WriteString("\nFingerprinting based on MIFARE type Identification Procedure:\n")
		for _, n := range names {
			_, _ = fmt.Fprintf(sb, "* %s\n", n)
		}
	}
}

func cascadeDigit(uid []byte) string {
	if len(uid) > 0 && uid[0] == 0x08 {
		return "3"
	}
	return "1"
}

func describeATS(sb *strings.Builder, a *iso14443.ATS) {
	_, _ = fmt.Fprintf(sb, "* Max Frame Size accepted by PICC: %d bytes\n", a.FSC)
	if a.HasTA1 {
		if a.SameBitRate() {
			sb.WriteString("* Bit Rate Capability:\n  * Same bitrate in both directions mandatory\n")
		}
		for _, r := range a.PICCToPCDRates() {
			_, _ = fmt.Fprintf(sb, "  * PICC to PCD, %d kbps\n", r)
		}
		for _, r := range a.PCDToPICCRates() {
			_, _ = fmt.Fprintf(sb, "  * PCD to PICC, %d kbps\n", r)
		}
	}
	if a.HasTB1 {
		_, _ = fmt.Fprintf(sb, "* Frame Waiting Time: %s\n", a.FWT)
		if a.SFGT > 0 {
			_, _ = fmt.Fprintf(sb, "* Start-up Frame Guard Time: %s\n", a.SFGT)
		}
	}
	if a.HasTC1 {
		_, _ = fmt.Fprintf(sb, "* NAD supported: %t\n* CID supported: %t\n", a.NADSupported(), a.CIDSupported())
	}
	if len(a.Historical) == 0 {
		return
	}
	line(sb, "Historical bytes", a.Historical)
	h, err := iso14443.DecodeHistoricalBytes(a.Historical)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(sb, "  * Category: %s\n", h.Format)
	if m := h.MIFARE; m != nil {
		_, _ = fmt.Fprintf(sb, "    * Chip Type: %s\n    * Memory size: %s\n", m.ChipType(), m.MemorySize())
		_, _ = fmt.Fprintf(sb, "    * Chip Status: %s\n    * Chip Generation: %s\n", m.ChipStatus(), m.Generation())
	}
	for _, o := range h.Objects {
		_, _ = fmt.Fprintf(sb, "    * Tag %X: % X\n", o.Tag, o.Value)
	}
}

// ISO14443BInfo identifies an ISO/IEC 14443-4 type B target.
type ISO14443BInfo struct {
	PUPI            [4]byte
	ApplicationData [4]byte
	ProtocolInfo    [3]byte
	CardIdentifier  byte
}

func (*ISO14443BInfo) isTargetInfo() {}

// MaxFrameSize returns the frame size announced in the protocol info.
func (b *ISO14443BInfo) MaxFrameSize() int {
	return iso14443.FSC(b.ProtocolInfo[1] >> 4)
}

func (b *ISO14443BInfo) describe(sb *strings.Builder) {
	line(sb, "PUPI", b.PUPI[:])
	line(sb, "Application Data", b.ApplicationData[:])
	line(sb, "Protocol Info", b.ProtocolInfo[:])
	_, _ = fmt.Fprintf(sb, "* Max Frame Size accepted by PICC: %d bytes\n", b.MaxFrameSize())
	if b.CardIdentifier != 0 {
		_, _ = fmt.Fprintf(sb, "* CID: %02X\n", b.CardIdentifier)
	}
}

// ISO14443BiInfo identifies a B' (Calypso) target.
type ISO14443BiInfo struct {
	ATR    []byte
	DIV    [4]byte
	VerLog byte
	Config byte
}

func (*ISO14443BiInfo) isTargetInfo() {}

func (b *ISO14443BiInfo) describe(sb *strings.Builder) {
	line(sb, "DIV", b.DIV[:])
	_, _ = fmt.Fprintf(sb, "* Software Version: %X\n", b.VerLog&0x7F)
	if b.VerLog&0x80 != 0 {
		line(sb, "Config", []byte{b.Config})
		if len(b.ATR) > 0 {
			line(sb, "ATR", b.ATR)
		}
	}
}

// ISO14443B2SRInfo identifies an ST SRx target.
type ISO14443B2SRInfo struct {
	UID [8]byte
}

func (*ISO14443B2SRInfo) isTargetInfo() {}

func (b *ISO14443B2SRInfo) describe(sb *strings.Builder) {
	line(sb, "UID", b.UID[:])
}

// ISO14443B2CTInfo identifies an ASK CTx target.
type ISO14443B2CTInfo struct {
	UID      [4]byte
	ProdCode byte
	FabCode  byte
}

func (*ISO14443B2CTInfo) isTargetInfo() {}

func (b *ISO14443B2CTInfo) describe(sb *strings.Builder) {
	line(sb, "UID", b.UID[:])
	_, _ = fmt.Fprintf(sb, "* UID hex: %08X\n* Product Code: %02X\n* Fab Code: %02X\n",
		uint32(b.UID[3])<<24|uint32(b.UID[2])<<16|uint32(b.UID[1])<<8|uint32(b.UID[0]), b.ProdCode, b.FabCode)
}

// ISO14443BiClassInfo identifies an iCLASS target by its CSN.
type ISO14443BiClassInfo struct {
	UID [8]byte
}

func (*ISO14443BiClassInfo) isTargetInfo() {}

func (b *ISO14443BiClassInfo) describe(sb *strings.Builder) {
	line(sb, "UID", b.UID[:])
}

// FeliCaInfo identifies a FeliCa target.
type FeliCaInfo struct {
	ID         [8]byte // IDm
	Pad        [8]byte // PMm
	SysCode    [2]byte
	Len        byte
	ResCode    byte
	HasSysCode bool
}

func (*FeliCaInfo) isTargetInfo() {}

func (f *FeliCaInfo) describe(sb *strings.Builder) {
	line(sb, "ID (NFCID2)", f.ID[:])
	line(sb, "Parameter (PAD)", f.Pad[:])
	if f.HasSysCode {
		line(sb, "System Code (SC)", f.SysCode[:])
	}
}

// JewelInfo identifies an Innovision Jewel/Topaz target.
type JewelInfo struct {
	SensRes [2]byte
	ID      [4]byte
}

func (*JewelInfo) isTargetInfo() {}

func (j *JewelInfo) describe(sb *strings.Builder) {
	line(sb, "ATQA (SENS_RES)", j.SensRes[:])
	line(sb, "4-LSB JEWELID", j.ID[:])
}

// BarcodeInfo holds a validated Thinfilm NFC Barcode frame.
type BarcodeInfo struct {
	Data []byte
}

func (*BarcodeInfo) isTargetInfo() {}

func (b *BarcodeInfo) describe(sb *strings.Builder) {
	line(sb, "Size", []byte{byte(len(b.Data) * 8)})
	line(sb, "Content", b.Data)
	if len(b.Data) > 0 {
		_, _ = fmt.Fprintf(sb, "* Manufacturer: %02X\n", b.Data[0])
	}
}

// DEPInfo identifies a DEP peer.
type DEPInfo struct {
	GeneralBytes []byte
	NFCID3       [10]byte
	Mode         DEPMode
	DID          byte
	BS           byte
	BR           byte
	TO           byte
	PP           byte
}

func (*DEPInfo) isTargetInfo() {}

func (d *DEPInfo) describe(sb *strings.Builder) {
	line(sb, "NFCID3", d.NFCID3[:])
	line(sb, "BS", []byte{d.BS})
	line(sb, "BR", []byte{d.BR})
	line(sb, "TO", []byte{d.TO})
	line(sb, "PP", []byte{d.PP})
	if len(d.GeneralBytes) > 0 {
		line(sb, "General Bytes", d.GeneralBytes)
	}
	_, _ = fmt.Fprintf(sb, "* Mode: %s\n", d.Mode)
}

// sameTarget reports whether two targets identify the same physical tag.
func sameTarget(a, b *Target) bool {
	if a.Modulation.Type != b.Modulation.Type {
		return false
	}
	return a.Info != nil && b.Info != nil && a.String() == b.String()
}
