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
	"github.com/ZaparooProject/go-pn53x/pkg/iso14443"
)

// reader walks a response buffer. Every read checks the remaining length
// and slices in the same call, so decoders cannot index past the end.
type reader struct {
	op  string
	buf []byte
	off int
}

func newReader(op string, buf []byte) *reader {
	return &reader{op: op, buf: buf}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, errorf(KindProtocol, r.op, "need %d bytes at offset %d, %d left", n, r.off, r.remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) byte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) into(dst []byte) error {
	b, err := r.take(len(dst))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

func (r *reader) rest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}

// targetDecoder decodes one target record and reports the bytes consumed.
type targetDecoder func(r *reader, chip ChipType) (TargetInfo, error)

var targetDecoders = map[ModulationType]targetDecoder{
	ISO14443A:       decodeISO14443A,
	ISO14443B:       decodeISO14443B,
	ISO14443BI:      decodeISO14443BI,
	ISO14443B2SR:    decodeISO14443B2SR,
	ISO14443B2CT:    decodeISO14443B2CT,
	ISO14443BICLASS: decodeISO14443BiClass,
	FeliCa:          decodeFeliCa,
	Jewel:           decodeJewel,
	Barcode:         decodeBarcode,
	DEP:             decodeDEP,
}

// ParseTargetResponse decodes one target record of modulation m, as the
// chip reports it after the logical target number. It returns the number
// of bytes consumed so multi-target responses decode in order.
func ParseTargetResponse(chip ChipType, m Modulation, raw []byte) (TargetInfo, int, error) {
	dec, ok := targetDecoders[m.Type]
	if !ok {
		return nil, 0, errorf(KindUnsupported, "decode", "no decoder for %s", m.Type)
	}
	r := newReader("decode "+m.Type.String(), raw)
	info, err := dec(r, chip)
	if err != nil {
		return nil, 0, err
	}
	return info, r.off, nil
}

func decodeISO14443A(r *reader, chip ChipType) (TargetInfo, error) {
	a := &ISO14443AInfo{}
	if err := r.into(a.ATQA[:]); err != nil {
		return nil, err
	}
	if chip == ChipPN531 {
		a.ATQA[0], a.ATQA[1] = a.ATQA[1], a.ATQA[0]
	}
	var err error
	if a.SAK, err = r.byte(); err != nil {
		return nil, err
	}
	n, err := r.byte()
	if err != nil {
		return nil, err
	}
	raw, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	uid, level, err := iso14443.UncascadeUID(raw)
	if err != nil {
		return nil, newError(KindProtocol, r.op, err)
	}
	a.UID = append([]byte(nil), uid...)
	a.CascadeLevel = level

	if a.SAK&iso14443.SAKISO14443_4 == 0 || r.remaining() == 0 {
		return a, nil
	}
	tl, err := r.byte()
	if err != nil {
		return nil, err
	}
	if tl == 0 {
		return nil, errorf(KindProtocol, r.op, "ATS length byte is zero")
	}
	ats, err := r.take(int(tl) - 1)
	if err != nil {
		return nil, err
	}
	a.ATS = append([]byte(nil), ats...)
	return a, nil
}

const atqbFirstByte = 0x50

func decodeISO14443B(r *reader, _ ChipType) (TargetInfo, error) {
	b := &ISO14443BInfo{}
	first, err := r.byte()
	if err != nil {
		return nil, err
	}
	if first != atqbFirstByte {
		return nil, errorf(KindProtocol, r.op, "ATQB starts with 0x%02X", first)
	}
	for _, dst := range [][]byte{b.PUPI[:], b.ApplicationData[:], b.ProtocolInfo[:]} {
		if err := r.into(dst); err != nil {
			return nil, err
		}
	}
	n, err := r.byte()
	if err != nil {
		return nil, err
	}
	attribRes, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	if len(attribRes) > 0 {
		b.CardIdentifier = attribRes[0]
	}
	return b, nil
}

const repgen = 0x07

func decodeISO14443BI(r *reader, _ ChipType) (TargetInfo, error) {
	bi := &ISO14443BiInfo{}
	if _, err := r.byte(); err != nil { // V & T addresses
		return nil, err
	}
	code, err := r.byte()
	if err != nil {
		return nil, err
	}
	if code != repgen {
		return nil, errorf(KindProtocol, r.op, "expected REPGEN, got 0x%02X", code)
	}
	if err := r.into(bi.DIV[:]); err != nil {
		return nil, err
	}
	if bi.VerLog, err = r.byte(); err != nil {
		return nil, err
	}
	if bi.VerLog&0x80 == 0 {
		return bi, nil
	}
	if bi.Config, err = r.byte(); err != nil {
		return nil, err
	}
	if bi.Config&0x40 != 0 {
		bi.ATR = append([]byte(nil), r.rest()...)
	}
	return bi, nil
}

func decodeISO14443B2SR(r *reader, _ ChipType) (TargetInfo, error) {
	s := &ISO14443B2SRInfo{}
	if err := r.into(s.UID[:]); err != nil {
		return nil, err
	}
	return s, nil
}

// decodeISO14443B2CT expects UID LSB (2), product code, fab code, UID MSB (2).
func decodeISO14443B2CT(r *reader, _ ChipType) (TargetInfo, error) {
	c := &ISO14443B2CTInfo{}
	if err := r.into(c.UID[:2]); err != nil {
		return nil, err
	}
	var err error
	if c.ProdCode, err = r.byte(); err != nil {
		return nil, err
	}
	if c.FabCode, err = r.byte(); err != nil {
		return nil, err
	}
	if err := r.into(c.UID[2:]); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeISO14443BiClass(r *reader, _ ChipType) (TargetInfo, error) {
	c := &ISO14443BiClassInfo{}
	if err := r.into(c.UID[:]); err != nil {
		return nil, err
	}
	return c, nil
}

const (
	felicaPolResLen        = 18
	felicaPolResLenSysCode = 20
)

func decodeFeliCa(r *reader, _ ChipType) (TargetInfo, error) {
	f := &FeliCaInfo{}
	var err error
	if f.Len, err = r.byte(); err != nil {
		return nil, err
	}
	if f.Len < felicaPolResLen {
		return nil, errorf(KindProtocol, r.op, "POL_RES length %d", f.Len)
	}
	body, err := r.take(int(f.Len) - 1)
	if err != nil {
		return nil, err
	}
	f.ResCode = body[0]
	copy(f.ID[:], body[1:9])
	copy(f.Pad[:], body[9:17])
	if f.Len >= felicaPolResLenSysCode {
		copy(f.SysCode[:], body[17:19])
		f.HasSysCode = true
	}
	return f, nil
}

func decodeJewel(r *reader, _ ChipType) (TargetInfo, error) {
	j := &JewelInfo{}
	if err := r.into(j.SensRes[:]); err != nil {
		return nil, err
	}
	if err := r.into(j.ID[:]); err != nil {
		return nil, err
	}
	return j, nil
}

func decodeBarcode(r *reader, _ ChipType) (TargetInfo, error) {
	data := r.rest()
	if len(data) == 0 {
		return nil, errorf(KindProtocol, r.op, "empty barcode frame")
	}
	return &BarcodeInfo{Data: append([]byte(nil), data...)}, nil
}

// decodeDEP decodes an ATR_RES body: NFCID3, DID, BS, BR, TO, PP, Gt.
func decodeDEP(r *reader, _ ChipType) (TargetInfo, error) {
	d := &DEPInfo{}
	if err := r.into(d.NFCID3[:]); err != nil {
		return nil, err
	}
	fields, err := r.take(5)
	if err != nil {
		return nil, err
	}
	d.DID, d.BS, d.BR, d.TO, d.PP = fields[0], fields[1], fields[2], fields[3], fields[4]
	if gb := r.rest(); len(gb) > 0 {
		d.GeneralBytes = append([]byte(nil), gb...)
	}
	return d, nil
}

// parseListResponse decodes an InListPassiveTarget reply body:
// NbTg followed by NbTg records, each prefixed by its Tg.
func parseListResponse(chip ChipType, m Modulation, data []byte) ([]Target, error) {
	r := newReader("InListPassiveTarget", data)
	nb, err := r.byte()
	if err != nil {
		return nil, err
	}
	if nb > 2 {
		return nil, errorf(KindProtocol, r.op, "%d targets reported", nb)
	}
	targets := make([]Target, 0, nb)
	for range int(nb) {
		tg, err := r.byte()
		if err != nil {
			return nil, err
		}
		info, n, err := ParseTargetResponse(chip, m, r.buf[r.off:])
		if err != nil {
			return nil, err
		}
		r.off += n
		targets = append(targets, Target{Modulation: m, Info: info, Number: tg})
	}
	return targets, nil
}
