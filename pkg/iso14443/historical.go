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

package iso14443

import "fmt"

// Category indicator bytes (ISO/IEC 7816-4 8.1.1).
const (
	CIBCompactTLV       byte = 0x00
	CIBDIRDataReference byte = 0x10
	CIBStatusMask       byte = 0xF0
	CIBStatus           byte = 0x80
	CIBMIFARE           byte = 0xC1

	statusIndicatorLen = 3
)

// HistoricalFormat classifies historical bytes by their category indicator.
type HistoricalFormat int

// Historical byte formats.
const (
	FormatEmpty HistoricalFormat = iota
	FormatCompactTLV
	FormatDIRDataReference
	FormatStatus
	FormatMIFARE
	FormatProprietary
)

func (f HistoricalFormat) String() string {
	switch f {
	case FormatEmpty:
		return "empty"
	case FormatCompactTLV:
		return "COMPACT-TLV"
	case FormatDIRDataReference:
		return "DIR data reference"
	case FormatStatus:
		return "COMPACT-TLV with status"
	case FormatMIFARE:
		return "MIFARE proprietary"
	case FormatProprietary:
		return "proprietary"
	default:
		return fmt.Sprintf("HistoricalFormat(%d)", int(f))
	}
}

// TLVObject is one COMPACT-TLV data object. The tag is the high nibble of
// the header byte and the length the low nibble.
type TLVObject struct {
	Value []byte
	Tag   byte
}

// ParseCompactTLV decodes a run of COMPACT-TLV objects.
func ParseCompactTLV(data []byte) ([]TLVObject, error) {
	var objs []TLVObject
	for pos := 0; pos < len(data); {
		tag, n := data[pos]>>4, int(data[pos]&0x0F)
		pos++
		if n > len(data)-pos {
			return objs, fmt.Errorf("%w: tag %X wants %d bytes, %d left", ErrMalformedTLV, tag, n, len(data)-pos)
		}
		objs = append(objs, TLVObject{Tag: tag, Value: data[pos : pos+n]})
		pos += n
	}
	return objs, nil
}

// MIFAREInfo holds the type identification coding of MIFARE and virtual
// cards (CIB 0xC1).
type MIFAREInfo struct {
	Length         byte
	CTC            byte
	CVC            byte
	VCS            byte
	HasCTC         bool
	HasCVC         bool
	HasVCS         bool
	LengthMismatch bool
}

// ChipType names the CTC chip type nibble.
func (m *MIFAREInfo) ChipType() string {
	switch m.CTC & 0xF0 {
	case 0x00:
		return "(Multiple) Virtual Cards"
	case 0x10:
		return "MIFARE DESFire"
	case 0x20:
		return "MIFARE Plus"
	default:
		return "RFU"
	}
}

// MemorySize names the CTC memory size nibble.
func (m *MIFAREInfo) MemorySize() string {
	switch m.CTC & 0x0F {
	case 0x00:
		return "<1 kbyte"
	case 0x01:
		return "1 kbyte"
	case 0x02:
		return "2 kbyte"
	case 0x03:
		return "4 kbyte"
	case 0x04:
		return "8 kbyte"
	case 0x0F:
		return "Unspecified"
	default:
		return "RFU"
	}
}

// ChipStatus names the CVC status nibble.
func (m *MIFAREInfo) ChipStatus() string {
	switch m.CVC & 0xF0 {
	case 0x00:
		return "Engineering sample"
	case 0x20:
		return "Released"
	default:
		return "RFU"
	}
}

// Generation names the CVC generation nibble.
func (m *MIFAREInfo) Generation() string {
	switch m.CVC & 0x0F {
	case 0x00:
		return "Generation 1"
	case 0x01:
		return "Generation 2"
	case 0x02:
		return "Generation 3"
	case 0x0F:
		return "Unspecified"
	default:
		return "RFU"
	}
}

// HistoricalBytes is a decoded historical byte string.
type HistoricalBytes struct {
	MIFARE  *MIFAREInfo
	Raw     []byte
	Objects []TLVObject
	Status  []byte
	Format  HistoricalFormat
	CIB     byte
	DIRRef  byte
}

// DecodeHistoricalBytes classifies and decodes historical bytes. Malformed
// COMPACT-TLV content is reported as an error alongside whatever decoded.
func DecodeHistoricalBytes(hist []byte) (HistoricalBytes, error) {
	h := HistoricalBytes{Raw: hist}
	if len(hist) == 0 {
		return h, nil
	}
	h.CIB = hist[0]
	body := hist[1:]

	switch {
	case h.CIB == CIBCompactTLV:
		h.Format = FormatCompactTLV
		if len(body) < statusIndicatorLen {
			return h, fmt.Errorf("%w: missing status indicator", ErrMalformedTLV)
		}
		split := len(body) - statusIndicatorLen
		h.Status = body[split:]
		objs, err := ParseCompactTLV(body[:split])
		h.Objects = objs
		return h, err
	case h.CIB == CIBDIRDataReference:
		h.Format = FormatDIRDataReference
		if len(body) == 0 {
			return h, fmt.Errorf("%w: missing DIR reference", ErrMalformedTLV)
		}
		h.DIRRef = body[0]
		return h, nil
	case h.CIB&CIBStatusMask == CIBStatus:
		h.Format = FormatStatus
		objs, err := ParseCompactTLV(body)
		h.Objects = objs
		if err == nil && len(objs) > 0 && objs[len(objs)-1].Tag == 0x8 {
			h.Status = objs[len(objs)-1].Value
		}
		return h, err
	case h.CIB == CIBMIFARE:
		h.Format = FormatMIFARE
		h.MIFARE = decodeMIFARE(body)
		return h, nil
	default:
		h.Format = FormatProprietary
		return h, nil
	}
}

func decodeMIFARE(body []byte) *MIFAREInfo {
	m := &MIFAREInfo{}
	if len(body) == 0 {
		m.LengthMismatch = true
		return m
	}
	m.Length = body[0]
	rest := body[1:]
	m.LengthMismatch = int(m.Length) != len(rest)
	if len(rest) > 0 {
		m.CTC, m.HasCTC = rest[0], true
	}
	if len(rest) > 1 {
		m.CVC, m.HasCVC = rest[1], true
	}
	if len(rest) > 2 {
		m.VCS, m.HasVCS = rest[2], true
	}
	return m
}
