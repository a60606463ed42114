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

// ATQA and SAK fields.
const (
	ATQAUIDSizeMask  byte = 0xC0
	ATQAUIDSizeShift      = 6

	SAKUIDNotComplete byte = 0x04
	SAKISO14443_4     byte = 0x20
	SAKISO18092       byte = 0x40
)

// UIDSizeFromATQA returns the cascade level announced by the UID size bits
// of an ATQA, or 0 for the RFU encoding.
func UIDSizeFromATQA(atqa [2]byte) CascadeLevel {
	switch (atqa[1] & ATQAUIDSizeMask) >> ATQAUIDSizeShift {
	case 0:
		return CascadeLevel1
	case 1:
		return CascadeLevel2
	case 2:
		return CascadeLevel3
	default:
		return 0
	}
}

type atqaEntry struct {
	name string
	saks []int
	atqa uint16
	mask uint16
}

type sakEntry struct {
	suffix string
	sak    byte
	mask   byte
}

// Identification table from NXP AN10833.
var atqaTable = []atqaEntry{
	{atqa: 0x0044, mask: 0xffff, name: "MIFARE Ultralight", saks: []int{0}},
	{atqa: 0x0044, mask: 0xffff, name: "MIFARE Ultralight C", saks: []int{0}},
	{atqa: 0x0004, mask: 0xff0f, name: "MIFARE Mini 0.3K", saks: []int{1}},
	{atqa: 0x0004, mask: 0xff0f, name: "MIFARE Classic 1K", saks: []int{2}},
	{atqa: 0x0002, mask: 0xff0f, name: "MIFARE Classic 4K", saks: []int{3}},
	{atqa: 0x0004, mask: 0xffff, name: "MIFARE Plus (4 Byte UID or 4 Byte RID)", saks: []int{4, 5, 6, 7, 8, 9}},
	{atqa: 0x0002, mask: 0xffff, name: "MIFARE Plus (4 Byte UID or 4 Byte RID)", saks: []int{4, 5, 6, 7, 8, 9}},
	{atqa: 0x0044, mask: 0xffff, name: "MIFARE Plus (7 Byte UID)", saks: []int{4, 5, 6, 7, 8, 9}},
	{atqa: 0x0042, mask: 0xffff, name: "MIFARE Plus (7 Byte UID)", saks: []int{4, 5, 6, 7, 8, 9}},
	{atqa: 0x0344, mask: 0xffff, name: "MIFARE DESFire", saks: []int{10, 11}},
	{atqa: 0x0004, mask: 0xf0ff, name: "SmartMX with MIFARE 1K emulation", saks: []int{12}},
	{atqa: 0x0002, mask: 0xf0ff, name: "SmartMX with MIFARE 4K emulation", saks: []int{12}},
	{atqa: 0x0048, mask: 0xf0ff, name: "SmartMX with 7 Byte UID", saks: []int{12}},
}

var sakTable = []sakEntry{
	{sak: 0x00, mask: 0xff},
	{sak: 0x09, mask: 0xff},
	{sak: 0x08, mask: 0xff},
	{sak: 0x18, mask: 0xff},
	{sak: 0x08, mask: 0xff, suffix: " 2K, Security level 1"},
	{sak: 0x18, mask: 0xff, suffix: " 4K, Security level 1"},
	{sak: 0x10, mask: 0xff, suffix: " 2K, Security level 2"},
	{sak: 0x11, mask: 0xff, suffix: " 4K, Security level 2"},
	{sak: 0x20, mask: 0xff, suffix: " 2K, Security level 3"},
	{sak: 0x20, mask: 0xff, suffix: " 4K, Security level 3"},
	{sak: 0x20, mask: 0xff, suffix: " 4K"},
	{sak: 0x20, mask: 0xff, suffix: " EV1 2K/4K/8K"},
	{sak: 0x00, mask: 0x00},
}

// Matches outside AN10833, keyed by ATQA[0] ATQA[1] SAK.
var knownATQASAK = []struct {
	name string
	key  uint32
}{
	{key: 0x000488, name: "Mifare Classic 1K Infineon"},
	{key: 0x000298, name: "Gemplus MPCOS"},
	{key: 0x030428, name: "JCOP31"},
	{key: 0x004820, name: "JCOP31 v2.4.1 / v2.2"},
	{key: 0x000428, name: "JCOP31 v2.3.1"},
	{key: 0x000453, name: "Fudan FM1208SH01"},
	{key: 0x000820, name: "Fudan FM1208"},
	{key: 0x000238, name: "MFC 4K emulated by Nokia 6212 Classic"},
	{key: 0x000838, name: "MFC 4K emulated by Nokia 6131 NFC"},
}

// Fingerprint returns the card families compatible with an ATQA and SAK
// pair. The result is empty for unknown cards.
func Fingerprint(atqa [2]byte, sak byte) []string {
	var names []string
	a := uint16(atqa[0])<<8 | uint16(atqa[1])
	for _, e := range atqaTable {
		if a&e.mask != e.atqa {
			continue
		}
		for _, i := range e.saks {
			s := sakTable[i]
			if sak&s.mask == s.sak {
				names = append(names, e.name+s.suffix)
			}
		}
	}
	key := uint32(atqa[0])<<16 | uint32(atqa[1])<<8 | uint32(sak)
	for _, k := range knownATQASAK {
		if k.key == key {
			names = append(names, k.name)
		}
	}
	return names
}
