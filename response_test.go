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
	"testing"

	"github.com/ZaparooProject/go-pn53x/pkg/iso14443"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	modA      = Modulation{Type: ISO14443A, BaudRate: Baud106}
	modB      = Modulation{Type: ISO14443B, BaudRate: Baud106}
	modFeliCa = Modulation{Type: FeliCa, BaudRate: Baud212}
)

func TestDecodeISO14443A(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       []byte
		chip      ChipType
		wantATQA  [2]byte
		wantSAK   byte
		wantUID   []byte
		wantATS   []byte
		wantLevel iso14443.CascadeLevel
	}{
		{
			name:      "single size UID",
			raw:       []byte{0x00, 0x04, 0x08, 0x04, 0x04, 0x88, 0xEC, 0x4A},
			chip:      ChipPN532,
			wantATQA:  [2]byte{0x00, 0x04},
			wantSAK:   0x08,
			wantUID:   []byte{0x04, 0x88, 0xEC, 0x4A},
			wantLevel: iso14443.CascadeLevel1,
		},
		{
			name:      "cascade tag stripped",
			raw:       []byte{0x00, 0x44, 0x00, 0x08, 0x88, 0x04, 0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC},
			chip:      ChipPN532,
			wantATQA:  [2]byte{0x00, 0x44},
			wantUID:   []byte{0x04, 0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC},
			wantLevel: iso14443.CascadeLevel2,
		},
		{
			name:      "PN531 swaps ATQA",
			raw:       []byte{0x04, 0x00, 0x08, 0x04, 0x01, 0x02, 0x03, 0x04},
			chip:      ChipPN531,
			wantATQA:  [2]byte{0x00, 0x04},
			wantSAK:   0x08,
			wantUID:   []byte{0x01, 0x02, 0x03, 0x04},
			wantLevel: iso14443.CascadeLevel1,
		},
		{
			name: "with ATS",
			raw: []byte{
				0x03, 0x44, 0x20, 0x07, 0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66,
				0x06, 0x75, 0x77, 0x81, 0x02, 0x80,
			},
			chip:      ChipPN533,
			wantATQA:  [2]byte{0x03, 0x44},
			wantSAK:   0x20,
			wantUID:   []byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66},
			wantATS:   []byte{0x75, 0x77, 0x81, 0x02, 0x80},
			wantLevel: iso14443.CascadeLevel2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			info, n, err := ParseTargetResponse(tt.chip, modA, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, len(tt.raw), n)

			a, ok := info.(*ISO14443AInfo)
			require.True(t, ok)
			assert.Equal(t, tt.wantATQA, a.ATQA)
			assert.Equal(t, tt.wantSAK, a.SAK)
			assert.Equal(t, tt.wantUID, a.UID)
			assert.Equal(t, tt.wantLevel, a.CascadeLevel)
			assert.Equal(t, tt.wantATS, a.ATS)
		})
	}
}

func TestDecodeISO14443AMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "truncated ATS", raw: []byte{0x00, 0x04, 0x20, 0x04, 0x01, 0x02, 0x03, 0x04, 0x05, 0x75, 0x77, 0x81}},
		{name: "zero TL", raw: []byte{0x00, 0x04, 0x20, 0x04, 0x01, 0x02, 0x03, 0x04, 0x00}},
		{name: "UID length past end", raw: []byte{0x00, 0x04, 0x08, 0x07, 0x01, 0x02}},
		{name: "invalid UID length", raw: []byte{0x00, 0x04, 0x08, 0x05, 0x01, 0x02, 0x03, 0x04, 0x05}},
		{name: "missing SAK", raw: []byte{0x00, 0x04}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := ParseTargetResponse(ChipPN532, modA, tt.raw)
			require.ErrorIs(t, err, ErrProtocol)
		})
	}
}

func TestDecodeISO14443B(t *testing.T) {
	t.Parallel()

	raw := []byte{
		0x50, 0x01, 0x02, 0x03, 0x04, // PUPI
		0x00, 0x00, 0x00, 0x00, // application data
		0x00, 0x71, 0x85, // protocol info
		0x01, 0x00, // ATTRIB_RES
	}
	info, n, err := ParseTargetResponse(ChipPN532, modB, raw)
	require.NoError(t, err)
	assert.Len(t, raw, n)

	b, ok := info.(*ISO14443BInfo)
	require.True(t, ok)
	assert.Equal(t, [4]byte{0x01, 0x02, 0x03, 0x04}, b.PUPI)
	assert.Equal(t, [3]byte{0x00, 0x71, 0x85}, b.ProtocolInfo)
	assert.Equal(t, 128, b.MaxFrameSize())

	raw[0] = 0x51
	_, _, err = ParseTargetResponse(ChipPN532, modB, raw)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeFeliCa(t *testing.T) {
	t.Parallel()

	raw := []byte{
		0x14, 0x01,
		0x01, 0x2E, 0x3D, 0x4C, 0x5B, 0x6A, 0x79, 0x88,
		0x03, 0x01, 0x4B, 0x02, 0x4F, 0x49, 0x93, 0xFF,
		0x12, 0xFC,
	}
	info, n, err := ParseTargetResponse(ChipPN532, modFeliCa, raw)
	require.NoError(t, err)
	assert.Len(t, raw, n)

	f, ok := info.(*FeliCaInfo)
	require.True(t, ok)
	assert.Equal(t, byte(0x01), f.ResCode)
	assert.Equal(t, [8]byte{0x01, 0x2E, 0x3D, 0x4C, 0x5B, 0x6A, 0x79, 0x88}, f.ID)
	assert.True(t, f.HasSysCode)
	assert.Equal(t, [2]byte{0x12, 0xFC}, f.SysCode)

	_, _, err = ParseTargetResponse(ChipPN532, modFeliCa, []byte{0x10, 0x01})
	require.ErrorIs(t, err, ErrProtocol)
}

func TestDecodeDEP(t *testing.T) {
	t.Parallel()

	raw := []byte{
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A,
		0x00, 0x00, 0x00, 0x0E, 0x32,
		0x46, 0x66, 0x6D,
	}
	info, _, err := ParseTargetResponse(ChipPN533, Modulation{Type: DEP, BaudRate: Baud424}, raw)
	require.NoError(t, err)

	d, ok := info.(*DEPInfo)
	require.True(t, ok)
	assert.Equal(t, byte(0x0E), d.TO)
	assert.Equal(t, byte(0x32), d.PP)
	assert.Equal(t, []byte{0x46, 0x66, 0x6D}, d.GeneralBytes)
}

func TestDecodeSmallFamilies(t *testing.T) {
	t.Parallel()

	t.Run("jewel", func(t *testing.T) {
		t.Parallel()
		info, _, err := ParseTargetResponse(ChipPN532, Modulation{Type: Jewel, BaudRate: Baud106},
			[]byte{0x0C, 0x00, 0xAA, 0xBB, 0xCC, 0xDD})
		require.NoError(t, err)
		assert.Equal(t, [4]byte{0xAA, 0xBB, 0xCC, 0xDD}, info.(*JewelInfo).ID)
	})

	t.Run("B2CT", func(t *testing.T) {
		t.Parallel()
		info, _, err := ParseTargetResponse(ChipPN532, Modulation{Type: ISO14443B2CT, BaudRate: Baud106},
			[]byte{0x11, 0x22, 0xA1, 0x02, 0x33, 0x44})
		require.NoError(t, err)
		ct := info.(*ISO14443B2CTInfo)
		assert.Equal(t, [4]byte{0x11, 0x22, 0x33, 0x44}, ct.UID)
		assert.Equal(t, byte(0xA1), ct.ProdCode)
		assert.Equal(t, byte(0x02), ct.FabCode)
	})

	t.Run("B' requires REPGEN", func(t *testing.T) {
		t.Parallel()
		m := Modulation{Type: ISO14443BI, BaudRate: Baud106}
		info, _, err := ParseTargetResponse(ChipPN532, m, []byte{0x00, 0x07, 0x01, 0x02, 0x03, 0x04, 0x05})
		require.NoError(t, err)
		assert.Equal(t, byte(0x05), info.(*ISO14443BiInfo).VerLog)

		_, _, err = ParseTargetResponse(ChipPN532, m, []byte{0x00, 0x06, 0x01, 0x02, 0x03, 0x04, 0x05})
		require.ErrorIs(t, err, ErrProtocol)
	})

	t.Run("empty barcode", func(t *testing.T) {
		t.Parallel()
		_, _, err := ParseTargetResponse(ChipPN532, Modulation{Type: Barcode, BaudRate: Baud106}, nil)
		require.ErrorIs(t, err, ErrProtocol)
	})
}

func TestParseListResponse(t *testing.T) {
	t.Parallel()

	data := listReply(
		[]byte{0x00, 0x04, 0x08, 0x04, 0x04, 0x88, 0xEC, 0x4A},
		[]byte{0x00, 0x04, 0x08, 0x04, 0x01, 0x02, 0x03, 0x04},
	)[1:]
	targets, err := parseListResponse(ChipPN532, modA, data)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, byte(1), targets[0].Number)
	assert.Equal(t, byte(2), targets[1].Number)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, targets[1].Info.(*ISO14443AInfo).UID)

	empty, err := parseListResponse(ChipPN532, modA, []byte{0x00})
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = parseListResponse(ChipPN532, modA, []byte{0x03})
	require.ErrorIs(t, err, ErrProtocol)

	_, err = parseListResponse(ChipPN532, modA, []byte{0x01, 0x01, 0x00})
	require.ErrorIs(t, err, ErrProtocol)
}

func TestParseTargetResponseUnknownModulation(t *testing.T) {
	t.Parallel()
	_, _, err := ParseTargetResponse(ChipPN532, Modulation{Type: ModulationType(99)}, []byte{0x00})
	require.ErrorIs(t, err, ErrUnsupported)
}
