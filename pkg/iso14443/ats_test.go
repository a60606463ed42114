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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DESFire EV1 ATS without TL: T0=75 TA1=77 TB1=81 TC1=02, historical 80.
var desfireATS = []byte{0x75, 0x77, 0x81, 0x02, 0x80}

func TestLocateHistoricalBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ats    []byte
		want   []byte
		wantOK bool
	}{
		{name: "all interface bytes", ats: desfireATS, want: []byte{0x80}, wantOK: true},
		{name: "no interface bytes", ats: []byte{0x05, 0xC1, 0x05}, want: []byte{0xC1, 0x05}, wantOK: true},
		{name: "only TB1", ats: []byte{0x25, 0x81, 0x00, 0x31, 0xC0}, want: []byte{0x00, 0x31, 0xC0}, wantOK: true},
		{name: "no historical bytes", ats: []byte{0x78, 0x77, 0x81, 0x02}, want: []byte{}, wantOK: true},
		{name: "empty", ats: nil},
		{name: "announces missing TC1", ats: []byte{0x70, 0x77, 0x81}},
		{name: "announces missing TA1", ats: []byte{0x10}},
		{name: "too long", ats: make([]byte, MaxATSLen+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := LocateHistoricalBytes(tt.ats)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseATS(t *testing.T) {
	t.Parallel()

	a, err := ParseATS(desfireATS)
	require.NoError(t, err)

	assert.Equal(t, byte(5), a.FSCI)
	assert.Equal(t, 64, a.FSC)
	assert.True(t, a.HasTA1)
	assert.False(t, a.SameBitRate())
	assert.Equal(t, []int{212, 424, 847}, a.PICCToPCDRates())
	assert.Equal(t, []int{212, 424, 847}, a.PCDToPICCRates())
	assert.Equal(t, byte(8), a.FWI)
	assert.Equal(t, byte(1), a.SFGI)
	assert.Equal(t, FrameWaitingTime(8), a.FWT)
	assert.InDelta(t, 77.3, float64(a.FWT)/float64(time.Millisecond), 0.1)
	assert.False(t, a.NADSupported())
	assert.True(t, a.CIDSupported())
	assert.Equal(t, []byte{0x80}, a.Historical)
}

func TestParseATSDefaults(t *testing.T) {
	t.Parallel()

	a, err := ParseATS([]byte{0x0F})
	require.NoError(t, err)
	assert.Equal(t, 256, a.FSC)
	assert.Equal(t, byte(4), a.FWI)
	assert.Equal(t, time.Duration(0), a.SFGT)
	assert.Nil(t, a.PICCToPCDRates())

	_, err = ParseATS([]byte{0x70, 0x00})
	require.ErrorIs(t, err, ErrMalformedATS)
}

func TestSplitATSFrame(t *testing.T) {
	t.Parallel()

	body, err := SplitATSFrame([]byte{0x06, 0x75, 0x77, 0x81, 0x02, 0x80})
	require.NoError(t, err)
	assert.Equal(t, desfireATS, body)

	_, err = SplitATSFrame([]byte{0x05, 0x75, 0x77})
	require.ErrorIs(t, err, ErrMalformedATS)

	_, err = SplitATSFrame([]byte{0x00})
	require.ErrorIs(t, err, ErrMalformedATS)
}

func TestDecodeHistoricalBytes(t *testing.T) {
	t.Parallel()

	t.Run("compact TLV with status indicator", func(t *testing.T) {
		t.Parallel()
		h, err := DecodeHistoricalBytes([]byte{0x00, 0x31, 0xC0, 0x00, 0x90, 0x00})
		require.NoError(t, err)
		assert.Equal(t, FormatCompactTLV, h.Format)
		require.Len(t, h.Objects, 1)
		assert.Equal(t, byte(0x3), h.Objects[0].Tag)
		assert.Equal(t, []byte{0xC0}, h.Objects[0].Value)
		assert.Equal(t, []byte{0x00, 0x90, 0x00}, h.Status)
	})

	t.Run("status category", func(t *testing.T) {
		t.Parallel()
		h, err := DecodeHistoricalBytes([]byte{0x80, 0x31, 0x80, 0x82, 0x90, 0x00})
		require.NoError(t, err)
		assert.Equal(t, FormatStatus, h.Format)
		assert.Equal(t, []byte{0x90, 0x00}, h.Status)
	})

	t.Run("truncated TLV", func(t *testing.T) {
		t.Parallel()
		_, err := DecodeHistoricalBytes([]byte{0x80, 0x35, 0x01})
		require.ErrorIs(t, err, ErrMalformedTLV)
	})

	t.Run("DIR data reference", func(t *testing.T) {
		t.Parallel()
		h, err := DecodeHistoricalBytes([]byte{0x10, 0x42})
		require.NoError(t, err)
		assert.Equal(t, byte(0x42), h.DIRRef)
	})

	t.Run("MIFARE proprietary", func(t *testing.T) {
		t.Parallel()
		h, err := DecodeHistoricalBytes([]byte{0xC1, 0x05, 0x2F, 0x2F, 0x01, 0xBC, 0xD6})
		require.NoError(t, err)
		require.Equal(t, FormatMIFARE, h.Format)
		require.NotNil(t, h.MIFARE)
		assert.False(t, h.MIFARE.LengthMismatch)
		assert.Equal(t, "MIFARE Plus", h.MIFARE.ChipType())
		assert.Equal(t, "Unspecified", h.MIFARE.MemorySize())
		assert.Equal(t, "Released", h.MIFARE.ChipStatus())
		assert.Equal(t, "Unspecified", h.MIFARE.Generation())
		assert.True(t, h.MIFARE.HasVCS)
	})

	t.Run("proprietary", func(t *testing.T) {
		t.Parallel()
		h, err := DecodeHistoricalBytes([]byte{0x4A, 0x01})
		require.NoError(t, err)
		assert.Equal(t, FormatProprietary, h.Format)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		h, err := DecodeHistoricalBytes(nil)
		require.NoError(t, err)
		assert.Equal(t, FormatEmpty, h.Format)
	})
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	assert.Contains(t, Fingerprint([2]byte{0x00, 0x04}, 0x08), "MIFARE Classic 1K")
	assert.Contains(t, Fingerprint([2]byte{0x00, 0x44}, 0x00), "MIFARE Ultralight")
	assert.Contains(t, Fingerprint([2]byte{0x03, 0x44}, 0x20), "MIFARE DESFire EV1 2K/4K/8K")
	assert.Contains(t, Fingerprint([2]byte{0x03, 0x04}, 0x28), "JCOP31")
	assert.Empty(t, Fingerprint([2]byte{0x0F, 0x0F}, 0x77))
}

func TestUIDSizeFromATQA(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CascadeLevel1, UIDSizeFromATQA([2]byte{0x00, 0x04}))
	assert.Equal(t, CascadeLevel2, UIDSizeFromATQA([2]byte{0x00, 0x44}))
	assert.Equal(t, CascadeLevel3, UIDSizeFromATQA([2]byte{0x00, 0x84}))
	assert.Equal(t, CascadeLevel(0), UIDSizeFromATQA([2]byte{0x00, 0xC4}))
}
