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

package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var firmwareResponse = []byte{0x00, 0x00, 0xFF, 0x06, 0xFA, 0xD5, 0x03, 0x32, 0x01, 0x06, 0x07, 0xE8, 0x00}

func TestCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cmd  []byte
		want []byte
	}{
		{
			name: "GetFirmwareVersion",
			cmd:  []byte{0x02},
			want: []byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD4, 0x02, 0x2A, 0x00},
		},
		{
			name: "SAMConfiguration",
			cmd:  []byte{0x14, 0x01, 0x14, 0x01},
			want: []byte{0x00, 0x00, 0xFF, 0x05, 0xFB, 0xD4, 0x14, 0x01, 0x14, 0x01, 0x02, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Command(tt.cmd, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAppendExtended(t *testing.T) {
	t.Parallel()

	body := append([]byte{0x40, 0x01}, bytes.Repeat([]byte{0xA5}, 258)...)
	out, err := Append(nil, HostToChip, body, true)
	require.NoError(t, err)

	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x01, 0x05, 0xFA}, out[:8])
	assert.Len(t, out, len(body)+1+ExtendedOverhead)

	f, n, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, len(out), n)
	assert.Equal(t, byte(HostToChip), f.TFI)
	assert.Equal(t, body, f.Data)
}

func TestAppendLimits(t *testing.T) {
	t.Parallel()

	_, err := Append(nil, HostToChip, make([]byte, MaxNormalLen-1), false)
	require.NoError(t, err)

	_, err = Append(nil, HostToChip, make([]byte, MaxNormalLen), false)
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = Append(nil, HostToChip, make([]byte, MaxExtendedLen-1), true)
	require.NoError(t, err)

	_, err = Append(nil, HostToChip, make([]byte, MaxExtendedLen), true)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    []byte
		body  []byte
		kind  Kind
		wantN int
	}{
		{name: "ACK", in: AckFrame, kind: KindACK, wantN: 6},
		{name: "NACK", in: NackFrame, kind: KindNACK, wantN: 6},
		{name: "error frame", in: ErrorFrame, kind: KindError, wantN: 8, body: []byte{ErrorTFI}},
		{name: "response", in: firmwareResponse, kind: KindInfo, wantN: 13, body: []byte{0x03, 0x32, 0x01, 0x06, 0x07}},
		{
			name:  "leading garbage",
			in:    append([]byte{0x01, 0xFF, 0x7E}, firmwareResponse...),
			kind:  KindInfo,
			wantN: 16,
			body:  []byte{0x03, 0x32, 0x01, 0x06, 0x07},
		},
		{
			name:  "no preamble or postamble",
			in:    firmwareResponse[1 : len(firmwareResponse)-1],
			kind:  KindInfo,
			wantN: 11,
			body:  []byte{0x03, 0x32, 0x01, 0x06, 0x07},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f, n, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, tt.wantN, n)
			if tt.body != nil {
				body, err := f.Body()
				require.NoError(t, err)
				assert.Equal(t, tt.body, body)
			}
		})
	}
}

func TestParseIncomplete(t *testing.T) {
	t.Parallel()

	// The frame is complete once its DCS arrived.
	for k := range len(firmwareResponse) - 1 {
		_, n, err := Parse(firmwareResponse[:k])
		require.ErrorIs(t, err, ErrIncomplete, "prefix %d", k)
		assert.LessOrEqual(t, n, 1, "prefix %d", k)
	}
}

func TestParseDamaged(t *testing.T) {
	t.Parallel()

	badLCS := append([]byte(nil), firmwareResponse...)
	badLCS[4] = 0xFB
	_, n, err := Parse(badLCS)
	require.ErrorIs(t, err, ErrChecksum)
	assert.Equal(t, 3, n)

	badDCS := append([]byte(nil), firmwareResponse...)
	badDCS[11] = 0xE9
	_, n, err = Parse(badDCS)
	require.ErrorIs(t, err, ErrChecksum)
	assert.Equal(t, 12, n)

	badExtended := []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x01, 0x05, 0x00}
	_, _, err = Parse(badExtended)
	require.ErrorIs(t, err, ErrChecksum)

	tooLong := []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x02, 0x00, 0xFE}
	_, _, err = Parse(tooLong)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestBodyRejectsUnexpectedFrames(t *testing.T) {
	t.Parallel()

	cmd, err := Command([]byte{0x02}, false)
	require.NoError(t, err)
	f, _, err := Parse(cmd)
	require.NoError(t, err)
	_, err = f.Body()
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Frame{Kind: KindACK}.Body()
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecoderByteByByte(t *testing.T) {
	t.Parallel()

	stream := append(append([]byte{0xFF}, AckFrame...), firmwareResponse...)
	var d Decoder
	var frames []Frame
	for _, b := range stream {
		_, _ = d.Write([]byte{b})
		for {
			f, err := d.Next()
			if err != nil {
				require.ErrorIs(t, err, ErrIncomplete)
				break
			}
			frames = append(frames, f)
		}
	}

	require.Len(t, frames, 2)
	assert.Equal(t, KindACK, frames[0].Kind)
	assert.Equal(t, KindInfo, frames[1].Kind)
	assert.Equal(t, []byte{0x03, 0x32, 0x01, 0x06, 0x07}, frames[1].Data)
	assert.LessOrEqual(t, d.Buffered(), 1)
}

func TestDecoderRecoversFromDamage(t *testing.T) {
	t.Parallel()

	bad := append([]byte(nil), firmwareResponse...)
	bad[11]++

	var d Decoder
	_, _ = d.Write(bad)
	_, _ = d.Write(firmwareResponse)

	_, err := d.Next()
	require.ErrorIs(t, err, ErrChecksum)

	f, err := d.Next()
	require.NoError(t, err)
	_, _ = d.Write(bytes.Repeat([]byte{0xEE}, 32))
	assert.Equal(t, []byte{0x03, 0x32, 0x01, 0x06, 0x07}, f.Data)

	d.Reset()
	assert.Zero(t, d.Buffered())
}

func TestChecksum(t *testing.T) {
	t.Parallel()

	assert.Equal(t, byte(0), Checksum(nil))
	assert.Equal(t, byte(0x2A), Checksum([]byte{0xD4, 0x02}))
	assert.Equal(t, byte(0x00), Sum([]byte{0xFF, 0x01}))
}

func TestKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ACK", KindACK.String())
	assert.Equal(t, "error", KindError.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func TestBufferPool(t *testing.T) {
	t.Parallel()

	small := GetBuffer(4)
	assert.Len(t, small, 4)
	assert.Equal(t, SmallBufferSize, cap(small))
	small[0] = 0xAA
	PutBuffer(small)

	frameBuf := GetFrameBuffer()
	assert.Len(t, frameBuf, FrameBufferSize)
	PutBuffer(frameBuf)

	assert.Len(t, GetBuffer(FrameBufferSize+1), FrameBufferSize+1)
	assert.Nil(t, GetBuffer(-1))
	PutBuffer(nil)
}
