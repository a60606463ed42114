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
	"errors"
	"fmt"
)

var (
	// ErrIncomplete means more bytes are needed to finish the frame.
	ErrIncomplete = errors.New("frame: incomplete")
	ErrChecksum   = errors.New("frame: checksum mismatch")
	ErrMalformed  = errors.New("frame: malformed")
)

// Kind classifies a frame.
type Kind int

const (
	KindInfo Kind = iota
	KindACK
	KindNACK
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindInfo:
		return "information"
	case KindACK:
		return "ACK"
	case KindNACK:
		return "NACK"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Frame is one decoded frame. Data aliases the parsed buffer.
type Frame struct {
	Data []byte
	Kind Kind
	TFI  byte
}

// Body returns what a transport hands upwards: the response code and data
// of an information frame, or the error TFI alone for an error frame.
func (f Frame) Body() ([]byte, error) {
	switch {
	case f.Kind == KindError:
		return []byte{ErrorTFI}, nil
	case f.Kind == KindInfo && f.TFI == ChipToHost:
		return f.Data, nil
	case f.Kind == KindInfo:
		return nil, fmt.Errorf("%w: TFI 0x%02X", ErrMalformed, f.TFI)
	default:
		return nil, fmt.Errorf("%w: unexpected %s frame", ErrMalformed, f.Kind)
	}
}

// Parse decodes the first frame in buf, skipping anything before the start
// code. n is the number of bytes the caller may drop: the whole frame on
// success, the leading garbage on ErrIncomplete and the damaged header or
// frame on ErrChecksum and ErrMalformed.
func Parse(buf []byte) (f Frame, n int, err error) {
	i := bytes.Index(buf, []byte{StartCode1, StartCode2})
	if i < 0 {
		n = len(buf)
		if n > 0 && buf[n-1] == StartCode1 {
			n--
		}
		return Frame{}, n, ErrIncomplete
	}
	p := i + 2
	if len(buf) < p+2 {
		return Frame{}, i, ErrIncomplete
	}

	length, lcs := int(buf[p]), buf[p+1]
	start := p + 2
	switch {
	case length == 0x00 && lcs == 0xFF:
		return Frame{Kind: KindACK}, skipPostamble(buf, start), nil
	case length == 0xFF && lcs == 0x00:
		return Frame{Kind: KindNACK}, skipPostamble(buf, start), nil
	case length == 0xFF && lcs == 0xFF:
		if len(buf) < p+5 {
			return Frame{}, i, ErrIncomplete
		}
		hi, lo := buf[p+2], buf[p+3]
		if hi+lo+buf[p+4] != 0 {
			return Frame{}, p, fmt.Errorf("%w: extended length", ErrChecksum)
		}
		length = int(hi)<<8 | int(lo)
		start = p + 5
	case byte(length)+lcs != 0:
		return Frame{}, p, fmt.Errorf("%w: length", ErrChecksum)
	}

	if length == 0 || length > MaxExtendedLen {
		return Frame{}, start, fmt.Errorf("%w: length %d", ErrMalformed, length)
	}
	end := start + length
	if len(buf) < end+1 {
		return Frame{}, i, ErrIncomplete
	}
	if Sum(buf[start:end+1]) != 0 {
		return Frame{}, end + 1, fmt.Errorf("%w: data", ErrChecksum)
	}

	f = Frame{TFI: buf[start], Data: buf[start+1 : end]}
	if f.TFI == ErrorTFI {
		f.Kind = KindError
	}
	return f, skipPostamble(buf, end+1), nil
}

func skipPostamble(buf []byte, n int) int {
	if n < len(buf) && buf[n] == Postamble {
		return n + 1
	}
	return n
}

// Decoder reassembles frames from a byte stream such as a serial port.
type Decoder struct {
	buf []byte
}

// Write buffers p. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Next returns the next frame, or ErrIncomplete when the buffered bytes do
// not hold one yet. Damaged frames are reported once and discarded. The
// returned Data stays valid across later writes.
func (d *Decoder) Next() (Frame, error) {
	f, n, err := Parse(d.buf)
	if err == nil {
		f.Data = bytes.Clone(f.Data)
	}
	d.buf = append(d.buf[:0], d.buf[n:]...)
	return f, err
}

// Buffered returns the number of bytes waiting for a complete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset drops buffered bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}
