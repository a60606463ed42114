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

// Frame identifiers (TFI).
const (
	HostToChip = 0xD4
	ChipToHost = 0xD5
	// ErrorTFI marks the application level error frame.
	ErrorTFI = 0x7F
)

const (
	Preamble   = 0x00
	StartCode1 = 0x00
	StartCode2 = 0xFF
	Postamble  = 0x00
)

// Payload limits, counting the TFI byte.
const (
	MaxNormalLen   = 255
	MaxExtendedLen = 265
	// Overhead is the framing around a normal payload:
	// preamble, start code, LEN, LCS, DCS, postamble.
	Overhead = 7
	// ExtendedOverhead adds the FF FF marker and the second length byte.
	ExtendedOverhead = 10
	// MaxFrameLen is the longest frame on the wire.
	MaxFrameLen = MaxExtendedLen + ExtendedOverhead
)

var (
	AckFrame   = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}
	NackFrame  = []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}
	ErrorFrame = []byte{0x00, 0x00, 0xFF, 0x01, 0xFF, 0x7F, 0x81, 0x00}
)
