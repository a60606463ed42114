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

// Package iso14443 implements the byte-level codec shared by the ISO/IEC 14443
// selection paths: CRC_A/CRC_B, cascade UID handling and ATS decoding.
package iso14443

import "errors"

// Common errors.
var (
	ErrBufferTooSmall   = errors.New("iso14443: buffer too small")
	ErrInvalidUIDLength = errors.New("iso14443: invalid UID length")
	ErrInvalidFragments = errors.New("iso14443: invalid cascade fragments")
	ErrMalformedATS     = errors.New("iso14443: malformed ATS")
	ErrMalformedTLV     = errors.New("iso14443: malformed compact-TLV")
)

const (
	crcAInitial uint16 = 0x6363
	crcBInitial uint16 = 0xFFFF

	// CRCLen is the number of bytes a CRC occupies on the wire.
	CRCLen = 2
)

func crc16(initial uint16, data []byte) uint16 {
	crc := initial
	for _, b := range data {
		bt := b ^ byte(crc)
		bt ^= bt << 4
		crc = (crc >> 8) ^ uint16(bt)<<8 ^ uint16(bt)<<3 ^ uint16(bt)>>4
	}
	return crc
}

// CRCA computes the ISO/IEC 14443-3 type A CRC of data.
func CRCA(data []byte) uint16 {
	return crc16(crcAInitial, data)
}

// CRCB computes the ISO/IEC 14443-3 type B CRC of data.
func CRCB(data []byte) uint16 {
	return ^crc16(crcBInitial, data)
}

func putCRC(buf []byte, n int, crc uint16) error {
	if n < 0 || n > len(buf) || len(buf)-n < CRCLen {
		return ErrBufferTooSmall
	}
	buf[n] = byte(crc)
	buf[n+1] = byte(crc >> 8)
	return nil
}

// PutCRCA writes the CRC_A of buf[:n] little-endian into buf[n:n+2].
func PutCRCA(buf []byte, n int) error {
	if n < 0 || n > len(buf) {
		return ErrBufferTooSmall
	}
	return putCRC(buf, n, CRCA(buf[:n]))
}

// PutCRCB writes the CRC_B of buf[:n] little-endian into buf[n:n+2].
func PutCRCB(buf []byte, n int) error {
	if n < 0 || n > len(buf) {
		return ErrBufferTooSmall
	}
	return putCRC(buf, n, CRCB(buf[:n]))
}

// AppendCRCA returns data followed by its CRC_A.
func AppendCRCA(data []byte) []byte {
	crc := CRCA(data)
	return append(data, byte(crc), byte(crc>>8))
}

// AppendCRCB returns data followed by its CRC_B.
func AppendCRCB(data []byte) []byte {
	crc := CRCB(data)
	return append(data, byte(crc), byte(crc>>8))
}

// CheckCRCA reports whether the last two bytes of frame are the CRC_A of
// the bytes before them.
func CheckCRCA(frame []byte) bool {
	if len(frame) < CRCLen {
		return false
	}
	n := len(frame) - CRCLen
	crc := CRCA(frame[:n])
	return frame[n] == byte(crc) && frame[n+1] == byte(crc>>8)
}

// CheckCRCB reports whether the last two bytes of frame are the CRC_B of
// the bytes before them.
func CheckCRCB(frame []byte) bool {
	if len(frame) < CRCLen {
		return false
	}
	n := len(frame) - CRCLen
	crc := CRCB(frame[:n])
	return frame[n] == byte(crc) && frame[n+1] == byte(crc>>8)
}
