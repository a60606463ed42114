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
	"errors"
	"fmt"
)

// ErrTooLarge is returned for bodies no frame format can carry.
var ErrTooLarge = errors.New("frame: payload too large")

// Append appends an information frame carrying tfi and body to dst. Bodies
// too long for a normal frame use the extended format when extended is set.
func Append(dst []byte, tfi byte, body []byte, extended bool) ([]byte, error) {
	n := len(body) + 1
	switch {
	case n <= MaxNormalLen:
		dst = append(dst, Preamble, StartCode1, StartCode2, byte(n), -byte(n))
	case extended && n <= MaxExtendedLen:
		hi, lo := byte(n>>8), byte(n)
		dst = append(dst, Preamble, StartCode1, StartCode2, 0xFF, 0xFF, hi, lo, -(hi + lo))
	default:
		return dst, fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}
	dst = append(dst, tfi)
	dst = append(dst, body...)
	return append(dst, -(tfi + Sum(body)), Postamble), nil
}

// Command frames a host command, opcode first.
func Command(cmd []byte, extended bool) ([]byte, error) {
	return Append(make([]byte, 0, len(cmd)+ExtendedOverhead+1), HostToChip, cmd, extended)
}
