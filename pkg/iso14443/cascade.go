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

// CascadeTag prefixes every anticollision fragment that is followed by
// another cascade level.
const CascadeTag byte = 0x88

const fragmentLen = 4

// CascadeLevel is the number of anticollision levels a UID needs.
type CascadeLevel int

// Cascade levels for single, double and triple size UIDs.
const (
	CascadeLevel1 CascadeLevel = 1
	CascadeLevel2 CascadeLevel = 2
	CascadeLevel3 CascadeLevel = 3
)

func (l CascadeLevel) String() string {
	return fmt.Sprintf("CL%d", int(l))
}

// UIDLen returns the UID length in bytes for the level, or 0 if invalid.
func (l CascadeLevel) UIDLen() int {
	switch l {
	case CascadeLevel1:
		return 4
	case CascadeLevel2:
		return 7
	case CascadeLevel3:
		return 10
	default:
		return 0
	}
}

// CascadeLevelOf returns the cascade level for a UID of 4, 7 or 10 bytes.
func CascadeLevelOf(uid []byte) (CascadeLevel, error) {
	switch len(uid) {
	case 4:
		return CascadeLevel1, nil
	case 7:
		return CascadeLevel2, nil
	case 10:
		return CascadeLevel3, nil
	default:
		return 0, fmt.Errorf("%w: %d bytes", ErrInvalidUIDLength, len(uid))
	}
}

// CascadeUID returns the UID as it is sent during anticollision, with a
// cascade tag in front of every level but the last.
func CascadeUID(uid []byte) ([]byte, CascadeLevel, error) {
	level, err := CascadeLevelOf(uid)
	if err != nil {
		return nil, 0, err
	}
	frags, err := SplitCascade(uid)
	if err != nil {
		return nil, 0, err
	}
	out := make([]byte, 0, len(frags)*fragmentLen)
	for _, f := range frags {
		out = append(out, f...)
	}
	return out, level, nil
}

// SplitCascade splits a UID into its 4-byte anticollision fragments.
func SplitCascade(uid []byte) ([][]byte, error) {
	level, err := CascadeLevelOf(uid)
	if err != nil {
		return nil, err
	}
	frags := make([][]byte, 0, int(level))
	rest := uid
	for i := 1; i < int(level); i++ {
		frags = append(frags, []byte{CascadeTag, rest[0], rest[1], rest[2]})
		rest = rest[3:]
	}
	last := make([]byte, fragmentLen)
	copy(last, rest)
	return append(frags, last), nil
}

// AssembleUID joins anticollision fragments back into a UID, stripping the
// cascade tags.
func AssembleUID(frags [][]byte) ([]byte, error) {
	if len(frags) == 0 || len(frags) > int(CascadeLevel3) {
		return nil, fmt.Errorf("%w: %d levels", ErrInvalidFragments, len(frags))
	}
	uid := make([]byte, 0, CascadeLevel(len(frags)).UIDLen())
	for i, f := range frags {
		if len(f) != fragmentLen {
			return nil, fmt.Errorf("%w: level %d has %d bytes", ErrInvalidFragments, i+1, len(f))
		}
		if i == len(frags)-1 {
			uid = append(uid, f...)
			break
		}
		if f[0] != CascadeTag {
			return nil, fmt.Errorf("%w: level %d lacks cascade tag", ErrInvalidFragments, i+1)
		}
		uid = append(uid, f[1:]...)
	}
	return uid, nil
}

// UncascadeUID normalises an NFCID1 as reported by a reader. Plain 4, 7 and
// 10 byte UIDs are returned unchanged; the cascaded 8 and 12 byte forms have
// their cascade tags removed.
func UncascadeUID(raw []byte) ([]byte, CascadeLevel, error) {
	switch {
	case len(raw) == 8 && raw[0] == CascadeTag:
		uid := make([]byte, 7)
		copy(uid, raw[1:])
		return uid, CascadeLevel2, nil
	case len(raw) == 12 && raw[0] == CascadeTag && raw[4] == CascadeTag:
		uid := make([]byte, 0, 10)
		uid = append(uid, raw[1:4]...)
		uid = append(uid, raw[5:]...)
		return uid, CascadeLevel3, nil
	}
	level, err := CascadeLevelOf(raw)
	if err != nil {
		return nil, 0, err
	}
	uid := make([]byte, len(raw))
	copy(uid, raw)
	return uid, level, nil
}
