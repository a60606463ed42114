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

// Activation byte fields returned by TgInitAsTarget.
const (
	actBaudMask    = 0x70
	actPICC        = 0x08
	actDEP         = 0x04
	actFramingMask = 0x03

	actFramingMifare = 0x00
	actFramingActive = 0x01
	actFramingFeliCa = 0x02
)

// ActivationDescriptor describes how an external initiator activated the
// chip in target mode.
type ActivationDescriptor struct {
	// InitiatorCommand is the first command the initiator sent, as
	// returned by TgInitAsTarget.
	InitiatorCommand []byte
	Modulation       Modulation
	DEPMode          DEPMode
	DEP              bool
	// PICC is set when the initiator activated ISO14443-4 PICC emulation.
	PICC bool
}

func decodeActivationBaud(b byte) (BaudRate, error) {
	switch b & actBaudMask {
	case 0x00:
		return Baud106, nil
	case 0x10:
		return Baud212, nil
	case 0x20:
		return Baud424, nil
	}
	return BaudUndefined, errorf(KindProtocol, "activation", "unknown baud bits 0x%02X", b&actBaudMask)
}

// decodeActivationFraming returns the modulation family of a non-DEP
// activation.
func decodeActivationFraming(b byte) (ModulationType, error) {
	switch b & actFramingMask {
	case actFramingMifare:
		return ISO14443A, nil
	case actFramingFeliCa:
		return FeliCa, nil
	}
	return 0, errorf(KindProtocol, "activation", "framing 0x%02X without DEP", b&actFramingMask)
}

func decodeDEPMode(b byte) (DEPMode, error) {
	switch b & actFramingMask {
	case actFramingActive:
		return DEPActive, nil
	case actFramingMifare, actFramingFeliCa:
		return DEPPassive, nil
	}
	return DEPUndefined, errorf(KindProtocol, "activation", "DEP framing 0x%02X", b&actFramingMask)
}

// DecodeActivationMode decodes the mode byte of a TgInitAsTarget reply.
func DecodeActivationMode(b byte) (ActivationDescriptor, error) {
	var a ActivationDescriptor
	baud, err := decodeActivationBaud(b)
	if err != nil {
		return a, err
	}
	a.Modulation.BaudRate = baud
	a.PICC = b&actPICC != 0
	if b&actDEP != 0 {
		a.DEP = true
		a.Modulation.Type = DEP
		if a.DEPMode, err = decodeDEPMode(b); err != nil {
			return ActivationDescriptor{}, err
		}
		return a, nil
	}
	if a.Modulation.Type, err = decodeActivationFraming(b); err != nil {
		return ActivationDescriptor{}, err
	}
	return a, nil
}
