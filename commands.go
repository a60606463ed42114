// go-pn53x
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-pn53x.
//
// go-pn53x is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-pn53x is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-pn53x; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package pn53x

// PN53x command codes
const (
	cmdDiagnose            = 0x00
	cmdGetFirmwareVersion  = 0x02
	cmdGetGeneralStatus    = 0x04
	cmdReadRegister        = 0x06
	cmdWriteRegister       = 0x08
	cmdSetParameters       = 0x12
	cmdSamConfiguration    = 0x14
	cmdPowerDown           = 0x16
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInCommunicateThru   = 0x42
	cmdInDeselect          = 0x44
	cmdInListPassiveTarget = 0x4A
	cmdInATR               = 0x50
	cmdInRelease           = 0x52
	cmdInSelect            = 0x54
	cmdInJumpForDEP        = 0x56
	cmdInAutoPoll          = 0x60
	cmdTgGetData           = 0x86
	cmdTgGetInitiatorCmd   = 0x88
	cmdTgInitAsTarget      = 0x8C
	cmdTgSetData           = 0x8E
	cmdTgResponseToInit    = 0x90

	// responseError is the response code of a syntax error frame.
	responseError = 0x7F
)

var commandNames = map[byte]string{
	cmdDiagnose:            "Diagnose",
	cmdGetFirmwareVersion:  "GetFirmwareVersion",
	cmdGetGeneralStatus:    "GetGeneralStatus",
	cmdReadRegister:        "ReadRegister",
	cmdWriteRegister:       "WriteRegister",
	cmdSetParameters:       "SetParameters",
	cmdSamConfiguration:    "SAMConfiguration",
	cmdPowerDown:           "PowerDown",
	cmdRFConfiguration:     "RFConfiguration",
	cmdInDataExchange:      "InDataExchange",
	cmdInCommunicateThru:   "InCommunicateThru",
	cmdInDeselect:          "InDeselect",
	cmdInListPassiveTarget: "InListPassiveTarget",
	cmdInATR:               "InATR",
	cmdInRelease:           "InRelease",
	cmdInSelect:            "InSelect",
	cmdInJumpForDEP:        "InJumpForDEP",
	cmdInAutoPoll:          "InAutoPoll",
	cmdTgGetData:           "TgGetData",
	cmdTgGetInitiatorCmd:   "TgGetInitiatorCommand",
	cmdTgInitAsTarget:      "TgInitAsTarget",
	cmdTgSetData:           "TgSetData",
	cmdTgResponseToInit:    "TgResponseToInitiator",
}

// CommandName returns the user manual name of a command code.
func CommandName(cmd byte) string {
	if n, ok := commandNames[cmd]; ok {
		return n
	}
	return "Unknown"
}

// RFConfiguration items
const (
	rfItemField      = 0x01
	rfItemTimings    = 0x02
	rfItemMaxRtyCOM  = 0x04
	rfItemMaxRetries = 0x05
)

// SetParameters flags
const (
	paramNADUsed      = 0x01
	paramDIDUsed      = 0x02
	paramAutoATRRes   = 0x04
	paramAutoRATS     = 0x10
	paramISO14443_4   = 0x20
	paramRemovePrePos = 0x40
)

// CIU registers
const (
	regCIUMode       uint16 = 0x6301
	regCIUTxMode     uint16 = 0x6302
	regCIURxMode     uint16 = 0x6303
	regCIUTxControl  uint16 = 0x6304
	regCIUTxAuto     uint16 = 0x6305
	regCIUManualRCV  uint16 = 0x630D
	regCIUTMode      uint16 = 0x631A
	regCIUTPrescaler uint16 = 0x631B
	regCIUTReloadHi  uint16 = 0x631C
	regCIUTReloadLo  uint16 = 0x631D
	regCIUTCounterHi uint16 = 0x631E
	regCIUTCounterLo uint16 = 0x631F
	regCIUCommand    uint16 = 0x6331
	regCIUCommIrq    uint16 = 0x6334
	regCIUStatus2    uint16 = 0x6338
	regCIUFIFOData   uint16 = 0x6339
	regCIUFIFOLevel  uint16 = 0x633A
	regCIUControl    uint16 = 0x633C
	regCIUBitFraming uint16 = 0x633D
)

// CIU register fields
const (
	symTxCRCEnable    byte = 0x80
	symRxCRCEnable    byte = 0x80
	symTxSpeed        byte = 0x70
	symRxSpeed        byte = 0x70
	symFraming        byte = 0x03
	symRxNoError      byte = 0x08
	symRxMultiple     byte = 0x04
	symForce100ASK    byte = 0x40
	symParityDisable  byte = 0x10
	symMFCrypto1On    byte = 0x08
	symRxLastBits     byte = 0x07
	symFIFOLevel      byte = 0x7F
	symFlushBuffer    byte = 0x80
	symStartSend      byte = 0x80
	symTxLastBits     byte = 0x07
	symInitiator      byte = 0x10
	symTPrescalerHi   byte = 0x0F
	symTx2RFEnable    byte = 0x02
	symTx1RFEnable    byte = 0x01
	framingISO14443A  byte = 0x00
	framingFeliCa     byte = 0x02
	framingISO14443B  byte = 0x03
	ciuCommandIdle    byte = 0x00
	ciuCommandReceive byte = 0x08

	ciuCommandTransceive byte = 0x0C

	// ciuFIFOSize is the depth of the CIU FIFO in bytes.
	ciuFIFOSize = 64
)

// InListPassiveTarget BrTy values
const (
	brTyISO14443A106 = 0x00
	brTyFeliCa212    = 0x01
	brTyFeliCa424    = 0x02
	brTyISO14443B106 = 0x03
	brTyJewel106     = 0x04
	brTyISO14443B212 = 0x06
	brTyISO14443B424 = 0x07
	brTyISO14443B847 = 0x08
)

// InAutoPoll target types
const (
	pttGeneric106    = 0x00
	pttGeneric212    = 0x01
	pttGeneric424    = 0x02
	pttISO14443B106  = 0x03
	pttJewel106      = 0x04
	pttMifare        = 0x10
	pttFeliCa212     = 0x11
	pttFeliCa424     = 0x12
	pttISO14443A4106 = 0x20
	pttISO14443B4106 = 0x23
	pttDEPPassive106 = 0x40
	pttDEPPassive212 = 0x41
	pttDEPPassive424 = 0x42
	pttDEPActive106  = 0x80
	pttDEPActive212  = 0x81
	pttDEPActive424  = 0x82
)

// TgInitAsTarget mode bits
const (
	tgModePassiveOnly = 0x01
	tgModeDEPOnly     = 0x02
	tgModePICCOnly    = 0x04
)

// PowerDownWakeupFlags provides constants for PowerDown wake-up sources
const (
	WakeupHSU     byte = 0x01 // Wake-up by High Speed UART
	WakeupSPI     byte = 0x02 // Wake-up by SPI
	WakeupI2C     byte = 0x04 // Wake-up by I2C
	WakeupGPIOP32 byte = 0x08 // Wake-up by GPIO P32
	WakeupGPIOP34 byte = 0x10 // Wake-up by GPIO P34
	WakeupRF      byte = 0x20 // Wake-up by RF field
	WakeupINT1    byte = 0x80 // Wake-up by GPIO P72/INT1
)

// SAMMode represents the SAM configuration mode
type SAMMode byte

const (
	// SAMModeNormal - normal mode (default)
	SAMModeNormal SAMMode = 0x01
	// SAMModeVirtualCard - Virtual Card mode
	SAMModeVirtualCard SAMMode = 0x02
	// SAMModeWiredCard - Wired Card mode
	SAMModeWiredCard SAMMode = 0x03
	// SAMModeDualCard - Dual Card mode
	SAMModeDualCard SAMMode = 0x04
)
