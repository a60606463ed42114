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
	"errors"
	"fmt"
	"io"
	"runtime"
	"syscall"

	"github.com/ZaparooProject/go-pn53x/pkg/iso14443"
)

// Kind classifies every error returned by the core.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindUnsupported
	KindProtocol
	KindTimeout
	KindIO
	KindAborted
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal error"
	case KindInvalidArgument:
		return "invalid argument"
	case KindUnsupported:
		return "not supported"
	case KindProtocol:
		return "protocol error"
	case KindTimeout:
		return "timeout"
	case KindIO:
		return "input/output error"
	case KindAborted:
		return "operation aborted"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Code returns the libnfc integer error code for the kind. Integer codes
// only exist at API boundaries that need them (CLI exit status, bindings).
func (k Kind) Code() int {
	switch k {
	case KindIO:
		return -1
	case KindInvalidArgument:
		return -2
	case KindUnsupported:
		return -3
	case KindTimeout:
		return -6
	case KindAborted:
		return -7
	case KindProtocol:
		return -90
	default:
		return -80
	}
}

// Kind sentinels. Every *Error matches the sentinel of its kind with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupported     = errors.New("not supported")
	ErrProtocol        = errors.New("protocol error")
	ErrTimeout         = errors.New("timeout")
	ErrIO              = errors.New("input/output error")
	ErrAborted         = errors.New("operation aborted")
	ErrInternal        = errors.New("internal error")
)

// Refined sentinels.
var (
	ErrUnsupportedProperty   = &Error{Kind: KindUnsupported, Err: errors.New("unsupported property")}
	ErrUnsupportedTargetKind = &Error{Kind: KindUnsupported, Err: errors.New("unsupported target kind")}
)

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindUnsupported:
		return ErrUnsupported
	case KindProtocol:
		return ErrProtocol
	case KindTimeout:
		return ErrTimeout
	case KindIO:
		return ErrIO
	case KindAborted:
		return ErrAborted
	default:
		return ErrInternal
	}
}

// Error is a core error tagged with its kind and the operation that failed.
type Error struct {
	Err  error
	Op   string
	Kind Kind
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err. Errors that did not originate in the core
// are classified by what they wrap; anything unrecognised is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var cs *ChipStatusError
	if errors.As(err, &cs) {
		return cs.Kind()
	}
	var te *TransportError
	if errors.As(err, &te) {
		if te.Type == ErrorTypeTimeout {
			return KindTimeout
		}
		return KindIO
	}
	switch {
	case errors.Is(err, iso14443.ErrBufferTooSmall),
		errors.Is(err, iso14443.ErrInvalidUIDLength),
		errors.Is(err, iso14443.ErrInvalidFragments):
		return KindInvalidArgument
	case errors.Is(err, iso14443.ErrMalformedATS), errors.Is(err, iso14443.ErrMalformedTLV):
		return KindProtocol
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrAborted):
		return KindAborted
	case errors.Is(err, ErrIO), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return KindIO
	}
	return KindInternal
}

// ChipStatusError reports a non-zero status byte returned by the chip.
// Status meanings follow the PN533 user manual, section 7.1.
type ChipStatusError struct {
	Command string
	Status  byte
}

func (e *ChipStatusError) Error() string {
	return fmt.Sprintf("%s: chip status 0x%02X (%s)", e.Command, e.Status, chipStatusMeaning(e.Status))
}

// Kind maps the status byte onto the error taxonomy.
func (e *ChipStatusError) Kind() Kind {
	switch e.Status {
	case 0x01:
		return KindTimeout
	case 0x10, 0x13, 0x27:
		return KindInvalidArgument
	case 0x12, 0x81:
		return KindUnsupported
	case 0x0D, 0x2D:
		return KindIO
	default:
		return KindProtocol
	}
}

// Is matches the sentinel of the status kind.
func (e *ChipStatusError) Is(target error) bool {
	return target == e.Kind().sentinel()
}

var chipStatusMeanings = map[byte]string{
	0x00: "success",
	0x01: "timeout",
	0x02: "CRC error",
	0x03: "parity error",
	0x04: "erroneous bit count during anti-collision",
	0x05: "framing error during mifare operation",
	0x06: "abnormal bit collision",
	0x07: "communication buffer size insufficient",
	0x09: "RF buffer overflow",
	0x0A: "RF field not activated in time",
	0x0B: "RF protocol error",
	0x0D: "overheating",
	0x0E: "internal buffer overflow",
	0x10: "invalid parameter",
	0x12: "DEP protocol not supported",
	0x13: "data format does not match",
	0x14: "authentication error",
	0x18: "target or initiator does not support NFC secure",
	0x19: "I2C bus line is busy",
	0x23: "UID check byte is wrong",
	0x25: "DEP invalid state",
	0x26: "operation not allowed",
	0x27: "wrong context for command",
	0x29: "target released by initiator",
	0x2A: "card ID mismatch",
	0x2B: "card disappeared",
	0x2C: "NFCID3 initiator/target mismatch",
	0x2D: "over-current event",
	0x2E: "NAD missing in DEP frame",
	0x81: "command not supported",
}

func chipStatusMeaning(status byte) string {
	if m, ok := chipStatusMeanings[status]; ok {
		return m
	}
	return "unknown error"
}

// Transport-level errors.
var (
	ErrTransportWrite  = errors.New("transport write failed")
	ErrTransportRead   = errors.New("transport read failed")
	ErrTransportClosed = errors.New("transport is closed")

	ErrNoACK           = errors.New("no ACK received")
	ErrNACKReceived    = errors.New("NACK received")
	ErrFrameCorrupted  = errors.New("frame corrupted")
	ErrDataTooLarge    = errors.New("data too large")
	ErrInvalidResponse = errors.New("invalid response format")

	ErrDeviceNotFound = errors.New("device not found")
	ErrUnknownDriver  = errors.New("unknown driver")
)

// ErrorType decides how retry logic treats a TransportError.
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error
	ErrorTypeTimeout
)

// TransportError wraps bus-level errors with the port they happened on
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError tags err with the bus operation and port it failed on.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTransportWriteError reports a short or failed bus write.
func NewTransportWriteError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportWrite, ErrorTypeTransient)
}

// NewTransportReadError reports a failed bus read.
func NewTransportReadError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportRead, ErrorTypeTransient)
}

// NewNoACKError reports a command the chip never acknowledged.
func NewNoACKError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrNoACK, ErrorTypeTimeout)
}

// NewNACKReceivedError reports a NACK frame in place of a response.
func NewNACKReceivedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrNACKReceived, ErrorTypeTransient)
}

// NewFrameCorruptedError reports a frame with a bad length or checksum.
func NewFrameCorruptedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrFrameCorrupted, ErrorTypeTransient)
}

// NewDataTooLargeError reports a payload the framing cannot carry.
func NewDataTooLargeError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrDataTooLarge, ErrorTypePermanent)
}

// NewClosedError reports use of a closed transport.
func NewClosedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportClosed, ErrorTypePermanent)
}

// IsRetryable reports whether repeating the command may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch KindOf(err) {
	case KindTimeout, KindIO:
		return !IsFatal(err)
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the device is gone and the
// handle should be closed rather than retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) && te.Type == ErrorTypePermanent {
		return true
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Windows error codes for device disconnection detection.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

// isDeviceGoneError checks for OS-level errors raised when a reader is
// unplugged during I/O.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	//nolint:exhaustive // Only checking specific device-gone errors
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}

	if runtime.GOOS == "windows" {
		//nolint:exhaustive // Only checking specific device-gone errors
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}
	return false
}
