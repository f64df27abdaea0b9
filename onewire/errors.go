// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewire

import (
	"fmt"

	ponewire "periph.io/x/conn/v3/onewire"
)

// Kind classifies an Error independently of the driver that raised it.
type Kind int

// Transport kinds.
const (
	Nack Kind = iota + 1
	BusShort
	Timeout
	HardwareError
	UartError
)

// 1-Wire kinds.
const (
	NoSlave Kind = iota + 10
	ShortDetected
	InvalidSpeed
	InvalidLevel
	CRCError
)

// Protocol kinds.
const (
	OperationFailure Kind = iota + 20
	CommunicationError
	DataError
	InvalidResponse
	OutOfRange
)

// Authenticator kinds, matching the result byte returned by the device.
const (
	InvalidOperation Kind = iota + 30
	InvalidParameter
	InvalidSequence
	Internal
	DeviceDisabled
	Authentication
)

func (k Kind) String() string {
	switch k {
	case Nack:
		return "not acknowledged"
	case BusShort:
		return "bus short"
	case Timeout:
		return "timeout"
	case HardwareError:
		return "hardware error"
	case UartError:
		return "uart error"
	case NoSlave:
		return "no slave"
	case ShortDetected:
		return "short detected"
	case InvalidSpeed:
		return "invalid speed"
	case InvalidLevel:
		return "invalid level"
	case CRCError:
		return "CRC error"
	case OperationFailure:
		return "operation failure"
	case CommunicationError:
		return "communication error"
	case DataError:
		return "data error"
	case InvalidResponse:
		return "invalid response"
	case OutOfRange:
		return "argument out of range"
	case InvalidOperation:
		return "invalid operation"
	case InvalidParameter:
		return "invalid parameter"
	case InvalidSequence:
		return "invalid sequence"
	case Internal:
		return "internal error"
	case DeviceDisabled:
		return "device disabled"
	case Authentication:
		return "authentication error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is returned by masters and device drivers in this module.
//
// errors.Is matches on Kind, and on Category too when the target sets one, so
// errors.Is(err, ErrTimeout) holds for a timeout raised by any driver.
//
// Error implements periph's onewire.BusError, onewire.ShortedBusError and
// onewire.NoDevicesError so code written against periph classifies it.
type Error struct {
	Category string // driver that raised the error, e.g. "ds2480b"
	Kind     Kind
	Msg      string // optional detail
	Err      error  // underlying transport error, if any
}

// NewError returns an Error for category and kind with an optional detail.
func NewError(category string, kind Kind, msg string) *Error {
	return &Error{Category: category, Kind: kind, Msg: msg}
}

// WrapError returns an Error of kind carrying err as its cause.
func WrapError(category string, kind Kind, err error) *Error {
	return &Error{Category: category, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Category != "" {
		s = e.Category + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the transport error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements the errors.Is hook.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Category == "" || t.Category == e.Category)
}

// BusError implements onewire.BusError: the fault lies on the 1-Wire side,
// not in the bridge.
func (e *Error) BusError() bool {
	switch e.Kind {
	case NoSlave, ShortDetected, BusShort, CRCError, CommunicationError:
		return true
	}
	return false
}

// IsShorted implements onewire.ShortedBusError.
func (e *Error) IsShorted() bool {
	return e.Kind == ShortDetected || e.Kind == BusShort
}

// NoDevices implements onewire.NoDevicesError.
func (e *Error) NoDevices() bool {
	return e.Kind == NoSlave
}

// Sentinels for errors.Is. They carry no category and so match the kind
// raised by any driver.
var (
	ErrNack             = &Error{Kind: Nack}
	ErrBusShort         = &Error{Kind: BusShort}
	ErrTimeout          = &Error{Kind: Timeout}
	ErrHardware         = &Error{Kind: HardwareError}
	ErrUart             = &Error{Kind: UartError}
	ErrNoSlave          = &Error{Kind: NoSlave}
	ErrShortDetected    = &Error{Kind: ShortDetected}
	ErrInvalidSpeed     = &Error{Kind: InvalidSpeed}
	ErrInvalidLevel     = &Error{Kind: InvalidLevel}
	ErrCRC              = &Error{Kind: CRCError}
	ErrOperationFailure = &Error{Kind: OperationFailure}
	ErrCommunication    = &Error{Kind: CommunicationError}
	ErrData             = &Error{Kind: DataError}
	ErrInvalidResponse  = &Error{Kind: InvalidResponse}
	ErrOutOfRange       = &Error{Kind: OutOfRange}
	ErrInvalidOperation = &Error{Kind: InvalidOperation}
	ErrInvalidParameter = &Error{Kind: InvalidParameter}
	ErrInvalidSequence  = &Error{Kind: InvalidSequence}
	ErrInternal         = &Error{Kind: Internal}
	ErrDeviceDisabled   = &Error{Kind: DeviceDisabled}
	ErrAuthentication   = &Error{Kind: Authentication}
)

var _ ponewire.BusError = &Error{}
var _ ponewire.ShortedBusError = &Error{}
var _ ponewire.NoDevicesError = &Error{}
