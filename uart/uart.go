// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package uart defines the serial port capability used by the DS2480B,
// DS9400 and DS9481P bridges.
package uart

import (
	"errors"
	"io"

	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// Port is a byte oriented serial port.
//
// Read must return (0, nil) or io.EOF once its read timeout elapsed without
// data. ReadFull turns that into an error of kind Timeout.
type Port interface {
	io.Reader
	io.Writer
	// SetBaudRate changes the line rate, in bits per second.
	SetBaudRate(baud int) error
	// SendBreak holds the line low for at least 2ms.
	SendBreak() error
	// ClearReadBuffer discards any byte received and not read yet.
	ClearReadBuffer() error
}

// WriteByte writes a single byte.
func WriteByte(p Port, b byte) error {
	return Write(p, []byte{b})
}

// Write writes all of w.
func Write(p Port, w []byte) error {
	for len(w) != 0 {
		n, err := p.Write(w)
		if err != nil {
			return onewire.WrapError("uart", onewire.UartError, err)
		}
		if n == 0 {
			return onewire.NewError("uart", onewire.UartError, "short write")
		}
		w = w[n:]
	}
	return nil
}

// ReadByte reads a single byte.
func ReadByte(p Port) (byte, error) {
	var b [1]byte
	err := ReadFull(p, b[:])
	return b[0], err
}

// ReadFull fills r.
func ReadFull(p Port, r []byte) error {
	for len(r) != 0 {
		n, err := p.Read(r)
		r = r[n:]
		if err != nil {
			if errors.Is(err, io.EOF) {
				return onewire.NewError("uart", onewire.Timeout, "read")
			}
			return onewire.WrapError("uart", onewire.UartError, err)
		}
		if n == 0 {
			return onewire.NewError("uart", onewire.Timeout, "read")
		}
	}
	return nil
}
