// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package runcommand implements the command channel of the DS28C36, DS2476,
// DS28E16, DS28C39, DS28E38, DS28E39, DS28E83 and DS28E84 authenticators.
//
// A command is a request sent to the device, a fixed processing delay and a
// length prefixed response. Over 1-wire the request is framed with the 0x66
// start byte and CRC16; over I²C the command byte is followed by the length
// of its parameters.
package runcommand

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"

	"github.com/GermanBionicSystems/maximinterface/common"
	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// Func sends request, waits delay and reads the response in buf. The
// returned slice is the part of buf that was filled.
type Func func(request []byte, delay time.Duration, buf []byte) ([]byte, error)

// Result codes returned by the devices as the first response byte.
const (
	Success          = 0xaa
	AuthFailure      = 0x00
	InvalidOperation = 0x55
	InvalidParameter = 0x77
	InvalidSequence  = 0x33
	InternalError    = 0x22
	DeviceDisabled   = 0x88
)

// Run calls f and parses the result byte of the response, which must be
// exactly size bytes long including it. It returns the response without the
// result byte.
//
// category names the device in the returned errors.
func Run(f Func, category string, request []byte, delay time.Duration, size int) ([]byte, error) {
	buf := make([]byte, size)
	resp, err := f(request, delay, buf)
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, onewire.NewError(category, onewire.InvalidResponse, "empty response")
	}
	if err := ResultError(category, resp[0]); err != nil {
		return nil, err
	}
	if len(resp) != size {
		return nil, onewire.NewError(category, onewire.InvalidResponse, fmt.Sprintf("got %d bytes, expected %d", len(resp), size))
	}
	return resp[1:], nil
}

// ResultError maps a result byte to an error; Success maps to nil.
func ResultError(category string, result byte) error {
	var k onewire.Kind
	switch result {
	case Success:
		return nil
	case AuthFailure:
		k = onewire.Authentication
	case InvalidOperation:
		k = onewire.InvalidOperation
	case InvalidParameter:
		k = onewire.InvalidParameter
	case InvalidSequence:
		k = onewire.InvalidSequence
	case InternalError:
		k = onewire.Internal
	case DeviceDisabled:
		k = onewire.DeviceDisabled
	default:
		k = onewire.InvalidResponse
	}
	return onewire.NewError(category, k, fmt.Sprintf("result %#02x", result))
}

// OneWire returns a Func talking to the device selected by sel on m.
//
// The device is powered with the strong pull-up while it processes the
// command.
func OneWire(m onewire.Master, sel onewire.Selector) Func {
	return func(request []byte, delay time.Duration, buf []byte) ([]byte, error) {
		if len(request) > 255 {
			return nil, onewire.NewError(category, onewire.OutOfRange, "request too long")
		}
		if err := sel(m); err != nil {
			return nil, err
		}
		w := append([]byte{startCommand, byte(len(request))}, request...)
		if err := m.WriteBlock(w); err != nil {
			return nil, err
		}
		var crc [2]byte
		if err := m.ReadBlock(crc[:]); err != nil {
			return nil, err
		}
		if !common.CheckCRC16(w, 0, crc) {
			return nil, onewire.NewError(category, onewire.CRCError, "request")
		}
		if err := onewire.WriteBytePower(m, release); err != nil {
			return nil, onewire.RestoreLevel(m, err)
		}
		sleep(delay)
		if err := m.SetLevel(onewire.Normal); err != nil {
			return nil, err
		}
		// A dummy byte, then the length.
		var hdr [2]byte
		if err := m.ReadBlock(hdr[:]); err != nil {
			return nil, err
		}
		n := int(hdr[1])
		if n > len(buf) {
			return nil, onewire.NewError(category, onewire.InvalidResponse, fmt.Sprintf("response of %d bytes", n))
		}
		resp := buf[:n]
		if err := m.ReadBlock(resp); err != nil {
			return nil, err
		}
		if err := m.ReadBlock(crc[:]); err != nil {
			return nil, err
		}
		if !common.CheckCRC16(resp, common.CRC16(hdr[1:], 0), crc) {
			return nil, onewire.NewError(category, onewire.CRCError, "response")
		}
		return resp, nil
	}
}

// ByteMaster is an I²C master with byte level control, like a DS9400.
//
// Start takes the address byte including the read bit. WriteByte fails with
// an error of kind Nack when the byte is not acknowledged.
type ByteMaster interface {
	Start(addr byte) error
	Stop() error
	WriteByte(b byte) error
	ReadByteAck(ack bool) (byte, error)
}

// I2C returns a Func talking to the device at addr on b.
//
// When b implements ByteMaster the response length byte is read first and
// exactly that many bytes follow. Otherwise the response is read in a single
// transaction of len(buf)+1 bytes and its length byte is used to trim it.
//
// A nil buf sends the request only; nothing is read back.
func I2C(b i2c.Bus, addr uint16) Func {
	if bm, ok := b.(ByteMaster); ok {
		return func(request []byte, delay time.Duration, buf []byte) ([]byte, error) {
			return byteCommand(bm, byte(addr<<1), request, delay, buf)
		}
	}
	return func(request []byte, delay time.Duration, buf []byte) ([]byte, error) {
		w, err := frame(request)
		if err != nil {
			return nil, err
		}
		if err := b.Tx(addr, w, nil); err != nil {
			return nil, onewire.WrapError(category, onewire.Nack, err)
		}
		if buf == nil {
			return nil, nil
		}
		sleep(delay)
		r := make([]byte, len(buf)+1)
		if err := b.Tx(addr, nil, r); err != nil {
			return nil, onewire.WrapError(category, onewire.Nack, err)
		}
		n := int(r[0])
		if n > len(buf) {
			return nil, onewire.NewError(category, onewire.InvalidResponse, fmt.Sprintf("response of %d bytes", n))
		}
		return buf[:copy(buf, r[1:1+n])], nil
	}
}

//

const (
	category     = "runcommand"
	startCommand = 0x66
	release      = 0xaa
)

var sleep = time.Sleep

// frame builds the I²C request: the command byte, then the length of the
// parameters if there are any.
func frame(request []byte) ([]byte, error) {
	if len(request) > 256 {
		return nil, onewire.NewError(category, onewire.OutOfRange, "request too long")
	}
	if len(request) <= 1 {
		return request, nil
	}
	w := append([]byte{request[0], byte(len(request) - 1)}, request[1:]...)
	return w, nil
}

func byteCommand(m ByteMaster, addr byte, request []byte, delay time.Duration, buf []byte) ([]byte, error) {
	w, err := frame(request)
	if err != nil {
		return nil, err
	}
	if err := start(m, addr); err != nil {
		return nil, err
	}
	for _, b := range w {
		if err := m.WriteByte(b); err != nil {
			m.Stop()
			return nil, err
		}
	}
	if err := m.Stop(); err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, nil
	}
	sleep(delay)
	if err := m.Start(addr | 1); err != nil {
		m.Stop()
		return nil, err
	}
	n, err := m.ReadByteAck(true)
	if err != nil {
		m.Stop()
		return nil, err
	}
	if int(n) > len(buf) {
		m.Stop()
		return nil, onewire.NewError(category, onewire.InvalidResponse, fmt.Sprintf("response of %d bytes", n))
	}
	resp := buf[:n]
	for i := range resp {
		if resp[i], err = m.ReadByteAck(i != len(resp)-1); err != nil {
			m.Stop()
			return nil, err
		}
	}
	return resp, m.Stop()
}

// start addresses the device, falling back to the general call address when
// it does not acknowledge.
func start(m ByteMaster, addr byte) error {
	err := m.Start(addr)
	if err != nil && addr != 0 && errors.Is(err, onewire.ErrNack) {
		err = m.Start(0)
	}
	if err != nil {
		m.Stop()
	}
	return err
}
