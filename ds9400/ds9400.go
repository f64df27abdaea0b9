// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds9400 drives the DS9400 serial to I²C adapter.
//
// The DS9400 takes single character commands on its UART: 'S' start, 'P'
// stop, 'Q' write a byte, 'R' and 'N' read a byte with and without
// acknowledge, 'C' configure. Dev exposes those and implements periph's
// i2c.Bus on top of them.
package ds9400

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/maximinterface/onewire"
	"github.com/GermanBionicSystems/maximinterface/uart"
)

// Awake is the byte sent by the DS9400 when it is ready for commands.
const Awake = 0xa5

// New returns a handle to a DS9400 on port. Nothing is sent.
func New(port uart.Port) *Dev {
	return &Dev{port: port}
}

// Dev is a handle to a DS9400.
type Dev struct {
	mu   sync.Mutex
	port uart.Port
}

func (d *Dev) String() string {
	return fmt.Sprintf("DS9400{%s}", d.port)
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// WaitAwake reads until the awake notification shows up. It fails with a
// Timeout error if the port stays silent.
func (d *Dev) WaitAwake() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		b, err := uart.ReadByte(d.port)
		if err != nil {
			return err
		}
		if b == Awake {
			return nil
		}
	}
}

// Configure sends a configuration command.
func (d *Dev) Configure(c byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uart.Write(d.port, []byte{'C', c})
}

// Start generates a start condition followed by the address byte, which
// carries the read bit.
func (d *Dev) Start(addr byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.start(addr)
}

// Stop generates a stop condition.
func (d *Dev) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop()
}

// WriteByte writes b and returns an error of kind Nack when the slave does
// not acknowledge it.
func (d *Dev) WriteByte(b byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeByte(b)
}

// ReadByteAck reads a byte and acknowledges it if ack is set.
func (d *Dev) ReadByteAck(ack bool) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readByte(ack)
}

// Tx implements i2c.Bus.
//
// The bus is always released with a stop, including on failure.
func (d *Dev) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7f {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("address %#x", addr))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.tx(byte(addr<<1), w, r)
	if serr := d.stop(); err == nil {
		err = serr
	}
	return err
}

// SetSpeed implements i2c.Bus.
//
// The DS9400 runs at a fixed rate.
func (d *Dev) SetSpeed(f physic.Frequency) error {
	return onewire.NewError(category, onewire.InvalidOperation, "bus speed cannot be changed")
}

//

const category = "ds9400"

func (d *Dev) tx(a byte, w, r []byte) error {
	if len(w) != 0 || len(r) == 0 {
		if err := d.start(a); err != nil {
			return err
		}
		for _, b := range w {
			if err := d.writeByte(b); err != nil {
				return err
			}
		}
	}
	if len(r) == 0 {
		return nil
	}
	// Repeated start.
	if err := d.start(a | 1); err != nil {
		return err
	}
	for i := range r {
		b, err := d.readByte(i != len(r)-1)
		if err != nil {
			return err
		}
		r[i] = b
	}
	return nil
}

func (d *Dev) start(addr byte) error {
	if err := uart.WriteByte(d.port, 'S'); err != nil {
		return err
	}
	return d.writeByte(addr)
}

func (d *Dev) stop() error {
	return uart.WriteByte(d.port, 'P')
}

func (d *Dev) writeByte(b byte) error {
	if err := d.port.ClearReadBuffer(); err != nil {
		return err
	}
	if err := uart.Write(d.port, []byte{'Q', b}); err != nil {
		return err
	}
	ack, err := uart.ReadByte(d.port)
	if err != nil {
		return err
	}
	if ack != 0 {
		return onewire.NewError(category, onewire.Nack, fmt.Sprintf("byte %#02x", b))
	}
	return nil
}

func (d *Dev) readByte(ack bool) (byte, error) {
	if err := d.port.ClearReadBuffer(); err != nil {
		return 0, err
	}
	c := byte('N')
	if ack {
		c = 'R'
	}
	if err := uart.WriteByte(d.port, c); err != nil {
		return 0, err
	}
	return uart.ReadByte(d.port)
}

var _ i2c.Bus = &Dev{}
