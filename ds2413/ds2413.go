// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds2413 interfaces to the Maxim DS2413 dual channel addressable
// switch.
//
// Both PIO are open drain. Writing a 1 to an output latch turns the
// transistor off so the pin can be used as an input.
//
// Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS2413.pdf
package ds2413

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"

	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// Family is the DS2413 1-Wire family code.
const Family = 0x3a

// Status is the PIO state returned by a PIO access read.
type Status byte

const (
	PioAInput  Status = 0x01
	PioAOutput Status = 0x02
	PioBInput  Status = 0x04
	PioBOutput Status = 0x08
)

func (s Status) String() string {
	return fmt.Sprintf("A:in=%d,latch=%d B:in=%d,latch=%d", s&1, s>>1&1, s>>2&1, s>>3&1)
}

// New returns a handle to the DS2413 selected by sel on m.
func New(m onewire.Master, sel onewire.Selector) *Dev {
	d := &Dev{m: m, sel: sel}
	d.pins = [2]pin{{dev: d, number: 0, name: "PIOA"}, {dev: d, number: 1, name: "PIOB"}}
	return d
}

// Dev is a handle to a DS2413.
type Dev struct {
	mu   sync.Mutex
	m    onewire.Master
	sel  onewire.Selector
	pins [2]pin
}

func (d *Dev) String() string {
	return fmt.Sprintf("DS2413{%s}", d.m)
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// ReadStatus reads the input levels and output latches of both PIO.
func (d *Dev) ReadStatus() (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readStatus()
}

// WriteOutputState sets both output latches.
func (d *Dev) WriteOutputState(a, b bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeOutputState(a, b)
}

// WritePioA changes the latch of PIOA and keeps PIOB.
//
// Nothing is written when the latch already has the requested state.
func (d *Dev) WritePioA(state bool) error {
	return d.writeOne(0, state)
}

// WritePioB changes the latch of PIOB and keeps PIOA.
func (d *Dev) WritePioB(state bool) error {
	return d.writeOne(1, state)
}

// PioA returns PIOA as a gpio.PinIO.
func (d *Dev) PioA() gpio.PinIO {
	return &d.pins[0]
}

// PioB returns PIOB as a gpio.PinIO.
func (d *Dev) PioB() gpio.PinIO {
	return &d.pins[1]
}

//

const category = "ds2413"

const (
	cmdPioRead  = 0xf5
	cmdPioWrite = 0x5a

	writeConfirm = 0xaa
)

func (d *Dev) readStatus() (Status, error) {
	if err := d.sel(d.m); err != nil {
		return 0, err
	}
	if err := onewire.WriteByte(d.m, cmdPioRead); err != nil {
		return 0, err
	}
	b, err := onewire.ReadByte(d.m)
	if err != nil {
		return 0, err
	}
	// PIO Access Read status: bits 7-4 are the one's complement of bits
	// 3-0 (datasheet, PIO ACCESS READ [F5h]). (b^0xf0)>>4 undoes the
	// complement of the high nibble so the two must match.
	if b&0x0f != (b^0xf0)>>4 {
		return 0, onewire.NewError(category, onewire.CommunicationError, fmt.Sprintf("PIO status %#02x", b))
	}
	return Status(b & 0x0f), nil
}

func (d *Dev) writeOutputState(a, b bool) error {
	v := byte(0xfc)
	if a {
		v |= 0x01
	}
	if b {
		v |= 0x02
	}
	if err := d.sel(d.m); err != nil {
		return err
	}
	if err := d.m.WriteBlock([]byte{cmdPioWrite, v, ^v}); err != nil {
		return err
	}
	c, err := onewire.ReadByte(d.m)
	if err != nil {
		return err
	}
	if c != writeConfirm {
		return onewire.NewError(category, onewire.CommunicationError, fmt.Sprintf("PIO write answered %#02x", c))
	}
	return nil
}

func (d *Dev) writeOne(n int, state bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, err := d.readStatus()
	if err != nil {
		return err
	}
	a, b := s&PioAOutput != 0, s&PioBOutput != 0
	if n == 0 {
		if a == state {
			return nil
		}
		a = state
	} else {
		if b == state {
			return nil
		}
		b = state
	}
	return d.writeOutputState(a, b)
}

var _ conn.Resource = &Dev{}
