// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds9481p drives the DS9481P-300 USB adapter, which carries both a
// 1-wire and an I²C bus behind one serial port.
//
// The adapter emulates either a DS2480B (1-wire) or a DS9400 (I²C). Dev
// exposes one face per bus and switches the emulation on demand: using the
// I²C face while on 1-wire sends the DS2480B escape 0xE5 and waits for the
// DS9400 awake byte, using the 1-wire face while on I²C sends the DS9400
// escape and resynchronizes the DS2480B.
package ds9481p

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/maximinterface/ds2480b"
	"github.com/GermanBionicSystems/maximinterface/ds9400"
	"github.com/GermanBionicSystems/maximinterface/onewire"
	"github.com/GermanBionicSystems/maximinterface/uart"
)

// New switches the adapter on port to 1-wire and returns a handle to it.
//
// The adapter may be in either emulation, so it is always told to leave
// DS9400 mode first.
func New(port uart.Port) (*Dev, error) {
	d := &Dev{port: port, ds9400: ds9400.New(port)}
	if err := d.ds9400.Configure(escapeDS9400); err != nil {
		return nil, err
	}
	var err error
	if d.ds2480b, err = ds2480b.New(port, nil); err != nil {
		return nil, err
	}
	d.ow = &oneWire{d: d}
	d.i2c = &i2cBus{d: d}
	return d, nil
}

// Dev is a handle to a DS9481P-300.
type Dev struct {
	mu      sync.Mutex
	port    uart.Port
	ds2480b *ds2480b.Dev
	ds9400  *ds9400.Dev
	onI2C   bool
	ow      *oneWire
	i2c     *i2cBus
}

func (d *Dev) String() string {
	return fmt.Sprintf("DS9481P{%s}", d.port)
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.onI2C {
		return nil
	}
	return d.ds2480b.Halt()
}

// OneWire returns the 1-wire face.
func (d *Dev) OneWire() onewire.Master {
	return d.ow
}

// I2C returns the I²C face.
func (d *Dev) I2C() i2c.Bus {
	return d.i2c
}

//

const (
	escapeDS2480B = 0xe5
	escapeDS9400  = 'O'
)

// selectBus must be called with d.mu held.
func (d *Dev) selectBus(toI2C bool) error {
	if d.onI2C == toI2C {
		return nil
	}
	if toI2C {
		if err := d.ds2480b.SendCommand(escapeDS2480B); err != nil {
			return err
		}
		if err := d.ds9400.WaitAwake(); err != nil {
			return err
		}
	} else {
		if err := d.ds9400.Configure(escapeDS9400); err != nil {
			return err
		}
		if err := d.ds2480b.Initialize(); err != nil {
			return err
		}
	}
	d.onI2C = toI2C
	return nil
}

// oneWire is the onewire.Master face.
type oneWire struct {
	d *Dev
}

func (o *oneWire) String() string {
	return o.d.String()
}

func (o *oneWire) lock() (*ds2480b.Dev, error) {
	o.d.mu.Lock()
	if err := o.d.selectBus(false); err != nil {
		o.d.mu.Unlock()
		return nil, err
	}
	return o.d.ds2480b, nil
}

func (o *oneWire) Reset() error {
	m, err := o.lock()
	if err != nil {
		return err
	}
	defer o.d.mu.Unlock()
	return m.Reset()
}

func (o *oneWire) TouchBit(bit bool, after onewire.Level) (bool, error) {
	m, err := o.lock()
	if err != nil {
		return false, err
	}
	defer o.d.mu.Unlock()
	return m.TouchBit(bit, after)
}

func (o *oneWire) WriteByteLevel(b byte, after onewire.Level) error {
	m, err := o.lock()
	if err != nil {
		return err
	}
	defer o.d.mu.Unlock()
	return m.WriteByteLevel(b, after)
}

func (o *oneWire) ReadByteLevel(after onewire.Level) (byte, error) {
	m, err := o.lock()
	if err != nil {
		return 0, err
	}
	defer o.d.mu.Unlock()
	return m.ReadByteLevel(after)
}

func (o *oneWire) WriteBlock(w []byte) error {
	m, err := o.lock()
	if err != nil {
		return err
	}
	defer o.d.mu.Unlock()
	return m.WriteBlock(w)
}

func (o *oneWire) ReadBlock(r []byte) error {
	m, err := o.lock()
	if err != nil {
		return err
	}
	defer o.d.mu.Unlock()
	return m.ReadBlock(r)
}

func (o *oneWire) SetSpeed(s onewire.Speed) error {
	m, err := o.lock()
	if err != nil {
		return err
	}
	defer o.d.mu.Unlock()
	return m.SetSpeed(s)
}

func (o *oneWire) SetLevel(l onewire.Level) error {
	m, err := o.lock()
	if err != nil {
		return err
	}
	defer o.d.mu.Unlock()
	return m.SetLevel(l)
}

func (o *oneWire) Triplet(dir bool) (onewire.TripletResult, error) {
	m, err := o.lock()
	if err != nil {
		return onewire.TripletResult{}, err
	}
	defer o.d.mu.Unlock()
	return m.Triplet(dir)
}

// i2cBus is the i2c.Bus face.
type i2cBus struct {
	d *Dev
}

func (i *i2cBus) String() string {
	return i.d.String()
}

func (i *i2cBus) Tx(addr uint16, w, r []byte) error {
	i.d.mu.Lock()
	defer i.d.mu.Unlock()
	if err := i.d.selectBus(true); err != nil {
		return err
	}
	return i.d.ds9400.Tx(addr, w, r)
}

func (i *i2cBus) SetSpeed(f physic.Frequency) error {
	i.d.mu.Lock()
	defer i.d.mu.Unlock()
	return i.d.ds9400.SetSpeed(f)
}

var _ conn.Resource = &Dev{}
var _ onewire.Master = &oneWire{}
var _ i2c.Bus = &i2cBus{}
