// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds9481p

import (
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/maximinterface/onewire"
	"github.com/GermanBionicSystems/maximinterface/uart/uarttest"
)

// ds2480bInit is the DS2480B resynchronization at 9600bps.
var ds2480bInit = []uarttest.IO{
	uarttest.Baud(9600),
	uarttest.Baud(4800),
	uarttest.Break(),
	uarttest.Baud(9600),
	uarttest.W(0xc1),
	uarttest.W(0x17, 0x45, 0x5b, 0x0f, 0x91),
	uarttest.R(0x16, 0x44, 0x5a, 0x00, 0x93),
}

func script(parts ...[]uarttest.IO) []uarttest.IO {
	var out []uarttest.IO
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestBusSwitch(t *testing.T) {
	escape := []uarttest.IO{uarttest.W('C', 'O')}
	p := &uarttest.Playback{Ops: script(
		escape, ds2480bInit,
		// 1-wire reset needs no switch.
		[]uarttest.IO{uarttest.W(0xc5), uarttest.R(0xcd)},
		// To I²C: DS2480B escape, then the awake notification.
		[]uarttest.IO{uarttest.W(0xe5), uarttest.R(0xa5)},
		[]uarttest.IO{
			uarttest.W('S', 'Q', 0xa0), uarttest.R(0x00),
			uarttest.W('Q', 0x01), uarttest.R(0x00),
			uarttest.W('P'),
			// Still on I²C.
			uarttest.W('S', 'Q', 0xa0), uarttest.R(0x00),
			uarttest.W('P'),
		},
		// Back to 1-wire.
		escape, ds2480bInit,
		[]uarttest.IO{uarttest.W(0xc5), uarttest.R(0xcd)},
	)}
	d, err := New(p)
	if err != nil {
		t.Fatal(err)
	}
	if s := d.String(); s != "DS9481P{playback}" {
		t.Fatal(s)
	}
	ow := d.OneWire()
	if err := ow.Reset(); err != nil {
		t.Fatal(err)
	}
	dev := i2c.Dev{Bus: d.I2C(), Addr: 0x50}
	if err := dev.Tx([]byte{0x01}, nil); err != nil {
		t.Fatal(err)
	}
	if err := dev.Tx(nil, nil); err != nil {
		t.Fatal(err)
	}
	if p.Baud() != 9600 {
		t.Fatal(p.Baud())
	}
	if err := ow.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBusSwitch_noAwake(t *testing.T) {
	p := &uarttest.Playback{Ops: script(
		[]uarttest.IO{uarttest.W('C', 'O')}, ds2480bInit,
		[]uarttest.IO{uarttest.W(0xe5), uarttest.R(0x00), uarttest.R()},
	)}
	d, err := New(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.I2C().Tx(0x50, nil, nil); !errors.Is(err, onewire.ErrTimeout) {
		t.Fatalf("got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSetSpeed_locked(t *testing.T) {
	p := &uarttest.Playback{Ops: script([]uarttest.IO{uarttest.W('C', 'O')}, ds2480bInit)}
	d, err := New(p)
	if err != nil {
		t.Fatal(err)
	}
	d.mu.Lock()
	done := make(chan error)
	go func() {
		done <- d.I2C().SetSpeed(100 * physic.KiloHertz)
	}()
	select {
	case err := <-done:
		t.Fatalf("SetSpeed returned while the port was held: %v", err)
	case <-time.After(10 * time.Millisecond):
	}
	d.mu.Unlock()
	if err := <-done; !errors.Is(err, onewire.ErrInvalidOperation) {
		t.Fatalf("got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}
