// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package uart_test

import (
	"errors"
	"io"
	"testing"

	"github.com/GermanBionicSystems/maximinterface/onewire"
	"github.com/GermanBionicSystems/maximinterface/uart"
	"github.com/GermanBionicSystems/maximinterface/uart/uarttest"
)

func TestReadWrite(t *testing.T) {
	p := &uarttest.Playback{
		Ops: []uarttest.IO{
			uarttest.W(0x01, 0x02),
			uarttest.W(0x03),
			uarttest.R(0x10, 0x11, 0x12),
		},
	}
	if err := uart.Write(p, []byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatal(err)
	}
	b, err := uart.ReadByte(p)
	if err != nil || b != 0x10 {
		t.Fatal(b, err)
	}
	var r [2]byte
	if err := uart.ReadFull(p, r[:]); err != nil {
		t.Fatal(err)
	}
	if r != [2]byte{0x11, 0x12} {
		t.Fatalf("% x", r)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestReadFull_timeout(t *testing.T) {
	for _, cause := range []error{nil, io.EOF} {
		p := &uarttest.Playback{Ops: []uarttest.IO{uarttest.R(0x55), {Op: uarttest.OpRead, Err: cause}}}
		var r [2]byte
		err := uart.ReadFull(p, r[:])
		if !errors.Is(err, onewire.ErrTimeout) {
			t.Fatalf("%v: got %v", cause, err)
		}
	}
}

func TestWrite_error(t *testing.T) {
	cause := errors.New("port gone")
	p := &uarttest.Playback{Ops: []uarttest.IO{{Op: uarttest.OpWrite, Err: cause}}}
	err := uart.WriteByte(p, 0xff)
	if !errors.Is(err, onewire.ErrUart) || !errors.Is(err, cause) {
		t.Fatalf("got %v", err)
	}
}

func TestPlayback_unexpected(t *testing.T) {
	p := &uarttest.Playback{Ops: []uarttest.IO{uarttest.W(0x01)}, DontPanic: true}
	if err := uart.WriteByte(p, 0x02); err == nil {
		t.Fatal("expected mismatch")
	}
	if err := p.SetBaudRate(9600); err == nil {
		t.Fatal("expected mismatch")
	}
	if err := p.Close(); err == nil {
		t.Fatal("expected pending ops")
	}
}
