// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds28e17

import (
	"bytes"
	"errors"
	"testing"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/maximinterface/common"
	"github.com/GermanBionicSystems/maximinterface/onewire"
	"github.com/GermanBionicSystems/maximinterface/onewire/onewiretest"
)

var id = onewire.NewRomID(Family, [6]byte{0x9c, 0x2a, 0x00, 0x00, 0x00, 0x00})

var (
	busyBit = onewiretest.IO{Op: onewiretest.OpBit, Bit: true, Got: true}
	doneBit = onewiretest.IO{Op: onewiretest.OpBit, Bit: true, Got: false}
)

func newDev(t *testing.T, ops []onewiretest.IO) (*Dev, *onewiretest.Playback) {
	bus := &onewiretest.Playback{Ops: ops}
	d, err := New(bus, onewire.SelectMatchRom(id), nil)
	if err != nil {
		t.Fatal(err)
	}
	return d, bus
}

func TestWriteDataWithStop(t *testing.T) {
	ops := append(onewiretest.Match(id),
		onewiretest.Wr(0x4b, 0xa0, 0x01, 0x55, 0x29, 0x96),
		busyBit, busyBit, doneBit,
		onewiretest.Rd(0x00, 0x00))
	d, bus := newDev(t, ops)
	if err := d.WriteDataWithStop(0xa0, []byte{0x55}); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestFraming(t *testing.T) {
	for _, n := range []int{1, 2, 17, MaxDataLen} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i * 7)
		}
		frame := append([]byte{0x4b, 0x36, byte(n)}, data...)
		crc := common.InvertedCRC16(frame, 0)
		frame = append(frame, crc[:]...)
		ops := append(onewiretest.Match(id), onewiretest.Wr(frame...), doneBit, onewiretest.Rd(0x00, 0x00))
		rec := &onewiretest.Record{Master: &onewiretest.Playback{Ops: ops}}
		d, err := New(rec, onewire.SelectMatchRom(id), nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := d.WriteDataWithStop(0x36, data); err != nil {
			t.Fatalf("%d bytes: %v", n, err)
		}
		var got []byte
		for _, io := range rec.Ops {
			if io.Op == onewiretest.OpWrite {
				got = append(got, io.Data...)
			}
		}
		want := append([]byte{onewire.CmdMatchRom}, id[:]...)
		want = append(want, frame...)
		if !bytes.Equal(got, want) {
			t.Fatalf("%d bytes: got % X", n, got)
		}
	}
}

func TestLength(t *testing.T) {
	d, _ := newDev(t, nil)
	if err := d.WriteDataWithStop(0xa0, make([]byte, 256)); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatalf("got %v", err)
	}
	if err := d.WriteDataOnly(nil); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatalf("got %v", err)
	}
	if err := d.ReadDataWithStop(0xa1, nil); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatalf("got %v", err)
	}
}

func TestStatus(t *testing.T) {
	data := []struct {
		status []byte
		want   error
	}{
		{[]byte{0x01}, onewire.ErrCRC},
		{[]byte{0x02}, onewire.ErrNack},
		{[]byte{0x08}, onewire.ErrCommunication},
		{[]byte{0x00, 0x03}, onewire.ErrNack},
	}
	for _, line := range data {
		ops := append(onewiretest.Match(id),
			onewiretest.Wr(0x4b, 0xa0, 0x01, 0x55, 0x29, 0x96),
			doneBit,
			onewiretest.Rd(line.status...))
		d, bus := newDev(t, ops)
		err := d.WriteDataWithStop(0xa0, []byte{0x55})
		if !errors.Is(err, line.want) {
			t.Fatalf("% X: got %v", line.status, err)
		}
		if err := bus.Close(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestWriteNackError(t *testing.T) {
	ops := append(onewiretest.Match(id),
		onewiretest.Wr(0x4b, 0xa0, 0x01, 0x55, 0x29, 0x96),
		doneBit,
		onewiretest.Rd(0x00, 0x01))
	d, _ := newDev(t, ops)
	err := d.WriteDataWithStop(0xa0, []byte{0x55})
	var nack *WriteNackError
	if !errors.As(err, &nack) || nack.Index != 1 {
		t.Fatalf("got %v", err)
	}
	if !errors.Is(err, &onewire.Error{Category: "ds28e17", Kind: onewire.Nack}) {
		t.Fatal("category")
	}
	if errors.Is(err, onewire.ErrTimeout) {
		t.Fatal("kind")
	}
}

func TestPollLimit(t *testing.T) {
	ops := append(onewiretest.Match(id), onewiretest.Wr(0x4b, 0xa0, 0x01, 0x55, 0x29, 0x96))
	for i := 0; i < 3; i++ {
		ops = append(ops, busyBit)
	}
	bus := &onewiretest.Playback{Ops: ops}
	d, err := New(bus, onewire.SelectMatchRom(id), &Opts{PollLimit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.WriteDataWithStop(0xa0, []byte{0x55}); !errors.Is(err, onewire.ErrTimeout) {
		t.Fatalf("got %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

// TestTx runs a periph i2c.Dev register read through the bridge.
func TestTx(t *testing.T) {
	ops := append(onewiretest.Match(id),
		onewiretest.Wr(0x2d, 0xa0, 0x01, 0x00, 0x02, 0xa1, 0xf8),
		busyBit, doneBit,
		onewiretest.Rd(0x00, 0x00, 0x12, 0x34))
	d, bus := newDev(t, ops)
	dev := i2c.Dev{Bus: d, Addr: 0x50}
	var r [2]byte
	if err := dev.Tx([]byte{0x00}, r[:]); err != nil {
		t.Fatal(err)
	}
	if r != [2]byte{0x12, 0x34} {
		t.Fatalf("got % X", r)
	}
	if err := d.Tx(0x80, []byte{0}, nil); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatalf("got %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestConfig(t *testing.T) {
	var ops []onewiretest.IO
	ops = append(ops, onewiretest.Match(id)...)
	ops = append(ops, onewiretest.Wr(0xd2, 0x01))
	ops = append(ops, onewiretest.Match(id)...)
	ops = append(ops, onewiretest.Wr(0xe1), onewiretest.Rd(0x02))
	ops = append(ops, onewiretest.Match(id)...)
	ops = append(ops, onewiretest.Wr(0xe1), onewiretest.Rd(0x07))
	ops = append(ops, onewiretest.Match(id)...)
	ops = append(ops, onewiretest.Wr(0xc3), onewiretest.Rd(0x41))
	ops = append(ops, onewiretest.Match(id)...)
	ops = append(ops, onewiretest.Wr(0x1e))
	bus := &onewiretest.Playback{Ops: ops}
	d, err := New(bus, onewire.SelectMatchRom(id), &Opts{Speed: 500 * physic.KiloHertz})
	if err != nil {
		t.Fatal(err)
	}
	if s, err := d.ReadConfig(); err != nil || s != Speed900kHz {
		t.Fatal(s, err)
	}
	if _, err := d.ReadConfig(); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatalf("got %v", err)
	}
	if r, err := d.ReadDeviceRevision(); err != nil || r != 0x41 {
		t.Fatal(r, err)
	}
	if err := d.EnableSleepMode(); err != nil {
		t.Fatal(err)
	}
	if err := d.SetSpeed(10 * physic.KiloHertz); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatalf("got %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}
