// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewire_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	ponewire "periph.io/x/conn/v3/onewire"

	"github.com/GermanBionicSystems/maximinterface/onewire"
	"github.com/GermanBionicSystems/maximinterface/onewire/onewiretest"
)

func TestBus_Tx(t *testing.T) {
	addr := ds18b20A.Address()
	if addr != 0x740000070e41ac28 {
		t.Fatalf("address %#x", uint64(addr))
	}
	if onewire.FromAddress(addr) != ds18b20A {
		t.Fatal("FromAddress")
	}
	pb := &onewiretest.Playback{
		Ops: []onewiretest.IO{
			// Convert T with strong pull-up.
			onewiretest.Reset(),
			onewiretest.WrPower(0x55, 0x28, 0xac, 0x41, 0x0e, 0x07, 0x00, 0x00, 0x74, 0x44),
			// Read scratchpad, after returning the bus to normal.
			onewiretest.SetLevel(onewire.Normal),
			onewiretest.Reset(),
			onewiretest.Wr(0x55, 0x28, 0xac, 0x41, 0x0e, 0x07, 0x00, 0x00, 0x74, 0xbe),
			onewiretest.Rd(0xe0, 0x01, 0x00, 0x00, 0x3f, 0xff, 0x10, 0x10, 0x3f),
		},
	}
	dev := ponewire.Dev{Bus: onewire.NewBus(pb), Addr: addr}
	if err := dev.TxPower([]byte{0x44}, nil); err != nil {
		t.Fatal(err)
	}
	var spad [9]byte
	if err := dev.Tx([]byte{0xbe}, spad[:]); err != nil {
		t.Fatal(err)
	}
	if !ponewire.CheckCRC(spad[:]) {
		t.Fatalf("scratchpad % x", spad)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBus_Tx_strongFailure(t *testing.T) {
	pb := &onewiretest.Playback{
		Ops: []onewiretest.IO{
			onewiretest.Reset(),
			onewiretest.Wr(0xcc),
			{Op: onewiretest.OpWrite, Err: errors.New("adapter gone")},
			// The pull-up may be on; the next Tx turns it off.
			onewiretest.SetLevel(onewire.Normal),
			onewiretest.Reset(),
			onewiretest.Wr(0xcc),
			onewiretest.RdPower(0x01),
			onewiretest.SetLevel(onewire.Normal),
			onewiretest.Reset(),
			onewiretest.Wr(0xcc),
		},
	}
	bus := onewire.NewBus(pb)
	if err := bus.Tx([]byte{0xcc, 0x44}, nil, ponewire.StrongPullup); err == nil {
		t.Fatal("expected error")
	}
	var r [1]byte
	if err := bus.Tx([]byte{0xcc}, r[:], ponewire.StrongPullup); err != nil {
		t.Fatal(err)
	}
	if err := bus.Tx([]byte{0xcc}, nil, ponewire.WeakPullup); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBus_Search(t *testing.T) {
	sim := &onewiretest.Sim{Devices: []onewire.RomID{ds18b20A, ds1990, ds2431}}
	bus := onewire.NewBus(sim)
	if s := bus.String(); s != "sim" {
		t.Fatal(s)
	}
	addrs, err := bus.Search(false)
	if err != nil {
		t.Fatal(err)
	}
	var got []onewire.RomID
	for _, a := range addrs {
		got = append(got, onewire.FromAddress(a))
	}
	want := append([]onewire.RomID{}, sim.Devices...)
	sortIDs(got)
	sortIDs(want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestBus_noDevice(t *testing.T) {
	bus := onewire.NewBus(&onewiretest.Sim{})
	err := bus.Tx([]byte{0xcc, 0x44}, nil, ponewire.WeakPullup)
	if err == nil {
		t.Fatal("expected error")
	}
	var nd ponewire.NoDevicesError
	if !errors.As(err, &nd) || !nd.NoDevices() {
		t.Fatalf("%v does not implement NoDevicesError", err)
	}
}

func TestError(t *testing.T) {
	cause := errors.New("i2c: NACK")
	err := error(onewire.WrapError("ds248x", onewire.Nack, cause))
	if !errors.Is(err, onewire.ErrNack) {
		t.Fatal("kind match")
	}
	if !errors.Is(err, &onewire.Error{Category: "ds248x", Kind: onewire.Nack}) {
		t.Fatal("category match")
	}
	if errors.Is(err, &onewire.Error{Category: "ds2465", Kind: onewire.Nack}) {
		t.Fatal("category mismatch matched")
	}
	if errors.Is(err, onewire.ErrTimeout) {
		t.Fatal("kind mismatch matched")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause lost")
	}
	if s := err.Error(); s != "ds248x: not acknowledged: i2c: NACK" {
		t.Fatal(s)
	}
	short := onewire.NewError("ds2480b", onewire.ShortDetected, "")
	var sb ponewire.ShortedBusError
	if !errors.As(error(short), &sb) || !sb.IsShorted() {
		t.Fatal("ShortedBusError")
	}
	if !short.BusError() || onewire.ErrHardware.BusError() {
		t.Fatal("BusError")
	}
}

func TestParseRomID(t *testing.T) {
	id, err := onewire.ParseRomID("28AC410E07000074")
	if err != nil {
		t.Fatal(err)
	}
	if id != ds18b20A || !id.Valid() || id.Family() != 0x28 {
		t.Fatalf("got %s", id)
	}
	if id.String() != "28AC410E07000074" {
		t.Fatal(id.String())
	}
	if _, err := onewire.ParseRomID("28AC41"); err == nil {
		t.Fatal("short ROM-ID accepted")
	}
	bad := ds18b20A
	bad[7] ^= 1
	if bad.Valid() {
		t.Fatal("invalid CRC accepted")
	}
}
