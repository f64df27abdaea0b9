// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewire_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/GermanBionicSystems/maximinterface/onewire"
	"github.com/GermanBionicSystems/maximinterface/onewire/onewiretest"
)

func TestSelectMatchRomWithResume(t *testing.T) {
	sim := &onewiretest.Sim{Devices: []onewire.RomID{ds18b20A, ds1990}}
	rec := &onewiretest.Record{Master: sim}
	var shared onewire.SharedData
	first := onewire.SelectMatchRomWithResume(&shared, ds18b20A)
	second := onewire.SelectMatchRomWithResume(&shared, ds18b20A)
	other := onewire.SelectMatchRomWithResume(&shared, ds1990)

	for _, sel := range []onewire.Selector{first, second, other, first} {
		if err := sel(rec); err != nil {
			t.Fatal(err)
		}
	}
	want := []onewiretest.IO{
		onewiretest.Reset(),
		onewiretest.Wr(append([]byte{onewire.CmdMatchRom}, ds18b20A[:]...)...),
		onewiretest.Reset(),
		onewiretest.Wr(onewire.CmdResumeRom),
		onewiretest.Reset(),
		onewiretest.Wr(append([]byte{onewire.CmdMatchRom}, ds1990[:]...)...),
		onewiretest.Reset(),
		onewiretest.Wr(append([]byte{onewire.CmdMatchRom}, ds18b20A[:]...)...),
	}
	if diff := cmp.Diff(want, rec.Ops); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if last, ok := shared.LastRom(); !ok || last != ds18b20A {
		t.Fatalf("shared %s %t", last, ok)
	}
	if sim.Selected != ds18b20A {
		t.Fatalf("selected %s", sim.Selected)
	}
	shared.Forget()
	if _, ok := shared.LastRom(); ok {
		t.Fatal("Forget kept the ROM")
	}
}

func TestSelectMatchRomWithResume_failure(t *testing.T) {
	var shared onewire.SharedData
	sel := onewire.SelectMatchRomWithResume(&shared, ds18b20A)
	if err := sel(&onewiretest.Sim{Devices: []onewire.RomID{ds18b20A}}); err != nil {
		t.Fatal(err)
	}
	if err := sel(&onewiretest.Sim{}); err == nil {
		t.Fatal("expected NoSlave")
	}
	// A failed resume is not a failed match; a failed match must forget.
	shared.Forget()
	if err := sel(&onewiretest.Sim{}); err == nil {
		t.Fatal("expected NoSlave")
	}
	if _, ok := shared.LastRom(); ok {
		t.Fatal("failed match remembered")
	}
}

func TestRomCommands(t *testing.T) {
	bus := &onewiretest.Playback{
		Ops: []onewiretest.IO{
			onewiretest.Reset(),
			onewiretest.Wr(onewire.CmdSkipRom),
			onewiretest.Reset(),
			onewiretest.Wr(onewire.CmdOverdriveSkipRom),
			{Op: onewiretest.OpSpeed, Speed: onewire.Overdrive},
			onewiretest.Reset(),
			onewiretest.Wr(onewire.CmdOverdriveMatch),
			{Op: onewiretest.OpSpeed, Speed: onewire.Overdrive},
			onewiretest.Wr(ds2431[:]...),
			onewiretest.Reset(),
			onewiretest.Wr(onewire.CmdResumeRom),
		},
	}
	if err := onewire.SelectSkipRom()(bus); err != nil {
		t.Fatal(err)
	}
	if err := onewire.OverdriveSkipRom(bus); err != nil {
		t.Fatal(err)
	}
	if err := onewire.SelectOverdriveMatchRom(ds2431)(bus); err != nil {
		t.Fatal(err)
	}
	if bus.Speed() != onewire.Overdrive {
		t.Fatal("expected overdrive")
	}
	if err := onewire.ResumeRom(bus); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultHelpers(t *testing.T) {
	// 0xA5 LSB first, strong pull-up after the last bit only.
	var ops []onewiretest.IO
	for i := 0; i < 8; i++ {
		l := onewire.Normal
		if i == 7 {
			l = onewire.Strong
		}
		b := 0xa5&(1<<uint(i)) != 0
		ops = append(ops, onewiretest.IO{Op: onewiretest.OpBit, Bit: b, Got: b, Level: l})
	}
	for i := 0; i < 8; i++ {
		ops = append(ops, onewiretest.IO{Op: onewiretest.OpBit, Bit: true, Got: i%2 == 0})
	}
	// Triplet where only the 1 branch exists.
	ops = append(ops,
		onewiretest.IO{Op: onewiretest.OpBit, Bit: true, Got: true},
		onewiretest.IO{Op: onewiretest.OpBit, Bit: true, Got: false},
		onewiretest.IO{Op: onewiretest.OpBit, Bit: true, Got: true},
	)
	ops = append(ops, onewiretest.SetLevel(onewire.Normal))
	bus := &onewiretest.Playback{Ops: ops}
	if err := onewire.WriteByteBits(bus, 0xa5, onewire.Strong); err != nil {
		t.Fatal(err)
	}
	if bus.Level() != onewire.Strong {
		t.Fatal("expected strong level")
	}
	b, err := onewire.ReadByteBits(bus, onewire.Normal)
	if err != nil {
		t.Fatal(err)
	}
	if b != 0x55 {
		t.Fatalf("got %#x", b)
	}
	tr, err := onewire.TripletBits(bus, false)
	if err != nil {
		t.Fatal(err)
	}
	if tr != (onewire.TripletResult{ReadBit: true, ReadBitComplement: false, Direction: true}) {
		t.Fatalf("%+v", tr)
	}
	if err := onewire.RestoreLevel(bus, nil); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}
