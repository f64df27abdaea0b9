// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds28e15

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/GermanBionicSystems/maximinterface/common"
	"github.com/GermanBionicSystems/maximinterface/onewire"
	"github.com/GermanBionicSystems/maximinterface/onewire/onewiretest"
)

var id = onewire.NewRomID(FamilyDS28E15, [6]byte{0x3c, 0x8b, 0x19, 0x00, 0x00, 0x00})

// crc returns the inverted CRC16 the device answers to b.
func crc(b ...byte) []byte {
	c := common.InvertedCRC16(b, 0)
	return c[:]
}

// cmd returns the traffic of a command with its CRC16 check.
func cmd(c, param byte) []onewiretest.IO {
	return append(onewiretest.Match(id), onewiretest.Wr(c, param), onewiretest.Rd(crc(c, param)...))
}

// release returns the traffic of a successful release sequence.
func release() []onewiretest.IO {
	return []onewiretest.IO{
		onewiretest.WrPower(0xaa),
		onewiretest.SetLevel(onewire.Normal),
		onewiretest.Rd(0xaa),
	}
}

func script(parts ...[]onewiretest.IO) []onewiretest.IO {
	var out []onewiretest.IO
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func newDev(t *testing.T, v Variant, ops []onewiretest.IO) (*Dev, *onewiretest.Playback) {
	bus := &onewiretest.Playback{Ops: ops}
	d, err := New(bus, onewire.SelectMatchRom(id), &Opts{Variant: v})
	if err != nil {
		t.Fatal(err)
	}
	return d, bus
}

func recordSleeps() (*[]time.Duration, func()) {
	var sleeps []time.Duration
	sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return &sleeps, func() { sleep = func(time.Duration) {} }
}

func TestWriteAuthSegment(t *testing.T) {
	newData := Segment{0x01, 0x02, 0x03, 0x04}
	var mac Page
	for i := range mac {
		mac[i] = byte(i)
	}
	ops := script(
		onewiretest.Match(id),
		[]onewiretest.IO{
			onewiretest.Wr(0x5a, 0x00),
			onewiretest.Rd(0xc5, 0x5f),
			onewiretest.Wr(newData[:]...),
			onewiretest.RdPower(0x5e, 0xf0),
			onewiretest.SetLevel(onewire.Normal),
			onewiretest.Wr(mac[:]...),
			onewiretest.Rd(crc(mac[:]...)...),
			onewiretest.Rd(0xaa),
		},
		release(),
	)
	sleeps, restore := recordSleeps()
	defer restore()
	d, bus := newDev(t, DS28E15, ops)
	if s := d.String(); s != "DS28E15{playback}" {
		t.Fatal(s)
	}
	if err := d.WriteAuthSegment(0, 0, &newData, &mac); err != nil {
		t.Fatal(err)
	}
	if want := []time.Duration{3 * time.Millisecond, 10 * time.Millisecond}; !reflect.DeepEqual(*sleeps, want) {
		t.Fatalf("sleeps %v", *sleeps)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestContinueWriteAuthSegment_large(t *testing.T) {
	newData := Segment{0x01, 0x02, 0x03, 0x04}
	var mac Page
	ops := []onewiretest.IO{
		onewiretest.Wr(newData[:]...),
		// The CRC covers the previous CS byte.
		onewiretest.RdPower(0x46, 0xe8),
		onewiretest.SetLevel(onewire.Normal),
		onewiretest.Wr(mac[:]...),
		onewiretest.Rd(crc(mac[:]...)...),
		onewiretest.Rd(0xaa),
	}
	ops = append(ops, release()...)
	d, bus := newDev(t, DS28E22, ops)
	if err := d.ContinueWriteAuthSegment(&newData, &mac); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

// A CRC mismatch after the strong pull-up returns the bus to Normal.
func TestWriteAuthSegment_crc(t *testing.T) {
	newData := Segment{0x01, 0x02, 0x03, 0x04}
	var mac Page
	ops := script(
		cmd(0x5a, 0x21),
		[]onewiretest.IO{
			onewiretest.Wr(newData[:]...),
			onewiretest.RdPower(0x00, 0x00),
			onewiretest.SetLevel(onewire.Normal),
		},
	)
	d, bus := newDev(t, DS28E15, ops)
	if err := d.WriteAuthSegment(1, 1, &newData, &mac); !errors.Is(err, onewire.ErrCRC) {
		t.Fatalf("got %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestComputeReadPageMac(t *testing.T) {
	var mac Page
	for i := range mac {
		mac[i] = 0xa0 + byte(i)
	}
	ops := script(
		onewiretest.Match(id),
		[]onewiretest.IO{
			onewiretest.Wr(0xa5, 0xe1),
			onewiretest.RdPower(crc(0xa5, 0xe1)...),
			onewiretest.SetLevel(onewire.Normal),
			onewiretest.Rd(0xaa),
			onewiretest.Rd(mac[:]...),
			onewiretest.Rd(crc(mac[:]...)...),
		},
	)
	sleeps, restore := recordSleeps()
	defer restore()
	d, bus := newDev(t, DS28E15, ops)
	got, err := d.ComputeReadPageMac(1, true)
	if err != nil {
		t.Fatal(err)
	}
	if got != mac {
		t.Fatalf("got % X", got)
	}
	if want := []time.Duration{6 * time.Millisecond}; !reflect.DeepEqual(*sleeps, want) {
		t.Fatalf("sleeps %v", *sleeps)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestComputeReadPageMac_failure(t *testing.T) {
	ops := script(
		onewiretest.Match(id),
		[]onewiretest.IO{
			onewiretest.Wr(0xa5, 0x00),
			onewiretest.RdPower(0x84, 0xaf),
			onewiretest.SetLevel(onewire.Normal),
			onewiretest.Rd(0x55),
		},
	)
	d, bus := newDev(t, DS28E15, ops)
	if _, err := d.ComputeReadPageMac(0, false); !errors.Is(err, onewire.ErrOperationFailure) {
		t.Fatalf("got %v", err)
	}
	if _, err := d.ComputeReadPageMac(2, false); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatalf("got %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSecrets(t *testing.T) {
	ops := script(
		cmd(0x33, 0xe0), release(),
		cmd(0x3c, 0x01), release(),
	)
	sleeps, restore := recordSleeps()
	defer restore()
	bus := &onewiretest.Playback{Ops: ops}
	d, err := New(bus, onewire.SelectMatchRom(id), &Opts{Variant: DS28E15, LowPower: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.LoadSecret(true); err != nil {
		t.Fatal(err)
	}
	if err := d.ComputeSecret(1, false); err != nil {
		t.Fatal(err)
	}
	if want := []time.Duration{200 * time.Millisecond, 206 * time.Millisecond}; !reflect.DeepEqual(*sleeps, want) {
		t.Fatalf("sleeps %v", *sleeps)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestMemory(t *testing.T) {
	var page Page
	for i := range page {
		page[i] = byte(0x10 + i)
	}
	seg := Segment{0xde, 0xad, 0xbe, 0xef}
	ops := script(
		cmd(0xf0, 0x01), []onewiretest.IO{onewiretest.Rd(page[:]...), onewiretest.Rd(crc(page[:]...)...)},
		cmd(0xf0, 0x61), []onewiretest.IO{onewiretest.Rd(seg[:]...)},
		cmd(0x55, 0xe0), []onewiretest.IO{onewiretest.Wr(seg[:]...), onewiretest.Rd(crc(seg[:]...)...)}, release(),
		cmd(0x0f, 0x00), []onewiretest.IO{onewiretest.Wr(page[:]...), onewiretest.Rd(crc(page[:]...)...)},
		cmd(0x0f, 0x0f), []onewiretest.IO{onewiretest.Rd(page[:]...), onewiretest.Rd(crc(page[:]...)...)},
	)
	d, bus := newDev(t, DS28E15, ops)
	if p, err := d.ReadPage(1); err != nil || p != page {
		t.Fatal(p, err)
	}
	if s, err := d.ReadSegment(1, 3); err != nil || s != seg {
		t.Fatal(s, err)
	}
	if err := d.WriteSegment(0, 7, &seg); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteScratchpad(&page); err != nil {
		t.Fatal(err)
	}
	if p, err := d.ReadScratchpad(); err != nil || p != page {
		t.Fatal(p, err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestReadPage_crc(t *testing.T) {
	ops := script(cmd(0xf0, 0x00), []onewiretest.IO{onewiretest.Rd(make([]byte, 34)...)})
	d, _ := newDev(t, DS28E15, ops)
	if _, err := d.ReadPage(0); !errors.Is(err, onewire.ErrCRC) {
		t.Fatalf("got %v", err)
	}
}

func TestCommand_crc(t *testing.T) {
	ops := append(onewiretest.Match(id), onewiretest.Wr(0xaa, 0xe0), onewiretest.Rd(0xd7, 0x80))
	d, _ := newDev(t, DS28E15, ops)
	if _, err := d.ReadPersonality(); !errors.Is(err, onewire.ErrCRC) {
		t.Fatalf("got %v", err)
	}
}

func TestReadPersonality(t *testing.T) {
	ops := append(onewiretest.Match(id), onewiretest.Wr(0xaa, 0xe0), onewiretest.Rd(0x80, 0xd7))
	ops = append(ops, onewiretest.Rd(0x9a, 0x55, 0x00, 0x00), onewiretest.Rd(crc(0x9a, 0x55, 0x00, 0x00)...))
	d, bus := newDev(t, DS28E15, ops)
	p, err := d.ReadPersonality()
	if err != nil {
		t.Fatal(err)
	}
	if p != (Personality{PB1: 0x9a, PB2: 0x55}) {
		t.Fatalf("%+v", p)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestReadPersonality_manIDInMacData(t *testing.T) {
	ops := append(onewiretest.Match(id), onewiretest.Wr(0xaa, 0xe0), onewiretest.Rd(0x80, 0xd7))
	ops = append(ops, onewiretest.Rd(0x9a, 0x55, 0x01, 0x02), onewiretest.Rd(crc(0x9a, 0x55, 0x01, 0x02)...))
	d, bus := newDev(t, DS28E15, ops)
	p, err := d.ReadPersonality()
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
	if p.ManID != (ManID{0x01, 0x02}) {
		t.Fatalf("%+v", p)
	}
	var seg Segment
	w := SegmentWriteMacData(id, p.ManID, 0, 0, &seg, &seg)
	if w[8] != 0x02 || w[9] != 0x01 {
		t.Fatalf("write MAC data ManID % X", w[8:10])
	}
	w = ProtectionWriteMacData(id, p.ManID, NewBlockProtection(0, 0), NewBlockProtection(0, WriteProtection))
	if w[8] != 0x02 || w[9] != 0x01 {
		t.Fatalf("protection MAC data ManID % X", w[8:10])
	}
	var page Page
	a := NewAuthenticationData(&page, &page, id, p.ManID, 0, false)
	if a[72] != 0x02 || a[73] != 0x01 {
		t.Fatalf("authentication data ManID % X", a[72:74])
	}
	if s := SlaveSecretData(&page, &page, id, p.ManID, 0); s[72] != 0x02 || s[73] != 0x01 {
		t.Fatalf("secret data ManID % X", s[72:74])
	}
}

func TestBlockProtection(t *testing.T) {
	ops := script(
		cmd(0xaa, 0x03), []onewiretest.IO{onewiretest.Rd(0x43)},
		cmd(0xaa, 0x00), []onewiretest.IO{onewiretest.Rd(0x00, 0x41, 0x02, 0x93), onewiretest.Rd(crc(0x00, 0x41, 0x02, 0x93)...)},
		cmd(0xc3, 0x41), release(),
	)
	d, bus := newDev(t, DS28E15, ops)
	b, err := d.ReadBlockProtection(3)
	if err != nil {
		t.Fatal(err)
	}
	if b.BlockNum() != 3 || !b.Has(WriteProtection) || b.Has(ReadProtection) {
		t.Fatal(b)
	}
	all, err := d.ReadAllBlockProtection()
	if err != nil {
		t.Fatal(err)
	}
	want := []BlockProtection{0x00, 0x41, 0x02, 0x93}
	if !reflect.DeepEqual(all, want) {
		t.Fatalf("got %v", all)
	}
	if !all[0].NoProtection() || all[3].String() != "block 3: RP AP" {
		t.Fatal(all[0], all[3])
	}
	if err := d.WriteBlockProtection(NewBlockProtection(1, WriteProtection)); err != nil {
		t.Fatal(err)
	}
	if _, err := d.ReadBlockProtection(4); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatalf("got %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBlockProtection_large(t *testing.T) {
	status := make([]byte, 16)
	for i := range status {
		// One status per page, numbered by page.
		status[i] = byte(i)
	}
	status[2] |= 0x40
	status[3] |= 0x40
	ops := script(
		cmd(0xaa, 0x04), []onewiretest.IO{onewiretest.Rd(0x10)},
		cmd(0xaa, 0x00), []onewiretest.IO{onewiretest.Rd(status...), onewiretest.Rd(crc(status...)...)},
	)
	d, bus := newDev(t, DS28E22, ops)
	if _, err := d.ReadBlockProtection(2); err != nil {
		t.Fatal(err)
	}
	all, err := d.ReadAllBlockProtection()
	if err != nil {
		t.Fatal(err)
	}
	want := []BlockProtection{0x00, 0x41, 0x02, 0x03}
	if !reflect.DeepEqual(all, want) {
		t.Fatalf("got %v", all)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestWriteAuthBlockProtection(t *testing.T) {
	var mac Page
	ops := script(
		onewiretest.Match(id),
		[]onewiretest.IO{
			onewiretest.Wr(0xcc, 0x42),
			onewiretest.RdPower(crc(0xcc, 0x42)...),
			onewiretest.SetLevel(onewire.Normal),
			onewiretest.Wr(mac[:]...),
			onewiretest.Rd(crc(mac[:]...)...),
			onewiretest.Rd(0xaa),
		},
		release(),
	)
	d, bus := newDev(t, DS28E15, ops)
	if err := d.WriteAuthBlockProtection(NewBlockProtection(2, WriteProtection), &mac); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNew(t *testing.T) {
	if _, err := New(&onewiretest.Playback{}, onewire.SelectSkipRom(), &Opts{Variant: 7}); err == nil {
		t.Fatal("invalid variant accepted")
	}
	for _, v := range []Variant{DS28E15, DS28E22, DS28E25} {
		d, err := New(&onewiretest.Playback{}, onewire.SelectSkipRom(), &Opts{Variant: v})
		if err != nil {
			t.Fatal(err)
		}
		if d.Variant() != v {
			t.Fatal(d.Variant())
		}
	}
	if DS28E25.MemoryPages() != 16 || DS28E25.ProtectionBlocks() != 8 || DS28E22.MemoryPages() != 8 {
		t.Fatal("sizes")
	}
}

func init() {
	sleep = func(time.Duration) {}
}
