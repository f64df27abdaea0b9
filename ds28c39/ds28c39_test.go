// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds28c39

import (
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/GermanBionicSystems/maximinterface/ecc256"
	"github.com/GermanBionicSystems/maximinterface/onewire"
	"github.com/GermanBionicSystems/maximinterface/runcommand"
)

var rom = onewire.NewRomID(0x5a, [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})

func TestReadStatus_i2c(t *testing.T) {
	r := []byte{21, 0xaa,
		0x02, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00,
	}
	r = append(r, rom[:]...)
	r = append(r, 0x00, 0x80, 0x01, 0x00, 0xaa)
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x1b, W: []byte{0xaa, 0x01, 0x01}},
		{Addr: 0x1b, R: r},
	}}
	d := New(runcommand.I2C(pb, 0x1b))
	st, err := d.ReadStatus(true)
	if err != nil {
		t.Fatal(err)
	}
	want := Status{RomID: rom, ManID: [2]byte{0x00, 0x80}, RomVersion: [2]byte{0x01, 0x00}, EntropyHealth: EntropyHealthy}
	want.PageProtection[0] = WriteProtection
	want.PageProtection[3] = AuthWrite
	if st != want {
		t.Fatalf("%+v", st)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestComputeAndReadPageAuthentication(t *testing.T) {
	var got []byte
	d := New(func(req []byte, delay time.Duration, buf []byte) ([]byte, error) {
		got = append([]byte{}, req...)
		if delay != 130*time.Millisecond {
			t.Fatal(delay)
		}
		buf[0] = 0xaa
		for i := 1; i < len(buf); i++ {
			buf[i] = byte(i)
		}
		return buf, nil
	})
	var challenge Page
	challenge[0] = 0x42
	sig, err := d.ComputeAndReadPageAuthentication(1, false, &challenge)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 0xa5 || got[1] != 0x01 || got[2] != 0x42 || len(got) != 34 {
		t.Fatalf("% x", got)
	}
	// S first on the wire.
	if sig.S[0] != 1 || sig.R[0] != 33 || sig.R[31] != 64 {
		t.Fatalf("%+v", sig)
	}
}

func TestReadStatus_errors(t *testing.T) {
	data := []struct {
		resp []byte
		want error
	}{
		{[]byte{0x88}, onewire.ErrDeviceDisabled},
		{[]byte{0x22}, onewire.ErrInternal},
		{[]byte{0x00}, onewire.ErrAuthentication},
		{[]byte{0xaa, 0x01}, onewire.ErrInvalidResponse},
		// Unknown entropy health status.
		{append([]byte{0xaa}, make([]byte, 20)...), onewire.ErrInvalidResponse},
	}
	for i, line := range data {
		d := New(func(req []byte, delay time.Duration, buf []byte) ([]byte, error) {
			return buf[:copy(buf, line.resp)], nil
		})
		if _, err := d.ReadStatus(false); !errors.Is(err, line.want) {
			t.Fatalf("#%d: %v", i, err)
		}
	}
}

func TestArguments(t *testing.T) {
	calls := 0
	d := New(func(req []byte, delay time.Duration, buf []byte) ([]byte, error) {
		calls++
		buf[0] = 0xaa
		return buf[:1], nil
	})
	var p Page
	var sig ecc256.Signature
	if err := d.SetPageProtection(MemoryPages, WriteProtection); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatal(err)
	}
	if err := d.AuthenticatedWriteMemory(-1, &p, &sig); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatal(err)
	}
	if err := d.AuthenticatePublicKey(&sig, nil); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatal(err)
	}
	if err := d.ReadRng(make([]byte, MaxRngLen+1)); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Fatalf("%d commands sent", calls)
	}
	if err := d.DisableDevice(); err != nil || calls != 1 {
		t.Fatal(err)
	}
}
