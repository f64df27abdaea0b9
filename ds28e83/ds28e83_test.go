// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds28e83

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/GermanBionicSystems/maximinterface/ecc256"
	"github.com/GermanBionicSystems/maximinterface/onewire"
)

var rom = onewire.NewRomID(0x5d, [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})

// recorder answers every command with success.
type recorder struct {
	reqs   [][]byte
	delays []time.Duration
}

func (r *recorder) run(req []byte, delay time.Duration, buf []byte) ([]byte, error) {
	r.reqs = append(r.reqs, append([]byte{}, req...))
	r.delays = append(r.delays, delay)
	buf[0] = 0xaa
	return buf, nil
}

func newDev(t *testing.T, f func([]byte, time.Duration, []byte) ([]byte, error), v Variant) *Dev {
	d, err := New(f, v)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestRequests(t *testing.T) {
	r := &recorder{}
	d := newDev(t, r.run, DS28E84)
	var p, hmac Page
	var sig ecc256.Signature
	sig.R[0], sig.S[0] = 0x11, 0x22
	c := EncryptionChallenge{0xc0}
	if err := d.SetBlockProtection(3, KeySecretB, WriteProtection|AuthEcdsa); err != nil {
		t.Fatal(err)
	}
	if err := d.GenerateEcc256KeyPair(KeySecretB); err != nil {
		t.Fatal(err)
	}
	if err := d.EntropyHealthTest(); err != nil {
		t.Fatal(err)
	}
	if err := d.DecrementCounter(); err != nil {
		t.Fatal(err)
	}
	if err := d.BackupState(); err != nil {
		t.Fatal(err)
	}
	if err := d.RestoreState(); err != nil {
		t.Fatal(err)
	}
	if err := d.ComputeAndWriteSha256Secret(5, KeySecretA, KeySecretS, &p); err != nil {
		t.Fatal(err)
	}
	if err := d.VerifyEcdsaSignature(KeySecretB, true, DataInput, Conducting, &sig, []byte{0x01, 0x02}); err != nil {
		t.Fatal(err)
	}
	if err := d.VerifyEcdsaSignature(KeySecretS, false, THash, HighImpedance, &sig, nil); err != nil {
		t.Fatal(err)
	}
	if err := d.AuthenticatedEcdsaWriteMemory(6, true, &p, &sig, &c); err != nil {
		t.Fatal(err)
	}
	if err := d.AuthenticatedSha256WriteMemory(6, true, &p, &hmac, nil); err != nil {
		t.Fatal(err)
	}
	want := [][]byte{
		{0xc3, 0x83, 0x82},
		{0xcb, 0x01},
		{0xd2, 0x80},
		{0xc9},
		{0x55, 0x01},
		{0x55, 0x00},
		append([]byte{0x3c, 0x05, 0x08}, p[:]...),
		append(append([]byte{0x59, 0x6b}, sig.Bytes()...), 0x01, 0x02),
		append([]byte{0x59, 0x54}, sig.Bytes()...),
		append(append(append([]byte{0x89, 0x86}, p[:]...), sig.Bytes()...), c[:]...),
		append(append([]byte{0x99, 0x06, 0x02}, p[:]...), hmac[:]...),
	}
	if diff := cmp.Diff(want, r.reqs); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	wantDelays := []time.Duration{
		15 * time.Millisecond,
		350 * time.Millisecond,
		65 * time.Millisecond,
		100 * time.Millisecond,
		100 * time.Millisecond,
		100 * time.Millisecond,
		104 * time.Millisecond,
		164 * time.Millisecond,
		160 * time.Millisecond,
		264 * time.Millisecond,
		104 * time.Millisecond,
	}
	if diff := cmp.Diff(wantDelays, r.delays); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestAuthenticateEcdsaPublicKey(t *testing.T) {
	r := &recorder{}
	d := newDev(t, r.run, DS28E83)
	var sig ecc256.Signature
	if err := d.AuthenticateEcdsaPublicKey(KeySecretA, true, &sig, []byte{0xc1, 0xc2}, nil); err != nil {
		t.Fatal(err)
	}
	if err := d.AuthenticateEcdsaPublicKey(KeySecretB, false, &sig, []byte{0xc1}, []byte{0xe1, 0xe2}); err != nil {
		t.Fatal(err)
	}
	if got := r.reqs[0]; got[1] != 0x09 || len(got) != 2+64+2 || got[66] != 0xc1 {
		t.Fatalf("% x", got)
	}
	// The certificate customization is padded before the ECDH one.
	got := r.reqs[1]
	if got[1] != 0x06 || len(got) != 2+64+32+2 || got[66] != 0xc1 || got[67] != 0 || got[98] != 0xe1 {
		t.Fatalf("% x", got)
	}
	if diff := cmp.Diff([]time.Duration{160 * time.Millisecond, 320 * time.Millisecond}, r.delays); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if err := d.AuthenticateEcdsaPublicKey(KeySecretA, true, &sig, make([]byte, 30), make([]byte, 31)); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatal(err)
	}
}

func TestPageAuthentication(t *testing.T) {
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	man := [2]byte{0x00, 0x80}
	data := Page{0: 0xde, 1: 0xad}
	d := newDev(t, func(req []byte, delay time.Duration, buf []byte) ([]byte, error) {
		if req[0] != cmdComputePageAuthentication || req[2] != 4 || delay != 80*time.Millisecond {
			t.Fatalf("% x %s", req[:3], delay)
		}
		var challenge [32]byte
		copy(challenge[:], req[3:])
		msg := ecc256.NewPageAuthenticationData(rom, (*[32]byte)(&data), &challenge, int(req[1]), man, false)
		sig, err := ecc256.Sign(k, msg[:])
		if err != nil {
			t.Fatal(err)
		}
		buf[0] = 0xaa
		copy(buf[1:33], sig.S[:])
		copy(buf[33:65], sig.R[:])
		return buf[:65], nil
	}, DS28E83)
	challenge := Page{0: 0x42, 31: 0x24}
	sig, err := d.ComputeAndReadEcdsaPageAuthentication(7, KeySecretB, &challenge)
	if err != nil {
		t.Fatal(err)
	}
	pub := ecc256.FromECDSA(&k.PublicKey)
	msg := ecc256.NewPageAuthenticationData(rom, (*[32]byte)(&data), (*[32]byte)(&challenge), 7, man, false)
	if !sig.Verify(&pub, msg[:]) {
		t.Fatal("signature does not verify")
	}
	if _, err := d.ComputeAndReadEcdsaPageAuthentication(7, KeySecretS, &challenge); !errors.Is(err, onewire.ErrInvalidParameter) {
		t.Fatal(err)
	}
}

func TestReadBlockProtection(t *testing.T) {
	data := []struct {
		resp []byte
		want BlockStatus
		err  error
	}{
		{[]byte{0xaa, 0x02, 0x00}, BlockStatus{}, nil},
		{[]byte{0xaa, 0x42, 0x82}, BlockStatus{HasKey: true, Key: KeySecretA, Protection: WriteProtection | AuthEcdsa}, nil},
		{[]byte{0xaa, 0x82, 0x08}, BlockStatus{HasKey: true, Key: KeySecretB, Protection: AuthHmac}, nil},
		// Another block.
		{[]byte{0xaa, 0x03, 0x00}, BlockStatus{}, onewire.ErrInvalidResponse},
		{[]byte{0xaa, 0xc2, 0x00}, BlockStatus{}, onewire.ErrInvalidResponse},
		// Reserved bit.
		{[]byte{0xaa, 0x02, 0x20}, BlockStatus{}, onewire.ErrInvalidResponse},
		{[]byte{0x77}, BlockStatus{}, onewire.ErrInvalidParameter},
	}
	for i, line := range data {
		d := newDev(t, func(req []byte, delay time.Duration, buf []byte) ([]byte, error) {
			if !bytes.Equal(req, []byte{0xaa, 0x02}) {
				t.Fatalf("% x", req)
			}
			return buf[:copy(buf, line.resp)], nil
		}, DS28E83)
		s, err := d.ReadBlockProtection(2)
		if !errors.Is(err, line.err) || (err == nil && s != line.want) {
			t.Fatalf("#%d: %+v %v", i, s, err)
		}
	}
}

func TestVariant(t *testing.T) {
	if _, err := New(nil, Variant(2)); err == nil {
		t.Fatal("invalid variant accepted")
	}
	r := &recorder{}
	d := newDev(t, r.run, DS28E83)
	if d.String() != "DS28E83" {
		t.Fatal(d.String())
	}
	if err := d.DecrementCounter(); !errors.Is(err, onewire.ErrInvalidOperation) {
		t.Fatal(err)
	}
	if err := d.BackupState(); !errors.Is(err, onewire.ErrInvalidOperation) {
		t.Fatal(err)
	}
	if _, err := d.ReadMemory(DecrementCounterPage); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatal(err)
	}
	if _, err := d.ReadBlockProtection(9); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatal(err)
	}
	d = newDev(t, r.run, DS28E84)
	if _, err := d.ReadMemory(DecrementCounterPage); err != nil {
		t.Fatal(err)
	}
	if len(r.reqs) != 1 {
		t.Fatalf("%d commands sent", len(r.reqs))
	}
}

func TestArguments(t *testing.T) {
	r := &recorder{}
	d := newDev(t, r.run, DS28E84)
	var p Page
	var sig ecc256.Signature
	if err := d.WriteMemory(-1, &p); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatal(err)
	}
	if err := d.SetBlockProtection(0, KeySecretS, WriteProtection); !errors.Is(err, onewire.ErrInvalidParameter) {
		t.Fatal(err)
	}
	if err := d.VerifyEcdsaSignature(KeySecretS, true, THash, Unchanged, &sig, nil); !errors.Is(err, onewire.ErrInvalidParameter) {
		t.Fatal(err)
	}
	if err := d.VerifyEcdsaSignature(KeySecretA, false, DataInput, Unchanged, &sig, make([]byte, MaxVerifyBuffer+1)); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatal(err)
	}
	if err := d.ComputeMultiblockHash(true, true, nil); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatal(err)
	}
	if err := d.ReadRng(make([]byte, MaxRngLen+1)); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatal(err)
	}
	if err := d.GenerateEcc256KeyPair(KeySecretS); !errors.Is(err, onewire.ErrInvalidParameter) {
		t.Fatal(err)
	}
	if err := d.ComputeAndWriteSha256Secret(0, KeySecret(3), KeySecretA, &p); !errors.Is(err, onewire.ErrInvalidParameter) {
		t.Fatal(err)
	}
	if len(r.reqs) != 0 {
		t.Fatalf("%d commands sent", len(r.reqs))
	}
}

func TestComputeHash(t *testing.T) {
	r := &recorder{}
	d := newDev(t, r.run, DS28E83)
	if err := d.ComputeHash(make([]byte, 130)); err != nil {
		t.Fatal(err)
	}
	if len(r.reqs) != 3 {
		t.Fatalf("%d blocks", len(r.reqs))
	}
	for i, want := range []struct {
		flags byte
		n     int
	}{{0x40, 64}, {0x00, 64}, {0x80, 2}} {
		if r.reqs[i][1] != want.flags || len(r.reqs[i]) != 2+want.n {
			t.Fatalf("#%d: %#02x %d", i, r.reqs[i][1], len(r.reqs[i]))
		}
	}
}

func TestHmacData(t *testing.T) {
	c := EncryptionChallenge{0xc0, 1, 2, 3, 4, 5, 6, 0xc7}
	got := NewDecryptionHmacData(&c, rom, 9, [2]byte{0x00, 0x80}, false)
	want := append(append(c[:], rom[:]...), 9, 0x00, 0x80)
	if !bytes.Equal(got[:], want) {
		t.Fatalf("% x", got)
	}
	if got = NewDecryptionHmacData(&c, rom, 9, [2]byte{}, true); !bytes.Equal(got[8:16], bytes.Repeat([]byte{0xff}, 8)) {
		t.Fatalf("% x", got)
	}
	if got = NewEncryptionHmacData(&c, rom, 9, [2]byte{}); got[16] != 0x89 {
		t.Fatalf("% x", got)
	}
	var binding, partial Page
	s := NewComputeSecretData(rom, &binding, &partial, 3, [2]byte{0x00, 0x00})
	if s[72] != 3 || s[73] != 0x00 || s[74] != 0x80 {
		t.Fatalf("% x", s)
	}
}

func TestBlockProtection_String(t *testing.T) {
	if s := (ReadProtection | EncryptEcdh).String(); s != "RP|ECH" {
		t.Fatal(s)
	}
	if s := BlockProtection(0).String(); s != "none" {
		t.Fatal(s)
	}
}
