// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds28e39 controls a DS28E39 ECDSA authenticator.
//
// The device holds its key pair in a PUF. Memory writes can be gated by a
// signature of a write authority, see AuthenticatedWriteMemory.
//
// Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS28E39.pdf
package ds28e39

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3"

	"github.com/GermanBionicSystems/maximinterface/ecc256"
	"github.com/GermanBionicSystems/maximinterface/onewire"
	"github.com/GermanBionicSystems/maximinterface/runcommand"
)

// MemoryPages is the number of memory pages.
const MemoryPages = 9

// Special pages.
const (
	DecrementCounterPage    = 4
	AuthorityPublicKeyXPage = 5
	AuthorityPublicKeyYPage = 6
	WritePublicKeyXPage     = 7
	WritePublicKeyYPage     = 8
)

// ProtectedPages is the number of pages reported by ReadStatus.
const ProtectedPages = MemoryPages - 2

// MaxRngLen is the largest number of random bytes ReadRng returns at once.
const MaxRngLen = 64

// MaxCustomizationLen is the largest customization accepted by
// AuthenticatePublicKey.
const MaxCustomizationLen = 32

// Page is a memory page or a challenge.
type Page [32]byte

// PageProtection is the set of protections of a page. Protections can only
// be added.
type PageProtection byte

const (
	ReadProtection   PageProtection = 0x01
	WriteProtection  PageProtection = 0x02
	EpromEmulation   PageProtection = 0x04
	DecrementCounter PageProtection = 0x08
	// AuthWrite requires a signature of the write authority for writes.
	AuthWrite PageProtection = 0x10
)

// Has returns true if all the protections in f are set.
func (p PageProtection) Has(f PageProtection) bool {
	return p&f == f
}

func (p PageProtection) String() string {
	var out []string
	for _, f := range []struct {
		p    PageProtection
		name string
	}{
		{ReadProtection, "RP"},
		{WriteProtection, "WP"},
		{EpromEmulation, "EM"},
		{DecrementCounter, "DC"},
		{AuthWrite, "ECW"},
	} {
		if p.Has(f.p) {
			out = append(out, f.name)
		}
	}
	if len(out) == 0 {
		return "none"
	}
	return strings.Join(out, "|")
}

// EntropyHealth is the result of the on demand entropy health test.
type EntropyHealth byte

const (
	TestNotPerformed  EntropyHealth = 0xff
	EntropyHealthy    EntropyHealth = 0xaa
	EntropyNotHealthy EntropyHealth = 0xdd
)

// Status is the result of ReadStatus.
type Status struct {
	PageProtection [ProtectedPages]PageProtection
	ManID          [2]byte
	RomVersion     [2]byte
	EntropyHealth  EntropyHealth
}

// New returns a device talking through f.
func New(f runcommand.Func) *Dev {
	return &Dev{run: f}
}

// Dev is a handle to a DS28E39.
type Dev struct {
	mu  sync.Mutex
	run runcommand.Func
}

func (d *Dev) String() string {
	return "DS28E39"
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// WriteMemory writes a memory page.
func (d *Dev) WriteMemory(page int, data *Page) error {
	if err := checkPage(page); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(append([]byte{cmdWriteMemory, byte(page)}, data[:]...), writeMemoryTime, 1)
	return err
}

// ReadMemory reads a memory page.
func (d *Dev) ReadMemory(page int) (Page, error) {
	var p Page
	if err := checkPage(page); err != nil {
		return p, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command([]byte{cmdReadMemory, byte(page)}, readMemoryTime, 1+len(p))
	if err != nil {
		return p, err
	}
	copy(p[:], resp)
	return p, nil
}

// ReadStatus reads the page protections and the device identification.
//
// entropyHealthTest runs the entropy health test of the random number
// generator first.
func (d *Dev) ReadStatus(entropyHealthTest bool) (Status, error) {
	var s Status
	req := []byte{cmdReadStatus, 0x00}
	delay := readMemoryTime
	if entropyHealthTest {
		req[1] = 0x01
		delay += trngOnDemandCheckTime
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command(req, delay, 1+ProtectedPages+2+2+1)
	if err != nil {
		return s, err
	}
	for i := range s.PageProtection {
		s.PageProtection[i] = PageProtection(resp[i])
	}
	resp = resp[ProtectedPages:]
	copy(s.ManID[:], resp[0:2])
	copy(s.RomVersion[:], resp[2:4])
	switch e := EntropyHealth(resp[4]); e {
	case TestNotPerformed, EntropyHealthy, EntropyNotHealthy:
		s.EntropyHealth = e
	default:
		return s, onewire.NewError(category, onewire.InvalidResponse, fmt.Sprintf("entropy health %#02x", byte(e)))
	}
	return s, nil
}

// SetPageProtection adds protections to a page.
func (d *Dev) SetPageProtection(page int, p PageProtection) error {
	if err := checkPage(page); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command([]byte{cmdSetPageProtection, byte(page), byte(p)}, writeStateTime, 1)
	return err
}

// ComputeAndReadPageAuthentication returns the signature of a page computed
// with challenge.
//
// The signed message is ecc256.NewPageAuthenticationData of the page.
func (d *Dev) ComputeAndReadPageAuthentication(page int, anonymous bool, challenge *Page) (ecc256.Signature, error) {
	var sig ecc256.Signature
	if err := checkPage(page); err != nil {
		return sig, err
	}
	p := byte(page)
	if anonymous {
		p |= anonymousMask
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command(append([]byte{cmdComputePageAuthentication, p}, challenge[:]...), generateEcdsaSignatureTime, 1+64)
	if err != nil {
		return sig, err
	}
	copy(sig.S[:], resp[:32])
	copy(sig.R[:], resp[32:])
	return sig, nil
}

// DecrementCounter decrements the counter held in DecrementCounterPage.
func (d *Dev) DecrementCounter() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command([]byte{cmdDecrementCounter}, writeMemoryTime, 1)
	return err
}

// DisableDevice permanently disables the device. Every command fails with
// an error of kind DeviceDisabled afterward.
func (d *Dev) DisableDevice() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(append([]byte{cmdDisableDevice}, disableKey[:]...), writeStateTime, 1)
	return err
}

// ReadDevicePublicKey returns the public key of the device.
func (d *Dev) ReadDevicePublicKey() (ecc256.PublicKey, error) {
	var pub ecc256.PublicKey
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command([]byte{cmdReadDevicePublicKey}, generateEccKeyPairTime, 1+64)
	if err != nil {
		return pub, err
	}
	copy(pub.X[:], resp[:32])
	copy(pub.Y[:], resp[32:])
	return pub, nil
}

// ReadRng fills data with random bytes. len(data) must be 1 to MaxRngLen.
func (d *Dev) ReadRng(data []byte) error {
	if len(data) < 1 || len(data) > MaxRngLen {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("%d random bytes", len(data)))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command([]byte{cmdReadRng, byte(len(data) - 1)}, trngGenerationTime, 1+len(data))
	if err != nil {
		return err
	}
	copy(data, resp)
	return nil
}

// AuthenticatePublicKey makes the device verify certificate, the signature
// by the authority key of the write key in WritePublicKeyXPage and
// WritePublicKeyYPage followed by customization.
//
// customization must be 1 to MaxCustomizationLen bytes.
func (d *Dev) AuthenticatePublicKey(certificate *ecc256.Signature, customization []byte) error {
	if len(customization) < 1 || len(customization) > MaxCustomizationLen {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("customization of %d bytes", len(customization)))
	}
	req := append([]byte{cmdAuthenticatePublicKey}, certificate.Bytes()...)
	req = append(req, customization...)
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(req, verifyEcdsaSignatureTime, 1)
	return err
}

// AuthenticatedWriteMemory writes a page protected with AuthWrite.
//
// signature signs ecc256.NewWriteAuthenticationData of the write with the
// authenticated write key.
func (d *Dev) AuthenticatedWriteMemory(page int, data *Page, signature *ecc256.Signature) error {
	if err := checkPage(page); err != nil {
		return err
	}
	req := append([]byte{cmdAuthenticatedWriteMemory, byte(page)}, data[:]...)
	req = append(req, signature.Bytes()...)
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command(req, verifyEcdsaSignatureTime+writeMemoryTime, 1)
	return err
}

//

const category = "ds28e39"

const (
	cmdWriteMemory               = 0x96
	cmdReadMemory                = 0x44
	cmdReadStatus                = 0xaa
	cmdSetPageProtection         = 0xc3
	cmdComputePageAuthentication = 0xa5
	cmdDecrementCounter          = 0xc9
	cmdDisableDevice             = 0x33
	cmdReadDevicePublicKey       = 0xcb
	cmdReadRng                   = 0xd2
	cmdAuthenticatePublicKey     = 0x59
	cmdAuthenticatedWriteMemory  = 0x89

	anonymousMask = 0xe0
)

const (
	readMemoryTime             = 30 * time.Millisecond
	writeMemoryTime            = 65 * time.Millisecond
	writeStateTime             = 15 * time.Millisecond
	generateEccKeyPairTime     = 200 * time.Millisecond
	generateEcdsaSignatureTime = 130 * time.Millisecond
	trngOnDemandCheckTime      = 20 * time.Millisecond
	trngGenerationTime         = 10 * time.Millisecond
	verifyEcdsaSignatureTime   = 180 * time.Millisecond
)

var disableKey = [...]byte{0x9e, 0xa7, 0x49, 0xfb, 0x10, 0x62, 0x0a, 0x26}

func (d *Dev) command(req []byte, delay time.Duration, size int) ([]byte, error) {
	return runcommand.Run(d.run, category, req, delay, size)
}

func checkPage(page int) error {
	if page < 0 || page >= MemoryPages {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("page %d", page))
	}
	return nil
}

var _ conn.Resource = &Dev{}
