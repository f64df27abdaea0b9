// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds28e16 controls a DS28E16 SHA-256 HMAC authenticator.
//
// The device is reached through a command channel, see runcommand.OneWire.
//
// Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS28E16.pdf
package ds28e16

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3"

	"github.com/GermanBionicSystems/maximinterface/onewire"
	"github.com/GermanBionicSystems/maximinterface/runcommand"
)

// MemoryPages is the number of memory pages.
const MemoryPages = 4

// Special pages.
const (
	DecrementCounterPage = 2
	MasterSecretPage     = 3
)

// Page is a memory page.
type Page [16]byte

// DoublePage is a challenge, a partial secret or an HMAC.
type DoublePage [32]byte

// Password unlocks DisableDevice.
type Password [2]byte

// PageProtection is the set of protections of a page. Protections can only
// be added.
type PageProtection byte

const (
	ReadProtection   PageProtection = 0x01
	WriteProtection  PageProtection = 0x02
	DecrementCounter PageProtection = 0x08
)

// Has returns true if all the protections in f are set.
func (p PageProtection) Has(f PageProtection) bool {
	return p&f == f
}

func (p PageProtection) String() string {
	var out []string
	if p.Has(ReadProtection) {
		out = append(out, "RP")
	}
	if p.Has(WriteProtection) {
		out = append(out, "WP")
	}
	if p.Has(DecrementCounter) {
		out = append(out, "DC")
	}
	if len(out) == 0 {
		return "none"
	}
	return strings.Join(out, "|")
}

// Status is the result of ReadStatus.
type Status struct {
	PageProtection [MemoryPages]PageProtection
	ManID          byte
	DeviceVersion  byte
}

// New returns a device talking through f.
func New(f runcommand.Func) *Dev {
	return &Dev{run: f}
}

// Dev is a handle to a DS28E16.
type Dev struct {
	mu  sync.Mutex
	run runcommand.Func
}

func (d *Dev) String() string {
	return "DS28E16"
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
	req := append([]byte{cmdWriteMemory, byte(page)}, data[:]...)
	_, err := d.command(req, writeMemoryTime, 1)
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
	// The device returns the page followed by as many filler bytes.
	resp, err := d.command([]byte{cmdReadMemory, byte(page)}, readMemoryTime, 1+2*len(p))
	if err != nil {
		return p, err
	}
	copy(p[:], resp)
	return p, nil
}

// ReadStatus reads the page protections and the device identification.
func (d *Dev) ReadStatus() (Status, error) {
	var s Status
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.command([]byte{cmdReadStatus}, readMemoryTime, 1+MemoryPages+2)
	if err != nil {
		return s, err
	}
	for i := range s.PageProtection {
		s.PageProtection[i] = PageProtection(resp[i])
	}
	s.ManID = resp[MemoryPages]
	s.DeviceVersion = resp[MemoryPages+1]
	return s, nil
}

// SetPageProtection adds protections to a page.
func (d *Dev) SetPageProtection(page int, p PageProtection) error {
	if err := checkPage(page); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command([]byte{cmdSetPageProtection, byte(page), byte(p)}, shortWriteMemoryTime, 1)
	return err
}

// ComputeAndReadPageAuthentication returns the HMAC of a page computed with
// challenge.
//
// anonymous makes the device use 0xFF bytes in place of its ROM-ID.
func (d *Dev) ComputeAndReadPageAuthentication(page int, anonymous bool, challenge *DoublePage) (DoublePage, error) {
	var mac DoublePage
	if err := checkPage(page); err != nil {
		return mac, err
	}
	p := byte(page)
	if anonymous {
		p |= anonymousMask
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	req := append([]byte{cmdComputePageAuthentication, p, 0x02}, challenge[:]...)
	resp, err := d.command(req, computationTime, 1+len(mac))
	if err != nil {
		return mac, err
	}
	copy(mac[:], resp)
	return mac, nil
}

// ComputeSecret computes the device secret from the master secret, the
// binding page and partialSecret.
//
// constantBinding binds a page of zeros instead of the content of
// bindingPage.
func (d *Dev) ComputeSecret(bindingPage int, constantBinding, anonymous bool, partialSecret *DoublePage) error {
	if err := checkPage(bindingPage); err != nil {
		return err
	}
	p := byte(bindingPage)
	if constantBinding {
		p |= constantBindingMask
	}
	if anonymous {
		p |= anonymousMask
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	req := append([]byte{cmdComputeSecret, p, 0x08}, partialSecret[:]...)
	_, err := d.command(req, computationTime, 1)
	return err
}

// DecrementCounter decrements the counter held in DecrementCounterPage.
func (d *Dev) DecrementCounter() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.command([]byte{cmdDecrementCounter}, writeMemoryTime, 1)
	return err
}

// SetDisableDevicePassword sets the password needed by DisableDevice.
func (d *Dev) SetDisableDevicePassword(pw Password) error {
	return d.disable(opSetDisableDevicePassword, pw)
}

// LockOutDisableDevice makes DisableDevice fail forever.
func (d *Dev) LockOutDisableDevice() error {
	return d.disable(opLockOutDisableDevice, Password{})
}

// DisableDevice permanently disables the device. Every command fails with
// an error of kind DeviceDisabled afterward.
func (d *Dev) DisableDevice(pw Password) error {
	return d.disable(opDisableDevice, pw)
}

//

const category = "ds28e16"

const (
	cmdWriteMemory               = 0x96
	cmdReadMemory                = 0x44
	cmdReadStatus                = 0xaa
	cmdSetPageProtection         = 0xc3
	cmdComputePageAuthentication = 0xa5
	cmdComputeSecret             = 0x3c
	cmdDecrementCounter          = 0xc9
	cmdDisableDevice             = 0x33

	anonymousMask       = 0xe0
	constantBindingMask = 0x04
)

const (
	opSetDisableDevicePassword = 0x0f
	opLockOutDisableDevice     = 0x05
	opDisableDevice            = 0x00
)

const (
	readMemoryTime       = 5 * time.Millisecond
	writeMemoryTime      = 60 * time.Millisecond
	shortWriteMemoryTime = 15 * time.Millisecond
	computationTime      = 15 * time.Millisecond
)

// disableKey follows the operation and the password in every disable
// request.
var disableKey = [...]byte{0x71, 0x35, 0x0e, 0xac, 0x95, 0xf8}

func (d *Dev) disable(op byte, pw Password) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	req := append([]byte{cmdDisableDevice, op, pw[0], pw[1]}, disableKey[:]...)
	_, err := d.command(req, shortWriteMemoryTime, 1)
	return err
}

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
