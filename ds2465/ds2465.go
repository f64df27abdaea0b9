// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds2465 controls a Maxim DS2465 1-wire master with SHA-256
// coprocessor over I²C.
//
// The 1-wire side behaves like a DS2484. The coprocessor computes the
// secrets and MACs of the DS28E15/22/25 authenticators from 76 or 20 byte
// messages placed in its scratchpad, optionally swapping in a page of its own
// EEPROM so that the host never sees the secret.
//
// Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS2465.pdf
package ds2465

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"

	"github.com/GermanBionicSystems/maximinterface/ds248x"
	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// Memory layout.
const (
	MemoryPages     = 2
	SegmentsPerPage = 8
)

// Segment is a 4 byte EEPROM segment.
type Segment [4]byte

// Page is a 32 byte EEPROM page, also the size of a MAC.
type Page [32]byte

// WriteMacData is the message hashed by Compute Write MAC.
type WriteMacData [20]byte

// AuthenticationData is the message hashed by Compute Auth MAC, Compute Slave
// Secret and Compute Next Master Secret.
type AuthenticationData [76]byte

// PageRegion selects which part of a user page is swapped into the message.
type PageRegion byte

const (
	FirstHalf  PageRegion = 0x01
	SecondHalf PageRegion = 0x02
	FullPage   PageRegion = 0x03
)

// PortParameter selects one of the 1-wire timing parameters.
type PortParameter int

const (
	TRSTL PortParameter = iota
	TRSTLOverdrive
	TMSP
	TMSPOverdrive
	TW0L
	TW0LOverdrive
	TREC0
	RWPU
	TW1LOverdrive
)

// Opts contains options to pass to the constructor.
type Opts struct {
	// Config is written once the device is reset.
	Config ds248x.Config
	// PortParams are timing codes, 0..15, written at start.
	PortParams map[PortParameter]int
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Config: ds248x.DefaultConfig,
}

// New resets the DS2465 at addr and writes the configuration.
//
// The usual I²C address is 0x18.
func New(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{i2c: &i2c.Dev{Bus: b, Addr: addr}}
	if err := d.resetDevice(); err != nil {
		return nil, err
	}
	if err := d.writeConfig(opts.Config); err != nil {
		return nil, err
	}
	for p := TRSTL; p <= TW1LOverdrive; p++ {
		if v, ok := opts.PortParams[p]; ok {
			if err := d.writePortParameter(p, v); err != nil {
				return nil, err
			}
		}
	}
	return d, nil
}

// Dev is a handle to a DS2465. It implements onewire.Master.
//
// Dev implements the same persistent error model as ds248x.Dev: an I²C
// failure is returned by every later call.
type Dev struct {
	mu   sync.Mutex
	i2c  conn.Conn
	conf ds248x.Config
	err  error
}

func (d *Dev) String() string {
	return fmt.Sprintf("DS2465{%s}", d.i2c)
}

// Halt implements conn.Resource.
//
// It returns the bus to the Normal level.
func (d *Dev) Halt() error {
	return d.SetLevel(onewire.Normal)
}

// Config returns the configuration last written to the device.
func (d *Dev) Config() ds248x.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conf
}

// WriteConfig writes the configuration register and verifies it by reading
// it back.
func (d *Dev) WriteConfig(c ds248x.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeConfig(c)
}

// WritePortParameter changes one timing parameter to the code val, 0..15.
// Standard and overdrive values of a parameter share a register.
func (d *Dev) WritePortParameter(p PortParameter, val int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writePortParameter(p, val)
}

// Reset implements onewire.Master.
func (d *Dev) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reset()
}

// TouchBit implements onewire.Master.
func (d *Dev) TouchBit(bit bool, after onewire.Level) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.configureLevel(after); err != nil {
		return false, err
	}
	var b byte
	if bit {
		b = 0x80
	}
	d.command(cmd1WBit, b)
	status := d.pollBusy()
	return status&statusSBR != 0, d.err
}

// WriteByteLevel implements onewire.Master.
func (d *Dev) WriteByteLevel(b byte, after onewire.Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.configureLevel(after); err != nil {
		return err
	}
	d.command(cmd1WWrite, b)
	d.pollBusy()
	return d.err
}

// ReadByteLevel implements onewire.Master.
func (d *Dev) ReadByteLevel(after onewire.Level) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.configureLevel(after); err != nil {
		return 0, err
	}
	var r [1]byte
	d.command(cmd1WRead)
	d.pollBusy()
	d.i2cTx([]byte{regReadData}, r[:])
	return r[0], d.err
}

// WriteBlock implements onewire.Master. The bytes go through the scratchpad,
// up to 63 at a time.
func (d *Dev) WriteBlock(w []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(w) != 0 {
		n := len(w)
		if n > maxBlockSize {
			n = maxBlockSize
		}
		d.i2cTx(append([]byte{regScratchpad}, w[:n]...), nil)
		d.command(cmd1WTransmitBlock, byte(n))
		d.pollBusy()
		w = w[n:]
	}
	return d.err
}

// ReadBlock implements onewire.Master.
func (d *Dev) ReadBlock(r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(r) != 0 {
		n := len(r)
		if n > maxBlockSize {
			n = maxBlockSize
		}
		d.command(cmd1WReceiveBlock, byte(n))
		d.pollBusy()
		d.i2cTx([]byte{regScratchpad}, r[:n])
		r = r[n:]
	}
	return d.err
}

// Triplet implements onewire.Master.
func (d *Dev) Triplet(dir bool) (onewire.TripletResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b byte
	if dir {
		b = 0x80
	}
	d.command(cmd1WTriplet, b)
	status := d.pollBusy()
	return onewire.TripletResult{
		ReadBit:           status&statusSBR != 0,
		ReadBitComplement: status&statusTSB != 0,
		Direction:         status&statusDIR != 0,
	}, d.err
}

// SetSpeed implements onewire.Master.
func (d *Dev) SetSpeed(s onewire.Speed) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s != onewire.Standard && s != onewire.Overdrive {
		return onewire.NewError(category, onewire.InvalidSpeed, s.String())
	}
	od := s == onewire.Overdrive
	if d.conf.Has(ds248x.Overdrive) == od {
		return d.err
	}
	return d.writeConfig(d.conf.With(ds248x.Overdrive, od))
}

// SetLevel implements onewire.Master.
//
// The strong pull-up can only be requested as the level following a bit or a
// byte.
func (d *Dev) SetLevel(l onewire.Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l == onewire.Strong {
		return onewire.NewError(category, onewire.InvalidLevel, "strong pull-up must follow a time slot")
	}
	return d.configureLevel(l)
}

// ReadPage reads user page 0 or 1.
func (d *Dev) ReadPage(page int) (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var p Page
	var reg byte
	switch page {
	case 0:
		reg = regUserPage0
	case 1:
		reg = regUserPage1
	default:
		return p, outOfRange("page %d", page)
	}
	d.i2cTx([]byte{reg}, p[:])
	return p, d.err
}

// WritePage writes user page 0 or 1 through the scratchpad.
func (d *Dev) WritePage(page int, data *Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.copyScratchpad(false, page, false, 0, data[:]); err != nil {
		return err
	}
	sleep(eepromPageWriteDelay)
	return nil
}

// WriteSegment writes one segment of a user page.
func (d *Dev) WriteSegment(page, segment int, data *Segment) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.copyScratchpad(false, page, true, segment, data[:]); err != nil {
		return err
	}
	sleep(eepromSegmentWriteDelay)
	return nil
}

// WriteMasterSecret writes the master secret. It cannot be read back.
func (d *Dev) WriteMasterSecret(secret *Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.copyScratchpad(true, 0, false, 0, secret[:]); err != nil {
		return err
	}
	sleep(eepromPageWriteDelay)
	return nil
}

// ComputeNextMasterSecret replaces the master secret with one derived from
// data.
func (d *Dev) ComputeNextMasterSecret(data *AuthenticationData) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.compute(cmdComputeNextMasterSecret, data[:], noSwap, 2*shaComputationDelay)
}

// ComputeNextMasterSecretWithSwap is ComputeNextMasterSecret with region of a
// user page swapped into the message.
func (d *Dev) ComputeNextMasterSecretWithSwap(data *AuthenticationData, page int, region PageRegion) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := swapParam(page, region)
	if err != nil {
		return err
	}
	return d.compute(cmdComputeNextMasterSecret, data[:], p, 2*shaComputationDelay)
}

// ComputeSlaveSecret computes the secure secret of a slave from data and the
// master secret.
func (d *Dev) ComputeSlaveSecret(data *AuthenticationData) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.compute(cmdComputeSlaveSecret, data[:], noSwap, 2*shaComputationDelay)
}

// ComputeSlaveSecretWithSwap is ComputeSlaveSecret with region of a user page
// swapped into the message.
func (d *Dev) ComputeSlaveSecretWithSwap(data *AuthenticationData, page int, region PageRegion) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := swapParam(page, region)
	if err != nil {
		return err
	}
	return d.compute(cmdComputeSlaveSecret, data[:], p, 2*shaComputationDelay)
}

// ComputeWriteMac computes the MAC authorizing a segment write and reads it.
func (d *Dev) ComputeWriteMac(data *WriteMacData) (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.computeWriteMac(data, false, 0, 0); err != nil {
		return Page{}, err
	}
	return d.readMac()
}

// ComputeWriteMacWithSwap is ComputeWriteMac with the old data of the message
// taken from segment of a user page.
func (d *Dev) ComputeWriteMacWithSwap(data *WriteMacData, page, segment int) (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.computeWriteMac(data, true, page, segment); err != nil {
		return Page{}, err
	}
	return d.readMac()
}

// ComputeAndTransmitWriteMac computes the write MAC and sends it onto the
// 1-wire bus without it crossing I²C.
func (d *Dev) ComputeAndTransmitWriteMac(data *WriteMacData) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.computeWriteMac(data, false, 0, 0); err != nil {
		return err
	}
	return d.transmitMac()
}

// ComputeAndTransmitWriteMacWithSwap is ComputeAndTransmitWriteMac with swap.
func (d *Dev) ComputeAndTransmitWriteMacWithSwap(data *WriteMacData, page, segment int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.computeWriteMac(data, true, page, segment); err != nil {
		return err
	}
	return d.transmitMac()
}

// ComputeAuthMac computes the MAC a slave must answer for a page and reads
// it.
func (d *Dev) ComputeAuthMac(data *AuthenticationData) (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.compute(cmdComputeAuthMac, data[:], noSwap, 2*shaComputationDelay); err != nil {
		return Page{}, err
	}
	return d.readMac()
}

// ComputeAuthMacWithSwap is ComputeAuthMac with region of a user page swapped
// into the message.
func (d *Dev) ComputeAuthMacWithSwap(data *AuthenticationData, page int, region PageRegion) (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := swapParam(page, region)
	if err != nil {
		return Page{}, err
	}
	if err := d.compute(cmdComputeAuthMac, data[:], p, 2*shaComputationDelay); err != nil {
		return Page{}, err
	}
	return d.readMac()
}

// ComputeAndTransmitAuthMac computes the authentication MAC and sends it onto
// the 1-wire bus.
func (d *Dev) ComputeAndTransmitAuthMac(data *AuthenticationData) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.compute(cmdComputeAuthMac, data[:], noSwap, 2*shaComputationDelay); err != nil {
		return err
	}
	return d.transmitMac()
}

// ComputeAndTransmitAuthMacWithSwap is ComputeAndTransmitAuthMac with swap.
func (d *Dev) ComputeAndTransmitAuthMacWithSwap(data *AuthenticationData, page int, region PageRegion) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := swapParam(page, region)
	if err != nil {
		return err
	}
	if err := d.compute(cmdComputeAuthMac, data[:], p, 2*shaComputationDelay); err != nil {
		return err
	}
	return d.transmitMac()
}

//

const category = "ds2465"

const (
	regScratchpad = 0x00
	regCommand    = 0x60
	regStatus     = 0x61
	regReadData   = 0x62
	regMac        = 0x63
	regProtection = 0x64
	regConfig     = 0x67
	regTRSTL      = 0x68
	regUserPage0  = 0x80
	regUserPage1  = 0xa0

	cmdDeviceReset             = 0xf0
	cmd1WReset                 = 0xb4
	cmd1WBit                   = 0x87
	cmd1WWrite                 = 0xa5
	cmd1WRead                  = 0x96
	cmd1WTriplet               = 0x78
	cmd1WTransmitBlock         = 0x69
	cmd1WReceiveBlock          = 0xe1
	cmdComputeNextMasterSecret = 0x1e
	cmdComputeWriteMac         = 0x2d
	cmdComputeAuthMac          = 0x3c
	cmdComputeSlaveSecret      = 0x4b
	cmdCopyScratchpad          = 0x5a

	status1WB = 0x01
	statusPPD = 0x02
	statusSD  = 0x04
	statusLL  = 0x08
	statusRST = 0x10
	statusSBR = 0x20
	statusTSB = 0x40
	statusDIR = 0x80

	// noSwap is the parameter of the computations hashing the scratchpad as
	// is.
	noSwap = 0xbf

	maxBlockSize = 63
	pollLimit    = 200

	shaComputationDelay     = 2 * time.Millisecond
	eepromSegmentWriteDelay = 10 * time.Millisecond
	eepromPageWriteDelay    = 8 * eepromSegmentWriteDelay
)

var sleep = time.Sleep

func outOfRange(format string, a ...interface{}) error {
	return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf(format, a...))
}

func swapParam(page int, region PageRegion) (byte, error) {
	if page < 0 || page >= MemoryPages {
		return 0, outOfRange("page %d", page)
	}
	switch region {
	case FirstHalf, SecondHalf, FullPage:
	default:
		return 0, outOfRange("page region %d", region)
	}
	return 0xc8 | byte(page)<<4 | byte(region), nil
}

// i2cTx is a helper function to call i2c.Tx and handle the error by persisting
// it.
func (d *Dev) i2cTx(w, r []byte) {
	if d.err != nil {
		return
	}
	if err := d.i2c.Tx(w, r); err != nil {
		d.err = onewire.WrapError(category, onewire.Nack, err)
	}
}

// command writes a command and its parameter to the command register.
func (d *Dev) command(c ...byte) {
	d.i2cTx(append([]byte{regCommand}, c...), nil)
}

// pollBusy reads the status register until the 1-wire bus is idle. The read
// pointer is left on it by every 1-wire command.
func (d *Dev) pollBusy() byte {
	for i := 0; d.err == nil; i++ {
		var status [1]byte
		d.i2cTx(nil, status[:])
		if status[0]&status1WB == 0 {
			return status[0]
		}
		if i == pollLimit {
			d.err = onewire.NewError(category, onewire.HardwareError, "timeout waiting for bus cycle to finish")
		}
	}
	return 0
}

func (d *Dev) resetDevice() error {
	var status [1]byte
	d.command(cmdDeviceReset)
	d.i2cTx(nil, status[:])
	if d.err != nil {
		return d.err
	}
	if status[0]&^statusLL != statusRST {
		return onewire.NewError(category, onewire.HardwareError, fmt.Sprintf("invalid status register value: %#x", status[0]))
	}
	// Get the 1-wire master out of its holding state; presence does not
	// matter.
	if err := d.reset(); d.err != nil {
		return err
	}
	return nil
}

func (d *Dev) reset() error {
	d.command(cmd1WReset)
	status := d.pollBusy()
	if d.err != nil {
		return d.err
	}
	if status&statusSD != 0 {
		return onewire.NewError(category, onewire.ShortDetected, "bus has a short")
	}
	if status&statusPPD == 0 {
		return onewire.NewError(category, onewire.NoSlave, "no device present")
	}
	return nil
}

func (d *Dev) configureLevel(l onewire.Level) error {
	if l != onewire.Normal && l != onewire.Strong {
		return onewire.NewError(category, onewire.InvalidLevel, l.String())
	}
	strong := l == onewire.Strong
	if d.conf.Has(ds248x.StrongPullup) == strong {
		return d.err
	}
	return d.writeConfig(d.conf.With(ds248x.StrongPullup, strong))
}

func (d *Dev) writeConfig(c ds248x.Config) error {
	var r [1]byte
	d.i2cTx([]byte{regConfig, c.Encode()}, nil)
	d.i2cTx([]byte{regConfig}, r[:])
	if d.err != nil {
		return d.err
	}
	if ds248x.Config(r[0]) != c&0x0f {
		return onewire.NewError(category, onewire.HardwareError,
			fmt.Sprintf("failure to write device config register, wrote %#x got %#x back", c.Encode(), r[0]))
	}
	d.conf = c
	return nil
}

func (d *Dev) writePortParameter(p PortParameter, val int) error {
	if val < 0 || val > 15 {
		return outOfRange("port parameter value %d", val)
	}
	var reg byte
	switch p {
	case TRSTL, TRSTLOverdrive:
		reg = regTRSTL
	case TMSP, TMSPOverdrive:
		reg = regTRSTL + 1
	case TW0L, TW0LOverdrive:
		reg = regTRSTL + 2
	case TREC0:
		reg = regTRSTL + 3
	case RWPU:
		reg = regTRSTL + 4
	case TW1LOverdrive:
		reg = regTRSTL + 5
	default:
		return outOfRange("port parameter %d", p)
	}
	var old [1]byte
	d.i2cTx([]byte{reg}, old[:])
	if d.err != nil {
		return d.err
	}
	v := old[0]&0xf0 | byte(val)
	switch p {
	case TRSTLOverdrive, TMSPOverdrive, TW0LOverdrive:
		v = old[0]&0x0f | byte(val)<<4
	}
	if v != old[0] {
		d.i2cTx([]byte{reg, v}, nil)
	}
	return d.err
}

// copyScratchpad loads data in the scratchpad and copies it to the master
// secret, a user page or a segment of it.
func (d *Dev) copyScratchpad(secret bool, page int, segmented bool, segment int, data []byte) error {
	var p byte
	if !secret {
		if page < 0 || page >= MemoryPages {
			return outOfRange("page %d", page)
		}
		if segment < 0 || segment >= SegmentsPerPage {
			return outOfRange("segment %d", segment)
		}
		p = 0x80 | byte(page)<<4 | byte(segment)
		if segmented {
			p |= 0x08
		}
	}
	d.i2cTx(append([]byte{regScratchpad}, data...), nil)
	d.command(cmdCopyScratchpad, p)
	return d.err
}

func (d *Dev) compute(cmd byte, data []byte, param byte, delay time.Duration) error {
	d.i2cTx(append([]byte{regScratchpad}, data...), nil)
	d.command(cmd, param)
	if d.err != nil {
		return d.err
	}
	sleep(delay)
	return nil
}

// computeWriteMac never sets the register write bit; MACs for register
// writes are not supported.
func (d *Dev) computeWriteMac(data *WriteMacData, swap bool, page, segment int) error {
	var p byte
	if swap {
		if page < 0 || page >= MemoryPages {
			return outOfRange("page %d", page)
		}
		if segment < 0 || segment >= SegmentsPerPage {
			return outOfRange("segment %d", segment)
		}
		p = 0x40 | byte(page)<<4 | byte(segment)
	}
	return d.compute(cmdComputeWriteMac, data[:], p, shaComputationDelay)
}

func (d *Dev) readMac() (Page, error) {
	var mac Page
	d.i2cTx([]byte{regMac}, mac[:])
	return mac, d.err
}

// transmitMac sends the computed MAC onto the 1-wire bus.
func (d *Dev) transmitMac() error {
	d.command(cmd1WTransmitBlock, 0xff)
	d.pollBusy()
	return d.err
}

var _ conn.Resource = &Dev{}
var _ onewire.Master = &Dev{}
