// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds248x

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	ponewire "periph.io/x/conn/v3/onewire"

	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// PupOhm controls the strength of the passive pull-up resistor
// on the 1-wire data line. The default value is 1000Ω.
type PupOhm uint8

const (
	// R500Ω passive pull-up resistor.
	R500Ω = 4
	// R1000Ω passive pull-up resistor.
	R1000Ω = 6
)

// Opts contains options to pass to the constructor.
type Opts struct {
	PassivePullup bool // false:use active pull-up, true: disable active pullup
	Overdrive     bool // start at overdrive speed
	Channel       int  // DS2482-800 only: channel selected at start, 0..7

	// The following options are only available on the ds2483/ds2484 (not
	// ds2482-100/800). The actual value used is the closest possible value
	// (rounded up or down).
	ResetLow       time.Duration // reset low time, range 440μs..740μs
	PresenceDetect time.Duration // presence detect sample time, range 58μs..76μs
	Write0Low      time.Duration // write zero low time, range 52μs..70μs
	Write0Recovery time.Duration // write zero recovery time, range 2750ns..25250ns
	PullupRes      PupOhm        // passive pull-up resistance, true: 500Ω, false: 1kΩ
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	PassivePullup:  false,
	ResetLow:       560 * time.Microsecond,
	PresenceDetect: 68 * time.Microsecond,
	Write0Low:      64 * time.Microsecond,
	Write0Recovery: 5250 * time.Nanosecond,
	PullupRes:      R1000Ω,
}

// New returns a device object that communicates over I²C to the
// DS2482-100, DS2482-800, DS2483 or DS2484 controller. The variant is
// detected from the registers it answers to.
//
// Valid I²C addresses are 0x18 to 0x1f.
func New(i i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if addr < 0x18 || addr > 0x1f {
		return nil, errors.New("ds248x: given address not supported by device")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{i2c: &i2c.Dev{Bus: i, Addr: addr}}
	d.bus = onewire.NewBus(d)
	if err := d.makeDev(opts); err != nil {
		return nil, err
	}
	return d, nil
}

// Dev is a handle to a ds248x device. It implements onewire.Master and,
// through an onewire.Bus, periph's onewire.Bus.
//
// Dev implements a persistent error model: if a fatal error is encountered it
// places itself into an error state and immediately returns the last error on
// all subsequent calls. A fresh Dev, which reinitializes the hardware, must be
// created to proceed.
//
// A persistent error is only set when there is a problem with the ds248x
// device itself (or the I²C bus used to access it). Errors on the 1-wire bus
// do not cause persistent errors and implement the onewire.BusError interface
// to indicate this fact.
type Dev struct {
	sync.Mutex               // lock for the bus while a transaction is in progress
	i2c        conn.Conn     // i2c device handle for the ds248x
	bus        *onewire.Bus  // periph onewire.Bus face
	variant    variant       // detected chip
	conf       Config        // value of the configuration register
	tReset     time.Duration // time to perform a 1-wire reset
	tSlot      time.Duration // time to perform a 1-bit 1-wire read/write
	err        error         // persistent error, device will no longer operate
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.variant, d.i2c)
}

// Halt implements conn.Resource.
//
// It returns the bus to the Normal level.
func (d *Dev) Halt() error {
	return d.SetLevel(onewire.Normal)
}

// Config returns the configuration last written to the device.
func (d *Dev) Config() Config {
	d.Lock()
	defer d.Unlock()
	return d.conf
}

// WriteConfig writes the configuration register and verifies it by reading
// it back.
func (d *Dev) WriteConfig(c Config) error {
	d.Lock()
	defer d.Unlock()
	return d.writeConfig(c)
}

// Reset implements onewire.Master.
func (d *Dev) Reset() error {
	d.Lock()
	defer d.Unlock()
	return d.reset()
}

// TouchBit implements onewire.Master.
func (d *Dev) TouchBit(bit bool, after onewire.Level) (bool, error) {
	d.Lock()
	defer d.Unlock()
	if err := d.configureLevel(after); err != nil {
		return false, err
	}
	var b byte
	if bit {
		b = 0x80
	}
	d.i2cTx([]byte{cmd1WBit, b}, nil)
	status := d.waitIdle(d.tSlot)
	return status&statusSBR != 0, d.err
}

// WriteByteLevel implements onewire.Master.
func (d *Dev) WriteByteLevel(b byte, after onewire.Level) error {
	d.Lock()
	defer d.Unlock()
	return d.writeByte(b, after)
}

// ReadByteLevel implements onewire.Master.
func (d *Dev) ReadByteLevel(after onewire.Level) (byte, error) {
	d.Lock()
	defer d.Unlock()
	return d.readByte(after)
}

// WriteBlock implements onewire.Master.
func (d *Dev) WriteBlock(w []byte) error {
	d.Lock()
	defer d.Unlock()
	for _, b := range w {
		if err := d.writeByte(b, onewire.Normal); err != nil {
			return err
		}
	}
	return nil
}

// ReadBlock implements onewire.Master.
func (d *Dev) ReadBlock(r []byte) error {
	d.Lock()
	defer d.Unlock()
	for i := range r {
		b, err := d.readByte(onewire.Normal)
		if err != nil {
			return err
		}
		r[i] = b
	}
	return nil
}

// Triplet implements onewire.Master with the 1-wire triplet command: two read
// slots and a write slot in a single bus cycle.
func (d *Dev) Triplet(dir bool) (onewire.TripletResult, error) {
	d.Lock()
	defer d.Unlock()
	var b byte
	if dir {
		b = 0x80
	}
	d.i2cTx([]byte{cmd1WTriplet, b}, nil)
	// In theory 3*tSlot but it's actually overlapped.
	status := d.waitIdle(0)
	return onewire.TripletResult{
		ReadBit:           status&statusSBR != 0,
		ReadBitComplement: status&statusTSB != 0,
		Direction:         status&statusDIR != 0,
	}, d.err
}

// SetSpeed implements onewire.Master.
func (d *Dev) SetSpeed(s onewire.Speed) error {
	d.Lock()
	defer d.Unlock()
	if s != onewire.Standard && s != onewire.Overdrive {
		return onewire.NewError(category, onewire.InvalidSpeed, s.String())
	}
	od := s == onewire.Overdrive
	if d.conf.Has(Overdrive) == od {
		return nil
	}
	return d.writeConfig(d.conf.With(Overdrive, od))
}

// SetLevel implements onewire.Master.
//
// The strong pull-up can only be requested as the level following a bit or a
// byte.
func (d *Dev) SetLevel(l onewire.Level) error {
	d.Lock()
	defer d.Unlock()
	if l == onewire.Strong {
		return onewire.NewError(category, onewire.InvalidLevel, "strong pull-up must follow a time slot")
	}
	return d.configureLevel(l)
}

// Tx performs a bus transaction, sending and receiving bytes, and ending by
// pulling the bus high either weakly or strongly depending on the value of
// power.
//
// A strong pull-up is typically required to power temperature conversion or
// EEPROM writes.
func (d *Dev) Tx(w, r []byte, power ponewire.Pullup) error {
	return d.bus.Tx(w, r, power)
}

// Search performs a "search" cycle on the 1-wire bus and returns the addresses
// of all devices on the bus if alarmOnly is false and of all devices in alarm
// state if alarmOnly is true.
//
// If an error occurs during the search the already-discovered devices are
// returned with the error.
func (d *Dev) Search(alarmOnly bool) ([]ponewire.Address, error) {
	return d.bus.Search(alarmOnly)
}

// SearchTriplet performs a single bit search triplet command on the bus, waits
// for it to complete and returs the outcome.
//
// SearchTriplet should not be used directly, use Search instead.
func (d *Dev) SearchTriplet(direction byte) (ponewire.TripletResult, error) {
	return d.bus.SearchTriplet(direction)
}

// ChannelSelect selects one of the eight 1-wire channels of a DS2482-800.
// The channel code read back is verified. It is expected that the
// application keeps track of which 1-wire device is connected to which
// channel.
func (d *Dev) ChannelSelect(ch int) error {
	d.Lock()
	defer d.Unlock()
	return d.channelSelect(ch)
}

// SelectedChannel reads which channel of a DS2482-800 is selected.
func (d *Dev) SelectedChannel() (int, error) {
	d.Lock()
	defer d.Unlock()
	if d.variant != isDS2482x800 {
		return 0, onewire.NewError(category, onewire.InvalidOperation, "no channel selection on "+d.variant.String())
	}
	var sch [1]byte
	d.i2cTx([]byte{cmdSetReadPtr, regCSR}, sch[:])
	if d.err != nil {
		return 0, d.err
	}
	for ch, c := range channels {
		if c.r == sch[0] {
			return ch, nil
		}
	}
	return 0, onewire.NewError(category, onewire.HardwareError, fmt.Sprintf("invalid channel selection register %#02x", sch[0]))
}

// PortParameter selects one of the DS2483/DS2484 1-wire timing parameters.
type PortParameter int

const (
	TRSTL          PortParameter = 0 // reset low time
	TRSTLOverdrive PortParameter = 1
	TMSP           PortParameter = 2 // presence detect sampling time
	TMSPOverdrive  PortParameter = 3
	TW0L           PortParameter = 4 // write zero low time
	TW0LOverdrive  PortParameter = 5
	TREC0          PortParameter = 6 // write zero recovery time, both speeds
	RWPU           PortParameter = 8 // passive pull-up resistance, both speeds
)

// position is the rank of the parameter in the port configuration readout.
func (p PortParameter) position() int {
	if p == RWPU {
		return 7
	}
	return int(p)
}

// AdjustPort sets one 1-wire timing parameter of a DS2483/DS2484 to the code
// val, 0..15, and reads it back.
func (d *Dev) AdjustPort(p PortParameter, val int) error {
	d.Lock()
	defer d.Unlock()
	if d.variant != isDS2483 {
		return onewire.NewError(category, onewire.InvalidOperation, "no port configuration on "+d.variant.String())
	}
	if val < 0 || val > 15 || p < TRSTL || p > RWPU || p == 7 {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("port parameter %d = %d", p, val))
	}
	// The port configuration is read back in parameter order.
	r := make([]byte, p.position()+1)
	d.i2cTx([]byte{cmdAdjPort, byte(p)<<4 | byte(val)}, r)
	if d.err != nil {
		return d.err
	}
	if got := r[len(r)-1]; got != byte(val) {
		return onewire.NewError(category, onewire.HardwareError, fmt.Sprintf("port parameter %d read back %d, wrote %d", p, got, val))
	}
	return nil
}

//

const category = "ds248x"

// reset issues a reset signal on the 1-wire bus and checks that a device
// responded with a presence pulse.
func (d *Dev) reset() error {
	// Issue reset.
	d.i2cTx([]byte{cmd1WReset}, nil)

	// Wait for reset to complete.
	status := d.waitIdle(d.tReset)
	if d.err != nil {
		return d.err
	}
	// Detect bus short and turn into 1-wire error
	if status&statusSD != 0 {
		return onewire.NewError(category, onewire.ShortDetected, "bus has a short")
	}
	if status&statusPPD == 0 {
		return onewire.NewError(category, onewire.NoSlave, "no device present")
	}
	return nil
}

func (d *Dev) writeByte(b byte, after onewire.Level) error {
	if err := d.configureLevel(after); err != nil {
		return err
	}
	d.i2cTx([]byte{cmd1WWrite, b}, nil)
	d.waitIdle(7 * d.tSlot)
	return d.err
}

func (d *Dev) readByte(after onewire.Level) (byte, error) {
	if err := d.configureLevel(after); err != nil {
		return 0, err
	}
	var r [1]byte
	d.i2cTx([]byte{cmd1WRead}, nil)
	d.waitIdle(7 * d.tSlot)
	d.i2cTx([]byte{cmdSetReadPtr, regRDR}, r[:])
	return r[0], d.err
}

// configureLevel arms or disarms the strong pull-up. Once armed it takes
// effect at the end of the next time slot.
func (d *Dev) configureLevel(l onewire.Level) error {
	if l != onewire.Normal && l != onewire.Strong {
		return onewire.NewError(category, onewire.InvalidLevel, l.String())
	}
	strong := l == onewire.Strong
	if d.conf.Has(StrongPullup) == strong {
		return d.err
	}
	return d.writeConfig(d.conf.With(StrongPullup, strong))
}

// writeConfig writes the configuration register. When reading back we only
// get the bottom nibble.
func (d *Dev) writeConfig(c Config) error {
	var dcr [1]byte
	d.i2cTx([]byte{cmdWriteConfig, c.Encode()}, dcr[:])
	if d.err != nil {
		return d.err
	}
	if Config(dcr[0]) != c&0x0f {
		return onewire.NewError(category, onewire.HardwareError,
			fmt.Sprintf("failure to write device config register, wrote %#x got %#x back", c.Encode(), dcr[0]))
	}
	d.conf = c
	return nil
}

func (d *Dev) channelSelect(ch int) error {
	if d.variant != isDS2482x800 {
		return onewire.NewError(category, onewire.InvalidOperation, "no channel selection on "+d.variant.String())
	}
	if ch < 0 || ch >= len(channels) {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("channel %d", ch))
	}
	var r [1]byte
	d.i2cTx([]byte{cmdChannelSelect, channels[ch].w}, r[:])
	if d.err != nil {
		return d.err
	}
	if r[0] != channels[ch].r {
		return onewire.NewError(category, onewire.HardwareError, fmt.Sprintf("channel %d read back %#02x", ch, r[0]))
	}
	return nil
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

// waitIdle waits for the one wire bus to be idle.
//
// It initially sleeps for the delay and then polls the status register and
// sleeps for a tenth of the delay each time the status register indicates that
// the bus is still busy. The last read status byte is returned.
//
// The status register is read at most pollLimit+1 times. waitIdle uses the
// persistent error model and returns 0 if there is an error.
func (d *Dev) waitIdle(delay time.Duration) byte {
	if d.err != nil {
		return 0
	}
	sleep(delay)
	for i := 0; ; i++ {
		// Read status register, the read pointer is left on it by every 1-wire
		// command.
		var status [1]byte
		d.i2cTx(nil, status[:])
		// If bus idle complete, return status. This also returns if d.err!=nil
		// because in that case status[0]==0.
		if status[0]&status1WB == 0 {
			return status[0]
		}
		// This is an error with the ds248x, not with devices on the 1-wire bus,
		// hence it is persistent.
		if i == pollLimit {
			d.err = onewire.NewError(category, onewire.HardwareError, "timeout waiting for bus cycle to finish")
			return 0
		}
		// Try not to hog the kernel thread.
		sleep(delay / 10)
	}
}

func (d *Dev) makeDev(opts *Opts) error {
	d.tReset = 2 * opts.ResetLow
	d.tSlot = opts.Write0Low + opts.Write0Recovery
	if d.tReset == 0 {
		d.tReset = 2 * DefaultOpts.ResetLow
	}
	if d.tSlot == 0 {
		d.tSlot = DefaultOpts.Write0Low + DefaultOpts.Write0Recovery
	}

	// Issue a reset command and read the status register to confirm that we
	// have a responding ds248x. The logic level bit is ignored.
	var stat [1]byte
	if err := d.i2c.Tx([]byte{cmdReset}, stat[:]); err != nil {
		return onewire.WrapError(category, onewire.Nack, fmt.Errorf("error while resetting: %w", err))
	}
	if stat[0]&^statusLL != statusRST {
		return onewire.NewError(category, onewire.HardwareError, fmt.Sprintf("invalid status register value: %#x, expected 0x10", stat[0]))
	}

	// A 1-wire reset gets the 1-wire master out of its holding state. Whether
	// a device answers does not matter here.
	if err := d.reset(); d.err != nil {
		return err
	}

	// Write the device configuration register to get the chip out of reset
	// state, immediately read it back to get confirmation.
	c := DefaultConfig.With(ActivePullup, !opts.PassivePullup).With(Overdrive, opts.Overdrive)
	if err := d.writeConfig(c); err != nil {
		return err
	}

	// Set the read ptr to the port configuration register to determine whether we have a
	// ds2483 vs ds2482-100. This will fail on devices that do not have a port config
	// register, such as the ds2482-100.
	if d.i2c.Tx([]byte{cmdSetReadPtr, regPCR}, nil) == nil {
		d.variant = isDS2483
		buf := []byte{cmdAdjPort,
			byte(0x00 + ((opts.ResetLow/time.Microsecond - 430) / 20 & 0x0f)),
			byte(0x20 + ((opts.PresenceDetect/time.Microsecond - 55) / 2 & 0x0f)),
			byte(0x40 + ((opts.Write0Low/time.Microsecond - 51) / 2 & 0x0f)),
			byte(0x60 + (((opts.Write0Recovery-1250)/2500 + 5) & 0x0f)),
			byte(0x80 + (opts.PullupRes & 0x0f)),
		}
		if err := d.i2c.Tx(buf, nil); err != nil {
			return onewire.WrapError(category, onewire.Nack, fmt.Errorf("error while setting port config values: %w", err))
		}
	} else if d.i2c.Tx([]byte{cmdSetReadPtr, regCSR}, nil) == nil {
		d.variant = isDS2482x800
		if err := d.channelSelect(opts.Channel); err != nil {
			return err
		}
	} else {
		d.variant = isDS2482x100
	}
	return nil
}

type variant int

func (v variant) String() string {
	switch v {
	case isDS2482x100:
		return "DS2482-100"
	case isDS2482x800:
		return "DS2482-800"
	case isDS2483:
		return "DS2484"
	default:
		return "Undefined"
	}
}

// channels are the DS2482-800 channel selection codes to be written and read
// back.
var channels = [8]struct{ w, r byte }{
	{0xf0, 0xb8},
	{0xe1, 0xb1},
	{0xd2, 0xaa},
	{0xc3, 0xa3},
	{0xb4, 0x9c},
	{0xa5, 0x95},
	{0x96, 0x8e},
	{0x87, 0x87},
}

// pollLimit bounds the status reads while waiting for the 1-wire bus.
const pollLimit = 200

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ onewire.Master = &Dev{}
var _ ponewire.Bus = &Dev{}
var _ ponewire.BusSearcher = &Dev{}

const (
	cmdReset         = 0xf0 // reset ds248x
	cmdSetReadPtr    = 0xe1 // set the read pointer
	cmdWriteConfig   = 0xd2 // write the device configuration
	cmdAdjPort       = 0xc3 // adjust 1-wire port (ds2483/ds2484)
	cmdChannelSelect = 0xc3 // channel select (ds2482-800)
	cmd1WReset       = 0xb4 // reset the 1-wire bus
	cmd1WBit         = 0x87 // perform a single-bit transaction on the 1-wire bus
	cmd1WWrite       = 0xa5 // perform a byte write on the 1-wire bus
	cmd1WRead        = 0x96 // perform a byte read on the 1-wire bus
	cmd1WTriplet     = 0x78 // perform a triplet operation (2 bit reads, a bit write)

	regDCR    = 0xc3 // read ptr for device configuration register
	regStatus = 0xf0 // read ptr for status register
	regRDR    = 0xe1 // read ptr for read-data register
	regPCR    = 0xb4 // read ptr for port configuration register
	regCSR    = 0xd2 // read ptr for channel selection register

	status1WB = 0x01 // 1-wire busy
	statusPPD = 0x02 // presence pulse detected
	statusSD  = 0x04 // short detected
	statusLL  = 0x08 // logic level of the line
	statusRST = 0x10 // device reset
	statusSBR = 0x20 // single bit result
	statusTSB = 0x40 // triplet second bit
	statusDIR = 0x80 // branch direction taken

	isDS2482x100 variant = 0 // DS2482-100 selected
	isDS2482x800 variant = 1 // DS2482-800 selected
	isDS2483     variant = 2 // DS2483 or DS2484 selected
)
