// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds2480b interfaces to Maxim DS2480B serial 1-wire line drivers.
//
// The DS2480B is either in command mode or in data mode. Data bytes are sent
// as is onto the 1-wire bus, command bytes drive resets, single time slots,
// pulses and configuration. The 1-wire speed is tied to the serial rate:
// 9600bps at standard speed, 115200bps at overdrive.
//
// Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS2480B.pdf
package ds2480b

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"

	"github.com/GermanBionicSystems/maximinterface/onewire"
	"github.com/GermanBionicSystems/maximinterface/uart"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	// Speed is selected right after the bridge is detected.
	Speed onewire.Speed
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Speed: onewire.Standard,
}

// New detects a DS2480B on port and returns a handle to it.
//
// The port is owned by the Dev until it is not used anymore.
func New(port uart.Port, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{port: port}
	if err := d.Initialize(); err != nil {
		return nil, err
	}
	if opts.Speed != onewire.Standard {
		if err := d.SetSpeed(opts.Speed); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Dev is a handle to a DS2480B.
type Dev struct {
	mu    sync.Mutex
	port  uart.Port
	mode  byte
	speed byte
	baud  baudRate
	level onewire.Level
}

func (d *Dev) String() string {
	return fmt.Sprintf("DS2480B{%s}", d.port)
}

// Halt implements conn.Resource.
//
// It returns the bus to the Normal level.
func (d *Dev) Halt() error {
	return d.SetLevel(onewire.Normal)
}

// Initialize resynchronizes with the DS2480B: a break, the timing byte, then
// the slew rate, write-one low time and sample offset configuration. It
// confirms the device answered by reading back the baud rate and a single bit
// operation.
func (d *Dev) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.level = onewire.Normal
	d.baud = baud9600
	d.mode = modeCommand
	d.speed = speedFlex
	if err := d.port.SetBaudRate(d.baud.bps()); err != nil {
		return err
	}
	// 4800bps makes sure the break is longer than 2ms.
	if err := d.port.SetBaudRate(4800); err != nil {
		return err
	}
	if err := d.port.SendBreak(); err != nil {
		return err
	}
	if err := d.port.SetBaudRate(d.baud.bps()); err != nil {
		return err
	}
	sleep(2 * time.Millisecond)
	if err := d.port.ClearReadBuffer(); err != nil {
		return err
	}
	if err := uart.WriteByte(d.port, cmdTiming); err != nil {
		return err
	}
	sleep(2 * time.Millisecond)
	p := []byte{
		cmdConfig | paramSlew | slew1p37Vus,
		cmdConfig | paramWrite1Low | write1Low10us,
		cmdConfig | paramSampleOffset | sampleOffset8us,
		cmdConfig | paramRead | (paramBaud >> 3),
		cmdComm | funcBit | byte(d.baud) | bitOne,
	}
	r, err := d.transact(p, 5)
	if err != nil {
		return err
	}
	if r[3]&0xf1 != 0 || r[3]&0x0e != byte(d.baud) || r[4]&0xf0 != 0x90 || r[4]&0x0c != byte(d.baud) {
		return onewire.NewError(category, onewire.HardwareError, fmt.Sprintf("unexpected detect response % X", r))
	}
	return nil
}

// SendCommand sends a raw command mode byte without waiting for a response.
//
// The DS9481P uses it to leave DS2480B emulation.
func (d *Dev) SendCommand(cmd byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uart.Write(d.port, d.command(nil, cmd))
}

// Reset implements onewire.Master.
func (d *Dev) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.transact(d.command(nil, cmdComm|funcReset|d.speed), 1)
	if err != nil {
		return err
	}
	switch r[0] & resetMask {
	case resetShort:
		return onewire.NewError(category, onewire.ShortDetected, "reset")
	case resetNoPresence:
		return onewire.NewError(category, onewire.NoSlave, "reset")
	}
	return nil
}

// TouchBit implements onewire.Master.
func (d *Dev) TouchBit(bit bool, after onewire.Level) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := cmdComm | funcBit | d.speed
	if bit {
		c |= bitOne
	}
	r, err := d.transact(d.command(nil, c), 1)
	if err != nil {
		return false, err
	}
	if r[0]&0xe0 != 0x80 {
		return false, onewire.NewError(category, onewire.HardwareError, fmt.Sprintf("unexpected bit response %#02x", r[0]))
	}
	return r[0]&bitMask == bitMask, d.setLevel(after)
}

// WriteByteLevel implements onewire.Master.
func (d *Dev) WriteByteLevel(b byte, after onewire.Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.data(nil, b)
	if b == modeCommand {
		// Escaped by doubling it.
		p = append(p, b)
	}
	r, err := d.transact(p, 1)
	if err != nil {
		return err
	}
	if r[0] != b {
		return onewire.NewError(category, onewire.HardwareError, fmt.Sprintf("wrote %#02x, echoed %#02x", b, r[0]))
	}
	return d.setLevel(after)
}

// ReadByteLevel implements onewire.Master.
func (d *Dev) ReadByteLevel(after onewire.Level) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, err := d.transact(d.data(nil, 0xff), 1)
	if err != nil {
		return 0, err
	}
	return r[0], d.setLevel(after)
}

// WriteBlock implements onewire.Master.
func (d *Dev) WriteBlock(w []byte) error {
	return onewire.WriteBlockBytes(d, w)
}

// ReadBlock implements onewire.Master.
func (d *Dev) ReadBlock(r []byte) error {
	return onewire.ReadBlockBytes(d, r)
}

// Triplet implements onewire.Master.
func (d *Dev) Triplet(dir bool) (onewire.TripletResult, error) {
	return onewire.TripletBits(d, dir)
}

// SetSpeed implements onewire.Master.
//
// The serial rate follows: 9600bps at Standard, 115200bps at Overdrive.
func (d *Dev) SetSpeed(s onewire.Speed) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var speed byte
	var b baudRate
	switch s {
	case onewire.Standard:
		speed, b = speedStandard, baud9600
	case onewire.Overdrive:
		speed, b = speedOverdrive, baud115200
	default:
		return onewire.NewError(category, onewire.InvalidSpeed, s.String())
	}
	if d.speed == speed {
		return nil
	}
	if err := d.changeBaud(b); err != nil {
		return err
	}
	d.speed = speed
	return uart.Write(d.port, d.command(nil, cmdComm|funcSearchOff|d.speed))
}

// SetLevel implements onewire.Master.
func (d *Dev) SetLevel(l onewire.Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setLevel(l)
}

//

const category = "ds2480b"

// Mode bytes.
const (
	modeData      = 0xe1
	modeCommand   = 0xe3
	modeStopPulse = 0xf1
)

// Command bytes are built from a command type and fields.
const (
	cmdComm   = 0x81
	cmdConfig = 0x01
	cmdTiming = 0xc1 // a reset at flexible speed, used to calibrate the baud rate

	funcBit       = 0x00
	funcSearchOff = 0x20
	funcReset     = 0x40
	funcPulse     = 0x60

	bitOne = 0x10

	speedStandard  = 0x00
	speedFlex      = 0x04
	speedOverdrive = 0x08
	speedPulse     = 0x0c

	paramRead         = 0x00
	paramSlew         = 0x10
	param5VPulse      = 0x30
	paramWrite1Low    = 0x40
	paramSampleOffset = 0x50
	paramBaud         = 0x70

	slew1p37Vus     = 0x06
	write1Low10us   = 0x04
	sampleOffset8us = 0x0a
	pulseInfinite   = 0x0e
)

// Responses.
const (
	resetMask       = 0x03
	resetShort      = 0x00
	resetNoPresence = 0x03
	bitMask         = 0x03
)

type baudRate byte

const (
	baud9600   baudRate = 0x00
	baud19200  baudRate = 0x02
	baud57600  baudRate = 0x04
	baud115200 baudRate = 0x06
)

func (b baudRate) bps() int {
	switch b {
	case baud19200:
		return 19200
	case baud57600:
		return 57600
	case baud115200:
		return 115200
	default:
		return 9600
	}
}

var sleep = time.Sleep

// command prefixes c with the command mode byte when needed.
func (d *Dev) command(p []byte, c ...byte) []byte {
	if d.mode != modeCommand {
		d.mode = modeCommand
		p = append(p, modeCommand)
	}
	return append(p, c...)
}

// data prefixes c with the data mode byte when needed.
func (d *Dev) data(p []byte, c ...byte) []byte {
	if d.mode != modeData {
		d.mode = modeData
		p = append(p, modeData)
	}
	return append(p, c...)
}

// transact flushes the receive buffer, sends p and reads n response bytes.
func (d *Dev) transact(p []byte, n int) ([]byte, error) {
	if err := d.port.ClearReadBuffer(); err != nil {
		return nil, err
	}
	if err := uart.Write(d.port, p); err != nil {
		return nil, err
	}
	r := make([]byte, n)
	if err := uart.ReadFull(d.port, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (d *Dev) setLevel(l onewire.Level) error {
	if l == d.level {
		return nil
	}
	switch l {
	case onewire.Normal:
		p := d.command(nil, modeStopPulse, cmdComm|funcPulse|speedPulse, modeStopPulse)
		r, err := d.transact(p, 2)
		if err != nil {
			return err
		}
		if r[0]&0xe0 != 0xe0 || r[1]&0xe0 != 0xe0 {
			return onewire.NewError(category, onewire.HardwareError, fmt.Sprintf("unexpected stop pulse response % X", r))
		}
	case onewire.Strong:
		p := d.command(nil, cmdConfig|param5VPulse|pulseInfinite, cmdComm|funcPulse|speedPulse)
		r, err := d.transact(p, 1)
		if err != nil {
			return err
		}
		if r[0]&0x81 != 0 {
			return onewire.NewError(category, onewire.HardwareError, fmt.Sprintf("unexpected pulse response %#02x", r[0]))
		}
	default:
		return onewire.NewError(category, onewire.InvalidLevel, l.String())
	}
	d.level = l
	return nil
}

// changeBaud renegotiates the serial rate in band and reads it back.
func (d *Dev) changeBaud(b baudRate) error {
	if d.baud == b {
		return nil
	}
	if err := d.port.ClearReadBuffer(); err != nil {
		return err
	}
	if err := uart.Write(d.port, d.command(nil, cmdConfig|paramBaud|byte(b))); err != nil {
		return err
	}
	sleep(5 * time.Millisecond)
	if err := d.port.SetBaudRate(b.bps()); err != nil {
		return err
	}
	d.baud = b
	sleep(5 * time.Millisecond)
	r, err := d.transact([]byte{cmdConfig | paramRead | (paramBaud >> 3)}, 1)
	if err != nil {
		return err
	}
	if r[0]&0x0e != byte(b) {
		return onewire.NewError(category, onewire.HardwareError, fmt.Sprintf("baud rate read back %#02x", r[0]))
	}
	return nil
}

var _ conn.Resource = &Dev{}
var _ onewire.Master = &Dev{}
