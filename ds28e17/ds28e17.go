// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds28e17 interfaces to the Maxim DS28E17 1-Wire to I²C master
// bridge.
//
// Dev implements i2c.Bus so periph I²C device drivers can run behind a
// DS28E17.
//
// Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS28E17.pdf
package ds28e17

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/maximinterface/common"
	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// Family is the DS28E17 1-Wire family code.
const Family = 0x19

// Speed is the I²C clock of the bridge.
type Speed byte

const (
	Speed100kHz Speed = 0
	Speed400kHz Speed = 1
	Speed900kHz Speed = 2
)

// Frequency returns the clock rate.
func (s Speed) Frequency() physic.Frequency {
	switch s {
	case Speed100kHz:
		return 100 * physic.KiloHertz
	case Speed400kHz:
		return 400 * physic.KiloHertz
	case Speed900kHz:
		return 900 * physic.KiloHertz
	default:
		return 0
	}
}

func (s Speed) String() string {
	if f := s.Frequency(); f != 0 {
		return f.String()
	}
	return fmt.Sprintf("Speed(%d)", byte(s))
}

// MaxDataLen is the longest payload of a single packet.
const MaxDataLen = 255

// WriteNackError reports that the I²C slave did not acknowledge the byte at
// Index, counted from 1, of a write.
//
// It matches onewire.ErrNack with errors.Is.
type WriteNackError struct {
	Index int
}

func (e *WriteNackError) Error() string {
	return fmt.Sprintf("ds28e17: write byte %d not acknowledged", e.Index)
}

// Is implements the errors.Is hook.
func (e *WriteNackError) Is(target error) bool {
	return errors.Is(&onewire.Error{Category: category, Kind: onewire.Nack}, target)
}

// Opts contains options to pass to the constructor.
type Opts struct {
	// Speed is written to the configuration register when not 0. It is
	// rounded down to a supported clock.
	Speed physic.Frequency
	// PollLimit bounds the read slots spent waiting for a packet to
	// complete.
	PollLimit int
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	PollLimit: 10000,
}

// New returns a handle to the DS28E17 selected by sel on m.
func New(m onewire.Master, sel onewire.Selector, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{m: m, sel: sel, pollLimit: opts.PollLimit}
	if d.pollLimit <= 0 {
		d.pollLimit = DefaultOpts.PollLimit
	}
	if opts.Speed != 0 {
		if err := d.SetSpeed(opts.Speed); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Dev is a handle to a DS28E17.
type Dev struct {
	mu        sync.Mutex
	m         onewire.Master
	sel       onewire.Selector
	pollLimit int
}

func (d *Dev) String() string {
	return fmt.Sprintf("DS28E17{%s}", d.m)
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Tx implements i2c.Bus.
//
// addr is the 7 bit slave address.
func (d *Dev) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7f {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("address %#x", addr))
	}
	a := byte(addr << 1)
	switch {
	case len(w) != 0 && len(r) != 0:
		return d.WriteReadDataWithStop(a, w, r)
	case len(w) != 0:
		return d.WriteDataWithStop(a, w)
	case len(r) != 0:
		return d.ReadDataWithStop(a|1, r)
	default:
		return onewire.NewError(category, onewire.OutOfRange, "empty transaction")
	}
}

// SetSpeed implements i2c.Bus.
//
// The fastest supported clock not above f is used.
func (d *Dev) SetSpeed(f physic.Frequency) error {
	var s Speed
	switch {
	case f >= 900*physic.KiloHertz:
		s = Speed900kHz
	case f >= 400*physic.KiloHertz:
		s = Speed400kHz
	case f >= 100*physic.KiloHertz:
		s = Speed100kHz
	default:
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("speed %s", f))
	}
	return d.WriteConfig(s)
}

// WriteDataWithStop writes data to the slave at the 8 bit address addr and
// ends with a stop condition.
func (d *Dev) WriteDataWithStop(addr byte, data []byte) error {
	return d.packet(cmdWriteDataWithStop, &addr, data, nil)
}

// WriteDataNoStop writes data to addr and leaves the I²C bus claimed.
func (d *Dev) WriteDataNoStop(addr byte, data []byte) error {
	return d.packet(cmdWriteDataNoStop, &addr, data, nil)
}

// WriteDataOnly continues a transaction started by WriteDataNoStop.
func (d *Dev) WriteDataOnly(data []byte) error {
	return d.packet(cmdWriteDataOnly, nil, data, nil)
}

// WriteDataOnlyWithStop continues a transaction and ends it.
func (d *Dev) WriteDataOnlyWithStop(data []byte) error {
	return d.packet(cmdWriteDataOnlyWithStop, nil, data, nil)
}

// WriteReadDataWithStop writes w to addr, then reads r after a repeated
// start and ends with a stop condition.
func (d *Dev) WriteReadDataWithStop(addr byte, w, r []byte) error {
	return d.packet(cmdWriteReadDataWithStop, &addr, w, r)
}

// ReadDataWithStop reads data from addr and ends with a stop condition.
func (d *Dev) ReadDataWithStop(addr byte, data []byte) error {
	return d.packet(cmdReadDataWithStop, &addr, nil, data)
}

// WriteConfig sets the I²C clock.
func (d *Dev) WriteConfig(s Speed) error {
	if s.Frequency() == 0 {
		return onewire.NewError(category, onewire.OutOfRange, s.String())
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sel(d.m); err != nil {
		return err
	}
	return d.m.WriteBlock([]byte{cmdWriteConfig, byte(s)})
}

// ReadConfig returns the I²C clock.
func (d *Dev) ReadConfig() (Speed, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.command(cmdReadConfig)
	if err != nil {
		return 0, err
	}
	if s := Speed(b); s.Frequency() != 0 {
		return s, nil
	}
	return 0, onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("configuration %#02x", b))
}

// EnableSleepMode puts the bridge to sleep until the next 1-Wire activity.
func (d *Dev) EnableSleepMode() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sel(d.m); err != nil {
		return err
	}
	return onewire.WriteByte(d.m, cmdEnableSleep)
}

// ReadDeviceRevision returns the silicon revision.
func (d *Dev) ReadDeviceRevision() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.command(cmdReadRevision)
}

//

const category = "ds28e17"

const (
	cmdWriteDataWithStop     = 0x4b
	cmdWriteDataNoStop       = 0x5a
	cmdWriteDataOnly         = 0x69
	cmdWriteDataOnlyWithStop = 0x78
	cmdReadDataWithStop      = 0x87
	cmdWriteReadDataWithStop = 0x2d
	cmdWriteConfig           = 0xd2
	cmdReadConfig            = 0xe1
	cmdEnableSleep           = 0x1e
	cmdReadRevision          = 0xc3
)

const (
	statusCRC          = 0x01
	statusAddressNack  = 0x02
	statusInvalidStart = 0x08
)

// command sends cmd and returns the byte the device answers.
func (d *Dev) command(cmd byte) (byte, error) {
	if err := d.sel(d.m); err != nil {
		return 0, err
	}
	if err := onewire.WriteByte(d.m, cmd); err != nil {
		return 0, err
	}
	return onewire.ReadByte(d.m)
}

// packet runs one bridged I²C transaction. addr is nil for the variants
// continuing a transaction.
func (d *Dev) packet(cmd byte, addr *byte, w, r []byte) error {
	if len(w) > MaxDataLen || len(r) > MaxDataLen {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("packet of %d+%d bytes", len(w), len(r)))
	}
	if (cmd != cmdReadDataWithStop && len(w) == 0) || ((cmd == cmdReadDataWithStop || cmd == cmdWriteReadDataWithStop) && len(r) == 0) {
		return onewire.NewError(category, onewire.OutOfRange, "empty packet")
	}
	b := []byte{cmd}
	if addr != nil {
		b = append(b, *addr)
	}
	if len(w) != 0 {
		b = append(b, byte(len(w)))
		b = append(b, w...)
	}
	if len(r) != 0 {
		b = append(b, byte(len(r)))
	}
	crc := common.InvertedCRC16(b, 0)
	b = append(b, crc[:]...)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sel(d.m); err != nil {
		return err
	}
	if err := d.m.WriteBlock(b); err != nil {
		return err
	}
	if err := d.waitIdle(); err != nil {
		return err
	}
	status, err := onewire.ReadByte(d.m)
	if err != nil {
		return err
	}
	switch {
	case status&statusCRC != 0:
		return onewire.NewError(category, onewire.CRCError, "packet CRC16 rejected")
	case status&statusAddressNack != 0:
		return onewire.NewError(category, onewire.Nack, "address not acknowledged")
	case status&statusInvalidStart != 0:
		return onewire.NewError(category, onewire.CommunicationError, "invalid start")
	}
	if len(w) != 0 {
		n, err := onewire.ReadByte(d.m)
		if err != nil {
			return err
		}
		if n != 0 {
			return &WriteNackError{Index: int(n)}
		}
	}
	if len(r) != 0 {
		return d.m.ReadBlock(r)
	}
	return nil
}

// waitIdle reads bits until the device pulls the line low to signal the end
// of the I²C transaction.
func (d *Dev) waitIdle() error {
	for i := 0; i < d.pollLimit; i++ {
		busy, err := onewire.ReadBit(d.m)
		if err != nil {
			return err
		}
		if !busy {
			return nil
		}
	}
	return onewire.NewError(category, onewire.Timeout, "I²C transaction did not complete")
}

var _ conn.Resource = &Dev{}
var _ i2c.Bus = &Dev{}
