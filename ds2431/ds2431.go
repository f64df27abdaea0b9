// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds2431 interfaces to the Maxim DS2431 1024-bit 1-Wire EEPROM.
//
// Memory is written one 8 byte row at a time through the scratchpad.
//
// Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS2431.pdf
package ds2431

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"

	"github.com/GermanBionicSystems/maximinterface/common"
	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// Family is the DS2431 1-Wire family code.
const Family = 0x2d

const (
	// RowSize is the size of the scratchpad and of an EEPROM row.
	RowSize = 8
	// MemorySize covers the four data pages and the register page.
	MemorySize = 0x90
)

// Scratchpad is one row of data.
type Scratchpad [RowSize]byte

// New returns a handle to the DS2431 selected by sel on m.
func New(m onewire.Master, sel onewire.Selector) *Dev {
	return &Dev{m: m, sel: sel}
}

// Dev is a handle to a DS2431.
type Dev struct {
	mu  sync.Mutex
	m   onewire.Master
	sel onewire.Selector
}

func (d *Dev) String() string {
	return fmt.Sprintf("DS2431{%s}", d.m)
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// ReadMemory fills data with the memory content starting at addr.
func (d *Dev) ReadMemory(addr byte, data []byte) error {
	if int(addr)+len(data) > MemorySize {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("read of %d bytes at %#02x", len(data), addr))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sel(d.m); err != nil {
		return err
	}
	if err := d.m.WriteBlock([]byte{cmdReadMemory, addr, 0}); err != nil {
		return err
	}
	return d.m.ReadBlock(data)
}

// WriteScratchpad loads data for the row at addr into the scratchpad and
// verifies the CRC16 the device answers with.
func (d *Dev) WriteScratchpad(addr byte, data Scratchpad) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeScratchpad(addr, data)
}

// ReadScratchpad returns the E/S byte and the content of the scratchpad.
//
// E/S must be echoed to CopyScratchpad for the copy to be accepted.
func (d *Dev) ReadScratchpad() (byte, Scratchpad, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readScratchpad()
}

// CopyScratchpad commits the scratchpad to the row at addr.
func (d *Dev) CopyScratchpad(addr, es byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.copyScratchpad(addr, es)
}

// WriteMemory writes one row through the scratchpad. addr must be row
// aligned.
func (d *Dev) WriteMemory(addr byte, data Scratchpad) error {
	if addr%RowSize != 0 || int(addr)+RowSize > MemorySize {
		return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("row address %#02x", addr))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeScratchpad(addr, data); err != nil {
		return err
	}
	es, _, err := d.readScratchpad()
	if err != nil {
		return err
	}
	return d.copyScratchpad(addr, es)
}

//

const category = "ds2431"

const (
	cmdWriteScratchpad = 0x0f
	cmdReadScratchpad  = 0xaa
	cmdCopyScratchpad  = 0x55
	cmdReadMemory      = 0xf0

	copyDone = 0xaa
	copyTime = 10 * time.Millisecond
)

var sleep = time.Sleep

func (d *Dev) writeScratchpad(addr byte, data Scratchpad) error {
	if err := d.sel(d.m); err != nil {
		return err
	}
	w := append([]byte{cmdWriteScratchpad, addr, 0}, data[:]...)
	if err := d.m.WriteBlock(w); err != nil {
		return err
	}
	var crc [2]byte
	if err := d.m.ReadBlock(crc[:]); err != nil {
		return err
	}
	if !common.CheckCRC16(w, 0, crc) {
		return onewire.NewError(category, onewire.CRCError, "write scratchpad CRC mismatch")
	}
	return nil
}

func (d *Dev) readScratchpad() (byte, Scratchpad, error) {
	var s Scratchpad
	if err := d.sel(d.m); err != nil {
		return 0, s, err
	}
	if err := onewire.WriteByte(d.m, cmdReadScratchpad); err != nil {
		return 0, s, err
	}
	// TA1, TA2, E/S, data, CRC16.
	var r [3 + RowSize + 2]byte
	if err := d.m.ReadBlock(r[:]); err != nil {
		return 0, s, err
	}
	crc := common.CRC16([]byte{cmdReadScratchpad}, 0)
	if !common.CheckCRC16(r[:3+RowSize], crc, [2]byte{r[3+RowSize], r[4+RowSize]}) {
		return 0, s, onewire.NewError(category, onewire.CRCError, "read scratchpad CRC mismatch")
	}
	copy(s[:], r[3:])
	return r[2], s, nil
}

func (d *Dev) copyScratchpad(addr, es byte) error {
	if err := d.sel(d.m); err != nil {
		return err
	}
	if err := d.m.WriteBlock([]byte{cmdCopyScratchpad, addr, 0}); err != nil {
		return err
	}
	if err := onewire.WriteBytePower(d.m, es); err != nil {
		return onewire.RestoreLevel(d.m, err)
	}
	sleep(copyTime)
	if err := d.m.SetLevel(onewire.Normal); err != nil {
		return err
	}
	b, err := onewire.ReadByte(d.m)
	if err != nil {
		return err
	}
	if b != copyDone {
		return onewire.NewError(category, onewire.OperationFailure, fmt.Sprintf("copy scratchpad answered %#02x", b))
	}
	return nil
}

var _ conn.Resource = &Dev{}
