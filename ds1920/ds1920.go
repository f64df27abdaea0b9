// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds1920 interfaces to the Maxim DS1920 temperature iButton.
//
// Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS1920.pdf
package ds1920

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/maximinterface/common"
	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// Family is the DS1920 1-Wire family code.
const Family = 0x10

// Scratchpad is the scratchpad content without its CRC: temperature LSB and
// MSB, TH, TL, two reserved bytes, count remain and count per degree.
type Scratchpad [8]byte

// New returns a handle to the DS1920 selected by sel on m.
//
// Nothing is sent to the device.
func New(m onewire.Master, sel onewire.Selector) *Dev {
	return &Dev{m: m, sel: sel}
}

// Dev is a handle to a DS1920.
type Dev struct {
	mu       sync.Mutex
	m        onewire.Master
	sel      onewire.Selector
	shutdown chan struct{}
}

func (d *Dev) String() string {
	return fmt.Sprintf("DS1920{%s}", d.m)
}

// Halt terminates a SenseContinuous loop if running. Implements
// conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shutdown != nil {
		close(d.shutdown)
		d.shutdown = nil
	}
	return nil
}

// WriteScratchpad writes the high and low alarm thresholds.
func (d *Dev) WriteScratchpad(th, tl byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sel(d.m); err != nil {
		return err
	}
	return d.m.WriteBlock([]byte{cmdWriteScratchpad, th, tl})
}

// ReadScratchpad reads the scratchpad and checks its CRC.
func (d *Dev) ReadScratchpad() (Scratchpad, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readScratchpad()
}

// CopyScratchpad saves the alarm thresholds to EEPROM.
func (d *Dev) CopyScratchpad() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.powered(cmdCopyScratchpad, copyTime)
}

// ConvertTemperature starts a conversion and powers the device for the
// 750ms it takes.
func (d *Dev) ConvertTemperature() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.powered(cmdConvert, conversionTime)
}

// RecallEeprom reloads the alarm thresholds from EEPROM.
func (d *Dev) RecallEeprom() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sel(d.m); err != nil {
		return err
	}
	return onewire.WriteByte(d.m, cmdRecall)
}

// ReadTemperature performs a conversion and returns the result in units of
// 0.5°C.
func (d *Dev) ReadTemperature() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readTemperature()
}

// Sense implements physic.SenseEnv.
func (d *Dev) Sense(e *physic.Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.readTemperature()
	if err != nil {
		return err
	}
	e.Temperature = physic.Temperature(t)*physic.Kelvin/2 + physic.ZeroCelsius
	return nil
}

// SenseContinuous implements physic.SenseEnv.
//
// Failed readings are skipped. Call Halt to terminate the loop.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shutdown != nil {
		return nil, errors.New("ds1920: SenseContinuous already running")
	}
	if interval < conversionTime {
		return nil, errors.New("ds1920: sample interval is shorter than the conversion time")
	}
	shutdown := make(chan struct{})
	d.shutdown = shutdown
	ch := make(chan physic.Env, 16)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(ch)
		for {
			select {
			case <-shutdown:
				return
			case <-ticker.C:
				var e physic.Env
				if err := d.Sense(&e); err == nil {
					select {
					case ch <- e:
					case <-shutdown:
						return
					}
				}
			}
		}
	}()
	return ch, nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin / 2
}

// DecodeTemperature returns the temperature held in s in units of 0.5°C.
//
// The reading is 9 bits wide and the MSB must be pure sign.
func DecodeTemperature(s Scratchpad) (int, error) {
	raw := int(s[1])<<8 | int(s[0])
	switch raw & 0xff00 {
	case 0xff00:
		return raw&0xff - 0x100, nil
	case 0:
		return raw, nil
	default:
		return 0, onewire.NewError(category, onewire.DataError, fmt.Sprintf("temperature % X", s[:2]))
	}
}

//

const category = "ds1920"

const (
	cmdWriteScratchpad = 0x4e
	cmdReadScratchpad  = 0xbe
	cmdCopyScratchpad  = 0x48
	cmdConvert         = 0x44
	cmdRecall          = 0xb8

	copyTime       = 10 * time.Millisecond
	conversionTime = 750 * time.Millisecond
)

var sleep = time.Sleep

// powered sends cmd and holds the strong pull-up for wait.
func (d *Dev) powered(cmd byte, wait time.Duration) error {
	if err := d.sel(d.m); err != nil {
		return err
	}
	if err := onewire.WriteBytePower(d.m, cmd); err != nil {
		return onewire.RestoreLevel(d.m, err)
	}
	sleep(wait)
	return d.m.SetLevel(onewire.Normal)
}

func (d *Dev) readScratchpad() (Scratchpad, error) {
	var s Scratchpad
	if err := d.sel(d.m); err != nil {
		return s, err
	}
	if err := onewire.WriteByte(d.m, cmdReadScratchpad); err != nil {
		return s, err
	}
	if err := d.m.ReadBlock(s[:]); err != nil {
		return s, err
	}
	crc, err := onewire.ReadByte(d.m)
	if err != nil {
		return s, err
	}
	if crc != common.CRC8(s[:], 0) {
		return s, onewire.NewError(category, onewire.CRCError, "incorrect scratchpad CRC")
	}
	return s, nil
}

func (d *Dev) readTemperature() (int, error) {
	if err := d.powered(cmdConvert, conversionTime); err != nil {
		return 0, err
	}
	s, err := d.readScratchpad()
	if err != nil {
		return 0, err
	}
	return DecodeTemperature(s)
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
