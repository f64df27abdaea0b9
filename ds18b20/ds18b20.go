// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds18b20 interfaces to Dallas Semi / Maxim DS18B20 and DS18S20
// 1-wire temperature sensors.
//
// Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS18B20.pdf
package ds18b20

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

// Family code of the specific device type
type Family byte

func (f Family) String() string {
	switch f {
	case DS18S20:
		return "DS18S20"
	case DS18B20:
		return "DS18B20"
	default:
		return "unknown"
	}
}

const DS18B20 Family = 0x28
const DS18S20 Family = 0x10

// Scratchpad is the scratchpad content without its CRC: temperature LSB and
// MSB, TH, TL, configuration, three reserved bytes.
type Scratchpad [8]byte

// Opts contains options to pass to the constructor.
type Opts struct {
	// Family selects the decoding of the temperature register.
	Family Family
	// ResolutionBits must be in the range 9..12 and determines how many bits
	// of precision the readings have. 0 keeps the device configuration. The
	// resolution affects the conversion time: 9bits:94ms, 10bits:188ms,
	// 11bits:375ms, 12bits:750ms.
	//
	// A resolution of 10 bits corresponds to 0.25C and tends to be a good
	// compromise between conversion time and the device's inherent accuracy of
	// +/-0.5C.
	ResolutionBits int
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Family: DS18B20,
}

// ConvertAll performs a conversion on all DS18B20 devices on the bus.
//
// During the conversion it places the bus in strong pull-up mode to power
// parasitic devices and returns when the conversions have completed. This time
// period is determined by the maximum resolution of all devices on the bus and
// must be provided.
//
// ConvertAll uses time.Sleep to wait for the conversion to finish, which takes
// from 94ms to 752ms.
func ConvertAll(m onewire.Master, maxResolutionBits int) error {
	if maxResolutionBits < 9 || maxResolutionBits > 12 {
		return errors.New("ds18b20: invalid maxResolutionBits")
	}
	return powered(m, onewire.SelectSkipRom(), cmdConvert, conversionTime(maxResolutionBits))
}

// New returns an object that communicates over 1-wire to the DS18B20 sensor
// selected by sel.
//
// It reads the scratchpad to verify the device answers and writes the
// resolution to EEPROM when it differs.
func New(m onewire.Master, sel onewire.Selector, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.ResolutionBits != 0 && (opts.ResolutionBits < 9 || opts.ResolutionBits > 12) {
		return nil, errors.New("ds18b20: invalid resolutionBits")
	}
	d := &Dev{m: m, sel: sel, family: opts.Family}

	// Start by reading the scratchpad memory, this will tell us whether we can
	// talk to the device correctly and also how it's configured.
	spad, err := d.readScratchpad()
	if err != nil {
		return nil, err
	}

	// Change the resolution, if necessary (datasheet p.6).
	if opts.ResolutionBits != 0 && d.resolution != opts.ResolutionBits {
		if err := d.writeScratchpad(spad[2], spad[3], opts.ResolutionBits); err != nil {
			return nil, err
		}
		// Copy the scratchpad to EEPROM to save the values.
		if err := d.copyScratchpad(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Dev is a handle to a Dallas Semi / Maxim DS18B20 temperature sensor on a
// 1-wire bus.
type Dev struct {
	mu         sync.Mutex
	m          onewire.Master
	sel        onewire.Selector
	family     Family
	resolution int // resolution in bits (9..12)
	shutdown   chan struct{}
}

func (d *Dev) Family() Family {
	return d.family
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.family, d.m)
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

// Resolution returns the resolution in bits last read from or written to the
// device.
func (d *Dev) Resolution() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolution
}

// Sense implements physic.SenseEnv.
func (d *Dev) Sense(e *physic.Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.convert(); err != nil {
		return err
	}
	t, err := d.lastTemp()
	if err != nil {
		return err
	}
	e.Temperature = t
	return nil
}

// SenseContinuous implements physic.SenseEnv.
//
// Failed readings are skipped. Call Halt to terminate the loop.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shutdown != nil {
		return nil, errors.New("ds18b20: SenseContinuous already running")
	}
	if interval < conversionTime(d.resolution) {
		return nil, errors.New("ds18b20: sample interval is shorter than the conversion time")
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
	e.Temperature = physic.Kelvin / 16
}

// ConvertTemperature starts a conversion and returns once it completed.
//
// A parasite powered device is fed with the strong pull-up for the
// conversion time, an externally powered one is polled until it is done.
func (d *Dev) ConvertTemperature() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.convert()
}

// LastTemp reads the temperature resulting from the last conversion from the
// device.
//
// It is useful in combination with ConvertAll.
func (d *Dev) LastTemp() (physic.Temperature, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTemp()
}

// ReadScratchpad reads the scratchpad and checks its CRC.
func (d *Dev) ReadScratchpad() (Scratchpad, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readScratchpad()
}

// WriteScratchpad writes the alarm thresholds and the resolution. bits must
// be 9..12, or 0 for DS18S20 which has no configuration register.
func (d *Dev) WriteScratchpad(th, tl byte, bits int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeScratchpad(th, tl, bits)
}

// CopyScratchpad saves the alarm thresholds and the configuration to EEPROM.
func (d *Dev) CopyScratchpad() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.copyScratchpad()
}

// RecallEeprom reloads the alarm thresholds and the configuration from
// EEPROM.
func (d *Dev) RecallEeprom() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.sel(d.m); err != nil {
		return err
	}
	return onewire.WriteByte(d.m, cmdRecall)
}

// ReadPowerSupply reports whether the device has an external supply rather
// than parasite power.
func (d *Dev) ReadPowerSupply() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readPowerSupply()
}

//

const category = "ds18b20"

const (
	cmdConvert         = 0x44
	cmdWriteScratchpad = 0x4e
	cmdReadScratchpad  = 0xbe
	cmdCopyScratchpad  = 0x48
	cmdRecall          = 0xb8
	cmdReadPower       = 0xb4

	// busyPollLimit bounds the read slots issued while an externally powered
	// device is busy; a slot is about 70µs.
	busyPollLimit = 20000
)

var sleep = time.Sleep

// conversionTime is the time a conversion takes, which depends on the
// resolution:
// 9bits:94ms, 10bits:188ms, 11bits:376ms, 12bits:752ms, datasheet p.6.
func conversionTime(bits int) time.Duration {
	if bits < 9 || bits > 12 {
		bits = 12
	}
	return (94 << uint(bits-9)) * time.Millisecond
}

// powered sends cmd with the strong pull-up enabled for wait. The bus is back
// at Normal on return, including on failure.
func powered(m onewire.Master, sel onewire.Selector, cmd byte, wait time.Duration) error {
	if err := sel(m); err != nil {
		return err
	}
	if err := onewire.WriteBytePower(m, cmd); err != nil {
		return onewire.RestoreLevel(m, err)
	}
	sleep(wait)
	return m.SetLevel(onewire.Normal)
}

// busy sends cmd and polls until the device reports completion with a 1.
func (d *Dev) busy(cmd byte) error {
	if err := d.sel(d.m); err != nil {
		return err
	}
	if err := onewire.WriteByte(d.m, cmd); err != nil {
		return err
	}
	for i := 0; i < busyPollLimit; i++ {
		done, err := onewire.ReadBit(d.m)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return onewire.NewError(category, onewire.Timeout, fmt.Sprintf("command %#02x did not complete", cmd))
}

// run executes a command that takes wait to complete with the power source
// the device needs.
func (d *Dev) run(cmd byte, wait time.Duration) error {
	external, err := d.readPowerSupply()
	if err != nil {
		return err
	}
	if external {
		return d.busy(cmd)
	}
	return powered(d.m, d.sel, cmd, wait)
}

func (d *Dev) convert() error {
	return d.run(cmdConvert, conversionTime(d.resolution))
}

func (d *Dev) copyScratchpad() error {
	return d.run(cmdCopyScratchpad, 10*time.Millisecond)
}

func (d *Dev) readPowerSupply() (bool, error) {
	if err := d.sel(d.m); err != nil {
		return false, err
	}
	if err := onewire.WriteByte(d.m, cmdReadPower); err != nil {
		return false, err
	}
	return onewire.ReadBit(d.m)
}

func (d *Dev) writeScratchpad(th, tl byte, bits int) error {
	w := []byte{cmdWriteScratchpad, th, tl}
	if d.family != DS18S20 {
		if bits < 9 || bits > 12 {
			return onewire.NewError(category, onewire.OutOfRange, fmt.Sprintf("resolution %d bits", bits))
		}
		w = append(w, byte((bits-9)<<5)|0x1f)
	}
	if err := d.sel(d.m); err != nil {
		return err
	}
	if err := d.m.WriteBlock(w); err != nil {
		return err
	}
	if d.family != DS18S20 {
		d.resolution = bits
	}
	return nil
}

// readScratchpad reads the 9 bytes of scratchpad and checks the CRC.
// It returns the 8 bytes of scratchpad data (excluding the CRC byte).
func (d *Dev) readScratchpad() (Scratchpad, error) {
	var spad [9]byte
	var s Scratchpad
	if err := d.sel(d.m); err != nil {
		return s, err
	}
	if err := onewire.WriteByte(d.m, cmdReadScratchpad); err != nil {
		return s, err
	}
	if err := d.m.ReadBlock(spad[:]); err != nil {
		return s, err
	}

	// Check the scratchpad CRC.
	if common.CRC8(spad[:8], 0) != spad[8] {
		for _, b := range spad {
			if b != 0xff {
				return s, onewire.NewError(category, onewire.CRCError, "incorrect scratchpad CRC")
			}
		}
		return s, onewire.NewError(category, onewire.NoSlave, "device did not respond")
	}
	copy(s[:], spad[:8])
	if d.family == DS18S20 {
		d.resolution = 9
	} else {
		d.resolution = int(s[4]>>5&3) + 9
	}
	return s, nil
}

func (d *Dev) lastTemp() (physic.Temperature, error) {
	spad, err := d.readScratchpad()
	if err != nil {
		return 0, err
	}
	c, err := d.parseTemperature(spad[:])
	if err != nil {
		return 0, err
	}

	// The device powers up with a value of 85°C, so if we read that odds are
	// very high that either no conversion was performed or that the conversion
	// failed due to lack of power. This prevents reading a temp of exactly 85°C,
	// but that seems like the right tradeoff.
	if c == 85*physic.Celsius+physic.ZeroCelsius {
		return 0, onewire.NewError(category, onewire.DataError, "has not performed a temperature conversion (insufficient pull-up?)")
	}
	return c, nil
}

// parseTemperature from scratchpad and handle special calculation for DS18S20
func (d *Dev) parseTemperature(spad []byte) (physic.Temperature, error) {
	// spad[1] is MSB and spad[0] is LSB of the raw temperature value
	rawTemp := int16(spad[1])<<8 | int16(spad[0])

	if d.family == DS18S20 {
		if spad[1] != 0 && spad[1] != 0xff {
			return 0, onewire.NewError(category, onewire.DataError, fmt.Sprintf("temperature % X", spad[:2]))
		}
		if spad[7] != 0 {
			// for higher resolution some additional calculation is required
			// TEMPERATURE = TEMP_READ - 0,25 + (COUNT_PER_C-COUNT_REMAIN)/COUNT_PER_C
			//  TEMP_READ = value from spad[1] (MSB) and spad[0] (LSB) with truncated last bit (0,5°C)
			//  COUNT_PER_C = spad[7]
			//  COUNT_REMAIN = spad[6]

			// calculation from http://myarduinotoy.blogspot.com/2013/02/12bit-result-from-ds18s20.html
			mask := 0xFFFE
			rawTemp = ((rawTemp & int16(mask)) << 3) + 12 - int16(spad[6])
		} else {
			rawTemp <<= 3
		}
	} else {
		// The five most significant bits are all sign.
		if s := uint16(rawTemp) & 0xf800; s != 0 && s != 0xf800 {
			return 0, onewire.NewError(category, onewire.DataError, fmt.Sprintf("temperature % X", spad[:2]))
		}
		// Bits below the resolution are undefined.
		if spad[4]&0x9f == 0x1f {
			bits := int(spad[4]>>5&3) + 9
			rawTemp &^= int16(1<<uint(12-bits)) - 1
		}
	}
	// rawTemp has 4 fractional bits. Need to do sign extension multiply by
	// 1000 to get Millis, divide by 16 due to 4 fractional bits. Datasheet p.4.
	v := physic.Temperature(rawTemp)
	return v*physic.Kelvin/16 + physic.ZeroCelsius, nil
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
