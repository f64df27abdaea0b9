// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/urfave/cli/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/maximinterface/ds2465"
	"github.com/GermanBionicSystems/maximinterface/ds2480b"
	"github.com/GermanBionicSystems/maximinterface/ds248x"
	"github.com/GermanBionicSystems/maximinterface/ds9481p"
	"github.com/GermanBionicSystems/maximinterface/logging"
	"github.com/GermanBionicSystems/maximinterface/onewire"
	"github.com/GermanBionicSystems/maximinterface/uart"
)

// Adapters.
const (
	adapterDS248x  = "ds248x"
	adapterDS2465  = "ds2465"
	adapterDS2480B = "ds2480b"
	adapterDS9481P = "ds9481p"
)

// busOpts selects the bus master.
type busOpts struct {
	Adapter string `yaml:"adapter"`
	// Bus is the I²C bus name as understood by i2creg.Open.
	Bus     string `yaml:"bus"`
	Address uint16 `yaml:"address"`
	// Serial is the serial port of a DS2480B or DS9481P.
	Serial string `yaml:"serial"`
}

// bus is an open 1-wire master.
type bus struct {
	onewire.Master
	close func() error
}

// Close releases the underlying transport.
func (b *bus) Close() error {
	return b.close()
}

func busFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "adapter",
			Value: adapterDS248x,
			Usage: "bus master: ds248x, ds2465, ds2480b or ds9481p",
		},
		&cli.StringFlag{
			Name:  "bus",
			Usage: "I²C bus name or number; default is the first one",
		},
		&cli.StringFlag{
			Name:  "address",
			Value: "0x18",
			Usage: "I²C address of the bus master",
		},
		&cli.StringFlag{
			Name:  "serial",
			Usage: "serial port of a DS2480B or DS9481P-300",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "trace every bus operation on stderr",
		},
	}
}

// busOptsFromFlags reads the flags of busFlags, keeping the fields of base
// for the flags that were not given.
func busOptsFromFlags(cmd *cli.Command, base busOpts) (busOpts, error) {
	o := base
	if cmd.IsSet("adapter") || o.Adapter == "" {
		o.Adapter = cmd.String("adapter")
	}
	if cmd.IsSet("bus") {
		o.Bus = cmd.String("bus")
	}
	if cmd.IsSet("address") || o.Address == 0 {
		a, err := strconv.ParseUint(cmd.String("address"), 0, 7)
		if err != nil {
			return o, fmt.Errorf("invalid address %q", cmd.String("address"))
		}
		o.Address = uint16(a)
	}
	if cmd.IsSet("serial") {
		o.Serial = cmd.String("serial")
	}
	return o, nil
}

// openBus opens the master described by o. A non nil l traces every bus
// operation.
func openBus(o *busOpts, l *slog.Logger) (*bus, error) {
	var b *bus
	switch o.Adapter {
	case adapterDS248x, adapterDS2465:
		if _, err := host.Init(); err != nil {
			return nil, err
		}
		bc, err := i2creg.Open(o.Bus)
		if err != nil {
			return nil, err
		}
		var i i2c.Bus = bc
		if l != nil {
			i = logging.I2C(bc, l)
		}
		var m onewire.Master
		if o.Adapter == adapterDS2465 {
			m, err = ds2465.New(i, o.Address, &ds2465.DefaultOpts)
		} else {
			m, err = ds248x.New(i, o.Address, &ds248x.DefaultOpts)
		}
		if err != nil {
			bc.Close()
			return nil, err
		}
		b = &bus{Master: m, close: bc.Close}
	case adapterDS2480B, adapterDS9481P:
		if o.Serial == "" {
			return nil, errors.New("--serial is required with " + o.Adapter)
		}
		p, err := uart.Open(o.Serial, &uart.DefaultOpts)
		if err != nil {
			return nil, err
		}
		var m onewire.Master
		if o.Adapter == adapterDS9481P {
			var d *ds9481p.Dev
			if d, err = ds9481p.New(p); err == nil {
				m = d.OneWire()
			}
		} else {
			m, err = ds2480b.New(p, &ds2480b.DefaultOpts)
		}
		if err != nil {
			p.Close()
			return nil, err
		}
		b = &bus{Master: m, close: p.Close}
	default:
		return nil, fmt.Errorf("unknown adapter %q", o.Adapter)
	}
	if l != nil {
		b.Master = logging.Master(b.Master, l)
	}
	return b, nil
}
