// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/maximinterface/ds18b20"
	"github.com/GermanBionicSystems/maximinterface/ds1920"
	"github.com/GermanBionicSystems/maximinterface/onewire"
)

func tempCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "temp",
		Usage:     "read temperature sensors; all of them when no ROM-ID is given",
		ArgsUsage: "[ROM-ID...]",
		Flags: append(busFlags(),
			&cli.IntFlag{
				Name:  "resolution",
				Usage: "DS18B20 resolution in bits, 9 to 12; 0 keeps the device setting",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			o, err := busOptsFromFlags(cmd, busOpts{})
			if err != nil {
				return err
			}
			var ids []onewire.RomID
			for _, a := range cmd.Args().Slice() {
				id, err := onewire.ParseRomID(a)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			b, err := e.open(&o, e.logger(cmd))
			if err != nil {
				return err
			}
			defer b.Close()
			return temp(e.out, b, ids, int(cmd.Int("resolution")))
		},
	}
}

// temp prints the temperature of the sensors ids, or of every sensor found
// when ids is empty.
func temp(w io.Writer, m onewire.Master, ids []onewire.RomID, bits int) error {
	if len(ids) == 0 {
		all, err := onewire.SearchAll(m)
		if err != nil {
			return err
		}
		for _, id := range all {
			if isSensor(id.Family()) {
				ids = append(ids, id)
			}
		}
	}
	for _, id := range ids {
		s, err := newSensor(m, id, bits)
		if err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		var env physic.Env
		if err := s.Sense(&env); err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		if _, err := fmt.Fprintf(w, "%s %s %.3f°C\n", id, familyName(id.Family()), celsius(env.Temperature)); err != nil {
			return err
		}
	}
	return nil
}

func isSensor(f byte) bool {
	return f == byte(ds18b20.DS18B20) || f == ds1920.Family
}

// newSensor returns the driver of the temperature sensor id.
func newSensor(m onewire.Master, id onewire.RomID, bits int) (physic.SenseEnv, error) {
	sel := onewire.SelectMatchRom(id)
	switch id.Family() {
	case byte(ds18b20.DS18B20):
		return ds18b20.New(m, sel, &ds18b20.Opts{Family: ds18b20.DS18B20, ResolutionBits: bits})
	case ds1920.Family:
		return ds1920.New(m, sel), nil
	default:
		return nil, fmt.Errorf("family %#02x is not a temperature sensor", id.Family())
	}
}

func celsius(t physic.Temperature) float64 {
	return float64(t-physic.ZeroCelsius) / float64(physic.Celsius)
}
