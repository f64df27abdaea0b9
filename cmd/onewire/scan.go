// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"

	"github.com/maruel/ansi256"
	"github.com/urfave/cli/v3"

	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// families maps the family codes handled by this module to chip names.
var families = map[byte]string{
	0x01: "DS1990A",
	0x10: "DS1920/DS18S20",
	0x17: "DS28E15",
	0x19: "DS28E17",
	0x28: "DS18B20",
	0x2d: "DS2431",
	0x3a: "DS2413",
	0x47: "DS28E22",
	0x48: "DS28E25",
}

func familyName(f byte) string {
	if n, ok := families[f]; ok {
		return n
	}
	return "unknown"
}

// familyColor spreads the family codes over the hue circle.
func familyColor(f byte) color.NRGBA {
	h := int(f) * 37 % 360
	x := byte(255 * (60 - abs(h%120-60)) / 60)
	switch h / 60 {
	case 0:
		return color.NRGBA{255, x, 0, 255}
	case 1:
		return color.NRGBA{x, 255, 0, 255}
	case 2:
		return color.NRGBA{0, 255, x, 255}
	case 3:
		return color.NRGBA{0, x, 255, 255}
	case 4:
		return color.NRGBA{x, 0, 255, 255}
	default:
		return color.NRGBA{255, 0, x, 255}
	}
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

func scanCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "list the devices on the bus",
		Flags: append(busFlags(),
			&cli.BoolFlag{
				Name:  "alarm",
				Usage: "only list the devices in alarm state",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "do not print the colored family marker",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			o, err := busOptsFromFlags(cmd, busOpts{})
			if err != nil {
				return err
			}
			b, err := e.open(&o, e.logger(cmd))
			if err != nil {
				return err
			}
			defer b.Close()
			return scan(e.out, b, cmd.Bool("alarm"), !cmd.Bool("no-color"))
		},
	}
}

// scan prints one line per device found on m.
func scan(w io.Writer, m onewire.Master, alarm, colored bool) error {
	search := onewire.SearchRom
	if alarm {
		search = onewire.AlarmSearch
	}
	var s onewire.SearchState
	n := 0
	for {
		if err := search(m, &s); err != nil {
			if n == 0 && errors.Is(err, onewire.ErrNoSlave) {
				break
			}
			return err
		}
		n++
		id := s.RomID
		marker := ""
		if colored {
			marker = ansi256.Default.Block(familyColor(id.Family())) + "\033[0m "
		}
		if _, err := fmt.Fprintf(w, "%s%s %s\n", marker, id, familyName(id.Family())); err != nil {
			return err
		}
		if s.LastDevice {
			break
		}
	}
	_, err := fmt.Fprintf(w, "%d device(s)\n", n)
	return err
}
