// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds248x

import "strings"

// Config is the content of the device configuration register.
//
// The DS2465 shares the same layout.
type Config byte

const (
	// ActivePullup (APU) replaces the passive pull-up with an active one at
	// the end of time slots.
	ActivePullup Config = 0x01
	// PowerDown (PDN) removes power from the 1-wire port. On the DS2482-100
	// the same bit masks presence pulses.
	PowerDown Config = 0x02
	// StrongPullup (SPU) holds the bus high after the next bit or byte.
	StrongPullup Config = 0x04
	// Overdrive (1WS) selects overdrive speed.
	Overdrive Config = 0x08
)

// DefaultConfig is the configuration written by New when Opts do not say
// otherwise.
const DefaultConfig = ActivePullup

// Has returns true if all of o is set.
func (c Config) Has(o Config) bool {
	return c&o == o
}

// With returns c with o set or cleared.
func (c Config) With(o Config, on bool) Config {
	if on {
		return c | o
	}
	return c &^ o
}

// Encode returns the byte to write: the register nibble low and its
// complement high. The device rejects writes not following this pattern.
func (c Config) Encode() byte {
	n := byte(c) & 0x0f
	return (^n&0x0f)<<4 | n
}

func (c Config) String() string {
	var out []string
	for _, f := range []struct {
		c    Config
		name string
	}{{ActivePullup, "APU"}, {PowerDown, "PDN"}, {StrongPullup, "SPU"}, {Overdrive, "1WS"}} {
		if c.Has(f.c) {
			out = append(out, f.name)
		}
	}
	if len(out) == 0 {
		return "0"
	}
	return strings.Join(out, "|")
}
