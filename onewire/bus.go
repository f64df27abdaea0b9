// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewire

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	ponewire "periph.io/x/conn/v3/onewire"
)

// Bus adapts a Master to periph's onewire.Bus and onewire.BusSearcher, so
// that periph device drivers and onewire.Search run on it.
type Bus struct {
	mu     sync.Mutex
	m      Master
	strong bool // bus left at Strong by the previous Tx
}

// NewBus returns a periph bus driving m.
func NewBus(m Master) *Bus {
	return &Bus{m: m}
}

func (b *Bus) String() string {
	if s, ok := b.m.(fmt.Stringer); ok {
		return s.String()
	}
	return "onewire.Bus"
}

// Halt implements conn.Resource.
func (b *Bus) Halt() error {
	return nil
}

// Tx resets the bus, writes w and then reads r. With power set to
// StrongPullup the bus is left strongly pulled up after the last byte, as
// periph drivers expect; the next Tx returns it to Normal first.
func (b *Bus) Tx(w, r []byte, power ponewire.Pullup) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.strong {
		if err := b.m.SetLevel(Normal); err != nil {
			return err
		}
		b.strong = false
	}
	if err := b.m.Reset(); err != nil {
		return err
	}
	for i, c := range w {
		l := Normal
		if power == ponewire.StrongPullup && len(r) == 0 && i == len(w)-1 {
			l = Strong
		}
		// A failed strong transfer may still leave the pull-up on.
		if l == Strong {
			b.strong = true
		}
		if err := b.m.WriteByteLevel(c, l); err != nil {
			return err
		}
	}
	for i := range r {
		l := Normal
		if power == ponewire.StrongPullup && i == len(r)-1 {
			l = Strong
		}
		if l == Strong {
			b.strong = true
		}
		c, err := b.m.ReadByteLevel(l)
		if err != nil {
			return err
		}
		r[i] = c
	}
	return nil
}

// Search performs a search cycle and returns the addresses of all devices,
// or only of those in alarm state.
func (b *Bus) Search(alarmOnly bool) ([]ponewire.Address, error) {
	return ponewire.Search(b, alarmOnly)
}

// SearchTriplet implements onewire.BusSearcher.
func (b *Bus) SearchTriplet(direction byte) (ponewire.TripletResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, err := b.m.Triplet(direction != 0)
	tr := ponewire.TripletResult{
		GotZero: !t.ReadBit,
		GotOne:  !t.ReadBitComplement,
	}
	if t.Direction {
		tr.Taken = 1
	}
	return tr, err
}

var _ conn.Resource = &Bus{}
var _ ponewire.Bus = &Bus{}
var _ ponewire.BusSearcher = &Bus{}
