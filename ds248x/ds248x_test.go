// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds248x

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c/i2ctest"
	ponewire "periph.io/x/conn/v3/onewire"

	"github.com/GermanBionicSystems/maximinterface/onewire"
)

func init() {
	sleep = func(time.Duration) {}
}

const addr = 0x18

// initOps is the start-up conversation common to all variants.
var initOps = []i2ctest.IO{
	// Device reset, status shows RST and the line high.
	{Addr: addr, W: []byte{cmdReset}, R: []byte{0x18}},
	// 1-wire reset, nobody there.
	{Addr: addr, W: []byte{cmd1WReset}},
	{Addr: addr, R: []byte{0x00}},
	// Configuration with the active pull-up.
	{Addr: addr, W: []byte{cmdWriteConfig, 0xe1}, R: []byte{0x01}},
}

var ds2484Ops = append(append([]i2ctest.IO{}, initOps...),
	i2ctest.IO{Addr: addr, W: []byte{cmdSetReadPtr, regPCR}},
	i2ctest.IO{Addr: addr, W: []byte{cmdAdjPort, 0x06, 0x26, 0x46, 0x66, 0x86}},
)

// nackBus fails the transactions writing one of the nack patterns, the way a
// chip without the addressed register answers.
type nackBus struct {
	*i2ctest.Playback
	nack [][]byte
}

func (n *nackBus) Tx(a uint16, w, r []byte) error {
	for _, p := range n.nack {
		if bytes.Equal(p, w) {
			return errors.New("i2ctest: NACK")
		}
	}
	return n.Playback.Tx(a, w, r)
}

func newDS2484(t *testing.T, ops ...i2ctest.IO) (*Dev, *i2ctest.Playback) {
	pb := &i2ctest.Playback{Ops: append(append([]i2ctest.IO{}, ds2484Ops...), ops...)}
	d, err := New(pb, addr, nil)
	if err != nil {
		t.Fatal(err)
	}
	return d, pb
}

func TestNew_variants(t *testing.T) {
	d, pb := newDS2484(t)
	if s := d.String(); s != "DS2484{playback(24)}" {
		t.Fatal(s)
	}
	if c := d.Config(); c != ActivePullup {
		t.Fatal(c)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}

	// DS2482-800: no port configuration register, channel 0 selected.
	pb = &i2ctest.Playback{Ops: append(append([]i2ctest.IO{}, initOps...),
		i2ctest.IO{Addr: addr, W: []byte{cmdSetReadPtr, regCSR}},
		i2ctest.IO{Addr: addr, W: []byte{cmdChannelSelect, 0xf0}, R: []byte{0xb8}},
	)}
	bus := &nackBus{Playback: pb, nack: [][]byte{{cmdSetReadPtr, regPCR}}}
	if d, err := New(bus, addr, nil); err != nil {
		t.Fatal(err)
	} else if d.variant != isDS2482x800 {
		t.Fatal(d.variant)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}

	// DS2482-100: neither.
	pb = &i2ctest.Playback{Ops: append([]i2ctest.IO{}, initOps...)}
	bus = &nackBus{Playback: pb, nack: [][]byte{{cmdSetReadPtr, regPCR}, {cmdSetReadPtr, regCSR}}}
	if d, err := New(bus, addr, nil); err != nil {
		t.Fatal(err)
	} else if s := d.String(); s != "DS2482-100{playback(24)}" {
		t.Fatal(s)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNew_errors(t *testing.T) {
	if _, err := New(&i2ctest.Playback{}, 0x30, nil); err == nil {
		t.Fatal("invalid address accepted")
	}
	pb := &i2ctest.Playback{Ops: []i2ctest.IO{{Addr: addr, W: []byte{cmdReset}, R: []byte{0x00}}}}
	if _, err := New(pb, addr, nil); !errors.Is(err, onewire.ErrHardware) {
		t.Fatalf("got %v", err)
	}
	// Configuration read back does not match.
	ops := append([]i2ctest.IO{}, initOps[:3]...)
	ops = append(ops, i2ctest.IO{Addr: addr, W: []byte{cmdWriteConfig, 0xe1}, R: []byte{0x00}})
	if _, err := New(&i2ctest.Playback{Ops: ops}, addr, nil); !errors.Is(err, onewire.ErrHardware) {
		t.Fatalf("got %v", err)
	}
	// No chip at all.
	bus := &nackBus{Playback: &i2ctest.Playback{}, nack: [][]byte{{cmdReset}}}
	if _, err := New(bus, addr, nil); !errors.Is(err, onewire.ErrNack) {
		t.Fatalf("got %v", err)
	}
}

func TestConfig(t *testing.T) {
	for _, c := range []struct {
		c    Config
		want byte
		s    string
	}{
		{0, 0xf0, "0"},
		{ActivePullup, 0xe1, "APU"},
		{ActivePullup | StrongPullup, 0xa5, "APU|SPU"},
		{ActivePullup | Overdrive, 0x69, "APU|1WS"},
		{ActivePullup | PowerDown | StrongPullup | Overdrive, 0x0f, "APU|PDN|SPU|1WS"},
	} {
		if got := c.c.Encode(); got != c.want {
			t.Errorf("%s: %#02x != %#02x", c.s, got, c.want)
		}
		if s := c.c.String(); s != c.s {
			t.Errorf("%q != %q", s, c.s)
		}
	}
	c := ActivePullup.With(StrongPullup, true)
	if !c.Has(StrongPullup) || c.With(StrongPullup, false) != ActivePullup {
		t.Fatal(c)
	}
}

func TestReset(t *testing.T) {
	d, pb := newDS2484(t,
		i2ctest.IO{Addr: addr, W: []byte{cmd1WReset}},
		i2ctest.IO{Addr: addr, R: []byte{0x01}},
		i2ctest.IO{Addr: addr, R: []byte{0x02}},
		i2ctest.IO{Addr: addr, W: []byte{cmd1WReset}},
		i2ctest.IO{Addr: addr, R: []byte{0x00}},
		i2ctest.IO{Addr: addr, W: []byte{cmd1WReset}},
		i2ctest.IO{Addr: addr, R: []byte{0x04}},
	)
	if err := d.Reset(); err != nil {
		t.Fatal(err)
	}
	err := d.Reset()
	if !errors.Is(err, onewire.ErrNoSlave) {
		t.Fatalf("got %v", err)
	}
	var nd ponewire.NoDevicesError
	if !errors.As(err, &nd) || !nd.NoDevices() {
		t.Fatal("NoDevicesError")
	}
	if err := d.Reset(); !errors.Is(err, onewire.ErrShortDetected) {
		t.Fatalf("got %v", err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBitsAndBytes(t *testing.T) {
	d, pb := newDS2484(t,
		i2ctest.IO{Addr: addr, W: []byte{cmd1WBit, 0x80}},
		i2ctest.IO{Addr: addr, R: []byte{0x20}},
		i2ctest.IO{Addr: addr, W: []byte{cmd1WWrite, 0x33}},
		i2ctest.IO{Addr: addr, R: []byte{0x00}},
		i2ctest.IO{Addr: addr, W: []byte{cmd1WRead}},
		i2ctest.IO{Addr: addr, R: []byte{0x00}},
		i2ctest.IO{Addr: addr, W: []byte{cmdSetReadPtr, regRDR}, R: []byte{0x5a}},
		i2ctest.IO{Addr: addr, W: []byte{cmd1WTriplet, 0x00}},
		i2ctest.IO{Addr: addr, R: []byte{0xa0}},
	)
	bit, err := d.TouchBit(true, onewire.Normal)
	if err != nil || !bit {
		t.Fatal(bit, err)
	}
	if err := d.WriteBlock([]byte{0x33}); err != nil {
		t.Fatal(err)
	}
	var r [1]byte
	if err := d.ReadBlock(r[:]); err != nil || r[0] != 0x5a {
		t.Fatal(r, err)
	}
	tr, err := d.Triplet(false)
	if err != nil {
		t.Fatal(err)
	}
	if tr != (onewire.TripletResult{ReadBit: true, ReadBitComplement: false, Direction: true}) {
		t.Fatalf("%+v", tr)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStrongPullup(t *testing.T) {
	d, pb := newDS2484(t,
		// SPU armed before the byte.
		i2ctest.IO{Addr: addr, W: []byte{cmdWriteConfig, 0xa5}, R: []byte{0x05}},
		i2ctest.IO{Addr: addr, W: []byte{cmd1WWrite, 0x44}},
		i2ctest.IO{Addr: addr, R: []byte{0x00}},
		i2ctest.IO{Addr: addr, W: []byte{cmdWriteConfig, 0xe1}, R: []byte{0x01}},
	)
	if err := d.WriteByteLevel(0x44, onewire.Strong); err != nil {
		t.Fatal(err)
	}
	if err := d.SetLevel(onewire.Strong); !errors.Is(err, onewire.ErrInvalidLevel) {
		t.Fatalf("got %v", err)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	// Already Normal.
	if err := d.SetLevel(onewire.Normal); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSetSpeed(t *testing.T) {
	d, pb := newDS2484(t,
		i2ctest.IO{Addr: addr, W: []byte{cmdWriteConfig, 0x69}, R: []byte{0x09}},
		i2ctest.IO{Addr: addr, W: []byte{cmdWriteConfig, 0xe1}, R: []byte{0x01}},
	)
	if err := d.SetSpeed(onewire.Overdrive); err != nil {
		t.Fatal(err)
	}
	if err := d.SetSpeed(onewire.Overdrive); err != nil {
		t.Fatal(err)
	}
	if err := d.SetSpeed(onewire.Standard); err != nil {
		t.Fatal(err)
	}
	if err := d.SetSpeed(onewire.Speed(9)); !errors.Is(err, onewire.ErrInvalidSpeed) {
		t.Fatalf("got %v", err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestPollLimit(t *testing.T) {
	ops := []i2ctest.IO{{Addr: addr, W: []byte{cmd1WReset}}}
	for i := 0; i <= pollLimit; i++ {
		ops = append(ops, i2ctest.IO{Addr: addr, R: []byte{status1WB}})
	}
	d, pb := newDS2484(t, ops...)
	err := d.Reset()
	if !errors.Is(err, onewire.ErrHardware) {
		t.Fatalf("got %v", err)
	}
	// The error is persistent and no further I/O happens.
	if err2 := d.Reset(); err2 != err {
		t.Fatalf("got %v", err2)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestAdjustPort(t *testing.T) {
	d, pb := newDS2484(t,
		i2ctest.IO{Addr: addr, W: []byte{cmdAdjPort, 0x28}, R: []byte{0x06, 0x06, 0x08}},
		i2ctest.IO{Addr: addr, W: []byte{cmdAdjPort, 0x84}, R: []byte{6, 6, 6, 6, 6, 6, 6, 4}},
		i2ctest.IO{Addr: addr, W: []byte{cmdAdjPort, 0x05}, R: []byte{0x06}},
	)
	if err := d.AdjustPort(TMSP, 8); err != nil {
		t.Fatal(err)
	}
	if err := d.AdjustPort(RWPU, R500Ω); err != nil {
		t.Fatal(err)
	}
	if err := d.AdjustPort(TRSTL, 5); !errors.Is(err, onewire.ErrHardware) {
		t.Fatalf("got %v", err)
	}
	if err := d.AdjustPort(TW0L, 16); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatalf("got %v", err)
	}
	if err := d.ChannelSelect(1); !errors.Is(err, onewire.ErrInvalidOperation) {
		t.Fatalf("got %v", err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestChannelSelect(t *testing.T) {
	pb := &i2ctest.Playback{Ops: append(append([]i2ctest.IO{}, initOps...),
		i2ctest.IO{Addr: addr, W: []byte{cmdSetReadPtr, regCSR}},
		i2ctest.IO{Addr: addr, W: []byte{cmdChannelSelect, 0xd2}, R: []byte{0xaa}},
		i2ctest.IO{Addr: addr, W: []byte{cmdSetReadPtr, regCSR}, R: []byte{0xaa}},
		i2ctest.IO{Addr: addr, W: []byte{cmdChannelSelect, 0x87}, R: []byte{0x00}},
	)}
	bus := &nackBus{Playback: pb, nack: [][]byte{{cmdSetReadPtr, regPCR}}}
	opts := DefaultOpts
	opts.Channel = 2
	d, err := New(bus, addr, &opts)
	if err != nil {
		t.Fatal(err)
	}
	ch, err := d.SelectedChannel()
	if err != nil || ch != 2 {
		t.Fatal(ch, err)
	}
	if err := d.ChannelSelect(7); !errors.Is(err, onewire.ErrHardware) {
		t.Fatalf("got %v", err)
	}
	if err := d.ChannelSelect(8); !errors.Is(err, onewire.ErrOutOfRange) {
		t.Fatalf("got %v", err)
	}
	if err := d.AdjustPort(TMSP, 1); !errors.Is(err, onewire.ErrInvalidOperation) {
		t.Fatalf("got %v", err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTx(t *testing.T) {
	// Skip ROM, Convert T with the strong pull-up, as periph drivers do it.
	d, pb := newDS2484(t,
		i2ctest.IO{Addr: addr, W: []byte{cmd1WReset}},
		i2ctest.IO{Addr: addr, R: []byte{0x02}},
		i2ctest.IO{Addr: addr, W: []byte{cmd1WWrite, 0xcc}},
		i2ctest.IO{Addr: addr, R: []byte{0x00}},
		i2ctest.IO{Addr: addr, W: []byte{cmdWriteConfig, 0xa5}, R: []byte{0x05}},
		i2ctest.IO{Addr: addr, W: []byte{cmd1WWrite, 0x44}},
		i2ctest.IO{Addr: addr, R: []byte{0x00}},
		i2ctest.IO{Addr: addr, W: []byte{cmdWriteConfig, 0xe1}, R: []byte{0x01}},
	)
	if err := d.Tx([]byte{0xcc, 0x44}, nil, ponewire.StrongPullup); err != nil {
		t.Fatal(err)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}
