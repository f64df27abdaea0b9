// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package logging decorates buses with log/slog traces.
//
// Every operation is logged at Debug level; failed ones at Warn level.
package logging

import (
	"context"
	"encoding/hex"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// Master returns m logging to l. A nil l logs to slog.Default().
func Master(m onewire.Master, l *slog.Logger) *OneWire {
	if l == nil {
		l = slog.Default()
	}
	return &OneWire{m: m, l: l.With(slog.String("bus", busName(m)))}
}

// OneWire is a onewire.Master logging its operations.
type OneWire struct {
	m onewire.Master
	l *slog.Logger
}

func (o *OneWire) String() string {
	return busName(o.m)
}

// Reset implements onewire.Master.
func (o *OneWire) Reset() error {
	err := o.m.Reset()
	o.log("reset", err)
	return err
}

// TouchBit implements onewire.Master.
func (o *OneWire) TouchBit(bit bool, after onewire.Level) (bool, error) {
	got, err := o.m.TouchBit(bit, after)
	o.log("touch bit", err, slog.Bool("write", bit), slog.Bool("read", got), slog.String("level", after.String()))
	return got, err
}

// WriteByteLevel implements onewire.Master.
func (o *OneWire) WriteByteLevel(b byte, after onewire.Level) error {
	err := o.m.WriteByteLevel(b, after)
	o.log("write byte", err, slog.String("data", hex.EncodeToString([]byte{b})), slog.String("level", after.String()))
	return err
}

// ReadByteLevel implements onewire.Master.
func (o *OneWire) ReadByteLevel(after onewire.Level) (byte, error) {
	b, err := o.m.ReadByteLevel(after)
	o.log("read byte", err, slog.String("data", hex.EncodeToString([]byte{b})), slog.String("level", after.String()))
	return b, err
}

// WriteBlock implements onewire.Master.
func (o *OneWire) WriteBlock(w []byte) error {
	err := o.m.WriteBlock(w)
	o.log("write block", err, slog.String("data", hex.EncodeToString(w)))
	return err
}

// ReadBlock implements onewire.Master.
func (o *OneWire) ReadBlock(r []byte) error {
	err := o.m.ReadBlock(r)
	o.log("read block", err, slog.String("data", hex.EncodeToString(r)))
	return err
}

// SetSpeed implements onewire.Master.
func (o *OneWire) SetSpeed(s onewire.Speed) error {
	err := o.m.SetSpeed(s)
	o.log("set speed", err, slog.String("speed", s.String()))
	return err
}

// SetLevel implements onewire.Master.
func (o *OneWire) SetLevel(l onewire.Level) error {
	err := o.m.SetLevel(l)
	o.log("set level", err, slog.String("level", l.String()))
	return err
}

// Triplet implements onewire.Master.
func (o *OneWire) Triplet(dir bool) (onewire.TripletResult, error) {
	r, err := o.m.Triplet(dir)
	o.log("triplet", err, slog.Bool("dir", dir), slog.Bool("id", r.ReadBit), slog.Bool("cmp", r.ReadBitComplement), slog.Bool("taken", r.Direction))
	return r, err
}

func (o *OneWire) log(op string, err error, attrs ...slog.Attr) {
	logOp(o.l, op, err, attrs)
}

// I2C returns b logging to l. A nil l logs to slog.Default().
//
// The returned bus only exposes i2c.Bus; byte level extensions of b, as
// used by runcommand.I2C, are hidden.
func I2C(b i2c.Bus, l *slog.Logger) *Bus {
	if l == nil {
		l = slog.Default()
	}
	return &Bus{b: b, l: l.With(slog.String("bus", b.String()))}
}

// Bus is an i2c.Bus logging its transactions.
type Bus struct {
	b i2c.Bus
	l *slog.Logger
}

func (b *Bus) String() string {
	return b.b.String()
}

// Tx implements i2c.Bus.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	err := b.b.Tx(addr, w, r)
	attrs := []slog.Attr{slog.Int("addr", int(addr)), slog.String("w", hex.EncodeToString(w))}
	if len(r) != 0 {
		attrs = append(attrs, slog.String("r", hex.EncodeToString(r)))
	}
	logOp(b.l, "tx", err, attrs)
	return err
}

// SetSpeed implements i2c.Bus.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	err := b.b.SetSpeed(f)
	logOp(b.l, "set speed", err, []slog.Attr{slog.String("speed", f.String())})
	return err
}

//

func logOp(l *slog.Logger, op string, err error, attrs []slog.Attr) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.Any("error", err))
	}
	l.LogAttrs(context.Background(), level, op, attrs...)
}

func busName(m onewire.Master) string {
	if s, ok := m.(interface{ String() string }); ok {
		return s.String()
	}
	return "1-wire"
}

var _ onewire.Master = &OneWire{}
var _ i2c.Bus = &Bus{}
