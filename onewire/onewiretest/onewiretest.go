// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewiretest is meant to be used to test drivers over a fake
// onewire.Master.
//
// Byte traffic is canonicalised: consecutive bytes moved in the same
// direction merge into one IO until a byte is followed by a strong pull-up,
// so a driver may use WriteBlock or a WriteByteLevel loop interchangeably.
package onewiretest

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// Op is the kind of a recorded master operation.
type Op int

const (
	OpReset Op = iota
	OpWrite
	OpRead
	OpBit
	OpTriplet
	OpSpeed
	OpLevel
)

func (o Op) String() string {
	switch o {
	case OpReset:
		return "reset"
	case OpWrite:
		return "write"
	case OpRead:
		return "read"
	case OpBit:
		return "bit"
	case OpTriplet:
		return "triplet"
	case OpSpeed:
		return "speed"
	case OpLevel:
		return "level"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// IO is one operation on the bus.
type IO struct {
	Op      Op
	Data    []byte                // OpWrite: bytes written; OpRead: bytes read
	Bit     bool                  // OpBit: bit sent; OpTriplet: preferred direction
	Got     bool                  // OpBit: bit sampled
	Triplet onewire.TripletResult // OpTriplet
	Level   onewire.Level         // level after the last byte or bit, or the level set by OpLevel
	Speed   onewire.Speed         // OpSpeed
	Err     error                 // Playback returns it instead of performing the op
}

func (io IO) String() string {
	switch io.Op {
	case OpWrite, OpRead:
		s := fmt.Sprintf("%s % X", io.Op, io.Data)
		if io.Level == onewire.Strong {
			s += " <SP>"
		}
		return s
	case OpLevel:
		return fmt.Sprintf("level %s", io.Level)
	case OpSpeed:
		return fmt.Sprintf("speed %s", io.Speed)
	default:
		return io.Op.String()
	}
}

// Wr returns an OpWrite at Normal level.
func Wr(b ...byte) IO {
	return IO{Op: OpWrite, Data: b}
}

// Rd returns an OpRead at Normal level.
func Rd(b ...byte) IO {
	return IO{Op: OpRead, Data: b}
}

// WrPower returns an OpWrite followed by a strong pull-up.
func WrPower(b ...byte) IO {
	return IO{Op: OpWrite, Data: b, Level: onewire.Strong}
}

// RdPower returns an OpRead followed by a strong pull-up.
func RdPower(b ...byte) IO {
	return IO{Op: OpRead, Data: b, Level: onewire.Strong}
}

// Reset returns a successful OpReset.
func Reset() IO {
	return IO{Op: OpReset}
}

// SetLevel returns an OpLevel.
func SetLevel(l onewire.Level) IO {
	return IO{Op: OpLevel, Level: l}
}

// Match returns the Reset and Match ROM a SelectMatchRom selector emits.
func Match(id onewire.RomID) []IO {
	return []IO{Reset(), Wr(append([]byte{onewire.CmdMatchRom}, id[:]...)...)}
}

// Record implements onewire.Master that records everything written to it.
//
// This can then be used to feed to Playback to do "replay" based unit tests.
// With a nil Master every read returns 0xFF bytes and 1 bits, as an idle bus.
type Record struct {
	sync.Mutex
	Master onewire.Master // Master can be nil if only writes are being recorded.
	Ops    []IO
}

func (r *Record) String() string {
	return "record"
}

// Reset implements onewire.Master.
func (r *Record) Reset() error {
	r.Lock()
	defer r.Unlock()
	var err error
	if r.Master != nil {
		err = r.Master.Reset()
	}
	r.Ops = append(r.Ops, IO{Op: OpReset, Err: err})
	return err
}

// TouchBit implements onewire.Master.
func (r *Record) TouchBit(bit bool, after onewire.Level) (bool, error) {
	r.Lock()
	defer r.Unlock()
	got, err := bit, error(nil)
	if r.Master != nil {
		got, err = r.Master.TouchBit(bit, after)
	}
	r.Ops = append(r.Ops, IO{Op: OpBit, Bit: bit, Got: got, Level: after, Err: err})
	return got, err
}

// WriteByteLevel implements onewire.Master.
func (r *Record) WriteByteLevel(b byte, after onewire.Level) error {
	r.Lock()
	defer r.Unlock()
	var err error
	if r.Master != nil {
		err = r.Master.WriteByteLevel(b, after)
	}
	r.appendData(OpWrite, []byte{b}, after)
	return err
}

// ReadByteLevel implements onewire.Master.
func (r *Record) ReadByteLevel(after onewire.Level) (byte, error) {
	r.Lock()
	defer r.Unlock()
	b, err := byte(0xff), error(nil)
	if r.Master != nil {
		b, err = r.Master.ReadByteLevel(after)
	}
	r.appendData(OpRead, []byte{b}, after)
	return b, err
}

// WriteBlock implements onewire.Master.
func (r *Record) WriteBlock(w []byte) error {
	r.Lock()
	defer r.Unlock()
	var err error
	if r.Master != nil {
		err = r.Master.WriteBlock(w)
	}
	r.appendData(OpWrite, w, onewire.Normal)
	return err
}

// ReadBlock implements onewire.Master.
func (r *Record) ReadBlock(b []byte) error {
	r.Lock()
	defer r.Unlock()
	var err error
	if r.Master != nil {
		err = r.Master.ReadBlock(b)
	} else {
		for i := range b {
			b[i] = 0xff
		}
	}
	r.appendData(OpRead, b, onewire.Normal)
	return err
}

// SetSpeed implements onewire.Master.
func (r *Record) SetSpeed(s onewire.Speed) error {
	r.Lock()
	defer r.Unlock()
	var err error
	if r.Master != nil {
		err = r.Master.SetSpeed(s)
	}
	r.Ops = append(r.Ops, IO{Op: OpSpeed, Speed: s, Err: err})
	return err
}

// SetLevel implements onewire.Master.
func (r *Record) SetLevel(l onewire.Level) error {
	r.Lock()
	defer r.Unlock()
	var err error
	if r.Master != nil {
		err = r.Master.SetLevel(l)
	}
	r.Ops = append(r.Ops, IO{Op: OpLevel, Level: l, Err: err})
	return err
}

// Triplet implements onewire.Master.
func (r *Record) Triplet(dir bool) (onewire.TripletResult, error) {
	r.Lock()
	defer r.Unlock()
	t := onewire.TripletResult{ReadBit: true, ReadBitComplement: true, Direction: true}
	var err error
	if r.Master != nil {
		t, err = r.Master.Triplet(dir)
	}
	r.Ops = append(r.Ops, IO{Op: OpTriplet, Bit: dir, Triplet: t, Err: err})
	return t, err
}

// appendData merges b into the last IO when it continues the same transfer.
func (r *Record) appendData(op Op, b []byte, after onewire.Level) {
	if n := len(r.Ops); n != 0 {
		last := &r.Ops[n-1]
		if last.Op == op && last.Level == onewire.Normal && last.Err == nil {
			last.Data = append(last.Data, b...)
			last.Level = after
			return
		}
	}
	r.Ops = append(r.Ops, IO{Op: op, Data: append([]byte{}, b...), Level: after})
}

// Playback implements onewire.Master and plays back a recorded I/O flow.
//
// While "replay" type of unit tests are of limited value, they still present
// an easy way to do basic code coverage.
//
// Set DontPanic to true to return an error instead of panicking on an
// unexpected operation.
type Playback struct {
	sync.Mutex
	Ops       []IO
	Count     int // number of IOs fully consumed
	DontPanic bool

	pos   int           // bytes consumed in Ops[0]
	level onewire.Level // level the bus is at
	speed onewire.Speed
}

func (p *Playback) String() string {
	return "playback"
}

// Level returns the level the bus was last left at.
func (p *Playback) Level() onewire.Level {
	p.Lock()
	defer p.Unlock()
	return p.level
}

// Speed returns the current speed.
func (p *Playback) Speed() onewire.Speed {
	p.Lock()
	defer p.Unlock()
	return p.speed
}

// Close verifies that all the expected Ops have been consumed and that the
// bus was returned to Normal.
func (p *Playback) Close() error {
	p.Lock()
	defer p.Unlock()
	if len(p.Ops) != 0 {
		return fmt.Errorf("onewiretest: expected playback to be empty: %v", p.Ops)
	}
	if p.level != onewire.Normal {
		return fmt.Errorf("onewiretest: bus left at %s level", p.level)
	}
	return nil
}

// Reset implements onewire.Master.
func (p *Playback) Reset() error {
	p.Lock()
	defer p.Unlock()
	io, err := p.next(OpReset)
	if err != nil {
		return err
	}
	p.advance()
	return io.Err
}

// TouchBit implements onewire.Master.
func (p *Playback) TouchBit(bit bool, after onewire.Level) (bool, error) {
	p.Lock()
	defer p.Unlock()
	io, err := p.next(OpBit)
	if err != nil {
		return false, err
	}
	if io.Err == nil && (io.Bit != bit || io.Level != after) {
		return false, p.fail("unexpected bit %t at %s, expected %t at %s", bit, after, io.Bit, io.Level)
	}
	p.advance()
	p.level = after
	return io.Got, io.Err
}

// WriteByteLevel implements onewire.Master.
func (p *Playback) WriteByteLevel(b byte, after onewire.Level) error {
	p.Lock()
	defer p.Unlock()
	return p.write([]byte{b}, after)
}

// ReadByteLevel implements onewire.Master.
func (p *Playback) ReadByteLevel(after onewire.Level) (byte, error) {
	p.Lock()
	defer p.Unlock()
	var b [1]byte
	err := p.read(b[:], after)
	return b[0], err
}

// WriteBlock implements onewire.Master.
func (p *Playback) WriteBlock(w []byte) error {
	p.Lock()
	defer p.Unlock()
	return p.write(w, onewire.Normal)
}

// ReadBlock implements onewire.Master.
func (p *Playback) ReadBlock(r []byte) error {
	p.Lock()
	defer p.Unlock()
	return p.read(r, onewire.Normal)
}

// SetSpeed implements onewire.Master.
func (p *Playback) SetSpeed(s onewire.Speed) error {
	p.Lock()
	defer p.Unlock()
	io, err := p.next(OpSpeed)
	if err != nil {
		return err
	}
	if io.Speed != s {
		return p.fail("unexpected speed %s, expected %s", s, io.Speed)
	}
	p.advance()
	if io.Err == nil {
		p.speed = s
	}
	return io.Err
}

// SetLevel implements onewire.Master.
func (p *Playback) SetLevel(l onewire.Level) error {
	p.Lock()
	defer p.Unlock()
	io, err := p.next(OpLevel)
	if err != nil {
		return err
	}
	if io.Level != l {
		return p.fail("unexpected level %s, expected %s", l, io.Level)
	}
	p.advance()
	if io.Err == nil {
		p.level = l
	}
	return io.Err
}

// Triplet implements onewire.Master.
func (p *Playback) Triplet(dir bool) (onewire.TripletResult, error) {
	p.Lock()
	defer p.Unlock()
	io, err := p.next(OpTriplet)
	if err != nil {
		return onewire.TripletResult{}, err
	}
	if io.Bit != dir {
		return onewire.TripletResult{}, p.fail("unexpected triplet direction %t", dir)
	}
	p.advance()
	return io.Triplet, io.Err
}

func (p *Playback) write(w []byte, after onewire.Level) error {
	for i, b := range w {
		io, err := p.next(OpWrite)
		if err != nil {
			return err
		}
		if io.Err != nil {
			p.advance()
			return io.Err
		}
		if io.Data[p.pos] != b {
			return p.fail("unexpected write %#02x at offset %d of % X", b, p.pos, io.Data)
		}
		if err := p.consume(io, i == len(w)-1, after); err != nil {
			return err
		}
	}
	return nil
}

func (p *Playback) read(r []byte, after onewire.Level) error {
	for i := range r {
		io, err := p.next(OpRead)
		if err != nil {
			return err
		}
		if io.Err != nil {
			p.advance()
			return io.Err
		}
		r[i] = io.Data[p.pos]
		if err := p.consume(io, i == len(r)-1, after); err != nil {
			return err
		}
	}
	return nil
}

// consume accounts for one byte of io. Intermediate bytes of a transfer must
// be at Normal level; the last byte of an IO must match its level.
func (p *Playback) consume(io IO, lastOfCall bool, after onewire.Level) error {
	l := onewire.Normal
	if lastOfCall {
		l = after
	}
	p.pos++
	if p.pos == len(io.Data) {
		if l != io.Level {
			return p.fail("%s ended at %s level, expected %s", io, l, io.Level)
		}
		p.advance()
		p.level = l
		return nil
	}
	if l != onewire.Normal {
		return p.fail("%s level %s requested in the middle of % X", io.Op, l, io.Data)
	}
	return nil
}

func (p *Playback) next(op Op) (IO, error) {
	if len(p.Ops) == 0 {
		return IO{}, p.fail("unexpected %s (count #%d) expected nothing", op, p.Count)
	}
	io := p.Ops[0]
	if io.Op != op {
		return IO{}, p.fail("unexpected %s (count #%d) expected %s", op, p.Count, io)
	}
	if (op == OpWrite || op == OpRead) && io.Err == nil && len(io.Data) == 0 {
		return IO{}, p.fail("empty %s in playback (count #%d)", op, p.Count)
	}
	return io, nil
}

func (p *Playback) advance() {
	p.Ops = p.Ops[1:]
	p.pos = 0
	p.Count++
}

func (p *Playback) fail(format string, a ...interface{}) error {
	err := fmt.Errorf("onewiretest: "+format, a...)
	if !p.DontPanic {
		panic(err)
	}
	return err
}

// Equal reports whether two IO sequences are identical, ignoring errors.
func Equal(a, b []IO) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Op != y.Op || !bytes.Equal(x.Data, y.Data) || x.Level != y.Level || x.Speed != y.Speed || x.Bit != y.Bit || x.Got != y.Got || x.Triplet != y.Triplet {
			return false
		}
	}
	return true
}

var _ onewire.Master = &Record{}
var _ onewire.Master = &Playback{}
