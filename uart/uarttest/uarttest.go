// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package uarttest is meant to be used to test drivers over a fake serial
// port.
package uarttest

import (
	"fmt"
	"sync"

	"github.com/GermanBionicSystems/maximinterface/uart"
)

// Op is the kind of a port operation.
type Op int

const (
	OpWrite Op = iota
	OpRead
	OpBaud
	OpBreak
	OpClear
)

func (o Op) String() string {
	switch o {
	case OpWrite:
		return "write"
	case OpRead:
		return "read"
	case OpBaud:
		return "baud"
	case OpBreak:
		return "break"
	case OpClear:
		return "clear"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// IO is one expected operation.
//
// Bytes of consecutive OpWrite or OpRead IOs form a stream: a driver may move
// them with any number of Write or Read calls. An OpRead with no Data makes
// the matching Read return (0, Err), which uart.ReadFull reports as a
// timeout when Err is nil.
type IO struct {
	Op   Op
	Data []byte
	Baud int
	Err  error
}

func (io IO) String() string {
	switch io.Op {
	case OpWrite, OpRead:
		return fmt.Sprintf("%s % X", io.Op, io.Data)
	case OpBaud:
		return fmt.Sprintf("baud %d", io.Baud)
	default:
		return io.Op.String()
	}
}

// W returns an OpWrite.
func W(b ...byte) IO {
	return IO{Op: OpWrite, Data: b}
}

// R returns an OpRead.
func R(b ...byte) IO {
	return IO{Op: OpRead, Data: b}
}

// Baud returns an OpBaud.
func Baud(baud int) IO {
	return IO{Op: OpBaud, Baud: baud}
}

// Break returns an OpBreak.
func Break() IO {
	return IO{Op: OpBreak}
}

// Playback implements uart.Port and plays back a recorded I/O flow.
//
// ClearReadBuffer consumes an OpClear if that is the next IO and is otherwise
// accepted silently, so scripts only need to spell out the flushes they care
// about.
type Playback struct {
	sync.Mutex
	Ops       []IO
	DontPanic bool

	pos  int
	baud int
}

func (p *Playback) String() string {
	return "playback"
}

// Baud returns the rate last set.
func (p *Playback) Baud() int {
	p.Lock()
	defer p.Unlock()
	return p.baud
}

// Close verifies that all the expected Ops have been consumed.
func (p *Playback) Close() error {
	p.Lock()
	defer p.Unlock()
	if len(p.Ops) != 0 {
		return fmt.Errorf("uarttest: expected playback to be empty: %v", p.Ops)
	}
	return nil
}

// Write implements io.Writer.
func (p *Playback) Write(b []byte) (int, error) {
	p.Lock()
	defer p.Unlock()
	for i, c := range b {
		io, err := p.next(OpWrite)
		if err != nil {
			return i, err
		}
		if io.Err != nil {
			p.advance()
			return i, io.Err
		}
		if io.Data[p.pos] != c {
			return i, p.fail("unexpected write %#02x, expected %#02x", c, io.Data[p.pos])
		}
		p.consume(1)
	}
	return len(b), nil
}

// Read implements io.Reader.
func (p *Playback) Read(b []byte) (int, error) {
	p.Lock()
	defer p.Unlock()
	io, err := p.next(OpRead)
	if err != nil {
		return 0, err
	}
	if len(io.Data) == 0 {
		p.advance()
		return 0, io.Err
	}
	n := copy(b, io.Data[p.pos:])
	p.consume(n)
	return n, nil
}

// SetBaudRate implements uart.Port.
func (p *Playback) SetBaudRate(baud int) error {
	p.Lock()
	defer p.Unlock()
	io, err := p.next(OpBaud)
	if err != nil {
		return err
	}
	if io.Baud != baud {
		return p.fail("unexpected baud %d, expected %d", baud, io.Baud)
	}
	p.advance()
	if io.Err == nil {
		p.baud = baud
	}
	return io.Err
}

// SendBreak implements uart.Port.
func (p *Playback) SendBreak() error {
	p.Lock()
	defer p.Unlock()
	io, err := p.next(OpBreak)
	if err != nil {
		return err
	}
	p.advance()
	return io.Err
}

// ClearReadBuffer implements uart.Port.
func (p *Playback) ClearReadBuffer() error {
	p.Lock()
	defer p.Unlock()
	if len(p.Ops) != 0 && p.Ops[0].Op == OpClear {
		io := p.Ops[0]
		p.advance()
		return io.Err
	}
	return nil
}

func (p *Playback) next(op Op) (IO, error) {
	if len(p.Ops) == 0 {
		return IO{}, p.fail("unexpected %s", op)
	}
	if p.Ops[0].Op != op {
		return IO{}, p.fail("unexpected %s, expected %s", op, p.Ops[0])
	}
	return p.Ops[0], nil
}

func (p *Playback) consume(n int) {
	p.pos += n
	if p.pos == len(p.Ops[0].Data) {
		p.advance()
	}
}

func (p *Playback) advance() {
	p.Ops = p.Ops[1:]
	p.pos = 0
}

func (p *Playback) fail(format string, a ...interface{}) error {
	err := fmt.Errorf("uarttest: "+format, a...)
	if !p.DontPanic {
		panic(err)
	}
	return err
}

var _ uart.Port = &Playback{}
