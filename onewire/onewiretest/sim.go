// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiretest

import (
	"sync"

	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// Sim is a simulated multi-drop bus that answers the ROM function commands of
// the slaves in Devices the way the wired-AND bus would.
//
// It supports Read ROM, Match ROM, Skip ROM, Search ROM and Alarm Search.
// Selected reports the slave addressed by the last Match ROM.
type Sim struct {
	sync.Mutex
	Devices []onewire.RomID
	Alarmed []onewire.RomID // subset of Devices answering Alarm Search

	Selected onewire.RomID
	Resets   int

	state  simState
	active []bool // slaves still taking part in the current Search ROM
	bit    int    // bit position within the search, 0..63
	slot   int    // 0: id bit, 1: complement, 2: direction
	buf    []byte // bytes received after Match ROM
	rd     int    // bytes returned by Read ROM
}

type simState int

const (
	simIdle simState = iota
	simCommand
	simSearch
	simReadRom
	simMatch
	simSelected
)

func (s *Sim) String() string {
	return "sim"
}

// Reset implements onewire.Master.
func (s *Sim) Reset() error {
	s.Lock()
	defer s.Unlock()
	s.Resets++
	if len(s.Devices) == 0 {
		s.state = simIdle
		return onewire.NewError("sim", onewire.NoSlave, "no presence pulse")
	}
	s.state = simCommand
	return nil
}

// TouchBit implements onewire.Master.
func (s *Sim) TouchBit(bit bool, after onewire.Level) (bool, error) {
	s.Lock()
	defer s.Unlock()
	return s.touch(bit), nil
}

func (s *Sim) touch(bit bool) bool {
	if s.state != simSearch {
		return bit
	}
	var got bool
	switch s.slot {
	case 0, 1:
		// Wired-AND of the id bit (slot 0) or its complement (slot 1).
		got = true
		for i, d := range s.Devices {
			if !s.active[i] {
				continue
			}
			v := s.romBit(d)
			if s.slot == 1 {
				v = !v
			}
			got = got && v
		}
		got = got && bit
	case 2:
		for i, d := range s.Devices {
			if s.active[i] && s.romBit(d) != bit {
				s.active[i] = false
			}
		}
		got = bit
	}
	s.slot++
	if s.slot == 3 {
		s.slot = 0
		s.bit++
		if s.bit == 64 {
			s.state = simIdle
		}
	}
	return got
}

func (s *Sim) romBit(d onewire.RomID) bool {
	return d[s.bit/8]&(1<<uint(s.bit%8)) != 0
}

// WriteByteLevel implements onewire.Master.
func (s *Sim) WriteByteLevel(b byte, after onewire.Level) error {
	s.Lock()
	defer s.Unlock()
	s.writeByte(b)
	return nil
}

func (s *Sim) writeByte(b byte) {
	switch s.state {
	case simCommand:
		switch b {
		case onewire.CmdSearchRom, onewire.CmdAlarmSearch:
			s.state = simSearch
			s.bit, s.slot = 0, 0
			s.active = make([]bool, len(s.Devices))
			for i, d := range s.Devices {
				s.active[i] = b == onewire.CmdSearchRom || s.alarmed(d)
			}
		case onewire.CmdReadRom:
			s.state = simReadRom
			s.rd = 0
		case onewire.CmdMatchRom:
			s.state = simMatch
			s.buf = s.buf[:0]
		case onewire.CmdSkipRom, onewire.CmdResumeRom:
			s.state = simSelected
		default:
			s.state = simIdle
		}
	case simMatch:
		s.buf = append(s.buf, b)
		if len(s.buf) == 8 {
			copy(s.Selected[:], s.buf)
			s.state = simSelected
		}
	case simSearch:
		for i := 0; i < 8; i++ {
			s.touch(b&(1<<uint(i)) != 0)
		}
	}
}

func (s *Sim) alarmed(d onewire.RomID) bool {
	for _, a := range s.Alarmed {
		if a == d {
			return true
		}
	}
	return false
}

// ReadByteLevel implements onewire.Master.
func (s *Sim) ReadByteLevel(after onewire.Level) (byte, error) {
	s.Lock()
	defer s.Unlock()
	return s.readByte(), nil
}

func (s *Sim) readByte() byte {
	switch s.state {
	case simReadRom:
		b := byte(0xff)
		for _, d := range s.Devices {
			b &= d[s.rd]
		}
		s.rd++
		if s.rd == 8 {
			s.state = simIdle
		}
		return b
	case simSearch:
		var b byte
		for i := 0; i < 8; i++ {
			if s.touch(true) {
				b |= 1 << uint(i)
			}
		}
		return b
	}
	return 0xff
}

// WriteBlock implements onewire.Master.
func (s *Sim) WriteBlock(w []byte) error {
	s.Lock()
	defer s.Unlock()
	for _, b := range w {
		s.writeByte(b)
	}
	return nil
}

// ReadBlock implements onewire.Master.
func (s *Sim) ReadBlock(r []byte) error {
	s.Lock()
	defer s.Unlock()
	for i := range r {
		r[i] = s.readByte()
	}
	return nil
}

// SetSpeed implements onewire.Master.
func (s *Sim) SetSpeed(onewire.Speed) error {
	return nil
}

// SetLevel implements onewire.Master.
func (s *Sim) SetLevel(onewire.Level) error {
	return nil
}

// Triplet implements onewire.Master.
func (s *Sim) Triplet(dir bool) (onewire.TripletResult, error) {
	return onewire.TripletBits(s, dir)
}

var _ onewire.Master = &Sim{}
