// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewire

// Selector addresses one slave, or all of them, and is called by device
// drivers as the first step of every command.
type Selector func(m Master) error

// SelectSkipRom selects the only slave on a single-drop bus.
func SelectSkipRom() Selector {
	return SkipRom
}

// SelectMatchRom selects the slave with ROM-ID id on a multi-drop bus.
func SelectMatchRom(id RomID) Selector {
	return func(m Master) error {
		return MatchRom(m, id)
	}
}

// SelectOverdriveMatchRom selects the slave with ROM-ID id and moves the bus
// to overdrive speed.
func SelectOverdriveMatchRom(id RomID) Selector {
	return func(m Master) error {
		return OverdriveMatchRom(m, id)
	}
}

// SharedData remembers the slave last addressed by Match ROM on one bus. Share
// one value between the selectors of all drivers on the same bus and touch it
// only between bus operations.
type SharedData struct {
	lastRom RomID
	valid   bool
}

// LastRom returns the slave last matched, if any.
func (s *SharedData) LastRom() (RomID, bool) {
	return s.lastRom, s.valid
}

// Forget makes the next selection send a full Match ROM, e.g. after another
// bus master or a Skip ROM addressed other slaves.
func (s *SharedData) Forget() {
	*s = SharedData{}
}

// SelectMatchRomWithResume selects the slave with ROM-ID id, sending Resume
// ROM instead of the full Match ROM when shared records that this slave was
// the last one matched.
func SelectMatchRomWithResume(shared *SharedData, id RomID) Selector {
	return func(m Master) error {
		if shared.valid && shared.lastRom == id {
			return ResumeRom(m)
		}
		if err := MatchRom(m, id); err != nil {
			shared.Forget()
			return err
		}
		shared.lastRom, shared.valid = id, true
		return nil
	}
}
