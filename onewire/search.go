// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewire

import "errors"

// SearchState carries a Search ROM enumeration from one round to the next.
//
// The zero value starts a fresh enumeration. After each successful round
// RomID holds the slave found; LastDevice is set once the last one has been
// returned.
type SearchState struct {
	RomID                 RomID
	LastDiscrepancy       int // 0..64, bit of the last unexplored 0 branch
	LastFamilyDiscrepancy int // 0..8, same within the family code
	LastDevice            bool
}

// NewSearchFrom returns a state whose next round targets id, and devices with
// a higher ROM-ID after it.
func NewSearchFrom(id RomID) SearchState {
	return SearchState{RomID: id, LastDiscrepancy: 64}
}

// NewFamilySearch returns a state whose next round finds the first device of
// the given family, if any is present.
func NewFamilySearch(family byte) SearchState {
	return SearchState{RomID: RomID{family}, LastDiscrepancy: 64}
}

// Reset prepares s for a fresh enumeration.
func (s *SearchState) Reset() {
	*s = SearchState{}
}

// SkipCurrentFamily arranges for the next round to continue past all devices
// sharing the family code of the device just found.
func (s *SearchState) SkipCurrentFamily() {
	s.LastDiscrepancy = s.LastFamilyDiscrepancy
	s.LastFamilyDiscrepancy = 0
	if s.LastDiscrepancy == 0 {
		s.LastDevice = true
	}
}

// SearchRom runs one Search ROM round and leaves the device found in
// s.RomID.
//
// If s.LastDevice is set on entry the enumeration starts over. A round that
// completes with a ROM-ID failing its CRC, or in which no slave answers a bit,
// returns NoSlave and leaves s unchanged.
func SearchRom(m Master, s *SearchState) error {
	return search(m, s, CmdSearchRom)
}

// AlarmSearch is SearchRom restricted to slaves whose alarm flag is set.
func AlarmSearch(m Master, s *SearchState) error {
	return search(m, s, CmdAlarmSearch)
}

func search(m Master, s *SearchState, cmd byte) error {
	if s.LastDevice {
		s.Reset()
	}
	if err := m.Reset(); err != nil {
		return err
	}
	if err := WriteByte(m, cmd); err != nil {
		return err
	}
	next := SearchState{LastFamilyDiscrepancy: s.LastFamilyDiscrepancy}
	for bit := 1; bit <= 64; bit++ {
		idx := (bit - 1) / 8
		mask := byte(1) << uint((bit-1)%8)
		var dir bool
		switch {
		case bit == s.LastDiscrepancy:
			dir = true
		case bit > s.LastDiscrepancy:
			dir = false
		default:
			dir = s.RomID[idx]&mask != 0
		}
		t, err := m.Triplet(dir)
		if err != nil {
			return err
		}
		if t.ReadBit && t.ReadBitComplement {
			return NewError("onewire", NoSlave, "no slave answered the search")
		}
		if t.Direction {
			next.RomID[idx] |= mask
		} else if !t.ReadBit && !t.ReadBitComplement {
			next.LastDiscrepancy = bit
			if bit <= 8 {
				next.LastFamilyDiscrepancy = bit
			}
		}
	}
	if !next.RomID.Valid() {
		return NewError("onewire", NoSlave, "search found an invalid ROM-ID "+next.RomID.String())
	}
	next.LastDevice = next.LastDiscrepancy == 0
	*s = next
	return nil
}

// VerifyRom reports nil if the slave with ROM-ID id is on the bus, NoSlave
// otherwise.
func VerifyRom(m Master, id RomID) error {
	s := NewSearchFrom(id)
	if err := SearchRom(m, &s); err != nil {
		return err
	}
	if s.RomID != id {
		return NewError("onewire", NoSlave, "device "+id.String()+" is not on the bus")
	}
	return nil
}

// SearchAll enumerates every slave on the bus.
//
// Slaves found before an error are returned along with it. An empty bus
// returns no error.
func SearchAll(m Master) ([]RomID, error) {
	var ids []RomID
	var s SearchState
	for {
		if err := SearchRom(m, &s); err != nil {
			if len(ids) == 0 && errors.Is(err, ErrNoSlave) {
				return nil, nil
			}
			return ids, err
		}
		ids = append(ids, s.RomID)
		if s.LastDevice {
			return ids, nil
		}
	}
}
