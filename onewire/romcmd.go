// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewire

// ROM function commands.
const (
	CmdReadRom          = 0x33
	CmdMatchRom         = 0x55
	CmdSearchRom        = 0xf0
	CmdAlarmSearch      = 0xec
	CmdSkipRom          = 0xcc
	CmdResumeRom        = 0xa5
	CmdOverdriveSkipRom = 0x3c
	CmdOverdriveMatch   = 0x69
)

// ReadRom reads the ROM-ID of the only slave on the bus.
//
// With several slaves the answers collide and the CRC fails, which is
// reported as NoSlave.
func ReadRom(m Master) (RomID, error) {
	var r RomID
	if err := m.Reset(); err != nil {
		return r, err
	}
	if err := WriteByte(m, CmdReadRom); err != nil {
		return r, err
	}
	if err := m.ReadBlock(r[:]); err != nil {
		return r, err
	}
	if !r.Valid() {
		return RomID{}, NewError("onewire", NoSlave, "read ROM returned an invalid ROM-ID "+r.String())
	}
	return r, nil
}

// SkipRom addresses all slaves at once.
func SkipRom(m Master) error {
	if err := m.Reset(); err != nil {
		return err
	}
	return WriteByte(m, CmdSkipRom)
}

// MatchRom addresses the slave with ROM-ID id.
func MatchRom(m Master, id RomID) error {
	if err := m.Reset(); err != nil {
		return err
	}
	if err := WriteByte(m, CmdMatchRom); err != nil {
		return err
	}
	return m.WriteBlock(id[:])
}

// OverdriveSkipRom addresses all slaves and switches them, and the master, to
// overdrive speed.
func OverdriveSkipRom(m Master) error {
	if err := m.Reset(); err != nil {
		return err
	}
	if err := WriteByte(m, CmdOverdriveSkipRom); err != nil {
		return err
	}
	return m.SetSpeed(Overdrive)
}

// OverdriveMatchRom addresses the slave with ROM-ID id at overdrive speed. The
// command byte goes out at the current speed, the ROM-ID at overdrive.
func OverdriveMatchRom(m Master, id RomID) error {
	if err := m.Reset(); err != nil {
		return err
	}
	if err := WriteByte(m, CmdOverdriveMatch); err != nil {
		return err
	}
	if err := m.SetSpeed(Overdrive); err != nil {
		return err
	}
	return m.WriteBlock(id[:])
}

// ResumeRom addresses the slave selected by the last Match ROM again.
func ResumeRom(m Master) error {
	if err := m.Reset(); err != nil {
		return err
	}
	return WriteByte(m, CmdResumeRom)
}
