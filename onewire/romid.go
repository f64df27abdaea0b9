// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewire

import (
	"encoding/binary"
	"fmt"

	ponewire "periph.io/x/conn/v3/onewire"

	"github.com/GermanBionicSystems/maximinterface/common"
)

// RomID is the 64-bit identifier of a slave, in bus order: family code, 48-bit
// serial number, CRC8 of the first seven bytes.
type RomID [8]byte

// Family returns the family code.
func (r RomID) Family() byte {
	return r[0]
}

// Valid reports whether the last byte is the CRC8 of the first seven.
func (r RomID) Valid() bool {
	return common.CRC8(r[:7], 0) == r[7]
}

// Address converts to a periph address, which holds the family code in the
// least significant byte.
func (r RomID) Address() ponewire.Address {
	return ponewire.Address(binary.LittleEndian.Uint64(r[:]))
}

func (r RomID) String() string {
	return common.HexString(r[:])
}

// FromAddress converts a periph address to a RomID.
func FromAddress(a ponewire.Address) RomID {
	var r RomID
	binary.LittleEndian.PutUint64(r[:], uint64(a))
	return r
}

// NewRomID builds a RomID from a family code and serial number, computing the
// CRC byte.
func NewRomID(family byte, serial [6]byte) RomID {
	r := RomID{family}
	copy(r[1:7], serial[:])
	r[7] = common.CRC8(r[:7], 0)
	return r
}

// ParseRomID parses 16 hex digits in bus order, e.g. "28AC410E07000074".
// The CRC is not checked; use Valid.
func ParseRomID(s string) (RomID, error) {
	var r RomID
	b, err := common.ParseHex(s)
	if err != nil {
		return r, err
	}
	if len(b) != len(r) {
		return r, fmt.Errorf("onewire: ROM-ID %q has %d bytes, want 8", s, len(b))
	}
	copy(r[:], b)
	return r, nil
}
