// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds28e15

import (
	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// WriteMacData is the MAC input of an authenticated segment or protection
// write.
type WriteMacData [20]byte

// AuthenticationData is the MAC input of a page authentication or of a
// secret computation.
type AuthenticationData [76]byte

// SegmentWriteMacData returns the MAC input authorizing the write of
// newData over oldData.
func SegmentWriteMacData(rom onewire.RomID, man ManID, page, segment int, oldData, newData *Segment) WriteMacData {
	var d WriteMacData
	copy(d[0:8], rom[:])
	d[8], d[9] = man[1], man[0]
	d[10] = byte(page)
	d[11] = byte(segment)
	copy(d[12:16], oldData[:])
	copy(d[16:20], newData[:])
	return d
}

// ProtectionWriteMacData returns the MAC input authorizing the change of a
// block protection from oldProtection to newProtection.
func ProtectionWriteMacData(rom onewire.RomID, man ManID, oldProtection, newProtection BlockProtection) WriteMacData {
	var d WriteMacData
	copy(d[0:8], rom[:])
	d[8], d[9] = man[1], man[0]
	d[10] = byte(newProtection.BlockNum())
	flags(d[12:16], oldProtection)
	flags(d[16:20], newProtection)
	return d
}

func flags(b []byte, p BlockProtection) {
	for i, f := range []BlockProtection{AuthProtection, EepromEmulation, WriteProtection, ReadProtection} {
		if p.Has(f) {
			b[i] = 1
		}
	}
}

// NewAuthenticationData returns the MAC input of the authentication of page
// pageNum holding data, with challenge as the scratchpad content.
//
// anonymous replaces the ROM-ID with 0xFF bytes, as the device does when
// told to compute an anonymous MAC.
func NewAuthenticationData(data, challenge *Page, rom onewire.RomID, man ManID, pageNum int, anonymous bool) AuthenticationData {
	var d AuthenticationData
	copy(d[0:32], data[:])
	copy(d[32:64], challenge[:])
	if anonymous {
		for i := 64; i < 72; i++ {
			d[i] = 0xff
		}
	} else {
		copy(d[64:72], rom[:])
	}
	d[72], d[73] = man[1], man[0]
	d[74] = byte(pageNum)
	return d
}

// SlaveSecretData returns the input of the secret computation binding the
// secret to bindingPage and partialSecret.
func SlaveSecretData(bindingPage, partialSecret *Page, rom onewire.RomID, man ManID, bindingPageNum int) AuthenticationData {
	return NewAuthenticationData(bindingPage, partialSecret, rom, man, bindingPageNum, false)
}
