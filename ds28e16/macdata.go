// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds28e16

import (
	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// AuthenticationData is the HMAC input of a page authentication or of a
// secret computation.
type AuthenticationData [75]byte

// NewAuthenticationData returns the HMAC input of the authentication of page
// pageNum holding data, computed with challenge.
func NewAuthenticationData(rom onewire.RomID, data, challenge *DoublePage, pageNum int, man byte, anonymous bool) AuthenticationData {
	var d AuthenticationData
	if anonymous {
		for i := 0; i < 8; i++ {
			d[i] = 0xff
		}
	} else {
		copy(d[0:8], rom[:])
	}
	copy(d[8:40], data[:])
	copy(d[40:72], challenge[:])
	d[72] = byte(pageNum)
	d[73] = man
	return d
}

// SecretData returns the input of the secret computation binding the secret
// to page bindingPage holding bindingData, and to partialSecret.
//
// With constantBinding the binding data is replaced by zeros.
func SecretData(rom onewire.RomID, bindingData *DoublePage, bindingPage int, constantBinding bool, partialSecret *DoublePage, man byte) AuthenticationData {
	var d AuthenticationData
	copy(d[0:8], rom[:])
	if !constantBinding {
		copy(d[8:40], bindingData[:])
	}
	copy(d[40:72], partialSecret[:])
	d[72] = 0x80 | byte(bindingPage&0x03)
	if constantBinding {
		d[72] |= constantBindingMask
	}
	d[73] = man
	return d
}
