// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages: the two
// CRCs spoken on a 1-Wire bus and hex helpers for ROM-IDs and payloads.
package common

// CRC16Residue is the value CRC16 leaves after running over a block followed
// by the inverted CRC16 the device sent for it.
const CRC16Residue uint16 = 0xb001

// CRC8Byte folds one byte into crc using the Dallas/Maxim polynomial
// x^8+x^5+x^4+1 (reflected, no output XOR).
func CRC8Byte(b, crc byte) byte {
	crc ^= b
	for range 8 {
		if crc&1 == 0 {
			crc >>= 1
		} else {
			crc = crc>>1 ^ 0x8c
		}
	}
	return crc
}

// CRC8 calculates the 8-bit CRC of bytes starting from crc and returns the
// new value. The seed is 0 for a fresh calculation. Running CRC8 over a block
// followed by its own CRC8 yields 0.
func CRC8(bytes []byte, crc byte) byte {
	for _, val := range bytes {
		crc = CRC8Byte(val, crc)
	}
	return crc
}

var oddParity = [16]uint16{0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0, 1, 1, 0}

// CRC16Byte folds one byte into crc using the polynomial x^16+x^15+x^2+1,
// least significant bit first.
func CRC16Byte(b byte, crc uint16) uint16 {
	data := (uint16(b) ^ crc) & 0xff
	crc >>= 8
	if oddParity[data&0xf]^oddParity[data>>4] != 0 {
		crc ^= 0xc001
	}
	data <<= 6
	crc ^= data
	data <<= 1
	crc ^= data
	return crc
}

// CRC16 calculates the 16-bit CRC of bytes starting from crc.
func CRC16(bytes []byte, crc uint16) uint16 {
	for _, val := range bytes {
		crc = CRC16Byte(val, crc)
	}
	return crc
}

// CheckCRC16 reports whether inv, as received little-endian from a device, is
// the inverted CRC16 of bytes continued from crc.
func CheckCRC16(bytes []byte, crc uint16, inv [2]byte) bool {
	crc = CRC16(bytes, crc)
	return crc^0xffff == uint16(inv[0])|uint16(inv[1])<<8
}

// InvertedCRC16 returns the two bytes a device expects after bytes: the
// complemented CRC16, low byte first.
func InvertedCRC16(bytes []byte, crc uint16) [2]byte {
	crc = CRC16(bytes, crc) ^ 0xffff
	return [2]byte{byte(crc), byte(crc >> 8)}
}
