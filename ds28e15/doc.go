// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds28e15 interfaces to the Maxim DS28E15, DS28E22 and DS28E25
// SHA-256 authenticators and their low power DS28ELxx versions.
//
// Commands are sent with an inverted CRC16 that the device echoes. Commands
// writing EEPROM or computing a MAC end with a release sequence: the host
// powers the device with the strong pull-up for the time the operation takes
// and then reads a status byte.
//
// The MAC input builders produce the byte layout the device hashes, for use
// with a SHA-256 coprocessor such as the DS2465.
//
// Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS28E15.pdf
package ds28e15
