// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewire defines the bit level 1-Wire master used by every bridge
// and device package in this module, along with ROM commands, the Search ROM
// state machine and the ROM selectors device drivers call before each
// command.
//
// A Master speaks time slots: reset/presence, single bits, bytes with an
// optional strong pull-up after the last bit, speed and level changes and the
// search triplet. Bridges (ds2480b, ds248x, ds2465, ds9481p) implement it;
// device drivers consume it together with a Selector.
//
// NewBus exposes any Master as a periph.io/x/conn/v3/onewire.Bus so drivers
// written for periph run on the bridges of this module too.
//
// Datasheet
//
// https://www.analog.com/en/technical-articles/1wire-search-algorithm.html
package onewire
