// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package maximinterface is a container for Maxim 1-Wire bus masters and
// device drivers.
//
// Bus masters implement onewire.Master: ds2480b on a serial port, ds248x and
// ds2465 on an I²C bus, and ds9481p which also exposes the DS9400 I²C master
// sharing its serial port. onewire.NewBus turns any of them into a periph
// onewire.Bus.
//
// Devices take a onewire.Master and a onewire.Selector: ds18b20, ds1920,
// ds2413, ds2431, ds28e15 and ds28e17. The authenticators ds28c36, ds28e16,
// ds28c39, ds28e38, ds28e39 and ds28e83 take a runcommand.Func instead, so
// that the same driver works over 1-Wire or I²C.
//
// cmd/onewire is a command line tool built on top of them.
package maximinterface
