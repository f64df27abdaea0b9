// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewire

// Speed is the 1-Wire signalling speed.
type Speed int

const (
	// Standard speed, about 15.4kbps.
	Standard Speed = iota
	// Overdrive speed, about 125kbps. All slaves must first have received an
	// Overdrive Skip or Overdrive Match ROM command.
	Overdrive
)

func (s Speed) String() string {
	if s == Overdrive {
		return "Overdrive"
	}
	return "Standard"
}

// Level is the state the master leaves the bus in after a time slot.
type Level int

const (
	// Normal is the passive (resistive) pull-up.
	Normal Level = iota
	// Strong is an active pull-up that powers a slave through an energy
	// intensive operation such as an EEPROM write.
	Strong
)

func (l Level) String() string {
	if l == Strong {
		return "Strong"
	}
	return "Normal"
}

// TripletResult is the outcome of one Search ROM bit position.
type TripletResult struct {
	ReadBit           bool // first read: true unless a slave has a 0 here
	ReadBitComplement bool // second read: true unless a slave has a 1 here
	Direction         bool // bit written by the master, and so the branch taken
}

// Toucher is the single time slot every Master is built on.
//
// TouchBit writes bit, samples the bus during the same slot and leaves the
// bus at after. Writing true is a read slot.
type Toucher interface {
	TouchBit(bit bool, after Level) (bool, error)
}

// Master is a 1-Wire bus master.
//
// Strong may only be requested as the level following a bit or byte and must
// be returned to Normal with SetLevel before the next command. Masters that
// cannot enter Strong on demand fail SetLevel(Strong) with InvalidLevel.
//
// Implementations that have no faster way to move bytes can implement the
// byte, block and triplet methods with WriteByteBits, ReadByteBits,
// WriteBlockBytes, ReadBlockBytes and TripletBits.
type Master interface {
	Toucher
	// Reset pulses the bus and samples presence. It returns an error of kind
	// NoSlave if no slave answered and ShortDetected if the bus is held low.
	Reset() error
	// WriteByteLevel writes b least significant bit first.
	WriteByteLevel(b byte, after Level) error
	// ReadByteLevel reads one byte.
	ReadByteLevel(after Level) (byte, error)
	// WriteBlock writes all of w at Normal level.
	WriteBlock(w []byte) error
	// ReadBlock fills r at Normal level.
	ReadBlock(r []byte) error
	SetSpeed(s Speed) error
	SetLevel(l Level) error
	// Triplet reads a bit and its complement and then writes the branch to
	// follow, preferring dir when both branches exist.
	Triplet(dir bool) (TripletResult, error)
}

// WriteBit sends a single bit at Normal level.
func WriteBit(m Toucher, bit bool) error {
	_, err := m.TouchBit(bit, Normal)
	return err
}

// ReadBit reads a single bit at Normal level.
func ReadBit(m Toucher) (bool, error) {
	return m.TouchBit(true, Normal)
}

// WriteByte sends b at Normal level.
func WriteByte(m Master, b byte) error {
	return m.WriteByteLevel(b, Normal)
}

// ReadByte reads a byte at Normal level.
func ReadByte(m Master) (byte, error) {
	return m.ReadByteLevel(Normal)
}

// WriteByteBits writes b as eight time slots, least significant bit first.
// Only the last slot is followed by after.
func WriteByteBits(m Toucher, b byte, after Level) error {
	for i := 0; i < 8; i++ {
		l := Normal
		if i == 7 {
			l = after
		}
		if _, err := m.TouchBit(b&(1<<i) != 0, l); err != nil {
			return err
		}
	}
	return nil
}

// ReadByteBits reads a byte as eight read slots.
func ReadByteBits(m Toucher, after Level) (byte, error) {
	var b byte
	for i := 0; i < 8; i++ {
		l := Normal
		if i == 7 {
			l = after
		}
		bit, err := m.TouchBit(true, l)
		if err != nil {
			return 0, err
		}
		if bit {
			b |= 1 << i
		}
	}
	return b, nil
}

// WriteBlockBytes writes w one byte at a time.
func WriteBlockBytes(m Master, w []byte) error {
	for _, b := range w {
		if err := m.WriteByteLevel(b, Normal); err != nil {
			return err
		}
	}
	return nil
}

// ReadBlockBytes fills r one byte at a time.
func ReadBlockBytes(m Master, r []byte) error {
	for i := range r {
		b, err := m.ReadByteLevel(Normal)
		if err != nil {
			return err
		}
		r[i] = b
	}
	return nil
}

// TripletBits performs a search triplet with three ordinary time slots.
//
// When only one branch exists it is taken regardless of dir.
func TripletBits(m Toucher, dir bool) (TripletResult, error) {
	var t TripletResult
	var err error
	if t.ReadBit, err = m.TouchBit(true, Normal); err != nil {
		return t, err
	}
	if t.ReadBitComplement, err = m.TouchBit(true, Normal); err != nil {
		return t, err
	}
	switch {
	case t.ReadBit:
		t.Direction = true
	case t.ReadBitComplement:
		t.Direction = false
	default:
		t.Direction = dir
	}
	_, err = m.TouchBit(t.Direction, Normal)
	return t, err
}

// WriteBytePower writes b with a strong pull-up following the last bit. The
// caller owns the return to Normal.
func WriteBytePower(m Master, b byte) error {
	return m.WriteByteLevel(b, Strong)
}

// RestoreLevel returns the bus to Normal. When err is already set it is kept
// and a failure to restore is dropped, so that
//
//	defer func() { err = onewire.RestoreLevel(m, err) }()
//
// pairs every strong pull-up with a return to Normal on every path.
func RestoreLevel(m Master, err error) error {
	if rerr := m.SetLevel(Normal); err == nil {
		return rerr
	}
	return err
}
