// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds2413

import (
	"errors"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

type pin struct {
	dev    *Dev
	number int
	name   string
	err    error
}

func (p *pin) String() string {
	return p.name
}

func (p *pin) Name() string {
	return p.name
}

func (p *pin) Number() int {
	return p.number
}

func (p *pin) Function() string {
	return "In/Out"
}

func (p *pin) Halt() error {
	return nil
}

// In releases the output transistor. The pins have no internal pull.
func (p *pin) In(pull gpio.Pull, edge gpio.Edge) error {
	if pull != gpio.Float && pull != gpio.PullNoChange {
		return errors.New("ds2413: pull resistors are not supported")
	}
	if edge != gpio.NoEdge {
		return errors.New("ds2413: edge detection is not supported")
	}
	return p.dev.writeOne(p.number, true)
}

// Read returns the sensed level, or Low on failure. Err returns the failure.
func (p *pin) Read() gpio.Level {
	s, err := p.dev.ReadStatus()
	p.err = err
	if err != nil {
		return gpio.Low
	}
	return s&(PioAInput<<uint(2*p.number)) != 0
}

// Err returns the error of the last Read.
func (p *pin) Err() error {
	return p.err
}

func (p *pin) WaitForEdge(timeout time.Duration) bool {
	return false
}

func (p *pin) Pull() gpio.Pull {
	return gpio.Float
}

func (p *pin) DefaultPull() gpio.Pull {
	return gpio.Float
}

// Out sets the latch. High turns the transistor off.
func (p *pin) Out(l gpio.Level) error {
	return p.dev.writeOne(p.number, bool(l))
}

func (p *pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return errors.New("ds2413: PWM is not supported")
}

var _ gpio.PinIO = &pin{}
