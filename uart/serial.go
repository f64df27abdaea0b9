// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package uart

import (
	"fmt"
	"sync"
	"time"

	"github.com/tarm/serial"
	"periph.io/x/conn/v3"
)

// Opts holds the serial line settings.
type Opts struct {
	// Baud is the rate the port is opened at.
	Baud int
	// ReadTimeout bounds every Read.
	ReadTimeout time.Duration
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Baud:        9600,
	ReadTimeout: 10 * time.Second,
}

// breakBaud is low enough that a single 0x00 holds the line low for 7.5ms.
const breakBaud = 1200

// Serial is a Port on a host serial device such as /dev/ttyUSB0.
//
// The line rate cannot be changed on an open tarm/serial port so SetBaudRate
// and SendBreak reopen the device.
type Serial struct {
	mu   sync.Mutex
	cfg  serial.Config
	port device
}

// device is the part of *serial.Port in use.
type device interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Flush() error
	Close() error
}

// Open opens the named serial device, 8N1.
func Open(name string, opts *Opts) (*Serial, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	s := &Serial{
		cfg: serial.Config{
			Name:        name,
			Baud:        opts.Baud,
			ReadTimeout: opts.ReadTimeout,
			Size:        serial.DefaultSize,
			Parity:      serial.ParityNone,
			StopBits:    serial.Stop1,
		},
	}
	if err := s.open(opts.Baud); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Serial) String() string {
	return fmt.Sprintf("uart.Serial{%s@%d}", s.cfg.Name, s.cfg.Baud)
}

// Read implements io.Reader.
func (s *Serial) Read(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Read(b)
}

// Write implements io.Writer.
func (s *Serial) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Write(b)
}

// SetBaudRate implements Port.
func (s *Serial) SetBaudRate(baud int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if baud == s.cfg.Baud {
		return nil
	}
	return s.reopen(baud)
}

// SendBreak implements Port.
//
// The port is back at its previous rate afterward, even when the break
// failed.
func (s *Serial) SendBreak() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	baud := s.cfg.Baud
	defer func() {
		rerr := s.reopen(baud)
		if rerr == nil {
			rerr = s.port.Flush()
		}
		if err == nil {
			err = rerr
		}
	}()
	if err := s.reopen(breakBaud); err != nil {
		return err
	}
	if _, err := s.port.Write([]byte{0}); err != nil {
		return fmt.Errorf("uart: break: %w", err)
	}
	// Let the character drain before the device is closed.
	sleep(10 * time.Millisecond)
	return nil
}

// ClearReadBuffer implements Port.
func (s *Serial) ClearReadBuffer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Flush()
}

// Halt implements conn.Resource.
func (s *Serial) Halt() error {
	return nil
}

// Close closes the device.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *Serial) reopen(baud int) error {
	if s.port != nil {
		if err := s.port.Close(); err != nil {
			return fmt.Errorf("uart: close %s: %w", s.cfg.Name, err)
		}
		s.port = nil
	}
	return s.open(baud)
}

func (s *Serial) open(baud int) error {
	cfg := s.cfg
	cfg.Baud = baud
	p, err := openPort(&cfg)
	if err != nil {
		return fmt.Errorf("uart: open %s at %d: %w", cfg.Name, baud, err)
	}
	s.cfg = cfg
	s.port = p
	return nil
}

var sleep = time.Sleep

var openPort = func(cfg *serial.Config) (device, error) {
	return serial.OpenPort(cfg)
}

var _ Port = &Serial{}
var _ conn.Resource = &Serial{}
