// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/maximinterface/onewire"
)

// config is the poll configuration file.
//
//	adapter: ds2480b
//	serial: /dev/ttyUSB0
//	sensors:
//	  - name: boiler
//	    rom: 28AC410E07000074
//	    interval: 30s
type config struct {
	busOpts `yaml:",inline"`
	Sensors []sensorConfig `yaml:"sensors"`
}

type sensorConfig struct {
	Name     string        `yaml:"name"`
	Rom      string        `yaml:"rom"`
	Interval time.Duration `yaml:"interval"`
}

// defaultInterval is used for the sensors without an interval.
const defaultInterval = time.Minute

func parseConfig(b []byte) (*config, error) {
	c := &config{}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	if len(c.Sensors) == 0 {
		return nil, errors.New("no sensors configured")
	}
	seen := map[string]bool{}
	for i := range c.Sensors {
		s := &c.Sensors[i]
		if _, err := onewire.ParseRomID(s.Rom); err != nil {
			return nil, fmt.Errorf("sensor %q: %w", s.Name, err)
		}
		if s.Name == "" {
			s.Name = s.Rom
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("sensor %q listed twice", s.Name)
		}
		seen[s.Name] = true
		if s.Interval == 0 {
			s.Interval = defaultInterval
		}
		if s.Interval < 0 {
			return nil, fmt.Errorf("sensor %q: negative interval", s.Name)
		}
	}
	return c, nil
}

func pollCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "poll",
		Usage: "read the sensors of a configuration file periodically, printing JSON records",
		Flags: append(busFlags(),
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "YAML configuration file",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "stop after this many readings of every sensor; 0 runs until interrupted",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			raw, err := os.ReadFile(cmd.String("config"))
			if err != nil {
				return err
			}
			c, err := parseConfig(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", cmd.String("config"), err)
			}
			o, err := busOptsFromFlags(cmd, c.busOpts)
			if err != nil {
				return err
			}
			l := e.logger(cmd)
			b, err := e.open(&o, l)
			if err != nil {
				return err
			}
			defer b.Close()
			var sensors []*polled
			for _, sc := range c.Sensors {
				id, _ := onewire.ParseRomID(sc.Rom)
				s, err := newSensor(b, id, 0)
				if err != nil {
					return fmt.Errorf("%s: %w", sc.Name, err)
				}
				sensors = append(sensors, &polled{name: sc.Name, rom: id, interval: sc.Interval, dev: s})
			}
			if l == nil {
				l = slog.New(slog.NewTextHandler(e.errOut, nil))
			}
			return poll(ctx, e.out, l, sensors, int(cmd.Int("count")))
		},
	}
}

// polled is a sensor being polled.
type polled struct {
	name     string
	rom      onewire.RomID
	interval time.Duration
	dev      physic.SenseEnv
	next     time.Time
	count    int
}

// record is printed for each reading.
type record struct {
	Name        string    `json:"name"`
	Rom         string    `json:"rom"`
	Temperature float64   `json:"temperature"`
	Unit        string    `json:"unit"`
	Time        time.Time `json:"time"`
}

var now = time.Now

// poll reads every sensor at its interval until ctx is done or every sensor
// was read count times. A failed reading is logged and retried at the next
// interval.
func poll(ctx context.Context, w io.Writer, l *slog.Logger, sensors []*polled, count int) error {
	enc := json.NewEncoder(w)
	start := now()
	for _, s := range sensors {
		s.next = start
	}
	for {
		var due *polled
		done := true
		for _, s := range sensors {
			if count != 0 && s.count >= count {
				continue
			}
			done = false
			if due == nil || s.next.Before(due.next) {
				due = s
			}
		}
		if done {
			return nil
		}
		if d := due.next.Sub(now()); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		} else if ctx.Err() != nil {
			return nil
		}
		due.count++
		due.next = due.next.Add(due.interval)
		var e physic.Env
		if err := due.dev.Sense(&e); err != nil {
			l.Warn("reading failed", slog.String("sensor", due.name), slog.Any("error", err))
			continue
		}
		r := record{Name: due.name, Rom: due.rom.String(), Temperature: celsius(e.Temperature), Unit: "C", Time: now().UTC()}
		if err := enc.Encode(&r); err != nil {
			return err
		}
	}
}
