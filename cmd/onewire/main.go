// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// onewire lists the devices of a 1-wire bus and reads its temperature
// sensors.
//
// The bus is reached through a DS2482/DS2484 or DS2465 on an I²C bus of the
// host, or through a DS2480B or DS9481P-300 on a serial port.
//
//	onewire scan --adapter ds2480b --serial /dev/ttyUSB0
//	onewire temp --bus 1 28AC410E07000074
//	onewire poll --config sensors.yaml
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/mattn/go-colorable"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	e := &env{out: colorable.NewColorableStdout(), errOut: os.Stderr, open: openBus}
	if err := newApp(e).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "onewire: %s.\n", err)
		os.Exit(1)
	}
}

// env is what the commands need from the outside world.
type env struct {
	out    io.Writer
	errOut io.Writer
	open   func(o *busOpts, l *slog.Logger) (*bus, error)
}

func newApp(e *env) *cli.Command {
	return &cli.Command{
		Name:  "onewire",
		Usage: "1-wire bus tool",
		Commands: []*cli.Command{
			scanCommand(e),
			tempCommand(e),
			pollCommand(e),
		},
	}
}

// logger returns the logger selected by --verbose, or nil to not trace the
// bus at all.
func (e *env) logger(cmd *cli.Command) *slog.Logger {
	if !cmd.Bool("verbose") {
		return nil
	}
	return slog.New(slog.NewTextHandler(e.errOut, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
