// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// owscan lists the devices on a 1-wire bus.
//
// The bus is either bit-banged on a GPIO pin or driven by a DS248x bridge on
// an I²C bus:
//
//	owscan -pin GPIO4 -temp
//	owscan -i2c 1 -alarm
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/GermanBionicSystems/onewire/bitbang"
	"github.com/GermanBionicSystems/onewire/ds248x"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/host/v3"
)

func mainImpl() error {
	pin := flag.String("pin", "", "GPIO pin to bit-bang the bus on")
	pull := flag.Bool("pullup", false, "enable the internal pull-up of the pin")
	i2cID := flag.String("i2c", "", "I²C bus of a DS248x bridge")
	addr := flag.Int("addr", 0x18, "I²C address of the DS248x bridge")
	timing := flag.String("timing", "", "yaml file overriding bit-bang timing phases")
	overdrive := flag.Bool("overdrive", false, "use overdrive timing")
	alarm := flag.Bool("alarm", false, "only list devices in alarm state")
	temp := flag.Bool("temp", false, "read temperature of thermometers")
	res := flag.Int("res", 12, "thermometer resolution in bits, 9..12")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}
	if (*pin == "") == (*i2cID == "") {
		return errors.New("specify exactly one of -pin or -i2c")
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if _, err := host.Init(); err != nil {
		return err
	}

	var b onewire.BusSearcher
	if *pin != "" {
		p := gpioreg.ByName(*pin)
		if p == nil {
			return fmt.Errorf("failed to find %s", *pin)
		}
		opts := bitbang.Opts{Timing: bitbang.StandardTiming, Logger: logger}
		if *overdrive {
			opts.Timing = bitbang.OverdriveTiming
		}
		if *timing != "" {
			t, err := loadTiming(*timing, opts.Timing)
			if err != nil {
				return err
			}
			opts.Timing = t
		}
		pl := gpio.Float
		if *pull {
			pl = gpio.PullUp
		}
		d, err := bitbang.New(bitbang.GPIO(p, pl), &opts)
		if err != nil {
			return err
		}
		defer d.Halt()
		b = d
	} else {
		if *timing != "" || *overdrive {
			return errors.New("-timing and -overdrive only apply to -pin")
		}
		bus, err := i2creg.Open(*i2cID)
		if err != nil {
			return err
		}
		defer bus.Close()
		opts := ds248x.DefaultOpts
		opts.Logger = logger
		d, err := ds248x.New(bus, uint16(*addr), &opts)
		if err != nil {
			return err
		}
		defer d.Halt()
		b = d
	}
	logger.Debug("owscan", "bus", b)

	n, err := scan(colorable.NewColorableStdout(), b, &scanOpts{
		alarmOnly:  *alarm,
		temp:       *temp,
		resolution: *res,
		palette:    ansi256.Default,
	})
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(os.Stderr, "no device found")
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		log.Fatalf("owscan: %v", err)
	}
}
