// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"image/color"
	"io"

	"github.com/GermanBionicSystems/onewire/ds18b20"
	"github.com/GermanBionicSystems/onewire/rom"
	"github.com/maruel/ansi256"
	"periph.io/x/conn/v3/onewire"
)

type scanOpts struct {
	alarmOnly  bool
	temp       bool
	resolution int
	palette    *ansi256.Palette
}

// scan prints one line per device found on b. Thermometers get their
// temperature appended when o.temp is set.
func scan(w io.Writer, b onewire.BusSearcher, o *scanOpts) (int, error) {
	var roms []rom.ROM
	for addr, err := range rom.All(b, o.alarmOnly) {
		if err != nil {
			return len(roms), err
		}
		r, err := rom.FromAddress(addr)
		if err != nil {
			return len(roms), err
		}
		roms = append(roms, r)
	}

	temps := map[onewire.Address]string{}
	if o.temp {
		devs := map[onewire.Address]*ds18b20.Dev{}
		for _, r := range roms {
			if !isThermometer(r.Family) {
				continue
			}
			d, err := ds18b20.New(b, r.Address(), o.resolution)
			if err != nil {
				return len(roms), err
			}
			devs[r.Address()] = d
		}
		if len(devs) != 0 {
			if err := ds18b20.ConvertAll(b, o.resolution); err != nil {
				return len(roms), err
			}
		}
		for addr, d := range devs {
			t, err := d.LastTemp()
			if err != nil {
				temps[addr] = err.Error()
				continue
			}
			temps[addr] = t.String()
		}
	}

	for _, r := range roms {
		line := fmt.Sprintf("%s %s %-8s", o.palette.Block(familyColor(r.Family)), r, familyName(r.Family))
		if t, ok := temps[r.Address()]; ok {
			line += " " + t
		}
		if _, err := fmt.Fprintf(w, "%s\033[0m\n", line); err != nil {
			return len(roms), err
		}
	}
	return len(roms), nil
}

func isThermometer(f byte) bool {
	switch ds18b20.Family(f) {
	case ds18b20.DS18S20, ds18b20.DS1822, ds18b20.DS18B20:
		return true
	}
	return false
}

func familyName(f byte) string {
	if isThermometer(f) {
		return ds18b20.Family(f).String()
	}
	if n, ok := families[f]; ok {
		return n
	}
	return fmt.Sprintf("0x%02x", f)
}

// familyColor spreads family codes over the color wheel so devices of the
// same kind line up visually.
func familyColor(f byte) color.NRGBA {
	return color.NRGBA{R: f * 97, G: f * 57, B: 255 - f*31, A: 255}
}

// Common non thermometer families.
var families = map[byte]string{
	0x01: "DS2401",
	0x05: "DS2405",
	0x12: "DS2406",
	0x1d: "DS2423",
	0x20: "DS2450",
	0x26: "DS2438",
	0x29: "DS2408",
	0x2d: "DS2431",
	0x3a: "DS2413",
	0x3b: "DS1825",
	0x42: "DS28EA00",
}
