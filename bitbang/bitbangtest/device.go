// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbangtest

import (
	"github.com/GermanBionicSystems/onewire/rom"
	"periph.io/x/conn/v3/onewire"
)

// Handler implements the function commands of a simulated device, once the
// ROM command selected it.
type Handler interface {
	// Reset is called on every reset pulse.
	Reset()
	// Write receives a byte from the master and returns the bytes the device
	// answers with, if any. Read slots with nothing to answer read as 1.
	Write(b byte) []byte
}

// Alarmer is implemented by a Handler that decides itself whether the device
// answers the alarm search.
type Alarmer interface {
	Alarm() bool
}

type state int

const (
	idle state = iota
	romCommand
	searching
	matching
	function
)

// Device is a simulated 1-wire device.
type Device struct {
	// Addr is the ROM code. It is used as is, so it can carry a bad CRC.
	Addr onewire.Address
	// Alarm makes the device answer the alarm search. It is ignored when the
	// Handler implements Alarmer.
	Alarm bool
	// Handler handles the function commands. Nil ignores them.
	Handler Handler
	// DropAt, when positive, disconnects the device when a search reaches
	// this bit.
	DropAt int
	// Gone is a disconnected device: it doesn't take part in anything.
	Gone bool

	state   state
	rx      byte
	rxBits  int
	tx      []bool
	bit     int // search bit
	phase   int // search step within the bit: id, complement, direction
	matched int
}

func (d *Device) reset() bool {
	if d.Gone {
		return false
	}
	d.state = romCommand
	d.rx, d.rxBits = 0, 0
	d.tx = nil
	d.bit, d.phase, d.matched = 0, 0, 0
	if d.Handler != nil {
		d.Handler.Reset()
	}
	return true
}

// slot runs one time slot. one is true for a short pulse, which is either a
// written 1 or a read slot. It returns true when the device holds the line
// low.
func (d *Device) slot(one bool) bool {
	if d.Gone || d.state == idle {
		return false
	}
	if len(d.tx) != 0 {
		b := d.tx[0]
		d.tx = d.tx[1:]
		return !b
	}
	if d.state == searching {
		return d.search(one)
	}
	if one {
		d.rx |= 1 << d.rxBits
	}
	d.rxBits++
	if d.rxBits == 8 {
		b := d.rx
		d.rx, d.rxBits = 0, 0
		d.receive(b)
	}
	return false
}

func (d *Device) search(one bool) bool {
	own := (uint64(d.Addr)>>uint(d.bit))&1 == 1
	switch d.phase {
	case 0:
		if d.DropAt > 0 && d.bit == d.DropAt {
			d.Gone = true
			return false
		}
		d.phase = 1
		return !own
	case 1:
		d.phase = 2
		return own
	default:
		d.phase = 0
		if one != own {
			d.state = idle
			return false
		}
		d.bit++
		if d.bit == 64 {
			d.state = function
		}
		return false
	}
}

func (d *Device) receive(b byte) {
	switch d.state {
	case romCommand:
		switch b {
		case rom.SearchROM:
			d.state = searching
		case rom.AlarmSearch:
			if d.alarming() {
				d.state = searching
			} else {
				d.state = idle
			}
		case rom.ReadROM:
			d.send(rom8(d.Addr))
			d.state = function
		case rom.MatchROM:
			d.state = matching
		case rom.SkipROM:
			d.state = function
		default:
			d.state = idle
		}
	case matching:
		if b != byte(d.Addr>>(8*uint(d.matched))) {
			d.state = idle
			return
		}
		if d.matched++; d.matched == 8 {
			d.state = function
		}
	case function:
		if d.Handler != nil {
			d.send(d.Handler.Write(b))
		}
	}
}

func (d *Device) alarming() bool {
	if a, ok := d.Handler.(Alarmer); ok {
		return a.Alarm()
	}
	return d.Alarm
}

func (d *Device) send(p []byte) {
	for _, b := range p {
		for i := range 8 {
			d.tx = append(d.tx, b>>uint(i)&1 == 1)
		}
	}
}

func rom8(a onewire.Address) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(a >> (8 * uint(i)))
	}
	return b
}

// Echo answers every byte written with the same byte.
type Echo struct{}

// Reset implements Handler.
func (Echo) Reset() {}

// Write implements Handler.
func (Echo) Write(b byte) []byte {
	return []byte{b}
}
