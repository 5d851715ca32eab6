// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitbangtest simulates a 1-wire bus at the electrical level, to test
// code built on package bitbang without hardware.
//
// Bus implements bitbang.PowerPin and bitbang.Delayer over a virtual clock:
// Delay advances the clock instead of sleeping, and the simulated devices
// decode the master's low pulses by their duration, as real devices do.
// Thresholds follow the standard speed.
package bitbangtest

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Thresholds used by the simulated devices, from the DS18B20 datasheet.
const (
	// ResetMin is the shortest low pulse taken as a reset.
	ResetMin = 480 * time.Microsecond
	// WriteOneMax is the longest low pulse taken as a 1 or a read slot.
	WriteOneMax = 15 * time.Microsecond
	// Hold is how long a device sending a 0 keeps the line low from the start
	// of a read slot.
	Hold = 30 * time.Microsecond
	// PresenceWait and PresenceLow describe the presence pulse relative to the
	// end of the reset pulse.
	PresenceWait = 15 * time.Microsecond
	PresenceLow  = 120 * time.Microsecond
)

// Bus is a simulated 1-wire bus with a pull-up resistor.
type Bus struct {
	sync.Mutex
	// Devices are the devices connected to the bus.
	Devices []*Device
	// Shorted ties the line to ground.
	Shorted bool

	// Resets counts the reset pulses seen.
	Resets int
	// Slots counts the time slots seen.
	Slots int
	// StrongPullups counts the calls to High.
	StrongPullups int

	now      time.Duration
	driving  bool
	high     bool
	lowSince time.Duration
	lows     []span
}

type span struct {
	from, to time.Duration
}

func (b *Bus) String() string {
	return fmt.Sprintf("bitbangtest{%d devices}", len(b.Devices))
}

// Now returns the virtual time elapsed since the bus was created.
func (b *Bus) Now() time.Duration {
	b.Lock()
	defer b.Unlock()
	return b.now
}

// Delay implements bitbang.Delayer. It advances the virtual clock.
func (b *Bus) Delay(d time.Duration) {
	b.Lock()
	defer b.Unlock()
	b.now += d
}

// Low implements bitbang.Pin.
func (b *Bus) Low() error {
	b.Lock()
	defer b.Unlock()
	b.high = false
	if !b.driving {
		b.driving = true
		b.lowSince = b.now
	}
	return nil
}

// Release implements bitbang.Pin.
//
// Releasing the line ends the master's low pulse, which the devices then
// decode.
func (b *Bus) Release() error {
	b.Lock()
	defer b.Unlock()
	b.release()
	return nil
}

// High implements bitbang.PowerPin.
func (b *Bus) High() error {
	b.Lock()
	defer b.Unlock()
	b.release()
	b.high = true
	b.StrongPullups++
	return nil
}

// Read implements bitbang.Pin.
func (b *Bus) Read() gpio.Level {
	b.Lock()
	defer b.Unlock()
	if b.Shorted || b.driving {
		return gpio.Low
	}
	for _, s := range b.lows {
		if b.now >= s.from && b.now < s.to {
			return gpio.Low
		}
	}
	return gpio.High
}

// StrongPullup reports whether the line is currently driven high.
func (b *Bus) StrongPullup() bool {
	b.Lock()
	defer b.Unlock()
	return b.high
}

func (b *Bus) release() {
	b.high = false
	if !b.driving {
		return
	}
	b.driving = false
	d := b.now - b.lowSince
	// Forget the pulses that ended.
	lows := b.lows[:0]
	for _, s := range b.lows {
		if s.to > b.now {
			lows = append(lows, s)
		}
	}
	b.lows = lows
	if d >= ResetMin {
		b.reset()
		return
	}
	b.Slots++
	for _, dev := range b.Devices {
		if dev.slot(d < WriteOneMax) {
			b.lows = append(b.lows, span{b.lowSince, b.lowSince + Hold})
		}
	}
}

func (b *Bus) reset() {
	b.Resets++
	b.lows = b.lows[:0]
	present := false
	for _, dev := range b.Devices {
		if dev.reset() {
			present = true
		}
	}
	if present {
		b.lows = append(b.lows, span{b.now + PresenceWait, b.now + PresenceWait + PresenceLow})
	}
}
