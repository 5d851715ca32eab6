// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/host/v3/cpu"
)

// Pin is the open-drain data line of a 1-wire bus as seen from the master.
type Pin interface {
	// Low drives the line low.
	Low() error
	// Release stops driving the line so the pull-up resistor or a device
	// decides its level.
	Release() error
	// Read samples the line.
	Read() gpio.Level
}

// PowerPin is a Pin that can also drive the line high, to feed parasite
// powered devices during a strong pull-up.
type PowerPin interface {
	Pin
	High() error
}

// Delayer blocks for at least the given duration.
//
// The durations are in the microsecond range so a sleeping implementation is
// far too coarse on most hosts.
type Delayer interface {
	Delay(d time.Duration)
}

// DelayFunc adapts a function to Delayer.
type DelayFunc func(d time.Duration)

// Delay implements Delayer.
func (f DelayFunc) Delay(d time.Duration) {
	f(d)
}

// SpinDelay busy loops on the host CPU.
var SpinDelay Delayer = DelayFunc(cpu.Nanospin)

// GPIO returns a Pin emulating an open-drain output on p.
//
// Low drives p low, Release turns it into an input with the given pull. Pass
// gpio.Float when the bus has an external pull-up resistor, which it should.
// High drives p high and is used for the strong pull-up.
func GPIO(p gpio.PinIO, pull gpio.Pull) *GPIOPin {
	return &GPIOPin{p: p, pull: pull}
}

// GPIOPin is the Pin returned by GPIO.
type GPIOPin struct {
	p    gpio.PinIO
	pull gpio.Pull
}

// Low implements Pin.
func (g *GPIOPin) Low() error {
	return g.p.Out(gpio.Low)
}

// Release implements Pin.
func (g *GPIOPin) Release() error {
	return g.p.In(g.pull, gpio.NoEdge)
}

// Read implements Pin.
func (g *GPIOPin) Read() gpio.Level {
	return g.p.Read()
}

// High implements PowerPin.
func (g *GPIOPin) High() error {
	return g.p.Out(gpio.High)
}

// Real returns the underlying pin.
func (g *GPIOPin) Real() gpio.PinIO {
	return g.p
}

func (g *GPIOPin) String() string {
	return g.p.String()
}

var _ PowerPin = &GPIOPin{}
