// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/GermanBionicSystems/onewire/rom"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/onewire"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	Timing Timing
	// Delay times the slots. Defaults to SpinDelay.
	Delay Delayer
	// Logger receives search progress and bus faults. Defaults to no logging.
	Logger *slog.Logger
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{Timing: StandardTiming}

// ErrBusNotHigh is returned by Reset when the pull-up resistor doesn't bring
// the idle line high. The resistor is missing or the line is shorted to
// ground.
var ErrBusNotHigh error = shortedBusError("bitbang: bus not pulled high, check the pull-up resistor")

// highTimeout is how long Reset waits for the released line to go high.
const (
	highTimeout = 250 * time.Microsecond
	highPoll    = 2 * time.Microsecond
)

// New returns a 1-wire bus master driving p.
//
// The line is released so it idles high.
func New(p Pin, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if err := opts.Timing.Validate(); err != nil {
		return nil, err
	}
	d := &Dev{pin: p, t: opts.Timing, delay: opts.Delay, log: opts.Logger}
	if d.delay == nil {
		d.delay = SpinDelay
	}
	if d.log == nil {
		d.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := p.Release(); err != nil {
		return nil, fmt.Errorf("bitbang: failed to release the bus: %w", err)
	}
	return d, nil
}

// Dev is a 1-wire bus master bit-banged over a single open-drain line.
//
// A Dev is not safe for concurrent use. It owns its Pin: nothing else must
// touch the line while a transaction is in progress.
type Dev struct {
	pin   Pin
	t     Timing
	delay Delayer
	log   *slog.Logger
}

func (d *Dev) String() string {
	if s, ok := d.pin.(fmt.Stringer); ok {
		return "bitbang{" + s.String() + "}"
	}
	return "bitbang"
}

// Halt implements conn.Resource.
//
// It releases the line, which also ends a strong pull-up.
func (d *Dev) Halt() error {
	return d.pin.Release()
}

// Q implements onewire.Pins.
//
// It returns gpio.INVALID unless the Pin was built with GPIO.
func (d *Dev) Q() gpio.PinIO {
	if g, ok := d.pin.(*GPIOPin); ok {
		return g.Real()
	}
	return gpio.INVALID
}

// Reset sends a reset pulse and reports whether at least one device answered
// with a presence pulse.
func (d *Dev) Reset() (bool, error) {
	d.wait(d.t.ResetDelay)
	if err := d.pin.Release(); err != nil {
		return false, err
	}
	if err := d.waitHigh(); err != nil {
		return false, err
	}
	if err := d.pin.Low(); err != nil {
		return false, err
	}
	d.wait(d.t.ResetLow)
	if err := d.pin.Release(); err != nil {
		return false, err
	}
	d.wait(d.t.PresenceSample)
	present := d.pin.Read() == gpio.Low
	d.wait(d.t.ResetRecovery)
	return present, nil
}

// WriteBit sends one bit in a write time slot.
func (d *Dev) WriteBit(b bool) error {
	low, release := d.t.WriteZeroLow, d.t.WriteZeroRecovery
	if b {
		low, release = d.t.WriteOneLow, d.t.WriteOneRelease
	}
	if err := d.pin.Low(); err != nil {
		return err
	}
	d.wait(low)
	if err := d.pin.Release(); err != nil {
		return err
	}
	d.wait(release)
	return nil
}

// ReadBit runs a read time slot and returns the bit the devices sent.
//
// With several devices transmitting the result is the logical AND of their
// bits. With none it is true.
func (d *Dev) ReadBit() (bool, error) {
	if err := d.pin.Low(); err != nil {
		return false, err
	}
	d.wait(d.t.ReadLow)
	if err := d.pin.Release(); err != nil {
		return false, err
	}
	d.wait(d.t.ReadSample)
	b := d.pin.Read() == gpio.High
	d.wait(d.t.ReadRecovery)
	return b, nil
}

// WriteByte sends b least significant bit first.
func (d *Dev) WriteByte(b byte) error {
	for range 8 {
		if err := d.WriteBit(b&1 != 0); err != nil {
			return err
		}
		b >>= 1
	}
	return nil
}

// ReadByte reads a byte sent least significant bit first.
func (d *Dev) ReadByte() (byte, error) {
	var b byte
	for i := range 8 {
		v, err := d.ReadBit()
		if err != nil {
			return 0, err
		}
		if v {
			b |= 1 << i
		}
	}
	return b, nil
}

// Write sends all of p.
func (d *Dev) Write(p []byte) error {
	for _, b := range p {
		if err := d.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

// Read fills p.
func (d *Dev) Read(p []byte) error {
	for i := range p {
		b, err := d.ReadByte()
		if err != nil {
			return err
		}
		p[i] = b
	}
	return nil
}

// Tx implements onewire.Bus.
//
// It resets the bus, sends w then reads r. It returns rom.ErrNoPresence when
// no device answers the reset. With onewire.StrongPullup the line is then
// driven high until the next operation on the bus.
func (d *Dev) Tx(w, r []byte, power onewire.Pullup) error {
	present, err := d.Reset()
	if err != nil {
		d.log.Warn("onewire reset failed", "bus", d.String(), "err", err)
		return err
	}
	if !present {
		return rom.ErrNoPresence
	}
	if err := d.Write(w); err != nil {
		return err
	}
	if err := d.Read(r); err != nil {
		return err
	}
	if power == onewire.StrongPullup {
		p, ok := d.pin.(PowerPin)
		if !ok {
			return errors.New("bitbang: pin cannot drive a strong pull-up")
		}
		return p.High()
	}
	return nil
}

// SearchTriplet implements onewire.BusSearcher.
//
// It reads the bit and its complement from the devices still participating
// in the search, then writes the chosen bit back. When both values are
// present direction picks the branch.
func (d *Dev) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	var tr onewire.TripletResult
	id, err := d.ReadBit()
	if err != nil {
		return tr, err
	}
	comp, err := d.ReadBit()
	if err != nil {
		return tr, err
	}
	// A device sending 0 pulls the line low, so a low read means someone has
	// that bit.
	tr.GotZero = !id
	tr.GotOne = !comp
	switch {
	case tr.GotZero && tr.GotOne:
		tr.Taken = direction & 1
	case tr.GotZero:
		tr.Taken = 0
	default:
		// Either all remaining devices have a 1, or none answered and the
		// caller aborts the search anyway.
		tr.Taken = 1
	}
	return tr, d.WriteBit(tr.Taken == 1)
}

// Search implements onewire.Bus.
func (d *Dev) Search(alarmOnly bool) ([]onewire.Address, error) {
	return d.Searcher(alarmOnly).Collect()
}

// Devices returns the devices on the bus as a lazy sequence, one reset pass
// per device. It can be abandoned at any time.
func (d *Dev) Devices(alarmOnly bool) iter.Seq2[onewire.Address, error] {
	return d.Searcher(alarmOnly).All()
}

// Searcher returns a new search over the bus, logging to the Dev's logger.
func (d *Dev) Searcher(alarmOnly bool) *rom.Searcher {
	s := rom.NewSearcher(d, alarmOnly)
	s.SetLogger(d.log)
	return s
}

// waitHigh polls the released line until the pull-up brings it high.
func (d *Dev) waitHigh() error {
	for elapsed := time.Duration(0); elapsed < highTimeout; elapsed += highPoll {
		if d.pin.Read() == gpio.High {
			return nil
		}
		d.delay.Delay(highPoll)
	}
	return ErrBusNotHigh
}

func (d *Dev) wait(t time.Duration) {
	if t > 0 {
		d.delay.Delay(t)
	}
}

type shortedBusError string

func (e shortedBusError) Error() string   { return string(e) }
func (e shortedBusError) IsShorted() bool { return true }
func (e shortedBusError) BusError() bool  { return true }

var _ conn.Resource = &Dev{}
var _ onewire.Bus = &Dev{}
var _ onewire.BusSearcher = &Dev{}
var _ onewire.Pins = &Dev{}
