// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds248x controls a Maxim DS2482-100, DS2482-800 or DS2483 1-wire
// bus master connected over I²C.
//
// The bridge generates the 1-wire time slots in hardware, which makes it a
// good alternative to package bitbang on hosts that cannot busy loop
// reliably. Both implement onewire.BusSearcher and share the ROM search of
// package rom.
//
// # Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS2482-100.pdf
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS2483.pdf
package ds248x

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/GermanBionicSystems/onewire/rom"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/onewire"
)

// PupOhm controls the strength of the passive pull-up resistor
// on the 1-wire data line. The default value is 1000Ω.
type PupOhm uint8

const (
	// R500Ω passive pull-up resistor.
	R500Ω PupOhm = 4
	// R1000Ω passive pull-up resistor.
	R1000Ω PupOhm = 6
)

// Opts contains options to pass to the constructor.
type Opts struct {
	PassivePullup bool // false:use active pull-up, true: disable active pullup

	// The following options are only available on the ds2483 (not ds2482-100).
	// The actual value used is the closest possible value (rounded up or down).
	ResetLow       time.Duration // reset low time, range 440μs..740μs
	PresenceDetect time.Duration // presence detect sample time, range 58μs..76μs
	Write0Low      time.Duration // write zero low time, range 52μs..70μs
	Write0Recovery time.Duration // write zero recovery time, range 2750ns..25250ns
	PullupRes      PupOhm        // passive pull-up resistance

	// Logger receives search progress. Defaults to no logging.
	Logger *slog.Logger
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	PassivePullup:  false,
	ResetLow:       560 * time.Microsecond,
	PresenceDetect: 68 * time.Microsecond,
	Write0Low:      64 * time.Microsecond,
	Write0Recovery: 5250 * time.Nanosecond,
	PullupRes:      R1000Ω,
}

// New returns a device object that communicates over I²C to the DS2482/DS2483
// controller.
//
// This device object implements onewire.Bus and can be used to
// access devices on the bus.
//
// Valid I²C addresses are 0x18, 0x19, 0x20 and 0x21.
func New(i i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	switch addr {
	case 0x18, 0x19, 0x20, 0x21:
	default:
		return nil, errors.New("ds248x: given address not supported by device")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{i2c: &i2c.Dev{Bus: i, Addr: addr}, log: opts.Logger}
	if d.log == nil {
		d.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := d.init(opts); err != nil {
		return nil, err
	}
	return d, nil
}

// Dev is a handle to a ds248x device and it implements the onewire.Bus
// interface.
//
// Dev implements a persistent error model: if a fatal error is encountered it
// places itself into an error state and immediately returns the last error on
// all subsequent calls. A fresh Dev, which reinitializes the hardware, must be
// created to proceed.
//
// A persistent error is only set when there is a problem with the ds248x
// device itself (or the I²C bus used to access it). Errors on the 1-wire bus
// do not cause persistent errors and implement the onewire.BusError interface
// to indicate this fact.
type Dev struct {
	sync.Mutex               // lock for the bus while a transaction is in progress
	i2c        conn.Conn     // i2c device handle for the ds248x
	variant    variant       // chip detected by init
	confReg    byte          // value written to configuration register
	tReset     time.Duration // time to perform a 1-wire reset
	tSlot      time.Duration // time to perform a 1-bit 1-wire read/write
	log        *slog.Logger
	err        error // persistent error, device will no longer operate
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.variant, d.i2c)
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Tx performs a bus transaction, sending and receiving bytes, and ending by
// pulling the bus high either weakly or strongly depending on the value of
// power.
//
// A strong pull-up is typically required to power temperature conversion or
// EEPROM writes. It returns rom.ErrNoPresence when no device answers the
// reset.
func (d *Dev) Tx(w, r []byte, power onewire.Pullup) error {
	d.Lock()
	defer d.Unlock()

	if present, err := d.reset(); err != nil {
		return err
	} else if !present {
		return rom.ErrNoPresence
	}

	// The strong pull-up must be armed before the last byte, the chip
	// enables it as soon as that byte completes.
	last := len(w) + len(r) - 1
	for i, b := range w {
		if power == onewire.StrongPullup && i == last {
			d.strongPullup()
		}
		d.i2cTx([]byte{cmd1WWrite, b}, nil)
		d.waitIdle(7 * d.tSlot)
	}
	for i := range r {
		if power == onewire.StrongPullup && len(w)+i == last {
			d.strongPullup()
		}
		d.i2cTx([]byte{cmd1WRead}, nil)
		d.waitIdle(7 * d.tSlot)
		d.i2cTx([]byte{cmdSetReadPtr, regRDR}, r[i:i+1])
	}
	return d.err
}

// Search performs a "search" cycle on the 1-wire bus and returns the addresses
// of all devices on the bus if alarmOnly is false and of all devices in alarm
// state if alarmOnly is true.
//
// If an error occurs during the search the already-discovered devices are
// returned with the error.
func (d *Dev) Search(alarmOnly bool) ([]onewire.Address, error) {
	return d.Searcher(alarmOnly).Collect()
}

// Devices returns the devices on the bus as a lazy sequence.
func (d *Dev) Devices(alarmOnly bool) iter.Seq2[onewire.Address, error] {
	return d.Searcher(alarmOnly).All()
}

// Searcher returns a new search over the bus.
func (d *Dev) Searcher(alarmOnly bool) *rom.Searcher {
	s := rom.NewSearcher(d, alarmOnly)
	s.SetLogger(d.log)
	return s
}

// SearchTriplet performs a single bit search triplet command on the bus, waits
// for it to complete and returns the outcome.
//
// SearchTriplet should not be used directly, use Search instead.
func (d *Dev) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	d.Lock()
	defer d.Unlock()
	var dir byte
	if direction != 0 {
		dir = statusDIR
	}
	d.i2cTx([]byte{cmd1WTriplet, dir}, nil)
	// In theory 3*tSlot but the I²C transfer overlaps it.
	status := d.waitIdle(0)
	tr := onewire.TripletResult{
		GotZero: status&statusSBR == 0,
		GotOne:  status&statusTSB == 0,
		Taken:   status >> 7,
	}
	return tr, d.err
}

//

// reset issues a reset signal on the 1-wire bus and returns true if any device
// responded with a presence pulse.
func (d *Dev) reset() (bool, error) {
	d.i2cTx([]byte{cmd1WReset}, nil)
	status := d.waitIdle(d.tReset)
	if d.err != nil {
		return false, d.err
	}
	if status&statusSD != 0 {
		return false, shortedBusError("ds248x: bus has a short")
	}
	return status&statusPPD != 0, nil
}

func (d *Dev) strongPullup() {
	d.i2cTx([]byte{cmdWriteConfig, d.confReg&^(confSPU<<4) | confSPU}, nil)
}

// i2cTx is a helper function to call i2c.Tx and handle the error by persisting
// it.
func (d *Dev) i2cTx(w, r []byte) {
	if d.err != nil {
		return
	}
	d.err = d.i2c.Tx(w, r)
}

// waitIdle waits for the one wire bus to be idle.
//
// It initially sleeps for the delay and then polls the status register and
// sleeps for a tenth of the delay each time the status register indicates that
// the bus is still busy. The last read status byte is returned.
//
// An overall timeout of 3ms is applied to the whole procedure. waitIdle uses
// the persistent error model and returns 0 if there is an error.
func (d *Dev) waitIdle(delay time.Duration) byte {
	if d.err != nil {
		return 0
	}
	tOut := time.Now().Add(3 * time.Millisecond)
	sleep(delay)
	for {
		var status [1]byte
		d.i2cTx(nil, status[:])
		// This also returns if d.err != nil since status[0] is then 0.
		if status[0]&status1WB == 0 {
			return status[0]
		}
		// A timeout is an error with the ds248x, not with the devices on the
		// 1-wire bus, hence it is persistent.
		if time.Now().After(tOut) {
			d.err = errors.New("ds248x: timeout waiting for bus cycle to finish")
			return 0
		}
		sleep(delay / 10)
	}
}

func (d *Dev) init(opts *Opts) error {
	d.tReset = 2 * opts.ResetLow
	d.tSlot = opts.Write0Low + opts.Write0Recovery

	if err := d.i2c.Tx([]byte{cmdReset}, nil); err != nil {
		return fmt.Errorf("ds248x: error while resetting: %w", err)
	}

	// Confirm that we have a responding ds248x.
	var stat [1]byte
	if err := d.i2c.Tx([]byte{cmdSetReadPtr, regStatus}, stat[:]); err != nil {
		return fmt.Errorf("ds248x: error while reading status register: %w", err)
	}
	if stat[0]&^0x08 != statusRST {
		return fmt.Errorf("ds248x: invalid status register value: %#x, expected 0x10 or 0x18", stat[0])
	}

	// Writing the configuration gets the chip out of reset state; only the
	// bottom nibble reads back.
	d.confReg = 0xe0 | confAPU // standard speed, no strong pull-up, no power-down
	if opts.PassivePullup {
		d.confReg ^= confAPU<<4 | confAPU
	}
	var dcr [1]byte
	if err := d.i2c.Tx([]byte{cmdWriteConfig, d.confReg}, dcr[:]); err != nil {
		return fmt.Errorf("ds248x: error while writing device config register: %w", err)
	}
	if dcr[0] != d.confReg&0x0f {
		return fmt.Errorf("ds248x: failure to write device config register, wrote %#x got %#x back",
			d.confReg, dcr[0])
	}

	// Only the ds2483 has a port configuration register and only the
	// ds2482-800 a channel selection register; the read pointer can't be set
	// to a missing one.
	if d.i2c.Tx([]byte{cmdSetReadPtr, regPCR}, nil) == nil {
		d.variant = ds2483
		buf := []byte{cmdAdjPort,
			byte(0x00 + ((opts.ResetLow/time.Microsecond - 430) / 20 & 0x0f)),
			byte(0x20 + ((opts.PresenceDetect/time.Microsecond - 55) / 2 & 0x0f)),
			byte(0x40 + ((opts.Write0Low/time.Microsecond - 51) / 2 & 0x0f)),
			byte(0x60 + (((opts.Write0Recovery-1250)/2500 + 5) & 0x0f)),
			byte(0x80 + (opts.PullupRes & 0x0f)),
		}
		if err := d.i2c.Tx(buf, nil); err != nil {
			return fmt.Errorf("ds248x: error while setting port config values: %w", err)
		}
		return nil
	}
	if d.i2c.Tx([]byte{cmdSetReadPtr, regCSR}, nil) == nil {
		d.variant = ds2482x800
		return d.ChannelSelect(0)
	}
	d.variant = ds2482x100
	return nil
}

// shortedBusError implements error and onewire.ShortedBusError.
type shortedBusError string

func (e shortedBusError) Error() string   { return string(e) }
func (e shortedBusError) IsShorted() bool { return true }
func (e shortedBusError) BusError() bool  { return true }

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ onewire.Bus = &Dev{}
var _ onewire.BusSearcher = &Dev{}
