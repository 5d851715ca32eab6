// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ds18b20 controls Maxim DS18B20, DS18S20 and DS1822 temperature
// sensors on a 1-wire bus.
//
// The bus can be any onewire.Bus, a bitbang.Dev on a GPIO as well as a
// ds248x.Dev I²C bridge.
//
// # Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS18B20.pdf
package ds18b20

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/onewire/crc8"
	"github.com/GermanBionicSystems/onewire/rom"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"
)

// Family code of the specific device type
type Family byte

func (f Family) String() string {
	switch f {
	case DS18S20:
		return "DS18S20"
	case DS1822:
		return "DS1822"
	case DS18B20:
		return "DS18B20"
	default:
		return "unknown"
	}
}

const (
	DS18S20 Family = 0x10
	DS1822  Family = 0x22
	DS18B20 Family = 0x28
)

// Function commands, datasheet p.12.
const (
	cmdConvert         = 0x44
	cmdWriteScratchpad = 0x4e
	cmdReadScratchpad  = 0xbe
	cmdCopyScratchpad  = 0x48
	cmdRecall          = 0xb8
	cmdReadPower       = 0xb4
)

// ConvertAll performs a conversion on all DS18B20 devices on the bus.
//
// During the conversion it places the bus in strong pull-up mode to power
// parasitic devices and returns when the conversions have completed. This time
// period is determined by the maximum resolution of all devices on the bus and
// must be provided.
//
// ConvertAll uses time.Sleep to wait for the conversion to finish, which takes
// from 94ms to 752ms.
func ConvertAll(o onewire.Bus, maxResolutionBits int) error {
	if maxResolutionBits < 9 || maxResolutionBits > 12 {
		return errors.New("ds18b20: invalid maxResolutionBits")
	}
	if err := StartAll(o); err != nil {
		return err
	}
	conversionSleep(maxResolutionBits)
	return nil
}

// StartAll starts a conversion on all DS18B20 devices on the bus.
// Similar to ConvertAll but returns without waiting for conversion to finish.
// To be used in conjunction with LastTemp() function. Conversion timing must be
// handled by other means.
func StartAll(o onewire.Bus) error {
	return o.Tx([]byte{rom.SkipROM, cmdConvert}, nil, onewire.StrongPullup)
}

// AlarmSearch returns the devices whose last conversion was at or beyond one
// of their alarm thresholds.
//
// Run ConvertAll first: the alarm flag is only updated by a conversion.
func AlarmSearch(o onewire.BusSearcher) ([]onewire.Address, error) {
	return rom.Search(o, true)
}

// New returns an object that communicates over 1-wire to the DS18B20 sensor
// with the specified 64-bit address.
//
// resolutionBits must be in the range 9..12 and determines how many bits of
// precision the readings have. The resolution affects the conversion time:
// 9bits:94ms, 10bits:188ms, 11bits:375ms, 12bits:750ms. It is ignored on a
// DS18S20, which always converts at 9 bits in 750ms.
//
// A resolution of 10 bits corresponds to 0.25C and tends to be a good
// compromise between conversion time and the device's inherent accuracy of
// +/-0.5C.
func New(o onewire.Bus, addr onewire.Address, resolutionBits int) (*Dev, error) {
	if resolutionBits < 9 || resolutionBits > 12 {
		return nil, errors.New("ds18b20: invalid resolutionBits")
	}
	r, err := rom.FromAddress(addr)
	if err != nil {
		return nil, err
	}
	switch Family(r.Family) {
	case DS18B20, DS18S20, DS1822:
	default:
		return nil, fmt.Errorf("ds18b20: %s is not a thermometer", r)
	}

	d := &Dev{onewire: onewire.Dev{Bus: o, Addr: addr}, resolution: resolutionBits}

	// Start by reading the scratchpad memory, this will tell us whether we can
	// talk to the device correctly and also how it's configured.
	spad, err := d.readScratchpad()
	if err != nil {
		return nil, err
	}
	if d.Family() == DS18S20 {
		d.resolution = 12
		return d, nil
	}

	// Change the resolution, if necessary (datasheet p.6).
	if int(spad[4]>>5&3) != resolutionBits-9 {
		if err := d.writeScratchpad(spad[2], spad[3]); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Dev is a handle to a Dallas Semi / Maxim DS18B20 temperature sensor on a
// 1-wire bus.
type Dev struct {
	onewire    onewire.Dev // device on 1-wire bus
	resolution int         // resolution in bits (9..12)

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func (d *Dev) Family() Family {
	return Family(d.onewire.Addr & 0xFF)
}

func (d *Dev) String() string {
	return d.Family().String() + "{" + d.onewire.String() + "}"
}

// Resolution returns the resolution in bits.
func (d *Dev) Resolution() int {
	return d.resolution
}

// Halt implements conn.Resource.
//
// It stops SenseContinuous.
func (d *Dev) Halt() error {
	d.mu.Lock()
	stop := d.stop
	d.stop = nil
	d.mu.Unlock()
	if stop != nil {
		close(stop)
		d.wg.Wait()
	}
	return nil
}

// Sense implements physic.SenseEnv.
func (d *Dev) Sense(e *physic.Env) error {
	if err := d.onewire.TxPower([]byte{cmdConvert}, nil); err != nil {
		return err
	}
	conversionSleep(d.resolution)
	t, err := d.LastTemp()
	if err != nil {
		return err
	}
	e.Temperature = t
	return nil
}

// SenseContinuous implements physic.SenseEnv.
//
// It performs a conversion every interval until Halt is called. The interval
// includes the conversion time. Failed conversions are skipped. Nothing else
// must use the bus in the meantime unless the bus does its own locking.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval <= 0 {
		return nil, errors.New("ds18b20: invalid interval")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("ds18b20: SenseContinuous already running")
	}
	d.stop = make(chan struct{})
	c := make(chan physic.Env)
	d.wg.Add(1)
	go d.sense(interval, d.stop, c)
	return c, nil
}

// Precision implements physic.SenseEnv.
func (d *Dev) Precision(e *physic.Env) {
	if d.Family() == DS18S20 {
		e.Temperature = physic.Kelvin / 2
		return
	}
	e.Temperature = physic.Kelvin / physic.Temperature(1<<uint(d.resolution-8))
}

// LastTemp reads the temperature resulting from the last conversion from the
// device.
//
// It is useful in combination with ConvertAll.
func (d *Dev) LastTemp() (physic.Temperature, error) {
	// Read the scratchpad memory.
	spad, err := d.readScratchpad()
	if err != nil {
		return 0, err
	}

	c := d.parseTemperature(spad)

	// The device powers up with a value of 85°C, so if we read that odds are
	// very high that either no conversion was performed or that the conversion
	// failed due to lack of power. This prevents reading a temp of exactly 85°C,
	// but that seems like the right tradeoff.
	if c == 85*physic.Celsius+physic.ZeroCelsius {
		return 0, busError("ds18b20: has not performed a temperature conversion (insufficient pull-up?)")
	}

	return c, nil
}

// SetAlarm sets the alarm thresholds and stores them in EEPROM along with the
// resolution.
//
// The thresholds have a 1°C resolution and are truncated. A device is in
// alarm state when a conversion yields a temperature at or below low, or at or
// above high; see AlarmSearch.
func (d *Dev) SetAlarm(low, high physic.Temperature) error {
	l, err := toThreshold(low)
	if err != nil {
		return err
	}
	h, err := toThreshold(high)
	if err != nil {
		return err
	}
	if l > h {
		return errors.New("ds18b20: low alarm threshold above high threshold")
	}
	return d.writeScratchpad(byte(h), byte(l))
}

// Alarm returns the alarm thresholds currently in the scratchpad.
func (d *Dev) Alarm() (low, high physic.Temperature, err error) {
	spad, err := d.readScratchpad()
	if err != nil {
		return 0, 0, err
	}
	return fromThreshold(spad[3]), fromThreshold(spad[2]), nil
}

// Recall reloads the alarm thresholds and the resolution from EEPROM into the
// scratchpad.
func (d *Dev) Recall() error {
	if err := d.onewire.Tx([]byte{cmdRecall}, nil); err != nil {
		return err
	}
	sleep(time.Millisecond)
	if d.Family() == DS18S20 {
		return nil
	}
	spad, err := d.readScratchpad()
	if err != nil {
		return err
	}
	d.resolution = int(spad[4]>>5&3) + 9
	return nil
}

// Parasitic returns true if the device is parasite powered, that is with its
// Vdd pin grounded. Such devices need a strong pull-up during conversions.
func (d *Dev) Parasitic() (bool, error) {
	var r [1]byte
	if err := d.onewire.Tx([]byte{cmdReadPower}, r[:]); err != nil {
		return false, err
	}
	// Parasite powered devices pull the first read slot low.
	return r[0]&1 == 0, nil
}

// parseTemperature from scratchpad and handle special calculation for DS18S20
func (d *Dev) parseTemperature(spad []byte) physic.Temperature {
	// spad[1] is MSB and spad[0] is LSB of the raw temperature value
	rawTemp := int16(spad[1])<<8 | int16(spad[0])

	if d.Family() == DS18S20 && spad[7] != 0 {
		// The 0.5°C bit is replaced by the count remaining, for 1/16°C:
		// TEMPERATURE = TEMP_READ - 0.25 + (COUNT_PER_C - COUNT_REMAIN) / COUNT_PER_C
		// with COUNT_PER_C = spad[7] = 16 and COUNT_REMAIN = spad[6].
		rawTemp = ((rawTemp & ^int16(1)) << 3) + 12 - int16(spad[6])
	}
	// rawTemp has 4 fractional bits, datasheet p.4.
	v := physic.Temperature(rawTemp)
	return v*physic.Kelvin/16 + physic.ZeroCelsius
}

func (d *Dev) sense(interval time.Duration, stop <-chan struct{}, c chan<- physic.Env) {
	defer d.wg.Done()
	defer close(c)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		var e physic.Env
		if err := d.Sense(&e); err == nil {
			select {
			case c <- e:
			case <-stop:
				return
			}
		}
		select {
		case <-stop:
			return
		case <-t.C:
		}
	}
}

// writeScratchpad writes TH, TL and the configuration register, then copies
// them to EEPROM.
func (d *Dev) writeScratchpad(th, tl byte) error {
	w := []byte{cmdWriteScratchpad, th, tl}
	if d.Family() != DS18S20 {
		w = append(w, byte((d.resolution-9)<<5)|0x1f)
	}
	if err := d.onewire.Tx(w, nil); err != nil {
		return err
	}
	// Copy the scratchpad to EEPROM to save the values.
	if err := d.onewire.TxPower([]byte{cmdCopyScratchpad}, nil); err != nil {
		return err
	}
	// Wait for the write to complete.
	sleep(10 * time.Millisecond)
	return nil
}

// readScratchpad reads the 9 bytes of scratchpad and checks the CRC.
// It returns the 8 bytes of scratchpad data (excluding the CRC byte).
func (d *Dev) readScratchpad() ([]byte, error) {
	var spad [9]byte
	if err := d.onewire.Tx([]byte{cmdReadScratchpad}, spad[:]); err != nil {
		return nil, err
	}
	if !crc8.Validate(spad[:]) {
		for _, s := range spad {
			if s != 0xff {
				return nil, &rom.CRCError{Data: spad[:]}
			}
		}
		return nil, busError("ds18b20: device did not respond")
	}
	return spad[:8], nil
}

func toThreshold(t physic.Temperature) (int8, error) {
	c := (t - physic.ZeroCelsius) / physic.Celsius
	if c < -55 || c > 125 {
		return 0, fmt.Errorf("ds18b20: alarm threshold %s out of range", t)
	}
	return int8(c), nil
}

func fromThreshold(b byte) physic.Temperature {
	return physic.Temperature(int8(b))*physic.Celsius + physic.ZeroCelsius
}

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

// conversionSleep sleeps for the time a conversion takes, which depends
// on the resolution:
// 9bits:94ms, 10bits:188ms, 11bits:376ms, 12bits:752ms, datasheet p.6.
func conversionSleep(bits int) {
	sleep((94 << uint(bits-9)) * time.Millisecond)
}

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
