// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbangtest

import (
	"github.com/GermanBionicSystems/onewire/crc8"
	"periph.io/x/conn/v3/physic"
)

// Thermometer is a Handler modelling the memory of a DS18B20.
//
// Conversions complete instantly.
type Thermometer struct {
	// Temp is the temperature the next conversion measures.
	Temp physic.Temperature
	// Parasitic makes the device report parasite power.
	Parasitic bool
	// Conversions counts the conversions performed.
	Conversions int

	spad    [9]byte
	eeprom  [3]byte
	alarm   bool
	writing int // scratchpad bytes still expected after a write command
}

// NewThermometer returns a device as it powers up, with the factory defaults
// TH=75°C, TL=70°C and 12 bits resolution.
func NewThermometer(t physic.Temperature) *Thermometer {
	th := &Thermometer{
		Temp:   t,
		spad:   [9]byte{0x50, 0x05, 0x4b, 0x46, 0x7f, 0xff, 0x0c, 0x10},
		eeprom: [3]byte{0x4b, 0x46, 0x7f},
	}
	th.spad[8] = crc8.Compute(th.spad[:8])
	return th
}

// Scratchpad returns the 9 bytes of scratchpad, CRC included.
func (t *Thermometer) Scratchpad() [9]byte {
	return t.spad
}

// EEPROM returns TH, TL and the configuration register as stored in EEPROM.
func (t *Thermometer) EEPROM() [3]byte {
	return t.eeprom
}

// Reset implements Handler.
func (t *Thermometer) Reset() {
	t.writing = 0
}

// Write implements Handler.
func (t *Thermometer) Write(b byte) []byte {
	if t.writing != 0 {
		i := 5 - t.writing
		if i == 4 {
			b = b&0x60 | 0x1f
		}
		t.spad[i] = b
		t.spad[8] = crc8.Compute(t.spad[:8])
		t.writing--
		return nil
	}
	switch b {
	case 0x44:
		t.convert()
	case 0xbe:
		s := t.spad
		return s[:]
	case 0x4e:
		t.writing = 3
	case 0x48:
		copy(t.eeprom[:], t.spad[2:5])
	case 0xb8:
		copy(t.spad[2:5], t.eeprom[:])
		t.spad[8] = crc8.Compute(t.spad[:8])
	case 0xb4:
		if t.Parasitic {
			return []byte{0}
		}
	}
	return nil
}

// Alarm implements Alarmer. It is set by a conversion whose result is at or
// beyond TH or TL.
func (t *Thermometer) Alarm() bool {
	return t.alarm
}

func (t *Thermometer) convert() {
	t.Conversions++
	raw := int16((t.Temp - physic.ZeroCelsius) * 16 / physic.Celsius)
	// Undefined low bits read as 0 at lower resolutions.
	drop := 3 - (t.spad[4]>>5)&3
	raw &^= 1<<drop - 1
	t.spad[0] = byte(raw)
	t.spad[1] = byte(raw >> 8)
	t.spad[8] = crc8.Compute(t.spad[:8])
	deg := int8(raw >> 4)
	t.alarm = deg >= int8(t.spad[2]) || deg <= int8(t.spad[3])
}
