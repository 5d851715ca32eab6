// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbangtest

import (
	"testing"
	"time"

	"github.com/GermanBionicSystems/onewire/crc8"
	"github.com/GermanBionicSystems/onewire/rom"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

func TestBus_presence(t *testing.T) {
	b := &Bus{Devices: []*Device{{Addr: rom.New(0x28, [6]byte{1}).Address()}}}
	pulse(b, 480*time.Microsecond)
	if b.Resets != 1 {
		t.Fatal("expected a reset")
	}
	data := []struct {
		at   time.Duration
		want gpio.Level
	}{
		{10 * time.Microsecond, gpio.High},
		{20 * time.Microsecond, gpio.Low},
		{130 * time.Microsecond, gpio.Low},
		{140 * time.Microsecond, gpio.High},
	}
	start := b.Now()
	for _, line := range data {
		b.Delay(start + line.at - b.Now())
		if l := b.Read(); l != line.want {
			t.Errorf("%s after the reset: %s", line.at, l)
		}
	}
}

func TestBus_shorted(t *testing.T) {
	b := &Bus{Shorted: true}
	if b.Read() != gpio.Low {
		t.Fatal("a shorted line reads low")
	}
}

func TestBus_slots(t *testing.T) {
	d := &Device{Addr: rom.New(0x28, [6]byte{1}).Address(), Handler: Echo{}}
	b := &Bus{Devices: []*Device{d}}
	pulse(b, 500*time.Microsecond)
	b.Delay(500 * time.Microsecond)
	writeByte(b, rom.SkipROM)
	writeByte(b, 0x81)
	if got := readByte(b); got != 0x81 {
		t.Fatalf("echo = %#02x", got)
	}
	if b.Slots != 24 {
		t.Fatalf("%d slots", b.Slots)
	}
}

func TestBus_strongPullup(t *testing.T) {
	b := &Bus{}
	if err := b.High(); err != nil {
		t.Fatal(err)
	}
	if !b.StrongPullup() || b.Read() != gpio.High {
		t.Fatal("expected a strong pull-up")
	}
	_ = b.Low()
	if b.StrongPullup() || b.Read() != gpio.Low {
		t.Fatal("driving low ends the strong pull-up")
	}
}

func TestDevice_gone(t *testing.T) {
	b := &Bus{Devices: []*Device{{Addr: rom.New(0x28, [6]byte{1}).Address(), Gone: true}}}
	pulse(b, 480*time.Microsecond)
	b.Delay(70 * time.Microsecond)
	if b.Read() != gpio.High {
		t.Fatal("a disconnected device doesn't answer")
	}
}

func TestThermometer(t *testing.T) {
	th := NewThermometer(physic.ZeroCelsius + 25*physic.Celsius + physic.Celsius/16)
	spad := th.Scratchpad()
	if spad[0] != 0x50 || spad[1] != 0x05 || !crc8.Validate(spad[:]) {
		t.Fatalf("power-up scratchpad % x", spad)
	}
	th.Write(0x44)
	spad = th.Scratchpad()
	if raw := int16(spad[1])<<8 | int16(spad[0]); raw != 25*16+1 {
		t.Fatalf("raw = %d", raw)
	}
	if !th.Alarm() || th.Conversions != 1 {
		t.Fatal("25°C is below the default TL of 70°C")
	}

	// 9 bits resolution, TH=20°C, TL=-10°C.
	for _, b := range []byte{0x4e, 20, 0xf6, 0x00} {
		if r := th.Write(b); r != nil {
			t.Fatalf("unexpected answer % x", r)
		}
	}
	th.Write(0x44)
	spad = th.Scratchpad()
	if spad[2] != 20 || spad[3] != 0xf6 || spad[4] != 0x1f {
		t.Fatalf("scratchpad % x", spad)
	}
	if raw := int16(spad[1])<<8 | int16(spad[0]); raw != 25*16 {
		t.Fatalf("raw = %d at 9 bits", raw)
	}
	if !th.Alarm() {
		t.Fatal("expected an alarm above TH")
	}

	th.Write(0x48)
	if e := th.EEPROM(); e != [3]byte{20, 0xf6, 0x1f} {
		t.Fatalf("EEPROM % x", e)
	}
	th.Write(0x4e)
	th.Write(1)
	th.Write(2)
	th.Write(0x7f)
	th.Write(0xb8)
	if s := th.Scratchpad(); s[2] != 20 || s[3] != 0xf6 || s[4] != 0x1f || !crc8.Validate(s[:]) {
		t.Fatalf("recall % x", s)
	}

	if r := th.Write(0xb4); r != nil {
		t.Fatal("externally powered")
	}
	th.Parasitic = true
	if r := th.Write(0xb4); len(r) != 1 || r[0] != 0 {
		t.Fatal("parasite powered")
	}
}

func TestThermometer_negative(t *testing.T) {
	th := NewThermometer(physic.ZeroCelsius - 10*physic.Celsius - physic.Celsius/8)
	th.Write(0x44)
	spad := th.Scratchpad()
	if raw := int16(spad[1])<<8 | int16(spad[0]); raw != -162 {
		t.Fatalf("raw = %d", raw)
	}
	if !th.Alarm() {
		t.Fatal("expected an alarm below TL")
	}
}

//

func pulse(b *Bus, d time.Duration) {
	_ = b.Low()
	b.Delay(d)
	_ = b.Release()
}

func writeByte(b *Bus, v byte) {
	for i := range 8 {
		if v>>uint(i)&1 == 1 {
			pulse(b, 6*time.Microsecond)
			b.Delay(64 * time.Microsecond)
		} else {
			pulse(b, 60*time.Microsecond)
			b.Delay(10 * time.Microsecond)
		}
	}
}

func readByte(b *Bus) byte {
	var v byte
	for i := range 8 {
		pulse(b, 6*time.Microsecond)
		b.Delay(9 * time.Microsecond)
		if b.Read() == gpio.High {
			v |= 1 << uint(i)
		}
		b.Delay(55 * time.Microsecond)
	}
	return v
}
