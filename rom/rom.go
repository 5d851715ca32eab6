// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rom models 1-Wire ROM codes and implements the ROM search that
// discovers them on a bus.
//
// Every 1-Wire device carries a 64-bit ROM code made of a family code, a
// 48-bit serial number and a CRC8 over the first 7 bytes. The code is
// transmitted least significant byte first, which is also how
// onewire.Address stores it: family code in the low byte, CRC in the high
// byte.
//
// The search works on any onewire.BusSearcher, be it a bit-banged GPIO or a
// DS248x bridge.
//
// See Maxim App Note 187 for the search algorithm:
// https://www.maximintegrated.com/en/app-notes/index.mvp/id/187
package rom

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/GermanBionicSystems/onewire/crc8"
	"periph.io/x/conn/v3/onewire"
)

// ROM commands.
const (
	ReadROM     byte = 0x33 // read the ROM code of the single device on the bus
	MatchROM    byte = 0x55 // address one device by its ROM code
	SkipROM     byte = 0xcc // address all devices
	AlarmSearch byte = 0xec // search devices in alarm state
	SearchROM   byte = 0xf0 // search all devices
)

// ROM is a decoded 64-bit ROM code.
type ROM struct {
	Family byte    // device class, e.g. 0x28 for a DS18B20
	Serial [6]byte // serial number, least significant byte first
	CRC    byte    // CRC8 of Family and Serial
}

// New returns the ROM with the given family code and serial number and a
// freshly computed CRC.
func New(family byte, serial [6]byte) ROM {
	r := ROM{Family: family, Serial: serial}
	b := r.Bytes()
	r.CRC = crc8.Compute(b[:7])
	return r
}

// FromBytes decodes a ROM code as it is transmitted on the bus. It returns a
// *CRCError if the CRC doesn't match.
func FromBytes(b [8]byte) (ROM, error) {
	if !crc8.Validate(b[:]) {
		return ROM{}, &CRCError{Data: b[:]}
	}
	r := ROM{Family: b[0], CRC: b[7]}
	copy(r.Serial[:], b[1:7])
	return r, nil
}

// FromAddress decodes a periph onewire.Address. It returns a *CRCError if the
// CRC doesn't match.
func FromAddress(a onewire.Address) (ROM, error) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(a))
	return FromBytes(b)
}

// Bytes returns the ROM code in transmission order.
func (r ROM) Bytes() [8]byte {
	var b [8]byte
	b[0] = r.Family
	copy(b[1:7], r.Serial[:])
	b[7] = r.CRC
	return b
}

// Address returns the ROM code as a periph onewire.Address.
func (r ROM) Address() onewire.Address {
	b := r.Bytes()
	return onewire.Address(binary.LittleEndian.Uint64(b[:]))
}

// SerialNumber returns the 48-bit serial number.
func (r ROM) SerialNumber() uint64 {
	return uint64(r.Address()>>8) & 0xffffffffffff
}

// String returns the canonical "ff.ssssssssssss.cc" form: family code, serial
// number, CRC.
func (r ROM) String() string {
	return fmt.Sprintf("%02x.%012x.%02x", r.Family, r.SerialNumber(), r.CRC)
}

// Parse decodes a ROM code in one of these forms:
//
//	28.0000070e41ac.74  family, serial and CRC as printed by ROM.String
//	28-0000070e41ac     Linux w1 sysfs device name, CRC is computed
//	0x740000070e41ac28  onewire.Address, family code in the low byte
//
// The CRC is checked in the first and last forms.
func Parse(s string) (ROM, error) {
	if parts := strings.Split(s, "."); len(parts) == 3 {
		f, err := parseHex(parts[0], 2)
		if err != nil {
			return ROM{}, err
		}
		sn, err := parseHex(parts[1], 12)
		if err != nil {
			return ROM{}, err
		}
		c, err := parseHex(parts[2], 2)
		if err != nil {
			return ROM{}, err
		}
		return FromAddress(onewire.Address(c<<56 | sn<<8 | f))
	}
	if f, sn, ok := strings.Cut(s, "-"); ok {
		fv, err := parseHex(f, 2)
		if err != nil {
			return ROM{}, err
		}
		snv, err := parseHex(sn, 12)
		if err != nil {
			return ROM{}, err
		}
		var serial [6]byte
		for i := range serial {
			serial[i] = byte(snv >> (8 * i))
		}
		return New(byte(fv), serial), nil
	}
	h := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := parseHex(h, 16)
	if err != nil {
		return ROM{}, err
	}
	return FromAddress(onewire.Address(v))
}

func parseHex(s string, digits int) (uint64, error) {
	if len(s) != digits {
		return 0, fmt.Errorf("rom: %q: want %d hex digits", s, digits)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("rom: %q: %w", s, err)
	}
	return v, nil
}

// ReadSingle issues a Read ROM command and decodes the answer.
//
// It only works when there is a single device on the bus: with several
// devices their answers collide and the CRC check fails.
func ReadSingle(bus onewire.Bus) (ROM, error) {
	var b [8]byte
	if err := bus.Tx([]byte{ReadROM}, b[:], onewire.WeakPullup); err != nil {
		return ROM{}, err
	}
	return FromBytes(b)
}
