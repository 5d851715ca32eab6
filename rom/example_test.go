// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rom_test

import (
	"fmt"
	"log"

	"github.com/GermanBionicSystems/onewire/rom"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/onewire/onewiretest"
)

func ExampleSearcher() {
	// Any onewire.BusSearcher works, e.g. a bitbang.Dev or a ds248x.Dev.
	devices := []onewire.Address{
		rom.New(0x28, [6]byte{0x10}).Address(),
		rom.New(0x28, [6]byte{0x16}).Address(),
	}
	bus := &onewiretest.Playback{
		Ops:     []onewiretest.IO{{W: []byte{rom.SearchROM}}, {W: []byte{rom.SearchROM}}},
		Devices: devices,
	}

	s := rom.NewSearcher(bus, false)
	for s.Next() {
		fmt.Printf("%s (family %#02x)\n", s.ROM(), s.ROM().Family)
	}
	if err := s.Err(); err != nil {
		log.Fatal(err)
	}
}

func ExampleAll() {
	var bus onewire.BusSearcher = &onewiretest.Playback{
		Ops:     []onewiretest.IO{{W: []byte{rom.SearchROM}}},
		Devices: []onewire.Address{rom.New(0x10, [6]byte{1, 2, 3}).Address()},
	}
	for addr, err := range rom.All(bus, false) {
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%#016x\n", uint64(addr))
	}
}
