// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang_test

import (
	"fmt"
	"log"

	"github.com/GermanBionicSystems/onewire/bitbang"
	"github.com/GermanBionicSystems/onewire/rom"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	// The data line, with a 4.7kΩ pull-up resistor to 3.3V.
	p := gpioreg.ByName("GPIO4")
	if p == nil {
		log.Fatal("failed to find GPIO4")
	}
	bus, err := bitbang.New(bitbang.GPIO(p, gpio.Float), nil)
	if err != nil {
		log.Fatal(err)
	}
	defer bus.Halt()

	for addr, err := range bus.Devices(false) {
		if err != nil {
			log.Fatal(err)
		}
		r, _ := rom.FromAddress(addr)
		fmt.Println(r)
	}
}
