// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewire is a container for a 1-wire bus master and the device
// drivers that use it.
//
// Package bitbang drives the bus from a single GPIO pin, package ds248x
// through a DS2482/DS2483 I²C bridge. Both implement periph's
// onewire.BusSearcher. Package rom models ROM codes and enumerates devices,
// package crc8 checks the Dallas/Maxim CRC and package ds18b20 reads
// thermometers.
package onewire
