// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitbang implements a 1-wire bus master on a single GPIO line.
//
// The bus is an open-drain line held high by a pull-up resistor, typically
// 4.7kΩ to 3.3V. The master and the devices only ever pull it low; all
// communication happens in time slots started by the master:
//
//   - reset: the master holds the line low for 480µs, then every device
//     answers with a presence pulse;
//   - write: a short low pulse is a 1, a long one is a 0;
//   - read: the master pulls the line low briefly and samples it; a device
//     sending a 0 keeps it low.
//
// The slots are timed with busy loops so the calling goroutine should not be
// preempted during a transaction. Running on a real-time kernel, or at least
// pinning the process to an isolated CPU, helps a lot.
//
// Dev implements onewire.Bus and onewire.BusSearcher so the drivers written
// against periph's onewire package, such as ds18b20, work on top of it.
//
// # Datasheet
//
// https://www.analog.com/en/resources/technical-articles/1wire-communication-through-software.html
package bitbang
