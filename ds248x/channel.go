// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds248x

import (
	"bytes"
	"fmt"
)

// ChannelSelect selects one of the eight 1-wire channels of a DS2482-800.
// Out of range channels are clamped to 0..7. On other chips it does nothing.
//
// The application keeps track of which device is on which channel.
func (d *Dev) ChannelSelect(ch int) error {
	if d.variant != ds2482x800 {
		return nil
	}
	ch = min(max(ch, 0), 7)
	if err := d.i2c.Tx([]byte{cmdChannelSelect, channelWrite[ch]}, nil); err != nil {
		return fmt.Errorf("ds2482-800: error while selecting channel: %w", err)
	}
	return nil
}

// SelectedChannel returns the channel selected on a DS2482-800, 0 on other
// chips.
func (d *Dev) SelectedChannel() (int, error) {
	if d.variant != ds2482x800 {
		return 0, nil
	}
	var csr [1]byte
	if err := d.i2c.Tx([]byte{cmdSetReadPtr, regCSR}, csr[:]); err != nil {
		return 0, fmt.Errorf("ds2482-800: error while reading channel: %w", err)
	}
	ch := bytes.IndexByte(channelRead[:], csr[0])
	if ch < 0 {
		return 0, fmt.Errorf("ds2482-800: invalid channel selection register %#x", csr[0])
	}
	return ch, nil
}
