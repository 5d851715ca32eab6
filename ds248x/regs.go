// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds248x

// Commands.
const (
	cmdReset         = 0xf0 // reset ds248x
	cmdSetReadPtr    = 0xe1 // set the read pointer
	cmdWriteConfig   = 0xd2 // write the device configuration
	cmdAdjPort       = 0xc3 // adjust 1-wire port (ds2483)
	cmdChannelSelect = 0xc3 // channel select (ds2482-800)
	cmd1WReset       = 0xb4 // reset the 1-wire bus
	cmd1WWrite       = 0xa5 // perform a byte write on the 1-wire bus
	cmd1WRead        = 0x96 // perform a byte read on the 1-wire bus
	cmd1WTriplet     = 0x78 // perform a triplet operation (2 bit reads, a bit write)
)

// Read pointer codes.
const (
	regDCR    = 0xc3 // device configuration register
	regStatus = 0xf0 // status register
	regRDR    = 0xe1 // read data register
	regPCR    = 0xb4 // port configuration register (ds2483)
	regCSR    = 0xd2 // channel selection register (ds2482-800)
)

// Status register bits.
const (
	status1WB = 0x01 // 1-wire busy
	statusPPD = 0x02 // presence pulse detected
	statusSD  = 0x04 // short detected
	statusRST = 0x10 // device reset
	statusSBR = 0x20 // single bit result, the first bit of a triplet
	statusTSB = 0x40 // triplet second bit
	statusDIR = 0x80 // branch direction taken
)

// Configuration register bits. The upper nibble written must be the one's
// complement of the lower one.
const (
	confAPU = 0x01 // active pull-up
	confSPU = 0x04 // strong pull-up
)

// ds2482-800 channel selection codes, as written and as read back.
var (
	channelWrite = [8]byte{0xf0, 0xe1, 0xd2, 0xc3, 0xb4, 0xa5, 0x96, 0x87}
	channelRead  = [8]byte{0xb8, 0xb1, 0xaa, 0xa3, 0x9c, 0x95, 0x8e, 0x87}
)

type variant int

const (
	ds2482x100 variant = iota
	ds2482x800
	ds2483
)

func (v variant) String() string {
	switch v {
	case ds2482x100:
		return "DS2482-100"
	case ds2482x800:
		return "DS2482-800"
	case ds2483:
		return "DS2483"
	default:
		return "Undefined"
	}
}
