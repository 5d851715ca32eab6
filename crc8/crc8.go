// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package crc8 implements the Dallas/Maxim 1-Wire CRC8.
//
// The polynomial is x^8 + x^5 + x^4 + 1 in its reflected form (0x8C), with an
// initial value of 0. The checksum can be computed in one go with Compute or
// fed one byte at a time through Update or a Digest, which is what a ROM
// search does while bits arrive from the bus.
//
// Appending the CRC to the data and running the CRC over the whole buffer
// yields 0, which is how Validate checks a buffer with its trailing CRC.
//
// See Maxim App Note 27:
// https://www.maximintegrated.com/en/app-notes/index.mvp/id/27
package crc8

import "hash"

// Size is the size of a CRC8 checksum in bytes.
const Size = 1

const poly = 0x8c

// Update returns the CRC after feeding b into a running crc.
func Update(crc, b byte) byte {
	crc ^= b
	for range 8 {
		if crc&1 != 0 {
			crc = crc>>1 ^ poly
		} else {
			crc >>= 1
		}
	}
	return crc
}

// Compute calculates the 1-Wire CRC8 of the byte slice and returns it.
func Compute(bytes []byte) byte {
	var crc byte
	for _, b := range bytes {
		crc = Update(crc, b)
	}
	return crc
}

// Validate returns true when the last byte of buf is the CRC8 of the
// preceding bytes. An empty buffer is never valid.
func Validate(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	return Compute(buf) == 0
}

// Digest is a streaming CRC8 accumulator.
//
// The zero value is ready to use. It implements hash.Hash and io.ByteWriter.
type Digest struct {
	crc byte
}

// New returns a new Digest.
func New() *Digest {
	return &Digest{}
}

// Write implements io.Writer. It never returns an error.
func (d *Digest) Write(p []byte) (int, error) {
	for _, b := range p {
		d.crc = Update(d.crc, b)
	}
	return len(p), nil
}

// WriteByte implements io.ByteWriter. It never returns an error.
func (d *Digest) WriteByte(c byte) error {
	d.crc = Update(d.crc, c)
	return nil
}

// Sum8 returns the CRC of the bytes written so far.
func (d *Digest) Sum8() byte {
	return d.crc
}

// Sum implements hash.Hash.
func (d *Digest) Sum(b []byte) []byte {
	return append(b, d.crc)
}

// Reset implements hash.Hash.
func (d *Digest) Reset() {
	d.crc = 0
}

// Size implements hash.Hash.
func (d *Digest) Size() int {
	return Size
}

// BlockSize implements hash.Hash.
func (d *Digest) BlockSize() int {
	return 1
}

var _ hash.Hash = &Digest{}
