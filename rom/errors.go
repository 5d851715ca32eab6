// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rom

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/onewire"
)

var (
	// ErrNoPresence is returned when no device answered a reset pulse with a
	// presence pulse.
	ErrNoPresence error = noPresenceError("onewire: no device present")

	// ErrDeviceDropped is returned when both the bit and its complement read
	// back as 1 during a search, meaning every participating device stopped
	// responding.
	ErrDeviceDropped error = busError("onewire: devices disappeared during search")
)

// CRCError is returned when data read from the bus, such as a ROM code found
// by a search, fails its CRC8 check. It usually indicates electrical noise.
type CRCError struct {
	Data []byte // bytes read, including the trailing CRC byte
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("onewire: CRC mismatch, data=% x", e.Data)
}

// BusError implements onewire.BusError.
func (e *CRCError) BusError() bool { return true }

// IsNoPresence returns true if err reports that no device answered a reset,
// whichever bus implementation produced it.
func IsNoPresence(err error) bool {
	var nd onewire.NoDevicesError
	return errors.As(err, &nd) && nd.NoDevices()
}

// noPresenceError implements error, onewire.NoDevicesError and
// onewire.BusError.
type noPresenceError string

func (e noPresenceError) Error() string   { return string(e) }
func (e noPresenceError) NoDevices() bool { return true }
func (e noPresenceError) BusError() bool  { return true }

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

var _ onewire.NoDevicesError = noPresenceError("")
var _ onewire.BusError = noPresenceError("")
var _ onewire.BusError = busError("")
var _ onewire.BusError = &CRCError{}
