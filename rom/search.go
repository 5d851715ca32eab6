// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/GermanBionicSystems/onewire/crc8"
	"periph.io/x/conn/v3/onewire"
)

// State is what one search pass leaves for the next one.
type State struct {
	ROM uint64 // ROM code found by the pass, family code in the low byte
	// LastDiscrepancy is the highest bit where devices disagreed and the pass
	// took the 0 branch, leaving the 1 branch to explore. -1 when there is no
	// such bit.
	LastDiscrepancy int
}

// Direction returns the branch the next pass proposes at the given bit.
//
// Below the last discrepancy the pass repeats the previous ROM code, at the
// last discrepancy it takes the 1 branch and above it starts with 0 branches
// again. This explores the 0 subtree fully before its 1 sibling.
func (s State) Direction(bit int) byte {
	switch {
	case bit < s.LastDiscrepancy:
		return byte(s.ROM>>uint(bit)) & 1
	case bit == s.LastDiscrepancy:
		return 1
	default:
		return 0
	}
}

// Searcher enumerates the devices on a bus one reset pass at a time.
//
// Each call to Next performs a reset, the search command and 64 triplets,
// and yields one device. The sequence ends when a pass leaves no unexplored
// branch or at the first error:
//
//	s := rom.NewSearcher(bus, false)
//	for s.Next() {
//		fmt.Println(s.ROM())
//	}
//	if err := s.Err(); err != nil {
//		...
//	}
//
// A Searcher is not restartable; create a new one to search again. It may be
// abandoned at any time without cleanup.
type Searcher struct {
	bus    onewire.BusSearcher
	cmd    byte
	state  State
	addr   onewire.Address
	err    error
	done   bool
	passes int
	log    *slog.Logger
}

// NewSearcher returns a Searcher over bus. If alarmOnly is true only devices
// in alarm state answer.
func NewSearcher(bus onewire.BusSearcher, alarmOnly bool) *Searcher {
	cmd := SearchROM
	if alarmOnly {
		cmd = AlarmSearch
	}
	return &Searcher{
		bus:   bus,
		cmd:   cmd,
		state: State{LastDiscrepancy: -1},
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger makes the Searcher report each pass at debug level and faults at
// warning level. A nil logger disables logging.
func (s *Searcher) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.log = l
}

// Next runs one search pass and reports whether it found a device.
func (s *Searcher) Next() bool {
	if s.done {
		return false
	}
	s.passes++
	addr, err := s.pass()
	if err != nil {
		s.done = true
		if s.passes == 1 && (IsNoPresence(err) || err == errNoAlarm) {
			s.log.Debug("onewire search: no device answered", "bus", s.bus.String(), "err", err)
			return false
		}
		s.err = err
		s.log.Warn("onewire search: aborted", "bus", s.bus.String(), "pass", s.passes, "err", err)
		return false
	}
	s.addr = addr
	s.done = s.state.LastDiscrepancy == -1
	s.log.Debug("onewire search: found device",
		"bus", s.bus.String(),
		"pass", s.passes,
		"addr", fmt.Sprintf("%#016x", uint64(addr)),
		"last_discrepancy", s.state.LastDiscrepancy)
	return true
}

// Addr returns the address found by the last successful call to Next.
func (s *Searcher) Addr() onewire.Address {
	return s.addr
}

// ROM returns the ROM code found by the last successful call to Next.
func (s *Searcher) ROM() ROM {
	b := s.state.ROM
	r := ROM{Family: byte(b), CRC: byte(b >> 56)}
	for i := range r.Serial {
		r.Serial[i] = byte(b >> (8 * (i + 1)))
	}
	return r
}

// Err returns the error that ended the search, if any.
//
// An empty bus is not an error: the search simply yields nothing. Neither is
// an alarm search that no device answers.
func (s *Searcher) Err() error {
	return s.err
}

// State returns the state left by the last successful pass.
func (s *Searcher) State() State {
	return s.state
}

// Passes returns the number of reset passes performed so far.
func (s *Searcher) Passes() int {
	return s.passes
}

// All returns the remaining devices as a lazy sequence. An error is yielded
// as the last item with a zero address.
func (s *Searcher) All() iter.Seq2[onewire.Address, error] {
	return func(yield func(onewire.Address, error) bool) {
		for s.Next() {
			if !yield(s.addr, nil) {
				return
			}
		}
		if s.err != nil {
			yield(0, s.err)
		}
	}
}

// Collect runs the search to completion. If an error occurs the devices
// discovered so far are returned with the error.
func (s *Searcher) Collect() ([]onewire.Address, error) {
	var devices []onewire.Address
	for s.Next() {
		devices = append(devices, s.addr)
	}
	return devices, s.err
}

// CollectContext is like Collect but stops between passes once ctx is done.
func (s *Searcher) CollectContext(ctx context.Context) ([]onewire.Address, error) {
	var devices []onewire.Address
	for {
		if err := ctx.Err(); err != nil {
			return devices, err
		}
		if !s.Next() {
			return devices, s.err
		}
		devices = append(devices, s.addr)
	}
}

// errNoAlarm is a first alarm search pass that no device took part in.
var errNoAlarm = errors.New("onewire: no device in alarm state")

// pass performs one reset, search command and 64 triplets.
func (s *Searcher) pass() (onewire.Address, error) {
	if err := s.bus.Tx([]byte{s.cmd}, nil, onewire.WeakPullup); err != nil {
		return 0, err
	}
	var rom uint64
	var raw [8]byte
	discrepancy := -1
	crc := crc8.New()
	for bit := 0; bit < 64; bit++ {
		r, err := s.bus.SearchTriplet(s.state.Direction(bit))
		if err != nil {
			return 0, err
		}
		if !r.GotZero && !r.GotOne {
			if bit == 0 && s.cmd == AlarmSearch && s.passes == 1 {
				return 0, errNoAlarm
			}
			return 0, fmt.Errorf("%w (bit %d)", ErrDeviceDropped, bit)
		}
		if bit == s.state.LastDiscrepancy && !(r.GotZero && r.GotOne) {
			// The branch left for this pass is gone.
			return 0, fmt.Errorf("%w (bit %d)", ErrDeviceDropped, bit)
		}
		if r.GotZero && r.GotOne && r.Taken == 0 {
			discrepancy = bit
		}
		rom |= uint64(r.Taken&1) << uint(bit)
		if bit&7 == 7 {
			raw[bit>>3] = byte(rom >> uint(bit-7))
			_ = crc.WriteByte(raw[bit>>3])
		}
	}
	if crc.Sum8() != 0 {
		return 0, &CRCError{Data: raw[:]}
	}
	s.state = State{ROM: rom, LastDiscrepancy: discrepancy}
	return onewire.Address(rom), nil
}

// All returns the devices on bus as a lazy sequence; see Searcher.
func All(bus onewire.BusSearcher, alarmOnly bool) iter.Seq2[onewire.Address, error] {
	return NewSearcher(bus, alarmOnly).All()
}

// Search returns the addresses of all devices on the bus if alarmOnly is
// false and of all devices in alarm state if alarmOnly is true.
//
// If an error occurs during the search the already-discovered devices are
// returned with the error. It fits the onewire.Bus Search method.
func Search(bus onewire.BusSearcher, alarmOnly bool) ([]onewire.Address, error) {
	return NewSearcher(bus, alarmOnly).Collect()
}
