// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds248x

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/GermanBionicSystems/onewire/bitbang"
	"github.com/GermanBionicSystems/onewire/bitbang/bitbangtest"
	"github.com/GermanBionicSystems/onewire/rom"
	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"
)

func TestNew_ds2483(t *testing.T) {
	bus := i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x18, W: []byte{0xf0}},
		{Addr: 0x18, W: []byte{0xe1, 0xf0}, R: []byte{0x18}},
		{Addr: 0x18, W: []byte{0xd2, 0xe1}, R: []byte{0x01}},
		{Addr: 0x18, W: []byte{0xe1, 0xb4}},
		{Addr: 0x18, W: []byte{0xc3, 0x06, 0x26, 0x46, 0x66, 0x86}},
	}}
	d, err := New(&bus, 0x18, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s := d.String(); s != "DS2483{playback(24)}" {
		t.Fatal(s)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNew_fail(t *testing.T) {
	if _, err := New(&i2ctest.Playback{}, 0x30, nil); err == nil {
		t.Fatal("invalid address")
	}
	data := [][]i2ctest.IO{
		nil,
		{{Addr: 0x18, W: []byte{0xf0}}},
		{
			{Addr: 0x18, W: []byte{0xf0}},
			{Addr: 0x18, W: []byte{0xe1, 0xf0}, R: []byte{0x00}},
		},
		{
			{Addr: 0x18, W: []byte{0xf0}},
			{Addr: 0x18, W: []byte{0xe1, 0xf0}, R: []byte{0x18}},
			{Addr: 0x18, W: []byte{0xd2, 0xe1}, R: []byte{0x0f}},
		},
	}
	for i, ops := range data {
		bus := i2ctest.Playback{Ops: ops, DontPanic: true}
		if _, err := New(&bus, 0x18, nil); err == nil {
			t.Errorf("#%d: expected error", i)
		}
	}
}

func TestSearch(t *testing.T) {
	var want []onewire.Address
	var devices []*bitbangtest.Device
	for i := range 5 {
		dev := &bitbangtest.Device{Addr: rom.New(0x28, [6]byte{byte(i * 37), byte(i)}).Address()}
		devices = append(devices, dev)
		want = append(want, dev.Addr)
	}
	d, _ := newBridge(t, devices...)
	got, err := d.Search(false)
	if err != nil {
		t.Fatal(err)
	}
	slices.Sort(got)
	slices.Sort(want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Search() difference (-want +got):\n%s", diff)
	}
	if d.String() != "DS2482-100{bridge(24)}" {
		t.Fatal(d.String())
	}

	n := 0
	for _, err := range d.Devices(false) {
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
	if n != len(want) {
		t.Fatalf("Devices() yielded %d", n)
	}
}

func TestSearch_alarm(t *testing.T) {
	a := &bitbangtest.Device{Addr: rom.New(0x28, [6]byte{1}).Address()}
	b := &bitbangtest.Device{Addr: rom.New(0x28, [6]byte{2}).Address(), Alarm: true}
	d, _ := newBridge(t, a, b)
	got, err := d.Search(true)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]onewire.Address{b.Addr}, got); diff != "" {
		t.Fatalf("Search(true) difference (-want +got):\n%s", diff)
	}
}

func TestTx(t *testing.T) {
	dev := &bitbangtest.Device{Addr: rom.New(0x10, [6]byte{1, 2, 3}).Address()}
	d, br := newBridge(t, dev)
	r, err := rom.ReadSingle(d)
	if err != nil {
		t.Fatal(err)
	}
	if r.Address() != dev.Addr {
		t.Fatal(r)
	}
	if err := d.Tx([]byte{rom.SkipROM, 0x44}, nil, onewire.StrongPullup); err != nil {
		t.Fatal(err)
	}
	if br.strong != 1 {
		t.Fatalf("%d strong pull-ups", br.strong)
	}
}

func TestTx_thermometer(t *testing.T) {
	th := bitbangtest.NewThermometer(physic.ZeroCelsius + 22*physic.Celsius)
	dev := &bitbangtest.Device{Addr: rom.New(0x28, [6]byte{1, 2, 3}).Address(), Handler: th}
	d, _ := newBridge(t, dev)
	o := onewire.Dev{Bus: d, Addr: dev.Addr}
	if err := o.TxPower([]byte{0x44}, nil); err != nil {
		t.Fatal(err)
	}
	var spad [9]byte
	if err := o.Tx([]byte{0xbe}, spad[:]); err != nil {
		t.Fatal(err)
	}
	if spad != th.Scratchpad() {
		t.Fatalf("scratchpad % x", spad)
	}
	if raw := int16(spad[1])<<8 | int16(spad[0]); raw != 22*16 {
		t.Fatalf("raw = %d", raw)
	}
}

func TestTx_empty(t *testing.T) {
	d, _ := newBridge(t)
	if err := d.Tx([]byte{rom.SkipROM}, nil, onewire.WeakPullup); err != rom.ErrNoPresence {
		t.Fatalf("Tx() = %v", err)
	}
	got, err := d.Search(false)
	if err != nil || len(got) != 0 {
		t.Fatalf("Search() = %v, %v", got, err)
	}
}

func TestTx_shorted(t *testing.T) {
	d, br := newBridge(t, &bitbangtest.Device{Addr: rom.New(0x28, [6]byte{1}).Address()})
	br.sim.Shorted = true
	err := d.Tx([]byte{rom.SkipROM}, nil, onewire.WeakPullup)
	var s onewire.ShortedBusError
	if !errors.As(err, &s) || !s.IsShorted() {
		t.Fatalf("Tx() = %v", err)
	}
	// Not persistent.
	br.sim.Shorted = false
	if err := d.Tx([]byte{rom.SkipROM}, nil, onewire.WeakPullup); err != nil {
		t.Fatal(err)
	}
}

func TestTx_persistent(t *testing.T) {
	d, br := newBridge(t, &bitbangtest.Device{Addr: rom.New(0x28, [6]byte{1}).Address()})
	br.fail = true
	if err := d.Tx([]byte{rom.SkipROM}, nil, onewire.WeakPullup); err == nil {
		t.Fatal("expected error")
	}
	br.fail = false
	if err := d.Tx([]byte{rom.SkipROM}, nil, onewire.WeakPullup); err == nil {
		t.Fatal("the error must persist")
	}
	if _, err := d.SearchTriplet(0); err == nil {
		t.Fatal("the error must persist")
	}
}

func TestChannel(t *testing.T) {
	d, br := newBridge(t)
	if err := d.ChannelSelect(3); err != nil {
		t.Fatal(err)
	}
	if ch, err := d.SelectedChannel(); err != nil || ch != 0 {
		t.Fatalf("SelectedChannel() = %d, %v", ch, err)
	}

	br.ds2482x800 = true
	d, err := New(br, 0x18, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s := d.String(); s != "DS2482-800{bridge(24)}" {
		t.Fatal(s)
	}
	for _, line := range []struct{ in, want int }{{5, 5}, {-1, 0}, {12, 7}} {
		if err := d.ChannelSelect(line.in); err != nil {
			t.Fatal(err)
		}
		ch, err := d.SelectedChannel()
		if err != nil {
			t.Fatal(err)
		}
		if ch != line.want {
			t.Fatalf("ChannelSelect(%d) selected %d", line.in, ch)
		}
	}
}

//

// bridge emulates a DS2482 on an I²C bus, driving a simulated 1-wire bus.
type bridge struct {
	ow         *bitbang.Dev
	sim        *bitbangtest.Bus
	ds2482x800 bool
	fail       bool

	ptr     byte
	status  byte
	rdr     byte
	config  byte
	channel byte
	strong  int
}

func (b *bridge) String() string {
	return "bridge"
}

func (b *bridge) SetSpeed(physic.Frequency) error {
	return nil
}

func (b *bridge) Tx(addr uint16, w, r []byte) error {
	if addr != 0x18 || b.fail {
		return errors.New("bridge: no ack")
	}
	if len(w) != 0 {
		b.ptr = regStatus
		switch w[0] {
		case cmdReset:
			b.status = statusRST | 0x08
			b.channel = channelRead[0]
		case cmdSetReadPtr:
			switch w[1] {
			case regStatus, regRDR, regDCR:
			case regCSR:
				if !b.ds2482x800 {
					return errors.New("bridge: nack")
				}
			default:
				return errors.New("bridge: nack")
			}
			b.ptr = w[1]
		case cmdWriteConfig:
			b.config = w[1]
			b.status &^= statusRST
			if w[1]&confSPU != 0 {
				b.strong++
			}
			b.ptr = regDCR
		case cmdChannelSelect:
			if !b.ds2482x800 {
				return errors.New("bridge: nack")
			}
			i := slices.Index(channelWrite[:], w[1])
			if i < 0 {
				return errors.New("bridge: invalid channel")
			}
			b.channel = channelRead[i]
			b.ptr = regCSR
		case cmd1WReset:
			b.status = 0
			present, err := b.ow.Reset()
			switch {
			case err != nil:
				b.status |= statusSD
			case present:
				b.status |= statusPPD
			}
		case cmd1WWrite:
			if err := b.ow.WriteByte(w[1]); err != nil {
				return err
			}
		case cmd1WRead:
			v, err := b.ow.ReadByte()
			if err != nil {
				return err
			}
			b.rdr = v
		case cmd1WTriplet:
			tr, err := b.ow.SearchTriplet(w[1] >> 7)
			if err != nil {
				return err
			}
			b.status = 0
			if !tr.GotZero {
				b.status |= statusSBR
			}
			if !tr.GotOne {
				b.status |= statusTSB
			}
			if tr.Taken != 0 {
				b.status |= statusDIR
			}
		default:
			return errors.New("bridge: unknown command")
		}
	}
	if len(r) != 0 {
		switch b.ptr {
		case regStatus:
			r[0] = b.status
		case regRDR:
			r[0] = b.rdr
		case regDCR:
			r[0] = b.config & 0x0f
		case regCSR:
			r[0] = b.channel
		}
	}
	return nil
}

func newBridge(t *testing.T, devices ...*bitbangtest.Device) (*Dev, *bridge) {
	sim := &bitbangtest.Bus{Devices: devices}
	ow, err := bitbang.New(sim, &bitbang.Opts{Timing: bitbang.StandardTiming, Delay: sim})
	if err != nil {
		t.Fatal(err)
	}
	br := &bridge{ow: ow, sim: sim}
	d, err := New(br, 0x18, nil)
	if err != nil {
		t.Fatal(err)
	}
	return d, br
}

func init() {
	sleep = func(time.Duration) {}
}
