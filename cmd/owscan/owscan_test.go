// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/GermanBionicSystems/onewire/bitbang"
	"github.com/GermanBionicSystems/onewire/bitbang/bitbangtest"
	"github.com/GermanBionicSystems/onewire/rom"
	"github.com/google/go-cmp/cmp"
	"github.com/maruel/ansi256"
	"periph.io/x/conn/v3/physic"
)

func TestParseTiming(t *testing.T) {
	const doc = "reset_low: 500us\npresence_sample: 65us\n"
	got, err := parseTiming(strings.NewReader(doc), bitbang.StandardTiming)
	if err != nil {
		t.Fatal(err)
	}
	want := bitbang.StandardTiming
	want.ResetLow = 500 * time.Microsecond
	want.PresenceSample = 65 * time.Microsecond
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("parseTiming() difference (-want +got):\n%s", diff)
	}
}

func TestParseTiming_empty(t *testing.T) {
	got, err := parseTiming(strings.NewReader(""), bitbang.OverdriveTiming)
	if err != nil {
		t.Fatal(err)
	}
	if got != bitbang.OverdriveTiming {
		t.Fatal(got)
	}
}

func TestParseTiming_fail(t *testing.T) {
	for _, doc := range []string{
		"reset_lo: 500us\n",
		"reset_low: soon\n",
		"presence_sample: 600us\n",
		"write_one_low: -1us\n",
	} {
		if _, err := parseTiming(strings.NewReader(doc), bitbang.StandardTiming); err == nil {
			t.Errorf("%q: expected error", doc)
		}
	}
}

func TestLoadTiming_missing(t *testing.T) {
	if _, err := loadTiming("does/not/exist.yaml", bitbang.StandardTiming); err == nil {
		t.Fatal("expected error")
	}
}

func TestScan(t *testing.T) {
	th := bitbangtest.NewThermometer(physic.ZeroCelsius + 21500*physic.MilliCelsius)
	sim := &bitbangtest.Bus{Devices: []*bitbangtest.Device{
		{Addr: rom.New(0x28, [6]byte{1, 2, 3}).Address(), Handler: th},
		{Addr: rom.New(0x2d, [6]byte{4, 5, 6}).Address()},
	}}
	b, err := bitbang.New(sim, &bitbang.Opts{Timing: bitbang.StandardTiming, Delay: sim})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	n, err := scan(&buf, b, &scanOpts{temp: true, resolution: 9, palette: ansi256.Default})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("found %d", n)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("%q", buf.String())
	}
	for _, l := range lines {
		switch {
		case strings.Contains(l, "DS18B20"):
			if !strings.Contains(l, "21.5") {
				t.Errorf("missing temperature: %q", l)
			}
		case strings.Contains(l, "DS2431"):
		default:
			t.Errorf("unexpected line %q", l)
		}
	}
	if th.Conversions != 1 {
		t.Fatalf("%d conversions", th.Conversions)
	}
}

func TestScan_alarm(t *testing.T) {
	a := rom.New(0x01, [6]byte{1})
	sim := &bitbangtest.Bus{Devices: []*bitbangtest.Device{
		{Addr: a.Address(), Alarm: true},
		{Addr: rom.New(0x01, [6]byte{2}).Address()},
	}}
	b, err := bitbang.New(sim, &bitbang.Opts{Timing: bitbang.StandardTiming, Delay: sim})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	n, err := scan(&buf, b, &scanOpts{alarmOnly: true, palette: ansi256.Default})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || !strings.Contains(buf.String(), a.String()) {
		t.Fatalf("%d %q", n, buf.String())
	}
	if !strings.Contains(buf.String(), "DS2401") {
		t.Fatalf("%q", buf.String())
	}
}

func TestScan_empty(t *testing.T) {
	sim := &bitbangtest.Bus{}
	b, err := bitbang.New(sim, &bitbang.Opts{Timing: bitbang.StandardTiming, Delay: sim})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	n, err := scan(&buf, b, &scanOpts{palette: ansi256.Default})
	if n != 0 || err != nil || buf.Len() != 0 {
		t.Fatalf("%d %v %q", n, err, buf.String())
	}
}

func TestFamilyName(t *testing.T) {
	for _, line := range []struct {
		f    byte
		want string
	}{
		{0x10, "DS18S20"},
		{0x28, "DS18B20"},
		{0x3a, "DS2413"},
		{0x7e, "0x7e"},
	} {
		if got := familyName(line.f); got != line.want {
			t.Errorf("familyName(%#x) = %q, want %q", line.f, got, line.want)
		}
	}
}
