// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"errors"
	"fmt"
	"time"
)

// Timing holds the durations of the phases of the 1-wire time slots.
//
// The letters refer to the table in Maxim App Note 126.
type Timing struct {
	WriteOneLow       time.Duration `yaml:"write_one_low"`       // A
	WriteOneRelease   time.Duration `yaml:"write_one_release"`   // B
	WriteZeroLow      time.Duration `yaml:"write_zero_low"`      // C
	WriteZeroRecovery time.Duration `yaml:"write_zero_recovery"` // D
	ReadLow           time.Duration `yaml:"read_low"`            // A
	ReadSample        time.Duration `yaml:"read_sample"`         // E
	ReadRecovery      time.Duration `yaml:"read_recovery"`       // F
	ResetDelay        time.Duration `yaml:"reset_delay"`         // G
	ResetLow          time.Duration `yaml:"reset_low"`           // H
	PresenceSample    time.Duration `yaml:"presence_sample"`     // I
	ResetRecovery     time.Duration `yaml:"reset_recovery"`      // J
}

// StandardTiming is the regular speed, about 15kbps.
var StandardTiming = Timing{
	WriteOneLow:       6 * time.Microsecond,
	WriteOneRelease:   64 * time.Microsecond,
	WriteZeroLow:      60 * time.Microsecond,
	WriteZeroRecovery: 10 * time.Microsecond,
	ReadLow:           6 * time.Microsecond,
	ReadSample:        9 * time.Microsecond,
	ReadRecovery:      55 * time.Microsecond,
	ResetDelay:        0,
	ResetLow:          480 * time.Microsecond,
	PresenceSample:    70 * time.Microsecond,
	ResetRecovery:     410 * time.Microsecond,
}

// OverdriveTiming is the overdrive speed, about 110kbps.
//
// Devices only switch to overdrive after an Overdrive Skip ROM or Overdrive
// Match ROM command sent at standard speed.
var OverdriveTiming = Timing{
	WriteOneLow:       1 * time.Microsecond,
	WriteOneRelease:   7500 * time.Nanosecond,
	WriteZeroLow:      7500 * time.Nanosecond,
	WriteZeroRecovery: 2500 * time.Nanosecond,
	ReadLow:           1 * time.Microsecond,
	ReadSample:        1 * time.Microsecond,
	ReadRecovery:      7 * time.Microsecond,
	ResetDelay:        2500 * time.Nanosecond,
	ResetLow:          70 * time.Microsecond,
	PresenceSample:    8500 * time.Nanosecond,
	ResetRecovery:     40 * time.Microsecond,
}

// Validate checks that the phases are consistent with each other.
func (t *Timing) Validate() error {
	for _, f := range []struct {
		name     string
		v        time.Duration
		positive bool
	}{
		{"write_one_low", t.WriteOneLow, true},
		{"write_one_release", t.WriteOneRelease, false},
		{"write_zero_low", t.WriteZeroLow, true},
		{"write_zero_recovery", t.WriteZeroRecovery, false},
		{"read_low", t.ReadLow, true},
		{"read_sample", t.ReadSample, true},
		{"read_recovery", t.ReadRecovery, false},
		{"reset_delay", t.ResetDelay, false},
		{"reset_low", t.ResetLow, true},
		{"presence_sample", t.PresenceSample, true},
		{"reset_recovery", t.ResetRecovery, false},
	} {
		if f.v < 0 || (f.positive && f.v == 0) {
			return fmt.Errorf("bitbang: invalid timing %s=%s", f.name, f.v)
		}
	}
	if t.WriteOneLow >= t.WriteZeroLow {
		return errors.New("bitbang: invalid timing, write_one_low must be shorter than write_zero_low")
	}
	if t.ReadLow+t.ReadSample >= t.WriteZeroLow {
		return errors.New("bitbang: invalid timing, read_low+read_sample must be shorter than write_zero_low")
	}
	if t.PresenceSample >= t.ResetLow {
		return errors.New("bitbang: invalid timing, presence_sample must be shorter than reset_low")
	}
	return nil
}
