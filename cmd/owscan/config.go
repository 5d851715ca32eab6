// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/GermanBionicSystems/onewire/bitbang"
	"gopkg.in/yaml.v3"
)

// loadTiming returns base with the phases listed in the yaml file at path
// replaced. Durations are written as strings, e.g. "480us".
func loadTiming(path string, base bitbang.Timing) (bitbang.Timing, error) {
	f, err := os.Open(path)
	if err != nil {
		return base, err
	}
	defer f.Close()
	t, err := parseTiming(f, base)
	if err != nil {
		return base, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func parseTiming(r io.Reader, base bitbang.Timing) (bitbang.Timing, error) {
	t := base
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return base, err
	}
	if err := t.Validate(); err != nil {
		return base, err
	}
	return t, nil
}
