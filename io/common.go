// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package io provides access to GPIO lines used to drive the stepper
// motor and the load cell amplifier.
package io

import (
	"fmt"
	"strings"
)

// Setter is an interface for setting an output value on a GPIO
type Setter interface {
	Set(int) error
}

// Getter is an interface for reading the value of a GPIO
type Getter interface {
	Get() (int, error)
}

// Line is a single requested GPIO line.
// Set must have taken effect on the hardware before it returns.
type Line interface {
	Setter
	Getter
	Close() error
}

// Chip is an opened GPIO controller from which lines can be requested.
type Chip interface {
	// Output requests the line at offset as an output, driven to initial.
	Output(offset, initial int, consumer string) (Line, error)
	// Input requests the line at offset as an input.
	Input(offset int, consumer string) (Line, error)
	Close() error
}

// Backend names accepted by Open.
const (
	Cdev   = "gpiocdev"
	Sysfs  = "sysfs"
	Periph = "periph"
)

// HardwareError is returned when a chip or line cannot be opened or requested.
type HardwareError struct {
	Op     string // "open", "output" or "input"
	Chip   string
	Offset int
	Err    error
}

func (e *HardwareError) Error() string {
	if e.Op == "open" {
		return fmt.Sprintf("%s: open: %v", e.Chip, e.Err)
	}
	return fmt.Sprintf("%s line %d: %s: %v", e.Chip, e.Offset, e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}

// Open opens the named chip using the selected backend.
// An empty backend selects the GPIO character device.
func Open(backend, chip string) (Chip, error) {
	var c Chip
	var err error
	switch strings.ToLower(backend) {
	case "", Cdev:
		c, err = openCdev(chip)
	case Sysfs:
		c, err = openSysfs(chip)
	case Periph:
		c, err = openPeriph(chip)
	default:
		err = fmt.Errorf("unknown backend %q", backend)
	}
	if err != nil {
		return nil, &HardwareError{Op: "open", Chip: chip, Err: err}
	}
	return c, nil
}
