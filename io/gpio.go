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

// sysfs GPIO backend.

package io

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	sysfs "github.com/aamcrae/gpio"
)

const baseDir = "/sys/class/gpio/"

// sysfsChip numbers lines relative to the base of a sysfs gpiochip.
type sysfsChip struct {
	name string
	base int
}

// sysfsLine is an exported pin.
type sysfsLine struct {
	*sysfs.Gpio
}

// Close unexports the pin.
func (l sysfsLine) Close() error {
	l.Gpio.Close()
	return nil
}

func openSysfs(name string) (*sysfsChip, error) {
	c := &sysfsChip{name: name}
	if name == "" {
		return c, nil
	}
	b, err := os.ReadFile(baseDir + name + "/base")
	if err != nil {
		return nil, err
	}
	c.base, err = strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("%s: bad base: %v", name, err)
	}
	return c, nil
}

// Output exports the line as an output and sets it to initial.
// The pin is low from the direction change until the first Set.
func (c *sysfsChip) Output(offset, initial int, consumer string) (Line, error) {
	g, err := sysfs.OutputPin(c.base + offset)
	if err != nil {
		return nil, &HardwareError{Op: "output", Chip: c.name, Offset: offset, Err: err}
	}
	if err := g.Set(initial); err != nil {
		g.Close()
		return nil, &HardwareError{Op: "output", Chip: c.name, Offset: offset, Err: err}
	}
	return sysfsLine{g}, nil
}

// Input exports the line as an input.
func (c *sysfsChip) Input(offset int, consumer string) (Line, error) {
	g, err := sysfs.Pin(c.base + offset)
	if err != nil {
		return nil, &HardwareError{Op: "input", Chip: c.name, Offset: offset, Err: err}
	}
	return sysfsLine{g}, nil
}

// Close is a no-op; each line is unexported when it is closed.
func (c *sysfsChip) Close() error {
	return nil
}
