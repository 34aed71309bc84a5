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

// periph.io backend, addressing lines by their BCM name.

package io

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

type periphChip struct {
	name string
}

type periphLine struct {
	p gpio.PinIO
}

func openPeriph(name string) (*periphChip, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	return &periphChip{name: name}, nil
}

func (c *periphChip) pin(offset int) (gpio.PinIO, error) {
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", offset))
	if p == nil {
		return nil, fmt.Errorf("GPIO%d: no such pin", offset)
	}
	return p, nil
}

func (c *periphChip) Output(offset, initial int, consumer string) (Line, error) {
	p, err := c.pin(offset)
	if err == nil {
		err = p.Out(level(initial))
	}
	if err != nil {
		return nil, &HardwareError{Op: "output", Chip: c.name, Offset: offset, Err: err}
	}
	return &periphLine{p}, nil
}

func (c *periphChip) Input(offset int, consumer string) (Line, error) {
	p, err := c.pin(offset)
	if err == nil {
		err = p.In(gpio.PullNoChange, gpio.NoEdge)
	}
	if err != nil {
		return nil, &HardwareError{Op: "input", Chip: c.name, Offset: offset, Err: err}
	}
	return &periphLine{p}, nil
}

func (c *periphChip) Close() error {
	return nil
}

func (l *periphLine) Set(v int) error {
	return l.p.Out(level(v))
}

func (l *periphLine) Get() (int, error) {
	if l.p.Read() == gpio.High {
		return 1, nil
	}
	return 0, nil
}

func (l *periphLine) Close() error {
	return l.p.Halt()
}

func level(v int) gpio.Level {
	if v != 0 {
		return gpio.High
	}
	return gpio.Low
}
