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

// GPIO character device backend.

package io

import (
	"github.com/warthog618/go-gpiocdev"
)

const consumerPrefix = "wingo-"

type cdevChip struct {
	name string
	c    *gpiocdev.Chip
}

// cdevLine adapts a requested gpiocdev line to the Line interface.
type cdevLine struct {
	l *gpiocdev.Line
}

func openCdev(name string) (*cdevChip, error) {
	c, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumerPrefix+"dispenser"))
	if err != nil {
		return nil, err
	}
	return &cdevChip{name: name, c: c}, nil
}

func (c *cdevChip) Output(offset, initial int, consumer string) (Line, error) {
	l, err := c.c.RequestLine(offset, gpiocdev.AsOutput(initial), gpiocdev.WithConsumer(consumerPrefix+consumer))
	if err != nil {
		return nil, &HardwareError{Op: "output", Chip: c.name, Offset: offset, Err: err}
	}
	return &cdevLine{l}, nil
}

func (c *cdevChip) Input(offset int, consumer string) (Line, error) {
	l, err := c.c.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithConsumer(consumerPrefix+consumer))
	if err != nil {
		return nil, &HardwareError{Op: "input", Chip: c.name, Offset: offset, Err: err}
	}
	return &cdevLine{l}, nil
}

func (c *cdevChip) Close() error {
	return c.c.Close()
}

// Set writes the value with a single SET_VALUES ioctl, so the
// level is on the pin when Set returns.
func (l *cdevLine) Set(v int) error {
	return l.l.SetValue(v)
}

func (l *cdevLine) Get() (int, error) {
	return l.l.Value()
}

func (l *cdevLine) Close() error {
	return l.l.Close()
}
