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

// Package sim provides simulated GPIO hardware: a chip whose lines can
// be observed and scripted, a stepper axis with a home switch, and an
// HX711 load cell amplifier.
package sim

import (
	"errors"
	"sync"

	"github.com/EMZIlab/Wingo-deposit-machine/io"
)

// ErrClosed is returned when a closed line is used.
var ErrClosed = errors.New("line closed")

// Line is a simulated GPIO line.
type Line struct {
	mu      sync.Mutex
	offset  int
	value   int
	output  bool
	closed  bool
	sets    int
	onSet   func(int)
	input   func() int
	failSet error
}

// Set drives an output line.
func (l *Line) Set(v int) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.failSet != nil {
		err := l.failSet
		l.mu.Unlock()
		return err
	}
	l.value = v
	l.sets++
	hook := l.onSet
	l.mu.Unlock()
	if hook != nil {
		hook(v)
	}
	return nil
}

// Get returns the line value, from the input source if one is attached.
func (l *Line) Get() (int, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, ErrClosed
	}
	src := l.input
	v := l.value
	l.mu.Unlock()
	if src != nil {
		return src(), nil
	}
	return v, nil
}

// Close releases the line.
func (l *Line) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Value returns the last value set or forced on the line.
func (l *Line) Value() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// Sets returns how many times Set succeeded.
func (l *Line) Sets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sets
}

// Closed reports whether the line has been released.
func (l *Line) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Output reports whether the line was requested as an output.
func (l *Line) Output() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.output
}

// Force sets the value read back from an input line.
func (l *Line) Force(v int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = v
}

// OnSet installs a hook called after every successful Set.
func (l *Line) OnSet(f func(int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onSet = f
}

// Source attaches a function that supplies the value read by Get.
func (l *Line) Source(f func() int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.input = f
}

// FailSet makes subsequent Set calls return err. A nil err clears the failure.
func (l *Line) FailSet(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failSet = err
}

// Chip is a simulated GPIO controller implementing io.Chip.
type Chip struct {
	Name string

	mu     sync.Mutex
	lines  map[int]*Line
	fail   map[int]error
	closed bool
}

// NewChip returns an empty simulated chip.
func NewChip(name string) *Chip {
	return &Chip{Name: name, lines: make(map[int]*Line), fail: make(map[int]error)}
}

// Line returns the simulated line at offset, creating it if needed.
// Lines can be scripted before they are requested.
func (c *Chip) Line(offset int) *Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.line(offset)
}

func (c *Chip) line(offset int) *Line {
	l, ok := c.lines[offset]
	if !ok {
		l = &Line{offset: offset}
		c.lines[offset] = l
	}
	return l
}

// Fail makes requests for the line at offset return err.
func (c *Chip) Fail(offset int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[offset] = err
}

func (c *Chip) request(op string, offset int) (*Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, &io.HardwareError{Op: op, Chip: c.Name, Offset: offset, Err: ErrClosed}
	}
	if err := c.fail[offset]; err != nil {
		return nil, &io.HardwareError{Op: op, Chip: c.Name, Offset: offset, Err: err}
	}
	l := c.line(offset)
	l.mu.Lock()
	l.closed = false
	l.mu.Unlock()
	return l, nil
}

// Output implements io.Chip.
func (c *Chip) Output(offset, initial int, consumer string) (io.Line, error) {
	l, err := c.request("output", offset)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.output = true
	l.value = initial
	l.mu.Unlock()
	return l, nil
}

// Input implements io.Chip.
func (c *Chip) Input(offset int, consumer string) (io.Line, error) {
	l, err := c.request("input", offset)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Close implements io.Chip.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
