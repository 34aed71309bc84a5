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

package sim

import (
	"sync"
)

// AxisConfig describes how a simulated axis is wired to a Chip.
type AxisConfig struct {
	Step, Dir, Home int
	DirInvert       bool
	HomeActive      int   // level read when the switch is closed
	HomeDir         int   // direction of travel towards the switch
	HomeAt          int64 // switch closes at or beyond this position
}

// Axis follows the step and direction lines of a driver and reports
// the home switch according to the simulated position.
type Axis struct {
	mu     sync.Mutex
	cfg    AxisConfig
	pos    int64
	dir    int64
	last   int
	pulses int
	forced bool
	closed bool
}

// NewAxis attaches an axis to the step, dir and home lines of c.
func NewAxis(c *Chip, cfg AxisConfig) *Axis {
	a := &Axis{cfg: cfg, dir: 1}
	c.Line(cfg.Step).OnSet(a.step)
	c.Line(cfg.Dir).OnSet(a.direction)
	c.Line(cfg.Home).Source(a.home)
	return a
}

func (a *Axis) step(v int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == 1 && v == 0 {
		a.pos += a.dir
		a.pulses++
	}
	a.last = v
}

func (a *Axis) direction(v int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg.DirInvert {
		v ^= 1
	}
	if v == 1 {
		a.dir = 1
	} else {
		a.dir = -1
	}
}

func (a *Axis) home() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.switchClosed() {
		return a.cfg.HomeActive
	}
	return a.cfg.HomeActive ^ 1
}

func (a *Axis) switchClosed() bool {
	switch {
	case a.forced:
		return a.closed
	case a.cfg.HomeDir < 0:
		return a.pos <= a.cfg.HomeAt
	case a.cfg.HomeDir > 0:
		return a.pos >= a.cfg.HomeAt
	}
	return false
}

// ForceSwitch overrides the switch state regardless of position.
func (a *Axis) ForceSwitch(closed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.forced = true
	a.closed = closed
}

// ReleaseSwitch returns the switch to position based operation.
func (a *Axis) ReleaseSwitch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.forced = false
}

// Position returns the physical position of the axis in steps.
func (a *Axis) Position() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pos
}

// Pulses returns the number of complete step pulses seen.
func (a *Axis) Pulses() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pulses
}
