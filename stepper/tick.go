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

package stepper

import (
	"fmt"

	"github.com/EMZIlab/Wingo-deposit-machine/timing"
)

// Advance runs one tick of the motion generator at time now (µs).
// It must be called from a single goroutine, at a rate well above the
// highest step rate in use.
//
// A step pulse is two edges. The rising edge is emitted when the step
// period since the previous falling edge has elapsed, and the falling
// edge once the pulse width has passed. The deadline of the next
// rising edge is recomputed on every tick from the current ramp speed,
// so an accelerating motor pulls the edge in.
func (c *Controller) Advance(now uint32) {
	dt := now - c.lastTick
	c.lastTick = now
	if c.high {
		if timing.Before(now, c.nextEdge) {
			return
		}
		c.fall(now)
		return
	}
	// No pulse in progress, so commands may be applied here.
	if seq := c.stopAt.Load(); seq > c.done.Load() {
		c.abort(seq)
	}
	if c.active == 0 {
		if c.held != nil {
			cmd := *c.held
			c.held = nil
			c.begin(cmd, now)
		} else {
			select {
			case cmd := <-c.cmds:
				c.begin(cmd, now)
			default:
			}
		}
	}
	// Evaluated on idle ticks too, so the latch is set long before
	// the clock could wrap past the enable time.
	settled := c.settle(now)
	s := c.State()
	if s != Moving && s != Homing {
		if c.active != 0 {
			// Disabled or faulted while moving.
			if s == Ready {
				c.markStopped(c.active, c.active)
			}
			c.complete()
		}
		return
	}
	if !settled {
		return
	}
	if s == Homing {
		at, err := c.AtHome()
		if err != nil {
			c.setFault(err)
			c.complete()
			return
		}
		if at {
			c.homed.Store(true)
			c.finish(Homing)
			return
		}
	} else if c.pos.Load() == c.target {
		c.finish(Moving)
		return
	}
	c.ramp(dt)
	if timing.Before(now, c.dirReady) {
		return
	}
	if c.fresh {
		// First edge of a motion is scheduled, not emitted.
		c.fresh = false
		c.lastFall = now
		c.nextEdge = now + c.interval()
		return
	}
	c.nextEdge = c.lastFall + c.interval()
	if timing.Before(now, c.nextEdge) {
		return
	}
	if err := c.step.Set(1); err != nil {
		c.setFault(fmt.Errorf("%s: step: %w", c.Name, err))
		c.complete()
		return
	}
	c.high = true
	c.nextEdge = now + c.pulseWidth()
}

// fall ends the step pulse and accounts for the step.
func (c *Controller) fall(now uint32) {
	if err := c.step.Set(0); err != nil {
		c.setFault(fmt.Errorf("%s: step: %w", c.Name, err))
		c.high = false
		c.complete()
		return
	}
	c.high = false
	c.pos.Add(c.dirSign)
	c.lastFall = now
	c.nextEdge = now + c.interval()
}

// begin starts a command taken from the queue.
func (c *Controller) begin(cmd command, now uint32) {
	var dir int64
	next := Moving
	switch cmd.kind {
	case cmdSetPosition:
		c.pos.Store(cmd.target)
		c.done.Store(cmd.seq)
		return
	case cmdMoveRel:
		cmd.target += c.pos.Load()
		fallthrough
	case cmdMove:
		c.target = cmd.target
		dir = 1
		if cmd.target < c.pos.Load() {
			dir = -1
		}
	case cmdHome:
		dir = int64(cmd.dir)
		next = Homing
		c.homed.Store(false)
	}
	if !c.state.CompareAndSwap(int32(Enabled), int32(next)) {
		// Disabled since the command was queued.
		c.markStopped(cmd.seq, cmd.seq)
		c.done.Store(cmd.seq)
		return
	}
	c.active = cmd.seq
	c.speed = min(cmd.speed, MaxSpeed)
	c.accel = cmd.accel
	c.accum = 0
	c.fresh = true
	if dir != c.dirSign || next == Homing {
		if err := c.dir.Set(c.dirLevel(dir)); err != nil {
			c.setFault(fmt.Errorf("%s: dir: %w", c.Name, err))
			c.complete()
			return
		}
		c.dirSign = dir
	}
	c.dirReady = now + c.cfg.DirSetup
}

// settle reports whether the enable settle time has elapsed.
// Once elapsed it is latched until the driver is enabled again, so
// the comparison never sees the clock wrap.
func (c *Controller) settle(now uint32) bool {
	if g := c.enableGen.Load(); g != c.gen {
		c.gen = g
		c.settled = false
	}
	if !c.settled {
		if timing.Before(now, c.enabledAt.Load()+c.cfg.EnableSettle) {
			return false
		}
		c.settled = true
	}
	return true
}

// ramp advances the speed accumulator by dt µs.
func (c *Controller) ramp(dt uint32) {
	limit := uint64(c.speed) * speedScale
	if c.accel == 0 {
		c.accum = limit
		return
	}
	inc := uint64(c.accel) * uint64(dt)
	if c.cfg.Decelerate && c.State() == Moving && c.braking() {
		if c.accum > inc {
			c.accum -= inc
		} else {
			c.accum = 0
		}
		return
	}
	c.accum += inc
	if c.accum > limit {
		c.accum = limit
	}
}

// braking reports whether the remaining distance is within the
// stopping distance at the current speed.
func (c *Controller) braking() bool {
	left := c.target - c.pos.Load()
	if left < 0 {
		left = -left
	}
	v := c.accum / speedScale
	return uint64(left)*2*uint64(c.accel) <= v*v
}

// currentSpeed returns the ramp speed clamped to the speed limits.
func (c *Controller) currentSpeed() uint32 {
	v := c.accum / speedScale
	if v < MinSpeed {
		v = MinSpeed
	}
	if v > MaxSpeed {
		v = MaxSpeed
	}
	return uint32(v)
}

// interval returns the time from a falling edge to the next rising edge.
func (c *Controller) interval() uint32 {
	p := period(c.currentSpeed())
	return p - pulseWidth(c.cfg.PulseWidth, p)
}

func (c *Controller) pulseWidth() uint32 {
	return pulseWidth(c.cfg.PulseWidth, period(c.currentSpeed()))
}

// period returns the step period in µs for speed steps/s.
func period(speed uint32) uint32 {
	return 1000000 / speed
}

// pulseWidth returns the high time of a step pulse: at least 3µs and
// the configured minimum, but never more than half the period.
func pulseWidth(width, period uint32) uint32 {
	w := max(width, minPulseWidth)
	if w > period/2 {
		w = period / 2
	}
	return w
}

// finish completes the active command normally.
func (c *Controller) finish(from State) {
	c.state.CompareAndSwap(int32(from), int32(Enabled))
	c.complete()
}

// complete marks the active command done and resets the ramp.
func (c *Controller) complete() {
	c.accum = 0
	if c.active != 0 {
		c.done.Store(c.active)
		c.active = 0
	}
}

// abort abandons the active command and the queued commands with
// sequence numbers up to seq. Later commands stay queued.
func (c *Controller) abort(seq uint64) {
	from := c.done.Load() + 1
	if c.active != 0 {
		c.state.CompareAndSwap(int32(Moving), int32(Enabled))
		c.state.CompareAndSwap(int32(Homing), int32(Enabled))
		c.accum = 0
		c.active = 0
	}
	if c.held != nil && c.held.seq <= seq {
		c.held = nil
	}
	for c.held == nil {
		select {
		case cmd := <-c.cmds:
			if cmd.seq > seq {
				c.held = &cmd
			}
			continue
		default:
		}
		break
	}
	c.markStopped(from, seq)
	c.done.Store(seq)
}
