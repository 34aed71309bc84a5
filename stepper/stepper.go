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

// Package stepper drives a step/direction stepper motor driver.
//
// The motor is advanced by a high rate periodic tick (see Run), which
// generates step pulses with a linear speed ramp. Other goroutines
// submit commands that are queued to the tick; the tick applies them
// in order, only between pulses, so a command never truncates a pulse
// or corrupts the motion in progress.
// Position, state and the homed flag are published atomically and can
// be read from any goroutine.
package stepper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/EMZIlab/Wingo-deposit-machine/io"
	"github.com/EMZIlab/Wingo-deposit-machine/timing"
)

// State is the motion state of the controller.
type State int32

const (
	Uninit  State = iota
	Ready   // Lines requested, driver disabled
	Enabled // Driver enabled, idle
	Moving  // Moving towards a target position
	Homing  // Moving towards the home switch
	Fault   // A line write failed; only Close is useful
)

var stateNames = [...]string{"uninit", "ready", "enabled", "moving", "homing", "fault"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Speed limits in steps per second. The maximum keeps a 3µs pulse
// inside half of the step period.
const (
	MinSpeed = 1
	MaxSpeed = 160000
)

const (
	speedScale    = 1000000 // Fixed point scale of the speed accumulator
	minPulseWidth = 3       // µs
	queueSize     = 20      // Size of queue for commands
	maxStopped    = 32      // Abandoned ranges remembered for Wait
	pollInterval  = 500 * time.Microsecond

	DefaultDirSetup     = 20   // µs
	DefaultEnableSettle = 5000 // µs
)

// ErrInvalidCommand is returned for commands that the controller
// cannot accept in its current state or with the given parameters.
var ErrInvalidCommand = errors.New("invalid command")

// ErrStopped is returned by Wait for a command that was abandoned by
// Stop or Disable before it completed.
var ErrStopped = errors.New("command abandoned")

// Config describes the wiring and timing of a motor driver.
type Config struct {
	Name         string
	Step         int // Line offsets
	Dir          int
	Enable       int
	Home         int
	DirInvert    bool
	EnableActive int    // Level that enables the driver
	HomeActive   int    // Level of the home switch when closed
	PulseWidth   uint32 // Minimum step pulse high time, µs
	StepsPerRev  uint32
	EnableSettle uint32 // Delay after enable before the first pulse, µs
	DirSetup     uint32 // Delay after a direction change before the first pulse, µs
	// Decelerate ramps the speed down on approach to the target.
	// When false, motion stops abruptly at the target as the driver
	// expects no deceleration phase.
	Decelerate bool
	// Clock returns the µs counter used for Enable. Defaults to timing.Micros.
	Clock func() uint32
}

type cmdKind int

const (
	cmdMove cmdKind = iota
	cmdMoveRel
	cmdHome
	cmdSetPosition
)

type command struct {
	kind   cmdKind
	seq    uint64
	target int64 // Position, or distance for cmdMoveRel
	speed  uint32
	accel  uint32
	dir    int
}

// Controller is a stepper motor behind a step/direction driver.
type Controller struct {
	Name string
	cfg  Config

	step, dir, enable, home io.Line

	state     atomic.Int32
	pos       atomic.Int64
	homed     atomic.Bool
	stopAt    atomic.Uint64 // Commands up to this seq are abandoned
	enabledAt atomic.Uint32
	enableGen atomic.Uint32
	fault     atomic.Pointer[error]

	submitMu  sync.Mutex
	cmds      chan command
	submitted atomic.Uint64
	done      atomic.Uint64

	stoppedMu sync.Mutex
	stopped   []span // Abandoned commands, oldest first

	// Owned by the tick.
	active   uint64   // seq of the command in progress, 0 if none
	held     *command // taken from the queue by abort, not yet started
	target   int64
	speed    uint32 // target speed, steps/s
	accel    uint32 // steps/s²
	accum    uint64 // current speed scaled by speedScale
	dirSign  int64
	high     bool // step line is high
	fresh    bool // next edge is the first since setup
	nextEdge uint32
	lastFall uint32
	dirReady uint32
	lastTick uint32
	gen      uint32
	settled  bool
}

// span is an inclusive range of command sequence numbers.
type span struct {
	from, to uint64
}

// New requests the driver lines from chip and returns a controller
// in the Ready state, with the driver disabled and position 0.
// If any line cannot be requested, the lines already acquired are
// released and the hardware error is returned.
func New(cfg Config, chip io.Chip) (*Controller, error) {
	c := new(Controller)
	if cfg.Name == "" {
		cfg.Name = "stepper"
	}
	if cfg.Clock == nil {
		cfg.Clock = timing.Micros
	}
	c.Name = cfg.Name
	c.cfg = cfg
	c.cmds = make(chan command, queueSize)
	c.dirSign = 1
	var err error
	if c.step, err = chip.Output(cfg.Step, 0, cfg.Name+"-step"); err != nil {
		return nil, c.abandon("step", err)
	}
	if c.dir, err = chip.Output(cfg.Dir, c.dirLevel(1), cfg.Name+"-dir"); err != nil {
		return nil, c.abandon("dir", err)
	}
	if c.enable, err = chip.Output(cfg.Enable, cfg.EnableActive^1, cfg.Name+"-en"); err != nil {
		return nil, c.abandon("enable", err)
	}
	if c.home, err = chip.Input(cfg.Home, cfg.Name+"-home"); err != nil {
		return nil, c.abandon("home", err)
	}
	c.state.Store(int32(Ready))
	return c, nil
}

func (c *Controller) abandon(what string, err error) error {
	c.release()
	return fmt.Errorf("%s: %s line: %w", c.Name, what, err)
}

func (c *Controller) release() error {
	var err error
	for _, l := range []io.Line{c.step, c.dir, c.enable, c.home} {
		if l != nil {
			err = multierr.Append(err, l.Close())
		}
	}
	c.step, c.dir, c.enable, c.home = nil, nil, nil, nil
	return err
}

// Close disables the driver and releases the lines.
// The tick loop must have been stopped first.
func (c *Controller) Close() error {
	if c.State() == Uninit {
		return nil
	}
	var err error
	if c.enable != nil {
		err = c.enable.Set(c.cfg.EnableActive ^ 1)
	}
	err = multierr.Append(err, c.release())
	c.state.Store(int32(Uninit))
	return err
}

// State returns the current motion state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Position returns the current position in steps.
func (c *Controller) Position() int64 {
	return c.pos.Load()
}

// Degrees returns the current position as an angle.
func (c *Controller) Degrees() float64 {
	if c.cfg.StepsPerRev == 0 {
		return 0
	}
	return float64(c.pos.Load()) * 360 / float64(c.cfg.StepsPerRev)
}

// Homed reports whether the last homing run found the switch.
func (c *Controller) Homed() bool {
	return c.homed.Load()
}

// Idle reports whether all submitted commands have completed.
func (c *Controller) Idle() bool {
	return c.done.Load() >= c.submitted.Load()
}

// Err returns the error that put the controller into Fault.
func (c *Controller) Err() error {
	if p := c.fault.Load(); p != nil {
		return *p
	}
	return nil
}

// AtHome reads the home switch.
func (c *Controller) AtHome() (bool, error) {
	if c.home == nil {
		return false, fmt.Errorf("%s: %w: motor %s", c.Name, ErrInvalidCommand, c.State())
	}
	v, err := c.home.Get()
	if err != nil {
		return false, fmt.Errorf("%s: home: %w", c.Name, err)
	}
	return v == c.cfg.HomeActive, nil
}

// Enable enables the driver. Step pulses are held off until the
// enable settle time has passed.
func (c *Controller) Enable() error {
	switch s := c.State(); s {
	case Uninit, Fault:
		return fmt.Errorf("%s: %w: motor %s", c.Name, ErrInvalidCommand, s)
	}
	if err := c.enable.Set(c.cfg.EnableActive); err != nil {
		c.setFault(fmt.Errorf("%s: enable: %w", c.Name, err))
		return c.Err()
	}
	c.enabledAt.Store(c.cfg.Clock())
	c.enableGen.Add(1)
	c.state.CompareAndSwap(int32(Ready), int32(Enabled))
	return nil
}

// Disable disables the driver. Any motion in progress is abandoned
// at the next tick; a pulse already high is completed first.
func (c *Controller) Disable() error {
	if s := c.State(); s == Uninit {
		return fmt.Errorf("%s: %w: motor %s", c.Name, ErrInvalidCommand, s)
	}
	if err := c.enable.Set(c.cfg.EnableActive ^ 1); err != nil {
		c.setFault(fmt.Errorf("%s: disable: %w", c.Name, err))
		return c.Err()
	}
	for {
		s := c.state.Load()
		if State(s) == Fault || c.state.CompareAndSwap(s, int32(Ready)) {
			return nil
		}
	}
}

// StartMoveAbs queues a move to target, returning the sequence number
// of the command for use with Wait.
// speed is in steps/s, accel in steps/s². An accel of 0 starts at full speed.
func (c *Controller) StartMoveAbs(target int64, speed, accel uint32) (uint64, error) {
	if speed == 0 {
		return 0, fmt.Errorf("%s: %w: zero speed", c.Name, ErrInvalidCommand)
	}
	return c.submit(command{kind: cmdMove, target: target, speed: speed, accel: accel})
}

// StartMoveRel queues a move of delta steps from the position the
// motor is at when the command starts, after any queued motion.
func (c *Controller) StartMoveRel(delta int64, speed, accel uint32) (uint64, error) {
	if speed == 0 {
		return 0, fmt.Errorf("%s: %w: zero speed", c.Name, ErrInvalidCommand)
	}
	return c.submit(command{kind: cmdMoveRel, target: delta, speed: speed, accel: accel})
}

// StartHoming queues a move in direction dir (+1 or -1) that ends
// when the home switch closes.
func (c *Controller) StartHoming(speed, accel uint32, dir int) (uint64, error) {
	if speed == 0 {
		return 0, fmt.Errorf("%s: %w: zero speed", c.Name, ErrInvalidCommand)
	}
	if dir != 1 && dir != -1 {
		return 0, fmt.Errorf("%s: %w: homing direction %d", c.Name, ErrInvalidCommand, dir)
	}
	return c.submit(command{kind: cmdHome, speed: speed, accel: accel, dir: dir})
}

// SetPosition queues a redefinition of the current position.
// It takes effect after any queued motion has completed.
func (c *Controller) SetPosition(pos int64) (uint64, error) {
	return c.submit(command{kind: cmdSetPosition, target: pos})
}

// Stop abandons the motion in progress and all commands queued so far
// at the next safe point. Commands submitted after Stop returns are not
// affected. The position stays where the motor stopped.
func (c *Controller) Stop() {
	c.submitMu.Lock()
	seq := c.submitted.Load()
	c.submitMu.Unlock()
	for {
		old := c.stopAt.Load()
		if seq <= old || c.stopAt.CompareAndSwap(old, seq) {
			return
		}
	}
}

func (c *Controller) submit(cmd command) (uint64, error) {
	switch s := c.State(); s {
	case Uninit, Fault:
		return 0, fmt.Errorf("%s: %w: motor %s", c.Name, ErrInvalidCommand, s)
	case Ready:
		if cmd.kind != cmdSetPosition {
			return 0, fmt.Errorf("%s: %w: motor disabled", c.Name, ErrInvalidCommand)
		}
	}
	c.submitMu.Lock()
	defer c.submitMu.Unlock()
	cmd.seq = c.submitted.Load() + 1
	select {
	case c.cmds <- cmd:
		c.submitted.Store(cmd.seq)
		return cmd.seq, nil
	default:
		return 0, fmt.Errorf("%s: %w: command queue full", c.Name, ErrInvalidCommand)
	}
}

// Wait blocks until the command with sequence number seq has completed.
// If ctx is cancelled first, the motion is stopped and the context
// error returned.
func (c *Controller) Wait(ctx context.Context, seq uint64) error {
	for c.done.Load() < seq {
		if c.State() == Fault {
			return c.Err()
		}
		if !timing.Sleep(ctx, pollInterval) {
			c.Stop()
			return ctx.Err()
		}
	}
	if c.State() == Fault {
		return c.Err()
	}
	if c.abandoned(seq) {
		return fmt.Errorf("%s: %w: command %d", c.Name, ErrStopped, seq)
	}
	return nil
}

// markStopped records commands from..to as abandoned. It must be
// called before done is advanced past them.
func (c *Controller) markStopped(from, to uint64) {
	c.stoppedMu.Lock()
	defer c.stoppedMu.Unlock()
	if n := len(c.stopped); n > 0 && c.stopped[n-1].to+1 == from {
		c.stopped[n-1].to = to
		return
	}
	c.stopped = append(c.stopped, span{from, to})
	if len(c.stopped) > maxStopped {
		c.stopped = c.stopped[1:]
	}
}

func (c *Controller) abandoned(seq uint64) bool {
	c.stoppedMu.Lock()
	defer c.stoppedMu.Unlock()
	for _, s := range c.stopped {
		if seq >= s.from && seq <= s.to {
			return true
		}
	}
	return false
}

// MoveAbs moves to target and waits for the move to complete.
func (c *Controller) MoveAbs(ctx context.Context, target int64, speed, accel uint32) error {
	seq, err := c.StartMoveAbs(target, speed, accel)
	if err != nil {
		return err
	}
	return c.Wait(ctx, seq)
}

// MoveRel moves delta steps and waits for the move to complete.
func (c *Controller) MoveRel(ctx context.Context, delta int64, speed, accel uint32) error {
	seq, err := c.StartMoveRel(delta, speed, accel)
	if err != nil {
		return err
	}
	return c.Wait(ctx, seq)
}

func (c *Controller) setFault(err error) {
	c.fault.Store(&err)
	c.state.Store(int32(Fault))
	log.Printf("%s: fault: %v", c.Name, err)
}

func (c *Controller) dirLevel(dir int64) int {
	v := 0
	if dir > 0 {
		v = 1
	}
	if c.cfg.DirInvert {
		v ^= 1
	}
	return v
}
