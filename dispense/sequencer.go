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

// Package dispense watches the scale for a deposit and, once the
// weight is stable, logs it and runs the dispense motion.
package dispense

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/EMZIlab/Wingo-deposit-machine/timing"
)

// Outcome is the result of one sequencer cycle.
type Outcome int

const (
	Idle      Outcome = iota // Weight at or below threshold
	Transient                // Weight fell back below threshold after settling
	Unstable                 // Weight still changing after settling
	Dispensed                // Weight logged and dispense motion run
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Idle:
		return "idle"
	case Transient:
		return "transient"
	case Unstable:
		return "unstable"
	case Dispensed:
		return "dispensed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

const (
	DefaultEpsilon = 0.005 // kg
	DefaultPoll    = 50 * time.Millisecond
)

// Weigher supplies the latest published weight in kg.
type Weigher interface {
	Weight() float64
}

// Mover runs a motion to an absolute position and waits for it.
type Mover interface {
	MoveAbs(ctx context.Context, target int64, speed, accel uint32) error
}

// Event is one logged deposit.
type Event struct {
	Time         time.Time
	Settle       time.Duration
	SamplePeriod time.Duration
	Samples      int
	Weight       float64 // Averaged weight in kg
}

// Recorder persists deposit events.
type Recorder interface {
	Record(Event) error
}

// Config sets the trigger, sampling and motion of the sequencer.
type Config struct {
	Threshold    float64 // kg; a weight above this starts a cycle
	Epsilon      float64 // kg; maximum change over the settle time
	Settle       time.Duration
	SampleCount  int // Readings averaged; 0 takes a single reading
	SamplePeriod time.Duration
	Poll         time.Duration // Interval between cycles
	Position     int64         // Dispense position in steps
	Speed        uint32
	Accel        uint32
}

// Sequencer detects deposits and dispenses them.
type Sequencer struct {
	Name   string
	cfg    Config
	scale  Weigher
	motor  Mover
	record Recorder
}

// NewSequencer returns a sequencer reading weights from scale, moving
// motor and logging to record.
func NewSequencer(cfg Config, scale Weigher, motor Mover, record Recorder) *Sequencer {
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = DefaultEpsilon
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	return &Sequencer{Name: "dispense", cfg: cfg, scale: scale, motor: motor, record: record}
}

// Cycle runs one pass of the sequence:
// read the weight, and if it is above the threshold wait the settle
// time and read again. A reading that dropped below the threshold, or
// changed by more than epsilon, ends the cycle. Otherwise the weight
// is averaged and recorded, and the motor moved to the dispense
// position and back to 0.
// Cancellation ends the cycle at the next wait with Cancelled and the
// context error; no partial event is recorded.
func (s *Sequencer) Cycle(ctx context.Context) (Outcome, error) {
	w0 := s.scale.Weight()
	if w0 <= s.cfg.Threshold {
		return Idle, nil
	}
	if !timing.Sleep(ctx, s.cfg.Settle) {
		return Cancelled, ctx.Err()
	}
	w1 := s.scale.Weight()
	if w1 < s.cfg.Threshold {
		return Transient, nil
	}
	if math.Abs(w1-w0) > s.cfg.Epsilon {
		return Unstable, nil
	}
	n := max(s.cfg.SampleCount, 1)
	var sum float64
	for i := 0; i < n; i++ {
		if i > 0 && !timing.Sleep(ctx, s.cfg.SamplePeriod) {
			return Cancelled, ctx.Err()
		}
		sum += s.scale.Weight()
	}
	ev := Event{
		Time:         time.Now(),
		Settle:       s.cfg.Settle,
		SamplePeriod: s.cfg.SamplePeriod,
		Samples:      n,
		Weight:       sum / float64(n),
	}
	if ctx.Err() != nil {
		return Cancelled, ctx.Err()
	}
	if err := s.record.Record(ev); err != nil {
		// A lost log record does not stop the dispense.
		log.Printf("%s: record: %v", s.Name, err)
	}
	log.Printf("%s: deposit %.3f kg", s.Name, ev.Weight)
	if err := s.motor.MoveAbs(ctx, s.cfg.Position, s.cfg.Speed, s.cfg.Accel); err != nil {
		return s.failed(ctx, err)
	}
	if err := s.motor.MoveAbs(ctx, 0, s.cfg.Speed, s.cfg.Accel); err != nil {
		return s.failed(ctx, err)
	}
	return Dispensed, nil
}

func (s *Sequencer) failed(ctx context.Context, err error) (Outcome, error) {
	if ctx.Err() != nil {
		return Cancelled, ctx.Err()
	}
	return Dispensed, fmt.Errorf("%s: move: %w", s.Name, err)
}

// Run repeats Cycle every poll interval until ctx is cancelled or a
// motion fails.
func (s *Sequencer) Run(ctx context.Context) error {
	log.Printf("%s: running, threshold %.3f kg", s.Name, s.cfg.Threshold)
	for {
		o, err := s.Cycle(ctx)
		switch {
		case o == Cancelled:
			return nil
		case err != nil:
			return err
		case o == Transient || o == Unstable:
			log.Printf("%s: deposit %s, waiting", s.Name, o)
		}
		if !timing.Sleep(ctx, s.cfg.Poll) {
			return nil
		}
	}
}
