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

package dispense

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EMZIlab/Wingo-deposit-machine/scale"
	"github.com/EMZIlab/Wingo-deposit-machine/sim"
	"github.com/EMZIlab/Wingo-deposit-machine/stepper"
)

// script returns each weight in turn, then repeats the last.
type script struct {
	mu sync.Mutex
	w  []float64
}

func (s *script) Weight() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.w[0]
	if len(s.w) > 1 {
		s.w = s.w[1:]
	}
	return v
}

type mover struct {
	targets []int64
	err     error
}

func (m *mover) MoveAbs(ctx context.Context, target int64, speed, accel uint32) error {
	if m.err != nil {
		return m.err
	}
	m.targets = append(m.targets, target)
	return nil
}

type events []Event

func (e *events) Record(ev Event) error {
	*e = append(*e, ev)
	return nil
}

func seqConfig() Config {
	return Config{
		Threshold:    0.03,
		Settle:       time.Millisecond,
		SampleCount:  3,
		SamplePeriod: time.Millisecond,
		Position:     10000,
		Speed:        10000,
		Accel:        10000,
	}
}

func TestCycleProceedsWhenStable(t *testing.T) {
	m := &mover{}
	var ev events
	s := NewSequencer(seqConfig(), &script{w: []float64{0.0, 0.05, 0.051}}, m, &ev)
	o, err := s.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Idle, o)
	assert.Empty(t, ev)

	o, err = s.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Dispensed, o)
	require.Len(t, ev, 1)
	assert.InDelta(t, 0.051, ev[0].Weight, 1e-9)
	assert.Equal(t, 3, ev[0].Samples)
	assert.Equal(t, time.Millisecond, ev[0].Settle)
	assert.Equal(t, []int64{10000, 0}, m.targets)
}

func TestCycleUnstable(t *testing.T) {
	m := &mover{}
	var ev events
	s := NewSequencer(seqConfig(), &script{w: []float64{0.0, 0.05, 0.09}}, m, &ev)
	o, err := s.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Idle, o)
	o, err = s.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unstable, o)
	assert.Empty(t, ev)
	assert.Empty(t, m.targets)
}

func TestCycleTransient(t *testing.T) {
	m := &mover{}
	var ev events
	s := NewSequencer(seqConfig(), &script{w: []float64{0.05, 0.01}}, m, &ev)
	o, err := s.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Transient, o)
	assert.Empty(t, ev)
	assert.Empty(t, m.targets)
}

func TestCycleAtThresholdIsIdle(t *testing.T) {
	s := NewSequencer(seqConfig(), &script{w: []float64{0.03}}, &mover{}, new(events))
	o, err := s.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Idle, o)
}

func TestCycleAverages(t *testing.T) {
	cfg := seqConfig()
	cfg.SampleCount = 4
	var ev events
	s := NewSequencer(cfg, &script{w: []float64{0.100, 0.101, 0.100, 0.102, 0.104, 0.106}}, &mover{}, &ev)
	o, err := s.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Dispensed, o)
	require.Len(t, ev, 1)
	assert.InDelta(t, 0.103, ev[0].Weight, 1e-9)
}

func TestCycleSingleSample(t *testing.T) {
	cfg := seqConfig()
	cfg.SampleCount = 0
	var ev events
	s := NewSequencer(cfg, &script{w: []float64{0.2, 0.2, 0.5, 0.7}}, &mover{}, &ev)
	o, err := s.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Dispensed, o)
	require.Len(t, ev, 1)
	assert.Equal(t, 1, ev[0].Samples)
	assert.InDelta(t, 0.5, ev[0].Weight, 1e-9)
}

func TestCycleCancelled(t *testing.T) {
	cfg := seqConfig()
	cfg.Settle = time.Hour
	m := &mover{}
	var ev events
	s := NewSequencer(cfg, &script{w: []float64{0.05}}, m, &ev)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	o, err := s.Cycle(ctx)
	assert.Equal(t, Cancelled, o)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, ev)
	assert.Empty(t, m.targets)
}

func TestCycleMoveFails(t *testing.T) {
	m := &mover{err: stepper.ErrInvalidCommand}
	s := NewSequencer(seqConfig(), &script{w: []float64{0.05}}, m, new(events))
	_, err := s.Cycle(context.Background())
	assert.ErrorIs(t, err, stepper.ErrInvalidCommand)
	assert.ErrorIs(t, s.Run(context.Background()), stepper.ErrInvalidCommand)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewSequencer(seqConfig(), &script{w: []float64{0}}, &mover{}, new(events))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Run(ctx))
}

func TestCSVLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "scale_log.csv")
	l := NewCSVLog(path)
	require.NoError(t, l.Record(Event{Settle: time.Second, SamplePeriod: 50 * time.Millisecond, Weight: 0.0512}))
	require.NoError(t, l.Record(Event{Settle: time.Second, SamplePeriod: 50 * time.Millisecond, Weight: 1.25}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "settle_ms,sample_period_ms,avg_weight_kg\n1000,50,0.051\n1000,50,1.250\n", string(b))
}

func TestCSVLogExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scale_log.csv")
	require.NoError(t, os.WriteFile(path, []byte("settle_ms,sample_period_ms,avg_weight_kg\n"), 0644))
	l := NewCSVLog(path)
	require.NoError(t, l.Record(Event{Settle: 500 * time.Millisecond, SamplePeriod: 20 * time.Millisecond, Weight: 2}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(b), "settle_ms"))
	assert.True(t, strings.HasSuffix(string(b), "500,20,2.000\n"))
}

func TestCSVLogError(t *testing.T) {
	dir := t.TempDir()
	l := NewCSVLog(dir)
	assert.Error(t, l.Record(Event{}))
}

func TestMachine(t *testing.T) {
	const (
		step, dir, en, home = 24, 23, 17, 22
		sck, dout           = 6, 5
		tare                = 1748000
		perKg               = 951010
	)
	chip := sim.NewChip("gpiochip4")
	axis := sim.NewAxis(chip, sim.AxisConfig{Step: step, Dir: dir, Home: home, HomeDir: -1, HomeAt: -30})
	var load atomic.Uint64
	sim.NewHX711(chip, sck, dout, func() int32 {
		return sim.Counts(tare, perKg, math.Float64frombits(load.Load()))
	})
	motor, err := stepper.New(stepper.Config{Step: step, Dir: dir, Enable: en, Home: home, PulseWidth: 10}, chip)
	require.NoError(t, err)
	defer motor.Close()
	hx, err := scale.NewHX711(scale.Config{SCK: sck, DOUT: dout}, chip)
	require.NoError(t, err)
	defer hx.Close()

	var pub scale.Published
	path := filepath.Join(t.TempDir(), "scale_log.csv")
	m := &Machine{
		Motor: motor,
		Loop:  stepper.DefaultLoop,
		Home:  stepper.HomeConfig{Dir: -1, Speed: 8000, Offset: 0},
		Sampler: &scale.Sampler{
			Reader:      hx,
			Calibration: scale.Calibration{TareOffset: tare, CountsPerKg: perKg},
			Published:   &pub,
			Period:      2 * time.Millisecond,
		},
		Sequencer: NewSequencer(Config{
			Threshold:    0.03,
			Settle:       10 * time.Millisecond,
			SampleCount:  3,
			SamplePeriod: 2 * time.Millisecond,
			Poll:         5 * time.Millisecond,
			Position:     100,
			Speed:        8000,
		}, &pub, motor, NewCSVLog(path)),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() { result <- m.Run(ctx) }()

	require.Eventually(t, motor.Homed, 5*time.Second, time.Millisecond)
	load.Store(math.Float64bits(0.25))
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(path)
		return err == nil && strings.Count(string(b), "\n") >= 2
	}, 10*time.Second, 5*time.Millisecond)
	load.Store(math.Float64bits(0))
	require.Eventually(t, func() bool { return axis.Pulses() >= 30+200 }, 5*time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("machine did not stop")
	}
	assert.Equal(t, stepper.Ready, motor.State())
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), ",0.250\n")
}

func TestMachineHomingFailure(t *testing.T) {
	chip := sim.NewChip("gpiochip4")
	sim.NewAxis(chip, sim.AxisConfig{Step: 1, Dir: 2, Home: 3, HomeDir: -1, HomeAt: math.MinInt64})
	sim.NewHX711(chip, 4, 5, sim.Constant(0))
	motor, err := stepper.New(stepper.Config{Step: 1, Dir: 2, Enable: 6, Home: 3}, chip)
	require.NoError(t, err)
	hx, err := scale.NewHX711(scale.Config{SCK: 4, DOUT: 5}, chip)
	require.NoError(t, err)
	var pub scale.Published
	m := &Machine{
		Motor:     motor,
		Loop:      stepper.DefaultLoop,
		Home:      stepper.HomeConfig{Dir: 0, Speed: 1000},
		Sampler:   &scale.Sampler{Reader: hx, Calibration: scale.Calibration{CountsPerKg: 1}, Published: &pub},
		Sequencer: NewSequencer(seqConfig(), &pub, motor, new(events)),
	}
	err = m.Run(context.Background())
	assert.ErrorIs(t, err, stepper.ErrInvalidCommand)
	assert.Equal(t, stepper.Ready, motor.State())
	assert.False(t, errors.Is(err, context.Canceled))
}
