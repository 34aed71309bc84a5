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

// Package scale reads a load cell through an HX711 amplifier and
// publishes calibrated weights.
package scale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/EMZIlab/Wingo-deposit-machine/io"
	"github.com/EMZIlab/Wingo-deposit-machine/timing"
)

// ErrTimeout is returned when the amplifier does not signal a ready
// conversion in time.
var ErrTimeout = errors.New("load cell not ready")

const (
	DefaultReadyTimeout = 2 * time.Second
	readyPoll           = 500 * time.Microsecond
)

// Calibration converts raw counts into kilograms.
type Calibration struct {
	TareOffset  int32   // Raw count with no load
	CountsPerKg float64 // Raw counts per kg of load
}

// Kg converts a raw reading to kilograms.
func (c Calibration) Kg(raw int32) float64 {
	return float64(raw-c.TareOffset) / c.CountsPerKg
}

// SignExtend converts a 24 bit two's complement value to int32.
func SignExtend(v uint32) int32 {
	v &= 0xFFFFFF
	if v&0x800000 != 0 {
		v |= 0xFF000000
	}
	return int32(v)
}

// Config is the wiring of an HX711.
type Config struct {
	Name         string
	SCK, DOUT    int
	ReadyTimeout time.Duration // 0 selects DefaultReadyTimeout
}

// HX711 is an HX711 amplifier read by toggling its clock line.
// Channel A with a gain of 128 is used.
type HX711 struct {
	Name    string
	sck     io.Line
	dout    io.Line
	timeout time.Duration
}

// NewHX711 requests the clock (driven low) and data lines from chip.
func NewHX711(cfg Config, chip io.Chip) (*HX711, error) {
	h := new(HX711)
	h.Name = cfg.Name
	if h.Name == "" {
		h.Name = "hx711"
	}
	h.timeout = cfg.ReadyTimeout
	if h.timeout <= 0 {
		h.timeout = DefaultReadyTimeout
	}
	var err error
	if h.sck, err = chip.Output(cfg.SCK, 0, h.Name+"-sck"); err != nil {
		return nil, fmt.Errorf("%s: sck line: %w", h.Name, err)
	}
	if h.dout, err = chip.Input(cfg.DOUT, h.Name+"-dout"); err != nil {
		h.sck.Close()
		return nil, fmt.Errorf("%s: dout line: %w", h.Name, err)
	}
	return h, nil
}

// Close releases the lines.
func (h *HX711) Close() error {
	return multierr.Combine(h.sck.Close(), h.dout.Close())
}

// ReadRaw waits for a conversion and clocks out the signed reading.
// It returns ErrTimeout if the amplifier is not ready within the
// ready timeout, or the context error if ctx is cancelled first.
func (h *HX711) ReadRaw(ctx context.Context) (int32, error) {
	if err := h.ready(ctx); err != nil {
		return 0, err
	}
	var raw uint32
	for i := 0; i < 24; i++ {
		if err := h.pulse(); err != nil {
			return 0, err
		}
		bit, err := h.dout.Get()
		if err != nil {
			return 0, fmt.Errorf("%s: dout: %w", h.Name, err)
		}
		raw = raw<<1 | uint32(bit&1)
	}
	// The 25th pulse selects channel A, gain 128 for the next conversion.
	if err := h.pulse(); err != nil {
		return 0, err
	}
	return SignExtend(raw), nil
}

// ready waits for DOUT to go low.
func (h *HX711) ready(ctx context.Context) error {
	deadline := time.Now().Add(h.timeout)
	for {
		v, err := h.dout.Get()
		if err != nil {
			return fmt.Errorf("%s: dout: %w", h.Name, err)
		}
		if v == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s: %w after %s", h.Name, ErrTimeout, h.timeout)
		}
		if !timing.Sleep(ctx, readyPoll) {
			return ctx.Err()
		}
	}
}

// pulse clocks SCK once. SCK must not stay high for more than 60µs or
// the amplifier powers down, so there is no delay between the edges.
func (h *HX711) pulse() error {
	if err := h.sck.Set(1); err != nil {
		return fmt.Errorf("%s: sck: %w", h.Name, err)
	}
	if err := h.sck.Set(0); err != nil {
		return fmt.Errorf("%s: sck: %w", h.Name, err)
	}
	return nil
}
