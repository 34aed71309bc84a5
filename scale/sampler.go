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

package scale

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/EMZIlab/Wingo-deposit-machine/timing"
)

// DefaultPeriod is the interval between readings.
const DefaultPeriod = 50 * time.Millisecond

// Reader reads raw counts from a load cell amplifier.
type Reader interface {
	ReadRaw(ctx context.Context) (int32, error)
}

// Sampler periodically reads the load cell and publishes the weight.
type Sampler struct {
	Name        string
	Reader      Reader
	Calibration Calibration
	Published   *Published
	Period      time.Duration
}

// ReadOnce takes one reading and publishes it.
func (s *Sampler) ReadOnce(ctx context.Context) (int32, float64, error) {
	raw, err := s.Reader.ReadRaw(ctx)
	if err != nil {
		return 0, 0, err
	}
	kg := s.Calibration.Kg(raw)
	s.Published.Store(raw, kg)
	return raw, kg, nil
}

// Run samples until ctx is cancelled. A failed reading is logged and
// dropped, leaving the previous value published.
func (s *Sampler) Run(ctx context.Context) {
	period := s.Period
	if period <= 0 {
		period = DefaultPeriod
	}
	name := s.Name
	if name == "" {
		name = "sampler"
	}
	failing := false
	for ctx.Err() == nil {
		if _, _, err := s.ReadOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			// Log the first of a run of failures only.
			if !failing || !errors.Is(err, ErrTimeout) {
				log.Printf("%s: read: %v", name, err)
			}
			failing = true
		} else if failing {
			log.Printf("%s: readings resumed", name)
			failing = false
		}
		if !timing.Sleep(ctx, period) {
			break
		}
	}
}

// Average takes n readings period apart and returns the mean raw count.
// Failed readings are not counted; an error is returned only if every
// reading fails or ctx is cancelled.
func Average(ctx context.Context, r Reader, n int, period time.Duration) (float64, error) {
	if n < 1 {
		n = 1
	}
	var sum float64
	var got int
	var last error
	for i := 0; i < n; i++ {
		if i > 0 && !timing.Sleep(ctx, period) {
			return 0, ctx.Err()
		}
		raw, err := r.ReadRaw(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			last = err
			continue
		}
		sum += float64(raw)
		got++
	}
	if got == 0 {
		return 0, last
	}
	return sum / float64(got), nil
}
