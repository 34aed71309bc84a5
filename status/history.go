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

// Package status serves a read-only view of the machine over HTTP:
// a text summary, a chart of recent weights and a dial showing the
// motor angle.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/EMZIlab/Wingo-deposit-machine/scale"
	"github.com/EMZIlab/Wingo-deposit-machine/timing"
)

// Sample is one published weight.
type Sample struct {
	Time time.Time
	Kg   float64
}

// History keeps the most recent weights in a ring.
type History struct {
	mu      sync.Mutex
	samples []Sample
	next    int
	full    bool
}

// NewHistory returns a history holding up to n samples.
func NewHistory(n int) *History {
	if n < 1 {
		n = 1
	}
	return &History{samples: make([]Sample, n)}
}

// Add appends a sample, dropping the oldest if the history is full.
func (h *History) Add(s Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples[h.next] = s
	h.next = (h.next + 1) % len(h.samples)
	if h.next == 0 {
		h.full = true
	}
}

// Samples returns the samples held, oldest first.
func (h *History) Samples() []Sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]Sample(nil), h.samples[:h.next]...)
	}
	out := make([]Sample, 0, len(h.samples))
	out = append(out, h.samples[h.next:]...)
	return append(out, h.samples[:h.next]...)
}

// Record adds each new reading of p to the history, checking every
// period, until ctx is cancelled.
func (h *History) Record(ctx context.Context, p *scale.Published, period time.Duration) {
	var last uint64
	for timing.Sleep(ctx, period) {
		if n := p.Count(); n != last {
			last = n
			h.Add(Sample{Time: p.Updated(), Kg: p.Weight()})
		}
	}
}
