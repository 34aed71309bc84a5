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
	"math"
	"sync/atomic"
	"time"
)

// Published holds the most recent reading of the load cell.
// There is a single writer, the sampler, and any number of readers.
// Each value is stored atomically; no ordering between them is implied.
type Published struct {
	raw     atomic.Int32
	kg      atomic.Uint64 // float64 bits
	updated atomic.Int64  // Unix nanoseconds
	count   atomic.Uint64
}

// Store publishes a new reading.
func (p *Published) Store(raw int32, kg float64) {
	p.raw.Store(raw)
	p.kg.Store(math.Float64bits(kg))
	p.updated.Store(time.Now().UnixNano())
	p.count.Add(1)
}

// Raw returns the last raw reading.
func (p *Published) Raw() int32 {
	return p.raw.Load()
}

// Weight returns the last weight in kg.
func (p *Published) Weight() float64 {
	return math.Float64frombits(p.kg.Load())
}

// Updated returns when the last reading was published, or the zero
// time if there has been none.
func (p *Published) Updated() time.Time {
	n := p.updated.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Count returns the number of readings published.
func (p *Published) Count() uint64 {
	return p.count.Load()
}
