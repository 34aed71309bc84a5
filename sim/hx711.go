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
	"math"
	"sync"
	"time"
)

// HX711 simulates the serial interface of an HX711 amplifier.
// DOUT goes low when a conversion is ready; each rising edge on SCK
// shifts the next bit of the 24 bit two's complement value onto DOUT,
// most significant first, and the 25th clock starts a new conversion.
type HX711 struct {
	mu         sync.Mutex
	source     func() int32
	conversion time.Duration
	readyAt    time.Time
	word       uint32
	clocks     int
	sck        int
	stalled    bool
	reads      int
}

// NewHX711 attaches a simulated amplifier to the sck and dout lines of c.
func NewHX711(c *Chip, sck, dout int, source func() int32) *HX711 {
	h := &HX711{source: source}
	c.Line(sck).OnSet(h.clock)
	c.Line(dout).Source(h.dout)
	return h
}

// SetSource replaces the function supplying raw readings.
func (h *HX711) SetSource(f func() int32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.source = f
}

// SetConversion sets the time DOUT stays high after each reading.
func (h *HX711) SetConversion(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conversion = d
}

// Stall holds DOUT high so that no reading ever becomes ready.
func (h *HX711) Stall(stalled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stalled = stalled
}

// Reads returns the number of completed readings.
func (h *HX711) Reads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reads
}

func (h *HX711) clock(v int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rising := h.sck == 0 && v == 1
	h.sck = v
	if !rising {
		return
	}
	if h.clocks == 0 {
		var raw int32
		if h.source != nil {
			raw = h.source()
		}
		h.word = uint32(raw) & 0xFFFFFF
	}
	h.clocks++
	if h.clocks == 25 {
		h.clocks = 0
		h.reads++
		h.readyAt = time.Now().Add(h.conversion)
	}
}

func (h *HX711) dout() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clocks >= 1 && h.clocks <= 24 {
		return int(h.word>>(24-h.clocks)) & 1
	}
	if h.stalled {
		return 1
	}
	if time.Now().Before(h.readyAt) {
		return 1
	}
	return 0
}

// Counts returns the raw reading an amplifier with the given
// calibration reports for a load of kg.
func Counts(tare int32, countsPerKg, kg float64) int32 {
	return tare + int32(math.Round(kg*countsPerKg))
}

// Constant returns a source that always reports raw.
func Constant(raw int32) func() int32 {
	return func() int32 { return raw }
}

// Sequence returns a source that reports each value in turn, then
// repeats the last one.
func Sequence(raws ...int32) func() int32 {
	var mu sync.Mutex
	i := 0
	return func() int32 {
		mu.Lock()
		defer mu.Unlock()
		if len(raws) == 0 {
			return 0
		}
		v := raws[i]
		if i < len(raws)-1 {
			i++
		}
		return v
	}
}
