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
	"context"
	"log"
	"runtime"
	"time"
)

// Loop sets the timing and scheduling of the tick goroutine.
type Loop struct {
	Period     time.Duration // Tick period
	Priority   int           // SCHED_FIFO priority, 0 leaves the default policy
	CPU        int           // CPU to pin the tick to, -1 for none
	LockMemory bool          // Lock all pages of the process into memory
}

// DefaultLoop ticks every 50µs with no real-time settings.
var DefaultLoop = Loop{Period: 50 * time.Microsecond, CPU: -1}

// Run calls Advance periodically until ctx is cancelled.
// The tick runs against absolute deadlines so that the period does not
// drift; if it falls far behind, the deadline is resynchronised.
// Failure to apply the real-time settings is logged and not fatal.
func (c *Controller) Run(ctx context.Context, l Loop) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if l.Period <= 0 {
		l.Period = DefaultLoop.Period
	}
	if l.Priority > 0 || l.CPU >= 0 || l.LockMemory {
		realtime(c.Name, l)
	}
	log.Printf("%s: tick running, period %s", c.Name, l.Period)
	done := ctx.Done()
	next := time.Now()
	for {
		select {
		case <-done:
			log.Printf("%s: tick stopped", c.Name)
			return
		default:
		}
		c.Advance(c.cfg.Clock())
		next = next.Add(l.Period)
		d := time.Until(next)
		if d > 0 {
			time.Sleep(d)
		} else if d < -100*l.Period {
			next = time.Now()
		}
	}
}
