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

// Package timing holds the clock and wait primitives shared by the
// motion, sampling and dispensing loops.
//
// Every blocking wait takes a context, and returns early when it is
// cancelled. Nothing else is needed to stop a loop.
package timing

import (
	"context"
	"time"
)

var epoch = time.Now()

// Micros returns a free running microsecond counter.
// The counter wraps roughly every 71 minutes; compare values with Before or Since.
func Micros() uint32 {
	return uint32(time.Since(epoch).Microseconds())
}

// Before reports whether counter value a is earlier than b, allowing
// for wraparound.
func Before(a, b uint32) bool {
	return int32(a-b) < 0
}

// Sleep pauses for d, returning false if ctx is cancelled first.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Poll calls cond every interval until it returns true, or until ctx is
// cancelled, in which case the context error is returned.
func Poll(ctx context.Context, interval time.Duration, cond func() bool) error {
	for !cond() {
		if !Sleep(ctx, interval) {
			return ctx.Err()
		}
	}
	return nil
}
