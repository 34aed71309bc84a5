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

//go:build linux

package stepper

import (
	"log"

	"golang.org/x/sys/unix"
)

// realtime applies the real-time settings to the calling thread.
func realtime(name string, l Loop) {
	if l.LockMemory {
		if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
			log.Printf("%s: mlockall: %v", name, err)
		}
	}
	if l.CPU >= 0 {
		var set unix.CPUSet
		set.Zero()
		set.Set(l.CPU)
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			log.Printf("%s: pin to cpu %d: %v", name, l.CPU, err)
		}
	}
	if l.Priority > 0 {
		attr := unix.SchedAttr{Policy: unix.SCHED_FIFO, Priority: uint32(l.Priority)}
		if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
			log.Printf("%s: SCHED_FIFO priority %d: %v", name, l.Priority, err)
		}
	}
}
