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

// Program to demonstrate how to drive the stepper motor library.

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/EMZIlab/Wingo-deposit-machine/config"
	"github.com/EMZIlab/Wingo-deposit-machine/io"
	"github.com/EMZIlab/Wingo-deposit-machine/stepper"
)

var hwFile = flag.String("hw", "hardware.conf", "Hardware wiring file")
var steps = flag.Int64("steps", 800, "Steps to move, negative for reverse")
var speed = flag.Uint("speed", 3000, "Speed in steps per second")
var accel = flag.Uint("accel", 8000, "Acceleration in steps per second squared")
var repeat = flag.Int("repeat", 1, "Number of moves out and back")
var home = flag.Bool("home", false, "Home the motor first")

func main() {
	flag.Parse()
	hw, err := config.LoadHardware(*hwFile)
	if err != nil {
		log.Printf("%s: %v", *hwFile, err)
	}
	chip, err := io.Open(hw.Backend, hw.Chip)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer chip.Close()
	m, err := stepper.New(hw.Motor, chip)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer m.Close()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	tick, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		m.Run(tick, hw.Tick)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()
	if err := m.Enable(); err != nil {
		log.Fatalf("%v", err)
	}
	defer m.Disable()
	if *home {
		d := config.Defaults()
		if err := stepper.Home(ctx, m, d.Homing()); err != nil {
			log.Printf("Homing: %v", err)
			return
		}
	}
	now := time.Now()
	for i := 0; i < *repeat; i++ {
		for _, s := range []int64{*steps, -*steps} {
			if err := m.MoveRel(ctx, s, uint32(*speed), uint32(*accel)); err != nil {
				log.Printf("Move: %v", err)
				return
			}
			log.Printf("Position %d (%.1f degrees)", m.Position(), m.Degrees())
		}
	}
	log.Printf("Elapsed = %s", time.Since(now))
}
