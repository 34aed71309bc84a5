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

// Program to watch the home switch input.

package main

import (
	"flag"
	"log"
	"time"

	"github.com/EMZIlab/Wingo-deposit-machine/config"
	"github.com/EMZIlab/Wingo-deposit-machine/io"
)

var hwFile = flag.String("hw", "hardware.conf", "Hardware wiring file")
var gpio = flag.Int("gpio", -1, "Line to watch, default is the home switch")
var poll = flag.Duration("poll", time.Millisecond, "Poll interval")

func main() {
	flag.Parse()
	hw, err := config.LoadHardware(*hwFile)
	if err != nil {
		log.Printf("%s: %v", *hwFile, err)
	}
	line := *gpio
	if line < 0 {
		line = hw.Motor.Home
	}
	chip, err := io.Open(hw.Backend, hw.Chip)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer chip.Close()
	p, err := chip.Input(line, "watch")
	if err != nil {
		log.Fatalf("Pin %d: %v", line, err)
	}
	defer p.Close()
	last := -1
	for {
		v, err := p.Get()
		if err != nil {
			log.Fatalf("Pin %d: Get: %v", line, err)
		}
		if v != last {
			log.Printf("pin %d = %d", line, v)
			last = v
		}
		time.Sleep(*poll)
	}
}
