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

// Program to print readings from the load cell.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/EMZIlab/Wingo-deposit-machine/config"
	"github.com/EMZIlab/Wingo-deposit-machine/io"
	"github.com/EMZIlab/Wingo-deposit-machine/scale"
)

var hwFile = flag.String("hw", "hardware.conf", "Hardware wiring file")
var configFile = flag.String("config", "dispense.conf", "Calibration file")
var count = flag.Int("count", 0, "Number of readings, 0 to run until interrupted")
var period = flag.Duration("period", 200*time.Millisecond, "Time between readings")

func main() {
	flag.Parse()
	hw, err := config.LoadHardware(*hwFile)
	if err != nil {
		log.Printf("%s: %v", *hwFile, err)
	}
	d, err := config.Load(*configFile)
	if err != nil {
		log.Printf("%s: %v", *configFile, err)
	}
	chip, err := io.Open(hw.Backend, hw.Chip)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer chip.Close()
	hx, err := scale.NewHX711(hw.Scale, chip)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer hx.Close()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	var pub scale.Published
	s := &scale.Sampler{Reader: hx, Calibration: d.Calibration(), Published: &pub}
	for i := 0; *count == 0 || i < *count; i++ {
		raw, kg, err := s.ReadOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("%v", err)
		} else {
			fmt.Printf("%8d %8.3f kg\n", raw, kg)
		}
		time.Sleep(*period)
	}
}
