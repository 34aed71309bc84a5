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

// Weigh and dispense machine controller.
// The motor is homed once, then each deposit on the scale is weighed,
// logged and dispensed until the program is interrupted.

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/EMZIlab/Wingo-deposit-machine/config"
	"github.com/EMZIlab/Wingo-deposit-machine/dispense"
	"github.com/EMZIlab/Wingo-deposit-machine/io"
	"github.com/EMZIlab/Wingo-deposit-machine/scale"
	"github.com/EMZIlab/Wingo-deposit-machine/status"
	"github.com/EMZIlab/Wingo-deposit-machine/stepper"
)

var configFile = flag.String("config", "dispense.conf", "Calibration and dispense configuration file")
var hwFile = flag.String("hw", "hardware.conf", "Hardware wiring file")
var backend = flag.String("backend", "", "GPIO backend (gpiocdev, sysfs or periph), overrides the wiring file")
var port = flag.Int("port", 0, "Status web server port number, 0 for none")
var history = flag.Int("history", 1200, "Number of weights shown in the status chart")

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	d, err := config.Load(*configFile)
	warn(*configFile, err)
	hw, err := config.LoadHardware(*hwFile)
	warn(*hwFile, err)
	if *backend != "" {
		hw.Backend = *backend
	}

	chip, err := io.Open(hw.Backend, hw.Chip)
	if err != nil {
		return err
	}
	defer chip.Close()
	motor, err := stepper.New(hw.Motor, chip)
	if err != nil {
		return err
	}
	defer motor.Close()
	hx, err := scale.NewHX711(hw.Scale, chip)
	if err != nil {
		return err
	}
	defer hx.Close()

	var pub scale.Published
	csv := dispense.NewCSVLog(d.CSVPath)
	m := &dispense.Machine{
		Motor: motor,
		Loop:  hw.Tick,
		Home:  d.Homing(),
		Sampler: &scale.Sampler{
			Name:        hw.Scale.Name,
			Reader:      hx,
			Calibration: d.Calibration(),
			Published:   &pub,
			Period:      hw.SamplePeriod,
		},
		Sequencer: dispense.NewSequencer(d.Sequencer(), &pub, motor, csv),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *port > 0 {
		h := status.NewHistory(*history)
		go h.Record(ctx, &pub, hw.SamplePeriod)
		srv := &status.Server{Motor: motor, Scale: &pub, History: h, Threshold: d.Threshold}
		go func() {
			if err := status.Serve(ctx, *port, srv); err != nil {
				log.Printf("status: %v", err)
			}
		}()
	}
	log.Printf("Logging deposits to %s", d.CSVPath)
	start := time.Now()
	err = m.Run(ctx)
	log.Printf("Stopped after %s", time.Since(start).Round(time.Second))
	return err
}

// warn logs configuration problems, none of which stop the machine.
func warn(path string, err error) {
	if errors.Is(err, config.ErrNotFound) {
		log.Printf("%s: not found, using defaults", path)
		return
	}
	for _, e := range multierr.Errors(err) {
		log.Printf("%s: %v", path, e)
	}
}
