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

// Simulator for the weigh and dispense machine.
// The complete machine runs against simulated GPIO lines: deposits of
// random weight arrive on the scale, and are cleared when the motor
// reaches the dispense position.

package main

import (
	"context"
	"flag"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/EMZIlab/Wingo-deposit-machine/config"
	"github.com/EMZIlab/Wingo-deposit-machine/dispense"
	"github.com/EMZIlab/Wingo-deposit-machine/scale"
	"github.com/EMZIlab/Wingo-deposit-machine/sim"
	"github.com/EMZIlab/Wingo-deposit-machine/status"
	"github.com/EMZIlab/Wingo-deposit-machine/stepper"
)

var configFile = flag.String("config", "", "Calibration and dispense configuration file")
var port = flag.Int("port", 8080, "Web server port number")
var interval = flag.Duration("interval", 5*time.Second, "Time between deposits")
var maxKg = flag.Float64("max", 0.5, "Largest deposit in kg")
var noise = flag.Float64("noise", 0.0005, "Load cell noise in kg")
var homeAt = flag.Int64("homeat", -1500, "Position of the home switch")
var csvPath = flag.String("csv", filepath.Join(os.TempDir(), "sim_scale_log.csv"), "Deposit log")

// scaleLoad is the weight on the simulated load cell.
type scaleLoad struct {
	kg atomic.Uint64
}

func (l *scaleLoad) Set(kg float64) {
	l.kg.Store(math.Float64bits(kg))
}

func (l *scaleLoad) Get() float64 {
	return math.Float64frombits(l.kg.Load())
}

func main() {
	flag.Parse()
	d := config.Defaults()
	if *configFile != "" {
		var err error
		if d, err = config.Load(*configFile); err != nil {
			log.Printf("%s: %v", *configFile, err)
		}
	}
	d.CSVPath = *csvPath
	hw := config.DefaultHardware()
	hw.Tick = stepper.DefaultLoop
	hw.Motor.Name = "sim"

	chip := sim.NewChip(hw.Chip)
	axis := sim.NewAxis(chip, sim.AxisConfig{
		Step:       hw.Motor.Step,
		Dir:        hw.Motor.Dir,
		Home:       hw.Motor.Home,
		DirInvert:  hw.Motor.DirInvert,
		HomeActive: hw.Motor.HomeActive,
		HomeDir:    int(d.HomeDir),
		HomeAt:     *homeAt,
	})
	var load scaleLoad
	sigma := *noise
	sim.NewHX711(chip, hw.Scale.SCK, hw.Scale.DOUT, func() int32 {
		kg := load.Get() + rand.NormFloat64()*sigma
		return sim.Counts(d.TareOffset, d.CountsPerKg, kg)
	})

	motor, err := stepper.New(hw.Motor, chip)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer motor.Close()
	hx, err := scale.NewHX711(hw.Scale, chip)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer hx.Close()

	var pub scale.Published
	m := &dispense.Machine{
		Motor: motor,
		Loop:  hw.Tick,
		Home:  d.Homing(),
		Sampler: &scale.Sampler{
			Reader:      hx,
			Calibration: d.Calibration(),
			Published:   &pub,
			Period:      hw.SamplePeriod,
		},
		Sequencer: dispense.NewSequencer(d.Sequencer(), &pub, motor, dispense.NewCSVLog(d.CSVPath)),
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	h := status.NewHistory(1200)
	go h.Record(ctx, &pub, hw.SamplePeriod)
	go func() {
		srv := &status.Server{Motor: motor, Scale: &pub, History: h, Threshold: d.Threshold}
		if err := status.Serve(ctx, *port, srv); err != nil {
			log.Printf("status: %v", err)
		}
	}()
	go deposits(ctx, &load, axis, motor, int64(d.MoveSteps))
	log.Printf("Simulating, deposits logged to %s", d.CSVPath)
	if err := m.Run(ctx); err != nil {
		log.Printf("%v", err)
	}
}

// deposits places a random weight on the empty scale every interval,
// and empties it when the motor reaches the dispense position.
func deposits(ctx context.Context, load *scaleLoad, axis *sim.Axis, motor *stepper.Controller, position int64) {
	next := time.Now().Add(*interval)
	for ctx.Err() == nil {
		time.Sleep(10 * time.Millisecond)
		if load.Get() > 0 {
			if motor.Homed() && motor.Position() == position {
				log.Printf("sim: dispensed %.3f kg at axis position %d", load.Get(), axis.Position())
				load.Set(0)
				next = time.Now().Add(*interval)
			}
			continue
		}
		if motor.Homed() && time.Now().After(next) {
			kg := 0.05 + rand.Float64()*(*maxKg-0.05)
			log.Printf("sim: deposit of %.3f kg", kg)
			load.Set(kg)
		}
	}
}
