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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/aamcrae/config"
	"go.uber.org/multierr"

	"github.com/EMZIlab/Wingo-deposit-machine/io"
	"github.com/EMZIlab/Wingo-deposit-machine/scale"
	"github.com/EMZIlab/Wingo-deposit-machine/stepper"
)

// Hardware is the wiring of the machine and the scheduling of its
// motion tick.
type Hardware struct {
	Backend      string
	Chip         string
	Motor        stepper.Config
	Scale        scale.Config
	SamplePeriod time.Duration
	Tick         stepper.Loop
}

// DefaultHardware returns the wiring of the reference machine: a
// Raspberry Pi 5, where the header GPIOs are on gpiochip4.
func DefaultHardware() *Hardware {
	return &Hardware{
		Backend: io.Cdev,
		Chip:    "gpiochip4",
		Motor: stepper.Config{
			Name:         "motor",
			Step:         24,
			Dir:          23,
			Enable:       17,
			Home:         22,
			HomeActive:   0,
			EnableActive: 0,
			PulseWidth:   50,
			StepsPerRev:  200 * 4,
			EnableSettle: stepper.DefaultEnableSettle,
			DirSetup:     stepper.DefaultDirSetup,
		},
		Scale: scale.Config{
			Name:         "hx711",
			SCK:          6,
			DOUT:         5,
			ReadyTimeout: scale.DefaultReadyTimeout,
		},
		SamplePeriod: scale.DefaultPeriod,
		Tick: stepper.Loop{
			Period:     50 * time.Microsecond,
			Priority:   80,
			CPU:        2,
			LockMemory: true,
		},
	}
}

// LoadHardware reads a wiring file over the defaults.
// Keys that are absent keep their default. A missing file returns
// ErrNotFound, and keys that cannot be parsed are returned as a
// combined error; in both cases the returned Hardware is usable.
// Sample config:
//  [gpio]
//  backend=gpiocdev     # gpiocdev, sysfs or periph
//  chip=gpiochip4
//  [motor]
//  step=24
//  dir=23
//  enable=17
//  home=22
//  home_active=0        # level of the closed home switch
//  enable_active=0
//  dir_invert=false
//  pulse=50             # minimum step pulse, µs
//  steps=800            # steps per revolution
//  settle=5ms           # after enable, before the first step
//  dir_setup=20us
//  decelerate=false
//  [scale]
//  sck=6
//  dout=5
//  timeout=2s
//  period=50ms
//  [tick]
//  period=50us
//  priority=80          # SCHED_FIFO, 0 to disable
//  cpu=2                # -1 to not pin
//  lock=true
func LoadHardware(path string) (*Hardware, error) {
	h := DefaultHardware()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return h, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	conf, err := config.ParseFile(path)
	if err != nil {
		return h, fmt.Errorf("%s: %w", path, err)
	}
	var errs error
	for _, name := range []string{"gpio", "motor", "scale", "tick"} {
		s := conf.GetSection(name)
		if s == nil {
			continue
		}
		fail := func(key string, err error) {
			errs = multierr.Append(errs, fmt.Errorf("%s: [%s] %s: %w", path, name, key, err))
		}
		// get parses key into args, leaving them unchanged if key is absent.
		get := func(key, format string, args ...interface{}) {
			if _, err := s.GetArg(key); err != nil {
				return
			}
			n, err := s.Parse(key, format, args...)
			if err == nil && n != len(args) {
				err = fmt.Errorf("argument count %d", n)
			}
			if err != nil {
				fail(key, err)
			}
		}
		str := func(key string, v *string) {
			if a, err := s.GetArg(key); err == nil {
				*v = a
			}
		}
		duration := func(key string, d *time.Duration) {
			v, err := s.GetArg(key)
			if err != nil {
				return
			}
			if *d, err = time.ParseDuration(v); err != nil {
				fail(key, err)
			}
		}
		micros := func(key string, us *uint32) {
			d := time.Duration(*us) * time.Microsecond
			duration(key, &d)
			*us = uint32(d / time.Microsecond)
		}
		switch name {
		case "gpio":
			str("backend", &h.Backend)
			str("chip", &h.Chip)
		case "motor":
			m := &h.Motor
			get("step", "%d", &m.Step)
			get("dir", "%d", &m.Dir)
			get("enable", "%d", &m.Enable)
			get("home", "%d", &m.Home)
			get("home_active", "%d", &m.HomeActive)
			get("enable_active", "%d", &m.EnableActive)
			get("dir_invert", "%t", &m.DirInvert)
			get("pulse", "%d", &m.PulseWidth)
			get("steps", "%d", &m.StepsPerRev)
			micros("settle", &m.EnableSettle)
			micros("dir_setup", &m.DirSetup)
			get("decelerate", "%t", &m.Decelerate)
		case "scale":
			get("sck", "%d", &h.Scale.SCK)
			get("dout", "%d", &h.Scale.DOUT)
			duration("timeout", &h.Scale.ReadyTimeout)
			duration("period", &h.SamplePeriod)
		case "tick":
			duration("period", &h.Tick.Period)
			get("priority", "%d", &h.Tick.Priority)
			get("cpu", "%d", &h.Tick.CPU)
			get("lock", "%t", &h.Tick.LockMemory)
		}
	}
	return h, errs
}
