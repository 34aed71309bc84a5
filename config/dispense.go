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

// Package config reads the machine configuration.
//
// Calibration, motion and trigger settings are kept in a flat file of
// key = value lines, so that they can be edited in the field:
//
//  hx.tare_offset_cts = 1748000   # raw count with an empty scale
//  hx.counts_per_kg   = 951010
//  move.target_steps  = 8000      ; dispense position
//  trigger.treshold   = 0.030
//
// The wiring of the hardware is kept in a separate sectioned file,
// read by LoadHardware.
package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/EMZIlab/Wingo-deposit-machine/dispense"
	"github.com/EMZIlab/Wingo-deposit-machine/scale"
	"github.com/EMZIlab/Wingo-deposit-machine/stepper"
)

// ErrNotFound is returned by Load when the file does not exist.
// The defaults are still returned.
var ErrNotFound = errors.New("config file not found")

// DefaultCSVPath is where deposit events are logged.
const DefaultCSVPath = "/home/pi5/dev/Wingo_deposit_machine/scale_log.csv"

// ParseError describes a line that could not be applied.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Dispense holds the calibration, motion and trigger settings.
type Dispense struct {
	TareOffset     int32
	CountsPerKg    float64
	MoveSteps      int32 // Dispense position
	MoveSpeed      uint32
	MoveAccel      uint32
	HomeOffset     int32
	HomeDir        int32
	HomeSpeed      uint32
	HomeAccel      uint32
	HomeBackoff    uint32
	Threshold      float64 // kg
	Epsilon        float64 // kg
	SettleMs       uint32
	SampleCount    uint32
	SamplePeriodMs uint32
	CSVPath        string
}

// Defaults returns the settings used when the file does not set them.
func Defaults() *Dispense {
	return &Dispense{
		TareOffset:     1748000,
		CountsPerKg:    951010,
		MoveSteps:      8000,
		MoveSpeed:      10000,
		MoveAccel:      10000,
		HomeOffset:     0,
		HomeDir:        -1,
		HomeSpeed:      3000,
		HomeAccel:      8000,
		HomeBackoff:    stepper.DefaultBackoff,
		Threshold:      0.030,
		Epsilon:        dispense.DefaultEpsilon,
		SettleMs:       1000,
		SampleCount:    20,
		SamplePeriodMs: 50,
		CSVPath:        DefaultCSVPath,
	}
}

var errNoEquals = errors.New("missing '='")
var errNoKey = errors.New("missing key")

// Load reads the file at path over the defaults.
// Load always returns a usable configuration. A missing file returns
// ErrNotFound; lines that cannot be parsed are skipped and returned
// as *ParseError values combined with multierr. Neither is fatal.
func Load(path string) (*Dispense, error) {
	d := Defaults()
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return d, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return d, err
	}
	return d, d.Parse(b)
}

// Parse applies the key = value lines in b. Unknown keys are ignored
// and a repeated key takes the last value.
func (d *Dispense) Parse(b []byte) error {
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	var errs error
	sc := bufio.NewScanner(bytes.NewReader(b))
	for n := 1; sc.Scan(); n++ {
		text := sc.Text()
		line := text
		if i := strings.IndexAny(line, "#;"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		var err error
		switch {
		case !ok:
			err = errNoEquals
		case k == "":
			err = errNoKey
		default:
			err = d.set(k, v)
		}
		if err != nil {
			errs = multierr.Append(errs, &ParseError{Line: n, Text: text, Err: err})
		}
	}
	return multierr.Append(errs, sc.Err())
}

func (d *Dispense) set(k, v string) error {
	switch k {
	case "hx.tare_offset_cts":
		return parseInt(v, &d.TareOffset)
	case "hx.counts_per_kg":
		return parseFloat(v, &d.CountsPerKg)
	case "move.target_steps":
		return parseInt(v, &d.MoveSteps)
	case "move.speed_sps":
		return parseUint(v, &d.MoveSpeed)
	case "move.acc_sps2":
		return parseUint(v, &d.MoveAccel)
	case "home.offset_steps":
		return parseInt(v, &d.HomeOffset)
	case "home.dir":
		return parseInt(v, &d.HomeDir)
	case "home.speed_sps":
		return parseUint(v, &d.HomeSpeed)
	case "home.acc_sps2":
		return parseUint(v, &d.HomeAccel)
	case "home.backoff_steps":
		return parseUint(v, &d.HomeBackoff)
	case "trigger.treshold", "trigger.threshold":
		return parseFloat(v, &d.Threshold)
	case "trigger.epsilon_kg":
		return parseFloat(v, &d.Epsilon)
	case "sample.settle_ms":
		return parseUint(v, &d.SettleMs)
	case "sample.count":
		return parseUint(v, &d.SampleCount)
	case "sample.period_ms":
		return parseUint(v, &d.SamplePeriodMs)
	case "log.csv_path":
		d.CSVPath = v
	}
	return nil
}

func parseInt(s string, p *int32) error {
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return err
	}
	*p = int32(v)
	return nil
}

func parseUint(s string, p *uint32) error {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return err
	}
	*p = uint32(v)
	return nil
}

func parseFloat(s string, p *float64) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Calibration returns the load cell calibration.
func (d *Dispense) Calibration() scale.Calibration {
	return scale.Calibration{TareOffset: d.TareOffset, CountsPerKg: d.CountsPerKg}
}

// Homing returns the homing run settings. The final move to position
// 0 uses the move speed.
func (d *Dispense) Homing() stepper.HomeConfig {
	return stepper.HomeConfig{
		Dir:       int(d.HomeDir),
		Speed:     d.HomeSpeed,
		Accel:     d.HomeAccel,
		Offset:    int64(d.HomeOffset),
		Backoff:   int64(d.HomeBackoff),
		MoveSpeed: d.MoveSpeed,
		MoveAccel: d.MoveAccel,
	}
}

// Sequencer returns the dispense sequencer settings.
func (d *Dispense) Sequencer() dispense.Config {
	return dispense.Config{
		Threshold:    d.Threshold,
		Epsilon:      d.Epsilon,
		Settle:       time.Duration(d.SettleMs) * time.Millisecond,
		SampleCount:  int(d.SampleCount),
		SamplePeriod: time.Duration(d.SamplePeriodMs) * time.Millisecond,
		Position:     int64(d.MoveSteps),
		Speed:        d.MoveSpeed,
		Accel:        d.MoveAccel,
	}
}
