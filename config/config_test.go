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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func write(t *testing.T, name, text string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0644))
	return path
}

func TestLoadBestEffort(t *testing.T) {
	path := write(t, "dispense.conf", "move.speed_sps = 12000\n# comment\nbad_line_no_eq\nhome.dir=-1\n")
	d, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, uint32(12000), d.MoveSpeed)
	assert.Equal(t, int32(-1), d.HomeDir)
	errs := multierr.Errors(err)
	require.Len(t, errs, 1)
	var pe *ParseError
	require.ErrorAs(t, errs[0], &pe)
	assert.Equal(t, 3, pe.Line)
	assert.Equal(t, "bad_line_no_eq", pe.Text)
	// Everything else keeps its default.
	assert.Equal(t, Defaults().CountsPerKg, d.CountsPerKg)
	assert.Equal(t, DefaultCSVPath, d.CSVPath)
}

func TestLoadMissing(t *testing.T) {
	d, err := Load(filepath.Join(t.TempDir(), "none.conf"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, Defaults(), d)
}

func TestParse(t *testing.T) {
	text := "\xef\xbb\xbfhx.tare_offset_cts = 0x10 ; hex\n" +
		"\n" +
		"   hx.counts_per_kg=1000.5   # trailing\n" +
		"trigger.treshold = 0.05\n" +
		"trigger.threshold = 0.04\n" +
		"unknown.key = whatever\n" +
		"move.target_steps = -500\n" +
		"home.backoff_steps = 50\n" +
		"trigger.epsilon_kg = 0.002\n" +
		"sample.settle_ms = 250\n" +
		"sample.count = 0\n" +
		"sample.period_ms = 20\n" +
		"log.csv_path = /tmp/log file.csv\n"
	d := Defaults()
	require.NoError(t, d.Parse([]byte(text)))
	assert.Equal(t, int32(16), d.TareOffset)
	assert.Equal(t, 1000.5, d.CountsPerKg)
	assert.Equal(t, 0.04, d.Threshold)
	assert.Equal(t, int32(-500), d.MoveSteps)
	assert.Equal(t, uint32(50), d.HomeBackoff)
	assert.Equal(t, 0.002, d.Epsilon)
	assert.Equal(t, "/tmp/log file.csv", d.CSVPath)

	seq := d.Sequencer()
	assert.Equal(t, 250*time.Millisecond, seq.Settle)
	assert.Equal(t, 20*time.Millisecond, seq.SamplePeriod)
	assert.Equal(t, 0, seq.SampleCount)
	assert.Equal(t, int64(-500), seq.Position)
	assert.Equal(t, int32(16), d.Calibration().TareOffset)
}

func TestParseErrors(t *testing.T) {
	d := Defaults()
	err := d.Parse([]byte("move.speed_sps = fast\nmove.acc_sps2 = -5\n= 3\nhome.dir = 1\nhome.speed_sps = 4000x\n"))
	errs := multierr.Errors(err)
	require.Len(t, errs, 4)
	for _, e := range errs {
		var pe *ParseError
		assert.True(t, errors.As(e, &pe))
	}
	assert.Equal(t, Defaults().MoveSpeed, d.MoveSpeed)
	assert.Equal(t, Defaults().MoveAccel, d.MoveAccel)
	assert.Equal(t, int32(1), d.HomeDir)
}

func TestHoming(t *testing.T) {
	d := Defaults()
	h := d.Homing()
	assert.Equal(t, -1, h.Dir)
	assert.Equal(t, uint32(3000), h.Speed)
	assert.Equal(t, uint32(10000), h.MoveSpeed)
	assert.Equal(t, int64(200), h.Backoff)
}

func TestLoadHardwareMissing(t *testing.T) {
	h, err := LoadHardware(filepath.Join(t.TempDir(), "none.conf"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, DefaultHardware(), h)
}

func TestLoadHardware(t *testing.T) {
	path := write(t, "hw.conf", "[gpio]\nbackend=sysfs\nchip=gpiochip0\n"+
		"[motor]\nstep=12\ndir=13\ndir_invert=true\npulse=20\nsettle=2ms\n"+
		"[scale]\nsck=7\nperiod=100ms\n"+
		"[tick]\nperiod=100us\npriority=0\ncpu=-1\n")
	h, err := LoadHardware(path)
	require.NoError(t, err)
	assert.Equal(t, "sysfs", h.Backend)
	assert.Equal(t, "gpiochip0", h.Chip)
	assert.Equal(t, 12, h.Motor.Step)
	assert.Equal(t, 13, h.Motor.Dir)
	assert.Equal(t, 17, h.Motor.Enable)
	assert.True(t, h.Motor.DirInvert)
	assert.Equal(t, uint32(20), h.Motor.PulseWidth)
	assert.Equal(t, uint32(2000), h.Motor.EnableSettle)
	assert.Equal(t, 7, h.Scale.SCK)
	assert.Equal(t, 5, h.Scale.DOUT)
	assert.Equal(t, 100*time.Millisecond, h.SamplePeriod)
	assert.Equal(t, 100*time.Microsecond, h.Tick.Period)
	assert.Equal(t, 0, h.Tick.Priority)
	assert.Equal(t, -1, h.Tick.CPU)
}

func TestLoadHardwareBadValue(t *testing.T) {
	path := write(t, "hw.conf", "[motor]\nstep=twelve\n[tick]\nperiod=soon\n")
	h, err := LoadHardware(path)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, 24, h.Motor.Step)
	assert.Equal(t, 50*time.Microsecond, h.Tick.Period)
}
