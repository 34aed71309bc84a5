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

package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EMZIlab/Wingo-deposit-machine/io"
)

func TestChipLines(t *testing.T) {
	c := NewChip("gpiochip4")
	out, err := c.Output(3, 1, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Line(3).Value())
	require.NoError(t, out.Set(0))
	v, err := out.Get()
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	assert.Equal(t, 1, c.Line(3).Sets())
	require.NoError(t, out.Close())
	assert.ErrorIs(t, out.Set(1), ErrClosed)

	c.Fail(4, errors.New("busy"))
	_, err = c.Input(4, "test")
	var hw *io.HardwareError
	require.ErrorAs(t, err, &hw)
	assert.Equal(t, "input", hw.Op)
	assert.Equal(t, 4, hw.Offset)
}

func TestAxis(t *testing.T) {
	c := NewChip("gpiochip4")
	a := NewAxis(c, AxisConfig{Step: 1, Dir: 2, Home: 3, HomeActive: 0, HomeDir: -1, HomeAt: -2})
	step, _ := c.Output(1, 0, "step")
	dir, _ := c.Output(2, 1, "dir")
	home, _ := c.Input(3, "home")
	pulse := func(n int) {
		for i := 0; i < n; i++ {
			step.Set(1)
			step.Set(0)
		}
	}
	pulse(3)
	assert.Equal(t, int64(3), a.Position())
	dir.Set(0)
	pulse(4)
	assert.Equal(t, int64(-1), a.Position())
	v, _ := home.Get()
	assert.Equal(t, 1, v, "switch open")
	pulse(1)
	v, _ = home.Get()
	assert.Equal(t, 0, v, "switch closed")
	assert.Equal(t, 8, a.Pulses())
	a.ForceSwitch(false)
	v, _ = home.Get()
	assert.Equal(t, 1, v)
	a.ReleaseSwitch()
	v, _ = home.Get()
	assert.Equal(t, 0, v)
}

func TestHX711Shift(t *testing.T) {
	c := NewChip("gpiochip4")
	h := NewHX711(c, 6, 5, Constant(-2))
	sck, _ := c.Output(6, 0, "sck")
	dout, _ := c.Input(5, "dout")
	v, _ := dout.Get()
	require.Equal(t, 0, v, "ready")
	var raw uint32
	for i := 0; i < 24; i++ {
		sck.Set(1)
		sck.Set(0)
		b, _ := dout.Get()
		raw = raw<<1 | uint32(b)
	}
	sck.Set(1)
	sck.Set(0)
	assert.Equal(t, uint32(0xFFFFFE), raw)
	assert.Equal(t, 1, h.Reads())
}

func TestSequence(t *testing.T) {
	s := Sequence(1, 2, 3)
	assert.Equal(t, []int32{1, 2, 3, 3}, []int32{s(), s(), s(), s()})
	assert.Equal(t, int32(1000+500), Counts(1000, 1000, 0.5))
}
