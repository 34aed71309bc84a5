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

package io

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("smoke-signals", "gpiochip4")
	var hw *HardwareError
	require.ErrorAs(t, err, &hw)
	assert.Equal(t, "open", hw.Op)
	assert.Equal(t, "gpiochip4", hw.Chip)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestOpenSysfsMissingChip(t *testing.T) {
	_, err := Open(Sysfs, "gpiochip-none")
	var hw *HardwareError
	require.ErrorAs(t, err, &hw)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestHardwareErrorMessage(t *testing.T) {
	base := errors.New("device busy")
	err := &HardwareError{Op: "output", Chip: "gpiochip4", Offset: 24, Err: base}
	assert.Equal(t, "gpiochip4 line 24: output: device busy", err.Error())
	assert.ErrorIs(t, err, base)
}

var _ Line = sysfsLine{}

func TestSysfsUnavailableLine(t *testing.T) {
	c := &sysfsChip{name: "gpiochip-test", base: 100000}
	_, err := c.Output(3, 1, "test")
	var hw *HardwareError
	require.ErrorAs(t, err, &hw)
	assert.Equal(t, "output", hw.Op)
	assert.Equal(t, 3, hw.Offset)
	_, err = c.Input(4, "test")
	require.ErrorAs(t, err, &hw)
	assert.Equal(t, "input", hw.Op)
	assert.Equal(t, "gpiochip-test", hw.Chip)
}
