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

package dispense

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/EMZIlab/Wingo-deposit-machine/scale"
	"github.com/EMZIlab/Wingo-deposit-machine/stepper"
)

// Machine runs the complete weigh and dispense cycle: the motor tick
// and load cell sampler in the background, homing once, then the
// dispense sequencer until cancelled.
type Machine struct {
	Motor     *stepper.Controller
	Loop      stepper.Loop
	Home      stepper.HomeConfig
	Sampler   *scale.Sampler
	Sequencer *Sequencer
}

// Run operates the machine until ctx is cancelled, which is not an
// error. If homing fails the sequencer is never started.
// On return the background loops have stopped and the motor is disabled.
func (m *Machine) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.Motor.Run(ctx, m.Loop)
	}()
	go func() {
		defer wg.Done()
		m.Sampler.Run(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
		if derr := m.Motor.Disable(); derr != nil && err == nil {
			err = derr
		}
		log.Printf("machine: stopped at position %d", m.Motor.Position())
	}()

	if err := m.Motor.Enable(); err != nil {
		return err
	}
	log.Printf("machine: homing")
	if err := stepper.Home(ctx, m.Motor, m.Home); err != nil {
		if ctx.Err() != nil {
			log.Printf("machine: homing cancelled")
			return nil
		}
		return fmt.Errorf("homing: %w", err)
	}
	log.Printf("machine: homed, at position %d", m.Motor.Position())
	return m.Sequencer.Run(ctx)
}
