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

package stepper

import (
	"context"
	"fmt"
	"log"
)

// DefaultBackoff is the distance moved off an already closed home
// switch before homing starts.
const DefaultBackoff = 200

// HomeConfig sets the homing run.
// The backoff from a closed switch runs at Speed and Accel.
type HomeConfig struct {
	Dir       int    // Direction towards the switch, +1 or -1
	Speed     uint32 // Homing speed, steps/s
	Accel     uint32
	Offset    int64  // Position assigned at the switch
	Backoff   int64  // Steps to back off a closed switch; 0 selects DefaultBackoff
	MoveSpeed uint32 // Speed of the final move to 0; 0 uses Speed
	MoveAccel uint32
}

// Home finds the home switch, sets the switch position to Offset and
// moves to position 0.
// If the switch is already closed, the motor first backs off it so
// that the switch edge is approached from the same side every time.
// The controller must be enabled and its tick running.
// If ctx is cancelled, the motion is stopped and the context error
// returned; the motor is left where it stopped and is not homed.
func Home(ctx context.Context, c *Controller, hc HomeConfig) error {
	if hc.Dir != 1 && hc.Dir != -1 {
		return fmt.Errorf("%s: %w: homing direction %d", c.Name, ErrInvalidCommand, hc.Dir)
	}
	backoff := hc.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	at, err := c.AtHome()
	if err != nil {
		return err
	}
	if at {
		log.Printf("%s: home switch closed, backing off %d steps", c.Name, backoff)
		if err := c.MoveRel(ctx, -int64(hc.Dir)*backoff, hc.Speed, hc.Accel); err != nil {
			return err
		}
	}
	seq, err := c.StartHoming(hc.Speed, hc.Accel, hc.Dir)
	if err != nil {
		return err
	}
	if err := c.Wait(ctx, seq); err != nil {
		return err
	}
	if !c.Homed() {
		return fmt.Errorf("%s: homing abandoned at position %d", c.Name, c.Position())
	}
	log.Printf("%s: home found, position set to %d", c.Name, hc.Offset)
	if _, err := c.SetPosition(hc.Offset); err != nil {
		return err
	}
	speed, accel := hc.MoveSpeed, hc.MoveAccel
	if speed == 0 {
		speed, accel = hc.Speed, hc.Accel
	}
	return c.MoveAbs(ctx, 0, speed, accel)
}
