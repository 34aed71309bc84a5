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

package status

import (
	"fmt"
	"image"
	"math"

	"github.com/fogleman/gg"
)

// Chart draws the weights in samples as a line against time, with the
// trigger threshold as a horizontal line.
func Chart(samples []Sample, threshold float64, width, height int) image.Image {
	const margin = 40
	c := gg.NewContext(width, height)
	c.SetRGB(1, 1, 1)
	c.Clear()
	lo, hi := 0.0, threshold*2
	for _, s := range samples {
		lo = math.Min(lo, s.Kg)
		hi = math.Max(hi, s.Kg)
	}
	if hi-lo < 1e-3 {
		hi = lo + 1e-3
	}
	w := float64(width - 2*margin)
	h := float64(height - 2*margin)
	y := func(kg float64) float64 {
		return float64(height-margin) - (kg-lo)/(hi-lo)*h
	}
	// Axes
	c.SetRGB(0, 0, 0)
	c.SetLineWidth(1)
	c.DrawLine(margin, margin, margin, float64(height-margin))
	c.DrawLine(margin, float64(height-margin), float64(width-margin), float64(height-margin))
	c.Stroke()
	c.DrawStringAnchored(fmt.Sprintf("%.3f kg", hi), margin-4, margin, 1, 0.5)
	c.DrawStringAnchored(fmt.Sprintf("%.3f kg", lo), margin-4, float64(height-margin), 1, 0.5)
	// Threshold
	c.SetRGB(1, 0, 0)
	c.DrawLine(margin, y(threshold), float64(width-margin), y(threshold))
	c.Stroke()
	if len(samples) < 2 {
		return c.Image()
	}
	t0 := samples[0].Time
	span := samples[len(samples)-1].Time.Sub(t0).Seconds()
	if span <= 0 {
		span = 1
	}
	c.SetRGB(0, 0, 1)
	c.SetLineWidth(2)
	for i, s := range samples {
		x := margin + s.Time.Sub(t0).Seconds()/span*w
		if i == 0 {
			c.MoveTo(x, y(s.Kg))
		} else {
			c.LineTo(x, y(s.Kg))
		}
	}
	c.Stroke()
	c.SetRGB(0, 0, 0)
	c.DrawString(fmt.Sprintf("last %.3f kg", samples[len(samples)-1].Kg), margin, margin/2)
	return c.Image()
}

// Dial draws the motor shaft angle, 0 degrees pointing up.
func Dial(degrees float64, size int) image.Image {
	c := gg.NewContext(size, size)
	c.SetRGB(1, 1, 1)
	c.Clear()
	mid := float64(size) / 2
	r := mid * 0.8
	c.SetRGB(0, 0, 0)
	c.SetLineWidth(2)
	c.DrawCircle(mid, mid, r)
	c.Stroke()
	radians := degrees * math.Pi / 180
	x := mid + r*math.Sin(radians)
	y := mid - r*math.Cos(radians)
	c.SetRGB(0, 0, 1)
	c.SetLineWidth(6)
	c.DrawLine(mid, mid, x, y)
	c.Stroke()
	c.SetRGB(0, 0, 0)
	c.DrawStringAnchored(fmt.Sprintf("%.1f°", math.Mod(degrees, 360)), mid, float64(size)-8, 0.5, 0)
	return c.Image()
}
