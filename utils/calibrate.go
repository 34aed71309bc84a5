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

// Calibration utility for the load cell.
// Measures the tare offset with the scale empty, then the counts per
// kg from a known mass, and prints the configuration lines.

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/EMZIlab/Wingo-deposit-machine/config"
	"github.com/EMZIlab/Wingo-deposit-machine/io"
	"github.com/EMZIlab/Wingo-deposit-machine/scale"
)

var hwFile = flag.String("hw", "hardware.conf", "Hardware wiring file")
var samples = flag.Int("samples", 20, "Readings averaged for each measurement")
var period = flag.Duration("period", 50*time.Millisecond, "Time between readings")

func main() {
	flag.Parse()
	hw, err := config.LoadHardware(*hwFile)
	if err != nil {
		log.Printf("%s: %v", *hwFile, err)
	}
	chip, err := io.Open(hw.Backend, hw.Chip)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer chip.Close()
	hx, err := scale.NewHX711(hw.Scale, chip)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer hx.Close()
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)
	d := config.Defaults()
	tare := math.NaN()
	for {
		fmt.Print("Enter command ('help' for help) ")
		text, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		text = strings.TrimSpace(text)
		switch text {
		case "help":
			fmt.Println("  help - print help")
			fmt.Println("  t - measure tare with the scale empty")
			fmt.Println("  r - show the current reading")
			fmt.Println("  N.NNN - measure counts per kg with N.NNN kg on the scale")
			fmt.Println("  q - quit")
		case "q":
			return
		case "t":
			v, err := scale.Average(ctx, hx, *samples, *period)
			if err != nil {
				fmt.Printf("Read failed: %v\n", err)
				continue
			}
			tare = v
			fmt.Printf("hx.tare_offset_cts = %d\n", int32(math.Round(tare)))
		case "r":
			v, err := scale.Average(ctx, hx, *samples, *period)
			if err != nil {
				fmt.Printf("Read failed: %v\n", err)
				continue
			}
			fmt.Printf("Raw %.0f, %.3f kg with default calibration\n", v, d.Calibration().Kg(int32(math.Round(v))))
		default:
			var kg float64
			n, err := fmt.Sscanf(text, "%f", &kg)
			if err != nil || n != 1 || kg <= 0 {
				fmt.Printf("Unrecognised input\n")
				continue
			}
			if math.IsNaN(tare) {
				fmt.Printf("Measure the tare first\n")
				continue
			}
			v, err := scale.Average(ctx, hx, *samples, *period)
			if err != nil {
				fmt.Printf("Read failed: %v\n", err)
				continue
			}
			fmt.Printf("hx.tare_offset_cts = %d\n", int32(math.Round(tare)))
			fmt.Printf("hx.counts_per_kg = %.1f\n", (v-tare)/kg)
		}
	}
}
