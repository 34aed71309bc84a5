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
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

var csvHeader = []string{"settle_ms", "sample_period_ms", "avg_weight_kg"}

// CSVLog appends deposit events to a CSV file. The header row is
// written when the file is empty or does not exist.
type CSVLog struct {
	Path string
	mu   sync.Mutex
}

// NewCSVLog returns a log writing to path.
func NewCSVLog(path string) *CSVLog {
	return &CSVLog{Path: path}
}

// Record appends one event. The file is opened for each record so
// that it can be rotated or removed while the machine runs.
func (l *CSVLog) Record(ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if dir := filepath.Dir(l.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%s: %w", l.Path, err)
		}
	}
	f, err := os.OpenFile(l.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	w := csv.NewWriter(f)
	if fi.Size() == 0 {
		w.Write(csvHeader)
	}
	w.Write([]string{
		strconv.FormatInt(ev.Settle.Milliseconds(), 10),
		strconv.FormatInt(ev.SamplePeriod.Milliseconds(), 10),
		strconv.FormatFloat(ev.Weight, 'f', 3, 64),
	})
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", l.Path, err)
	}
	return f.Close()
}
