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
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"net/http"
	"time"

	"github.com/EMZIlab/Wingo-deposit-machine/scale"
	"github.com/EMZIlab/Wingo-deposit-machine/stepper"
)

// Motor is the view of the motor shown by the server.
type Motor interface {
	State() stepper.State
	Position() int64
	Degrees() float64
	Homed() bool
}

// Server renders the machine status.
type Server struct {
	Motor     Motor
	Scale     *scale.Published
	History   *History
	Threshold float64
}

// Handler returns the status pages.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.status)
	mux.Handle("/weight.png", imageHandler(func() image.Image {
		return Chart(s.History.Samples(), s.Threshold, 640, 360)
	}))
	mux.Handle("/motor.png", imageHandler(func() image.Image {
		return Dial(s.Motor.Degrees(), 240)
	}))
	return mux
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "state: %s\n", s.Motor.State())
	fmt.Fprintf(w, "position: %d\n", s.Motor.Position())
	fmt.Fprintf(w, "homed: %t\n", s.Motor.Homed())
	fmt.Fprintf(w, "weight: %.3f kg\n", s.Scale.Weight())
	fmt.Fprintf(w, "raw: %d\n", s.Scale.Raw())
	if u := s.Scale.Updated(); !u.IsZero() {
		fmt.Fprintf(w, "updated: %s\n", u.Format(time.RFC3339Nano))
	}
}

func imageHandler(draw func() image.Image) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		if err := png.Encode(w, draw()); err != nil {
			log.Printf("status: error writing image: %v", err)
		}
	})
}

// Serve runs the status server on port until ctx is cancelled.
func Serve(ctx context.Context, port int, s *Server) error {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shut, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shut)
	}()
	log.Printf("status: starting server on %s", srv.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
