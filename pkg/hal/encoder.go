// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"context"
	"time"

	"github.com/Thermoquad/turnout/pkg/accessory"
	"periph.io/x/conn/v3/gpio"
)

// PollInterval is the sampling period of the encoder inputs
const PollInterval = time.Millisecond

// LevelReader is the part of a GPIO input the encoder needs.
type LevelReader interface {
	Read() gpio.Level
}

// Encoder turns the encoder phase inputs and the centre button into engine
// events. Inputs are active low.
type Encoder struct {
	a, b   LevelReader
	center LevelReader // may be nil
	quad   *accessory.Quadrature
	held   bool
}

// NewEncoder samples the current levels as the starting state.
func NewEncoder(a, b, center LevelReader, double bool) *Encoder {
	e := &Encoder{a: a, b: b, center: center}
	e.quad = accessory.NewQuadrature(e.level(a), e.level(b), double)
	if center != nil {
		e.held = e.level(center)
	}
	return e
}

func (e *Encoder) level(r LevelReader) bool {
	return r.Read() == gpio.Low
}

// Poll samples the inputs once and returns the events they produce.
func (e *Encoder) Poll() []accessory.Event {
	var events []accessory.Event
	if d := e.quad.Update(e.level(e.a), e.level(e.b)); d != 0 {
		events = append(events, accessory.Event{Kind: accessory.EventEncoder, Delta: d})
	}
	if e.center != nil {
		if held := e.level(e.center); held != e.held {
			e.held = held
			events = append(events, accessory.Event{Kind: accessory.EventCenter, Center: held})
		}
	}
	return events
}

// Run polls until ctx is done, sending events without blocking the sampler
// longer than ctx allows.
func (e *Encoder) Run(ctx context.Context, events chan<- accessory.Event) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, ev := range e.Poll() {
				select {
				case events <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
