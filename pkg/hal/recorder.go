// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hal connects the decoder engine to hardware: GPIO and PWM
// outputs, encoder inputs, and a recording actuator for simulation.
package hal

import (
	"sort"
	"sync"
	"time"

	"github.com/Thermoquad/turnout/pkg/accessory"
)

// Output is the last command sent to one pin.
type Output struct {
	Pin     accessory.Pin
	Servo   bool  // driven by SetServoAngle/StopServo
	Level   uint8 // angle for servos, brightness otherwise
	Pulsing bool  // servo pulses active
	Changes int
	Updated time.Time
}

// Recorder is an Actuator that remembers every output. It is safe for
// concurrent use.
type Recorder struct {
	mu      sync.Mutex
	outputs map[accessory.Pin]*Output

	// OnChange, when set, is called after each command with the new state.
	// It runs on the caller's goroutine.
	OnChange func(Output)
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{outputs: make(map[accessory.Pin]*Output)}
}

func (r *Recorder) update(pin accessory.Pin, fn func(o *Output)) {
	r.mu.Lock()
	o, ok := r.outputs[pin]
	if !ok {
		o = &Output{Pin: pin}
		r.outputs[pin] = o
	}
	fn(o)
	o.Changes++
	o.Updated = time.Now()
	snapshot := *o
	cb := r.OnChange
	r.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// SetServoAngle implements accessory.Actuator.
func (r *Recorder) SetServoAngle(pin accessory.Pin, degrees uint8) {
	r.update(pin, func(o *Output) {
		o.Servo = true
		o.Level = degrees
		o.Pulsing = true
	})
}

// StopServo implements accessory.Actuator.
func (r *Recorder) StopServo(pin accessory.Pin) {
	r.update(pin, func(o *Output) {
		o.Servo = true
		o.Pulsing = false
	})
}

// SetOutput implements accessory.Actuator.
func (r *Recorder) SetOutput(pin accessory.Pin, level uint8) {
	r.update(pin, func(o *Output) {
		o.Servo = false
		o.Level = level
	})
}

// Output returns the state of one pin.
func (r *Recorder) Output(pin accessory.Pin) (Output, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.outputs[pin]
	if !ok {
		return Output{Pin: pin}, false
	}
	return *o, true
}

// Outputs returns every driven pin in pin order.
func (r *Recorder) Outputs() []Output {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Output, 0, len(r.outputs))
	for _, o := range r.outputs {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pin < out[j].Pin })
	return out
}

// Multi forwards every command to all actuators in order.
func Multi(acts ...accessory.Actuator) accessory.Actuator {
	return multi(acts)
}

type multi []accessory.Actuator

func (m multi) SetServoAngle(pin accessory.Pin, degrees uint8) {
	for _, a := range m {
		a.SetServoAngle(pin, degrees)
	}
}

func (m multi) StopServo(pin accessory.Pin) {
	for _, a := range m {
		a.StopServo(pin)
	}
}

func (m multi) SetOutput(pin accessory.Pin, level uint8) {
	for _, a := range m {
		a.SetOutput(pin, level)
	}
}
