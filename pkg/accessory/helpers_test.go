// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import (
	"errors"
	"testing"

	"github.com/Thermoquad/turnout/pkg/cv"
)

// recorder is an Actuator keeping the last command per pin
type recorder struct {
	angles  map[Pin]uint8
	pulses  map[Pin]bool
	levels  map[Pin]uint8
	history map[Pin][]uint8
}

func newRecorder() *recorder {
	return &recorder{
		angles:  make(map[Pin]uint8),
		pulses:  make(map[Pin]bool),
		levels:  make(map[Pin]uint8),
		history: make(map[Pin][]uint8),
	}
}

func (r *recorder) SetServoAngle(pin Pin, degrees uint8) {
	r.angles[pin] = degrees
	r.pulses[pin] = true
	r.history[pin] = append(r.history[pin], degrees)
}

func (r *recorder) StopServo(pin Pin) {
	r.pulses[pin] = false
}

func (r *recorder) SetOutput(pin Pin, level uint8) {
	r.levels[pin] = level
}

// board returns the default board with the given slots
func board(slots ...SlotDefaults) Defaults {
	d := DefaultConfig()
	d.Slots = slots
	return d
}

func boot(t *testing.T, d Defaults, store cv.Store, sensed Mode) (*Decoder, *recorder) {
	t.Helper()
	rec := newRecorder()
	dec, err := New(Config{Store: store, Defaults: d, Sensed: sensed, Actuator: rec})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return dec, rec
}

func newDecoder(t *testing.T, slots ...SlotDefaults) (*Decoder, *recorder) {
	t.Helper()
	return boot(t, board(slots...), cv.NewMemoryStore(), ModeNormal)
}

func tick(dec *Decoder, n int) {
	for range n {
		dec.Scheduler.Tick()
	}
}

func send(dec *Decoder, address uint16, output uint8, activate bool) Outcome {
	return dec.Dispatcher.HandleAccessory(address, output, activate)
}

func readCV(t *testing.T, dec *Decoder, n uint16) uint8 {
	t.Helper()
	v, err := dec.CVs.Read(n)
	if err != nil {
		t.Fatalf("Read(CV%d) error: %v", n, err)
	}
	return v
}

// failingStore fails every access
type failingStore struct{}

var errStoreDown = errors.New("store unavailable")

func (failingStore) ReadCV(uint16) (uint8, error) { return 0, errStoreDown }
func (failingStore) WriteCV(uint16, uint8) error  { return errStoreDown }
