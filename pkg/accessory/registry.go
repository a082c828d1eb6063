// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Thermoquad/turnout/pkg/cv"
)

// Registry is the arena of slots, one per covered accessory address.
type Registry struct {
	slots    []Slot
	defaults Defaults
	cvs      *cv.Adapter
	act      Actuator
	log      *slog.Logger

	darkTicks      int
	riseTicks      int
	blinkRiseTicks int

	lastServo int
}

// NewRegistry builds the slots from the board description and the CV store.
// Blocks holding out-of-range values are restored from the defaults.
func NewRegistry(a *cv.Adapter, d Defaults, act Actuator, log *slog.Logger) (*Registry, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid board description: %w", err)
	}
	if act == nil {
		act = nopActuator{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	r := &Registry{
		slots:          make([]Slot, len(d.Slots)),
		defaults:       d,
		cvs:            a,
		act:            act,
		log:            log,
		darkTicks:      ticks(d.DarkTime),
		riseTicks:      ticks(d.RiseTime),
		blinkRiseTicks: ticks(d.BlinkRiseTime),
		lastServo:      -1,
	}

	for i, sd := range d.Slots {
		r.slots[i] = Slot{Index: i, Kind: sd.Kind, Pins: sd.Pins, head: -1}
	}
	for i := range r.slots {
		if err := r.load(i); err != nil {
			return nil, err
		}
	}
	r.buildMasts()
	a.SetValidator(r)
	return r, nil
}

// load reads the CV block of slot i into the cache
func (r *Registry) load(i int) error {
	s := &r.slots[i]
	sd := r.defaults.Slots[i]
	block, err := r.readBlock(i)
	if err != nil {
		// Run from the compiled values; the store is left alone
		r.log.Error("failed to read CV block, using defaults", "slot", i, "error", err)
		r.apply(s, [5]uint8{sd.Mode, sd.Params[0], sd.Params[1], sd.Params[2], sd.Params[3]})
		return nil
	}

	params := [4]uint8{block[1], block[2], block[3], block[4]}
	err = validateBlock(s.Kind, block[0], params)
	if err == nil && s.Kind == KindSignal2 {
		if reason := checkDistantLink(r.kinds(), params[2]); reason != "" {
			err = errors.New(reason)
		}
	}
	if err != nil {
		r.log.Warn("invalid CV block, restoring defaults", "slot", i, "kind", s.Kind, "error", err)
		block = [5]uint8{sd.Mode, sd.Params[0], sd.Params[1], sd.Params[2], sd.Params[3]}
		if werr := writeBlock(r.cvs, i, sd); werr != nil {
			r.log.Error("failed to restore CV block", "slot", i, "error", werr)
		}
	}
	r.apply(s, block)
	return nil
}

func (r *Registry) readBlock(i int) ([5]uint8, error) {
	var block [5]uint8
	for off := range block {
		v, err := r.cvs.Read(cv.BlockCV(i, off))
		if err != nil {
			return block, fmt.Errorf("slot %d: %w", i, err)
		}
		block[off] = v
	}
	return block, nil
}

// apply caches a block and decodes its mode byte
func (r *Registry) apply(s *Slot, block [5]uint8) {
	s.Mode = block[0]
	s.Params = [4]uint8{block[1], block[2], block[3], block[4]}
	s.Options = DecodeOptions(s.Kind, s.Mode)
}

// Reload re-reads the CV block of slot i after a programming write.
func (r *Registry) Reload(i int) error {
	if i < 0 || i >= len(r.slots) {
		return fmt.Errorf("slot %d out of range", i)
	}
	if err := r.load(i); err != nil {
		return err
	}
	s := &r.slots[i]
	switch {
	case s.Kind == KindServo:
		r.resyncServo(s)
	case s.Kind == KindCoil:
		r.resyncCoil(s)
	case s.Kind.isSignalHead() || s.Kind == KindSignal0:
		r.buildMasts()
	}
	return nil
}

func (r *Registry) kinds() []Kind {
	kinds := make([]Kind, len(r.slots))
	for i := range r.slots {
		kinds[i] = r.slots[i].Kind
	}
	return kinds
}

// Len returns the number of slots
func (r *Registry) Len() int {
	return len(r.slots)
}

// Slot returns slot i
func (r *Registry) Slot(i int) *Slot {
	return &r.slots[i]
}

// LastServo returns the index of the most recently activated servo, or -1.
func (r *Registry) LastServo() int {
	return r.lastServo
}

// Start puts every slot into its power-up state and drives the outputs once.
func (r *Registry) Start() {
	for i := range r.slots {
		s := &r.slots[i]
		switch s.Kind {
		case KindServo:
			r.startServo(s)
		case KindCoil:
			r.startCoil(s)
		case KindStatic:
			r.startStatic(s)
		}
	}
	r.startSignals()
}

// Activate forwards a command to slot i. It reports whether the command
// changed anything.
func (r *Registry) Activate(i int, position uint8, on bool) bool {
	if i < 0 || i >= len(r.slots) || position > 1 {
		return false
	}
	s := &r.slots[i]
	switch s.Kind {
	case KindServo:
		if on {
			r.lastServo = i
		}
		return r.activateServo(s, position, on)
	case KindCoil:
		return r.activateCoil(s, position, on)
	case KindStatic:
		return r.activateStatic(s, position, on)
	case KindSignal2, KindVorsignal:
		if !on {
			return false
		}
		return r.activateSignal(s, int(position))
	case KindSignal0:
		if !on || s.head < 0 {
			return false
		}
		h := &r.slots[s.head]
		return r.activateSignal(h, 2*(i-s.head)+int(position))
	}
	return false
}

// Observe lets distant signals follow commands for their announced main
// signal, which may be anywhere on the bus.
func (r *Registry) Observe(address uint16, position uint8, on bool) {
	if !on || position > 1 {
		return
	}
	for i := range r.slots {
		s := &r.slots[i]
		if s.Kind != KindVorsignal {
			continue
		}
		main := s.signal.announced
		if main == 0 || address < main || address > main+2 {
			continue
		}
		r.activateSignal(s, 2*int(address-main)+int(position))
	}
}

// Tick advances every slot by one scheduler tick.
func (r *Registry) Tick() {
	for i := range r.slots {
		s := &r.slots[i]
		switch s.Kind {
		case KindServo:
			r.tickServo(s)
		case KindCoil:
			r.tickCoil(s)
		case KindStatic:
			r.tickStatic(s)
		case KindSignal2, KindVorsignal:
			r.tickSignal(s)
		}
	}
}

// Status returns a snapshot of every slot. base is the current base address.
func (r *Registry) Status(base uint16) []SlotStatus {
	out := make([]SlotStatus, len(r.slots))
	for i := range r.slots {
		out[i] = r.slots[i].status(base + uint16(i))
	}
	return out
}

// persist stores a runtime value (positions, states) in the slot block.
func (r *Registry) persist(s *Slot, off int, value uint8) {
	s.Params[off-1] = value
	if err := r.cvs.Write(cv.BlockCV(s.Index, off), value); err != nil {
		r.log.Error("failed to persist state", "slot", s.Index, "cv", cv.BlockCV(s.Index, off), "error", err)
	}
}

// output drives a digital output unless the pin is not connected
func (r *Registry) output(pin Pin, level uint8) {
	if pin != NC {
		r.act.SetOutput(pin, level)
	}
}

// ValidateCV implements cv.Validator with the rules of the owning function.
func (r *Registry) ValidateCV(n uint16, value uint8, current func(uint16) uint8) error {
	reject := func(reason string) error {
		return &cv.RangeError{CV: n, Value: value, Reason: reason}
	}

	switch n {
	case cvVersion, cvManufacturer:
		return fmt.Errorf("CV%d: %w", n, cv.ErrReadOnly)

	case cv.AddrLow, cv.AddrHigh:
		lo, hi := current(cv.AddrLow), current(cv.AddrHigh)
		if n == cv.AddrLow {
			lo = value
		} else {
			hi = value
		}
		addr := uint16(lo) | uint16(hi)<<8
		if addr == 0 || int(addr)+len(r.slots)-1 > MaxAccessoryAddress {
			return reject(fmt.Sprintf("base address %d out of range", addr))
		}
		return nil

	case cv.Config:
		if value&markerMask != InitMarker {
			return reject("init marker must be kept")
		}
		if value&^(markerMask|optionMask) != 0 {
			return reject("unknown option bits")
		}
		return nil

	case cv.PomLow, cv.PomHigh:
		lo, hi := current(cv.PomLow), current(cv.PomHigh)
		if n == cv.PomLow {
			lo = value
		} else {
			hi = value
		}
		addr := uint16(lo) | uint16(hi)<<8
		if addr == 0 || addr > MaxPomAddress {
			return reject(fmt.Sprintf("PoM address %d out of range", addr))
		}
		return nil
	}

	slot, off, ok := cv.SlotOf(n)
	if !ok || slot >= len(r.slots) {
		return fmt.Errorf("CV%d: %w", n, cv.ErrUnknownCV)
	}

	kind := r.slots[slot].Kind
	var block [5]uint8
	for i := range block {
		block[i] = current(cv.BlockCV(slot, i))
	}
	block[off] = value
	if reason := checkParam(kind, off, block); reason != "" {
		return reject(reason)
	}
	if kind == KindSignal2 && off == cv.OffPar3 {
		if reason := checkDistantLink(r.kinds(), value); reason != "" {
			return reject(reason)
		}
	}
	return nil
}
