// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import "github.com/Thermoquad/turnout/pkg/cv"

type coilState struct {
	active       bool
	activePin    Pin
	onTicks      int
	offTicks     int
	lastPosition uint8
}

func (r *Registry) startCoil(s *Slot) {
	st := &s.coil
	st.lastPosition = s.Params[3] & 1
	st.active = false
	st.activePin = NC
	st.offTicks = int(s.Params[1]) // no cool-down pending at power-up
	r.output(s.Pins[0], LevelOff)
	r.output(s.Pins[1], LevelOff)
}

func (r *Registry) activateCoil(s *Slot, position uint8, on bool) bool {
	st := &s.coil

	if !on {
		if s.Options.AutoOff || !st.active {
			return false
		}
		r.deenergize(s)
		return true
	}

	switch {
	case st.active:
		r.log.Debug("coil busy, command dropped", "slot", s.Index, "position", position)
		return false
	case position == st.lastPosition && !s.Options.NoPosCheck:
		return false
	case st.offTicks < int(s.Params[1]):
		r.log.Debug("coil cooling down, command dropped", "slot", s.Index, "position", position)
		return false
	}

	st.active = true
	st.activePin = s.Pins[position]
	st.onTicks = 0
	st.lastPosition = position
	r.output(st.activePin, LevelOn)
	r.persist(s, cv.OffPar4, position)
	return true
}

// resyncCoil adopts a programmed stored position while no pulse is running
func (r *Registry) resyncCoil(s *Slot) {
	st := &s.coil
	if !st.active {
		st.lastPosition = s.Params[3] & 1
	}
}

func (r *Registry) deenergize(s *Slot) {
	st := &s.coil
	r.output(st.activePin, LevelOff)
	st.active = false
	st.activePin = NC
	st.offTicks = 0
}

func (r *Registry) tickCoil(s *Slot) {
	st := &s.coil
	if !st.active {
		if st.offTicks < int(s.Params[1]) {
			st.offTicks++
		}
		return
	}
	st.onTicks++
	if limit := int(s.Params[0]); limit > 0 && st.onTicks >= limit {
		r.deenergize(s)
	}
}
