// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

// SignalPhase is the transition phase of a signal mast.
type SignalPhase uint8

// Signal phases
const (
	PhaseStable      SignalPhase = iota // showing the current aspect
	PhaseDarkening                      // soft outputs fading down
	PhaseDark                           // everything off for the dark time
	PhaseBrightening                    // soft outputs rising to the new aspect
)

var phaseNames = []string{"stable", "darkening", "dark", "brightening"}

func (p SignalPhase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// maxMastOutputs is the width of an aspect bit pattern
const maxMastOutputs = 8

// maxFollowers is the number of signal0 slots a mast head may own
const maxFollowers = 2

type signalState struct {
	// Mast layout, rebuilt from the slot table
	outputs   [maxMastOutputs]Pin
	hard      [maxMastOutputs]bool
	n         int
	followers int
	distant   int    // slot index of the linked distant signal, -1 if none
	announced uint16 // vorsignal: address of the announced main signal

	aspect  int
	target  int
	phase   SignalPhase
	elapsed int
	level   [maxMastOutputs]uint8

	// darkReason is non-zero while a linked main signal keeps this
	// distant signal dark
	darkReason uint8
}

// buildMasts assigns signal0 followers to their heads and collects each
// mast's outputs. Runtime state is kept.
func (r *Registry) buildMasts() {
	for i := range r.slots {
		if r.slots[i].Kind == KindSignal0 {
			r.slots[i].head = -1
		}
	}

	for i := range r.slots {
		h := &r.slots[i]
		if !h.Kind.isSignalHead() {
			continue
		}
		st := &h.signal
		st.n = 0
		st.followers = 0
		st.distant = -1
		st.announced = 0

		r.addMastOutputs(h, h)
		for j := i + 1; j < len(r.slots) && st.followers < maxFollowers; j++ {
			f := &r.slots[j]
			if f.Kind != KindSignal0 {
				break
			}
			f.head = i
			st.followers++
			r.addMastOutputs(h, f)
		}

		switch h.Kind {
		case KindSignal2:
			if link := int(h.Params[2]); link > 0 && link <= len(r.slots) && r.slots[link-1].Kind == KindVorsignal {
				st.distant = link - 1
			}
		case KindVorsignal:
			st.announced = uint16(h.Params[2]) | uint16(h.Params[3])<<8
		}
	}
}

// addMastOutputs appends the connected pins of s to the mast of h. The hard
// bit of each output comes from the mode byte of the slot owning it.
func (r *Registry) addMastOutputs(h, s *Slot) {
	st := &h.signal
	for k, pin := range s.Pins {
		if pin == NC || st.n == maxMastOutputs {
			continue
		}
		st.outputs[st.n] = pin
		st.hard[st.n] = s.Options.HardMask&(1<<k) != 0
		st.n++
	}
}

// aspects is the number of aspects the mast can show
func (st *signalState) aspects() int {
	return 2 * (1 + st.followers)
}

// pattern returns the output bits of aspect a of mast h
func (r *Registry) pattern(h *Slot, a int) uint8 {
	if a < 0 || a >= h.signal.aspects() {
		return 0
	}
	return r.slots[h.Index+a/2].Params[a%2]
}

// shown returns the bits currently meant to be lit
func (r *Registry) shown(h *Slot) uint8 {
	if h.signal.darkReason != 0 {
		return 0
	}
	return r.pattern(h, h.signal.aspect)
}

// startSignals puts every mast into aspect 0 without a transition
func (r *Registry) startSignals() {
	for i := range r.slots {
		h := &r.slots[i]
		if !h.Kind.isSignalHead() {
			continue
		}
		h.signal.aspect = 0
		h.signal.target = 0
		h.signal.phase = PhaseStable
		h.signal.elapsed = 0
		h.signal.darkReason = 0
	}
	for i := range r.slots {
		h := &r.slots[i]
		if h.Kind == KindSignal2 && h.signal.distant >= 0 {
			r.slots[h.signal.distant].signal.darkReason = r.darkFor(h, 0)
		}
	}
	for i := range r.slots {
		h := &r.slots[i]
		if !h.Kind.isSignalHead() {
			continue
		}
		bits := r.shown(h)
		for j := 0; j < h.signal.n; j++ {
			r.setSignalOutput(h, j, level(bits&(1<<j) != 0), true)
		}
	}
}

// darkFor returns the dark reason main pushes to its distant signal while
// showing aspect a
func (r *Registry) darkFor(main *Slot, a int) uint8 {
	if a < 8 && main.Params[3]&(1<<a) != 0 {
		return 1
	}
	return 0
}

func (r *Registry) activateSignal(h *Slot, a int) bool {
	st := &h.signal
	if a < 0 || a >= st.aspects() {
		return false
	}
	if a == st.target {
		return false
	}
	st.target = a
	r.log.Debug("signal aspect requested", "slot", h.Index, "aspect", a, "phase", st.phase)

	if h.Kind == KindSignal2 && st.distant >= 0 {
		r.setDark(&r.slots[st.distant], r.darkFor(h, a))
	}
	r.retrigger(h)
	return true
}

// setDark changes the dark reason of a distant signal and runs the usual
// transition to the new picture
func (r *Registry) setDark(vs *Slot, reason uint8) {
	if vs.signal.darkReason == reason {
		return
	}
	vs.signal.darkReason = reason
	r.retrigger(vs)
}

// retrigger starts a transition unless one is already heading for Dark
func (r *Registry) retrigger(h *Slot) {
	switch h.signal.phase {
	case PhaseStable, PhaseBrightening:
		r.beginDarkening(h)
	}
}

func (r *Registry) beginDarkening(h *Slot) {
	st := &h.signal
	st.phase = PhaseDarkening
	st.elapsed = 0
	for j := 0; j < st.n; j++ {
		if st.hard[j] {
			r.setSignalOutput(h, j, LevelOff, false)
		}
	}
}

func (r *Registry) tickSignal(h *Slot) {
	st := &h.signal
	step := rampStep(r.riseTicks)

	switch st.phase {
	case PhaseDarkening:
		done := true
		for j := 0; j < st.n; j++ {
			next := ramp(st.level[j], LevelOff, step)
			r.setSignalOutput(h, j, next, false)
			if next != LevelOff {
				done = false
			}
		}
		if done {
			st.phase = PhaseDark
			st.elapsed = 0
		}

	case PhaseDark:
		st.elapsed++
		if st.elapsed < r.darkTicks {
			return
		}
		st.aspect = st.target
		st.phase = PhaseBrightening
		st.elapsed = 0
		bits := r.shown(h)
		for j := 0; j < st.n; j++ {
			if st.hard[j] && bits&(1<<j) != 0 {
				r.setSignalOutput(h, j, LevelOn, false)
			}
		}
		if r.settled(h, bits) {
			st.phase = PhaseStable
		}

	case PhaseBrightening:
		bits := r.shown(h)
		for j := 0; j < st.n; j++ {
			r.setSignalOutput(h, j, ramp(st.level[j], level(bits&(1<<j) != 0), step), false)
		}
		if r.settled(h, bits) {
			st.phase = PhaseStable
		}
	}
}

// settled reports whether every output has reached its level for bits
func (r *Registry) settled(h *Slot, bits uint8) bool {
	st := &h.signal
	for j := 0; j < st.n; j++ {
		if st.level[j] != level(bits&(1<<j) != 0) {
			return false
		}
	}
	return true
}

// setSignalOutput records and drives output j of mast h. Soft outputs are
// inverted when the head asks for it.
func (r *Registry) setSignalOutput(h *Slot, j int, lvl uint8, force bool) {
	st := &h.signal
	if st.level[j] == lvl && !force {
		return
	}
	st.level[j] = lvl
	out := lvl
	if h.Options.InvertSoft && !st.hard[j] {
		out = LevelOn - lvl
	}
	r.output(st.outputs[j], out)
}
