// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import "github.com/Thermoquad/turnout/pkg/cv"

type blinkPhase uint8

const (
	blinkFirst blinkPhase = iota // CV53, start-up interval
	blinkOn                      // CV51, out1 lit
	blinkOff                     // CV52, out2 lit
)

type blinkState struct {
	running bool
	phase   blinkPhase
	elapsed int
	level   [2]uint8 // driven level of out1/out2
	want    [2]uint8
}

func (r *Registry) startStatic(s *Slot) {
	r.setStatic(s, s.Params[3]&1)
	r.driveStatic(s, true)
}

func (r *Registry) activateStatic(s *Slot, position uint8, on bool) bool {
	if !on || position == s.Params[3] {
		return false
	}
	r.setStatic(s, position)
	r.persist(s, cv.OffPar4, position)
	if !s.Options.Soft {
		r.driveStatic(s, false)
	}
	return true
}

// setStatic selects the wanted outputs for state without driving them
func (r *Registry) setStatic(s *Slot, state uint8) {
	st := &s.blink
	st.running = false
	st.elapsed = 0

	if !s.Options.Blink {
		st.want = [2]uint8{level(state == 1), level(state == 0)}
		return
	}
	if state == 0 {
		st.want = [2]uint8{LevelOff, LevelOff}
		return
	}
	st.running = true
	st.phase = blinkOn
	if s.Params[2] > 0 {
		st.phase = blinkFirst
	}
	st.want = blinkOutputs(s, st.phase)
}

func blinkOutputs(s *Slot, phase blinkPhase) [2]uint8 {
	switch phase {
	case blinkFirst:
		return [2]uint8{LevelOn, level(s.Options.StartBoth)}
	case blinkOn:
		return [2]uint8{LevelOn, LevelOff}
	default:
		return [2]uint8{LevelOff, LevelOn}
	}
}

func (r *Registry) tickStatic(s *Slot) {
	st := &s.blink
	if st.running {
		st.elapsed++
		var length int
		switch st.phase {
		case blinkFirst:
			length = int(s.Params[2])
		case blinkOn:
			length = int(s.Params[0])
		default:
			length = int(s.Params[1])
		}
		if st.elapsed >= length {
			st.elapsed = 0
			if st.phase == blinkOn {
				st.phase = blinkOff
			} else {
				st.phase = blinkOn
			}
			st.want = blinkOutputs(s, st.phase)
		}
	}
	r.driveStatic(s, false)
}

// driveStatic moves the outputs toward the wanted levels, at once unless
// soft fading is enabled
func (r *Registry) driveStatic(s *Slot, instant bool) {
	st := &s.blink
	step := rampStep(r.blinkRiseTicks)
	for j := range st.level {
		next := st.want[j]
		if s.Options.Soft && !instant {
			next = ramp(st.level[j], st.want[j], step)
		}
		if next != st.level[j] || instant {
			st.level[j] = next
			r.output(s.Pins[j], next)
		}
	}
}

// rampStep is the per-tick level change for a full ramp over n ticks
func rampStep(n int) int {
	return (int(LevelOn) + n - 1) / n
}

// ramp moves cur toward want by at most step
func ramp(cur, want uint8, step int) uint8 {
	c, w := int(cur), int(want)
	switch {
	case c < w:
		return uint8(min(c+step, w))
	case c > w:
		return uint8(max(c-step, w))
	}
	return cur
}
