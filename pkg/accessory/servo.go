// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import "github.com/Thermoquad/turnout/pkg/cv"

const (
	angleScale  = 8  // servo positions are kept in 1/8 degree
	centerAngle = 90 // calibration centre position

	// servoSettleTicks is how long pulses stay on after a re-arm
	// before AutoOff switches them off again.
	servoSettleTicks = 50
)

// Servo pins
const (
	servoPin  = 0
	relay1Pin = 1 // follows the position once the servo is at rest
	relay2Pin = 2 // switches when the servo passes the midpoint
)

type servoState struct {
	pos          int // current angle, 1/8 degree
	target       int
	moving       bool
	pulses       bool
	lastPosition uint8
	pending      int8 // queued position for non-direct servos, -1 if none
	override     bool // calibration keeps pulses live
	settle       int
	relay2       bool
}

func (st *servoState) angle() uint8 {
	return uint8((st.pos + angleScale/2) / angleScale)
}

// endpoint returns the commanded angle for position, 1/8 degree
func (s *Slot) endpoint(position uint8) int {
	return int(s.Params[position]) * angleScale
}

func (s *Slot) midpoint() int {
	return (s.endpoint(0) + s.endpoint(1)) / 2
}

// pastMidpoint reports on which side of the midpoint pos lies, as a relay level
func (s *Slot) pastMidpoint(pos int) bool {
	if s.endpoint(1) >= s.endpoint(0) {
		return pos >= s.midpoint()
	}
	return pos <= s.midpoint()
}

func (r *Registry) startServo(s *Slot) {
	st := &s.servo
	st.lastPosition = s.Params[3] & 1
	st.pos = s.endpoint(st.lastPosition)
	st.target = st.pos
	st.pending = -1
	st.pulses = true
	st.settle = servoSettleTicks
	st.relay2 = s.pastMidpoint(st.pos)

	r.driveServo(s)
	r.output(s.Pins[relay1Pin], level(st.lastPosition == 1))
	r.output(s.Pins[relay2Pin], level(st.relay2))
}

func (r *Registry) activateServo(s *Slot, position uint8, on bool) bool {
	if !on {
		return false
	}
	st := &s.servo

	if st.moving {
		if !s.Options.Direct {
			// Held until the running motion completes; latest command wins
			st.pending = int8(position)
			r.log.Debug("servo busy, command queued", "slot", s.Index, "position", position)
			return true
		}
		if position == st.lastPosition {
			return false
		}
		r.moveServo(s, position)
		return true
	}

	if position == st.lastPosition && !s.Options.NoPosCheck {
		if s.Options.AutoOff && !st.pulses {
			r.rearmServo(s)
			return true
		}
		return false
	}

	r.moveServo(s, position)
	return true
}

// moveServo starts (or redirects) a motion toward position
func (r *Registry) moveServo(s *Slot, position uint8) {
	st := &s.servo
	st.lastPosition = position
	st.target = s.endpoint(position)
	st.pending = -1

	if st.target == st.pos && !st.moving {
		// Already there: only refresh the pulses and the stored position
		r.rearmServo(s)
		r.persist(s, cv.OffPar4, position)
		return
	}
	st.moving = true
	st.pulses = true
	st.settle = 0
}

func (r *Registry) rearmServo(s *Slot) {
	st := &s.servo
	st.pulses = true
	st.settle = servoSettleTicks
	r.driveServo(s)
}

func (r *Registry) stopServo(s *Slot) {
	s.servo.pulses = false
	if pin := s.Pins[servoPin]; pin != NC {
		r.act.StopServo(pin)
	}
}

// driveServo sends the current angle unless the servo pin is not connected
func (r *Registry) driveServo(s *Slot) {
	if pin := s.Pins[servoPin]; pin != NC {
		r.act.SetServoAngle(pin, s.servo.angle())
	}
}

func (r *Registry) tickServo(s *Slot) {
	st := &s.servo

	if st.moving {
		step := int(s.Params[2])
		if step == 0 {
			step = maxAngle * angleScale
		}
		switch {
		case st.pos < st.target:
			st.pos = min(st.pos+step, st.target)
		case st.pos > st.target:
			st.pos = max(st.pos-step, st.target)
		}
		r.driveServo(s)

		if past := s.pastMidpoint(st.pos); past != st.relay2 {
			st.relay2 = past
			r.output(s.Pins[relay2Pin], level(past))
		}
		if st.pos == st.target {
			r.completeServo(s)
		}
		return
	}

	if !st.pulses {
		return
	}
	r.driveServo(s)
	if st.override || st.settle == 0 {
		return
	}
	st.settle--
	if st.settle == 0 && s.Options.AutoOff {
		r.stopServo(s)
	}
}

func (r *Registry) completeServo(s *Slot) {
	st := &s.servo
	st.moving = false
	r.output(s.Pins[relay1Pin], level(st.lastPosition == 1))
	r.persist(s, cv.OffPar4, st.lastPosition)

	if s.Options.AutoOff && !st.override {
		r.stopServo(s)
	}

	if st.pending >= 0 {
		next := uint8(st.pending)
		st.pending = -1
		if next != st.lastPosition {
			r.moveServo(s, next)
		}
	}
}

// level maps a boolean to a full output level
func level(on bool) uint8 {
	if on {
		return LevelOn
	}
	return LevelOff
}

// holdServo puts the servo straight to pos (1/8 degree) and keeps pulses
// live for the settle window. A running motion is abandoned and counts as
// completed, so relay 1 and CV54 follow the commanded position.
func (r *Registry) holdServo(s *Slot, pos int) {
	st := &s.servo
	abandoned := st.moving
	if abandoned {
		r.persist(s, cv.OffPar4, st.lastPosition)
	}
	st.moving = false
	st.pending = -1
	st.pos = pos
	st.target = pos
	if past := s.pastMidpoint(pos); past != st.relay2 {
		st.relay2 = past
		r.output(s.Pins[relay2Pin], level(past))
	}
	if abandoned {
		r.output(s.Pins[relay1Pin], level(st.lastPosition == 1))
	}
	r.rearmServo(s)
}

// resyncServo follows a programmed change of the stored position while idle
func (r *Registry) resyncServo(s *Slot) {
	st := &s.servo
	stored := s.Params[3] & 1
	if st.moving || st.override || stored == st.lastPosition {
		return
	}
	r.log.Info("stored servo position changed, moving", "slot", s.Index, "position", stored)
	r.moveServo(s, stored)
}
