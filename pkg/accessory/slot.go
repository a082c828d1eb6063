// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

// Slot is one covered accessory address: the function kind, its pins, the
// cached CV block and the state of whichever kind it is. Only the state
// matching Kind is used.
type Slot struct {
	Index   int
	Kind    Kind
	Pins    [3]Pin
	Mode    uint8
	Params  [4]uint8
	Options Options

	servo  servoState
	coil   coilState
	blink  blinkState
	signal signalState

	// head is the index of the mast head for signal followers, -1 otherwise
	head int
}

// block returns the cached CV block
func (s *Slot) block() [5]uint8 {
	return [5]uint8{s.Mode, s.Params[0], s.Params[1], s.Params[2], s.Params[3]}
}

// SlotStatus is a read-only view of a slot for monitors.
type SlotStatus struct {
	Index    int
	Address  uint16
	Kind     Kind
	Position uint8

	// Servo
	Angle  uint8
	Moving bool
	Pulses bool

	// Coil and static
	Active bool

	// Signal heads
	Aspect int
	Target int
	Phase  SignalPhase
	Dark   bool
}

func (s *Slot) status(address uint16) SlotStatus {
	st := SlotStatus{
		Index:   s.Index,
		Address: address,
		Kind:    s.Kind,
		Aspect:  -1,
		Target:  -1,
	}
	switch s.Kind {
	case KindServo:
		st.Position = s.servo.lastPosition
		st.Angle = s.servo.angle()
		st.Moving = s.servo.moving
		st.Pulses = s.servo.pulses
	case KindCoil:
		st.Position = s.coil.lastPosition
		st.Active = s.coil.active
	case KindStatic:
		st.Position = s.Params[3]
		st.Active = s.blink.running || s.blink.want[0] > 0
	case KindSignal2, KindVorsignal:
		st.Aspect = s.signal.aspect
		st.Target = s.signal.target
		st.Phase = s.signal.phase
		st.Dark = s.signal.darkReason != 0
	}
	return st
}
