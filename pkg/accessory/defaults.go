// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import (
	"fmt"
	"time"
)

// TickInterval is the scheduler resolution and the unit of all CV times.
const TickInterval = 10 * time.Millisecond

// SlotDefaults is the compiled-in description of one slot.
type SlotDefaults struct {
	Kind   Kind
	Pins   [3]Pin
	Mode   uint8
	Params [4]uint8
}

// Defaults is the immutable board description. Pins and kinds are fixed for
// the life of the device; the CV values are only written during a forced
// re-initialization.
type Defaults struct {
	BaseAddress uint16
	Options     uint8 // low nibble of CV47
	PomAddress  uint16

	// FixedMode replaces the sensed mode input when set.
	FixedMode *Mode

	ModePin       Pin
	DarkTime      time.Duration
	RiseTime      time.Duration
	BlinkRiseTime time.Duration
	EncoderDouble bool

	Slots []SlotDefaults
}

// DefaultConfig returns the reference board: an alternating blinker, a servo,
// an exit signal with one follower, a distant signal and a twin coil.
func DefaultConfig() Defaults {
	return Defaults{
		BaseAddress:   20,
		Options:       OptAutoAddr,
		PomAddress:    50,
		ModePin:       13,
		DarkTime:      300 * time.Millisecond,
		RiseTime:      500 * time.Millisecond,
		BlinkRiseTime: 100 * time.Millisecond,
		EncoderDouble: true,
		Slots: []SlotDefaults{
			{Kind: KindStatic, Pins: [3]Pin{16, 17, NC}, Mode: BlinkEnable | BlinkStartBoth | BlinkSoft, Params: [4]uint8{50, 50, 50, 0}},
			{Kind: KindServo, Pins: [3]Pin{3, NC, NC}, Mode: ServoAutoOff | ServoDirect | NoPosCheck, Params: [4]uint8{30, 150, 8, 0}},
			{Kind: KindSignal2, Pins: [3]Pin{9, 14, 7}, Mode: 0, Params: [4]uint8{0b01001, 0b00010, 5, 0b00101}},
			{Kind: KindSignal0, Pins: [3]Pin{10, 8, NC}, Mode: 0, Params: [4]uint8{0b10001, 0b00110, 0, 0}},
			{Kind: KindVorsignal, Pins: [3]Pin{15, 18, NC}, Mode: 0, Params: [4]uint8{0b01, 0b10, 19, 0}},
			{Kind: KindCoil, Pins: [3]Pin{5, 6, NC}, Mode: CoilAutoOffOnly | NoPosCheck, Params: [4]uint8{50, 50, 0, 0}},
		},
	}
}

// Validate checks the descriptor for values the runtime cannot work with.
func (d Defaults) Validate() error {
	if len(d.Slots) == 0 {
		return fmt.Errorf("no slots configured")
	}
	if d.BaseAddress == 0 || d.BaseAddress > MaxAccessoryAddress {
		return fmt.Errorf("base address %d out of range 1-%d", d.BaseAddress, MaxAccessoryAddress)
	}
	if d.PomAddress == 0 || d.PomAddress > MaxPomAddress {
		return fmt.Errorf("PoM address %d out of range 1-%d", d.PomAddress, MaxPomAddress)
	}
	if d.Options&^optionMask != 0 {
		return fmt.Errorf("invalid option bits 0x%02X", d.Options)
	}
	if int(d.BaseAddress)+len(d.Slots)-1 > MaxAccessoryAddress {
		return fmt.Errorf("%d slots starting at %d exceed address range", len(d.Slots), d.BaseAddress)
	}
	for i, s := range d.Slots {
		if s.Kind > KindCoil {
			return fmt.Errorf("slot %d: invalid kind %d", i, s.Kind)
		}
		if err := validateBlock(s.Kind, s.Mode, s.Params); err != nil {
			return fmt.Errorf("slot %d (%s): %w", i, s.Kind, err)
		}
		if s.Kind == KindSignal2 {
			kinds := make([]Kind, len(d.Slots))
			for j := range d.Slots {
				kinds[j] = d.Slots[j].Kind
			}
			if reason := checkDistantLink(kinds, s.Params[2]); reason != "" {
				return fmt.Errorf("slot %d: %s", i, reason)
			}
		}
		if s.Kind == KindSignal0 {
			if i == 0 || !(d.Slots[i-1].Kind.isSignalHead() || d.Slots[i-1].Kind == KindSignal0) {
				return fmt.Errorf("slot %d: signal0 must follow a signal head", i)
			}
			if i >= 2 && d.Slots[i-1].Kind == KindSignal0 && d.Slots[i-2].Kind == KindSignal0 {
				return fmt.Errorf("slot %d: at most two signal0 followers per mast", i)
			}
		}
	}
	return nil
}

// ticks converts a duration to scheduler ticks, at least one.
func ticks(d time.Duration) int {
	n := int(d / TickInterval)
	if n < 1 {
		return 1
	}
	return n
}
