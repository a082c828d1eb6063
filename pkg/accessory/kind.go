// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import (
	"fmt"
	"strings"
)

// Kind is the function type bound to a slot.
type Kind uint8

// Function kinds
const (
	KindStatic    Kind = iota // static or blinking outputs
	KindServo                 // servo point motor with polarisation relays
	KindSignal2               // light signal head, first address of a mast
	KindSignal0               // follower address of a signal mast
	KindVorsignal             // distant signal, head of its own mast
	KindCoil                  // twin-coil point motor
)

var kindNames = []string{"static", "servo", "signal2", "signal0", "vorsignal", "coil"}

// String returns the profile name of the kind
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind parses a profile name
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown function kind %q", s)
}

// isSignalHead reports whether the kind starts a signal mast
func (k Kind) isSignalHead() bool {
	return k == KindSignal2 || k == KindVorsignal
}

// Mode byte bits (first CV of a slot block)
const (
	ServoAutoOff    = 1 << 0 // stop pulses when the servo is at rest
	ServoDirect     = 1 << 1 // react to commands during motion
	NoPosCheck      = 1 << 3 // act even if the commanded position is already set
	CoilAutoOffOnly = 1 << 0 // coil may only be switched off by its timer
	BlinkEnable     = 1 << 0 // blink instead of static output
	BlinkStartBoth  = 1 << 1 // first interval lights both outputs
	BlinkSoft       = 1 << 2 // fade outputs instead of switching
	SignalHardMask  = 0x07   // outputs switching hard (bit=1) or soft (bit=0)
	SignalInvert    = 1 << 7 // soft outputs are active low
)

// validModeBits lists the mode bits each kind understands
var validModeBits = map[Kind]uint8{
	KindStatic:    BlinkEnable | BlinkStartBoth | BlinkSoft,
	KindServo:     ServoAutoOff | ServoDirect | NoPosCheck,
	KindSignal2:   SignalHardMask | SignalInvert,
	KindSignal0:   SignalHardMask,
	KindVorsignal: SignalHardMask | SignalInvert,
	KindCoil:      CoilAutoOffOnly | NoPosCheck,
}

// Options is the decoded mode byte of a slot.
type Options struct {
	AutoOff    bool // servo: AutoOff, coil: timer-only switch off
	Direct     bool
	NoPosCheck bool
	Blink      bool
	StartBoth  bool
	Soft       bool
	HardMask   uint8
	InvertSoft bool
}

// DecodeOptions decodes a mode byte for kind
func DecodeOptions(kind Kind, mode uint8) Options {
	switch kind {
	case KindServo:
		return Options{
			AutoOff:    mode&ServoAutoOff != 0,
			Direct:     mode&ServoDirect != 0,
			NoPosCheck: mode&NoPosCheck != 0,
		}
	case KindCoil:
		return Options{
			AutoOff:    mode&CoilAutoOffOnly != 0,
			NoPosCheck: mode&NoPosCheck != 0,
		}
	case KindStatic:
		return Options{
			Blink:     mode&BlinkEnable != 0,
			StartBoth: mode&BlinkStartBoth != 0,
			Soft:      mode&BlinkSoft != 0,
		}
	default:
		return Options{
			HardMask:   mode & SignalHardMask,
			InvertSoft: mode&SignalInvert != 0,
		}
	}
}
