// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import (
	"errors"
	"testing"

	"github.com/Thermoquad/turnout/pkg/cv"
)

func TestDispatcher_OutOfRangeDropped(t *testing.T) {
	dec, _ := boot(t, DefaultConfig(), cv.NewMemoryStore(), ModeNormal)

	for _, addr := range []uint16{1, 19, 26, 2000} {
		if got := send(dec, addr, 1, true); got != OutcomeDropped {
			t.Errorf("address %d = %v, want dropped", addr, got)
		}
	}
	if s := dec.Dispatcher.Stats(); s.Dropped != 4 || s.Commands != 4 {
		t.Errorf("stats = %+v, want 4 dropped of 4", s)
	}
}

func TestDispatcher_RocoOffset(t *testing.T) {
	d := DefaultConfig()
	d.Options = OptRocoAddr
	dec, _ := boot(t, d, cv.NewMemoryStore(), ModeNormal)

	if got := send(dec, 17, 1, true); got != OutcomeApplied {
		t.Fatalf("address 17 with Roco offset = %v, want applied to the servo", got)
	}
	if st := dec.Status()[1]; st.Position != 1 {
		t.Errorf("servo position = %d, want 1", st.Position)
	}
}

func TestDispatcher_AddressLearn(t *testing.T) {
	store := cv.NewMemoryStore()
	d := DefaultConfig()
	dec, _ := boot(t, d, store, ModeAddressLearn)

	if !dec.Dispatcher.Learning() {
		t.Fatal("decoder not learning in address learn mode")
	}
	if got := send(dec, 300, 0, true); got != OutcomeLearned {
		t.Fatalf("first command = %v, want learned", got)
	}
	if dec.Dispatcher.Learning() {
		t.Error("still learning after first command")
	}
	if got := readCV(t, dec, cv.AddrLow); got != 300&0xFF {
		t.Errorf("CV1 = %d, want %d", got, 300&0xFF)
	}
	if got := readCV(t, dec, cv.AddrHigh); got != 300>>8 {
		t.Errorf("CV9 = %d, want %d", got, 300>>8)
	}
	if got := send(dec, 301, 1, true); got != OutcomeApplied {
		t.Errorf("servo at learned address = %v, want applied", got)
	}
	if got := send(dec, 21, 1, true); got != OutcomeDropped {
		t.Errorf("old address = %v, want dropped", got)
	}

	dec, _ = boot(t, d, store, ModeNormal)
	if got := dec.Dispatcher.Config().BaseAddress; got != 300 {
		t.Errorf("BaseAddress after reboot = %d, want 300", got)
	}
}

func TestDispatcher_LearnNeedsAutoAddr(t *testing.T) {
	d := DefaultConfig()
	d.Options = 0
	dec, _ := boot(t, d, cv.NewMemoryStore(), ModeAddressLearn)
	if dec.Dispatcher.Learning() {
		t.Error("learning without the AutoAddr option")
	}
}

func TestDispatcher_PomDisabledInNormal(t *testing.T) {
	dec, _ := boot(t, DefaultConfig(), cv.NewMemoryStore(), ModeNormal)
	if err := dec.Dispatcher.HandlePom(50, 56, 40); !errors.Is(err, ErrPomDisabled) {
		t.Errorf("HandlePom() error = %v, want ErrPomDisabled", err)
	}
	if _, err := dec.Dispatcher.ReadPom(50, 56); !errors.Is(err, ErrPomDisabled) {
		t.Errorf("ReadPom() error = %v, want ErrPomDisabled", err)
	}
}

func TestDispatcher_PomWrite(t *testing.T) {
	dec, _ := boot(t, DefaultConfig(), cv.NewMemoryStore(), ModePomAlwaysOn)
	p := dec.Dispatcher
	servoMode := cv.BlockCV(1, cv.OffMode)
	endpoint := cv.BlockCV(1, cv.OffPar1)

	if err := p.HandlePom(51, endpoint, 40); !errors.Is(err, ErrNotAddressed) {
		t.Errorf("wrong PoM address error = %v, want ErrNotAddressed", err)
	}

	tests := []struct {
		name    string
		cv      uint16
		value   uint8
		wantErr error // nil, a sentinel, or errRange
	}{
		{"servo angle", endpoint, 40, nil},
		{"servo angle above 180", endpoint, 200, errRange},
		{"servo mode bits", servoMode, ServoAutoOff, nil},
		{"unsupported servo mode bit", servoMode, 0x40, errRange},
		{"version", 7, 1, cv.ErrReadOnly},
		{"manufacturer", 8, 1, cv.ErrReadOnly},
		{"marker cleared", cv.Config, 0x01, errRange},
		{"options", cv.Config, InitMarker | OptAutoAddr | OptRocoAddr, nil},
		{"pom address zero", cv.PomLow, 0, errRange},
		{"distant link to servo", cv.BlockCV(2, cv.OffPar3), 2, errRange},
		{"coil without timer", cv.BlockCV(5, cv.OffPar1), 0, errRange},
		{"unknown cv", 300, 1, cv.ErrUnknownCV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := readCV(t, dec, tt.cv)
			err := p.HandlePom(50, tt.cv, tt.value)
			switch {
			case tt.wantErr == nil:
				if err != nil {
					t.Fatalf("HandlePom() error = %v", err)
				}
				if got := readCV(t, dec, tt.cv); got != tt.value {
					t.Errorf("CV%d = %d, want %d", tt.cv, got, tt.value)
				}
			case tt.wantErr == errRange:
				var re *cv.RangeError
				if !errors.As(err, &re) {
					t.Fatalf("HandlePom() error = %v, want RangeError", err)
				}
				if got := readCV(t, dec, tt.cv); got != before {
					t.Errorf("rejected write changed CV%d from %d to %d", tt.cv, before, got)
				}
			default:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("HandlePom() error = %v, want %v", err, tt.wantErr)
				}
			}
		})
	}

	if o := dec.Registry.Slot(1).Options; !o.AutoOff || o.Direct {
		t.Errorf("servo options not reloaded: %+v", o)
	}
	if !p.Config().RocoAddr() {
		t.Error("option write not applied to the running config")
	}
}

var errRange = errors.New("range")

func TestDispatcher_PomRead(t *testing.T) {
	dec, _ := boot(t, DefaultConfig(), cv.NewMemoryStore(), ModeAddressLearn)
	p := dec.Dispatcher

	tests := []struct {
		cv   uint16
		want uint8
	}{
		{7, Version},
		{8, ManufacturerID},
		{cv.Config, InitMarker | OptAutoAddr},
		{cv.BlockCV(1, cv.OffPar2), 150},
	}
	for _, tt := range tests {
		got, err := p.ReadPom(50, tt.cv)
		if err != nil {
			t.Errorf("ReadPom(CV%d) error: %v", tt.cv, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadPom(CV%d) = %d, want %d", tt.cv, got, tt.want)
		}
	}
}
