// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import (
	"errors"
	"testing"

	"github.com/Thermoquad/turnout/pkg/cv"
)

func TestValidateBlock_Static(t *testing.T) {
	tests := []struct {
		name    string
		mode    uint8
		params  [4]uint8
		wantErr bool
	}{
		{"plain output with zero times", 0, [4]uint8{0, 0, 0, 1}, false},
		{"blink", BlinkEnable, [4]uint8{20, 30, 0, 0}, false},
		{"blink with zero on time", BlinkEnable, [4]uint8{0, 30, 0, 0}, true},
		{"blink with zero off time", BlinkEnable | BlinkSoft, [4]uint8{20, 0, 0, 0}, true},
		{"state above 1", 0, [4]uint8{0, 0, 0, 2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateBlock(KindStatic, tt.mode, tt.params)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateBlock() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCV_StaticBlinkTimes(t *testing.T) {
	dec, _ := boot(t, board(staticSlot(0, 20, 30, 0)), cv.NewMemoryStore(), ModePomAlwaysOn)
	mode := cv.BlockCV(0, cv.OffMode)
	onTime := cv.BlockCV(0, cv.OffPar1)

	if err := dec.Dispatcher.HandlePom(50, onTime, 0); err != nil {
		t.Fatalf("zero on time without blink: HandlePom() error = %v", err)
	}

	var re *cv.RangeError
	if err := dec.Dispatcher.HandlePom(50, mode, BlinkEnable); !errors.As(err, &re) {
		t.Errorf("enabling blink with zero on time: error = %v, want RangeError", err)
	}
	if v := readCV(t, dec, mode); v != 0 {
		t.Errorf("CV%d = %d after rejected write, want 0", mode, v)
	}

	if err := dec.Dispatcher.HandlePom(50, onTime, 20); err != nil {
		t.Fatalf("HandlePom() error = %v", err)
	}
	if err := dec.Dispatcher.HandlePom(50, mode, BlinkEnable); err != nil {
		t.Errorf("enabling blink: HandlePom() error = %v", err)
	}
	if err := dec.Dispatcher.HandlePom(50, onTime, 0); !errors.As(err, &re) {
		t.Errorf("zero on time while blinking: error = %v, want RangeError", err)
	}
}
