// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"testing"

	"github.com/Thermoquad/turnout/pkg/accessory"
	"periph.io/x/conn/v3/gpio"
)

// fakeInput is a settable LevelReader
type fakeInput struct {
	level gpio.Level
}

func (f *fakeInput) Read() gpio.Level { return f.level }

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	var changes []Output
	r.OnChange = func(o Output) { changes = append(changes, o) }

	r.SetOutput(7, accessory.LevelOn)
	r.SetServoAngle(3, 45)
	r.StopServo(3)

	servo, ok := r.Output(3)
	if !ok || !servo.Servo || servo.Level != 45 || servo.Pulsing {
		t.Errorf("servo output = %+v", servo)
	}
	if servo.Changes != 2 {
		t.Errorf("servo changes = %d, want 2", servo.Changes)
	}
	if _, ok := r.Output(9); ok {
		t.Error("undriven pin reported as driven")
	}

	outs := r.Outputs()
	if len(outs) != 2 || outs[0].Pin != 3 || outs[1].Pin != 7 {
		t.Errorf("outputs = %+v, want pins 3 and 7 in order", outs)
	}
	if len(changes) != 3 || changes[0].Level != accessory.LevelOn || changes[2].Pulsing {
		t.Errorf("changes = %+v", changes)
	}
}

func TestMulti(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	m := Multi(a, b)
	m.SetServoAngle(1, 90)
	m.SetOutput(2, 128)

	for i, r := range []*Recorder{a, b} {
		if o, _ := r.Output(1); o.Level != 90 || !o.Pulsing {
			t.Errorf("recorder %d servo = %+v", i, o)
		}
		if o, _ := r.Output(2); o.Level != 128 {
			t.Errorf("recorder %d output = %+v", i, o)
		}
	}
}

func TestServoDuty(t *testing.T) {
	tests := []struct {
		degrees uint8
		want    gpio.Duty
	}{
		{0, gpio.DutyMax / 20},
		{90, gpio.Duty(1500 * int64(gpio.DutyMax) / 20000)},
		{180, gpio.DutyMax / 10},
		{255, gpio.DutyMax / 10},
	}
	for _, tt := range tests {
		if got := ServoDuty(tt.degrees); got != tt.want {
			t.Errorf("ServoDuty(%d) = %d, want %d", tt.degrees, got, tt.want)
		}
	}
}

func TestLevelDuty(t *testing.T) {
	if got := LevelDuty(accessory.LevelOn); got != gpio.DutyMax {
		t.Errorf("LevelDuty(on) = %d, want %d", got, gpio.DutyMax)
	}
	if got := LevelDuty(accessory.LevelOff); got != 0 {
		t.Errorf("LevelDuty(off) = %d, want 0", got)
	}
}

func TestEncoder_Poll(t *testing.T) {
	tests := []struct {
		name   string
		double bool
		want   []int
	}{
		{"single resolution", false, []int{0, 0, 0, 1}},
		{"double resolution", true, []int{0, 1, 0, 1}},
	}

	// Active low: (a, b) true means the pin reads Low
	steps := [][2]bool{{false, true}, {true, true}, {true, false}, {false, false}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := &fakeInput{gpio.High}, &fakeInput{gpio.High}
			e := NewEncoder(a, b, nil, tt.double)
			for i, s := range steps {
				a.level, b.level = !gpio.Level(s[0]), !gpio.Level(s[1])
				events := e.Poll()
				got := 0
				if len(events) == 1 {
					if events[0].Kind != accessory.EventEncoder {
						t.Fatalf("step %d: event kind = %s", i, events[0].Kind)
					}
					got = events[0].Delta
				}
				if got != tt.want[i] {
					t.Errorf("step %d: delta = %d, want %d", i, got, tt.want[i])
				}
			}
		})
	}
}

func TestEncoder_Center(t *testing.T) {
	a, b, c := &fakeInput{gpio.High}, &fakeInput{gpio.High}, &fakeInput{gpio.High}
	e := NewEncoder(a, b, c, true)

	if events := e.Poll(); len(events) != 0 {
		t.Fatalf("idle poll produced %v", events)
	}
	c.level = gpio.Low
	events := e.Poll()
	if len(events) != 1 || events[0].Kind != accessory.EventCenter || !events[0].Center {
		t.Fatalf("press produced %+v", events)
	}
	if events := e.Poll(); len(events) != 0 {
		t.Fatalf("held button repeated %v", events)
	}
	c.level = gpio.High
	events = e.Poll()
	if len(events) != 1 || events[0].Center {
		t.Fatalf("release produced %+v", events)
	}
}
