// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/turnout/pkg/accessory"
	"github.com/Thermoquad/turnout/pkg/cv"
	"github.com/Thermoquad/turnout/pkg/hal"
	tea "github.com/charmbracelet/bubbletea"
)

func newTestSim(t *testing.T) (simModel, *accessory.Decoder, *hal.Recorder) {
	t.Helper()
	rec := hal.NewRecorder()
	dec, err := accessory.New(accessory.Config{
		Store:    cv.NewMemoryStore(),
		Defaults: accessory.DefaultConfig(),
		Sensed:   accessory.ModeNormal,
		Actuator: rec,
	})
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	return initialSimModel(dec, rec), dec, rec
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(m simModel, msg tea.Msg) simModel {
	next, _ := m.Update(msg)
	return next.(simModel)
}

func TestSim_SlotList(t *testing.T) {
	m, dec, _ := newTestSim(t)
	if got, want := len(m.slotList.Items()), dec.Registry.Len(); got != want {
		t.Fatalf("items = %d, want %d", got, want)
	}
	item := m.slotList.Items()[1].(slotItem)
	if item.status.Kind != accessory.KindServo || item.status.Address != 21 {
		t.Errorf("item 1 = %s at %d, want servo at 21", item.status.Kind, item.status.Address)
	}
}

func TestSim_ServoMoveAndCalibrate(t *testing.T) {
	m, dec, rec := newTestSim(t)
	m.slotList.Select(1)

	m = update(m, key("1"))
	if s := dec.Dispatcher.Stats(); s.Applied != 1 {
		t.Fatalf("applied = %d, want 1", s.Applied)
	}

	for i := 0; i < 200; i++ {
		m = update(m, simTickMsg(time.Now()))
	}
	o, _ := rec.Output(3)
	if o.Level != 150 || o.Pulsing {
		t.Fatalf("servo = %d° pulsing=%v, want 150° at rest", o.Level, o.Pulsing)
	}

	m = update(m, key("]"))
	o, _ = rec.Output(3)
	if o.Level != 151 {
		t.Errorf("servo after encoder = %d°, want 151°", o.Level)
	}
	v, err := dec.CVs.Read(cv.BlockCV(1, cv.OffPar2))
	if err != nil || v != 151 {
		t.Errorf("CV%d = %d (%v), want 151", cv.BlockCV(1, cv.OffPar2), v, err)
	}
}

func TestSim_Pause(t *testing.T) {
	m, dec, _ := newTestSim(t)

	m = update(m, tea.KeyMsg{Type: tea.KeySpace})
	if !m.paused {
		t.Fatal("space did not pause")
	}
	m = update(m, simTickMsg(time.Now()))
	if got := dec.Scheduler.Ticks(); got != 0 {
		t.Errorf("ticks while paused = %d, want 0", got)
	}

	m = update(m, tea.KeyMsg{Type: tea.KeySpace})
	update(m, simTickMsg(time.Now()))
	if got := dec.Scheduler.Ticks(); got != 1 {
		t.Errorf("ticks after resume = %d, want 1", got)
	}
}

func TestSim_ViewAndQuit(t *testing.T) {
	m, _, _ := newTestSim(t)
	m = update(m, tea.WindowSizeMsg{Width: 120, Height: 40})

	view := m.View()
	for _, want := range []string{"TURNOUT SIM", "OUTPUTS", "EVENTS", "Booted in normal mode"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	next, cmd := m.Update(key("q"))
	if cmd == nil || !next.(simModel).quitting {
		t.Error("q did not quit")
	}
}
