// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// EventKind identifies the stimulus carried by an Event.
type EventKind uint8

// Event kinds
const (
	EventAccessory EventKind = iota
	EventPomWrite
	EventPomRead
	EventEncoder
	EventCenter
)

var eventNames = []string{"accessory", "pom_write", "pom_read", "encoder", "center"}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// Event is one external stimulus for the engine. Only the fields of its kind
// are used.
type Event struct {
	Kind EventKind

	// Accessory
	Address  uint16
	Output   uint8
	Activate bool

	// PoM
	PomAddress uint16
	CV         uint16
	Value      uint8

	// Encoder and centre input
	Delta  int
	Center bool

	// Reply, when set, receives the answer to PoM events. It runs on the
	// scheduler goroutine and must not block.
	Reply func(Reply)
}

// Reply answers a PoM read or write.
type Reply struct {
	CV    uint16
	Value uint8
	OK    bool
	Err   error
}

// modeBlinkTicks is the half period of the mode indicator while learning
const modeBlinkTicks = 50

// Scheduler owns the engine: events and ticks are applied one at a time.
type Scheduler struct {
	reg  *Registry
	disp *Dispatcher
	cal  *Calibration
	act  Actuator
	log  *slog.Logger

	modePin Pin
	modeLED bool
	ticks   uint64

	// OnTick, when set, runs after every tick on the scheduler goroutine.
	OnTick func()
}

// NewScheduler wires the engine parts together.
func NewScheduler(reg *Registry, disp *Dispatcher, cal *Calibration, act Actuator, modePin Pin, log *slog.Logger) *Scheduler {
	if act == nil {
		act = nopActuator{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		reg:     reg,
		disp:    disp,
		cal:     cal,
		act:     act,
		log:     log,
		modePin: modePin,
	}
}

// Ticks returns the number of ticks run so far
func (s *Scheduler) Ticks() uint64 {
	return s.ticks
}

// Apply processes one event to completion.
func (s *Scheduler) Apply(ev Event) {
	switch ev.Kind {
	case EventAccessory:
		s.disp.HandleAccessory(ev.Address, ev.Output, ev.Activate)

	case EventPomWrite:
		err := s.disp.HandlePom(ev.PomAddress, ev.CV, ev.Value)
		if errors.Is(err, ErrNotAddressed) {
			return
		}
		s.reply(ev, Reply{CV: ev.CV, Value: ev.Value, OK: err == nil, Err: err})

	case EventPomRead:
		v, err := s.disp.ReadPom(ev.PomAddress, ev.CV)
		if errors.Is(err, ErrNotAddressed) {
			return
		}
		s.reply(ev, Reply{CV: ev.CV, Value: v, OK: err == nil, Err: err})

	case EventEncoder:
		s.cal.Step(ev.Delta)

	case EventCenter:
		s.cal.SetCenter(ev.Center)

	default:
		s.log.Warn("unknown event", "kind", ev.Kind)
	}
}

func (s *Scheduler) reply(ev Event, r Reply) {
	if ev.Reply != nil {
		ev.Reply(r)
	}
}

// Tick advances every slot by one step and updates the mode indicator.
func (s *Scheduler) Tick() {
	s.ticks++
	s.reg.Tick()
	s.updateModeLED(false)
	if s.OnTick != nil {
		s.OnTick()
	}
}

// updateModeLED shows PoM as steady on and a pending address learn as blinking
func (s *Scheduler) updateModeLED(force bool) {
	var on bool
	switch {
	case s.disp.Learning():
		on = (s.ticks/modeBlinkTicks)%2 == 0
	case s.disp.Mode().pomEnabled():
		on = true
	}
	if on != s.modeLED || force {
		s.modeLED = on
		if s.modePin != NC {
			s.act.SetOutput(s.modePin, level(on))
		}
	}
}

// Run applies events and ticks every TickInterval until ctx is done. A
// closed events channel only stops event delivery.
func (s *Scheduler) Run(ctx context.Context, events <-chan Event) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	s.log.Info("scheduler started", "interval", TickInterval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped", "ticks", s.ticks)
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.Apply(ev)
		case <-ticker.C:
			s.Tick()
		}
	}
}
