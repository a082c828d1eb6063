// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import (
	"fmt"
	"log/slog"

	"github.com/Thermoquad/turnout/pkg/cv"
)

// Config holds everything needed to boot a decoder.
type Config struct {
	Store    cv.Store
	Defaults Defaults
	Sensed   Mode
	Reset    bool
	Actuator Actuator
	Logger   *slog.Logger
}

// Decoder is a booted engine.
type Decoder struct {
	Boot        Boot
	CVs         *cv.Adapter
	Registry    *Registry
	Dispatcher  *Dispatcher
	Calibration *Calibration
	Scheduler   *Scheduler
}

// New selects the mode, builds the slots and drives the power-up outputs.
func New(cfg Config) (*Decoder, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("no CV store")
	}
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid board description: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	a := cv.NewAdapter(cfg.Store, nil)
	boot := SelectMode(a, cfg.Defaults, cfg.Sensed, cfg.Reset, log)

	reg, err := NewRegistry(a, cfg.Defaults, cfg.Actuator, log.With("component", "registry"))
	if err != nil {
		return nil, err
	}
	disp := NewDispatcher(reg, a, cfg.Defaults, boot, log.With("component", "dispatcher"))
	cal := NewCalibration(reg, a, log.With("component", "calibration"))
	sched := NewScheduler(reg, disp, cal, cfg.Actuator, cfg.Defaults.ModePin, log)

	reg.Start()
	sched.updateModeLED(true)

	return &Decoder{
		Boot:        boot,
		CVs:         a,
		Registry:    reg,
		Dispatcher:  disp,
		Calibration: cal,
		Scheduler:   sched,
	}, nil
}

// Status returns a snapshot of every slot at its current address.
func (d *Decoder) Status() []SlotStatus {
	return d.Registry.Status(d.Dispatcher.Config().BaseAddress)
}
