// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Thermoquad/turnout/pkg/cv"
)

// PoM errors
var (
	ErrPomDisabled  = errors.New("programming on main disabled in this mode")
	ErrNotAddressed = errors.New("PoM address does not match")
)

// Outcome describes what the dispatcher did with an accessory command.
type Outcome uint8

// Command outcomes
const (
	OutcomeApplied Outcome = iota // the slot changed state
	OutcomeIgnored                // the slot rejected or did not need the command
	OutcomeDropped                // the address is not covered by this decoder
	OutcomeLearned                // the address became the new base address
)

var outcomeNames = []string{"applied", "ignored", "dropped", "learned"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

// DispatchStats counts handled commands.
type DispatchStats struct {
	Commands    uint64
	Applied     uint64
	Ignored     uint64
	Dropped     uint64
	PomWrites   uint64
	PomRejected uint64
	PomReads    uint64
}

// Dispatcher routes bus commands to slots and applies PoM programming.
type Dispatcher struct {
	reg      *Registry
	cvs      *cv.Adapter
	defaults Defaults
	mode     Mode
	cfg      DecoderConfig
	learning bool
	log      *slog.Logger
	stats    DispatchStats
}

// NewDispatcher creates a dispatcher for the resolved boot state.
func NewDispatcher(reg *Registry, a *cv.Adapter, d Defaults, boot Boot, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		reg:      reg,
		cvs:      a,
		defaults: d,
		mode:     boot.Mode,
		cfg:      boot.Config,
		learning: boot.Mode == ModeAddressLearn && boot.Config.AutoAddr(),
		log:      log,
	}
}

// Mode returns the operating mode
func (d *Dispatcher) Mode() Mode {
	return d.mode
}

// Config returns the active decoder configuration
func (d *Dispatcher) Config() DecoderConfig {
	return d.cfg
}

// Learning reports whether the next command will set the base address
func (d *Dispatcher) Learning() bool {
	return d.learning
}

// Stats returns the command counters
func (d *Dispatcher) Stats() DispatchStats {
	return d.stats
}

// HandleAccessory consumes one decoded accessory command.
func (d *Dispatcher) HandleAccessory(address uint16, output uint8, activate bool) Outcome {
	d.stats.Commands++
	if d.cfg.RocoAddr() {
		address += rocoOffset
	}

	if d.learning {
		if err := d.learn(address); err != nil {
			d.log.Warn("address learning failed", "address", address, "error", err)
		} else {
			return OutcomeLearned
		}
	}

	d.reg.Observe(address, output, activate)

	idx := int(address) - int(d.cfg.BaseAddress)
	if idx < 0 || idx >= d.reg.Len() {
		d.stats.Dropped++
		d.log.Debug("command outside address range", "address", address, "base", d.cfg.BaseAddress)
		return OutcomeDropped
	}

	if !d.reg.Activate(idx, output, activate) {
		d.stats.Ignored++
		d.log.Debug("command ignored", "slot", idx, "output", output, "activate", activate)
		return OutcomeIgnored
	}
	d.stats.Applied++
	return OutcomeApplied
}

// learn makes address the base address of the decoder
func (d *Dispatcher) learn(address uint16) error {
	if address == 0 || int(address)+d.reg.Len()-1 > MaxAccessoryAddress {
		return fmt.Errorf("address %d out of range", address)
	}
	if err := d.cvs.Write16(cv.AddrLow, cv.AddrHigh, address); err != nil {
		return err
	}
	d.cfg.BaseAddress = address
	d.learning = false
	d.log.Info("base address learned", "address", address)
	return nil
}

// checkPom stays silent for other decoders and rejects its own address
// while PoM is disabled
func (d *Dispatcher) checkPom(pom uint16) error {
	if pom != d.cfg.PomAddress {
		return ErrNotAddressed
	}
	if !d.mode.pomEnabled() {
		return ErrPomDisabled
	}
	return nil
}

// HandlePom applies a PoM write. Rejected values leave the store unchanged
// and return a *cv.RangeError.
func (d *Dispatcher) HandlePom(pom, n uint16, value uint8) error {
	if err := d.checkPom(pom); err != nil {
		return err
	}
	d.stats.PomWrites++
	if err := d.cvs.Write(n, value); err != nil {
		d.stats.PomRejected++
		d.log.Info("PoM write rejected", "cv", n, "value", value, "error", err)
		return fmt.Errorf("PoM write: %w", err)
	}
	d.log.Debug("PoM write", "cv", n, "value", value)

	switch n {
	case cv.AddrLow, cv.AddrHigh, cv.PomLow, cv.PomHigh, cv.Config:
		return d.reloadConfig()
	}
	if slot, _, ok := cv.SlotOf(n); ok {
		return d.reg.Reload(slot)
	}
	return nil
}

// reloadConfig picks up programmed address and option changes
func (d *Dispatcher) reloadConfig() error {
	cfg, ok, err := loadConfig(d.cvs)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("stored configuration is invalid")
	}
	if d.mode == ModePomAlwaysOn {
		cfg.BaseAddress = d.defaults.BaseAddress
		cfg.PomAddress = d.defaults.PomAddress
	}
	d.cfg = cfg
	return nil
}

// ReadPom answers a PoM read.
func (d *Dispatcher) ReadPom(pom, n uint16) (uint8, error) {
	if err := d.checkPom(pom); err != nil {
		return 0, err
	}
	d.stats.PomReads++
	switch n {
	case cvVersion:
		return Version, nil
	case cvManufacturer:
		return ManufacturerID, nil
	}
	return d.cvs.Read(n)
}
