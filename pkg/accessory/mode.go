// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Thermoquad/turnout/pkg/cv"
)

// Mode is the operating mode, resolved once at boot.
type Mode uint8

// Operating modes, in the order of the sensed voltage bands (high to low)
const (
	ModeNormal       Mode = iota // no PoM
	ModePomAlwaysOn              // PoM enabled, addresses from defaults
	ModeIniReset                 // CVs rewritten from defaults on every boot
	ModeAddressLearn             // PoM enabled, first command sets the address
)

var modeNames = []string{"normal", "pom", "ini", "learn"}

// String returns the short mode name
func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode parses a short mode name
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q (want normal, pom, ini or learn)", s)
}

// pomEnabled reports whether programming on main is accepted in this mode
func (m Mode) pomEnabled() bool {
	return m == ModePomAlwaysOn || m == ModeAddressLearn
}

// QuantizeMode maps a raw reading of the mode input (0..max) to a mode. The
// input has a pull-up; the bands correspond to open (5V), a 1:2 divider
// (3.3V), a 2:1 divider (1.6V) and a short to ground.
func QuantizeMode(raw, max uint16) Mode {
	r := uint32(raw) * 30
	m := uint32(max)
	switch {
	case r >= m*25: // above 5/6
		return ModeNormal
	case r >= m*15: // above 1/2
		return ModePomAlwaysOn
	case r >= m*6: // above 1/5
		return ModeIniReset
	default:
		return ModeAddressLearn
	}
}

// Boot is the outcome of mode selection.
type Boot struct {
	Mode          Mode
	Config        DecoderConfig
	Reinitialized bool
	Reason        string

	// StoreErr is set when the store failed during boot; the decoder then
	// runs from the compiled defaults.
	StoreErr error
}

// SelectMode resolves the operating mode and makes sure the CV store holds a
// usable configuration. It never fails: any store problem forces defaults.
func SelectMode(a *cv.Adapter, d Defaults, sensed Mode, reset bool, log *slog.Logger) Boot {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	mode := sensed
	if d.FixedMode != nil {
		mode = *d.FixedMode
	}
	boot := Boot{Mode: mode}

	var reason string
	switch {
	case reset:
		reason = "reset input asserted"
		boot.Mode = ModeNormal
	case mode == ModeIniReset:
		reason = "ini mode"
	}

	if reason == "" {
		cfg, ok, err := loadConfig(a)
		switch {
		case err != nil:
			reason = "store read failed"
			boot.StoreErr = err
		case !ok:
			reason = "init marker mismatch"
		default:
			boot.Config = cfg
		}
	}

	if reason != "" {
		boot.Reinitialized = true
		boot.Reason = reason
		boot.Config = configFromDefaults(d)
		log.Warn("restoring default CVs", "reason", reason, "mode", boot.Mode)
		if err := writeDefaults(a, d); err != nil {
			log.Error("failed to write default CVs", "error", err)
			if boot.StoreErr == nil {
				boot.StoreErr = err
			}
		}
	}

	if boot.Mode == ModePomAlwaysOn {
		boot.Config.BaseAddress = d.BaseAddress
		boot.Config.PomAddress = d.PomAddress
	}

	log.Info("decoder mode selected",
		"mode", boot.Mode,
		"base_address", boot.Config.BaseAddress,
		"pom_address", boot.Config.PomAddress,
		"reinitialized", boot.Reinitialized)
	return boot
}
