// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package profile loads board descriptions from YAML.
//
// A profile fixes what cannot change at runtime: the kind and pins of every
// slot, plus the CV values written on a forced re-initialization.
package profile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/turnout/pkg/accessory"
	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a board profile.
type File struct {
	BaseAddress   uint16 `yaml:"base_address"`
	AutoAddress   bool   `yaml:"auto_address,omitempty"`
	RocoAddress   bool   `yaml:"roco_address,omitempty"`
	PomAddress    uint16 `yaml:"pom_address"`
	FixedMode     string `yaml:"fixed_mode,omitempty"`
	ModePin       *int   `yaml:"mode_pin,omitempty"`
	DarkTime      string `yaml:"dark_time,omitempty"`
	RiseTime      string `yaml:"rise_time,omitempty"`
	BlinkRiseTime string `yaml:"blink_rise_time,omitempty"`
	EncoderDouble bool   `yaml:"encoder_double,omitempty"`
	Slots         []Slot `yaml:"slots"`
}

// Slot describes one function slot. Pins beyond the list, or negative, are
// not connected. Mode may be given numerically, as flag names, or both.
type Slot struct {
	Kind   string   `yaml:"kind"`
	Pins   []int    `yaml:"pins"`
	Mode   uint8    `yaml:"mode,omitempty"`
	Flags  []string `yaml:"flags,omitempty"`
	Params []int    `yaml:"params,omitempty"`
}

// flagBits names the mode bits of each kind
var flagBits = map[accessory.Kind]map[string]uint8{
	accessory.KindServo: {
		"auto_off":     accessory.ServoAutoOff,
		"direct":       accessory.ServoDirect,
		"no_pos_check": accessory.NoPosCheck,
	},
	accessory.KindCoil: {
		"auto_off_only": accessory.CoilAutoOffOnly,
		"no_pos_check":  accessory.NoPosCheck,
	},
	accessory.KindStatic: {
		"blink":      accessory.BlinkEnable,
		"start_both": accessory.BlinkStartBoth,
		"soft":       accessory.BlinkSoft,
	},
}

var signalFlags = map[string]uint8{
	"hard0":  1 << 0,
	"hard1":  1 << 1,
	"hard2":  1 << 2,
	"invert": accessory.SignalInvert,
}

func flagsFor(kind accessory.Kind) map[string]uint8 {
	if m, ok := flagBits[kind]; ok {
		return m
	}
	if kind == accessory.KindSignal0 {
		return map[string]uint8{"hard0": 1 << 0, "hard1": 1 << 1, "hard2": 1 << 2}
	}
	return signalFlags
}

// Load reads a profile file and returns the validated board description.
func Load(path string) (accessory.Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return accessory.Defaults{}, fmt.Errorf("failed to read profile: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return accessory.Defaults{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Parse decodes profile YAML. Unknown keys are rejected.
func Parse(data []byte) (accessory.Defaults, error) {
	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return accessory.Defaults{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return f.Defaults()
}

// Defaults converts the file into a validated board description. Missing
// times and the mode pin take the values of accessory.DefaultConfig.
func (f File) Defaults() (accessory.Defaults, error) {
	base := accessory.DefaultConfig()
	d := accessory.Defaults{
		BaseAddress:   f.BaseAddress,
		PomAddress:    f.PomAddress,
		ModePin:       accessory.NC,
		EncoderDouble: f.EncoderDouble,
	}
	if f.AutoAddress {
		d.Options |= accessory.OptAutoAddr
	}
	if f.RocoAddress {
		d.Options |= accessory.OptRocoAddr
	}
	if f.FixedMode != "" {
		m, err := accessory.ParseMode(f.FixedMode)
		if err != nil {
			return d, fmt.Errorf("fixed_mode: %w", err)
		}
		d.FixedMode = &m
	}
	if f.ModePin != nil {
		p, err := pin(*f.ModePin)
		if err != nil {
			return d, fmt.Errorf("mode_pin: %w", err)
		}
		d.ModePin = p
	}

	var err error
	if d.DarkTime, err = duration("dark_time", f.DarkTime, base.DarkTime); err != nil {
		return d, err
	}
	if d.RiseTime, err = duration("rise_time", f.RiseTime, base.RiseTime); err != nil {
		return d, err
	}
	if d.BlinkRiseTime, err = duration("blink_rise_time", f.BlinkRiseTime, base.BlinkRiseTime); err != nil {
		return d, err
	}

	for i, s := range f.Slots {
		sd, err := s.defaults()
		if err != nil {
			return d, fmt.Errorf("slot %d: %w", i, err)
		}
		d.Slots = append(d.Slots, sd)
	}

	if err := d.Validate(); err != nil {
		return d, fmt.Errorf("invalid profile: %w", err)
	}
	return d, nil
}

func (s Slot) defaults() (accessory.SlotDefaults, error) {
	kind, err := accessory.ParseKind(s.Kind)
	if err != nil {
		return accessory.SlotDefaults{}, err
	}
	sd := accessory.SlotDefaults{
		Kind: kind,
		Pins: [3]accessory.Pin{accessory.NC, accessory.NC, accessory.NC},
		Mode: s.Mode,
	}
	if len(s.Pins) > len(sd.Pins) {
		return sd, fmt.Errorf("%d pins given, at most %d", len(s.Pins), len(sd.Pins))
	}
	for j, n := range s.Pins {
		if sd.Pins[j], err = pin(n); err != nil {
			return sd, err
		}
	}
	names := flagsFor(kind)
	for _, f := range s.Flags {
		bit, ok := names[strings.ToLower(f)]
		if !ok {
			return sd, fmt.Errorf("unknown %s flag %q (valid: %s)", kind, f, strings.Join(sortedKeys(names), ", "))
		}
		sd.Mode |= bit
	}
	if len(s.Params) > len(sd.Params) {
		return sd, fmt.Errorf("%d params given, at most %d", len(s.Params), len(sd.Params))
	}
	for j, v := range s.Params {
		if v < 0 || v > 255 {
			return sd, fmt.Errorf("param %d: %d out of range 0-255", j+1, v)
		}
		sd.Params[j] = uint8(v)
	}
	return sd, nil
}

// FromDefaults renders a board description as a profile file.
func FromDefaults(d accessory.Defaults) File {
	f := File{
		BaseAddress:   d.BaseAddress,
		AutoAddress:   d.Options&accessory.OptAutoAddr != 0,
		RocoAddress:   d.Options&accessory.OptRocoAddr != 0,
		PomAddress:    d.PomAddress,
		DarkTime:      d.DarkTime.String(),
		RiseTime:      d.RiseTime.String(),
		BlinkRiseTime: d.BlinkRiseTime.String(),
		EncoderDouble: d.EncoderDouble,
	}
	if d.FixedMode != nil {
		f.FixedMode = d.FixedMode.String()
	}
	if d.ModePin != accessory.NC {
		p := int(d.ModePin)
		f.ModePin = &p
	}
	for _, s := range d.Slots {
		slot := Slot{Kind: s.Kind.String(), Mode: s.Mode}
		for _, v := range s.Params {
			slot.Params = append(slot.Params, int(v))
		}
		for _, p := range s.Pins {
			if p == accessory.NC {
				slot.Pins = append(slot.Pins, -1)
			} else {
				slot.Pins = append(slot.Pins, int(p))
			}
		}
		f.Slots = append(f.Slots, slot)
	}
	return f
}

// Write encodes d as profile YAML.
func Write(w io.Writer, d accessory.Defaults) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(FromDefaults(d)); err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	return enc.Close()
}

func pin(n int) (accessory.Pin, error) {
	switch {
	case n < 0:
		return accessory.NC, nil
	case n >= int(accessory.NC):
		return accessory.NC, fmt.Errorf("pin %d out of range 0-%d", n, int(accessory.NC)-1)
	}
	return accessory.Pin(n), nil
}

func duration(name, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < accessory.TickInterval {
		return 0, fmt.Errorf("%s: %s is shorter than one tick (%s)", name, d, accessory.TickInterval)
	}
	return d, nil
}

func sortedKeys(m map[string]uint8) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
