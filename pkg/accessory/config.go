// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import (
	"fmt"

	"github.com/Thermoquad/turnout/pkg/cv"
)

// CV47 layout
const (
	InitMarker  = 0x50 // expected high nibble of CV47
	markerMask  = 0xF0
	OptAutoAddr = 1 << 0 // first command in AddressLearn mode sets the address
	OptRocoAddr = 1 << 1 // accessory addresses are counted with a +4 offset
	optionMask  = OptAutoAddr | OptRocoAddr
)

// Address limits
const (
	MaxAccessoryAddress = 2044
	MaxPomAddress       = 10239
	rocoOffset          = 4
)

// Read-only identification CVs
const (
	cvVersion      = 7
	cvManufacturer = 8
	Version        = 0x10
	ManufacturerID = 0x0D // public domain and DIY decoders
)

// DecoderConfig is the process-wide configuration read at boot.
type DecoderConfig struct {
	Options     uint8
	BaseAddress uint16
	PomAddress  uint16
}

// AutoAddr reports whether address learning is enabled
func (c DecoderConfig) AutoAddr() bool {
	return c.Options&OptAutoAddr != 0
}

// RocoAddr reports whether incoming addresses are shifted by four
func (c DecoderConfig) RocoAddr() bool {
	return c.Options&OptRocoAddr != 0
}

// configFromDefaults builds the in-memory config used when the store fails
func configFromDefaults(d Defaults) DecoderConfig {
	return DecoderConfig{
		Options:     d.Options,
		BaseAddress: d.BaseAddress,
		PomAddress:  d.PomAddress,
	}
}

// loadConfig reads CV47, CV1/CV9 and CV48/49. ok is false when the init marker
// does not match, which means the store was never initialized or is corrupt.
func loadConfig(a *cv.Adapter) (cfg DecoderConfig, ok bool, err error) {
	marker, err := a.Read(cv.Config)
	if err != nil {
		return cfg, false, err
	}
	if marker&markerMask != InitMarker {
		return cfg, false, nil
	}
	cfg.Options = marker & optionMask

	if cfg.BaseAddress, err = a.Read16(cv.AddrLow, cv.AddrHigh); err != nil {
		return cfg, false, err
	}
	if cfg.PomAddress, err = a.Read16(cv.PomLow, cv.PomHigh); err != nil {
		return cfg, false, err
	}
	if cfg.BaseAddress == 0 || cfg.BaseAddress > MaxAccessoryAddress ||
		cfg.PomAddress == 0 || cfg.PomAddress > MaxPomAddress {
		return cfg, false, nil
	}
	return cfg, true, nil
}

// writeDefaults rewrites the decoder config and every slot block.
func writeDefaults(a *cv.Adapter, d Defaults) error {
	if err := a.Write16(cv.AddrLow, cv.AddrHigh, d.BaseAddress); err != nil {
		return err
	}
	if err := a.Write16(cv.PomLow, cv.PomHigh, d.PomAddress); err != nil {
		return err
	}
	for i, s := range d.Slots {
		if err := writeBlock(a, i, s); err != nil {
			return err
		}
	}
	// The marker goes last so an interrupted reset is retried on next boot
	if err := a.WriteRaw(cv.Config, InitMarker|d.Options); err != nil {
		return fmt.Errorf("write init marker: %w", err)
	}
	return nil
}

func writeBlock(a *cv.Adapter, slot int, s SlotDefaults) error {
	if err := a.WriteRaw(cv.BlockCV(slot, cv.OffMode), s.Mode); err != nil {
		return err
	}
	for j, p := range s.Params {
		if err := a.WriteRaw(cv.BlockCV(slot, cv.OffPar1+j), p); err != nil {
			return err
		}
	}
	return nil
}
