// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import (
	"log/slog"

	"github.com/Thermoquad/turnout/pkg/cv"
)

// Calibration adjusts the endpoints of the most recently activated servo
// from encoder detents. Centering parks the servo at 90 degrees and
// suspends the encoder until released.
type Calibration struct {
	reg *Registry
	cvs *cv.Adapter
	log *slog.Logger

	centering bool
	slot      int // servo held at centre, -1 if none
	saved     int // angle before centering, 1/8 degree
}

// NewCalibration creates the calibration controller.
func NewCalibration(reg *Registry, a *cv.Adapter, log *slog.Logger) *Calibration {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Calibration{reg: reg, cvs: a, log: log, slot: -1}
}

// Centering reports whether the centre input is asserted
func (c *Calibration) Centering() bool {
	return c.centering
}

// Step moves the active endpoint of the last servo by delta degrees. It
// reports whether the endpoint changed.
func (c *Calibration) Step(delta int) bool {
	i := c.reg.LastServo()
	if delta == 0 || c.centering || i < 0 {
		return false
	}
	s := c.reg.Slot(i)
	if s.servo.moving {
		return false
	}

	off := cv.OffPar1 + int(s.servo.lastPosition)
	angle, err := c.cvs.Update(cv.BlockCV(i, off), func(old uint8) (uint8, bool) {
		v := min(max(int(old)+delta, 0), maxAngle)
		return uint8(v), true
	})
	if err != nil {
		c.log.Warn("endpoint update failed", "slot", i, "error", err)
		return false
	}
	if angle == s.Params[off-1] {
		return false
	}

	s.Params[off-1] = angle
	c.reg.holdServo(s, int(angle)*angleScale)
	c.log.Debug("servo endpoint adjusted", "slot", i, "cv", cv.BlockCV(i, off), "angle", angle)
	return true
}

// SetCenter asserts or releases the centre input. It reports whether the
// state changed.
func (c *Calibration) SetCenter(asserted bool) bool {
	if asserted == c.centering {
		return false
	}
	c.centering = asserted

	if asserted {
		c.slot = c.reg.LastServo()
		if c.slot < 0 {
			return true
		}
		s := c.reg.Slot(c.slot)
		c.saved = s.servo.target
		s.servo.override = true
		c.reg.holdServo(s, centerAngle*angleScale)
		c.log.Info("servo centred", "slot", c.slot)
		return true
	}

	if c.slot >= 0 {
		s := c.reg.Slot(c.slot)
		s.servo.override = false
		c.reg.holdServo(s, c.saved)
		c.log.Info("servo restored", "slot", c.slot, "angle", s.servo.angle())
		c.slot = -1
	}
	return true
}
