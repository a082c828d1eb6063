// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

// Pin identifies a physical output of the board.
type Pin uint8

// NC marks an output role that is not connected and never driven.
const NC Pin = 0xFF

// Output levels for SetOutput
const (
	LevelOff uint8 = 0
	LevelOn  uint8 = 255
)

// Actuator drives the physical outputs. Implementations must not block.
type Actuator interface {
	// SetServoAngle emits servo pulses for the given angle (0..180).
	SetServoAngle(pin Pin, degrees uint8)
	// StopServo stops emitting pulses on pin.
	StopServo(pin Pin)
	// SetOutput sets a digital or dimmed output, LevelOff..LevelOn.
	SetOutput(pin Pin, level uint8)
}

// nopActuator is used when no actuator is configured
type nopActuator struct{}

func (nopActuator) SetServoAngle(Pin, uint8) {}
func (nopActuator) StopServo(Pin)             {}
func (nopActuator) SetOutput(Pin, uint8)      {}
