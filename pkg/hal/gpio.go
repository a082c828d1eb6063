// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Thermoquad/turnout/pkg/accessory"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Servo pulse timing
const (
	servoFrequency = 50 * physic.Hertz
	servoPeriodUS  = 20000
	servoMinUS     = 1000
	servoMaxUS     = 2000
	dimFrequency   = 1 * physic.KiloHertz
)

// PinNamer maps a board pin to a periph pin name.
type PinNamer func(accessory.Pin) string

// DefaultPinName uses the GPIO<n> naming of most Linux boards.
func DefaultPinName(pin accessory.Pin) string {
	return fmt.Sprintf("GPIO%d", pin)
}

// GPIO drives outputs through periph.io. Pins are opened on first use;
// a pin that cannot be found or driven is logged once and then skipped.
type GPIO struct {
	mu     sync.Mutex
	name   PinNamer
	log    *slog.Logger
	pins   map[accessory.Pin]gpio.PinIO
	failed map[accessory.Pin]bool
}

// OpenGPIO initializes the host drivers.
func OpenGPIO(name PinNamer, log *slog.Logger) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	if name == nil {
		name = DefaultPinName
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &GPIO{
		name:   name,
		log:    log,
		pins:   make(map[accessory.Pin]gpio.PinIO),
		failed: make(map[accessory.Pin]bool),
	}, nil
}

func (g *GPIO) pin(p accessory.Pin) gpio.PinIO {
	if pin, ok := g.pins[p]; ok {
		return pin
	}
	if g.failed[p] {
		return nil
	}
	pin := gpioreg.ByName(g.name(p))
	if pin == nil {
		g.failed[p] = true
		g.log.Error("pin not found", "pin", p, "name", g.name(p))
		return nil
	}
	g.pins[p] = pin
	return pin
}

func (g *GPIO) fail(p accessory.Pin, op string, err error) {
	g.log.Error("output failed", "pin", p, "op", op, "error", err)
	g.failed[p] = true
	delete(g.pins, p)
}

// ServoDuty converts an angle to a 50 Hz servo duty cycle.
func ServoDuty(degrees uint8) gpio.Duty {
	if degrees > 180 {
		degrees = 180
	}
	us := servoMinUS + int64(degrees)*(servoMaxUS-servoMinUS)/180
	return gpio.Duty(us * int64(gpio.DutyMax) / servoPeriodUS)
}

// LevelDuty converts an output level to a PWM duty cycle.
func LevelDuty(level uint8) gpio.Duty {
	return gpio.Duty(int64(level) * int64(gpio.DutyMax) / int64(accessory.LevelOn))
}

// SetServoAngle implements accessory.Actuator.
func (g *GPIO) SetServoAngle(p accessory.Pin, degrees uint8) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pin := g.pin(p); pin != nil {
		if err := pin.PWM(ServoDuty(degrees), servoFrequency); err != nil {
			g.fail(p, "servo", err)
		}
	}
}

// StopServo implements accessory.Actuator.
func (g *GPIO) StopServo(p accessory.Pin) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pin := g.pin(p); pin != nil {
		if err := pin.Out(gpio.Low); err != nil {
			g.fail(p, "stop", err)
		}
	}
}

// SetOutput implements accessory.Actuator. Intermediate levels use PWM.
func (g *GPIO) SetOutput(p accessory.Pin, level uint8) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pin := g.pin(p)
	if pin == nil {
		return
	}
	var err error
	switch level {
	case accessory.LevelOff:
		err = pin.Out(gpio.Low)
	case accessory.LevelOn:
		err = pin.Out(gpio.High)
	default:
		err = pin.PWM(LevelDuty(level), dimFrequency)
	}
	if err != nil {
		g.fail(p, "output", err)
	}
}

// Close drives every opened pin low and halts it.
func (g *GPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var first error
	for p, pin := range g.pins {
		if err := pin.Out(gpio.Low); err != nil && first == nil {
			first = fmt.Errorf("pin %d: %w", p, err)
		}
		if err := pin.Halt(); err != nil && first == nil {
			first = fmt.Errorf("pin %d: %w", p, err)
		}
	}
	return first
}

// OpenInput configures a named pin as a pulled-up input.
func OpenInput(name string) (gpio.PinIn, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("input pin %q not found", name)
	}
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("input pin %q: %w", name, err)
	}
	return pin, nil
}
