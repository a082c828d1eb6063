// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dccbus

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/turnout/pkg/accessory"
)

// ErrNotInput is returned for message types the decoder only sends
var ErrNotInput = errors.New("not a decoder input message")

// ToEvent converts a validated input packet into an engine event.
func ToEvent(p *Packet) (accessory.Event, error) {
	if errs := ValidatePacket(p); len(errs) > 0 {
		return accessory.Event{}, &errs[0]
	}

	m := p.PayloadMap()
	switch p.Type() {
	case MsgAccessory:
		addr, _ := GetMapUint(m, 0)
		output, _ := GetMapUint(m, 1)
		activate, _ := GetMapBool(m, 2)
		return accessory.Event{
			Kind:     accessory.EventAccessory,
			Address:  uint16(addr),
			Output:   uint8(output),
			Activate: activate,
		}, nil

	case MsgPomWrite:
		pom, _ := GetMapUint(m, 0)
		cv, _ := GetMapUint(m, 1)
		value, _ := GetMapUint(m, 2)
		return accessory.Event{
			Kind:       accessory.EventPomWrite,
			PomAddress: uint16(pom),
			CV:         uint16(cv),
			Value:      uint8(value),
		}, nil

	case MsgPomRead:
		pom, _ := GetMapUint(m, 0)
		cv, _ := GetMapUint(m, 1)
		return accessory.Event{
			Kind:       accessory.EventPomRead,
			PomAddress: uint16(pom),
			CV:         uint16(cv),
		}, nil

	case MsgEncoder:
		delta, _ := GetMapInt(m, 0)
		return accessory.Event{Kind: accessory.EventEncoder, Delta: int(delta)}, nil

	case MsgCenter:
		asserted, _ := GetMapBool(m, 0)
		return accessory.Event{Kind: accessory.EventCenter, Center: asserted}, nil
	}
	return accessory.Event{}, fmt.Errorf("%s: %w", FormatMessageType(p.Type()), ErrNotInput)
}

// FromReply builds the POM_REPLY answering a PoM event.
func FromReply(r accessory.Reply) *Packet {
	return NewPomReply(r.CV, r.Value, r.OK)
}
