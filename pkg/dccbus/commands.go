// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dccbus

// Builder functions create Packet structs ready for encoding, with the
// payload keys each message type uses.

// NewAccessoryCommand creates an ACCESSORY packet (0x10).
// output selects the coil pair (0 or 1); activate is the activation bit.
func NewAccessoryCommand(address uint16, output uint8, activate bool) *Packet {
	return NewPacketWithPayload(MsgAccessory, map[int]interface{}{
		0: uint64(address),
		1: uint64(output),
		2: activate,
	})
}

// NewPomWrite creates a POM_WRITE packet (0x11).
func NewPomWrite(pomAddress, cv uint16, value uint8) *Packet {
	return NewPacketWithPayload(MsgPomWrite, map[int]interface{}{
		0: uint64(pomAddress),
		1: uint64(cv),
		2: uint64(value),
	})
}

// NewPomRead creates a POM_READ packet (0x12).
func NewPomRead(pomAddress, cv uint16) *Packet {
	return NewPacketWithPayload(MsgPomRead, map[int]interface{}{
		0: uint64(pomAddress),
		1: uint64(cv),
	})
}

// NewEncoderStep creates an ENCODER packet (0x20) carrying detents turned
// since the last report; negative is counter-clockwise.
func NewEncoderStep(delta int) *Packet {
	return NewPacketWithPayload(MsgEncoder, map[int]interface{}{
		0: int64(delta),
	})
}

// NewCenter creates a CENTER packet (0x21) for the centre/reset input.
func NewCenter(asserted bool) *Packet {
	return NewPacketWithPayload(MsgCenter, map[int]interface{}{
		0: asserted,
	})
}

// NewPomReply creates a POM_REPLY packet (0x30).
func NewPomReply(cv uint16, value uint8, ok bool) *Packet {
	return NewPacketWithPayload(MsgPomReply, map[int]interface{}{
		0: uint64(cv),
		1: uint64(value),
		2: ok,
	})
}

// NewOutputState creates an OUTPUT_STATE packet (0x31). For servo outputs
// level is the angle in degrees.
func NewOutputState(pin uint8, level uint8, servo bool) *Packet {
	return NewPacketWithPayload(MsgOutputState, map[int]interface{}{
		0: uint64(pin),
		1: uint64(level),
		2: servo,
	})
}

// NewInvalidCommand creates an ERROR_INVALID_CMD packet (0xE0) naming the
// rejected message type.
func NewInvalidCommand(msgType uint8) *Packet {
	return NewPacketWithPayload(MsgErrorInvalidCmd, map[int]interface{}{
		0: uint64(msgType),
	})
}
