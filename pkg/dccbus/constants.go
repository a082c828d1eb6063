// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dccbus implements the framed link between the turnout decoder and
// the external DCC bus front end.
//
// Each frame carries one CBOR message [msg_type, payload_map] between START
// and END bytes, followed by a CRC-16-CCITT over the length byte and the
// payload. START, END and ESC inside a frame are byte stuffed.
package dccbus

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Packet size limits
const (
	MaxPacketSize  = 128 // 5 overhead + 123 payload
	MaxPayloadSize = 123
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Message types - Bus Commands (front end → decoder) 0x10-0x1F
const (
	MsgAccessory = 0x10
	MsgPomWrite  = 0x11
	MsgPomRead   = 0x12
)

// Message types - Local Inputs (front end → decoder) 0x20-0x2F
const (
	MsgEncoder = 0x20
	MsgCenter  = 0x21
)

// Message types - Decoder Reports (decoder → front end) 0x30-0x3F
const (
	MsgPomReply    = 0x30
	MsgOutputState = 0x31
)

// Message types - Errors (Bidirectional) 0xE0-0xEF
const (
	MsgErrorInvalidCmd = 0xE0
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)
