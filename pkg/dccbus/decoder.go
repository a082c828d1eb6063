// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dccbus

import (
	"errors"
	"fmt"
	"time"
)

// ErrCRCMismatch is returned for frames whose checksum does not match
var ErrCRCMismatch = errors.New("CRC mismatch")

// Decoder implements the frame decoder state machine
type Decoder struct {
	state       int
	buffer      []byte // length byte + payload, the CRC'd data
	bufferIndex int
	length      int
	crc         uint16
	escapeNext  bool
	rawBuffer   []byte // Accumulate raw bytes including framing
}

// NewDecoder creates a new protocol decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		buffer:    make([]byte, MaxPacketSize),
		rawBuffer: make([]byte, 0, MaxPacketSize*2),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.bufferIndex = 0
	d.length = 0
	d.crc = 0
	d.escapeNext = false
	d.rawBuffer = d.rawBuffer[:0]
}

// GetRawBytes returns the accumulated raw bytes since the last packet
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte through the decoder state machine
// Returns a completed packet, or nil if the packet is incomplete
// Returns an error if decoding fails
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	d.rawBuffer = append(d.rawBuffer, b)

	// Framing bytes are never escaped
	switch {
	case b == StartByte:
		d.Reset()
		d.rawBuffer = append(d.rawBuffer, b)
		d.state = stateLength
		return nil, nil

	case b == EndByte:
		state := d.state
		if state != stateEnd || d.escapeNext {
			d.Reset()
			if state == stateIdle {
				return nil, nil
			}
			return nil, fmt.Errorf("unexpected END byte in state %d", state)
		}
		data := d.buffer[:d.bufferIndex]
		if calculated := CalculateCRC(data); calculated != d.crc {
			err := fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, d.crc)
			d.Reset()
			return nil, err
		}
		payload := make([]byte, d.length)
		copy(payload, data[1:])
		packet := NewPacket(payload, d.crc)
		packet.timestamp = time.Now()
		d.Reset()
		return packet, nil

	case d.state == stateIdle:
		// Noise between frames
		d.rawBuffer = d.rawBuffer[:0]
		return nil, nil

	case b == EscByte && !d.escapeNext:
		d.escapeNext = true
		return nil, nil
	}

	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	}

	switch d.state {
	case stateLength:
		if b > MaxPayloadSize {
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (max %d)", b, MaxPayloadSize)
		}
		d.length = int(b)
		d.buffer[0] = b
		d.bufferIndex = 1
		if d.length == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}
		return nil, nil

	case statePayload:
		if d.bufferIndex >= len(d.buffer) {
			d.Reset()
			return nil, fmt.Errorf("buffer overflow: packet exceeds max size")
		}
		d.buffer[d.bufferIndex] = b
		d.bufferIndex++
		if d.bufferIndex-1 >= d.length {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	case stateEnd:
		d.Reset()
		return nil, fmt.Errorf("expected END byte, got 0x%02X", b)

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}
