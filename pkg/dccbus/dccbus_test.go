// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dccbus

import (
	"errors"
	"strings"
	"testing"

	"github.com/Thermoquad/turnout/pkg/accessory"
	"github.com/fxamacker/cbor/v2"
)

// ============================================================
// Test Helpers
// ============================================================

// buildCBORPayload creates a CBOR-encoded message: [msgType, payloadMap]
func buildCBORPayload(msgType uint8, payload map[int]interface{}) []byte {
	var msg interface{}
	if payload == nil {
		msg = []interface{}{uint64(msgType), nil}
	} else {
		msg = []interface{}{uint64(msgType), payload}
	}
	data, err := cbor.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return data
}

// decodeFrame feeds a frame through a fresh decoder and returns the first
// completed packet or error.
func decodeFrame(t *testing.T, frame []byte) (*Packet, error) {
	t.Helper()
	d := NewDecoder()
	for i, b := range frame {
		p, err := d.DecodeByte(b)
		if err != nil {
			return nil, err
		}
		if p != nil {
			if i != len(frame)-1 {
				t.Fatalf("packet completed at byte %d of %d", i, len(frame))
			}
			return p, nil
		}
	}
	return nil, nil
}

func mustEncode(t *testing.T, p *Packet) []byte {
	t.Helper()
	frame, err := EncodePacket(p)
	if err != nil {
		t.Fatalf("EncodePacket: %v", err)
	}
	return frame
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	crc := CalculateCRC([]byte{})
	if crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestCalculateCRC_KnownValue(t *testing.T) {
	crc := CalculateCRC([]byte("123456789"))
	if crc != 0x29B1 {
		t.Errorf("CRC mismatch: expected 0x29B1, got 0x%04X", crc)
	}
}

// ============================================================
// Encoder / Decoder Round Trip
// ============================================================

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		packet *Packet
		check  func(t *testing.T, m map[int]interface{})
	}{
		{
			name:   "accessory",
			packet: NewAccessoryCommand(2044, 1, true),
			check: func(t *testing.T, m map[int]interface{}) {
				if v, _ := GetMapUint(m, 0); v != 2044 {
					t.Errorf("address = %d, want 2044", v)
				}
				if v, _ := GetMapUint(m, 1); v != 1 {
					t.Errorf("output = %d, want 1", v)
				}
				if v, _ := GetMapBool(m, 2); !v {
					t.Error("activate = false, want true")
				}
			},
		},
		{
			name:   "pom write",
			packet: NewPomWrite(10239, 47, 0x7E),
			check: func(t *testing.T, m map[int]interface{}) {
				if v, _ := GetMapUint(m, 2); v != 0x7E {
					t.Errorf("value = 0x%02X, want 0x7E", v)
				}
			},
		},
		{
			name:   "negative encoder step",
			packet: NewEncoderStep(-3),
			check: func(t *testing.T, m map[int]interface{}) {
				if v, _ := GetMapInt(m, 0); v != -3 {
					t.Errorf("delta = %d, want -3", v)
				}
			},
		},
		{
			name:   "pom reply",
			packet: NewPomReply(8, 0x0D, true),
			check: func(t *testing.T, m map[int]interface{}) {
				if v, _ := GetMapUint(m, 1); v != 0x0D {
					t.Errorf("value = %d, want 13", v)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := decodeFrame(t, mustEncode(t, tt.packet))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if p == nil {
				t.Fatal("no packet decoded")
			}
			if p.Type() != tt.packet.Type() {
				t.Fatalf("type = 0x%02X, want 0x%02X", p.Type(), tt.packet.Type())
			}
			if errs := ValidatePacket(p); len(errs) != 0 {
				t.Fatalf("unexpected validation errors: %v", errs)
			}
			tt.check(t, p.PayloadMap())
		})
	}
}

func TestEncode_FramingBytesNeverInBody(t *testing.T) {
	// 0x7E as a value must be stuffed
	frame := mustEncode(t, NewPomWrite(126, 126, 0x7E))
	for i, b := range frame[1 : len(frame)-1] {
		if b == StartByte || b == EndByte {
			t.Fatalf("unescaped framing byte 0x%02X at %d", b, i+1)
		}
	}
	if frame[0] != StartByte || frame[len(frame)-1] != EndByte {
		t.Fatal("frame not delimited by START/END")
	}
}

func TestStuffing_RoundTrip(t *testing.T) {
	data := []byte{0x00, StartByte, EndByte, EscByte, 0x5E, 0xFF}
	stuffed := stuffBytes(data)
	if len(stuffed) != len(data)+3 {
		t.Fatalf("stuffed length = %d, want %d", len(stuffed), len(data)+3)
	}
	out, err := UnstuffBytes(stuffed)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(data) {
		t.Fatalf("unstuffed = % X, want % X", out, data)
	}
	if _, err := UnstuffBytes([]byte{0x01, EscByte}); err == nil {
		t.Fatal("expected error for trailing escape")
	}
}

// ============================================================
// Decoder Error Handling
// ============================================================

func TestDecoder_CRCMismatch(t *testing.T) {
	frame := mustEncode(t, NewAccessoryCommand(5, 0, true))
	// Array header 0x82 becomes 0x83
	frame[2] ^= 0x01
	_, err := decodeFrame(t, frame)
	if !errors.Is(err, ErrCRCMismatch) {
		t.Fatalf("err = %v, want ErrCRCMismatch", err)
	}
}

func TestDecoder_ResyncOnStart(t *testing.T) {
	good := mustEncode(t, NewCenter(true))
	// Truncated frame followed by a complete one
	stream := append([]byte{StartByte, 0x05, 0x82}, good...)
	p, err := decodeFrame(t, stream)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p == nil || p.Type() != MsgCenter {
		t.Fatal("expected CENTER packet after resync")
	}
}

func TestDecoder_NoiseIgnored(t *testing.T) {
	good := mustEncode(t, NewEncoderStep(1))
	stream := append([]byte{0x00, 0x42, EndByte, 0x13}, good...)
	p, err := decodeFrame(t, stream)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p == nil || p.Type() != MsgEncoder {
		t.Fatal("expected ENCODER packet after noise")
	}
}

func TestDecoder_InvalidLength(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(StartByte)
	if _, err := d.DecodeByte(MaxPayloadSize + 1); err == nil {
		t.Fatal("expected error for oversize length")
	}
}

func TestDecoder_MissingEnd(t *testing.T) {
	frame := mustEncode(t, NewCenter(false))
	frame[len(frame)-1] = 0x00
	if _, err := decodeFrame(t, frame); err == nil {
		t.Fatal("expected error when END is missing")
	}
}

func TestDecoder_EarlyEnd(t *testing.T) {
	frame := mustEncode(t, NewAccessoryCommand(1, 0, true))
	short := append(frame[:4:4], EndByte)
	if _, err := decodeFrame(t, short); err == nil {
		t.Fatal("expected error for END inside payload")
	}
}

// ============================================================
// Validation
// ============================================================

func TestValidatePacket(t *testing.T) {
	tests := []struct {
		name    string
		msgType uint8
		payload map[int]interface{}
		want    []AnomalyType
	}{
		{"valid accessory", MsgAccessory, map[int]interface{}{0: uint64(3), 1: uint64(0), 2: true}, nil},
		{"missing activate", MsgAccessory, map[int]interface{}{0: uint64(3), 1: uint64(0)}, []AnomalyType{AnomalyMissingField}},
		{"output out of range", MsgAccessory, map[int]interface{}{0: uint64(3), 1: uint64(2), 2: true}, []AnomalyType{AnomalyInvalidValue}},
		{"address out of range", MsgAccessory, map[int]interface{}{0: uint64(2048), 1: uint64(0), 2: true}, []AnomalyType{AnomalyInvalidValue}},
		{"pom address zero", MsgPomRead, map[int]interface{}{0: uint64(0), 1: uint64(1)}, []AnomalyType{AnomalyInvalidValue}},
		{"cv too large", MsgPomWrite, map[int]interface{}{0: uint64(1), 1: uint64(1025), 2: uint64(1)}, []AnomalyType{AnomalyInvalidValue}},
		{"value too large", MsgPomWrite, map[int]interface{}{0: uint64(1), 1: uint64(1), 2: uint64(256)}, []AnomalyType{AnomalyInvalidValue}},
		{"delta wrong type", MsgEncoder, map[int]interface{}{0: true}, []AnomalyType{AnomalyInvalidValue}},
		{"delta too large", MsgEncoder, map[int]interface{}{0: int64(-200)}, []AnomalyType{AnomalyInvalidValue}},
		{"empty center", MsgCenter, nil, []AnomalyType{AnomalyMissingField}},
		{"unknown type", 0x55, nil, []AnomalyType{AnomalyUnknownType}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPacket(buildCBORPayload(tt.msgType, tt.payload), 0)
			errs := ValidatePacket(p)
			if len(errs) != len(tt.want) {
				t.Fatalf("got %d errors (%v), want %d", len(errs), errs, len(tt.want))
			}
			for i, e := range errs {
				if e.Type != tt.want[i] {
					t.Errorf("error %d type = %d, want %d (%s)", i, e.Type, tt.want[i], e.Message)
				}
			}
		})
	}
}

func TestValidatePacket_Undecodable(t *testing.T) {
	p := NewPacket([]byte{0xFF, 0x00}, 0)
	errs := ValidatePacket(p)
	if len(errs) != 1 || errs[0].Type != AnomalyDecodeError {
		t.Fatalf("errs = %v, want one decode error", errs)
	}
}

// ============================================================
// Engine Events
// ============================================================

func TestToEvent(t *testing.T) {
	tests := []struct {
		name   string
		packet *Packet
		want   accessory.Event
	}{
		{"accessory", NewAccessoryCommand(21, 1, true), accessory.Event{Kind: accessory.EventAccessory, Address: 21, Output: 1, Activate: true}},
		{"pom write", NewPomWrite(300, 51, 9), accessory.Event{Kind: accessory.EventPomWrite, PomAddress: 300, CV: 51, Value: 9}},
		{"pom read", NewPomRead(300, 8), accessory.Event{Kind: accessory.EventPomRead, PomAddress: 300, CV: 8}},
		{"encoder", NewEncoderStep(-2), accessory.Event{Kind: accessory.EventEncoder, Delta: -2}},
		{"center", NewCenter(true), accessory.Event{Kind: accessory.EventCenter, Center: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := decodeFrame(t, mustEncode(t, tt.packet))
			if err != nil || p == nil {
				t.Fatalf("decode: %v", err)
			}
			ev, err := ToEvent(p)
			if err != nil {
				t.Fatalf("ToEvent: %v", err)
			}
			if ev.Kind != tt.want.Kind || ev.Address != tt.want.Address || ev.Output != tt.want.Output ||
				ev.Activate != tt.want.Activate || ev.PomAddress != tt.want.PomAddress || ev.CV != tt.want.CV ||
				ev.Value != tt.want.Value || ev.Delta != tt.want.Delta || ev.Center != tt.want.Center {
				t.Errorf("event = %+v, want %+v", ev, tt.want)
			}
		})
	}
}

func TestToEvent_Rejects(t *testing.T) {
	if _, err := ToEvent(NewPomReply(1, 2, true)); !errors.Is(err, ErrNotInput) {
		t.Errorf("reply: err = %v, want ErrNotInput", err)
	}
	var verr *ValidationError
	if _, err := ToEvent(NewPacketWithPayload(MsgAccessory, map[int]interface{}{0: uint64(1)})); !errors.As(err, &verr) {
		t.Errorf("incomplete accessory: err = %v, want *ValidationError", err)
	}
}

func TestFromReply(t *testing.T) {
	p := FromReply(accessory.Reply{CV: 47, Value: 0x80, OK: false})
	if p.Type() != MsgPomReply {
		t.Fatalf("type = 0x%02X", p.Type())
	}
	m := p.PayloadMap()
	if cv, _ := GetMapUint(m, 0); cv != 47 {
		t.Errorf("cv = %d", cv)
	}
	if ok, _ := GetMapBool(m, 2); ok {
		t.Error("ok = true, want false")
	}
}

// ============================================================
// Formatter / Statistics
// ============================================================

func TestFormatMessageType(t *testing.T) {
	tests := map[uint8]string{
		MsgAccessory:       "ACCESSORY",
		MsgPomRead:         "POM_READ",
		MsgCenter:          "CENTER",
		MsgOutputState:     "OUTPUT_STATE",
		MsgErrorInvalidCmd: "ERROR_INVALID_CMD",
		0x99:               "UNKNOWN",
	}
	for msgType, want := range tests {
		if got := FormatMessageType(msgType); got != want {
			t.Errorf("FormatMessageType(0x%02X) = %q, want %q", msgType, got, want)
		}
	}
}

func TestFormatPacket(t *testing.T) {
	out := FormatPacket(NewOutputState(4, 90, true))
	if !strings.Contains(out, "OUTPUT_STATE") || !strings.Contains(out, "servo 90") {
		t.Errorf("unexpected output: %q", out)
	}
	out = FormatPacket(NewPacket([]byte{0xFF}, 0))
	if !strings.Contains(out, "Parse error") {
		t.Errorf("expected parse error, got %q", out)
	}
}

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	s.Update(nil, nil)
	s.Update(ErrCRCMismatch, nil)
	s.Update(errors.New("invalid length"), nil)
	s.Update(nil, []ValidationError{{Type: AnomalyMissingField}, {Type: AnomalyInvalidValue}})

	if s.TotalPackets != 4 || s.ValidPackets != 1 || s.CRCErrors != 1 || s.DecodeErrors != 1 {
		t.Errorf("counters = %+v", s)
	}
	if s.MalformedPackets != 1 || s.MissingFields != 1 || s.InvalidValues != 1 {
		t.Errorf("validation counters = %+v", s)
	}
	if !strings.Contains(s.String(), "CRC Errors") {
		t.Error("summary should list CRC errors")
	}
}
