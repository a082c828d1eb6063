// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dccbus

import "fmt"

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyMissingField AnomalyType = iota
	AnomalyInvalidValue
	AnomalyUnknownType
	AnomalyCRCError
	AnomalyDecodeError
)

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Value ranges accepted on the link
const (
	maxAccessoryAddress = 2047 // 11 bit output address
	maxPomAddress       = 10239
	maxCV               = 1024
	maxEncoderDelta     = 127
)

type fieldKind int

const (
	fieldUint fieldKind = iota
	fieldInt
	fieldBool
)

type field struct {
	key      int
	name     string
	kind     fieldKind
	min, max int64
}

// messageFields lists the payload of every message type
var messageFields = map[uint8][]field{
	MsgAccessory: {
		{0, "address", fieldUint, 0, maxAccessoryAddress},
		{1, "output", fieldUint, 0, 1},
		{2, "activate", fieldBool, 0, 0},
	},
	MsgPomWrite: {
		{0, "pom_address", fieldUint, 1, maxPomAddress},
		{1, "cv", fieldUint, 1, maxCV},
		{2, "value", fieldUint, 0, 255},
	},
	MsgPomRead: {
		{0, "pom_address", fieldUint, 1, maxPomAddress},
		{1, "cv", fieldUint, 1, maxCV},
	},
	MsgEncoder: {
		{0, "delta", fieldInt, -maxEncoderDelta, maxEncoderDelta},
	},
	MsgCenter: {
		{0, "asserted", fieldBool, 0, 0},
	},
	MsgPomReply: {
		{0, "cv", fieldUint, 1, maxCV},
		{1, "value", fieldUint, 0, 255},
		{2, "ok", fieldBool, 0, 0},
	},
	MsgOutputState: {
		{0, "pin", fieldUint, 0, 255},
		{1, "level", fieldUint, 0, 255},
		{2, "servo", fieldBool, 0, 0},
	},
	MsgErrorInvalidCmd: {
		{0, "type", fieldUint, 0, 255},
	},
}

// ValidatePacket validates packet structure and detects anomalies
// Returns a slice of validation errors (empty if packet is valid)
func ValidatePacket(p *Packet) []ValidationError {
	if err := p.ParseError(); err != nil {
		return []ValidationError{{
			Type:    AnomalyDecodeError,
			Message: fmt.Sprintf("Undecodable payload: %v", err),
			Details: map[string]interface{}{"length": p.Length()},
		}}
	}

	fields, ok := messageFields[p.Type()]
	if !ok {
		return []ValidationError{{
			Type:    AnomalyUnknownType,
			Message: fmt.Sprintf("Unknown message type 0x%02X", p.Type()),
			Details: map[string]interface{}{"type": p.Type()},
		}}
	}

	errors := []ValidationError{}
	m := p.PayloadMap()
	for _, f := range fields {
		if _, present := m[f.key]; !present {
			errors = append(errors, ValidationError{
				Type:    AnomalyMissingField,
				Message: fmt.Sprintf("%s: missing %s (key %d)", FormatMessageType(p.Type()), f.name, f.key),
				Details: map[string]interface{}{"key": f.key, "field": f.name},
			})
			continue
		}
		if msg := checkField(m, f); msg != "" {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("%s: %s", FormatMessageType(p.Type()), msg),
				Details: map[string]interface{}{"key": f.key, "field": f.name, "min": f.min, "max": f.max},
			})
		}
	}
	return errors
}

func checkField(m map[int]interface{}, f field) string {
	switch f.kind {
	case fieldBool:
		if _, ok := GetMapBool(m, f.key); !ok {
			return fmt.Sprintf("%s must be a bool", f.name)
		}
	case fieldUint:
		v, ok := GetMapUint(m, f.key)
		if !ok {
			return fmt.Sprintf("%s must be an unsigned integer", f.name)
		}
		if v < uint64(f.min) || v > uint64(f.max) {
			return fmt.Sprintf("Invalid %s=%d (valid %d-%d)", f.name, v, f.min, f.max)
		}
	case fieldInt:
		v, ok := GetMapInt(m, f.key)
		if !ok {
			return fmt.Sprintf("%s must be an integer", f.name)
		}
		if v < f.min || v > f.max {
			return fmt.Sprintf("Invalid %s=%d (valid %d-%d)", f.name, v, f.min, f.max)
		}
	}
	return ""
}
