// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dccbus

import (
	"fmt"
	"sort"
	"strings"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	msgType := FormatMessageType(p.Type())

	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d\n", timestamp, msgType, p.Type(), p.length)
	if err := p.ParseError(); err != nil {
		return result + fmt.Sprintf("  Parse error: %v\n", err)
	}
	return result + FormatPayloadMap(p.Type(), p.PayloadMap())
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	// Bus Commands (0x10-0x1F)
	case MsgAccessory:
		return "ACCESSORY"
	case MsgPomWrite:
		return "POM_WRITE"
	case MsgPomRead:
		return "POM_READ"

	// Local Inputs (0x20-0x2F)
	case MsgEncoder:
		return "ENCODER"
	case MsgCenter:
		return "CENTER"

	// Decoder Reports (0x30-0x3F)
	case MsgPomReply:
		return "POM_REPLY"
	case MsgOutputState:
		return "OUTPUT_STATE"

	// Errors (0xE0-0xEF)
	case MsgErrorInvalidCmd:
		return "ERROR_INVALID_CMD"

	default:
		return "UNKNOWN"
	}
}

// FormatPayloadMap formats the CBOR payload map based on message type
func FormatPayloadMap(msgType uint8, m map[int]interface{}) string {
	switch msgType {
	case MsgAccessory:
		addr, _ := GetMapUint(m, 0)
		output, _ := GetMapUint(m, 1)
		activate, _ := GetMapBool(m, 2)
		return fmt.Sprintf("  Address: %d, Output: %d, Activate: %s\n", addr, output, formatOnOff(activate))

	case MsgPomWrite:
		pom, _ := GetMapUint(m, 0)
		cv, _ := GetMapUint(m, 1)
		value, _ := GetMapUint(m, 2)
		return fmt.Sprintf("  PoM: %d, CV%d = %d (0x%02X)\n", pom, cv, value, value)

	case MsgPomRead:
		pom, _ := GetMapUint(m, 0)
		cv, _ := GetMapUint(m, 1)
		return fmt.Sprintf("  PoM: %d, CV%d\n", pom, cv)

	case MsgEncoder:
		delta, _ := GetMapInt(m, 0)
		return fmt.Sprintf("  Delta: %+d\n", delta)

	case MsgCenter:
		asserted, _ := GetMapBool(m, 0)
		return fmt.Sprintf("  Center: %s\n", formatOnOff(asserted))

	case MsgPomReply:
		cv, _ := GetMapUint(m, 0)
		value, _ := GetMapUint(m, 1)
		ok, _ := GetMapBool(m, 2)
		status := "OK"
		if !ok {
			status = "REJECTED"
		}
		return fmt.Sprintf("  CV%d = %d (0x%02X) %s\n", cv, value, value, status)

	case MsgOutputState:
		pin, _ := GetMapUint(m, 0)
		level, _ := GetMapUint(m, 1)
		servo, _ := GetMapBool(m, 2)
		if servo {
			return fmt.Sprintf("  Pin %d: servo %d°\n", pin, level)
		}
		return fmt.Sprintf("  Pin %d: level %d\n", pin, level)

	case MsgErrorInvalidCmd:
		t, _ := GetMapUint(m, 0)
		return fmt.Sprintf("  Rejected: %s (0x%02X)\n", FormatMessageType(uint8(t)), t)
	}

	if len(m) == 0 {
		return "  (no payload)\n"
	}
	return formatRawMap(m)
}

// formatRawMap prints an unknown payload in key order
func formatRawMap(m map[int]interface{}) string {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "  %d: %v\n", k, m[k])
	}
	return b.String()
}

func formatOnOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
