// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package accessory

import (
	"errors"
	"fmt"
)

const maxAngle = 180

// checkParam returns a reason when value is not acceptable for offset off of a
// block of the given kind. block holds the current block, with off already
// replaced by value, so cross-field rules see the result of the write.
func checkParam(kind Kind, off int, block [5]uint8) string {
	value := block[off]
	if off == 0 {
		if extra := value &^ validModeBits[kind]; extra != 0 {
			return fmt.Sprintf("mode bits 0x%02X not supported by %s", extra, kind)
		}
	}

	switch kind {
	case KindServo:
		switch off {
		case 1, 2:
			if value > maxAngle {
				return "servo angle above 180"
			}
		case 4:
			if value > 1 {
				return "position must be 0 or 1"
			}
		}

	case KindCoil:
		switch off {
		case 0, 1:
			if block[0]&CoilAutoOffOnly != 0 && block[1] == 0 {
				return "on time 0 needs manual switch off (mode bit 0 clear)"
			}
		case 4:
			if value > 1 {
				return "position must be 0 or 1"
			}
		}

	case KindStatic:
		switch off {
		case 0, 1, 2:
			if block[0]&BlinkEnable != 0 && (block[1] == 0 || block[2] == 0) {
				return "blink time must be at least one tick"
			}
		case 4:
			if value > 1 {
				return "state must be 0 or 1"
			}
		}
	}
	return ""
}

// validateBlock checks a complete mode byte + parameter block
func validateBlock(kind Kind, mode uint8, params [4]uint8) error {
	block := [5]uint8{mode, params[0], params[1], params[2], params[3]}
	var errs []error
	for off := range block {
		if reason := checkParam(kind, off, block); reason != "" {
			errs = append(errs, fmt.Errorf("offset %d: %s", off, reason))
		}
	}
	return errors.Join(errs...)
}

// checkDistantLink validates a signal head's distant signal index (1-based, 0 none)
func checkDistantLink(kinds []Kind, index uint8) string {
	if index == 0 {
		return ""
	}
	i := int(index) - 1
	if i >= len(kinds) {
		return fmt.Sprintf("distant signal index %d beyond %d slots", index, len(kinds))
	}
	if kinds[i] != KindVorsignal {
		return fmt.Sprintf("slot %d is %s, not a vorsignal", index, kinds[i])
	}
	return ""
}
