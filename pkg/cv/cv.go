// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package cv provides typed access to the decoder's configuration variables.
//
// CVs live in an external byte-addressable store. The Adapter layers range
// validation and a single-writer discipline on top of any Store, so that PoM
// writes and encoder calibration never interleave inside one read-modify-write.
package cv

import (
	"errors"
	"fmt"
)

// Fixed CV layout
const (
	AddrLow   = 1  // base accessory address, low byte
	AddrHigh  = 9  // base accessory address, high byte
	Config    = 47 // init marker (high nibble) + global option bits
	PomLow    = 48 // PoM address, low byte
	PomHigh   = 49 // PoM address, high byte
	BlockBase = 50 // first slot block
	BlockSize = 5  // mode byte + 4 parameters
)

// Offsets inside a slot block
const (
	OffMode = iota
	OffPar1
	OffPar2
	OffPar3
	OffPar4
)

// MaxCV is the highest CV number a store has to hold.
const MaxCV = 1024

// ErasedValue is what an unprogrammed store returns.
const ErasedValue = 0xFF

// ErrUnknownCV is returned for CVs that are not part of the layout.
var ErrUnknownCV = errors.New("unknown CV")

// ErrReadOnly is returned when a CV may not be written over the bus.
var ErrReadOnly = errors.New("CV is read-only")

// RangeError reports a write whose value the owning function rejects.
type RangeError struct {
	CV     uint16
	Value  uint8
	Reason string
}

// Error implements the error interface
func (e *RangeError) Error() string {
	return fmt.Sprintf("CV%d: value %d rejected: %s", e.CV, e.Value, e.Reason)
}

// BlockCV returns the CV number of offset off in the block of slot.
func BlockCV(slot, off int) uint16 {
	return uint16(BlockBase + BlockSize*slot + off)
}

// SlotOf maps a CV number back to its slot block.
func SlotOf(n uint16) (slot, off int, ok bool) {
	if n < BlockBase {
		return 0, 0, false
	}
	rel := int(n) - BlockBase
	return rel / BlockSize, rel % BlockSize, true
}

// Store is the external persistent byte store.
type Store interface {
	ReadCV(n uint16) (uint8, error)
	WriteCV(n uint16, v uint8) error
}
