// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cv

import (
	"fmt"
	"sync"
)

// Validator decides whether value may be written to CV n. current reads
// other CVs of the same store without re-entering the adapter lock.
type Validator interface {
	ValidateCV(n uint16, value uint8, current func(uint16) uint8) error
}

// ValidatorFunc adapts a function to the Validator interface
type ValidatorFunc func(n uint16, value uint8, current func(uint16) uint8) error

// ValidateCV calls f
func (f ValidatorFunc) ValidateCV(n uint16, value uint8, current func(uint16) uint8) error {
	return f(n, value, current)
}

// Adapter serializes all CV access and validates bus-originated writes.
type Adapter struct {
	mu        sync.Mutex
	store     Store
	validator Validator
}

// NewAdapter wraps store. v may be nil, in which case every write is accepted.
func NewAdapter(store Store, v Validator) *Adapter {
	return &Adapter{store: store, validator: v}
}

// SetValidator replaces the validator (the registry installs itself after boot).
func (a *Adapter) SetValidator(v Validator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validator = v
}

// Read returns the value of CV n.
func (a *Adapter) Read(n uint16) (uint8, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.read(n)
}

func (a *Adapter) read(n uint16) (uint8, error) {
	if n == 0 || n > MaxCV {
		return 0, fmt.Errorf("read CV%d: %w", n, ErrUnknownCV)
	}
	v, err := a.store.ReadCV(n)
	if err != nil {
		return 0, fmt.Errorf("read CV%d: %w", n, err)
	}
	return v, nil
}

// current is handed to validators; read errors show up as erased cells.
func (a *Adapter) current(n uint16) uint8 {
	v, err := a.read(n)
	if err != nil {
		return ErasedValue
	}
	return v
}

// Write validates value and stores it. A rejected value leaves the store untouched.
func (a *Adapter) Write(n uint16, value uint8) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.write(n, value, true)
}

// WriteRaw stores value without validation. Used when restoring defaults.
func (a *Adapter) WriteRaw(n uint16, value uint8) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.write(n, value, false)
}

func (a *Adapter) write(n uint16, value uint8, validate bool) error {
	if n == 0 || n > MaxCV {
		return fmt.Errorf("write CV%d: %w", n, ErrUnknownCV)
	}
	if validate && a.validator != nil {
		if err := a.validator.ValidateCV(n, value, a.current); err != nil {
			return err
		}
	}
	if err := a.store.WriteCV(n, value); err != nil {
		return fmt.Errorf("write CV%d: %w", n, err)
	}
	return nil
}

// Update runs a validated read-modify-write of CV n under the adapter lock.
// fn returns the new value and whether it should be written at all.
func (a *Adapter) Update(n uint16, fn func(old uint8) (uint8, bool)) (uint8, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	old, err := a.read(n)
	if err != nil {
		return 0, err
	}
	next, ok := fn(old)
	if !ok || next == old {
		return old, nil
	}
	if err := a.write(n, next, true); err != nil {
		return old, err
	}
	return next, nil
}

// Read16 reads a little-endian pair of CVs.
func (a *Adapter) Read16(lo, hi uint16) (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, err := a.read(lo)
	if err != nil {
		return 0, err
	}
	h, err := a.read(hi)
	if err != nil {
		return 0, err
	}
	return uint16(l) | uint16(h)<<8, nil
}

// Write16 writes a little-endian pair of CVs without validation.
func (a *Adapter) Write16(lo, hi uint16, value uint16) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.write(lo, uint8(value), false); err != nil {
		return err
	}
	return a.write(hi, uint8(value>>8), false)
}
