// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cv

import "sync"

// MemoryStore is a volatile Store, initialized to the erased value.
type MemoryStore struct {
	mu    sync.Mutex
	cells [MaxCV + 1]uint8
}

// NewMemoryStore creates an erased memory store
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{}
	for i := range m.cells {
		m.cells[i] = ErasedValue
	}
	return m
}

// ReadCV implements Store
func (m *MemoryStore) ReadCV(n uint16) (uint8, error) {
	if int(n) > MaxCV {
		return 0, ErrUnknownCV
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cells[n], nil
}

// WriteCV implements Store
func (m *MemoryStore) WriteCV(n uint16, v uint8) error {
	if int(n) > MaxCV {
		return ErrUnknownCV
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[n] = v
	return nil
}
