// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/turnout/pkg/accessory"
	"github.com/Thermoquad/turnout/pkg/cv"
	"github.com/Thermoquad/turnout/pkg/profile"
)

// loadBoard returns the board description from --profile, or the reference board
func loadBoard() (accessory.Defaults, error) {
	if profilePath == "" {
		return accessory.DefaultConfig(), nil
	}
	return profile.Load(profilePath)
}

// openStore opens the CV store named by --store
func openStore() (*cv.SQLiteStore, error) {
	store, err := cv.OpenSQLite(storePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CV store %s: %w", storePath, err)
	}
	return store, nil
}

// bootDecoder loads the board and store and boots an engine on them
func bootDecoder(act accessory.Actuator, sensed accessory.Mode, reset bool) (*accessory.Decoder, *cv.SQLiteStore, error) {
	board, err := loadBoard()
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	dec, err := accessory.New(accessory.Config{
		Store:    store,
		Defaults: board,
		Sensed:   sensed,
		Reset:    reset,
		Actuator: act,
		Logger:   logger,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return dec, store, nil
}

// printBoot summarizes the boot outcome
func printBoot(dec *accessory.Decoder) {
	b := dec.Boot
	cfg := dec.Dispatcher.Config()
	fmt.Printf("Mode: %s\n", b.Mode)
	fmt.Printf("Base address: %d (%d slots), PoM address: %d\n", cfg.BaseAddress, dec.Registry.Len(), cfg.PomAddress)
	if b.Reinitialized {
		fmt.Printf("CVs restored from defaults: %s\n", b.Reason)
	}
	if b.StoreErr != nil {
		fmt.Printf("WARNING: CV store failed, running from defaults: %v\n", b.StoreErr)
	}
}
