// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Turnout - Multi-function DCC Accessory Decoder
//
// Runs the decoder engine against GPIO or a recording actuator and
// provides tools for the framed command link and the CV store.

package main

import (
	"os"

	"github.com/Thermoquad/turnout/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
