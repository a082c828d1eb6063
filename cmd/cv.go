// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/Thermoquad/turnout/pkg/accessory"
	"github.com/Thermoquad/turnout/pkg/cv"
	"github.com/Thermoquad/turnout/pkg/profile"
	"github.com/spf13/cobra"
)

var cvCmd = &cobra.Command{
	Use:   "cv",
	Short: "Inspect and edit the CV store offline",
	Long: `Read and write configuration variables without a bus connection.

Writes go through the same validation as programming on main. A store
without a valid configuration is initialized from the profile first.`,
}

var cvDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every CV of the decoder",
	Args:  cobra.NoArgs,
	RunE:  runCVDump,
}

var cvGetCmd = &cobra.Command{
	Use:   "get <cv>",
	Short: "Print one CV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := parseUint(args[0], "CV", cv.MaxCV)
		if err != nil {
			return err
		}
		dec, store, err := bootDecoder(nil, accessory.ModeNormal, false)
		if err != nil {
			return err
		}
		defer store.Close()
		v, err := dec.CVs.Read(uint16(n))
		if err != nil {
			return err
		}
		fmt.Printf("CV%d = %d (0x%02X) %s\n", n, v, v, cvName(dec, uint16(n)))
		return nil
	},
}

var cvSetCmd = &cobra.Command{
	Use:   "set <cv> <value>",
	Short: "Write one CV with validation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := parseUint(args[0], "CV", cv.MaxCV)
		if err != nil {
			return err
		}
		v, err := parseUint(args[1], "value", 255)
		if err != nil {
			return err
		}
		dec, store, err := bootDecoder(nil, accessory.ModeNormal, false)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := dec.CVs.Write(uint16(n), uint8(v)); err != nil {
			return err
		}
		fmt.Printf("CV%d = %d (0x%02X) %s\n", n, v, v, cvName(dec, uint16(n)))
		return nil
	},
}

var cvResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore all CVs from the profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dec, store, err := bootDecoder(nil, accessory.ModeNormal, true)
		if err != nil {
			return err
		}
		defer store.Close()
		printBoot(dec)
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print the effective board profile as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		board, err := loadBoard()
		if err != nil {
			return err
		}
		return profile.Write(os.Stdout, board)
	},
}

func init() {
	rootCmd.AddCommand(cvCmd, profileCmd)
	cvCmd.AddCommand(cvDumpCmd, cvGetCmd, cvSetCmd, cvResetCmd)
}

func runCVDump(cmd *cobra.Command, args []string) error {
	dec, store, err := bootDecoder(nil, accessory.ModeNormal, false)
	if err != nil {
		return err
	}
	defer store.Close()

	printBoot(dec)
	fmt.Println()

	numbers := []uint16{cv.AddrLow, cv.AddrHigh, cv.Config, cv.PomLow, cv.PomHigh}
	for i := 0; i < dec.Registry.Len(); i++ {
		for off := cv.OffMode; off <= cv.OffPar4; off++ {
			numbers = append(numbers, cv.BlockCV(i, off))
		}
	}
	for _, n := range numbers {
		v, err := dec.CVs.Read(n)
		if err != nil {
			fmt.Printf("CV%-4d  error: %v\n", n, err)
			continue
		}
		fmt.Printf("CV%-4d %3d  0x%02X  %s\n", n, v, v, cvName(dec, n))
	}
	return nil
}

// cvName describes what a CV holds
func cvName(dec *accessory.Decoder, n uint16) string {
	switch n {
	case cv.AddrLow:
		return "base address (low)"
	case cv.AddrHigh:
		return "base address (high)"
	case cv.Config:
		return "init marker + options"
	case cv.PomLow:
		return "PoM address (low)"
	case cv.PomHigh:
		return "PoM address (high)"
	}
	slot, off, ok := cv.SlotOf(n)
	if !ok || slot >= dec.Registry.Len() {
		return ""
	}
	kind := dec.Registry.Slot(slot).Kind
	if off == cv.OffMode {
		return fmt.Sprintf("slot %d %s mode", slot, kind)
	}
	return fmt.Sprintf("slot %d %s param %d", slot, kind, off)
}
