// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/turnout/pkg/dccbus"
	"github.com/spf13/cobra"
)

var rawLogHex bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw packet log in human-readable format",
	Long: `Continuously decode and display bus frames as they arrive.

Shows each frame with timestamp, message type and decoded payload, in both
directions if the connection carries the decoder's replies.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogHex, "hex", false, "Also print the raw frame bytes")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, err := openFrameConn()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Turnout - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", conn)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	for r := range conn.readFrames() {
		var fe *FrameError
		switch {
		case errors.As(r.err, &fe):
			fmt.Printf("[ERROR] %v\n", fe)
			if rawLogHex {
				fmt.Printf("  Raw: % X\n", fe.Raw)
			}
		case r.err != nil:
			logger.Info("connection closed", "error", r.err)
			return nil
		default:
			fmt.Print(dccbus.FormatPacket(r.packet))
			if rawLogHex {
				fmt.Printf("  Raw: % X\n", r.raw)
			}
		}
	}
	return nil
}
