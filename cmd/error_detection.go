// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/turnout/pkg/dccbus"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and errors",
	Long: `Track frame errors, malformed payloads and out-of-range values with statistics.

This command validates each frame and detects:
  - CRC errors and framing failures
  - Missing payload fields and unknown message types
  - Out-of-range values (addresses, CV numbers, encoder steps)
  - Statistics and trends (packet rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid frames too.

Frames are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all packets (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	label := "DECODE ERROR"
	if errors.Is(err, dccbus.ErrCRCMismatch) {
		label = "CRC ERROR"
	}
	fmt.Printf("[%s] \033[1;31m%s:\033[0m %v\n", timestamp, label, err)
	fmt.Printf("  >>> DECODE FAILED <<<\n\n")
}

// printValidationErrors prints validation errors for a packet
func printValidationErrors(packet *dccbus.Packet, errors []dccbus.ValidationError) {
	timestamp := packet.Timestamp().Format("15:04:05.000")
	msgType := dccbus.FormatMessageType(packet.Type())

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n", timestamp, msgType, packet.Type())
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, err := range errors {
		switch err.Type {
		case dccbus.AnomalyMissingField:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)

		case dccbus.AnomalyInvalidValue:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if min, ok := err.Details["min"].(int64); ok {
				if max, ok := err.Details["max"].(int64); ok {
					fmt.Printf("    valid range: %d to %d\n", min, max)
				}
			}

		case dccbus.AnomalyUnknownType, dccbus.AnomalyDecodeError:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			fmt.Printf("    payload: % X\n", packet.Payload())

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  >>> PACKET REJECTED <<<\n\n")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	conn, err := openFrameConn()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Turnout - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", conn)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All packets\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := dccbus.NewStatistics()

	// Frame errors before the first valid frame are line noise
	synchronized := false
	rejectedBeforeSync := 0

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	frames := conn.readFrames()
	for {
		select {
		case r, ok := <-frames:
			var fe *FrameError
			switch {
			case !ok || (r.err != nil && !errors.As(r.err, &fe)):
				fmt.Println()
				fmt.Print(stats.String())
				if r.err == nil {
					r.err = ErrConnectionClosed
				}
				return fmt.Errorf("connection lost: %w", r.err)

			case fe != nil:
				if !synchronized {
					rejectedBeforeSync++
					continue
				}
				stats.Update(fe.Err, nil)
				printDecodeError(fe.Err)

			default:
				if !synchronized {
					synchronized = true
					if rejectedBeforeSync > 0 {
						fmt.Printf("[SYNC] Synchronized after skipping %d malformed frames\n\n", rejectedBeforeSync)
					} else {
						fmt.Printf("[SYNC] Synchronized\n\n")
					}
				}

				validationErrors := dccbus.ValidatePacket(r.packet)
				stats.Update(nil, validationErrors)

				if len(validationErrors) > 0 {
					printValidationErrors(r.packet, validationErrors)
				} else if showAll {
					fmt.Print(dccbus.FormatPacket(r.packet))
				}
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
