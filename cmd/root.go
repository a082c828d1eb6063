// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"log/slog"

	"github.com/Thermoquad/turnout/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Decoder flags
	storePath   string
	profilePath string

	// Logging flags
	logLevel   string
	logJournal bool

	logLevelVar = new(slog.LevelVar)
	logger      = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "turnout",
	Short: "Multi-function DCC accessory decoder",
	Long: `Turnout - A DCC accessory decoder for servos, twin-coil point motors,
blinking lights and light signals.

The decoder receives accessory and programming-on-main commands as framed
CBOR messages from a bus front end, keeps its configuration variables in a
SQLite store and drives outputs through GPIO.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the TURNOUT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logLevelVar.Set(level)
		logger = logging.New(logging.Options{Level: logLevelVar, Journal: logJournal})
		return nil
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Decoder flags
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "turnout.db", "CV store (SQLite file, or :memory:)")
	rootCmd.PersistentFlags().StringVar(&profilePath, "profile", "", "Board profile (YAML); built-in reference board if empty")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJournal, "journal", false, "Also log to the systemd journal")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
