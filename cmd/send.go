// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/Thermoquad/turnout/pkg/dccbus"
	"github.com/spf13/cobra"
)

var (
	sendOff     bool
	sendTimeout int
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a single command frame",
	Long: `Encode one command and write it to the connection, the way a bus front
end forwards it to the decoder.

Examples:
  turnout send accessory 21 1 --port /dev/ttyUSB0
  turnout send pom 50 51 120 --url ws://gateway/bus
  turnout send pom-read 50 8 --port /dev/ttyUSB0
  turnout send encoder -2 --port /dev/ttyUSB0
  turnout send center on --port /dev/ttyUSB0`,
}

var sendAccessoryCmd = &cobra.Command{
	Use:   "accessory <address> <output>",
	Short: "Send an ACCESSORY command (output 0 or 1)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseUint(args[0], "address", 2047)
		if err != nil {
			return err
		}
		output, err := parseUint(args[1], "output", 1)
		if err != nil {
			return err
		}
		return sendPacket(dccbus.NewAccessoryCommand(uint16(addr), uint8(output), !sendOff), false)
	},
}

var sendPomCmd = &cobra.Command{
	Use:   "pom <pom-address> <cv> <value>",
	Short: "Send a POM_WRITE and wait for the reply",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		pom, cvNum, err := parsePomArgs(args)
		if err != nil {
			return err
		}
		value, err := parseUint(args[2], "value", 255)
		if err != nil {
			return err
		}
		return sendPacket(dccbus.NewPomWrite(pom, cvNum, uint8(value)), true)
	},
}

var sendPomReadCmd = &cobra.Command{
	Use:   "pom-read <pom-address> <cv>",
	Short: "Send a POM_READ and wait for the reply",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pom, cvNum, err := parsePomArgs(args)
		if err != nil {
			return err
		}
		return sendPacket(dccbus.NewPomRead(pom, cvNum), true)
	},
}

var sendEncoderCmd = &cobra.Command{
	Use:   "encoder <detents>",
	Short: "Send an ENCODER step (negative turns counter-clockwise)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		delta, err := strconv.Atoi(args[0])
		if err != nil || delta < -127 || delta > 127 {
			return fmt.Errorf("invalid detents %q (valid -127-127)", args[0])
		}
		return sendPacket(dccbus.NewEncoderStep(delta), false)
	},
}

var sendCenterCmd = &cobra.Command{
	Use:   "center <on|off>",
	Short: "Send the CENTER input state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var asserted bool
		switch args[0] {
		case "on", "1", "true":
			asserted = true
		case "off", "0", "false":
		default:
			return fmt.Errorf("invalid center state %q (want on or off)", args[0])
		}
		return sendPacket(dccbus.NewCenter(asserted), false)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.AddCommand(sendAccessoryCmd, sendPomCmd, sendPomReadCmd, sendEncoderCmd, sendCenterCmd)
	sendCmd.PersistentFlags().IntVar(&sendTimeout, "timeout", 2, "Seconds to wait for a POM_REPLY")
	sendAccessoryCmd.Flags().BoolVar(&sendOff, "off", false, "Send with the activation bit cleared")
}

func parseUint(s, name string, max uint64) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil || v > max {
		return 0, fmt.Errorf("invalid %s %q (valid 0-%d)", name, s, max)
	}
	return v, nil
}

func parsePomArgs(args []string) (uint16, uint16, error) {
	pom, err := parseUint(args[0], "PoM address", 10239)
	if err != nil {
		return 0, 0, err
	}
	cvNum, err := parseUint(args[1], "CV", 1024)
	if err != nil {
		return 0, 0, err
	}
	if pom == 0 || cvNum == 0 {
		return 0, 0, fmt.Errorf("PoM address and CV start at 1")
	}
	return uint16(pom), uint16(cvNum), nil
}

// sendPacket writes one frame and optionally waits for the POM_REPLY
func sendPacket(p *dccbus.Packet, waitReply bool) error {
	if errs := dccbus.ValidatePacket(p); len(errs) > 0 {
		return &errs[0]
	}

	conn, err := openFrameConn()
	if err != nil {
		return err
	}
	defer conn.Close()

	var frames <-chan frameResult
	if waitReply {
		// Start reading before the request goes out
		frames = conn.readFrames()
	}

	fmt.Printf("Connection: %s\n", conn)
	fmt.Print(dccbus.FormatPacket(p))
	if err := conn.WriteFrame(p); err != nil {
		return err
	}
	if !waitReply {
		return nil
	}

	reply, err := waitFrame(frames, time.Duration(sendTimeout)*time.Second, isType(dccbus.MsgPomReply))
	if err != nil {
		return err
	}
	fmt.Print(dccbus.FormatPacket(reply))
	if ok, _ := dccbus.GetMapBool(reply.PayloadMap(), 2); !ok {
		return fmt.Errorf("decoder rejected the request")
	}
	return nil
}

// isType matches frames of one of the given message types
func isType(types ...uint8) func(*dccbus.Packet) bool {
	return func(p *dccbus.Packet) bool {
		return slices.Contains(types, p.Type())
	}
}
