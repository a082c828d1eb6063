// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/turnout/pkg/dccbus"
	"github.com/spf13/cobra"
)

var (
	pingTimeout int
	pingCount   int
	pingAddress uint16
)

// pingCV is the manufacturer ID, readable in every PoM-enabled mode
const pingCV = 8

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the decoder round trip with POM_READ requests",
	Long: `Send POM_READ requests for CV8 (manufacturer ID) to the decoder's PoM
address and wait for the POM_REPLY.

Outside pom and learn mode the decoder answers with a rejection, which
still proves the round trip. This is useful for verifying:
  - The connection is established
  - Frames reach the decoder intact
  - Replies flow back to the front end

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 2, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().Uint16Var(&pingAddress, "pom", 50, "PoM address of the decoder")
}

func runPing(cmd *cobra.Command, args []string) error {
	conn, err := openFrameConn()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Turnout - PoM Ping\n")
	fmt.Printf("Connection: %s\n", conn)
	fmt.Printf("PoM address: %d\n", pingAddress)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	frames := conn.readFrames()
	request := dccbus.NewPomRead(pingAddress, pingCV)
	timeout := time.Duration(pingTimeout) * time.Second

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		// Drop late replies from earlier pings
	drain:
		for {
			select {
			case r, ok := <-frames:
				if ok && (r.err == nil || isFrameError(r.err)) {
					continue
				}
				break drain
			default:
				break drain
			}
		}

		startTime := time.Now()
		if err := conn.WriteFrame(request); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		packet, err := waitFrame(frames, timeout, isType(dccbus.MsgPomReply))
		switch {
		case err == nil:
			rtt := time.Since(startTime)
			m := packet.PayloadMap()
			value, _ := dccbus.GetMapUint(m, 1)
			if ok, _ := dccbus.GetMapBool(m, 2); !ok {
				fmt.Printf("REJECTED (PoM disabled), rtt=%v\n", rtt.Round(time.Millisecond))
			} else {
				fmt.Printf("REPLY CV%d=%d, rtt=%v\n", pingCV, value, rtt.Round(time.Millisecond))
			}
			successCount++

		case errors.Is(err, ErrConnectionClosed):
			fmt.Printf("READ FAILED: %v\n", err)
			failCount += pingCount - i + 1
			i = pingCount

		default:
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
