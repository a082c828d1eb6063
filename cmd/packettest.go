// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/turnout/pkg/dccbus"
	"github.com/spf13/cobra"
)

var (
	packetTestTimeout int
	packetTestPom     uint16
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Check that the decoder answers with a well-formed frame",
	Long: `Send one POM_READ of CV8 (manufacturer ID) to the decoder's PoM address
and wait for its answer: a POM_REPLY, or an ERROR_INVALID_CMD from a decoder
that does not take reads. The answer must pass the CRC check and payload
validation. Malformed frames seen while waiting are counted and skipped.

Exit codes:
  0 - Valid answer received before timeout
  1 - Timeout, or the answer failed validation
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for the answer")
	packetTestCmd.Flags().Uint16Var(&packetTestPom, "pom", 50, "PoM address of the decoder")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	conn, err := openFrameConn()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Turnout - Packet Test\n")
	fmt.Printf("Connection: %s\n", conn)
	fmt.Printf("Timeout: %d seconds\n\n", packetTestTimeout)

	frames := conn.readFrames()
	request := dccbus.NewPomRead(packetTestPom, pingCV)
	fmt.Print(dccbus.FormatPacket(request))
	if err := conn.WriteFrame(request); err != nil {
		fmt.Fprintf(os.Stderr, "Send error: %v\n", err)
		os.Exit(2)
	}

	answer, rejected, err := awaitAnswer(frames, time.Duration(packetTestTimeout)*time.Second)
	if rejected > 0 {
		fmt.Printf("(skipped %d malformed frames)\n", rejected)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAILED: %v\n", err)
		if answer == nil && !isTimeout(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	fmt.Printf("SUCCESS: decoder answered\n")
	fmt.Print(dccbus.FormatPacket(answer))
	fmt.Printf("  Length: %d bytes\n", answer.Length())
	fmt.Printf("  CRC: 0x%04X\n", answer.CRC())
	os.Exit(0)
	return nil
}

// errNoAnswer is returned when the wait for the decoder's answer expires
type errNoAnswer struct {
	timeout time.Duration
}

func (e errNoAnswer) Error() string {
	return fmt.Sprintf("no answer within %s", e.timeout)
}

func isTimeout(err error) bool {
	_, ok := err.(errNoAnswer)
	return ok
}

// awaitAnswer waits for the decoder's answer to a POM_READ. It returns the
// answer with an error when its payload fails validation, and the number of
// malformed frames skipped.
func awaitAnswer(frames <-chan frameResult, timeout time.Duration) (*dccbus.Packet, int, error) {
	answers := isType(dccbus.MsgPomReply, dccbus.MsgErrorInvalidCmd)
	deadline := time.After(timeout)
	rejected := 0
	for {
		select {
		case r, ok := <-frames:
			switch {
			case !ok:
				return nil, rejected, ErrConnectionClosed
			case isFrameError(r.err):
				rejected++
			case r.err != nil:
				return nil, rejected, fmt.Errorf("read error: %w", r.err)
			case answers(r.packet):
				if errs := dccbus.ValidatePacket(r.packet); len(errs) > 0 {
					return r.packet, rejected, &errs[0]
				}
				return r.packet, rejected, nil
			}
		case <-deadline:
			return nil, rejected, errNoAnswer{timeout}
		}
	}
}
