// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/turnout/pkg/accessory"
	"github.com/Thermoquad/turnout/pkg/dccbus"
	"github.com/Thermoquad/turnout/pkg/hal"
	"github.com/spf13/cobra"
)

var (
	runMode          string
	runReset         bool
	runGPIO          bool
	runPinPrefix     string
	runEncoderA      string
	runEncoderB      string
	runCenter        string
	runReportOutputs bool
	runStatsInterval int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the decoder on a bus link",
	Long: `Boot the decoder from the board profile and CV store, then execute
commands received from the bus front end.

ACCESSORY frames switch the slots covered by the decoder. POM_WRITE and
POM_READ frames addressed to the decoder are answered with POM_REPLY. With
--gpio the outputs are driven through periph.io, and the encoder and centre
inputs adjust the last servo.

The mode input is given with --mode (normal, pom, ini, learn); a fixed_mode
in the profile takes precedence. --reset acts like the reset input held at
power-up: all CVs are restored from the profile.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runMode, "mode", "normal", "Sensed mode input (normal, pom, ini, learn)")
	runCmd.Flags().BoolVar(&runReset, "reset", false, "Restore all CVs from the profile at boot")
	runCmd.Flags().BoolVar(&runGPIO, "gpio", false, "Drive outputs through GPIO")
	runCmd.Flags().StringVar(&runPinPrefix, "pin-prefix", "GPIO", "GPIO name prefix for board pin numbers")
	runCmd.Flags().StringVar(&runEncoderA, "encoder-a", "", "Encoder phase A input pin name (requires --gpio)")
	runCmd.Flags().StringVar(&runEncoderB, "encoder-b", "", "Encoder phase B input pin name (requires --gpio)")
	runCmd.Flags().StringVar(&runCenter, "center", "", "Centre button input pin name (requires --gpio)")
	runCmd.Flags().BoolVar(&runReportOutputs, "report-outputs", false, "Send OUTPUT_STATE frames for every output change")
	runCmd.Flags().IntVar(&runStatsInterval, "stats-interval", 60, "Statistics log interval (seconds, 0 disables)")
}

func runRun(cmd *cobra.Command, args []string) error {
	sensed, err := accessory.ParseMode(runMode)
	if err != nil {
		return err
	}
	if (runEncoderA != "" || runEncoderB != "" || runCenter != "") && !runGPIO {
		return fmt.Errorf("encoder inputs require --gpio")
	}

	conn, err := openFrameConn()
	if err != nil {
		return err
	}
	link := newLinkManager(conn)
	defer link.close()

	// Outputs: always recorded, optionally reported and driven
	recorder := hal.NewRecorder()
	var act accessory.Actuator = recorder
	if runReportOutputs {
		recorder.OnChange = func(o hal.Output) {
			if err := link.send(dccbus.NewOutputState(uint8(o.Pin), o.Level, o.Servo)); err != nil {
				logger.Debug("output report failed", "pin", o.Pin, "error", err)
			}
		}
	}
	var gpio *hal.GPIO
	if runGPIO {
		gpio, err = hal.OpenGPIO(func(p accessory.Pin) string {
			return fmt.Sprintf("%s%d", runPinPrefix, p)
		}, logger.With("component", "gpio"))
		if err != nil {
			return err
		}
		defer gpio.Close()
		act = hal.Multi(gpio, recorder)
	}

	dec, store, err := bootDecoder(act, sensed, runReset)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Printf("Turnout - Decoder\n")
	fmt.Printf("Connection: %s\n", conn)
	printBoot(dec)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := make(chan accessory.Event, 64)
	link.onPacket = func(p *dccbus.Packet) {
		ev, err := dccbus.ToEvent(p)
		if err != nil {
			logger.Debug("frame not executed", "type", dccbus.FormatMessageType(p.Type()), "error", err)
			var verr *dccbus.ValidationError
			if errors.As(err, &verr) && verr.Type == dccbus.AnomalyUnknownType {
				if err := link.send(dccbus.NewInvalidCommand(p.Type())); err != nil {
					logger.Debug("error report failed", "error", err)
				}
			}
			return
		}
		if ev.Kind == accessory.EventPomRead || ev.Kind == accessory.EventPomWrite {
			ev.Reply = func(r accessory.Reply) {
				if err := link.send(dccbus.FromReply(r)); err != nil {
					logger.Warn("PoM reply failed", "cv", r.CV, "error", err)
				}
			}
		}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}
	link.onState = func(connected bool, info string) {
		if !connected {
			logger.Warn("connection lost, reconnecting", "connection", info)
		}
	}
	go link.readerLoop()

	if runGPIO && runEncoderA != "" && runEncoderB != "" {
		if err := startEncoder(ctx, events); err != nil {
			return err
		}
	}

	if runStatsInterval > 0 {
		every := uint64(time.Duration(runStatsInterval) * time.Second / accessory.TickInterval)
		dec.Scheduler.OnTick = func() {
			if dec.Scheduler.Ticks()%every == 0 {
				s := dec.Dispatcher.Stats()
				logger.Info("statistics",
					"commands", s.Commands, "applied", s.Applied, "ignored", s.Ignored,
					"dropped", s.Dropped, "pom_writes", s.PomWrites, "pom_rejected", s.PomRejected)
			}
		}
	}

	err = dec.Scheduler.Run(ctx, events)
	fmt.Println()
	fmt.Print(link.statistics())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// startEncoder opens the encoder inputs and feeds their events to the engine
func startEncoder(ctx context.Context, events chan<- accessory.Event) error {
	a, err := hal.OpenInput(runEncoderA)
	if err != nil {
		return err
	}
	b, err := hal.OpenInput(runEncoderB)
	if err != nil {
		return err
	}
	var center hal.LevelReader
	if runCenter != "" {
		c, err := hal.OpenInput(runCenter)
		if err != nil {
			return err
		}
		center = c
	}

	board, err := loadBoard()
	if err != nil {
		return err
	}
	enc := hal.NewEncoder(a, b, center, board.EncoderDouble)
	go func() {
		if err := enc.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("encoder stopped", "error", err)
		}
	}()
	logger.Info("encoder started", "a", runEncoderA, "b", runEncoderB, "center", runCenter)
	return nil
}
