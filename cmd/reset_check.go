// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/knxcoupler/pkg/coupler"
)

var resetCheckTimeout int

var resetCheckCmd = &cobra.Command{
	Use:   "reset_check",
	Short: "Reset the TP-UART and check its state",
	Long: `Reset the bus coupler chip, set its individual address and request its state.

The command reports how the chip answered the reset and decodes the state
indication: slave collision, receive error, transmit error, protocol error
and temperature warning.

Exit codes:
  0 - Chip reset and reported a clean state
  1 - Chip reset but reported error flags, or never answered the state request
  2 - Connection error or no answer to the reset

Useful for checking wiring and bus power before running a device.`,
	RunE: runResetCheck,
}

func init() {
	rootCmd.AddCommand(resetCheckCmd)
	resetCheckCmd.Flags().IntVar(&resetCheckTimeout, "timeout", 2, "Timeout in seconds to wait for the state indication")
}

func runResetCheck(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	b, err := openBus(cfg, logger, coupler.ModeNormal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer b.Close()

	fmt.Printf("knxcoupler - Reset Check\n")
	fmt.Printf("Connection: %s\n", b.connInfo)
	fmt.Printf("Address: %s\n\n", cfg.Coupler.PhysicalAddress)

	ctx, stop := signalContext()
	defer stop()

	c := b.coupler
	start := time.Now()
	if err := c.Reset(ctx); err != nil {
		if errors.Is(err, coupler.ErrResetTimeout) {
			fmt.Fprintf(os.Stderr, "FAILED: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Reset error: %v\n", err)
		}
		os.Exit(2)
	}
	fmt.Printf("Reset confirmed after %v\n", time.Since(start).Round(time.Millisecond))

	stateSeen := false
	if err := c.Attach([]coupler.ComObject{}); err != nil {
		return err
	}
	if err := c.SetEventHandler(func(e coupler.Event) {
		if e == coupler.EventStateIndication {
			stateSeen = true
		}
	}); err != nil {
		return err
	}
	if err := c.SetAckHandler(func(coupler.TxOutcome) {}); err != nil {
		return err
	}
	if err := c.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Init error: %v\n", err)
		os.Exit(2)
	}

	deadline := time.Now().Add(time.Duration(resetCheckTimeout) * time.Second)
	for !stateSeen && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			os.Exit(2)
		case <-b.link.Done():
			fmt.Fprintf(os.Stderr, "Read error: %v\n", b.link.Err())
			os.Exit(2)
		default:
		}
		c.PollRX()
		time.Sleep(coupler.RXPollPeriod)
	}

	if !stateSeen {
		fmt.Fprintf(os.Stderr, "TIMEOUT: no state indication within %d seconds\n", resetCheckTimeout)
		os.Exit(1)
	}

	state := c.StateIndication()
	fmt.Printf("State: %s (0x%02X)\n", state, byte(state))
	if state&^coupler.StateIndicationCode != 0 {
		fmt.Fprintf(os.Stderr, "FAILED: chip reports error flags\n")
		os.Exit(1)
	}
	fmt.Printf("SUCCESS: chip is healthy\n")
	os.Exit(0)
	return nil
}
