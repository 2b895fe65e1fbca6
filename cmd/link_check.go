// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/knxcoupler/pkg/capture"
	"github.com/Thermoquad/knxcoupler/pkg/coupler"
)

var linkCheckDuration int

var linkCheckCmd = &cobra.Command{
	Use:   "link_check",
	Short: "Test connection stability with the chip in bus monitor mode",
	Long: `Reset the TP-UART, put it into bus monitor mode and watch the link.

Nothing is transmitted on the bus. The command counts packets and bytes for
the given duration and prints a heartbeat every second. Useful for debugging
flaky serial adapters and WebSocket bridges.

Exit codes:
  0 - Link stayed up for the whole duration
  1 - Link dropped during the test
  2 - Connection error or no answer to the reset`,
	RunE: runLinkCheck,
}

func init() {
	rootCmd.AddCommand(linkCheckCmd)
	linkCheckCmd.Flags().IntVar(&linkCheckDuration, "duration", 30, "Test duration in seconds")
}

func runLinkCheck(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	b, err := openBus(cfg, logger, coupler.ModeBusMonitor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer b.Close()

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("knxcoupler - Link Stability Test\n")
	fmt.Printf("Connection: %s\n", b.connInfo)
	fmt.Printf("Duration: %d seconds\n\n", linkCheckDuration)

	if err := b.coupler.Reset(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Reset error: %v\n", err)
		os.Exit(2)
	}
	if err := b.coupler.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Init error: %v\n", err)
		os.Exit(2)
	}

	start := time.Now()
	endTime := start.Add(time.Duration(linkCheckDuration) * time.Second)
	nextBeat := start.Add(time.Second)
	bytesReceived := 0
	packetsReceived := 0
	var asm capture.Assembler

	results := func() {
		fmt.Printf("\n--- Test Results ---\n")
		fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("Packets received: %d\n", packetsReceived)
		fmt.Printf("Bytes received: %d\n", bytesReceived)
	}

	fmt.Printf("Listening for bus traffic...\n\n")

	for time.Now().Before(endTime) {
		select {
		case <-ctx.Done():
			results()
			fmt.Printf("Result: INTERRUPTED\n")
			os.Exit(1)

		case <-b.link.Done():
			fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), b.link.Err())
			results()
			fmt.Printf("Result: FAILED (connection error)\n")
			os.Exit(1)

		default:
		}

		data, ok := b.coupler.MonitorData()
		if !ok {
			if now := time.Now(); now.After(nextBeat) {
				fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
					now.Format("15:04:05.000"), time.Until(endTime).Seconds())
				nextBeat = now.Add(time.Second)
			}
			time.Sleep(coupler.RXPollPeriod)
			continue
		}
		if !data.EndOfPacket {
			bytesReceived++
		}
		if _, done := asm.Add(data, time.Now()); done {
			packetsReceived++
		}
	}

	results()
	fmt.Printf("Result: PASSED (connection stable)\n")
	return nil
}
