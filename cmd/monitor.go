// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/knxcoupler/pkg/capture"
	"github.com/Thermoquad/knxcoupler/pkg/coupler"
)

var (
	monitorCapture string
	monitorQuiet   bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display all bus traffic in human-readable format",
	Long: `Put the TP-UART into bus monitor mode and display every packet on the line.

The chip forwards all traffic without acknowledging anything, so this command
is invisible to the bus. Packets are split on the end-of-packet gap and
decoded as telegrams where possible; acknowledge characters are shown as
ACK, NACK or BUSY.

With --capture, every packet is also recorded to a CBOR capture file that
the replay command can read back.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorCapture, "capture", "", "Record packets to this capture file")
	monitorCmd.Flags().BoolVarP(&monitorQuiet, "quiet", "q", false, "Do not print packets (use with --capture)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	b, err := openBus(cfg, logger, coupler.ModeBusMonitor)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, stop := signalContext()
	defer stop()

	if err := b.coupler.Reset(ctx); err != nil {
		return err
	}
	if err := b.coupler.Init(); err != nil {
		return err
	}

	var writer *capture.Writer
	if monitorCapture != "" {
		f, err := os.Create(monitorCapture)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()
		if writer, err = capture.NewWriter(f, time.Now()); err != nil {
			return err
		}
	}

	fmt.Printf("knxcoupler - Bus Monitor\n")
	fmt.Printf("Connection: %s\n", b.connInfo)
	if writer != nil {
		fmt.Printf("Capture: %s\n", monitorCapture)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var asm capture.Assembler
	emit := func(f capture.Frame) {
		if !monitorQuiet {
			fmt.Print(formatFrame(f))
		}
		if writer != nil {
			if err := writer.Write(f); err != nil {
				log.Printf("Capture write failed: %v", err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			if f, ok := asm.Flush(); ok {
				emit(f)
			}
			if writer != nil {
				fmt.Printf("\n%d packets captured\n", writer.Frames())
			}
			fmt.Print(b.coupler.Stats().String())
			return nil

		case <-b.link.Done():
			if f, ok := asm.Flush(); ok {
				emit(f)
			}
			log.Printf("Connection closed: %v", b.link.Err())
			return nil

		default:
		}

		data, ok := b.coupler.MonitorData()
		if !ok {
			time.Sleep(coupler.RXPollPeriod)
			continue
		}
		if f, done := asm.Add(data, time.Now()); done {
			emit(f)
		}
	}
}
