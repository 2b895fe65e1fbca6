// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/knxcoupler/pkg/comobject"
	"github.com/Thermoquad/knxcoupler/pkg/coupler"
	"github.com/Thermoquad/knxcoupler/pkg/device"
	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

var listenTUI bool

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run the configured objects and log their bus traffic",
	Long: `Run a device with the communication objects from the configuration file.

The device answers group reads, takes group writes and responses, reads
init-flagged objects after start-up and logs every telegram addressed to one
of its objects together with transmission outcomes and chip state changes.

Use --tui for an interactive view that also lets you write object values.

Press Ctrl+C to stop.`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().BoolVar(&listenTUI, "tui", false, "Interactive object view")
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	b, dev, err := openDevice(cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	if listenTUI {
		return runListenTUI(b, dev, cfg.Coupler.PhysicalAddress)
	}

	fmt.Printf("knxcoupler - Listen\n")
	fmt.Printf("Connection: %s\n", b.connInfo)
	fmt.Printf("Address: %s | Objects: %d\n", cfg.Coupler.PhysicalAddress, len(dev.Objects()))
	fmt.Printf("Press Ctrl+C to stop\n\n")

	objects := dev.Objects()
	dev.OnActivity(func(a device.Activity) {
		fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), formatActivity(objects, a))
	})

	ctx, stop := signalContext()
	defer stop()
	err = runDevice(ctx, b, dev)

	fmt.Printf("\n%s\n", b.coupler.Stats())
	s := dev.Stats()
	fmt.Printf("Device: sent=%d reads=%d updates=%d failed=%d\n", s.Sent, s.Reads, s.Updates, s.Failed)
	return err
}

// formatActivity renders one device event for a log line
func formatActivity(objects []*comobject.ComObject, a device.Activity) string {
	var obj *comobject.ComObject
	if a.Index >= 0 && a.Index < len(objects) {
		obj = objects[a.Index]
	}

	switch a.Kind {
	case device.ActivityReceived:
		line := "RX " + telegram.FormatTelegram(&a.Telegram)
		if obj != nil {
			line += fmt.Sprintf(" [%s]", obj.Name)
			if a.Telegram.Command() != telegram.CommandRead {
				line += " " + describeValue(obj, &a.Telegram)
			}
		}
		return line

	case device.ActivitySent:
		line := fmt.Sprintf("TX %s %s", a.Outcome, telegram.FormatTelegram(&a.Telegram))
		if obj != nil {
			line += fmt.Sprintf(" [%s]", obj.Name)
		}
		return line

	case device.ActivityState:
		return "STATE " + a.State.String()

	case device.ActivityReset:
		return "RESET chip restarted, reinitialising"

	case device.ActivityReceptionError:
		return "RX reception error"
	}
	return a.Kind.String()
}

// activityIsError reports events worth highlighting
func activityIsError(a device.Activity) bool {
	switch a.Kind {
	case device.ActivitySent:
		return a.Outcome != coupler.AckResponse
	case device.ActivityState:
		return a.State&^coupler.StateIndicationCode != 0
	case device.ActivityReset, device.ActivityReceptionError:
		return true
	}
	return false
}
