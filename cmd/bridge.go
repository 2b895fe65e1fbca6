// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/knxcoupler/internal/mqttbridge"
	"github.com/Thermoquad/knxcoupler/pkg/device"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridge the configured objects to an MQTT broker",
	Long: `Run a device with the configured communication objects and mirror them on MQTT.

Every object value change is published, retained, as JSON on
<prefix>/state/<main>/<middle>/<sub>. Messages on
<prefix>/command/<main>/<middle>/<sub> write or read an object:

  {"value": 21.5}     encode with the object's datapoint type and write
  {"raw": "0c1a"}     write raw value bytes
  {"read": true}      send a group read

<prefix>/status carries "online" while connected and "offline" (the last
will) otherwise. Broker settings come from the mqtt section of --config or
the KNXCOUPLER_MQTT_* environment variables.

Press Ctrl+C to stop.`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	b, dev, err := openDevice(cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	mqttLog := logger.With("component", "mqtt")
	client, err := mqttbridge.Connect(cfg.MQTT, mqttLog)
	if err != nil {
		return err
	}
	defer client.Close()

	bridge := mqttbridge.New(dev, client, cfg.MQTT.TopicPrefix, mqttLog)
	if err := bridge.Start(); err != nil {
		return err
	}

	dev.OnActivity(func(a device.Activity) {
		if activityIsError(a) {
			logger.Warn("bus event", "event", formatActivity(dev.Objects(), a))
		} else {
			logger.Debug("bus event", "event", formatActivity(dev.Objects(), a))
		}
	})

	fmt.Printf("knxcoupler - MQTT Bridge\n")
	fmt.Printf("Connection: %s\n", b.connInfo)
	fmt.Printf("Broker: %s | Prefix: %s | Objects: %d\n", cfg.MQTT.Broker, cfg.MQTT.TopicPrefix, len(dev.Objects()))
	fmt.Printf("Press Ctrl+C to stop\n")

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bridgeDone := make(chan error, 1)
	go func() {
		bridgeDone <- bridge.Run(ctx)
	}()

	err = runDevice(ctx, b, dev)
	cancel()
	if bridgeErr := <-bridgeDone; bridgeErr != nil && !errors.Is(bridgeErr, context.Canceled) && err == nil {
		err = bridgeErr
	}
	return err
}
