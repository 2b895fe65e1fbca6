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

	"github.com/Thermoquad/knxcoupler/internal/config"
	"github.com/Thermoquad/knxcoupler/internal/logging"
	"github.com/Thermoquad/knxcoupler/pkg/coupler"
	"github.com/Thermoquad/knxcoupler/pkg/device"
)

// bus is an open connection wrapped in a coupler
type bus struct {
	link     *coupler.StreamLink
	coupler  *coupler.Coupler
	connInfo string
}

// openBus opens the configured connection and builds a coupler in mode
func openBus(cfg *config.Config, log *logging.Logger, mode coupler.Mode) (*bus, error) {
	conn, connInfo, err := OpenConnection(cfg)
	if err != nil {
		return nil, err
	}

	cc, err := cfg.CouplerConfig(log.With("component", "coupler"))
	if err != nil {
		conn.Close()
		return nil, err
	}
	cc.Mode = mode

	link := coupler.NewStreamLink(conn)
	return &bus{
		link:     link,
		coupler:  coupler.New(link, cc),
		connInfo: connInfo,
	}, nil
}

// Close closes the connection
func (b *bus) Close() error {
	return b.link.Close()
}

// openDevice opens the bus in normal mode and builds a device over the configured objects
func openDevice(cfg *config.Config, log *logging.Logger) (*bus, *device.Device, error) {
	objects, err := cfg.BuildObjects()
	if err != nil {
		return nil, nil, err
	}
	if len(objects) == 0 {
		return nil, nil, errors.New("no objects configured (see the objects section of --config)")
	}

	b, err := openBus(cfg, log, coupler.ModeNormal)
	if err != nil {
		return nil, nil, err
	}
	dev := device.New(b.coupler, objects, device.Options{Logger: log.With("component", "device")})
	return b, dev, nil
}

// runDevice starts dev and runs it until ctx ends or the connection drops
func runDevice(ctx context.Context, b *bus, dev *device.Device) error {
	if err := dev.Begin(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.link.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	err := dev.Run(ctx)
	if linkErr := b.link.Err(); linkErr != nil {
		return fmt.Errorf("connection lost: %w", linkErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// signalContext is cancelled by Ctrl+C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
