// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/knxcoupler/internal/config"
	"github.com/Thermoquad/knxcoupler/internal/logging"
	"github.com/Thermoquad/knxcoupler/pkg/capture"
	"github.com/Thermoquad/knxcoupler/pkg/comobject"
	"github.com/Thermoquad/knxcoupler/pkg/coupler"
	"github.com/Thermoquad/knxcoupler/pkg/device"
	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

var replayObjects bool

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Print a recorded capture and optionally run it through the objects",
	Long: `Read a capture file written by monitor --capture and print every packet.

With --objects, the telegrams are also fed to a device holding the configured
communication objects, in capture order and with the recorded timing. The
objects only listen: reads are not answered and nothing is transmitted.
Object updates are printed as they happen, followed by the final object
values and the coupler statistics.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayObjects, "objects", false, "Feed telegrams to the configured objects")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	r, err := capture.NewReader(f)
	if err != nil {
		return err
	}

	fmt.Printf("knxcoupler - Replay\n")
	fmt.Printf("Capture: %s (started %s)\n\n", args[0], r.Created().Format(time.RFC3339))

	var rp *replayer
	if replayObjects {
		if rp, err = newReplayer(cfg, logger, r.Created()); err != nil {
			return err
		}
	}

	frames := 0
	for {
		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		frames++
		fmt.Print(formatFrame(frame))
		if rp != nil {
			if err := rp.feed(frame); err != nil {
				return err
			}
		}
	}

	fmt.Printf("\n%d packets\n", frames)
	if rp != nil {
		rp.report()
	}
	return nil
}

// replayClock follows the capture timestamps
type replayClock struct {
	now time.Time
}

func (c *replayClock) Now() time.Time        { return c.now }
func (c *replayClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

// replayer drives a listen-only device from captured frames
type replayer struct {
	link    *coupler.BufferLink
	clock   *replayClock
	coupler *coupler.Coupler
	dev     *device.Device
	gap     time.Duration
}

func newReplayer(cfg *config.Config, logger *logging.Logger, start time.Time) (*replayer, error) {
	objects, err := cfg.BuildObjects()
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, errors.New("no objects configured (see the objects section of --config)")
	}
	for _, obj := range objects {
		obj.Indicator &^= comobject.FlagRead | comobject.FlagTransmit | comobject.FlagInit
	}

	cc, err := cfg.CouplerConfig(logger.With("component", "coupler"))
	if err != nil {
		return nil, err
	}
	rp := &replayer{
		link:  coupler.NewBufferLink(),
		clock: &replayClock{now: start},
		gap:   cc.EndOfPacketGap,
	}
	if rp.gap <= 0 {
		rp.gap = coupler.DefaultEndOfPacketGap
	}
	cc.Mode = coupler.ModeNormal
	cc.Clock = rp.clock
	rp.coupler = coupler.New(rp.link, cc)
	rp.dev = device.New(rp.coupler, objects, device.Options{
		Clock:  rp.clock,
		Logger: logger.With("component", "device"),
	})

	rp.dev.OnActivity(func(a device.Activity) {
		if a.Kind == device.ActivityReceived {
			fmt.Printf("  -> %s\n", formatActivity(objects, a))
		}
	})

	rp.link.Feed(coupler.ResetIndication)
	if err := rp.dev.Begin(context.Background()); err != nil {
		return nil, err
	}
	rp.link.TakeWritten()
	return rp, nil
}

// feed hands one captured telegram to the device and lets the packet close
func (rp *replayer) feed(f capture.Frame) error {
	if len(f.Data) < telegram.MinSize || !coupler.IsControlField(f.Data[0]) {
		return nil
	}
	if f.Time.After(rp.clock.now) {
		rp.clock.now = f.Time
	}

	ctx := context.Background()
	rp.link.Feed(f.Data...)
	rp.clock.Sleep(time.Millisecond)
	if err := rp.dev.Task(ctx); err != nil {
		return err
	}
	rp.clock.Sleep(rp.gap + time.Millisecond)
	if err := rp.dev.Task(ctx); err != nil {
		return err
	}
	rp.link.TakeWritten()
	return nil
}

func (rp *replayer) report() {
	fmt.Printf("\nObjects:\n")
	for i, obj := range rp.dev.Objects() {
		if !obj.Valid() {
			fmt.Printf("  %-20s %-9s (no value)\n", obj.Name, telegram.FormatGroupAddress(obj.GroupAddress()))
			continue
		}
		raw, _ := rp.dev.Value(i)
		line := fmt.Sprintf("  %-20s %-9s %s", obj.Name, telegram.FormatGroupAddress(obj.GroupAddress()), telegram.FormatHex(raw))
		if v, err := rp.dev.DecodedValue(i); err == nil {
			line += fmt.Sprintf(" (%g)", v)
		}
		fmt.Println(line)
	}
	fmt.Println()
	fmt.Print(rp.coupler.Stats().String())
}
