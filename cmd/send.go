// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/knxcoupler/internal/config"
	"github.com/Thermoquad/knxcoupler/pkg/comobject"
	"github.com/Thermoquad/knxcoupler/pkg/coupler"
	"github.com/Thermoquad/knxcoupler/pkg/device"
	"github.com/Thermoquad/knxcoupler/pkg/dpt"
	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

var (
	sendDPT     string
	sendRaw     string
	sendRead    bool
	sendTimeout int
)

var sendCmd = &cobra.Command{
	Use:   "send <group-address> [value]",
	Short: "Send one group write or read and report the outcome",
	Long: `Send a group write (or, with --read, a group read) and wait for the outcome.

The value is encoded with the datapoint type of the matching configured
object, or with --dpt. Booleans accept on/off and true/false. --raw sends
hex value bytes as-is.

For a read, the command also waits for the response telegram and prints the
value.

Exit codes:
  0 - Acknowledged (and answered, for a read)
  1 - Negative acknowledge, no answer or timeout
  2 - Connection or usage error

Examples:
  knxcoupler send 1/2/3 on --dpt 1.001 -p /dev/ttyUSB0
  knxcoupler send 3/0/10 21.5 --dpt 9.001 -p /dev/ttyUSB0
  knxcoupler send 3/0/10 --read -c knxcoupler.yaml`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendDPT, "dpt", "", "Datapoint type of the value (e.g. 1.001, 9.001)")
	sendCmd.Flags().StringVar(&sendRaw, "raw", "", "Raw value bytes in hex")
	sendCmd.Flags().BoolVar(&sendRead, "read", false, "Send a group read instead of a write")
	sendCmd.Flags().IntVar(&sendTimeout, "timeout", 5, "Timeout in seconds to wait for the outcome")
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	obj, raw, err := sendRequest(cfg, args)
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

	fmt.Printf("knxcoupler - Send\n")
	fmt.Printf("Connection: %s\n", b.connInfo)

	ctx, stop := signalContext()
	defer stop()

	dev := device.New(b.coupler, []*comobject.ComObject{obj}, device.Options{Logger: logger.With("component", "device")})
	sent := make(chan coupler.TxOutcome, 1)
	answered := make(chan telegram.Telegram, 1)
	dev.OnActivity(func(a device.Activity) {
		switch {
		case a.Kind == device.ActivitySent:
			select {
			case sent <- a.Outcome:
			default:
			}
		case a.Kind == device.ActivityReceived && a.Telegram.Command() == telegram.CommandResponse:
			select {
			case answered <- a.Telegram:
			default:
			}
		}
	})

	if err := dev.Begin(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Bus coupler error: %v\n", err)
		os.Exit(2)
	}

	if sendRead {
		err = dev.Update(0)
		fmt.Printf("Reading %s...\n", telegram.FormatGroupAddress(obj.Address))
	} else {
		err = dev.Write(0, raw)
		fmt.Printf("Writing %s to %s...\n", telegram.FormatHex(raw), telegram.FormatGroupAddress(obj.Address))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go dev.Run(runCtx)

	timeout := time.After(time.Duration(sendTimeout) * time.Second)
	select {
	case outcome := <-sent:
		if outcome != coupler.AckResponse {
			fmt.Fprintf(os.Stderr, "FAILED: %s\n", outcome)
			os.Exit(1)
		}
		fmt.Printf("SUCCESS: acknowledged\n")

	case <-b.link.Done():
		fmt.Fprintf(os.Stderr, "Read error: %v\n", b.link.Err())
		os.Exit(2)

	case <-ctx.Done():
		os.Exit(2)

	case <-timeout:
		fmt.Fprintf(os.Stderr, "TIMEOUT: no outcome within %d seconds\n", sendTimeout)
		os.Exit(1)
	}

	if !sendRead {
		os.Exit(0)
	}

	select {
	case t := <-answered:
		fmt.Printf("Response from %s: %s\n", telegram.FormatIndividualAddress(t.SourceAddress()), describeValue(obj, &t))
		os.Exit(0)
	case <-timeout:
		fmt.Fprintf(os.Stderr, "TIMEOUT: no response within %d seconds\n", sendTimeout)
		os.Exit(1)
	}
	return nil
}

// sendRequest resolves the target object and, for writes, the raw value
func sendRequest(cfg *config.Config, args []string) (*comobject.ComObject, []byte, error) {
	addr, err := telegram.ParseGroupAddress(args[0])
	if err != nil {
		return nil, nil, err
	}

	obj, err := sendObject(cfg, addr)
	if err != nil {
		return nil, nil, err
	}

	if sendRead {
		return obj, nil, nil
	}

	var raw []byte
	switch {
	case sendRaw != "":
		if raw, err = hex.DecodeString(sendRaw); err != nil {
			return nil, nil, fmt.Errorf("--raw: %w", err)
		}
	case len(args) == 2:
		if obj.DPT == "" {
			return nil, nil, errors.New("no datapoint type for this address (use --dpt or --raw)")
		}
		if raw, err = encodeValue(obj.DPT, args[1]); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, errors.New("a value, --raw or --read is required")
	}

	if want := len(obj.Value()); len(raw) != want {
		return nil, nil, fmt.Errorf("%s expects %d value bytes, got %d", telegram.FormatGroupAddress(addr), want, len(raw))
	}
	return obj, raw, nil
}

// sendObject builds a transmitting object for addr from the configuration or the flags
func sendObject(cfg *config.Config, addr uint16) (*comobject.ComObject, error) {
	oc := config.ObjectConfig{Name: "send", Address: telegram.FormatGroupAddress(addr)}
	for _, o := range cfg.Objects {
		if a, err := telegram.ParseGroupAddress(o.Address); err == nil && a == addr {
			oc = o
			break
		}
	}
	if sendDPT != "" {
		oc.DPT = sendDPT
		oc.Length = 0
	}
	if oc.DPT == "" && oc.Length == 0 && sendRaw != "" {
		oc.Length = len(sendRaw)/2 + 1
	}

	obj, err := oc.Build()
	if err != nil {
		return nil, err
	}
	obj.Indicator = comobject.FlagCommunication | comobject.FlagTransmit | comobject.FlagUpdate
	return obj, nil
}

// encodeValue parses a command line value for a datapoint type
func encodeValue(id, s string) ([]byte, error) {
	format, err := dpt.Parse(id)
	if err != nil {
		return nil, err
	}

	var v float64
	switch strings.ToLower(s) {
	case "on", "true":
		v = 1
	case "off", "false":
		v = 0
	default:
		if v, err = strconv.ParseFloat(s, 64); err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", s, err)
		}
	}
	return dpt.Encode(format, v)
}

// describeValue renders the value carried by t for obj
func describeValue(obj *comobject.ComObject, t *telegram.Telegram) string {
	var raw []byte
	if obj.Length <= 1 {
		raw = []byte{t.FirstPayloadByte()}
	} else {
		raw = t.LongPayload(obj.Length - 1)
	}

	text := telegram.FormatHex(raw)
	if format, err := dpt.Parse(obj.DPT); err == nil {
		if v, err := dpt.Decode(format, raw); err == nil {
			text += fmt.Sprintf(" (%s = %g)", obj.DPT, v)
		}
	}
	return text
}
