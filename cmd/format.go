// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/knxcoupler/pkg/capture"
	"github.com/Thermoquad/knxcoupler/pkg/coupler"
	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// Layer 2 acknowledge characters seen by a bus monitor
const (
	busAck  = 0xCC
	busNack = 0x0C
	busBusy = 0xC0
)

// formatFrame renders one monitored bus packet
func formatFrame(f capture.Frame) string {
	timestamp := f.Time.Format("15:04:05.000")

	if len(f.Data) == 1 {
		switch f.Data[0] {
		case busAck:
			return fmt.Sprintf("[%s] ACK\n", timestamp)
		case busNack:
			return fmt.Sprintf("[%s] NACK\n", timestamp)
		case busBusy:
			return fmt.Sprintf("[%s] BUSY\n", timestamp)
		}
	}

	if len(f.Data) >= telegram.MinSize && coupler.IsControlField(f.Data[0]) {
		t := telegram.FromBytes(f.Data)
		line := fmt.Sprintf("[%s] %s\n", timestamp, telegram.FormatTelegram(t))
		if t.Length() != len(f.Data) {
			line += fmt.Sprintf("  (frame carries %d bytes, telegram declares %d)\n", len(f.Data), t.Length())
		}
		return line
	}

	return fmt.Sprintf("[%s] RAW %s\n", timestamp, telegram.FormatHex(f.Data))
}
