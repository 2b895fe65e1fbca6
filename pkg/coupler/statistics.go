// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coupler

import (
	"fmt"
	"strings"
)

// Stats counts what the engines have seen since the coupler was created
type Stats struct {
	// Reception
	TelegramsReceived uint64
	ReceptionErrors   uint64
	NotAddressed      uint64
	LengthInvalid     uint64
	Anomalies         uint64 // unexpected bytes, truncated headers, stray confirmations, lost acknowledges

	// Transmission
	TelegramsSent  uint64
	Acks           uint64
	Nacks          uint64
	Timeouts       uint64
	ResetResponses uint64

	// Chip
	ChipResets       uint64
	StateIndications uint64

	// Bus monitor
	MonitorBytes   uint64
	MonitorPackets uint64
}

// String returns a formatted summary. Zero error counters are omitted.
func (s Stats) String() string {
	var b strings.Builder

	b.WriteString("=== Coupler Statistics ===\n")
	fmt.Fprintf(&b, "Received:        %8d\n", s.TelegramsReceived)
	if s.ReceptionErrors > 0 {
		fmt.Fprintf(&b, "Reception Errors:%8d\n", s.ReceptionErrors)
	}
	fmt.Fprintf(&b, "Not Addressed:   %8d\n", s.NotAddressed)
	if s.LengthInvalid > 0 {
		fmt.Fprintf(&b, "Length Invalid:  %8d\n", s.LengthInvalid)
	}
	if s.Anomalies > 0 {
		fmt.Fprintf(&b, "Anomalies:       %8d\n", s.Anomalies)
	}

	fmt.Fprintf(&b, "Sent:            %8d\n", s.TelegramsSent)
	if s.TelegramsSent > 0 {
		fmt.Fprintf(&b, "  ACK:              %5d\n", s.Acks)
		if s.Nacks > 0 {
			fmt.Fprintf(&b, "  NACK:             %5d\n", s.Nacks)
		}
		if s.Timeouts > 0 {
			fmt.Fprintf(&b, "  No Answer:        %5d\n", s.Timeouts)
		}
		if s.ResetResponses > 0 {
			fmt.Fprintf(&b, "  Aborted by Reset: %5d\n", s.ResetResponses)
		}
	}

	if s.ChipResets > 0 {
		fmt.Fprintf(&b, "Chip Resets:     %8d\n", s.ChipResets)
	}
	if s.StateIndications > 0 {
		fmt.Fprintf(&b, "State Reports:   %8d\n", s.StateIndications)
	}
	if s.MonitorBytes > 0 {
		fmt.Fprintf(&b, "Monitor Bytes:   %8d (%d packets)\n", s.MonitorBytes, s.MonitorPackets)
	}
	b.WriteString("==========================\n")

	return b.String()
}
