// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telegram

import (
	"fmt"
	"strings"
)

// FormatTelegram formats a telegram into a single human-readable line
func FormatTelegram(t *Telegram) string {
	target := FormatIndividualAddress(t.TargetAddress())
	if t.IsMulticast() {
		target = FormatGroupAddress(t.TargetAddress())
	}

	repeated := ""
	if t.IsRepeated() {
		repeated = " repeated"
	}

	result := fmt.Sprintf("%s -> %s %s prio=%s hops=%d len=%d%s",
		FormatIndividualAddress(t.SourceAddress()), target,
		FormatCommand(t.Command()), FormatPriority(t.Priority()),
		t.RoutingCounter(), t.Length(), repeated)

	if t.PayloadLength() <= 1 {
		result += fmt.Sprintf(" data=0x%02X", t.FirstPayloadByte())
	} else {
		result += " data=" + FormatHex(t.LongPayload(t.PayloadLength()-1))
	}

	if v := t.Validity(); v != Valid {
		result += fmt.Sprintf(" [%s]", v)
	}
	return result
}

// FormatCommand returns the name of a command
func FormatCommand(c Command) string {
	switch c {
	case CommandRead:
		return "READ"
	case CommandResponse:
		return "RESPONSE"
	case CommandWrite:
		return "WRITE"
	case CommandMemoryWrite:
		return "MEMORY_WRITE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%X)", byte(c))
	}
}

// FormatPriority returns the name of a priority
func FormatPriority(p Priority) string {
	switch p {
	case PrioritySystem:
		return "system"
	case PriorityHigh:
		return "high"
	case PriorityAlarm:
		return "alarm"
	default:
		return "normal"
	}
}

// ParsePriority maps a priority name back to its value
func ParsePriority(s string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system":
		return PrioritySystem, true
	case "high":
		return PriorityHigh, true
	case "alarm":
		return PriorityAlarm, true
	case "", "normal", "low":
		return PriorityNormal, true
	}
	return PriorityNormal, false
}

// FormatHex renders bytes as space separated hex
func FormatHex(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}
