// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telegram

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// switchOn is a group write of 1 to 1/2/3 from 1.1.5
var switchOn = []byte{0xBC, 0x11, 0x05, 0x0A, 0x03, 0xE1, 0x00, 0x81, 0x3E}

// ============================================================
// Header Field Tests
// ============================================================

func TestNew_Defaults(t *testing.T) {
	tg := New()
	if tg.ControlField() != ControlFieldDefault {
		t.Errorf("control field: expected 0x%02X, got 0x%02X", ControlFieldDefault, tg.ControlField())
	}
	if !tg.IsMulticast() {
		t.Error("default telegram should target a group address")
	}
	if tg.RoutingCounter() != 6 {
		t.Errorf("routing counter: expected 6, got %d", tg.RoutingCounter())
	}
	if tg.PayloadLength() != 1 {
		t.Errorf("payload length: expected 1, got %d", tg.PayloadLength())
	}
	if tg.Length() != MinSize {
		t.Errorf("length: expected %d, got %d", MinSize, tg.Length())
	}
	if tg.Priority() != PriorityNormal {
		t.Errorf("priority: expected normal, got %s", FormatPriority(tg.Priority()))
	}
	if tg.IsRepeated() {
		t.Error("default telegram should not be flagged as repeated")
	}
}

func TestFields_Decode(t *testing.T) {
	tg := FromBytes(switchOn)

	if tg.SourceAddress() != 0x1105 {
		t.Errorf("source: expected 0x1105, got 0x%04X", tg.SourceAddress())
	}
	if tg.TargetAddress() != 0x0A03 {
		t.Errorf("target: expected 0x0A03, got 0x%04X", tg.TargetAddress())
	}
	if tg.Command() != CommandWrite {
		t.Errorf("command: expected WRITE, got %s", FormatCommand(tg.Command()))
	}
	if tg.FirstPayloadByte() != 0x01 {
		t.Errorf("first payload byte: expected 0x01, got 0x%02X", tg.FirstPayloadByte())
	}
	if !bytes.Equal(tg.Bytes(), switchOn) {
		t.Errorf("Bytes: expected % X, got % X", switchOn, tg.Bytes())
	}
}

func TestFields_Setters(t *testing.T) {
	tg := New()
	tg.SetSourceAddress(PhysicalAddress(1, 1, 5))
	tg.SetTargetAddress(GroupAddress(1, 2, 3))
	tg.SetCommand(CommandWrite)
	tg.SetFirstPayloadByte(0x01)
	tg.UpdateChecksum()

	if !bytes.Equal(tg.Bytes(), switchOn) {
		t.Errorf("expected % X, got % X", switchOn, tg.Bytes())
	}
}

func TestSetCommand_KeepsPayloadBits(t *testing.T) {
	commands := []Command{CommandRead, CommandResponse, CommandWrite, CommandMemoryWrite}
	for _, cmd := range commands {
		t.Run(FormatCommand(cmd), func(t *testing.T) {
			tg := New()
			tg.SetFirstPayloadByte(0x2A)
			tg.SetCommand(cmd)
			if tg.Command() != cmd {
				t.Errorf("expected %s, got %s", FormatCommand(cmd), FormatCommand(tg.Command()))
			}
			if tg.FirstPayloadByte() != 0x2A {
				t.Errorf("payload bits changed: 0x%02X", tg.FirstPayloadByte())
			}
		})
	}
}

func TestPriorityAndRepeat(t *testing.T) {
	tg := New()
	tg.SetPriority(PriorityAlarm)
	if tg.Priority() != PriorityAlarm {
		t.Errorf("expected alarm, got %s", FormatPriority(tg.Priority()))
	}
	tg.SetRepeated(true)
	if !tg.IsRepeated() {
		t.Error("expected repeated flag")
	}
	if tg.ControlField() != 0x98 {
		t.Errorf("control field: expected 0x98, got 0x%02X", tg.ControlField())
	}
	tg.SetRepeated(false)
	if tg.ControlField() != 0xB8 {
		t.Errorf("control field: expected 0xB8, got 0x%02X", tg.ControlField())
	}
}

func TestLongPayload_Truncated(t *testing.T) {
	tg := New()
	long := make([]byte, 20)
	for i := range long {
		long[i] = byte(i + 1)
	}
	tg.SetLongPayload(long)
	got := tg.LongPayload(20)
	if len(got) != PayloadMaxSize-2 {
		t.Fatalf("expected %d bytes, got %d", PayloadMaxSize-2, len(got))
	}
	if !bytes.Equal(got, long[:PayloadMaxSize-2]) {
		t.Errorf("payload mismatch: % X", got)
	}

	tg.ClearLongPayload()
	if !bytes.Equal(tg.LongPayload(3), []byte{0, 0, 0}) {
		t.Errorf("expected cleared payload, got % X", tg.LongPayload(3))
	}
}

// ============================================================
// Checksum Tests
// ============================================================

func TestCalculateChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{"empty", []byte{}, 0xFF},
		{"switch on", switchOn[:8], 0x3E},
		{"dimming value", []byte{0xBC, 0x11, 0x05, 0x0A, 0x03, 0xE3, 0x00, 0x80, 0x0C, 0x1A}, 0x2B},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateChecksum(tt.data); got != tt.expected {
				t.Errorf("expected 0x%02X, got 0x%02X", tt.expected, got)
			}
		})
	}
}

func TestChecksum_DetectsCorruption(t *testing.T) {
	tg := FromBytes(switchOn)
	if !tg.IsChecksumCorrect() {
		t.Fatal("reference telegram should have a correct checksum")
	}
	tg.SetByte(4, 0x04)
	if tg.IsChecksumCorrect() {
		t.Error("corrupted telegram should fail the checksum")
	}
	tg.UpdateChecksum()
	if !tg.IsChecksumCorrect() {
		t.Error("UpdateChecksum should repair the checksum")
	}
}

// ============================================================
// Validity Tests
// ============================================================

func TestValidity(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(tg *Telegram)
		expected Validity
	}{
		{"valid", func(tg *Telegram) {}, Valid},
		{"control pattern", func(tg *Telegram) { tg.SetControlField(0xBD) }, InvalidControlField},
		{"extended frame", func(tg *Telegram) { tg.SetControlField(0x3C) }, UnsupportedFrameFormat},
		{"zero payload", func(tg *Telegram) { tg.SetPayloadLength(0) }, IncorrectPayloadLength},
		{"numbered tpci", func(tg *Telegram) { tg.SetByte(6, 0x40) }, InvalidCommandField},
		{"unknown command", func(tg *Telegram) { tg.SetCommand(Command(0x07)) }, UnknownCommand},
		{"checksum", func(tg *Telegram) { tg.SetByte(8, 0x00) }, IncorrectChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg := FromBytes(switchOn)
			tt.mutate(tg)
			if tt.expected != IncorrectChecksum {
				tg.UpdateChecksum()
			}
			if got := tg.Validity(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

// ============================================================
// Address Tests
// ============================================================

func TestAddress_RoundTrip(t *testing.T) {
	tests := []struct {
		text   string
		group  bool
		packed uint16
	}{
		{"1/2/3", true, 0x0A03},
		{"31/7/255", true, 0xFFFF},
		{"0/0/1", true, 0x0001},
		{"1.1.5", false, 0x1105},
		{"15.15.255", false, 0xFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			var got uint16
			var err error
			if tt.group {
				got, err = ParseGroupAddress(tt.text)
			} else {
				got, err = ParseIndividualAddress(tt.text)
			}
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if got != tt.packed {
				t.Errorf("expected 0x%04X, got 0x%04X", tt.packed, got)
			}

			formatted := FormatIndividualAddress(got)
			if tt.group {
				formatted = FormatGroupAddress(got)
			}
			if formatted != tt.text {
				t.Errorf("format: expected %q, got %q", tt.text, formatted)
			}
		})
	}
}

func TestAddress_Invalid(t *testing.T) {
	groups := []string{"", "1/2", "32/0/0", "1/8/0", "1/2/256", "a/b/c"}
	for _, s := range groups {
		if _, err := ParseGroupAddress(s); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("group %q: expected ErrInvalidAddress, got %v", s, err)
		}
	}
	individuals := []string{"1.1", "16.0.0", "0.16.0", "1.1.300"}
	for _, s := range individuals {
		if _, err := ParseIndividualAddress(s); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("individual %q: expected ErrInvalidAddress, got %v", s, err)
		}
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatTelegram(t *testing.T) {
	line := FormatTelegram(FromBytes(switchOn))
	for _, want := range []string{"1.1.5 -> 1/2/3", "WRITE", "prio=normal", "data=0x01"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}
	if strings.Contains(line, "[") {
		t.Errorf("valid telegram should carry no validity marker: %q", line)
	}
}
