// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/knxcoupler/pkg/capture"
	"github.com/Thermoquad/knxcoupler/pkg/comobject"
	"github.com/Thermoquad/knxcoupler/pkg/coupler"
	"github.com/Thermoquad/knxcoupler/pkg/device"
	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

var frameTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func groupWrite(value byte) *telegram.Telegram {
	t := telegram.New()
	t.SetSourceAddress(telegram.PhysicalAddress(1, 1, 5))
	t.SetTargetAddress(telegram.GroupAddress(1, 2, 3))
	t.SetCommand(telegram.CommandWrite)
	t.SetFirstPayloadByte(value)
	t.UpdateChecksum()
	return t
}

// ============================================================
// Frame Formatting Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	tg := groupWrite(1).Bytes()

	tests := []struct {
		name     string
		data     []byte
		contains string
	}{
		{"ack", []byte{busAck}, "[12:00:00.000] ACK\n"},
		{"nack", []byte{busNack}, "NACK"},
		{"busy", []byte{busBusy}, "BUSY"},
		{"raw", []byte{0x01, 0x02}, "RAW 01 02"},
		{"telegram", tg, "1.1.5 -> 1/2/3"},
		{"trailing byte", append(append([]byte{}, tg...), 0xCC), "frame carries 10 bytes, telegram declares 9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatFrame(capture.Frame{Time: frameTime, Data: tt.data})
			if !strings.Contains(got, tt.contains) {
				t.Errorf("expected %q in %q", tt.contains, got)
			}
		})
	}
}

// ============================================================
// Value Encoding Tests
// ============================================================

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		dpt     string
		value   string
		want    []byte
		wantErr bool
	}{
		{"1.001", "on", []byte{0x01}, false},
		{"1.001", "off", []byte{0x00}, false},
		{"9.001", "21", []byte{0x0C, 0x1A}, false},
		{"9.001", "warm", nil, true},
		{"99.001", "1", nil, true},
	}

	for _, tt := range tests {
		got, err := encodeValue(tt.dpt, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("encodeValue(%q, %q) error = %v, wantErr %v", tt.dpt, tt.value, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !bytes.Equal(got, tt.want) {
			t.Errorf("encodeValue(%q, %q) = % X, want % X", tt.dpt, tt.value, got, tt.want)
		}
	}
}

// ============================================================
// Activity Formatting Tests
// ============================================================

func TestFormatActivity(t *testing.T) {
	light, err := comobject.New("light", telegram.GroupAddress(1, 2, 3), 1, comobject.FlagCommunication|comobject.FlagWrite)
	if err != nil {
		t.Fatal(err)
	}
	objects := []*comobject.ComObject{light}

	received := formatActivity(objects, device.Activity{Kind: device.ActivityReceived, Telegram: *groupWrite(1), Index: 0})
	if !strings.Contains(received, "RX ") || !strings.Contains(received, "[light]") || !strings.Contains(received, "01") {
		t.Errorf("received: got %q", received)
	}

	sent := formatActivity(objects, device.Activity{Kind: device.ActivitySent, Telegram: *groupWrite(0), Index: 0, Outcome: coupler.NackResponse})
	if !strings.HasPrefix(sent, "TX NACK") {
		t.Errorf("sent: got %q", sent)
	}

	state := formatActivity(objects, device.Activity{Kind: device.ActivityState, Index: -1, State: coupler.StateIndication(0x07)})
	if state != "STATE 0x07 ok" {
		t.Errorf("state: got %q", state)
	}
}

func TestActivityIsError(t *testing.T) {
	tests := []struct {
		name string
		a    device.Activity
		want bool
	}{
		{"received", device.Activity{Kind: device.ActivityReceived}, false},
		{"ack", device.Activity{Kind: device.ActivitySent, Outcome: coupler.AckResponse}, false},
		{"nack", device.Activity{Kind: device.ActivitySent, Outcome: coupler.NackResponse}, true},
		{"clean state", device.Activity{Kind: device.ActivityState, State: 0x07}, false},
		{"temperature warning", device.Activity{Kind: device.ActivityState, State: 0x07 | coupler.StateTemperatureWarning}, true},
		{"reset", device.Activity{Kind: device.ActivityReset}, true},
		{"reception error", device.Activity{Kind: device.ActivityReceptionError}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := activityIsError(tt.a); got != tt.want {
				t.Errorf("activityIsError = %v, want %v", got, tt.want)
			}
		})
	}
}
