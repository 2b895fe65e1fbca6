// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/knxcoupler/pkg/comobject"
	"github.com/Thermoquad/knxcoupler/pkg/device"
	"github.com/Thermoquad/knxcoupler/pkg/dpt"
	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

var (
	_ Device = (*device.Device)(nil)
	_ Broker = (*Client)(nil)
)

var testTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// ============================================================
// Fakes
// ============================================================

type message struct {
	topic    string
	payload  []byte
	retained bool
}

type fakeBroker struct {
	mu         sync.Mutex
	published  []message
	handlers   map[string]MessageHandler
	publishErr error
	sent       chan message
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]MessageHandler), sent: make(chan message, 16)}
}

func (f *fakeBroker) Publish(topic string, payload []byte, retained bool) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	m := message{topic, payload, retained}
	f.mu.Lock()
	f.published = append(f.published, m)
	f.mu.Unlock()
	f.sent <- m
	return nil
}

func (f *fakeBroker) Subscribe(topic string, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

type call struct {
	op    string
	index int
	raw   []byte
	value float64
}

type fakeDevice struct {
	objects  []*comobject.ComObject
	calls    []call
	onUpdate func(int)
	writeErr error
}

func (f *fakeDevice) Objects() []*comobject.ComObject { return f.objects }

func (f *fakeDevice) Index(addr uint16) (int, bool) {
	for i, o := range f.objects {
		if o.Address == addr {
			return i, true
		}
	}
	return -1, false
}

func (f *fakeDevice) Write(index int, raw []byte) error {
	f.calls = append(f.calls, call{op: "write", index: index, raw: raw})
	return f.writeErr
}

func (f *fakeDevice) WriteValue(index int, v float64) error {
	f.calls = append(f.calls, call{op: "value", index: index, value: v})
	return f.writeErr
}

func (f *fakeDevice) Update(index int) error {
	f.calls = append(f.calls, call{op: "read", index: index})
	return nil
}

func (f *fakeDevice) Value(index int) ([]byte, error) { return f.objects[index].Value(), nil }

func (f *fakeDevice) DecodedValue(index int) (float64, error) {
	format, err := dpt.Parse(f.objects[index].DPT)
	if err != nil {
		return 0, err
	}
	return dpt.Decode(format, f.objects[index].Value())
}

func (f *fakeDevice) OnUpdate(fn func(int)) { f.onUpdate = fn }

func newTestBridge(t *testing.T) (*Bridge, *fakeDevice, *fakeBroker) {
	t.Helper()

	light, err := comobject.New("light", telegram.GroupAddress(1, 2, 3), 1, comobject.FlagCommunication|comobject.FlagWrite)
	if err != nil {
		t.Fatal(err)
	}
	light.DPT = "1.001"
	temp, err := comobject.New("temperature", telegram.GroupAddress(3, 0, 10), 3, comobject.FlagCommunication)
	if err != nil {
		t.Fatal(err)
	}
	temp.DPT = "9.001"
	raw, err := comobject.New("raw", telegram.GroupAddress(0, 0, 1), 3, comobject.FlagCommunication)
	if err != nil {
		t.Fatal(err)
	}

	dev := &fakeDevice{objects: []*comobject.ComObject{light, temp, raw}}
	broker := newFakeBroker()
	b := New(dev, broker, "knx", slog.New(slog.DiscardHandler))
	b.now = func() time.Time { return testTime }
	if err := b.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return b, dev, broker
}

// ============================================================
// Topic Tests
// ============================================================

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "home/knx"}
	addr := telegram.GroupAddress(1, 2, 3)

	if got := topics.State(addr); got != "home/knx/state/1/2/3" {
		t.Errorf("State: got %q", got)
	}
	if got := topics.Command(addr); got != "home/knx/command/1/2/3" {
		t.Errorf("Command: got %q", got)
	}
	if got := topics.AllCommands(); got != "home/knx/command/#" {
		t.Errorf("AllCommands: got %q", got)
	}

	parsed, err := topics.ParseCommand("home/knx/command/1/2/3")
	if err != nil || parsed != addr {
		t.Errorf("ParseCommand: got 0x%04X, %v", parsed, err)
	}
	if _, err := topics.ParseCommand("home/knx/state/1/2/3"); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("state topic should not parse as a command, got %v", err)
	}
	if _, err := topics.ParseCommand("home/knx/command/1/2"); !errors.Is(err, telegram.ErrInvalidAddress) {
		t.Errorf("short address: got %v", err)
	}
}

// ============================================================
// Command Tests
// ============================================================

func TestBridge_SubscribesToCommands(t *testing.T) {
	_, dev, broker := newTestBridge(t)
	if _, ok := broker.handlers["knx/command/#"]; !ok {
		t.Errorf("expected a command subscription, got %v", broker.handlers)
	}
	if dev.onUpdate == nil {
		t.Error("expected the bridge to hook device updates")
	}
}

func TestBridge_HandleCommand(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    call
	}{
		{"value", "knx/command/3/0/10", `{"value": 21}`, call{op: "value", index: 1, value: 21}},
		{"raw", "knx/command/0/0/1", `{"raw": "0c1a"}`, call{op: "write", index: 2, raw: []byte{0x0C, 0x1A}}},
		{"read", "knx/command/1/2/3", `{"read": true}`, call{op: "read", index: 0}},
		{"read wins", "knx/command/1/2/3", `{"read": true, "value": 1}`, call{op: "read", index: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, dev, _ := newTestBridge(t)
			if err := b.HandleCommand(tt.topic, []byte(tt.payload)); err != nil {
				t.Fatalf("HandleCommand failed: %v", err)
			}
			if len(dev.calls) != 1 {
				t.Fatalf("expected one device call, got %v", dev.calls)
			}
			got := dev.calls[0]
			if got.op != tt.want.op || got.index != tt.want.index || got.value != tt.want.value ||
				string(got.raw) != string(tt.want.raw) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBridge_HandleCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		wantErr error
	}{
		{"unknown object", "knx/command/7/7/7", `{"read": true}`, ErrUnknownObject},
		{"not json", "knx/command/1/2/3", `on`, ErrInvalidCommand},
		{"empty command", "knx/command/1/2/3", `{}`, ErrInvalidCommand},
		{"bad hex", "knx/command/0/0/1", `{"raw": "zz"}`, ErrInvalidCommand},
		{"foreign topic", "other/command/1/2/3", `{"read": true}`, ErrInvalidTopic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, dev, _ := newTestBridge(t)
			err := b.HandleCommand(tt.topic, []byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if len(dev.calls) != 0 {
				t.Errorf("device should not be called, got %v", dev.calls)
			}
		})
	}
}

func TestBridge_HandleCommandDeviceError(t *testing.T) {
	b, dev, _ := newTestBridge(t)
	dev.writeErr = device.ErrQueueFull

	err := b.HandleCommand("knx/command/3/0/10", []byte(`{"value": 1}`))
	if !errors.Is(err, device.ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

// ============================================================
// State Tests
// ============================================================

func TestBridge_PublishState(t *testing.T) {
	b, dev, broker := newTestBridge(t)
	if err := dev.objects[1].SetValue([]byte{0x0C, 0x1A}); err != nil {
		t.Fatal(err)
	}

	if err := b.PublishState(1); err != nil {
		t.Fatalf("PublishState failed: %v", err)
	}

	m := <-broker.sent
	if m.topic != "knx/state/3/0/10" {
		t.Errorf("topic: got %q", m.topic)
	}
	if !m.retained {
		t.Error("state should be retained")
	}

	var state StatePayload
	if err := json.Unmarshal(m.payload, &state); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if state.Name != "temperature" || state.Address != "3/0/10" || state.DPT != "9.001" {
		t.Errorf("unexpected identity: %+v", state)
	}
	if state.Raw != "0c1a" {
		t.Errorf("raw: got %q", state.Raw)
	}
	if state.Value == nil || *state.Value != 21 {
		t.Errorf("value: got %v", state.Value)
	}
	if state.Timestamp != "2025-03-01T12:00:00Z" {
		t.Errorf("timestamp: got %q", state.Timestamp)
	}
}

func TestBridge_PublishStateWithoutDPT(t *testing.T) {
	b, _, broker := newTestBridge(t)

	if err := b.PublishState(2); err != nil {
		t.Fatalf("PublishState failed: %v", err)
	}
	var state StatePayload
	if err := json.Unmarshal((<-broker.sent).payload, &state); err != nil {
		t.Fatal(err)
	}
	if state.Value != nil {
		t.Errorf("objects without a datapoint type carry no value, got %v", *state.Value)
	}
	if state.Raw != "0000" {
		t.Errorf("raw: got %q", state.Raw)
	}
}

func TestBridge_PublishStateOutOfRange(t *testing.T) {
	b, _, _ := newTestBridge(t)
	if err := b.PublishState(3); err == nil {
		t.Error("expected an error for an index past the object list")
	}
}

func TestBridge_RunPublishesUpdates(t *testing.T) {
	b, dev, broker := newTestBridge(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	dev.onUpdate(0)

	select {
	case m := <-broker.sent:
		if m.topic != "knx/state/1/2/3" {
			t.Errorf("topic: got %q", m.topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("update was not published")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBridge_NotifyDropsWhenFull(t *testing.T) {
	b, dev, _ := newTestBridge(t)

	for i := 0; i < pendingSize+3; i++ {
		dev.onUpdate(0)
	}
	if b.dropped != 3 {
		t.Errorf("expected 3 dropped updates, got %d", b.dropped)
	}
}
