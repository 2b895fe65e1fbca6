// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqttbridge mirrors communication objects onto an MQTT broker.
//
// Every value the bus changes is published retained to
// <prefix>/state/<main>/<middle>/<sub> as JSON. Commands published to
// <prefix>/command/<main>/<middle>/<sub> write or read the object:
//
//	{"value": 21.5}   encode with the object's datapoint type and write
//	{"raw": "0c1a"}   write raw value bytes
//	{"read": true}    send a read request to the bus
package mqttbridge

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Thermoquad/knxcoupler/pkg/comobject"
	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// pendingSize bounds the state publications waiting for the broker
const pendingSize = 64

// Device is the object store the bridge drives. *device.Device satisfies it.
type Device interface {
	Objects() []*comobject.ComObject
	Index(addr uint16) (int, bool)
	Write(index int, raw []byte) error
	WriteValue(index int, v float64) error
	Update(index int) error
	Value(index int) ([]byte, error)
	DecodedValue(index int) (float64, error)
	OnUpdate(fn func(index int))
}

// Broker is the MQTT side. *Client satisfies it.
type Broker interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler MessageHandler) error
}

// StatePayload is published for every object update
type StatePayload struct {
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	DPT       string   `json:"dpt,omitempty"`
	Raw       string   `json:"raw"`
	Value     *float64 `json:"value,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// CommandPayload is accepted on command topics. Exactly one field is used,
// in the order read, raw, value.
type CommandPayload struct {
	Value *float64 `json:"value,omitempty"`
	Raw   string   `json:"raw,omitempty"`
	Read  bool     `json:"read,omitempty"`
}

// Bridge connects a device to a broker
type Bridge struct {
	dev     Device
	broker  Broker
	topics  Topics
	log     Logger
	now     func() time.Time
	pending chan int
	dropped int
}

// New creates a bridge publishing below prefix
func New(dev Device, broker Broker, prefix string, log Logger) *Bridge {
	return &Bridge{
		dev:     dev,
		broker:  broker,
		topics:  Topics{Prefix: prefix},
		log:     log,
		now:     time.Now,
		pending: make(chan int, pendingSize),
	}
}

// Start subscribes to the command topics and hooks the device updates.
// Publications happen in Run.
func (b *Bridge) Start() error {
	if err := b.broker.Subscribe(b.topics.AllCommands(), b.HandleCommand); err != nil {
		return err
	}
	b.dev.OnUpdate(b.notify)
	return nil
}

// Run publishes queued object updates until ctx ends
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case index := <-b.pending:
			if err := b.PublishState(index); err != nil {
				b.log.Warn("state publish failed", "object", index, "error", err)
			}
		}
	}
}

// notify runs on the device loop and must not block it
func (b *Bridge) notify(index int) {
	select {
	case b.pending <- index:
	default:
		b.dropped++
		b.log.Warn("state publish queue full, update dropped", "object", index, "dropped", b.dropped)
	}
}

// PublishState publishes the current value of one object
func (b *Bridge) PublishState(index int) error {
	objects := b.dev.Objects()
	if index < 0 || index >= len(objects) {
		return fmt.Errorf("object index %d out of range", index)
	}
	obj := objects[index]

	raw, err := b.dev.Value(index)
	if err != nil {
		return err
	}
	state := StatePayload{
		Name:      obj.Name,
		Address:   telegram.FormatGroupAddress(obj.Address),
		DPT:       obj.DPT,
		Raw:       hex.EncodeToString(raw),
		Timestamp: b.now().UTC().Format(time.RFC3339Nano),
	}
	if obj.DPT != "" {
		if v, err := b.dev.DecodedValue(index); err == nil {
			state.Value = &v
		}
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	return b.broker.Publish(b.topics.State(obj.Address), payload, true)
}

// HandleCommand applies a command message to the addressed object
func (b *Bridge) HandleCommand(topic string, payload []byte) error {
	addr, err := b.topics.ParseCommand(topic)
	if err != nil {
		return err
	}
	index, ok := b.dev.Index(addr)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownObject, telegram.FormatGroupAddress(addr))
	}

	var cmd CommandPayload
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	switch {
	case cmd.Read:
		err = b.dev.Update(index)
	case cmd.Raw != "":
		var raw []byte
		if raw, err = hex.DecodeString(cmd.Raw); err != nil {
			return fmt.Errorf("%w: raw: %w", ErrInvalidCommand, err)
		}
		err = b.dev.Write(index, raw)
	case cmd.Value != nil:
		err = b.dev.WriteValue(index, *cmd.Value)
	default:
		return fmt.Errorf("%w: no read, raw or value field", ErrInvalidCommand)
	}
	if err != nil {
		return err
	}

	b.log.Debug("mqtt command queued", "topic", topic)
	return nil
}
