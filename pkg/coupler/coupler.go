// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package coupler implements the host side of a KNX TP-UART bus coupler.
//
// A Coupler runs two independent state machines over one Link: reception
// (address filtering, acknowledge services, completion events) and
// transmission (data services, confirmation tracking). The same engine
// serves byte-streamed TP-UART chips and couplers that take whole telegrams;
// the difference is confined to how an outbound telegram leaves the host.
//
// The coupler owns no goroutine and no timer. The caller drives it:
//
//	c := coupler.New(link, coupler.Config{PhysicalAddress: addr})
//	if err := c.Reset(ctx); err != nil { ... }
//	c.Attach(objects)
//	c.SetEventHandler(onEvent)
//	c.SetAckHandler(onAck)
//	c.Init()
//	for {
//		c.PollRX() // every RXPollPeriod
//		c.PollTX() // every TXPollPeriod
//	}
//
// A Coupler is not safe for concurrent use.
package coupler

import (
	"fmt"
	"time"

	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// Coupler is the protocol engine
type Coupler struct {
	link   Link
	sender sender
	cfg    Config
	clock  Clock
	log    Logger

	objects []ComObject
	table   addressTable

	onEvent func(Event)
	onAck   func(TxOutcome)

	rx    rxContext
	tx    txContext
	state StateIndication
	stats Stats
}

type rxContext struct {
	state    RxState
	frame    telegram.Telegram // telegram being received
	received telegram.Telegram // last complete addressed telegram
	count    int
	length   int // declared length, known once the header is complete
	pending  int // object matched by the telegram in progress
	targeted int // object matched by the last complete telegram
	lastByte time.Time
}

type txContext struct {
	state     TxState
	sent      *telegram.Telegram
	remaining int
	index     int
	sentAt    time.Time
}

// New creates a coupler on link. Both engines start in the RESET state.
func New(link Link, cfg Config) *Coupler {
	cfg = cfg.withDefaults()
	c := &Coupler{
		link:  link,
		cfg:   cfg,
		clock: cfg.Clock,
		log:   cfg.Logger,
	}
	c.sender = newSender(link)
	c.rx.targeted = -1
	c.rx.received.Reset()
	return c
}

// SetEventHandler registers the event handler. Only valid in INIT.
func (c *Coupler) SetEventHandler(fn func(Event)) error {
	if fn == nil {
		return ErrNilHandler
	}
	if c.rx.state != RxInit {
		return ErrNotInitState
	}
	c.onEvent = fn
	return nil
}

// SetAckHandler registers the transmission outcome handler. Only valid in INIT.
func (c *Coupler) SetAckHandler(fn func(TxOutcome)) error {
	if fn == nil {
		return ErrNilHandler
	}
	if c.tx.state != TxInit {
		return ErrNotInitState
	}
	c.onAck = fn
	return nil
}

// Attach indexes the communication objects received telegrams are matched
// against. The list is kept by reference and must outlive the coupler.
// Only valid in INIT; every call replaces the previous table.
func (c *Coupler) Attach(objects []ComObject) error {
	if objects == nil {
		return ErrNilObjects
	}
	if c.rx.state != RxInit {
		return ErrNotInitState
	}
	c.objects = objects
	c.table = buildAddressTable(objects)
	c.log.Debug("address table built", "objects", len(objects), "addresses", len(c.table))
	return nil
}

// FindByAddress returns the index of the object assigned to a group address
func (c *Coupler) FindByAddress(addr uint16) (int, bool) {
	return c.table.find(addr)
}

// ReceivedTelegram returns the last complete addressed telegram.
// The buffer is overwritten by the next reception.
func (c *Coupler) ReceivedTelegram() *telegram.Telegram {
	return &c.rx.received
}

// TargetedObjectIndex returns the object index of the last complete telegram, or -1
func (c *Coupler) TargetedObjectIndex() int {
	return c.rx.targeted
}

// StateIndication returns the last chip state indication
func (c *Coupler) StateIndication() StateIndication {
	return c.state
}

// RxState returns the reception state
func (c *Coupler) RxState() RxState {
	return c.rx.state
}

// TxState returns the transmission state
func (c *Coupler) TxState() TxState {
	return c.tx.state
}

// Mode returns the operating mode
func (c *Coupler) Mode() Mode {
	return c.cfg.Mode
}

// PhysicalAddress returns the individual address of the coupler
func (c *Coupler) PhysicalAddress() uint16 {
	return c.cfg.PhysicalAddress
}

// IsActive reports whether a reception or transmission is in progress
func (c *Coupler) IsActive() bool {
	if c.rx.state > RxIdle {
		return true
	}
	return c.tx.state == TxSending || c.tx.state == TxWaitingAck
}

// Stats returns a snapshot of the coupler counters
func (c *Coupler) Stats() Stats {
	return c.stats
}

func (c *Coupler) emit(e Event) {
	if c.onEvent != nil {
		c.onEvent(e)
	}
}

func (c *Coupler) write(p ...byte) error {
	if _, err := c.link.Write(p); err != nil {
		c.log.Error("link write failed", "bytes", telegram.FormatHex(p), "error", err)
		return fmt.Errorf("coupler: write: %w", err)
	}
	return nil
}
