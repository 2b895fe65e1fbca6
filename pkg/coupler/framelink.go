// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coupler

import (
	"sync"

	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// TransmitFunc hands one complete telegram to a telegram-accepting chip.
// A nil error means the chip acknowledged the telegram; ErrNoAnswer reports a
// missing confirmation and any other error a negative one.
type TransmitFunc func(t *telegram.Telegram) error

// FrameLink is the Link for couplers that exchange whole telegrams.
//
// Received telegrams are queued with Deliver and surface through ReadByte as
// the same byte sequence a TP-UART would produce. Host services written by
// the coupler are answered locally: a reset request yields a reset
// indication, a state request yields an error-free state indication, and the
// acknowledge services are dropped because the chip decides on its own.
type FrameLink struct {
	transmit TransmitFunc

	mu      sync.Mutex
	queue   []byte
	address uint16
	monitor bool
}

// NewFrameLink creates a FrameLink sending through transmit
func NewFrameLink(transmit TransmitFunc) *FrameLink {
	return &FrameLink{transmit: transmit}
}

// Deliver queues a telegram received by the chip
func (l *FrameLink) Deliver(t *telegram.Telegram) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, t.Bytes()...)
}

// ReadByte returns the next queued byte
func (l *FrameLink) ReadByte() (byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return 0, false
	}
	b := l.queue[0]
	l.queue = l.queue[1:]
	return b, true
}

// Write interprets host services
func (l *FrameLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := 0; i < len(p); i++ {
		switch p[i] {
		case ResetRequest:
			l.queue = append(l.queue, ResetIndication)
			l.monitor = false
		case StateRequest:
			l.queue = append(l.queue, StateIndicationCode)
		case SetAddressRequest:
			if i+2 < len(p) {
				l.address = uint16(p[i+1])<<8 | uint16(p[i+2])
				i += 2
			}
		case ActivateBusMonitor:
			l.monitor = true
		}
	}
	return len(p), nil
}

// TransmitTelegram sends t through the TransmitFunc
func (l *FrameLink) TransmitTelegram(t *telegram.Telegram) error {
	if l.transmit == nil {
		return ErrNoTransmitter
	}
	return l.transmit(t)
}

// Address returns the individual address configured by the coupler
func (l *FrameLink) Address() uint16 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.address
}

// Monitoring reports whether bus monitor mode was requested
func (l *FrameLink) Monitoring() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.monitor
}
