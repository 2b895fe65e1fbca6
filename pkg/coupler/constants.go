// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coupler

import "time"

// Host to chip services
const (
	ResetRequest             = 0x01
	StateRequest             = 0x02
	SetAddressRequest        = 0x28 // followed by address high and low byte
	ActivateBusMonitor       = 0x05
	DataStartContinueRequest = 0x80 // OR'ed with the byte index
	DataEndRequest           = 0x40 // OR'ed with the byte index
	AckAddressed             = 0x11
	AckNotAddressed          = 0x10
)

// Chip to host services
const (
	ResetIndication     = 0x03
	DataConfirmSuccess  = 0x8B
	DataConfirmFailed   = 0x0B
	StateIndicationCode = 0x07

	stateIndicationMask = 0x07
)

// Incoming control field: standard frame, priority and repeat bits free
const (
	ControlFieldMask    = 0xD3
	ControlFieldPattern = 0x90
)

// State indication flags
const (
	StateSlaveCollision     = 0x80
	StateReceiveError       = 0x40
	StateTransmitError      = 0x20
	StateProtocolError      = 0x10
	StateTemperatureWarning = 0x08
)

// Timing
const (
	DefaultResetTimeout   = time.Second
	DefaultResetAttempts  = 10
	DefaultAckTimeout     = 500 * time.Millisecond
	DefaultEndOfPacketGap = 2 * time.Millisecond

	// Cadence expected from the caller
	RXPollPeriod = 400 * time.Microsecond
	TXPollPeriod = 800 * time.Microsecond

	resetPollInterval = time.Millisecond
)

// IsControlField reports whether b opens a standard-frame telegram
func IsControlField(b byte) bool {
	return b&ControlFieldMask == ControlFieldPattern
}

// IsStateIndication reports whether b is a chip state indication
func IsStateIndication(b byte) bool {
	return b&stateIndicationMask == StateIndicationCode
}
