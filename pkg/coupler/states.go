// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coupler

import (
	"fmt"
	"strings"
)

// Mode selects normal operation or passive bus monitoring
type Mode int

// Modes
const (
	ModeNormal Mode = iota
	ModeBusMonitor
)

// RxState is the state of the reception engine
type RxState int

// Reception states. Every state above RxIdle means a telegram is in progress.
const (
	RxReset RxState = iota
	RxStopped
	RxInit
	RxIdle
	RxStarted
	RxAddressed
	RxNotAddressed
	RxLengthInvalid
)

// TxState is the state of the transmission engine
type TxState int

// Transmission states
const (
	TxReset TxState = iota
	TxStopped
	TxInit
	TxIdle
	TxSending
	TxWaitingAck
)

// Event is raised through the event handler
type Event int

// Events
const (
	EventReset Event = iota
	EventReceivedTelegram
	EventReceptionError
	EventStateIndication
)

// TxOutcome is the final result of a transmission, delivered to the ack handler
type TxOutcome int

// Transmission outcomes
const (
	AckResponse TxOutcome = iota
	NackResponse
	NoAnswerTimeout
	ResetResponse
)

// StateIndication is the last status byte reported by the chip
type StateIndication byte

// SlaveCollision reports a collision detected while sending
func (s StateIndication) SlaveCollision() bool { return s&StateSlaveCollision != 0 }

// ReceiveError reports a parity or framing error on the serial link
func (s StateIndication) ReceiveError() bool { return s&StateReceiveError != 0 }

// TransmitError reports a bus transmission error
func (s StateIndication) TransmitError() bool { return s&StateTransmitError != 0 }

// ProtocolError reports an invalid host command sequence
func (s StateIndication) ProtocolError() bool { return s&StateProtocolError != 0 }

// TemperatureWarning reports chip overheating
func (s StateIndication) TemperatureWarning() bool { return s&StateTemperatureWarning != 0 }

func (s StateIndication) String() string {
	var flags []string
	if s.SlaveCollision() {
		flags = append(flags, "slave-collision")
	}
	if s.ReceiveError() {
		flags = append(flags, "receive-error")
	}
	if s.TransmitError() {
		flags = append(flags, "transmit-error")
	}
	if s.ProtocolError() {
		flags = append(flags, "protocol-error")
	}
	if s.TemperatureWarning() {
		flags = append(flags, "temperature-warning")
	}
	if len(flags) == 0 {
		return fmt.Sprintf("0x%02X ok", byte(s))
	}
	return fmt.Sprintf("0x%02X %s", byte(s), strings.Join(flags, ","))
}

func (m Mode) String() string {
	if m == ModeBusMonitor {
		return "bus-monitor"
	}
	return "normal"
}

func (s RxState) String() string {
	switch s {
	case RxReset:
		return "RESET"
	case RxStopped:
		return "STOPPED"
	case RxInit:
		return "INIT"
	case RxIdle:
		return "IDLE"
	case RxStarted:
		return "RECEPTION_STARTED"
	case RxAddressed:
		return "RECEPTION_ADDRESSED"
	case RxNotAddressed:
		return "RECEPTION_NOT_ADDRESSED"
	case RxLengthInvalid:
		return "RECEPTION_LENGTH_INVALID"
	}
	return fmt.Sprintf("RxState(%d)", int(s))
}

func (s TxState) String() string {
	switch s {
	case TxReset:
		return "RESET"
	case TxStopped:
		return "STOPPED"
	case TxInit:
		return "INIT"
	case TxIdle:
		return "IDLE"
	case TxSending:
		return "TELEGRAM_SENDING_ONGOING"
	case TxWaitingAck:
		return "WAITING_ACK"
	}
	return fmt.Sprintf("TxState(%d)", int(s))
}

func (e Event) String() string {
	switch e {
	case EventReset:
		return "RESET"
	case EventReceivedTelegram:
		return "RECEIVED_TELEGRAM"
	case EventReceptionError:
		return "RECEPTION_ERROR"
	case EventStateIndication:
		return "STATE_INDICATION"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

func (o TxOutcome) String() string {
	switch o {
	case AckResponse:
		return "ACK"
	case NackResponse:
		return "NACK"
	case NoAnswerTimeout:
		return "NO_ANSWER_TIMEOUT"
	case ResetResponse:
		return "BUSCOUPLER_RESET"
	}
	return fmt.Sprintf("TxOutcome(%d)", int(o))
}
