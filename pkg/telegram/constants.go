// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telegram implements the KNX TP1 standard-frame telegram.
//
// A telegram is held in a fixed 23-byte buffer laid out exactly as it travels
// on the bus:
//
//	byte 0     control field
//	byte 1-2   source (individual) address
//	byte 3-4   target address (group or individual)
//	byte 5     routing field: multicast flag, routing counter, payload length
//	byte 6-7   command field (TPCI/APCI) with the first 6 payload bits
//	byte 8..   long payload
//	last byte  checksum
package telegram

// Telegram size limits
const (
	HeaderSize     = 6
	PayloadMaxSize = 16
	MinSize        = 9
	MaxSize        = 23

	// Offset between the routing field payload length and the telegram length
	lengthOffset = 8
)

// Control field
const (
	ControlFieldDefault = 0xBC // standard frame, not repeated, normal priority

	controlFieldFrameFormatMask = 0xC0
	controlFieldStandardFormat  = 0x80
	controlFieldRepeatedMask    = 0x20
	controlFieldPriorityMask    = 0x0C
	controlFieldPatternMask     = 0x13
	controlFieldValidPattern    = 0x10
)

// Routing field
const (
	RoutingFieldDefault = 0xE1 // multicast, routing counter 6, payload length 1

	routingFieldMulticastMask = 0x80
	routingFieldCounterMask   = 0x70
	routingFieldLengthMask    = 0x0F
)

// Command field
const (
	commandFieldHighMask     = 0x03
	commandFieldLowMask      = 0xC0
	commandFieldLowDataMask  = 0x3F
	commandFieldPatternMask  = 0xC0
	commandFieldValidPattern = 0x00
)

// Field offsets
const (
	offsetControl  = 0
	offsetSource   = 1
	offsetTarget   = 3
	offsetRouting  = 5
	offsetCommandH = 6
	offsetCommandL = 7
	offsetPayload  = 8
)

// Priority is the bus priority carried in the control field
type Priority byte

// Priorities
const (
	PrioritySystem Priority = 0x00
	PriorityHigh   Priority = 0x04
	PriorityAlarm  Priority = 0x08
	PriorityNormal Priority = 0x0C
)

// Command is the application layer service of a telegram
type Command byte

// Supported commands
const (
	CommandRead        Command = 0x00
	CommandResponse    Command = 0x01
	CommandWrite       Command = 0x02
	CommandMemoryWrite Command = 0x0A
)

// Validity is the result of a telegram validity check
type Validity int

// Validity values, in the order they are checked
const (
	Valid Validity = iota
	InvalidControlField
	UnsupportedFrameFormat
	IncorrectPayloadLength
	InvalidCommandField
	UnknownCommand
	IncorrectChecksum
)
