// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package comobject models KNX communication objects: a group address, the
// indicator flags that decide how the object reacts to bus traffic, and the
// last known value in bus encoding.
package comobject

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// Indicator flags
const (
	FlagCommunication byte = 0x20 // C: the object takes part in bus traffic
	FlagRead          byte = 0x10 // R: answers read requests
	FlagWrite         byte = 0x08 // W: accepts write telegrams
	FlagTransmit      byte = 0x04 // T: transmits local writes
	FlagUpdate        byte = 0x02 // U: accepts read responses
	FlagInit          byte = 0x01 // I: read from the bus at start-up
)

// MaxLength is the longest value a standard frame can carry: 14 payload bytes plus the command byte
const MaxLength = telegram.PayloadMaxSize - 1

var (
	// ErrInvalidLength is returned for a value length outside 1-15
	ErrInvalidLength = errors.New("comobject: invalid length")

	// ErrInvalidFlags is returned when an indicator string contains an unknown letter
	ErrInvalidFlags = errors.New("comobject: invalid indicator flags")

	// ErrValueSize is returned when a raw value does not match the object length
	ErrValueSize = errors.New("comobject: value size mismatch")
)

// ComObject is a KNX communication object.
//
// Length follows the routing field convention: a length of 1 packs up to
// 6 bits into the command field, a length of n > 1 carries n-1 bytes.
type ComObject struct {
	Name      string
	Address   uint16
	DPT       string
	Length    int
	Indicator byte
	Priority  telegram.Priority

	value []byte
	valid bool
}

// New creates a communication object. The value starts zeroed and invalid.
func New(name string, addr uint16, length int, indicator byte) (*ComObject, error) {
	if length < 1 || length > MaxLength {
		return nil, fmt.Errorf("%w: %d (valid: 1-%d)", ErrInvalidLength, length, MaxLength)
	}
	return &ComObject{
		Name:      name,
		Address:   addr,
		Length:    length,
		Indicator: indicator,
		Priority:  telegram.PriorityNormal,
		value:     make([]byte, valueSize(length)),
	}, nil
}

func valueSize(length int) int {
	if length <= 1 {
		return 1
	}
	return length - 1
}

// ParseIndicator converts a flag string such as "CRWTU" into indicator bits
func ParseIndicator(s string) (byte, error) {
	var flags byte
	for _, r := range strings.ToUpper(s) {
		switch r {
		case 'C':
			flags |= FlagCommunication
		case 'R':
			flags |= FlagRead
		case 'W':
			flags |= FlagWrite
		case 'T':
			flags |= FlagTransmit
		case 'U':
			flags |= FlagUpdate
		case 'I':
			flags |= FlagInit
		case ' ', '-':
		default:
			return 0, fmt.Errorf("%w: %q in %q", ErrInvalidFlags, r, s)
		}
	}
	return flags, nil
}

// FormatIndicator renders indicator bits using the CRWTUI letters
func FormatIndicator(flags byte) string {
	letters := []struct {
		flag byte
		r    byte
	}{
		{FlagCommunication, 'C'}, {FlagRead, 'R'}, {FlagWrite, 'W'},
		{FlagTransmit, 'T'}, {FlagUpdate, 'U'}, {FlagInit, 'I'},
	}
	out := make([]byte, 0, len(letters))
	for _, l := range letters {
		if flags&l.flag != 0 {
			out = append(out, l.r)
		} else {
			out = append(out, '-')
		}
	}
	return string(out)
}

// Has reports whether every bit of flag is set
func (c *ComObject) Has(flag byte) bool {
	return c.Indicator&flag == flag
}

// GroupAddress returns the object address
func (c *ComObject) GroupAddress() uint16 {
	return c.Address
}

// CommunicationEnabled reports whether the C flag is set
func (c *ComObject) CommunicationEnabled() bool {
	return c.Has(FlagCommunication)
}

// Valid reports whether the value was set locally or received from the bus
func (c *ComObject) Valid() bool {
	return c.valid
}

// Value returns a copy of the raw value
func (c *ComObject) Value() []byte {
	out := make([]byte, len(c.value))
	copy(out, c.value)
	return out
}

// SetValue replaces the raw value and marks it valid
func (c *ComObject) SetValue(raw []byte) error {
	if len(raw) != len(c.value) {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrValueSize, len(c.value), len(raw))
	}
	copy(c.value, raw)
	if c.Length <= 1 {
		c.value[0] &= 0x3F
	}
	c.valid = true
	return nil
}

// CopyAttributes writes priority, target address and payload length into t
func (c *ComObject) CopyAttributes(t *telegram.Telegram) {
	t.SetPriority(c.Priority)
	t.SetTargetAddress(c.Address)
	t.SetMulticast(true)
	t.SetPayloadLength(c.Length)
}

// CopyValue writes the current value into the payload of t
func (c *ComObject) CopyValue(t *telegram.Telegram) {
	if c.Length <= 1 {
		t.SetFirstPayloadByte(c.value[0])
		return
	}
	t.ClearFirstPayloadByte()
	t.SetLongPayload(c.value)
}

// UpdateValue takes the value carried by a received telegram
func (c *ComObject) UpdateValue(t *telegram.Telegram) {
	if c.Length <= 1 {
		c.value[0] = t.FirstPayloadByte()
	} else {
		copy(c.value, t.LongPayload(len(c.value)))
	}
	c.valid = true
}

// String returns a one-line summary
func (c *ComObject) String() string {
	return fmt.Sprintf("%s %s [%s] len=%d", c.Name, telegram.FormatGroupAddress(c.Address), FormatIndicator(c.Indicator), c.Length)
}
