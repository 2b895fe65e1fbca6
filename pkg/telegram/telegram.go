// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telegram

// Telegram is a KNX standard-frame telegram
type Telegram struct {
	buf [MaxSize]byte
}

// New creates a telegram holding the default control and routing fields
func New() *Telegram {
	t := &Telegram{}
	t.Reset()
	return t
}

// FromBytes loads raw bus bytes into a telegram. Bytes beyond MaxSize are dropped.
func FromBytes(p []byte) *Telegram {
	t := &Telegram{}
	copy(t.buf[:], p)
	return t
}

// Reset restores the default header and clears addresses, command and payload
func (t *Telegram) Reset() {
	t.buf = [MaxSize]byte{}
	t.buf[offsetControl] = ControlFieldDefault
	t.buf[offsetRouting] = RoutingFieldDefault
}

// Copy copies every byte of src into t
func (t *Telegram) Copy(src *Telegram) {
	t.buf = src.buf
}

// Byte returns the raw byte at index i
func (t *Telegram) Byte(i int) byte {
	return t.buf[i]
}

// SetByte stores a raw byte at index i
func (t *Telegram) SetByte(i int, b byte) {
	t.buf[i] = b
}

// Length returns the telegram length declared by the routing field
func (t *Telegram) Length() int {
	return lengthOffset + t.PayloadLength()
}

// Bytes returns the telegram bytes up to its declared length
func (t *Telegram) Bytes() []byte {
	n := t.Length()
	if n > MaxSize {
		n = MaxSize
	}
	out := make([]byte, n)
	copy(out, t.buf[:n])
	return out
}

// Control field accessors

// ControlField returns the raw control field
func (t *Telegram) ControlField() byte {
	return t.buf[offsetControl]
}

// SetControlField replaces the raw control field
func (t *Telegram) SetControlField(b byte) {
	t.buf[offsetControl] = b
}

// Priority returns the bus priority
func (t *Telegram) Priority() Priority {
	return Priority(t.buf[offsetControl] & controlFieldPriorityMask)
}

// SetPriority sets the bus priority
func (t *Telegram) SetPriority(p Priority) {
	t.buf[offsetControl] = (t.buf[offsetControl] &^ controlFieldPriorityMask) | byte(p)&controlFieldPriorityMask
}

// IsRepeated reports whether the frame is flagged as a repetition.
// A cleared repeat bit marks a repeated frame.
func (t *Telegram) IsRepeated() bool {
	return t.buf[offsetControl]&controlFieldRepeatedMask == 0
}

// SetRepeated flags the frame as repeated or original
func (t *Telegram) SetRepeated(repeated bool) {
	if repeated {
		t.buf[offsetControl] &^= controlFieldRepeatedMask
	} else {
		t.buf[offsetControl] |= controlFieldRepeatedMask
	}
}

// Address accessors

// SourceAddress returns the individual address of the sender
func (t *Telegram) SourceAddress() uint16 {
	return uint16(t.buf[offsetSource])<<8 | uint16(t.buf[offsetSource+1])
}

// SetSourceAddress sets the individual address of the sender
func (t *Telegram) SetSourceAddress(addr uint16) {
	t.buf[offsetSource] = byte(addr >> 8)
	t.buf[offsetSource+1] = byte(addr)
}

// TargetAddress returns the target address
func (t *Telegram) TargetAddress() uint16 {
	return uint16(t.buf[offsetTarget])<<8 | uint16(t.buf[offsetTarget+1])
}

// SetTargetAddress sets the target address
func (t *Telegram) SetTargetAddress(addr uint16) {
	t.buf[offsetTarget] = byte(addr >> 8)
	t.buf[offsetTarget+1] = byte(addr)
}

// Routing field accessors

// IsMulticast reports whether the target is a group address
func (t *Telegram) IsMulticast() bool {
	return t.buf[offsetRouting]&routingFieldMulticastMask != 0
}

// SetMulticast selects a group (true) or individual (false) target address
func (t *Telegram) SetMulticast(multicast bool) {
	if multicast {
		t.buf[offsetRouting] |= routingFieldMulticastMask
	} else {
		t.buf[offsetRouting] &^= routingFieldMulticastMask
	}
}

// RoutingCounter returns the hop counter
func (t *Telegram) RoutingCounter() byte {
	return (t.buf[offsetRouting] & routingFieldCounterMask) >> 4
}

// SetRoutingCounter sets the hop counter (0-7)
func (t *Telegram) SetRoutingCounter(counter byte) {
	t.buf[offsetRouting] = (t.buf[offsetRouting] &^ routingFieldCounterMask) | (counter<<4)&routingFieldCounterMask
}

// PayloadLength returns the payload length declared by the routing field
func (t *Telegram) PayloadLength() int {
	return int(t.buf[offsetRouting] & routingFieldLengthMask)
}

// SetPayloadLength sets the payload length (0-15)
func (t *Telegram) SetPayloadLength(length int) {
	t.buf[offsetRouting] = (t.buf[offsetRouting] &^ routingFieldLengthMask) | byte(length)&routingFieldLengthMask
}

// Command field accessors

// Command returns the application layer service
func (t *Telegram) Command() Command {
	return Command((t.buf[offsetCommandH]&commandFieldHighMask)<<2 |
		(t.buf[offsetCommandL]&commandFieldLowMask)>>6)
}

// SetCommand sets the application layer service, keeping the first payload bits
func (t *Telegram) SetCommand(cmd Command) {
	t.buf[offsetCommandH] = (t.buf[offsetCommandH] &^ commandFieldHighMask) | (byte(cmd)>>2)&commandFieldHighMask
	t.buf[offsetCommandL] = (t.buf[offsetCommandL] &^ commandFieldLowMask) | (byte(cmd)<<6)&commandFieldLowMask
}

// FirstPayloadByte returns the 6 payload bits packed into the command field
func (t *Telegram) FirstPayloadByte() byte {
	return t.buf[offsetCommandL] & commandFieldLowDataMask
}

// SetFirstPayloadByte sets the 6 payload bits packed into the command field
func (t *Telegram) SetFirstPayloadByte(b byte) {
	t.buf[offsetCommandL] = (t.buf[offsetCommandL] &^ commandFieldLowDataMask) | b&commandFieldLowDataMask
}

// ClearFirstPayloadByte zeroes the 6 payload bits of the command field
func (t *Telegram) ClearFirstPayloadByte() {
	t.buf[offsetCommandL] &^= commandFieldLowDataMask
}

// LongPayload returns up to n payload bytes following the command field
func (t *Telegram) LongPayload(n int) []byte {
	if n > PayloadMaxSize-2 {
		n = PayloadMaxSize - 2
	}
	out := make([]byte, n)
	copy(out, t.buf[offsetPayload:offsetPayload+n])
	return out
}

// SetLongPayload copies p after the command field, truncated to 14 bytes.
// The routing field length is left to the caller.
func (t *Telegram) SetLongPayload(p []byte) {
	n := len(p)
	if n > PayloadMaxSize-2 {
		n = PayloadMaxSize - 2
	}
	copy(t.buf[offsetPayload:], p[:n])
}

// ClearLongPayload zeroes every payload byte after the command field
func (t *Telegram) ClearLongPayload() {
	for i := offsetPayload; i < MaxSize; i++ {
		t.buf[i] = 0
	}
}
