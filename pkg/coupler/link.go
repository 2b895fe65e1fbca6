// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coupler

import (
	"io"
	"sync"

	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// Link is the byte channel between host and chip.
// ReadByte must never block: it reports false when no byte is pending.
type Link interface {
	io.Writer
	ReadByte() (byte, bool)
}

// TelegramTransmitter is implemented by links whose chip accepts whole
// telegrams instead of byte-streamed data services. The coupler then hands
// every outbound telegram to TransmitTelegram in a single call.
type TelegramTransmitter interface {
	TransmitTelegram(t *telegram.Telegram) error
}

// streamBufferSize bounds the bytes held between the reader goroutine and the poll loop
const streamBufferSize = 4096

// StreamLink adapts a blocking byte stream such as a serial port to a Link.
// A reader goroutine moves bytes into a buffered channel that ReadByte drains.
type StreamLink struct {
	rw   io.ReadWriter
	rx   chan byte
	done chan struct{}

	mu  sync.Mutex
	err error
}

// NewStreamLink starts reading from rw
func NewStreamLink(rw io.ReadWriter) *StreamLink {
	l := &StreamLink{
		rw:   rw,
		rx:   make(chan byte, streamBufferSize),
		done: make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func (l *StreamLink) readLoop() {
	defer close(l.done)
	defer close(l.rx)

	buf := make([]byte, 64)
	for {
		n, err := l.rw.Read(buf)
		for i := 0; i < n; i++ {
			l.rx <- buf[i]
		}
		if err != nil {
			l.mu.Lock()
			l.err = err
			l.mu.Unlock()
			return
		}
	}
}

// ReadByte returns the next received byte without blocking
func (l *StreamLink) ReadByte() (byte, bool) {
	select {
	case b, ok := <-l.rx:
		return b, ok
	default:
		return 0, false
	}
}

// Write sends host services to the chip
func (l *StreamLink) Write(p []byte) (int, error) {
	return l.rw.Write(p)
}

// Done is closed once the underlying stream fails or closes
func (l *StreamLink) Done() <-chan struct{} {
	return l.done
}

// Err returns the error that stopped the reader, if any
func (l *StreamLink) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close closes the underlying stream when it supports it
func (l *StreamLink) Close() error {
	if c, ok := l.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// BufferLink is an in-memory Link. Bytes fed with Feed are returned by
// ReadByte, and everything written is kept for inspection.
type BufferLink struct {
	mu       sync.Mutex
	in       []byte
	out      []byte
	writeErr error
}

// NewBufferLink creates an empty in-memory link
func NewBufferLink() *BufferLink {
	return &BufferLink{}
}

// Feed queues bytes as if the chip had sent them
func (l *BufferLink) Feed(p ...byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.in = append(l.in, p...)
}

// ReadByte pops the next fed byte
func (l *BufferLink) ReadByte() (byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.in) == 0 {
		return 0, false
	}
	b := l.in[0]
	l.in = l.in[1:]
	return b, true
}

// Pending returns the number of fed bytes not yet read
func (l *BufferLink) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.in)
}

// Write records p, or fails with the error set by FailWrites
func (l *BufferLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return 0, l.writeErr
	}
	l.out = append(l.out, p...)
	return len(p), nil
}

// FailWrites makes every following Write return err. A nil err restores normal writes.
func (l *BufferLink) FailWrites(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeErr = err
}

// Written returns a copy of every byte written so far
func (l *BufferLink) Written() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]byte, len(l.out))
	copy(out, l.out)
	return out
}

// TakeWritten returns the written bytes and clears the record
func (l *BufferLink) TakeWritten() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.out
	l.out = nil
	return out
}
