// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records raw bus traffic to a file and plays it back.
//
// A capture is a CBOR sequence: one header item followed by one item per
// bus packet. Each packet is the run of bytes seen between two end-of-packet
// gaps, stamped with the time its first byte arrived.
package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const (
	magic   = "knxcoupler-capture"
	version = 1
)

var (
	// ErrBadHeader is returned when a stream does not start with a capture header
	ErrBadHeader = errors.New("capture: missing or malformed header")

	// ErrUnsupportedVersion is returned for a capture written by a newer format
	ErrUnsupportedVersion = errors.New("capture: unsupported version")
)

// Frame is one bus packet
type Frame struct {
	Time time.Time
	Data []byte
}

type header struct {
	_       struct{} `cbor:",toarray"`
	Magic   string
	Version uint
	Created int64
}

type record struct {
	_    struct{} `cbor:",toarray"`
	Time int64 // unix nanoseconds
	Data []byte
}

// Writer appends frames to a capture stream
type Writer struct {
	enc    *cbor.Encoder
	frames int
}

// NewWriter writes the capture header to w and returns a Writer
func NewWriter(w io.Writer, created time.Time) (*Writer, error) {
	enc := cbor.NewEncoder(w)
	if err := enc.Encode(header{Magic: magic, Version: version, Created: created.UnixNano()}); err != nil {
		return nil, fmt.Errorf("capture: write header: %w", err)
	}
	return &Writer{enc: enc}, nil
}

// Write appends one frame
func (w *Writer) Write(f Frame) error {
	if err := w.enc.Encode(record{Time: f.Time.UnixNano(), Data: f.Data}); err != nil {
		return fmt.Errorf("capture: write frame: %w", err)
	}
	w.frames++
	return nil
}

// Frames returns the number of frames written
func (w *Writer) Frames() int {
	return w.frames
}

// Reader reads frames from a capture stream
type Reader struct {
	dec     *cbor.Decoder
	created time.Time
}

// NewReader reads and checks the capture header
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(r)

	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if h.Magic != magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadHeader, h.Magic)
	}
	if h.Version > version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return &Reader{dec: dec, created: time.Unix(0, h.Created)}, nil
}

// Created returns the time the capture was started
func (r *Reader) Created() time.Time {
	return r.created
}

// Next returns the next frame, or io.EOF at the end of the capture
func (r *Reader) Next() (Frame, error) {
	var rec record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("capture: read frame: %w", err)
	}
	return Frame{Time: time.Unix(0, rec.Time), Data: rec.Data}, nil
}
