// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coupler

import "errors"

// Coupler errors
var (
	// ErrNotInitState is returned by configuration calls made outside the INIT phase
	ErrNotInitState = errors.New("coupler: not in init state")

	// ErrNilHandler is returned when a nil handler is registered, or Init runs without handlers
	ErrNilHandler = errors.New("coupler: nil handler")

	// ErrNilObjects is returned when Attach receives a nil object list
	ErrNilObjects = errors.New("coupler: nil object list")

	// ErrBusy is returned by Send while a transmission is in progress or before Init
	ErrBusy = errors.New("coupler: transmitter not idle")

	// ErrInvalidTelegram is returned by Send for a malformed telegram
	ErrInvalidTelegram = errors.New("coupler: invalid telegram")

	// ErrMonitorMode is returned by Send when the coupler runs as a bus monitor
	ErrMonitorMode = errors.New("coupler: transmission disabled in bus monitor mode")

	// ErrResetTimeout is returned when the chip never confirms a reset
	ErrResetTimeout = errors.New("coupler: reset not confirmed")

	// ErrNoAnswer may be returned by a TransmitFunc when the chip gave no confirmation
	ErrNoAnswer = errors.New("coupler: no answer from bus coupler")

	// ErrNoTransmitter is returned by a FrameLink created without a TransmitFunc
	ErrNoTransmitter = errors.New("coupler: no transmit function")
)
