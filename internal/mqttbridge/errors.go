// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqttbridge

import "errors"

var (
	// ErrNotConnected is returned when the broker connection is down
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish is not acknowledged
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscription is refused
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidTopic is returned for an empty topic
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrUnknownObject is returned for a command topic naming no configured object
	ErrUnknownObject = errors.New("mqtt: no object for group address")

	// ErrInvalidCommand is returned for a command payload that selects no action
	ErrInvalidCommand = errors.New("mqtt: invalid command payload")
)
