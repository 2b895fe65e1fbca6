// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coupler

import (
	"log/slog"
	"time"

	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// Config holds the coupler parameters. Zero values select the defaults.
type Config struct {
	// PhysicalAddress is the individual address of this device
	PhysicalAddress uint16

	Mode Mode

	ResetTimeout  time.Duration // per attempt
	ResetAttempts int
	AckTimeout    time.Duration

	// EndOfPacketGap is the bus silence that closes a frame
	EndOfPacketGap time.Duration

	// MaxTelegramSize bounds accepted telegrams, at most telegram.MaxSize
	MaxTelegramSize int

	Clock  Clock
	Logger Logger
}

// Clock abstracts time so tests can drive the timing windows
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Logger is the structured logger used by the coupler. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock returns the wall clock
func SystemClock() Clock {
	return systemClock{}
}

func (c Config) withDefaults() Config {
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.ResetAttempts <= 0 {
		c.ResetAttempts = DefaultResetAttempts
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.EndOfPacketGap <= 0 {
		c.EndOfPacketGap = DefaultEndOfPacketGap
	}
	if c.MaxTelegramSize <= 0 || c.MaxTelegramSize > telegram.MaxSize {
		c.MaxTelegramSize = telegram.MaxSize
	}
	if c.MaxTelegramSize < telegram.MinSize {
		c.MaxTelegramSize = telegram.MinSize
	}
	if c.Clock == nil {
		c.Clock = systemClock{}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}
