// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"github.com/Thermoquad/knxcoupler/pkg/coupler"
	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// ActivityKind says what an Activity reports
type ActivityKind int

// Activity kinds
const (
	ActivityReceived ActivityKind = iota // telegram addressed to one of the objects
	ActivitySent                         // transmission outcome
	ActivityState                        // state indication from the chip
	ActivityReset                        // chip reset seen on the line
	ActivityReceptionError
)

func (k ActivityKind) String() string {
	switch k {
	case ActivityReceived:
		return "RECEIVED"
	case ActivitySent:
		return "SENT"
	case ActivityState:
		return "STATE"
	case ActivityReset:
		return "RESET"
	case ActivityReceptionError:
		return "RECEPTION_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Activity is one bus event seen by the device
type Activity struct {
	Kind ActivityKind

	// Telegram is a copy of the received telegram, or of the transmitted
	// telegram for ActivitySent
	Telegram telegram.Telegram

	// Index is the targeted object, -1 when none
	Index int

	Outcome coupler.TxOutcome
	State   coupler.StateIndication
}

// OnActivity registers fn to observe every bus event. Like OnUpdate, fn runs
// on the goroutine calling Task, after the device lock is released.
func (d *Device) OnActivity(fn func(Activity)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onActivity = fn
}

// record keeps an activity for delivery at the end of the task pass
func (d *Device) record(a Activity) {
	if d.onActivity == nil {
		return
	}
	d.activity = append(d.activity, a)
}
