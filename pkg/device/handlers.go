// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"time"

	"github.com/Thermoquad/knxcoupler/pkg/comobject"
	"github.com/Thermoquad/knxcoupler/pkg/coupler"
	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// dispatch turns a queued action into a telegram
func (d *Device) dispatch(a action) {
	obj := d.objects[a.index]
	t := &d.tx
	t.Reset()

	switch a.kind {
	case actionRead:
		obj.CopyAttributes(t)
		t.SetPayloadLength(1)
		t.SetCommand(telegram.CommandRead)

	case actionResponse:
		obj.CopyAttributes(t)
		obj.CopyValue(t)
		t.SetCommand(telegram.CommandResponse)

	case actionWrite:
		if err := obj.SetValue(a.value); err != nil {
			d.log.Warn("local write rejected", "object", obj.Name, "error", err)
			return
		}
		if !obj.Has(comobject.FlagTransmit) {
			return
		}
		obj.CopyAttributes(t)
		obj.CopyValue(t)
		t.SetCommand(telegram.CommandWrite)
	}

	t.UpdateChecksum()
	if err := d.c.Send(t); err != nil {
		d.stats.Failed++
		d.log.Warn("send failed", "object", obj.Name, "error", err)
		return
	}
	d.state = stateTxOngoing
	d.sending = a.index
	d.writeStarted = d.clock.Now()
	d.stats.Sent++
	d.log.Debug("telegram queued", "object", obj.Name, "command", telegram.FormatCommand(t.Command()))
}

// handleEvent is the coupler event handler. It runs inside PollRX.
func (d *Device) handleEvent(e coupler.Event) {
	switch e {
	case coupler.EventReceivedTelegram:
		d.receive()

	case coupler.EventReset:
		// Restarted from the next Task, outside the reception loop
		d.resetPending = true
		d.record(Activity{Kind: ActivityReset, Index: -1})

	case coupler.EventReceptionError:
		d.log.Debug("reception error")
		d.record(Activity{Kind: ActivityReceptionError, Index: -1})

	case coupler.EventStateIndication:
		s := d.c.StateIndication()
		if s&^coupler.StateIndicationCode != 0 {
			d.log.Warn("bus coupler state", "state", s.String())
		}
		d.record(Activity{Kind: ActivityState, Index: -1, State: s})
	}
}

// receive applies a telegram addressed to one of the objects
func (d *Device) receive() {
	index := d.c.TargetedObjectIndex()
	if index < 0 || index >= len(d.objects) {
		return
	}
	obj := d.objects[index]
	t := d.c.ReceivedTelegram()
	d.record(Activity{Kind: ActivityReceived, Telegram: *t, Index: index})

	switch t.Command() {
	case telegram.CommandRead:
		if !obj.Has(comobject.FlagRead) {
			return
		}
		d.stats.Reads++
		if err := d.enqueue(action{kind: actionResponse, index: index}); err != nil {
			d.log.Warn("read response dropped", "object", obj.Name, "error", err)
		}

	case telegram.CommandResponse:
		if obj.Has(comobject.FlagUpdate) {
			d.update(index, obj, t)
		}

	case telegram.CommandWrite:
		if obj.Has(comobject.FlagWrite) {
			d.update(index, obj, t)
		}
	}
}

func (d *Device) update(index int, obj *comobject.ComObject, t *telegram.Telegram) {
	if t.PayloadLength() != obj.Length {
		d.log.Debug("payload length mismatch", "object", obj.Name, "expected", obj.Length, "got", t.PayloadLength())
		return
	}
	obj.UpdateValue(t)
	d.stats.Updates++
	d.updated = append(d.updated, index)
}

// handleAck is the coupler transmission outcome handler
func (d *Device) handleAck(outcome coupler.TxOutcome) {
	d.writeStarted = time.Time{}
	if d.state == stateTxOngoing {
		d.state = stateIdle
	}
	if outcome != coupler.AckResponse {
		d.stats.Failed++
		d.log.Warn("transmission failed", "outcome", outcome.String())
	}
	d.record(Activity{Kind: ActivitySent, Telegram: d.tx, Index: d.sending, Outcome: outcome})
}
