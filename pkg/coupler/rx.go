// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coupler

import (
	"fmt"

	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// PollRX drains every byte the link holds and advances the reception engine.
// It also resolves pending transmissions from confirmation bytes.
//
// Reset and state indications are recognised only between telegrams. Inside
// a telegram the same byte values are payload.
func (c *Coupler) PollRX() {
	if c.cfg.Mode == ModeBusMonitor {
		return
	}

	now := c.clock.Now()
	if c.rx.state > RxIdle && now.Sub(c.rx.lastByte) > c.cfg.EndOfPacketGap {
		c.endOfPacket()
	}

	// A handler may reset the coupler from inside the loop
	for c.rx.state != RxReset && c.rx.state != RxInit {
		b, ok := c.link.ReadByte()
		if !ok {
			return
		}
		c.rx.lastByte = now
		c.receiveByte(b)
	}
}

func (c *Coupler) receiveByte(b byte) {
	switch c.rx.state {
	case RxStopped:
		if b == ResetIndication {
			c.log.Debug("reset indication while stopped")
		}

	case RxIdle:
		c.receiveIdle(b)

	case RxStarted:
		c.store(b)
		if c.rx.count == telegram.HeaderSize {
			c.resolveAddress()
		}

	case RxAddressed:
		if c.rx.count >= c.cfg.MaxTelegramSize {
			c.rx.state = RxLengthInvalid
			c.stats.LengthInvalid++
			return
		}
		c.store(b)
		if c.rx.count == c.rx.length {
			c.completeTelegram()
		}

	case RxNotAddressed, RxLengthInvalid:
		c.rx.count++
		if c.rx.length > 0 && c.rx.count >= c.rx.length {
			c.rx.state = RxIdle
		}
	}
}

// receiveIdle classifies a byte received between telegrams
func (c *Coupler) receiveIdle(b byte) {
	switch {
	case IsControlField(b):
		c.rx.frame = telegram.Telegram{}
		c.rx.count = 0
		c.rx.length = 0
		c.rx.pending = -1
		c.store(b)
		c.rx.state = RxStarted

	case b == DataConfirmSuccess:
		c.confirm(AckResponse)

	case b == DataConfirmFailed:
		c.confirm(NackResponse)

	case b == ResetIndication:
		c.chipReset()

	case IsStateIndication(b):
		c.stats.StateIndications++
		if s := StateIndication(b); s != c.state {
			c.state = s
			c.log.Info("state indication", "state", s.String())
			c.emit(EventStateIndication)
		}

	default:
		c.stats.Anomalies++
		c.log.Debug("unexpected byte discarded", "byte", fmt.Sprintf("0x%02X", b))
	}
}

func (c *Coupler) store(b byte) {
	if c.rx.count < telegram.MaxSize {
		c.rx.frame.SetByte(c.rx.count, b)
	}
	c.rx.count++
}

// resolveAddress decides, once source, target and routing are known, whether
// the telegram belongs to an attached object, and answers the chip at once.
func (c *Coupler) resolveAddress() {
	f := &c.rx.frame
	c.rx.length = f.Length()

	switch {
	case c.rx.length > c.cfg.MaxTelegramSize:
		c.rx.state = RxLengthInvalid
		c.stats.LengthInvalid++
		c.log.Debug("telegram too long", "declared", c.rx.length, "max", c.cfg.MaxTelegramSize)
		c.ack(AckNotAddressed)
		return

	case f.SourceAddress() == c.cfg.PhysicalAddress:
		// Our own telegram repeated by the chip
		c.rx.state = RxNotAddressed
		return
	}

	if f.IsMulticast() {
		if index, ok := c.table.find(f.TargetAddress()); ok {
			c.rx.state = RxAddressed
			c.rx.pending = index
			c.ack(AckAddressed)
			return
		}
	}
	c.rx.state = RxNotAddressed
	c.stats.NotAddressed++
	c.ack(AckNotAddressed)
}

// ack answers the chip for the telegram being received. A lost answer only
// costs the acknowledge on the bus, so reception goes on.
func (c *Coupler) ack(service byte) {
	if err := c.write(service); err != nil {
		c.stats.Anomalies++
	}
}

// completeTelegram publishes a fully received addressed telegram
func (c *Coupler) completeTelegram() {
	c.rx.state = RxIdle
	if !c.rx.frame.IsChecksumCorrect() {
		c.stats.ReceptionErrors++
		c.log.Debug("checksum mismatch",
			"expected", fmt.Sprintf("0x%02X", c.rx.frame.CalculateChecksum()),
			"got", fmt.Sprintf("0x%02X", c.rx.frame.Checksum()))
		c.emit(EventReceptionError)
		return
	}
	c.rx.received.Copy(&c.rx.frame)
	c.rx.targeted = c.rx.pending
	c.stats.TelegramsReceived++
	c.emit(EventReceivedTelegram)
}

// endOfPacket handles bus silence while a telegram is still incomplete
func (c *Coupler) endOfPacket() {
	state := c.rx.state
	c.rx.state = RxIdle

	switch state {
	case RxAddressed:
		c.stats.ReceptionErrors++
		c.log.Debug("addressed telegram truncated", "received", c.rx.count, "declared", c.rx.length)
		c.emit(EventReceptionError)
	case RxStarted:
		c.stats.Anomalies++
		c.log.Debug("telegram header truncated", "received", c.rx.count)
	}
}

// chipReset handles a reset indication: both engines stop until the next Reset and Init
func (c *Coupler) chipReset() {
	c.stats.ChipResets++
	c.log.Warn("bus coupler reset indication")
	if c.tx.state == TxSending || c.tx.state == TxWaitingAck {
		c.finishTx(ResetResponse, TxStopped)
	}
	c.tx.state = TxStopped
	c.rx.state = RxStopped
	c.emit(EventReset)
}
