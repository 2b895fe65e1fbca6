// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coupler

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// sender moves an accepted telegram from the host to the chip
type sender interface {
	step(c *Coupler)
}

func newSender(link Link) sender {
	if tt, ok := link.(TelegramTransmitter); ok {
		return frameSender{tt: tt}
	}
	return streamSender{}
}

// streamSender emits one telegram byte per poll as a data service pair
type streamSender struct{}

func (streamSender) step(c *Coupler) {
	i := c.tx.index
	service := byte(DataStartContinueRequest | i)
	last := c.tx.remaining == 1
	if last {
		service = byte(DataEndRequest | i)
	}

	if err := c.write(service, c.tx.sent.Byte(i)); err != nil {
		c.finishTx(NackResponse, TxIdle)
		return
	}

	c.tx.index++
	c.tx.remaining--
	if last {
		c.tx.state = TxWaitingAck
		c.tx.sentAt = c.clock.Now()
	}
}

// frameSender hands the whole telegram to the chip in one call
type frameSender struct {
	tt TelegramTransmitter
}

func (s frameSender) step(c *Coupler) {
	err := s.tt.TransmitTelegram(c.tx.sent)
	switch {
	case err == nil:
		c.finishTx(AckResponse, TxIdle)
	case errors.Is(err, ErrNoAnswer):
		c.finishTx(NoAnswerTimeout, TxIdle)
	default:
		c.log.Warn("telegram transmit failed", "error", err)
		c.finishTx(NackResponse, TxIdle)
	}
}

// Send queues t for transmission. The source address is replaced by the
// coupler's physical address and the checksum recomputed. t is borrowed
// until the ack handler reports the outcome.
func (c *Coupler) Send(t *telegram.Telegram) error {
	if c.cfg.Mode == ModeBusMonitor {
		return ErrMonitorMode
	}
	if c.tx.state != TxIdle {
		return ErrBusy
	}
	if t == nil {
		return fmt.Errorf("%w: nil telegram", ErrInvalidTelegram)
	}

	var out telegram.Telegram
	out.Copy(t)
	out.SetSourceAddress(c.cfg.PhysicalAddress)
	out.UpdateChecksum()
	if v := out.Validity(); v != telegram.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidTelegram, v)
	}
	if out.Length() > c.cfg.MaxTelegramSize {
		return fmt.Errorf("%w: length %d exceeds %d", ErrInvalidTelegram, out.Length(), c.cfg.MaxTelegramSize)
	}
	t.Copy(&out)

	c.tx.sent = t
	c.tx.index = 0
	c.tx.remaining = t.Length()
	c.tx.state = TxSending
	c.stats.TelegramsSent++
	return nil
}

// PollTX advances a transmission and expires unanswered ones
func (c *Coupler) PollTX() {
	switch c.tx.state {
	case TxSending:
		// Keep the line quiet while an acknowledge decision is pending
		if c.rx.state == RxStarted {
			return
		}
		c.sender.step(c)

	case TxWaitingAck:
		if c.clock.Now().Sub(c.tx.sentAt) > c.cfg.AckTimeout {
			c.finishTx(NoAnswerTimeout, TxIdle)
		}
	}
}

// confirm resolves the pending transmission from a data confirmation
func (c *Coupler) confirm(outcome TxOutcome) {
	if c.tx.state != TxWaitingAck {
		c.stats.Anomalies++
		c.log.Debug("unexpected confirmation", "outcome", outcome.String(), "tx_state", c.tx.state.String())
		return
	}
	c.finishTx(outcome, TxIdle)
}

// finishTx ends the transmission in progress and reports its outcome once
func (c *Coupler) finishTx(outcome TxOutcome, next TxState) {
	c.tx.state = next
	c.tx.sent = nil
	c.tx.remaining = 0
	c.tx.index = 0

	switch outcome {
	case AckResponse:
		c.stats.Acks++
	case NackResponse:
		c.stats.Nacks++
	case NoAnswerTimeout:
		c.stats.Timeouts++
	case ResetResponse:
		c.stats.ResetResponses++
	}
	if outcome != AckResponse {
		c.log.Debug("transmission failed", "outcome", outcome.String())
	}

	if c.onAck != nil {
		c.onAck(outcome)
	}
}
