// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coupler

import (
	"context"
	"fmt"

	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// Stop abandons reception and transmission. A pending transmission reports
// ResetResponse to the acknowledge handler. Both engines stay in RESET until
// the next Reset.
func (c *Coupler) Stop() {
	if c.tx.state == TxSending || c.tx.state == TxWaitingAck {
		c.finishTx(ResetResponse, TxReset)
	}
	c.rx.state = RxReset
	c.tx.state = TxReset
	c.rx.count = 0
	c.rx.length = 0
}

// Reset resets the chip and re-arms both engines.
//
// Any reception or transmission in progress is abandoned; a pending
// transmission reports ResetResponse. Each attempt sends a reset request and
// waits up to ResetTimeout for the reset indication. On success both engines
// are in INIT, ready for Attach, the handlers and Init. After ResetAttempts
// unanswered requests ErrResetTimeout is returned.
func (c *Coupler) Reset(ctx context.Context) error {
	c.Stop()

	for attempt := 1; attempt <= c.cfg.ResetAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.write(ResetRequest); err != nil {
			c.log.Warn("reset request failed", "attempt", attempt, "error", err)
			c.clock.Sleep(c.cfg.ResetTimeout)
			continue
		}

		ok, err := c.awaitResetIndication(ctx)
		if err != nil {
			return err
		}
		if ok {
			c.rx.state = RxStopped
			c.tx.state = TxStopped
			c.rx.state = RxInit
			c.tx.state = TxInit
			c.log.Info("bus coupler reset", "attempt", attempt)
			return nil
		}
		c.log.Debug("reset not confirmed", "attempt", attempt)
	}

	return fmt.Errorf("%w after %d attempts", ErrResetTimeout, c.cfg.ResetAttempts)
}

// awaitResetIndication discards chip output until a reset indication or the attempt timeout
func (c *Coupler) awaitResetIndication(ctx context.Context) (bool, error) {
	deadline := c.clock.Now().Add(c.cfg.ResetTimeout)
	for c.clock.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		b, ok := c.link.ReadByte()
		if !ok {
			c.clock.Sleep(resetPollInterval)
			continue
		}
		if b == ResetIndication {
			return true, nil
		}
	}
	return false, nil
}

// Init starts normal operation, or bus monitoring in ModeBusMonitor.
//
// In normal mode both handlers must be registered. The chip is given the
// physical address and asked for its state.
func (c *Coupler) Init() error {
	if c.rx.state != RxInit || c.tx.state != TxInit {
		return ErrNotInitState
	}

	if c.cfg.Mode == ModeBusMonitor {
		if err := c.write(ActivateBusMonitor); err != nil {
			return err
		}
		c.rx.state = RxIdle
		c.tx.state = TxIdle
		c.log.Info("bus monitor active")
		return nil
	}

	if c.onEvent == nil || c.onAck == nil {
		return ErrNilHandler
	}

	addr := c.cfg.PhysicalAddress
	if err := c.write(SetAddressRequest, byte(addr>>8), byte(addr)); err != nil {
		return err
	}
	if err := c.write(StateRequest); err != nil {
		return err
	}

	c.rx.state = RxIdle
	c.tx.state = TxIdle
	c.rx.lastByte = c.clock.Now()
	c.log.Info("bus coupler ready", "address", telegram.FormatIndividualAddress(addr), "objects", len(c.table))
	return nil
}

// RequestState asks the chip for a state indication
func (c *Coupler) RequestState() error {
	return c.write(StateRequest)
}
