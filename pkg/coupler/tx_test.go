// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package coupler

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// expectedServices returns the data service stream for a telegram
func expectedServices(raw []byte) []byte {
	var out []byte
	for i, b := range raw {
		service := byte(DataStartContinueRequest | i)
		if i == len(raw)-1 {
			service = byte(DataEndRequest | i)
		}
		out = append(out, service, b)
	}
	return out
}

// sendAll polls the transmitter until the whole telegram is out
func sendAll(t *testing.T, h *harness) {
	t.Helper()
	for i := 0; i < telegram.MaxSize && h.c.TxState() == TxSending; i++ {
		h.c.PollTX()
	}
	if h.c.TxState() != TxWaitingAck {
		t.Fatalf("expected WAITING_ACK, got %s", h.c.TxState())
	}
}

// ============================================================
// Send Validation Tests
// ============================================================

func TestSend_OverridesSourceAndChecksum(t *testing.T) {
	h := newHarness(t, Config{})
	tg := groupWrite(0x0000, 0x0A03, 1)

	if err := h.c.Send(tg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if tg.SourceAddress() != testPhysicalAddress {
		t.Errorf("source: expected 0x%04X, got 0x%04X", testPhysicalAddress, tg.SourceAddress())
	}
	if !tg.IsChecksumCorrect() {
		t.Error("checksum should be recomputed")
	}
	if h.c.TxState() != TxSending {
		t.Errorf("expected TELEGRAM_SENDING_ONGOING, got %s", h.c.TxState())
	}
}

func TestSend_Errors(t *testing.T) {
	noPayload := groupWrite(0, 0x0A03, 1)
	noPayload.SetPayloadLength(0)

	extended := groupWrite(0, 0x0A03, 1)
	extended.SetControlField(0x3C)

	unknown := groupWrite(0, 0x0A03, 1)
	unknown.SetCommand(telegram.Command(0x05))

	tests := []struct {
		name string
		tg   *telegram.Telegram
		err  error
	}{
		{"nil", nil, ErrInvalidTelegram},
		{"no payload", noPayload, ErrInvalidTelegram},
		{"extended frame", extended, ErrInvalidTelegram},
		{"unknown command", unknown, ErrInvalidTelegram},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			if err := h.c.Send(tt.tg); !errors.Is(err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, err)
			}
			if h.c.TxState() != TxIdle {
				t.Errorf("rejected telegram must leave IDLE, got %s", h.c.TxState())
			}
		})
	}
}

func TestSend_TooLongForConfiguredMax(t *testing.T) {
	h := newHarness(t, Config{MaxTelegramSize: 10})
	tg := groupWrite(0, 0x0A03, 0)
	tg.SetPayloadLength(4)
	tg.SetLongPayload([]byte{1, 2, 3})

	if err := h.c.Send(tg); !errors.Is(err, ErrInvalidTelegram) {
		t.Errorf("expected ErrInvalidTelegram, got %v", err)
	}
}

func TestSend_Busy(t *testing.T) {
	h := newHarness(t, Config{})

	if err := h.c.Send(groupWrite(0, 0x0A03, 1)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := h.c.Send(groupWrite(0, 0x0A04, 1)); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy while sending, got %v", err)
	}

	sendAll(t, h)
	if err := h.c.Send(groupWrite(0, 0x0A04, 1)); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy while waiting for the ack, got %v", err)
	}
}

func TestSend_BeforeInit(t *testing.T) {
	c := New(NewBufferLink(), Config{Clock: newFakeClock()})
	if err := c.Send(groupWrite(0, 0x0A03, 1)); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
}

func TestSend_MonitorMode(t *testing.T) {
	h := newHarness(t, Config{Mode: ModeBusMonitor})
	if err := h.c.Send(groupWrite(0, 0x0A03, 1)); !errors.Is(err, ErrMonitorMode) {
		t.Errorf("expected ErrMonitorMode, got %v", err)
	}
}

// ============================================================
// Byte Stream Transmission Tests
// ============================================================

func TestTX_ByteStream(t *testing.T) {
	h := newHarness(t, Config{})
	tg := groupWrite(0, 0x0A03, 1)
	if err := h.c.Send(tg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	raw := tg.Bytes()

	// One service pair per poll
	h.c.PollTX()
	if got := h.link.Written(); !bytes.Equal(got, []byte{0x80, raw[0]}) {
		t.Fatalf("first poll: expected 80 %02X, got %s", raw[0], telegram.FormatHex(got))
	}

	sendAll(t, h)

	expected := expectedServices(raw)
	if got := h.link.Written(); !bytes.Equal(got, expected) {
		t.Errorf("expected %s, got %s", telegram.FormatHex(expected), telegram.FormatHex(got))
	}
	if expected[len(expected)-2] != 0x48 {
		t.Errorf("nine byte telegram should end with 0x48, got 0x%02X", expected[len(expected)-2])
	}
	if len(h.rec.acks) != 0 {
		t.Errorf("no outcome before confirmation, got %v", h.rec.acks)
	}
}

func TestTX_Outcomes(t *testing.T) {
	tests := []struct {
		name    string
		confirm []byte
		advance time.Duration
		outcome TxOutcome
	}{
		{"ack", []byte{DataConfirmSuccess}, 0, AckResponse},
		{"nack", []byte{DataConfirmFailed}, 0, NackResponse},
		{"timeout", nil, DefaultAckTimeout + time.Millisecond, NoAnswerTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			if err := h.c.Send(groupWrite(0, 0x0A03, 1)); err != nil {
				t.Fatalf("Send failed: %v", err)
			}
			sendAll(t, h)

			h.link.Feed(tt.confirm...)
			h.clock.Advance(tt.advance)
			h.c.PollRX()
			h.c.PollTX()

			if len(h.rec.acks) != 1 || h.rec.acks[0] != tt.outcome {
				t.Fatalf("expected [%s], got %v", tt.outcome, h.rec.acks)
			}
			if h.c.TxState() != TxIdle {
				t.Errorf("expected IDLE, got %s", h.c.TxState())
			}

			// A late confirmation is an anomaly, not a second outcome
			h.link.Feed(DataConfirmSuccess)
			h.c.PollRX()
			if len(h.rec.acks) != 1 {
				t.Errorf("outcome must be delivered once, got %v", h.rec.acks)
			}
		})
	}
}

func TestTX_AckTimeoutBoundary(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.c.Send(groupWrite(0, 0x0A03, 1)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	sendAll(t, h)

	h.clock.Advance(DefaultAckTimeout)
	h.c.PollTX()
	if len(h.rec.acks) != 0 {
		t.Fatalf("timeout must not fire at exactly the limit, got %v", h.rec.acks)
	}

	h.clock.Advance(time.Millisecond)
	h.c.PollTX()
	if len(h.rec.acks) != 1 || h.rec.acks[0] != NoAnswerTimeout {
		t.Errorf("expected NO_ANSWER_TIMEOUT, got %v", h.rec.acks)
	}
}

func TestTX_WriteFailureIsNack(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.c.Send(groupWrite(0, 0x0A03, 1)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	h.c.PollTX()

	h.link.FailWrites(errors.New("port closed"))
	h.c.PollTX()

	if len(h.rec.acks) != 1 || h.rec.acks[0] != NackResponse {
		t.Fatalf("expected NACK, got %v", h.rec.acks)
	}
	if h.c.TxState() != TxIdle {
		t.Errorf("expected IDLE, got %s", h.c.TxState())
	}
}

func TestTX_HoldsWhileReceptionStarted(t *testing.T) {
	h := newHarness(t, Config{}, obj(0x0A03))
	if err := h.c.Send(groupWrite(0, 0x0A04, 1)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	h.link.Feed(0xBC, 0x11)
	h.c.PollRX()
	h.c.PollTX()

	if got := h.link.Written(); len(got) != 0 {
		t.Fatalf("transmission must wait for the address decision, got %s", telegram.FormatHex(got))
	}

	h.link.Feed(0x05, 0x0A, 0x03, 0xE1)
	h.c.PollRX()
	h.c.PollTX()

	got := h.link.Written()
	if len(got) != 3 || got[0] != AckAddressed || got[1] != DataStartContinueRequest {
		t.Errorf("expected acknowledge then first data service, got %s", telegram.FormatHex(got))
	}
}

func TestTX_ResetAbortsTransmission(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.c.Send(groupWrite(0, 0x0A03, 1)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	sendAll(t, h)

	h.link.Feed(ResetIndication)
	if err := h.c.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if len(h.rec.acks) != 1 || h.rec.acks[0] != ResetResponse {
		t.Errorf("expected BUSCOUPLER_RESET, got %v", h.rec.acks)
	}
}

func TestTX_ChipResetAbortsTransmission(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.c.Send(groupWrite(0, 0x0A03, 1)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	sendAll(t, h)

	h.link.Feed(ResetIndication)
	h.c.PollRX()

	if len(h.rec.acks) != 1 || h.rec.acks[0] != ResetResponse {
		t.Errorf("expected BUSCOUPLER_RESET, got %v", h.rec.acks)
	}
	if h.rec.count(EventReset) != 1 {
		t.Errorf("expected RESET event, got %v", h.rec.events)
	}
	if h.c.TxState() != TxStopped {
		t.Errorf("expected STOPPED, got %s", h.c.TxState())
	}
}

func TestTX_OwnEchoThenConfirm(t *testing.T) {
	h := newHarness(t, Config{}, obj(0x0A03))
	tg := groupWrite(0, 0x0A03, 1)
	if err := h.c.Send(tg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	sendAll(t, h)
	h.link.TakeWritten()

	// The chip repeats our telegram before confirming it
	h.link.Feed(tg.Bytes()...)
	h.link.Feed(DataConfirmSuccess)
	h.c.PollRX()

	if len(h.rec.acks) != 1 || h.rec.acks[0] != AckResponse {
		t.Errorf("expected ACK, got %v", h.rec.acks)
	}
	if h.rec.count(EventReceivedTelegram) != 0 {
		t.Error("own telegram must not be received")
	}
	if got := h.link.Written(); len(got) != 0 {
		t.Errorf("own telegram must not be acknowledged, got %s", telegram.FormatHex(got))
	}
}
