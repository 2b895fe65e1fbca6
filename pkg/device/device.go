// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package device runs a KNX application on top of a bus coupler.
//
// A Device keeps a list of communication objects in step with the bus: it
// answers reads, takes writes and responses according to the indicator
// flags, reads init-flagged objects after start-up and transmits local
// writes. Task is the cooperative loop body; Run calls it until the context
// ends. Write, Update and the value accessors may be called from other
// goroutines while Run is active.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Thermoquad/knxcoupler/pkg/comobject"
	"github.com/Thermoquad/knxcoupler/pkg/coupler"
	"github.com/Thermoquad/knxcoupler/pkg/dpt"
	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// QueueSize bounds the pending bus actions
const QueueSize = 16

// Defaults
const (
	DefaultWriteTimeout     = time.Second
	DefaultInitReadInterval = 500 * time.Millisecond
)

var (
	// ErrQueueFull is returned when QueueSize actions are already pending
	ErrQueueFull = errors.New("device: action queue full")

	// ErrInvalidIndex is returned for an object index outside the object list
	ErrInvalidIndex = errors.New("device: invalid object index")
)

// Options tune the device runtime. Zero values select the defaults.
type Options struct {
	// WriteTimeout restarts the coupler when a transmission is never resolved
	WriteTimeout time.Duration

	// InitReadInterval spaces the start-up reads of init-flagged objects
	InitReadInterval time.Duration

	Clock  coupler.Clock
	Logger coupler.Logger
}

type runState int

const (
	stateInit runState = iota
	stateIdle
	stateTxOngoing
)

type actionKind int

const (
	actionRead actionKind = iota
	actionResponse
	actionWrite
)

type action struct {
	kind  actionKind
	index int
	value []byte
}

// Stats counts device level activity
type Stats struct {
	Restarts      uint64
	WriteTimeouts uint64
	Reads         uint64 // read requests answered
	Updates       uint64 // object values changed from the bus
	Sent          uint64
	Failed        uint64 // transmissions without a positive acknowledge
}

// Device is a KNX device application
type Device struct {
	mu sync.Mutex

	c       *coupler.Coupler
	objects []*comobject.ComObject
	opts    Options
	clock   coupler.Clock
	log     coupler.Logger

	state        runState
	queue        []action
	tx           telegram.Telegram
	sending      int
	writeStarted time.Time
	resetPending bool

	initIndex    int
	initDone     bool
	lastInitRead time.Time
	lastRX       time.Time
	lastTX       time.Time

	onUpdate   func(index int)
	updated    []int
	onActivity func(Activity)
	activity   []Activity
	stats      Stats
}

// New creates a device driving c with objects. Begin must be called before Task.
func New(c *coupler.Coupler, objects []*comobject.ComObject, opts Options) *Device {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.InitReadInterval <= 0 {
		opts.InitReadInterval = DefaultInitReadInterval
	}
	if opts.Clock == nil {
		opts.Clock = coupler.SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Device{
		c:       c,
		objects: objects,
		opts:    opts,
		clock:   opts.Clock,
		log:     opts.Logger,
		queue:   make([]action, 0, QueueSize),
		sending: -1,
	}
}

// Begin resets the coupler, attaches the objects and starts normal operation
func (d *Device) Begin(ctx context.Context) error {
	d.mu.Lock()
	d.stop()
	d.mu.Unlock()
	return d.start(ctx)
}

// stop halts the coupler ahead of a reset. Called with d.mu held. The
// aborted transmission is acknowledged before the device enters INIT.
func (d *Device) stop() {
	d.c.Stop()
	d.state = stateInit
	d.writeStarted = time.Time{}
}

// start resets the chip and brings the device back to IDLE. The reset waits
// on the chip and runs without d.mu; the device stays in INIT until the
// start-up completes under the lock.
func (d *Device) start(ctx context.Context) error {
	if err := d.c.Reset(ctx); err != nil {
		return fmt.Errorf("device: reset: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.c.Attach(coupler.Objects(d.objects)); err != nil {
		return fmt.Errorf("device: attach: %w", err)
	}
	if err := d.c.SetEventHandler(d.handleEvent); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	if err := d.c.SetAckHandler(d.handleAck); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	if err := d.c.Init(); err != nil {
		return fmt.Errorf("device: init: %w", err)
	}

	now := d.clock.Now()
	d.state = stateIdle
	d.writeStarted = time.Time{}
	d.lastInitRead = now
	d.lastRX = now
	d.lastTX = now
	return nil
}

// Task runs one pass of the device loop. It returns an error only when a
// coupler restart fails; the next call tries again.
func (d *Device) Task(ctx context.Context) error {
	d.mu.Lock()
	restart := d.task()
	updated, activity := d.updated, d.activity
	d.updated, d.activity = nil, nil
	onUpdate, onActivity := d.onUpdate, d.onActivity
	d.mu.Unlock()

	if onActivity != nil {
		for _, a := range activity {
			onActivity(a)
		}
	}
	if onUpdate != nil {
		for _, index := range updated {
			onUpdate(index)
		}
	}
	if restart {
		return d.restart(ctx)
	}
	return nil
}

// task runs the polling part of a pass and reports whether the coupler must
// be restarted
func (d *Device) task() bool {
	now := d.clock.Now()

	if !d.writeStarted.IsZero() && now.Sub(d.writeStarted) > d.opts.WriteTimeout {
		d.stats.WriteTimeouts++
		d.log.Warn("transmission never resolved, restarting coupler", "timeout", d.opts.WriteTimeout)
		d.resetPending = true
	}
	if d.resetPending || d.state == stateInit {
		d.resetPending = false
		d.stats.Restarts++
		d.stop()
		return true
	}

	if !d.initDone && now.Sub(d.lastInitRead) > d.opts.InitReadInterval {
		d.queueInitRead(now)
	}

	if now.Sub(d.lastRX) > coupler.RXPollPeriod {
		d.lastRX = now
		d.c.PollRX()
	}

	if d.state == stateIdle && d.c.TxState() == coupler.TxIdle && len(d.queue) > 0 {
		next := d.queue[0]
		d.queue = d.queue[1:]
		d.dispatch(next)
	}

	now = d.clock.Now()
	if now.Sub(d.lastTX) > coupler.TXPollPeriod {
		d.lastTX = now
		d.c.PollTX()
	}
	return false
}

func (d *Device) restart(ctx context.Context) error {
	if err := d.start(ctx); err != nil {
		d.log.Error("coupler restart failed", "error", err)
		return err
	}
	d.log.Info("coupler restarted")
	return nil
}

// queueInitRead queues a read for the next init-flagged object without a value
func (d *Device) queueInitRead(now time.Time) {
	for d.initIndex < len(d.objects) {
		obj := d.objects[d.initIndex]
		if obj.Has(comobject.FlagInit) && !obj.Valid() {
			break
		}
		d.initIndex++
	}
	if d.initIndex == len(d.objects) {
		d.initDone = true
		return
	}
	if d.enqueue(action{kind: actionRead, index: d.initIndex}) == nil {
		d.initIndex++
		d.lastInitRead = now
	}
}

// Run calls Task until ctx ends, pausing one reception poll period between passes
func (d *Device) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.Task(ctx); err != nil && ctx.Err() == nil {
			d.clock.Sleep(d.opts.WriteTimeout)
		}
		d.clock.Sleep(coupler.RXPollPeriod)
	}
}

// Write updates an object with a raw value and transmits it when the object
// has the transmit flag. The change is applied from the device loop.
func (d *Device) Write(index int, raw []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, err := d.object(index)
	if err != nil {
		return err
	}
	if want := len(obj.Value()); len(raw) != want {
		return fmt.Errorf("%w: %s expects %d bytes, got %d", comobject.ErrValueSize, obj.Name, want, len(raw))
	}
	value := make([]byte, len(raw))
	copy(value, raw)
	return d.enqueue(action{kind: actionWrite, index: index, value: value})
}

// WriteValue encodes v with the object's datapoint type and writes it
func (d *Device) WriteValue(index int, v float64) error {
	d.mu.Lock()
	obj, err := d.object(index)
	d.mu.Unlock()
	if err != nil {
		return err
	}

	format, err := dpt.Parse(obj.DPT)
	if err != nil {
		return err
	}
	raw, err := dpt.Encode(format, v)
	if err != nil {
		return err
	}
	return d.Write(index, raw)
}

// Update requests the current value of an object from the bus
func (d *Device) Update(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.object(index); err != nil {
		return err
	}
	return d.enqueue(action{kind: actionRead, index: index})
}

// Value returns a copy of the raw value of an object
func (d *Device) Value(index int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, err := d.object(index)
	if err != nil {
		return nil, err
	}
	return obj.Value(), nil
}

// DecodedValue decodes the value of an object with its datapoint type
func (d *Device) DecodedValue(index int) (float64, error) {
	d.mu.Lock()
	obj, err := d.object(index)
	if err != nil {
		d.mu.Unlock()
		return 0, err
	}
	raw := obj.Value()
	id := obj.DPT
	d.mu.Unlock()

	format, err := dpt.Parse(id)
	if err != nil {
		return 0, err
	}
	return dpt.Decode(format, raw)
}

// IsActive reports bus activity, a transmission in progress or pending actions
func (d *Device) IsActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == stateInit {
		return len(d.queue) > 0
	}
	return d.c.IsActive() || d.state == stateTxOngoing || len(d.queue) > 0
}

// OnUpdate registers fn to be called with the index of every object whose
// value was changed by the bus. fn runs on the goroutine calling Task.
func (d *Device) OnUpdate(fn func(index int)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUpdate = fn
}

// Objects returns the object list
func (d *Device) Objects() []*comobject.ComObject {
	return d.objects
}

// Index returns the object the coupler delivers telegrams for addr to. When
// several objects share the address the last communication-enabled one wins.
// Nothing resolves before Begin.
func (d *Device) Index(addr uint16) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.c.FindByAddress(addr)
}

// Stats returns a snapshot of the device counters
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Device) object(index int) (*comobject.ComObject, error) {
	if index < 0 || index >= len(d.objects) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	return d.objects[index], nil
}

func (d *Device) enqueue(a action) error {
	if len(d.queue) >= QueueSize {
		return ErrQueueFull
	}
	d.queue = append(d.queue, a)
	return nil
}
