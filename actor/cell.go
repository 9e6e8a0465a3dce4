package actor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/BoudBoud47/goactors/internal/mailbox"
	"github.com/BoudBoud47/goactors/sysmsg"
)

// Cell states. Starting and Running may move to Stopping (explicit stop) or
// Failed (handler error, panic or unhandled processing timeout). Failed is
// terminal for the cell itself; the supervisor decides whether a fresh cell
// takes over the mailbox.
const (
	cellStarting int32 = iota
	cellRunning
	cellStopping
	cellStopped
	cellFailed
)

// cell owns one behavior instance and drives its execution loop. Exactly one
// worker runs a cell at any instant: the scheduled flag admits a single
// pending work unit, and a unit processes at most one message before
// rescheduling. That single-writer discipline is what lets behaviors keep
// unguarded state.
type cell struct {
	id          string // stable actor id, shared with the address
	incarnation int    // bumped on every restart
	name        string
	behavior    Behavior
	mbox        mailbox.Mailbox
	addr        *Address
	sup         *Supervisor
	sys         *System
	log         *zap.Logger

	state     *atomic.Int32
	scheduled *atomic.Bool

	// runMu is held for the whole of every work unit (start hook or step).
	// Replacing a cell waits on it, so a fresh incarnation never overlaps an
	// in-flight Receive of the old one.
	runMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	subsMu sync.Mutex
	subs   map[string]*Subscription

	done     chan struct{}
	tearOnce sync.Once
	discOnce sync.Once
}

func newCell(addr *Address, incarnation int, behavior Behavior, sup *Supervisor, sys *System) *cell {
	ctx, cancel := context.WithCancel(context.Background())
	return &cell{
		id:          addr.id,
		incarnation: incarnation,
		name:        addr.name,
		behavior:    behavior,
		mbox:        addr.mbox,
		addr:        addr,
		sup:         sup,
		sys:         sys,
		log:         sys.log.With(zap.String("actor", addr.name), zap.Int("incarnation", incarnation)),
		state:       atomic.NewInt32(cellStarting),
		scheduled:   atomic.NewBool(false),
		ctx:         ctx,
		cancel:      cancel,
		subs:        make(map[string]*Subscription),
		done:        make(chan struct{}),
	}
}

// start runs the behavior's start hook and opens the message loop. Submitted
// to the executor by the supervisor at spawn and restart.
func (c *cell) start() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.state.Load() != cellStarting {
		// abandoned before the unit got to run; the hook must not fire
		return
	}
	if _, ok := c.behavior.(PreStarter); ok {
		err, panicked := c.runStartHook()
		if panicked != nil {
			c.fail(sysmsg.Reason{Type: sysmsg.StartFailure, Details: panicked})
			return
		}
		if err != nil {
			c.fail(sysmsg.Reason{Type: sysmsg.StartFailure, Details: err})
			return
		}
	}
	// a stop may have raced the start; the drain path below works either way
	c.state.CompareAndSwap(cellStarting, cellRunning)
	c.log.Debug("actor running")
	c.signal()
}

func (c *cell) runStartHook() (err error, panicked interface{}) {
	defer func() {
		if r := recover(); r != nil {
			panicked = r
		}
	}()
	err = c.behavior.(PreStarter).PreStart(&Context{cell: c, ctx: c.ctx})
	return
}

// signal requests one work unit for this cell. Producers call it after every
// push; only the first call wins until the unit has run.
func (c *cell) signal() {
	if !c.scheduled.CompareAndSwap(false, true) {
		return
	}
	if !c.sys.pool.Submit(c.step) {
		c.scheduled.Store(false)
	}
}

// step is one bounded unit of work: at most one message. Fairness across
// actors comes from re-queueing instead of looping here.
func (c *cell) step() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	switch c.state.Load() {
	case cellRunning, cellStopping:
	default:
		c.scheduled.Store(false)
		return
	}

	if e, ok := c.mbox.Pop(); ok {
		c.processOne(e)
	} else if c.state.Load() == cellStopping {
		c.terminate()
	}

	c.scheduled.Store(false)
	// re-check after clearing the flag so a concurrent push is not lost
	switch c.state.Load() {
	case cellRunning:
		if c.mbox.Len() > 0 {
			c.signal()
		}
	case cellStopping:
		c.signal()
	}
}

func (c *cell) processOne(e *mailbox.Envelope) {
	// stream discipline: items of a subscription that is no longer active
	// are dropped without reaching the behavior
	if item, ok := e.Payload.(sysmsg.StreamItem); ok {
		sub := c.subscription(item.SubscriptionID)
		if sub == nil || !sub.Active() {
			if e.TimerID != 0 {
				c.sys.wheel.Cancel(e.TimerID)
			}
			return
		}
	}

	hctx := c.ctx
	if !e.Deadline.IsZero() {
		var cancel context.CancelFunc
		hctx, cancel = context.WithDeadline(c.ctx, e.Deadline)
		defer cancel()
	}
	rctx := &Context{cell: c, ctx: hctx, envelope: e}

	err, panicked := c.invoke(rctx, e)

	// the wheel is the arbiter of the timeout race: if the deadline timer
	// cannot be canceled it has fired and the timeout outcome stands, even
	// when the handler finished a hair later
	timedOut := false
	if e.TimerID != 0 && !c.sys.wheel.Cancel(e.TimerID) {
		timedOut = true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		timedOut = true
	}

	switch {
	case timedOut:
		c.onTimeout(rctx, e)
	case panicked != nil:
		if e.Reply != nil {
			e.Reply.Fail(ErrCrashed)
		}
		c.log.Warn("behavior panicked", zap.Any("panic", panicked))
		c.fail(sysmsg.Reason{Type: sysmsg.Panic, Details: panicked})
	case err != nil:
		if e.Reply != nil {
			e.Reply.Fail(ErrCrashed)
		}
		c.log.Warn("behavior returned an error", zap.Error(err))
		c.fail(sysmsg.Reason{Type: sysmsg.Error, Details: err})
	default:
		if e.Reply != nil {
			// an explicit Respond already resolved the reply; this is a no-op then
			e.Reply.Resolve(nil)
		}
	}
}

func (c *cell) invoke(rctx *Context, e *mailbox.Envelope) (err error, panicked interface{}) {
	defer func() {
		if r := recover(); r != nil {
			panicked = r
		}
	}()
	err = c.behavior.Receive(rctx, e.Payload)
	return
}

// onTimeout settles an abandoned work unit. The reply was already resolved
// with ErrTimeout by the wheel; stream items settle at subscription level,
// ordinary messages fail the cell unless the behavior opted into handling
// timeouts.
func (c *cell) onTimeout(rctx *Context, e *mailbox.Envelope) {
	if e.Reply != nil {
		e.Reply.Fail(ErrTimeout)
	}
	if item, ok := e.Payload.(sysmsg.StreamItem); ok {
		if sub := c.subscription(item.SubscriptionID); sub != nil {
			sub.timeout()
		}
		return
	}
	if handler, ok := c.behavior.(TimeoutHandler); ok {
		handler.HandleTimeout(rctx, e.Payload)
		return
	}
	c.log.Warn("processing deadline elapsed", zap.Any("message", e.Payload))
	c.fail(sysmsg.Reason{Type: sysmsg.Timeout, Details: e.Payload})
}

// stop initiates graceful shutdown: close the mailbox, drain what is queued,
// then tear down. Idempotent.
func (c *cell) stop() {
	for {
		switch s := c.state.Load(); s {
		case cellStopping, cellStopped, cellFailed:
			return
		default:
			if c.state.CompareAndSwap(s, cellStopping) {
				c.mbox.Close()
				c.signal()
				return
			}
		}
	}
}

// terminate completes a graceful stop once the mailbox has drained.
func (c *cell) terminate() {
	if !c.state.CompareAndSwap(cellStopping, cellStopped) {
		return
	}
	c.discard()
	c.teardown(true)
	c.sup.childStopped(c)
	c.log.Debug("actor stopped")
}

// fail moves the cell to Failed and reports to the supervisor, which may
// rebind the address to a fresh cell. Handler failures never unwind into the
// scheduler: this is the only propagation path.
func (c *cell) fail(reason sysmsg.Reason) {
	for {
		switch s := c.state.Load(); s {
		case cellStopped, cellFailed:
			return
		case cellStopping:
			// a failure while draining ends the drain early
			if c.state.CompareAndSwap(s, cellFailed) {
				c.teardown(false)
				c.sup.childStopped(c)
				return
			}
		default:
			if c.state.CompareAndSwap(s, cellFailed) {
				c.teardown(false)
				c.sup.childFailed(c, reason)
				return
			}
		}
	}
}

// abandon silences a cell that is being replaced or force-stopped. Any unit
// still in flight runs to completion but its outcome is discarded by the
// state checks.
func (c *cell) abandon() {
	for {
		switch s := c.state.Load(); s {
		case cellStopped:
			return
		default:
			if c.state.CompareAndSwap(s, cellStopped) {
				c.teardown(false)
				return
			}
		}
	}
}

// discard terminally drops everything still queued, resolving pending
// replies with ErrClosed, and unblocks parked producers. Callers other than
// the cell's own unit must quiesce first: Pop is single-consumer.
func (c *cell) discard() {
	c.discOnce.Do(func() {
		c.mbox.Close()
		for {
			e, ok := c.mbox.Pop()
			if !ok {
				break
			}
			if e.TimerID != 0 {
				c.sys.wheel.Cancel(e.TimerID)
			}
			if e.Reply != nil {
				e.Reply.Fail(ErrClosed)
			}
		}
		c.mbox.Dispose()
	})
}

// quiesce returns once no worker is executing a unit for this cell. Units
// that begin afterwards see the terminal state and touch neither the
// behavior nor the mailbox, so a post-quiesce replacement is safe.
func (c *cell) quiesce() {
	c.runMu.Lock()
	c.runMu.Unlock()
}

// teardown cancels the cell context (which cancels stream pumps), runs the
// stop hook and closes the done channel. Runs exactly once per cell.
func (c *cell) teardown(runStopHook bool) {
	c.tearOnce.Do(func() {
		c.cancel()
		c.cancelSubscriptions()
		if runStopHook {
			if hook, ok := c.behavior.(PostStopper); ok {
				func() {
					defer func() { _ = recover() }()
					hook.PostStop(&Context{cell: c, ctx: context.Background()})
				}()
			}
		}
		close(c.done)
	})
}

func (c *cell) subscribe(source <-chan interface{}, deadlinePerItem time.Duration) (*Subscription, error) {
	switch c.state.Load() {
	case cellStarting, cellRunning:
	default:
		return nil, ErrClosed
	}
	sub := newSubscription(c, deadlinePerItem)
	c.subsMu.Lock()
	c.subs[sub.id] = sub
	c.subsMu.Unlock()

	pctx, cancel := context.WithCancel(c.ctx)
	sub.cancelPump = cancel
	go sub.pump(pctx, source)
	return sub, nil
}

func (c *cell) subscription(id string) *Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	return c.subs[id]
}

func (c *cell) cancelSubscriptions() {
	c.subsMu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subsMu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
}
