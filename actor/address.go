package actor

import (
	"context"
	"sync/atomic"
	"time"

	uatomic "go.uber.org/atomic"

	"github.com/BoudBoud47/goactors/internal/mailbox"
)

// Address is a cheap, shareable handle used to send messages to one actor.
// It never owns the actor: it holds the actor id and the mailbox, plus a
// rebindable reference to the current cell. A restart swaps the cell behind
// the address, so handles taken before the restart keep working.
type Address struct {
	id   string
	name string
	mbox mailbox.Mailbox
	sys  *System
	cell atomic.Pointer[cell]
	dead *uatomic.Bool
}

func newAddress(id, name string, mbox mailbox.Mailbox, sys *System) *Address {
	return &Address{
		id:   id,
		name: name,
		mbox: mbox,
		sys:  sys,
		dead: uatomic.NewBool(false),
	}
}

// ID returns the stable actor id. It survives restarts.
func (a *Address) ID() string {
	return a.id
}

// Name returns the name the actor was spawned under.
func (a *Address) Name() string {
	return a.name
}

// Send enqueues a message. A nil error means the message was accepted by the
// mailbox; otherwise ErrClosed or ErrMailboxFull is returned. A message whose
// deadline elapses in the queue is dropped, never delivered.
func (a *Address) Send(message interface{}) error {
	return a.enqueue(mailbox.NewEnvelope(message))
}

// SendWithDeadline enqueues a message that must be dequeued and fully
// processed before the deadline elapses. An expired message is dropped, never
// delivered.
func (a *Address) SendWithDeadline(message interface{}, timeout time.Duration) error {
	e := mailbox.NewEnvelope(message)
	if timeout > 0 {
		e.Deadline = time.Now().Add(timeout)
	}
	return a.enqueue(e)
}

// Ask sends a message and waits for the actor's reply. The timeout bounds
// both the queue wait and the processing: the caller gets ErrTimeout at the
// deadline even when the handler is still busy. A handler crash on this
// message resolves the ask with ErrCrashed.
func (a *Address) Ask(ctx context.Context, message interface{}, timeout time.Duration) (interface{}, error) {
	e := mailbox.NewEnvelope(message)
	e.Reply = mailbox.NewReply()
	if timeout > 0 {
		e.Deadline = time.Now().Add(timeout)
	}
	if err := a.enqueue(e); err != nil {
		return nil, err
	}
	select {
	case <-e.Reply.Done():
		return e.Reply.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubscribeStream attaches the actor to a source channel. Items are delivered
// through the regular receive path as sysmsg.StreamItem, one at a time. A
// positive deadlinePerItem bounds every item's queue wait plus processing;
// the first miss marks the subscription TimedOut, notifies the actor once
// with sysmsg.StreamTimeout and stops delivery for good.
func (a *Address) SubscribeStream(source <-chan interface{}, deadlinePerItem time.Duration) (*Subscription, error) {
	c := a.cell.Load()
	if c == nil || a.dead.Load() {
		return nil, ErrClosed
	}
	return c.subscribe(source, deadlinePerItem)
}

// Stop initiates a graceful shutdown: the mailbox closes, queued messages
// drain and the cell tears down. Idempotent.
func (a *Address) Stop() {
	if c := a.cell.Load(); c != nil {
		c.stop()
	}
}

// enqueue arms the deadline timer, pushes the envelope and wakes the cell.
func (a *Address) enqueue(e *mailbox.Envelope) error {
	if a.dead.Load() {
		return ErrClosed
	}
	if !e.Deadline.IsZero() && e.TimerID == 0 {
		e.TimerID = a.sys.wheel.Schedule(e.Deadline, e.Expire)
	}
	if err := a.mbox.Push(e); err != nil {
		if e.TimerID != 0 {
			a.sys.wheel.Cancel(e.TimerID)
		}
		return err
	}
	a.signal()
	return nil
}

func (a *Address) signal() {
	if c := a.cell.Load(); c != nil {
		c.signal()
	}
}

// rebind points the address at a fresh cell. Called by the supervisor during
// spawn and restart; holders of the address never notice.
func (a *Address) rebind(c *cell) {
	a.cell.Store(c)
}

// markDead makes every further send fail with ErrClosed.
func (a *Address) markDead() {
	a.dead.Store(true)
}
