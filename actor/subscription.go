package actor

import (
	"context"
	"time"

	"github.com/rs/xid"
	"go.uber.org/atomic"

	"github.com/BoudBoud47/goactors/internal/mailbox"
	"github.com/BoudBoud47/goactors/sysmsg"
)

// SubscriptionState is the lifecycle of a stream subscription.
type SubscriptionState int32

const (
	// SubscriptionActive delivers items.
	SubscriptionActive SubscriptionState = iota
	// SubscriptionTimedOut means an item missed its per-item deadline. Terminal.
	SubscriptionTimedOut
	// SubscriptionCompleted means the source was exhausted. Terminal.
	SubscriptionCompleted
	// SubscriptionCancelled means the subscription or its actor was stopped. Terminal.
	SubscriptionCancelled
)

func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionActive:
		return "active"
	case SubscriptionTimedOut:
		return "timed_out"
	case SubscriptionCompleted:
		return "completed"
	case SubscriptionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Subscription feeds items from a source channel into its actor's mailbox,
// one sysmsg.StreamItem at a time, each optionally bounded by a per-item
// deadline. It is owned by the cell that subscribed and dies with it.
type Subscription struct {
	id              string
	addr            *Address
	sys             *System
	deadlinePerItem time.Duration
	state           *atomic.Int32
	cancelPump      context.CancelFunc
}

func newSubscription(c *cell, deadlinePerItem time.Duration) *Subscription {
	return &Subscription{
		id:              xid.New().String(),
		addr:            c.addr,
		sys:             c.sys,
		deadlinePerItem: deadlinePerItem,
		state:           atomic.NewInt32(int32(SubscriptionActive)),
	}
}

// ID identifies the subscription in sysmsg stream events.
func (s *Subscription) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Subscription) State() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

// Active reports whether items are still being delivered.
func (s *Subscription) Active() bool {
	return s.State() == SubscriptionActive
}

// Cancel stops delivery immediately. An item already dequeued by the actor
// runs to completion or to its own deadline. Idempotent; terminal states are
// never overwritten.
func (s *Subscription) Cancel() {
	if s.state.CompareAndSwap(int32(SubscriptionActive), int32(SubscriptionCancelled)) {
		s.cancelPump()
	}
}

// timeout marks the subscription TimedOut and notifies the actor exactly
// once. Called by the timer wheel when an item misses its deadline, and by
// the cell when it observes the fired timer after an abandoned unit; the CAS
// makes the two paths race-free.
func (s *Subscription) timeout() {
	if !s.state.CompareAndSwap(int32(SubscriptionActive), int32(SubscriptionTimedOut)) {
		return
	}
	s.cancelPump()
	_ = s.addr.enqueue(mailbox.NewEnvelope(sysmsg.StreamTimeout{SubscriptionID: s.id}))
}

// pump forwards source items into the mailbox until the source closes, the
// subscription leaves Active or the actor stops.
func (s *Subscription) pump(ctx context.Context, source <-chan interface{}) {
	for {
		select {
		case <-ctx.Done():
			s.state.CompareAndSwap(int32(SubscriptionActive), int32(SubscriptionCancelled))
			return
		case item, ok := <-source:
			if !ok {
				if s.state.CompareAndSwap(int32(SubscriptionActive), int32(SubscriptionCompleted)) {
					_ = s.addr.enqueue(mailbox.NewEnvelope(sysmsg.StreamCompleted{SubscriptionID: s.id}))
				}
				return
			}
			if !s.Active() {
				return
			}
			e := mailbox.NewEnvelope(sysmsg.StreamItem{SubscriptionID: s.id, Item: item})
			if s.deadlinePerItem > 0 {
				e.Deadline = time.Now().Add(s.deadlinePerItem)
				e.TimerID = s.sys.wheel.Schedule(e.Deadline, func() {
					e.MarkExpired()
					s.timeout()
				})
			}
			if err := s.addr.enqueue(e); err != nil {
				if e.TimerID != 0 {
					s.sys.wheel.Cancel(e.TimerID)
				}
				s.state.CompareAndSwap(int32(SubscriptionActive), int32(SubscriptionCancelled))
				return
			}
		}
	}
}
