package mailbox

import (
	"errors"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"go.uber.org/atomic"
)

// dropOldestRetries bounds the evict-then-offer loop under the DropOldest
// policy when many producers hammer a tiny mailbox.
const dropOldestRetries = 8

// ringMailbox is a bounded mailbox backed by a lock-free ring buffer.
type ringMailbox struct {
	buf    *queue.RingBuffer
	policy OverflowPolicy
	closed *atomic.Bool
}

func newRingMailbox(capacity int, policy OverflowPolicy) *ringMailbox {
	return &ringMailbox{
		buf:    queue.NewRingBuffer(uint64(capacity)),
		policy: policy,
		closed: atomic.NewBool(false),
	}
}

func (m *ringMailbox) Push(e *Envelope) error {
	if m.closed.Load() {
		return ErrClosed
	}

	switch m.policy {
	case Block:
		if err := m.buf.Put(e); err != nil {
			// the buffer was disposed while we were parked
			return ErrClosed
		}
		return nil

	case DropNewest:
		ok, err := m.buf.Offer(e)
		if err != nil {
			return ErrClosed
		}
		if !ok {
			// the send is accepted, the envelope is not; the asker must
			// still be unblocked
			if e.Reply != nil {
				e.Reply.Fail(ErrMailboxFull)
			}
		}
		return nil

	case DropOldest:
		for i := 0; i < dropOldestRetries; i++ {
			ok, err := m.buf.Offer(e)
			if err != nil {
				return ErrClosed
			}
			if ok {
				return nil
			}
			old, err := m.buf.Poll(time.Millisecond)
			if err != nil {
				continue
			}
			if evicted, ok := old.(*Envelope); ok && evicted.Reply != nil {
				evicted.Reply.Fail(ErrMailboxFull)
			}
		}
		return ErrMailboxFull

	default: // Reject
		ok, err := m.buf.Offer(e)
		if err != nil {
			return ErrClosed
		}
		if !ok {
			return ErrMailboxFull
		}
		return nil
	}
}

func (m *ringMailbox) Pop() (*Envelope, bool) {
	for m.buf.Len() > 0 {
		// Poll, not Get: a DropOldest eviction can take the last entry
		// between the length check and the dequeue, and Get would park the
		// consumer on the empty buffer
		item, err := m.buf.Poll(time.Millisecond)
		if err != nil {
			if errors.Is(err, queue.ErrTimeout) {
				continue
			}
			return nil, false
		}
		e, ok := item.(*Envelope)
		if !ok {
			continue
		}
		if e.Expired() {
			e.Expire()
			continue
		}
		return e, true
	}
	return nil, false
}

func (m *ringMailbox) Len() int {
	return int(m.buf.Len())
}

func (m *ringMailbox) Close() {
	m.closed.Store(true)
}

func (m *ringMailbox) Closed() bool {
	return m.closed.Load()
}

func (m *ringMailbox) Dispose() {
	m.closed.Store(true)
	m.buf.Dispose()
}
