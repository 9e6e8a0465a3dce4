package mailbox

import (
	"errors"
)

// OverflowPolicy decides what Push does when a bounded mailbox is at
// capacity.
type OverflowPolicy int32

const (
	// Reject fails the send with ErrMailboxFull.
	Reject OverflowPolicy = iota
	// Block parks the sender until room is available or the mailbox is torn down.
	Block
	// DropNewest accepts the send but discards the incoming envelope.
	DropNewest
	// DropOldest evicts the oldest queued envelope to make room.
	DropOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case Reject:
		return "reject"
	case Block:
		return "block"
	case DropNewest:
		return "drop_newest"
	case DropOldest:
		return "drop_oldest"
	default:
		return "unknown"
	}
}

var (
	// ErrClosed is returned when sending to an actor that no longer accepts messages.
	ErrClosed = errors.New("mailbox: closed")
	// ErrMailboxFull is returned under the Reject policy when capacity is exceeded.
	ErrMailboxFull = errors.New("mailbox: full")
	// ErrTimeout resolves replies whose deadline elapsed before or during processing.
	ErrTimeout = errors.New("mailbox: deadline elapsed")
)

// Mailbox is an ordered queue of envelopes for exactly one actor cell.
// Push may be called by many producers; Pop must only be called by the
// single consumer driving the cell. Envelopes are never reordered: deadline
// expiry only removes entries.
type Mailbox interface {
	// Push enqueues an envelope subject to the overflow policy.
	Push(e *Envelope) error
	// Pop removes the oldest non-expired envelope. Expired envelopes are
	// dropped on the way and their replies resolved with ErrTimeout.
	Pop() (*Envelope, bool)
	// Len reports the number of queued envelopes, expired ones included.
	Len() int
	// Close stops further Pushes. Idempotent. Queued envelopes still drain.
	Close()
	// Closed reports whether Close has been called.
	Closed() bool
	// Dispose tears the queue down, unblocking parked producers. The mailbox
	// must not be used afterwards.
	Dispose()
}

// New picks a mailbox implementation: a bounded ring-buffer mailbox when
// capacity is positive, an unbounded mpsc mailbox otherwise. The policy only
// applies to bounded mailboxes.
func New(capacity int, policy OverflowPolicy) Mailbox {
	if capacity > 0 {
		return newRingMailbox(capacity, policy)
	}
	return newMPSCMailbox()
}
