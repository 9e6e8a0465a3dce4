package mailbox

import (
	"time"

	"go.uber.org/atomic"
)

// Envelope is one message plus its metadata. A zero Deadline means the
// message never expires.
type Envelope struct {
	Payload  interface{}
	Reply    *Reply
	Deadline time.Time
	// TimerID references the deadline timer armed by the sender, if any.
	TimerID int64

	expired *atomic.Bool
}

func NewEnvelope(payload interface{}) *Envelope {
	return &Envelope{
		Payload: payload,
		expired: atomic.NewBool(false),
	}
}

// MarkExpired flags the envelope as timed out. Called by the timer wheel at
// the deadline; the flag is what makes the cancel-vs-fire race deterministic.
func (e *Envelope) MarkExpired() {
	e.expired.Store(true)
}

// Expired reports whether the envelope's deadline has elapsed, either because
// its timer fired or because the deadline is visibly in the past.
func (e *Envelope) Expired() bool {
	if e.expired.Load() {
		return true
	}
	return !e.Deadline.IsZero() && time.Now().After(e.Deadline)
}

// Expire flags the envelope and resolves the reply (if any) with ErrTimeout.
// Safe to call more than once; only the first resolution wins.
func (e *Envelope) Expire() {
	e.MarkExpired()
	if e.Reply != nil {
		e.Reply.Fail(ErrTimeout)
	}
}
