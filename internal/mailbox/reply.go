package mailbox

import (
	"go.uber.org/atomic"
)

// Reply is a one-shot reply channel carried by ask envelopes. Whoever
// resolves it first wins; later resolutions are no-ops. That property is what
// lets the timer wheel resolve an ask with ErrTimeout at the deadline while
// the handler is still grinding on the message.
type Reply struct {
	resolved *atomic.Bool
	done     chan struct{}
	value    interface{}
	err      error
}

func NewReply() *Reply {
	return &Reply{
		resolved: atomic.NewBool(false),
		done:     make(chan struct{}),
	}
}

// Resolve completes the reply with a value. Returns false if already resolved.
func (r *Reply) Resolve(value interface{}) bool {
	if !r.resolved.CompareAndSwap(false, true) {
		return false
	}
	r.value = value
	close(r.done)
	return true
}

// Fail completes the reply with an error. Returns false if already resolved.
func (r *Reply) Fail(err error) bool {
	if !r.resolved.CompareAndSwap(false, true) {
		return false
	}
	r.err = err
	close(r.done)
	return true
}

// Done is closed once the reply has been resolved either way.
func (r *Reply) Done() <-chan struct{} {
	return r.done
}

// Result returns the resolution. Only valid after Done is closed.
func (r *Reply) Result() (interface{}, error) {
	return r.value, r.err
}
