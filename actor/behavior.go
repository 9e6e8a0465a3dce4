// Package actor implements a supervised actor runtime: per-actor mailboxes
// with configurable overflow policies, timeout-bounded message and stream
// processing, a fixed worker pool scheduling cells one message at a time, and
// supervisors that restart failed actors within a sliding restart budget.
//
// Actors are synchronous: a behavior processes exactly one message at a time
// and is never re-entered, so it needs no internal locking. All state a
// behavior owns is touched only by the worker currently driving its cell.
package actor

// Behavior is the message handler of an actor. Receive is called for one
// message at a time; returning a non-nil error fails the cell and hands the
// decision to its supervisor. Panics are caught at the cell boundary and
// treated the same way.
//
// Stream subscriptions deliver sysmsg.StreamItem, sysmsg.StreamTimeout and
// sysmsg.StreamCompleted values through Receive.
type Behavior interface {
	Receive(ctx *Context, message interface{}) error
}

// BehaviorFunc adapts a plain function to the Behavior interface.
type BehaviorFunc func(ctx *Context, message interface{}) error

func (f BehaviorFunc) Receive(ctx *Context, message interface{}) error {
	return f(ctx, message)
}

// PreStarter is implemented by behaviors that need a start hook. It runs in
// the Starting state, before any message is processed; an error moves the
// cell straight to Failed and the supervisor decides what happens next.
// It runs again on every restart, which is the place to reset state.
type PreStarter interface {
	PreStart(ctx *Context) error
}

// PostStopper is implemented by behaviors that want a teardown hook once the
// cell reaches Stopped.
type PostStopper interface {
	PostStop(ctx *Context)
}

// TimeoutHandler marks a processing deadline as recoverable: when a message's
// deadline elapses before Receive finishes, HandleTimeout is called instead
// of failing the cell. Behaviors that do not implement it fail on timeout and
// go through the supervisor like any other failure.
type TimeoutHandler interface {
	HandleTimeout(ctx *Context, message interface{})
}
