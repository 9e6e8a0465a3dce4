package actor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BoudBoud47/goactors/internal/mailbox"
)

// Context is the per-actor handle passed to every Receive call. It exposes
// the self address, spawning, timers and the cooperative cancellation
// checkpoint for the message being processed. A Context is only valid for
// the duration of the call it was passed to.
type Context struct {
	cell     *cell
	ctx      context.Context
	envelope *mailbox.Envelope
}

// Self returns the address of the running actor.
func (c *Context) Self() *Address {
	return c.cell.addr
}

// System returns the owning runtime.
func (c *Context) System() *System {
	return c.cell.sys
}

// Logger returns the actor-scoped logger.
func (c *Context) Logger() *zap.Logger {
	return c.cell.log
}

// Context returns the cancellation checkpoint for the current message. It
// carries the message deadline, if one was set, and is canceled when the
// actor stops. Long-running handlers should poll it: abandoning work at the
// deadline is cooperative, never preemptive.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Done is a shorthand for Context().Done().
func (c *Context) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Respond resolves the reply channel of the message being processed. It
// reports false when there is nothing to respond to: the message was not an
// ask, or the ask already timed out.
func (c *Context) Respond(value interface{}) bool {
	if c.envelope == nil || c.envelope.Reply == nil {
		return false
	}
	return c.envelope.Reply.Resolve(value)
}

// Spawn starts a child actor under the same supervisor as the running actor.
func (c *Context) Spawn(name string, behavior Behavior, opts ...SpawnOption) (*Address, error) {
	return c.cell.sup.Spawn(name, behavior, opts...)
}

// ScheduleOnce delivers the message to the running actor after the delay.
// It returns a timer id for CancelTimer.
func (c *Context) ScheduleOnce(delay time.Duration, message interface{}) int64 {
	addr := c.cell.addr
	return c.cell.sys.wheel.Schedule(time.Now().Add(delay), func() {
		_ = addr.Send(message)
	})
}

// CancelTimer revokes a timer created with ScheduleOnce. It reports false if
// the timer already fired.
func (c *Context) CancelTimer(id int64) bool {
	return c.cell.sys.wheel.Cancel(id)
}

// Stop initiates graceful shutdown of the running actor. Messages already
// queued still drain.
func (c *Context) Stop() {
	c.cell.stop()
}
