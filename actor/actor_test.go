package actor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func newTestSystem(t *testing.T, opts ...Option) *System {
	t.Helper()
	sys, err := NewSystem("test", append([]Option{WithWorkerCount(2)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sys.Shutdown(ctx)
	})
	return sys
}

func recv(t *testing.T, inbox <-chan interface{}) interface{} {
	t.Helper()
	select {
	case v := <-inbox:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}

// collector forwards every received message to a channel the test reads.
type collector struct {
	inbox chan interface{}
}

func newCollector(buf int) *collector {
	return &collector{inbox: make(chan interface{}, buf)}
}

func (c *collector) Receive(_ *Context, message interface{}) error {
	c.inbox <- message
	return nil
}

// echo answers every ask with its own message.
type echo struct{}

func (echo) Receive(ctx *Context, message interface{}) error {
	ctx.Respond(message)
	return nil
}

// gated blocks inside Receive until the test releases it.
type gated struct {
	entered chan interface{}
	release chan struct{}
}

func newGated() *gated {
	return &gated{entered: make(chan interface{}, 16), release: make(chan struct{})}
}

func (g *gated) Receive(_ *Context, message interface{}) error {
	g.entered <- message
	<-g.release
	return nil
}

func TestSendDeliversInOrder(t *testing.T) {
	sys := newTestSystem(t)
	col := newCollector(128)
	addr, err := sys.Spawn("ordered", col)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, addr.Send(i))
	}
	for i := 0; i < 100; i++ {
		require.Equal(t, i, recv(t, col.inbox))
	}
}

func TestAskRespond(t *testing.T) {
	sys := newTestSystem(t)
	addr, err := sys.Spawn("echo", echo{})
	require.NoError(t, err)

	got, err := addr.Ask(context.Background(), "ping", time.Second)
	require.NoError(t, err)
	require.Equal(t, "ping", got)
}

func TestAskWithoutRespondResolvesNil(t *testing.T) {
	sys := newTestSystem(t)
	addr, err := sys.Spawn("silent", newCollector(8))
	require.NoError(t, err)

	got, err := addr.Ask(context.Background(), "ping", time.Second)
	require.NoError(t, err)
	require.Nil(t, got)
}

// sleeper ignores its deadline and grinds for the configured time. It opts
// into timeout handling so an elapsed deadline does not count as a failure.
type sleeper struct {
	grind    time.Duration
	timedOut chan interface{}
}

func (s *sleeper) Receive(_ *Context, _ interface{}) error {
	time.Sleep(s.grind)
	return nil
}

func (s *sleeper) HandleTimeout(_ *Context, message interface{}) {
	s.timedOut <- message
}

func TestAskTimesOutAtDeadlineNotAtHandlerExit(t *testing.T) {
	sys := newTestSystem(t)
	b := &sleeper{grind: 300 * time.Millisecond, timedOut: make(chan interface{}, 1)}
	addr, err := sys.Spawn("busy", b)
	require.NoError(t, err)

	start := time.Now()
	_, err = addr.Ask(context.Background(), "work", 50*time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimeout)
	// the caller is released at the deadline, not when the handler finishes
	assert.Less(t, elapsed, 250*time.Millisecond)
	require.Equal(t, "work", recv(t, b.timedOut))
}

func TestExpiredMessageNeverDelivered(t *testing.T) {
	sys := newTestSystem(t)
	g := newGated()
	addr, err := sys.Spawn("slow", g)
	require.NoError(t, err)

	require.NoError(t, addr.Send("first"))
	require.Equal(t, "first", recv(t, g.entered))

	// queued behind the blocked handler; its deadline elapses in the queue
	_, err = addr.Ask(context.Background(), "late", 30*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, addr.Send("second"))
	close(g.release)

	// the expired message is skipped, never handed to the behavior
	require.Equal(t, "second", recv(t, g.entered))
}

func TestAskCooperativeCancellation(t *testing.T) {
	sys := newTestSystem(t)
	observed := make(chan interface{}, 1)
	b := BehaviorFunc(func(ctx *Context, _ interface{}) error {
		select {
		case <-ctx.Done():
			observed <- ctx.Context().Err()
		case <-time.After(2 * time.Second):
			observed <- nil
		}
		return nil
	})
	addr, err := sys.Spawn("cooperative", b)
	require.NoError(t, err)

	_, err = addr.Ask(context.Background(), "work", 50*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, recv(t, observed).(error), context.DeadlineExceeded)
}

func TestMailboxCapacityReject(t *testing.T) {
	sys := newTestSystem(t)
	g := newGated()
	addr, err := sys.Spawn("tiny", g,
		WithMailboxCapacity(1), WithOverflowPolicy(OverflowReject))
	require.NoError(t, err)

	require.NoError(t, addr.Send("a"))
	require.Equal(t, "a", recv(t, g.entered)) // handler now blocked on "a"
	require.NoError(t, addr.Send("b"))        // fills the single slot

	err = addr.Send("c")
	require.ErrorIs(t, err, ErrMailboxFull)
	close(g.release)
}

func TestMailboxDropNewest(t *testing.T) {
	sys := newTestSystem(t)
	g := newGated()
	addr, err := sys.Spawn("droppy", g,
		WithMailboxCapacity(1), WithOverflowPolicy(OverflowDropNewest))
	require.NoError(t, err)

	require.NoError(t, addr.Send("a"))
	require.Equal(t, "a", recv(t, g.entered))
	require.NoError(t, addr.Send("b"))
	require.NoError(t, addr.Send("dropped")) // accepted, silently discarded
	close(g.release)

	require.Equal(t, "b", recv(t, g.entered))
	select {
	case m := <-g.entered:
		t.Fatalf("dropped message was delivered: %v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStopDrainsQueuedMessages(t *testing.T) {
	sys := newTestSystem(t)
	col := newCollector(32)
	addr, err := sys.Spawn("draining", col)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, addr.Send(i))
	}
	addr.Stop()

	for i := 0; i < 10; i++ {
		require.Equal(t, i, recv(t, col.inbox))
	}
	require.Eventually(t, func() bool {
		return addr.Send("late") != nil
	}, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, addr.Send("late"), ErrClosed)
}

// lifecycle records its hook invocations.
type lifecycle struct {
	starts *atomic.Int32
	stops  *atomic.Int32
}

func (l *lifecycle) PreStart(_ *Context) error { l.starts.Inc(); return nil }
func (l *lifecycle) PostStop(_ *Context)       { l.stops.Inc() }

func (l *lifecycle) Receive(_ *Context, _ interface{}) error {
	return nil
}

func TestLifecycleHooks(t *testing.T) {
	sys := newTestSystem(t)
	b := &lifecycle{starts: atomic.NewInt32(0), stops: atomic.NewInt32(0)}
	addr, err := sys.Spawn("hooked", b)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.starts.Load() == 1 }, time.Second, 5*time.Millisecond)
	addr.Stop()
	require.Eventually(t, func() bool { return b.stops.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestLookup(t *testing.T) {
	sys := newTestSystem(t)
	addr, err := sys.Spawn("well-known", echo{})
	require.NoError(t, err)

	found, ok := sys.Lookup("well-known")
	require.True(t, ok)
	require.Same(t, addr, found)

	_, ok = sys.Lookup("nobody")
	require.False(t, ok)

	addr.Stop()
	require.Eventually(t, func() bool {
		_, ok := sys.Lookup("well-known")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestSpawnDuplicateName(t *testing.T) {
	sys := newTestSystem(t)
	_, err := sys.Spawn("dup", echo{})
	require.NoError(t, err)
	_, err = sys.Spawn("dup", echo{})
	require.ErrorIs(t, err, ErrNameTaken)
}

func TestScheduleOnce(t *testing.T) {
	sys := newTestSystem(t)
	ticks := make(chan interface{}, 4)
	b := BehaviorFunc(func(ctx *Context, message interface{}) error {
		if message == "arm" {
			ctx.ScheduleOnce(20*time.Millisecond, "tick")
			return nil
		}
		ticks <- message
		return nil
	})
	addr, err := sys.Spawn("timed", b)
	require.NoError(t, err)

	require.NoError(t, addr.Send("arm"))
	require.Equal(t, "tick", recv(t, ticks))
}

func TestShutdownStopsSpawns(t *testing.T) {
	sys, err := NewSystem("closing", WithWorkerCount(2))
	require.NoError(t, err)
	_, err = sys.Spawn("a", echo{})
	require.NoError(t, err)

	require.NoError(t, sys.Shutdown(context.Background()))
	require.NoError(t, sys.Shutdown(context.Background())) // idempotent

	_, err = sys.Spawn("b", echo{})
	require.ErrorIs(t, err, ErrSupervisorClosed)
}

func BenchmarkSend(b *testing.B) {
	sys, err := NewSystem("bench")
	if err != nil {
		b.Fatal(err)
	}
	defer sys.Shutdown(context.Background())

	done := make(chan struct{})
	var seen int
	sink := BehaviorFunc(func(_ *Context, _ interface{}) error {
		seen++
		if seen == b.N {
			close(done)
		}
		return nil
	})
	addr, err := sys.Spawn("sink", sink)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := addr.Send(i); err != nil {
			b.Fatal(err)
		}
	}
	<-done
}

func BenchmarkAsk(b *testing.B) {
	sys, err := NewSystem("bench")
	if err != nil {
		b.Fatal(err)
	}
	defer sys.Shutdown(context.Background())

	addr, err := sys.Spawn("echo", echo{})
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := addr.Ask(ctx, i, time.Second); err != nil {
			b.Fatal(fmt.Errorf("ask %d: %w", i, err))
		}
	}
}
