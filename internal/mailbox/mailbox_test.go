package mailbox

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopFIFO(t *testing.T) {
	for name, m := range map[string]Mailbox{
		"bounded":   New(16, Reject),
		"unbounded": New(0, Reject),
	} {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 10; i++ {
				require.NoError(t, m.Push(NewEnvelope(i)))
			}
			for i := 0; i < 10; i++ {
				e, ok := m.Pop()
				require.True(t, ok)
				assert.Equal(t, i, e.Payload)
			}
			_, ok := m.Pop()
			assert.False(t, ok)
		})
	}
}

func TestRejectPolicy(t *testing.T) {
	m := New(1, Reject)
	require.NoError(t, m.Push(NewEnvelope("first")))
	err := m.Push(NewEnvelope("second"))
	assert.ErrorIs(t, err, ErrMailboxFull)
}

func TestDropNewestPolicy(t *testing.T) {
	m := New(1, DropNewest)
	require.NoError(t, m.Push(NewEnvelope("kept")))

	dropped := NewEnvelope("dropped")
	dropped.Reply = NewReply()
	require.NoError(t, m.Push(dropped))

	// the asker behind the dropped envelope must not hang
	select {
	case <-dropped.Reply.Done():
		_, err := dropped.Reply.Result()
		assert.ErrorIs(t, err, ErrMailboxFull)
	default:
		t.Fatal("dropped envelope's reply was not resolved")
	}

	e, ok := m.Pop()
	require.True(t, ok)
	assert.Equal(t, "kept", e.Payload)
}

func TestDropOldestPolicy(t *testing.T) {
	m := New(1, DropOldest)
	oldest := NewEnvelope("oldest")
	oldest.Reply = NewReply()
	require.NoError(t, m.Push(oldest))
	require.NoError(t, m.Push(NewEnvelope("newest")))

	e, ok := m.Pop()
	require.True(t, ok)
	assert.Equal(t, "newest", e.Payload)

	<-oldest.Reply.Done()
	_, err := oldest.Reply.Result()
	assert.ErrorIs(t, err, ErrMailboxFull)
}

func TestCloseStopsPushesButDrains(t *testing.T) {
	m := New(4, Reject)
	require.NoError(t, m.Push(NewEnvelope("queued")))

	m.Close()
	m.Close() // idempotent
	assert.True(t, m.Closed())

	err := m.Push(NewEnvelope("late"))
	assert.ErrorIs(t, err, ErrClosed)

	e, ok := m.Pop()
	require.True(t, ok)
	assert.Equal(t, "queued", e.Payload)
}

func TestExpiredEnvelopeSkippedOnPop(t *testing.T) {
	m := New(4, Reject)

	stale := NewEnvelope("stale")
	stale.Deadline = time.Now().Add(-time.Millisecond)
	stale.Reply = NewReply()
	require.NoError(t, m.Push(stale))
	require.NoError(t, m.Push(NewEnvelope("fresh")))

	e, ok := m.Pop()
	require.True(t, ok)
	assert.Equal(t, "fresh", e.Payload)

	<-stale.Reply.Done()
	_, err := stale.Reply.Result()
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestReplyResolvesOnce(t *testing.T) {
	r := NewReply()
	assert.True(t, r.Resolve("winner"))
	assert.False(t, r.Fail(ErrTimeout))
	assert.False(t, r.Resolve("loser"))

	v, err := r.Result()
	assert.NoError(t, err)
	assert.Equal(t, "winner", v)
}

func TestDropOldestEvictionDoesNotStallPop(t *testing.T) {
	m := New(1, DropOldest)

	// producers evict each other constantly on the 1-slot buffer; every
	// eviction can race the consumer's length check and steal the entry it
	// was about to dequeue. Pop must come back empty-handed, not park.
	var producers sync.WaitGroup
	for p := 0; p < 4; p++ {
		producers.Add(1)
		go func() {
			defer producers.Done()
			for i := 0; i < 500; i++ {
				_ = m.Push(NewEnvelope(i))
			}
		}()
	}

	popped := make(chan struct{})
	go func() {
		defer close(popped)
		for i := 0; i < 2000; i++ {
			m.Pop()
		}
	}()

	producers.Wait()
	select {
	case <-popped:
	case <-time.After(5 * time.Second):
		t.Fatal("Pop parked on an emptied buffer")
	}
}

func TestBlockPolicyUnblocksOnDispose(t *testing.T) {
	m := New(1, Block)
	require.NoError(t, m.Push(NewEnvelope("filler")))

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Push(NewEnvelope("parked"))
	}()

	time.Sleep(20 * time.Millisecond)
	m.Dispose()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("parked producer was not released")
	}
}
