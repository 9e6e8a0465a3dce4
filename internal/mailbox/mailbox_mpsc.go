package mailbox

import (
	mpsc "github.com/t3rm1n4l/go-mpscqueue"
	"go.uber.org/atomic"
)

// mpscMailbox is an unbounded mailbox on a multi-producer single-consumer
// queue. Overflow policies do not apply: Push only fails once closed.
type mpscMailbox struct {
	q      *mpsc.MPSCQueue
	closed *atomic.Bool
}

func newMPSCMailbox() *mpscMailbox {
	return &mpscMailbox{
		q:      mpsc.New(),
		closed: atomic.NewBool(false),
	}
}

func (m *mpscMailbox) Push(e *Envelope) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.q.Push(e)
	return nil
}

func (m *mpscMailbox) Pop() (*Envelope, bool) {
	for m.q.Size() != 0 {
		e, ok := m.q.Pop().(*Envelope)
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

func (m *mpscMailbox) Len() int {
	return int(m.q.Size())
}

func (m *mpscMailbox) Close() {
	m.closed.Store(true)
}

func (m *mpscMailbox) Closed() bool {
	return m.closed.Load()
}

func (m *mpscMailbox) Dispose() {
	m.closed.Store(true)
}
