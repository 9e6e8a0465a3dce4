// Package timewheel schedules deadline callbacks for the actor runtime:
// message deadlines, ask timeouts and per-item stream deadlines all land
// here. Callbacks fire at or after their deadline, never before, and a
// cancellation racing a firing is resolved in favor of "already fired".
package timewheel

import (
	"container/heap"
	"sync"
	"time"

	"go.uber.org/atomic"
)

const (
	statePending int32 = iota
	stateFired
	stateCanceled
)

// idleWait is the poll interval when no timer is armed.
const idleWait = time.Hour

type timer struct {
	id    int64
	when  time.Time
	fn    func()
	state *atomic.Int32
}

// timerHeap orders timers by deadline, ties broken by schedule order.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].id < h[j].id
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x interface{}) {
	*h = append(*h, x.(*timer))
}

func (h *timerHeap) Pop() interface{} {
	last := len(*h) - 1
	t := (*h)[last]
	(*h)[last] = nil
	*h = (*h)[:last]
	return t
}

// Wheel runs a single goroutine that pops due timers off a heap and invokes
// their callbacks in deadline order. Enqueue and dequeue paths of the runtime
// never block on it: Schedule and Cancel only take the heap lock briefly.
type Wheel struct {
	mu     sync.Mutex
	timers timerHeap
	byID   map[int64]*timer
	seq    *atomic.Int64
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func New() *Wheel {
	w := &Wheel{
		byID: make(map[int64]*timer),
		seq:  atomic.NewInt64(0),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

// Schedule arms a callback for the given deadline and returns its timer id.
// A deadline already in the past fires on the next wheel turn.
func (w *Wheel) Schedule(when time.Time, fn func()) int64 {
	t := &timer{
		id:    w.seq.Inc(),
		when:  when,
		fn:    fn,
		state: atomic.NewInt32(statePending),
	}

	w.mu.Lock()
	heap.Push(&w.timers, t)
	w.byID[t.id] = t
	earliest := w.timers[0] == t
	w.mu.Unlock()

	if earliest {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
	return t.id
}

// Cancel revokes a pending timer. It reports true when the callback will not
// run. A cancel racing the firing loses: the callback runs (or already ran)
// and Cancel returns false. Unknown ids are treated as already fired.
func (w *Wheel) Cancel(id int64) bool {
	w.mu.Lock()
	t, ok := w.byID[id]
	w.mu.Unlock()
	if !ok {
		return false
	}
	return t.state.CompareAndSwap(statePending, stateCanceled)
}

// Stop shuts the wheel down. Pending timers never fire.
func (w *Wheel) Stop() {
	w.once.Do(func() { close(w.done) })
}

func (w *Wheel) run() {
	for {
		w.mu.Lock()
		now := time.Now()
		var due []*timer
		for len(w.timers) > 0 {
			next := w.timers[0]
			if next.state.Load() == stateCanceled {
				heap.Pop(&w.timers)
				delete(w.byID, next.id)
				continue
			}
			if next.when.After(now) {
				break
			}
			heap.Pop(&w.timers)
			delete(w.byID, next.id)
			if next.state.CompareAndSwap(statePending, stateFired) {
				due = append(due, next)
			}
		}
		wait := idleWait
		if len(w.timers) > 0 {
			wait = time.Until(w.timers[0].when)
		}
		w.mu.Unlock()

		// deadline order, outside the lock
		for _, t := range due {
			t.fn()
		}

		tm := time.NewTimer(wait)
		select {
		case <-w.done:
			tm.Stop()
			return
		case <-w.wake:
			tm.Stop()
		case <-tm.C:
		}
	}
}
