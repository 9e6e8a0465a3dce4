// Package executor runs bounded units of actor work on a fixed pool of
// workers. Submissions never block the sender: each actor cell keeps at most
// one pending unit in the ready queue, so the queue depth is bounded by the
// number of live cells.
package executor

import (
	"runtime"
	"sync"

	"go.uber.org/atomic"
)

const readyQueueSize = 1024

// Pool is a fixed set of workers pulling work units off a shared ready
// queue. With one worker it degenerates into a deterministic single-threaded
// event loop, which is what the timing-sensitive tests run on.
type Pool struct {
	ready   chan func()
	done    chan struct{}
	closed  *atomic.Bool
	wg      sync.WaitGroup
	workers int
}

// New starts a pool. A non-positive worker count defaults to the available
// hardware parallelism.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		ready:   make(chan func(), readyQueueSize),
		done:    make(chan struct{}),
		closed:  atomic.NewBool(false),
		workers: workers,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Workers reports the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit queues one unit of work. It reports false once the pool has shut
// down. Submit never blocks the caller: if the ready queue is momentarily
// full the handoff is finished by a short-lived goroutine.
func (p *Pool) Submit(unit func()) bool {
	if p.closed.Load() {
		return false
	}
	select {
	case p.ready <- unit:
	default:
		go func() {
			select {
			case p.ready <- unit:
			case <-p.done:
			}
		}()
	}
	return true
}

// Shutdown stops the workers. Units still queued are dropped; in-flight
// units run to completion.
func (p *Pool) Shutdown() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case unit := <-p.ready:
			unit()
		}
	}
}
