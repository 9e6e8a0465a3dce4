package actor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/BoudBoud47/goactors/internal/mailbox"
	"github.com/BoudBoud47/goactors/sysmsg"
)

// restartTracker keeps a sliding window of restart timestamps per child, so
// the budget counts only recent restarts: MaxRestarts within Window.
type restartTracker struct {
	maxRestarts int
	window      time.Duration

	mu      sync.Mutex
	history map[string][]time.Time
}

func newRestartTracker(maxRestarts int, window time.Duration) *restartTracker {
	return &restartTracker{
		maxRestarts: maxRestarts,
		window:      window,
		history:     make(map[string][]time.Time),
	}
}

// allow reports whether one more restart of the child still fits the budget.
func (t *restartTracker) allow(id string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.prune(id, now)) < t.maxRestarts
}

func (t *restartTracker) record(id string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history[id] = append(t.prune(id, now), now)
}

// prune drops timestamps that slid out of the window. Caller holds the lock.
func (t *restartTracker) prune(id string, now time.Time) []time.Time {
	recent := t.history[id][:0]
	for _, ts := range t.history[id] {
		if now.Sub(ts) < t.window {
			recent = append(recent, ts)
		}
	}
	t.history[id] = recent
	return recent
}

func (t *restartTracker) forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.history, id)
}

// child tracks one supervised actor. The address and its mailbox are stable;
// the cell is replaced on every restart.
type child struct {
	name     string
	behavior Behavior
	addr     *Address
	cell     *cell
	restarts int
}

// Supervisor owns a set of actors and applies its restart strategy when one
// of them fails. Supervisors form a tree: give-ups and escalations travel up,
// restarts travel down.
type Supervisor struct {
	id     string
	name   string
	sys    *System
	parent *Supervisor

	spec    SupervisorSpec
	tracker *restartTracker

	mu       sync.Mutex
	children map[string]*child
	subs     map[string]*Supervisor

	closed *atomic.Bool
	log    *zap.Logger
}

func newSupervisor(name string, spec SupervisorSpec, sys *System, parent *Supervisor) *Supervisor {
	return &Supervisor{
		id:       xid.New().String(),
		name:     name,
		sys:      sys,
		parent:   parent,
		spec:     spec,
		tracker:  newRestartTracker(spec.MaxRestarts, spec.Window),
		children: make(map[string]*child),
		subs:     make(map[string]*Supervisor),
		closed:   atomic.NewBool(false),
		log:      sys.log.With(zap.String("supervisor", name)),
	}
}

// Name returns the supervisor's name.
func (s *Supervisor) Name() string {
	return s.name
}

// Spawn starts an actor under this supervisor and returns its address. An
// empty name gets a generated one; a non-empty name must be unique across the
// system.
func (s *Supervisor) Spawn(name string, behavior Behavior, opts ...SpawnOption) (*Address, error) {
	if s.closed.Load() || s.sys.closed.Load() {
		return nil, ErrSupervisorClosed
	}
	cfg := newSpawnConfig(opts...)

	id := xid.New().String()
	if name == "" {
		name = id
	}
	addr := newAddress(id, name, mailbox.New(cfg.capacity, cfg.policy), s.sys)
	if err := s.sys.register(name, addr); err != nil {
		return nil, err
	}
	c := newCell(addr, 0, behavior, s, s.sys)
	addr.rebind(c)

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		s.sys.unregister(name, addr)
		return nil, ErrSupervisorClosed
	}
	s.children[id] = &child{name: name, behavior: behavior, addr: addr, cell: c}
	s.mu.Unlock()

	s.log.Debug("spawning actor", zap.String("actor", name))
	if !s.sys.pool.Submit(c.start) {
		s.dropChild(c)
		return nil, ErrSupervisorClosed
	}
	return addr, nil
}

// NewSupervisor creates a child supervisor node. Failures its children cannot
// absorb escalate to this one.
func (s *Supervisor) NewSupervisor(name string, spec SupervisorSpec) (*Supervisor, error) {
	if s.closed.Load() || s.sys.closed.Load() {
		return nil, ErrSupervisorClosed
	}
	spec = spec.withDefaults()
	if err := spec.validate(); err != nil {
		return nil, err
	}
	sub := newSupervisor(name, spec, s.sys, s)
	s.mu.Lock()
	s.subs[sub.id] = sub
	s.mu.Unlock()
	return sub, nil
}

// childFailed applies the restart strategy. Called by a cell after it has
// torn itself down; the stale-cell guard drops reports from incarnations that
// were already replaced.
func (s *Supervisor) childFailed(c *cell, reason sysmsg.Reason) {
	s.mu.Lock()
	ch, ok := s.children[c.id]
	if !ok || ch.cell != c {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	failure := sysmsg.Failure{ID: c.id, Name: ch.name, Reason: reason, Restarts: ch.restarts, At: now}

	switch s.spec.Strategy {
	case StopStrategy:
		s.removeLocked(ch)
		s.mu.Unlock()
		s.log.Warn("actor stopped after failure", zap.String("actor", ch.name), zap.String("reason", failure.Reason.Type))
		s.notify(failure)

	case EscalateStrategy:
		s.removeLocked(ch)
		s.mu.Unlock()
		s.notify(failure)
		s.escalate(failure)

	case AllForOneStrategy:
		if !s.tracker.allow(c.id, now) {
			s.giveUpAllLocked(failure)
			return
		}
		s.tracker.record(c.id, now)
		s.restartAllLocked()
		s.mu.Unlock()

	default: // OneForOne
		if !s.tracker.allow(c.id, now) {
			s.removeLocked(ch)
			s.mu.Unlock()
			failure.Reason = sysmsg.Reason{Type: sysmsg.MaxRestarts, Details: reason}
			s.log.Error("restart budget exhausted, giving up on actor",
				zap.String("actor", ch.name), zap.Int("restarts", ch.restarts))
			s.notify(failure)
			s.escalate(failure)
			return
		}
		s.tracker.record(c.id, now)
		s.restartLocked(ch)
		s.mu.Unlock()
	}
}

// childStopped finalizes a graceful stop or an abandoned cell.
func (s *Supervisor) childStopped(c *cell) {
	s.mu.Lock()
	ch, ok := s.children[c.id]
	if !ok || ch.cell != c {
		s.mu.Unlock()
		return
	}
	s.removeLocked(ch)
	s.mu.Unlock()
}

// dropChild removes a child that never got to run.
func (s *Supervisor) dropChild(c *cell) {
	c.abandon()
	s.mu.Lock()
	if ch, ok := s.children[c.id]; ok && ch.cell == c {
		s.removeLocked(ch)
	}
	s.mu.Unlock()
}

// removeLocked unhooks a child for good: further sends fail with ErrClosed
// and whatever is still queued is dropped, its pending replies failed.
// Caller holds s.mu.
func (s *Supervisor) removeLocked(ch *child) {
	delete(s.children, ch.addr.id)
	ch.addr.markDead()
	s.sys.unregister(ch.name, ch.addr)
	s.tracker.forget(ch.addr.id)
	// the queue drain waits for the cell's in-flight unit: Pop is
	// single-consumer and the unit may be mid-Pop right now
	old := ch.cell
	go func() {
		old.quiesce()
		old.discard()
	}()
}

// restartLocked replaces the child's cell with a fresh incarnation bound to
// the same address and mailbox. Queued messages survive; the one that failed
// was already consumed and is never replayed. Caller holds s.mu.
func (s *Supervisor) restartLocked(ch *child) {
	old := ch.cell
	ch.restarts++
	fresh := newCell(ch.addr, old.incarnation+1, ch.behavior, s, s.sys)
	ch.cell = fresh
	ch.addr.rebind(fresh)
	s.log.Info("restarting actor", zap.String("actor", ch.name), zap.Int("restarts", ch.restarts))
	// the fresh incarnation must not run until the old one's in-flight unit
	// has left Receive; the wait happens on a worker, never under s.mu
	if !s.sys.pool.Submit(func() {
		old.quiesce()
		fresh.start()
	}) {
		fresh.abandon()
	}
}

// restartAllLocked restarts every child of this supervisor. Caller holds s.mu.
func (s *Supervisor) restartAllLocked() {
	for _, ch := range s.children {
		ch.cell.abandon()
		s.restartLocked(ch)
	}
}

// giveUpAllLocked stops every child after an AllForOne budget blowout.
// Caller holds s.mu; unlocks it.
func (s *Supervisor) giveUpAllLocked(failure sysmsg.Failure) {
	for _, ch := range s.children {
		ch.cell.abandon()
	}
	children := make([]*child, 0, len(s.children))
	for _, ch := range s.children {
		children = append(children, ch)
	}
	for _, ch := range children {
		s.removeLocked(ch)
	}
	s.mu.Unlock()
	failure.Reason = sysmsg.Reason{Type: sysmsg.MaxRestarts, Details: failure.Reason}
	s.log.Error("restart budget exhausted, stopping all children", zap.String("actor", failure.Name))
	s.notify(failure)
	s.escalate(failure)
}

// escalate hands a failure this supervisor could not absorb to its parent.
// At the root there is nobody left to ask.
func (s *Supervisor) escalate(failure sysmsg.Failure) {
	if s.parent == nil {
		s.log.Error("failure reached the root supervisor",
			zap.String("actor", failure.Name), zap.String("reason", failure.Reason.Type))
		return
	}
	s.parent.escalated(s, failure)
}

// escalated handles a failure bubbled up from a child supervisor: within
// budget the whole child subtree restarts, beyond it the subtree stops and
// the failure keeps climbing.
func (s *Supervisor) escalated(from *Supervisor, failure sysmsg.Failure) {
	if s.closed.Load() {
		return
	}
	now := time.Now()
	if s.tracker.allow(from.id, now) {
		s.tracker.record(from.id, now)
		s.log.Info("restarting supervisor subtree", zap.String("subtree", from.name))
		from.restartChildren()
		return
	}
	from.closeSubtree()
	s.mu.Lock()
	delete(s.subs, from.id)
	s.mu.Unlock()
	s.tracker.forget(from.id)
	s.notify(failure)
	s.escalate(failure)
}

// restartChildren replaces every child cell with a fresh incarnation. Used
// when a parent absorbs an escalated failure.
func (s *Supervisor) restartChildren() {
	s.mu.Lock()
	s.restartAllLocked()
	s.mu.Unlock()
}

// closeSubtree abruptly stops everything under this supervisor.
func (s *Supervisor) closeSubtree() {
	s.closed.Store(true)
	s.mu.Lock()
	children := make([]*child, 0, len(s.children))
	for _, ch := range s.children {
		children = append(children, ch)
	}
	subs := make([]*Supervisor, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.closeSubtree()
	}
	s.mu.Lock()
	for _, ch := range children {
		ch.cell.abandon()
		s.removeLocked(ch)
	}
	s.mu.Unlock()
}

// shutdown drains the subtree gracefully: children stop, queued messages are
// processed, stop hooks run. Children that do not drain before the context
// deadline are abandoned and reported.
func (s *Supervisor) shutdown(ctx context.Context) error {
	s.closed.Store(true)
	s.mu.Lock()
	children := make([]*child, 0, len(s.children))
	for _, ch := range s.children {
		children = append(children, ch)
	}
	subs := make([]*Supervisor, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	var err error
	for _, sub := range subs {
		err = multierr.Append(err, sub.shutdown(ctx))
	}
	for _, ch := range children {
		ch.cell.stop()
	}
	for _, ch := range children {
		select {
		case <-ch.cell.done:
		case <-ctx.Done():
			ch.cell.abandon()
			err = multierr.Append(err, fmt.Errorf("actor %q did not drain: %w", ch.name, ctx.Err()))
		}
	}
	return err
}

func (s *Supervisor) notify(failure sysmsg.Failure) {
	if s.spec.Observer == nil {
		return
	}
	// a panicking observer must not take the supervisor down with it
	defer func() { _ = recover() }()
	s.spec.Observer(failure)
}
