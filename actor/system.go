package actor

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/BoudBoud47/goactors/internal/executor"
	"github.com/BoudBoud47/goactors/internal/timewheel"
)

// System is the runtime every actor lives in: one executor pool running the
// message loops, one timer wheel arbitrating every deadline, one supervision
// tree rooted at the root supervisor, and a name registry for lookups.
type System struct {
	name string
	log  *zap.Logger

	wheel *timewheel.Wheel
	pool  *executor.Pool
	root  *Supervisor

	names  sync.Map // actor name -> *Address
	closed *atomic.Bool
}

// NewSystem starts a runtime. The zero configuration uses as many workers as
// the hardware offers, a no-op logger and a OneForOne root supervisor with
// the default restart budget.
func NewSystem(name string, opts ...Option) (*System, error) {
	cfg := systemConfig{
		logger: zap.NewNop(),
		root:   NewSupervisorSpec(OneForOneStrategy),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.root = cfg.root.withDefaults()
	if err := cfg.root.validate(); err != nil {
		return nil, err
	}

	sys := &System{
		name:   name,
		log:    cfg.logger.With(zap.String("system", name)),
		wheel:  timewheel.New(),
		pool:   executor.New(cfg.workerCount),
		closed: atomic.NewBool(false),
	}
	sys.root = newSupervisor("root", cfg.root, sys, nil)
	sys.log.Info("actor system started", zap.Int("workers", sys.pool.Workers()))
	return sys, nil
}

// Name returns the system name.
func (s *System) Name() string {
	return s.name
}

// Spawn starts an actor under the root supervisor.
func (s *System) Spawn(name string, behavior Behavior, opts ...SpawnOption) (*Address, error) {
	return s.root.Spawn(name, behavior, opts...)
}

// NewSupervisor creates a supervisor under the root.
func (s *System) NewSupervisor(name string, spec SupervisorSpec) (*Supervisor, error) {
	return s.root.NewSupervisor(name, spec)
}

// Lookup resolves a registered actor name to its address.
func (s *System) Lookup(name string) (*Address, bool) {
	v, ok := s.names.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*Address), true
}

// Shutdown stops the runtime: actors drain gracefully until the context
// expires, then the wheel and the pool close. Safe to call more than once.
func (s *System) Shutdown(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.log.Info("actor system shutting down")
	err := s.root.shutdown(ctx)
	s.wheel.Stop()
	s.pool.Shutdown()
	return err
}

func (s *System) register(name string, addr *Address) error {
	if _, loaded := s.names.LoadOrStore(name, addr); loaded {
		return ErrNameTaken
	}
	return nil
}

// unregister removes a name only if it still points at the given address, so
// a name re-registered by a newer actor is never clobbered.
func (s *System) unregister(name string, addr *Address) {
	if cur, ok := s.names.Load(name); ok && cur.(*Address) == addr {
		s.names.Delete(name)
	}
}
