package actor

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BoudBoud47/goactors/internal/mailbox"
	"github.com/BoudBoud47/goactors/sysmsg"
)

// OverflowPolicy decides what a send does against a full bounded mailbox.
type OverflowPolicy = mailbox.OverflowPolicy

const (
	// OverflowReject fails the send with ErrMailboxFull. The default.
	OverflowReject OverflowPolicy = mailbox.Reject
	// OverflowBlock parks the sender until there is room.
	OverflowBlock OverflowPolicy = mailbox.Block
	// OverflowDropNewest accepts the send and discards the incoming message.
	OverflowDropNewest OverflowPolicy = mailbox.DropNewest
	// OverflowDropOldest evicts the oldest queued message to make room.
	OverflowDropOldest OverflowPolicy = mailbox.DropOldest
)

// Strategy tells a supervisor what to do when a child fails.
type Strategy int32

const (
	// OneForOneStrategy restarts only the failed child.
	OneForOneStrategy Strategy = iota
	// AllForOneStrategy restarts the failed child and all of its siblings.
	AllForOneStrategy
	// EscalateStrategy stops the child and propagates the failure to the
	// parent supervisor.
	EscalateStrategy
	// StopStrategy stops the child permanently on its first failure.
	StopStrategy
)

func (s Strategy) String() string {
	switch s {
	case OneForOneStrategy:
		return "one_for_one"
	case AllForOneStrategy:
		return "all_for_one"
	case EscalateStrategy:
		return "escalate"
	case StopStrategy:
		return "stop"
	default:
		return "unknown"
	}
}

const (
	defaultMaxRestarts = 3
	defaultWindow      = 5 * time.Second
)

// SupervisorSpec configures a supervisor node: its restart strategy, the
// restart budget (MaxRestarts within a sliding Window) and an optional
// failure observer invoked when a child is given up on.
//
// MaxRestarts is taken literally: zero means no restarts at all, so the
// first failure stops the child for good. Use NewSupervisorSpec for the
// default budget. A zero Window falls back to the default window.
type SupervisorSpec struct {
	Strategy    Strategy
	MaxRestarts int
	Window      time.Duration
	Observer    func(sysmsg.Failure)
}

// NewSupervisorSpec returns a spec with the default budget of 3 restarts
// within 5 seconds.
func NewSupervisorSpec(strategy Strategy) SupervisorSpec {
	return SupervisorSpec{
		Strategy:    strategy,
		MaxRestarts: defaultMaxRestarts,
		Window:      defaultWindow,
	}
}

func (spec SupervisorSpec) withDefaults() SupervisorSpec {
	if spec.Window == 0 {
		spec.Window = defaultWindow
	}
	return spec
}

func (spec SupervisorSpec) validate() error {
	if spec.Strategy < OneForOneStrategy || spec.Strategy > StopStrategy {
		return fmt.Errorf("invalid strategy: %d", spec.Strategy)
	}
	if spec.MaxRestarts < 0 {
		return fmt.Errorf("invalid max restarts: %d", spec.MaxRestarts)
	}
	if spec.Window < 0 {
		return fmt.Errorf("invalid restart window: %v", spec.Window)
	}
	return nil
}

type systemConfig struct {
	workerCount int
	logger      *zap.Logger
	root        SupervisorSpec
}

// Option configures a System.
type Option func(*systemConfig)

// WithWorkerCount fixes the executor pool size. One worker yields a
// single-threaded event loop for deterministic tests; zero or less picks the
// available hardware parallelism.
func WithWorkerCount(n int) Option {
	return func(cfg *systemConfig) {
		cfg.workerCount = n
	}
}

// WithLogger plugs a structured logger into the runtime. Lifecycle events
// (spawn, restart, give-up, shutdown) are logged through it.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *systemConfig) {
		cfg.logger = logger
	}
}

// WithRootSupervisor configures the strategy, budget and failure observer of
// the system's root supervisor.
func WithRootSupervisor(spec SupervisorSpec) Option {
	return func(cfg *systemConfig) {
		cfg.root = spec
	}
}

type spawnConfig struct {
	capacity int
	policy   OverflowPolicy
}

// SpawnOption configures one actor at spawn time.
type SpawnOption func(*spawnConfig)

// WithMailboxCapacity bounds the actor's mailbox. Zero (the default) means
// an unbounded mailbox, to which overflow policies do not apply.
func WithMailboxCapacity(capacity int) SpawnOption {
	return func(cfg *spawnConfig) {
		cfg.capacity = capacity
	}
}

// WithOverflowPolicy selects what happens when a bounded mailbox is full.
func WithOverflowPolicy(policy OverflowPolicy) SpawnOption {
	return func(cfg *spawnConfig) {
		cfg.policy = policy
	}
}

func newSpawnConfig(opts ...SpawnOption) spawnConfig {
	cfg := spawnConfig{policy: OverflowReject}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
