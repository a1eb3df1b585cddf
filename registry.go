package execctx

import (
	"context"
	"sync"

	"github.com/execctx/execctx/core"
)

// Executors is a registry holding exactly one instance of each execution
// context variant, constructed once and reused for its lifetime. Consumers
// select a context through the accessors and hold only the reference.
//
// Construct isolated registries with NewExecutors for tests or libraries
// that must not share the process-wide pool; use Default for the shared one.
type Executors struct {
	pool       *ElasticPool
	immediate  *core.ImmediateExecutor
	scheduled  *core.TimerExecutor
	mainThread core.Executor

	// loop is non-nil when the registry owns the default main-thread loop
	// (no platform poster was injected) and must stop it.
	loop *core.LoopExecutor
}

type registryOptions struct {
	poolID     string
	pool       PoolOptions
	mainThread core.Executor
}

// Option configures a registry built by NewExecutors.
type Option func(*registryOptions)

// WithPoolOptions overrides the background pool sizing and hooks.
func WithPoolOptions(opts PoolOptions) Option {
	return func(o *registryOptions) { o.pool = opts }
}

// WithPoolID names the background pool instead of generating an id.
func WithPoolID(id string) Option {
	return func(o *registryOptions) { o.poolID = id }
}

// WithMainThread injects the platform-supplied main-thread posting mechanism.
// Anything satisfying core.Executor works: the adapter must run posted work
// on the designated main thread, preserving submission order. Without this
// option the registry runs its own core.LoopExecutor as a stand-in.
func WithMainThread(e core.Executor) Option {
	return func(o *registryOptions) { o.mainThread = e }
}

// WithHooks applies the same observability hooks to every context the
// registry constructs.
func WithHooks(hooks core.Hooks) Option {
	return func(o *registryOptions) { o.pool.Hooks = hooks }
}

// NewExecutors builds a registry. Construction order matters: the background
// pool comes first (the immediate executor wraps it), then the scheduled and
// main-thread contexts independently.
func NewExecutors(opts ...Option) *Executors {
	var o registryOptions
	for _, opt := range opts {
		opt(&o)
	}

	pool := NewElasticPool(o.poolID, o.pool)
	pool.Start(context.Background())

	e := &Executors{
		pool:      pool,
		immediate: core.NewImmediateExecutor(pool, o.pool.Hooks),
		scheduled: core.NewTimerExecutor(o.pool.Hooks),
	}

	if o.mainThread != nil {
		e.mainThread = o.mainThread
	} else {
		e.loop = core.NewLoopExecutor(o.pool.Hooks)
		e.mainThread = e.loop
	}

	return e
}

// Background returns the shared worker-pool context.
func (e *Executors) Background() *ElasticPool { return e.pool }

// Immediate returns the shared depth-bounded inline context.
func (e *Executors) Immediate() *core.ImmediateExecutor { return e.immediate }

// Scheduled returns the shared delayed-execution context.
func (e *Executors) Scheduled() *core.TimerExecutor { return e.scheduled }

// MainThread returns the shared main-thread context.
func (e *Executors) MainThread() core.Executor { return e.mainThread }

// Stop tears down every context the registry owns. Injected main-thread
// posters are the platform's to stop. Intended for tests; the default
// registry normally lives for the process.
func (e *Executors) Stop() {
	e.scheduled.Stop()
	if e.loop != nil {
		e.loop.Stop()
	}
	e.pool.Stop()
}

// =============================================================================
// Process-wide default registry
// =============================================================================

var (
	defaultExecutors *Executors
	defaultMu        sync.Mutex
)

// Default returns the process-wide registry, constructing it on first use.
// Repeated calls from any goroutine return the same instance. At most one
// background pool exists per process through this path, which is the point:
// duplicate pools multiply the thread count.
func Default() *Executors {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultExecutors == nil {
		defaultExecutors = NewExecutors()
	}
	return defaultExecutors
}

// ShutdownDefault stops and clears the process-wide registry. The next
// Default call builds a fresh one. Primarily for tests.
func ShutdownDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultExecutors != nil {
		defaultExecutors.Stop()
		defaultExecutors = nil
	}
}
