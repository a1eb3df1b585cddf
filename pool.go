package execctx

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/execctx/execctx/core"
	"github.com/google/uuid"
)

// DefaultIdleTimeout is how long a worker goroutine may sit idle before it
// retires.
const DefaultIdleTimeout = time.Second

// DefaultCoreSize returns the reference core pool size, NumCPU+1.
func DefaultCoreSize() int {
	return runtime.NumCPU() + 1
}

// DefaultMaxSize returns the reference maximum pool size, 2*NumCPU+1.
func DefaultMaxSize() int {
	return 2*runtime.NumCPU() + 1
}

// PoolOptions configures an ElasticPool. Zero values take the reference
// policy: core = NumCPU+1, max = 2*NumCPU+1, idle timeout = 1s.
type PoolOptions struct {
	CoreSize    int
	MaxSize     int
	IdleTimeout time.Duration
	Hooks       core.Hooks
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.CoreSize <= 0 {
		o.CoreSize = DefaultCoreSize()
	}
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMaxSize()
	}
	if o.MaxSize < o.CoreSize {
		o.MaxSize = o.CoreSize
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	o.Hooks = o.Hooks.WithDefaults()
	return o
}

// ElasticPool manages a growable set of worker goroutines with bounded
// concurrency. Post enqueues work on an unbounded FIFO queue and never
// blocks; a new worker is spawned when no idle worker is available and the
// live count is below the maximum. Workers retire after idling past the
// timeout.
//
// The pool is fully elastic: every worker, core ones included, may time out,
// so an idle pool drains to zero goroutines and regrows on demand.
type ElasticPool struct {
	id          string
	coreSize    int
	maxSize     int
	idleTimeout time.Duration

	queue  *core.TaskQueue
	signal chan struct{}

	live      atomic.Int32
	idle      atomic.Int32
	active    atomic.Int32
	completed atomic.Int64
	panics    atomic.Int64
	workerSeq atomic.Int64

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopping  atomic.Bool
	running   bool
	runningMu sync.RWMutex

	logger       core.Logger
	metrics      core.Metrics
	panicHandler core.PanicHandler
	rejected     core.RejectedTaskHandler
}

// NewElasticPool creates a new ElasticPool. An empty id gets a generated one.
// The pool accepts work only after Start.
func NewElasticPool(id string, opts PoolOptions) *ElasticPool {
	opts = opts.withDefaults()
	if id == "" {
		id = "pool-" + uuid.NewString()
	}
	return &ElasticPool{
		id:           id,
		coreSize:     opts.CoreSize,
		maxSize:      opts.MaxSize,
		idleTimeout:  opts.IdleTimeout,
		queue:        core.NewTaskQueue(),
		signal:       make(chan struct{}, opts.MaxSize*2),
		logger:       opts.Hooks.Logger,
		metrics:      opts.Hooks.Metrics,
		panicHandler: opts.Hooks.PanicHandler,
		rejected:     opts.Hooks.RejectedTaskHandler,
	}
}

// Start makes the pool accept work. Workers are not pre-spawned; they are
// created on demand by Post.
func (p *ElasticPool) Start(ctx context.Context) {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running {
		return // Already running
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true
	p.stopping.Store(false)
	p.logger.Debug("pool started",
		core.F("pool", p.id), core.F("core", p.coreSize), core.F("max", p.maxSize))
}

// Post enqueues task for asynchronous execution and returns immediately.
// It never runs task synchronously and never rejects for queue depth; the
// only rejection is posting after Stop.
func (p *ElasticPool) Post(task core.Task) {
	if p.stopping.Load() || !p.IsRunning() {
		p.rejected.HandleRejectedTask(p.id, "stopped")
		p.metrics.RecordTaskRejected(p.id, "stopped")
		return
	}

	p.queue.Push(task)
	p.metrics.RecordQueueDepth(p.id, p.queue.Len())

	select {
	case p.signal <- struct{}{}:
	default:
		// Signal channel full; a pending signal already guarantees a wakeup
	}

	p.maybeSpawn()
}

// maybeSpawn starts a worker when nobody is idle and the live count is below
// the maximum. The CAS loop makes the live-count reservation race-free under
// concurrent Posts.
func (p *ElasticPool) maybeSpawn() {
	for {
		if p.idle.Load() > 0 {
			return
		}
		live := p.live.Load()
		if int(live) >= p.maxSize {
			return
		}
		if p.live.CompareAndSwap(live, live+1) {
			p.runningMu.RLock()
			ctx := p.ctx
			running := p.running
			p.runningMu.RUnlock()
			if !running {
				p.live.Add(-1)
				return
			}
			p.wg.Add(1)
			id := int(p.workerSeq.Add(1))
			go p.workerLoop(id, ctx)
			return
		}
	}
}

// workerLoop drains the queue until the worker idles past the timeout or the
// pool stops. A panicking task is contained at the per-item boundary; the
// worker keeps draining.
func (p *ElasticPool) workerLoop(id int, ctx context.Context) {
	defer p.wg.Done()

	runCtx := core.WithExecutor(ctx, p)

	timer := time.NewTimer(p.idleTimeout)
	defer timer.Stop()

	for {
		task, ok := p.getWork(ctx, timer)
		if !ok {
			break
		}

		p.active.Add(1)
		func() {
			defer func() {
				p.active.Add(-1)
				p.completed.Add(1)
				if r := recover(); r != nil {
					p.panics.Add(1)
					p.metrics.RecordTaskPanic(p.id, r)
					p.panicHandler.HandlePanic(runCtx, p.id, id, r, debug.Stack())
				}
			}()
			start := time.Now()
			task(runCtx)
			p.metrics.RecordTaskDuration(p.id, time.Since(start))
		}()
	}

	p.live.Add(-1)

	// The queue may have refilled between the idle timeout and the live-count
	// decrement; make sure the work is not stranded.
	if !p.stopping.Load() && p.queue.Len() > 0 {
		p.maybeSpawn()
	}
}

// getWork pops the next task, waiting up to the idle timeout. Returns false
// when the worker should retire.
func (p *ElasticPool) getWork(ctx context.Context, timer *time.Timer) (core.Task, bool) {
	for {
		if task, ok := p.queue.Pop(); ok {
			return task, true
		}

		p.idle.Add(1)
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.idleTimeout)

		select {
		case <-p.signal:
			p.idle.Add(-1)
			continue
		case <-timer.C:
			p.idle.Add(-1)
			return nil, false
		case <-ctx.Done():
			p.idle.Add(-1)
			return nil, false
		}
	}
}

// Stop stops the pool. Queued tasks are dropped; the currently running tasks
// complete.
func (p *ElasticPool) Stop() {
	p.runningMu.Lock()
	if !p.running {
		p.runningMu.Unlock()
		return
	}
	p.runningMu.Unlock()

	p.stopping.Store(true)
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.queue.Clear()

	p.runningMu.Lock()
	p.running = false
	p.runningMu.Unlock()
	p.logger.Debug("pool stopped", core.F("pool", p.id))
}

// StopGraceful stops accepting new work, waits for queued and active tasks
// to complete, then stops the pool. Returns an error if the drain exceeds
// timeout; remaining work is dropped in that case.
func (p *ElasticPool) StopGraceful(timeout time.Duration) error {
	p.runningMu.RLock()
	running := p.running
	p.runningMu.RUnlock()
	if !running {
		return nil
	}

	p.stopping.Store(true)

	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			p.Stop()
			return fmt.Errorf("graceful stop timeout after %v, remaining work dropped", timeout)
		case <-ticker.C:
			if p.QueuedTaskCount() == 0 && p.ActiveTaskCount() == 0 {
				p.Stop()
				return nil
			}
		}
	}
}

// ID returns the ID of the pool
func (p *ElasticPool) ID() string {
	return p.id
}

// IsRunning returns whether the pool accepts work
func (p *ElasticPool) IsRunning() bool {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	return p.running
}

// CoreSize returns the number of workers kept in mind as the stable floor
// (informational under the fully elastic policy).
func (p *ElasticPool) CoreSize() int { return p.coreSize }

// MaxSize returns the live-worker ceiling.
func (p *ElasticPool) MaxSize() int { return p.maxSize }

// LiveWorkers returns the current number of worker goroutines.
func (p *ElasticPool) LiveWorkers() int { return int(p.live.Load()) }

// QueuedTaskCount returns the number of tasks waiting in the queue.
func (p *ElasticPool) QueuedTaskCount() int { return p.queue.Len() }

// ActiveTaskCount returns the number of tasks currently executing.
func (p *ElasticPool) ActiveTaskCount() int { return int(p.active.Load()) }

// Stats returns a point-in-time snapshot of the pool.
func (p *ElasticPool) Stats() core.PoolStats {
	return core.PoolStats{
		ID:        p.id,
		CoreSize:  p.coreSize,
		MaxSize:   p.maxSize,
		Live:      int(p.live.Load()),
		Idle:      int(p.idle.Load()),
		Queued:    p.queue.Len(),
		Active:    int(p.active.Load()),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
		Running:   p.IsRunning(),
	}
}
