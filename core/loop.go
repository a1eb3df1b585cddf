package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// LoopExecutor binds a dedicated goroutine to execute tasks sequentially in
// submission order. It is the default main-thread execution context: every
// task it ever runs shares one goroutine, so consumers get the ordering and
// affinity a platform UI loop would give them.
//
// On platforms with a real main loop, inject an adapter satisfying Executor
// instead; this subsystem never depends on a concrete event-loop API.
type LoopExecutor struct {
	name string

	// Task queue: Buffered channel for tasks
	workQueue chan Task

	// Lifecycle control
	ctx    context.Context
	cancel context.CancelFunc

	stopped  chan struct{}
	stopOnce sync.Once
	closed   atomic.Bool

	panicHandler PanicHandler
	metrics      Metrics
}

// NewLoopExecutor creates and starts a LoopExecutor. It immediately spawns
// the dedicated goroutine.
func NewLoopExecutor(hooks Hooks) *LoopExecutor {
	hooks = hooks.WithDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	le := &LoopExecutor{
		name:         "main-thread",
		workQueue:    make(chan Task, 128), // Buffer to avoid blocking senders
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
		panicHandler: hooks.PanicHandler,
		metrics:      hooks.Metrics,
	}

	go le.runLoop()

	return le
}

// Post submits a task to run on the loop goroutine, preserving submission
// order. Tasks posted after Stop are dropped.
func (le *LoopExecutor) Post(task Task) {
	if le.closed.Load() {
		le.metrics.RecordTaskRejected(le.name, "stopped")
		return
	}

	select {
	case <-le.ctx.Done():
		le.metrics.RecordTaskRejected(le.name, "stopped")
	case le.workQueue <- task:
	}
}

// runLoop is the core of this executor, it occupies a dedicated goroutine
func (le *LoopExecutor) runLoop() {
	defer close(le.stopped)

	runCtx := WithExecutor(le.ctx, le)

	for {
		select {
		case task := <-le.workQueue:
			func() {
				defer func() {
					if r := recover(); r != nil {
						le.metrics.RecordTaskPanic(le.name, r)
						le.panicHandler.HandlePanic(runCtx, le.name, -1, r, debug.Stack())
					}
				}()
				task(runCtx)
			}()

		case <-le.ctx.Done():
			return
		}
	}
}

// WaitIdle blocks until all tasks queued before the call have completed.
// Implemented by posting a barrier task and waiting for it to execute.
func (le *LoopExecutor) WaitIdle(ctx context.Context) error {
	if le.closed.Load() {
		return fmt.Errorf("loop executor is closed")
	}

	done := make(chan struct{})
	le.Post(func(taskCtx context.Context) {
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsClosed returns true if the executor has been stopped
func (le *LoopExecutor) IsClosed() bool {
	return le.closed.Load()
}

// Stop stops the loop goroutine. The currently running task completes;
// queued tasks are dropped.
func (le *LoopExecutor) Stop() {
	le.stopOnce.Do(func() {
		le.closed.Store(true)
		le.cancel()
		<-le.stopped
	})
}
