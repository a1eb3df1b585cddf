package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// MaxInlineDepth is the number of nested inline executions a single
// goroutine may accumulate before the immediate executor starts diverting
// work to its backing pool.
//
// A chain of N nested synchronous continuations grows the call stack by one
// Post frame per link; unbounded chains blow the stack. Capping the
// executor's own nesting at 15 bounds the stack growth it contributes while
// keeping the common shallow case on the fast inline path.
const MaxInlineDepth = 15

// ImmediateExecutor runs submitted work synchronously on the submitting
// goroutine for performance, unless the goroutine is already MaxInlineDepth
// levels deep in nested Post calls, in which case the work is handed to the
// backing executor and runs elsewhere, breaking the stack-growth chain.
//
// Depth is tracked per submitting goroutine. Independent goroutines running
// independent chains never observe or throttle each other.
//
// Failure semantics differ by path: a panic raised by work run inline
// propagates to the caller of Post (the depth ledger is still restored);
// a panic raised by work handed to the backing executor is that surface's
// responsibility and reaches no caller.
type ImmediateExecutor struct {
	name    string
	backing Executor
	metrics Metrics

	// depths maps goroutine id -> current nesting depth. Each entry is only
	// ever read or written by the goroutine it is keyed by; the sync.Map
	// exists so unrelated goroutines can hold entries concurrently.
	// Entries are removed when the outermost Post unwinds, so the ledger
	// stays empty while idle even as pool goroutine ids recur.
	depths sync.Map

	inline   atomic.Int64
	deferred atomic.Int64

	runCtx context.Context
}

// NewImmediateExecutor creates an immediate executor that overflows into
// backing once a goroutine exceeds MaxInlineDepth nested submissions.
func NewImmediateExecutor(backing Executor, hooks Hooks) *ImmediateExecutor {
	hooks = hooks.WithDefaults()
	e := &ImmediateExecutor{
		name:    "immediate",
		backing: backing,
		metrics: hooks.Metrics,
	}
	e.runCtx = WithExecutor(context.Background(), e)
	return e
}

// Post runs task inline on the calling goroutine when the nesting depth
// allows it, and forwards it to the backing executor otherwise.
func (e *ImmediateExecutor) Post(task Task) {
	gid := goroutineID()
	depth := e.incrementDepth(gid)
	defer e.decrementDepth(gid)

	if depth <= MaxInlineDepth {
		e.inline.Add(1)
		e.metrics.RecordInlineExecution(e.name)
		// No recover here: an inline failure belongs to the caller.
		task(e.runCtx)
		return
	}

	e.deferred.Add(1)
	e.metrics.RecordDeferredExecution(e.name)
	e.backing.Post(task)
}

// incrementDepth bumps the calling goroutine's nesting depth and returns the
// new value.
func (e *ImmediateExecutor) incrementDepth(gid uint64) int {
	depth := 1
	if v, ok := e.depths.Load(gid); ok {
		depth = v.(int) + 1
	}
	e.depths.Store(gid, depth)
	return depth
}

// decrementDepth unwinds one nesting level for the calling goroutine,
// dropping the ledger entry entirely at depth zero.
func (e *ImmediateExecutor) decrementDepth(gid uint64) {
	v, ok := e.depths.Load(gid)
	if !ok {
		return
	}
	depth := v.(int) - 1
	if depth <= 0 {
		e.depths.Delete(gid)
		return
	}
	e.depths.Store(gid, depth)
}

// Stats returns a point-in-time snapshot of the executor's counters.
func (e *ImmediateExecutor) Stats() ImmediateStats {
	tracked := 0
	e.depths.Range(func(_, _ any) bool {
		tracked++
		return true
	})
	return ImmediateStats{
		Name:              e.name,
		Inline:            e.inline.Load(),
		Deferred:          e.deferred.Load(),
		TrackedGoroutines: tracked,
	}
}
