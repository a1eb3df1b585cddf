// Package execctx provides named execution contexts for asynchronous task
// and continuation libraries: small capabilities that decide, for each unit
// of work, where and how soon it runs.
//
// # Quick Start
//
// Obtain the process-wide registry and pick a context:
//
//	execs := execctx.Default()
//
//	execs.Background().Post(func(ctx context.Context) {
//		// Runs on a pooled worker goroutine.
//	})
//
//	execs.Immediate().Post(func(ctx context.Context) {
//		// Runs right here, on the posting goroutine, before Post returns.
//	})
//
// # Key Concepts
//
// Executor: the single capability every context offers, Post(task). Tasks
// take a context carrying the executor they run under
// (GetCurrentExecutor).
//
// ElasticPool: the background context. A growable pool of worker goroutines
// with an unbounded FIFO queue; sizing follows the reference policy
// core = NumCPU+1, max = 2*NumCPU+1, with a one second idle timeout. Post
// never blocks and never rejects for queue depth.
//
// ImmediateExecutor: runs work synchronously on the posting goroutine for
// latency, but tracks a per-goroutine nesting depth and, past 15 nested
// submissions, diverts work to the background pool. Deep synchronous
// continuation chains would otherwise grow the stack without bound; typical
// shallow chains keep the inline fast path.
//
// TimerExecutor: the scheduled context, "run once after a delay" on a
// dedicated timer-driven goroutine.
//
// LoopExecutor: the main-thread context, a dedicated goroutine that runs
// tasks in submission order. On platforms with a real UI loop, inject an
// adapter via WithMainThread instead.
//
// Executors: the registry. One shared instance of each context per registry;
// Default() is the lazily-built process-wide one, NewExecutors builds
// isolated registries for tests.
//
// # Failure Semantics
//
// Work run inline by the immediate executor panics straight into the caller
// of Post, exactly as if the caller had invoked it. Work running on any
// asynchronous surface (pool worker, timer, loop) is panic-contained at the
// per-item boundary and reported through the configured PanicHandler; the
// surface keeps running.
package execctx
