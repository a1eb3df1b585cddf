package core

import (
	"context"
	"time"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// =============================================================================
// Executor: Define task submission interface
// =============================================================================

// Executor is a named execution context: a capability for submitting a unit
// of work, abstracting over where and how soon it runs.
//
// Post never blocks the caller. Depending on the implementation the task
// either runs inline before Post returns (ImmediateExecutor, shallow case)
// or is enqueued for asynchronous execution (pool, timer, loop).
type Executor interface {
	Post(task Task)
}

// DelayedExecutor extends Executor with one-shot delayed submission.
type DelayedExecutor interface {
	Executor

	PostDelayed(task Task, delay time.Duration)
}

// =============================================================================
// Context Helper
// =============================================================================
type executorKeyType struct{}

var executorKey executorKeyType

// WithExecutor returns a context carrying the executor a task runs under.
// Execution surfaces attach this before invoking tasks.
func WithExecutor(ctx context.Context, e Executor) context.Context {
	return context.WithValue(ctx, executorKey, e)
}

// GetCurrentExecutor retrieves the executor the current task runs under,
// or nil when the context was not produced by one.
func GetCurrentExecutor(ctx context.Context) Executor {
	if v := ctx.Value(executorKey); v != nil {
		return v.(Executor)
	}
	return nil
}
