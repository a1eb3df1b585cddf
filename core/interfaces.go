package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics on an asynchronous execution
// surface (a pool worker, the timer goroutine, or the main loop). A deferred
// failure cannot reach any caller, so it is contained at the per-item
// boundary and reported here instead of killing the surface.
//
// Inline execution through ImmediateExecutor never goes through this handler:
// a panic there propagates to the caller of Post, exactly as if the caller
// had invoked the work itself.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task (may carry executor info)
	// - executorName: The name of the executor where the panic occurred
	// - workerID: The ID of the worker (-1 for single-goroutine executors)
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, executorName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, executorName string, workerID int, panicInfo any, stackTrace []byte) {
	if workerID >= 0 {
		fmt.Printf("[Worker %d @ %s] Panic: %v\nStack trace:\n%s",
			workerID, executorName, panicInfo, stackTrace)
	} else {
		fmt.Printf("[Executor %s] Panic: %v\nStack trace:\n%s",
			executorName, panicInfo, stackTrace)
	}
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution
// performance.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(executorName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during deferred execution.
	RecordTaskPanic(executorName string, panicInfo any)

	// RecordQueueDepth records the current queue depth for an executor.
	RecordQueueDepth(executorName string, depth int)

	// RecordTaskRejected records that a task was rejected (e.g., after stop).
	RecordTaskRejected(executorName string, reason string)

	// RecordInlineExecution records that the immediate executor ran a task
	// synchronously on the submitting goroutine.
	RecordInlineExecution(executorName string)

	// RecordDeferredExecution records that the immediate executor hit its
	// depth bound and handed a task to the backing pool.
	RecordDeferredExecution(executorName string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(executorName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(executorName string, panicInfo any)             {}
func (m *NilMetrics) RecordQueueDepth(executorName string, depth int)                {}
func (m *NilMetrics) RecordTaskRejected(executorName string, reason string)          {}
func (m *NilMetrics) RecordInlineExecution(executorName string)                      {}
func (m *NilMetrics) RecordDeferredExecution(executorName string)                    {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a task is rejected by an executor.
// The only rejection this subsystem produces is posting after Stop; queue
// depth never causes rejection.
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(executorName string, reason string)
}

// DefaultRejectedTaskHandler provides a basic handler that logs rejected tasks.
type DefaultRejectedTaskHandler struct{}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(executorName string, reason string) {
	fmt.Printf("[Executor %s] Task rejected: %s\n", executorName, reason)
}

// =============================================================================
// Hooks: Shared handler configuration for execution surfaces
// =============================================================================

// Hooks bundles the optional observability handlers every execution surface
// accepts. Zero-value fields fall back to the defaults.
type Hooks struct {
	// PanicHandler is called when a task panics on an asynchronous surface.
	// Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics records execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task is rejected.
	// Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler

	// Logger receives lifecycle events. Defaults to NewDefaultLogger().
	Logger Logger
}

// WithDefaults returns a copy with every nil field replaced by its default.
func (h Hooks) WithDefaults() Hooks {
	if h.PanicHandler == nil {
		h.PanicHandler = &DefaultPanicHandler{}
	}
	if h.Metrics == nil {
		h.Metrics = &NilMetrics{}
	}
	if h.RejectedTaskHandler == nil {
		h.RejectedTaskHandler = &DefaultRejectedTaskHandler{}
	}
	if h.Logger == nil {
		h.Logger = NewDefaultLogger()
	}
	return h
}
