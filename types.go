package execctx

import "github.com/execctx/execctx/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the execctx package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// Executor is the interface every execution context satisfies
type Executor = core.Executor

// DelayedExecutor adds one-shot delayed submission
type DelayedExecutor = core.DelayedExecutor

// ImmediateExecutor runs work inline up to a per-goroutine depth bound
type ImmediateExecutor = core.ImmediateExecutor

// TimerExecutor runs work once after an optional delay
type TimerExecutor = core.TimerExecutor

// LoopExecutor runs work sequentially on one dedicated goroutine
type LoopExecutor = core.LoopExecutor

// Hooks bundles the optional observability handlers
type Hooks = core.Hooks

// Logger, Metrics and PanicHandler are the ambient observability interfaces
type (
	Logger       = core.Logger
	Metrics      = core.Metrics
	PanicHandler = core.PanicHandler
)

// MaxInlineDepth is the immediate executor's per-goroutine nesting bound
const MaxInlineDepth = core.MaxInlineDepth

// GetCurrentExecutor retrieves the current Executor from context
var GetCurrentExecutor = core.GetCurrentExecutor
