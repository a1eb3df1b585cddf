package core

import (
	"container/heap"
	"context"
	"runtime/debug"
	"sync"
	"time"
)

// timerEntry represents a task scheduled for the future
type timerEntry struct {
	RunAt time.Time
	Task  Task
	index int // for heap interface
}

// timerHeap implements heap.Interface ordered by deadline
type timerHeap []*timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].RunAt.Before(h[j].RunAt) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	n := len(*h)
	item := x.(*timerEntry)
	item.index = n
	*h = append(*h, item)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *timerHeap) Peek() *timerEntry {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// TimerExecutor is the scheduled execution context: run a unit of work once,
// after an optional delay, on a dedicated timer-driven goroutine. Due tasks
// run in deadline order; a panicking task is contained at the per-item
// boundary and does not stop the timer goroutine.
type TimerExecutor struct {
	name string

	pq     timerHeap
	mu     sync.Mutex
	wakeup chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	panicHandler PanicHandler
	metrics      Metrics
}

// NewTimerExecutor creates and starts a scheduled executor. Its goroutine
// sleeps until the nearest deadline and is rearmed whenever an earlier
// deadline arrives.
func NewTimerExecutor(hooks Hooks) *TimerExecutor {
	hooks = hooks.WithDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	te := &TimerExecutor{
		name:         "scheduled",
		pq:           make(timerHeap, 0),
		wakeup:       make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		panicHandler: hooks.PanicHandler,
		metrics:      hooks.Metrics,
	}
	heap.Init(&te.pq)
	go te.loop()
	return te
}

// Post schedules task to run as soon as the timer goroutine gets to it.
func (te *TimerExecutor) Post(task Task) {
	te.PostDelayed(task, 0)
}

// PostDelayed schedules task to run once, no earlier than delay from now.
func (te *TimerExecutor) PostDelayed(task Task, delay time.Duration) {
	select {
	case <-te.ctx.Done():
		te.metrics.RecordTaskRejected(te.name, "stopped")
		return
	default:
	}

	te.mu.Lock()
	item := &timerEntry{
		RunAt: time.Now().Add(delay),
		Task:  task,
	}
	heap.Push(&te.pq, item)
	atFront := item.index == 0
	te.mu.Unlock()

	if atFront {
		select {
		case te.wakeup <- struct{}{}:
		default:
		}
	}
}

func (te *TimerExecutor) loop() {
	runCtx := WithExecutor(te.ctx, te)

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		nextRun := te.nextDeadline()
		if nextRun < 0 {
			// No entries, wait for a wakeup
			nextRun = 1000 * time.Hour
		}

		timer.Reset(nextRun)

		select {
		case <-te.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			te.runExpired(runCtx)
		case <-te.wakeup:
			// An earlier deadline arrived, recalculate
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// nextDeadline returns how long to wait until the next entry is due.
// Returns 0 if an entry is already due and a negative value if none exist.
func (te *TimerExecutor) nextDeadline() time.Duration {
	te.mu.Lock()
	defer te.mu.Unlock()

	item := te.pq.Peek()
	if item == nil {
		return -1
	}

	now := time.Now()
	if item.RunAt.Before(now) {
		return 0
	}
	return item.RunAt.Sub(now)
}

// runExpired pops every due entry and runs it on the timer goroutine.
func (te *TimerExecutor) runExpired(runCtx context.Context) {
	te.mu.Lock()

	now := time.Now()
	var expired []*timerEntry
	for te.pq.Len() > 0 {
		item := te.pq.Peek()
		if item.RunAt.After(now) {
			break
		}
		heap.Pop(&te.pq)
		expired = append(expired, item)
	}

	te.mu.Unlock()

	// Run outside the lock so tasks may schedule further work
	for _, item := range expired {
		te.runOne(runCtx, item.Task)
	}
}

func (te *TimerExecutor) runOne(runCtx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			te.metrics.RecordTaskPanic(te.name, r)
			te.panicHandler.HandlePanic(runCtx, te.name, -1, r, debug.Stack())
		}
	}()

	start := time.Now()
	task(runCtx)
	te.metrics.RecordTaskDuration(te.name, time.Since(start))
}

// PendingCount returns the number of entries waiting for their deadline.
func (te *TimerExecutor) PendingCount() int {
	te.mu.Lock()
	defer te.mu.Unlock()
	return len(te.pq)
}

// Stop cancels the timer goroutine and drops pending entries.
func (te *TimerExecutor) Stop() {
	te.cancel()

	te.mu.Lock()
	te.pq = make(timerHeap, 0)
	heap.Init(&te.pq)
	te.mu.Unlock()
}
