package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Ensure ImmediateExecutor fully implements Executor
var _ Executor = (*ImmediateExecutor)(nil)

// poolStub runs handed-off work on fresh goroutines, the way the real pool
// runs it on worker goroutines, and contains panics at the item boundary.
type poolStub struct {
	posted atomic.Int32
	wg     sync.WaitGroup
}

func (s *poolStub) Post(task Task) {
	s.posted.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { recover() }()
		task(context.Background())
	}()
}

func testHooks() Hooks {
	return Hooks{Logger: NewNoOpLogger()}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestImmediateExecutor_ShallowChainRunsInline(t *testing.T) {
	backing := &poolStub{}
	e := NewImmediateExecutor(backing, testHooks())

	caller := goroutineID()
	var order []int

	var post func(n int)
	post = func(n int) {
		e.Post(func(ctx context.Context) {
			if gid := goroutineID(); gid != caller {
				t.Errorf("level %d ran on goroutine %d, want caller %d", n, gid, caller)
			}
			order = append(order, n)
			if n+1 < MaxInlineDepth {
				post(n + 1)
			}
		})
	}
	post(0)

	// Everything ran synchronously inside the outermost Post.
	if len(order) != MaxInlineDepth {
		t.Fatalf("expected %d inline executions, got %d", MaxInlineDepth, len(order))
	}
	for i, n := range order {
		if n != i {
			t.Fatalf("submission order violated at %d: got %v", i, order)
		}
	}
	if got := backing.posted.Load(); got != 0 {
		t.Errorf("expected no handoff to backing executor, got %d", got)
	}

	st := e.Stats()
	if st.Inline != int64(MaxInlineDepth) || st.Deferred != 0 {
		t.Errorf("stats inline=%d deferred=%d, want %d/0", st.Inline, st.Deferred, MaxInlineDepth)
	}
	if st.TrackedGoroutines != 0 {
		t.Errorf("depth ledger leaked %d entries after unwinding", st.TrackedGoroutines)
	}
}

func TestImmediateExecutor_OverflowRunsOnAnotherGoroutine(t *testing.T) {
	backing := &poolStub{}
	e := NewImmediateExecutor(backing, testHooks())

	caller := goroutineID()
	release := make(chan struct{})
	overflowGID := make(chan uint64, 1)

	var post func(depth int)
	post = func(depth int) {
		e.Post(func(ctx context.Context) {
			if depth > MaxInlineDepth {
				// Past the bound: we must not be on the submitting goroutine.
				<-release
				overflowGID <- goroutineID()
				return
			}
			post(depth + 1)
		})
	}
	post(1)

	// The chain has fully unwound even though the overflow task is still
	// parked: its Post returned after enqueueing, not after running.
	if got := backing.posted.Load(); got != 1 {
		t.Fatalf("expected exactly 1 handoff, got %d", got)
	}
	close(release)

	if gid := <-overflowGID; gid == caller {
		t.Errorf("overflow task ran on the submitting goroutine %d", gid)
	}

	backing.wg.Wait()
	waitFor(t, time.Second, func() bool {
		return e.Stats().TrackedGoroutines == 0
	}, "depth ledger not cleaned up after overflow chain")

	st := e.Stats()
	if st.Inline != int64(MaxInlineDepth) || st.Deferred != 1 {
		t.Errorf("stats inline=%d deferred=%d, want %d/1", st.Inline, st.Deferred, MaxInlineDepth)
	}
}

func TestImmediateExecutor_ConcurrentChainsIndependent(t *testing.T) {
	backing := &poolStub{}
	e := NewImmediateExecutor(backing, testHooks())

	const chainDepth = 20

	runChain := func(t *testing.T, done chan<- struct{}) {
		root := goroutineID()
		var mu sync.Mutex
		gids := make(map[int]uint64, chainDepth)
		var wg sync.WaitGroup
		wg.Add(chainDepth)

		var post func(depth int)
		post = func(depth int) {
			e.Post(func(ctx context.Context) {
				defer wg.Done()
				mu.Lock()
				gids[depth] = goroutineID()
				mu.Unlock()
				if depth < chainDepth {
					post(depth + 1)
				}
			})
		}
		post(1)
		wg.Wait()

		mu.Lock()
		defer mu.Unlock()
		for depth := 1; depth <= MaxInlineDepth; depth++ {
			if gids[depth] != root {
				t.Errorf("depth %d ran on goroutine %d, want chain root %d", depth, gids[depth], root)
			}
		}
		// Depth 16 is the first link past this goroutine's bound; it must
		// have moved off the chain's root goroutine.
		if gids[MaxInlineDepth+1] == root {
			t.Errorf("depth %d did not break away from goroutine %d", MaxInlineDepth+1, root)
		}
		close(done)
	}

	doneA := make(chan struct{})
	doneB := make(chan struct{})
	go runChain(t, doneA)
	go runChain(t, doneB)
	<-doneA
	<-doneB

	// Both chains overflowed once each; neither throttled the other.
	if got := backing.posted.Load(); got != 2 {
		t.Errorf("expected 2 handoffs (one per chain), got %d", got)
	}
	waitFor(t, time.Second, func() bool {
		return e.Stats().TrackedGoroutines == 0
	}, "depth ledger not cleaned up after concurrent chains")
}

func TestImmediateExecutor_InlinePanicPropagates(t *testing.T) {
	backing := &poolStub{}
	e := NewImmediateExecutor(backing, testHooks())

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		e.Post(func(ctx context.Context) {
			panic("inline boom")
		})
	}()

	if recovered != "inline boom" {
		t.Fatalf("expected panic to reach Post's caller, recovered %v", recovered)
	}
	if st := e.Stats(); st.TrackedGoroutines != 0 {
		t.Fatalf("depth ledger leaked %d entries after panic", st.TrackedGoroutines)
	}

	// The counter must have unwound: a fresh full-depth chain stays inline.
	caller := goroutineID()
	ran := 0
	var post func(n int)
	post = func(n int) {
		e.Post(func(ctx context.Context) {
			if goroutineID() != caller {
				t.Errorf("level %d left the caller goroutine after earlier panic", n)
			}
			ran++
			if n+1 < MaxInlineDepth {
				post(n + 1)
			}
		})
	}
	post(0)
	if ran != MaxInlineDepth {
		t.Errorf("expected %d inline executions after panic recovery, got %d", MaxInlineDepth, ran)
	}
}

func TestImmediateExecutor_DeferredPanicDoesNotReachCaller(t *testing.T) {
	backing := &poolStub{}
	e := NewImmediateExecutor(backing, testHooks())

	var post func(depth int)
	post = func(depth int) {
		e.Post(func(ctx context.Context) {
			if depth > MaxInlineDepth {
				panic("deferred boom")
			}
			post(depth + 1)
		})
	}

	// Must not panic: the failing task runs on the backing surface after
	// every Post in the chain has already returned.
	post(1)
	backing.wg.Wait()

	if got := backing.posted.Load(); got != 1 {
		t.Errorf("expected 1 handoff, got %d", got)
	}
	waitFor(t, time.Second, func() bool {
		return e.Stats().TrackedGoroutines == 0
	}, "depth ledger not cleaned up after deferred panic")
}

func TestImmediateExecutor_ReentrantSubmissionSeesElevatedDepth(t *testing.T) {
	backing := &poolStub{}
	e := NewImmediateExecutor(backing, testHooks())

	gid := goroutineID()
	e.Post(func(ctx context.Context) {
		if v, ok := e.depths.Load(gid); !ok || v.(int) != 1 {
			t.Fatalf("expected depth 1 inside outer task, got %v", v)
		}
		e.Post(func(ctx context.Context) {
			if v, ok := e.depths.Load(gid); !ok || v.(int) != 2 {
				t.Fatalf("expected depth 2 inside nested task, got %v", v)
			}
		})
		if v, ok := e.depths.Load(gid); !ok || v.(int) != 1 {
			t.Fatalf("expected depth back to 1 after nested Post, got %v", v)
		}
	})

	if _, ok := e.depths.Load(gid); ok {
		t.Fatal("expected depth entry removed after outermost Post returned")
	}
}

func TestImmediateExecutor_MetricsHooks(t *testing.T) {
	backing := &poolStub{}
	metrics := &countingMetrics{}
	e := NewImmediateExecutor(backing, Hooks{Metrics: metrics, Logger: NewNoOpLogger()})

	var post func(depth int)
	post = func(depth int) {
		e.Post(func(ctx context.Context) {
			if depth <= MaxInlineDepth {
				post(depth + 1)
			}
		})
	}
	post(1)
	backing.wg.Wait()

	if got := metrics.inline.Load(); got != int64(MaxInlineDepth) {
		t.Errorf("inline metric = %d, want %d", got, MaxInlineDepth)
	}
	if got := metrics.deferred.Load(); got != 1 {
		t.Errorf("deferred metric = %d, want 1", got)
	}
}

// countingMetrics counts hook invocations for assertions.
type countingMetrics struct {
	duration atomic.Int64
	panics   atomic.Int64
	rejected atomic.Int64
	inline   atomic.Int64
	deferred atomic.Int64
}

func (m *countingMetrics) RecordTaskDuration(string, time.Duration) { m.duration.Add(1) }
func (m *countingMetrics) RecordTaskPanic(string, any)              { m.panics.Add(1) }
func (m *countingMetrics) RecordQueueDepth(string, int)             {}
func (m *countingMetrics) RecordTaskRejected(string, string)        { m.rejected.Add(1) }
func (m *countingMetrics) RecordInlineExecution(string)             { m.inline.Add(1) }
func (m *countingMetrics) RecordDeferredExecution(string)           { m.deferred.Add(1) }
