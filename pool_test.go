package execctx

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/execctx/execctx/core"
)

// Ensure ElasticPool fully implements Executor
var _ core.Executor = (*ElasticPool)(nil)

func quietHooks() core.Hooks {
	return core.Hooks{Logger: core.NewNoOpLogger()}
}

func newTestPool(t *testing.T, opts PoolOptions) *ElasticPool {
	t.Helper()
	opts.Hooks = quietHooks()
	pool := NewElasticPool("test-pool", opts)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	return pool
}

func TestElasticPool_Lifecycle(t *testing.T) {
	pool := NewElasticPool("lifecycle-pool", PoolOptions{Hooks: quietHooks()})

	if pool.ID() != "lifecycle-pool" {
		t.Errorf("expected ID 'lifecycle-pool', got %s", pool.ID())
	}
	if pool.IsRunning() {
		t.Error("pool should not be running initially")
	}

	pool.Start(context.Background())
	if !pool.IsRunning() {
		t.Error("pool should be running after Start()")
	}
	if pool.LiveWorkers() != 0 {
		t.Errorf("workers are created on demand, got %d live at start", pool.LiveWorkers())
	}

	pool.Stop()
	if pool.IsRunning() {
		t.Error("pool should not be running after Stop()")
	}
}

func TestElasticPool_GeneratedID(t *testing.T) {
	pool := NewElasticPool("", PoolOptions{Hooks: quietHooks()})
	if pool.ID() == "" {
		t.Error("expected a generated pool id")
	}
}

func TestElasticPool_SizingDefaults(t *testing.T) {
	pool := NewElasticPool("sizing-pool", PoolOptions{Hooks: quietHooks()})

	if pool.CoreSize() != DefaultCoreSize() {
		t.Errorf("core size = %d, want %d", pool.CoreSize(), DefaultCoreSize())
	}
	if pool.MaxSize() != DefaultMaxSize() {
		t.Errorf("max size = %d, want %d", pool.MaxSize(), DefaultMaxSize())
	}
}

func TestElasticPool_TaskExecution(t *testing.T) {
	pool := newTestPool(t, PoolOptions{MaxSize: 4})

	var counter int32
	var wg sync.WaitGroup
	taskCount := 10
	wg.Add(taskCount)

	for i := 0; i < taskCount; i++ {
		pool.Post(func(ctx context.Context) {
			defer wg.Done()
			atomic.AddInt32(&counter, 1)
		})
	}
	wg.Wait()

	if val := atomic.LoadInt32(&counter); val != int32(taskCount) {
		t.Errorf("expected %d executed tasks, got %d", taskCount, val)
	}
}

func TestElasticPool_NeverRunsInline(t *testing.T) {
	pool := newTestPool(t, PoolOptions{})

	blocked := make(chan struct{})
	released := make(chan struct{})
	pool.Post(func(ctx context.Context) {
		<-blocked
		close(released)
	})
	// If Post had run the task synchronously we would deadlock before this
	// line ever closed the channel.
	close(blocked)
	<-released
}

func TestElasticPool_FIFOWithSingleWorker(t *testing.T) {
	pool := newTestPool(t, PoolOptions{CoreSize: 1, MaxSize: 1})

	const tasks = 30
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(tasks)

	for i := 0; i < tasks; i++ {
		n := i
		pool.Post(func(ctx context.Context) {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, n := range order {
		if n != i {
			t.Fatalf("FIFO order violated at %d: got %v", i, order)
		}
	}
}

func TestElasticPool_MaxSizeCapUnderBurst(t *testing.T) {
	const maxSize = 4
	pool := newTestPool(t, PoolOptions{CoreSize: 2, MaxSize: maxSize, IdleTimeout: 100 * time.Millisecond})

	burst := maxSize * 10
	var concurrent, peak int32
	var wg sync.WaitGroup
	wg.Add(burst)

	for i := 0; i < burst; i++ {
		pool.Post(func(ctx context.Context) {
			defer wg.Done()
			cur := atomic.AddInt32(&concurrent, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&concurrent, -1)
		})
		if live := pool.LiveWorkers(); live > maxSize {
			t.Fatalf("live workers %d exceeded max %d during burst", live, maxSize)
		}
	}
	wg.Wait()

	if p := atomic.LoadInt32(&peak); p > maxSize {
		t.Errorf("peak concurrency %d exceeded max %d", p, maxSize)
	}

	stats := pool.Stats()
	if stats.Completed != int64(burst) {
		t.Errorf("expected all %d tasks to complete, got %d", burst, stats.Completed)
	}
}

func TestElasticPool_ShrinksWhenIdle(t *testing.T) {
	pool := newTestPool(t, PoolOptions{CoreSize: 2, MaxSize: 4, IdleTimeout: 30 * time.Millisecond})

	var wg sync.WaitGroup
	wg.Add(8)
	for i := 0; i < 8; i++ {
		pool.Post(func(ctx context.Context) {
			defer wg.Done()
			time.Sleep(5 * time.Millisecond)
		})
	}
	wg.Wait()

	if pool.LiveWorkers() == 0 {
		t.Fatal("expected live workers right after the burst")
	}

	// Fully elastic policy: every worker retires after the idle timeout.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pool.LiveWorkers() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if live := pool.LiveWorkers(); live != 0 {
		t.Errorf("expected pool to drain to 0 workers, got %d", live)
	}

	// And it regrows on demand.
	done := make(chan struct{})
	pool.Post(func(ctx context.Context) {
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drained pool did not regrow for new work")
	}
}

func TestElasticPool_PanicDoesNotKillWorker(t *testing.T) {
	pool := newTestPool(t, PoolOptions{CoreSize: 1, MaxSize: 1})

	pool.Post(func(ctx context.Context) {
		panic("worker boom")
	})

	// The same single worker must keep draining after the panic.
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		pool.Post(func(ctx context.Context) {
			defer wg.Done()
		})
	}
	wg.Wait()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && pool.Stats().Panics == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := pool.Stats().Panics; got != 1 {
		t.Errorf("expected 1 recorded panic, got %d", got)
	}
}

func TestElasticPool_RejectsAfterStop(t *testing.T) {
	rejected := &countingRejectedHandler{}
	pool := NewElasticPool("reject-pool", PoolOptions{
		Hooks: core.Hooks{Logger: core.NewNoOpLogger(), RejectedTaskHandler: rejected},
	})
	pool.Start(context.Background())
	pool.Stop()

	pool.Post(func(ctx context.Context) {
		t.Error("task ran after Stop")
	})

	if got := rejected.count.Load(); got != 1 {
		t.Errorf("expected 1 rejection, got %d", got)
	}
}

func TestElasticPool_StopGraceful(t *testing.T) {
	pool := NewElasticPool("graceful-pool", PoolOptions{CoreSize: 2, MaxSize: 2, Hooks: quietHooks()})
	pool.Start(context.Background())

	var counter int32
	for i := 0; i < 10; i++ {
		pool.Post(func(ctx context.Context) {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&counter, 1)
		})
	}

	if err := pool.StopGraceful(2 * time.Second); err != nil {
		t.Fatalf("graceful stop failed: %v", err)
	}
	if got := atomic.LoadInt32(&counter); got != 10 {
		t.Errorf("expected all 10 tasks to finish before stop, got %d", got)
	}
	if pool.IsRunning() {
		t.Error("pool still running after StopGraceful")
	}
}

func TestElasticPool_StopGracefulTimeout(t *testing.T) {
	pool := NewElasticPool("timeout-pool", PoolOptions{CoreSize: 1, MaxSize: 1, Hooks: quietHooks()})
	pool.Start(context.Background())

	release := make(chan struct{})
	pool.Post(func(ctx context.Context) {
		<-release
	})
	time.Sleep(20 * time.Millisecond) // let the worker pick it up

	// Unblock the task a moment after the graceful deadline has passed so
	// the forced Stop can join the worker.
	go func() {
		time.Sleep(300 * time.Millisecond)
		close(release)
	}()

	if err := pool.StopGraceful(100 * time.Millisecond); err == nil {
		t.Error("expected an error from StopGraceful timeout")
	}
}

func TestElasticPool_CarriesExecutorContext(t *testing.T) {
	pool := newTestPool(t, PoolOptions{})

	got := make(chan core.Executor, 1)
	pool.Post(func(ctx context.Context) {
		got <- core.GetCurrentExecutor(ctx)
	})

	if e := <-got; e != pool {
		t.Errorf("GetCurrentExecutor returned %v, want the pool", e)
	}
}

type countingRejectedHandler struct {
	count atomic.Int32
}

func (h *countingRejectedHandler) HandleRejectedTask(executorName string, reason string) {
	h.count.Add(1)
}
