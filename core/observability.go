package core

// PoolStats represents runtime observability state for a worker pool.
type PoolStats struct {
	ID        string
	CoreSize  int
	MaxSize   int
	Live      int
	Idle      int
	Queued    int
	Active    int
	Completed int64
	Panics    int64
	Running   bool
}

// ImmediateStats represents runtime observability state for an immediate
// executor. TrackedGoroutines counts goroutines currently inside a Post
// call; it returns to zero when every chain has unwound.
type ImmediateStats struct {
	Name              string
	Inline            int64
	Deferred          int64
	TrackedGoroutines int
}
