package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/execctx/execctx/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// ImmediateSnapshotProvider provides current immediate-executor stats snapshots.
type ImmediateSnapshotProvider interface {
	Stats() core.ImmediateStats
}

// SnapshotPoller periodically exports pool and immediate-executor Stats()
// snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	immediatesMu sync.RWMutex
	immediates   map[string]ImmediateSnapshotProvider

	poolLive    *prom.GaugeVec
	poolIdle    *prom.GaugeVec
	poolQueued  *prom.GaugeVec
	poolActive  *prom.GaugeVec
	poolRunning *prom.GaugeVec

	immediateInline   *prom.GaugeVec
	immediateDeferred *prom.GaugeVec
	immediateTracked  *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	poolLive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctx",
		Name:      "pool_live_workers",
		Help:      "Live worker goroutines per pool.",
	}, []string{"pool"})
	poolIdle := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctx",
		Name:      "pool_idle_workers",
		Help:      "Idle worker goroutines per pool.",
	}, []string{"pool"})
	poolQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctx",
		Name:      "pool_queued",
		Help:      "Queued tasks per pool.",
	}, []string{"pool"})
	poolActive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctx",
		Name:      "pool_active",
		Help:      "Active tasks per pool.",
	}, []string{"pool"})
	poolRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctx",
		Name:      "pool_running",
		Help:      "Pool running state (1=running, 0=stopped).",
	}, []string{"pool"})

	immediateInline := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctx",
		Name:      "immediate_inline_total",
		Help:      "Inline execution count snapshot per immediate executor.",
	}, []string{"executor"})
	immediateDeferred := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctx",
		Name:      "immediate_deferred_total",
		Help:      "Deferred execution count snapshot per immediate executor.",
	}, []string{"executor"})
	immediateTracked := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "execctx",
		Name:      "immediate_tracked_goroutines",
		Help:      "Goroutines currently inside a Post call per immediate executor.",
	}, []string{"executor"})

	var err error
	if poolLive, err = registerCollector(reg, poolLive); err != nil {
		return nil, err
	}
	if poolIdle, err = registerCollector(reg, poolIdle); err != nil {
		return nil, err
	}
	if poolQueued, err = registerCollector(reg, poolQueued); err != nil {
		return nil, err
	}
	if poolActive, err = registerCollector(reg, poolActive); err != nil {
		return nil, err
	}
	if poolRunning, err = registerCollector(reg, poolRunning); err != nil {
		return nil, err
	}
	if immediateInline, err = registerCollector(reg, immediateInline); err != nil {
		return nil, err
	}
	if immediateDeferred, err = registerCollector(reg, immediateDeferred); err != nil {
		return nil, err
	}
	if immediateTracked, err = registerCollector(reg, immediateTracked); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:          interval,
		pools:             make(map[string]PoolSnapshotProvider),
		immediates:        make(map[string]ImmediateSnapshotProvider),
		poolLive:          poolLive,
		poolIdle:          poolIdle,
		poolQueued:        poolQueued,
		poolActive:        poolActive,
		poolRunning:       poolRunning,
		immediateInline:   immediateInline,
		immediateDeferred: immediateDeferred,
		immediateTracked:  immediateTracked,
	}, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// AddImmediate adds or replaces an immediate-executor snapshot provider by name.
func (p *SnapshotPoller) AddImmediate(name string, provider ImmediateSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "immediate")
	p.immediatesMu.Lock()
	p.immediates[name] = provider
	p.immediatesMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolLive.WithLabelValues(name).Set(float64(stats.Live))
		p.poolIdle.WithLabelValues(name).Set(float64(stats.Idle))
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		if stats.Running {
			p.poolRunning.WithLabelValues(name).Set(1)
		} else {
			p.poolRunning.WithLabelValues(name).Set(0)
		}
	}
	p.poolsMu.RUnlock()

	p.immediatesMu.RLock()
	for name, provider := range p.immediates {
		stats := provider.Stats()
		p.immediateInline.WithLabelValues(name).Set(float64(stats.Inline))
		p.immediateDeferred.WithLabelValues(name).Set(float64(stats.Deferred))
		p.immediateTracked.WithLabelValues(name).Set(float64(stats.TrackedGoroutines))
	}
	p.immediatesMu.RUnlock()
}
