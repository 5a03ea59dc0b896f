package recovery

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/embedgate/internal/breaker"
	"github.com/dshills/embedgate/internal/cache"
	"github.com/dshills/embedgate/internal/provider"
)

// Status is the aggregate health verdict.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// rank orders statuses for aggregation.
func (s Status) rank() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// CheckResult is one probe's outcome.
type CheckResult struct {
	Name    string        `json:"name"`
	Status  Status        `json:"status"`
	Latency time.Duration `json:"latency_ns"`
	Detail  string        `json:"detail,omitempty"`
}

// Report aggregates all probes.
type Report struct {
	Status          Status        `json:"status"`
	Checks          []CheckResult `json:"checks"`
	Recommendations []string      `json:"recommendations,omitempty"`
	GeneratedAt     time.Time     `json:"generated_at"`
}

// DepthReporter is the queue surface the health checker needs.
type DepthReporter interface {
	Depth(ctx context.Context) (int64, error)
}

// HealthOptions tunes probe thresholds. Zero values take the defaults
// below.
type HealthOptions struct {
	// CacheWindow is how long a report is served before probes rerun.
	CacheWindow time.Duration
	// CacheLatencyWarn flags a slow cache round-trip.
	CacheLatencyWarn time.Duration
	// QueueDepthWarn and QueueDepthCritical flag a growing backlog.
	QueueDepthWarn     int64
	QueueDepthCritical int64
	// HeapRatioWarn flags memory pressure as heap-in-use over heap
	// reserved.
	HeapRatioWarn float64
}

// DefaultHealthOptions returns the production probe thresholds.
func DefaultHealthOptions() HealthOptions {
	return HealthOptions{
		CacheWindow:        30 * time.Second,
		CacheLatencyWarn:   250 * time.Millisecond,
		QueueDepthWarn:     100,
		QueueDepthCritical: 1000,
		HeapRatioWarn:      0.9,
	}
}

// HealthChecker runs the probe battery: provider readiness, circuit
// states, memory headroom, cache round-trip, queue depth. Reports are
// cached for a short window to bound probe frequency. Safe for
// concurrent use.
type HealthChecker struct {
	provider provider.Client
	cache    cache.Store
	breakers *breaker.Registry
	queue    DepthReporter // nil when deferred execution is disabled
	opts     HealthOptions

	mu       sync.Mutex
	cached   Report
	cachedAt time.Time

	now func() time.Time
}

// NewHealthChecker wires a checker. queue may be nil.
func NewHealthChecker(p provider.Client, store cache.Store, breakers *breaker.Registry, queue DepthReporter, opts HealthOptions) *HealthChecker {
	def := DefaultHealthOptions()
	if opts.CacheWindow <= 0 {
		opts.CacheWindow = def.CacheWindow
	}
	if opts.CacheLatencyWarn <= 0 {
		opts.CacheLatencyWarn = def.CacheLatencyWarn
	}
	if opts.QueueDepthWarn <= 0 {
		opts.QueueDepthWarn = def.QueueDepthWarn
	}
	if opts.QueueDepthCritical <= 0 {
		opts.QueueDepthCritical = def.QueueDepthCritical
	}
	if opts.HeapRatioWarn <= 0 {
		opts.HeapRatioWarn = def.HeapRatioWarn
	}
	return &HealthChecker{
		provider: p,
		cache:    store,
		breakers: breakers,
		queue:    queue,
		opts:     opts,
		now:      time.Now,
	}
}

// Check returns the current health report, rerunning probes only when
// the cached report has aged out.
func (h *HealthChecker) Check(ctx context.Context) Report {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.cachedAt.IsZero() && h.now().Sub(h.cachedAt) < h.opts.CacheWindow {
		return h.cached
	}

	report := h.run(ctx)
	h.cached = report
	h.cachedAt = h.now()
	return report
}

func (h *HealthChecker) run(ctx context.Context) Report {
	report := Report{
		Status:      StatusHealthy,
		GeneratedAt: h.now(),
	}

	add := func(c CheckResult, recommendation string) {
		report.Checks = append(report.Checks, c)
		if c.Status.rank() > report.Status.rank() {
			report.Status = c.Status
		}
		if recommendation != "" && c.Status != StatusHealthy {
			report.Recommendations = append(report.Recommendations, recommendation)
		}
	}

	add(h.checkProvider(), "configure provider credentials or switch to the local provider")
	add(h.checkCircuits(), "wait for the cool-down or investigate the provider outage")
	add(h.checkMemory(), "reduce batch sizes to lower memory pressure")
	add(h.checkCache(ctx), "embedding generation continues uncached; check the cache database")
	if h.queue != nil {
		add(h.checkQueue(ctx), "queue backlog growing; add workers or pause deferred ingestion")
	}

	return report
}

func (h *HealthChecker) checkProvider() CheckResult {
	c := CheckResult{Name: "provider"}
	if !h.provider.Configured() {
		c.Status = StatusCritical
		c.Detail = fmt.Sprintf("provider %s is not configured", h.provider.Name())
		return c
	}
	c.Status = StatusHealthy
	c.Detail = fmt.Sprintf("%s (%s, %d dimensions)", h.provider.Name(), h.provider.Model(), h.provider.Dimension())
	return c
}

func (h *HealthChecker) checkCircuits() CheckResult {
	c := CheckResult{Name: "circuits", Status: StatusHealthy}
	open := 0
	for _, snap := range h.breakers.Snapshots() {
		if snap.State != breaker.StateClosed {
			open++
			c.Detail = fmt.Sprintf("circuit %s is %s", snap.Name, snap.State)
		}
	}
	if open > 0 {
		c.Status = StatusWarning
		if open > 1 {
			c.Detail = fmt.Sprintf("%d circuits are not closed", open)
		}
	}
	return c
}

func (h *HealthChecker) checkMemory() CheckResult {
	c := CheckResult{Name: "memory", Status: StatusHealthy}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapSys == 0 {
		return c
	}
	ratio := float64(m.HeapInuse) / float64(m.HeapSys)
	c.Detail = fmt.Sprintf("heap in use %.0f%% of reserved", ratio*100)
	if ratio > h.opts.HeapRatioWarn {
		c.Status = StatusWarning
	}
	return c
}

// checkCache writes and reads back a sentinel entry to prove the cache
// path end to end, then removes nothing: the sentinel ages out with the
// normal TTL.
func (h *HealthChecker) checkCache(ctx context.Context) CheckResult {
	c := CheckResult{Name: "cache"}
	meta := cache.Meta{Provider: "health", Model: "probe", Dimension: 1}
	text := "health probe " + uuid.NewString()

	start := h.now()
	if err := h.cache.Set(ctx, text, []float32{1}, meta); err != nil {
		c.Status = StatusWarning
		c.Detail = fmt.Sprintf("cache write failed: %v", err)
		return c
	}
	_, ok := h.cache.Get(ctx, text, meta)
	c.Latency = h.now().Sub(start)
	if !ok {
		c.Status = StatusWarning
		c.Detail = "cache round-trip lost the sentinel entry"
		return c
	}
	if c.Latency > h.opts.CacheLatencyWarn {
		c.Status = StatusWarning
		c.Detail = fmt.Sprintf("slow cache round-trip: %s", c.Latency)
		return c
	}
	c.Status = StatusHealthy
	return c
}

func (h *HealthChecker) checkQueue(ctx context.Context) CheckResult {
	c := CheckResult{Name: "queue"}
	depth, err := h.queue.Depth(ctx)
	if err != nil {
		c.Status = StatusWarning
		c.Detail = fmt.Sprintf("queue depth unavailable: %v", err)
		return c
	}
	c.Detail = fmt.Sprintf("depth %d", depth)
	switch {
	case depth >= h.opts.QueueDepthCritical:
		c.Status = StatusCritical
	case depth >= h.opts.QueueDepthWarn:
		c.Status = StatusWarning
	default:
		c.Status = StatusHealthy
	}
	return c
}
