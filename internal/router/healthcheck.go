package router

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Ceng23333/InfiniLM-SVC/internal/runloop"
	"github.com/Ceng23333/InfiniLM-SVC/internal/telemetry"
)

const (
	DefaultRouterHealthInterval = 30 * time.Second
	DefaultRouterHealthTimeout  = 5 * time.Second
	// DefaultMaxErrors only drives logging emphasis (spec §4.7); any
	// single failed probe still flips the health bit.
	DefaultMaxErrors = 3
)

// HealthChecker probes every pool instance's babysitter health endpoint
// on its own timer, independent of the Registry sync (spec §4.7).
type HealthChecker struct {
	pool      *Pool
	client    *http.Client
	timeout   time.Duration
	maxErrors int
	obs       *telemetry.Observability
	loop      *runloop.Loop
}

// NewHealthChecker creates a checker ticking every interval.
func NewHealthChecker(pool *Pool, client *http.Client, interval, timeout time.Duration, maxErrors int, obs *telemetry.Observability) *HealthChecker {
	if obs == nil {
		obs = telemetry.NewObservability(nil, nil, nil)
	}
	if interval <= 0 {
		interval = DefaultRouterHealthInterval
	}
	if timeout <= 0 {
		timeout = DefaultRouterHealthTimeout
	}
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	h := &HealthChecker{pool: pool, client: client, timeout: timeout, maxErrors: maxErrors, obs: obs}
	h.loop = runloop.New(interval, false, h.tick)
	return h
}

// Start begins the checker's background loop.
func (h *HealthChecker) Start(ctx context.Context) { h.loop.Start(ctx) }

// Stop cancels the checker.
func (h *HealthChecker) Stop() { h.loop.Stop() }

func (h *HealthChecker) tick(ctx context.Context) {
	var wg sync.WaitGroup
	for _, inst := range h.pool.All() {
		wg.Add(1)
		go func(inst *Instance) {
			defer wg.Done()
			h.check(ctx, inst)
		}(inst)
	}
	wg.Wait()
}

func (h *HealthChecker) check(ctx context.Context, inst *Instance) {
	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, inst.BabysitterURL()+"/health", nil)
	if err != nil {
		inst.RecordCheck(false, time.Since(start))
		return
	}
	resp, err := h.client.Do(req)
	if err != nil {
		inst.RecordCheck(false, time.Since(start))
		return
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)
	healthy := resp.StatusCode >= 200 && resp.StatusCode < 300
	inst.RecordCheck(healthy, elapsed)
	if !healthy {
		level := h.obs.Logger().Debug
		if inst.ErrorCount() >= int64(h.maxErrors) {
			level = h.obs.Logger().Warn
		}
		level(ctx, "router: instance health check failed", "instance", inst.Name, "status", resp.StatusCode, "error_count", inst.ErrorCount())
	}
}
