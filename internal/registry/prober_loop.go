package registry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Ceng23333/InfiniLM-SVC/internal/runloop"
	"github.com/Ceng23333/InfiniLM-SVC/internal/telemetry"
)

// DefaultHealthInterval is the tick interval between prober rounds.
const DefaultHealthInterval = 30 * time.Second

// DefaultHealthTimeout bounds each individual probe.
const DefaultHealthTimeout = 5 * time.Second

// HealthProber periodically probes every record's health endpoint and
// updates its computed HealthStatus (spec §4.2). A probe failure never
// removes a record; only the Reaper evicts.
type HealthProber struct {
	store   Store
	client  *http.Client
	timeout time.Duration
	obs     *telemetry.Observability
	loop    *runloop.Loop
}

// NewHealthProber creates a prober that ticks every interval, probing
// each record concurrently with the given per-probe timeout.
func NewHealthProber(store Store, client *http.Client, interval, timeout time.Duration, obs *telemetry.Observability) *HealthProber {
	if obs == nil {
		obs = telemetry.NewObservability(nil, nil, nil)
	}
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	p := &HealthProber{store: store, client: client, timeout: timeout, obs: obs}
	p.loop = runloop.New(interval, false, p.tick)
	return p
}

// Start begins the prober's background loop.
func (p *HealthProber) Start(ctx context.Context) { p.loop.Start(ctx) }

// Stop cancels the prober and waits for the in-flight round to finish.
func (p *HealthProber) Stop() { p.loop.Stop() }

// tick snapshots the current records and probes each concurrently,
// awaiting the whole group before returning (spec §5: background tasks
// spawn their probes concurrently and await the group before sleeping
// again).
func (p *HealthProber) tick(ctx context.Context) {
	start := time.Now()
	recs, err := p.store.List(ctx)
	if err != nil {
		p.obs.Logger().Error(ctx, "health prober: list failed", "error", err.Error())
		return
	}

	var (
		wg              sync.WaitGroup
		mu              sync.Mutex
		healthyCount    int
		unhealthyCount  int
	)
	for _, rec := range recs {
		wg.Add(1)
		go func(rec *Record) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			healthy := probe(probeCtx, p.client, rec)
			status := HealthUnhealthy
			if healthy {
				status = HealthHealthy
			}
			rec.SetHealthStatus(status)

			mu.Lock()
			if healthy {
				healthyCount++
			} else {
				unhealthyCount++
			}
			mu.Unlock()
		}(rec)
	}
	wg.Wait()

	p.obs.LogOperation(ctx, telemetry.OperationEvent{
		Operation: telemetry.OpProbe,
		Duration:  time.Since(start),
		Outcome:   telemetry.OutcomeSuccess,
	})
	p.obs.Logger().Debug(ctx, "health prober tick complete",
		"healthy", healthyCount, "unhealthy", unhealthyCount, "total", len(recs))
}
