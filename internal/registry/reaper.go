package registry

import (
	"context"
	"time"

	"github.com/Ceng23333/InfiniLM-SVC/internal/runloop"
	"github.com/Ceng23333/InfiniLM-SVC/internal/telemetry"
)

// DefaultCleanupInterval is the tick interval between reaper sweeps.
const DefaultCleanupInterval = 60 * time.Second

// Reaper evicts records whose heartbeat is older than EvictThreshold
// (spec §4.3). EvictThreshold (300s) is strictly looser than the
// healthy-predicate's StaleThreshold (120s): a record may be observed
// unhealthy for a while before it is actually removed.
type Reaper struct {
	store Store
	obs   *telemetry.Observability
	loop  *runloop.Loop
}

// NewReaper creates a reaper that sweeps every interval.
func NewReaper(store Store, interval time.Duration, obs *telemetry.Observability) *Reaper {
	if obs == nil {
		obs = telemetry.NewObservability(nil, nil, nil)
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	r := &Reaper{store: store, obs: obs}
	r.loop = runloop.New(interval, false, r.tick)
	return r
}

// Start begins the reaper's background loop.
func (r *Reaper) Start(ctx context.Context) { r.loop.Start(ctx) }

// Stop cancels the reaper and waits for the in-flight sweep to finish.
func (r *Reaper) Stop() { r.loop.Stop() }

func (r *Reaper) tick(ctx context.Context) {
	start := time.Now()
	recs, err := r.store.List(ctx)
	if err != nil {
		r.obs.Logger().Error(ctx, "reaper: list failed", "error", err.Error())
		return
	}

	evicted := 0
	for _, rec := range recs {
		if !rec.Expired() {
			continue
		}
		if err := r.store.Delete(ctx, rec.Name); err != nil {
			continue
		}
		evicted++
		r.obs.LogOperation(ctx, telemetry.OperationEvent{
			Operation: telemetry.OpEvict,
			Target:    rec.Name,
			Duration:  time.Since(start),
			Outcome:   telemetry.OutcomeSuccess,
		})
	}
	if evicted > 0 {
		r.obs.Logger().Info(ctx, "reaper evicted stale records", "count", evicted)
	}
}
