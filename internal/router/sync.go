package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Ceng23333/InfiniLM-SVC/internal/runloop"
	"github.com/Ceng23333/InfiniLM-SVC/internal/telemetry"
)

const (
	DefaultRegistrySyncInterval = 10 * time.Second
	DefaultGracePeriod          = 60 * time.Second
)

// registryRecord is the subset of a Registry snapshot the sync loop
// cares about (spec §4.6).
type registryRecord struct {
	Name      string         `json:"name"`
	Host      string         `json:"host"`
	Port      int            `json:"port"`
	IsHealthy bool           `json:"is_healthy"`
	Metadata  map[string]any `json:"metadata"`
}

type registryListResponse struct {
	Services []registryRecord `json:"services"`
}

// Syncer pulls GET /services?healthy=true from the Registry and
// reconciles the pool's non-static membership (spec §4.6).
type Syncer struct {
	pool        *Pool
	client      *http.Client
	registryURL string
	gracePeriod time.Duration
	obs         *telemetry.Observability
	loop        *runloop.Loop
}

// NewSyncer creates a syncer ticking every interval.
func NewSyncer(pool *Pool, client *http.Client, registryURL string, interval, gracePeriod time.Duration, obs *telemetry.Observability) *Syncer {
	if obs == nil {
		obs = telemetry.NewObservability(nil, nil, nil)
	}
	if interval <= 0 {
		interval = DefaultRegistrySyncInterval
	}
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	s := &Syncer{pool: pool, client: client, registryURL: registryURL, gracePeriod: gracePeriod, obs: obs}
	s.loop = runloop.New(interval, true, s.tick)
	return s
}

// Start begins the syncer's background loop.
func (s *Syncer) Start(ctx context.Context) { s.loop.Start(ctx) }

// Stop cancels the syncer.
func (s *Syncer) Stop() { s.loop.Stop() }

func (s *Syncer) tick(ctx context.Context) {
	start := time.Now()
	records, err := s.fetchHealthy(ctx)
	if err != nil {
		// Membership errors are logged and leave the pool unchanged
		// (spec §7): a transient Registry outage must not churn
		// membership.
		s.obs.Logger().Error(ctx, "router: registry sync failed", "error", err.Error())
		return
	}

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if stringField(rec.Metadata, "type") != "openai-api" {
			continue
		}
		seen[rec.Name] = struct{}{}
		s.reconcile(rec)
	}

	s.evictMissing(seen)
	s.obs.LogOperation(ctx, telemetry.OperationEvent{
		Operation: telemetry.OpSync,
		Duration:  time.Since(start),
		Outcome:   telemetry.OutcomeSuccess,
	})
}

func (s *Syncer) reconcile(rec registryRecord) {
	inst, created := s.pool.Upsert(rec.Name, func() *Instance {
		weight := 1
		if w, ok := rec.Metadata["weight"].(float64); ok && w > 0 {
			weight = int(w)
		}
		return NewInstance(rec.Name, rec.Host, rec.Port, weight, rec.Metadata)
	})
	if !created {
		inst.ApplySync(rec.Host, rec.Port, rec.IsHealthy, rec.Metadata)
	}
}

func (s *Syncer) evictMissing(seen map[string]struct{}) {
	now := time.Now()
	for _, inst := range s.pool.All() {
		if _, ok := seen[inst.Name]; ok {
			continue
		}
		if inst.IsStatic() {
			continue
		}
		if now.Sub(inst.LastSeen()) > s.gracePeriod {
			s.pool.Remove(inst.Name)
		}
	}
}

func (s *Syncer) fetchHealthy(ctx context.Context) ([]registryRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.registryURL+"/services?healthy=true", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errStatus(resp.StatusCode)
	}
	var body registryListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Services, nil
}
