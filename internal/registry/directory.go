package registry

import (
	"context"
	"net/http"
	"time"

	"github.com/Ceng23333/InfiniLM-SVC/internal/telemetry"
)

// Directory implements the service directory's HTTP-facing operations
// (spec §4.1): register, update, unregister, heartbeat, get/list with
// filters, on-demand health, and aggregate stats.
//
// Readers (List/Get/Stats) proceed in parallel. Register and Unregister
// take the store's map write lock and so serialize against one another.
// Update and heartbeat (with or without status) look the record up under
// the map read lock and then mutate it under the record's own guard (see
// Record.Touch), so writes to one record serialize on that guard rather
// than on the map lock.
type Directory struct {
	store       Store
	probeClient *http.Client
	probeTimeout time.Duration
	obs         *telemetry.Observability
}

// NewDirectory creates a Directory backed by store, using probeClient
// (with probeTimeout applied per call) for on-demand ServiceHealth
// probes.
func NewDirectory(store Store, probeClient *http.Client, probeTimeout time.Duration, obs *telemetry.Observability) *Directory {
	if obs == nil {
		obs = telemetry.NewObservability(nil, nil, nil)
	}
	return &Directory{store: store, probeClient: probeClient, probeTimeout: probeTimeout, obs: obs}
}

// RegisterRequest is the body of POST /services.
type RegisterRequest struct {
	Name     string         `json:"name"`
	Host     string         `json:"host"`
	Port     int            `json:"port"`
	Hostname string         `json:"hostname"`
	URL      string         `json:"url"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Register inserts or overwrites a record by name (spec §4.1). A
// re-register under an existing name stores a fresh record in its
// place, so RegisteredAt, RegistrationID and HealthStatus start over.
func (d *Directory) Register(ctx context.Context, req RegisterRequest) (Snapshot, error) {
	start := time.Now()
	rec := NewRecord(req.Name, req.Host, req.Port, req.Hostname, req.URL, req.Status, req.Metadata)
	err := d.store.Save(ctx, rec)
	d.logOp(ctx, telemetry.OpRegister, req.Name, start, err)
	if err != nil {
		return Snapshot{}, err
	}
	return rec.Snapshot(), nil
}

// UpdateRequest is the body of PUT /services/{name}; any nil field is
// left unchanged.
type UpdateRequest struct {
	Host     *string
	Port     *int
	Hostname *string
	URL      *string
	Status   *string
	Metadata map[string]any
}

// Update applies a partial update to an existing record. ErrNotFound is
// returned (and mapped to 404 by the HTTP layer) for an unknown name.
func (d *Directory) Update(ctx context.Context, name string, req UpdateRequest) (Snapshot, error) {
	start := time.Now()
	rec, err := d.store.Get(ctx, name)
	if err == nil {
		rec.ApplyUpdate(RecordPatch{
			Host: req.Host, Port: req.Port, Hostname: req.Hostname,
			URL: req.URL, Status: req.Status, Metadata: req.Metadata,
		})
	}
	d.logOp(ctx, telemetry.OpUpdate, name, start, err)
	if err != nil {
		return Snapshot{}, err
	}
	return rec.Snapshot(), nil
}

// Unregister removes a record by name. ErrNotFound for an unknown name.
func (d *Directory) Unregister(ctx context.Context, name string) error {
	start := time.Now()
	err := d.store.Delete(ctx, name)
	d.logOp(ctx, telemetry.OpUnregister, name, start, err)
	return err
}

// Heartbeat advances a record's last_heartbeat. If status is non-empty
// it also replaces the record's status under the per-record write guard
// (spec §4.1). ErrNotFound for an unknown name.
func (d *Directory) Heartbeat(ctx context.Context, name string, status string) error {
	start := time.Now()
	rec, err := d.store.Get(ctx, name)
	if err == nil {
		if status != "" {
			rec.SetStatus(status)
		}
		rec.Touch()
	}
	d.logOp(ctx, telemetry.OpHeartbeat, name, start, err)
	return err
}

// Get returns a single record's snapshot, or ErrNotFound.
func (d *Directory) Get(ctx context.Context, name string) (Snapshot, error) {
	rec, err := d.store.Get(ctx, name)
	if err != nil {
		return Snapshot{}, err
	}
	return rec.Snapshot(), nil
}

// ListFilter narrows List's results, mirroring the status= and
// healthy= query parameters from spec §6.
type ListFilter struct {
	Status       string
	HealthyKnown bool
	Healthy      bool
}

// List returns every matching record's snapshot. status= is an exact
// match against the owner-supplied status string; healthy= post-filters
// by the computed IsHealthy predicate (spec §4.1), not the prober's
// HealthStatus field.
func (d *Directory) List(ctx context.Context, filter ListFilter) ([]Snapshot, error) {
	recs, err := d.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(recs))
	for _, rec := range recs {
		snap := rec.Snapshot()
		if filter.Status != "" && snap.Status != filter.Status {
			continue
		}
		if filter.HealthyKnown && snap.IsHealthy != filter.Healthy {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// HealthResult is the response body of GET /services/{name}/health.
type HealthResult struct {
	Service       string       `json:"service"`
	HealthStatus  HealthStatus `json:"health_status"`
	IsHealthy     bool         `json:"is_healthy"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
	Timestamp     time.Time    `json:"timestamp"`
}

// ServiceHealth performs an on-demand probe against the record's
// effective probe URL (the same rule the background HealthProber uses,
// spec §4.2), updates its HealthStatus, and — on success — advances its
// heartbeat as well.
func (d *Directory) ServiceHealth(ctx context.Context, name string) (HealthResult, error) {
	rec, err := d.store.Get(ctx, name)
	if err != nil {
		return HealthResult{}, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	start := time.Now()
	healthy := probe(probeCtx, d.probeClient, rec)
	status := HealthUnhealthy
	if healthy {
		status = HealthHealthy
	}
	rec.SetHealthStatus(status)
	d.logOp(ctx, telemetry.OpProbe, name, start, nil)

	return HealthResult{
		Service:       name,
		HealthStatus:  status,
		IsHealthy:     healthy,
		LastHeartbeat: rec.LastHeartbeat(),
		Timestamp:     time.Now(),
	}, nil
}

// Stats is the aggregate view returned by GET /stats.
type Stats struct {
	Total         int            `json:"total"`
	Healthy       int            `json:"healthy"`
	ByStatus      map[string]int `json:"by_status"`
	ByHost        map[string]int `json:"by_host"`
}

// Stats aggregates counts across the directory: totals, healthy count,
// and histograms over status and host.
func (d *Directory) Stats(ctx context.Context) (Stats, error) {
	recs, err := d.store.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{ByStatus: map[string]int{}, ByHost: map[string]int{}}
	for _, rec := range recs {
		snap := rec.Snapshot()
		stats.Total++
		if snap.IsHealthy {
			stats.Healthy++
		}
		stats.ByStatus[snap.Status]++
		stats.ByHost[snap.Host]++
	}
	return stats, nil
}

func (d *Directory) logOp(ctx context.Context, op telemetry.OperationType, target string, start time.Time, err error) {
	outcome := telemetry.OutcomeSuccess
	errMsg := ""
	if err != nil {
		outcome = telemetry.OutcomeError
		errMsg = err.Error()
	}
	event := telemetry.OperationEvent{Operation: op, Target: target, Duration: time.Since(start), Outcome: outcome, Error: errMsg}
	d.obs.LogOperation(ctx, event)
	d.obs.RecordOperationMetrics(event)
}
