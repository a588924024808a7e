// Package router implements the reverse proxy and load balancer: a
// live pool of worker instances kept in sync with the Registry, a
// concurrent health checker, routing-hint extraction, and the
// tiered selection/retry pipeline that dispatches inbound requests.
package router

import (
	"fmt"
	"sync"
	"time"
)

// Instance is the Router's in-memory view of a worker (spec §3's
// ServiceInstance). Hot scalar fields (healthy, counters, timing) are
// guarded independently of the pool's own map lock so that health
// checks, sync, and proxy selection never block on one another.
type Instance struct {
	Name string
	Host string
	Port int

	mu            sync.RWMutex
	healthy       bool
	models        []string
	metadata      map[string]any
	weight        int
	requestCount  int64
	errorCount    int64
	lastSeen      time.Time
	lastCheck     time.Time
	responseTime  time.Duration
	static        bool
}

// NewInstance creates an instance seeded from a static-file entry or a
// fresh Registry sync, defaulting weight to 1.
func NewInstance(name, host string, port int, weight int, metadata map[string]any) *Instance {
	if weight <= 0 {
		weight = 1
	}
	return &Instance{
		Name:     name,
		Host:     host,
		Port:     port,
		healthy:  true,
		weight:   weight,
		metadata: metadata,
		models:   metadataModels(metadata),
		lastSeen: time.Now(),
		static:   metadataBool(metadata, "static"),
	}
}

// URL is the worker's own derived endpoint.
func (i *Instance) URL() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return fmt.Sprintf("http://%s:%d", i.Host, i.Port)
}

// BabysitterURL is always derived, never stored independently (spec §3).
func (i *Instance) BabysitterURL() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return fmt.Sprintf("http://%s:%d", i.Host, i.Port+1)
}

// Healthy reports the instance's current health bit.
func (i *Instance) Healthy() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.healthy
}

// SetHealthy updates the health bit under the per-instance guard.
func (i *Instance) SetHealthy(v bool) {
	i.mu.Lock()
	i.healthy = v
	i.mu.Unlock()
}

// Weight returns the instance's WRR weight.
func (i *Instance) Weight() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.weight
}

// Models returns the instance's advertised model IDs.
func (i *Instance) Models() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]string, len(i.models))
	copy(out, i.models)
	return out
}

// ServesModel reports whether id is among the instance's models. An
// instance advertising no models at all is treated as serving any
// model (static entries commonly omit the models list).
func (i *Instance) ServesModel(id string) bool {
	if id == "" {
		return true
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if len(i.models) == 0 {
		return true
	}
	for _, m := range i.models {
		if m == id {
			return true
		}
	}
	return false
}

// ErrorCount returns the number of health-check/forward failures
// recorded since the last successful health check (a successful forward
// does not reset it).
func (i *Instance) ErrorCount() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.errorCount
}

// Metadata returns the instance's metadata map.
func (i *Instance) Metadata() map[string]any {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.metadata
}

// MetadataString returns metadata[key] as a string, or "".
func (i *Instance) MetadataString(key string) string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return stringField(i.metadata, key)
}

// IsStatic reports whether this instance is immune to sync-driven
// removal (spec §3: metadata.static=true).
func (i *Instance) IsStatic() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.static
}

// LastSeen returns the last time a Registry sync observed this instance.
func (i *Instance) LastSeen() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastSeen
}

// ApplySync merges a fresh Registry observation into the instance
// (spec §4.6): host/port/metadata/models/health are all refreshed, and
// last_seen is bumped to now.
func (i *Instance) ApplySync(host string, port int, healthy bool, metadata map[string]any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Host = host
	i.Port = port
	i.metadata = metadata
	i.models = metadataModels(metadata)
	i.healthy = healthy
	i.lastSeen = time.Now()
}

// RecordSuccess marks a completed forward attempt.
func (i *Instance) RecordSuccess(elapsed time.Duration) {
	i.mu.Lock()
	i.requestCount++
	i.responseTime = elapsed
	i.mu.Unlock()
}

// RecordFailure marks a failed forward attempt and demotes health
// (spec §4.8 step 7).
func (i *Instance) RecordFailure() {
	i.mu.Lock()
	i.errorCount++
	i.healthy = false
	i.mu.Unlock()
}

// RecordCheck updates the HealthChecker's own bookkeeping (spec §4.7).
func (i *Instance) RecordCheck(healthy bool, elapsed time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastCheck = time.Now()
	i.healthy = healthy
	i.responseTime = elapsed
	if healthy {
		i.errorCount = 0
	} else {
		i.errorCount++
	}
}

// Snapshot is the JSON-serializable view returned by GET /services.
type Snapshot struct {
	Name          string         `json:"name"`
	Host          string         `json:"host"`
	Port          int            `json:"port"`
	URL           string         `json:"url"`
	BabysitterURL string         `json:"babysitter_url"`
	Healthy       bool           `json:"healthy"`
	Models        []string       `json:"models"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Weight        int            `json:"weight"`
	RequestCount  int64          `json:"request_count"`
	ErrorCount    int64          `json:"error_count"`
	LastSeen      time.Time      `json:"last_seen"`
	LastCheck     time.Time      `json:"last_check"`
	ResponseTime  time.Duration  `json:"response_time_ms"`
}

// Snapshot takes a consistent point-in-time copy of the instance.
func (i *Instance) Snapshot() Snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return Snapshot{
		Name:          i.Name,
		Host:          i.Host,
		Port:          i.Port,
		URL:           fmt.Sprintf("http://%s:%d", i.Host, i.Port),
		BabysitterURL: fmt.Sprintf("http://%s:%d", i.Host, i.Port+1),
		Healthy:       i.healthy,
		Models:        append([]string(nil), i.models...),
		Metadata:      i.metadata,
		Weight:        i.weight,
		RequestCount:  i.requestCount,
		ErrorCount:    i.errorCount,
		LastSeen:      i.lastSeen,
		LastCheck:     i.lastCheck,
		ResponseTime:  i.responseTime / time.Millisecond,
	}
}

func metadataModels(metadata map[string]any) []string {
	if metadata == nil {
		return nil
	}
	raw, ok := metadata["models"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func metadataBool(metadata map[string]any, key string) bool {
	if metadata == nil {
		return false
	}
	v, ok := metadata[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
