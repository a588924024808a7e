// Package registry implements the central service directory: the
// in-memory record store, the active health prober, the stale-record
// reaper, and the HTTP surface the babysitter and router talk to.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// HealthStatus is the Registry's own, actively-probed view of a record's
// health, distinct from the computed IsHealthy predicate used by List's
// healthy= filter (see Record.IsHealthy).
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// StaleThreshold is the age past which a record's heartbeat is no longer
// recent enough for it to be considered healthy by Record.IsHealthy.
const StaleThreshold = 120 * time.Second

// EvictThreshold is the (strictly looser) age past which the Reaper
// removes a record outright. A record may sit unhealthy for a while
// before it is evicted.
const EvictThreshold = 300 * time.Second

// ModelInfo mirrors the OpenAI models-list object shape (the Router and
// Babysitter are explicitly OpenAI-compatible per the wire contract in
// spec §6), so a worker's enriched model list can be decoded straight
// into this shape instead of an ad hoc map.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// Record is a single entry in the directory: a worker or babysitter
// announcing its presence, heartbeating, and being liveness-checked.
//
// Every field that is mutated after creation (status, lastHeartbeat,
// healthStatus, and the fields ApplyUpdate changes) is guarded by the
// record's own mutex rather than the directory-wide lock, so heartbeat
// and health-probe traffic never take the directory's write lock
// (spec §5).
type Record struct {
	// RegistrationID is a process-lifetime-unique identifier minted at
	// registration time, independent of Name (which a caller may reuse
	// across restarts). It lets log lines and traces correlate every
	// call touching one physical registration even across a re-register.
	RegistrationID string `json:"registration_id"`
	Name           string `json:"name"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Hostname       string `json:"hostname"`
	URL            string `json:"url"`

	RegisteredAt time.Time `json:"registered_at"`

	Metadata map[string]any `json:"metadata,omitempty"`

	mu            sync.RWMutex
	status        string
	lastHeartbeat time.Time
	healthStatus  HealthStatus
}

// NewRecord builds a Record for registration, setting RegisteredAt and
// LastHeartbeat to now and HealthStatus to unknown, per spec §4.1.
func NewRecord(name, host string, port int, hostname, url, status string, metadata map[string]any) *Record {
	now := time.Now()
	return &Record{
		RegistrationID: uuid.New().String(),
		Name:           name,
		Host:           host,
		Port:           port,
		Hostname:       hostname,
		URL:            url,
		RegisteredAt:   now,
		Metadata:       metadata,
		status:         status,
		lastHeartbeat:  now,
		healthStatus:   HealthUnknown,
	}
}

// Status returns the record's owner-supplied status string.
func (r *Record) Status() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// SetStatus replaces the status under the per-record guard.
func (r *Record) SetStatus(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
}

// LastHeartbeat returns the last heartbeat time.
func (r *Record) LastHeartbeat() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastHeartbeat
}

// Touch advances LastHeartbeat to now. Used by Heartbeat; a successful
// health probe (SetHealthStatus) and Update (ApplyUpdate) advance the
// heartbeat themselves.
func (r *Record) Touch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastHeartbeat = time.Now()
}

// HealthStatusValue returns the prober-assigned health status.
func (r *Record) HealthStatusValue() HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.healthStatus
}

// SetHealthStatus sets the prober-assigned health status. When healthy,
// the heartbeat is also advanced (spec §4.2, §9: the health probe's
// success conflates heartbeat-as-liveness-from-owner with
// heartbeat-as-observed-aliveness; preserved as specified).
func (r *Record) SetHealthStatus(s HealthStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healthStatus = s
	if s == HealthHealthy {
		r.lastHeartbeat = time.Now()
	}
}

// IsHealthy is the computed predicate from spec §3: a record is healthy
// iff its status is "running" and its heartbeat is within StaleThreshold.
// This is independent of, and observed on a different cadence than, the
// prober-assigned HealthStatus field (spec §5: consumers must tolerate
// that two fields of one record can reflect different ticks).
func (r *Record) IsHealthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status == "running" && time.Since(r.lastHeartbeat) < StaleThreshold
}

// Expired reports whether the record's heartbeat is older than
// EvictThreshold, the Reaper's removal condition.
func (r *Record) Expired() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return time.Since(r.lastHeartbeat) > EvictThreshold
}

// ApplyUpdate merges a partial update into the record (spec §4.1:
// Update is a partial update of an existing record). Zero-value fields
// in the patch are left unchanged except Metadata, which replaces
// wholesale when non-nil (matching how metadata is supplied as a single
// opaque blob, not field-by-field, throughout the spec). The heartbeat
// is advanced as part of any update.
func (r *Record) ApplyUpdate(patch RecordPatch) {
	r.mu.Lock()
	if patch.Host != nil {
		r.Host = *patch.Host
	}
	if patch.Port != nil {
		r.Port = *patch.Port
	}
	if patch.Hostname != nil {
		r.Hostname = *patch.Hostname
	}
	if patch.URL != nil {
		r.URL = *patch.URL
	}
	if patch.Status != nil {
		r.status = *patch.Status
	}
	if patch.Metadata != nil {
		r.Metadata = patch.Metadata
	}
	r.lastHeartbeat = time.Now()
	r.mu.Unlock()
}

// RecordPatch carries the fields a partial update may change. Nil
// pointers (and a nil Metadata map) leave the corresponding field
// untouched.
type RecordPatch struct {
	Host     *string
	Port     *int
	Hostname *string
	URL      *string
	Status   *string
	Metadata map[string]any
}

// Snapshot is the JSON-serializable view of a Record returned by the
// HTTP surface, taken under the record's read lock so scalar fields are
// never torn (spec §5).
type Snapshot struct {
	RegistrationID string        `json:"registration_id"`
	Name          string         `json:"name"`
	Host          string         `json:"host"`
	Port          int            `json:"port"`
	Hostname      string         `json:"hostname"`
	URL           string         `json:"url"`
	Status        string         `json:"status"`
	RegisteredAt  time.Time      `json:"registered_at"`
	LastHeartbeat time.Time      `json:"last_heartbeat"`
	HealthStatus  HealthStatus   `json:"health_status"`
	IsHealthy     bool           `json:"is_healthy"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Snapshot takes a consistent point-in-time copy of the record.
func (r *Record) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		RegistrationID: r.RegistrationID,
		Name:          r.Name,
		Host:          r.Host,
		Port:          r.Port,
		Hostname:      r.Hostname,
		URL:           r.URL,
		Status:        r.status,
		RegisteredAt:  r.RegisteredAt,
		LastHeartbeat: r.lastHeartbeat,
		HealthStatus:  r.healthStatus,
		IsHealthy:     r.status == "running" && time.Since(r.lastHeartbeat) < StaleThreshold,
		Metadata:      r.Metadata,
	}
}

// MetadataType returns metadata["type"], the discriminant spec §4.2 uses
// to choose the probe URL ("openai-api" vs "babysitter" vs other).
func (r *Record) MetadataType() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return stringField(r.Metadata, "type")
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
