package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordAssignsUniqueRegistrationID(t *testing.T) {
	a := NewRecord("svc-a", "h", 9000, "h", "http://h:9000", "running", nil)
	b := NewRecord("svc-a", "h", 9000, "h", "http://h:9000", "running", nil)

	assert.NotEmpty(t, a.RegistrationID)
	assert.NotEqual(t, a.RegistrationID, b.RegistrationID, "each registration gets its own identity even when reusing the same name")
	assert.Equal(t, a.RegistrationID, a.Snapshot().RegistrationID)
}

func TestRecordIsHealthy(t *testing.T) {
	rec := NewRecord("svc-a", "h", 9000, "h", "http://h:9000", "running", nil)
	assert.True(t, rec.IsHealthy(), "fresh running record must be healthy")

	rec.mu.Lock()
	rec.lastHeartbeat = time.Now().Add(-121 * time.Second)
	rec.mu.Unlock()
	assert.False(t, rec.IsHealthy(), "heartbeat older than 120s must be unhealthy")

	rec.Touch()
	assert.True(t, rec.IsHealthy())
}

func TestRecordIsHealthyRequiresRunningStatus(t *testing.T) {
	rec := NewRecord("svc-a", "h", 9000, "h", "http://h:9000", "starting", nil)
	assert.False(t, rec.IsHealthy(), "non-running status is never healthy regardless of heartbeat age")
}

func TestRecordExpired(t *testing.T) {
	rec := NewRecord("svc-a", "h", 9000, "h", "http://h:9000", "running", nil)
	assert.False(t, rec.Expired())

	rec.mu.Lock()
	rec.lastHeartbeat = time.Now().Add(-301 * time.Second)
	rec.mu.Unlock()
	assert.True(t, rec.Expired())
}

func TestRecordEvictThresholdLooserThanStaleThreshold(t *testing.T) {
	// A record can be unhealthy (past 120s) yet not yet evictable (under 300s).
	rec := NewRecord("svc-a", "h", 9000, "h", "http://h:9000", "running", nil)
	rec.mu.Lock()
	rec.lastHeartbeat = time.Now().Add(-200 * time.Second)
	rec.mu.Unlock()

	assert.False(t, rec.IsHealthy())
	assert.False(t, rec.Expired())
}

func TestRecordApplyUpdatePartial(t *testing.T) {
	rec := NewRecord("svc-a", "h1", 9000, "h1", "http://h1:9000", "running", map[string]any{"type": "openai-api"})
	newHost := "h2"
	rec.ApplyUpdate(RecordPatch{Host: &newHost})

	snap := rec.Snapshot()
	assert.Equal(t, "h2", snap.Host)
	assert.Equal(t, 9000, snap.Port, "unspecified fields must remain unchanged")
	assert.Equal(t, "openai-api", snap.Metadata["type"])
}

func TestRecordSetHealthStatusHealthyAdvancesHeartbeat(t *testing.T) {
	rec := NewRecord("svc-a", "h", 9000, "h", "http://h:9000", "running", nil)
	rec.mu.Lock()
	rec.lastHeartbeat = time.Now().Add(-200 * time.Second)
	rec.mu.Unlock()

	rec.SetHealthStatus(HealthHealthy)
	require.WithinDuration(t, time.Now(), rec.LastHeartbeat(), time.Second)

	rec.mu.Lock()
	rec.lastHeartbeat = time.Now().Add(-200 * time.Second)
	rec.mu.Unlock()
	rec.SetHealthStatus(HealthUnhealthy)
	assert.True(t, time.Since(rec.LastHeartbeat()) > 150*time.Second, "an unhealthy probe must not advance the heartbeat")
}
