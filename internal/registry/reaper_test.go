package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaperEvictsOnlyExpiredRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	fresh := NewRecord("fresh", "h", 1, "h", "http://h:1", "running", nil)
	require.NoError(t, store.Save(ctx, fresh))

	stale := NewRecord("stale", "h", 2, "h", "http://h:2", "running", nil)
	stale.mu.Lock()
	stale.lastHeartbeat = time.Now().Add(-301 * time.Second)
	stale.mu.Unlock()
	require.NoError(t, store.Save(ctx, stale))

	reaper := NewReaper(store, time.Hour, nil)
	reaper.tick(ctx)

	_, err := store.Get(ctx, "fresh")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReaperLeavesMerelyUnhealthyRecords(t *testing.T) {
	// Unhealthy (>120s) but not yet expired (<300s) records must survive a sweep.
	ctx := context.Background()
	store := NewMemoryStore()

	rec := NewRecord("svc-a", "h", 1, "h", "http://h:1", "running", nil)
	rec.mu.Lock()
	rec.lastHeartbeat = time.Now().Add(-200 * time.Second)
	rec.mu.Unlock()
	require.NoError(t, store.Save(ctx, rec))

	reaper := NewReaper(store, time.Hour, nil)
	reaper.tick(ctx)

	_, err := store.Get(ctx, "svc-a")
	assert.NoError(t, err)
}
