package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirectory() *Directory {
	return NewDirectory(NewMemoryStore(), http.DefaultClient, time.Second, nil)
}

func TestDirectoryRegisterAndGet(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory()

	snap, err := dir.Register(ctx, RegisterRequest{Name: "svc-a", Host: "h", Port: 9000, URL: "http://h:9000", Status: "running"})
	require.NoError(t, err)
	assert.Equal(t, "svc-a", snap.Name)

	got, err := dir.Get(ctx, "svc-a")
	require.NoError(t, err)
	assert.Equal(t, "h", got.Host)
}

func TestDirectoryRegisterIsIdempotentByName(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory()

	_, err := dir.Register(ctx, RegisterRequest{Name: "svc-a", Host: "h1", Port: 1, URL: "http://h1:1", Status: "running"})
	require.NoError(t, err)
	_, err = dir.Register(ctx, RegisterRequest{Name: "svc-a", Host: "h2", Port: 2, URL: "http://h2:2", Status: "running"})
	require.NoError(t, err)

	snap, err := dir.Get(ctx, "svc-a")
	require.NoError(t, err)
	assert.Equal(t, "h2", snap.Host)
}

func TestDirectoryGetMissing(t *testing.T) {
	dir := newTestDirectory()
	_, err := dir.Get(context.Background(), "ghost")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDirectoryUpdatePartial(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory()
	_, err := dir.Register(ctx, RegisterRequest{Name: "svc-a", Host: "h1", Port: 1, URL: "http://h1:1", Status: "running"})
	require.NoError(t, err)

	newHost := "h2"
	snap, err := dir.Update(ctx, "svc-a", UpdateRequest{Host: &newHost})
	require.NoError(t, err)
	assert.Equal(t, "h2", snap.Host)
	assert.Equal(t, 1, snap.Port)
}

func TestDirectoryUpdateMissing(t *testing.T) {
	dir := newTestDirectory()
	_, err := dir.Update(context.Background(), "ghost", UpdateRequest{})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDirectoryUnregister(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory()
	_, err := dir.Register(ctx, RegisterRequest{Name: "svc-a", Host: "h", Port: 1, URL: "http://h:1", Status: "running"})
	require.NoError(t, err)

	require.NoError(t, dir.Unregister(ctx, "svc-a"))
	_, err = dir.Get(ctx, "svc-a")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDirectoryHeartbeatWithStatus(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory()
	_, err := dir.Register(ctx, RegisterRequest{Name: "svc-a", Host: "h", Port: 1, URL: "http://h:1", Status: "starting"})
	require.NoError(t, err)

	require.NoError(t, dir.Heartbeat(ctx, "svc-a", "running"))
	snap, err := dir.Get(ctx, "svc-a")
	require.NoError(t, err)
	assert.Equal(t, "running", snap.Status)
}

func TestDirectoryListFiltersByStatusAndHealth(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory()
	_, err := dir.Register(ctx, RegisterRequest{Name: "a", Host: "h", Port: 1, URL: "http://h:1", Status: "running"})
	require.NoError(t, err)
	_, err = dir.Register(ctx, RegisterRequest{Name: "b", Host: "h", Port: 2, URL: "http://h:2", Status: "stopped"})
	require.NoError(t, err)

	snaps, err := dir.List(ctx, ListFilter{Status: "running"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "a", snaps[0].Name)

	healthy, err := dir.List(ctx, ListFilter{HealthyKnown: true, Healthy: true})
	require.NoError(t, err)
	require.Len(t, healthy, 1)
	assert.Equal(t, "a", healthy[0].Name)
}

func TestDirectoryServiceHealthProbesAndUpdatesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	dir := newTestDirectory()
	_, err := dir.Register(ctx, RegisterRequest{Name: "svc-a", Host: "h", Port: 1, URL: srv.URL, Status: "running"})
	require.NoError(t, err)

	res, err := dir.ServiceHealth(ctx, "svc-a")
	require.NoError(t, err)
	assert.True(t, res.IsHealthy)
	assert.Equal(t, HealthHealthy, res.HealthStatus)
}

func TestDirectoryStats(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory()
	_, err := dir.Register(ctx, RegisterRequest{Name: "a", Host: "h1", Port: 1, URL: "http://h1:1", Status: "running"})
	require.NoError(t, err)
	_, err = dir.Register(ctx, RegisterRequest{Name: "b", Host: "h1", Port: 2, URL: "http://h1:2", Status: "stopped"})
	require.NoError(t, err)

	stats, err := dir.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Healthy)
	assert.Equal(t, 2, stats.ByHost["h1"])
	assert.Equal(t, 1, stats.ByStatus["running"])
}
