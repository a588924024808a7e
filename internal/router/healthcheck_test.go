package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthCheckerMarksInstanceHealthyOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool := NewPool()
	inst, _ := pool.Upsert("a", func() *Instance { return NewInstance("a", hostOf(srv.URL), portOf(t, srv.URL)-1, 1, nil) })
	inst.SetHealthy(false)

	hc := NewHealthChecker(pool, http.DefaultClient, time.Hour, time.Second, 3, nil)
	hc.check(context.Background(), inst)

	assert.True(t, inst.Healthy())
}

func TestHealthCheckerMarksInstanceUnhealthyOnFailure(t *testing.T) {
	pool := NewPool()
	inst, _ := pool.Upsert("a", func() *Instance { return NewInstance("a", "127.0.0.1", 1, 1, nil) })

	hc := NewHealthChecker(pool, http.DefaultClient, time.Hour, 50*time.Millisecond, 3, nil)
	hc.check(context.Background(), inst)

	assert.False(t, inst.Healthy())
	assert.EqualValues(t, 1, inst.ErrorCount())
}

func TestHealthCheckerTickCoversAllInstances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool := NewPool()
	for _, name := range []string{"a", "b", "c"} {
		name := name
		_, _ = pool.Upsert(name, func() *Instance {
			return NewInstance(name, hostOf(srv.URL), portOf(t, srv.URL)-1, 1, nil)
		})
	}

	hc := NewHealthChecker(pool, http.DefaultClient, time.Hour, time.Second, 3, nil)
	hc.tick(context.Background())

	for _, inst := range pool.All() {
		assert.True(t, inst.Healthy())
	}
}
