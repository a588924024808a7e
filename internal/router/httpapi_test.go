package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouterServer(pool *Pool) *httptest.Server {
	proxy := NewProxy(NewSelector(pool), http.DefaultClient, nil)
	return httptest.NewServer(NewHandler(pool, proxy))
}

func TestRouterHealthEndpointReportsCounts(t *testing.T) {
	pool := NewPool()
	inst, _ := pool.Upsert("a", func() *Instance { return NewInstance("a", "h", 1, 1, nil) })
	inst.SetHealthy(false)
	pool.Upsert("b", func() *Instance { return NewInstance("b", "h", 2, 1, nil) })

	srv := newTestRouterServer(pool)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.EqualValues(t, 2, body["total_instances"])
	assert.EqualValues(t, 1, body["healthy_instances"])
}

func TestRouterServicesEndpointListsSnapshots(t *testing.T) {
	pool := NewPool()
	pool.Upsert("a", func() *Instance { return NewInstance("a", "h", 1, 1, nil) })

	srv := newTestRouterServer(pool)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/services")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snaps []Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, "a", snaps[0].Name)
}

func TestRouterModelsEndpointDedupsAcrossHealthyInstances(t *testing.T) {
	pool := NewPool()
	pool.Upsert("a", func() *Instance {
		return NewInstance("a", "h", 1, 1, map[string]any{"type": "openai-api", "models": []any{"m1", "m2"}})
	})
	pool.Upsert("b", func() *Instance {
		return NewInstance("b", "h", 2, 1, map[string]any{"type": "openai-api", "models": []any{"m2", "m3"}})
	})

	srv := newTestRouterServer(pool)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/models")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	ids := make([]string, len(body.Data))
	for i, d := range body.Data {
		ids[i] = d["id"].(string)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)
}

func TestRouterCatchAllRoutesToProxy(t *testing.T) {
	backend, port := newProxyBackend(t, `{"hello":"world"}`)
	defer backend.Close()

	pool := NewPool()
	pool.Upsert("a", func() *Instance { return NewInstance("a", "127.0.0.1", port, 1, nil) })

	srv := newTestRouterServer(pool)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/chat/completions")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
