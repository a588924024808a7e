package babysitter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlHTTPHealthBeforeReady(t *testing.T) {
	cfg := Config{Name: "mock-9000", Backend: BackendMock, Host: "127.0.0.1", Port: 9000}.WithDefaults()
	state := NewState(cfg)
	handler := NewControlHandler(state, http.DefaultClient)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, false, body["infinilm_server_running"])
}

func TestControlHTTPModelsUnavailableBeforeReady(t *testing.T) {
	cfg := Config{Name: "mock-9000", Backend: BackendMock, Host: "127.0.0.1", Port: 9000}.WithDefaults()
	state := NewState(cfg)
	handler := NewControlHandler(state, http.DefaultClient)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestControlHTTPInfo(t *testing.T) {
	cfg := Config{Name: "mock-9000", Backend: BackendMock, Host: "127.0.0.1", Port: 9000}.WithDefaults()
	state := NewState(cfg)
	handler := NewControlHandler(state, http.DefaultClient)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/info")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "mock-9000", body["name"])
	assert.Equal(t, "mock", body["service_type"])
}
