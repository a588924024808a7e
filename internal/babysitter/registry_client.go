package babysitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Ceng23333/InfiniLM-SVC/internal/runloop"
	"github.com/Ceng23333/InfiniLM-SVC/internal/telemetry"
)

const (
	servicePortPollInterval = 100 * time.Millisecond
	modelsMaxAttempts       = 50
	modelsEarlyBackoff      = 300 * time.Millisecond
	modelsLateBackoff       = time.Second
	modelsEarlyAttempts     = 10
	modelsEmptyRetryDelay   = 2 * time.Second
)

// RegistryClient drives the Babysitter's relationship with the
// Registry: self-registration, managed-service registration once the
// worker is ready and serving models, and a periodic heartbeat for both
// records (spec §4.5).
type RegistryClient struct {
	state  *State
	client *http.Client
	obs    *telemetry.Observability

	mu               sync.RWMutex
	workerRegistered bool

	heartbeat *runloop.Loop
}

// NewRegistryClient builds a client against registryURL via client.
func NewRegistryClient(state *State, client *http.Client, obs *telemetry.Observability) *RegistryClient {
	if obs == nil {
		obs = telemetry.NewObservability(nil, nil, nil)
	}
	rc := &RegistryClient{state: state, client: client, obs: obs}
	interval := state.Config.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	rc.heartbeat = runloop.New(interval, true, rc.heartbeatTick)
	return rc
}

func (rc *RegistryClient) workerServiceName() string {
	return rc.state.Config.Name + "-server"
}

func (rc *RegistryClient) babysitterServiceName() string {
	return rc.state.Config.Name
}

// SelfRegister posts the Babysitter's own record. Failures are logged
// and do not prevent the caller from proceeding (spec §4.5 phase 1).
func (rc *RegistryClient) SelfRegister(ctx context.Context) {
	cfg := rc.state.Config
	body := map[string]any{
		"name":     rc.babysitterServiceName(),
		"host":     cfg.Host,
		"port":     cfg.Port + 1,
		"hostname": cfg.Host,
		"url":      fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port+1),
		"status":   "running",
		"metadata": map[string]any{
			"type":       string(cfg.Backend),
			"babysitter": "enhanced",
		},
	}
	if err := rc.postJSON(ctx, "/services", body); err != nil {
		rc.obs.Logger().Error(ctx, "babysitter: self-registration failed", "error", err.Error())
	}
}

// RegisterManagedService waits for the worker's port and model list and
// then registers the second record, `<name>-server` (spec §4.5 phase
// 2). It blocks until one registration attempt has been made, model
// discovery has given up, or ctx is cancelled, so callers run it in its
// own goroutine. A failed registration POST is logged and not retried.
func (rc *RegistryClient) RegisterManagedService(ctx context.Context) {
	if !rc.waitForServicePort(ctx) {
		return
	}

	models, full, ok := rc.fetchModelsWithRetry(ctx)
	if !ok {
		return
	}

	cfg := rc.state.Config
	port, _ := rc.state.ServicePort()
	metadata := map[string]any{
		"type":           "openai-api",
		"parent_service": rc.babysitterServiceName(),
		"babysitter":     "enhanced",
		"models":         models,
		"models_list":    full,
	}
	for k, v := range cfg.Metadata {
		metadata[k] = v
	}

	body := map[string]any{
		"name":     rc.workerServiceName(),
		"host":     cfg.Host,
		"port":     port,
		"hostname": cfg.Host,
		"url":      fmt.Sprintf("http://%s:%d", cfg.Host, port),
		"status":   "running",
		"metadata": metadata,
	}
	if err := rc.postJSON(ctx, "/services", body); err != nil {
		rc.obs.Logger().Error(ctx, "babysitter: managed-service registration failed", "error", err.Error())
		return
	}
	rc.mu.Lock()
	rc.workerRegistered = true
	rc.mu.Unlock()
}

func (rc *RegistryClient) waitForServicePort(ctx context.Context) bool {
	ticker := time.NewTicker(servicePortPollInterval)
	defer ticker.Stop()
	for {
		if _, ok := rc.state.ServicePort(); ok {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// modelsResponse accepts both {"data":[...]} and a direct array (spec §4.5).
type modelsResponse struct {
	Data []json.RawMessage `json:"data"`
}

func (rc *RegistryClient) fetchModelsWithRetry(ctx context.Context) ([]string, []json.RawMessage, bool) {
	host := rc.state.Config.Host
	port, _ := rc.state.ServicePort()

	for attempt := 0; attempt < modelsMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, nil, false
		default:
		}

		items, err := rc.fetchModelsOnce(ctx, fmt.Sprintf("http://%s:%d", host, port))
		if err == nil {
			if len(items) > 0 {
				ids := make([]string, 0, len(items))
				for _, raw := range items {
					var m struct {
						ID string `json:"id"`
					}
					if json.Unmarshal(raw, &m) == nil && m.ID != "" {
						ids = append(ids, m.ID)
					}
				}
				return ids, items, true
			}
			// Empty list: worker is up but hasn't advertised models yet.
			select {
			case <-ctx.Done():
				return nil, nil, false
			case <-time.After(modelsEmptyRetryDelay):
			}
			continue
		}

		backoff := modelsEarlyBackoff
		if attempt >= modelsEarlyAttempts {
			backoff = modelsLateBackoff
		}
		select {
		case <-ctx.Done():
			return nil, nil, false
		case <-time.After(backoff):
		}
	}
	rc.obs.Logger().Error(ctx, "babysitter: giving up on model discovery", "service", rc.workerServiceName())
	return nil, nil, false
}

func (rc *RegistryClient) fetchModelsOnce(ctx context.Context, baseURL string) ([]json.RawMessage, error) {
	for _, path := range []string{"/v1/models", "/models"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
		if err != nil {
			continue
		}
		resp, err := rc.client.Do(req)
		if err != nil {
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			continue
		}
		var wrapped modelsResponse
		if err := json.NewDecoder(resp.Body).Decode(&wrapped); err == nil && len(wrapped.Data) > 0 {
			resp.Body.Close()
			return wrapped.Data, nil
		}
		resp.Body.Close()

		// Try again as a direct array.
		req2, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
		if err != nil {
			continue
		}
		resp2, err := rc.client.Do(req2)
		if err != nil {
			continue
		}
		var arr []json.RawMessage
		decodeErr := json.NewDecoder(resp2.Body).Decode(&arr)
		resp2.Body.Close()
		if decodeErr == nil {
			return arr, nil
		}
	}
	return nil, fmt.Errorf("babysitter: no usable model list endpoint")
}

// StartHeartbeat begins the periodic heartbeat loop (spec §4.5 phase 3).
func (rc *RegistryClient) StartHeartbeat(ctx context.Context) { rc.heartbeat.Start(ctx) }

// StopHeartbeat cancels the heartbeat loop.
func (rc *RegistryClient) StopHeartbeat() { rc.heartbeat.Stop() }

func (rc *RegistryClient) heartbeatTick(ctx context.Context) {
	if err := rc.postJSON(ctx, "/services/"+rc.babysitterServiceName()+"/heartbeat", nil); err != nil {
		rc.obs.Logger().Error(ctx, "babysitter: heartbeat failed", "service", rc.babysitterServiceName(), "error", err.Error())
	}
	rc.mu.RLock()
	registered := rc.workerRegistered
	rc.mu.RUnlock()
	if registered {
		if err := rc.postJSON(ctx, "/services/"+rc.workerServiceName()+"/heartbeat", nil); err != nil {
			rc.obs.Logger().Error(ctx, "babysitter: heartbeat failed", "service", rc.workerServiceName(), "error", err.Error())
		}
	}
}

func (rc *RegistryClient) postJSON(ctx context.Context, path string, body any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.state.Config.RegistryURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := rc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("babysitter: registry returned %d for %s", resp.StatusCode, path)
	}
	return nil
}
