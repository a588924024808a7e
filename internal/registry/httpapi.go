package registry

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// NewHandler builds the Registry's HTTP surface (spec §6, default port
// 8081): health, service CRUD, on-demand health, heartbeat, and stats.
func NewHandler(dir *Directory) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", dir.handleHealth)
	mux.HandleFunc("GET /services", dir.handleList)
	mux.HandleFunc("POST /services", dir.handleRegister)
	mux.HandleFunc("GET /services/{name}", dir.handleGet)
	mux.HandleFunc("PUT /services/{name}", dir.handleUpdate)
	mux.HandleFunc("DELETE /services/{name}", dir.handleUnregister)
	mux.HandleFunc("GET /services/{name}/health", dir.handleServiceHealth)
	mux.HandleFunc("POST /services/{name}/heartbeat", dir.handleHeartbeat)
	mux.HandleFunc("GET /stats", dir.handleStats)

	return mux
}

func (d *Directory) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := d.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"registry":           "infinilm-registry",
		"registered_services": stats.Total,
		"healthy_services":   stats.Healthy,
		"timestamp":          time.Now(),
	})
}

func (d *Directory) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: r.URL.Query().Get("status")}
	if h := r.URL.Query().Get("healthy"); h != "" {
		b, err := strconv.ParseBool(h)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.HealthyKnown = true
		filter.Healthy = b
	}
	snaps, err := d.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"services":  snaps,
		"total":     len(snaps),
		"timestamp": time.Now(),
	})
}

func (d *Directory) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, err := d.Register(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (d *Directory) handleGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	snap, err := d.Get(r.Context(), name)
	if err != nil {
		writeNotFoundOr500(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (d *Directory) handleUpdate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, err := d.Update(r.Context(), name, req)
	if err != nil {
		writeNotFoundOr500(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (d *Directory) handleUnregister(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := d.Unregister(r.Context(), name); err != nil {
		writeNotFoundOr500(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "unregistered", "name": name})
}

func (d *Directory) handleServiceHealth(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	res, err := d.ServiceHealth(r.Context(), name)
	if err != nil {
		writeNotFoundOr500(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (d *Directory) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var body struct {
		Status string `json:"status,omitempty"`
	}
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if err := d.Heartbeat(r.Context(), name, body.Status); err != nil {
		writeNotFoundOr500(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "heartbeat recorded", "timestamp": time.Now()})
}

func (d *Directory) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := d.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeNotFoundOr500(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
