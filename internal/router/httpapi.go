package router

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// NewHandler builds the Router's HTTP surface (spec §6, default port
// 8080): health/status, stats, services, models, and a catch-all proxy.
func NewHandler(pool *Pool, proxy *Proxy) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleSummary(pool))
	mux.HandleFunc("GET /status", handleSummary(pool))
	mux.HandleFunc("GET /stats", handleStats(pool))
	mux.HandleFunc("GET /services", handleServices(pool))
	mux.HandleFunc("GET /models", handleModels(pool))
	mux.HandleFunc("/", proxy.ServeHTTP)
	return mux
}

func handleSummary(pool *Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instances := pool.All()
		healthy := 0
		for _, inst := range instances {
			if inst.Healthy() {
				healthy++
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":           "ok",
			"total_instances":  len(instances),
			"healthy_instances": healthy,
			"timestamp":        time.Now(),
		})
	}
}

func handleStats(pool *Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instances := pool.All()
		out := make([]Snapshot, 0, len(instances))
		for _, inst := range instances {
			out = append(out, inst.Snapshot())
		}
		writeJSON(w, http.StatusOK, map[string]any{"services": out, "total": len(out)})
	}
}

func handleServices(pool *Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instances := pool.All()
		out := make([]Snapshot, 0, len(instances))
		for _, inst := range instances {
			out = append(out, inst.Snapshot())
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleModels(pool *Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seen := map[string]struct{}{}
		for _, inst := range pool.All() {
			if !inst.Healthy() || inst.MetadataString("type") != "openai-api" {
				continue
			}
			for _, m := range inst.Models() {
				seen[m] = struct{}{}
			}
		}
		ids := make([]string, 0, len(seen))
		for id := range seen {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		data := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			data = append(data, map[string]any{"id": id, "object": "model"})
		}
		writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
