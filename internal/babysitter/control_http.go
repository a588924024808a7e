package babysitter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// NewControlHandler builds the Babysitter's local control surface
// (spec §6, bound to worker_port+1): /health, /models, /info.
func NewControlHandler(state *State, client *http.Client) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", handleControlHealth(state))
	r.GET("/models", handleControlModels(state, client))
	r.GET("/info", handleControlInfo(state))

	return r
}

func handleControlHealth(state *State) gin.HandlerFunc {
	return func(c *gin.Context) {
		port, ready := state.ServicePort()
		c.JSON(http.StatusOK, gin.H{
			"status":                 "ok",
			"service":                state.Config.Name,
			"babysitter":             "enhanced",
			"infinilm_server_running": ready && state.CurrentState() == StateRunning,
			"infinilm_server_port":   port,
			"timestamp":              time.Now(),
		})
	}
}

func handleControlModels(state *State, client *http.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		port, ready := state.ServicePort()
		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "worker not ready"})
			return
		}
		base := fmt.Sprintf("http://%s:%d", state.Config.Host, port)
		req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, base+"/models", nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp, err := client.Do(req)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		defer resp.Body.Close()

		var payload any
		if json.NewDecoder(resp.Body).Decode(&payload) != nil {
			c.Status(resp.StatusCode)
			return
		}
		c.JSON(resp.StatusCode, payload)
	}
}

func handleControlInfo(state *State) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := state.Config
		port, _ := state.ServicePort()
		c.JSON(http.StatusOK, gin.H{
			"name":                 cfg.Name,
			"host":                 cfg.Host,
			"port":                 cfg.Port,
			"url":                  fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
			"service_type":         string(cfg.Backend),
			"infinilm_server_port": port,
			"uptime":               state.Uptime().Seconds(),
			"restart_count":        state.RestartCount(),
		})
	}
}
