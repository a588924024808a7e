package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// probeURL returns the URL the registry checks for liveness, per spec
// §4.2: a record whose metadata type is "openai-api" is probed at its
// babysitter (host:port+1/health) rather than at the worker itself —
// the babysitter is the stable liveness oracle for a worker. Anything
// else (including type "babysitter") is probed at its own advertised
// URL.
func probeURL(rec *Record) string {
	rec.mu.RLock()
	host, port, recURL, typ := rec.Host, rec.Port, rec.URL, stringField(rec.Metadata, "type")
	rec.mu.RUnlock()

	if typ == "openai-api" {
		return fmt.Sprintf("http://%s:%d/health", host, port+1)
	}
	return strings.TrimRight(recURL, "/") + "/health"
}

// probe performs one liveness check against rec's probe URL. It returns
// true only on a 2xx response; any other outcome, including a transport
// error or timeout, is treated as unhealthy. A probe failure must never
// delete the record — only the Reaper evicts (spec §4.2).
func probe(ctx context.Context, client *http.Client, rec *Record) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL(rec), nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
