package router

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Ceng23333/InfiniLM-SVC/internal/httpclient"
	"github.com/Ceng23333/InfiniLM-SVC/internal/telemetry"
)

const (
	DefaultProxyTimeout = 1800 * time.Second
	MaxRetries          = 3
)

// Proxy implements the ingest/select/forward/retry pipeline of spec
// §4.8: it extracts routing hints from the buffered body, asks the
// Selector for a target, forwards the request, and retries on
// transport failure against a fresh instance.
type Proxy struct {
	selector  *Selector
	client    *http.Client
	obs       *telemetry.Observability
	timeout   time.Duration
	threshold int
}

// NewProxy creates a proxy over selector using client for outbound
// requests.
func NewProxy(selector *Selector, client *http.Client, obs *telemetry.Observability) *Proxy {
	if obs == nil {
		obs = telemetry.NewObservability(nil, nil, nil)
	}
	return &Proxy{
		selector:  selector,
		client:    client,
		obs:       obs,
		timeout:   proxyTimeoutFromEnv(),
		threshold: cacheThresholdFromEnv(),
	}
}

func proxyTimeoutFromEnv() time.Duration {
	if v := os.Getenv("PROXY_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return DefaultProxyTimeout
}

func cacheThresholdFromEnv() int {
	if v := os.Getenv("CACHE_TYPE_ROUTING_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return DefaultCacheTypeRoutingThreshold
}

// ServeHTTP implements the full request pipeline.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "request body unreadable", http.StatusBadRequest)
		return
	}

	var hints Hints
	if r.Method == http.MethodPost && len(body) > 0 {
		hints = ExtractHints(body)
	}

	sessionID := p.computeSessionID(r, hints)

	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()

	tried := make(map[string]struct{}, MaxRetries)
	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		inst := p.selector.Select(SelectionInput{
			ModelID:     hints.ModelID,
			SessionID:   sessionID,
			MessageSize: hints.MessageSize,
			HasSize:     hints.MessageSize > 0,
			Threshold:   p.threshold,
		})
		if inst == nil || isTried(tried, inst.Name) {
			inst = firstUntried(p.selector.candidatesForModel(hints.ModelID), tried)
		}
		if inst == nil {
			p.writeError(w, http.StatusServiceUnavailable, errors.New("no healthy candidate"))
			return
		}
		tried[inst.Name] = struct{}{}

		start := time.Now()
		_, err := p.forward(ctx, w, r, body, inst)
		if err == nil {
			inst.RecordSuccess(time.Since(start))
			p.obs.LogOperation(ctx, telemetry.OperationEvent{
				Operation: telemetry.OpForward, Target: inst.Name,
				Duration: time.Since(start), Outcome: telemetry.OutcomeSuccess,
			})
			return
		}
		inst.RecordFailure()
		lastErr = err
		p.obs.Logger().Warn(ctx, "router: forward attempt failed", "instance", inst.Name, "error", err.Error())
	}

	p.writeError(w, mapTransportError(lastErr), lastErr)
}

func isTried(tried map[string]struct{}, name string) bool {
	_, ok := tried[name]
	return ok
}

func firstUntried(candidates []*Instance, tried map[string]struct{}) *Instance {
	for _, inst := range candidates {
		if !isTried(tried, inst.Name) {
			return inst
		}
	}
	return nil
}

// forward constructs and sends the outbound request, streaming or
// buffering the response per spec §4.8 steps 5-6. It returns a
// transport-level error only for connect/send failures; 4xx/5xx
// responses are written through and reported as success (they are not
// retried).
func (p *Proxy) forward(ctx context.Context, w http.ResponseWriter, r *http.Request, body []byte, inst *Instance) (int, error) {
	outURL := inst.URL() + r.URL.RequestURI()
	req, err := http.NewRequestWithContext(ctx, r.Method, outURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpclient.CopyHeaders(req.Header, r.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	httpclient.StripHopByHop(resp.Header)
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}

	contentType := resp.Header.Get("Content-Type")
	transferEncoding := resp.Header.Get("Transfer-Encoding")
	streaming := strings.Contains(contentType, "text/event-stream") || strings.Contains(transferEncoding, "chunked")

	w.WriteHeader(resp.StatusCode)
	if streaming {
		flusher, _ := w.(http.Flusher)
		buf := make([]byte, 4096)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				if _, writeErr := w.Write(buf[:n]); writeErr != nil {
					return resp.StatusCode, nil
				}
				if flusher != nil {
					flusher.Flush()
				}
			}
			if readErr != nil {
				break
			}
		}
	} else {
		_, _ = io.Copy(w, resp.Body)
	}
	return resp.StatusCode, nil
}

// computeSessionID implements spec §4.8 step 3: prompt_cache_key takes
// priority, otherwise an IP-derived hash, otherwise none; prefixed with
// the model id (or "default") and a category tag.
func (p *Proxy) computeSessionID(r *http.Request, hints Hints) string {
	modelPart := hints.ModelID
	if modelPart == "" {
		modelPart = "default"
	}
	if hints.PromptCacheKey != "" {
		return modelPart + ":prompt_cache:" + hints.PromptCacheKey
	}
	if ip := clientIP(r); ip != "" {
		return modelPart + ":ip:" + ip
	}
	return ""
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func mapTransportError(err error) int {
	if err == nil {
		return http.StatusBadGateway
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if strings.Contains(err.Error(), "connection refused") {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func (p *Proxy) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	_, _ = w.Write([]byte(`{"error":"` + jsonEscape(msg) + `"}`))
}

func jsonEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
