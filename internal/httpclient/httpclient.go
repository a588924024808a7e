// Package httpclient holds the HTTP client construction and hop-by-hop
// header handling used by the router's proxy.
package httpclient

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// ConnectTimeout is the dial timeout applied to every client built here.
const ConnectTimeout = 5 * time.Second

// New builds an *http.Client whose Transport applies the 5s connect
// timeout. The client has no overall Timeout: callers bound each request
// through its context, as the router's proxy does with its proxy timeout
// (1800s by default).
func New() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   ConnectTimeout,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// HopByHopHeaders is the set of headers that must not cross a proxy
// boundary, per spec §4.8.
var HopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
	"Host",
	"Content-Length",
}

// StripHopByHop removes the hop-by-hop header set from h in place, along
// with any header named in h's own "Connection" value (the standard
// mechanism for naming additional per-hop headers).
func StripHopByHop(h http.Header) {
	if conn := h.Get("Connection"); conn != "" {
		for _, name := range strings.Split(conn, ",") {
			h.Del(strings.TrimSpace(name))
		}
	}
	for _, name := range HopByHopHeaders {
		h.Del(name)
	}
}

// CopyHeaders copies src into dst, skipping hop-by-hop headers.
func CopyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if isHopByHop(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func isHopByHop(name string) bool {
	for _, h := range HopByHopHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}
