// Package conn owns the current-server state machine, the background
// health-check scheduler and the failover algorithm.
package conn

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/vietddude/homelink/internal/core/domain"
	"github.com/vietddude/homelink/internal/infra/transport"
	"github.com/vietddude/homelink/internal/metrics"
)

// aboutPath is the well-known liveness endpoint on every candidate server.
const aboutPath = "/app/about"

// ProbeResult is the outcome of one health check. Probes never propagate
// errors: every transport failure and HTTP status is folded into Status.
type ProbeResult struct {
	Status  domain.ServerStatus
	Version string
	Latency time.Duration
}

// Healthy reports whether the probed server answered with a 2xx.
func (r ProbeResult) Healthy() bool {
	return r.Status == domain.StatusOnline
}

// Prober performs one bounded-timeout health check against a server.
type Prober interface {
	Probe(ctx context.Context, server *domain.ServerConfig) ProbeResult
}

// HTTPProber checks liveness with a GET against the server's about endpoint,
// bearing its credential.
type HTTPProber struct{}

// NewHTTPProber creates the default prober.
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{}
}

func (p *HTTPProber) Probe(ctx context.Context, server *domain.ServerConfig) ProbeResult {
	start := time.Now()
	result := p.probe(ctx, server)
	result.Latency = time.Since(start)

	metrics.ProbesTotal.WithLabelValues(server.Name, string(result.Status)).Inc()
	metrics.ProbeLatency.WithLabelValues(server.Name).Observe(result.Latency.Seconds())
	return result
}

func (p *HTTPProber) probe(ctx context.Context, server *domain.ServerConfig) ProbeResult {
	client := transport.NewClient(server)

	url := domain.NormalizeURL(server.BaseURL) + aboutPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ProbeResult{Status: domain.StatusOffline}
	}

	resp, err := client.Do(req)
	if err != nil {
		return ProbeResult{Status: domain.StatusOffline}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return ProbeResult{Status: domain.StatusOnline, Version: scanVersion(resp.Body)}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ProbeResult{Status: domain.StatusUnauthorized}
	default:
		return ProbeResult{Status: domain.StatusError}
	}
}

// scanVersion best-effort extracts a "version" field from the response body.
// Parse failures are silently ignored.
func scanVersion(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return ""
	}
	var about struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &about); err != nil {
		return ""
	}
	return about.Version
}
