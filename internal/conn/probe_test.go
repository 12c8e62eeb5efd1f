package conn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vietddude/homelink/internal/core/domain"
)

func probeServer(url string) *domain.ServerConfig {
	return &domain.ServerConfig{
		ID:             "s1",
		Name:           "probe-target",
		BaseURL:        url,
		Token:          "secret-token-123",
		TimeoutSeconds: 5,
	}
}

func TestProbeHealthyServer(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/app/about" {
			t.Errorf("probe hit %s, want /app/about", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"version":"1.2.3"}`))
	}))
	defer ts.Close()

	res := NewHTTPProber().Probe(context.Background(), probeServer(ts.URL))

	if res.Status != domain.StatusOnline {
		t.Errorf("status = %s, want online", res.Status)
	}
	if !res.Healthy() {
		t.Error("expected healthy result")
	}
	if res.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", res.Version)
	}
	if gotAuth != "Bearer secret-token-123" {
		t.Errorf("Authorization = %q, want bearer credential", gotAuth)
	}
}

func TestProbeClassifiesStatuses(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		expect domain.ServerStatus
	}{
		{"unauthorized", 401, domain.StatusUnauthorized},
		{"forbidden", 403, domain.StatusUnauthorized},
		{"server error", 500, domain.StatusError},
		{"not found", 404, domain.StatusError},
		{"accepted", 202, domain.StatusOnline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer ts.Close()

			res := NewHTTPProber().Probe(context.Background(), probeServer(ts.URL))
			if res.Status != tt.expect {
				t.Errorf("status = %s, want %s", res.Status, tt.expect)
			}
		})
	}
}

func TestProbeTransportFailureIsOffline(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // nothing listens anymore

	res := NewHTTPProber().Probe(context.Background(), probeServer(ts.URL))
	if res.Status != domain.StatusOffline {
		t.Errorf("status = %s, want offline", res.Status)
	}
}

func TestProbeIgnoresUnparsableVersionBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer ts.Close()

	res := NewHTTPProber().Probe(context.Background(), probeServer(ts.URL))
	if res.Status != domain.StatusOnline {
		t.Errorf("status = %s, want online despite unparsable body", res.Status)
	}
	if res.Version != "" {
		t.Errorf("version = %q, want empty", res.Version)
	}
}
