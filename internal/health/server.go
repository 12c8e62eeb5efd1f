// Package health exposes the connection layer's observability endpoints.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/homelink/internal/conn"
	"github.com/vietddude/homelink/internal/core/domain"
	"github.com/vietddude/homelink/internal/infra/netmon"
	"github.com/vietddude/homelink/internal/infra/storage"
)

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	coordinator *conn.Coordinator
	observer    netmon.Observer
	repo        storage.ServerRepository
	server      *http.Server
}

// NewServer creates a new health server.
func NewServer(coordinator *conn.Coordinator, observer netmon.Observer, repo storage.ServerRepository, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		coordinator: coordinator,
		observer:    observer,
		repo:        repo,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.coordinator.Snapshot()

	status := "healthy"
	code := http.StatusOK
	switch state.Status {
	case domain.ConnConnected:
	case domain.ConnFallback, domain.ConnSwitching, domain.ConnConnecting:
		status = "degraded"
	default:
		status = "critical"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

type serverStatus struct {
	Name     string              `json:"name"`
	BaseURL  string              `json:"base_url"`
	Enabled  bool                `json:"enabled"`
	Default  bool                `json:"default"`
	Priority int                 `json:"priority"`
	Status   domain.ServerStatus `json:"status"`
	Version  string              `json:"version,omitempty"`
}

type statusReport struct {
	Status  string              `json:"status"`
	Current *serverStatus       `json:"current,omitempty"`
	Network domain.NetworkState `json:"network"`
	Servers []serverStatus      `json:"servers"`
}

// handleStatus returns a JSON snapshot. Credentials never leave the process.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := s.coordinator.Snapshot()

	report := statusReport{
		Status:  state.Status.String(),
		Network: s.observer.Snapshot(),
	}
	if state.Server != nil {
		cur := toStatus(state.Server)
		report.Current = &cur
	}

	all, err := s.repo.All(r.Context())
	if err != nil {
		http.Error(w, "failed to load servers", http.StatusInternalServerError)
		return
	}
	for _, srv := range all {
		report.Servers = append(report.Servers, toStatus(srv))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func toStatus(s *domain.ServerConfig) serverStatus {
	return serverStatus{
		Name:     s.Name,
		BaseURL:  s.BaseURL,
		Enabled:  s.IsEnabled,
		Default:  s.IsDefault,
		Priority: s.Priority,
		Status:   s.Status,
		Version:  s.Version,
	}
}
