package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProbesTotal tracks health probes per server and outcome
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homelink_probes_total",
			Help: "Total number of health probes",
		},
		[]string{"server", "result"},
	)

	// ProbeLatency tracks health probe latency
	ProbeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "homelink_probe_latency_seconds",
			Help:    "Health probe latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server"},
	)

	// FailoversTotal tracks failovers to an alternate server
	FailoversTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "homelink_failovers_total",
			Help: "Total number of failovers to an alternate server",
		},
	)

	// RequestRetriesTotal tracks retried outgoing requests
	RequestRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "homelink_request_retries_total",
			Help: "Total number of retried outgoing requests",
		},
	)

	// CacheDecisionsTotal tracks cache policy decisions per resource class and mode
	CacheDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homelink_cache_decisions_total",
			Help: "Total number of cache policy decisions",
		},
		[]string{"class", "mode"},
	)

	// ConnectionStatus tracks the coordinator's connection state machine
	ConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "homelink_connection_status",
			Help: "Current connection status (0=disconnected 1=connecting 2=connected 3=fallback 4=switching 5=error)",
		},
	)
)
