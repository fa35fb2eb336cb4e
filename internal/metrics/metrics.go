// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rustplay_executions_total",
			Help: "Total number of executions by outcome",
		},
		[]string{"outcome"},
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rustplay_execution_duration_ms",
			Help:    "Execution duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"phase"}, // phase: "compile", "run", "total"
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rustplay_queue_depth",
			Help: "Current number of jobs waiting in the queue",
		},
	)

	QueueRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rustplay_queue_rejections_total",
			Help: "Total number of jobs rejected because the queue was full",
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rustplay_active_workers",
			Help: "Number of workers currently processing jobs",
		},
	)

	WorkerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rustplay_worker_panics_total",
			Help: "Total number of jobs that panicked inside a worker",
		},
	)

	ActiveWorkspaces = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rustplay_active_workspaces",
			Help: "Number of workspaces currently on disk",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rustplay_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiter",
		},
	)

	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rustplay_websocket_connections",
			Help: "Number of open websocket connections",
		},
	)
)
