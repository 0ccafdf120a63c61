// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestLinesQueued counts line-protocol records accepted by the
	// ingest writer.
	IngestLinesQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "history_ingest_lines_queued_total",
		Help: "Line protocol records queued for writing.",
	})

	// IngestLinesWritten counts records flushed to the time-series
	// backend.
	IngestLinesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "history_ingest_lines_written_total",
		Help: "Line protocol records flushed to the backend.",
	})

	// IngestFlushErrors counts failed flush attempts.
	IngestFlushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "history_ingest_flush_errors_total",
		Help: "Failed flushes to the time-series backend.",
	})

	// IngestPendingLines tracks the pending buffer depth.
	IngestPendingLines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "history_ingest_pending_lines",
		Help: "Line protocol records awaiting flush.",
	})

	// IngestDownsamples counts overflow decimation events.
	IngestDownsamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "history_ingest_downsamples_total",
		Help: "Pending buffer decimations caused by overflow.",
	})

	// RelayEvents counts eventbus messages relayed to the writer,
	// labelled by outcome.
	RelayEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "history_relay_events_total",
		Help: "History events received from the eventbus.",
	}, []string{"result"})

	// StreamSessions tracks open streaming sessions.
	StreamSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "history_stream_sessions",
		Help: "Open websocket streaming sessions.",
	})

	// StreamSubscriptions tracks running stream subscriptions.
	StreamSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "history_stream_subscriptions",
		Help: "Running stream subscriptions across all sessions.",
	})

	// HTTPRequestTotal counts requests by method, route template, and
	// status.
	HTTPRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "history_http_requests_total",
		Help: "HTTP requests served.",
	}, []string{"method", "path", "status"})

	// HTTPRequestDurationSeconds observes request latency per route.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "history_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// DatastoreOps counts datastore operations by kind.
	DatastoreOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "history_datastore_ops_total",
		Help: "Datastore operations served.",
	}, []string{"op"})
)
