// Package stream is the websocket streaming query engine. Each client
// channel owns one session; a session multiplexes any number of
// repeating range and metric subscriptions, keyed by client-chosen ids.
package stream

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brewkit/brewkit-history/internal/models"
	"github.com/brewkit/brewkit-history/internal/pkg/metrics"
)

// RangeQuerier is the slice of the time-series client the engine
// consumes.
type RangeQuerier interface {
	Ranges(ctx context.Context, query models.TimeSeriesRangesQuery) ([]models.TimeSeriesRange, error)
}

// MetricSource serves latest-value snapshots for metric subscriptions.
type MetricSource interface {
	Latest(fields []string) []models.TimeSeriesMetric
}

// Options tunes the engine. Zero intervals select the 10s defaults.
type Options struct {
	RangesInterval  time.Duration
	MetricsInterval time.Duration
	Logger          *slog.Logger
	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Handler upgrades stream requests and runs their sessions.
type Handler struct {
	ranges          RangeQuerier
	metrics         MetricSource
	rangesInterval  time.Duration
	metricsInterval time.Duration
	upgrader        websocket.Upgrader
	log             *slog.Logger
	now             func() time.Time
}

// NewHandler creates the streaming handler.
func NewHandler(ranges RangeQuerier, metricSource MetricSource, opts Options) *Handler {
	if opts.RangesInterval <= 0 {
		opts.RangesInterval = 10 * time.Second
	}
	if opts.MetricsInterval <= 0 {
		opts.MetricsInterval = 10 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		ranges:          ranges,
		metrics:         metricSource,
		rangesInterval:  opts.RangesInterval,
		metricsInterval: opts.MetricsInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
		now: now,
	}
}

// ServeWS handles GET /timeseries/stream. It blocks for the lifetime of
// the client channel.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("stream upgrade failed", "error", err)
		return
	}

	metrics.StreamSessions.Inc()
	defer metrics.StreamSessions.Dec()

	s := newSession(h, conn)
	s.run(r.Context())
}
