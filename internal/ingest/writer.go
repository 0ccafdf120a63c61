// Package ingest batches measurement values into line-protocol records
// and flushes them to the time-series backend on a fixed cadence.
// It survives backend outages with bounded memory: on overflow the
// pending buffer is decimated, trading resolution for span.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brewkit/brewkit-history/internal/errs"
	"github.com/brewkit/brewkit-history/internal/models"
	"github.com/brewkit/brewkit-history/internal/pkg/metrics"
)

// Backend is the slice of the time-series client the writer consumes.
type Backend interface {
	Ping(ctx context.Context) error
	Write(ctx context.Context, lines string) error
}

// Options tunes the writer. Zero values select the defaults.
type Options struct {
	// WriteInterval is the flush cadence. Default 1s.
	WriteInterval time.Duration
	// ReconnectInterval is the backoff after a transient error.
	// Default 5s.
	ReconnectInterval time.Duration
	// MaxPendingLines bounds the pending buffer. Default 5000.
	MaxPendingLines int
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Writer is the batched ingest writer.
type Writer struct {
	backend Backend
	log     *slog.Logger

	writeInterval     time.Duration
	reconnectInterval time.Duration
	maxPending        int

	mu      sync.Mutex
	pending []string
	cache   map[string]models.TimeSeriesMetric

	// lastErr suppresses repeated logs for the same failure text.
	lastErr string

	now func() time.Time
}

// NewWriter creates a writer. Run must be started for flushing to
// happen; WriteSoon may be called before and during Run.
func NewWriter(backend Backend, opts Options) *Writer {
	if opts.WriteInterval <= 0 {
		opts.WriteInterval = time.Second
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 5 * time.Second
	}
	if opts.MaxPendingLines <= 0 {
		opts.MaxPendingLines = 5000
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Writer{
		backend:           backend,
		log:               log,
		writeInterval:     opts.WriteInterval,
		reconnectInterval: opts.ReconnectInterval,
		maxPending:        opts.MaxPendingLines,
		cache:             make(map[string]models.TimeSeriesMetric),
		now:               time.Now,
	}
}

// WriteSoon renders the numeric fields of a measurement as one
// line-protocol record and queues it for the next flush. The latest
// cache is updated for every accepted field. Non-numeric values are
// dropped; an empty resulting field set produces no line.
func (w *Writer) WriteSoon(measurement string, fields map[string]any) {
	tsNs := w.now().UnixNano()
	tsMs := tsNs / int64(time.Millisecond)

	var pairs []string
	var cached []models.TimeSeriesMetric
	for _, key := range models.SortedKeys(fields) {
		value, ok := numeric(fields[key])
		if !ok {
			continue
		}
		lineKey := strings.ReplaceAll(key, " ", `\ `)
		pairs = append(pairs, lineKey+"="+strconv.FormatFloat(value, 'g', -1, 64))
		cached = append(cached, models.TimeSeriesMetric{
			Metric:    measurement + models.FlatSeparator + key,
			Value:     value,
			Timestamp: tsMs,
		})
	}
	if len(pairs) == 0 {
		return
	}

	line := fmt.Sprintf("%s %s %d", measurement, strings.Join(pairs, ","), tsNs)

	w.mu.Lock()
	for _, m := range cached {
		w.cache[m.Metric] = m
	}
	w.pending = append(w.pending, line)
	if len(w.pending) >= w.maxPending {
		w.pending = decimate(w.pending)
		metrics.IngestDownsamples.Inc()
		w.log.Warn("pending buffer overflow, downsampling", "kept", len(w.pending))
	}
	depth := len(w.pending)
	w.mu.Unlock()

	metrics.IngestLinesQueued.Inc()
	metrics.IngestPendingLines.Set(float64(depth))
}

// Latest returns the most recent accepted value for each requested
// field that has one. The cache reflects accepted values, not
// necessarily persisted ones.
func (w *Writer) Latest(fields []string) []models.TimeSeriesMetric {
	w.mu.Lock()
	defer w.mu.Unlock()

	result := make([]models.TimeSeriesMetric, 0, len(fields))
	for _, f := range fields {
		if m, ok := w.cache[f]; ok {
			result = append(result, m)
		}
	}
	return result
}

// Run flushes pending lines every write interval until ctx is done.
// Transient backend errors back off for the reconnect interval and keep
// the buffer. Lines still pending on shutdown are discarded.
func (w *Writer) Run(ctx context.Context) {
	timer := time.NewTimer(w.writeInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		interval := w.writeInterval
		if err := w.Flush(ctx); err != nil {
			interval = w.reconnectInterval
		}
		timer.Reset(interval)
	}
}

// Flush performs one tick: a liveness ping when nothing is pending, or
// one write call for a snapshot of the buffer. Lines appended while the
// write is in flight are preserved. A returned error is always
// transient; data errors are absorbed.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	snapshot := w.pending
	count := len(snapshot)
	w.mu.Unlock()

	if count == 0 {
		if err := w.backend.Ping(ctx); err != nil {
			w.warnOnce("backend ping failed", err)
			return err
		}
		w.clearErr()
		return nil
	}

	err := w.backend.Write(ctx, strings.Join(snapshot[:count], "\n")+"\n")
	switch {
	case err == nil:
		w.log.Debug("flushed lines", "count", count)
		metrics.IngestLinesWritten.Add(float64(count))
	case errors.Is(err, errs.ErrInvalidData):
		// The bad lines are gone; retrying will not help.
		w.warnOnce("backend rejected lines", err)
	default:
		w.warnOnce("backend write failed", err)
		metrics.IngestFlushErrors.Inc()
		return err
	}

	w.mu.Lock()
	// A decimation during the flush may have shrunk the buffer below
	// the snapshot length.
	n := count
	if n > len(w.pending) {
		n = len(w.pending)
	}
	w.pending = w.pending[n:]
	depth := len(w.pending)
	w.mu.Unlock()

	metrics.IngestPendingLines.Set(float64(depth))
	w.clearErr()
	return nil
}

// warnOnce logs the first occurrence of a new error text; identical
// consecutive errors stay silent until the text changes.
func (w *Writer) warnOnce(msg string, err error) {
	w.mu.Lock()
	dup := err.Error() == w.lastErr
	w.lastErr = err.Error()
	w.mu.Unlock()

	if !dup {
		w.log.Warn(msg, "error", err)
	}
}

func (w *Writer) clearErr() {
	w.mu.Lock()
	w.lastErr = ""
	w.mu.Unlock()
}

// decimate keeps every other record, preserving order. Resolution
// decreases with age under repeated overflow, but the span survives.
func decimate(lines []string) []string {
	kept := make([]string, 0, (len(lines)+1)/2)
	for i := 0; i < len(lines); i += 2 {
		kept = append(kept, lines[i])
	}
	return kept
}

// numeric coerces JSON scalar types to float64. Booleans participate
// in flattening but are never written to the backend.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
