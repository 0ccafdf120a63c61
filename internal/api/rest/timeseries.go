package rest

import (
	"io"
	"net/http"

	"github.com/brewkit/brewkit-history/internal/models"
)

// countingWriter tracks whether any response bytes went out, which
// decides whether an export error can still change the status code.
type countingWriter struct {
	w       io.Writer
	written int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.written += n
	return n, err
}

// TimeSeriesPing handles GET /timeseries/ping.
func (h *Handler) TimeSeriesPing(w http.ResponseWriter, r *http.Request) {
	if err := h.ts.Ping(r.Context()); err != nil {
		h.respondError(w, r, err)
		return
	}
	noCache(w)
	h.respondJSON(w, http.StatusOK, map[string]string{"ping": "pong"})
}

// TimeSeriesFields handles POST /timeseries/fields.
func (h *Handler) TimeSeriesFields(w http.ResponseWriter, r *http.Request) {
	var query models.TimeSeriesFieldsQuery
	if !h.decodeJSON(w, r, &query) {
		return
	}
	fields, err := h.ts.Fields(r.Context(), query)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, fields)
}

// TimeSeriesRanges handles POST /timeseries/ranges. The synchronous
// endpoint returns a single sampled window; live updates are served by
// the stream.
func (h *Handler) TimeSeriesRanges(w http.ResponseWriter, r *http.Request) {
	var query models.TimeSeriesRangesQuery
	if !h.decodeJSON(w, r, &query) {
		return
	}
	ranges, err := h.ts.Ranges(r.Context(), query)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, ranges)
}

// TimeSeriesMetrics handles POST /timeseries/metrics. It reads the
// latest-value cache and never touches the backend.
func (h *Handler) TimeSeriesMetrics(w http.ResponseWriter, r *http.Request) {
	var query models.TimeSeriesMetricsQuery
	if !h.decodeJSON(w, r, &query) {
		return
	}
	h.respondJSON(w, http.StatusOK, h.metrics.Latest(query.Fields))
}

// TimeSeriesCsv handles POST /timeseries/csv. Rows are streamed to the
// client as they are merged.
func (h *Handler) TimeSeriesCsv(w http.ResponseWriter, r *http.Request) {
	var query models.TimeSeriesCsvQuery
	if !h.decodeJSON(w, r, &query) {
		return
	}
	if err := query.Validate(); err != nil {
		h.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	cw := &countingWriter{w: w}
	if err := h.ts.Csv(r.Context(), query, cw); err != nil {
		// Resolution and field errors surface before the header row;
		// the response can still carry a status then. Mid-stream
		// failures can only be logged.
		if cw.written == 0 {
			h.respondError(w, r, err)
			return
		}
		h.log.Error("csv export failed", "error", err)
	}
}
