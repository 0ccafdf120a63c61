// Package rest is the synchronous request surface: thin endpoints over
// the time-series adapter, the latest-metric cache, and the datastore.
package rest

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/brewkit/brewkit-history/internal/models"
)

// TimeSeries is the slice of the time-series adapter the handlers
// consume.
type TimeSeries interface {
	Ping(ctx context.Context) error
	Fields(ctx context.Context, query models.TimeSeriesFieldsQuery) ([]string, error)
	Ranges(ctx context.Context, query models.TimeSeriesRangesQuery) ([]models.TimeSeriesRange, error)
	Csv(ctx context.Context, query models.TimeSeriesCsvQuery, out io.Writer) error
}

// MetricSource serves latest-value snapshots.
type MetricSource interface {
	Latest(fields []string) []models.TimeSeriesMetric
}

// Datastore is the slice of the document store the handlers consume.
type Datastore interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, namespace, id string) (*models.DatastoreValue, error)
	MGet(ctx context.Context, query models.DatastoreMultiQuery) ([]models.DatastoreValue, error)
	Set(ctx context.Context, value models.DatastoreValue) (models.DatastoreValue, error)
	MSet(ctx context.Context, values []models.DatastoreValue) ([]models.DatastoreValue, error)
	Delete(ctx context.Context, namespace, id string) (int64, error)
	MDelete(ctx context.Context, query models.DatastoreMultiQuery) (int64, error)
}

// Handler manages the HTTP request handlers.
type Handler struct {
	ts      TimeSeries
	metrics MetricSource
	store   Datastore
	log     *slog.Logger
	debug   bool
}

// NewHandler creates a handler over the given collaborators.
func NewHandler(ts TimeSeries, metrics MetricSource, store Datastore, log *slog.Logger, debug bool) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		ts:      ts,
		metrics: metrics,
		store:   store,
		log:     log,
		debug:   debug,
	}
}

// SetupRoutes configures the API routes. The stream handler owns the
// websocket endpoint.
func SetupRoutes(router *mux.Router, h *Handler, stream http.HandlerFunc) {
	router.HandleFunc("/datastore/ping", h.DatastorePing).Methods("GET")
	router.HandleFunc("/datastore/get", h.DatastoreGet).Methods("POST")
	router.HandleFunc("/datastore/mget", h.DatastoreMGet).Methods("POST")
	router.HandleFunc("/datastore/set", h.DatastoreSet).Methods("POST")
	router.HandleFunc("/datastore/mset", h.DatastoreMSet).Methods("POST")
	router.HandleFunc("/datastore/delete", h.DatastoreDelete).Methods("POST")
	router.HandleFunc("/datastore/mdelete", h.DatastoreMDelete).Methods("POST")

	router.HandleFunc("/timeseries/ping", h.TimeSeriesPing).Methods("GET")
	router.HandleFunc("/timeseries/fields", h.TimeSeriesFields).Methods("POST")
	router.HandleFunc("/timeseries/ranges", h.TimeSeriesRanges).Methods("POST")
	router.HandleFunc("/timeseries/metrics", h.TimeSeriesMetrics).Methods("POST")
	router.HandleFunc("/timeseries/csv", h.TimeSeriesCsv).Methods("POST")
	router.HandleFunc("/timeseries/stream", stream).Methods("GET")
}
