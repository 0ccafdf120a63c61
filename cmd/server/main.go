package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/brewkit/brewkit-history/internal/api/middleware"
	"github.com/brewkit/brewkit-history/internal/api/rest"
	"github.com/brewkit/brewkit-history/internal/api/stream"
	"github.com/brewkit/brewkit-history/internal/config"
	"github.com/brewkit/brewkit-history/internal/datastore"
	"github.com/brewkit/brewkit-history/internal/eventbus"
	"github.com/brewkit/brewkit-history/internal/ingest"
	"github.com/brewkit/brewkit-history/internal/pkg/logger"
	"github.com/brewkit/brewkit-history/internal/timeutil"
	"github.com/brewkit/brewkit-history/internal/victoria"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Debug)
	log.Info("starting", "name", cfg.Name, "port", cfg.Port, "debug", cfg.Debug)

	defaultDuration, err := timeutil.ParseDuration(cfg.QueryDurationDefault)
	if err != nil {
		log.Warn("invalid default query duration, using 1d",
			"value", cfg.QueryDurationDefault, "error", err)
		defaultDuration = 0
	}
	resolver := timeutil.NewResolver(defaultDuration, cfg.QueryDesiredPoints, cfg.MinimumStepDuration())

	// Time-series backend and batched writer.
	vic := victoria.New(victoria.Options{
		URL:      cfg.VictoriaURL(),
		Resolver: resolver,
		Logger:   log.With("component", "victoria"),
	})
	writer := ingest.NewWriter(vic, ingest.Options{
		WriteInterval:     cfg.WriteIntervalDuration(),
		ReconnectInterval: cfg.ReconnectIntervalDuration(),
		MaxPendingLines:   cfg.MaxPendingLines,
		Logger:            log.With("component", "ingest"),
	})
	go writer.Run(ctx)

	// Eventbus connection and history relay.
	bus, err := eventbus.Connect(eventbus.Options{
		URL:      cfg.MqttURL(),
		ClientID: cfg.Name,
		Logger:   log.With("component", "eventbus"),
	})
	if err != nil {
		log.Error("eventbus setup failed", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	relay := eventbus.NewRelay(writer, log.With("component", "relay"))
	go func() {
		// The broker may still be coming up; keep trying until the
		// subscription lands or the service stops.
		for {
			err := relay.Start(bus, cfg.HistoryTopic)
			if err == nil {
				return
			}
			log.Warn("history subscription failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.ReconnectIntervalDuration()):
			}
		}
	}()

	// Redis-backed datastore with change fan-out over the bus.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
	defer rdb.Close()
	store := datastore.New(datastore.Options{
		Redis:     rdb,
		Publisher: bus,
		Topic:     cfg.DatastoreTopic,
		Logger:    log.With("component", "datastore"),
	})

	// Request surface.
	streamHandler := stream.NewHandler(vic, writer, stream.Options{
		RangesInterval:  cfg.RangesIntervalDuration(),
		MetricsInterval: cfg.MetricsIntervalDuration(),
		Logger:          log.With("component", "stream"),
	})
	restHandler := rest.NewHandler(vic, writer, store, log.With("component", "rest"), cfg.Debug)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","service":%q}`, cfg.Name)
	}).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/" + cfg.Name).Subrouter()
	rest.SetupRoutes(api, restHandler, streamHandler.ServeWS)

	router.Use(middleware.RequestID)
	router.Use(middleware.Log(log))
	router.Use(middleware.Recover(log))

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     handler,
		ReadTimeout: cfg.RequestTimeout(),
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("listening", "addr", srv.Addr, "prefix", "/"+cfg.Name)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", "error", err)
	}
	log.Info("stopped")
}
