// Package logger configures structured logging for the service.
// Long backend outages produce identical records every retry; the
// dedupe handler keeps those logs readable by suppressing consecutive
// duplicates.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// New returns the service root logger. Debug enables debug-level
// records; JSON output is selected with LOG_JSON=1.
func New(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if os.Getenv("LOG_JSON") == "1" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(Deduped(handler))
}

// Deduped wraps a handler so that consecutive records with an identical
// level, message, and attribute set are dropped. Alternating records
// are never blocked. Every derived logger carries its own suppression
// state, so interleaved records from different components do not reset
// each other.
func Deduped(inner slog.Handler) slog.Handler {
	return &dedupeHandler{inner: inner, state: &dedupeState{}}
}

type dedupeState struct {
	mu   sync.Mutex
	last string
}

type dedupeHandler struct {
	inner slog.Handler
	state *dedupeState
}

func (h *dedupeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *dedupeHandler) Handle(ctx context.Context, r slog.Record) error {
	key := fmt.Sprintf("%d|%s", r.Level, r.Message)
	r.Attrs(func(a slog.Attr) bool {
		key += "|" + a.String()
		return true
	})

	h.state.mu.Lock()
	dup := key == h.state.last
	h.state.last = key
	h.state.mu.Unlock()

	if dup {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *dedupeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &dedupeHandler{inner: h.inner.WithAttrs(attrs), state: &dedupeState{}}
}

func (h *dedupeHandler) WithGroup(name string) slog.Handler {
	return &dedupeHandler{inner: h.inner.WithGroup(name), state: &dedupeState{}}
}
