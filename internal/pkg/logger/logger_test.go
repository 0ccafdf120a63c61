package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func countLines(buf *bytes.Buffer) int {
	return len(strings.Split(strings.TrimSpace(buf.String()), "\n"))
}

func TestDedupedSuppressesRepeats(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Deduped(slog.NewTextHandler(&buf, nil)))

	for i := 0; i < 5; i++ {
		log.Warn("backend write failed", "error", "connection refused")
	}
	assert.Equal(t, 1, countLines(&buf))
}

func TestDedupedPassesAlternating(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Deduped(slog.NewTextHandler(&buf, nil)))

	log.Warn("backend write failed")
	log.Info("flushed lines")
	log.Warn("backend write failed")
	assert.Equal(t, 3, countLines(&buf))
}

func TestDedupedDistinguishesAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Deduped(slog.NewTextHandler(&buf, nil)))

	log.Warn("backend write failed", "error", "refused")
	log.Warn("backend write failed", "error", "timeout")
	assert.Equal(t, 2, countLines(&buf))
}

func TestDedupedPerScope(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Deduped(slog.NewTextHandler(&buf, nil)))
	ingest := log.With("component", "ingest")
	relay := log.With("component", "relay")

	// Interleaved repeats from two components stay suppressed within
	// each scope.
	ingest.Warn("backend write failed")
	relay.Warn("invalid history event")
	ingest.Warn("backend write failed")
	relay.Warn("invalid history event")
	ingest.Warn("backend write failed")

	assert.Equal(t, 2, countLines(&buf))
}
