package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewkit/brewkit-history/internal/errs"
	"github.com/brewkit/brewkit-history/internal/models"
)

type fakeBackend struct {
	mu      sync.Mutex
	writes  []string
	pingErr error
	written error
}

func (f *fakeBackend) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeBackend) Write(ctx context.Context, lines string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.written != nil {
		return f.written
	}
	f.writes = append(f.writes, lines)
	return nil
}

func (f *fakeBackend) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []string
	for _, w := range f.writes {
		for _, line := range strings.Split(strings.TrimSuffix(w, "\n"), "\n") {
			all = append(all, line)
		}
	}
	return all
}

func testWriter(backend Backend, opts Options) *Writer {
	w := NewWriter(backend, opts)
	w.now = func() time.Time {
		return time.Date(2021, 7, 15, 12, 0, 0, 0, time.UTC)
	}
	return w
}

func TestWriteSoonRendersLine(t *testing.T) {
	backend := &fakeBackend{}
	w := testWriter(backend, Options{})

	w.WriteSoon("spark", map[string]any{
		"sensor/value":   21.5,
		"actuator/state": 1,
		"display name":   3.5,
		"text":           "not-a-number-at-all",
		"active":         true,
	})
	require.NoError(t, w.Flush(context.Background()))

	lines := backend.lines()
	require.Len(t, lines, 1)
	// Sorted keys, escaped spaces, and non-numeric values dropped.
	assert.Equal(t,
		`spark actuator/state=1,display\ name=3.5,sensor/value=21.5 1626350400000000000`,
		lines[0])
}

func TestWriteSoonNumericStrings(t *testing.T) {
	backend := &fakeBackend{}
	w := testWriter(backend, Options{})

	w.WriteSoon("spark", map[string]any{"value": "21.5"})
	require.NoError(t, w.Flush(context.Background()))

	lines := backend.lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "value=21.5")
}

func TestWriteSoonEmptyFieldSet(t *testing.T) {
	backend := &fakeBackend{}
	w := testWriter(backend, Options{})

	w.WriteSoon("spark", map[string]any{"text": "nope", "flag": true})
	require.NoError(t, w.Flush(context.Background()))
	assert.Empty(t, backend.lines())
}

func TestLatestCache(t *testing.T) {
	backend := &fakeBackend{}
	w := testWriter(backend, Options{})

	w.WriteSoon("spark", map[string]any{"sensor/value": 21.5})
	w.WriteSoon("spark", map[string]any{"sensor/value": 22.0})
	w.WriteSoon("tilt", map[string]any{"sg": 1.051})

	latest := w.Latest([]string{"spark/sensor/value", "tilt/sg", "unknown/field"})
	require.Len(t, latest, 2)
	assert.Equal(t, models.TimeSeriesMetric{
		Metric:    "spark/sensor/value",
		Value:     22.0,
		Timestamp: 1626350400000,
	}, latest[0])
	assert.Equal(t, "tilt/sg", latest[1].Metric)
}

func TestLatestSurvivesBackendOutage(t *testing.T) {
	backend := &fakeBackend{written: fmt.Errorf("%w: down", errs.ErrUnavailable)}
	w := testWriter(backend, Options{})

	w.WriteSoon("spark", map[string]any{"sensor/value": 21.5})
	assert.Error(t, w.Flush(context.Background()))

	latest := w.Latest([]string{"spark/sensor/value"})
	require.Len(t, latest, 1)
	assert.Equal(t, 21.5, latest[0].Value)
}

func TestFlushEmptyPings(t *testing.T) {
	backend := &fakeBackend{}
	w := testWriter(backend, Options{})

	require.NoError(t, w.Flush(context.Background()))
	assert.Empty(t, backend.writes)

	backend.pingErr = errors.New("no backend")
	assert.Error(t, w.Flush(context.Background()))
}

func TestFlushRetainsOnTransientError(t *testing.T) {
	backend := &fakeBackend{written: fmt.Errorf("%w: down", errs.ErrUnavailable)}
	w := testWriter(backend, Options{})

	w.WriteSoon("spark", map[string]any{"value": 1})
	assert.Error(t, w.Flush(context.Background()))

	// Recovery flushes the retained line.
	backend.mu.Lock()
	backend.written = nil
	backend.mu.Unlock()
	require.NoError(t, w.Flush(context.Background()))
	assert.Len(t, backend.lines(), 1)
}

func TestFlushEvictsOnDataError(t *testing.T) {
	backend := &fakeBackend{written: fmt.Errorf("%w: rejected", errs.ErrInvalidData)}
	w := testWriter(backend, Options{})

	w.WriteSoon("spark", map[string]any{"value": 1})
	// Data errors are absorbed and the lines evicted.
	require.NoError(t, w.Flush(context.Background()))

	backend.mu.Lock()
	backend.written = nil
	backend.mu.Unlock()
	require.NoError(t, w.Flush(context.Background()))
	assert.Empty(t, backend.lines())
}

func TestOverflowDecimates(t *testing.T) {
	backend := &fakeBackend{written: fmt.Errorf("%w: down", errs.ErrUnavailable)}
	w := testWriter(backend, Options{MaxPendingLines: 5})

	for i := 0; i < 5; i++ {
		w.WriteSoon("spark", map[string]any{"value": i})
	}

	w.mu.Lock()
	pending := append([]string(nil), w.pending...)
	w.mu.Unlock()

	// Odd-length buffers keep both the first and the last record.
	require.Len(t, pending, 3)
	assert.Contains(t, pending[0], "value=0")
	assert.Contains(t, pending[1], "value=2")
	assert.Contains(t, pending[2], "value=4")
}
