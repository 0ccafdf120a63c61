package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brewkit/brewkit-history/internal/models"
	"github.com/brewkit/brewkit-history/internal/pkg/metrics"
	"github.com/brewkit/brewkit-history/internal/timeutil"
)

// subscription is one running stream task. It is owned exclusively by
// its session and destroyed on stop, replace, or disconnect.
type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// session owns one client channel. The receive loop is the only reader
// of the subs map; the write mutex makes frames atomic across the
// subscription tasks sharing the channel.
type session struct {
	h    *Handler
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]*subscription
}

func newSession(h *Handler, conn *websocket.Conn) *session {
	return &session{
		h:    h,
		conn: conn,
		log:  h.log.With("remote", conn.RemoteAddr().String()),
		subs: make(map[string]*subscription),
	}
}

// run parses incoming command frames until the channel closes, then
// tears the session down. Malformed frames never close the session.
func (s *session) run(ctx context.Context) {
	defer s.teardown()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("stream channel closed", "error", err)
			}
			return
		}
		s.handleFrame(ctx, raw)
	}
}

func (s *session) handleFrame(ctx context.Context, raw []byte) {
	var cmd models.StreamCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		s.sendError(err, raw)
		return
	}
	if err := cmd.Validate(); err != nil {
		s.sendError(err, raw)
		return
	}

	// A new command always replaces a prior subscription with the same
	// id, regardless of kind.
	s.stop(cmd.ID)

	switch cmd.Command {
	case models.StreamStop:
		// Already stopped above; never starts a new task.

	case models.StreamRanges:
		var query models.TimeSeriesRangesQuery
		if err := json.Unmarshal(cmd.Query, &query); err != nil {
			s.sendError(err, raw)
			return
		}
		s.spawn(ctx, cmd.ID, func(taskCtx context.Context) {
			s.streamRanges(taskCtx, cmd.ID, query)
		})

	case models.StreamMetrics:
		var query models.TimeSeriesMetricsQuery
		if err := json.Unmarshal(cmd.Query, &query); err != nil {
			s.sendError(err, raw)
			return
		}
		s.spawn(ctx, cmd.ID, func(taskCtx context.Context) {
			s.streamMetrics(taskCtx, cmd.ID, query)
		})
	}
}

// spawn starts a subscription task under the session's context.
func (s *session) spawn(ctx context.Context, id string, fn func(context.Context)) {
	taskCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.subs[id] = sub
	s.mu.Unlock()

	metrics.StreamSubscriptions.Inc()
	go func() {
		defer metrics.StreamSubscriptions.Dec()
		defer close(sub.done)
		fn(taskCtx)
	}()
}

// stop cancels a subscription and waits until its task has finished,
// guaranteeing that no further frame with this id is emitted before a
// replacement starts.
func (s *session) stop(id string) {
	s.mu.Lock()
	sub := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()

	if sub != nil {
		sub.cancel()
		<-sub.done
	}
}

// teardown cancels every subscription, awaits their completion, and
// releases the channel.
func (s *session) teardown() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]*subscription)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
	for _, sub := range subs {
		<-sub.done
	}
	_ = s.conn.Close()
}

// streamRanges emits an initial result frame, then re-queries from the
// last emission on every interval while the query is open-ended.
// Query errors are logged and retried; they never cancel the task.
func (s *session) streamRanges(ctx context.Context, id string, query models.TimeSeriesRangesQuery) {
	openEnded := query.OpenEnded()
	initial := true

	for {
		result, err := s.h.ranges.Ranges(ctx, query)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.Error("ranges stream query", "id", id, "error", err)
		} else {
			if err := s.send(models.StreamFrame{
				ID:   id,
				Data: models.StreamRangeData{Initial: initial, Ranges: result},
			}); err != nil {
				return
			}
			// Follow-up queries are bounded windows starting at the
			// previous emission.
			query.Start = timeutil.At(s.h.now())
			query.Duration = ""
			initial = false
		}

		if !openEnded {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.h.rangesInterval):
		}
	}
}

// streamMetrics periodically snapshots the latest cache for the
// requested fields. It never terminates except on cancellation.
func (s *session) streamMetrics(ctx context.Context, id string, query models.TimeSeriesMetricsQuery) {
	for {
		snapshot := s.h.metrics.Latest(query.Fields)
		if ctx.Err() != nil {
			return
		}
		if err := s.send(models.StreamFrame{
			ID:   id,
			Data: models.StreamMetricData{Metrics: snapshot},
		}); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.h.metricsInterval):
		}
	}
}

// send writes one frame atomically on the shared channel.
func (s *session) send(frame any) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// sendError reports a frame that could not be handled. Existing
// subscriptions are untouched.
func (s *session) sendError(cause error, raw []byte) {
	s.log.Error("stream command error", "error", cause)
	if err := s.send(models.StreamError{
		Error:   cause.Error(),
		Message: string(raw),
	}); err != nil {
		s.log.Debug("stream error frame not delivered", "error", err)
	}
}
