package eventbus

import (
	"encoding/json"
	"log/slog"

	"github.com/brewkit/brewkit-history/internal/models"
	"github.com/brewkit/brewkit-history/internal/pkg/metrics"
)

// HistoryWriter is the slice of the ingest writer the relay consumes.
type HistoryWriter interface {
	WriteSoon(measurement string, fields map[string]any)
}

// Subscriber is the slice of the eventbus client the relay consumes.
type Subscriber interface {
	Subscribe(filter string, handler func(topic string, payload []byte)) error
}

// Relay forwards history events from the eventbus to the ingest
// writer. Invalid events are logged and dropped; the relay never
// backpressures the bus.
type Relay struct {
	writer HistoryWriter
	log    *slog.Logger
}

// NewRelay creates a relay feeding the given writer.
func NewRelay(writer HistoryWriter, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{writer: writer, log: log}
}

// Start subscribes to `<topic>/#`.
func (r *Relay) Start(bus Subscriber, topic string) error {
	return bus.Subscribe(topic+"/#", r.onMessage)
}

func (r *Relay) onMessage(topic string, payload []byte) {
	var evt models.HistoryEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		metrics.RelayEvents.WithLabelValues("invalid").Inc()
		r.log.Error("invalid history event", "topic", topic, "error", err)
		return
	}
	if err := evt.Validate(); err != nil {
		metrics.RelayEvents.WithLabelValues("invalid").Inc()
		r.log.Error("invalid history event", "topic", topic, "error", err)
		return
	}

	// WriteSoon only appends under a lock, so the bus is never blocked.
	r.writer.WriteSoon(evt.Key, evt.FlatData())
	metrics.RelayEvents.WithLabelValues("ok").Inc()
	r.log.Debug("relayed event", "key", evt.Key)
}
