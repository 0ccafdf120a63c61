package models

import (
	"encoding/json"
	"fmt"
)

// Stream command kinds.
const (
	StreamRanges  = "ranges"
	StreamMetrics = "metrics"
	StreamStop    = "stop"
)

// StreamCommand is one client frame on the streaming channel.
// A command with an existing ID replaces the prior subscription.
type StreamCommand struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Query   json.RawMessage `json:"query,omitempty"`
}

// Validate checks the frame shape; query contents are validated when
// the subscription is started.
func (c StreamCommand) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("stream command is missing an id")
	}
	switch c.Command {
	case StreamRanges, StreamMetrics, StreamStop:
		return nil
	default:
		return fmt.Errorf("unknown stream command: %q", c.Command)
	}
}

// StreamRangeData is the payload of frames emitted by a ranges
// subscription. Initial is true for the first frame only.
type StreamRangeData struct {
	Initial bool              `json:"initial"`
	Ranges  []TimeSeriesRange `json:"ranges"`
}

// StreamMetricData is the payload of frames emitted by a metrics
// subscription.
type StreamMetricData struct {
	Metrics []TimeSeriesMetric `json:"metrics"`
}

// StreamFrame is one server frame on the streaming channel.
type StreamFrame struct {
	ID   string `json:"id"`
	Data any    `json:"data"`
}

// StreamError reports a frame that could not be handled. Existing
// subscriptions are unaffected.
type StreamError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
