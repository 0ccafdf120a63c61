package models

import (
	"encoding/json"
	"fmt"

	"github.com/brewkit/brewkit-history/internal/timeutil"
)

// TimeSeriesFieldsQuery lists the known fields written during the
// given lookback duration.
type TimeSeriesFieldsQuery struct {
	Duration string `json:"duration"`
}

// TimeSeriesMetricsQuery requests the latest known value per field.
type TimeSeriesMetricsQuery struct {
	Fields []string `json:"fields"`
}

// TimeSeriesMetric is the most recent accepted value for one field.
// Timestamp is in epoch milliseconds.
type TimeSeriesMetric struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}

// TimeSeriesRangesQuery requests sampled values over a window.
// At most two of Start, Duration, and End may be set.
type TimeSeriesRangesQuery struct {
	Fields   []string          `json:"fields"`
	Start    timeutil.FlexTime `json:"start,omitempty"`
	End      timeutil.FlexTime `json:"end,omitempty"`
	Duration string            `json:"duration,omitempty"`
}

// OpenEnded reports whether the query has no fixed right bound, and so
// should yield a live (repeating) response.
func (q TimeSeriesRangesQuery) OpenEnded() bool {
	return timeutil.IsOpenEnded(q.Start.Time, q.End.Time, q.Duration)
}

// TimeSeriesRangeValue is one [unix seconds, stringified number] sample
// as returned by the range query API.
type TimeSeriesRangeValue struct {
	Timestamp float64
	Value     string
}

func (v TimeSeriesRangeValue) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{v.Timestamp, v.Value})
}

func (v *TimeSeriesRangeValue) UnmarshalJSON(b []byte) error {
	var pair [2]any
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	ts, ok := pair[0].(float64)
	if !ok {
		return fmt.Errorf("invalid range value timestamp: %v", pair[0])
	}
	val, ok := pair[1].(string)
	if !ok {
		return fmt.Errorf("invalid range value: %v", pair[1])
	}
	v.Timestamp = ts
	v.Value = val
	return nil
}

// TimeSeriesRangeMetric carries the field name of a range result.
type TimeSeriesRangeMetric struct {
	Name string `json:"__name__"`
}

// TimeSeriesRange is the sampled series for a single field.
type TimeSeriesRange struct {
	Metric TimeSeriesRangeMetric  `json:"metric"`
	Values []TimeSeriesRangeValue `json:"values"`
}

// CsvPrecisions are the accepted timestamp renderings for CSV exports.
var CsvPrecisions = []string{"ns", "ms", "s", "ISO8601"}

// TimeSeriesCsvQuery is a ranges query with a timestamp precision.
type TimeSeriesCsvQuery struct {
	TimeSeriesRangesQuery
	Precision string `json:"precision"`
}

// Validate checks the precision argument.
func (q TimeSeriesCsvQuery) Validate() error {
	for _, p := range CsvPrecisions {
		if q.Precision == p {
			return nil
		}
	}
	return fmt.Errorf("invalid precision: %q", q.Precision)
}
