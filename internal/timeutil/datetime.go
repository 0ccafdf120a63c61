package timeutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// msThreshold disambiguates epoch seconds from epoch milliseconds.
// 1e11 falls in 1973 when interpreted as milliseconds, and in 5138 when
// interpreted as seconds.
const msThreshold = 1e11

// FromEpoch converts a numeric timestamp to a UTC time, guessing whether
// the value is in seconds or milliseconds.
func FromEpoch(value float64) time.Time {
	if value > msThreshold {
		return time.UnixMilli(int64(value)).UTC()
	}
	return time.UnixMilli(int64(value * 1000)).UTC()
}

// ParseTime accepts ISO-8601 strings, epoch seconds, and epoch
// milliseconds. Empty input yields the zero time.
func ParseTime(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, nil
	}
	if num, err := strconv.ParseFloat(s, 64); err == nil {
		return FromEpoch(num), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
	}
	return t.UTC(), nil
}

// FormatTime renders a time with the requested precision.
// Valid precisions are "ns", "ms", "s", and "ISO8601".
// The zero time renders as an empty string.
func FormatTime(t time.Time, precision string) (string, error) {
	if t.IsZero() {
		return "", nil
	}
	switch precision {
	case "ns":
		return strconv.FormatInt(t.UnixNano(), 10), nil
	case "ms":
		return strconv.FormatInt(t.UnixMilli(), 10), nil
	case "s":
		return strconv.FormatInt(t.Unix(), 10), nil
	case "ISO8601":
		return t.UTC().Format("2006-01-02T15:04:05.000Z"), nil
	default:
		return "", fmt.Errorf("invalid precision: %s", precision)
	}
}

// FlexTime is a time.Time that unmarshals from either an ISO-8601 string
// or a numeric epoch value (seconds or milliseconds).
type FlexTime struct {
	time.Time
}

// At wraps a concrete time.
func At(t time.Time) FlexTime {
	return FlexTime{Time: t}
}

func (t FlexTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format("2006-01-02T15:04:05.000Z"))
}

func (t *FlexTime) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == `""` {
		t.Time = time.Time{}
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := ParseTime(s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	num, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s", raw)
	}
	t.Time = FromEpoch(num)
	return nil
}
