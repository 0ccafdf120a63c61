// Package models defines the wire types shared by the eventbus relay,
// the time-series adapters, and the request surface.
package models

import (
	"fmt"
	"sort"
	"strconv"
)

// FlatSeparator joins nested keys into flattened field paths.
const FlatSeparator = "/"

// HistoryEvent is one measurement event received on the history topic.
// Key acts as the measurement name; Data holds the (possibly nested)
// field values.
type HistoryEvent struct {
	Key  string         `json:"key"`
	Data map[string]any `json:"data"`
}

// Validate checks the parts a relayed event must carry.
func (e HistoryEvent) Validate() error {
	if e.Key == "" {
		return fmt.Errorf("history event is missing a key")
	}
	if e.Data == nil {
		return fmt.Errorf("history event %q is missing data", e.Key)
	}
	return nil
}

// FlatData returns the event data flattened to depth 1.
func (e HistoryEvent) FlatData() map[string]any {
	return Flatten(e.Data)
}

// Flatten converts a nested mapping to a depth-1 mapping.
// Nested keys become /-separated paths, list indices become numeric
// path segments, and empty containers vanish. Flatten is idempotent.
func Flatten(d map[string]any) map[string]any {
	out := make(map[string]any, len(d))
	flattenInto(out, d, "")
	return out
}

func flattenInto(out map[string]any, d map[string]any, parent string) {
	for k, v := range d {
		key := k
		if parent != "" {
			key = parent + FlatSeparator + k
		}
		flattenValue(out, key, v)
	}
}

func flattenValue(out map[string]any, key string, v any) {
	switch nested := v.(type) {
	case map[string]any:
		flattenInto(out, nested, key)
	case []any:
		for i, item := range nested {
			flattenValue(out, key+FlatSeparator+strconv.Itoa(i), item)
		}
	default:
		out[key] = v
	}
}

// SortedKeys returns the keys of a flattened mapping in ascending order.
// Line-protocol rendering uses it to keep field order deterministic.
func SortedKeys(d map[string]any) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
