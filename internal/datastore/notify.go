package datastore

import (
	"encoding/json"
	"sort"

	"github.com/brewkit/brewkit-history/internal/models"
)

// changedMessage and deletedMessage are the notification envelopes
// published on `<topic>/<top namespace>`.
type changedMessage struct {
	Changed []models.DatastoreValue `json:"changed"`
}

type deletedMessage struct {
	Deleted []string `json:"deleted"`
}

// publishChanged groups mutated documents by the top-level namespace of
// their composite key and publishes one message per group. Failures are
// logged and never fail the mutation.
func (s *Store) publishChanged(values []models.DatastoreValue) {
	groups := make(map[string][]models.DatastoreValue)
	for _, v := range values {
		top := models.TopNamespace(v.Key())
		groups[top] = append(groups[top], v)
	}
	for _, top := range sortedGroupKeys(groups) {
		payload, err := json.Marshal(changedMessage{Changed: groups[top]})
		if err != nil {
			s.log.Error("marshalling change notification", "error", err)
			continue
		}
		if err := s.pub.Publish(s.topic+"/"+top, payload); err != nil {
			s.log.Warn("publishing change notification", "topic", s.topic+"/"+top, "error", err)
		}
	}
}

// publishDeleted publishes the removed composite keys, grouped the same
// way as changes.
func (s *Store) publishDeleted(keys []string) {
	groups := make(map[string][]string)
	for _, key := range keys {
		top := models.TopNamespace(key)
		groups[top] = append(groups[top], key)
	}
	for _, top := range sortedGroupKeys(groups) {
		sort.Strings(groups[top])
		payload, err := json.Marshal(deletedMessage{Deleted: groups[top]})
		if err != nil {
			s.log.Error("marshalling delete notification", "error", err)
			continue
		}
		if err := s.pub.Publish(s.topic+"/"+top, payload); err != nil {
			s.log.Warn("publishing delete notification", "topic", s.topic+"/"+top, "error", err)
		}
	}
}

func sortedGroupKeys[V any](groups map[string]V) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
