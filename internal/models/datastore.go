package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// keyPartPattern constrains namespace and id on all operations.
	keyPartPattern = regexp.MustCompile(`^[A-Za-z0-9_\-.:~ ()]*$`)
	// writeKeyPattern additionally constrains the composite key on
	// writes. The colon is allowed only as the namespace separator.
	writeKeyPattern = regexp.MustCompile(`^[\w\-:]+$`)
)

// Keycat joins a namespace and id into the composite storage key.
// An empty namespace yields the bare id.
func Keycat(namespace, id string) string {
	if namespace == "" {
		return id
	}
	return namespace + ":" + id
}

// TopNamespace returns the first :-separated segment of a composite
// key. Change notifications are grouped by it.
func TopNamespace(key string) string {
	return strings.SplitN(key, ":", 2)[0]
}

// DatastoreValue is one stored document. Namespace and ID form the
// composite key; all other fields are free-form and preserved as-is.
type DatastoreValue struct {
	Namespace string
	ID        string
	Extra     map[string]any
}

// Key returns the composite storage key of the document.
func (v DatastoreValue) Key() string {
	return Keycat(v.Namespace, v.ID)
}

// Validate checks the key-part character set.
func (v DatastoreValue) Validate() error {
	if !keyPartPattern.MatchString(v.Namespace) {
		return fmt.Errorf("invalid namespace: %q", v.Namespace)
	}
	if !keyPartPattern.MatchString(v.ID) {
		return fmt.Errorf("invalid id: %q", v.ID)
	}
	return nil
}

// ValidateWrite additionally checks the composite key constraints that
// apply to mutations.
func (v DatastoreValue) ValidateWrite() error {
	if err := v.Validate(); err != nil {
		return err
	}
	if strings.Contains(v.Namespace, ":") || strings.Contains(v.ID, ":") {
		return fmt.Errorf("invalid key %q: colon is reserved as the namespace separator", v.Key())
	}
	if !writeKeyPattern.MatchString(v.Key()) {
		return fmt.Errorf("invalid key: %q", v.Key())
	}
	return nil
}

func (v DatastoreValue) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(v.Extra)+2)
	for k, val := range v.Extra {
		doc[k] = val
	}
	// The stored namespace and id always agree with the composite key.
	doc["namespace"] = v.Namespace
	doc["id"] = v.ID
	return json.Marshal(doc)
}

func (v *DatastoreValue) UnmarshalJSON(b []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	ns, _ := doc["namespace"].(string)
	id, ok := doc["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("datastore value is missing an id")
	}
	delete(doc, "namespace")
	delete(doc, "id")
	v.Namespace = ns
	v.ID = id
	v.Extra = doc
	return nil
}

// DatastoreSingleQuery addresses one document.
type DatastoreSingleQuery struct {
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
}

// DatastoreMultiQuery addresses documents by explicit ids, by a glob
// filter, or both (the result is the union). The portable filter subset
// is "*" and "?"; richer patterns are backend-defined.
type DatastoreMultiQuery struct {
	Namespace string   `json:"namespace"`
	IDs       []string `json:"ids,omitempty"`
	Filter    *string  `json:"filter,omitempty"`
}

// DatastoreSingleValueBox wraps a write or single-get payload.
type DatastoreSingleValueBox struct {
	Value *DatastoreValue `json:"value"`
}

// DatastoreMultiValueBox wraps a multi-document payload.
type DatastoreMultiValueBox struct {
	Values []DatastoreValue `json:"values"`
}

// DatastoreDeleteResponse reports how many documents were removed.
type DatastoreDeleteResponse struct {
	Count int64 `json:"count"`
}
