// Package datastore is a small key/value document store backed by
// Redis, with change notifications republished over the eventbus.
// The Redis write is the source of truth; the bus is best-effort.
package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/brewkit/brewkit-history/internal/errs"
	"github.com/brewkit/brewkit-history/internal/models"
	"github.com/brewkit/brewkit-history/internal/pkg/metrics"
)

// Publisher is the slice of the eventbus client the store consumes.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Options configures a Store.
type Options struct {
	// Redis is the connected client. Required.
	Redis *redis.Client
	// Publisher receives change notifications. Required.
	Publisher Publisher
	// Topic is the notification topic prefix; the top-level namespace
	// of the mutated keys is appended per message.
	Topic string
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Store exposes typed document operations over Redis.
type Store struct {
	rdb   *redis.Client
	pub   Publisher
	topic string
	log   *slog.Logger
}

// New creates a store.
func New(opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		rdb:   opts.Redis,
		pub:   opts.Publisher,
		topic: opts.Topic,
		log:   log,
	}
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	return nil
}

// Get returns one document, or nil when the key is missing.
func (s *Store) Get(ctx context.Context, namespace, id string) (*models.DatastoreValue, error) {
	metrics.DatastoreOps.WithLabelValues("get").Inc()

	raw, err := s.rdb.Get(ctx, models.Keycat(namespace, id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	var value models.DatastoreValue
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, err
	}
	return &value, nil
}

// MGet returns the documents selected by explicit ids, a glob filter,
// or both (the union). With neither, all documents in the namespace
// are returned.
func (s *Store) MGet(ctx context.Context, query models.DatastoreMultiQuery) ([]models.DatastoreValue, error) {
	metrics.DatastoreOps.WithLabelValues("mget").Inc()

	filter := query.Filter
	if query.IDs == nil && filter == nil {
		all := "*"
		filter = &all
	}
	keys, err := s.selectKeys(ctx, query.Namespace, query.IDs, filter)
	if err != nil {
		return nil, err
	}

	values := []models.DatastoreValue{}
	if len(keys) == 0 {
		return values, nil
	}
	raws, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	for _, raw := range raws {
		text, ok := raw.(string)
		if !ok {
			continue // expired or deleted between KEYS and MGET
		}
		var value models.DatastoreValue
		if err := json.Unmarshal([]byte(text), &value); err != nil {
			s.log.Warn("skipping malformed document", "error", err)
			continue
		}
		values = append(values, value)
	}
	return values, nil
}

// Set stores one document and notifies its namespace.
func (s *Store) Set(ctx context.Context, value models.DatastoreValue) (models.DatastoreValue, error) {
	metrics.DatastoreOps.WithLabelValues("set").Inc()

	if err := value.ValidateWrite(); err != nil {
		return value, fmt.Errorf("%w: %v", errs.ErrInvalidQuery, err)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return value, err
	}
	if err := s.rdb.Set(ctx, value.Key(), raw, 0).Err(); err != nil {
		return value, fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	s.publishChanged([]models.DatastoreValue{value})
	return value, nil
}

// MSet stores multiple documents and notifies their namespaces.
func (s *Store) MSet(ctx context.Context, values []models.DatastoreValue) ([]models.DatastoreValue, error) {
	metrics.DatastoreOps.WithLabelValues("mset").Inc()

	for _, v := range values {
		if err := v.ValidateWrite(); err != nil {
			return values, fmt.Errorf("%w: %v", errs.ErrInvalidQuery, err)
		}
	}
	if len(values) == 0 {
		return values, nil
	}
	pairs := make([]any, 0, 2*len(values))
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return values, err
		}
		pairs = append(pairs, v.Key(), raw)
	}
	if err := s.rdb.MSet(ctx, pairs...).Err(); err != nil {
		return values, fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	s.publishChanged(values)
	return values, nil
}

// Delete removes one document and notifies its namespace. A missing
// key is not an error; the count is 0.
func (s *Store) Delete(ctx context.Context, namespace, id string) (int64, error) {
	metrics.DatastoreOps.WithLabelValues("delete").Inc()

	key := models.Keycat(namespace, id)
	count, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	s.publishDeleted([]string{key})
	return count, nil
}

// MDelete removes the documents selected by ids and/or filter. With
// neither, nothing happens and the count is 0.
func (s *Store) MDelete(ctx context.Context, query models.DatastoreMultiQuery) (int64, error) {
	metrics.DatastoreOps.WithLabelValues("mdelete").Inc()

	if query.IDs == nil && query.Filter == nil {
		return 0, nil
	}
	keys, err := s.selectKeys(ctx, query.Namespace, query.IDs, query.Filter)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	count, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	s.publishDeleted(keys)
	return count, nil
}

// selectKeys resolves explicit ids and an optional glob filter into
// composite keys. The filter is passed to the backend unmodified;
// "*" and "?" are the portable subset.
func (s *Store) selectKeys(ctx context.Context, namespace string, ids []string, filter *string) ([]string, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, models.Keycat(namespace, id))
	}
	if filter != nil {
		matched, err := s.rdb.Keys(ctx, models.Keycat(namespace, *filter)).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
		}
		sort.Strings(matched)
		keys = append(keys, matched...)
	}
	return keys, nil
}
