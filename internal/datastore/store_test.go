package datastore

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewkit/brewkit-history/internal/errs"
	"github.com/brewkit/brewkit-history/internal/models"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages map[string][]string
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messages == nil {
		f.messages = make(map[string][]string)
	}
	f.messages[topic] = append(f.messages[topic], string(payload))
	return nil
}

func testStore(t *testing.T) (*Store, *fakePublisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	pub := &fakePublisher{}
	store := New(Options{
		Redis:     rdb,
		Publisher: pub,
		Topic:     "brewcast/datastore",
	})
	return store, pub
}

func value(namespace, id string, extra map[string]any) models.DatastoreValue {
	return models.DatastoreValue{Namespace: namespace, ID: id, Extra: extra}
}

func TestPing(t *testing.T) {
	store, _ := testStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestSetGetRoundTrip(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	stored, err := store.Set(ctx, value("brewery", "doc-1", map[string]any{"size": float64(10)}))
	require.NoError(t, err)
	assert.Equal(t, "brewery:doc-1", stored.Key())

	got, err := store.Get(ctx, "brewery", "doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stored, *got)
}

func TestGetMissing(t *testing.T) {
	store, _ := testStore(t)

	got, err := store.Get(context.Background(), "brewery", "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSetInvalidKey(t *testing.T) {
	store, _ := testStore(t)

	_, err := store.Set(context.Background(), value("brew:ery", "doc", nil))
	assert.ErrorIs(t, err, errs.ErrInvalidQuery)
}

func TestMGetUnion(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	_, err := store.MSet(ctx, []models.DatastoreValue{
		value("brewery", "alpha", nil),
		value("brewery", "beta", nil),
		value("brewery", "gamma", nil),
		value("other", "alpha", nil),
	})
	require.NoError(t, err)

	// Explicit ids only.
	values, err := store.MGet(ctx, models.DatastoreMultiQuery{
		Namespace: "brewery",
		IDs:       []string{"alpha", "missing"},
	})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "alpha", values[0].ID)

	// Filter only.
	filter := "*a"
	values, err = store.MGet(ctx, models.DatastoreMultiQuery{
		Namespace: "brewery",
		Filter:    &filter,
	})
	require.NoError(t, err)
	require.Len(t, values, 3)

	// Neither selects everything in the namespace.
	values, err = store.MGet(ctx, models.DatastoreMultiQuery{Namespace: "other"})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "other", values[0].Namespace)
}

func TestDelete(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	_, err := store.Set(ctx, value("brewery", "doc-1", nil))
	require.NoError(t, err)

	count, err := store.Delete(ctx, "brewery", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.Delete(ctx, "brewery", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestMDelete(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	_, err := store.MSet(ctx, []models.DatastoreValue{
		value("brewery", "alpha", nil),
		value("brewery", "beta", nil),
	})
	require.NoError(t, err)

	// Neither ids nor filter deletes nothing.
	count, err := store.MDelete(ctx, models.DatastoreMultiQuery{Namespace: "brewery"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	filter := "*"
	count, err = store.MDelete(ctx, models.DatastoreMultiQuery{
		Namespace: "brewery",
		Filter:    &filter,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestChangeNotifications(t *testing.T) {
	store, pub := testStore(t)
	ctx := context.Background()

	// Mixed namespaces fan out one message per top-level namespace.
	_, err := store.MSet(ctx, []models.DatastoreValue{
		value("brewery", "alpha", nil),
		value("brewery", "beta", nil),
		value("other", "gamma", nil),
	})
	require.NoError(t, err)

	pub.mu.Lock()
	defer pub.mu.Unlock()

	require.Len(t, pub.messages["brewcast/datastore/brewery"], 1)
	require.Len(t, pub.messages["brewcast/datastore/other"], 1)

	var changed struct {
		Changed []models.DatastoreValue `json:"changed"`
	}
	require.NoError(t, json.Unmarshal(
		[]byte(pub.messages["brewcast/datastore/brewery"][0]), &changed))
	require.Len(t, changed.Changed, 2)
}

func TestDeleteNotifications(t *testing.T) {
	store, pub := testStore(t)
	ctx := context.Background()

	_, err := store.Set(ctx, value("brewery", "doc-1", nil))
	require.NoError(t, err)
	_, err = store.Delete(ctx, "brewery", "doc-1")
	require.NoError(t, err)

	pub.mu.Lock()
	defer pub.mu.Unlock()

	msgs := pub.messages["brewcast/datastore/brewery"]
	require.Len(t, msgs, 2)

	var deleted struct {
		Deleted []string `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal([]byte(msgs[1]), &deleted))
	assert.Equal(t, []string{"brewery:doc-1"}, deleted.Deleted)
}
