package victoria

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewkit/brewkit-history/internal/errs"
	"github.com/brewkit/brewkit-history/internal/models"
	"github.com/brewkit/brewkit-history/internal/timeutil"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resolver := timeutil.NewResolver(0, 0, 0)
	resolver.Now = func() time.Time {
		return time.Date(2021, 7, 15, 12, 0, 0, 0, time.UTC)
	}
	return New(Options{URL: srv.URL, Resolver: resolver})
}

func TestPing(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		fmt.Fprint(w, "OK")
	}))
	assert.NoError(t, c.Ping(context.Background()))
}

func TestPingUnhealthy(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "unavailable")
	}))
	assert.ErrorIs(t, c.Ping(context.Background()), errs.ErrUnavailable)
}

func TestPingConnectionRefused(t *testing.T) {
	c := New(Options{URL: "http://127.0.0.1:1", Timeout: time.Second})
	assert.ErrorIs(t, c.Ping(context.Background()), errs.ErrUnavailable)
}

func TestFields(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/series", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, `{__name__!=""}`, r.Form.Get("match[]"))
		// now - 1d
		assert.Equal(t, "1626264000", r.Form.Get("start"))

		fmt.Fprint(w, `{"data":[
			{"__name__":"spark/b/value"},
			{"__name__":"spark/a/value"},
			{"__name__":"spark/a/value"},
			{"other":"label"}
		]}`)
	}))

	fields, err := c.Fields(context.Background(), models.TimeSeriesFieldsQuery{Duration: "1d"})
	require.NoError(t, err)
	assert.Equal(t, []string{"spark/a/value", "spark/b/value"}, fields)
}

func TestFieldsInvalidDuration(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("backend should not be queried")
	}))
	_, err := c.Fields(context.Background(), models.TimeSeriesFieldsQuery{Duration: "nope"})
	assert.ErrorIs(t, err, errs.ErrInvalidQuery)
}

func TestRanges(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/query_range", r.URL.Path)
		require.NoError(t, r.ParseForm())

		switch r.Form.Get("query") {
		case `avg_over_time({__name__="spark/a"}[86s])`:
			fmt.Fprint(w, `{"data":{"result":[
				{"metric":{"__name__":"spark/a"},"values":[[1626359551,"21.5"]]}
			]}}`)
		case `avg_over_time({__name__="spark/b"}[86s])`:
			// No samples in the window.
			fmt.Fprint(w, `{"data":{"result":[]}}`)
		default:
			t.Errorf("unexpected query: %s", r.Form.Get("query"))
		}
	}))

	ranges, err := c.Ranges(context.Background(), models.TimeSeriesRangesQuery{
		Fields: []string{"spark/a", "spark/b"},
	})
	require.NoError(t, err)
	// Fields without data are omitted; order follows the request.
	require.Len(t, ranges, 1)
	assert.Equal(t, "spark/a", ranges[0].Metric.Name)
	assert.Equal(t, "21.5", ranges[0].Values[0].Value)
}

func TestRangesForbiddenField(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("backend should not be queried")
	}))
	_, err := c.Ranges(context.Background(), models.TimeSeriesRangesQuery{
		Fields: []string{`spark/{bad}`},
	})
	assert.ErrorIs(t, err, errs.ErrInvalidQuery)
}

func TestRangesBackendRejection(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	_, err := c.Ranges(context.Background(), models.TimeSeriesRangesQuery{
		Fields: []string{"spark/a"},
	})
	assert.ErrorIs(t, err, errs.ErrInvalidQuery)
}

func TestWrite(t *testing.T) {
	var received string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/write", r.URL.Path)
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		received = string(buf[:n])
		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.Write(context.Background(), "spark value=21.5 1626359551000000000\n")
	require.NoError(t, err)
	assert.Equal(t, "spark value=21.5 1626359551000000000\n", received)
}

func TestWriteErrorClasses(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, errs.ErrInvalidData},
		{http.StatusInternalServerError, errs.ErrUnavailable},
		{http.StatusBadGateway, errs.ErrUnavailable},
	}
	for _, tc := range cases {
		c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		err := c.Write(context.Background(), "line\n")
		assert.ErrorIs(t, err, tc.want, tc.status)
	}
}
