// Package victoria is a typed client for the VictoriaMetrics HTTP API.
// It composes the backend's query language; it never stores or indexes
// points itself.
package victoria

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brewkit/brewkit-history/internal/errs"
	"github.com/brewkit/brewkit-history/internal/models"
	"github.com/brewkit/brewkit-history/internal/timeutil"
)

// forbiddenFieldChars would break the composed selector; field names
// containing them are rejected rather than escaped.
const forbiddenFieldChars = `{}"\`

// Options configures a Client.
type Options struct {
	// URL is the base URL of the backend, including any path prefix.
	URL string
	// Timeout bounds each HTTP request. Defaults to 30s.
	Timeout time.Duration
	// Resolver computes query windows and steps.
	Resolver timeutil.Resolver
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Client is a typed client over the VictoriaMetrics HTTP API.
type Client struct {
	url      string
	http     *http.Client
	resolver timeutil.Resolver
	log      *slog.Logger
	now      func() time.Time
}

// New creates a client. The backend is not contacted until the first
// call; use Ping as a liveness probe.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	resolver := opts.Resolver
	if resolver.DesiredPoints == 0 {
		resolver = timeutil.NewResolver(0, 0, 0)
	}
	now := resolver.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		url:      strings.TrimSuffix(opts.URL, "/"),
		http:     &http.Client{Timeout: timeout},
		resolver: resolver,
		log:      log,
		now:      now,
	}
}

// Ping checks backend health. Anything except an "OK" body is treated
// as the backend being unavailable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	if status := strings.TrimSpace(string(body)); status != "OK" {
		return fmt.Errorf("%w: health returned %q", errs.ErrUnavailable, status)
	}
	return nil
}

// Fields lists the sorted unique metric names seen during the given
// lookback duration.
func (c *Client) Fields(ctx context.Context, query models.TimeSeriesFieldsQuery) ([]string, error) {
	lookback, err := timeutil.ParseDuration(query.Duration)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidQuery, err)
	}

	form := url.Values{}
	form.Set("match[]", `{__name__!=""}`)
	form.Set("start", strconv.FormatInt(c.now().Add(-lookback).Unix(), 10))

	var parsed struct {
		Data []map[string]string `json:"data"`
	}
	if err := c.postForm(ctx, "/api/v1/series", form, &parsed); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(parsed.Data))
	for _, entry := range parsed.Data {
		if name := entry["__name__"]; name != "" {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Ranges runs one bounded range query per requested field and returns
// the non-empty results in field order.
func (c *Client) Ranges(ctx context.Context, query models.TimeSeriesRangesQuery) ([]models.TimeSeriesRange, error) {
	tf, err := c.resolver.Select(query.Start.Time, query.End.Time, query.Duration)
	if err != nil {
		return nil, err
	}
	for _, field := range query.Fields {
		if strings.ContainsAny(field, forbiddenFieldChars) {
			return nil, fmt.Errorf("%w: invalid field name %q", errs.ErrInvalidQuery, field)
		}
	}

	end := tf.End
	if end.IsZero() {
		end = c.now()
	}
	step := tf.StepString()
	c.log.Debug("range query",
		"fields", len(query.Fields),
		"start", tf.Start.Unix(),
		"end", end.Unix(),
		"step", step)

	results := make([]*models.TimeSeriesRange, len(query.Fields))
	g, gctx := errgroup.WithContext(ctx)
	for i, field := range query.Fields {
		i, field := i, field
		g.Go(func() error {
			form := url.Values{}
			form.Set("query", fmt.Sprintf(`avg_over_time({__name__="%s"}[%s])`, field, step))
			form.Set("start", strconv.FormatInt(tf.Start.Unix(), 10))
			form.Set("end", strconv.FormatInt(end.Unix(), 10))
			form.Set("step", step)

			var parsed struct {
				Data struct {
					Result []models.TimeSeriesRange `json:"result"`
				} `json:"data"`
			}
			if err := c.postForm(gctx, "/api/v1/query_range", form, &parsed); err != nil {
				return err
			}
			if len(parsed.Data.Result) > 0 {
				results[i] = &parsed.Data.Result[0]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranges := make([]models.TimeSeriesRange, 0, len(results))
	for _, r := range results {
		if r != nil {
			ranges = append(ranges, *r)
		}
	}
	return ranges, nil
}

// Write posts line-protocol records. The backend discards invalid
// lines; partial success is treated as success.
func (c *Client) Write(ctx context.Context, lines string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/write", strings.NewReader(lines))
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: write rejected: %s", errs.ErrInvalidData, strings.TrimSpace(string(body)))
	default:
		return fmt.Errorf("%w: write returned status %d", errs.ErrUnavailable, resp.StatusCode)
	}
}

// postForm issues a form-encoded POST and decodes the JSON response
// into out.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	resp, err := c.rawForm(ctx, path, form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", errs.ErrUnavailable, err)
	}
	return nil
}

func (c *Client) rawForm(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: query returned status %d", errs.ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", errs.ErrInvalidQuery, strings.TrimSpace(string(body)))
	}
	return resp, nil
}
