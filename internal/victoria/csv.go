package victoria

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/brewkit/brewkit-history/internal/errs"
	"github.com/brewkit/brewkit-history/internal/models"
	"github.com/brewkit/brewkit-history/internal/timeutil"
)

// exportChunk is one line of the line-delimited JSON export response.
// A single metric may be split over multiple chunks.
type exportChunk struct {
	Metric struct {
		Name string `json:"__name__"`
	} `json:"metric"`
	Values     []float64 `json:"values"`
	Timestamps []int64   `json:"timestamps"` // epoch milliseconds
}

type series struct {
	values     []float64
	timestamps []int64
}

// Csv streams the export endpoint for the queried fields and writes a
// single chronologically merged CSV table. Each output row carries the
// timestamp of exactly one source metric; cells of the other fields are
// left empty.
func (c *Client) Csv(ctx context.Context, query models.TimeSeriesCsvQuery, out io.Writer) error {
	if err := query.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidQuery, err)
	}
	tf, err := c.resolver.Select(query.Start.Time, query.End.Time, query.Duration)
	if err != nil {
		return err
	}
	for _, field := range query.Fields {
		if strings.ContainsAny(field, forbiddenFieldChars) {
			return fmt.Errorf("%w: invalid field name %q", errs.ErrInvalidQuery, field)
		}
	}

	end := tf.End
	if end.IsZero() {
		end = c.now()
	}
	form := url.Values{}
	for _, field := range query.Fields {
		form.Add("match[]", fmt.Sprintf(`{__name__="%s"}`, field))
	}
	form.Set("start", strconv.FormatInt(tf.Start.Unix(), 10))
	form.Set("end", strconv.FormatInt(end.Unix(), 10))
	form.Set("reduce_mem_usage", "1")
	form.Set("max_rows_per_line", "1000")

	resp, err := c.rawForm(ctx, "/api/v1/export", form)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Chunks arrive in no particular order and metrics may be split, so
	// the full response is collected before merging.
	columns := make(map[string]*series, len(query.Fields))
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk exportChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("%w: malformed export chunk: %v", errs.ErrUnavailable, err)
		}
		col := columns[chunk.Metric.Name]
		if col == nil {
			col = &series{}
			columns[chunk.Metric.Name] = col
		}
		col.values = append(col.values, chunk.Values...)
		col.timestamps = append(col.timestamps, chunk.Timestamps...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}

	// Split chunks of one metric may arrive in any order; the merge
	// needs each column ascending.
	for _, col := range columns {
		col.sortByTime()
	}

	return writeMerged(out, query, columns)
}

func (s *series) sortByTime() {
	if sort.SliceIsSorted(s.timestamps, func(i, j int) bool {
		return s.timestamps[i] < s.timestamps[j]
	}) {
		return
	}
	order := make([]int, len(s.timestamps))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return s.timestamps[order[i]] < s.timestamps[order[j]]
	})
	timestamps := make([]int64, len(order))
	values := make([]float64, len(order))
	for i, idx := range order {
		timestamps[i] = s.timestamps[idx]
		values[i] = s.values[idx]
	}
	s.timestamps = timestamps
	s.values = values
}

// writeMerged renders the per-field series as one CSV table sorted by
// time. Ties between fields resolve in requested field order.
func writeMerged(out io.Writer, query models.TimeSeriesCsvQuery, columns map[string]*series) error {
	w := csv.NewWriter(out)
	if err := w.Write(append([]string{"time"}, query.Fields...)); err != nil {
		return err
	}

	cursors := make([]int, len(query.Fields))
	row := make([]string, len(query.Fields)+1)
	for {
		next := -1
		var nextTs int64
		for i, field := range query.Fields {
			col := columns[field]
			if col == nil || cursors[i] >= len(col.timestamps) {
				continue
			}
			ts := col.timestamps[cursors[i]]
			if next == -1 || ts < nextTs {
				next = i
				nextTs = ts
			}
		}
		if next == -1 {
			break
		}

		col := columns[query.Fields[next]]
		stamp, err := timeutil.FormatTime(timeutil.FromEpoch(float64(nextTs)), query.Precision)
		if err != nil {
			return fmt.Errorf("%w: %v", errs.ErrInvalidQuery, err)
		}
		row[0] = stamp
		for i := range query.Fields {
			row[i+1] = ""
		}
		row[next+1] = strconv.FormatFloat(col.values[cursors[next]], 'f', -1, 64)
		cursors[next]++

		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
