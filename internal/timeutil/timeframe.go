package timeutil

import (
	"fmt"
	"strconv"
	"time"

	"github.com/brewkit/brewkit-history/internal/errs"
)

// Resolver computes concrete query windows from partial range
// parameters. The zero value is not usable; construct it from config.
type Resolver struct {
	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
	// DefaultDuration is the window used when no bounds are given.
	DefaultDuration time.Duration
	// DesiredPoints is the target number of samples per range query.
	DesiredPoints int64
	// MinimumStep is the lower bound on the sampling step.
	MinimumStep time.Duration
}

// NewResolver returns a resolver with the given tuning parameters,
// falling back to the documented defaults for zero values.
func NewResolver(defaultDuration time.Duration, desiredPoints int64, minimumStep time.Duration) Resolver {
	if defaultDuration <= 0 {
		defaultDuration = 24 * time.Hour
	}
	if desiredPoints <= 0 {
		desiredPoints = 1000
	}
	if minimumStep <= 0 {
		minimumStep = 10 * time.Second
	}
	return Resolver{
		Now:             time.Now,
		DefaultDuration: defaultDuration,
		DesiredPoints:   desiredPoints,
		MinimumStep:     minimumStep,
	}
}

// Timeframe is a resolved query window. A zero End means the window is
// open-ended: its right bound is now() and advances with the wall clock.
type Timeframe struct {
	Start time.Time
	End   time.Time
	Step  time.Duration
}

// OpenEnded reports whether the window has no fixed right bound.
func (t Timeframe) OpenEnded() bool {
	return t.End.IsZero()
}

// StepString renders the step in the "<N>s" form used by range queries.
func (t Timeframe) StepString() string {
	return strconv.FormatInt(int64(t.Step/time.Second), 10) + "s"
}

// IsOpenEnded reports whether the given parameter combination yields a
// live window: no parameters, start only, or duration only.
func IsOpenEnded(start, end time.Time, duration string) bool {
	return end.IsZero() && (start.IsZero() || duration == "")
}

// Select resolves (start, duration, end) into a concrete window.
// At most two of the three parameters may be set.
func (r Resolver) Select(start, end time.Time, duration string) (Timeframe, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	hasStart := !start.IsZero()
	hasEnd := !end.IsZero()
	hasDuration := duration != ""

	var parsed time.Duration
	if hasDuration {
		var err error
		parsed, err = ParseDuration(duration)
		if err != nil {
			return Timeframe{}, fmt.Errorf("%w: %v", errs.ErrInvalidQuery, err)
		}
	}

	var tf Timeframe
	switch {
	case hasStart && hasEnd && hasDuration:
		return Timeframe{}, fmt.Errorf("%w: at most two out of start, duration, and end can be provided", errs.ErrInvalidQuery)
	case !hasStart && !hasEnd && !hasDuration:
		tf.Start = now().Add(-r.DefaultDuration)
	case hasStart && hasDuration:
		tf.Start = start
		tf.End = start.Add(parsed)
	case hasStart && hasEnd:
		tf.Start = start
		tf.End = end
	case hasDuration && hasEnd:
		tf.End = end
		tf.Start = end.Add(-parsed)
	case hasStart:
		tf.Start = start
	case hasDuration:
		tf.Start = now().Add(-parsed)
	case hasEnd:
		tf.End = end
		tf.Start = end.Add(-r.DefaultDuration)
	}

	// Aim for a decent resolution without flooding the client.
	right := tf.End
	if right.IsZero() {
		right = now()
	}
	window := right.Sub(tf.Start)
	step := window / time.Duration(r.DesiredPoints)
	step = step.Truncate(time.Second)
	if step < r.MinimumStep {
		step = r.MinimumStep
	}
	tf.Step = step

	return tf, nil
}
