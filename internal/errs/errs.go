// Package errs defines the error taxonomy shared by the adapters and
// the request surface.
package errs

import "errors"

var (
	// ErrInvalidQuery marks client-correctable request errors, such as
	// over-constrained timeframes or unparseable durations.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidData marks payloads rejected by a backend. Retrying the
	// same payload will not help.
	ErrInvalidData = errors.New("invalid data")

	// ErrUnavailable marks transient backend failures that should be
	// retried with backoff.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrNotFound marks datastore key misses. The request surface
	// translates it into a null value or zero count, not an error.
	ErrNotFound = errors.New("not found")
)
