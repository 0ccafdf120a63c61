package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/brewkit/brewkit-history/internal/errs"
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("response not encoded", "error", err)
	}
}

// respondError maps domain errors to status codes. Stack traces are
// only included in debug mode.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalidQuery), errors.Is(err, errs.ErrInvalidData):
		h.log.Warn("invalid request", "path", r.URL.Path, "error", err)
		h.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})

	case errors.Is(err, errs.ErrNotFound):
		h.respondJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})

	default:
		h.log.Error("request failed", "path", r.URL.Path, "error", err)
		resp := errorResponse{Error: err.Error()}
		if h.debug {
			resp.Details = string(debug.Stack())
		}
		h.respondJSON(w, http.StatusInternalServerError, resp)
	}
}

// decodeJSON parses a request body. Decode failures are client errors.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		h.log.Warn("invalid request body", "path", r.URL.Path, "error", err)
		h.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return false
	}
	return true
}

// noCache marks ping responses as uncacheable so health probes always
// hit the backend.
func noCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}
