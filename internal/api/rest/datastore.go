package rest

import (
	"net/http"

	"github.com/brewkit/brewkit-history/internal/models"
)

// DatastorePing handles GET /datastore/ping.
func (h *Handler) DatastorePing(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.respondError(w, r, err)
		return
	}
	noCache(w)
	h.respondJSON(w, http.StatusOK, map[string]string{"ping": "pong"})
}

// DatastoreGet handles POST /datastore/get. Unknown documents yield a
// null value, not an error.
func (h *Handler) DatastoreGet(w http.ResponseWriter, r *http.Request) {
	var query models.DatastoreSingleQuery
	if !h.decodeJSON(w, r, &query) {
		return
	}
	value, err := h.store.Get(r.Context(), query.Namespace, query.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, models.DatastoreSingleValueBox{Value: value})
}

// DatastoreMGet handles POST /datastore/mget.
func (h *Handler) DatastoreMGet(w http.ResponseWriter, r *http.Request) {
	var query models.DatastoreMultiQuery
	if !h.decodeJSON(w, r, &query) {
		return
	}
	values, err := h.store.MGet(r.Context(), query)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, models.DatastoreMultiValueBox{Values: values})
}

// DatastoreSet handles POST /datastore/set.
func (h *Handler) DatastoreSet(w http.ResponseWriter, r *http.Request) {
	var box models.DatastoreSingleValueBox
	if !h.decodeJSON(w, r, &box) {
		return
	}
	if box.Value == nil {
		h.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "value is required"})
		return
	}
	value, err := h.store.Set(r.Context(), *box.Value)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, models.DatastoreSingleValueBox{Value: &value})
}

// DatastoreMSet handles POST /datastore/mset.
func (h *Handler) DatastoreMSet(w http.ResponseWriter, r *http.Request) {
	var box models.DatastoreMultiValueBox
	if !h.decodeJSON(w, r, &box) {
		return
	}
	values, err := h.store.MSet(r.Context(), box.Values)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, models.DatastoreMultiValueBox{Values: values})
}

// DatastoreDelete handles POST /datastore/delete.
func (h *Handler) DatastoreDelete(w http.ResponseWriter, r *http.Request) {
	var query models.DatastoreSingleQuery
	if !h.decodeJSON(w, r, &query) {
		return
	}
	count, err := h.store.Delete(r.Context(), query.Namespace, query.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, models.DatastoreDeleteResponse{Count: count})
}

// DatastoreMDelete handles POST /datastore/mdelete.
func (h *Handler) DatastoreMDelete(w http.ResponseWriter, r *http.Request) {
	var query models.DatastoreMultiQuery
	if !h.decodeJSON(w, r, &query) {
		return
	}
	count, err := h.store.MDelete(r.Context(), query)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, models.DatastoreDeleteResponse{Count: count})
}
