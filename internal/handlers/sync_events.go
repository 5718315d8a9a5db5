package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/xelth-com/orderledger/internal/syncevent"
)

// SyncEventHandler serves the audit trail
type SyncEventHandler struct {
	events *syncevent.Log
}

// NewSyncEventHandler creates a new sync event handler
func NewSyncEventHandler(events *syncevent.Log) *SyncEventHandler {
	return &SyncEventHandler{events: events}
}

// RegisterRoutes registers sync event routes on a router mounted at /api
func (h *SyncEventHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/sync-events", h.List).Methods("GET")
}

// List returns events filtered by order_ref, event_type and success
func (h *SyncEventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f syncevent.Filter

	if v := q.Get("order_ref"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order_ref")
			return
		}
		f.OrderRef = uint(id)
	}
	f.EventType = q.Get("event_type")
	if v := q.Get("success"); v != "" {
		ok, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid success flag")
			return
		}
		f.Success = &ok
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	events, err := h.events.List(r.Context(), f)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}
