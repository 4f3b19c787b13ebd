package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/upmed/go-remind/internal/domain/schedule"
	"github.com/upmed/go-remind/internal/scheduling/store"
)

// ScheduleHandler exposes the in-memory schedule for inspection.
type ScheduleHandler struct {
	store *store.Store
}

// NewScheduleHandler creates a new handler
func NewScheduleHandler(st *store.Store) *ScheduleHandler {
	return &ScheduleHandler{store: st}
}

// Routes returns the handler routes
func (h *ScheduleHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	return r
}

// ScheduleListResponse is the response for listing schedule entries
type ScheduleListResponse struct {
	Total   int              `json:"total"`
	Pending int              `json:"pending"`
	Entries []schedule.Entry `json:"entries"`
}

// List handles GET /schedules. With ?pending=true only unsent entries are
// returned.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	entries := h.store.Snapshot()
	pending := h.store.PendingCount()

	if r.URL.Query().Get("pending") == "true" {
		filtered := make([]schedule.Entry, 0, pending)
		for _, e := range entries {
			if !e.Sent {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	resp := ScheduleListResponse{
		Total:   h.store.Len(),
		Pending: pending,
		Entries: entries,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Health responds to liveness probes.
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
