// Package handlers provides HTTP handlers for the reminder API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/upmed/go-remind/internal/api/middleware"
	"github.com/upmed/go-remind/internal/domain/prescription"
	"github.com/upmed/go-remind/internal/domain/schedule"
	"github.com/upmed/go-remind/internal/observability/metrics"
	"github.com/upmed/go-remind/internal/scheduling/store"
	"github.com/upmed/go-remind/internal/scheduling/synthesizer"
	"github.com/upmed/go-remind/pkg/idempotency"
)

// RunHandler turns prescription documents into stored reminder schedules.
type RunHandler struct {
	synth  *synthesizer.Synthesizer
	store  *store.Store
	inbox  *idempotency.Inbox
	m      *metrics.Metrics
	logger *zap.Logger

	mu   sync.RWMutex
	runs map[string]*RunResponse
}

// NewRunHandler creates a new handler. m may be nil.
func NewRunHandler(synth *synthesizer.Synthesizer, st *store.Store, inbox *idempotency.Inbox, m *metrics.Metrics, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{
		synth:  synth,
		store:  st,
		inbox:  inbox,
		m:      m,
		logger: logger,
		runs:   make(map[string]*RunResponse),
	}
}

// Routes returns the handler routes
func (h *RunHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	return r
}

// HabitRequest is one habit/positive message pair.
type HabitRequest struct {
	Habit    string `json:"habit"`
	Positive string `json:"positive"`
}

// RunRequest is the request body for creating a scheduling run
type RunRequest struct {
	Medications []prescription.MedicationOrder `json:"medications"`
	Anchors     *schedule.Anchors              `json:"anchors,omitempty"`
	Habits      []HabitRequest                 `json:"habits,omitempty"`
}

// RunResponse is the response for a scheduling run
type RunResponse struct {
	RunID             string           `json:"run_id"`
	MedicationEntries int              `json:"medication_entries"`
	HabitEntries      int              `json:"habit_entries"`
	Entries           []schedule.Entry `json:"entries"`
	CreatedAt         time.Time        `json:"created_at"`
}

// Create handles POST /runs
func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("run-handler")
	ctx, span := tracer.Start(ctx, "create_run")
	defer span.End()

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.reject(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Medications) == 0 && len(req.Habits) == 0 {
		h.reject(w, "medications or habits required", http.StatusBadRequest)
		return
	}

	anchors := schedule.DefaultAnchors()
	if req.Anchors != nil {
		anchors = *req.Anchors
	}
	if err := anchors.Validate(); err != nil {
		h.reject(w, err.Error(), http.StatusBadRequest)
		return
	}

	key, err := h.idempotencyKey(r, &req)
	if err != nil {
		h.reject(w, "invalid request body", http.StatusBadRequest)
		return
	}
	prior, duplicate, err := h.inbox.Begin(key)
	if err != nil {
		if errors.Is(err, idempotency.ErrInProgress) {
			h.reject(w, "run already in progress", http.StatusConflict)
			return
		}
		h.logger.Error("idempotency begin failed", zap.Error(err))
		h.reject(w, "internal error", http.StatusInternalServerError)
		return
	}
	if duplicate {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(prior)
		return
	}

	now := time.Now()

	var medEntries []schedule.Entry
	if len(req.Medications) > 0 {
		doc := prescription.Document{Medications: req.Medications}
		if err := doc.Validate(); err != nil {
			h.inbox.Abandon(key)
			h.reject(w, err.Error(), http.StatusBadRequest)
			return
		}
		medEntries, err = h.synth.SynthesizeDocument(&doc, anchors, now)
		if err != nil {
			h.inbox.Abandon(key)
			h.reject(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	var habitEntries []schedule.Entry
	if len(req.Habits) > 0 {
		msgs := make([]synthesizer.HabitMessage, 0, len(req.Habits))
		for _, hr := range req.Habits {
			msgs = append(msgs, synthesizer.HabitMessage{Habit: hr.Habit, Positive: hr.Positive})
		}
		habitEntries = h.synth.BuildHabitEntries(msgs, now)
	}

	all := append(medEntries, habitEntries...)
	h.store.AddMany(all)

	runID := uuid.New().String()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("entries", len(all)),
	)

	resp := &RunResponse{
		RunID:             runID,
		MedicationEntries: len(medEntries),
		HabitEntries:      len(habitEntries),
		Entries:           all,
		CreatedAt:         now.UTC(),
	}

	h.mu.Lock()
	h.runs[runID] = resp
	h.mu.Unlock()

	if raw, err := json.Marshal(resp); err == nil {
		h.inbox.Finish(key, raw)
	}

	if h.m != nil {
		h.m.RunsAccepted.Inc()
		h.m.EntriesSynthesized.Add(float64(len(all)))
		h.m.PendingEntries.Set(float64(h.store.PendingCount()))
	}
	h.logger.Info("scheduling run accepted",
		zap.String("run_id", runID),
		zap.Int("medication_entries", len(medEntries)),
		zap.Int("habit_entries", len(habitEntries)),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// Get handles GET /runs/{id}
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.RLock()
	resp, ok := h.runs[id]
	h.mu.RUnlock()
	if !ok {
		h.jsonError(w, "run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// idempotencyKey prefers the client-supplied header; otherwise the key is
// derived from the request content so an identical retry is a duplicate.
func (h *RunHandler) idempotencyKey(r *http.Request, req *RunRequest) (string, error) {
	if k := r.Header.Get("X-Idempotency-Key"); k != "" {
		return idempotency.Key("run", k), nil
	}
	canonical, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return idempotency.Key("run", string(canonical)), nil
}

func (h *RunHandler) reject(w http.ResponseWriter, message string, code int) {
	if h.m != nil && code >= 400 && code < 500 {
		h.m.RunsRejected.Inc()
	}
	h.jsonError(w, message, code)
}

func (h *RunHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
