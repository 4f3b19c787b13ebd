// Package intake turns inbound habit reminder requests into stored
// schedule entries.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upmed/go-remind/internal/infrastructure/redpanda"
	"github.com/upmed/go-remind/internal/observability/metrics"
	"github.com/upmed/go-remind/internal/scheduling/store"
	"github.com/upmed/go-remind/internal/scheduling/synthesizer"
)

type habitMessage struct {
	Habit    string `json:"habit"`
	Positive string `json:"positive"`
}

type habitPayload struct {
	Messages []habitMessage `json:"messages"`
}

// HabitIntake consumes habit reminder requests and schedules them on the
// fixed daily slots.
type HabitIntake struct {
	synth  *synthesizer.Synthesizer
	store  *store.Store
	m      *metrics.Metrics
	logger *zap.Logger
}

// NewHabitIntake creates the intake. m may be nil.
func NewHabitIntake(synth *synthesizer.Synthesizer, st *store.Store, m *metrics.Metrics, logger *zap.Logger) *HabitIntake {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HabitIntake{synth: synth, store: st, m: m, logger: logger}
}

// Handle decodes one habit request and stores its entries. The payload is
// either {"messages": [...]} or a bare array of habit/positive pairs;
// missing pairs fall back to the built-in defaults.
func (h *HabitIntake) Handle(_ context.Context, msg *redpanda.ConsumedMessage) error {
	msgs, err := decodeHabitMessages(msg.Value)
	if err != nil {
		// Malformed requests are logged and skipped, not retried.
		h.logger.Warn("dropping malformed habit message",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	entries := h.synth.BuildHabitEntries(msgs, time.Now())
	added := h.store.AddMany(entries)

	if h.m != nil {
		h.m.HabitMessagesConsumed.Inc()
		h.m.PendingEntries.Set(float64(h.store.PendingCount()))
	}
	h.logger.Info("habit reminders scheduled",
		zap.Int("entries", added),
		zap.Int64("offset", msg.Offset))
	return nil
}

func decodeHabitMessages(raw []byte) ([]synthesizer.HabitMessage, error) {
	// An empty object is a valid request: the defaults fill in.
	var payload habitPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		var bare []habitMessage
		if err2 := json.Unmarshal(raw, &bare); err2 != nil {
			return nil, fmt.Errorf("decode habit payload: %w", err)
		}
		payload.Messages = bare
	}

	msgs := make([]synthesizer.HabitMessage, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		msgs = append(msgs, synthesizer.HabitMessage{Habit: m.Habit, Positive: m.Positive})
	}
	return msgs, nil
}
