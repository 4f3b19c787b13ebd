package intake

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/upmed/go-remind/internal/infrastructure/redpanda"
	"github.com/upmed/go-remind/internal/scheduling/store"
	"github.com/upmed/go-remind/internal/scheduling/synthesizer"
)

func newTestIntake(t *testing.T) (*HabitIntake, *store.Store) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	st := store.New(loc, zap.NewNop())
	return NewHabitIntake(synthesizer.New(loc), st, nil, zap.NewNop()), st
}

func TestHabitIntakeSchedulesAllSlots(t *testing.T) {
	h, st := newTestIntake(t)

	msg := &redpanda.ConsumedMessage{
		Topic: redpanda.TopicHabit,
		Value: []byte(`{"messages":[{"habit":"물 한 잔 마시기","positive":"좋아요!"}]}`),
	}
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if st.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 fixed slots", st.Len())
	}
	for _, e := range st.Snapshot() {
		if e.FireAt == nil {
			t.Fatalf("entry %s has no fire time", e.ID)
		}
		if !e.FireAt.After(time.Now().Add(-time.Minute)) {
			t.Fatalf("entry %s fires in the past: %v", e.ID, e.FireAt)
		}
	}
}

func TestHabitIntakeAcceptsBareArray(t *testing.T) {
	h, st := newTestIntake(t)

	msg := &redpanda.ConsumedMessage{
		Value: []byte(`[{"habit":"스트레칭","positive":"개운해요"}]`),
	}
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if st.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", st.Len())
	}
}

func TestHabitIntakeDropsMalformedPayload(t *testing.T) {
	h, st := newTestIntake(t)

	msg := &redpanda.ConsumedMessage{Value: []byte(`not json`)}
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("malformed payload should be dropped, got error: %v", err)
	}
	if st.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", st.Len())
	}
}
