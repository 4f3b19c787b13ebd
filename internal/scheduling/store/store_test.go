package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/upmed/go-remind/internal/domain/schedule"
)

func entryAt(id string, fireAt time.Time) schedule.Entry {
	return schedule.Entry{
		ID:      id,
		FireAt:  &fireAt,
		Type:    schedule.TypeMedication,
		Message: "m",
		Meta:    schedule.Meta{Rule: "fallback_spread"},
	}
}

func TestDueSelectsOnlyPastUnsent(t *testing.T) {
	s := New(nil, nil)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	s.AddMany([]schedule.Entry{
		entryAt("past", now.Add(-time.Hour)),
		entryAt("exact", now), // at now counts as due
		entryAt("future", now.Add(time.Hour)),
	})

	due := s.Due(now)
	if len(due) != 2 {
		t.Fatalf("expected 2 due entries, got %d", len(due))
	}
	if due[0].ID != "past" || due[1].ID != "exact" {
		t.Errorf("due order = %s,%s, want past,exact", due[0].ID, due[1].ID)
	}
}

func TestDueOrderedByFireTime(t *testing.T) {
	s := New(nil, nil)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	// Inserted out of order on purpose.
	s.AddMany([]schedule.Entry{
		entryAt("c", now.Add(-1*time.Minute)),
		entryAt("a", now.Add(-30*time.Minute)),
		entryAt("b", now.Add(-10*time.Minute)),
	})

	due := s.Due(now)
	want := []string{"a", "b", "c"}
	for i, e := range due {
		if e.ID != want[i] {
			t.Errorf("due[%d] = %s, want %s", i, e.ID, want[i])
		}
	}
}

func TestEntryWithoutFireTimeIsInert(t *testing.T) {
	s := New(nil, nil)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	s.AddMany([]schedule.Entry{
		{ID: "no-fire", Type: schedule.TypeHabit, Message: "m"},
	})

	if due := s.Due(now.Add(24 * time.Hour)); len(due) != 0 {
		t.Errorf("entry without fire time selected as due")
	}
	if s.Len() != 1 {
		t.Errorf("entry without fire time was dropped")
	}
}

func TestMarkSentIsMonotonicAndIdempotent(t *testing.T) {
	s := New(nil, nil)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	s.AddMany([]schedule.Entry{entryAt("x", now.Add(-time.Hour))})

	if !s.MarkSent("x", now) {
		t.Fatal("first MarkSent should succeed")
	}
	if s.MarkSent("x", now.Add(time.Minute)) {
		t.Error("second MarkSent should be a no-op")
	}

	snap := s.Snapshot()
	if !snap[0].Sent {
		t.Error("entry not marked sent")
	}
	if snap[0].SentAt == nil || !snap[0].SentAt.Equal(now) {
		t.Errorf("sentAt = %v, want first mark time %v", snap[0].SentAt, now)
	}
	if due := s.Due(now.Add(time.Hour)); len(due) != 0 {
		t.Error("sent entry still selected as due")
	}
}

func TestAddManyForcesUnsent(t *testing.T) {
	s := New(nil, nil)
	fireAt := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	sentAt := fireAt.Add(time.Minute)

	s.AddMany([]schedule.Entry{{
		ID:     "pre-sent",
		FireAt: &fireAt,
		Sent:   true,
		SentAt: &sentAt,
	}})

	snap := s.Snapshot()
	if snap[0].Sent || snap[0].SentAt != nil {
		t.Error("AddMany must reset sent state on insert")
	}
}

func TestAddManyNormalizesFireTimeZone(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	s := New(seoul, nil)

	fireAt := time.Date(2026, time.March, 2, 3, 0, 0, 0, time.UTC)
	s.AddMany([]schedule.Entry{{ID: "utc", FireAt: &fireAt}})

	got := s.Snapshot()[0].FireAt
	if got.Location() != seoul {
		t.Errorf("fire time zone = %v, want Asia/Seoul", got.Location())
	}
	if !got.Equal(fireAt) {
		t.Errorf("normalization changed the instant: %v vs %v", got, fireAt)
	}
}

func TestAddManyAssignsMissingIDs(t *testing.T) {
	s := New(nil, nil)
	fireAt := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	s.AddMany([]schedule.Entry{{FireAt: &fireAt}})

	snap := s.Snapshot()
	if snap[0].ID == "" {
		t.Error("expected generated ID")
	}
}

func TestConcurrentAddAndDue(t *testing.T) {
	s := New(nil, nil)
	now := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.AddMany([]schedule.Entry{entryAt(fmt.Sprintf("e-%d-%d", i, j), now.Add(-time.Minute))})
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			for _, e := range s.Due(now) {
				s.MarkSent(e.ID, now)
			}
		}
	}()
	wg.Wait()

	if s.Len() != 400 {
		t.Errorf("expected 400 entries, got %d", s.Len())
	}
}
