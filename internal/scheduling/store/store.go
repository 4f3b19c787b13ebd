// Package store implements the in-memory collection of pending reminder
// entries shared by the schedule producers and the dispatch loop.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upmed/go-remind/internal/domain/schedule"
)

// Store holds every reminder entry for the life of the process. Entries are
// never deleted; dispatch flips their sent flag exactly once. A single
// mutex guards the collection so inserts from the API and the habit
// consumer can race the dispatch tick safely.
type Store struct {
	mu      sync.Mutex
	loc     *time.Location
	entries []*schedule.Entry
	byID    map[string]*schedule.Entry
	logger  *zap.Logger
}

// New creates an empty store. All fire times are normalized into loc on
// insert; a nil loc means the process-local zone.
func New(loc *time.Location, logger *zap.Logger) *Store {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		loc:    loc,
		byID:   make(map[string]*schedule.Entry),
		logger: logger,
	}
}

// AddMany inserts entries, forcing sent=false on each, normalizing the fire
// time into the store's zone and assigning an ID where the producer left it
// empty. Entries without a fire time are accepted but stay inert for
// dispatch. Returns the number inserted.
func (s *Store) AddMany(entries []schedule.Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range entries {
		e := entries[i]
		e.Sent = false
		e.SentAt = nil
		if e.FireAt != nil {
			t := e.FireAt.In(s.loc)
			e.FireAt = &t
		}
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		s.entries = append(s.entries, &e)
		s.byID[e.ID] = &e
	}
	s.logger.Debug("entries added", zap.Int("count", len(entries)), zap.Int("total", len(s.entries)))
	return len(entries)
}

// Due returns copies of every unsent entry whose fire time is at or before
// now, ordered by fire time ascending. Entries without a fire time are
// never due. Does not mutate state.
func (s *Store) Due(now time.Time) []schedule.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []schedule.Entry
	for _, e := range s.entries {
		if e.Sent || e.FireAt == nil {
			continue
		}
		if !e.FireAt.After(now) {
			due = append(due, *e)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].FireAt.Before(*due[j].FireAt)
	})
	return due
}

// MarkSent flips an entry's sent flag and records the dispatch moment.
// Marking an already-sent entry is a no-op; the first sentAt is kept.
// Returns false when the entry was already sent or is unknown.
func (s *Store) MarkSent(id string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok || e.Sent {
		return false
	}
	e.Sent = true
	t := at
	e.SentAt = &t
	return true
}

// Snapshot returns a copy of every entry in insertion order, for client
// display and run artifacts.
func (s *Store) Snapshot() []schedule.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]schedule.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

// Len returns the total number of entries ever inserted.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// PendingCount returns the number of unsent entries with a fire time.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if !e.Sent && e.FireAt != nil {
			n++
		}
	}
	return n
}
