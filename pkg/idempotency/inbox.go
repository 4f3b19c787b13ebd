// Package idempotency guards run submissions against client retries using
// deterministic keys and an in-memory inbox with TTL.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrInProgress indicates the same submission is currently being processed.
var ErrInProgress = errors.New("submission in progress")

// Status represents the processing status of an inbox entry
type Status string

const (
	StatusStarted  Status = "STARTED"
	StatusFinished Status = "FINISHED"
)

// Config holds inbox configuration
type Config struct {
	// TTL is how long a finished entry suppresses duplicates
	TTL time.Duration
	// RecoveryTimeout is when a STARTED entry is considered stale
	RecoveryTimeout time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		TTL:             24 * time.Hour,
		RecoveryTimeout: 2 * time.Minute,
	}
}

type entry struct {
	status    Status
	result    json.RawMessage
	updatedAt time.Time
	expiresAt time.Time
}

// Inbox deduplicates submissions by key. State lives in memory for the
// process lifetime, matching the rest of the scheduling state.
type Inbox struct {
	mu      sync.Mutex
	entries map[string]*entry
	config  Config
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an inbox.
func New(cfg Config, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig().RecoveryTimeout
	}
	return &Inbox{
		entries: make(map[string]*entry),
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Begin claims a key. Returns (nil, false, nil) when the submission is new
// and now claimed; (result, true, nil) when it already finished within the
// TTL; (nil, false, ErrInProgress) when another claim is active and not yet
// stale.
func (i *Inbox) Begin(key string) (json.RawMessage, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	i.pruneLocked(now)

	if e, ok := i.entries[key]; ok {
		switch e.status {
		case StatusFinished:
			return e.result, true, nil
		case StatusStarted:
			if now.Sub(e.updatedAt) < i.config.RecoveryTimeout {
				return nil, false, ErrInProgress
			}
			// Stale claim, likely an aborted request; take it over.
		}
	}

	i.entries[key] = &entry{
		status:    StatusStarted,
		updatedAt: now,
		expiresAt: now.Add(i.config.TTL),
	}
	return nil, false, nil
}

// Finish records the result for a claimed key.
func (i *Inbox) Finish(key string, result json.RawMessage) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	i.entries[key] = &entry{
		status:    StatusFinished,
		result:    result,
		updatedAt: now,
		expiresAt: now.Add(i.config.TTL),
	}
}

// Abandon releases a claimed key after a failed submission so the client
// can retry.
func (i *Inbox) Abandon(key string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.entries, key)
}

// Len returns the number of live entries.
func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.entries)
}

func (i *Inbox) pruneLocked(now time.Time) {
	for k, e := range i.entries {
		if now.After(e.expiresAt) {
			delete(i.entries, k)
		}
	}
}

// Key derives a deterministic submission key from its parts.
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
