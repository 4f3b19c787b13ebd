// Package postgres provides PostgreSQL infrastructure components.
// The schedule itself is in memory; Postgres only keeps failed
// deliveries around for inspection.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/upmed/go-remind/internal/domain/schedule"
)

// DeadLetter is one failed delivery on disk.
type DeadLetter struct {
	ID         int64
	EntryID    string
	EntryType  string
	Entry      json.RawMessage
	SinkError  string
	OccurredAt time.Time
}

// Schema creates the dead_letters table.
const Schema = `
CREATE TABLE IF NOT EXISTS dead_letters (
    id          BIGSERIAL PRIMARY KEY,
    entry_id    TEXT NOT NULL,
    entry_type  TEXT NOT NULL,
    entry       JSONB NOT NULL,
    sink_error  TEXT NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_dead_letters_occurred_at ON dead_letters (occurred_at);
`

// DeadLetterStore records failed reminder deliveries in Postgres. A nil
// pool disables persistence: Record logs and returns nil so the dispatch
// loop never depends on the database being up.
type DeadLetterStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

// NewDeadLetterStore creates the store. pool may be nil.
func NewDeadLetterStore(pool *pgxpool.Pool, logger *zap.Logger) *DeadLetterStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadLetterStore{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("dead-letter-store"),
	}
}

// EnsureSchema creates the table if it does not exist.
func (s *DeadLetterStore) EnsureSchema(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create dead_letters schema: %w", err)
	}
	return nil
}

// Record persists one failed delivery.
func (s *DeadLetterStore) Record(ctx context.Context, e schedule.Entry, dispatchErr error) error {
	ctx, span := s.tracer.Start(ctx, "dead_letter_record",
		trace.WithAttributes(
			attribute.String("entry_id", e.ID),
			attribute.String("entry_type", string(e.Type)),
		))
	defer span.End()

	if s.pool == nil {
		s.logger.Warn("dead letter (persistence disabled)",
			zap.String("entry_id", e.ID),
			zap.Error(dispatchErr))
		return nil
	}

	payload, err := json.Marshal(e)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshal entry: %w", err)
	}

	query := `
		INSERT INTO dead_letters (entry_id, entry_type, entry, sink_error)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.pool.Exec(ctx, query, e.ID, string(e.Type), payload, dispatchErr.Error()); err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert dead letter: %w", err)
	}

	s.logger.Info("dead letter recorded",
		zap.String("entry_id", e.ID),
		zap.Error(dispatchErr))
	return nil
}

// Recent returns the most recent dead letters, newest first.
func (s *DeadLetterStore) Recent(ctx context.Context, limit int) ([]*DeadLetter, error) {
	if s.pool == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, entry_id, entry_type, entry, sink_error, occurred_at
		FROM dead_letters
		ORDER BY occurred_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}
	defer rows.Close()

	var letters []*DeadLetter
	for rows.Next() {
		dl := &DeadLetter{}
		if err := rows.Scan(&dl.ID, &dl.EntryID, &dl.EntryType, &dl.Entry, &dl.SinkError, &dl.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		letters = append(letters, dl)
	}
	return letters, rows.Err()
}

// Purge removes dead letters older than the given age.
func (s *DeadLetterStore) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s.pool == nil {
		return 0, nil
	}

	query := `
		DELETE FROM dead_letters
		WHERE occurred_at < NOW() - $1::interval
	`
	result, err := s.pool.Exec(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}
	return result.RowsAffected(), nil
}
