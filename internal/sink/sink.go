// Package sink defines the notification sink contract and its
// implementations. The dispatch loop hands every due entry to a sink
// exactly once; a sink failure never causes a redelivery.
package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/upmed/go-remind/internal/domain/schedule"
)

// Sink delivers one reminder to the user-facing transport.
type Sink interface {
	Dispatch(ctx context.Context, e schedule.Entry) error
}

// LogSink is the reference sink: it emits the reminder to the process log.
// A production deployment swaps in a push transport without touching the
// store or loop contracts.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates the reference logging sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Dispatch logs the reminder. Never fails.
func (s *LogSink) Dispatch(_ context.Context, e schedule.Entry) error {
	s.logger.Info("push notification",
		zap.String("type", string(e.Type)),
		zap.String("message", e.Message),
		zap.String("rule", e.Meta.Rule),
		zap.String("entry_id", e.ID),
	)
	return nil
}
