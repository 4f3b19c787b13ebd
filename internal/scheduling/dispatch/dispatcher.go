// Package dispatch implements the periodic loop that delivers due reminder
// entries to the notification sink exactly once.
package dispatch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/upmed/go-remind/internal/domain/schedule"
	"github.com/upmed/go-remind/internal/observability/metrics"
	"github.com/upmed/go-remind/internal/scheduling/store"
	"github.com/upmed/go-remind/internal/sink"
)

// DeadLetters records dispatch failures for operational visibility. There
// is no retry path; a recorded entry stays marked sent.
type DeadLetters interface {
	Record(ctx context.Context, e schedule.Entry, dispatchErr error) error
}

// Config holds configuration for the dispatcher
type Config struct {
	// TickInterval is how often to poll the store for due entries
	TickInterval time.Duration
}

// DefaultConfig returns the reference polling cadence
func DefaultConfig() Config {
	return Config{TickInterval: 5 * time.Second}
}

// Dispatcher polls the store on a fixed interval. Ticks run sequentially on
// a single goroutine, so a tick always completes before the next begins.
// The due set is read and sent flags are flipped under the store's lock;
// the sink is called outside it.
type Dispatcher struct {
	store  *store.Store
	sink   sink.Sink
	dead   DeadLetters
	m      *metrics.Metrics
	config Config
	logger *zap.Logger
	tracer trace.Tracer

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a dispatcher. dead and m may be nil.
func New(st *store.Store, snk sink.Sink, dead DeadLetters, m *metrics.Metrics, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		store:  st,
		sink:   snk,
		dead:   dead,
		m:      m,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("dispatch"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start begins the polling loop.
func (d *Dispatcher) Start() {
	go d.tickLoop()
	d.logger.Info("dispatcher started", zap.Duration("tick_interval", d.config.TickInterval))
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (d *Dispatcher) Stop() {
	d.cancel()
	<-d.done
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) tickLoop() {
	defer close(d.done)

	ticker := time.NewTicker(d.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.Tick(time.Now())
		}
	}
}

// Tick processes every entry due at now: hand it to the sink, then mark it
// sent. Sink failures are logged and dead-lettered but still mark the
// entry sent, keeping delivery at-most-once.
func (d *Dispatcher) Tick(now time.Time) {
	ctx, span := d.tracer.Start(d.ctx, "dispatch_tick")
	defer span.End()

	start := time.Now()
	due := d.store.Due(now)
	if len(due) == 0 {
		d.observeTick(start)
		return
	}
	span.SetAttributes(attribute.Int("due_count", len(due)))

	for _, e := range due {
		d.dispatchEntry(ctx, e)
	}
	d.observeTick(start)
}

func (d *Dispatcher) dispatchEntry(ctx context.Context, e schedule.Entry) {
	ctx, span := d.tracer.Start(ctx, "dispatch_entry",
		trace.WithAttributes(
			attribute.String("entry_id", e.ID),
			attribute.String("type", string(e.Type)),
			attribute.String("rule", e.Meta.Rule),
		))
	defer span.End()

	err := d.sink.Dispatch(ctx, e)
	if err != nil {
		span.RecordError(err)
		d.logger.Warn("sink dispatch failed",
			zap.String("entry_id", e.ID),
			zap.String("type", string(e.Type)),
			zap.Error(err))
		if d.m != nil {
			d.m.DispatchFailures.Inc()
		}
		if d.dead != nil {
			if dlErr := d.dead.Record(ctx, e, err); dlErr != nil {
				d.logger.Error("dead letter record failed", zap.String("entry_id", e.ID), zap.Error(dlErr))
			}
		}
	}

	// Marked regardless of the sink outcome: no retry path exists, and a
	// duplicate delivery is worse than a missed one here.
	d.store.MarkSent(e.ID, time.Now())
	if d.m != nil {
		d.m.EntriesDispatched.Inc()
	}
	d.logger.Debug("entry dispatched",
		zap.String("entry_id", e.ID),
		zap.String("type", string(e.Type)),
		zap.Bool("sink_ok", err == nil))
}

func (d *Dispatcher) observeTick(start time.Time) {
	if d.m == nil {
		return
	}
	d.m.TickDuration.Observe(time.Since(start).Seconds())
	d.m.PendingEntries.Set(float64(d.store.PendingCount()))
}
