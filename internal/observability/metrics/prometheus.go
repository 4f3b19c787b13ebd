// Package metrics provides Prometheus metrics for the reminder service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	RunsAccepted          prometheus.Counter
	RunsRejected          prometheus.Counter
	EntriesSynthesized    prometheus.Counter
	EntriesDispatched     prometheus.Counter
	DispatchFailures      prometheus.Counter
	PendingEntries        prometheus.Gauge
	TickDuration          prometheus.Histogram
	HabitMessagesConsumed prometheus.Counter
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		RunsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminder_runs_accepted_total",
			Help: "Total schedule runs accepted",
		}),
		RunsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminder_runs_rejected_total",
			Help: "Total schedule runs rejected (validation or duplicate)",
		}),
		EntriesSynthesized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminder_entries_synthesized_total",
			Help: "Total schedule entries produced by the synthesizer",
		}),
		EntriesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminder_entries_dispatched_total",
			Help: "Total entries handed to the notification sink",
		}),
		DispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminder_dispatch_failures_total",
			Help: "Total sink dispatch failures (entries still marked sent)",
		}),
		PendingEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reminder_entries_pending",
			Help: "Unsent entries with a resolved fire time",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reminder_dispatch_tick_duration_seconds",
			Help:    "Dispatch tick duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		HabitMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminder_habit_messages_consumed_total",
			Help: "Total habit reminders consumed from the intake topic",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.RunsAccepted,
		m.RunsRejected,
		m.EntriesSynthesized,
		m.EntriesDispatched,
		m.DispatchFailures,
		m.PendingEntries,
		m.TickDuration,
		m.HabitMessagesConsumed,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
