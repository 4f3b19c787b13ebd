// Package main provides the reminder service entry point: HTTP API,
// habit intake and the dispatch loop in one process.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/upmed/go-remind/internal/api/handlers"
	"github.com/upmed/go-remind/internal/api/middleware"
	"github.com/upmed/go-remind/internal/infrastructure/postgres"
	"github.com/upmed/go-remind/internal/infrastructure/redpanda"
	"github.com/upmed/go-remind/internal/observability/metrics"
	"github.com/upmed/go-remind/internal/observability/tracing"
	"github.com/upmed/go-remind/internal/scheduling/dispatch"
	"github.com/upmed/go-remind/internal/scheduling/intake"
	"github.com/upmed/go-remind/internal/scheduling/store"
	"github.com/upmed/go-remind/internal/scheduling/synthesizer"
	"github.com/upmed/go-remind/internal/sink"
	"github.com/upmed/go-remind/pkg/circuitbreaker"
	"github.com/upmed/go-remind/pkg/idempotency"
)

// Config holds application configuration
type Config struct {
	Port         string
	Timezone     string
	KafkaBrokers []string
	DatabaseURL  string
	OTLPEndpoint string
	APIKeys      map[string]string
	TickInterval time.Duration
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := loadConfig()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatal("invalid timezone", zap.String("timezone", cfg.Timezone), zap.Error(err))
	}

	ctx := context.Background()

	tracingCfg := tracing.DefaultConfig("reminderd")
	tracingCfg.OTLPEndpoint = cfg.OTLPEndpoint
	tp, err := tracing.Init(ctx, tracingCfg)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}

	m := metrics.New()
	st := store.New(loc, logger)
	synth := synthesizer.New(loc)

	// Dead letters go to Postgres when configured, otherwise just logs.
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("database ping failed", zap.Error(err))
		}
		logger.Info("connected to database")
	}
	dead := postgres.NewDeadLetterStore(pool, logger)
	if err := dead.EnsureSchema(ctx); err != nil {
		logger.Fatal("dead letter schema failed", zap.Error(err))
	}

	// The sink is the Kafka pipeline when brokers are configured, a log
	// sink otherwise.
	var notifySink sink.Sink
	var kafkaSink *sink.KafkaSink
	var producer *redpanda.Producer
	var consumer *redpanda.Consumer

	if len(cfg.KafkaBrokers) > 0 {
		admin, err := redpanda.NewAdmin(cfg.KafkaBrokers, logger)
		if err != nil {
			logger.Fatal("kafka admin failed", zap.Error(err))
		}
		if err := admin.EnsureTopics(ctx); err != nil {
			logger.Fatal("topic bootstrap failed", zap.Error(err))
		}
		admin.Close()

		producerCfg := redpanda.DefaultProducerConfig()
		producerCfg.Brokers = cfg.KafkaBrokers
		producer, err = redpanda.NewProducer(producerCfg, logger)
		if err != nil {
			logger.Fatal("producer creation failed", zap.Error(err))
		}
		defer producer.Close()

		sinkCfg := sink.DefaultKafkaConfig()
		sinkCfg.OnBreakerChange = func(name string, _, to circuitbreaker.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		}
		kafkaSink = sink.NewKafkaSink(producer, dead, sinkCfg, logger)
		kafkaSink.Start()
		notifySink = kafkaSink

		habitIntake := intake.NewHabitIntake(synth, st, m, logger)
		consumerCfg := redpanda.DefaultConsumerConfig()
		consumerCfg.Brokers = cfg.KafkaBrokers
		consumer, err = redpanda.NewConsumer(consumerCfg, habitIntake.Handle, logger)
		if err != nil {
			logger.Fatal("consumer creation failed", zap.Error(err))
		}
		consumer.Start()
		logger.Info("connected to Redpanda", zap.Strings("brokers", cfg.KafkaBrokers))
	} else {
		notifySink = sink.NewLogSink(logger)
		logger.Info("no brokers configured, using log sink")
	}

	dispatchCfg := dispatch.DefaultConfig()
	dispatchCfg.TickInterval = cfg.TickInterval
	dispatcher := dispatch.New(st, notifySink, dead, m, dispatchCfg, logger)
	dispatcher.Start()

	inbox := idempotency.New(idempotency.DefaultConfig(), logger)
	runHandler := handlers.NewRunHandler(synth, st, inbox, m, logger)
	scheduleHandler := handlers.NewScheduleHandler(st)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Tracing("reminderd"))

	r.Get("/health", handlers.Health)
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKeys))
		r.Mount("/runs", runHandler.Routes())
		r.Mount("/schedules", scheduleHandler.Routes())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting reminder service",
		zap.String("port", cfg.Port),
		zap.String("timezone", cfg.Timezone),
		zap.Duration("tick_interval", cfg.TickInterval))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}

	dispatcher.Stop()
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Error("consumer stop error", zap.Error(err))
		}
	}
	if kafkaSink != nil {
		kafkaSink.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}

func loadConfig() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}

	tz := os.Getenv("TIMEZONE")
	if tz == "" {
		tz = "Asia/Seoul"
	}

	var brokers []string
	if b := os.Getenv("KAFKA_BROKERS"); b != "" {
		for _, s := range strings.Split(b, ",") {
			if s = strings.TrimSpace(s); s != "" {
				brokers = append(brokers, s)
			}
		}
	}

	tick := 5 * time.Second
	if t := os.Getenv("TICK_INTERVAL"); t != "" {
		if d, err := time.ParseDuration(t); err == nil && d > 0 {
			tick = d
		}
	}

	apiKeys := map[string]string{}
	if key := os.Getenv("API_KEY"); key != "" {
		apiKeys[key] = "env-client"
	}

	return Config{
		Port:         port,
		Timezone:     tz,
		KafkaBrokers: brokers,
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		APIKeys:      apiKeys,
		TickInterval: tick,
	}
}

func breakerStateValue(s circuitbreaker.State) float64 {
	switch s {
	case circuitbreaker.StateOpen:
		return 1
	case circuitbreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
