package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/upmed/go-remind/internal/domain/schedule"
	"github.com/upmed/go-remind/pkg/circuitbreaker"
	"github.com/upmed/go-remind/pkg/workerpool"
)

// Publisher abstracts the broker client the Kafka sink publishes through.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// DeadLetters records push failures that happen after the dispatch loop has
// already marked the entry sent.
type DeadLetters interface {
	Record(ctx context.Context, e schedule.Entry, dispatchErr error) error
}

// KafkaConfig holds configuration for the Kafka sink
type KafkaConfig struct {
	// Topic is the push-notification topic
	Topic string
	// RatePerSec caps publishes per second; zero disables the limiter
	RatePerSec float64
	// Burst is the limiter burst size
	Burst int
	// PublishTimeout bounds a single publish attempt
	PublishTimeout time.Duration
	// Pool bounds the publish fan-out
	Pool workerpool.Config
	// Breaker guards the broker
	Breaker circuitbreaker.Config
	// OnBreakerChange observes breaker transitions, e.g. to feed a gauge
	OnBreakerChange circuitbreaker.StateChangeFunc
}

// DefaultKafkaConfig returns sensible defaults
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Topic:          "reminders.push",
		RatePerSec:     50,
		Burst:          25,
		PublishTimeout: 10 * time.Second,
		Pool:           workerpool.Config{Workers: 4, QueueSize: 512},
		Breaker:        circuitbreaker.DefaultConfig("push-broker"),
	}
}

// KafkaSink publishes reminders to the push topic. Dispatch only enqueues;
// the actual publish happens on the sink's worker pool so a slow broker
// never stalls the dispatch tick. Publish failures are dead-lettered, not
// retried (the entry is already marked sent by then).
type KafkaSink struct {
	publisher Publisher
	breaker   *circuitbreaker.CircuitBreaker
	limiter   *rate.Limiter
	pool      *workerpool.Pool
	dead      DeadLetters
	config    KafkaConfig
	logger    *zap.Logger

	mu       sync.Mutex
	inFlight map[string]schedule.Entry

	consumerDone chan struct{}
}

// NewKafkaSink creates the production sink. dead may be nil.
func NewKafkaSink(publisher Publisher, dead DeadLetters, cfg KafkaConfig, logger *zap.Logger) *KafkaSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultKafkaConfig().Topic
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultKafkaConfig().PublishTimeout
	}

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}

	return &KafkaSink{
		publisher:    publisher,
		breaker:      circuitbreaker.New(cfg.Breaker, logger, cfg.OnBreakerChange),
		limiter:      limiter,
		pool:         workerpool.New(cfg.Pool, logger),
		dead:         dead,
		config:       cfg,
		logger:       logger,
		inFlight:     make(map[string]schedule.Entry),
		consumerDone: make(chan struct{}),
	}
}

// Start launches the publish workers and the failure consumer.
func (s *KafkaSink) Start() {
	s.pool.Start()
	go s.consumeResults()
	s.logger.Info("kafka sink started", zap.String("topic", s.config.Topic))
}

// Stop drains in-flight publishes.
func (s *KafkaSink) Stop() {
	s.pool.Stop()
	<-s.consumerDone
	s.logger.Info("kafka sink stopped")
}

// Dispatch enqueues the entry for publishing. An error here means the
// entry never reached the queue; async publish failures surface through
// the dead-letter recorder instead.
func (s *KafkaSink) Dispatch(_ context.Context, e schedule.Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	s.mu.Lock()
	s.inFlight[e.ID] = e
	s.mu.Unlock()

	err = s.pool.Submit(workerpool.Job{
		ID: e.ID,
		Run: func(ctx context.Context) error {
			return s.publish(ctx, e.ID, payload)
		},
	})
	if err != nil {
		s.mu.Lock()
		delete(s.inFlight, e.ID)
		s.mu.Unlock()
		return fmt.Errorf("enqueue publish: %w", err)
	}
	return nil
}

func (s *KafkaSink) publish(ctx context.Context, key string, payload []byte) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.PublishTimeout)
	defer cancel()

	return s.breaker.Execute(ctx, func() error {
		return s.publisher.Publish(ctx, s.config.Topic, key, payload)
	})
}

func (s *KafkaSink) consumeResults() {
	defer close(s.consumerDone)

	for res := range s.pool.Results() {
		s.mu.Lock()
		entry, ok := s.inFlight[res.JobID]
		delete(s.inFlight, res.JobID)
		s.mu.Unlock()

		if res.Err == nil {
			continue
		}
		s.logger.Warn("push publish failed",
			zap.String("entry_id", res.JobID),
			zap.Error(res.Err))
		if ok && s.dead != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.dead.Record(ctx, entry, res.Err); err != nil {
				s.logger.Error("dead letter record failed", zap.String("entry_id", res.JobID), zap.Error(err))
			}
			cancel()
		}
	}
}
