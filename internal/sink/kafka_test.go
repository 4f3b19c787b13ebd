package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/upmed/go-remind/internal/domain/schedule"
	"github.com/upmed/go-remind/pkg/workerpool"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	fail      bool
}

func (p *fakePublisher) Publish(_ context.Context, _ string, key string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, key)
	return nil
}

type fakeDeadLetters struct {
	mu       sync.Mutex
	recorded []string
}

func (d *fakeDeadLetters) Record(_ context.Context, e schedule.Entry, _ error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recorded = append(d.recorded, e.ID)
	return nil
}

func testKafkaConfig() KafkaConfig {
	cfg := DefaultKafkaConfig()
	cfg.RatePerSec = 0
	cfg.Pool = workerpool.Config{Workers: 2, QueueSize: 16, GracefulShutdownTimeout: 2 * time.Second}
	return cfg
}

func TestKafkaSinkPublishes(t *testing.T) {
	pub := &fakePublisher{}
	dead := &fakeDeadLetters{}
	s := NewKafkaSink(pub, dead, testKafkaConfig(), zap.NewNop())
	s.Start()

	fireAt := time.Now()
	err := s.Dispatch(context.Background(), schedule.Entry{
		ID:      "entry-1",
		FireAt:  &fireAt,
		Type:    schedule.TypeMedication,
		Message: "타이레놀 1정 복용 시간이에요, 꼭이요!",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	s.Stop()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.published) != 1 || pub.published[0] != "entry-1" {
		t.Fatalf("published = %v, want [entry-1]", pub.published)
	}
	if len(dead.recorded) != 0 {
		t.Fatalf("unexpected dead letters: %v", dead.recorded)
	}
}

func TestKafkaSinkDeadLettersOnPublishFailure(t *testing.T) {
	pub := &fakePublisher{fail: true}
	dead := &fakeDeadLetters{}
	s := NewKafkaSink(pub, dead, testKafkaConfig(), zap.NewNop())
	s.Start()

	if err := s.Dispatch(context.Background(), schedule.Entry{ID: "entry-2"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	s.Stop()

	dead.mu.Lock()
	defer dead.mu.Unlock()
	if len(dead.recorded) != 1 || dead.recorded[0] != "entry-2" {
		t.Fatalf("dead letters = %v, want [entry-2]", dead.recorded)
	}
}

func TestKafkaSinkRejectsWhenQueueFull(t *testing.T) {
	cfg := testKafkaConfig()
	cfg.Pool.Workers = 1
	cfg.Pool.QueueSize = 1
	s := NewKafkaSink(&fakePublisher{}, nil, cfg, zap.NewNop())
	// Not started: the single queue slot fills and the next submit fails.

	if err := s.Dispatch(context.Background(), schedule.Entry{ID: "a"}); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	if err := s.Dispatch(context.Background(), schedule.Entry{ID: "b"}); err == nil {
		t.Fatal("expected queue-full error")
	}
}
