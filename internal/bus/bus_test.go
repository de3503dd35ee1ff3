package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/aiengineer/rageval/internal/pkg/errors"
)

func waitTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for events")
	}
}

func TestNewEvent(t *testing.T) {
	e := NewEvent("evaluation.completed", "evaluator", map[string]int{"queries": 3})

	if e.ID == "" {
		t.Error("NewEvent() left ID empty")
	}
	if e.Type != "evaluation.completed" || e.Source != "evaluator" {
		t.Errorf("NewEvent() = %+v", e)
	}
	if e.Timestamp == 0 {
		t.Error("NewEvent() left Timestamp zero")
	}
	if other := NewEvent("x", "y", nil); other.ID == e.ID {
		t.Error("NewEvent() returned duplicate IDs")
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var received atomic.Int32
	var wg sync.WaitGroup

	err := bus.Subscribe(context.Background(), TopicEvaluationCompleted, func(ctx context.Context, event Event) error {
		received.Add(1)
		wg.Done()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	wg.Add(3)
	for i := 0; i < 3; i++ {
		if err := bus.Publish(context.Background(), TopicEvaluationCompleted, NewEvent("test", "test", i)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	waitTimeout(t, &wg)

	if got := received.Load(); got != 3 {
		t.Errorf("Received %d events, want 3", got)
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var count1, count2 atomic.Int32
	var wg sync.WaitGroup

	_ = bus.Subscribe(context.Background(), "t", func(ctx context.Context, event Event) error {
		count1.Add(1)
		wg.Done()
		return nil
	})
	_ = bus.Subscribe(context.Background(), "t", func(ctx context.Context, event Event) error {
		count2.Add(1)
		wg.Done()
		return errors.New("handler failure is only logged")
	})

	wg.Add(2)
	if err := bus.Publish(context.Background(), "t", NewEvent("test", "test", nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	waitTimeout(t, &wg)

	if count1.Load() != 1 || count2.Load() != 1 {
		t.Errorf("counts = %d, %d, want 1, 1", count1.Load(), count2.Load())
	}
}

func TestMemoryBus_NoSubscribers(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	if err := bus.Publish(context.Background(), "nobody.listens", Event{ID: "x"}); err != nil {
		t.Errorf("Publish() with no subscribers error = %v", err)
	}
}

func TestMemoryBus_HandlerOutlivesPublisherContext(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var wg sync.WaitGroup
	var ctxErr error
	_ = bus.Subscribe(context.Background(), "t", func(ctx context.Context, event Event) error {
		time.Sleep(10 * time.Millisecond)
		ctxErr = ctx.Err()
		wg.Done()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	wg.Add(1)
	_ = bus.Publish(ctx, "t", Event{ID: "x"})
	cancel()
	waitTimeout(t, &wg)

	if ctxErr != nil {
		t.Errorf("handler context error = %v, want nil", ctxErr)
	}
}

func TestMemoryBus_Close(t *testing.T) {
	bus := NewMemoryBus(nil)

	var finished atomic.Bool
	_ = bus.Subscribe(context.Background(), "t", func(ctx context.Context, event Event) error {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	_ = bus.Publish(context.Background(), "t", Event{ID: "x"})

	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !finished.Load() {
		t.Error("Close() returned before in-flight handler finished")
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	err := bus.Publish(context.Background(), "t", Event{ID: "y"})
	if apperrors.CodeOf(err) != apperrors.CodeUnavailable {
		t.Errorf("Publish() after Close error = %v, want SERVICE_UNAVAILABLE", err)
	}
	err = bus.Subscribe(context.Background(), "t", func(context.Context, Event) error { return nil })
	if apperrors.CodeOf(err) != apperrors.CodeUnavailable {
		t.Errorf("Subscribe() after Close error = %v, want SERVICE_UNAVAILABLE", err)
	}
}

func TestMemoryBus_Concurrent(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	var received atomic.Int32
	var handled sync.WaitGroup
	_ = bus.Subscribe(context.Background(), "t", func(ctx context.Context, event Event) error {
		received.Add(1)
		handled.Done()
		return nil
	})

	const publishers, each = 10, 20
	handled.Add(publishers * each)

	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				_ = bus.Publish(context.Background(), "t", NewEvent("test", "test", j))
			}
		}()
	}
	wg.Wait()
	waitTimeout(t, &handled)

	if got := received.Load(); got != publishers*each {
		t.Errorf("received %d, want %d", got, publishers*each)
	}
}

func TestNew(t *testing.T) {
	b, err := New(Config{Type: "memory"}, nil)
	if err != nil {
		t.Fatalf("New(memory) error = %v", err)
	}
	defer b.Close()
	if _, ok := b.(*MemoryBus); !ok {
		t.Errorf("New(memory) = %T, want *MemoryBus", b)
	}

	if _, err := New(Config{Type: "kafka"}, nil); !apperrors.IsValidation(err) {
		t.Errorf("New(kafka without brokers) error = %v, want VALIDATION_ERROR", err)
	}
	if _, err := New(Config{Type: "nats"}, nil); !apperrors.IsValidation(err) {
		t.Errorf("New(nats) error = %v, want VALIDATION_ERROR", err)
	}
}
