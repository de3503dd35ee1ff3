package bus

import (
	"context"
	"testing"
	"time"
)

type recordedPublish struct {
	topic string
	err   error
}

type fakeRecorder struct {
	calls []recordedPublish
}

func (r *fakeRecorder) RecordBusPublish(topic string, _ time.Duration, err error) {
	r.calls = append(r.calls, recordedPublish{topic: topic, err: err})
}

func TestInstrumentedBus_RecordsPublish(t *testing.T) {
	inner := NewMemoryBus(nil)
	rec := &fakeRecorder{}
	b := NewInstrumentedBus(inner, rec)
	ctx := context.Background()

	if err := b.Publish(ctx, TopicEvaluationCompleted, NewEvent(TopicEvaluationCompleted, "test", nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Publish(ctx, TopicJudgmentsUpdated, NewEvent(TopicJudgmentsUpdated, "test", nil)); err == nil {
		t.Fatal("Publish() after Close error = nil")
	}

	if len(rec.calls) != 2 {
		t.Fatalf("recorded %d publishes, want 2", len(rec.calls))
	}
	if rec.calls[0].topic != TopicEvaluationCompleted || rec.calls[0].err != nil {
		t.Errorf("first call = %+v", rec.calls[0])
	}
	if rec.calls[1].topic != TopicJudgmentsUpdated || rec.calls[1].err == nil {
		t.Errorf("second call = %+v", rec.calls[1])
	}
}

func TestInstrumentedBus_NilRecorder(t *testing.T) {
	b := NewInstrumentedBus(NewMemoryBus(nil), nil)
	defer b.Close()

	if err := b.Publish(context.Background(), "t", NewEvent("t", "test", nil)); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
}
