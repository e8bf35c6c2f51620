package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDeadLetterQueueDropsOldestAtCapacity(t *testing.T) {
	q := NewDeadLetterQueue(2)
	q.Offer(TelemetryEvent{EventID: "1"})
	q.Offer(TelemetryEvent{EventID: "2"})
	q.Offer(TelemetryEvent{EventID: "3"})

	drained := q.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 retained events, got %d", len(drained))
	}
	if drained[0].EventID != "2" || drained[1].EventID != "3" {
		t.Fatalf("expected oldest dropped, got %v", drained)
	}
	if q.Len() != 0 {
		t.Fatalf("expected drain to clear the queue")
	}
}

func TestDeadLetterQueueUnboundedWhenCapacityNonPositive(t *testing.T) {
	q := NewDeadLetterQueue(0)
	for i := 0; i < 10; i++ {
		q.Offer(TelemetryEvent{})
	}
	if q.Len() != 10 {
		t.Fatalf("expected unbounded retention, got %d", q.Len())
	}
}

func TestAggregateErrorsNilOnEmptyOrAllNil(t *testing.T) {
	if err := AggregateErrors("op", nil); err != nil {
		t.Fatalf("expected nil for no errors, got %v", err)
	}
	if err := AggregateErrors("op", []error{nil, nil}); err != nil {
		t.Fatalf("expected nil when all errors are nil, got %v", err)
	}
}

func TestAggregateErrorsJoinsNonNil(t *testing.T) {
	e1 := errors.New("first")
	e2 := errors.New("second")
	err := AggregateErrors("dispatch", []error{e1, nil, e2})
	if err == nil {
		t.Fatal("expected non-nil aggregated error")
	}
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("expected aggregated error to wrap both causes, got %v", err)
	}
}

func TestLoggerDefaultsToNoopAndRespectsSetLogger(t *testing.T) {
	SetLogger(nil)
	Log().Info("should not panic")

	var captured []string
	SetLogger(recordingLogger{record: &captured})
	Log().Error("boom", Field{Key: "k", Value: "v"})
	if len(captured) != 1 || captured[0] != "boom" {
		t.Fatalf("expected custom logger invoked, got %v", captured)
	}
	SetLogger(nil)
}

type recordingLogger struct{ record *[]string }

func (r recordingLogger) Debug(msg string, _ ...Field) { *r.record = append(*r.record, msg) }
func (r recordingLogger) Info(msg string, _ ...Field)  { *r.record = append(*r.record, msg) }
func (r recordingLogger) Warn(msg string, _ ...Field)  { *r.record = append(*r.record, msg) }
func (r recordingLogger) Error(msg string, _ ...Field) { *r.record = append(*r.record, msg) }

func TestInMemoryTelemetryBusDeliversToSubscribers(t *testing.T) {
	bus := NewInMemoryTelemetryBus(1)
	defer bus.Close()

	ch, err := bus.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	evt := TelemetryEvent{EventID: "e1", Type: TelemetryEventHandlerFailed, Category: "widget"}
	if err := bus.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-ch:
		if got.EventID != "e1" {
			t.Fatalf("expected delivered event id e1, got %q", got.EventID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for telemetry delivery")
	}
}

func TestInMemoryTelemetryBusPublishWithNoSubscribersIsNoop(t *testing.T) {
	bus := NewInMemoryTelemetryBus(1)
	defer bus.Close()
	if err := bus.Publish(context.Background(), TelemetryEvent{}); err != nil {
		t.Fatalf("expected no-op publish with no subscribers, got %v", err)
	}
}

func TestInMemoryTelemetryBusCloseStopsDelivery(t *testing.T) {
	bus := NewInMemoryTelemetryBus(1)
	ch, err := bus.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	bus.Close()
	bus.Close() // idempotent

	if _, ok := <-ch; ok {
		t.Fatalf("expected subscriber channel closed after bus Close")
	}
}
