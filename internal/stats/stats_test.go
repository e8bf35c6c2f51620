package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordIncrementsOnlyWhenEnabled(t *testing.T) {
	s := New(nil)
	s.RecordPublished("widget")
	s.RecordDropped("widget")
	s.RecordProcessed("widget")
	s.RecordFailed("widget")

	snap := s.Snapshot()
	if snap.PublishedEvents != 1 || snap.DroppedEvents != 1 || snap.ProcessedEvents != 1 || snap.FailedEvents != 1 {
		t.Fatalf("expected each counter at 1, got %+v", snap)
	}

	s.Enable(false)
	s.RecordPublished("widget")
	if s.Snapshot().PublishedEvents != 1 {
		t.Fatalf("expected counters frozen while disabled")
	}
}

func TestResetZeroesAllCounters(t *testing.T) {
	s := New(nil)
	s.RecordPublished("widget")
	s.RecordFailed("widget")
	s.Reset()
	snap := s.Snapshot()
	if snap.PublishedEvents != 0 || snap.FailedEvents != 0 {
		t.Fatalf("expected zeroed counters after Reset, got %+v", snap)
	}
}

func TestResetDoesNotDisableCollection(t *testing.T) {
	s := New(nil)
	s.Reset()
	s.RecordPublished("widget")
	if s.Snapshot().PublishedEvents != 1 {
		t.Fatalf("expected collection still active after Reset")
	}
}

func TestPrometheusExporterMirrorsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	exp := NewPrometheusExporter(reg)
	s := New(exp)

	s.RecordPublished("widget")
	s.RecordPublished("widget")
	s.RecordDropped("widget")

	if got := testutil.ToFloat64(exp.published.WithLabelValues("widget")); got != 2 {
		t.Fatalf("expected published counter 2, got %v", got)
	}
	if got := testutil.ToFloat64(exp.dropped.WithLabelValues("widget")); got != 1 {
		t.Fatalf("expected dropped counter 1, got %v", got)
	}
}

func TestPrometheusExporterSuppressedWhileDisabled(t *testing.T) {
	reg := prometheus.NewRegistry()
	exp := NewPrometheusExporter(reg)
	s := New(exp)
	s.Enable(false)
	s.RecordPublished("widget")

	if got := testutil.ToFloat64(exp.published.WithLabelValues("widget")); got != 0 {
		t.Fatalf("expected no Prometheus export while disabled, got %v", got)
	}
}

func TestBreakdownIsIndependentCopy(t *testing.T) {
	s := New(nil)
	s.RecordQueueDepth("widget", 3)
	s.RecordDropped("widget")
	s.AddHandlerDurationMicro("widget", 150)

	snap := s.Breakdown()
	if snap.QueueDepth["widget"] != 3 || snap.DroppedEvents["widget"] != 1 || snap.HandlerDurationMicro["widget"] != 150 {
		t.Fatalf("unexpected breakdown: %+v", snap)
	}

	s.RecordQueueDepth("widget", 99)
	if snap.QueueDepth["widget"] != 3 {
		t.Fatalf("expected breakdown snapshot to be an independent copy")
	}
}

func TestObserveQueueSizesSetsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	exp := NewPrometheusExporter(reg)
	s := New(exp)
	s.ObserveQueueSizes(5, 2)

	if got := testutil.ToFloat64(exp.queueSize); got != 5 {
		t.Fatalf("expected queue size gauge 5, got %v", got)
	}
	if got := testutil.ToFloat64(exp.timerHeapSize); got != 2 {
		t.Fatalf("expected timer heap gauge 2, got %v", got)
	}
}
