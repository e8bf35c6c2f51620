// Package stats implements the event loop's Statistics component: the
// always-on, atomically-updated counters the spec mandates, plus an
// independently toggleable Prometheus export of the same events, grounded on
// the teacher's FanoutMetrics/ConsumerMetrics CounterVec/HistogramVec
// instrumentation pattern.
package stats

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is an instantaneous copy of the Statistics counters.
type Snapshot struct {
	PublishedEvents uint64
	DroppedEvents   uint64
	ProcessedEvents uint64
	FailedEvents    uint64
}

// CategoryBreakdown captures per-category diagnostic detail alongside the
// aggregate Snapshot counters: the latest observed queue depth, the running
// drop count, and accumulated handler execution time, each keyed by event
// category. Operators use this for a breakdown Snapshot's process-wide
// totals can't provide.
type CategoryBreakdown struct {
	QueueDepth           map[string]int   `json:"queue_depth"`
	DroppedEvents        map[string]int   `json:"dropped_events"`
	HandlerDurationMicro map[string]int64 `json:"handler_duration_micro"`
}

// QueueSizes is an instantaneous sample of the event queue and timer heap
// depths.
type QueueSizes struct {
	EventQueueSize int
	TimerHeapSize  int
}

// Statistics holds the authoritative, always-consistent counters described
// in the spec's Statistics component. Reads are safe from any goroutine;
// writes are expected only from the dispatcher goroutine, except for
// Enable/Reset which may be called from any goroutine.
type Statistics struct {
	enabled atomic.Bool

	published atomic.Uint64
	dropped   atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64

	breakdownMu          sync.Mutex
	queueDepth           map[string]int
	droppedByCategory    map[string]int
	handlerDurationMicro map[string]int64

	prom *PrometheusExporter
}

// New constructs a Statistics collector, enabled by default. prom may be nil
// to skip Prometheus export entirely.
func New(prom *PrometheusExporter) *Statistics {
	s := &Statistics{
		prom:                 prom,
		queueDepth:           make(map[string]int),
		droppedByCategory:    make(map[string]int),
		handlerDurationMicro: make(map[string]int64),
	}
	s.enabled.Store(true)
	return s
}

// Enable toggles collection. While disabled, counters are frozen rather than
// reset; Prometheus export is likewise suppressed while disabled.
func (s *Statistics) Enable(on bool) {
	s.enabled.Store(on)
}

// Enabled reports whether collection is currently active.
func (s *Statistics) Enabled() bool {
	return s.enabled.Load()
}

// Reset zeros every counter, each with its own atomic store. The four stores
// are not one transaction: an increment that races with Reset may land
// before or after any individual store.
func (s *Statistics) Reset() {
	s.published.Store(0)
	s.dropped.Store(0)
	s.processed.Store(0)
	s.failed.Store(0)
}

// RecordPublished increments the published counter for category, unless
// statistics are disabled.
func (s *Statistics) RecordPublished(category string) {
	if !s.enabled.Load() {
		return
	}
	s.published.Add(1)
	if s.prom != nil {
		s.prom.published.WithLabelValues(category).Inc()
	}
}

// RecordDropped increments the dropped counter for category.
func (s *Statistics) RecordDropped(category string) {
	if !s.enabled.Load() {
		return
	}
	s.dropped.Add(1)
	if s.prom != nil {
		s.prom.dropped.WithLabelValues(category).Inc()
	}
	s.breakdownMu.Lock()
	s.droppedByCategory[category]++
	s.breakdownMu.Unlock()
}

// RecordQueueDepth tracks the latest queue depth observed for a category,
// for the CategoryBreakdown diagnostic view.
func (s *Statistics) RecordQueueDepth(category string, depth int) {
	s.breakdownMu.Lock()
	s.queueDepth[category] = depth
	s.breakdownMu.Unlock()
}

// AddHandlerDurationMicro accumulates handler execution time for a category,
// for the CategoryBreakdown diagnostic view.
func (s *Statistics) AddHandlerDurationMicro(category string, delta int64) {
	s.breakdownMu.Lock()
	s.handlerDurationMicro[category] += delta
	s.breakdownMu.Unlock()
}

// Breakdown copies the current per-category diagnostic state for reporting.
func (s *Statistics) Breakdown() CategoryBreakdown {
	s.breakdownMu.Lock()
	defer s.breakdownMu.Unlock()
	out := CategoryBreakdown{
		QueueDepth:           make(map[string]int, len(s.queueDepth)),
		DroppedEvents:        make(map[string]int, len(s.droppedByCategory)),
		HandlerDurationMicro: make(map[string]int64, len(s.handlerDurationMicro)),
	}
	for k, v := range s.queueDepth {
		out.QueueDepth[k] = v
	}
	for k, v := range s.droppedByCategory {
		out.DroppedEvents[k] = v
	}
	for k, v := range s.handlerDurationMicro {
		out.HandlerDurationMicro[k] = v
	}
	return out
}

// RecordProcessed increments the processed counter for category.
func (s *Statistics) RecordProcessed(category string) {
	if !s.enabled.Load() {
		return
	}
	s.processed.Add(1)
	if s.prom != nil {
		s.prom.processed.WithLabelValues(category).Inc()
	}
}

// RecordFailed increments the failed counter for category.
func (s *Statistics) RecordFailed(category string) {
	if !s.enabled.Load() {
		return
	}
	s.failed.Add(1)
	if s.prom != nil {
		s.prom.failed.WithLabelValues(category).Inc()
	}
}

// ObserveQueueSizes publishes the current queue/heap depths to the
// Prometheus gauges, if export is configured. This is purely a secondary
// export; QueueSizes() on the public API reads the live structures directly.
func (s *Statistics) ObserveQueueSizes(eventQueueSize, timerHeapSize int) {
	if s.prom == nil {
		return
	}
	s.prom.queueSize.Set(float64(eventQueueSize))
	s.prom.timerHeapSize.Set(float64(timerHeapSize))
}

// Snapshot returns a consistent-enough point-in-time copy of the counters.
// Each field is read independently via atomic load; the spec does not
// require cross-counter atomicity.
func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		PublishedEvents: s.published.Load(),
		DroppedEvents:   s.dropped.Load(),
		ProcessedEvents: s.processed.Load(),
		FailedEvents:    s.failed.Load(),
	}
}

// PrometheusExporter registers and holds the CounterVec/GaugeVec instruments
// mirroring the plain Statistics counters, labeled by event category.
type PrometheusExporter struct {
	published     *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	processed     *prometheus.CounterVec
	failed        *prometheus.CounterVec
	queueSize     prometheus.Gauge
	timerHeapSize prometheus.Gauge
}

// NewPrometheusExporter constructs and registers the eventloop metric
// instruments against reg. reg may be nil to use the default registerer.
func NewPrometheusExporter(reg prometheus.Registerer) *PrometheusExporter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	e := &PrometheusExporter{
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventloop",
				Name:      "published_total",
				Help:      "Total number of events successfully admitted to the queue.",
			},
			[]string{"category"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventloop",
				Name:      "dropped_total",
				Help:      "Total number of events dropped at admission (queue capacity or rate limit).",
			},
			[]string{"category"},
		),
		processed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventloop",
				Name:      "processed_total",
				Help:      "Total number of events drained and dispatched.",
			},
			[]string{"category"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventloop",
				Name:      "failed_total",
				Help:      "Total number of handler or task invocations that failed.",
			},
			[]string{"category"},
		),
		queueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "eventloop",
				Name:      "queue_size",
				Help:      "Current event queue depth.",
			},
		),
		timerHeapSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "eventloop",
				Name:      "timer_heap_size",
				Help:      "Current timer heap depth.",
			},
		),
	}
	reg.MustRegister(e.published, e.dropped, e.processed, e.failed, e.queueSize, e.timerHeapSize)
	return e
}
