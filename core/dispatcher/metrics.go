// Package dispatcher implements the event loop's consumer loop: the
// single-goroutine state machine that drains the timer heap and event
// queue, applies the priority gate and filter chain, and invokes handlers
// under a failure-isolation boundary.
package dispatcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics tracks dispatch-cycle and per-subscription instrumentation
// for a single Loop, grounded on the teacher's FanoutMetrics/ConsumerMetrics
// CounterVec/HistogramVec instrumentation but collapsed into one Prometheus
// registration for the sequential, single-consumer dispatch model: the
// teacher registers dispatch-cycle metrics and per-consumer metrics
// separately because its fan-out spreads work across worker goroutines, but
// a Loop dispatches every subscription for an envelope on the same
// goroutine, so both views belong to the same dispatch cycle and share one
// instrument set here.
type DispatchMetrics struct {
	envelopeDuration *prometheus.HistogramVec
	batchSize        *prometheus.HistogramVec

	subInvocations *prometheus.CounterVec
	subPanics      *prometheus.CounterVec
	subFiltered    *prometheus.CounterVec
	subDuration    *prometheus.HistogramVec
}

// NewDispatchMetrics constructs and registers dispatch metric instruments
// against reg. reg may be nil to use the default registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &DispatchMetrics{
		envelopeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "eventloop",
				Subsystem: "dispatcher",
				Name:      "envelope_seconds",
				Help:      "Time to dispatch a single envelope to every matching subscription.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"category"},
		),
		batchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "eventloop",
				Subsystem: "dispatcher",
				Name:      "batch_size",
				Help:      "Number of envelopes drained from the queue per dispatch cycle.",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
			},
			[]string{},
		),
		subInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventloop",
				Subsystem: "dispatcher",
				Name:      "subscription_invocations_total",
				Help:      "Total number of handler invocations per subscription.",
			},
			[]string{"subscription"},
		),
		subPanics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventloop",
				Subsystem: "dispatcher",
				Name:      "subscription_panics_total",
				Help:      "Total number of handler panics recovered per subscription.",
			},
			[]string{"subscription"},
		),
		subFiltered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eventloop",
				Subsystem: "dispatcher",
				Name:      "subscription_filtered_total",
				Help:      "Total number of envelopes skipped by the priority gate or filter chain, per subscription.",
			},
			[]string{"subscription"},
		),
		subDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "eventloop",
				Subsystem: "dispatcher",
				Name:      "subscription_processing_seconds",
				Help:      "Histogram of handler processing durations per subscription.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"subscription"},
		),
	}
	reg.MustRegister(
		m.envelopeDuration, m.batchSize,
		m.subInvocations, m.subPanics, m.subFiltered, m.subDuration,
	)
	return m
}

// ObserveEnvelope records how long it took to offer one envelope to every
// subscription in its category's list.
func (m *DispatchMetrics) ObserveEnvelope(category string, d time.Duration) {
	if m == nil || d < 0 {
		return
	}
	m.envelopeDuration.WithLabelValues(category).Observe(d.Seconds())
}

// ObserveBatch records how many envelopes a single dispatch cycle drained.
func (m *DispatchMetrics) ObserveBatch(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.batchSize.WithLabelValues().Observe(float64(n))
}

// ObserveInvocation increments the invocation counter for the subscription.
func (m *DispatchMetrics) ObserveInvocation(subscriptionID string) {
	if m == nil {
		return
	}
	m.subInvocations.WithLabelValues(subscriptionID).Inc()
}

// ObserveSubDuration records the handler processing duration for the
// subscription.
func (m *DispatchMetrics) ObserveSubDuration(subscriptionID string, d time.Duration) {
	if m == nil || d < 0 {
		return
	}
	m.subDuration.WithLabelValues(subscriptionID).Observe(d.Seconds())
}

// ObservePanic increments the panic counter for the subscription.
func (m *DispatchMetrics) ObservePanic(subscriptionID string) {
	if m == nil {
		return
	}
	m.subPanics.WithLabelValues(subscriptionID).Inc()
}

// ObserveFiltered increments the filtered counter for the subscription.
func (m *DispatchMetrics) ObserveFiltered(subscriptionID string) {
	if m == nil {
		return
	}
	m.subFiltered.WithLabelValues(subscriptionID).Inc()
}

// InvocationsCounter exposes the invocation counter for testing and diagnostics.
func (m *DispatchMetrics) InvocationsCounter(subscriptionID string) prometheus.Counter {
	return m.subInvocations.WithLabelValues(subscriptionID)
}

// PanicCounter exposes the panic counter for testing and diagnostics.
func (m *DispatchMetrics) PanicCounter(subscriptionID string) prometheus.Counter {
	return m.subPanics.WithLabelValues(subscriptionID)
}

// FilteredCounter exposes the filtered counter for testing and diagnostics.
func (m *DispatchMetrics) FilteredCounter(subscriptionID string) prometheus.Counter {
	return m.subFiltered.WithLabelValues(subscriptionID)
}

// SubDurationCollector exposes the per-subscription histogram collector for
// testing and diagnostics.
func (m *DispatchMetrics) SubDurationCollector(subscriptionID string) prometheus.Observer {
	return m.subDuration.WithLabelValues(subscriptionID)
}
