// Package eventloop is the public, generic-typed entry point for the
// in-process pub/sub dispatcher: type-safe Subscribe/Publish wrappers over
// the type-erased dispatch core in core/dispatcher, plus lifecycle and
// timer/statistics passthroughs.
package eventloop

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/coachpo/eventloop/config"
	"github.com/coachpo/eventloop/core/dispatcher"
	"github.com/coachpo/eventloop/internal/event"
	"github.com/coachpo/eventloop/internal/observability"
	"github.com/coachpo/eventloop/internal/stats"
)

// Re-exported types so callers never import internal packages directly.
type (
	Priority          = event.Priority
	SubscriptionID    = event.SubscriptionID
	TaskID            = event.TaskID
	Filter            = event.Filter
	FilterFunc        = event.FilterFunc
	Snapshot          = stats.Snapshot
	QueueSizes        = stats.QueueSizes
	TelemetryEvent    = observability.TelemetryEvent
	TelemetryBus      = observability.TelemetryBus
	DeadLetterQueue   = observability.DeadLetterQueue
	DispatchDeps      = dispatcher.Options
)

// Priority levels, re-exported for convenience.
const (
	Low      = event.Low
	Normal   = event.Normal
	High     = event.High
	Critical = event.Critical
)

// EventLoop is a single dispatcher instance: subscribe handlers by payload
// type, publish typed payloads, schedule timer work, and run the consumer
// loop. Multiple independent instances may coexist in one process.
type EventLoop struct {
	loop *dispatcher.Loop
}

// Deps carries the optional collaborators an EventLoop wires beyond its
// LoopConfig: a Prometheus registerer (used only when cfg.PrometheusEnabled),
// an OpenTelemetry tracer for per-envelope dispatch spans, and a telemetry
// bus subscribers can use to observe failures live rather than polling the
// dead-letter queue.
type Deps struct {
	Registerer   prometheus.Registerer
	Tracer       trace.Tracer
	TelemetryBus observability.TelemetryBus
}

// New constructs an EventLoop from cfg and optional deps.
func New(cfg config.LoopConfig, deps Deps) *EventLoop {
	return &EventLoop{
		loop: dispatcher.New(cfg, dispatcher.Options{
			Registerer:   deps.Registerer,
			Tracer:       deps.Tracer,
			TelemetryBus: deps.TelemetryBus,
		}),
	}
}

// ID returns this instance's correlation identifier.
func (l *EventLoop) ID() string { return l.loop.ID() }

// SubscribeOption configures a Subscribe[E] call.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	minPriority event.Priority
}

// WithMinPriority sets the subscription's minimum priority gate. Default is
// Normal.
func WithMinPriority(p Priority) SubscribeOption {
	return func(c *subscribeConfig) { c.minPriority = p }
}

// PublishOption configures a Publish[E]/PublishAfter[E] call.
type PublishOption func(*publishConfig)

type publishConfig struct {
	priority event.Priority
}

// WithPriority sets the published envelope's priority. Default is Normal.
func WithPriority(p Priority) PublishOption {
	return func(c *publishConfig) { c.priority = p }
}

// Subscribe registers handler for payload type E, returning its strictly
// positive, never-reused subscription id. Registration order is dispatch
// order among subscriptions of the same category.
func Subscribe[E any](l *EventLoop, handler func(payload E) error, opts ...SubscribeOption) SubscriptionID {
	cfg := subscribeConfig{minPriority: event.Normal}
	for _, opt := range opts {
		opt(&cfg)
	}
	cat := event.CategoryOf[E]()
	return l.loop.Subscribe(cat, func(payload any) error {
		typed, ok := payload.(E)
		if !ok {
			return nil
		}
		return handler(typed)
	}, cfg.minPriority)
}

// Unsubscribe removes id from E's subscription list. Returns false if id was
// never registered under E.
func Unsubscribe[E any](l *EventLoop, id SubscriptionID) bool {
	return l.loop.Unsubscribe(event.CategoryOf[E](), id)
}

// AddFilter appends f to id's filter chain under E. Returns false if id is
// unknown under E.
func AddFilter[E any](l *EventLoop, id SubscriptionID, f Filter) bool {
	return l.loop.AddFilter(event.CategoryOf[E](), id, f)
}

// Publish admits payload as a new event of type E. Publish never blocks: at
// capacity, the envelope is tail-dropped and counted in DroppedEvents.
func Publish[E any](l *EventLoop, payload E, opts ...PublishOption) {
	cfg := publishConfig{priority: event.Normal}
	for _, opt := range opts {
		opt(&cfg)
	}
	l.loop.Publish(event.CategoryOf[E](), payload, cfg.priority)
}

// PublishAfter schedules payload for admission after delay via the timer
// heap, returning the timer entry's task id.
func PublishAfter[E any](l *EventLoop, delay time.Duration, payload E, opts ...PublishOption) TaskID {
	cfg := publishConfig{priority: event.Normal}
	for _, opt := range opts {
		opt(&cfg)
	}
	return l.loop.PublishAfter(event.CategoryOf[E](), delay, payload, cfg.priority)
}

// ScheduleTask enqueues a one-shot task due at now+delay.
func (l *EventLoop) ScheduleTask(delay time.Duration, fn func() error) TaskID {
	return l.loop.ScheduleTask(delay, fn)
}

// ScheduleRepeating enqueues a repeating task, first due at now+interval,
// then at each previous_due+interval with missed ticks coalesced.
func (l *EventLoop) ScheduleRepeating(interval time.Duration, fn func() error) TaskID {
	return l.loop.ScheduleRepeating(interval, fn)
}

// CancelTask marks id cancelled. A true return guarantees the task will not
// execute (or, for repeating tasks, will fire no further).
func (l *EventLoop) CancelTask(id TaskID) bool {
	return l.loop.CancelTask(id)
}

// SetMaxQueueSize adjusts the event queue's admission bound for future
// publications only.
func (l *EventLoop) SetMaxQueueSize(n int) {
	l.loop.SetMaxQueueSize(n)
}

// QueueSizes samples the current event queue and timer heap depths.
func (l *EventLoop) QueueSizes() QueueSizes {
	return l.loop.QueueSizes()
}

// EnableStatistics toggles counter collection; while disabled, counters are
// frozen rather than reset.
func (l *EventLoop) EnableStatistics(enabled bool) {
	l.loop.EnableStatistics(enabled)
}

// ResetStatistics zeros every counter.
func (l *EventLoop) ResetStatistics() {
	l.loop.ResetStatistics()
}

// Statistics returns a point-in-time snapshot of published/dropped/processed/
// failed counters.
func (l *EventLoop) Statistics() Snapshot {
	return l.loop.Statistics()
}

// RuntimeMetrics exposes a per-category diagnostic breakdown alongside the
// authoritative Statistics counters.
func (l *EventLoop) RuntimeMetrics() stats.CategoryBreakdown {
	return l.loop.RuntimeMetrics()
}

// DeadLetters drains the bounded record of recent handler/task failures kept
// for operator diagnosis.
func (l *EventLoop) DeadLetters() []TelemetryEvent {
	return l.loop.DeadLetters()
}

// Run drives the dispatch loop until StopLoop is called, blocking the
// caller. Run must be called from at most one goroutine at a time; a
// concurrent or post-stop call returns a misuse error immediately. Once Run
// returns after a stop, this instance is single-shot.
func (l *EventLoop) Run() error {
	return l.loop.Run()
}

// StopLoop requests the dispatcher stop after finishing the envelope it is
// currently processing. Idempotent.
func (l *EventLoop) StopLoop() {
	l.loop.StopLoop()
}

// IsRunning reports whether Run is currently executing on some goroutine.
func (l *EventLoop) IsRunning() bool {
	return l.loop.IsRunning()
}
