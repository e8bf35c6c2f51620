package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/coachpo/eventloop/config"
	"github.com/coachpo/eventloop/errs"
	"github.com/coachpo/eventloop/internal/event"
	"github.com/coachpo/eventloop/internal/observability"
	"github.com/coachpo/eventloop/internal/pool"
	"github.com/coachpo/eventloop/internal/queue"
	"github.com/coachpo/eventloop/internal/ratelimit"
	"github.com/coachpo/eventloop/internal/registry"
	"github.com/coachpo/eventloop/internal/stats"
	"github.com/coachpo/eventloop/internal/timer"
)

// Loop is the sole consumer of the event queue and timer heap: the dispatch
// engine described by the spec's Component Design, generalized from the
// teacher's worker-pool fan-out into a sequential dispatch cycle.
type Loop struct {
	id  string
	cfg config.LoopConfig

	registry *registry.Registry
	queue    *queue.Queue
	wheel    *timer.Wheel
	stats    *stats.Statistics

	dispatchMetrics *DispatchMetrics
	dlq             *observability.DeadLetterQueue
	telemetryBus    observability.TelemetryBus
	limiter         *ratelimit.Limiter
	envelopePool    *pool.Pool
	tracer          trace.Tracer

	wake chan struct{}
	stop chan struct{}
	once sync.Once

	running atomic.Bool
	stopped atomic.Bool
}

// Options configures the collaborators New wires into a Loop. Every field is
// optional; a zero Options selects the default Prometheus registerer (used
// only when cfg.PrometheusEnabled), a no-op OTel tracer, and no telemetry bus
// (DLQ-only failure recording).
type Options struct {
	Registerer   prometheus.Registerer
	Tracer       trace.Tracer
	TelemetryBus observability.TelemetryBus
}

// New constructs a Loop from cfg and opts, ready to run.
func New(cfg config.LoopConfig, opts Options) *Loop {
	wake := make(chan struct{}, 1)

	var prom *stats.PrometheusExporter
	var dispatchMetrics *DispatchMetrics
	if cfg.PrometheusEnabled {
		prom = stats.NewPrometheusExporter(opts.Registerer)
		dispatchMetrics = NewDispatchMetrics(opts.Registerer)
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("eventloop")
	}

	var limiter *ratelimit.Limiter
	if cfg.PublishRateLimit > 0 {
		limiter = ratelimit.New(cfg.PublishRateLimit, cfg.PublishRateBurst)
	}

	var envPool *pool.Pool
	if cfg.EnvelopePoolSize > 0 {
		p, err := pool.New("envelope", cfg.EnvelopePoolSize, func() pool.PooledObject {
			return &event.Envelope{}
		})
		if err != nil {
			observability.Log().Error("envelope pool disabled", observability.Field{Key: "error", Value: err.Error()})
		} else {
			envPool = p
		}
	}

	l := &Loop{
		id:              uuid.NewString(),
		cfg:             cfg,
		registry:        registry.New(),
		queue:           queue.New(cfg.MaxQueueSize, wake),
		wheel:           timer.New(wake),
		stats:           stats.New(prom),
		dispatchMetrics: dispatchMetrics,
		dlq:             observability.NewDeadLetterQueue(cfg.DeadLetterCapacity),
		telemetryBus:    opts.TelemetryBus,
		limiter:         limiter,
		envelopePool:    envPool,
		tracer:          tracer,
		wake:            wake,
		stop:            make(chan struct{}),
	}
	l.stats.Enable(cfg.StatisticsEnabled)
	return l
}

// ID returns this loop's correlation identifier, a UUID generated at
// construction. The loop does not attach it to the log lines or OTel spans it
// emits.
func (l *Loop) ID() string { return l.id }

// Subscribe registers handler for category cat at minPriority, returning its
// strictly positive, never-reused subscription id.
func (l *Loop) Subscribe(cat event.Category, handler func(payload any) error, minPriority event.Priority) event.SubscriptionID {
	return l.registry.Subscribe(cat, handler, minPriority)
}

// Unsubscribe removes id from cat's subscription list.
func (l *Loop) Unsubscribe(cat event.Category, id event.SubscriptionID) bool {
	return l.registry.Unsubscribe(cat, id)
}

// AddFilter appends f to id's filter chain under cat.
func (l *Loop) AddFilter(cat event.Category, id event.SubscriptionID, f event.Filter) bool {
	return l.registry.AddFilter(cat, id, f)
}

// Publish admits payload as a new envelope for cat at priority, subject to
// the optional rate limiter and the queue's tail-drop capacity policy.
// Publish never blocks.
func (l *Loop) Publish(cat event.Category, payload any, priority event.Priority) {
	label := categoryLabel(cat)
	if l.limiter != nil && !l.limiter.Allow(cat) {
		l.stats.RecordDropped(label)
		l.emitTelemetry(observability.TelemetryEvent{
			Type:     observability.TelemetryEventEventDropped,
			Severity: observability.TelemetrySeverityWarn,
			Category: label,
			Metadata: map[string]any{"reason": "rate_limited"},
		})
		return
	}

	env := l.newEnvelope()
	env.Category = cat
	env.Payload = payload
	env.Priority = priority

	if !l.queue.Push(env) {
		l.stats.RecordDropped(label)
		l.emitTelemetry(observability.TelemetryEvent{
			Type:     observability.TelemetryEventEventDropped,
			Severity: observability.TelemetrySeverityWarn,
			Category: label,
			Metadata: map[string]any{"reason": "capacity"},
		})
		l.releaseEnvelope(env)
		return
	}
	l.stats.RecordPublished(label)
}

// PublishAfter schedules payload for admission to the queue at now+delay,
// via the timer heap, at the given priority.
func (l *Loop) PublishAfter(cat event.Category, delay time.Duration, payload any, priority event.Priority) event.TaskID {
	env := &event.Envelope{Category: cat, Payload: payload, Priority: priority}
	return l.wheel.PublishAfter(time.Now(), delay, env)
}

// ScheduleTask enqueues a one-shot task due at now+delay.
func (l *Loop) ScheduleTask(delay time.Duration, fn func() error) event.TaskID {
	return l.wheel.ScheduleTask(time.Now(), delay, fn)
}

// ScheduleRepeating enqueues a repeating task, first due at now+interval.
func (l *Loop) ScheduleRepeating(interval time.Duration, fn func() error) event.TaskID {
	return l.wheel.ScheduleRepeating(time.Now(), interval, fn)
}

// CancelTask marks id cancelled, preventing any future firing.
func (l *Loop) CancelTask(id event.TaskID) bool {
	return l.wheel.CancelTask(id)
}

// SetMaxQueueSize adjusts the event queue's admission bound for future
// publications; already-queued envelopes are never truncated.
func (l *Loop) SetMaxQueueSize(n int) {
	l.queue.SetMaxSize(n)
}

// QueueSizes samples the current event queue depth and timer heap depth.
func (l *Loop) QueueSizes() stats.QueueSizes {
	return stats.QueueSizes{
		EventQueueSize: l.queue.Len(),
		TimerHeapSize:  l.wheel.Len(),
	}
}

// EnableStatistics toggles counter collection.
func (l *Loop) EnableStatistics(enabled bool) {
	l.stats.Enable(enabled)
}

// ResetStatistics zeros every counter.
func (l *Loop) ResetStatistics() {
	l.stats.Reset()
}

// Statistics returns a point-in-time snapshot of the counters.
func (l *Loop) Statistics() stats.Snapshot {
	return l.stats.Snapshot()
}

// RuntimeMetrics exposes the in-memory per-category diagnostic breakdown
// (drops and dispatch duration) alongside the authoritative Statistics
// counters, for operators who need a per-category view. The loop does not
// record per-category queue depth, so the breakdown's QueueDepth map stays
// empty.
func (l *Loop) RuntimeMetrics() stats.CategoryBreakdown {
	return l.stats.Breakdown()
}

// DeadLetters drains the bounded record of recent handler/task failures.
func (l *Loop) DeadLetters() []observability.TelemetryEvent {
	return l.dlq.Drain()
}

// IsRunning reports whether Run is currently executing on some goroutine.
func (l *Loop) IsRunning() bool {
	return l.running.Load()
}

// Run drives the dispatch loop until StopLoop is called, blocking the
// caller. Run must be called from at most one goroutine at a time; a
// concurrent or post-stop call returns a misuse error immediately. Once Run
// returns after a stop, this Loop is single-shot: construct a new instance
// to run again.
func (l *Loop) Run() error {
	if l.stopped.Load() {
		return errs.New("eventloop/run", errs.CodeMisuse, errs.WithMessage("loop already stopped; construct a new instance to run again"))
	}
	if !l.running.CompareAndSwap(false, true) {
		return errs.New("eventloop/run", errs.CodeMisuse, errs.WithMessage("Run is already in progress on another goroutine"))
	}
	defer l.running.Store(false)

	for {
		select {
		case <-l.stop:
			l.stopped.Store(true)
			return nil
		default:
		}

		wait := l.cfg.IdleWaitInterval
		if due, ok := l.wheel.NextDue(); ok {
			if d := time.Until(due); d < wait {
				if d < 0 {
					d = 0
				}
				wait = d
			}
		}

		timerC := time.NewTimer(wait)
		select {
		case <-l.stop:
			timerC.Stop()
			l.stopped.Store(true)
			return nil
		case <-l.wake:
			timerC.Stop()
		case <-timerC.C:
		}

		now := time.Now()
		l.fireDueTimers(now)
		l.dispatchBatch()
		l.stats.ObserveQueueSizes(l.queue.Len(), l.wheel.Len())
	}
}

// StopLoop requests the dispatcher stop after finishing the envelope it is
// currently processing; it does not drain the remaining queue. Idempotent.
func (l *Loop) StopLoop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Loop) fireDueTimers(now time.Time) {
	due := l.wheel.DrainDue(now)
	for _, e := range due {
		switch e.Kind {
		case timer.OneShotTask, timer.RepeatingTask:
			l.runTask(e)
		case timer.DeferredEvent:
			l.admitDeferred(e)
		}
	}
}

func (l *Loop) admitDeferred(e *timer.Entry) {
	env := e.Envelope
	if env == nil {
		return
	}
	label := categoryLabel(env.Category)
	if l.queue.Push(env) {
		l.stats.RecordPublished(label)
		return
	}
	l.stats.RecordDropped(label)
	l.emitTelemetry(observability.TelemetryEvent{
		Type:     observability.TelemetryEventEventDropped,
		Severity: observability.TelemetrySeverityWarn,
		Category: label,
		TaskID:   int64(e.ID),
		Metadata: map[string]any{"reason": "capacity"},
	})
}

func (l *Loop) runTask(e *timer.Entry) {
	if e.Fn == nil {
		return
	}
	err := runProtected(e.Fn)
	if err == nil {
		return
	}
	l.stats.RecordFailed("task")
	l.emitTelemetry(observability.TelemetryEvent{
		Type:     observability.TelemetryEventTaskFailed,
		Severity: observability.TelemetrySeverityError,
		TaskID:   int64(e.ID),
		Err:      err.Error(),
	})
	observability.Log().Error("scheduled task failed",
		observability.Field{Key: "task_id", Value: int64(e.ID)},
		observability.Field{Key: "error", Value: err.Error()},
	)
}

func runProtected(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (l *Loop) dispatchBatch() {
	batch := l.queue.PopBatch(l.cfg.DispatchBatchSize)
	if len(batch) == 0 {
		return
	}
	if l.dispatchMetrics != nil {
		l.dispatchMetrics.ObserveBatch(len(batch))
	}
	for _, env := range batch {
		select {
		case <-l.stop:
			return
		default:
		}
		l.dispatchEnvelope(env)
	}
}

func (l *Loop) dispatchEnvelope(env *event.Envelope) {
	label := categoryLabel(env.Category)
	start := time.Now()

	_, span := l.tracer.Start(context.Background(), "eventloop.dispatch",
		trace.WithAttributes(
			attribute.String("eventloop.category", label),
			attribute.Int("eventloop.priority", int(env.Priority)),
			attribute.Int64("eventloop.sequence", int64(env.Seq)),
		),
	)
	defer span.End()

	var handlerErrs []error
	for _, sub := range l.registry.Snapshot(env.Category) {
		subLabel := subscriptionLabel(sub.ID)
		if env.Priority < sub.MinPriority {
			if l.dispatchMetrics != nil {
				l.dispatchMetrics.ObserveFiltered(subLabel)
			}
			continue
		}
		if !sub.Accepts(env.Payload) {
			if l.dispatchMetrics != nil {
				l.dispatchMetrics.ObserveFiltered(subLabel)
			}
			continue
		}
		if err := l.invokeHandler(env, sub, subLabel); err != nil {
			handlerErrs = append(handlerErrs, fmt.Errorf("subscription %s: %w", subLabel, err))
		}
	}
	if len(handlerErrs) > 0 {
		_ = observability.AggregateErrors("dispatcher/dispatch",
			handlerErrs,
			observability.Field{Key: "category", Value: label},
			observability.Field{Key: "sequence", Value: env.Seq},
		)
	}

	l.stats.RecordProcessed(label)
	l.stats.AddHandlerDurationMicro(label, time.Since(start).Microseconds())
	if l.dispatchMetrics != nil {
		l.dispatchMetrics.ObserveEnvelope(label, time.Since(start))
	}
	l.releaseEnvelope(env)
}

func (l *Loop) invokeHandler(env *event.Envelope, sub *registry.Subscription, subLabel string) error {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				if l.dispatchMetrics != nil {
					l.dispatchMetrics.ObservePanic(subLabel)
				}
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return sub.Handler(env.Payload)
	}()

	if l.dispatchMetrics != nil {
		l.dispatchMetrics.ObserveInvocation(subLabel)
		l.dispatchMetrics.ObserveSubDuration(subLabel, time.Since(start))
	}
	if err != nil {
		l.stats.RecordFailed(categoryLabel(env.Category))
		l.emitTelemetry(observability.TelemetryEvent{
			Type:           observability.TelemetryEventHandlerFailed,
			Severity:       observability.TelemetrySeverityError,
			Category:       categoryLabel(env.Category),
			SubscriptionID: int64(sub.ID),
			Err:            err.Error(),
		})
	}
	return err
}

func (l *Loop) newEnvelope() *event.Envelope {
	if l.envelopePool != nil {
		if obj, ok, err := l.envelopePool.TryGet(); err == nil && ok {
			if env, ok := obj.(*event.Envelope); ok {
				return env
			}
		}
	}
	return &event.Envelope{}
}

func (l *Loop) releaseEnvelope(env *event.Envelope) {
	if l.envelopePool == nil || env == nil {
		return
	}
	if err := l.envelopePool.Put(env); err != nil {
		observability.Log().Error("envelope pool put failed", observability.Field{Key: "error", Value: err.Error()})
	}
}

func (l *Loop) emitTelemetry(evt observability.TelemetryEvent) {
	evt.EventID = uuid.NewString()
	evt.Timestamp = time.Now()
	l.dlq.Offer(evt)
	if l.telemetryBus != nil {
		_ = l.telemetryBus.Publish(context.Background(), evt)
	}
}

func categoryLabel(cat event.Category) string {
	if cat == nil {
		return "unknown"
	}
	return cat.String()
}

func subscriptionLabel(id event.SubscriptionID) string {
	return strconv.FormatInt(int64(id), 10)
}
