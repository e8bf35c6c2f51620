// Package config centralises runtime configuration for the event loop.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coachpo/eventloop/errs"
)

// Environment identifies the deployment environment a loop instance runs in.
// It has no effect on dispatch semantics; it is carried through to logs and
// telemetry resource attributes so operators can tell instances apart.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// LoopConfig carries every tunable of an EventLoop instance. Zero values are
// not valid configuration on their own; use Default to obtain a usable base.
type LoopConfig struct {
	// MaxQueueSize bounds the event queue. Publications beyond this depth are
	// tail-dropped and counted in droppedEvents.
	MaxQueueSize int `yaml:"maxQueueSize"`
	// DispatchBatchSize bounds how many envelopes the dispatcher pops from
	// the queue per wake cycle before re-checking timers and stop requests.
	DispatchBatchSize int `yaml:"dispatchBatchSize"`
	// StatisticsEnabled controls whether Statistics counters accumulate from
	// construction. EnableStatistics(bool) can toggle this later.
	StatisticsEnabled bool `yaml:"statisticsEnabled"`
	// IdleWaitInterval bounds how long the dispatcher sleeps when no timer is
	// pending, so it periodically re-checks for stop requests even absent a
	// wakeup signal.
	IdleWaitInterval time.Duration `yaml:"idleWaitInterval"`
	// PublishRateLimit caps admissions per second per category. Zero means
	// unbounded (no limiter is attached).
	PublishRateLimit float64 `yaml:"publishRateLimit"`
	// PublishRateBurst is the token bucket burst size backing
	// PublishRateLimit. Ignored when PublishRateLimit is zero.
	PublishRateBurst int `yaml:"publishRateBurst"`
	// EnvelopePoolSize bounds the optional envelope object pool. Zero
	// disables pooling; every Publish allocates a fresh envelope.
	EnvelopePoolSize int `yaml:"envelopePoolSize"`
	// Environment tags this instance for logs and telemetry attributes.
	Environment Environment `yaml:"environment"`
	// OTLPEndpoint, when non-empty, enables OpenTelemetry export of
	// dispatch spans and metrics via OTLP-over-HTTP.
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	// ServiceName identifies this process in OTel resource attributes.
	ServiceName string `yaml:"serviceName"`
	// PrometheusEnabled toggles the secondary Prometheus counter/gauge
	// export alongside the always-authoritative Statistics counters.
	PrometheusEnabled bool `yaml:"prometheusEnabled"`
	// DeadLetterCapacity bounds the in-memory record of recent handler/task
	// failures retained for operator diagnosis. Zero means unbounded.
	DeadLetterCapacity int `yaml:"deadLetterCapacity"`
}

// Default returns sane defaults for a standalone EventLoop.
func Default() LoopConfig {
	return LoopConfig{
		MaxQueueSize:       1024,
		DispatchBatchSize:  64,
		StatisticsEnabled:  true,
		IdleWaitInterval:   200 * time.Millisecond,
		PublishRateLimit:   0,
		PublishRateBurst:   0,
		EnvelopePoolSize:   0,
		Environment:        EnvProd,
		OTLPEndpoint:       "",
		ServiceName:        "eventloop",
		PrometheusEnabled:  false,
		DeadLetterCapacity: 256,
	}
}

// FromEnv overlays EVENTLOOP_* environment variables onto Default().
func FromEnv() LoopConfig {
	cfg := Default()

	if v := strings.TrimSpace(os.Getenv("EVENTLOOP_ENV")); v != "" {
		cfg.Environment = Environment(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("EVENTLOOP_MAX_QUEUE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxQueueSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("EVENTLOOP_DISPATCH_BATCH_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DispatchBatchSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("EVENTLOOP_STATISTICS_ENABLED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.StatisticsEnabled = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("EVENTLOOP_IDLE_WAIT_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.IdleWaitInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("EVENTLOOP_PUBLISH_RATE_LIMIT")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.PublishRateLimit = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("EVENTLOOP_PUBLISH_RATE_BURST")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.PublishRateBurst = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("EVENTLOOP_ENVELOPE_POOL_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.EnvelopePoolSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("EVENTLOOP_OTLP_ENDPOINT")); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("EVENTLOOP_SERVICE_NAME")); v != "" {
		cfg.ServiceName = v
	}
	if v := strings.TrimSpace(os.Getenv("EVENTLOOP_PROMETHEUS_ENABLED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.PrometheusEnabled = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("EVENTLOOP_DEAD_LETTER_CAPACITY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.DeadLetterCapacity = n
		}
	}

	return cfg
}

// Option mutates a LoopConfig when applied via Apply.
type Option func(*LoopConfig)

// Apply applies opts to a copy of base, leaving base untouched.
func Apply(base LoopConfig, opts ...Option) LoopConfig {
	cfg := base
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithMaxQueueSize overrides the event queue capacity.
func WithMaxQueueSize(n int) Option {
	return func(c *LoopConfig) {
		if n > 0 {
			c.MaxQueueSize = n
		}
	}
}

// WithDispatchBatchSize overrides how many envelopes are drained per cycle.
func WithDispatchBatchSize(n int) Option {
	return func(c *LoopConfig) {
		if n > 0 {
			c.DispatchBatchSize = n
		}
	}
}

// WithStatisticsEnabled overrides whether counters accumulate from the start.
func WithStatisticsEnabled(enabled bool) Option {
	return func(c *LoopConfig) { c.StatisticsEnabled = enabled }
}

// WithIdleWaitInterval overrides the dispatcher's maximum idle sleep.
func WithIdleWaitInterval(d time.Duration) Option {
	return func(c *LoopConfig) {
		if d > 0 {
			c.IdleWaitInterval = d
		}
	}
}

// WithPublishRateLimit attaches a per-category token bucket at the given
// rate (events/sec) and burst. A zero rate disables limiting.
func WithPublishRateLimit(eventsPerSecond float64, burst int) Option {
	return func(c *LoopConfig) {
		c.PublishRateLimit = eventsPerSecond
		c.PublishRateBurst = burst
	}
}

// WithEnvelopePoolSize enables envelope pooling with the given capacity.
func WithEnvelopePoolSize(n int) Option {
	return func(c *LoopConfig) {
		if n >= 0 {
			c.EnvelopePoolSize = n
		}
	}
}

// WithEnvironment overrides the deployment environment tag.
func WithEnvironment(env Environment) Option {
	return func(c *LoopConfig) {
		if env != "" {
			c.Environment = env
		}
	}
}

// WithOTLPEndpoint enables OpenTelemetry export to the given collector.
func WithOTLPEndpoint(endpoint, serviceName string) Option {
	return func(c *LoopConfig) {
		c.OTLPEndpoint = strings.TrimSpace(endpoint)
		if s := strings.TrimSpace(serviceName); s != "" {
			c.ServiceName = s
		}
	}
}

// WithPrometheusEnabled toggles the secondary Prometheus export.
func WithPrometheusEnabled(enabled bool) Option {
	return func(c *LoopConfig) { c.PrometheusEnabled = enabled }
}

// WithDeadLetterCapacity overrides the bounded failure-record retention.
func WithDeadLetterCapacity(n int) Option {
	return func(c *LoopConfig) {
		if n >= 0 {
			c.DeadLetterCapacity = n
		}
	}
}

// Validate reports whether cfg's values are internally consistent.
func (c LoopConfig) Validate() error {
	const op = "config/validate"
	if c.MaxQueueSize <= 0 {
		return errs.New(op, errs.CodeInvalid, errs.WithMessage("maxQueueSize must be >0"))
	}
	if c.DispatchBatchSize <= 0 {
		return errs.New(op, errs.CodeInvalid, errs.WithMessage("dispatchBatchSize must be >0"))
	}
	if c.IdleWaitInterval <= 0 {
		return errs.New(op, errs.CodeInvalid, errs.WithMessage("idleWaitInterval must be >0"))
	}
	if c.PublishRateLimit < 0 {
		return errs.New(op, errs.CodeInvalid, errs.WithMessage("publishRateLimit must be >=0"))
	}
	if c.PublishRateLimit > 0 && c.PublishRateBurst <= 0 {
		return errs.New(op, errs.CodeInvalid, errs.WithMessage("publishRateBurst must be >0 when publishRateLimit is set"))
	}
	if c.EnvelopePoolSize < 0 {
		return errs.New(op, errs.CodeInvalid, errs.WithMessage("envelopePoolSize must be >=0"))
	}
	if c.DeadLetterCapacity < 0 {
		return errs.New(op, errs.CodeInvalid, errs.WithMessage("deadLetterCapacity must be >=0"))
	}
	return nil
}
