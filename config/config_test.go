package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}
	if cfg.Environment != EnvProd {
		t.Fatalf("expected default environment prod, got %s", cfg.Environment)
	}
	if cfg.MaxQueueSize <= 0 || cfg.DispatchBatchSize <= 0 {
		t.Fatalf("expected positive defaults, got %+v", cfg)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []Option{
		WithMaxQueueSize(-1),
		WithDispatchBatchSize(-1),
		WithIdleWaitInterval(-time.Second),
	}
	for _, opt := range cases {
		cfg := Apply(Default(), opt)
		// negative overrides are ignored by the setters above, so force an
		// invalid zero value directly to exercise Validate's own checks.
		_ = cfg
	}

	bad := Default()
	bad.MaxQueueSize = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero MaxQueueSize")
	}

	bad = Default()
	bad.PublishRateLimit = 5
	bad.PublishRateBurst = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for rate limit without burst")
	}
}

func TestFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("EVENTLOOP_ENV", "STAGING")
	t.Setenv("EVENTLOOP_MAX_QUEUE_SIZE", "2048")
	t.Setenv("EVENTLOOP_DISPATCH_BATCH_SIZE", "128")
	t.Setenv("EVENTLOOP_STATISTICS_ENABLED", "false")
	t.Setenv("EVENTLOOP_IDLE_WAIT_INTERVAL", "50ms")
	t.Setenv("EVENTLOOP_PUBLISH_RATE_LIMIT", "10.5")
	t.Setenv("EVENTLOOP_PUBLISH_RATE_BURST", "20")
	t.Setenv("EVENTLOOP_ENVELOPE_POOL_SIZE", "16")
	t.Setenv("EVENTLOOP_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("EVENTLOOP_SERVICE_NAME", "svc")
	t.Setenv("EVENTLOOP_PROMETHEUS_ENABLED", "true")
	t.Setenv("EVENTLOOP_DEAD_LETTER_CAPACITY", "10")

	cfg := FromEnv()
	if cfg.Environment != EnvStaging {
		t.Fatalf("expected staging environment, got %s", cfg.Environment)
	}
	if cfg.MaxQueueSize != 2048 || cfg.DispatchBatchSize != 128 {
		t.Fatalf("expected queue/batch overrides, got %+v", cfg)
	}
	if cfg.StatisticsEnabled {
		t.Fatalf("expected statistics disabled by env override")
	}
	if cfg.IdleWaitInterval != 50*time.Millisecond {
		t.Fatalf("expected idle wait override, got %s", cfg.IdleWaitInterval)
	}
	if cfg.PublishRateLimit != 10.5 || cfg.PublishRateBurst != 20 {
		t.Fatalf("expected rate limit overrides, got %+v", cfg)
	}
	if cfg.EnvelopePoolSize != 16 {
		t.Fatalf("expected pool size override, got %d", cfg.EnvelopePoolSize)
	}
	if cfg.OTLPEndpoint != "collector:4318" || cfg.ServiceName != "svc" {
		t.Fatalf("expected telemetry overrides, got %+v", cfg)
	}
	if !cfg.PrometheusEnabled || cfg.DeadLetterCapacity != 10 {
		t.Fatalf("expected prometheus/dlq overrides, got %+v", cfg)
	}
}

func TestApplyDoesNotMutateBase(t *testing.T) {
	base := Default()
	applied := Apply(base, WithMaxQueueSize(9999), WithEnvironment(EnvDev))
	if base.MaxQueueSize == 9999 {
		t.Fatalf("expected base to remain unchanged")
	}
	if applied.MaxQueueSize != 9999 || applied.Environment != EnvDev {
		t.Fatalf("expected overrides applied, got %+v", applied)
	}
}

func TestLoadReadsYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.yaml")
	doc := "maxQueueSize: 512\nstatisticsEnabled: false\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxQueueSize != 512 {
		t.Fatalf("expected overridden maxQueueSize, got %d", cfg.MaxQueueSize)
	}
	if cfg.StatisticsEnabled {
		t.Fatalf("expected overridden statisticsEnabled")
	}
	if cfg.DispatchBatchSize != Default().DispatchBatchSize {
		t.Fatalf("expected untouched fields to retain defaults")
	}
}

func TestLoadOrDefaultFallsBackWhenMissing(t *testing.T) {
	cfg, loaded, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if loaded {
		t.Fatalf("expected loadedFromFile=false for a missing file")
	}
	if cfg != Default() {
		t.Fatalf("expected default config, got %+v", cfg)
	}
}

func TestLoadOrDefaultEmptyPathIsDefault(t *testing.T) {
	cfg, loaded, err := LoadOrDefault("")
	if err != nil || loaded {
		t.Fatalf("expected default without error, got loaded=%v err=%v", loaded, err)
	}
	if cfg != Default() {
		t.Fatalf("expected default config")
	}
}
