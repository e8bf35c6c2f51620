// Command eventloopdemo wires an EventLoop end to end: config loading,
// logging, OpenTelemetry, Prometheus, a typed subscription, a repeating
// heartbeat, and graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/eventloop/config"
	"github.com/coachpo/eventloop/internal/observability"
	"github.com/coachpo/eventloop/internal/telemetry"
	"github.com/coachpo/eventloop/pkg/eventloop"
)

const (
	defaultConfigPath   = "config/eventloop.yaml"
	demoLoggerPrefix    = "eventloopdemo "
	heartbeatInterval   = 5 * time.Second
	metricsReadHeader   = 5 * time.Second
	shutdownGracePeriod = 10 * time.Second
)

// TradeFill is the demo's example payload: a finance-flavored event chosen
// because decimal precision is a recognizable domain problem, not because
// the dispatcher core cares about finance.
type TradeFill struct {
	Symbol   string
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

func main() {
	cfgPathFlag := parseFlags()
	logger := newDemoLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, loadedFromFile, err := config.LoadOrDefault(resolveConfigPath(cfgPathFlag))
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if loadedFromFile {
		logger.Printf("configuration loaded from file: env=%s", cfg.Environment)
	} else {
		logger.Printf("configuration file not found, using defaults: env=%s", cfg.Environment)
	}

	observability.SetLogger(stdLogAdapter{logger})

	providers, shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		OTLPEndpoint: cfg.OTLPEndpoint,
		ServiceName:  cfg.ServiceName,
	})
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer shutdownCancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
	}()

	registry := prometheus.NewRegistry()
	cfg.PrometheusEnabled = true

	loop := eventloop.New(cfg, eventloop.Deps{
		Registerer: registry,
		Tracer:     providers.TracerProvider.Tracer("eventloopdemo"),
	})
	logger.Printf("event loop constructed: id=%s", loop.ID())

	eventloop.Subscribe(loop, func(fill TradeFill) error {
		notional := fill.Quantity.Mul(fill.Price)
		logger.Printf("trade fill: symbol=%s qty=%s price=%s notional=%s",
			fill.Symbol, fill.Quantity.String(), fill.Price.String(), notional.String())
		return nil
	})

	heartbeats := 0
	loop.ScheduleRepeating(heartbeatInterval, func() error {
		heartbeats++
		logger.Printf("heartbeat #%d: %+v", heartbeats, loop.QueueSizes())
		return nil
	})

	var lifecycle conc.WaitGroup
	metricsServer := newMetricsServer(registry)
	lifecycle.Go(func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server: %v", err)
		}
	})

	lifecycle.Go(func() {
		if err := loop.Run(); err != nil {
			logger.Printf("event loop run: %v", err)
		}
	})

	eventloop.Publish(loop, TradeFill{
		Symbol:   "BTC-USD",
		Quantity: decimal.NewFromFloat(0.5),
		Price:    decimal.NewFromInt(65000),
	})

	logger.Print("eventloopdemo started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	loop.StopLoop()
	lifecycle.Wait()

	dumpStatistics(logger, loop)
}

func parseFlags() string {
	cfgPath := flag.String("config", "", fmt.Sprintf("path to event loop configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	return *cfgPath
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

func newDemoLogger() *log.Logger {
	return log.New(os.Stdout, demoLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

func newMetricsServer(reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              ":9090",
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeader,
	}
}

func dumpStatistics(logger *log.Logger, loop *eventloop.EventLoop) {
	snapshot := loop.Statistics()
	encoded, err := gojson.Marshal(snapshot)
	if err != nil {
		logger.Printf("encode statistics: %v", err)
		return
	}
	logger.Printf("final statistics: %s", encoded)
}

// stdLogAdapter routes internal/observability's structured Logger interface
// through the demo's standard library logger.
type stdLogAdapter struct {
	logger *log.Logger
}

func (a stdLogAdapter) Debug(msg string, fields ...observability.Field) { a.log("DEBUG", msg, fields) }
func (a stdLogAdapter) Info(msg string, fields ...observability.Field)  { a.log("INFO", msg, fields) }
func (a stdLogAdapter) Warn(msg string, fields ...observability.Field)  { a.log("WARN", msg, fields) }
func (a stdLogAdapter) Error(msg string, fields ...observability.Field) { a.log("ERROR", msg, fields) }

func (a stdLogAdapter) log(level, msg string, fields []observability.Field) {
	a.logger.Printf("[%s] %s %v", level, msg, fields)
}
