// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package app wires the configured devices, the poll cycle and the write
// fan-out together and drives them in one-shot or persistent mode.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/plugpower/plug-power-logger/collector"
	"github.com/plugpower/plug-power-logger/config"
	"github.com/plugpower/plug-power-logger/devices/kasa"
	"github.com/plugpower/plug-power-logger/devices/tapo"
	"github.com/plugpower/plug-power-logger/pkg/logger"
	"github.com/plugpower/plug-power-logger/pkg/metrics"
	"github.com/plugpower/plug-power-logger/storage"
)

const (
	signalChannelSize     = 1
	readinessCheckTimeout = 2 * time.Second
	shutdownTimeout       = 5 * time.Second
)

// App represents the main application
type App struct {
	cfg           *config.Config
	metricsPort   string
	server        *http.Server
	cycle         *collector.Cycle
	scheduler     *collector.Scheduler
	fanout        *storage.Fanout
	configWatcher *config.Watcher
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// New creates a new application instance from validated configuration.
func New(cfg *config.Config, metricsPort string, configWatcher *config.Watcher) (*App, error) {
	a := &App{
		cfg:           cfg,
		metricsPort:   metricsPort,
		configWatcher: configWatcher,
	}

	sources, err := buildSources(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build device sources: %w", err)
	}
	metrics.DevicesConfigured.Set(float64(len(sources)))

	a.cycle = collector.NewCycle(sources, cfg.Poller.Concurrency, cfg.Poller.TimeoutDuration())
	a.scheduler = collector.NewScheduler(cfg.Poller.Persist, cfg.Poller.IntervalDuration())
	a.fanout = storage.NewFanout(buildTargets(cfg))
	a.server = a.buildMetricsServer()

	return a, nil
}

// buildSources turns the configured device sets into pollable sources, in
// configuration order: Kasa first, then Tapo.
func buildSources(cfg *config.Config) ([]collector.Source, error) {
	var sources []collector.Source

	if cfg.Devices.Kasa != nil {
		dialer := kasa.NewDialer(cfg.Poller.TimeoutDuration())
		for _, d := range cfg.Devices.Kasa.Devices {
			sources = append(sources, kasa.NewSource(d.Name, d.IP, dialer))
		}
		if cfg.Devices.Kasa.Auth != nil {
			logger.Debug().Msg("Kasa auth configured; the LAN protocol is unauthenticated, credentials are unused")
		}
	}

	if cfg.Devices.Tapo != nil {
		creds := tapo.Credentials{
			Username: cfg.Devices.Tapo.User,
			Password: cfg.Devices.Tapo.Passw,
		}
		for _, d := range cfg.Devices.Tapo.Devices {
			mode, err := tapo.ParseAuthMode(d.Auth)
			if err != nil {
				return nil, fmt.Errorf("device %s: %w", d.Name, err)
			}
			negotiator := tapo.NewNegotiator(creds, mode, cfg.Poller.TimeoutDuration())
			sources = append(sources, tapo.NewSource(d.Name, d.IP, negotiator))
		}
	}

	return sources, nil
}

// buildTargets creates one sink per configured destination. Zero
// destinations is valid: cycles still run, nothing is written.
func buildTargets(cfg *config.Config) []*storage.Target {
	var targets []*storage.Target
	for _, dest := range cfg.Destinations {
		sink := storage.NewInfluxDBSink(dest.URL, dest.Token)
		targets = append(targets, storage.NewTarget(dest.Name, dest.Bucket, dest.Org, sink))
	}
	return targets
}

// Run executes the configured run mode and blocks until it completes (one
// shot) or is terminated (persistent). The ancillary goroutines (metrics
// server, signal handling, config reloads) only run in persistent mode.
func (a *App) Run(configChan <-chan *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	a.ctx = ctx
	a.cancel = cancel
	defer a.cancel()

	if a.cfg.Poller.Persist {
		a.configWatcher.Start(ctx)
		defer a.configWatcher.Stop()

		a.startMetricsServer()
		a.setupSignalHandler()
		a.startConfigListener(configChan)
	}

	err := a.scheduler.Run(ctx, a.pass)
	a.performCleanup()
	return err
}

// pass runs one full cycle: poll every device, build the batch, fan it out.
func (a *App) pass(ctx context.Context) {
	readings := a.cycle.Run(ctx)
	logger.Info().Int("readings", readings.Len()).Msg("Poll cycle complete")

	points := collector.BuildBatch(readings)
	a.fanout.Write(ctx, points)
}

// buildMetricsServer sets up the metrics and health endpoints.
func (a *App) buildMetricsServer() *http.Server {
	healthLimiter := rate.NewLimiter(10, 20)
	readyLimiter := rate.NewLimiter(10, 20)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", rateLimitMiddleware(healthLimiter, healthCheckHandler))
	mux.HandleFunc("/ready", rateLimitMiddleware(readyLimiter, func(w http.ResponseWriter, r *http.Request) {
		readinessCheckHandler(w, r, a.fanout)
	}))

	return &http.Server{
		Addr:    "localhost:" + a.metricsPort,
		Handler: mux,
	}
}

// startMetricsServer starts the HTTP server for metrics and health checks
func (a *App) startMetricsServer() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Info().Str("addr", a.server.Addr).Msg("Starting metrics and health check server (localhost only)")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// setupSignalHandler stops the polling loop on interrupt signals.
func (a *App) setupSignalHandler() {
	sigChan := make(chan os.Signal, signalChannelSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown error")
		} else {
			logger.Info().Msg("HTTP server stopped")
		}

		a.cancel()
	}()
}

// startConfigListener applies reloaded configurations. Only the poller
// settings take effect at runtime; device and destination sets are fixed
// for the process lifetime.
func (a *App) startConfigListener(configChan <-chan *config.Config) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.ctx.Done():
				logger.Info().Msg("Config listener goroutine shutting down")
				return
			case newCfg := <-configChan:
				a.UpdateConfig(newCfg)
			}
		}
	}()
}

// UpdateConfig applies the runtime-changeable parts of a reloaded
// configuration.
func (a *App) UpdateConfig(newCfg *config.Config) {
	a.scheduler.UpdateInterval(newCfg.Poller.IntervalDuration())
	logger.SetLevel(newCfg.Poller.LogLevel)
	logger.Info().Dur("interval", newCfg.Poller.IntervalDuration()).
		Str("loglevel", newCfg.Poller.LogLevel).
		Msg("Poller configuration updated; device and destination changes require a restart")
}

// performCleanup closes the sinks and waits for goroutines to finish.
func (a *App) performCleanup() {
	a.fanout.Close()
	logger.Info().Msg("Waiting for goroutines to finish...")
	a.wg.Wait()
	logger.Info().Msg("All goroutines finished, exiting")
}

// DumpApplicationState dumps current application state to logs
func (a *App) DumpApplicationState() {
	logger.Info().Msg("=== APPLICATION STATE DUMP (SIGUSR1) ===")

	logger.Info().
		Int("devices_configured", a.cfg.DeviceCount()).
		Int("destinations", len(a.fanout.Targets())).
		Bool("persist", a.cfg.Poller.Persist).
		Dur("interval", a.scheduler.Interval()).
		Msg("Collector state")

	for _, t := range a.fanout.Targets() {
		logger.Info().
			Str("target", t.Name).
			Str("bucket", t.Bucket).
			Str("org", t.Org).
			Msg("Configured destination")
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Info().
		Uint64("alloc_mb", m.Alloc/1024/1024).
		Uint64("total_alloc_mb", m.TotalAlloc/1024/1024).
		Uint32("num_gc", m.NumGC).
		Int("num_goroutines", runtime.NumGoroutine()).
		Msg("Runtime statistics")

	logger.Info().Msg("=== END STATE DUMP ===")
}

// DumpGoroutineStackTraces dumps all goroutine stack traces to logs
func DumpGoroutineStackTraces() {
	logger.Info().Msg("=== GOROUTINE STACK TRACES (SIGUSR2) ===")
	logger.Info().Int("num_goroutines", runtime.NumGoroutine()).Msg("Current goroutine count")

	buf := make([]byte, 1024*1024) // 1MB buffer
	stackLen := runtime.Stack(buf, true)
	logger.Info().Str("stack_traces", string(buf[:stackLen])).Msg("Full stack trace")

	logger.Info().Msg("=== END STACK TRACES ===")
}

// rateLimitMiddleware wraps an HTTP handler with rate limiting
func rateLimitMiddleware(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rate limit exceeded for health endpoint")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// healthCheckHandler handles health check requests
func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("OK")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write health check response")
	}
}

// readinessCheckHandler reports ready only when every destination is
// healthy. Zero destinations is ready by definition.
func readinessCheckHandler(w http.ResponseWriter, _ *http.Request, fanout *storage.Fanout) {
	ctx, cancel := context.WithTimeout(context.Background(), readinessCheckTimeout)
	defer cancel()

	for _, t := range fanout.Targets() {
		if err := t.Sink.Health(ctx); err != nil {
			logger.Warn().Err(err).Str("target", t.Name).Msg("Readiness check failed: destination unhealthy")
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, writeErr := fmt.Fprintf(w, "NOT READY: destination %s unhealthy", t.Name); writeErr != nil {
				logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
			}
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("READY")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write readiness check response")
	}
}
