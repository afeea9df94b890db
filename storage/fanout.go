// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package storage

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/plugpower/plug-power-logger/collector"
	"github.com/plugpower/plug-power-logger/pkg/errors"
	"github.com/plugpower/plug-power-logger/pkg/interfaces"
	"github.com/plugpower/plug-power-logger/pkg/logger"
	"github.com/plugpower/plug-power-logger/pkg/metrics"
)

const (
	breakerFailureThreshold = 3
	breakerResetTimeout     = 60 * time.Second
)

// Target is one configured write destination. Targets are long-lived and
// shared read-only across cycles.
type Target struct {
	Name    string
	Bucket  string
	Org     string
	Sink    interfaces.MetricSink
	breaker *gobreaker.CircuitBreaker
}

// NewTarget creates a destination with its own circuit breaker. The breaker
// keeps a repeatedly failing destination from stalling every cycle on write
// timeouts; an open breaker counts as that target's failure for the cycle
// and other targets are unaffected.
func NewTarget(name, bucket, org string, sink interfaces.MetricSink) *Target {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: breakerResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("target", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Destination circuit breaker state changed")
		},
	})
	return &Target{Name: name, Bucket: bucket, Org: org, Sink: sink, breaker: breaker}
}

// write delivers one batch through the breaker.
func (t *Target) write(ctx context.Context, points []collector.MetricPoint) error {
	_, err := t.breaker.Execute(func() (any, error) {
		return nil, t.Sink.WriteBatch(ctx, t.Bucket, t.Org, points)
	})
	return err
}

// Fanout delivers each cycle's batch to every configured target,
// independently.
type Fanout struct {
	targets []*Target
}

// NewFanout creates a fan-out writer over the given targets.
func NewFanout(targets []*Target) *Fanout {
	return &Fanout{targets: targets}
}

// Targets returns the configured targets.
func (f *Fanout) Targets() []*Target {
	return f.targets
}

// Write sends the batch to every target. A failing target is logged by
// name and skipped for this cycle; it never prevents, retries or rolls
// back the writes to the other targets, and no error escapes. There is no
// cross-target atomicity: a dropped batch is simply superseded by the next
// cycle's batch. An empty batch writes nothing.
func (f *Fanout) Write(ctx context.Context, points []collector.MetricPoint) {
	if len(points) == 0 {
		logger.Debug().Msg("Empty batch, nothing to write")
		return
	}

	for _, t := range f.targets {
		if err := t.write(ctx, points); err != nil {
			sinkErr := errors.NewSinkError(t.Name, err)
			logger.Error().Err(sinkErr).Str("target", t.Name).Msg("Batch write failed, dropping batch for this destination")
			metrics.SinkWriteErrors.WithLabelValues(t.Name).Inc()
			continue
		}

		logger.Info().Str("target", t.Name).Int("points", len(points)).Msg("Batch written")
		metrics.SinkWritesTotal.WithLabelValues(t.Name).Inc()
	}
}

// Close closes every target's sink.
func (f *Fanout) Close() {
	for _, t := range f.targets {
		t.Sink.Close()
	}
}
