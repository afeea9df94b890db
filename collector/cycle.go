// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package collector

import (
	"context"
	"sync"
	"time"

	"github.com/plugpower/plug-power-logger/pkg/logger"
	"github.com/plugpower/plug-power-logger/pkg/metrics"
)

const (
	defaultConcurrency   = 4
	defaultDeviceTimeout = 10 * time.Second
)

// Source is one pollable device. Implementations perform the full poll
// (connect, login, read, normalize) for a single device and either return a
// normalized Reading or an error describing the failed step.
type Source interface {
	// Name returns the configured device name
	Name() string

	// Collect polls the device once. The returned Reading carries the
	// supplied capture instant so every reading of a cycle shares it.
	Collect(ctx context.Context, at time.Time) (Reading, error)
}

// Cycle visits every configured device exactly once and collects the
// readings of the devices that responded.
type Cycle struct {
	sources     []Source
	concurrency int
	timeout     time.Duration
}

// NewCycle creates a poll cycle over the given sources. Non-positive
// concurrency or timeout values fall back to the defaults.
func NewCycle(sources []Source, concurrency int, timeout time.Duration) *Cycle {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if timeout <= 0 {
		timeout = defaultDeviceTimeout
	}
	return &Cycle{sources: sources, concurrency: concurrency, timeout: timeout}
}

// Run performs one pass over all sources and returns the readings of the
// devices that responded, keyed by device name in configuration order.
//
// Devices are polled by a bounded worker pool. Each poll runs under its own
// timeout so an unreachable device resolves to a failure instead of hanging
// the cycle, and cancelling one device's poll never cancels another. A
// failed device is logged and skipped; the cycle always completes.
func (c *Cycle) Run(ctx context.Context) *ReadingSet {
	at := time.Now()

	results := make([]*Reading, len(c.sources))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < c.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = c.pollOne(ctx, c.sources[i], at)
			}
		}()
	}

	for i := range c.sources {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// Merge in configuration order so the batch is deterministic.
	set := NewReadingSet()
	for _, r := range results {
		if r != nil {
			set.Add(*r)
		}
	}

	metrics.CyclesTotal.Inc()
	return set
}

// pollOne polls a single source under its own timeout. Failures are
// contained here: they are logged with the device name and turned into a
// nil result, never propagated.
func (c *Cycle) pollOne(ctx context.Context, src Source, at time.Time) *Reading {
	pollCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	reading, err := src.Collect(pollCtx, at)
	metrics.PollDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Error().Err(err).Str("device", src.Name()).Msg("Device poll failed, skipping for this cycle")
		metrics.PollErrors.WithLabelValues(src.Name()).Inc()
		return nil
	}

	metrics.ReadingsTotal.Inc()
	metrics.CurrentPower.WithLabelValues(reading.DeviceName).Set(reading.NowWatts)

	event := logger.Info().Str("device", reading.DeviceName).Float64("watts", reading.NowWatts)
	if reading.TodayWattHours != nil {
		metrics.TodayEnergy.WithLabelValues(reading.DeviceName).Set(*reading.TodayWattHours)
		event = event.Float64("today_wh", *reading.TodayWattHours)
	} else {
		event = event.Str("today_wh", "not supplied")
	}
	event.Msg("Device reading")

	return &reading
}
