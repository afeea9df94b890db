// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

//go:build integration
// +build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/influxdb"

	"github.com/plugpower/plug-power-logger/collector"
)

func startInflux(t *testing.T) (context.Context, string) {
	t.Helper()
	ctx := context.Background()

	influxContainer, err := influxdb.Run(ctx,
		"influxdb:2.7-alpine",
		influxdb.WithV2Auth("test-org", "test-bucket", "test-user", "test-password"),
		influxdb.WithV2AdminToken("test-token"),
	)
	if err != nil {
		t.Fatalf("Failed to start InfluxDB container: %v", err)
	}
	t.Cleanup(func() {
		if err := influxContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	url, err := influxContainer.ConnectionUrl(ctx)
	if err != nil {
		t.Fatalf("Failed to get InfluxDB URL: %v", err)
	}
	return ctx, url
}

// TestIntegration_WriteBatch writes one cycle's batch and verifies health.
func TestIntegration_WriteBatch(t *testing.T) {
	ctx, url := startInflux(t)

	sink := NewInfluxDBSink(url, "test-token")
	defer sink.Close()

	at := time.Now()
	today := 1234.0
	set := collector.NewReadingSet()
	set.Add(collector.Reading{DeviceName: "plug-1", NowWatts: 42.5, TodayWattHours: &today, CapturedAt: at})
	set.Add(collector.Reading{DeviceName: "plug-2", NowWatts: 7.25, CapturedAt: at})

	points := collector.BuildBatch(set)
	if err := sink.WriteBatch(ctx, "test-bucket", "test-org", points); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	if err := sink.Health(ctx); err != nil {
		t.Errorf("Health() error = %v", err)
	}
}

// TestIntegration_WriteBatchWrongBucket verifies a rejected write surfaces
// as an error instead of being silently dropped.
func TestIntegration_WriteBatchWrongBucket(t *testing.T) {
	ctx, url := startInflux(t)

	sink := NewInfluxDBSink(url, "test-token")
	defer sink.Close()

	points := []collector.MetricPoint{{
		Measurement: collector.Measurement,
		Tags:        map[string]string{collector.TagHost: "plug-1"},
		Fields:      map[string]any{collector.FieldConsumption: 1.0},
		Timestamp:   time.Now(),
	}}

	if err := sink.WriteBatch(ctx, "no-such-bucket", "test-org", points); err == nil {
		t.Error("WriteBatch() to a missing bucket should fail")
	}
}

// TestIntegration_FanoutAgainstLiveServer runs the full fan-out path with
// one live and one dead destination.
func TestIntegration_FanoutAgainstLiveServer(t *testing.T) {
	ctx, url := startInflux(t)

	live := NewInfluxDBSink(url, "test-token")
	dead := NewInfluxDBSink("http://127.0.0.1:1", "bogus")

	fanout := NewFanout([]*Target{
		NewTarget("live", "test-bucket", "test-org", live),
		NewTarget("dead", "test-bucket", "test-org", dead),
	})
	defer fanout.Close()

	set := collector.NewReadingSet()
	set.Add(collector.Reading{DeviceName: "plug-1", NowWatts: 10, CapturedAt: time.Now()})

	// Must complete without error despite the dead destination.
	fanout.Write(ctx, collector.BuildBatch(set))

	if err := live.Health(ctx); err != nil {
		t.Errorf("live destination unhealthy after fan-out: %v", err)
	}
}

func TestIntegration_Health(t *testing.T) {
	ctx, url := startInflux(t)

	sink := NewInfluxDBSink(url, "test-token")
	defer sink.Close()

	if err := sink.Health(ctx); err != nil {
		t.Errorf("Health() error = %v", err)
	}

	unreachable := NewInfluxDBSink("http://127.0.0.1:1", "bogus")
	defer unreachable.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := unreachable.Health(checkCtx); err == nil {
		t.Error("Health() against an unreachable server should fail")
	}
}
