// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package storage provides the InfluxDB metric sink and the multi-target
// write fan-out.
package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/plugpower/plug-power-logger/collector"
	"github.com/plugpower/plug-power-logger/pkg/logger"
)

const connectCheckTimeout = 5 * time.Second

// InfluxDBSink writes metric batches to one InfluxDB server.
type InfluxDBSink struct {
	client influxdb2.Client
	url    string
}

// NewInfluxDBSink creates a sink for the given server. An unreachable
// server is logged but not fatal: destination failures are contained per
// cycle, and the server may come back before the next batch.
func NewInfluxDBSink(url, token string) *InfluxDBSink {
	client := influxdb2.NewClient(url, token)

	ctx, cancel := context.WithTimeout(context.Background(), connectCheckTimeout)
	defer cancel()

	health, err := client.Health(ctx)
	switch {
	case err != nil:
		logger.Warn().Err(err).Str("url", url).Msg("InfluxDB not reachable at startup, writes will be retried each cycle")
	case health.Status != "pass":
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		logger.Warn().Str("url", url).Str("status", string(health.Status)).Str("message", message).
			Msg("InfluxDB reports unhealthy at startup")
	default:
		logger.Info().Str("url", url).Str("status", string(health.Status)).Msg("Connected to InfluxDB")
	}

	return &InfluxDBSink{client: client, url: url}
}

// WriteBatch writes one cycle's points in a single batched call. The write
// is synchronous so the caller learns whether this destination accepted the
// batch.
func (s *InfluxDBSink) WriteBatch(ctx context.Context, bucket, org string, points []collector.MetricPoint) error {
	writeAPI := s.client.WriteAPIBlocking(org, bucket)

	converted := make([]*write.Point, 0, len(points))
	for _, p := range points {
		converted = append(converted, influxdb2.NewPoint(p.Measurement, p.Tags, p.Fields, p.Timestamp))
	}

	if err := writeAPI.WritePoint(ctx, converted...); err != nil {
		return fmt.Errorf("write to %s: %w", s.url, err)
	}
	return nil
}

// Health checks if the server is healthy.
func (s *InfluxDBSink) Health(ctx context.Context) error {
	health, err := s.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if health.Status != "pass" {
		return fmt.Errorf("health status %s", health.Status)
	}
	return nil
}

// Close closes the InfluxDB client.
func (s *InfluxDBSink) Close() {
	s.client.Close()
}
