// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces

import (
	"context"

	"github.com/plugpower/plug-power-logger/collector"
)

// MetricSink defines the interface for a time-series write destination.
// Implementations must deliver the whole batch in a single write call.
type MetricSink interface {
	// WriteBatch writes one cycle's points to the given bucket and org
	WriteBatch(ctx context.Context, bucket, org string, points []collector.MetricPoint) error

	// Health checks if the destination is reachable and healthy
	Health(ctx context.Context) error

	// Close gracefully shuts down the connection
	Close()
}
