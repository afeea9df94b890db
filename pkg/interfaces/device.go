// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package interfaces defines abstract interfaces for core system components.
// This package promotes loose coupling and testability by allowing
// dependency injection and easy mocking in tests.
package interfaces

import "context"

// RawUsage is a decoded vendor usage response. The shape is vendor specific
// and may differ between firmware generations of the same vendor; the
// collector normalizers are responsible for interpreting it.
type RawUsage = map[string]any

// DeviceConn is an authenticated session with a single smart plug. A
// connection lives for the duration of one poll attempt and is never shared.
type DeviceConn interface {
	// ReadUsage requests the device's current energy usage
	ReadUsage(ctx context.Context) (RawUsage, error)

	// Close tears down the session. Best-effort: callers swallow the error.
	Close() error
}

// DeviceDialer opens an authenticated connection to a device at the given
// address. Implementations perform the full connection handshake and
// credential login, so a returned DeviceConn is ready to read from.
type DeviceDialer interface {
	Dial(ctx context.Context, address string) (DeviceConn, error)
}
