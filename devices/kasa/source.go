// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package kasa

import (
	"context"
	"time"

	"github.com/plugpower/plug-power-logger/collector"
	"github.com/plugpower/plug-power-logger/pkg/errors"
	"github.com/plugpower/plug-power-logger/pkg/interfaces"
)

// Source is one configured Kasa plug, pollable by the collector.
type Source struct {
	name    string
	address string
	dialer  interfaces.DeviceDialer
}

// NewSource creates a source for a configured device.
func NewSource(name, address string, dialer interfaces.DeviceDialer) *Source {
	return &Source{name: name, address: address, dialer: dialer}
}

// Name returns the configured device name.
func (s *Source) Name() string {
	return s.name
}

// Collect polls the plug once: connect, read usage, normalize. The
// connection never outlives the poll.
func (s *Source) Collect(ctx context.Context, at time.Time) (collector.Reading, error) {
	conn, err := s.dialer.Dial(ctx, s.address)
	if err != nil {
		return collector.Reading{}, errors.NewDeviceError("connect", s.name, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	raw, err := conn.ReadUsage(ctx)
	if err != nil {
		return collector.Reading{}, errors.NewDeviceError("read usage", s.name, err)
	}

	return collector.NormalizeKasa(s.name, raw, at)
}
