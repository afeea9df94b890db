// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package tapo

import (
	"context"
	"time"

	"github.com/plugpower/plug-power-logger/collector"
	"github.com/plugpower/plug-power-logger/pkg/errors"
)

// Source is one configured Tapo plug, pollable by the collector.
type Source struct {
	name       string
	address    string
	negotiator *Negotiator
}

// NewSource creates a source for a configured device.
func NewSource(name, address string, negotiator *Negotiator) *Source {
	return &Source{name: name, address: address, negotiator: negotiator}
}

// Name returns the configured device name.
func (s *Source) Name() string {
	return s.name
}

// Collect polls the plug once through the auth negotiator and normalizes
// the raw response.
func (s *Source) Collect(ctx context.Context, at time.Time) (collector.Reading, error) {
	raw, err := s.negotiator.Negotiate(ctx, s.address)
	if err != nil {
		return collector.Reading{}, errors.NewDeviceError("negotiate", s.name, err)
	}

	return collector.NormalizeTapo(s.name, raw, at)
}
