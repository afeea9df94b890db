// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package tapo

import (
	"context"
	"fmt"
	"time"

	"github.com/plugpower/plug-power-logger/pkg/errors"
	"github.com/plugpower/plug-power-logger/pkg/interfaces"
	"github.com/plugpower/plug-power-logger/pkg/logger"
)

// scheme is one authentication dialect the negotiator can try.
type scheme struct {
	name   string
	dialer interfaces.DeviceDialer
}

// Negotiator resolves the live authentication scheme of a device whose
// firmware generation is not known in advance. It tries the configured
// schemes in order and returns the first raw reading.
//
// The winning scheme is deliberately not cached across cycles: firmware can
// change between polls, so every cycle re-probes from the top.
type Negotiator struct {
	schemes []scheme
}

// NewNegotiator builds a negotiator for the given credentials and mode.
func NewNegotiator(creds Credentials, mode AuthMode, timeout time.Duration) *Negotiator {
	klap := scheme{name: "klap", dialer: NewKLAPDialer(creds, timeout)}
	legacy := scheme{name: "passthrough", dialer: NewPassthroughDialer(creds, timeout)}

	switch mode {
	case AuthDefaultOnly:
		return &Negotiator{schemes: []scheme{klap}}
	case AuthLegacyOnly:
		return &Negotiator{schemes: []scheme{legacy}}
	default:
		return &Negotiator{schemes: []scheme{klap, legacy}}
	}
}

// Negotiate polls the device at address, trying each scheme until one
// yields a raw reading. A scheme attempt fails as a whole if any of its
// steps (handshake, login, read) fails; such failures are expected probe
// noise and logged at debug level only. When every scheme fails the caller
// gets ErrNoReading, never a fabricated zero reading.
func (n *Negotiator) Negotiate(ctx context.Context, address string) (interfaces.RawUsage, error) {
	for _, s := range n.schemes {
		raw, err := attempt(ctx, s.dialer, address)
		if err != nil {
			logger.Debug().Err(err).
				Str("scheme", s.name).
				Str("address", hostOnly(address)).
				Msg("Auth scheme attempt failed")
			continue
		}
		logger.Debug().Str("scheme", s.name).Str("address", hostOnly(address)).Msg("Auth scheme succeeded")
		return raw, nil
	}
	return nil, fmt.Errorf("%w: all auth schemes failed", errors.ErrNoReading)
}

// attempt runs one full scheme attempt: dial (handshake and login) and
// read. The connection never outlives the attempt.
func attempt(ctx context.Context, dialer interfaces.DeviceDialer, address string) (interfaces.RawUsage, error) {
	conn, err := dialer.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = conn.Close()
	}()

	return conn.ReadUsage(ctx)
}
