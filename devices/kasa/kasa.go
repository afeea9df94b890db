// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package kasa implements the Kasa smart plug LAN protocol: JSON commands
// over TCP port 9999, framed with a 4-byte big-endian length prefix and
// obfuscated with the autokey XOR cipher the firmware expects.
package kasa

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/plugpower/plug-power-logger/pkg/interfaces"
	"github.com/plugpower/plug-power-logger/pkg/logger"
)

const (
	defaultPort    = "9999"
	cipherSeed     = 171
	maxResponseLen = 1 << 20
)

// Dialer opens LAN connections to Kasa plugs. The LAN protocol is
// unauthenticated, so no credentials are involved.
type Dialer struct {
	timeout time.Duration
}

// NewDialer creates a Kasa dialer with the given per-connection timeout.
func NewDialer(timeout time.Duration) *Dialer {
	return &Dialer{timeout: timeout}
}

// Dial opens a TCP connection to the device. Port 9999 is assumed when the
// address does not carry one.
func (d *Dialer) Dial(ctx context.Context, address string) (interfaces.DeviceConn, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, defaultPort)
	}

	dialer := net.Dialer{Timeout: d.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	return &Conn{conn: conn, timeout: d.timeout}, nil
}

// Conn is a single-poll connection to a Kasa plug.
type Conn struct {
	conn    net.Conn
	timeout time.Duration
}

// ReadUsage reads the plug's emeter state. The returned raw shape carries
// instantaneous power in milliwatts under "power_mw" and, when the device
// reported day statistics, today's cumulative energy in kilowatt hours
// under "today".
func (c *Conn) ReadUsage(ctx context.Context) (interfaces.RawUsage, error) {
	realtime, err := c.command(ctx, map[string]any{
		"emeter": map[string]any{"get_realtime": map[string]any{}},
	}, "get_realtime")
	if err != nil {
		return nil, err
	}

	raw := interfaces.RawUsage{}
	if mw, ok := realtime["power_mw"]; ok {
		raw["power_mw"] = mw
	} else if w, ok := realtime["power"].(float64); ok {
		// Older hardware revisions report watts instead of milliwatts.
		raw["power_mw"] = w * 1000
	}

	// Day statistics are best-effort; plugs that cannot report them still
	// yield a usable realtime reading.
	now := time.Now()
	daystat, err := c.command(ctx, map[string]any{
		"emeter": map[string]any{"get_daystat": map[string]any{
			"year":  now.Year(),
			"month": int(now.Month()),
		}},
	}, "get_daystat")
	if err != nil {
		logger.Debug().Err(err).Msg("Kasa day statistics unavailable")
		return raw, nil
	}

	if kwh, ok := todayEnergy(daystat, now.Day()); ok {
		raw["today"] = kwh
	}

	return raw, nil
}

// Close closes the TCP connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// command sends one emeter command and returns the decoded reply section.
func (c *Conn) command(ctx context.Context, request map[string]any, reply string) (map[string]any, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	if _, err := c.conn.Write(encrypt(payload)); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	var length uint32
	if err := binary.Read(c.conn, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("read response length: %w", err)
	}
	if length > maxResponseLen {
		return nil, fmt.Errorf("response length %d exceeds limit", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var decoded struct {
		Emeter map[string]map[string]any `json:"emeter"`
	}
	if err := json.Unmarshal(decrypt(body), &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	section, ok := decoded.Emeter[reply]
	if !ok {
		return nil, fmt.Errorf("response missing emeter.%s", reply)
	}
	if code, ok := section["err_code"].(float64); ok && code != 0 {
		return nil, fmt.Errorf("device returned err_code %d for %s", int(code), reply)
	}

	return section, nil
}

// todayEnergy extracts today's kWh entry from a get_daystat reply.
func todayEnergy(daystat map[string]any, day int) (float64, bool) {
	entries, ok := daystat["day_list"].([]any)
	if !ok {
		return 0, false
	}
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if d, ok := entry["day"].(float64); !ok || int(d) != day {
			continue
		}
		if kwh, ok := entry["energy"].(float64); ok {
			return kwh, true
		}
		if wh, ok := entry["energy_wh"].(float64); ok {
			return wh / 1000, true
		}
	}
	return 0, false
}

// encrypt frames and obfuscates a request payload.
func encrypt(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	key := byte(cipherSeed)
	for i, b := range payload {
		key ^= b
		out[4+i] = key
	}
	return out
}

// decrypt reverses the autokey XOR cipher on a response body.
func decrypt(body []byte) []byte {
	out := make([]byte, len(body))
	key := byte(cipherSeed)
	for i, b := range body {
		out[i] = key ^ b
		key = b
	}
	return out
}
