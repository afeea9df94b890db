// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package collector

import (
	"encoding/json"
	"time"

	"github.com/plugpower/plug-power-logger/pkg/errors"
)

// NormalizeKasa converts a Kasa emeter response into a Reading.
//
// The raw shape carries instantaneous power in milliwatts under "power_mw"
// and optionally the day's cumulative energy in kilowatt hours under
// "today". Kasa firmware is unreliable at distinguishing a true zero from
// "not yet available", so any falsy or zero-like "today" value is treated
// as absent rather than as zero.
func NormalizeKasa(device string, raw map[string]any, at time.Time) (Reading, error) {
	milliwatts, ok := toFloat(raw["power_mw"])
	if !ok {
		return Reading{}, errors.NewShapeError("power_mw", device, nil)
	}

	r := Reading{
		DeviceName: device,
		NowWatts:   milliwatts / 1000,
		CapturedAt: at,
	}

	if kwh, ok := toFloat(raw["today"]); ok && kwh != 0 {
		wh := kwh * 1000
		r.TodayWattHours = &wh
	}

	return r, nil
}

// NormalizeTapo converts a Tapo get_energy_usage response into a Reading.
//
// Depending on firmware generation the usage fields arrive either nested
// under a "result" key or at the top level. A top-level shape is re-wrapped
// into the nested one so a single extraction path handles both. Power is in
// milliwatts under "current_power"; cumulative energy is already in watt
// hours under "today_energy" and is absent when the key is missing.
func NormalizeTapo(device string, raw map[string]any, at time.Time) (Reading, error) {
	if _, ok := raw["result"]; !ok {
		if _, ok := raw["current_power"]; ok {
			raw = map[string]any{"result": raw}
		}
	}

	result, ok := raw["result"].(map[string]any)
	if !ok {
		return Reading{}, errors.NewShapeError("result", device, nil)
	}

	milliwatts, ok := toFloat(result["current_power"])
	if !ok {
		return Reading{}, errors.NewShapeError("current_power", device, nil)
	}

	r := Reading{
		DeviceName: device,
		NowWatts:   milliwatts / 1000,
		CapturedAt: at,
	}

	if wh, ok := toFloat(result["today_energy"]); ok {
		r.TodayWattHours = &wh
	}

	return r, nil
}

// toFloat extracts a numeric value from a decoded JSON field.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
