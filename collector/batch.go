// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package collector

// Measurement and field names of the downstream wire shape.
const (
	Measurement      = "power_watts"
	TagHost          = "host"
	FieldConsumption = "consumption"
	FieldWattsToday  = "watts_today"
)

// BuildBatch converts a reading set into an ordered sequence of metric
// points. Every reading yields one consumption point; a watts_today point is
// added only when the reading carries a cumulative value. Points keep the
// insertion order of the set and all share their reading's capture instant.
//
// BuildBatch is pure: it has no side effects and an empty set yields an
// empty (nil) batch, which callers must treat as nothing to write.
func BuildBatch(set *ReadingSet) []MetricPoint {
	var points []MetricPoint
	for _, r := range set.Readings() {
		points = append(points, MetricPoint{
			Measurement: Measurement,
			Tags:        map[string]string{TagHost: r.DeviceName},
			Fields:      map[string]any{FieldConsumption: r.NowWatts},
			Timestamp:   r.CapturedAt,
		})
		if r.TodayWattHours != nil {
			points = append(points, MetricPoint{
				Measurement: Measurement,
				Tags:        map[string]string{TagHost: r.DeviceName},
				Fields:      map[string]any{FieldWattsToday: *r.TodayWattHours},
				Timestamp:   r.CapturedAt,
			})
		}
	}
	return points
}
