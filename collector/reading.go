// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package collector implements the polling-and-normalization pipeline: it
// turns raw vendor responses into readings, runs the per-cycle pass over the
// configured devices and converts the collected readings into metric points.
package collector

import "time"

// Reading is one normalized power measurement from one device.
//
// TodayWattHours is nil when the device could not or did not report
// cumulative usage this cycle. nil is distinct from a reported zero: the
// vendors cannot reliably distinguish "no usage yet" from "not available",
// so an unknown value is never coerced to 0.
type Reading struct {
	DeviceName     string
	NowWatts       float64
	TodayWattHours *float64
	CapturedAt     time.Time
}

// MetricPoint is one point-like record ready for a sink.
type MetricPoint struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Timestamp   time.Time
}

// ReadingSet is an insertion-ordered mapping from device name to Reading.
// Adding a reading under an existing name replaces the value in place;
// configuration is expected to keep names unique.
type ReadingSet struct {
	order    []string
	index    map[string]int
	readings []Reading
}

// NewReadingSet returns an empty reading set.
func NewReadingSet() *ReadingSet {
	return &ReadingSet{index: make(map[string]int)}
}

// Add records a reading keyed by its device name.
func (s *ReadingSet) Add(r Reading) {
	if i, ok := s.index[r.DeviceName]; ok {
		s.readings[i] = r
		return
	}
	s.index[r.DeviceName] = len(s.readings)
	s.order = append(s.order, r.DeviceName)
	s.readings = append(s.readings, r)
}

// Get returns the reading for a device name.
func (s *ReadingSet) Get(name string) (Reading, bool) {
	i, ok := s.index[name]
	if !ok {
		return Reading{}, false
	}
	return s.readings[i], true
}

// Len returns the number of readings in the set.
func (s *ReadingSet) Len() int {
	return len(s.readings)
}

// Readings returns the readings in insertion order.
func (s *ReadingSet) Readings() []Reading {
	return s.readings
}
