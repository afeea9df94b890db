// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for the plug power logger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal tracks the number of completed poll cycles
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plugpower_cycles_total",
		Help: "Total number of completed poll cycles",
	})

	// DevicesConfigured tracks the number of devices in the configuration
	DevicesConfigured = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plugpower_devices_configured",
		Help: "Number of smart plugs configured for polling",
	})

	// ReadingsTotal tracks the total number of readings collected
	ReadingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plugpower_readings_total",
		Help: "Total number of readings collected",
	})

	// PollErrors tracks the number of failed device polls
	PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plugpower_poll_errors_total",
		Help: "Total number of failed device polls",
	}, []string{"device"})

	// PollDuration tracks how long a single device poll takes
	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "plugpower_poll_duration_seconds",
		Help:    "Duration of a single device poll in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SinkWritesTotal tracks the number of successful batch writes per destination
	SinkWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plugpower_sink_writes_total",
		Help: "Total number of successful batch writes to a destination",
	}, []string{"target"})

	// SinkWriteErrors tracks the number of failed batch writes per destination
	SinkWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plugpower_sink_write_errors_total",
		Help: "Total number of failed batch writes to a destination",
	}, []string{"target"})

	// CurrentPower tracks the last observed power draw per device
	CurrentPower = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "plugpower_current_power_watts",
		Help: "Last observed power draw in watts",
	}, []string{"device"})

	// TodayEnergy tracks the last observed cumulative energy per device
	TodayEnergy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "plugpower_today_energy_watt_hours",
		Help: "Last observed cumulative energy today in watt hours",
	}, []string{"device"})
)
