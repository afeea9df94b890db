// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package config provides configuration management for the plug power logger.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/plugpower/plug-power-logger/pkg/errors"
	"github.com/plugpower/plug-power-logger/pkg/util"
)

// Config represents the application configuration. It is immutable for the
// process lifetime except where a SIGHUP reload swaps the poller settings.
type Config struct {
	Destinations []Destination `yaml:"destinations" validate:"dive"`
	Devices      Devices       `yaml:"devices"`
	Poller       Poller        `yaml:"poller"`
}

// Destination is one InfluxDB write target.
type Destination struct {
	Name   string `yaml:"name" validate:"required"`
	URL    string `yaml:"url" validate:"required,url"`
	Token  string `yaml:"token" validate:"required"`
	Org    string `yaml:"org" validate:"required"`
	Bucket string `yaml:"bucket" validate:"required"`
}

// Devices holds the per-vendor-family device sets. At least one family must
// be configured with at least one device.
type Devices struct {
	Kasa *KasaFamily `yaml:"kasa"`
	Tapo *TapoFamily `yaml:"tapo"`
}

// KasaFamily configures the Kasa plugs. The LAN protocol is
// unauthenticated; auth is accepted for config-surface compatibility and
// currently unused.
type KasaFamily struct {
	Auth    *Auth    `yaml:"auth"`
	Devices []Device `yaml:"devices" validate:"dive"`
}

// TapoFamily configures the Tapo plugs and their shared cloud credentials.
type TapoFamily struct {
	User    string       `yaml:"user" validate:"required"`
	Passw   string       `yaml:"passw" validate:"required"`
	Devices []TapoDevice `yaml:"devices" validate:"dive"`
}

// Auth is an optional vendor-scoped credential pair.
type Auth struct {
	User  string `yaml:"user"`
	Passw string `yaml:"passw"`
}

// Device is one plug reachable at a fixed address.
type Device struct {
	Name string `yaml:"name" validate:"required"`
	IP   string `yaml:"ip" validate:"required"`
}

// TapoDevice is one Tapo plug, optionally pinned to one auth scheme.
type TapoDevice struct {
	Name string `yaml:"name" validate:"required"`
	IP   string `yaml:"ip" validate:"required"`
	Auth string `yaml:"auth" validate:"omitempty,oneof=all default_only legacy_only"`
}

// Poller holds run-mode settings.
type Poller struct {
	Persist     bool   `yaml:"persist"`
	Interval    int    `yaml:"interval"`    // seconds between cycles; required when persist
	Timeout     int    `yaml:"timeout"`     // seconds per device poll
	Concurrency int    `yaml:"concurrency"` // device poll worker count
	LogLevel    string `yaml:"loglevel"`
}

// IntervalDuration returns the cycle interval as a duration.
func (p Poller) IntervalDuration() time.Duration {
	return time.Duration(p.Interval) * time.Second
}

// TimeoutDuration returns the per-device timeout as a duration.
func (p Poller) TimeoutDuration() time.Duration {
	return time.Duration(p.Timeout) * time.Second
}

// DeviceCount returns the total number of configured devices across both
// families.
func (c *Config) DeviceCount() int {
	n := 0
	if c.Devices.Kasa != nil {
		n += len(c.Devices.Kasa.Devices)
	}
	if c.Devices.Tapo != nil {
		n += len(c.Devices.Tapo.Devices)
	}
	return n
}

// Load reads configuration from a YAML file and applies environment
// variable overrides. Any failure is a ConfigError and fatal to the caller.
func Load(path string) (*Config, error) {
	data, err := util.ReadFileSafely(path)
	if err != nil {
		return nil, errors.NewConfigError("", fmt.Errorf("failed to read config file: %w", err))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewConfigError("", fmt.Errorf("failed to parse config file: %w", err))
	}

	cfg.applyEnvironmentOverrides()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides. The
// INFLUXDB_* variables address the first configured destination, or add one
// when none is configured.
func (c *Config) applyEnvironmentOverrides() {
	if url := os.Getenv("INFLUXDB_URL"); url != "" {
		if len(c.Destinations) == 0 {
			c.Destinations = append(c.Destinations, Destination{Name: "influxdb"})
		}
		c.Destinations[0].URL = url
	}
	if len(c.Destinations) > 0 {
		if token := os.Getenv("INFLUXDB_TOKEN"); token != "" {
			c.Destinations[0].Token = token
		}
		if org := os.Getenv("INFLUXDB_ORG"); org != "" {
			c.Destinations[0].Org = org
		}
		if bucket := os.Getenv("INFLUXDB_BUCKET"); bucket != "" {
			c.Destinations[0].Bucket = bucket
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Poller.LogLevel = level
	}
	if interval := os.Getenv("POLL_INTERVAL"); interval != "" {
		seconds, parseErr := strconv.Atoi(interval)
		if parseErr == nil {
			c.Poller.Interval = seconds
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse POLL_INTERVAL '%s': %v\n", interval, parseErr)
		}
	}
}

// setDefaults sets default values for configuration fields if not provided
func (c *Config) setDefaults() {
	if c.Poller.LogLevel == "" {
		c.Poller.LogLevel = "info"
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = 10
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = 4
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return errors.NewConfigError(first.Namespace(), fmt.Errorf("failed %q validation", first.Tag()))
		}
		return errors.NewConfigError("", err)
	}

	if err := c.validateDevices(); err != nil {
		return err
	}

	return c.validatePoller()
}

// validateDevices requires at least one configured device in at least one
// vendor family. A fleet where every device fails to respond at runtime is
// fine; a fleet with nothing to poll is a configuration error.
func (c *Config) validateDevices() error {
	kasaCount := 0
	if c.Devices.Kasa != nil {
		kasaCount = len(c.Devices.Kasa.Devices)
	}
	tapoCount := 0
	if c.Devices.Tapo != nil {
		tapoCount = len(c.Devices.Tapo.Devices)
	}

	if kasaCount+tapoCount == 0 {
		return errors.NewConfigError("devices", errors.ErrNoDevicesConfigured)
	}
	return nil
}

// validatePoller validates the run-mode settings.
func (c *Config) validatePoller() error {
	if c.Poller.Persist && c.Poller.Interval < 1 {
		return errors.NewConfigError("poller.interval", errors.ErrIntervalRequired)
	}
	if c.Poller.Interval < 0 {
		return errors.NewConfigError("poller.interval", fmt.Errorf("must not be negative"))
	}
	if c.Poller.Timeout < 1 {
		return errors.NewConfigError("poller.timeout", fmt.Errorf("must be at least 1 second"))
	}
	if c.Poller.Concurrency < 1 {
		return errors.NewConfigError("poller.concurrency", fmt.Errorf("must be at least 1"))
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true,
		"warning": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[c.Poller.LogLevel] {
		return errors.NewConfigError("poller.loglevel", fmt.Errorf("must be one of: debug, info, warn, error, fatal, panic"))
	}

	return nil
}
