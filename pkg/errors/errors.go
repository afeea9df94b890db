// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package errors provides structured error types for the plug power logger.
//
// The containment policy of the collector depends on being able to tell the
// error granularities apart: configuration errors terminate the process,
// device errors are contained to a single device for a single cycle, and sink
// errors are contained to a single destination for a single cycle. Each
// granularity gets its own type so callers can inspect errors with
// errors.As() and errors.Is() instead of matching strings.
//
// # Example Usage
//
//	err := errors.NewDeviceError("connect", "garage-heater", netErr)
//	if errors.IsDeviceError(err) {
//	    log.Printf("device poll failed: %v", err)
//	}
package errors

import (
	"errors"
	"fmt"
)

// ConfigError represents a fatal configuration error.
type ConfigError struct {
	Field string // Configuration field that caused the error
	Err   error  // Underlying error or description
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config error: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new configuration error.
func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{Field: field, Err: err}
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// DeviceError represents a recoverable per-device failure: a connect,
// login or read step failed for one device during one cycle.
type DeviceError struct {
	Op     string // Step being performed ("connect", "login", "read usage")
	Device string // Configured device name
	Err    error  // Underlying error
}

func (e *DeviceError) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("device %s (device=%s): %v", e.Op, e.Device, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("device %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("device %s failed", e.Op)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// NewDeviceError creates a new device error.
func NewDeviceError(op, device string, err error) *DeviceError {
	return &DeviceError{Op: op, Device: device, Err: err}
}

// IsDeviceError checks if an error is a DeviceError.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

// ShapeError represents a normalization failure: the raw vendor response
// could not be converted to a reading. The device is skipped for the cycle
// rather than a guessed value being emitted.
type ShapeError struct {
	Field  string // Raw field that could not be extracted
	Device string // Configured device name
	Err    error  // Underlying error (optional)
}

func (e *ShapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("response shape: field %q (device=%s): %v", e.Field, e.Device, e.Err)
	}
	return fmt.Sprintf("response shape: field %q missing or not numeric (device=%s)", e.Field, e.Device)
}

func (e *ShapeError) Unwrap() error {
	return e.Err
}

// NewShapeError creates a new shape error.
func NewShapeError(field, device string, err error) *ShapeError {
	return &ShapeError{Field: field, Device: device, Err: err}
}

// IsShapeError checks if an error is a ShapeError.
func IsShapeError(err error) bool {
	var se *ShapeError
	return errors.As(err, &se)
}

// SinkError represents a recoverable per-destination write failure.
type SinkError struct {
	Target string // Configured destination name
	Err    error  // Underlying error
}

func (e *SinkError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("sink write (target=%s): %v", e.Target, e.Err)
	}
	return fmt.Sprintf("sink write: %v", e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// NewSinkError creates a new sink error.
func NewSinkError(target string, err error) *SinkError {
	return &SinkError{Target: target, Err: err}
}

// IsSinkError checks if an error is a SinkError.
func IsSinkError(err error) bool {
	var se *SinkError
	return errors.As(err, &se)
}

// Sentinel errors for common conditions
var (
	// ErrNoReading indicates every authentication scheme attempt for a
	// device failed to yield a response. Distinct from a zero-watt reading.
	ErrNoReading = errors.New("no reading obtained")

	// ErrNoDevicesConfigured indicates neither vendor family has any
	// devices configured. Fatal at startup.
	ErrNoDevicesConfigured = errors.New("no device family configured")

	// ErrIntervalRequired indicates persistent mode was requested without
	// a poll interval. Fatal at startup.
	ErrIntervalRequired = errors.New("persistent mode requires an interval")

	// ErrDeviceOffline indicates a device is offline or unreachable
	ErrDeviceOffline = errors.New("device offline")

	// ErrAuthRejected indicates a device rejected the supplied credentials
	ErrAuthRejected = errors.New("authentication rejected")
)
