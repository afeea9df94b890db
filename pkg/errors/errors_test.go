// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestConfigError(t *testing.T) {
	baseErr := fmt.Errorf("invalid format")
	err := NewConfigError("poller.interval", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "config") || !strings.Contains(errMsg, "poller.interval") {
		t.Errorf("Error() = %q, want message containing 'config' and 'poller.interval'", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsConfigError(err) {
		t.Error("IsConfigError() should return true for ConfigError")
	}

	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Error("errors.As() should extract ConfigError")
	}
	if ce.Field != "poller.interval" {
		t.Errorf("ConfigError.Field = %q, want %q", ce.Field, "poller.interval")
	}
}

func TestConfigErrorWithoutField(t *testing.T) {
	err := NewConfigError("", fmt.Errorf("file unreadable"))
	if !strings.Contains(err.Error(), "file unreadable") {
		t.Errorf("Error() = %q, want message containing underlying error", err.Error())
	}
}

func TestDeviceError(t *testing.T) {
	baseErr := fmt.Errorf("connection timeout")
	err := NewDeviceError("connect", "garage-heater", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "connect") || !strings.Contains(errMsg, "garage-heater") {
		t.Errorf("Error() = %q, want message containing 'connect' and 'garage-heater'", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsDeviceError(err) {
		t.Error("IsDeviceError() should return true for DeviceError")
	}

	var de *DeviceError
	if !errors.As(err, &de) {
		t.Error("errors.As() should extract DeviceError")
	}
	if de.Op != "connect" {
		t.Errorf("DeviceError.Op = %q, want %q", de.Op, "connect")
	}
	if de.Device != "garage-heater" {
		t.Errorf("DeviceError.Device = %q, want %q", de.Device, "garage-heater")
	}
}

func TestShapeError(t *testing.T) {
	err := NewShapeError("current_power", "plug-1", nil)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "current_power") || !strings.Contains(errMsg, "plug-1") {
		t.Errorf("Error() = %q, want message containing the field and device", errMsg)
	}

	if !IsShapeError(err) {
		t.Error("IsShapeError() should return true for ShapeError")
	}

	var se *ShapeError
	if !errors.As(err, &se) {
		t.Error("errors.As() should extract ShapeError")
	}
	if se.Field != "current_power" {
		t.Errorf("ShapeError.Field = %q, want %q", se.Field, "current_power")
	}
}

func TestSinkError(t *testing.T) {
	baseErr := fmt.Errorf("write refused")
	err := NewSinkError("offsite", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "sink") || !strings.Contains(errMsg, "offsite") {
		t.Errorf("Error() = %q, want message containing 'sink' and 'offsite'", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsSinkError(err) {
		t.Error("IsSinkError() should return true for SinkError")
	}

	var se *SinkError
	if !errors.As(err, &se) {
		t.Error("errors.As() should extract SinkError")
	}
	if se.Target != "offsite" {
		t.Errorf("SinkError.Target = %q, want %q", se.Target, "offsite")
	}
}

func TestErrorTypesAreDistinct(t *testing.T) {
	deviceErr := NewDeviceError("read usage", "plug-1", fmt.Errorf("eof"))
	sinkErr := NewSinkError("home", fmt.Errorf("refused"))

	if IsSinkError(deviceErr) {
		t.Error("a DeviceError should not be a SinkError")
	}
	if IsDeviceError(sinkErr) {
		t.Error("a SinkError should not be a DeviceError")
	}
	if IsConfigError(deviceErr) {
		t.Error("a DeviceError should not be a ConfigError")
	}
}

func TestSentinelWrapping(t *testing.T) {
	err := NewConfigError("poller.interval", ErrIntervalRequired)
	if !errors.Is(err, ErrIntervalRequired) {
		t.Error("wrapped sentinel should survive errors.Is through ConfigError")
	}

	err2 := fmt.Errorf("%w: all auth schemes failed", ErrNoReading)
	if !errors.Is(err2, ErrNoReading) {
		t.Error("wrapped ErrNoReading should survive errors.Is")
	}
}
