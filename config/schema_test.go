// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	"strings"
	"testing"
)

func TestValidateWithSchema_ValidConfig(t *testing.T) {
	err := ValidateWithSchema(writeConfigFile(t, sampleYAML))
	if err != nil {
		t.Errorf("ValidateWithSchema() with valid config failed: %v", err)
	}
}

func TestValidateWithSchema_MissingDevices(t *testing.T) {
	config := `destinations:
  - name: home
    url: http://localhost:8086
    token: test-token
    org: test-org
    bucket: test-bucket
poller:
  persist: false
`
	err := ValidateWithSchema(writeConfigFile(t, config))
	if err == nil {
		t.Error("ValidateWithSchema() should fail when devices is missing")
	}
}

func TestValidateWithSchema_UnknownKey(t *testing.T) {
	config := `devices:
  kasa:
    devices:
      - name: plug-1
        ip: 192.168.1.40
sinks:
  - name: typo
`
	err := ValidateWithSchema(writeConfigFile(t, config))
	if err == nil {
		t.Error("ValidateWithSchema() should reject unknown top-level keys")
	}
}

func TestValidateWithSchema_InvalidAuthMode(t *testing.T) {
	config := `devices:
  tapo:
    user: user@example.net
    passw: secret
    devices:
      - name: heater
        ip: 192.168.1.50
        auth: klap
`
	err := ValidateWithSchema(writeConfigFile(t, config))
	if err == nil {
		t.Error("ValidateWithSchema() should reject unknown auth modes")
	}
	if err != nil && !strings.Contains(err.Error(), "auth") {
		t.Errorf("error %q should name the offending field", err)
	}
}

func TestValidateWithSchema_EmptyDeviceList(t *testing.T) {
	config := `devices:
  kasa:
    devices: []
`
	err := ValidateWithSchema(writeConfigFile(t, config))
	if err == nil {
		t.Error("ValidateWithSchema() should reject an empty device list")
	}
}

func TestValidateWithSchema_InvalidLogLevel(t *testing.T) {
	config := `devices:
  kasa:
    devices:
      - name: plug-1
        ip: 192.168.1.40
poller:
  loglevel: verbose
`
	err := ValidateWithSchema(writeConfigFile(t, config))
	if err == nil {
		t.Error("ValidateWithSchema() should fail with invalid log level")
	}
}

func TestValidateWithSchema_FileNotFound(t *testing.T) {
	if err := ValidateWithSchema("nonexistent-file.yml"); err == nil {
		t.Error("ValidateWithSchema() should fail with nonexistent file")
	}
}

func TestValidateWithSchema_MalformedYAML(t *testing.T) {
	err := ValidateWithSchema(writeConfigFile(t, "devices: [unclosed"))
	if err == nil {
		t.Error("ValidateWithSchema() should fail with malformed YAML")
	}
}

func TestGetSchemaJSON(t *testing.T) {
	schema := GetSchemaJSON()
	if !strings.Contains(schema, "Plug Power Logger Configuration") {
		t.Error("GetSchemaJSON() does not return the embedded schema")
	}
}
