// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("CONF_FILE", "")
	if got := defaultConfigPath(); got != "config.yml" {
		t.Errorf("defaultConfigPath() = %q, want config.yml", got)
	}

	t.Setenv("CONF_FILE", "/etc/plugs.yml")
	if got := defaultConfigPath(); got != "/etc/plugs.yml" {
		t.Errorf("defaultConfigPath() = %q, want CONF_FILE value", got)
	}
}

func TestPerformConfigValidation(t *testing.T) {
	validYAML := `destinations:
  - name: home
    url: http://localhost:8086
    token: test-token
    org: test-org
    bucket: test-bucket
devices:
  kasa:
    devices:
      - name: plug-1
        ip: 192.168.1.40
poller:
  persist: true
  interval: 30
`
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	if code := performConfigValidation(path); code != 0 {
		t.Errorf("performConfigValidation() = %d, want 0 for a valid config", code)
	}
}

func TestPerformConfigValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "no devices",
			yaml: `poller:
  persist: false
`,
		},
		{
			name: "persist without interval",
			yaml: `devices:
  kasa:
    devices:
      - name: plug-1
        ip: 192.168.1.40
poller:
  persist: true
`,
		},
		{
			name: "unknown key",
			yaml: `devices:
  kasa:
    devices:
      - name: plug-1
        ip: 192.168.1.40
sinks: []
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatal(err)
			}
			if code := performConfigValidation(path); code != 1 {
				t.Errorf("performConfigValidation() = %d, want 1", code)
			}
		})
	}
}

func TestPerformConfigValidationMissingFile(t *testing.T) {
	if code := performConfigValidation(filepath.Join(t.TempDir(), "nope.yml")); code != 1 {
		t.Error("performConfigValidation() should fail for a missing file")
	}
}
