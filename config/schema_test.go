// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSchemaTestConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return tmpFile
}

func TestValidateWithSchema_ValidConfig(t *testing.T) {
	validYAML := `server:
  host: "localhost"
  port: 3069
intiface:
  url: "ws://127.0.0.1:12345"
  client_name: "haptic-bridge"
  scan_timeout: "2s"
  connect_timeout: "5s"
  retry_delay: "5s"
  discover: false
device:
  default_speed: 0.5
  default_position: 0.5
  default_duration: "30s"
notifications:
  slack_webhook_url: "https://hooks.slack.com/services/TEST/WEBHOOK/URL"
logging:
  level: "info"
`

	tmpFile := writeSchemaTestConfig(t, validYAML)
	if err := ValidateWithSchema(tmpFile); err != nil {
		t.Errorf("ValidateWithSchema() with valid config failed: %v", err)
	}
}

func TestValidateWithSchema_BadURLScheme(t *testing.T) {
	invalidYAML := `intiface:
  url: "http://127.0.0.1:12345"
logging:
  level: "info"
`

	tmpFile := writeSchemaTestConfig(t, invalidYAML)
	if err := ValidateWithSchema(tmpFile); err == nil {
		t.Error("ValidateWithSchema() should fail for a non-websocket URL")
	}
}

func TestValidateWithSchema_InvalidType(t *testing.T) {
	invalidYAML := `server:
  port: "not-a-number"
intiface:
  url: "ws://127.0.0.1:12345"
`

	tmpFile := writeSchemaTestConfig(t, invalidYAML)
	if err := ValidateWithSchema(tmpFile); err == nil {
		t.Error("ValidateWithSchema() should fail with wrong field type")
	}
}

func TestValidateWithSchema_UnknownSection(t *testing.T) {
	invalidYAML := `intiface:
  url: "ws://127.0.0.1:12345"
unknown_section:
  key: "value"
`

	tmpFile := writeSchemaTestConfig(t, invalidYAML)
	if err := ValidateWithSchema(tmpFile); err == nil {
		t.Error("ValidateWithSchema() should fail with an unknown section")
	}
}

func TestValidateWithSchema_BadDurationFormat(t *testing.T) {
	invalidYAML := `intiface:
  url: "ws://127.0.0.1:12345"
  scan_timeout: "not-a-duration"
`

	tmpFile := writeSchemaTestConfig(t, invalidYAML)
	if err := ValidateWithSchema(tmpFile); err == nil {
		t.Error("ValidateWithSchema() should fail with an invalid duration")
	}
}

func TestValidateWithSchema_MissingFile(t *testing.T) {
	if err := ValidateWithSchema("nonexistent-config.yaml"); err == nil {
		t.Error("ValidateWithSchema() should fail when the file does not exist")
	}
}

func TestGetSchemaJSON(t *testing.T) {
	schema := GetSchemaJSON()
	if schema == "" {
		t.Error("GetSchemaJSON() returned empty string")
	}
}
