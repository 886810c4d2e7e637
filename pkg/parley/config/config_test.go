package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Expected sqlite driver, got %s", cfg.Database.Driver)
	}
	if cfg.Timeouts.Notification <= 0 {
		t.Error("Expected a positive notification timeout")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9000
database:
  driver: postgres
  dsn: host=db user=parley dbname=parley
timeouts:
  transaction: 3s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Expected postgres driver, got %s", cfg.Database.Driver)
	}
	if cfg.Timeouts.Transaction != 3*time.Second {
		t.Errorf("Expected 3s transaction timeout, got %s", cfg.Timeouts.Transaction)
	}
	// Untouched sections keep their defaults
	if cfg.Uploads.Dir != "./uploads" {
		t.Errorf("Expected default upload dir, got %s", cfg.Uploads.Dir)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 9000\n")
	t.Setenv("PORT", "7000")
	t.Setenv("PARLEY_TX_TIMEOUT", "250ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Expected env port 7000, got %d", cfg.Server.Port)
	}
	if cfg.Timeouts.Transaction != 250*time.Millisecond {
		t.Errorf("Expected 250ms transaction timeout, got %s", cfg.Timeouts.Transaction)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "oracle"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for unsupported driver")
	}

	cfg = Default()
	cfg.Environment = "production"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for development JWT secret in production")
	}

	cfg = Default()
	cfg.Push.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for push without credentials")
	}
}
