package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig spot-checks the defaults the rest of the engine leans on.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Redis.Enabled {
		t.Error("redis enabled by default")
	}
	if !cfg.Features.Enabled || !cfg.Features.AttackMatrixEnabled || !cfg.Features.IOCCorrelationEnabled {
		t.Error("feature gates should default on")
	}
	if cfg.Ingestion.Timeout != 15*time.Second || cfg.Ingestion.MaxRetries != 3 {
		t.Errorf("ingestion defaults = %v/%d", cfg.Ingestion.Timeout, cfg.Ingestion.MaxRetries)
	}
	if cfg.Scoring.HighConfidenceThreshold != 75 {
		t.Errorf("high confidence threshold = %d, want 75", cfg.Scoring.HighConfidenceThreshold)
	}
	if cfg.Scoring.DefaultExpirationDays.URL != 7 || cfg.Scoring.DefaultExpirationDays.CVE != 365 {
		t.Errorf("expiration days = %+v", cfg.Scoring.DefaultExpirationDays)
	}
	if cfg.MITRE.TaxiiDiscoveryURL != "https://attack-taxii.mitre.org/taxii2/" {
		t.Errorf("taxii discovery url = %s", cfg.MITRE.TaxiiDiscoveryURL)
	}
}

// TestLoadOverlaysDefaults reads a partial YAML file on top of the defaults.
func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
redis:
  enabled: true
  addr: redis.example.com:6379
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis.example.com:6379" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %s, want debug", cfg.Logging.Level)
	}
	// Untouched sections keep their defaults.
	if cfg.Scoring.HighConfidenceThreshold != 75 {
		t.Errorf("threshold = %d, want default 75", cfg.Scoring.HighConfidenceThreshold)
	}
}

// TestLoadErrors covers missing and malformed files.
func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of missing file succeeded")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load of malformed YAML succeeded")
	}
}

// TestFeedCredentialEnvIndirection resolves API keys through env var names.
func TestFeedCredentialEnvIndirection(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("OTX_API_KEY", "otx-test-key")

	if got := cfg.Feeds.OTXAPIKey(); got != "otx-test-key" {
		t.Errorf("OTXAPIKey() = %q, want otx-test-key", got)
	}

	os.Unsetenv("OTX_API_KEY")
	if got := cfg.Feeds.OTXAPIKey(); got != "" {
		t.Errorf("OTXAPIKey() with unset env = %q, want empty", got)
	}
}

// TestStaleRunWindow derives the reconciliation window from the fetch
// timeout with a floor.
func TestStaleRunWindow(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.StaleRunWindow(); got != 10*time.Minute {
		t.Errorf("StaleRunWindow with 15s timeout = %v, want 10m floor", got)
	}

	cfg.Ingestion.Timeout = 2 * time.Minute
	if got := cfg.StaleRunWindow(); got != 40*time.Minute {
		t.Errorf("StaleRunWindow with 2m timeout = %v, want 40m", got)
	}
}
