// Package config provides configuration management for ThreatSync.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all ThreatSync configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Features  FeatureConfig   `yaml:"features"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Outbound  OutboundConfig  `yaml:"outbound"`
	MITRE     MITREConfig     `yaml:"mitre"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig holds Redis connection settings for the Redis-backed store.
type RedisConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	PoolSize    int    `yaml:"pool_size"`
}

// FeatureConfig toggles the engine's major subsystems.
type FeatureConfig struct {
	Enabled               bool `yaml:"enabled"`
	AttackMatrixEnabled   bool `yaml:"attack_matrix_enabled"`
	IOCCorrelationEnabled bool `yaml:"ioc_correlation_enabled"`
}

// IngestionConfig bounds every outbound feed call.
type IngestionConfig struct {
	Timeout             time.Duration `yaml:"timeout"`
	MaxRetries          int           `yaml:"max_retries"`
	BaseBackoff         time.Duration `yaml:"base_backoff"`
	DefaultSyncInterval int           `yaml:"default_sync_interval"` // seconds
}

// OutboundConfig controls the SSRF guard on the shared HTTP transport.
type OutboundConfig struct {
	AllowInsecureHTTP bool     `yaml:"allow_insecure_http"` // development only
	AllowedHosts      []string `yaml:"allowed_hosts"`
	MaxRedirects      int      `yaml:"max_redirects"`
}

// MITREConfig holds TAXII discovery settings.
type MITREConfig struct {
	TaxiiDiscoveryURL      string `yaml:"taxii_discovery_url"`
	EnterpriseCollectionID string `yaml:"enterprise_collection_id"`
}

// FeedsConfig holds per-source credentials and base URLs. API keys are
// indirected through env var names so config files never carry secrets.
type FeedsConfig struct {
	OTXAPIKeyEnv            string `yaml:"otx_api_key_env"`
	CIRCLBaseURL            string `yaml:"circl_base_url"`
	URLHausAuthKeyEnv       string `yaml:"urlhaus_auth_key_env"`
	MalwareBazaarAuthKeyEnv string `yaml:"malwarebazaar_auth_key_env"`
	OTXBaseURL              string `yaml:"otx_base_url"`
	URLHausBaseURL          string `yaml:"urlhaus_base_url"`
	MalwareBazaarBaseURL    string `yaml:"malwarebazaar_base_url"`
}

// OTXAPIKey resolves the OTX key from the environment, empty when unset.
func (f FeedsConfig) OTXAPIKey() string { return os.Getenv(f.OTXAPIKeyEnv) }

// URLHausAuthKey resolves the URLhaus key from the environment.
func (f FeedsConfig) URLHausAuthKey() string { return os.Getenv(f.URLHausAuthKeyEnv) }

// MalwareBazaarAuthKey resolves the MalwareBazaar key from the environment.
func (f FeedsConfig) MalwareBazaarAuthKey() string { return os.Getenv(f.MalwareBazaarAuthKeyEnv) }

// ExpirationDays holds per-type indicator time-to-live windows in days.
// URLs rot fastest; CVEs stay relevant for years.
type ExpirationDays struct {
	IPAddress int `yaml:"ip_address"`
	Domain    int `yaml:"domain"`
	URL       int `yaml:"url"`
	FileHash  int `yaml:"file_hash"`
	CVE       int `yaml:"cve"`
	Other     int `yaml:"other"`
}

// ScoringConfig tunes confidence scoring and expiration.
type ScoringConfig struct {
	HighConfidenceThreshold int            `yaml:"high_confidence_threshold"`
	DefaultExpirationDays   ExpirationDays `yaml:"default_expiration_days"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Load reads configuration from a YAML file on top of defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
		},
		Features: FeatureConfig{
			Enabled:               true,
			AttackMatrixEnabled:   true,
			IOCCorrelationEnabled: true,
		},
		Ingestion: IngestionConfig{
			Timeout:             15 * time.Second,
			MaxRetries:          3,
			BaseBackoff:         750 * time.Millisecond,
			DefaultSyncInterval: 3600,
		},
		Outbound: OutboundConfig{
			AllowInsecureHTTP: false,
			MaxRedirects:      3,
		},
		MITRE: MITREConfig{
			TaxiiDiscoveryURL:      "https://attack-taxii.mitre.org/taxii2/",
			EnterpriseCollectionID: "x-mitre-collection--1f5f1533-f617-4ca8-9ab4-6a02367fa019",
		},
		Feeds: FeedsConfig{
			OTXAPIKeyEnv:            "OTX_API_KEY",
			CIRCLBaseURL:            "https://vulnerability.circl.lu/api",
			URLHausAuthKeyEnv:       "URLHAUS_AUTH_KEY",
			MalwareBazaarAuthKeyEnv: "MALWAREBAZAAR_AUTH_KEY",
			OTXBaseURL:              "https://otx.alienvault.com",
			URLHausBaseURL:          "https://urlhaus-api.abuse.ch/v1",
			MalwareBazaarBaseURL:    "https://mb-api.abuse.ch/api/v1",
		},
		Scoring: ScoringConfig{
			HighConfidenceThreshold: 75,
			DefaultExpirationDays: ExpirationDays{
				IPAddress: 14,
				Domain:    30,
				URL:       7,
				FileHash:  120,
				CVE:       365,
				Other:     30,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// StaleRunWindow is how long a RUNNING feed run may sit before the next sync
// reconciles it to PARTIAL. Derived from the fetch timeout with a ten minute
// floor so a crashed process cannot block re-sync forever.
func (c *Config) StaleRunWindow() time.Duration {
	derived := 20 * c.Ingestion.Timeout
	if derived < 10*time.Minute {
		return 10 * time.Minute
	}
	return derived
}
