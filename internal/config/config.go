package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level node configuration. Every option recognized by the
// orchestrator binds to a field here.
type Config struct {
	Environment string `yaml:"environment" json:"environment"`

	NodeName       string `yaml:"node_name" json:"node_name"`
	Domain         string `yaml:"domain" json:"domain"`
	Port           int    `yaml:"port" json:"port"`
	PublicURL      string `yaml:"public_url" json:"public_url"`
	BootstrapPeer  string `yaml:"bootstrap_peer" json:"bootstrap_peer"`
	DonationPct    float64 `yaml:"donation_pct" json:"donation_pct"`
	DevSkipSig     bool   `yaml:"dev_skip_sig" json:"dev_skip_sig"`

	Provider *ProviderConfig `yaml:"provider" json:"provider"`
	Storage  *StorageConfig  `yaml:"storage" json:"storage"`
	Logging  *LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics  *MetricsConfig  `yaml:"metrics" json:"metrics"`
	Auth     *AuthConfig     `yaml:"auth" json:"auth"`
}

// ProviderConfig selects and configures the language-model backend.
type ProviderConfig struct {
	Name       string        `yaml:"name" json:"name"`
	APIKey     string        `yaml:"api_key" json:"api_key"`
	Model      string        `yaml:"model" json:"model"`
	BaseURL    string        `yaml:"base_url" json:"base_url"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries int           `yaml:"max_retries" json:"max_retries"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver       string `yaml:"driver" json:"driver"`
	Root         string `yaml:"root" json:"root"`
	PostgresDSN  string `yaml:"postgres_dsn" json:"postgres_dsn"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// AuthConfig controls the local API's bearer-token middleware.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" json:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl" json:"token_ttl"`
}

// LoadFromFile loads configuration from a YAML file, falling back to JSON if
// YAML parsing fails.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)

	return cfg, nil
}

// SaveToFile saves configuration to a file, choosing the format by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Port == 0 {
		cfg.Port = 8420
	}
	if cfg.Domain == "" {
		cfg.Domain = "localhost"
	}

	if cfg.Provider == nil {
		cfg.Provider = &ProviderConfig{}
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = 60 * time.Second
	}
	if cfg.Provider.MaxRetries == 0 {
		cfg.Provider.MaxRetries = 3
	}

	if cfg.Storage == nil {
		cfg.Storage = &StorageConfig{}
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "file"
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = ".anp"
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Auth == nil {
		cfg.Auth = &AuthConfig{}
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}
}

// Validate reports soft configuration problems. It never panics; the caller
// decides what to do with the returned messages.
func (cfg *Config) Validate() []string {
	var problems []string

	if cfg.NodeName == "" {
		problems = append(problems, "node_name is not set")
	}
	if cfg.Provider == nil || cfg.Provider.Name == "" {
		problems = append(problems, "provider.name is not set")
	} else if cfg.Provider.APIKey == "" && cfg.Provider.Name != "mock" {
		problems = append(problems, fmt.Sprintf("provider %q has no api_key configured", cfg.Provider.Name))
	}
	if cfg.Storage != nil && cfg.Storage.Driver == "postgres" && cfg.Storage.PostgresDSN == "" {
		problems = append(problems, "storage.driver is postgres but storage.postgres_dsn is empty")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d is out of range", cfg.Port))
	}

	return problems
}
