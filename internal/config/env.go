package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// envVarPattern matches ${VAR} or ${VAR:default}
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} or ${VAR:default} with environment
// variable values.
func SubstituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		value := os.Getenv(varName)
		if value == "" {
			return defaultValue
		}
		return value
	})
}

// SubstituteEnvVarsInConfig recursively substitutes environment variables in
// every string field of cfg that plausibly carries a placeholder.
func SubstituteEnvVarsInConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.NodeName = SubstituteEnvVars(cfg.NodeName)
	cfg.Domain = SubstituteEnvVars(cfg.Domain)
	cfg.PublicURL = SubstituteEnvVars(cfg.PublicURL)
	cfg.BootstrapPeer = SubstituteEnvVars(cfg.BootstrapPeer)

	if cfg.Provider != nil {
		cfg.Provider.Name = SubstituteEnvVars(cfg.Provider.Name)
		cfg.Provider.APIKey = SubstituteEnvVars(cfg.Provider.APIKey)
		cfg.Provider.Model = SubstituteEnvVars(cfg.Provider.Model)
		cfg.Provider.BaseURL = SubstituteEnvVars(cfg.Provider.BaseURL)
	}

	if cfg.Storage != nil {
		cfg.Storage.Driver = SubstituteEnvVars(cfg.Storage.Driver)
		cfg.Storage.Root = SubstituteEnvVars(cfg.Storage.Root)
		cfg.Storage.PostgresDSN = SubstituteEnvVars(cfg.Storage.PostgresDSN)
	}

	if cfg.Logging != nil {
		cfg.Logging.Level = SubstituteEnvVars(cfg.Logging.Level)
		cfg.Logging.Format = SubstituteEnvVars(cfg.Logging.Format)
		cfg.Logging.Output = SubstituteEnvVars(cfg.Logging.Output)
	}

	if cfg.Metrics != nil {
		cfg.Metrics.Addr = SubstituteEnvVars(cfg.Metrics.Addr)
		cfg.Metrics.Path = SubstituteEnvVars(cfg.Metrics.Path)
	}

	if cfg.Auth != nil {
		cfg.Auth.JWTSecret = SubstituteEnvVars(cfg.Auth.JWTSecret)
	}
}

// LoadDotEnv loads a .env file into the process environment if present. A
// missing file is not an error; any other read failure is returned.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// applyEnvironmentOverrides overrides config fields with environment
// variables, which take the highest priority.
func applyEnvironmentOverrides(cfg *Config) {
	if name := os.Getenv("ANP_NODE_NAME"); name != "" {
		cfg.NodeName = name
	}
	if domain := os.Getenv("ANP_DOMAIN"); domain != "" {
		cfg.Domain = domain
	}
	if port := os.Getenv("ANP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if url := os.Getenv("ANP_PUBLIC_URL"); url != "" {
		cfg.PublicURL = url
	}
	if peer := os.Getenv("ANP_BOOTSTRAP_PEER"); peer != "" {
		cfg.BootstrapPeer = peer
	}
	if skip := os.Getenv("ANP_DEV_SKIP_SIG"); skip != "" {
		cfg.DevSkipSig = skip == "true" || skip == "1"
	}

	if provider := os.Getenv("ANP_PROVIDER"); provider != "" && cfg.Provider != nil {
		cfg.Provider.Name = provider
	}
	if key := os.Getenv("ANP_PROVIDER_API_KEY"); key != "" && cfg.Provider != nil {
		cfg.Provider.APIKey = key
	}

	if driver := os.Getenv("ANP_STORAGE_DRIVER"); driver != "" && cfg.Storage != nil {
		cfg.Storage.Driver = driver
	}
	if dsn := os.Getenv("ANP_STORAGE_POSTGRES_DSN"); dsn != "" && cfg.Storage != nil {
		cfg.Storage.PostgresDSN = dsn
	}

	if level := os.Getenv("ANP_LOG_LEVEL"); level != "" && cfg.Logging != nil {
		cfg.Logging.Level = level
	}

	if addr := os.Getenv("ANP_METRICS_ADDR"); addr != "" && cfg.Metrics != nil {
		cfg.Metrics.Addr = addr
		cfg.Metrics.Enabled = true
	}
}

// GetEnvironment returns the current environment from ANP_ENV or ENVIRONMENT,
// defaulting to development.
func GetEnvironment() string {
	env := os.Getenv("ANP_ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		env = "development"
	}
	return strings.ToLower(env)
}

// IsProduction returns true if running in the production environment.
func IsProduction() bool {
	return GetEnvironment() == "production"
}

// IsDevelopment returns true if running in the development or local
// environment.
func IsDevelopment() bool {
	env := GetEnvironment()
	return env == "development" || env == "local"
}
