// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	rulesPath := cfg.Matching.RulesPath
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Matching      MatchingConfig      `yaml:"matching"`
	Reconcile     ReconcileConfig     `yaml:"reconcile"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// MatchingConfig holds matching-rule configuration
type MatchingConfig struct {
	// RulesPath points at the JSON matching-rules document.
	RulesPath string `yaml:"rules_path"`
	// CategoryRulesPath points at the payee-to-category lookup
	// document. A missing file disables categorization.
	CategoryRulesPath string `yaml:"category_rules_path"`
	// UnassignedAccount is the full name of the account that lines
	// without a contra account post against.
	UnassignedAccount string `yaml:"unassigned_account"`
}

// ReconcileConfig holds reconciliation settings
type ReconcileConfig struct {
	// DateWindowDays is the day tolerance when pairing ledger splits
	// with statement lines. 0 selects the engine default.
	DateWindowDays int `yaml:"date_window_days"`
}

// APIConfig holds audit API server settings
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${SPLITBOOK_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("SPLITBOOK_DB_PATH", "splitbook.db"),
		},
		Matching: MatchingConfig{
			RulesPath:         getEnv("SPLITBOOK_RULES_PATH", "etc/matching-rules.json"),
			CategoryRulesPath: getEnv("SPLITBOOK_CATEGORY_RULES_PATH", "etc/category-payee-lookup.json"),
			UnassignedAccount: getEnv("SPLITBOOK_UNASSIGNED_ACCOUNT", "Equity:Unassigned"),
		},
		Reconcile: ReconcileConfig{
			DateWindowDays: getEnvInt("SPLITBOOK_RECONCILE_WINDOW_DAYS", 0),
		},
		API: APIConfig{
			Port: getEnvInt("SPLITBOOK_API_PORT", 8080),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("SPLITBOOK_LOG_LEVEL", "info"),
				Format: getEnv("SPLITBOOK_LOG_FORMAT", "text"),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from the specified path, falls back
// to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

func (c *Config) applyDefaults() {
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "splitbook.db"
	}
	if c.Matching.UnassignedAccount == "" {
		c.Matching.UnassignedAccount = "Equity:Unassigned"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
