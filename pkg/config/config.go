// Package config loads service configuration from config.yaml with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for pipeline-engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables; environment variables always override YAML values. Secrets
// (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Matching pipeline configuration
	Matching MatchingConfig `yaml:"matching"`

	// AI provider for contact extraction (optional)
	AI AIConfig `yaml:"ai"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"pipeline"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"pipeline_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// MatchingConfig holds identifier extraction and reconciliation settings.
type MatchingConfig struct {
	// CodePrefixesStr is a comma-separated list of canonical code prefixes
	// known identifiers expand to (e.g. "BK").
	CodePrefixesStr string `yaml:"code_prefixes" env:"MATCHING_CODE_PREFIXES" env-default:"BK"`

	// CodePrefixes is the parsed list from CodePrefixesStr.
	CodePrefixes []string `yaml:"-"`

	// ReconciliationMargin is how much a re-derived match must beat the
	// stored confidence by before the batch proposes a correction.
	ReconciliationMargin float64 `yaml:"reconciliation_margin" env:"MATCHING_RECONCILIATION_MARGIN" env-default:"0.10"`
}

// AIConfig holds the LLM provider used for contact extraction. Extraction is
// disabled when no provider is configured.
type AIConfig struct {
	Provider string `yaml:"provider" env:"AI_PROVIDER" env-default:""`
	Endpoint string `yaml:"endpoint" env:"AI_ENDPOINT" env-default:""`
	Model    string `yaml:"model" env:"AI_MODEL" env-default:""`
	APIKey   string `yaml:"-" env:"AI_API_KEY"` // Secret - not in YAML
}

// IsConfigured returns true if an AI provider is set up.
func (c *AIConfig) IsConfigured() bool {
	return c.Provider != "" && c.Model != ""
}

// Load reads configuration from config.yaml with environment variable
// overrides. A missing config.yaml is not an error; everything then comes
// from environment variables and defaults. The version parameter is injected
// at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.Matching.CodePrefixes = parsePrefixes(cfg.Matching.CodePrefixesStr)

	return cfg, nil
}

// parsePrefixes splits the comma-separated prefix list, trimming and
// upper-casing each entry.
func parsePrefixes(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
