// Package config provides configuration for the plauder chat client.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. .env file in the working directory (never overrides the environment)
//  3. YAML config file (discovered or explicitly specified)
//  4. Environment variable overrides (DIAL_* and PLAUDER_* names)
//  5. File reference resolution (_file suffix fields)
//  6. Validation
//
// Command-line flags are applied on top by the caller.
package config

import "time"

// Provider client implementations selectable with dial.client.
const (
	ClientRaw = "raw"
	ClientSDK = "sdk"
)

// Storage types selectable with storage.type.
const (
	StorageNone     = "none"
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// DefaultSystemPrompt is used when the user enters no system prompt.
const DefaultSystemPrompt = "You are a helpful assistant."

// Config holds all configuration for plauder.
type Config struct {
	DIAL          DIALConfig          `yaml:"dial"`
	Chat          ChatConfig          `yaml:"chat"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DIALConfig holds the completion endpoint settings.
type DIALConfig struct {
	Endpoint    string        `yaml:"endpoint"`     // default: https://ai-proxy.lab.epam.com
	APIKey      string        `yaml:"api_key"`      // required
	APIKeyFile  string        `yaml:"api_key_file"` // _file variant for api_key
	Deployment  string        `yaml:"deployment"`   // default: gpt-4
	APIVersion  string        `yaml:"api_version"`  // optional, sdk client only
	Client      string        `yaml:"client"`       // "raw" or "sdk", default: "raw"
	Timeout     time.Duration `yaml:"timeout"`      // non-streaming requests, default: 120s
	Temperature *float64      `yaml:"temperature"`  // optional
	MaxTokens   *int          `yaml:"max_tokens"`   // optional
}

// ChatConfig holds conversation loop settings.
type ChatConfig struct {
	Stream       bool   `yaml:"stream"`        // default: true
	SystemPrompt string `yaml:"system_prompt"` // default: DefaultSystemPrompt
}

// StorageConfig holds transcript persistence settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "none", "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // sessions kept by the memory store, default: 100
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 4
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: true
}

// ObservabilityConfig holds logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"` // TRACE, DEBUG, INFO, WARN, ERROR; default: INFO
	Debug    string        `yaml:"debug"`     // comma-separated debug categories
	Metrics  MetricsConfig `yaml:"metrics"`
	Tracing  TracingConfig `yaml:"tracing"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: false
	Addr    string `yaml:"addr"`    // default: ":9464"
	Path    string `yaml:"path"`    // default: "/metrics"
}

// TracingConfig holds OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`  // default: false
	Endpoint string `yaml:"endpoint"` // OTLP/HTTP host:port, exporter default when empty
	Insecure bool   `yaml:"insecure"`
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		DIAL: DIALConfig{
			Endpoint:   "https://ai-proxy.lab.epam.com",
			Deployment: "gpt-4",
			Client:     ClientRaw,
			Timeout:    120 * time.Second,
		},
		Chat: ChatConfig{
			Stream:       true,
			SystemPrompt: DefaultSystemPrompt,
		},
		Storage: StorageConfig{
			Type:    StorageMemory,
			MaxSize: 100,
			Postgres: PostgresConfig{
				MaxConns:       4,
				MigrateOnStart: true,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel: "INFO",
			Metrics: MetricsConfig{
				Addr: ":9464",
				Path: "/metrics",
			},
		},
	}
}
