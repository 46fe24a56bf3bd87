package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rhuss/plauder/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. ./.env, if present
//  3. YAML config file (explicit path, PLAUDER_CONFIG env, ./plauder.yaml,
//     $XDG_CONFIG_HOME/plauder/config.yaml)
//  4. Environment variable overrides
//  5. File reference resolution (_file suffix)
//  6. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log(debug.CategoryConfig, "config file loaded", "path", filePath)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports the variables of a dotenv file. Variables already set
// in the environment win. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err == nil {
		debug.Log(debug.CategoryConfig, "dotenv loaded", "path", path)
	}
	return err
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. PLAUDER_CONFIG environment variable
// 3. ./plauder.yaml in the current directory
// 4. $XDG_CONFIG_HOME/plauder/config.yaml (or ~/.config/plauder/config.yaml)
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("PLAUDER_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{"plauder.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "plauder", "config.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields. Malformed
// boolean or numeric values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}

	setString("DIAL_API_KEY", &cfg.DIAL.APIKey)
	setString("DIAL_ENDPOINT", &cfg.DIAL.Endpoint)
	setString("DIAL_DEPLOYMENT", &cfg.DIAL.Deployment)
	setString("DIAL_API_VERSION", &cfg.DIAL.APIVersion)
	setString("PLAUDER_CLIENT", &cfg.DIAL.Client)
	setBool("PLAUDER_STREAM", &cfg.Chat.Stream)
	setString("PLAUDER_SYSTEM_PROMPT", &cfg.Chat.SystemPrompt)
	setString("PLAUDER_STORAGE", &cfg.Storage.Type)
	setString("PLAUDER_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	setBool("PLAUDER_METRICS_ENABLED", &cfg.Observability.Metrics.Enabled)
	setString("PLAUDER_METRICS_ADDR", &cfg.Observability.Metrics.Addr)
	setBool("PLAUDER_TRACING_ENABLED", &cfg.Observability.Tracing.Enabled)

	if v := os.Getenv("PLAUDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("PLAUDER_TIMEOUT: %w", err))
		} else {
			cfg.DIAL.Timeout = d
		}
	}

	return errors.Join(errs...)
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// dial.api_key_file -> dial.api_key
	if cfg.DIAL.APIKeyFile != "" && cfg.DIAL.APIKey == "" {
		val, err := readSecretFile(cfg.DIAL.APIKeyFile)
		if err != nil {
			return fmt.Errorf("dial.api_key_file: %w", err)
		}
		cfg.DIAL.APIKey = val
	}

	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
