package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// dial.endpoint must be an absolute http(s) URL.
	if c.DIAL.Endpoint == "" {
		errs = append(errs, fmt.Errorf("dial.endpoint is required"))
	} else if u, err := url.Parse(c.DIAL.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("dial.endpoint must be an http or https URL, got %q", c.DIAL.Endpoint))
	}

	if c.DIAL.APIKey == "" {
		errs = append(errs, fmt.Errorf("dial.api_key is required (set DIAL_API_KEY or dial.api_key_file)"))
	}

	if c.DIAL.Deployment == "" {
		errs = append(errs, fmt.Errorf("dial.deployment is required"))
	}

	switch c.DIAL.Client {
	case ClientRaw, ClientSDK:
		// valid
	default:
		errs = append(errs, fmt.Errorf("dial.client must be %q or %q, got %q", ClientRaw, ClientSDK, c.DIAL.Client))
	}

	if c.DIAL.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("dial.timeout must be > 0, got %v", c.DIAL.Timeout))
	}

	if t := c.DIAL.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("dial.temperature must be between 0 and 2, got %v", *t))
	}

	if m := c.DIAL.MaxTokens; m != nil && *m <= 0 {
		errs = append(errs, fmt.Errorf("dial.max_tokens must be > 0, got %d", *m))
	}

	switch c.Storage.Type {
	case StorageNone, StorageMemory, StoragePostgres:
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"none\", \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	if c.Storage.MaxSize < 0 {
		errs = append(errs, fmt.Errorf("storage.max_size must be >= 0, got %d", c.Storage.MaxSize))
	}

	// If storage.type is "postgres", DSN or DSNFile must be set.
	if c.Storage.Type == StoragePostgres {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	switch strings.ToUpper(c.Observability.LogLevel) {
	case "", "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
		// valid
	default:
		errs = append(errs, fmt.Errorf("observability.log_level must be one of TRACE, DEBUG, INFO, WARN, ERROR, got %q", c.Observability.LogLevel))
	}

	if m := c.Observability.Metrics; m.Enabled {
		if m.Addr == "" {
			errs = append(errs, fmt.Errorf("observability.metrics.addr is required when metrics are enabled"))
		}
		if !strings.HasPrefix(m.Path, "/") {
			errs = append(errs, fmt.Errorf("observability.metrics.path must start with \"/\", got %q", m.Path))
		}
	}

	return errors.Join(errs...)
}
