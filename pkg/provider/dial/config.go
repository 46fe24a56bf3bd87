package dial

import (
	"net/http"
	"time"
)

// Config holds configuration for the DIAL provider adapter.
type Config struct {
	// BaseURL is the DIAL server URL (e.g., "https://ai-proxy.lab.epam.com").
	BaseURL string

	// APIKey is sent in the "api-key" header.
	APIKey string

	// Deployment is the deployment name that selects the model
	// (e.g., "gpt-4").
	Deployment string

	// Timeout for non-streaming requests. Defaults to 120s. Streaming
	// requests are bounded by their context only.
	Timeout time.Duration

	// Optional sampling parameters. Nil means "use the backend default".
	Temperature *float64
	MaxTokens   *int

	// Transport overrides the HTTP transport (tests, proxies). The stream
	// client always disables keep-alives on top of it when it is an
	// *http.Transport.
	Transport http.RoundTripper
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL, apiKey, deployment string) Config {
	return Config{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Deployment: deployment,
		Timeout:    120 * time.Second,
	}
}
