package openaisdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/rhuss/plauder/pkg/api"
	"github.com/rhuss/plauder/pkg/debug"
	"github.com/rhuss/plauder/pkg/observability"
	"github.com/rhuss/plauder/pkg/provider"
)

// Name is the provider identifier.
const Name = "openaisdk"

// Config holds configuration for the SDK-backed provider.
type Config struct {
	BaseURL    string
	APIKey     string
	Deployment string

	// APIVersion is sent as the api-version query parameter when set.
	APIVersion string

	// Timeout applies to non-streaming requests. Defaults to 120s.
	Timeout time.Duration

	Temperature *float64
	MaxTokens   *int

	// Transport overrides the HTTP transport (tests, proxies).
	Transport http.RoundTripper
}

// Provider implements provider.Provider using the OpenAI SDK client.
type Provider struct {
	client     openai.Client
	httpClient *http.Client
	cfg        Config
}

// Ensure Provider implements provider.Provider at compile time.
var _ provider.Provider = (*Provider)(nil)

// New creates a Provider. BaseURL and Deployment are required.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openaisdk: BaseURL is required")
	}
	if cfg.Deployment == "" {
		return nil, fmt.Errorf("openaisdk: Deployment is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient := &http.Client{Transport: observability.InstrumentTransport(Name, base)}

	opts := []option.RequestOption{
		option.WithBaseURL(DeploymentURL(cfg.BaseURL, cfg.Deployment)),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
		// DIAL authenticates with api-key; never forward a bearer token
		// picked up from OPENAI_API_KEY.
		option.WithHeaderDel("authorization"),
		option.WithMiddleware(filterEventStream),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithHeader("api-key", cfg.APIKey))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, option.WithQuery("api-version", cfg.APIVersion))
	}

	return &Provider{
		client:     openai.NewClient(opts...),
		httpClient: httpClient,
		cfg:        cfg,
	}, nil
}

// DeploymentURL returns the SDK base URL for a deployment. The SDK appends
// "chat/completions" to it.
func DeploymentURL(baseURL, deployment string) string {
	return strings.TrimRight(baseURL, "/") + "/openai/deployments/" + url.PathEscape(deployment) + "/"
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return Name
}

// Complete performs a non-streaming request and returns the first choice.
func (p *Provider) Complete(ctx context.Context, messages []api.Message) (*provider.Completion, error) {
	debug.Log(debug.CategoryProviders, "request",
		"provider", Name,
		"deployment", p.cfg.Deployment,
		"messages", len(messages),
		"stream", false,
	)

	resp, err := p.client.Chat.Completions.New(ctx, p.params(messages), option.WithRequestTimeout(p.cfg.Timeout))
	if err != nil {
		return nil, mapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, api.NewEmptyResponseError()
	}

	return &provider.Completion{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

// Stream opens a streaming request. The SDK only reports a failed request
// on the first read, so the stream is primed here to surface HTTP errors
// before a ChunkStream is handed out.
func (p *Provider) Stream(ctx context.Context, messages []api.Message) (provider.ChunkStream, error) {
	debug.Log(debug.CategoryProviders, "request",
		"provider", Name,
		"deployment", p.cfg.Deployment,
		"messages", len(messages),
		"stream", true,
	)

	s := newChunkStream(p.client.Chat.Completions.NewStreaming(ctx, p.params(messages)))
	if err := s.prime(); err != nil {
		s.Close()
		return nil, mapError(err)
	}
	return s, nil
}

// Close releases idle connections.
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func (p *Provider) params(messages []api.Message) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    p.cfg.Deployment,
		Messages: toOpenAIMessages(messages),
	}
	if p.cfg.Temperature != nil {
		params.Temperature = openai.Float(*p.cfg.Temperature)
	}
	if p.cfg.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*p.cfg.MaxTokens))
	}
	return params
}

// toOpenAIMessages converts conversation messages to the SDK union type.
func toOpenAIMessages(msgs []api.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case api.RoleSystem:
			out[i] = openai.SystemMessage(m.Content)
		case api.RoleAssistant:
			out[i] = openai.AssistantMessage(m.Content)
		default:
			out[i] = openai.UserMessage(m.Content)
		}
	}
	return out
}

// mapError converts SDK errors into request_failed errors. An *openai.Error
// carries the HTTP status and body; anything else means no response was
// received.
func mapError(err error) error {
	var sdkErr *openai.Error
	if errors.As(err, &sdkErr) {
		return api.NewRequestFailedError(sdkErr.StatusCode, sdkErr.RawJSON(), sdkErr.Message, err)
	}
	return api.NewRequestFailedError(0, "", "connection error: "+err.Error(), err)
}
