package dial

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rhuss/plauder/pkg/api"
	"github.com/rhuss/plauder/pkg/debug"
	"github.com/rhuss/plauder/pkg/observability"
	"github.com/rhuss/plauder/pkg/provider"
)

// Name is the provider identifier.
const Name = "dial"

// Provider implements provider.Provider against a DIAL deployment using
// plain HTTP and a hand-rolled event-stream reader.
type Provider struct {
	cfg      Config
	endpoint string

	client       *http.Client
	streamClient *http.Client
}

// Ensure Provider implements provider.Provider at compile time.
var _ provider.Provider = (*Provider)(nil)

// New creates a Provider. BaseURL and Deployment are required.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("dial: BaseURL is required")
	}
	if cfg.Deployment == "" {
		return nil, fmt.Errorf("dial: Deployment is required")
	}

	// Normalize: remove trailing slash from base URL.
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &Provider{
		cfg:      cfg,
		endpoint: ChatCompletionsURL(cfg.BaseURL, cfg.Deployment),
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: observability.InstrumentTransport(Name, base),
		},
		// No client timeout for streams: a stream can legitimately outlast
		// any fixed timeout, the request context bounds it instead.
		streamClient: &http.Client{
			Transport: observability.InstrumentTransport(Name, singleUseTransport(base)),
		},
	}, nil
}

// ChatCompletionsURL returns the deployment-scoped completions endpoint.
func ChatCompletionsURL(baseURL, deployment string) string {
	return strings.TrimRight(baseURL, "/") + "/openai/deployments/" + url.PathEscape(deployment) + "/chat/completions"
}

// singleUseTransport returns a copy of rt that closes every connection
// after its response, so no stream connection outlives its call.
func singleUseTransport(rt http.RoundTripper) http.RoundTripper {
	t, ok := rt.(*http.Transport)
	if !ok {
		return rt
	}
	t = t.Clone()
	t.DisableKeepAlives = true
	return t
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return Name
}

// Complete performs a non-streaming request and returns the first choice.
func (p *Provider) Complete(ctx context.Context, messages []api.Message) (*provider.Completion, error) {
	httpReq, err := p.newRequest(ctx, messages, false)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, mapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, mapHTTPError(httpResp)
	}

	var chatResp chatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("dial: parsing completion response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, api.NewEmptyResponseError()
	}

	completion := &provider.Completion{Model: chatResp.Model}
	if c := chatResp.Choices[0].Message.Content; c != nil {
		completion.Content = *c
	}
	if chatResp.Usage != nil {
		completion.PromptTokens = chatResp.Usage.PromptTokens
		completion.CompletionTokens = chatResp.Usage.CompletionTokens
	}

	debug.Log(debug.CategoryProviders, "completion received",
		"model", chatResp.Model,
		"finish_reason", chatResp.Choices[0].FinishReason,
		"content_length", len(completion.Content),
	)

	return completion, nil
}

// Stream opens a streaming request. The returned stream owns the response
// body; the caller must close it.
func (p *Provider) Stream(ctx context.Context, messages []api.Message) (provider.ChunkStream, error) {
	httpReq, err := p.newRequest(ctx, messages, true)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := p.streamClient.Do(httpReq)
	if err != nil {
		return nil, mapNetworkError(err)
	}

	// Check the status before handing out the stream.
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, mapHTTPError(httpResp)
	}

	debug.Log(debug.CategoryProviders, "stream opened",
		"status", httpResp.StatusCode,
		"content_type", httpResp.Header.Get("Content-Type"),
	)

	return newLineStream(Name, httpResp.Body), nil
}

// newRequest builds the POST request for the deployment endpoint.
func (p *Provider) newRequest(ctx context.Context, messages []api.Message, stream bool) (*http.Request, error) {
	chatReq := chatCompletionRequest{
		Messages:    api.ToWire(messages),
		Stream:      stream,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("dial: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dial: creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("api-key", p.cfg.APIKey)
	}

	debug.Log(debug.CategoryProviders, "request",
		"method", http.MethodPost,
		"url", p.endpoint,
		"messages", len(messages),
		"stream", stream,
	)
	debug.Raw(debug.CategoryProviders, string(body))

	return httpReq, nil
}

// Close releases idle connections.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	p.streamClient.CloseIdleConnections()
	return nil
}
