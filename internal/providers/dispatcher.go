package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tutor_gateway/internal/models"
	"tutor_gateway/internal/utils"
)

const defaultRequestTimeout = 60 * time.Second

// ClientKind names the client strategy chosen for a vendor type.
type ClientKind string

const (
	ClientOpenAI           ClientKind = "openai"
	ClientOpenAICompatible ClientKind = "openai-compatible"
	ClientAnthropic        ClientKind = "anthropic"
	ClientGoogle           ClientKind = "google"
)

// SelectClient maps a vendor type to a client kind. Unknown types use the
// OpenAI-compatible client.
func SelectClient(t models.ProviderType) ClientKind {
	switch t {
	case models.ProviderTypeOpenAI:
		return ClientOpenAI
	case models.ProviderTypeDeepSeek, models.ProviderTypeYi, models.ProviderTypeCustom:
		return ClientOpenAICompatible
	case models.ProviderTypeAnthropic:
		return ClientAnthropic
	case models.ProviderTypeGoogle:
		return ClientGoogle
	default:
		return ClientOpenAICompatible
	}
}

// HTTPClient is the subset of *http.Client the dispatcher needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Dispatcher issues chat calls described by the adapter.
type Dispatcher struct {
	client  HTTPClient
	adapter Adapter
	logger  *utils.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c HTTPClient) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithAdapter replaces the default adapter settings.
func WithAdapter(a Adapter) Option {
	return func(d *Dispatcher) { d.adapter = a }
}

// WithLogger replaces the dispatcher's logger.
func WithLogger(l *utils.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a dispatcher with a pooled HTTP client.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client: &http.Client{
			Timeout: defaultRequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		adapter: defaultAdapter,
		logger:  utils.NewLogger("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewStreamingHTTPClient returns a client without an overall timeout, so a
// long stream is bounded only by its context.
func NewStreamingHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: defaultRequestTimeout,
		},
	}
}

// Adapter returns the adapter settings in use.
func (d *Dispatcher) Adapter() Adapter {
	return d.adapter
}

// RequestChat performs one non-streaming chat call. A non-2xx reply yields an
// *HTTPError and no response. There is no retry.
func (d *Dispatcher) RequestChat(ctx context.Context, request LLMRequest, provider models.Provider) (*LLMResponse, error) {
	p := provider.Normalize()
	request.Stream = false
	cfg := d.adapter.BuildRequest(p, request)

	d.logger.Debug("Dispatching chat",
		"provider", p.ID,
		"client", SelectClient(p.Type),
		"protocol", p.Protocol,
		"model", request.Model)

	resp, err := d.send(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: body}
	}

	parsed := d.adapter.ParseResponse(p, body)
	return &LLMResponse{
		Content:   parsed.Content,
		Usage:     parsed.Usage,
		ToolCalls: parsed.ToolCalls,
		Model:     request.Model,
	}, nil
}

// StreamChat starts a streaming chat call. The returned stream yields
// content deltas until io.EOF; cancelling ctx aborts the read.
func (d *Dispatcher) StreamChat(ctx context.Context, request LLMRequest, provider models.Provider) (*ChatStream, error) {
	p := provider.Normalize()
	request.Stream = true
	cfg := d.adapter.BuildRequest(p, request)
	if p.Protocol == models.ProtocolGoogleGenAI {
		endpoint, ok := googleStreamEndpoint(cfg.Endpoint)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrStreamingUnsupported, cfg.Endpoint)
		}
		cfg.Endpoint = endpoint
	}

	d.logger.Debug("Dispatching chat stream",
		"provider", p.ID,
		"client", SelectClient(p.Type),
		"protocol", p.Protocol,
		"model", request.Model)

	resp, err := d.send(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: body}
	}

	return newChatStream(p.Protocol, request.Model, resp.Body), nil
}

// ConnectionResult is the outcome of a provider connection test.
type ConnectionResult struct {
	Status    models.ProviderStatus `json:"status"`
	LatencyMs int64                 `json:"latencyMs"`
	Error     string                `json:"error,omitempty"`
}

// TestConnection sends a minimal chat to the provider using model and
// reports whether it answered successfully and how long it took.
func (d *Dispatcher) TestConnection(ctx context.Context, provider models.Provider, model string) ConnectionResult {
	maxTokens := 1
	request := LLMRequest{
		Model:     model,
		Messages:  []LLMMessage{{Role: RoleUser, Content: TextContent("ping")}},
		MaxTokens: &maxTokens,
	}

	start := time.Now()
	_, err := d.RequestChat(ctx, request, provider)
	result := ConnectionResult{
		Status:    models.ProviderStatusConnected,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Status = models.ProviderStatusFailed
		result.Error = err.Error()
		d.logger.Warn("Connection test failed", "provider", provider.ID, "error", err)
	}
	return result
}

func (d *Dispatcher) send(ctx context.Context, cfg ProviderRequestConfig) (*http.Response, error) {
	body, err := json.Marshal(cfg.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for name, value := range cfg.Headers {
		// Assign directly so custom header names keep their exact spelling.
		httpReq.Header[name] = []string{value}
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}
