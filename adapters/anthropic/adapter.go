// Package anthropic implements chain.Generator over the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Gurpartap/promptchain/chain"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com/v1"
	DefaultVersion   = "2023-06-01"
	defaultEndpoint  = "/messages"
	defaultTimeout   = 60 * time.Second
	maxResponseBytes = 2 << 20
	statusOverloaded = 529
)

var ErrMissingAPIKey = errors.New("anthropic api key is required")

type Config struct {
	APIKey     string
	BaseURL    string
	Version    string
	HTTPClient *http.Client
	// Limiter paces outgoing requests when set.
	Limiter *rate.Limiter
}

type Adapter struct {
	apiKey      string
	version     string
	endpointURL string
	httpClient  *http.Client
	limiter     *rate.Limiter
	now         func() time.Time
}

var _ chain.Generator = (*Adapter)(nil)

func New(cfg Config) (*Adapter, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("new anthropic adapter: %w", ErrMissingAPIKey)
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = DefaultVersion
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Adapter{
		apiKey:      apiKey,
		version:     version,
		endpointURL: strings.TrimRight(baseURL, "/") + defaultEndpoint,
		httpClient:  httpClient,
		limiter:     cfg.Limiter,
		now:         time.Now,
	}, nil
}

// NewLimiter returns a limiter allowing rps requests per second with a burst
// of one, or nil when rps is not positive.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func (a *Adapter) Generate(ctx context.Context, request chain.GenerateRequest) (chain.Generation, error) {
	if ctx == nil {
		return chain.Generation{}, chain.ErrContextNil
	}
	if request.Tier.Model == "" {
		return chain.Generation{}, fmt.Errorf("provider request: tier %q has no model", request.Tier.Name)
	}
	if request.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, request.Timeout)
		defer cancel()
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return chain.Generation{}, classifyTransportError(ctx, "provider rate wait", err)
		}
	}

	encoded, err := json.Marshal(buildRequest(request))
	if err != nil {
		return chain.Generation{}, fmt.Errorf("provider request encode: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpointURL, bytes.NewReader(encoded))
	if err != nil {
		return chain.Generation{}, fmt.Errorf("provider request build: %w", err)
	}
	httpRequest.Header.Set("x-api-key", a.apiKey)
	httpRequest.Header.Set("anthropic-version", a.version)
	httpRequest.Header.Set("Content-Type", "application/json")

	start := a.now()
	response, err := a.httpClient.Do(httpRequest)
	if err != nil {
		return chain.Generation{}, classifyTransportError(ctx, "provider request execute", err)
	}
	defer response.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	latency := a.now().Sub(start)
	if err != nil {
		return chain.Generation{}, classifyTransportError(ctx, "provider response read", err)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return chain.Generation{}, fmt.Errorf(
			"%w: provider response status=%d body=%s",
			statusCategory(response.StatusCode),
			response.StatusCode,
			truncateBody(bodyBytes),
		)
	}

	var parsed messagesResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		return chain.Generation{}, fmt.Errorf("provider response decode: %w", err)
	}
	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return chain.Generation{
		Text:         text.String(),
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
		Latency:      latency,
	}, nil
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Usage   usage          `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func buildRequest(request chain.GenerateRequest) messagesRequest {
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = chain.DefaultMaxTokens
	}
	return messagesRequest{
		Model:       request.Tier.Model,
		MaxTokens:   maxTokens,
		Temperature: request.Temperature,
		Messages:    []message{{Role: "user", Content: request.Prompt}},
	}
}

func statusCategory(status int) error {
	switch status {
	case http.StatusTooManyRequests:
		return chain.ErrRateLimited
	case statusOverloaded, http.StatusServiceUnavailable:
		return chain.ErrOverloaded
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return chain.ErrTimeout
	default:
		return chain.ErrUpstreamAPI
	}
}

// classifyTransportError maps deadline expiry to chain.ErrTimeout and leaves
// caller cancellation untouched so it is never retried.
func classifyTransportError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", chain.ErrTimeout, op, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %w", chain.ErrTimeout, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
