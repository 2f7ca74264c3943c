// Package openaiwire implements the adapter for vendors speaking the
// OpenAI chat-completions wire format: OpenAI itself, xAI, and Groq.
// A single client covers all three; only the base URL, credential, and
// provider tag differ.
package openaiwire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mandalnilabja/streamgate/internal/catalog"
	"github.com/mandalnilabja/streamgate/internal/provider"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	xaiBaseURL    = "https://api.x.ai/v1"
	groqBaseURL   = "https://api.groq.com/openai/v1"

	defaultConnectTimeout = 30 * time.Second
)

// Config selects the vendor endpoint and credential for an adapter instance.
type Config struct {
	Tag     catalog.ProviderTag
	BaseURL string
	APIKey  string

	// HTTPClient overrides the default client. It must not set an overall
	// request timeout; streams are long-lived and cancelled via context.
	HTTPClient *http.Client
}

// Adapter streams chat completions from an OpenAI-compatible endpoint.
type Adapter struct {
	tag     catalog.ProviderTag
	baseURL string
	apiKey  string
	client  *http.Client
}

// New builds an adapter from an explicit config. The API key is required.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Tag, provider.ErrNoAPIKey)
	}
	if !cfg.Tag.IsValid() {
		return nil, fmt.Errorf("openaiwire: invalid provider tag %q", cfg.Tag)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: defaultConnectTimeout,
			},
		}
	}
	return &Adapter{
		tag:     cfg.Tag,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  client,
	}, nil
}

// NewOpenAI builds the adapter for api.openai.com.
func NewOpenAI(apiKey string) (*Adapter, error) {
	return New(Config{Tag: catalog.ProviderOpenAI, BaseURL: openAIBaseURL, APIKey: apiKey})
}

// NewXAI builds the adapter for api.x.ai.
func NewXAI(apiKey string) (*Adapter, error) {
	return New(Config{Tag: catalog.ProviderXAI, BaseURL: xaiBaseURL, APIKey: apiKey})
}

// NewGroq builds the adapter for api.groq.com.
func NewGroq(apiKey string) (*Adapter, error) {
	return New(Config{Tag: catalog.ProviderGroq, BaseURL: groqBaseURL, APIKey: apiKey})
}

func (a *Adapter) Name() catalog.ProviderTag {
	return a.tag
}

// Stream opens the upstream SSE connection and translates its chunks into
// normalized events. A non-2xx upstream response is reported synchronously;
// after that the returned channel delivers deltas until the stream finishes.
func (a *Adapter) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	body, err := json.Marshal(buildPayload(a.tag, req))
	if err != nil {
		return nil, fmt.Errorf("openaiwire: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openaiwire: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, provider.TransportError(a.tag, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, a.errorFromResponse(resp)
	}

	events := make(chan provider.Event, 10)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		a.consume(ctx, resp.Body, events)
	}()
	return events, nil
}

// errorFromResponse parses the upstream error body and classifies it. Only
// the parsed message travels upward, never the raw body.
func (a *Adapter) errorFromResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body errorBody
	message := resp.Status
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		message = body.Error.Message
	}

	if isContentFilterCode(body.Error.Code) || isContentFilterCode(body.Error.Type) {
		return &provider.UpstreamError{
			Tag:        a.tag,
			StatusCode: resp.StatusCode,
			Message:    message,
			Err:        provider.ErrContentPolicy,
		}
	}
	return provider.StatusError(a.tag, resp.StatusCode, message)
}

func isContentFilterCode(code string) bool {
	return code == "content_filter" || code == "content_policy_violation"
}
