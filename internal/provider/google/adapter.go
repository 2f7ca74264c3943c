// Package google adapts the Gemini generateContent API to the normalized
// streaming contract. The API has no official Go SSE client shape we need,
// so the adapter speaks the REST wire format directly.
package google

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
	defaultBaseURL = "https://generativelanguage.googleapis.com"

	defaultConnectTimeout = 30 * time.Second
)

// Config carries the credential and optional endpoint override.
type Config struct {
	APIKey  string
	BaseURL string

	// HTTPClient overrides the default client; it must not set an overall
	// request timeout.
	HTTPClient *http.Client
}

// Adapter streams generations from the Gemini API.
type Adapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New builds the adapter. The API key is required.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google: %w", provider.ErrNoAPIKey)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: defaultConnectTimeout,
			},
		}
	}
	return &Adapter{baseURL: baseURL, apiKey: cfg.APIKey, client: client}, nil
}

func (a *Adapter) Name() catalog.ProviderTag {
	return catalog.ProviderGoogle
}

// Stream posts to the streaming endpoint with alt=sse and translates the
// chunk stream into normalized events.
func (a *Adapter) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	body, err := json.Marshal(buildPayload(req))
	if err != nil {
		return nil, fmt.Errorf("google: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", a.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("google: build request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", a.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, provider.TransportError(catalog.ProviderGoogle, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, errorFromResponse(resp)
	}

	events := make(chan provider.Event, 10)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		a.consume(ctx, resp.Body, events)
	}()
	return events, nil
}

func errorFromResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body errorBody
	message := resp.Status
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		message = body.Error.Message
	}
	return provider.StatusError(catalog.ProviderGoogle, resp.StatusCode, message)
}
