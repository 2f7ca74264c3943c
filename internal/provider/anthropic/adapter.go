// Package anthropic adapts the Anthropic Messages API, via the official SDK,
// to the normalized streaming contract.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mandalnilabja/streamgate/internal/catalog"
	"github.com/mandalnilabja/streamgate/internal/provider"
)

// Adapter streams messages from the Anthropic API.
type Adapter struct {
	client sdk.Client
}

// New builds the adapter. The API key is required.
func New(apiKey string, opts ...option.RequestOption) (*Adapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", provider.ErrNoAPIKey)
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Adapter{client: sdk.NewClient(opts...)}, nil
}

func (a *Adapter) Name() catalog.ProviderTag {
	return catalog.ProviderAnthropic
}

// Stream opens an SDK streaming call and replays its deltas as normalized
// events. Usage comes from the accumulated message once the stream ends.
func (a *Adapter) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	params := buildMessageParams(req)

	events := make(chan provider.Event, 10)
	go func() {
		defer close(events)

		stream := a.client.Messages.NewStreaming(ctx, params)
		message := sdk.Message{}

		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				send(ctx, events, provider.Event{Err: provider.TransportError(catalog.ProviderAnthropic, err)})
				return
			}
			delta := transformStreamEvent(event)
			if delta == nil {
				continue
			}
			if !send(ctx, events, provider.Event{Delta: delta}) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				return
			}
			send(ctx, events, provider.Event{Err: normalizeSDKError(err)})
			return
		}

		if string(message.StopReason) == "refusal" {
			send(ctx, events, provider.Event{Err: &provider.UpstreamError{
				Tag:     catalog.ProviderAnthropic,
				Message: "model refused to generate the requested output",
				Err:     provider.ErrContentPolicy,
			}})
			return
		}

		send(ctx, events, provider.Event{Usage: &provider.Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		}})
	}()

	return events, nil
}

// normalizeSDKError classifies SDK failures by HTTP status; anything that
// never reached the API is a transport failure.
func normalizeSDKError(err error) error {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		return provider.StatusError(catalog.ProviderAnthropic, apierr.StatusCode, apierr.Error())
	}
	return provider.TransportError(catalog.ProviderAnthropic, err)
}

func send(ctx context.Context, events chan<- provider.Event, ev provider.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
