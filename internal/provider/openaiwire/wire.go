package openaiwire

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/mandalnilabja/streamgate/internal/catalog"
	"github.com/mandalnilabja/streamgate/internal/provider"
)

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatPayload struct {
	Model         string        `json:"model"`
	Messages      []wireMessage `json:"messages"`
	Stream        bool          `json:"stream"`
	StreamOptions streamOptions `json:"stream_options"`

	Temperature *float64 `json:"temperature,omitempty"`

	// OpenAI deprecated max_tokens in favor of max_completion_tokens;
	// xAI and Groq still use the original field.
	MaxTokens           int `json:"max_tokens,omitempty"`
	MaxCompletionTokens int `json:"max_completion_tokens,omitempty"`

	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// buildPayload translates a validated request into the vendor body. The wire
// format has no reasoning-budget parameter; models that emit reasoning do so
// unconditionally and the budget is ignored here.
func buildPayload(tag catalog.ProviderTag, req *provider.Request) chatPayload {
	p := chatPayload{
		Model:         req.Model,
		Stream:        true,
		StreamOptions: streamOptions{IncludeUsage: true},
		Temperature:   req.Temperature,
	}

	p.Messages = make([]wireMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		p.Messages = append(p.Messages, wireMessage{Role: string(msg.Role), Content: msg.Content})
	}

	if tag == catalog.ProviderOpenAI {
		p.MaxCompletionTokens = req.MaxOutputTokens
	} else {
		p.MaxTokens = req.MaxOutputTokens
	}

	if req.JSONMode {
		p.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return p
}

type chunkDelta struct {
	Content string `json:"content"`

	// ReasoningContent carries thinking output on Groq-hosted reasoning
	// models; xAI uses the plain reasoning field.
	ReasoningContent string `json:"reasoning_content"`
	Reasoning        string `json:"reasoning"`
}

type chunkChoice struct {
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type streamChunk struct {
	Choices []chunkChoice `json:"choices"`
	Usage   *chunkUsage   `json:"usage"`
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

var (
	dataPrefix = []byte("data: ")
	doneMarker = []byte("[DONE]")
)

// consume reads the SSE body line by line until the [DONE] marker, emitting
// normalized events. The final usage chunk arrives with empty choices when
// stream_options.include_usage is set.
func (a *Adapter) consume(ctx context.Context, body io.Reader, events chan<- provider.Event) {
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var usage *provider.Usage

	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		data := bytes.TrimPrefix(line, dataPrefix)
		if bytes.Equal(data, doneMarker) {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}

		if chunk.Usage != nil {
			usage = &provider.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				if !send(ctx, events, provider.Event{Delta: &provider.Delta{Kind: provider.DeltaText, Text: choice.Delta.Content}}) {
					return
				}
			}
			if thinking := choice.Delta.ReasoningContent + choice.Delta.Reasoning; thinking != "" {
				if !send(ctx, events, provider.Event{Delta: &provider.Delta{Kind: provider.DeltaThinking, Text: thinking}}) {
					return
				}
			}
			if choice.FinishReason != nil && *choice.FinishReason == "content_filter" {
				send(ctx, events, provider.Event{Err: &provider.UpstreamError{
					Tag:     a.tag,
					Message: "output stopped by upstream content filter",
					Err:     provider.ErrContentPolicy,
				}})
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		// A read error after local cancellation is expected; stay silent
		// and let the channel close.
		if ctx.Err() == nil {
			send(ctx, events, provider.Event{Err: provider.TransportError(a.tag, err)})
		}
		return
	}

	if usage != nil {
		send(ctx, events, provider.Event{Usage: usage})
	}
}

func send(ctx context.Context, events chan<- provider.Event, ev provider.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
