package google

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/mandalnilabja/streamgate/internal/catalog"
	"github.com/mandalnilabja/streamgate/internal/provider"
)

type wirePart struct {
	Text string `json:"text,omitempty"`

	// Thought marks reasoning parts when includeThoughts is set.
	Thought bool `json:"thought,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type thinkingConfig struct {
	ThinkingBudget  int  `json:"thinkingBudget"`
	IncludeThoughts bool `json:"includeThoughts"`
}

type generationConfig struct {
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxOutputTokens  int             `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ThinkingConfig   *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type generatePayload struct {
	Contents          []wireContent    `json:"contents"`
	SystemInstruction *wireContent     `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

// buildPayload translates a validated request. System turns move to
// systemInstruction; assistant turns take the vendor's "model" role.
func buildPayload(req *provider.Request) generatePayload {
	system, rest := provider.SplitSystem(req.Messages)

	contents := make([]wireContent, 0, len(rest))
	for _, msg := range rest {
		role := "user"
		if msg.Role == provider.RoleAssistant {
			role = "model"
		}
		contents = append(contents, wireContent{
			Role:  role,
			Parts: []wirePart{{Text: msg.Content}},
		})
	}

	p := generatePayload{
		Contents: contents,
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}

	if system != "" {
		p.SystemInstruction = &wireContent{Parts: []wirePart{{Text: system}}}
	}
	if req.JSONMode {
		p.GenerationConfig.ResponseMimeType = "application/json"
	}
	if req.ThinkingBudget > 0 {
		p.GenerationConfig.ThinkingConfig = &thinkingConfig{
			ThinkingBudget:  req.ThinkingBudget,
			IncludeThoughts: true,
		}
	}
	return p
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	ThoughtsTokenCount   int `json:"thoughtsTokenCount"`
}

type streamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []wirePart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`

	// UsageMetadata is cumulative; the values on the final chunk win.
	UsageMetadata *usageMetadata `json:"usageMetadata"`

	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

var dataPrefix = []byte("data: ")

// consume reads the alt=sse body until EOF. There is no [DONE] marker; the
// stream simply ends after the final chunk.
func (a *Adapter) consume(ctx context.Context, body io.Reader, events chan<- provider.Event) {
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var usage *usageMetadata

	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal(bytes.TrimPrefix(line, dataPrefix), &chunk); err != nil {
			continue
		}

		if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" {
			send(ctx, events, provider.Event{Err: &provider.UpstreamError{
				Tag:     catalog.ProviderGoogle,
				Message: "prompt blocked: " + chunk.PromptFeedback.BlockReason,
				Err:     provider.ErrContentPolicy,
			}})
			return
		}

		if chunk.UsageMetadata != nil {
			usage = chunk.UsageMetadata
		}

		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text == "" {
					continue
				}
				kind := provider.DeltaText
				if part.Thought {
					kind = provider.DeltaThinking
				}
				if !send(ctx, events, provider.Event{Delta: &provider.Delta{Kind: kind, Text: part.Text}}) {
					return
				}
			}
			if isSafetyStop(cand.FinishReason) {
				send(ctx, events, provider.Event{Err: &provider.UpstreamError{
					Tag:     catalog.ProviderGoogle,
					Message: "output stopped: " + cand.FinishReason,
					Err:     provider.ErrContentPolicy,
				}})
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() == nil {
			send(ctx, events, provider.Event{Err: provider.TransportError(catalog.ProviderGoogle, err)})
		}
		return
	}

	if usage != nil {
		send(ctx, events, provider.Event{Usage: &provider.Usage{
			InputTokens:  usage.PromptTokenCount,
			OutputTokens: usage.CandidatesTokenCount + usage.ThoughtsTokenCount,
		}})
	}
}

func isSafetyStop(reason string) bool {
	return reason == "SAFETY" || reason == "PROHIBITED_CONTENT" || reason == "BLOCKLIST"
}

func send(ctx context.Context, events chan<- provider.Event, ev provider.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
