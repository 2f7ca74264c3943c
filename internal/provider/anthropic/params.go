package anthropic

import (
	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/mandalnilabja/streamgate/internal/provider"
)

// buildMessageParams translates a validated request into SDK parameters.
// System turns travel out-of-band in the System field; the thinking budget
// arrives pre-clamped, so a positive value is transmitted as-is.
func buildMessageParams(req *provider.Request) sdk.MessageNewParams {
	system, rest := provider.SplitSystem(req.Messages)

	messages := make([]sdk.MessageParam, 0, len(rest))
	for _, msg := range rest {
		block := sdk.NewTextBlock(msg.Content)
		switch msg.Role {
		case provider.RoleAssistant:
			messages = append(messages, sdk.NewAssistantMessage(block))
		default:
			messages = append(messages, sdk.NewUserMessage(block))
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(req.MaxOutputTokens),
	}

	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	if system != "" {
		params.System = []sdk.TextBlockParam{{Type: "text", Text: system}}
	}

	if req.ThinkingBudget > 0 {
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(req.ThinkingBudget))
	}

	return params
}

// transformStreamEvent extracts the delta from one SDK stream event. Events
// carrying no incremental content (block boundaries, message bookkeeping)
// yield nil.
func transformStreamEvent(event sdk.MessageStreamEventUnion) *provider.Delta {
	switch e := event.AsAny().(type) {
	case sdk.ContentBlockDeltaEvent:
		switch e.Delta.Type {
		case "text_delta":
			return &provider.Delta{Kind: provider.DeltaText, Text: e.Delta.Text}
		case "thinking_delta":
			return &provider.Delta{Kind: provider.DeltaThinking, Text: e.Delta.Thinking}
		}
	}
	return nil
}
