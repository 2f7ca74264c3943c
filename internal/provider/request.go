package provider

import (
	"encoding/json"
	"fmt"

	"github.com/mandalnilabja/streamgate/internal/catalog"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid returns true for the three supported roles.
func (r Role) IsValid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

// Message is one turn of normalized conversation context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options are the client-supplied generation overrides. Pointers distinguish
// "not set" from "set to zero value".
type Options struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	ThinkingBudget  *int     `json:"thinkingBudget,omitempty"`
	JSONMode        *bool    `json:"jsonMode,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

// ChatRequest is the normalized inbound chat request, before validation
// against the resolved model descriptor.
type ChatRequest struct {
	RequestID string    `json:"requestId"`
	Model     string    `json:"model"`
	Messages  []Message `json:"-"`
	Options   *Options  `json:"options,omitempty"`
}

// ParseMessages decodes the wire "message" field, which is either a plain
// string (treated as a single user turn) or an ordered message array.
func ParseMessages(raw json.RawMessage) ([]Message, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Field: "message", Reason: "message is required"}
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if text == "" {
			return nil, &ValidationError{Field: "message", Reason: "message must not be empty"}
		}
		return []Message{{Role: RoleUser, Content: text}}, nil
	}

	var messages []Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, &ValidationError{Field: "message", Reason: "message must be a string or a message array"}
	}
	if len(messages) == 0 {
		return nil, &ValidationError{Field: "message", Reason: "message array must not be empty"}
	}
	for i, msg := range messages {
		if !msg.Role.IsValid() {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("message[%d].role", i),
				Value:  string(msg.Role),
				Reason: "role must be system, user, or assistant",
			}
		}
	}
	return messages, nil
}

// Request is the validated, clamped request handed to an adapter. All values
// are within the descriptor's declared ranges; adapters transmit them as-is.
type Request struct {
	Model    string
	Messages []Message

	// Temperature is nil when the client did not override it; adapters then
	// omit the field and let the upstream default apply.
	Temperature *float64

	// MaxOutputTokens is always set (descriptor maximum when not overridden).
	MaxOutputTokens int

	// ThinkingBudget is the clamped reasoning budget; 0 disables thinking.
	ThinkingBudget int

	// JSONMode requests JSON-only output via the descriptor's strategy.
	JSONMode bool

	// Descriptor is the resolved model descriptor (shared, read-only).
	Descriptor *catalog.ModelDescriptor
}

// BuildRequest validates a ChatRequest against the resolved descriptor and
// produces the effective adapter request. Numeric options outside the
// descriptor's declared ranges are rejected, except the thinking budget,
// which is clamped into range and never passed through raw. Feature options
// the descriptor does not support (json mode, thinking, streaming itself)
// are rejected before any upstream call.
func BuildRequest(chat *ChatRequest, desc *catalog.ModelDescriptor) (*Request, error) {
	if len(chat.Messages) == 0 {
		return nil, &ValidationError{Field: "message", Reason: "message is required"}
	}
	if !desc.Streaming {
		return nil, &ValidationError{
			Field:  "model",
			Value:  desc.ID,
			Reason: "model does not support streaming",
		}
	}
	if desc.MaxInputTokens > 0 && approxInputTokens(chat.Messages) > desc.MaxInputTokens {
		return nil, &ValidationError{
			Field:  "message",
			Reason: fmt.Sprintf("input exceeds the model's %d-token context window", desc.MaxInputTokens),
		}
	}

	req := &Request{
		Model:           desc.ID,
		Messages:        chat.Messages,
		MaxOutputTokens: desc.MaxOutputTokens,
		Descriptor:      desc,
	}

	opts := chat.Options
	if opts == nil {
		return req, nil
	}

	if opts.Temperature != nil {
		t := *opts.Temperature
		if t < 0 || t > 2 {
			return nil, &ValidationError{
				Field:  "options.temperature",
				Value:  t,
				Reason: "temperature must be between 0 and 2",
			}
		}
		req.Temperature = opts.Temperature
	}

	if opts.MaxOutputTokens != nil {
		m := *opts.MaxOutputTokens
		if m <= 0 || m > desc.MaxOutputTokens {
			return nil, &ValidationError{
				Field:  "options.maxOutputTokens",
				Value:  m,
				Reason: fmt.Sprintf("maxOutputTokens must be between 1 and %d", desc.MaxOutputTokens),
			}
		}
		req.MaxOutputTokens = m
	}

	if opts.ThinkingBudget != nil {
		if !desc.Thinking {
			return nil, &ValidationError{
				Field:  "options.thinkingBudget",
				Value:  *opts.ThinkingBudget,
				Reason: "model does not support thinking",
			}
		}
		if *opts.ThinkingBudget < 0 {
			return nil, &ValidationError{
				Field:  "options.thinkingBudget",
				Value:  *opts.ThinkingBudget,
				Reason: "thinkingBudget must not be negative",
			}
		}
		req.ThinkingBudget = desc.ThinkingBudget.Clamp(*opts.ThinkingBudget)
	} else if desc.Thinking {
		req.ThinkingBudget = desc.ThinkingBudget.Default
	}

	if opts.JSONMode != nil && *opts.JSONMode {
		if desc.JSONMode == "" || desc.JSONMode == catalog.JSONModeNone {
			return nil, &ValidationError{
				Field:  "options.jsonMode",
				Value:  true,
				Reason: "model does not support JSON mode",
			}
		}
		req.JSONMode = true
	}

	return req, nil
}

// approxInputTokens is a deliberately low prompt-size bound (4 chars per
// token) used to reject inputs that cannot fit the context window. Borderline
// prompts pass; the upstream remains the authority on exact counts.
func approxInputTokens(messages []Message) int {
	chars := 0
	for _, msg := range messages {
		chars += len(msg.Content)
	}
	return chars / 4
}

// SplitSystem separates leading system turns from the conversation, for
// vendors that carry the system prompt out-of-band. Later system turns are
// folded into the prompt as well; no vendor accepts them mid-conversation.
func SplitSystem(messages []Message) (system string, rest []Message) {
	rest = make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}
