// Package catalog provides the static model catalog: an immutable lookup
// from model identifier to its capability descriptor. The catalog is loaded
// once at startup and read-only afterwards.
package catalog

import "fmt"

// ProviderTag identifies the upstream vendor a model is served by.
type ProviderTag string

// Known provider tags.
const (
	ProviderOpenAI    ProviderTag = "openai"
	ProviderAnthropic ProviderTag = "anthropic"
	ProviderGoogle    ProviderTag = "google"
	ProviderXAI       ProviderTag = "xai"
	ProviderGroq      ProviderTag = "groq"

	// ProviderLorem is the mock provider used for development and tests.
	ProviderLorem ProviderTag = "lorem"
)

// String returns the string representation of the provider tag.
func (p ProviderTag) String() string {
	return string(p)
}

// IsValid returns true if the tag names a known provider.
func (p ProviderTag) IsValid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderXAI, ProviderGroq, ProviderLorem:
		return true
	default:
		return false
	}
}

// JSONModeStrategy describes how JSON-only output is requested from a vendor.
type JSONModeStrategy string

const (
	// JSONModeNone means the model does not support forced JSON output.
	JSONModeNone JSONModeStrategy = "none"

	// JSONModeResponseFormat uses the OpenAI-style response_format field.
	JSONModeResponseFormat JSONModeStrategy = "response_format"

	// JSONModeResponseMIMEType uses the Gemini-style responseMimeType field.
	JSONModeResponseMIMEType JSONModeStrategy = "response_mime_type"
)

// ThinkingBudget is the valid range for a model's reasoning token budget.
type ThinkingBudget struct {
	Min     int `yaml:"min"`
	Max     int `yaml:"max"`
	Default int `yaml:"default"`
}

// Clamp forces a requested budget into the declared range.
func (b ThinkingBudget) Clamp(budget int) int {
	if budget < b.Min {
		return b.Min
	}
	if budget > b.Max {
		return b.Max
	}
	return budget
}

// ModelDescriptor describes one model's capabilities. Descriptors are
// immutable after load and owned exclusively by the Registry.
type ModelDescriptor struct {
	ID              string           `yaml:"id" json:"id"`
	Provider        ProviderTag      `yaml:"provider" json:"provider"`
	MaxInputTokens  int              `yaml:"max_input_tokens" json:"maxInputTokens"`
	MaxOutputTokens int              `yaml:"max_output_tokens" json:"maxOutputTokens"`
	Thinking        bool             `yaml:"thinking" json:"thinking"`
	ThinkingBudget  ThinkingBudget   `yaml:"thinking_budget" json:"thinkingBudget"`
	Temperature     float64          `yaml:"temperature" json:"temperature"`
	JSONMode        JSONModeStrategy `yaml:"json_mode" json:"jsonMode"`
	Vision          bool             `yaml:"vision" json:"vision"`
	Streaming       bool             `yaml:"streaming" json:"streaming"`
}

// validate checks the descriptor for internal consistency at load time.
func (d *ModelDescriptor) validate() error {
	if d.ID == "" {
		return fmt.Errorf("model descriptor missing id")
	}
	if !d.Provider.IsValid() {
		return fmt.Errorf("model %q: unknown provider %q", d.ID, d.Provider)
	}
	if d.MaxOutputTokens <= 0 {
		return fmt.Errorf("model %q: max_output_tokens must be positive", d.ID)
	}
	if d.MaxInputTokens <= 0 {
		return fmt.Errorf("model %q: max_input_tokens must be positive", d.ID)
	}
	switch d.JSONMode {
	case "", JSONModeNone, JSONModeResponseFormat, JSONModeResponseMIMEType:
	default:
		return fmt.Errorf("model %q: unknown json_mode strategy %q", d.ID, d.JSONMode)
	}
	if d.Thinking {
		b := d.ThinkingBudget
		if b.Min < 0 || b.Max < b.Min {
			return fmt.Errorf("model %q: invalid thinking_budget range [%d, %d]", d.ID, b.Min, b.Max)
		}
		if b.Default < b.Min || b.Default > b.Max {
			return fmt.Errorf("model %q: thinking_budget default %d outside [%d, %d]", d.ID, b.Default, b.Min, b.Max)
		}
	}
	return nil
}
