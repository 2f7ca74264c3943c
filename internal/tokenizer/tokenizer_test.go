package tokenizer

import (
	"testing"

	"github.com/mandalnilabja/streamgate/internal/provider"
)

func TestNew(t *testing.T) {
	est := New()
	if est == nil {
		t.Fatal("New() returned nil")
	}
	if est.encodings == nil {
		t.Fatal("encodings map is nil")
	}
}

func TestCountTokens(t *testing.T) {
	est := New()

	tests := []struct {
		name     string
		text     string
		model    string
		minCount int // Token counts may vary slightly between encodings
		maxCount int
	}{
		{
			name:     "simple text gpt-4.1",
			text:     "Hello, world!",
			model:    "gpt-4.1",
			minCount: 3,
			maxCount: 5,
		},
		{
			name:     "simple text gpt-4o",
			text:     "Hello, world!",
			model:    "gpt-4o",
			minCount: 3,
			maxCount: 5,
		},
		{
			name:     "non-openai model uses fallback encoding",
			text:     "Hello, world!",
			model:    "claude-sonnet-4-5",
			minCount: 3,
			maxCount: 5,
		},
		{
			name:     "empty text",
			text:     "",
			model:    "gpt-4o",
			minCount: 0,
			maxCount: 0,
		},
		{
			name:     "longer text",
			text:     "The quick brown fox jumps over the lazy dog.",
			model:    "gpt-4o",
			minCount: 8,
			maxCount: 12,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			count, err := est.CountTokens(tc.text, tc.model)
			if err != nil {
				t.Fatalf("CountTokens() error: %v", err)
			}
			if count < tc.minCount || count > tc.maxCount {
				t.Errorf("CountTokens() = %d, want between %d and %d",
					count, tc.minCount, tc.maxCount)
			}
		})
	}
}

func TestResolveEncoding(t *testing.T) {
	tests := []struct {
		model    string
		expected string
	}{
		{"gpt-4", EncodingCL100kBase},
		{"gpt-4.1", EncodingO200kBase},
		{"gpt-4o", EncodingO200kBase},
		{"gpt-4o-mini", EncodingO200kBase},
		{"o1-preview", EncodingO200kBase},
		{"claude-sonnet-4-5", EncodingCL100kBase},
		{"gemini-2.5-flash", EncodingCL100kBase},
		{"llama-3.3-70b-versatile", EncodingCL100kBase},
	}

	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			if got := resolveEncoding(tc.model); got != tc.expected {
				t.Errorf("resolveEncoding(%q) = %q, want %q", tc.model, got, tc.expected)
			}
		})
	}
}

func TestEstimateMessages(t *testing.T) {
	est := New()

	messages := []provider.Message{
		{Role: provider.RoleSystem, Content: "You are a helpful assistant."},
		{Role: provider.RoleUser, Content: "Hello!"},
	}

	count, err := est.EstimateMessages(messages, "gpt-4o")
	if err != nil {
		t.Fatalf("EstimateMessages() error: %v", err)
	}

	// Two messages with overhead plus priming; content is ~8 tokens.
	if count < 10 || count > 30 {
		t.Errorf("EstimateMessages() = %d, want between 10 and 30", count)
	}
}

func TestEstimateNeverFails(t *testing.T) {
	est := New()

	messages := []provider.Message{
		{Role: provider.RoleUser, Content: "Twelve characters here make for roughly ten tokens."},
	}

	if got := est.Estimate(messages, "gpt-4o"); got <= 0 {
		t.Errorf("Estimate() = %d, want positive", got)
	}
	if got := est.Estimate(nil, "gpt-4o"); got < replyPrimingTokens {
		t.Errorf("Estimate(nil) = %d, want at least priming tokens", got)
	}
}

func TestEncodingCacheReuse(t *testing.T) {
	est := New()

	if _, err := est.CountTokens("warm the cache", "gpt-4o"); err != nil {
		t.Fatalf("CountTokens() error: %v", err)
	}
	if _, err := est.CountTokens("second call", "gpt-4o-mini"); err != nil {
		t.Fatalf("CountTokens() error: %v", err)
	}

	est.mu.RLock()
	defer est.mu.RUnlock()
	if len(est.encodings) != 1 {
		t.Errorf("cached %d encodings, want 1 shared o200k entry", len(est.encodings))
	}
}
