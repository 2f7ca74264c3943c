package provider

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mandalnilabja/streamgate/internal/catalog"
)

func thinkingDesc() *catalog.ModelDescriptor {
	return &catalog.ModelDescriptor{
		ID:              "claude-sonnet-4-5",
		Provider:        catalog.ProviderAnthropic,
		MaxInputTokens:  200000,
		MaxOutputTokens: 64000,
		Thinking:        true,
		ThinkingBudget:  catalog.ThinkingBudget{Min: 1024, Max: 32000, Default: 8000},
		JSONMode:        catalog.JSONModeNone,
		Streaming:       true,
	}
}

func plainDesc() *catalog.ModelDescriptor {
	return &catalog.ModelDescriptor{
		ID:              "gpt-4.1",
		Provider:        catalog.ProviderOpenAI,
		MaxInputTokens:  1047576,
		MaxOutputTokens: 32768,
		JSONMode:        catalog.JSONModeResponseFormat,
		Streaming:       true,
	}
}

func intPtr(v int) *int          { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func TestBuildRequestDefaults(t *testing.T) {
	chat := &ChatRequest{
		RequestID: "r1",
		Model:     "gpt-4.1",
		Messages:  []Message{{Role: RoleUser, Content: "Hello"}},
	}

	req, err := BuildRequest(chat, plainDesc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.MaxOutputTokens != 32768 {
		t.Errorf("expected descriptor max output, got %d", req.MaxOutputTokens)
	}
	if req.Temperature != nil {
		t.Error("temperature should be unset without an override")
	}
	if req.ThinkingBudget != 0 {
		t.Errorf("thinking budget should be 0 for non-thinking model, got %d", req.ThinkingBudget)
	}
}

func TestBuildRequestClampsThinkingBudget(t *testing.T) {
	tests := []struct {
		name   string
		budget int
		want   int
	}{
		{"below min clamps up", 100, 1024},
		{"within range passes", 5000, 5000},
		{"above max clamps down", 64000, 32000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &ChatRequest{
				Model:    "claude-sonnet-4-5",
				Messages: []Message{{Role: RoleUser, Content: "hi"}},
				Options:  &Options{ThinkingBudget: intPtr(tt.budget)},
			}
			req, err := BuildRequest(chat, thinkingDesc())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.ThinkingBudget != tt.want {
				t.Errorf("budget = %d, want %d", req.ThinkingBudget, tt.want)
			}
		})
	}
}

func TestBuildRequestThinkingDefault(t *testing.T) {
	chat := &ChatRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}
	req, err := BuildRequest(chat, thinkingDesc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.ThinkingBudget != 8000 {
		t.Errorf("expected default budget 8000, got %d", req.ThinkingBudget)
	}
}

func TestBuildRequestRejections(t *testing.T) {
	tests := []struct {
		name string
		desc *catalog.ModelDescriptor
		opts *Options
	}{
		{"temperature too high", plainDesc(), &Options{Temperature: floatPtr(2.5)}},
		{"temperature negative", plainDesc(), &Options{Temperature: floatPtr(-0.1)}},
		{"max output over limit", plainDesc(), &Options{MaxOutputTokens: intPtr(40000)}},
		{"max output zero", plainDesc(), &Options{MaxOutputTokens: intPtr(0)}},
		{"thinking on non-thinking model", plainDesc(), &Options{ThinkingBudget: intPtr(1000)}},
		{"negative thinking budget", thinkingDesc(), &Options{ThinkingBudget: intPtr(-5)}},
		{"json mode unsupported", thinkingDesc(), &Options{JSONMode: boolPtr(true)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &ChatRequest{
				Model:    tt.desc.ID,
				Messages: []Message{{Role: RoleUser, Content: "hi"}},
				Options:  tt.opts,
			}
			_, err := BuildRequest(chat, tt.desc)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %T", err)
			}
			if !errors.Is(err, ErrInvalidRequest) {
				t.Error("validation errors must unwrap to ErrInvalidRequest")
			}
		})
	}
}

func TestBuildRequestInputWindow(t *testing.T) {
	desc := plainDesc()
	desc.MaxInputTokens = 10

	over := &ChatRequest{
		Model:    desc.ID,
		Messages: []Message{{Role: RoleUser, Content: strings.Repeat("x", 200)}},
	}
	_, err := BuildRequest(over, desc)
	if err == nil {
		t.Fatal("expected oversized input to be rejected")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "message" {
		t.Errorf("expected message validation error, got %v", err)
	}

	// Borderline prompts pass; the bound is deliberately loose.
	under := &ChatRequest{
		Model:    desc.ID,
		Messages: []Message{{Role: RoleUser, Content: strings.Repeat("x", 40)}},
	}
	if _, err := BuildRequest(under, desc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseMessages(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"plain string", `"Hello"`, 1, false},
		{"message array", `[{"role":"system","content":"be brief"},{"role":"user","content":"hi"}]`, 2, false},
		{"empty string", `""`, 0, true},
		{"empty array", `[]`, 0, true},
		{"bad role", `[{"role":"robot","content":"hi"}]`, 0, true},
		{"missing", ``, 0, true},
		{"wrong type", `42`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := ParseMessages(json.RawMessage(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(msgs) != tt.want {
				t.Errorf("got %d messages, want %d", len(msgs), tt.want)
			}
		})
	}

	msgs, err := ParseMessages(json.RawMessage(`"Hello"`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "Hello" {
		t.Errorf("string message should become a user turn: %+v", msgs[0])
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := SplitSystem([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	})
	if system != "be brief" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 2 {
		t.Errorf("expected 2 conversation turns, got %d", len(rest))
	}

	system, rest = SplitSystem([]Message{{Role: RoleUser, Content: "hi"}})
	if system != "" || len(rest) != 1 {
		t.Errorf("unexpected split: %q, %d turns", system, len(rest))
	}
}

func TestStatusErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		sentinel  error
		retryable bool
	}{
		{400, ErrInvalidRequest, false},
		{401, ErrInvalidAPIKey, false},
		{403, ErrInvalidAPIKey, false},
		{404, ErrInvalidRequest, false},
		{429, ErrRateLimited, true},
		{500, ErrUnavailable, true},
		{503, ErrUnavailable, true},
	}

	for _, tt := range tests {
		err := StatusError(catalog.ProviderOpenAI, tt.status, "boom")
		if !errors.Is(err, tt.sentinel) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.sentinel, err.Err)
		}
		if err.Retryable != tt.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tt.status, err.Retryable, tt.retryable)
		}
	}
}
