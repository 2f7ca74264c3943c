// Package lorem is a mock adapter that streams generated filler text. It
// needs no credential and exists for development and load testing against
// the full streaming path without calling a real vendor.
package lorem

import (
	"context"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"

	"github.com/mandalnilabja/streamgate/internal/catalog"
	"github.com/mandalnilabja/streamgate/internal/provider"
)

// maxStreamWords caps output length so mock streams stay short regardless
// of the requested token budget.
const maxStreamWords = 48

const thinkingWords = 12

// Adapter streams lorem ipsum word by word, pacing by model name.
type Adapter struct {
	gen *loremgen.Lorem
}

func New() *Adapter {
	return &Adapter{gen: loremgen.New()}
}

func (a *Adapter) Name() catalog.ProviderTag {
	return catalog.ProviderLorem
}

// streamDelay maps the model name to a per-word pacing delay. The slow
// variant exists to exercise idle timeouts and cancellation by hand.
func streamDelay(model string) time.Duration {
	switch {
	case strings.Contains(model, "slow"):
		return 250 * time.Millisecond
	case strings.Contains(model, "fast"):
		return 5 * time.Millisecond
	default:
		return 25 * time.Millisecond
	}
}

func (a *Adapter) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	delay := streamDelay(req.Model)

	targetWords := req.MaxOutputTokens
	if targetWords > maxStreamWords {
		targetWords = maxStreamWords
	}

	events := make(chan provider.Event, 10)
	go func() {
		defer close(events)

		sent := 0
		if req.ThinkingBudget > 0 {
			n, ok := a.streamWords(ctx, events, provider.DeltaThinking, thinkingWords, delay)
			if !ok {
				return
			}
			sent += n
		}

		n, ok := a.streamWords(ctx, events, provider.DeltaText, targetWords, delay)
		if !ok {
			return
		}
		sent += n

		send(ctx, events, provider.Event{Usage: &provider.Usage{
			InputTokens:  estimateTokens(req.Messages),
			OutputTokens: sent,
		}})
	}()
	return events, nil
}

// streamWords emits count words of the given kind, pausing delay between
// them. Returns the number delivered and false if the context was cancelled.
func (a *Adapter) streamWords(ctx context.Context, events chan<- provider.Event, kind provider.DeltaKind, count int, delay time.Duration) (int, bool) {
	words := strings.Fields(a.generate(count))
	if len(words) > count {
		words = words[:count]
	}

	for i, word := range words {
		select {
		case <-ctx.Done():
			return i, false
		case <-time.After(delay):
		}
		if !send(ctx, events, provider.Event{Delta: &provider.Delta{Kind: kind, Text: word + " "}}) {
			return i, false
		}
	}
	return len(words), true
}

func (a *Adapter) generate(targetWords int) string {
	var sb strings.Builder
	wordCount := 0
	for wordCount < targetWords {
		sentence := a.gen.Sentence(5, 15)
		sb.WriteString(sentence)
		sb.WriteString(" ")
		wordCount += len(strings.Fields(sentence))
	}
	return strings.TrimSpace(sb.String())
}

// estimateTokens approximates input tokens by word count.
func estimateTokens(messages []provider.Message) int {
	total := 0
	for _, msg := range messages {
		total += len(strings.Fields(msg.Content))
	}
	return total
}

func send(ctx context.Context, events chan<- provider.Event, ev provider.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
