package tokenizer

import (
	"strings"

	"github.com/mandalnilabja/streamgate/internal/provider"
)

// Per-message overhead and reply priming, per OpenAI's counting rules.
// Other vendors use different framing; the same constants serve as a
// reasonable estimate there.
const (
	messageOverhead    = 3
	replyPrimingTokens = 3
)

// charsPerTokenHeuristic is the fallback ratio when no encoding is
// available, roughly one token per four characters of English text.
const charsPerTokenHeuristic = 4

// EstimateMessages counts prompt tokens for a conversation.
func (e *Estimator) EstimateMessages(messages []provider.Message, model string) (int, error) {
	total := 0
	for _, msg := range messages {
		roleTokens, err := e.CountTokens(string(msg.Role), model)
		if err != nil {
			return 0, err
		}
		contentTokens, err := e.CountTokens(msg.Content, model)
		if err != nil {
			return 0, err
		}
		total += roleTokens + contentTokens + messageOverhead
	}
	return total + replyPrimingTokens, nil
}

// Estimate is the infallible variant used on the dispatch path: when the
// encoding cannot be loaded it degrades to a character-count heuristic
// instead of failing the request.
func (e *Estimator) Estimate(messages []provider.Message, model string) int {
	if n, err := e.EstimateMessages(messages, model); err == nil {
		return n
	}

	chars := 0
	for _, msg := range messages {
		chars += len(strings.TrimSpace(msg.Content))
	}
	return chars/charsPerTokenHeuristic + len(messages)*messageOverhead + replyPrimingTokens
}
