// Package tokenizer estimates prompt token counts before dispatch. Counts
// are exact for tiktoken-encoded model families and an approximation for
// everything else; authoritative usage always comes from the upstream.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Encoding names used by tiktoken.
const (
	EncodingCL100kBase = "cl100k_base"
	EncodingO200kBase  = "o200k_base"
)

// modelEncoding pairs a model-ID prefix with its encoding.
type modelEncoding struct {
	prefix   string
	encoding string
}

// modelEncodings lists model prefixes and their encodings. Longer prefixes
// come first so gpt-4o is not matched as gpt-4.
var modelEncodings = []modelEncoding{
	{"gpt-4o", EncodingO200kBase},
	{"gpt-4.1", EncodingO200kBase},
	{"gpt-4", EncodingCL100kBase},
	{"chatgpt", EncodingO200kBase},
	{"o1", EncodingO200kBase},
	{"o3", EncodingO200kBase},
}

// Estimator counts tokens with per-encoding caching. Safe for concurrent use.
type Estimator struct {
	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
}

func New() *Estimator {
	return &Estimator{
		encodings: make(map[string]*tiktoken.Tiktoken),
	}
}

// getEncoding returns the tiktoken encoding for a model, with caching.
func (e *Estimator) getEncoding(model string) (*tiktoken.Tiktoken, error) {
	name := resolveEncoding(model)

	e.mu.RLock()
	enc, ok := e.encodings[name]
	e.mu.RUnlock()
	if ok {
		return enc, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok = e.encodings[name]; ok {
		return enc, nil
	}

	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	e.encodings[name] = enc
	return enc, nil
}

// resolveEncoding determines the encoding name for a model. Non-OpenAI
// models fall back to cl100k_base, which is close enough for an estimate.
func resolveEncoding(model string) string {
	lower := strings.ToLower(model)
	for _, me := range modelEncodings {
		if strings.HasPrefix(lower, me.prefix) {
			return me.encoding
		}
	}
	return EncodingCL100kBase
}

// CountTokens counts tokens in a text string for a given model.
func (e *Estimator) CountTokens(text string, model string) (int, error) {
	enc, err := e.getEncoding(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}
