// Package provider defines the adapter contract all LLM vendors implement
// and the normalized request/event types exchanged through it. Vendor wire
// formats, delta representations, and error vocabularies are absorbed here;
// everything downstream sees only normalized events.
package provider

import (
	"context"

	"github.com/mandalnilabja/streamgate/internal/catalog"
)

// Adapter is the capability interface implemented once per vendor.
// Stream returns a finite, non-restartable event sequence: zero or more
// Delta events, at most one Usage event, then channel close on success.
// A failed stream delivers exactly one Err event before the channel closes.
// Cancellation is signalled through ctx; after cancellation the adapter must
// stop delivering Delta/Usage events locally even if the upstream keeps
// sending data.
type Adapter interface {
	// Name returns the provider tag this adapter serves.
	Name() catalog.ProviderTag

	// Stream starts a streaming generation call against the upstream.
	// The request has already been validated and clamped against the model
	// descriptor; adapters translate it to vendor wire format as-is.
	Stream(ctx context.Context, req *Request) (<-chan Event, error)
}

// DeltaKind distinguishes normal output text from reasoning output.
type DeltaKind string

const (
	DeltaText     DeltaKind = "text"
	DeltaThinking DeltaKind = "thinking"
)

// Delta is one incremental unit of generated content.
type Delta struct {
	Kind DeltaKind
	Text string
}

// Usage carries final token accounting for a completed stream.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Event is the normalized streaming output unit emitted by adapters.
// Exactly one field is non-zero per event.
type Event struct {
	Delta *Delta
	Usage *Usage
	Err   error
}
