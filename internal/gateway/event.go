// Package gateway implements the streaming session core: the session state
// machine, the connection multiplexer for persistent connections, the
// single-shot HTTP streamer, and error normalization across providers.
package gateway

import (
	"github.com/mandalnilabja/streamgate/internal/provider"
)

// EventType tags outbound client events.
type EventType string

const (
	EventChunk     EventType = "chat_chunk"
	EventUsage     EventType = "chat_usage"
	EventDone      EventType = "chat_done"
	EventError     EventType = "chat_error"
	EventCancelled EventType = "chat_cancelled"
)

// Event is the normalized outbound unit written to clients. On a multiplexed
// connection every event carries the request id it belongs to; the
// single-shot streamer omits it since it carries exactly one stream.
type Event struct {
	Type      EventType          `json:"type"`
	RequestID string             `json:"requestId,omitempty"`
	Content   string             `json:"content,omitempty"`
	DeltaKind provider.DeltaKind `json:"deltaKind,omitempty"`
	Usage     *provider.Usage    `json:"usage,omitempty"`
	Error     *NormalizedError   `json:"error,omitempty"`
}

// Terminal reports whether the event ends its stream. Exactly one terminal
// event is delivered per request id, and nothing follows it.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventDone, EventError, EventCancelled:
		return true
	default:
		return false
	}
}

func chunkEvent(id string, d *provider.Delta) Event {
	return Event{Type: EventChunk, RequestID: id, Content: d.Text, DeltaKind: d.Kind}
}

func usageEvent(id string, u *provider.Usage) Event {
	return Event{Type: EventUsage, RequestID: id, Usage: u}
}

func doneEvent(id string) Event {
	return Event{Type: EventDone, RequestID: id}
}

func errorEvent(id string, nerr *NormalizedError) Event {
	return Event{Type: EventError, RequestID: id, Error: nerr}
}

func cancelledEvent(id string) Event {
	return Event{Type: EventCancelled, RequestID: id}
}
