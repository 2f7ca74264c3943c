// Package usage records per-session token accounting. The gateway treats
// the sink as a collaborator: recording is fire-and-forget from session
// terminal hooks and never blocks or fails a stream.
package usage

import "context"

// Outcome values for a finished session.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Record is the accounting for one finished streaming session. InputTokens
// and OutputTokens are upstream-reported and zero when the stream failed
// before usage arrived; EstimatedInputTokens is the local pre-dispatch
// estimate.
type Record struct {
	RequestID            string
	Model                string
	Provider             string
	InputTokens          int
	OutputTokens         int
	EstimatedInputTokens int
	Outcome              string
	ErrorKind            string
	DurationMs           int64
}

// Sink receives session records. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(ctx context.Context, rec *Record) error
	Close() error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) Record(context.Context, *Record) error { return nil }
func (NopSink) Close() error                          { return nil }
