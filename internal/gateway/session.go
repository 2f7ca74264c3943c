package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mandalnilabja/streamgate/internal/catalog"
	"github.com/mandalnilabja/streamgate/internal/provider"
)

// State is a session lifecycle state. Transitions are monotonic; no state is
// ever revisited and nothing leaves a terminal state.
type State int32

const (
	StatePending State = iota
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the session.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// DefaultIdleTimeout bounds how long a streaming session may go without a
// chunk or usage event before it is failed as unavailable.
const DefaultIdleTimeout = 120 * time.Second

// SessionConfig carries the knobs and hooks a session runs with.
type SessionConfig struct {
	// IdleTimeout force-fails a streaming session that stops producing
	// events. Zero means DefaultIdleTimeout.
	IdleTimeout time.Duration

	// Logger receives structured transition logs. Nil uses slog.Default().
	Logger *slog.Logger

	// OnTerminal fires exactly once, after the terminal event has been
	// handed to the emit function. Used for session-map cleanup and usage
	// recording; must not block for long.
	OnTerminal func(*Session)
}

// Session owns the lifecycle of one in-flight chat request from acceptance
// to terminal outcome. It is consumed by exactly one goroutine (Run); Cancel
// may be called concurrently from the owning connection.
type Session struct {
	ID         string
	Descriptor *catalog.ModelDescriptor

	// EstimatedInputTokens is the local prompt-size estimate, used for
	// usage accounting when the upstream omits token counts.
	EstimatedInputTokens int

	state   atomic.Int32
	started time.Time

	cancelOnce sync.Once
	cancelCh   chan struct{}

	mu      sync.Mutex
	usage   *provider.Usage
	failure *NormalizedError
}

// NewSession creates a session in the pending state.
func NewSession(id string, desc *catalog.ModelDescriptor) *Session {
	s := &Session{
		ID:         id,
		Descriptor: desc,
		started:    time.Now(),
		cancelCh:   make(chan struct{}),
	}
	s.state.Store(int32(StatePending))
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Cancel requests cooperative cancellation. It is idempotent and a no-op on
// sessions that already reached a terminal state.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancelCh) })
}

// Usage returns the recorded upstream usage, or nil if none arrived.
func (s *Session) Usage() *provider.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Failure returns the normalized error for a failed session, nil otherwise.
func (s *Session) Failure() *NormalizedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Duration returns the elapsed time since the session was accepted.
func (s *Session) Duration() time.Duration {
	return time.Since(s.started)
}

// transition attempts a monotonic state change.
func (s *Session) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// Run dispatches the request to the adapter and consumes its event sequence,
// emitting normalized client events in order. It returns after the terminal
// event has been emitted; emit is called from this goroutine only, so per-
// session event order is preserved end to end.
func (s *Session) Run(ctx context.Context, adapter provider.Adapter, req *provider.Request, emit func(Event), cfg SessionConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("request_id", s.ID, "model", s.Descriptor.ID, "provider", s.Descriptor.Provider)

	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	ctx, cancelUpstream := context.WithCancel(ctx)
	defer cancelUpstream()

	// Propagate Cancel() to the adapter's context. Best-effort upstream
	// cancellation; the consumer below never waits for upstream to ack.
	go func() {
		select {
		case <-s.cancelCh:
			cancelUpstream()
		case <-ctx.Done():
		}
	}()

	finish := func(to State, ev Event) {
		logger.Info("session finished", "state", to, "duration_ms", s.Duration().Milliseconds())
		emit(ev)
		if cfg.OnTerminal != nil {
			cfg.OnTerminal(s)
		}
	}

	fail := func(from State, err error) {
		nerr := Normalize(s.Descriptor.Provider, err)
		if !s.transition(from, StateFailed) {
			logger.Debug("dropping failure for terminal session", "error", err)
			return
		}
		s.mu.Lock()
		s.failure = nerr
		s.mu.Unlock()
		logger.Warn("session failed", "kind", nerr.Kind, "error", err)
		finish(StateFailed, errorEvent(s.ID, nerr))
	}

	// Cancelled before dispatch started.
	select {
	case <-s.cancelCh:
		if s.transition(StatePending, StateCancelled) {
			finish(StateCancelled, cancelledEvent(s.ID))
		}
		return
	default:
	}

	events, err := adapter.Stream(ctx, req)
	if err != nil {
		fail(StatePending, err)
		return
	}

	s.transition(StatePending, StateStreaming)
	logger.Debug("session streaming")

	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	resetIdle := func() {
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(idleTimeout)
	}

	cancelled := func() bool {
		// Stop consuming immediately: later upstream chunks are suppressed
		// locally whether or not upstream honors the cancel.
		if s.transition(StateStreaming, StateCancelled) {
			finish(StateCancelled, cancelledEvent(s.ID))
		}
		return true
	}

	for {
		// Cancellation wins over a ready upstream event.
		select {
		case <-s.cancelCh:
			cancelled()
			return
		default:
		}

		select {
		case <-s.cancelCh:
			cancelled()
			return

		case <-idle.C:
			cancelUpstream()
			fail(StateStreaming, &NormalizedError{
				Kind:    KindUpstreamUnavailable,
				Message: "no output from upstream within idle timeout",
			})
			return

		case ev, ok := <-events:
			if !ok {
				if s.transition(StateStreaming, StateCompleted) {
					finish(StateCompleted, doneEvent(s.ID))
				}
				return
			}

			switch {
			case ev.Err != nil:
				if errors.Is(ev.Err, context.Canceled) && s.cancelRequested() {
					if s.transition(StateStreaming, StateCancelled) {
						finish(StateCancelled, cancelledEvent(s.ID))
					}
					return
				}
				fail(StateStreaming, ev.Err)
				return

			case ev.Delta != nil:
				resetIdle()
				emit(chunkEvent(s.ID, ev.Delta))

			case ev.Usage != nil:
				resetIdle()
				s.mu.Lock()
				s.usage = ev.Usage
				s.mu.Unlock()
				emit(usageEvent(s.ID, ev.Usage))
			}
		}
	}
}

func (s *Session) cancelRequested() bool {
	select {
	case <-s.cancelCh:
		return true
	default:
		return false
	}
}
