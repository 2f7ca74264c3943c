package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mandalnilabja/streamgate/internal/catalog"
	"github.com/mandalnilabja/streamgate/internal/provider"
)

// Control message kinds on a persistent connection.
const (
	msgChat   = "chat"
	msgCancel = "cancel"
)

// inboundMessage is one JSON line read from a persistent connection.
type inboundMessage struct {
	Type      string            `json:"type"`
	RequestID string            `json:"requestId"`
	Model     string            `json:"model"`
	Message   json.RawMessage   `json:"message"`
	Options   *provider.Options `json:"options,omitempty"`
}

// DefaultMaxSessions caps concurrent open sessions per connection.
const DefaultMaxSessions = 8

// DefaultWriteTimeout bounds each outbound write. Together with the bounded
// out channel it caps how long an undrained client can hold sessions open.
const DefaultWriteTimeout = 30 * time.Second

// defaultWriteBuffer bounds the outbound event channel, giving sessions
// backpressure against a slow client instead of unbounded buffering.
const defaultWriteBuffer = 64

// MuxConfig configures a connection multiplexer.
type MuxConfig struct {
	// MaxSessions is the per-connection cap on concurrent open sessions.
	// Zero means DefaultMaxSessions.
	MaxSessions int

	// IdleTimeout is passed through to each session.
	IdleTimeout time.Duration

	// WriteTimeout bounds each outbound write. A client that stops reading
	// for longer than this is disconnected so its sessions can reach a
	// terminal state instead of wedging on backpressure. Zero means
	// DefaultWriteTimeout.
	WriteTimeout time.Duration

	// Logger receives connection and session logs. Nil uses slog.Default().
	Logger *slog.Logger

	// Estimate returns a local input-token estimate for usage accounting
	// fallback. Optional.
	Estimate func(messages []provider.Message, model string) int

	// OnTerminal fires after each session reaches a terminal state and its
	// terminal event was handed to the writer. Optional.
	OnTerminal func(*Session)
}

// Mux owns one persistent bidirectional connection and multiplexes many
// concurrent sessions over it, keyed by client-supplied request id. Inbound
// control messages are JSON lines; outbound events are JSON lines tagged
// with the request id they belong to. Events for one request id are never
// reordered; no ordering holds across ids.
type Mux struct {
	id       string
	rwc      io.ReadWriteCloser
	registry *catalog.Registry
	adapters *provider.Registry
	limiter  *Limiter
	cfg      MuxConfig
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	out       chan Event
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewMux wraps an accepted connection. Serve must be called to start it.
func NewMux(rwc io.ReadWriteCloser, registry *catalog.Registry, adapters *provider.Registry, limiter *Limiter, cfg MuxConfig) *Mux {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New().String()
	return &Mux{
		id:       id,
		rwc:      rwc,
		registry: registry,
		adapters: adapters,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger.With("connection_id", id),
		sessions: make(map[string]*Session),
		out:      make(chan Event, defaultWriteBuffer),
		closed:   make(chan struct{}),
	}
}

// ID returns the connection identifier used in logs and usage records.
func (m *Mux) ID() string {
	return m.id
}

// Serve runs the connection until the peer disconnects or ctx is cancelled.
// On return all sessions owned by the connection have been cancelled
// (best-effort upstream cancellation, not awaited) and the connection is
// closed.
func (m *Mux) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go m.writeLoop()

	err := m.readLoop(ctx)

	// Peer is gone: cancel everything still in flight. Sessions drain into
	// the closed escape hatch of emit, so none of them can wedge.
	m.close()
	m.mu.Lock()
	for _, sess := range m.sessions {
		sess.Cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
	return err
}

func (m *Mux) close() {
	m.closeOnce.Do(func() {
		close(m.closed)
		m.rwc.Close()
	})
}

// emit hands an event to the writer, blocking for backpressure. A closed
// connection discards the event instead of blocking forever.
func (m *Mux) emit(ev Event) {
	select {
	case m.out <- ev:
	case <-m.closed:
	}
}

func (m *Mux) writeLoop() {
	enc := json.NewEncoder(m.rwc)
	deadline, _ := m.rwc.(interface{ SetWriteDeadline(time.Time) error })
	for {
		select {
		case ev := <-m.out:
			// The deadline is the grace period for a client that stopped
			// draining: when it expires the connection is torn down and
			// every session on it is cancelled, rather than wedging the
			// writer forever.
			if deadline != nil {
				_ = deadline.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
			}
			if err := enc.Encode(ev); err != nil {
				m.logger.Debug("write failed, closing connection", "error", err)
				m.close()
				return
			}
		case <-m.closed:
			return
		}
	}
}

func (m *Mux) readLoop(ctx context.Context) error {
	scanner := bufio.NewScanner(m.rwc)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg inboundMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			m.protocolError("", "malformed message: not valid JSON")
			continue
		}

		switch msg.Type {
		case msgChat:
			m.handleChat(ctx, &msg)
		case msgCancel:
			m.handleCancel(msg.RequestID)
		default:
			m.protocolError(msg.RequestID, fmt.Sprintf("unrecognized message type %q", msg.Type))
		}
	}
	return scanner.Err()
}

// protocolError reports a connection-level protocol violation to the client.
// The connection stays open.
func (m *Mux) protocolError(requestID, reason string) {
	m.logger.Debug("protocol error", "request_id", requestID, "reason", reason)
	m.emit(errorEvent(requestID, &NormalizedError{Kind: KindInvalidRequest, Message: reason}))
}

// handleChat validates a new request and, on success, opens a session and
// starts its dispatch. Any validation or capacity failure is reported as a
// single terminal error event for that request id with no session created.
func (m *Mux) handleChat(ctx context.Context, msg *inboundMessage) {
	if msg.RequestID == "" {
		m.protocolError("", "chat message missing requestId")
		return
	}

	messages, err := provider.ParseMessages(msg.Message)
	if err != nil {
		m.rejectRequest(msg.RequestID, err)
		return
	}

	desc, err := m.registry.Resolve(msg.Model)
	if err != nil {
		m.rejectRequest(msg.RequestID, err)
		return
	}

	adapter, err := m.adapters.For(desc.Provider)
	if err != nil {
		m.rejectRequest(msg.RequestID, err)
		return
	}

	req, err := provider.BuildRequest(&provider.ChatRequest{
		RequestID: msg.RequestID,
		Model:     msg.Model,
		Messages:  messages,
		Options:   msg.Options,
	}, desc)
	if err != nil {
		m.rejectRequest(msg.RequestID, err)
		return
	}

	m.mu.Lock()
	if _, open := m.sessions[msg.RequestID]; open {
		m.mu.Unlock()
		// Untagged: a terminal-typed event carrying the in-flight id would
		// end that stream from the client's point of view.
		m.protocolError("", fmt.Sprintf("requestId %q already in use on this connection", msg.RequestID))
		return
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		m.rejectRequest(msg.RequestID, fmt.Errorf("%w: connection at %d open sessions", ErrCapacity, m.cfg.MaxSessions))
		return
	}
	if !m.limiter.Acquire(desc.Provider) {
		m.mu.Unlock()
		m.rejectRequest(msg.RequestID, fmt.Errorf("%w: provider %s at capacity", ErrCapacity, desc.Provider))
		return
	}

	sess := NewSession(msg.RequestID, desc)
	m.sessions[msg.RequestID] = sess
	m.mu.Unlock()

	m.logger.Info("session accepted", "request_id", sess.ID, "model", desc.ID, "provider", desc.Provider)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// Estimation can be slow on a cold encoding cache; run it here so
		// the read loop keeps servicing chat and cancel messages.
		if m.cfg.Estimate != nil {
			sess.EstimatedInputTokens = m.cfg.Estimate(messages, desc.ID)
		}
		sess.Run(ctx, adapter, req, m.emit, SessionConfig{
			IdleTimeout: m.cfg.IdleTimeout,
			Logger:      m.logger,
			OnTerminal:  m.sessionDone,
		})
	}()
}

// handleCancel requests cancellation of an open session. Unknown or already
// terminal ids are a no-op, not an error.
func (m *Mux) handleCancel(requestID string) {
	m.mu.Lock()
	sess, ok := m.sessions[requestID]
	m.mu.Unlock()
	if !ok {
		m.logger.Debug("cancel for unknown or finished request", "request_id", requestID)
		return
	}
	sess.Cancel()
}

// sessionDone is chained into every session's OnTerminal: it frees the
// session's slot in the connection map and the provider limiter, then runs
// the configured hook.
func (m *Mux) sessionDone(sess *Session) {
	m.mu.Lock()
	delete(m.sessions, sess.ID)
	m.mu.Unlock()
	m.limiter.Release(sess.Descriptor.Provider)

	if m.cfg.OnTerminal != nil {
		m.cfg.OnTerminal(sess)
	}
}

func (m *Mux) rejectRequest(requestID string, err error) {
	nerr := Normalize("", err)
	m.logger.Info("request rejected", "request_id", requestID, "kind", nerr.Kind, "error", err)
	m.emit(errorEvent(requestID, nerr))
}

// OpenSessions returns the number of currently non-terminal sessions.
func (m *Mux) OpenSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
