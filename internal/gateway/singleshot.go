package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mandalnilabja/streamgate/internal/catalog"
	"github.com/mandalnilabja/streamgate/internal/provider"
)

// ChatInput is the parsed one-shot request body, before validation.
type ChatInput struct {
	RequestID string            `json:"requestId"`
	Model     string            `json:"model"`
	Message   json.RawMessage   `json:"message"`
	Options   *provider.Options `json:"options,omitempty"`
}

// SingleShot runs one session per long-lived HTTP response: the same session
// machinery as the multiplexer with cardinality fixed at one. The request id
// is implicit (generated when the client supplies none) and events are
// written without a request id tag. Cancellation comes from the transport
// context when the client closes the connection.
type SingleShot struct {
	registry *catalog.Registry
	adapters *provider.Registry
	limiter  *Limiter
	cfg      MuxConfig
	logger   *slog.Logger
}

// NewSingleShot builds a one-shot streamer sharing the multiplexer's
// registry, adapter set, and provider limiter.
func NewSingleShot(registry *catalog.Registry, adapters *provider.Registry, limiter *Limiter, cfg MuxConfig) *SingleShot {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SingleShot{
		registry: registry,
		adapters: adapters,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Stream validates the input and streams the session's events through write
// until the terminal event. Validation and capacity failures produce a
// single terminal error event and no session. write is called from one
// goroutine only; a write error aborts the session via cancellation.
func (s *SingleShot) Stream(ctx context.Context, in *ChatInput, write func(Event) error) {
	requestID := in.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	reject := func(err error) {
		nerr := Normalize("", err)
		s.logger.Info("request rejected", "request_id", requestID, "kind", nerr.Kind, "error", err)
		_ = write(Event{Type: EventError, Error: nerr})
	}

	messages, err := provider.ParseMessages(in.Message)
	if err != nil {
		reject(err)
		return
	}

	desc, err := s.registry.Resolve(in.Model)
	if err != nil {
		reject(err)
		return
	}

	adapter, err := s.adapters.For(desc.Provider)
	if err != nil {
		reject(err)
		return
	}

	req, err := provider.BuildRequest(&provider.ChatRequest{
		RequestID: requestID,
		Model:     in.Model,
		Messages:  messages,
		Options:   in.Options,
	}, desc)
	if err != nil {
		reject(err)
		return
	}

	if !s.limiter.Acquire(desc.Provider) {
		reject(fmt.Errorf("%w: provider %s at capacity", ErrCapacity, desc.Provider))
		return
	}
	defer s.limiter.Release(desc.Provider)

	sess := NewSession(requestID, desc)
	if s.cfg.Estimate != nil {
		sess.EstimatedInputTokens = s.cfg.Estimate(messages, desc.ID)
	}

	s.logger.Info("session accepted", "request_id", sess.ID, "model", desc.ID, "provider", desc.Provider, "transport", "http")

	// The transport context carries client disconnect; map it onto the
	// session's cooperative cancel so the next suspension point observes it.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		sess.Cancel()
	}()

	emit := func(ev Event) {
		// One stream per response: the id tag is redundant on the wire.
		ev.RequestID = ""
		if err := write(ev); err != nil {
			cancel()
		}
	}

	sess.Run(ctx, adapter, req, emit, SessionConfig{
		IdleTimeout: s.cfg.IdleTimeout,
		Logger:      s.logger,
		OnTerminal:  s.cfg.OnTerminal,
	})
}
