// Package stream hosts the persistent-connection transport: newline-delimited
// JSON over TCP, one connection multiplexer per accepted connection. Clients
// hold one connection open and run many concurrent chat streams over it.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/mandalnilabja/streamgate/internal/catalog"
	"github.com/mandalnilabja/streamgate/internal/gateway"
	"github.com/mandalnilabja/streamgate/internal/provider"
)

// Server accepts TCP connections and runs a multiplexer for each.
type Server struct {
	registry *catalog.Registry
	adapters *provider.Registry
	limiter  *gateway.Limiter
	cfg      gateway.MuxConfig
	logger   *slog.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// NewServer creates a stream server sharing the HTTP transport's registry,
// adapter set, and provider limiter.
func NewServer(registry *catalog.Registry, adapters *provider.Registry, limiter *gateway.Limiter, cfg gateway.MuxConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry: registry,
		adapters: adapters,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
	}
}

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled or the listener
// fails. On return every accepted connection has been closed and its
// sessions cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	// Cancellation closes the listener so Accept unblocks.
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.logger.Info("stream transport listening", "addr", ln.Addr())

	var err error
	for {
		var conn net.Conn
		conn, err = ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				err = nil
			}
			break
		}
		s.wg.Add(1)
		go s.serveConn(ctx, conn)
	}

	s.wg.Wait()
	return err
}

// serveConn runs one multiplexer for the lifetime of the connection. The
// multiplexer's read loop only returns when the connection closes, so server
// shutdown closes the raw connection rather than waiting it out.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	m := gateway.NewMux(conn, s.registry, s.adapters, s.limiter, s.cfg)
	s.logger.Info("connection accepted", "connection_id", m.ID(), "remote", conn.RemoteAddr())

	err := m.Serve(ctx)
	if err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("connection read failed", "connection_id", m.ID(), "error", err)
	}
	s.logger.Info("connection closed", "connection_id", m.ID())
}

// Addr returns the bound listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}
