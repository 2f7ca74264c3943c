package app

import (
	"log/slog"
	"net/http"

	"github.com/mandalnilabja/streamgate/internal/transport/http/handler"
	"github.com/mandalnilabja/streamgate/internal/transport/http/middleware"
)

// RouterOptions configures the HTTP router behavior.
type RouterOptions struct {
	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router with all application
// routes. Returns an http.Handler with middleware applied.
func NewRouter(repo *handler.Repo, opts *RouterOptions) http.Handler {
	mux := http.NewServeMux()

	// Streaming
	mux.HandleFunc("POST /v1/chat/stream", repo.ChatStream)

	// Catalog
	mux.HandleFunc("GET /v1/models", repo.ListModels)
	mux.HandleFunc("GET /v1/models/{model}", repo.GetModel)

	// Infra
	mux.HandleFunc("GET /api/health", repo.HealthCheck)
	mux.HandleFunc("GET /", repo.RootStatus)

	// Apply middleware chain (order: outer to inner)
	var h http.Handler = mux

	// Request logging (if logger provided)
	if opts != nil && opts.Logger != nil {
		h = middleware.RequestLogger(opts.Logger)(h)
	}

	// Caller identity asserted by a fronting proxy (always applied)
	h = middleware.Principal(h)

	// Request ID (always applied)
	h = middleware.RequestID(h)

	// CORS (always applied for browser clients)
	h = middleware.CORS(h)

	return h
}
