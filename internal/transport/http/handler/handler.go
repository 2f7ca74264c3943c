// Package handler implements the HTTP surface: one-shot SSE chat streaming,
// the model catalog listing, and health endpoints.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/mandalnilabja/streamgate/internal/catalog"
	"github.com/mandalnilabja/streamgate/internal/gateway"
	"github.com/mandalnilabja/streamgate/internal/provider"
)

// Repo holds the dependencies for HTTP handlers.
type Repo struct {
	Registry *catalog.Registry
	Adapters *provider.Registry
	Limiter  *gateway.Limiter
	Cache    *ristretto.Cache[string, []byte]
	Logger   *slog.Logger

	// MuxConfig carries the session settings (idle timeout, estimator,
	// terminal hook) shared with the persistent-connection transport.
	MuxConfig gateway.MuxConfig
}

// NewRepo creates a new instance of the handler repository.
func NewRepo(registry *catalog.Registry, adapters *provider.Registry, limiter *gateway.Limiter, cache *ristretto.Cache[string, []byte], cfg gateway.MuxConfig) *Repo {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Repo{
		Registry:  registry,
		Adapters:  adapters,
		Limiter:   limiter,
		Cache:     cache,
		Logger:    logger,
		MuxConfig: cfg,
	}
}

// errorEnvelope is the JSON error body for non-streaming responses.
type errorEnvelope struct {
	Error *gateway.NormalizedError `json:"error"`
}

func writeError(w http.ResponseWriter, status int, nerr *gateway.NormalizedError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: nerr})
}

// modelsCacheTTL bounds how long a serialized models listing is reused.
const modelsCacheTTL = 60 * time.Second
