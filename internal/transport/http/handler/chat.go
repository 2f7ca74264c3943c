package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mandalnilabja/streamgate/internal/gateway"
	"github.com/mandalnilabja/streamgate/internal/transport/http/middleware"
)

// ChatStream handles POST /v1/chat/stream: one streaming session per
// request, events written as SSE data lines until the terminal event.
// Client disconnect cancels the session through the request context.
func (h *Repo) ChatStream(w http.ResponseWriter, r *http.Request) {
	var in gateway.ChatInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, &gateway.NormalizedError{
			Kind:    gateway.KindInvalidRequest,
			Message: "request body is not valid JSON",
		})
		return
	}
	if in.RequestID == "" {
		in.RequestID = middleware.GetRequestID(r.Context())
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, &gateway.NormalizedError{
			Kind:    gateway.KindInternal,
			Message: "streaming unsupported by connection",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	write := func(ev gateway.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	shot := gateway.NewSingleShot(h.Registry, h.Adapters, h.Limiter, h.MuxConfig)
	shot.Stream(r.Context(), &in, write)
}
