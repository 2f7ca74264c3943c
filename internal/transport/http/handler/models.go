package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mandalnilabja/streamgate/internal/catalog"
	"github.com/mandalnilabja/streamgate/internal/gateway"
)

// modelsResponse is the catalog listing body.
type modelsResponse struct {
	Data []*catalog.ModelDescriptor `json:"data"`
}

// ListModels handles GET /v1/models, optionally filtered with ?provider=.
// The serialized body is cached; the catalog is immutable after startup so
// the TTL only bounds memory, not staleness.
func (h *Repo) ListModels(w http.ResponseWriter, r *http.Request) {
	filter := catalog.ProviderTag(r.URL.Query().Get("provider"))
	if filter != "" && !filter.IsValid() {
		writeError(w, http.StatusBadRequest, &gateway.NormalizedError{
			Kind:    gateway.KindInvalidRequest,
			Message: "unknown provider filter " + string(filter),
		})
		return
	}

	key := "models:" + string(filter)
	if h.Cache != nil {
		if body, found := h.Cache.Get(key); found {
			writeJSONBytes(w, body)
			return
		}
	}

	body, err := json.Marshal(modelsResponse{Data: h.Registry.List(filter)})
	if err != nil {
		writeError(w, http.StatusInternalServerError, &gateway.NormalizedError{
			Kind:    gateway.KindInternal,
			Message: "internal error",
		})
		return
	}

	if h.Cache != nil {
		h.Cache.SetWithTTL(key, body, int64(len(body)), modelsCacheTTL)
	}
	writeJSONBytes(w, body)
}

// GetModel handles GET /v1/models/{model}.
func (h *Repo) GetModel(w http.ResponseWriter, r *http.Request) {
	modelID := r.PathValue("model")
	desc, err := h.Registry.Resolve(modelID)
	if err != nil {
		writeError(w, http.StatusNotFound, gateway.Normalize("", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(desc)
}

func writeJSONBytes(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
