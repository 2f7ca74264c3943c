package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mandalnilabja/streamgate/internal/version"
)

// RootStatus returns JSON status and version information at /
func (h *Repo) RootStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"name":    "streamgate",
		"version": version.Version,
		"status":  "running",
		"api":     "/v1",
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// HealthCheck handler returns the application health status.
func (h *Repo) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "active",
		"app":       "streamgate",
		"models":    h.Registry.Len(),
		"providers": len(h.Adapters.Tags()),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}
