package api

import (
	"net/http"

	"github.com/nviv/nviv/internal/diag"
)

// HealthHandler serves liveness and diagnostics endpoints.
type HealthHandler struct {
	diag *diag.Buffer
}

// RegisterRoutes registers health routes on the mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /logs", h.handleLogs)
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLogs returns the recent diagnostic log lines, oldest first.
func (h *HealthHandler) handleLogs(w http.ResponseWriter, _ *http.Request) {
	lines := []string{}
	if h.diag != nil {
		lines = h.diag.Entries()
	}
	writeJSON(w, http.StatusOK, map[string][]string{"logs": lines})
}
