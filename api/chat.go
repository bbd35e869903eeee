package api

import (
	"encoding/json"
	"net/http"

	"github.com/nviv/nviv/internal/log"
)

// defaultWebSession is the thread id used when the web client sends none.
const defaultWebSession = "web_default"

// ChatRequest is the web chat request body.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Reset     bool   `json:"reset"`
}

// ChatResponse is the web chat response body.
type ChatResponse struct {
	Message string `json:"message"`
}

// ChatHandler serves the web chat endpoint.
type ChatHandler struct {
	service ChatService
	logger  log.Logger
}

// RegisterRoutes registers chat routes on the mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.handleChat)
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "chat service not ready")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = defaultWebSession
	}

	if req.Reset {
		h.service.ResetHistory(r.Context(), req.SessionID)
	}

	reply := h.service.Chat(r.Context(), req.Message, req.SessionID)
	writeJSON(w, http.StatusOK, ChatResponse{Message: reply})
}
