package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/havana-support/internal/chat"
	"github.com/wolfman30/havana-support/pkg/logging"
)

// MessageHandler is the part of the Orchestrator the HTTP layer calls.
type MessageHandler interface {
	HandleMessage(ctx context.Context, sessionID, content string) (Outcome, error)
}

// Handler wires HTTP requests to the orchestrator.
type Handler struct {
	orchestrator MessageHandler
	logger       *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(orchestrator MessageHandler, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{orchestrator: orchestrator, logger: logger}
}

// ChatRequest is the body of POST /api/chat. The user message is expected to
// be stored already.
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
}

type ChatResponse struct {
	Outcome Outcome `json:"outcome"`
}

// Chat handles POST /api/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode chat request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	outcome, err := h.orchestrator.HandleMessage(r.Context(), req.SessionID, req.Content)
	if err != nil {
		status, msg := StatusForError(err)
		h.logger.ForSession(req.SessionID).Error("failed to handle chat message", "error", err, "status", status)
		http.Error(w, msg, status)
		return
	}

	h.logger.ForSession(req.SessionID).Info("chat: message handled", "outcome", string(outcome))
	h.writeJSON(w, http.StatusOK, ChatResponse{Outcome: outcome})
}

// StatusForError maps orchestrator errors onto HTTP status codes.
func StatusForError(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, chat.ErrEmptyContent):
		return http.StatusBadRequest, "Message content is required"
	case IsDependencyError(err):
		return http.StatusBadGateway, "Unable to get response from AI"
	default:
		return http.StatusInternalServerError, "Failed to process message"
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
