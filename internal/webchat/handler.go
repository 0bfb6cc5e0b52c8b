package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/havana-support/internal/chat"
	"github.com/wolfman30/havana-support/internal/conversation"
	"github.com/wolfman30/havana-support/internal/live"
	"github.com/wolfman30/havana-support/pkg/logging"
)

// ErrorReply is appended to the transcript when the bot could not answer.
const ErrorReply = "Error: unable to get response from AI."

const greetingTemplate = "Hi, I'm %s, your assistant. How can I help you?"

// Greeting is the first assistant message of every session.
func Greeting(assistantName string) string {
	if strings.TrimSpace(assistantName) == "" {
		assistantName = "May"
	}
	return fmt.Sprintf(greetingTemplate, assistantName)
}

// Store is the slice of chat.Repository the widget needs.
type Store interface {
	CreateSession(ctx context.Context) (*chat.Session, error)
	GetSession(ctx context.Context, id string) (*chat.Session, error)
	ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error)
	AppendMessage(ctx context.Context, sessionID string, role chat.Role, content string) (*chat.Message, error)
	EnsureGreeting(ctx context.Context, sessionID, greeting string) (*chat.Message, bool, error)
}

// Handler serves the visitor chat widget.
type Handler struct {
	store        Store
	orchestrator conversation.MessageHandler
	broker       live.Broker
	greeting     string
	checkOrigin  func(*http.Request) bool
	logger       *logging.Logger
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithGreeting overrides the greeting text.
func WithGreeting(greeting string) HandlerOption {
	return func(h *Handler) {
		if strings.TrimSpace(greeting) != "" {
			h.greeting = greeting
		}
	}
}

// WithOriginCheck restricts which browser origins may open a stream.
func WithOriginCheck(fn func(*http.Request) bool) HandlerOption {
	return func(h *Handler) { h.checkOrigin = fn }
}

// NewHandler creates a web chat handler.
func NewHandler(store Store, orchestrator conversation.MessageHandler, broker live.Broker, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		store:        store,
		orchestrator: orchestrator,
		broker:       broker,
		greeting:     Greeting(""),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// InboundMessage is what the widget sends over the stream.
type InboundMessage struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

type createSessionResponse struct {
	Session  *chat.Session    `json:"session"`
	Messages []HistoryMessage `json:"messages"`
}

// CreateSession handles POST /chat/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.CreateSession(r.Context())
	if err != nil {
		h.logger.Error("webchat: failed to create session", "error", err)
		jsonError(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	logger := h.logger.ForSession(session.ID)

	resp := createSessionResponse{Session: session, Messages: []HistoryMessage{}}
	greeting, _, err := h.store.EnsureGreeting(r.Context(), session.ID, h.greeting)
	if err != nil {
		// The first stream open retries it.
		logger.Error("webchat: failed to add greeting", "error", err)
	} else if greeting != nil {
		resp.Messages = append(resp.Messages, historyMessage(*greeting))
	}

	logger.Info("webchat: session created")
	writeJSON(w, http.StatusCreated, resp)
}

type postMessageRequest struct {
	Content string `json:"content"`
}

type postMessageResponse struct {
	Outcome conversation.Outcome `json:"outcome"`
	Message HistoryMessage       `json:"message"`
}

// PostMessage handles POST /chat/sessions/{id}/messages.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	msg, outcome, err := h.processMessage(r.Context(), sessionID, req.Content)
	if err != nil {
		status, text := conversation.StatusForError(err)
		if msg != nil {
			// The visitor's message was stored; only the bot failed.
			status, text = http.StatusBadGateway, ErrorReply
		}
		jsonError(w, text, status)
		return
	}
	writeJSON(w, http.StatusOK, postMessageResponse{Outcome: outcome, Message: historyMessage(*msg)})
}

// processMessage stores the visitor's message and runs the orchestrator. The
// orchestrator keeps running if the caller goes away. When it fails, the
// generic error reply is appended so every viewer sees the failure.
func (h *Handler) processMessage(ctx context.Context, sessionID, text string) (*chat.Message, conversation.Outcome, error) {
	logger := h.logger.ForSession(sessionID)

	msg, err := h.store.AppendMessage(ctx, sessionID, chat.RoleUser, text)
	if err != nil {
		if !errors.Is(err, chat.ErrSessionNotFound) && !errors.Is(err, chat.ErrEmptyContent) {
			logger.Error("webchat: failed to store message", "error", err)
		}
		return nil, "", err
	}

	detached := context.WithoutCancel(ctx)
	outcome, err := h.orchestrator.HandleMessage(detached, sessionID, msg.Content)
	if err != nil {
		logger.Error("webchat: orchestrator failed", "error", err)
		if _, appendErr := h.store.AppendMessage(detached, sessionID, chat.RoleAssistant, ErrorReply); appendErr != nil {
			logger.Error("webchat: failed to store error reply", "error", appendErr)
		}
		return msg, "", err
	}

	logger.Info("webchat: message handled", "outcome", string(outcome))
	return msg, outcome, nil
}

// ListMessages handles GET /chat/sessions/{id}/messages. It is the reload
// path for viewers that missed live events.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	msgs, err := h.store.ListMessages(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			jsonError(w, "session not found", http.StatusNotFound)
			return
		}
		h.logger.ForSession(sessionID).Error("webchat: failed to load history", "error", err)
		jsonError(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, historyFrame(sessionID, msgs))
}

// HandleWebSocket handles GET /chat/sessions/{id}/ws.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	server := websocket.Server{
		Handshake: func(cfg *websocket.Config, req *http.Request) error {
			if h.checkOrigin != nil && !h.checkOrigin(req) {
				return errors.New("origin not allowed")
			}
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			h.serveWS(r.Context(), conn, sessionID)
		},
	}
	server.ServeHTTP(w, r)
}

// wsSender serializes writes; the event forwarder and the read loop share the connection.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSender) send(msg OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return websocket.JSON.Send(s.conn, msg)
}

func (h *Handler) serveWS(ctx context.Context, conn *websocket.Conn, sessionID string) {
	logger := h.logger.ForSession(sessionID)
	out := &wsSender{conn: conn}

	if _, err := h.store.GetSession(ctx, sessionID); err != nil {
		_ = out.send(OutboundMessage{Type: "error", Text: "session not found"})
		return
	}
	// Before subscribing, so a late greeting arrives in the history frame only.
	if _, _, err := h.store.EnsureGreeting(ctx, sessionID, h.greeting); err != nil {
		logger.Error("webchat: failed to add greeting", "error", err)
	}

	// Subscribe before reading history so nothing falls between the two.
	sub, err := h.broker.Subscribe(ctx, sessionID)
	if err != nil {
		logger.Error("webchat: subscribe failed", "error", err)
		_ = out.send(OutboundMessage{Type: "error", Text: "live updates unavailable"})
		return
	}
	defer sub.Close()

	msgs, err := h.store.ListMessages(ctx, sessionID)
	if err != nil {
		logger.Error("webchat: failed to load history", "error", err)
		_ = out.send(OutboundMessage{Type: "error", Text: "failed to load history"})
		return
	}
	if err := out.send(historyFrame(sessionID, msgs)); err != nil {
		return
	}

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for ev := range sub.Events() {
			frame, ok := frameForEvent(ev)
			if !ok {
				continue
			}
			if err := out.send(frame); err != nil {
				logger.Debug("webchat: send failed", "error", err)
				return
			}
		}
	}()

	logger.Info("webchat: connection opened")
	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			logger.Debug("webchat: connection closed", "error", err)
			break
		}

		switch msg.Type {
		case "ping":
			_ = out.send(OutboundMessage{Type: "pong"})
		case "message":
			if strings.TrimSpace(msg.Text) == "" {
				continue
			}
			if _, _, err := h.processMessage(ctx, sessionID, msg.Text); err != nil {
				_, text := conversation.StatusForError(err)
				_ = out.send(OutboundMessage{Type: "error", Text: text})
			}
		}
	}

	sub.Close()
	<-forwarded
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
