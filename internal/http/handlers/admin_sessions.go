package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/wolfman30/havana-support/internal/chat"
	"github.com/wolfman30/havana-support/internal/http/middleware"
	"github.com/wolfman30/havana-support/internal/live"
	"github.com/wolfman30/havana-support/pkg/logging"
)

const (
	adminListLimit = 100

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 64 << 10
)

// AdminSessionStore is the slice of chat.Repository the dashboard needs.
type AdminSessionStore interface {
	GetSession(ctx context.Context, id string) (*chat.Session, error)
	ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error)
	AppendMessage(ctx context.Context, sessionID string, role chat.Role, content string) (*chat.Message, error)
	UpdateSession(ctx context.Context, id string, update chat.SessionUpdate) (*chat.Session, error)
	EnsureGreeting(ctx context.Context, sessionID, greeting string) (*chat.Message, bool, error)
	Claim(ctx context.Context, id string) (*chat.Session, error)
	ListActive(ctx context.Context, since time.Time, limit int) ([]chat.Session, error)
	ListBookedCalls(ctx context.Context, limit int) ([]chat.Session, error)
	ListSessions(ctx context.Context, limit int) ([]chat.Session, error)
}

// AdminSessionsHandler serves the admin dashboard: session lists, takeover
// and the live transcript stream.
type AdminSessionsHandler struct {
	store        AdminSessionStore
	broker       live.Broker
	upgrader     websocket.Upgrader
	activeWindow time.Duration
	greeting     string
	now          func() time.Time
	logger       *logging.Logger
}

// NewAdminSessionsHandler creates the dashboard handler. checkOrigin guards
// websocket upgrades; nil admits any origin.
func NewAdminSessionsHandler(store AdminSessionStore, broker live.Broker, activeWindow time.Duration, checkOrigin func(*http.Request) bool, logger *logging.Logger) *AdminSessionsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if activeWindow <= 0 {
		activeWindow = 5 * time.Minute
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &AdminSessionsHandler{
		store:  store,
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		activeWindow: activeWindow,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

// WithGreeting makes opening an empty transcript add the widget greeting first.
func (h *AdminSessionsHandler) WithGreeting(greeting string) *AdminSessionsHandler {
	h.greeting = strings.TrimSpace(greeting)
	return h
}

// SessionSummary is a session row on the dashboard.
type SessionSummary struct {
	chat.Session
	Online bool `json:"online"`
}

type SessionsListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
}

// MessageResponse represents a message in a transcript.
type MessageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type TranscriptResponse struct {
	Session  *chat.Session     `json:"session"`
	Messages []MessageResponse `json:"messages"`
}

func toMessageResponse(m chat.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		Timestamp: m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func summaries(sessions []chat.Session, online bool) SessionsListResponse {
	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionSummary{Session: s, Online: online})
	}
	return SessionsListResponse{Sessions: out}
}

// ListActive returns sessions touched within the window.
// GET /admin/sessions/active?window=5m
func (h *AdminSessionsHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	window := h.activeWindow
	if raw := strings.TrimSpace(r.URL.Query().Get("window")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			jsonError(w, "invalid window", http.StatusBadRequest)
			return
		}
		window = parsed
	}

	sessions, err := h.store.ListActive(r.Context(), h.now().Add(-window), adminListLimit)
	if err != nil {
		h.storeError(w, r, err, "list active sessions")
		return
	}
	writeJSON(w, http.StatusOK, summaries(sessions, true))
}

// ListCalls returns sessions with a booked callback.
// GET /admin/sessions/calls
func (h *AdminSessionsHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListBookedCalls(r.Context(), adminListLimit)
	if err != nil {
		h.storeError(w, r, err, "list booked calls")
		return
	}
	writeJSON(w, http.StatusOK, summaries(sessions, false))
}

// ListAll returns sessions in creation order.
// GET /admin/sessions
func (h *AdminSessionsHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context(), adminListLimit)
	if err != nil {
		h.storeError(w, r, err, "list sessions")
		return
	}
	writeJSON(w, http.StatusOK, summaries(sessions, false))
}

// GetMessages returns the full transcript.
// GET /admin/sessions/{id}/messages
func (h *AdminSessionsHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	session, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		h.storeError(w, r, err, "load session")
		return
	}
	msgs, err := h.store.ListMessages(r.Context(), sessionID)
	if err != nil {
		h.storeError(w, r, err, "load transcript")
		return
	}
	resp := TranscriptResponse{Session: session, Messages: make([]MessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Claim hands the session to the calling admin.
// POST /admin/sessions/{id}/claim
func (h *AdminSessionsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	session, err := h.store.Claim(r.Context(), sessionID)
	if err != nil {
		h.storeError(w, r, err, "claim session")
		return
	}
	h.logger.ForSession(sessionID).Info("admin: session claimed", "admin", middleware.AdminSubject(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

type adminMessageRequest struct {
	Content string `json:"content"`
}

// PostMessage sends a message as the admin, claiming the session first.
// POST /admin/sessions/{id}/messages
func (h *AdminSessionsHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	var req adminMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.sendAsAdmin(r.Context(), sessionID, req.Content)
	if err != nil {
		h.storeError(w, r, err, "send admin message")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": toMessageResponse(*msg)})
}

// sendAsAdmin claims on first contact so the bot goes quiet before the admin speaks.
func (h *AdminSessionsHandler) sendAsAdmin(ctx context.Context, sessionID, content string) (*chat.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, chat.ErrEmptyContent
	}
	session, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsAdmin {
		if _, err := h.store.Claim(ctx, sessionID); err != nil {
			return nil, err
		}
		h.logger.ForSession(sessionID).Info("admin: session claimed by first message", "admin", middleware.AdminSubject(ctx))
	}
	return h.store.AppendMessage(ctx, sessionID, chat.RoleAdmin, content)
}

// CompleteCall marks the booked callback as done.
// POST /admin/sessions/{id}/call/complete
func (h *AdminSessionsHandler) CompleteCall(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	status := chat.CallStatusCompleted
	session, err := h.store.UpdateSession(r.Context(), sessionID, chat.SessionUpdate{CallStatus: &status})
	if err != nil {
		h.storeError(w, r, err, "complete call")
		return
	}
	h.logger.ForSession(sessionID).Info("admin: call completed", "admin", middleware.AdminSubject(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (h *AdminSessionsHandler) storeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		jsonError(w, "session not found", http.StatusNotFound)
	case errors.Is(err, chat.ErrEmptyContent):
		jsonError(w, "content is required", http.StatusBadRequest)
	case errors.Is(err, chat.ErrNoBookedCall), errors.Is(err, chat.ErrIncompleteBooking), errors.Is(err, chat.ErrInvalidCallStatus):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("admin: "+op+" failed", "error", err, "path", r.URL.Path)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// adminFrame is one message on the admin stream.
type adminFrame struct {
	Type     string            `json:"type"` // "history", "message", "session", "error", "pong"
	Session  *chat.Session     `json:"session,omitempty"`
	Message  *MessageResponse  `json:"message,omitempty"`
	Messages []MessageResponse `json:"messages,omitempty"`
	Error    string            `json:"error,omitempty"`
}

type adminInbound struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteJSON(v)
}

func (w *wsWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// Stream upgrades to a websocket carrying the live transcript.
// GET /admin/sessions/{id}/ws
func (h *AdminSessionsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	ctx := r.Context()
	logger := h.logger.ForSession(sessionID)

	session, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		h.storeError(w, r, err, "load session")
		return
	}
	if h.greeting != "" {
		if _, _, err := h.store.EnsureGreeting(ctx, sessionID, h.greeting); err != nil {
			logger.Error("admin: failed to add greeting", "error", err)
		}
	}

	// Subscribe before the upgrade so a failure can still be reported over HTTP.
	sub, err := h.broker.Subscribe(ctx, sessionID)
	if err != nil {
		logger.Error("admin: subscribe failed", "error", err)
		jsonError(w, "live updates unavailable", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("admin: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	out := &wsWriter{conn: conn}

	msgs, err := h.store.ListMessages(ctx, sessionID)
	if err != nil {
		_ = out.writeJSON(adminFrame{Type: "error", Error: "failed to load transcript"})
		return
	}
	history := adminFrame{Type: "history", Session: session, Messages: make([]MessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		history.Messages = append(history.Messages, toMessageResponse(m))
	}
	if err := out.writeJSON(history); err != nil {
		return
	}

	done := make(chan struct{})
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		events := sub.Events()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := out.ping(); err != nil {
					return
				}
			case ev, ok := <-events:
				if !ok {
					return
				}
				frame, send := adminFrameForEvent(ev)
				if !send {
					continue
				}
				if err := out.writeJSON(frame); err != nil {
					logger.Debug("admin: websocket write failed", "error", err)
					return
				}
			}
		}
	}()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	logger.Info("admin: stream opened", "admin", middleware.AdminSubject(ctx))
	for {
		var in adminInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("admin: stream closed", "error", err)
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		switch in.Type {
		case "ping":
			_ = out.writeJSON(adminFrame{Type: "pong"})
		case "message":
			if _, err := h.sendAsAdmin(ctx, sessionID, in.Text); err != nil {
				_ = out.writeJSON(adminFrame{Type: "error", Error: "failed to send message"})
			}
		}
	}

	close(done)
	sub.Close()
	<-forwarded
}

func adminFrameForEvent(ev live.Event) (adminFrame, bool) {
	switch ev.Type {
	case live.EventMessageCreated:
		if ev.Message == nil {
			return adminFrame{}, false
		}
		m := toMessageResponse(*ev.Message)
		return adminFrame{Type: "message", Message: &m}, true
	case live.EventSessionUpdated:
		if ev.Session == nil {
			return adminFrame{}, false
		}
		return adminFrame{Type: "session", Session: ev.Session}, true
	}
	return adminFrame{}, false
}
