package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/havana-support/internal/chat"
	"github.com/wolfman30/havana-support/internal/live"
	"github.com/wolfman30/havana-support/pkg/logging"
)

type adminFixture struct {
	repo    *live.PublishingRepository
	handler *AdminSessionsHandler
	router  chi.Router
	clock   time.Time
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	f := &adminFixture{clock: time.Date(2026, 10, 17, 2, 0, 0, 0, time.UTC)}
	mem := chat.NewInMemoryRepository().WithClock(func() time.Time { return f.clock })
	broker := live.NewMemoryBroker()
	f.repo = live.NewPublishingRepository(mem, broker, logging.New("error"))
	f.handler = NewAdminSessionsHandler(f.repo, broker, 5*time.Minute, nil, logging.New("error"))
	f.handler.now = func() time.Time { return f.clock }

	r := chi.NewRouter()
	r.Get("/admin/sessions", f.handler.ListAll)
	r.Get("/admin/sessions/active", f.handler.ListActive)
	r.Get("/admin/sessions/calls", f.handler.ListCalls)
	r.Get("/admin/sessions/{id}/messages", f.handler.GetMessages)
	r.Post("/admin/sessions/{id}/messages", f.handler.PostMessage)
	r.Post("/admin/sessions/{id}/claim", f.handler.Claim)
	r.Post("/admin/sessions/{id}/call/complete", f.handler.CompleteCall)
	r.Get("/admin/sessions/{id}/ws", f.handler.Stream)
	f.router = r
	return f
}

func (f *adminFixture) newSession(t *testing.T) *chat.Session {
	t.Helper()
	s, err := f.repo.CreateSession(context.Background())
	require.NoError(t, err)
	return s
}

func (f *adminFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeSessions(t *testing.T, rec *httptest.ResponseRecorder) []SessionSummary {
	t.Helper()
	var resp SessionsListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Sessions
}

func TestAdminListActiveUsesWindow(t *testing.T) {
	f := newAdminFixture(t)
	stale := f.newSession(t)
	f.clock = f.clock.Add(10 * time.Minute)
	fresh := f.newSession(t)
	f.clock = f.clock.Add(2 * time.Minute)

	rec := f.do(t, http.MethodGet, "/admin/sessions/active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sessions := decodeSessions(t, rec)
	require.Len(t, sessions, 1)
	assert.Equal(t, fresh.ID, sessions[0].ID)
	assert.True(t, sessions[0].Online)

	rec = f.do(t, http.MethodGet, "/admin/sessions/active?window=15m", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sessions = decodeSessions(t, rec)
	require.Len(t, sessions, 2)
	assert.Equal(t, fresh.ID, sessions[0].ID)
	assert.Equal(t, stale.ID, sessions[1].ID)

	rec = f.do(t, http.MethodGet, "/admin/sessions/active?window=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListCallsAndAll(t *testing.T) {
	f := newAdminFixture(t)
	plain := f.newSession(t)
	booked := f.newSession(t)

	phone := "91234567"
	at := time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC)
	_, err := f.repo.UpdateSession(context.Background(), booked.ID, chat.SessionUpdate{PhoneNumber: &phone, BookedCall: &at})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/admin/sessions/calls", "")
	require.Equal(t, http.StatusOK, rec.Code)
	calls := decodeSessions(t, rec)
	require.Len(t, calls, 1)
	assert.Equal(t, booked.ID, calls[0].ID)
	require.NotNil(t, calls[0].PhoneNumber)
	assert.Equal(t, phone, *calls[0].PhoneNumber)

	rec = f.do(t, http.MethodGet, "/admin/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ids := []string{}
	for _, s := range decodeSessions(t, rec) {
		ids = append(ids, s.ID)
	}
	assert.ElementsMatch(t, []string{plain.ID, booked.ID}, ids)
}

func TestAdminGetMessages(t *testing.T) {
	f := newAdminFixture(t)
	s := f.newSession(t)
	_, err := f.repo.AppendMessage(context.Background(), s.ID, chat.RoleUser, "hello")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/admin/sessions/"+s.ID+"/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp TranscriptResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "user", resp.Messages[0].Role)
	assert.Equal(t, "hello", resp.Messages[0].Content)
	assert.Equal(t, s.ID, resp.Session.ID)

	rec = f.do(t, http.MethodGet, "/admin/sessions/missing/messages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminPostMessageClaimsSession(t *testing.T) {
	f := newAdminFixture(t)
	s := f.newSession(t)

	rec := f.do(t, http.MethodPost, "/admin/sessions/"+s.ID+"/messages", `{"content":"Hi, this is the admissions office."}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	got, err := f.repo.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin)

	msgs, err := f.repo.ListMessages(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, chat.RoleAdmin, msgs[0].Role)

	rec = f.do(t, http.MethodPost, "/admin/sessions/"+s.ID+"/messages", `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/admin/sessions/"+s.ID+"/messages", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/admin/sessions/missing/messages", `{"content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminClaimClearsPendingEscalation(t *testing.T) {
	f := newAdminFixture(t)
	s := f.newSession(t)
	pending := true
	_, err := f.repo.UpdateSession(context.Background(), s.ID, chat.SessionUpdate{EscalationPending: &pending})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/admin/sessions/"+s.ID+"/claim", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Session chat.Session `json:"session"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Session.IsAdmin)
	assert.False(t, resp.Session.EscalationPending)

	rec = f.do(t, http.MethodPost, "/admin/sessions/missing/claim", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminCompleteCall(t *testing.T) {
	f := newAdminFixture(t)
	s := f.newSession(t)

	rec := f.do(t, http.MethodPost, "/admin/sessions/"+s.ID+"/call/complete", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	phone := "91234567"
	at := time.Date(2026, 10, 18, 7, 0, 0, 0, time.UTC)
	status := chat.CallStatusPending
	_, err := f.repo.UpdateSession(context.Background(), s.ID, chat.SessionUpdate{PhoneNumber: &phone, BookedCall: &at, CallStatus: &status})
	require.NoError(t, err)

	rec = f.do(t, http.MethodPost, "/admin/sessions/"+s.ID+"/call/complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := f.repo.GetSession(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.CallStatusCompleted, got.CallStatus)
}

func readAdminFrame(t *testing.T, conn *websocket.Conn) adminFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame adminFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func dialAdminStream(t *testing.T, f *adminFixture, sessionID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/sessions/" + sessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestAdminStreamForwardsTranscript(t *testing.T) {
	f := newAdminFixture(t)
	s := f.newSession(t)
	_, err := f.repo.AppendMessage(context.Background(), s.ID, chat.RoleUser, "is anyone there?")
	require.NoError(t, err)

	conn := dialAdminStream(t, f, s.ID)

	history := readAdminFrame(t, conn)
	require.Equal(t, "history", history.Type)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "is anyone there?", history.Messages[0].Content)

	_, err = f.repo.AppendMessage(context.Background(), s.ID, chat.RoleUser, "hello?")
	require.NoError(t, err)
	frame := readAdminFrame(t, conn)
	require.Equal(t, "message", frame.Type)
	assert.Equal(t, "hello?", frame.Message.Content)

	require.NoError(t, conn.WriteJSON(adminInbound{Type: "message", Text: "Yes, I'm here."}))

	var sawClaim, sawReply bool
	for !(sawClaim && sawReply) {
		frame = readAdminFrame(t, conn)
		switch frame.Type {
		case "session":
			sawClaim = frame.Session.IsAdmin
		case "message":
			if frame.Message.Role == "admin" {
				assert.Equal(t, "Yes, I'm here.", frame.Message.Content)
				sawReply = true
			}
		}
	}

	require.NoError(t, conn.WriteJSON(adminInbound{Type: "ping"}))
	assert.Equal(t, "pong", readAdminFrame(t, conn).Type)
}

func TestAdminStreamGreetsEmptyTranscript(t *testing.T) {
	f := newAdminFixture(t)
	f.handler.WithGreeting("Hi, I'm May, your assistant. How can I help you?")
	s := f.newSession(t)

	history := readAdminFrame(t, dialAdminStream(t, f, s.ID))
	require.Equal(t, "history", history.Type)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "assistant", history.Messages[0].Role)
	assert.Equal(t, "Hi, I'm May, your assistant. How can I help you?", history.Messages[0].Content)

	msgs, err := f.repo.ListMessages(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestAdminStreamUnknownSession(t *testing.T) {
	f := newAdminFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminStreamRejectsOrigin(t *testing.T) {
	f := newAdminFixture(t)
	f.handler.upgrader.CheckOrigin = func(r *http.Request) bool {
		return r.Header.Get("Origin") == "https://admin.havana.example"
	}
	s := f.newSession(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/sessions/" + s.ID + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
