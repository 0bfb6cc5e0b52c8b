package webchat

import (
	"time"

	"github.com/wolfman30/havana-support/internal/chat"
	"github.com/wolfman30/havana-support/internal/live"
)

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string           `json:"type"` // "message", "history", "session", "error", "pong"
	ID        string           `json:"id,omitempty"`
	Text      string           `json:"text,omitempty"`
	Role      string           `json:"role,omitempty"`
	SessionID string           `json:"session_id,omitempty"`
	Timestamp string           `json:"timestamp,omitempty"`
	Messages  []HistoryMessage `json:"messages,omitempty"`
	Status    *SessionStatus   `json:"status,omitempty"`
}

// HistoryMessage is a transcript row as the widget renders it.
type HistoryMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// SessionStatus tells the widget whether a human is involved.
type SessionStatus struct {
	IsAdmin           bool   `json:"is_admin"`
	EscalationPending bool   `json:"escalation_pending"`
	CallStatus        string `json:"call_status,omitempty"`
}

func historyMessage(m chat.Message) HistoryMessage {
	return HistoryMessage{
		ID:        m.ID,
		Role:      string(m.Role),
		Text:      m.Content,
		Timestamp: m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func historyFrame(sessionID string, msgs []chat.Message) OutboundMessage {
	history := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, historyMessage(m))
	}
	return OutboundMessage{Type: "history", SessionID: sessionID, Messages: history}
}

func statusOf(s chat.Session) *SessionStatus {
	return &SessionStatus{
		IsAdmin:           s.IsAdmin,
		EscalationPending: s.EscalationPending,
		CallStatus:        string(s.CallStatus),
	}
}

// frameForEvent converts a live event into a widget frame. Events the widget
// does not render are skipped.
func frameForEvent(ev live.Event) (OutboundMessage, bool) {
	switch ev.Type {
	case live.EventMessageCreated:
		if ev.Message == nil {
			return OutboundMessage{}, false
		}
		m := historyMessage(*ev.Message)
		return OutboundMessage{
			Type:      "message",
			ID:        m.ID,
			Role:      m.Role,
			Text:      m.Text,
			SessionID: ev.SessionID,
			Timestamp: m.Timestamp,
		}, true
	case live.EventSessionUpdated:
		if ev.Session == nil {
			return OutboundMessage{}, false
		}
		return OutboundMessage{Type: "session", SessionID: ev.SessionID, Status: statusOf(*ev.Session)}, true
	default:
		return OutboundMessage{}, false
	}
}
