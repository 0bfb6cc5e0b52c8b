package chat

import (
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleAdmin     Role = "admin"
)

// ParseRole validates a role string.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", ErrInvalidRole
}

// CallStatus tracks a requested callback. The zero value means no call.
type CallStatus string

const (
	CallStatusNone      CallStatus = ""
	CallStatusPending   CallStatus = "pending"
	CallStatusCompleted CallStatus = "completed"
)

// Session is the mutable record of one support conversation.
type Session struct {
	ID                string     `json:"id"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	IsAdmin           bool       `json:"is_admin"`
	EscalationPending bool       `json:"escalation_pending"`
	PhoneNumber       *string    `json:"phone_number,omitempty"`
	BookedCall        *time.Time `json:"booked_call,omitempty"`
	CallStatus        CallStatus `json:"call_status,omitempty"`
}

// Validate checks the booking invariant.
func (s Session) Validate() error {
	switch s.CallStatus {
	case CallStatusNone:
		return nil
	case CallStatusPending:
		if s.PhoneNumber == nil || s.BookedCall == nil {
			return ErrIncompleteBooking
		}
		return nil
	case CallStatusCompleted:
		if s.BookedCall == nil {
			return ErrNoBookedCall
		}
		return nil
	}
	return ErrInvalidCallStatus
}

// HumanEngaged reports whether the bot must stay silent.
func (s Session) HumanEngaged() bool {
	return s.IsAdmin || s.EscalationPending
}

// Message is one immutable entry in a session transcript.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionUpdate carries a partial mutation; nil fields are left untouched.
type SessionUpdate struct {
	PhoneNumber       *string
	BookedCall        *time.Time
	CallStatus        *CallStatus
	EscalationPending *bool

	// BotOnly makes the update fail with ErrHumanOwned once a human is engaged.
	BotOnly bool
}

// Empty reports whether the update changes nothing.
func (u SessionUpdate) Empty() bool {
	return u.PhoneNumber == nil && u.BookedCall == nil && u.CallStatus == nil && u.EscalationPending == nil
}

// Check runs against the locked current row. Raising an escalation on a
// claimed session is always refused.
func (u SessionUpdate) Check(current Session) error {
	if u.BotOnly && current.HumanEngaged() {
		return ErrHumanOwned
	}
	if u.EscalationPending != nil && *u.EscalationPending && current.IsAdmin {
		return ErrHumanOwned
	}
	return nil
}

// ApplyTo returns a copy of s with the update applied.
func (u SessionUpdate) ApplyTo(s Session) Session {
	if u.PhoneNumber != nil {
		phone := *u.PhoneNumber
		s.PhoneNumber = &phone
	}
	if u.BookedCall != nil {
		at := u.BookedCall.UTC()
		s.BookedCall = &at
	}
	if u.CallStatus != nil {
		s.CallStatus = *u.CallStatus
	}
	if u.EscalationPending != nil {
		s.EscalationPending = *u.EscalationPending
	}
	return s
}

func normalizeContent(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}
