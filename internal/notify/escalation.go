package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/havana-support/internal/chat"
	"github.com/wolfman30/havana-support/internal/conversation"
	"github.com/wolfman30/havana-support/pkg/logging"
)

// EscalationNotifier emails the admin inbox when a visitor asks for a human
// or confirms a callback.
type EscalationNotifier struct {
	email     EmailSender
	recipient string
	loc       *time.Location
	logger    *logging.Logger
}

// NewEscalationNotifier returns a notifier that does nothing when recipient is empty.
func NewEscalationNotifier(email EmailSender, recipient string, loc *time.Location, logger *logging.Logger) *EscalationNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &EscalationNotifier{
		email:     email,
		recipient: strings.TrimSpace(recipient),
		loc:       loc,
		logger:    logger,
	}
}

func (n *EscalationNotifier) NotifyEscalation(ctx context.Context, esc conversation.Escalation) error {
	if n.email == nil || n.recipient == "" {
		n.logger.Debug("notify: escalation email not configured, skipping", "session_id", esc.Session.ID, "kind", string(esc.Kind))
		return nil
	}

	msg := EmailMessage{
		To:      n.recipient,
		Subject: escalationSubject(esc),
		Body:    n.escalationBody(esc),
	}
	if err := n.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send escalation email: %w", err)
	}
	return nil
}

func escalationSubject(esc conversation.Escalation) string {
	switch esc.Kind {
	case conversation.EscalationCallBooked:
		return "Callback booked for chat " + shortID(esc.Session.ID)
	default:
		return "Visitor waiting for an admin in chat " + shortID(esc.Session.ID)
	}
}

func (n *EscalationNotifier) escalationBody(esc conversation.Escalation) string {
	var b strings.Builder
	switch esc.Kind {
	case conversation.EscalationCallBooked:
		b.WriteString("A visitor booked a follow-up call.\n")
	default:
		b.WriteString("A visitor asked to speak with an admin now.\n")
	}
	fmt.Fprintf(&b, "\nSession: %s", esc.Session.ID)
	if esc.Session.PhoneNumber != nil {
		fmt.Fprintf(&b, "\nPhone: %s", *esc.Session.PhoneNumber)
	}
	if esc.Session.BookedCall != nil {
		fmt.Fprintf(&b, "\nCall time: %s", conversation.FormatCallTime(*esc.Session.BookedCall, n.loc))
	}
	if esc.Session.CallStatus != chat.CallStatusNone {
		fmt.Fprintf(&b, "\nCall status: %s", esc.Session.CallStatus)
	}
	if msg := strings.TrimSpace(esc.Message); msg != "" {
		fmt.Fprintf(&b, "\n\nLast message:\n%s", msg)
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var _ conversation.Notifier = (*EscalationNotifier)(nil)
