package live

import (
	"context"

	"github.com/wolfman30/havana-support/internal/chat"
	"github.com/wolfman30/havana-support/pkg/logging"
)

// AppendObserver is notified after every committed message.
type AppendObserver interface {
	ObserveMessageAppended(role string)
}

// PublishingRepository decorates a chat.Repository and publishes an event
// after each successful write. Publish failures are logged and never undo
// the write.
type PublishingRepository struct {
	chat.Repository
	broker   Broker
	logger   *logging.Logger
	observer AppendObserver
}

// NewPublishingRepository wraps repo so its writes are broadcast on broker.
func NewPublishingRepository(repo chat.Repository, broker Broker, logger *logging.Logger) *PublishingRepository {
	if repo == nil {
		panic("live: repository cannot be nil")
	}
	if broker == nil {
		panic("live: broker cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PublishingRepository{Repository: repo, broker: broker, logger: logger}
}

// WithObserver attaches a hook for appended messages.
func (r *PublishingRepository) WithObserver(observer AppendObserver) *PublishingRepository {
	r.observer = observer
	return r
}

func (r *PublishingRepository) AppendMessage(ctx context.Context, sessionID string, role chat.Role, content string) (*chat.Message, error) {
	msg, err := r.Repository.AppendMessage(ctx, sessionID, role, content)
	if err != nil {
		return nil, err
	}
	r.messageCreated(ctx, msg)
	return msg, nil
}

func (r *PublishingRepository) EnsureGreeting(ctx context.Context, sessionID, greeting string) (*chat.Message, bool, error) {
	msg, created, err := r.Repository.EnsureGreeting(ctx, sessionID, greeting)
	if err != nil {
		return nil, false, err
	}
	if created {
		r.messageCreated(ctx, msg)
	}
	return msg, created, nil
}

func (r *PublishingRepository) UpdateSession(ctx context.Context, id string, update chat.SessionUpdate) (*chat.Session, error) {
	s, err := r.Repository.UpdateSession(ctx, id, update)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, Event{Type: EventSessionUpdated, SessionID: s.ID, Session: s})
	return s, nil
}

func (r *PublishingRepository) Claim(ctx context.Context, id string) (*chat.Session, error) {
	s, err := r.Repository.Claim(ctx, id)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, Event{Type: EventSessionUpdated, SessionID: s.ID, Session: s})
	return s, nil
}

func (r *PublishingRepository) messageCreated(ctx context.Context, msg *chat.Message) {
	if r.observer != nil {
		r.observer.ObserveMessageAppended(string(msg.Role))
	}
	r.publish(ctx, Event{Type: EventMessageCreated, SessionID: msg.SessionID, Message: msg})
}

func (r *PublishingRepository) publish(ctx context.Context, event Event) {
	if err := r.broker.Publish(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Warn("live event publish failed",
			"session_id", event.SessionID,
			"event", string(event.Type),
			"error", err,
		)
	}
}
