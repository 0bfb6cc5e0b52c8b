// Package live fans out per-session change notifications to connected
// viewers. Delivery is best effort: a slow subscriber loses events and is
// expected to reload the transcript.
package live

import (
	"context"
	"sync"

	"github.com/wolfman30/havana-support/internal/chat"
)

// EventType names what changed.
type EventType string

const (
	EventMessageCreated EventType = "message.created"
	EventSessionUpdated EventType = "session.updated"
)

// Event is one notification for a session.
type Event struct {
	Type      EventType     `json:"type"`
	SessionID string        `json:"session_id"`
	Message   *chat.Message `json:"message,omitempty"`
	Session   *chat.Session `json:"session,omitempty"`
}

// Subscription delivers events for one session until closed.
type Subscription interface {
	Events() <-chan Event
	Close()
}

// Broker publishes and subscribes to per-session events.
type Broker interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
}

const subscriberBuffer = 32

// MemoryBroker is an in-process Broker for single-instance deployments.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySubscription]struct{}
}

// NewMemoryBroker creates an empty broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySubscription]struct{})}
}

func (b *MemoryBroker) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[event.SessionID] {
		sub.deliver(event)
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	sub := &memorySubscription{
		ch:     make(chan Event, subscriberBuffer),
		broker: b,
		id:     sessionID,
	}
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*memorySubscription]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

type memorySubscription struct {
	ch     chan Event
	broker *MemoryBroker
	id     string
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func (s *memorySubscription) Events() <-chan Event { return s.ch }

func (s *memorySubscription) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- event:
	default:
	}
}

func (s *memorySubscription) Close() {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs[s.id], s)
		if len(s.broker.subs[s.id]) == 0 {
			delete(s.broker.subs, s.id)
		}
		s.broker.mu.Unlock()

		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}
