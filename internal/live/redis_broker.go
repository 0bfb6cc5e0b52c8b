package live

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/havana-support/pkg/logging"
)

// RedisBroker relays events through Redis pub/sub so every API instance sees
// every session's events.
type RedisBroker struct {
	client *redis.Client
	logger *logging.Logger
	tracer trace.Tracer
}

// NewRedisBroker creates a broker over an existing client.
func NewRedisBroker(client *redis.Client, logger *logging.Logger) *RedisBroker {
	if client == nil {
		panic("live: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisBroker{
		client: client,
		logger: logger,
		tracer: otel.Tracer("havana.internal.live"),
	}
}

func channelName(sessionID string) string {
	return "chat:session:" + sessionID
}

func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	ctx, span := b.tracer.Start(ctx, "live.publish")
	defer span.End()
	span.SetAttributes(attribute.String("chat.session_id", event.SessionID), attribute.String("live.event", string(event.Type)))

	payload, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("live: marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channelName(event.SessionID), payload).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("live: publish: %w", err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so events
// published after it returns are not missed.
func (b *RedisBroker) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channelName(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("live: subscribe: %w", err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan Event, subscriberBuffer),
		done:   make(chan struct{}),
	}
	go sub.forward(b.logger)
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Events() <-chan Event { return s.ch }

func (s *redisSubscription) forward(logger *logging.Logger) {
	defer close(s.ch)
	msgs := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn("live: dropping malformed event", "channel", msg.Channel, "error", err)
				continue
			}
			select {
			case s.ch <- event:
			default:
				logger.Debug("live: subscriber buffer full, dropping event", "session_id", event.SessionID)
			}
		}
	}
}

func (s *redisSubscription) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.pubsub.Close()
	})
}
