package live

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/havana-support/internal/chat"
	"github.com/wolfman30/havana-support/pkg/logging"
)

func receive(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestMemoryBrokerRoutesBySession(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	subA, err := broker.Subscribe(ctx, "a")
	require.NoError(t, err)
	defer subA.Close()
	subB, err := broker.Subscribe(ctx, "b")
	require.NoError(t, err)
	defer subB.Close()

	require.NoError(t, broker.Publish(ctx, Event{Type: EventMessageCreated, SessionID: "a"}))

	ev := receive(t, subA)
	assert.Equal(t, "a", ev.SessionID)
	select {
	case <-subB.Events():
		t.Fatal("session b must not see session a events")
	default:
	}
}

func TestMemoryBrokerDropsWhenFull(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()
	sub, err := broker.Subscribe(ctx, "a")
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, broker.Publish(ctx, Event{SessionID: "a"}))
	}
	assert.Len(t, sub.Events(), subscriberBuffer)
}

func TestMemoryBrokerCloseUnsubscribes(t *testing.T) {
	broker := NewMemoryBroker()
	sub, err := broker.Subscribe(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, broker.subs["a"], 1)

	sub.Close()
	sub.Close()
	assert.NotContains(t, broker.subs, "a")
	require.NoError(t, broker.Publish(context.Background(), Event{SessionID: "a"}))

	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	broker := NewRedisBroker(client, logging.Default())
	ctx := context.Background()

	sub, err := broker.Subscribe(ctx, "sess-1")
	require.NoError(t, err)
	defer sub.Close()

	msg := &chat.Message{ID: "m1", SessionID: "sess-1", Role: chat.RoleAdmin, Content: "hello"}
	require.NoError(t, broker.Publish(ctx, Event{Type: EventMessageCreated, SessionID: "sess-1", Message: msg}))

	ev := receive(t, sub)
	assert.Equal(t, EventMessageCreated, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, chat.RoleAdmin, ev.Message.Role)
	assert.Equal(t, "hello", ev.Message.Content)
}

func TestRedisBrokerCloseEndsStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sub, err := NewRedisBroker(client, logging.Default()).Subscribe(context.Background(), "sess-1")
	require.NoError(t, err)
	sub.Close()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}
