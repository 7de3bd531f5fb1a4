// internal/room/hub_test.go

package room

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionWriteDropsWhenFull(t *testing.T) {
	c := NewConnection(uuid.New(), "alice", nil)
	for i := 0; i < outBuffer+5; i++ {
		c.Write(Event{Type: EventMessage})
	}
	assert.Len(t, c.OutChan, outBuffer)

	c.Close()
	c.Close()
	c.Write(Event{Type: EventMessage})
	assert.Len(t, c.OutChan, outBuffer)
}

func TestHubStoreAttachBroadcastAndCleanup(t *testing.T) {
	store := NewHubStore()
	a := NewConnection(uuid.New(), "alice", nil)
	b := NewConnection(uuid.New(), "bob", nil)

	hub := store.Attach("abc123", a)
	store.Attach("abc123", b)
	assert.Equal(t, 2, hub.Count())

	store.Deliver(Event{Type: EventPlayerReady, RoomCode: "abc123"})
	store.Deliver(Event{Type: EventPlayerReady, RoomCode: "other1"})
	assert.Len(t, a.OutChan, 1)
	assert.Len(t, b.OutChan, 1)

	hub.RemoveConnection(a)
	assert.Equal(t, 1, store.Len())
	hub.RemoveConnection(b)
	assert.Equal(t, 0, store.Len())

	select {
	case <-a.Done():
	default:
		t.Fatal("removed connection should be closed")
	}
}

func TestHubReplacesConnectionForSameUser(t *testing.T) {
	store := NewHubStore()
	user := uuid.New()
	cancelled := false
	old := NewConnection(user, "alice", func() { cancelled = true })
	fresh := NewConnection(user, "alice", nil)

	hub := store.Attach("abc123", old)
	store.Attach("abc123", fresh)
	assert.True(t, cancelled)
	assert.Equal(t, 1, hub.Count())

	// the old connection's pump cleaning up must not evict the new one
	hub.RemoveConnection(old)
	assert.Equal(t, 1, hub.Count())
	assert.Equal(t, 1, store.Len())
}

func TestLocalPublisher(t *testing.T) {
	store := NewHubStore()
	c := NewConnection(uuid.New(), "alice", nil)
	store.Attach("abc123", c)

	require.NoError(t, LocalPublisher{Hubs: store}.Publish(context.Background(), Event{Type: EventRoomStarted, RoomCode: "abc123"}))
	ev := <-c.OutChan
	assert.Equal(t, EventRoomStarted, ev.Type)
}

func TestRedisRelay(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	hubs := NewHubStore()
	c := NewConnection(uuid.New(), "alice", nil)
	hubs.Attach("abc123", c)

	logger, _ := test.NewNullLogger()
	relay := &Relay{Client: client, Prefix: "realms:room:", Hubs: hubs, Logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	pub := RedisPublisher{Client: client, Prefix: "realms:room:"}
	// retry until the relay's subscription is live
	var got Event
	require.Eventually(t, func() bool {
		_ = pub.Publish(ctx, Event{Type: EventPlayerJoined, RoomCode: "abc123", At: time.Now()})
		select {
		case got = <-c.OutChan:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, EventPlayerJoined, got.Type)
	assert.Equal(t, "abc123", got.RoomCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}
