// internal/room/publisher.go

package room

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// LocalPublisher delivers events straight to this instance's hubs.
type LocalPublisher struct {
	Hubs *HubStore
}

func (p LocalPublisher) Publish(_ context.Context, ev Event) error {
	p.Hubs.Deliver(ev)
	return nil
}

// RedisPublisher publishes events on <prefix><code> so every instance's Relay can deliver them.
type RedisPublisher struct {
	Client *redis.Client
	Prefix string
}

func (p RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}
	if err := p.Client.Publish(ctx, p.Prefix+ev.RoomCode, data).Err(); err != nil {
		return fmt.Errorf("failed to publish room event: %w", err)
	}
	return nil
}

// Relay forwards room events from Redis into the local hubs.
type Relay struct {
	Client *redis.Client
	Prefix string
	Hubs   *HubStore
	Logger *logrus.Logger
}

// Run subscribes to every room channel and blocks until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.Client.PSubscribe(ctx, r.Prefix+"*")
	defer pubsub.Close()

	// wait for the subscription to be confirmed so no early event is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to room events: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.Logger.WithError(err).WithField("channel", msg.Channel).Warn("dropping malformed room event")
				continue
			}
			r.Hubs.Deliver(ev)
		}
	}
}
