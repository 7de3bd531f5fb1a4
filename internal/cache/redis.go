// internal/cache/redis.go

// Package cache holds the Redis client and the activity queue consumed by the historian.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/realms/internal/models"
	"github.com/redis/go-redis/v9"
)

// Connect opens a client for addr and pings it.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// ActivityQueue is a Redis list of JSON-encoded room activity records.
type ActivityQueue struct {
	Client *redis.Client
	Name   string
}

// Record serializes rec and pushes it onto the queue.
func (q ActivityQueue) Record(ctx context.Context, rec models.ActivityRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal ActivityRecord: %w", err)
	}
	if err := q.Client.RPush(ctx, q.Name, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.Name, err)
	}
	return nil
}

// Pop blocks up to timeout for the next record. It returns nil, nil when the queue stays empty.
func (q ActivityQueue) Pop(ctx context.Context, timeout time.Duration) (*models.ActivityRecord, error) {
	res, err := q.Client.BLPop(ctx, timeout, q.Name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// res[0] is the list name, res[1] the payload
	if len(res) < 2 {
		return nil, nil
	}
	var rec models.ActivityRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		return nil, fmt.Errorf("invalid activity record: %w", err)
	}
	return &rec, nil
}
