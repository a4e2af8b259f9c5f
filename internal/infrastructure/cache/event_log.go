package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultEventTTL = 72 * time.Hour

// EventLog remembers which webhook event ids were already handled. It only
// saves work; a lost entry means the event is handled again, which the
// ledger tolerates.
type EventLog struct {
	client *redis.Client
	ttl    time.Duration
}

func NewEventLog(client *redis.Client, ttl time.Duration) *EventLog {
	if ttl <= 0 {
		ttl = defaultEventTTL
	}
	return &EventLog{client: client, ttl: ttl}
}

func (l *EventLog) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := l.client.Exists(ctx, eventKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return n > 0, nil
}

func (l *EventLog) MarkSeen(ctx context.Context, eventID string) error {
	if err := l.client.SetNX(ctx, eventKey(eventID), time.Now().Unix(), l.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	return nil
}

func eventKey(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}
