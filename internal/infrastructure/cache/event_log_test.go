package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestEventLog(t *testing.T, ttl time.Duration) (*EventLog, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewEventLog(client, ttl), mr
}

func TestEventLog_MarkAndSeen(t *testing.T) {
	events, mr := setupTestEventLog(t, time.Hour)
	ctx := context.Background()

	seen, err := events.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, events.MarkSeen(ctx, "evt_1"))

	seen, err = events.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.True(t, mr.Exists("webhook:event:evt_1"))
	assert.Equal(t, time.Hour, mr.TTL("webhook:event:evt_1"))
}

func TestEventLog_Expires(t *testing.T) {
	events, mr := setupTestEventLog(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, events.MarkSeen(ctx, "evt_1"))
	mr.FastForward(2 * time.Minute)

	seen, err := events.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestEventLog_DefaultTTL(t *testing.T) {
	events, mr := setupTestEventLog(t, 0)

	require.NoError(t, events.MarkSeen(context.Background(), "evt_1"))

	assert.Equal(t, defaultEventTTL, mr.TTL("webhook:event:evt_1"))
}

func TestEventLog_RedisDown(t *testing.T) {
	events, mr := setupTestEventLog(t, time.Hour)
	mr.Close()

	_, err := events.Seen(context.Background(), "evt_1")
	assert.Error(t, err)
	assert.Error(t, events.MarkSeen(context.Background(), "evt_1"))
}
