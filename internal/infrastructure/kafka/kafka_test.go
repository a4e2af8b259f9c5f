package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ec-checkout/internal/retry"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader serves queued messages, then blocks until ctx is cancelled
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{queue: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

// runConsumer consumes until the fake reader is drained
func runConsumer(t *testing.T, reader *fakeReader, handler MessageHandler) {
	t.Helper()
	c := &Consumer{reader: reader, policy: testPolicy()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx, handler) }()

	select {
	case <-reader.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain the reader")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

// ============================================
// Producer Tests
// ============================================

func TestProducer_PublishEncodesEventWithKey(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w}

	err := p.Publish(context.Background(), "order-1", map[string]string{"event_type": "OrderPlaced"})

	require.NoError(t, err)
	require.Len(t, w.messages, 1)
	assert.Equal(t, "order-1", string(w.messages[0].Key))
	assert.JSONEq(t, `{"event_type":"OrderPlaced"}`, string(w.messages[0].Value))
	assert.False(t, w.messages[0].Time.IsZero())
}

func TestProducer_PublishWriteError(t *testing.T) {
	cause := errors.New("broker down")
	p := &Producer{writer: &fakeWriter{err: cause}}

	err := p.Publish(context.Background(), "order-1", struct{}{})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "order-1")
}

func TestProducer_PublishEncodeError(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w}

	err := p.Publish(context.Background(), "order-1", json.RawMessage("{broken"))

	assert.Error(t, err)
	assert.Empty(t, w.messages)
}

// ============================================
// Consumer Tests
// ============================================

func TestConsumer_HandlesAndCommitsInOrder(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Key: []byte("a"), Value: []byte("1"), Offset: 10},
		kafka.Message{Key: []byte("b"), Value: []byte("2"), Offset: 11},
	)
	var seen []string

	runConsumer(t, reader, func(ctx context.Context, key, value []byte) error {
		seen = append(seen, string(key)+"="+string(value))
		return nil
	})

	assert.Equal(t, []string{"a=1", "b=2"}, seen)
	assert.Equal(t, []int64{10, 11}, reader.committed)
}

func TestConsumer_RetriesTransientHandlerErrors(t *testing.T) {
	reader := newFakeReader(kafka.Message{Value: []byte("x"), Offset: 1})
	calls := 0

	runConsumer(t, reader, func(ctx context.Context, key, value []byte) error {
		calls++
		if calls < 3 {
			return errors.New("smtp timeout")
		}
		return nil
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{1}, reader.committed)
}

func TestConsumer_SkipsMessageAfterRetries(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Value: []byte("poison"), Offset: 1},
		kafka.Message{Value: []byte("ok"), Offset: 2},
	)
	var handled []string

	runConsumer(t, reader, func(ctx context.Context, key, value []byte) error {
		if string(value) == "poison" {
			return errors.New("always fails")
		}
		handled = append(handled, string(value))
		return nil
	})

	assert.Equal(t, []string{"ok"}, handled)
	assert.Equal(t, []int64{1, 2}, reader.committed)
}

// brokenReader fails every fetch, like a reader whose broker is gone
type brokenReader struct {
	mu      sync.Mutex
	fetches int
}

func (r *brokenReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	return kafka.Message{}, errors.New("dial tcp: connection refused")
}

func (r *brokenReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error { return nil }

func (r *brokenReader) Close() error { return nil }

func TestConsumer_BacksOffOnFetchErrors(t *testing.T) {
	reader := &brokenReader{}
	c := &Consumer{reader: reader, policy: retry.Policy{
		MaxAttempts:     3,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := c.Consume(ctx, func(ctx context.Context, key, value []byte) error { return nil })

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.GreaterOrEqual(t, reader.fetches, 2)
	assert.LessOrEqual(t, reader.fetches, 15)
}
