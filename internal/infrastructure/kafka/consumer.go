package kafka

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/example/ec-checkout/internal/retry"
	"github.com/segmentio/kafka-go"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic as part of a consumer group. Offsets are committed
// only after the handler has run, so delivery is at least once.
type Consumer struct {
	reader messageReader
	policy retry.Policy
}

func NewConsumer(brokers []string, topic, groupID string, policy retry.Policy) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	return &Consumer{reader: reader, policy: policy}
}

// Consume blocks until ctx is cancelled. A message whose handler still fails
// after the retry policy is logged and skipped.
// Failed fetches back off between the policy's intervals.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	fetchBackoff := backoff.NewExponentialBackOff()
	if c.policy.InitialInterval > 0 {
		fetchBackoff.InitialInterval = c.policy.InitialInterval
	}
	if c.policy.MaxInterval > 0 {
		fetchBackoff.MaxInterval = c.policy.MaxInterval
	}

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := fetchBackoff.NextBackOff()
			log.Printf("[Kafka] Error reading message, retrying in %s: %v", wait, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		fetchBackoff.Reset()

		_, err = retry.Do(ctx, "handle message", c.policy, nil, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, handler(ctx, msg.Key, msg.Value)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Kafka] Skipping message %s/%d@%d: %v", msg.Topic, msg.Partition, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Kafka] Error committing offset %d: %v", msg.Offset, err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
