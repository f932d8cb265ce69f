package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/geodds/geodds/pkg/config"
)

const (
	// StreamName is the durable queue shared by broker and executors.
	StreamName = "query_queue"
	// GroupName is the executor consumer group.
	GroupName = "executors"

	bodyField = "body"

	// DefaultMaxStreamLen caps the stream when QUEUE_MAX_STREAM_LEN is unset.
	// Acknowledging an entry only clears it from the group's pending list;
	// trimming on insert is what bounds the stream's memory.
	DefaultMaxStreamLen = 8192
)

// Queue is a durable work queue backed by a Redis Stream.
type Queue struct {
	client *redis.Client
	codec  Codec
	maxLen int64
}

// New connects to the queue broker and verifies the connection.
func New(cfg config.QueueConfig) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Broker,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to queue broker: %w", err)
	}

	maxLen := cfg.MaxStreamLen
	if maxLen <= 0 {
		maxLen = DefaultMaxStreamLen
	}
	return &Queue{client: client, codec: NewCodec(cfg.Separator), maxLen: maxLen}, nil
}

// NewWithClient wraps an existing Redis client (used by tests).
func NewWithClient(client *redis.Client, separator string) *Queue {
	return &Queue{client: client, codec: NewCodec(separator), maxLen: DefaultMaxStreamLen}
}

// Codec exposes the message codec bound to this queue's separator.
func (q *Queue) Codec() Codec {
	return q.codec
}

// Client exposes the underlying connection for health checks.
func (q *Queue) Client() *redis.Client {
	return q.client
}

// Close releases the connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

// EnsureGroup creates the executor consumer group if it does not exist yet.
func (q *Queue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, StreamName, GroupName, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Publish appends a message body to the stream and trims it to approximately
// maxLen entries. XACK does not remove entries, so the insert-time trim is
// the only thing keeping the stream bounded.
func (q *Queue) Publish(ctx context.Context, body string) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]interface{}{bodyField: body},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Delivery is one consumed message. Ack must be called on the Delivery so
// that the acknowledgment travels over the same connection that received the
// entry.
type Delivery struct {
	ID   string
	Body string

	queue *Queue
}

// Ack marks the entry as processed for the consumer group.
func (d *Delivery) Ack(ctx context.Context) error {
	if err := d.queue.client.XAck(ctx, StreamName, GroupName, d.ID).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", d.ID, err)
	}
	return nil
}

// Consume blocks for up to block waiting for one new entry for the given
// consumer. It returns nil when the wait times out; the caller loops.
// COUNT is fixed at 1 (prefetch=1): an executor takes new work only when it
// is ready to dispatch it.
func (q *Queue) Consume(ctx context.Context, consumer string, block time.Duration) (*Delivery, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    GroupName,
		Consumer: consumer,
		Streams:  []string{StreamName, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from queue: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			body, _ := msg.Values[bodyField].(string)
			return &Delivery{ID: msg.ID, Body: body, queue: q}, nil
		}
	}
	return nil, nil
}

// Reclaim transfers one entry stuck in another consumer's pending list to the
// given consumer. Entries get stuck when their consumer dies between delivery
// and acknowledgment; minIdle must exceed the longest legitimate processing
// time so live work is never stolen. Returns nil when nothing qualifies.
func (q *Queue) Reclaim(ctx context.Context, consumer string, minIdle time.Duration) (*Delivery, error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamName,
		Group:    GroupName,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0",
		Count:    1,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reclaim pending messages: %w", err)
	}
	for _, msg := range msgs {
		body, _ := msg.Values[bodyField].(string)
		return &Delivery{ID: msg.ID, Body: body, queue: q}, nil
	}
	return nil, nil
}

// PendingCount reports entries delivered to the group but not yet acked.
func (q *Queue) PendingCount(ctx context.Context) (int64, error) {
	pending, err := q.client.XPending(ctx, StreamName, GroupName).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read pending count: %w", err)
	}
	return pending.Count, nil
}
