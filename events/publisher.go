/*
Package events emits best-effort notifications over Redis Streams.

PURPOSE:
  After a transfer commits, cached views of the dashboard, credits, and
  profile pages are stale. Rather than an inline try/catch-and-ignore, the
  service emits a decoupled event; consumers (cache layer, audit feeds)
  subscribe to the stream. A failed emission is observable in the stream lag
  and in logs but never blocks the transfer's success path.

STREAM LAYOUT:
  Stream "credits.events", one XADD per event, JSON body under the "event"
  field:
    {"type": "transfer.completed", "timestamp": ..., "data": {...}}

SEE ALSO:
  - credits/notify.go: The Notifier interface this package implements
*/
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmgo/backoffice/credits"
)

// Stream and event type names.
const (
	CreditsStream     = "credits.events"
	TransferCompleted = "transfer.completed"
)

// Event is the envelope written to the stream.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Publisher writes events to a Redis stream.
type Publisher struct {
	client *redis.Client
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish appends one event to the stream.
func (p *Publisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"event": eventJSON},
	}
	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// CacheInvalidator implements credits.Notifier by publishing
// transfer.completed events carrying the views to refresh.
type CacheInvalidator struct {
	publisher *Publisher
}

func NewCacheInvalidator(client *redis.Client) *CacheInvalidator {
	return &CacheInvalidator{publisher: NewPublisher(client)}
}

func (c *CacheInvalidator) TransferCompleted(ctx context.Context, ev credits.TransferEvent) error {
	return c.publisher.Publish(ctx, CreditsStream, TransferCompleted, ev)
}
