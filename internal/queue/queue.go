package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/cart-totals/internal/events"
	"github.com/noah-isme/cart-totals/internal/resilience"
)

// ErrNoKind is returned for a task without a valid kind.
var ErrNoKind = errors.New("queue: task kind is required")

// Task is a unit of work handed to downstream consumers.
type Task struct {
	Kind           string
	Payload        []byte
	IdempotencyKey string
	Delay          time.Duration
}

// Message is the JSON document stored in the queue.
type Message struct {
	Kind        string          `json:"kind"`
	Key         string          `json:"key,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	AvailableAt int64           `json:"available_at"`
}

// Enqueuer publishes tasks to Redis sorted sets scored by availability time.
type Enqueuer struct {
	Client   redis.UniversalClient
	Prefix   string
	DedupTTL time.Duration
	Now      func() time.Time
}

// Enqueue inserts the task. A task carrying an idempotency key is enqueued
// at most once within the dedup window.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.Client == nil {
		return errors.New("queue: redis client not configured")
	}
	kind := sanitizeKind(t.Kind)
	if kind == "" {
		return ErrNoKind
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	msg := Message{
		Kind:        kind,
		Key:         t.IdempotencyKey,
		Payload:     t.Payload,
		AvailableAt: now().Add(t.Delay).UnixNano(),
	}

	if msg.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ok, err := e.Client.SetNX(ctx, e.key("dedup", kind, msg.Key), "1", ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return e.Client.ZAdd(ctx, e.QueueKey(kind), redis.Z{Score: float64(msg.AvailableAt), Member: raw}).Err()
}

// QueueKey returns the sorted set holding tasks of kind.
func (e Enqueuer) QueueKey(kind string) string {
	return e.key("queue", kind)
}

func (e Enqueuer) key(parts ...string) string {
	key := strings.Join(parts, ":")
	if e.Prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", e.Prefix, key)
}

// EventPublisher forwards cart events to the queue, one task kind per topic.
// An optional Breaker stops publishing while Redis keeps failing.
type EventPublisher struct {
	Enqueuer Enqueuer
	Timeout  time.Duration
	Breaker  *resilience.Breaker
}

// Notify implements events.Notifier. The event ID doubles as idempotency key.
func (p EventPublisher) Notify(event events.Event) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	task := Task{
		Kind:           event.Topic,
		Payload:        body,
		IdempotencyKey: event.ID.String(),
	}
	return p.Breaker.Do(ctx, func(ctx context.Context) error {
		return p.Enqueuer.Enqueue(ctx, task)
	})
}

func sanitizeKind(kind string) string {
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == ':', c == '.':
		default:
			return ""
		}
	}
	return kind
}
