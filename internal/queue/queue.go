// Package queue carries action-log messages from the API process to the
// worker. InMemory serves single-process deployments; RedisQueue lets a
// separate worker drain the log.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis list used when none is configured.
const DefaultKey = "campusevents:actions"

// Message represents work to be processed.
type Message struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// NewMessage encodes body as JSON under typ.
func NewMessage(typ string, body any) (Message, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s message: %w", typ, err)
	}
	return Message{Type: typ, Body: raw}, nil
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// ErrFull is returned by TryPublish when the in-memory buffer is full.
var ErrFull = errors.New("queue full")

// InMemory is a bounded channel-backed queue.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	if size <= 0 {
		size = 1
	}
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message, waiting for room until ctx is done.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish enqueues without waiting.
func (q *InMemory) TryPublish(msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrFull
	}
}

// Len returns the number of buffered messages.
func (q *InMemory) Len() int { return len(q.ch) }

// Consume returns a channel for workers. It closes when ctx is done.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a Redis list-backed queue.
type RedisQueue struct {
	client  *redis.Client
	key     string
	block   time.Duration
	onError func(error)
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key, block: 5 * time.Second, onError: func(error) {}}
}

// OnError registers a callback for consume errors that are retried.
func (q *RedisQueue) OnError(fn func(error)) {
	if fn != nil {
		q.onError = fn
	}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	payload, err := serialize(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Consume streams messages using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, q.block, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					q.onError(err)
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			msg, err := deserialize(res[1])
			if err != nil {
				q.onError(err)
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func serialize(msg Message) (string, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return string(b), nil
}

func deserialize(s string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(s), &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, errors.New("decode message: missing type")
	}
	return msg, nil
}
