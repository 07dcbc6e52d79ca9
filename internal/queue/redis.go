package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client the list transport uses.
type RedisClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
	RPopLPush(ctx context.Context, source, destination string) *redis.StringCmd
}

// RedisTransport is a reliable list queue: received payloads are atomically moved to a
// processing list and removed from it on Ack.
type RedisTransport struct {
	client     RedisClient
	key        string
	processing string
	poll       time.Duration
}

func NewRedisTransport(client RedisClient, name string) *RedisTransport {
	return &RedisTransport{
		client:     client,
		key:        "queue:" + name,
		processing: "queue:" + name + ":processing",
		poll:       defaultPollWindow,
	}
}

func (t *RedisTransport) Publish(ctx context.Context, body []byte) error {
	return t.client.LPush(ctx, t.key, body).Err()
}

func (t *RedisTransport) Receive(ctx context.Context) (*Message, error) {
	payload, err := t.client.BLMove(ctx, t.key, t.processing, "RIGHT", "LEFT", t.poll).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return NewMessage([]byte(payload), func(ctx context.Context) error {
		return t.client.LRem(ctx, t.processing, 1, payload).Err()
	}), nil
}

// Recover moves messages left in the processing list back onto the queue: those of a
// crashed worker and those whose retry could not be published. Call it while no consumer
// of this queue is running.
func (t *RedisTransport) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := t.client.RPopLPush(ctx, t.processing, t.key).Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover %s: %w", t.processing, err)
		}
		moved++
	}
}

// Close is a no-op; the shared client is owned by the cache package.
func (t *RedisTransport) Close() error { return nil }
