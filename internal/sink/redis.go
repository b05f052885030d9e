package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/pixel-relay/internal/pkg/logger"
)

// RedisQueue pushes records onto a Redis list consumed by the downstream
// tag manager. Pushes are synchronous so that the single-producer FIFO
// guarantee survives the handoff; a failed push is logged and dropped
// (retry/backoff against the sink is explicitly not this service's job).
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a Redis-backed sink writing to the given list key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

// Key returns the Redis list key this queue writes to.
func (q *RedisQueue) Key() string { return q.key }

// Push marshals the record and appends it to the list.
func (q *RedisQueue) Push(rec Record) {
	body, err := json.Marshal(rec)
	if err != nil {
		logger.Error("marshal data-layer record", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.client.RPush(ctx, q.key, body).Err(); err != nil {
		logger.Error("push data-layer record", "key", q.key, "error", err)
	}
}
