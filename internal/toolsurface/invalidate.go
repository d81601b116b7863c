package toolsurface

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Invalidator broadcasts a cache-clear signal across every process
// sharing this store, so a write on one host invalidates the result
// cache held by every other host behind the same tool surface. The
// in-process Cache only clears itself; Invalidator is what makes that
// clear visible beyond the process that performed the write.
type Invalidator interface {
	Publish(ctx context.Context) error
}

// RedisInvalidator publishes on a Redis pub/sub channel and, once
// Listen is running, clears the local cache whenever any process
// (including a different one) publishes on that channel.
type RedisInvalidator struct {
	client  *redis.Client
	channel string
}

// NewRedisInvalidator connects to addr and uses channel for broadcast.
func NewRedisInvalidator(addr, channel string) *RedisInvalidator {
	if channel == "" {
		channel = "chronicle:cache:invalidate"
	}
	return &RedisInvalidator{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
	}
}

// Publish broadcasts an invalidation signal.
func (r *RedisInvalidator) Publish(ctx context.Context) error {
	return r.client.Publish(ctx, r.channel, "clear").Err()
}

// Listen subscribes to the invalidation channel and calls cache.Clear
// for every message received, until ctx is cancelled. Messages this
// same process published are delivered back to it too; that is a
// harmless redundant clear, not a bug.
func (r *RedisInvalidator) Listen(ctx context.Context, cache *Cache) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			cache.Clear()
		}
	}
}

// Close releases the underlying Redis connection.
func (r *RedisInvalidator) Close() error { return r.client.Close() }
