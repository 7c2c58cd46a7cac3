package cache

import (
	"context"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisCache adapts a redis client to the Cache contract. Redis failures
// degrade to cache misses; they never fail the caller.
type RedisCache struct {
	client *redis.Client
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisCache connects to the given redis address.
func NewRedisCache(addr string, db int) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
	}
}

// NewAuto returns a redis-backed cache when addr is non-empty, otherwise
// the in-memory TTL cache.
func NewAuto(addr string, db int, maxEntries int64) Cache {
	if addr != "" {
		return NewRedisCache(addr, db)
	}
	return NewTTLCache(maxEntries)
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Str("key", key).Msg("redis get failed, treating as miss")
		}
		r.misses.Add(1)
		return nil, false
	}
	r.hits.Add(1)
	return val, true
}

func (r *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := r.client.Set(ctx, key, val, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("redis set failed, proceeding without cache fill")
		return err
	}
	return nil
}

func (r *RedisCache) Stats() Stats {
	return Stats{Hits: r.hits.Load(), Misses: r.misses.Load()}
}

// Close releases the redis connection.
func (r *RedisCache) Close() error { return r.client.Close() }
