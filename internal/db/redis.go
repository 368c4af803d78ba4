package db

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"trip-tracker/internal/store"
)

func ConnectRedis(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

// RedisKV is a store.Backend on plain Redis strings. Keys also carry a Redis
// expiry so abandoned records do not linger.
type RedisKV struct {
	client *redis.Client
	expiry time.Duration
}

func NewRedisKV(client *redis.Client, expiry time.Duration) *RedisKV {
	return &RedisKV{client: client, expiry: expiry}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	return b, err
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, r.expiry).Err()
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
