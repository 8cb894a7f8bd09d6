package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"recolha/internal/config"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "recolha:"

// RedisListCache stores string lists as JSON values under a common prefix.
type RedisListCache struct {
	client *redis.Client
}

// NewRedisClient builds a client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisListCache(client *redis.Client) *RedisListCache {
	return &RedisListCache{client: client}
}

// GetList returns (nil, nil) on a cache miss.
func (r *RedisListCache) GetList(ctx context.Context, key string) ([]string, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get list from redis: %w", err)
	}

	var values []string
	if err := json.Unmarshal([]byte(val), &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal list: %w", err)
	}
	return values, nil
}

func (r *RedisListCache) SetList(ctx context.Context, key string, values []string, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal list: %w", err)
	}

	if err := r.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set list in redis: %w", err)
	}
	return nil
}

func (r *RedisListCache) Delete(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete list from redis: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
